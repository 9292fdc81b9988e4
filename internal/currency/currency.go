// Package currency converts transaction amounts to USD for analytics
// using a static rate table. Production deployments would swap this for a
// live exchange-rate feed; the table is the reference behavior.
package currency

import (
	"math"
	"strings"
)

// usdRates maps ISO 4217 codes to their approximate USD rate.
var usdRates = map[string]float64{
	"USD": 1.0,
	"EUR": 1.10,
	"GBP": 1.27,
	"MXN": 0.058,
	"BRL": 0.20,
	"COP": 0.00025,
	"ARS": 0.001,
	"CLP": 0.0011,
	"PEN": 0.27,
	"CAD": 0.74,
	"AUD": 0.65,
	"JPY": 0.0069,
	"CNY": 0.14,
}

// ToUSD converts amount to its USD equivalent rounded to 2 decimals.
// Returns (0, false) for unsupported currencies so callers can leave the
// derived field null instead of storing a bogus zero.
func ToUSD(amount float64, code string) (float64, bool) {
	rate, ok := usdRates[strings.ToUpper(code)]
	if !ok {
		return 0, false
	}
	return math.Round(amount*rate*100) / 100, true
}

// Rate returns the USD exchange rate for a currency code.
func Rate(code string) (float64, bool) {
	rate, ok := usdRates[strings.ToUpper(code)]
	return rate, ok
}

// Supported lists the currency codes the table covers.
func Supported() []string {
	out := make([]string, 0, len(usdRates))
	for code := range usdRates {
		out = append(out, code)
	}
	return out
}
