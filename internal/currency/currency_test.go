package currency

import "testing"

func TestToUSD(t *testing.T) {
	tests := []struct {
		name     string
		amount   float64
		currency string
		want     float64
		wantOK   bool
	}{
		{"usd identity", 50.00, "USD", 50.00, true},
		{"eur", 100.00, "EUR", 110.00, true},
		{"lowercase code", 100.00, "eur", 110.00, true},
		{"brl", 150.50, "BRL", 30.10, true},
		{"cop tiny rate", 100000, "COP", 25.00, true},
		{"rounding", 10.00, "MXN", 0.58, true},
		{"unsupported", 10.00, "XYZ", 0, false},
		{"empty code", 10.00, "", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ToUSD(tt.amount, tt.currency)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("ToUSD(%v, %q) = %v, want %v", tt.amount, tt.currency, got, tt.want)
			}
		})
	}
}

func TestRate(t *testing.T) {
	if rate, ok := Rate("usd"); !ok || rate != 1.0 {
		t.Errorf("Rate(usd) = %v, %v", rate, ok)
	}
	if _, ok := Rate("XYZ"); ok {
		t.Error("expected unknown currency to have no rate")
	}
}

func TestSupportedCoversTable(t *testing.T) {
	codes := Supported()
	if len(codes) != len(usdRates) {
		t.Errorf("Supported() returned %d codes, table has %d", len(codes), len(usdRates))
	}
}
