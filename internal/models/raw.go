package models

import "time"

// Merchant is the merchant descriptor attached to every raw record.
type Merchant struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Country string `json:"country"`
}

// RawPayload is the envelope stored in the data lake: a heterogeneous
// provider payload plus merchant metadata and a transaction-correlation id.
type RawPayload struct {
	Data            map[string]interface{} `json:"data"`
	Merchant        Merchant               `json:"merchant"`
	TransactionalID string                 `json:"transactional_id"`
}

// RawIngestionRecord is one unprocessed row from the external raw-event
// source. The core never writes these; it only marks them processed after
// successful normalization and persistence.
type RawIngestionRecord struct {
	ID        string     `json:"id" db:"id"`
	Payload   RawPayload `json:"payload" db:"payload"`
	Processed bool       `json:"is_processed" db:"is_processed"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// EnrichedPayload merges the merchant metadata and correlation id into the
// heterogeneous data sub-object. Normalizers see one flat map; the merchant
// keys use the merchant_ prefix so they never collide with provider fields.
func (r *RawIngestionRecord) EnrichedPayload() map[string]interface{} {
	out := make(map[string]interface{}, len(r.Payload.Data)+4)
	for k, v := range r.Payload.Data {
		out[k] = v
	}
	out["transactional_id"] = r.Payload.TransactionalID
	out["merchant_id"] = r.Payload.Merchant.ID
	out["merchant_name"] = r.Payload.Merchant.Name
	out["merchant_country"] = r.Payload.Merchant.Country
	return out
}

// ProviderHint extracts the gateway name from the payload's audit block,
// when present. Currently informational only.
func (r *RawIngestionRecord) ProviderHint() string {
	audit, ok := r.Payload.Data["audit"].(map[string]interface{})
	if !ok {
		return ""
	}
	gw, _ := audit["gw"].(string)
	return gw
}
