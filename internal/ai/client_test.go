package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/paywatch/paywatch/internal/config"
	"github.com/paywatch/paywatch/internal/models"
)

func testClient(primary, secondary string) *Client {
	cfg := &config.Config{
		AIPrimary:        config.AIModelConfig{BaseURL: primary, APIKey: "test", Model: "primary-model"},
		AITimeout:        2 * time.Second,
		AIMaxRetries:     3,
		AIBackoffBase:    time.Millisecond,
		AIBackoffCeiling: 5 * time.Millisecond,
	}
	if secondary != "" {
		cfg.AISecondary = config.AIModelConfig{BaseURL: secondary, APIKey: "test", Model: "secondary-model"}
	}
	return NewClient(cfg)
}

func completionBody(content string) string {
	resp := map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]interface{}{"content": content}},
		},
	}
	body, _ := json.Marshal(resp)
	return string(body)
}

func extractionContent() string {
	return `{
		"merchant_name": "acme",
		"provider": "stripe",
		"provider_transaction_id": "pi_9",
		"provider_status": "succeeded",
		"country": "US",
		"status_category": "approved",
		"failure_reason": null,
		"error_source": null,
		"http_status_code": null,
		"amount": 42.5,
		"currency": "USD",
		"latency_ms": null
	}`
}

func TestExtractRetriesTransientThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, completionBody(extractionContent()))
	}))
	defer srv.Close()

	client := testClient(srv.URL, "")
	result, err := client.Extract(context.Background(), map[string]interface{}{"id": "pi_9"})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if got := calls.Load(); got != 3 {
		t.Errorf("attempts = %d, want exactly 3", got)
	}
	if result.Provider != "stripe" {
		t.Errorf("provider = %q, want stripe", result.Provider)
	}
	if result.Fallback {
		t.Error("fallback = true, want false")
	}
	if result.Model != "primary-model" {
		t.Errorf("model = %q, want primary-model", result.Model)
	}
	if result.Amount == nil || *result.Amount != 42.5 {
		t.Errorf("amount = %v, want 42.5", result.Amount)
	}
}

func TestExtractExhaustsRetriesOnRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := testClient(srv.URL, "")
	_, err := client.Extract(context.Background(), map[string]interface{}{"id": "x"})
	if err == nil {
		t.Fatal("expected error after exhausted retries")
	}

	var rl *models.RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("err = %T, want *models.RateLimitError", err)
	}
	if rl.RetryAfter != 7*time.Second {
		t.Errorf("retry-after = %s, want 7s", rl.RetryAfter)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("attempts = %d, want exactly 3 (no 4th attempt)", got)
	}
}

func TestExtractFailsOverToSecondary(t *testing.T) {
	var primaryCalls, secondaryCalls atomic.Int32
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		primaryCalls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer primary.Close()
	secondary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secondaryCalls.Add(1)
		fmt.Fprint(w, completionBody(extractionContent()))
	}))
	defer secondary.Close()

	client := testClient(primary.URL, secondary.URL)
	result, err := client.Extract(context.Background(), map[string]interface{}{"id": "x"})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if got := primaryCalls.Load(); got != 3 {
		t.Errorf("primary attempts = %d, want 3", got)
	}
	if got := secondaryCalls.Load(); got != 1 {
		t.Errorf("secondary attempts = %d, want 1", got)
	}
	if !result.Fallback {
		t.Error("fallback = false, want true")
	}
	if result.Model != "secondary-model" {
		t.Errorf("model = %q, want secondary-model", result.Model)
	}
}

func TestExtractDoesNotFailOverOnValidationError(t *testing.T) {
	var primaryCalls, secondaryCalls atomic.Int32
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		primaryCalls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error": {"message": "context length exceeded"}}`)
	}))
	defer primary.Close()
	secondary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secondaryCalls.Add(1)
		fmt.Fprint(w, completionBody(extractionContent()))
	}))
	defer secondary.Close()

	client := testClient(primary.URL, secondary.URL)
	_, err := client.Extract(context.Background(), map[string]interface{}{"id": "x"})

	var verr *models.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %T, want *models.ValidationError", err)
	}
	if got := primaryCalls.Load(); got != 1 {
		t.Errorf("primary attempts = %d, want 1", got)
	}
	// A request the primary rejected would be rejected identically by
	// the secondary; it must never be consulted.
	if got := secondaryCalls.Load(); got != 0 {
		t.Errorf("secondary attempts = %d, want 0", got)
	}
}

func TestExtractDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error": {"message": "invalid request"}}`)
	}))
	defer srv.Close()

	client := testClient(srv.URL, "")
	_, err := client.Extract(context.Background(), map[string]interface{}{"id": "x"})

	var verr *models.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %T, want *models.ValidationError", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("attempts = %d, want exactly 1", got)
	}
}

func TestExtractRejectsMalformedModelOutput(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"not json", "sorry, I cannot help with that"},
		{"missing provider", `{"status_category": "approved", "provider": ""}`},
		{"unknown status", `{"provider": "stripe", "status_category": "exploded"}`},
		{"unknown failure reason", `{"provider": "stripe", "status_category": "failed", "failure_reason": "card_sad"}`},
		{"unknown error source", `{"provider": "stripe", "status_category": "failed", "error_source": "gremlins"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				fmt.Fprint(w, completionBody(tt.content))
			}))
			defer srv.Close()

			client := testClient(srv.URL, "")
			_, err := client.Extract(context.Background(), map[string]interface{}{"id": "x"})

			var verr *models.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("err = %T, want *models.ValidationError", err)
			}
			if got := calls.Load(); got != 1 {
				t.Errorf("attempts = %d, schema failures must not be retried", got)
			}
		})
	}
}

func TestExtractSendsDeterministicRequest(t *testing.T) {
	var captured chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&captured)
		fmt.Fprint(w, completionBody(extractionContent()))
	}))
	defer srv.Close()

	client := testClient(srv.URL, "")
	if _, err := client.Extract(context.Background(), map[string]interface{}{"id": "x"}); err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if captured.Temperature != 0 {
		t.Errorf("temperature = %v, want 0", captured.Temperature)
	}
	if captured.ResponseFormat == nil || captured.ResponseFormat.Type != "json_object" {
		t.Error("expected json_object response format")
	}
	if len(captured.Messages) != 2 || captured.Messages[0].Role != "system" {
		t.Errorf("unexpected message layout: %+v", captured.Messages)
	}
}

func TestCompleteReturnsText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, completionBody("all quiet on the payment front"))
	}))
	defer srv.Close()

	client := testClient(srv.URL, "")
	text, err := client.Complete(context.Background(), "summarize", "alert")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if text != "all quiet on the payment front" {
		t.Errorf("text = %q", text)
	}
}
