// Package ai talks to OpenAI-compatible chat-completions backends to
// extract a structured payment normalization from arbitrary payloads. A
// primary model is tried first with retry and exponential backoff; when
// its retries are exhausted on transient failures, an identically
// configured secondary model answers in its place.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/paywatch/paywatch/internal/config"
	"github.com/paywatch/paywatch/internal/logging"
	"github.com/paywatch/paywatch/internal/metrics"
	"github.com/paywatch/paywatch/internal/models"
)

// Extraction is the structured output contract with the model. Every
// pointer field is null when the source payload does not carry it.
type Extraction struct {
	MerchantName          *string               `json:"merchant_name"`
	Provider              string                `json:"provider"`
	ProviderTransactionID *string               `json:"provider_transaction_id"`
	ProviderStatus        *string               `json:"provider_status"`
	Country               *string               `json:"country"`
	StatusCategory        models.PaymentStatus  `json:"status_category"`
	FailureReason         *models.FailureReason `json:"failure_reason"`
	ErrorSource           *models.ErrorSource   `json:"error_source"`
	HTTPStatusCode        *int                  `json:"http_status_code"`
	Amount                *float64              `json:"amount"`
	Currency              *string               `json:"currency"`
	LatencyMs             *int                  `json:"latency_ms"`
}

// Result is an extraction plus which model produced it. Fallback is true
// when the secondary model answered.
type Result struct {
	Extraction
	Model    string
	Fallback bool
}

// Client issues structured-extraction requests with retry and failover.
type Client struct {
	primary     config.AIModelConfig
	secondary   config.AIModelConfig
	hasFailover bool

	httpClient  *http.Client
	timeout     time.Duration
	maxAttempts int
	backoffBase time.Duration
	backoffCap  time.Duration

	logger *logging.Logger
}

// NewClient builds a client from configuration.
func NewClient(cfg *config.Config) *Client {
	return &Client{
		primary:     cfg.AIPrimary,
		secondary:   cfg.AISecondary,
		hasFailover: cfg.HasSecondaryAI(),
		httpClient:  &http.Client{},
		timeout:     cfg.AITimeout,
		maxAttempts: cfg.AIMaxRetries,
		backoffBase: cfg.AIBackoffBase,
		backoffCap:  cfg.AIBackoffCeiling,
		logger:      logging.NewLogger("ai_client"),
	}
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat *respFormat   `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type respFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// Extract normalizes a raw payment payload into the structured schema.
// Transient failures (timeout, rate limit, upstream error) are retried up
// to the configured attempt count per model; a schema failure on a
// successful response is terminal and never retried.
func (c *Client) Extract(ctx context.Context, raw map[string]interface{}) (*Result, error) {
	payload, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return nil, &models.ValidationError{Reason: "raw payload is not serializable", Err: err}
	}
	user := "Normalize this payment event:\n\n" + string(payload)

	content, err := c.completeWithFailover(ctx, normalizationSystemPrompt, user)
	if err != nil {
		return nil, err
	}

	var ext Extraction
	if err := json.Unmarshal([]byte(content.text), &ext); err != nil {
		return nil, &models.ValidationError{Reason: "model output is not valid JSON", Err: err}
	}
	if ext.Provider == "" {
		return nil, &models.ValidationError{Field: "provider", Reason: "missing from model output"}
	}
	if !validStatus(ext.StatusCategory) {
		return nil, &models.ValidationError{Field: "status_category", Reason: fmt.Sprintf("unknown value %q", ext.StatusCategory)}
	}
	if ext.FailureReason != nil && !validFailureReason(*ext.FailureReason) {
		return nil, &models.ValidationError{Field: "failure_reason", Reason: fmt.Sprintf("unknown value %q", *ext.FailureReason)}
	}
	if ext.ErrorSource != nil && !validErrorSource(*ext.ErrorSource) {
		return nil, &models.ValidationError{Field: "error_source", Reason: fmt.Sprintf("unknown value %q", *ext.ErrorSource)}
	}

	return &Result{Extraction: ext, Model: content.model, Fallback: content.fallback}, nil
}

// Complete runs a free-form prompt through the same retry and failover
// machinery. Used for alert narrative enrichment.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	out, err := c.completeWithFailover(ctx, system, user)
	if err != nil {
		return "", err
	}
	return out.text, nil
}

type completion struct {
	text     string
	model    string
	fallback bool
}

func (c *Client) completeWithFailover(ctx context.Context, system, user string) (*completion, error) {
	text, err := c.completeWithRetry(ctx, c.primary, system, user)
	if err == nil {
		return &completion{text: text, model: c.primary.Model}, nil
	}

	// Fail over only on transient failures. A validation failure (bad
	// request, malformed completion) is terminal: an identically
	// configured secondary would reject the same request the same way.
	if !c.hasFailover || !models.IsRetryableAI(err) {
		return nil, err
	}

	c.logger.Warn("primary model exhausted, failing over", map[string]interface{}{
		"primary":   c.primary.Model,
		"secondary": c.secondary.Model,
		"error":     err.Error(),
	})
	metrics.AIFallbacks.Inc()

	text, ferr := c.completeWithRetry(ctx, c.secondary, system, user)
	if ferr != nil {
		return nil, ferr
	}
	return &completion{text: text, model: c.secondary.Model, fallback: true}, nil
}

// completeWithRetry performs up to maxAttempts identical requests against
// one model, sleeping base*2^n between attempts, capped.
func (c *Client) completeWithRetry(ctx context.Context, model config.AIModelConfig, system, user string) (string, error) {
	var lastErr error

	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := c.backoffBase << (attempt - 1)
			if delay > c.backoffCap {
				delay = c.backoffCap
			}
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", &models.TimeoutError{Timeout: c.timeout, Err: ctx.Err()}
			}
		}

		text, err := c.completeOnce(ctx, model, system, user)
		if err == nil {
			metrics.AIAttempts.WithLabelValues(model.Model, "success").Inc()
			return text, nil
		}

		metrics.AIAttempts.WithLabelValues(model.Model, "error").Inc()
		if !models.IsRetryableAI(err) {
			return "", err
		}
		lastErr = err
		c.logger.Warn("transient model failure, will retry", map[string]interface{}{
			"model":   model.Model,
			"attempt": attempt + 1,
			"error":   err.Error(),
		})
	}

	return "", lastErr
}

func (c *Client) completeOnce(ctx context.Context, model config.AIModelConfig, system, user string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: model.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature:    0,
		ResponseFormat: &respFormat{Type: "json_object"},
	})
	if err != nil {
		return "", &models.ValidationError{Reason: "failed to marshal chat request", Err: err}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, model.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", &models.AIServiceError{Reason: "failed to build request", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+model.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || attemptCtx.Err() == context.DeadlineExceeded {
			return "", &models.TimeoutError{Timeout: c.timeout, Err: err}
		}
		return "", &models.AIServiceError{Reason: "request failed", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &models.AIServiceError{Reason: "failed to read response", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		msg := string(respBody)
		var ae apiError
		if json.Unmarshal(respBody, &ae) == nil && ae.Error.Message != "" {
			msg = ae.Error.Message
		}
		statusErr := fmt.Errorf("status %d: %s", resp.StatusCode, msg)

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return "", &models.RateLimitError{RetryAfter: parseRetryAfter(resp), Err: statusErr}
		case resp.StatusCode >= 500:
			return "", &models.AIServiceError{Reason: "upstream error", Err: statusErr}
		default:
			// 4xx other than 429: the request itself is bad, retrying is useless.
			return "", &models.ValidationError{Reason: "model rejected request", Err: statusErr}
		}
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", &models.ValidationError{Reason: "malformed completion response", Err: err}
	}
	if len(parsed.Choices) == 0 {
		return "", &models.ValidationError{Reason: "completion returned no choices"}
	}

	return parsed.Choices[0].Message.Content, nil
}

func parseRetryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}

func validStatus(s models.PaymentStatus) bool {
	switch s {
	case models.StatusApproved, models.StatusFailed, models.StatusPending,
		models.StatusCancelled, models.StatusRefunded, models.StatusUnprocessed:
		return true
	}
	return false
}

func validFailureReason(r models.FailureReason) bool {
	switch r {
	case models.ReasonInsufficientFunds, models.ReasonCardDeclined, models.ReasonExpiredCard,
		models.ReasonInvalidCard, models.ReasonBankDecline,
		models.ReasonFraudSuspected, models.ReasonSecurityViolation, models.ReasonBlockedCard,
		models.ReasonNetworkError, models.ReasonTimeout, models.ReasonProviderError, models.ReasonSystemError,
		models.ReasonInvalidMerchant, models.ReasonMerchantNotActive, models.ReasonConfigurationError,
		models.ReasonDuplicateTransaction, models.ReasonAmountExceeded, models.ReasonInvalidCurrency,
		models.ReasonUnknown, models.ReasonNotApplicable:
		return true
	}
	return false
}

func validErrorSource(s models.ErrorSource) bool {
	switch s {
	case models.SourceProvider, models.SourceMerchant, models.SourceCustomer,
		models.SourceSystem, models.SourceNetwork, models.SourceUnknown:
		return true
	}
	return false
}
