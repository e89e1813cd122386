// Package quota is the admission-control and billing-metering boundary
// against a remote balance ledger. No quota state lives locally; every
// call talks to the ledger service, and a failing call surfaces as a
// typed error without touching any task record.
package quota

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/mediagate/internal/config"
	"github.com/phrazzld/mediagate/internal/domain"
)

// Common quota gate errors.
var (
	// ErrLedgerUnavailable is returned when the remote ledger cannot be
	// reached or answers with an unexpected status.
	ErrLedgerUnavailable = errors.New("quota ledger unavailable")

	// ErrUsageNotRecorded is returned when a metering call fails. It is
	// never retried automatically: a blind retry risks double billing.
	ErrUsageNotRecorded = errors.New("usage not recorded")
)

// Gate answers "can this owner afford N units of work" and records actual
// consumption once work is confirmed done.
type Gate struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	asset      string
	variant    string
	maxRetries int
	retryDelay time.Duration
	logger     *slog.Logger
}

// NewGate creates a Gate from the quota ledger configuration.
func NewGate(cfg config.QuotaConfig, logger *slog.Logger) *Gate {
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 500 * time.Millisecond
	}

	return &Gate{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		asset:      cfg.Asset,
		variant:    cfg.Variant,
		maxRetries: cfg.MaxRetries,
		retryDelay: retryDelay,
		logger:     logger.With("component", "quota_gate"),
	}
}

// quotaResponse mirrors the ledger's quota lookup payload.
type quotaResponse struct {
	Quota float64 `json:"quota"`
}

// usageRequest is the body of a metering call.
type usageRequest struct {
	OwnerID  string         `json:"user_id"`
	Asset    string         `json:"asset"`
	Amount   float64        `json:"amount"`
	Variant  string         `json:"variant,omitempty"`
	Metadata map[string]any `json:"meta_data,omitempty"`
}

// usageResponse mirrors the ledger's usage record payload.
type usageResponse struct {
	UID string `json:"uid"`
}

// CheckQuota queries the owner's available balance and compares it to the
// required units. Returns the available balance in all cases; the error is
// domain.ErrInsufficientQuota when the balance does not cover the request,
// so the caller can decide between failing and degrading explicitly.
//
// The lookup is idempotent and is retried a fixed number of times with a
// fixed delay before giving up with ErrLedgerUnavailable.
func (g *Gate) CheckQuota(ctx context.Context, ownerID uuid.UUID, requiredUnits float64) (float64, error) {
	endpoint := fmt.Sprintf("%s/enrollments/quotas?%s", g.baseURL, url.Values{
		"user_id": {ownerID.String()},
		"asset":   {g.asset},
		"variant": {g.variant},
	}.Encode())

	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(g.retryDelay):
			case <-ctx.Done():
				return 0, fmt.Errorf("%w: %v", ErrLedgerUnavailable, ctx.Err())
			}
		}

		var resp quotaResponse
		if err := g.doJSON(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
			lastErr = err
			g.logger.Warn("quota lookup failed",
				"owner_id", ownerID,
				"attempt", attempt+1,
				"error", err)
			continue
		}

		if resp.Quota < requiredUnits {
			return resp.Quota, fmt.Errorf("%w: have %g units, need %g",
				domain.ErrInsufficientQuota, resp.Quota, requiredUnits)
		}
		return resp.Quota, nil
	}

	return 0, fmt.Errorf("%w: %v", ErrLedgerUnavailable, lastErr)
}

// MeterUsage records consumption after work is confirmed done. It must be
// called at most once per task and is never retried here; a failure is
// surfaced as ErrUsageNotRecorded for the caller to log as a
// billing-reconciliation problem.
func (g *Gate) MeterUsage(ctx context.Context, ownerID uuid.UUID, units float64, metadata map[string]any) (string, error) {
	body := usageRequest{
		OwnerID:  ownerID.String(),
		Asset:    g.asset,
		Amount:   units,
		Variant:  g.variant,
		Metadata: metadata,
	}

	var resp usageResponse
	if err := g.doJSON(ctx, http.MethodPost, g.baseURL+"/usages", body, &resp); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUsageNotRecorded, err)
	}

	g.logger.Info("usage metered",
		"owner_id", ownerID,
		"units", units,
		"usage_reference", resp.UID)
	return resp.UID, nil
}

// CancelUsage is a best-effort compensation for a previously metered usage
// after a later step failed. Failures are logged by the caller and not
// retried indefinitely; ledger reconciliation is an operational concern.
func (g *Gate) CancelUsage(ctx context.Context, usageReference string) error {
	if usageReference == "" {
		return nil
	}

	endpoint := fmt.Sprintf("%s/usages/%s/cancel", g.baseURL, url.PathEscape(usageReference))
	if err := g.doJSON(ctx, http.MethodPost, endpoint, nil, nil); err != nil {
		return fmt.Errorf("failed to cancel usage %s: %w", usageReference, err)
	}

	g.logger.Info("usage cancelled", "usage_reference", usageReference)
	return nil
}

// doJSON performs one HTTP round trip with the ledger, encoding the body
// and decoding the response as JSON. Non-2xx statuses map to
// ErrLedgerUnavailable.
func (g *Gate) doJSON(ctx context.Context, method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("x-api-key", g.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", ErrLedgerUnavailable, resp.StatusCode, payload)
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to decode response: %v", ErrLedgerUnavailable, err)
	}

	return nil
}
