// Package soniox provides the asynchronous transcription provider
// adapter. Jobs are registered with Soniox, run on their side, and
// complete through a webhook back into the gateway.
package soniox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/phrazzld/mediagate/internal/config"
	"github.com/phrazzld/mediagate/internal/domain"
	"github.com/phrazzld/mediagate/internal/provider"
)

var (
	// ErrInvalidConfig indicates the adapter configuration is unusable.
	ErrInvalidConfig = errors.New("invalid soniox configuration")

	// ErrMissingAudio indicates a submission with no audio reference.
	ErrMissingAudio = errors.New("audio reference is empty")

	// ErrProviderUnavailable indicates the Soniox API could not be
	// reached or answered with a server error.
	ErrProviderUnavailable = errors.New("soniox API unavailable")
)

// Adapter submits audio for transcription and reads back completed jobs.
type Adapter struct {
	httpClient   *http.Client
	baseURL      string
	apiKey       string
	minutesPrice float64
	logger       *slog.Logger
}

// NewAdapter creates the Soniox transcription adapter.
func NewAdapter(cfg config.SonioxConfig, logger *slog.Logger) (*Adapter, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: API key cannot be empty", ErrInvalidConfig)
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: base URL cannot be empty", ErrInvalidConfig)
	}
	if cfg.MinutesPrice <= 0 {
		return nil, fmt.Errorf("%w: minutes price must be positive", ErrInvalidConfig)
	}

	return &Adapter{
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		minutesPrice: cfg.MinutesPrice,
		logger:       logger.With("component", "soniox_adapter"),
	}, nil
}

var _ provider.Adapter = (*Adapter)(nil)

func (a *Adapter) Kind() domain.TaskKind { return domain.TaskKindTranscribe }

func (a *Adapter) Asynchronous() bool { return true }

// EstimateUnits converts the client-reported duration into billable
// units: started minutes times the per-minute price. Unknown duration
// estimates a single minute; the authoritative figure arrives with the
// completed job.
func (a *Adapter) EstimateUnits(ctx context.Context, input provider.Input) (float64, error) {
	if input.Reference == "" {
		return 0, ErrMissingAudio
	}
	minutes := math.Ceil(input.DurationSeconds / 60)
	if minutes < 1 {
		minutes = 1
	}
	return minutes * a.minutesPrice, nil
}

// SubmitSync is not supported: transcription always runs asynchronously.
func (a *Adapter) SubmitSync(ctx context.Context, unit string) (string, error) {
	return "", errors.New("soniox adapter does not support synchronous dispatch")
}

// transcriptionJob is the provider's job record.
type transcriptionJob struct {
	ID              string `json:"id"`
	Status          string `json:"status"`
	AudioDurationMS int64  `json:"audio_duration_ms"`
	ErrorMessage    string `json:"error_message"`
}

// SubmitAsync registers a transcription job and returns the provider's
// job identifier as the correlation handle.
func (a *Adapter) SubmitAsync(ctx context.Context, input provider.Input, webhookURL, correlationID string) (string, error) {
	if input.Reference == "" {
		return "", ErrMissingAudio
	}

	body := map[string]any{
		"audio_url":           input.Reference,
		"webhook_url":         webhookURL,
		"client_reference_id": correlationID,
	}

	var job transcriptionJob
	if err := a.doJSON(ctx, http.MethodPost, "/v1/transcriptions", body, &job); err != nil {
		return "", err
	}
	if job.ID == "" {
		return "", fmt.Errorf("%w: job created without an id", ErrProviderUnavailable)
	}

	a.logger.Info("transcription job registered",
		"job_id", job.ID,
		"correlation_id", correlationID)

	return job.ID, nil
}

// FetchResult reads the authoritative job record and, for completed
// jobs, the transcript text. Billable units derive from the duration the
// provider measured, not the client's estimate.
func (a *Adapter) FetchResult(ctx context.Context, jobHandle string) (*provider.Result, error) {
	if jobHandle == "" {
		return nil, errors.New("job handle is empty")
	}

	var job transcriptionJob
	path := "/v1/transcriptions/" + jobHandle
	if err := a.doJSON(ctx, http.MethodGet, path, nil, &job); err != nil {
		return nil, err
	}

	switch job.Status {
	case "completed":
		var transcript struct {
			Text string `json:"text"`
		}
		if err := a.doJSON(ctx, http.MethodGet, path+"/transcript", nil, &transcript); err != nil {
			return nil, err
		}
		return &provider.Result{
			Status:        provider.JobStatusCompleted,
			Result:        transcript.Text,
			BillableUnits: a.billableUnits(job.AudioDurationMS),
		}, nil

	case "error":
		detail := job.ErrorMessage
		if detail == "" {
			detail = "transcription failed"
		}
		return &provider.Result{
			Status:      provider.JobStatusError,
			ErrorDetail: detail,
		}, nil

	default:
		// queued and processing both map to a still-running job.
		return &provider.Result{Status: provider.JobStatusProcessing}, nil
	}
}

// billableUnits converts a measured duration to started minutes times
// the per-minute price.
func (a *Adapter) billableUnits(durationMS int64) float64 {
	minutes := math.Ceil(float64(durationMS) / 60000)
	if minutes < 1 {
		minutes = 1
	}
	return minutes * a.minutesPrice
}

// doJSON performs one authenticated API round trip.
func (a *Adapter) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		a.logger.Warn("soniox API returned error status",
			"method", method,
			"path", path,
			"status", resp.StatusCode)
		return fmt.Errorf("%w: status %d: %s", ErrProviderUnavailable, resp.StatusCode, string(payload))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to decode response: %v", ErrProviderUnavailable, err)
	}
	return nil
}
