package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/phrazzld/mediagate/internal/config"
)

// Client wraps the Gemini API client with the rate limiting and retry
// behavior shared by the OCR and translation adapters.
type Client struct {
	logger  *slog.Logger
	client  *genai.Client
	model   string
	limiter *rate.Limiter

	maxRetries        int
	retryDelaySeconds int
}

// NewClient creates a shared Gemini API client.
func NewClient(ctx context.Context, cfg config.GeminiConfig, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: API key cannot be empty", ErrInvalidConfig)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", ErrInvalidConfig, err)
	}

	// Zero disables throttling; the fan-out ceiling is then the only
	// bound on request rate.
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	retryDelay := cfg.RetryDelaySeconds
	if retryDelay < 1 {
		retryDelay = 2
	}

	return &Client{
		logger:            logger.With("component", "gemini_client"),
		client:            client,
		model:             cfg.ModelName,
		limiter:           limiter,
		maxRetries:        maxRetries,
		retryDelaySeconds: retryDelay,
	}, nil
}

// generate sends one prompt to the model and returns the response text,
// retrying transient failures with exponential backoff and jitter.
// Safety blocks and malformed responses are permanent and fail fast.
func (c *Client) generate(ctx context.Context, parts []*genai.Part) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransientFailure, err)
	}

	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	attempt := 0
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for attempt <= c.maxRetries {
		attemptNum := attempt + 1

		text, transient, err := c.callOnce(ctx, contents)
		if err == nil {
			return text, nil
		}

		c.logger.ErrorContext(ctx, "Gemini API call failed",
			"attempt", attemptNum,
			"max_attempts", c.maxRetries+1,
			"error", err)

		if !transient {
			return "", err
		}
		if attempt >= c.maxRetries {
			return "", fmt.Errorf("%w: exceeded maximum retry attempts (%d)",
				ErrTransientFailure, c.maxRetries)
		}

		// delay = baseDelay * (2^attempt) * (0.5 + rand(0, 0.5))
		backoffSeconds := float64(c.retryDelaySeconds) * math.Pow(2, float64(attempt))
		jitterFactor := 0.5 + rng.Float64()*0.5
		delay := time.Duration(backoffSeconds * jitterFactor * float64(time.Second))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %v", ErrTransientFailure, ctx.Err())
		}

		attempt++
	}

	return "", fmt.Errorf("%w: failed after %d attempts", ErrTransientFailure, attempt)
}

// callOnce makes a single API call and classifies its failure mode.
// The bool reports whether the failure is transient and worth retrying.
func (c *Client) callOnce(ctx context.Context, contents []*genai.Content) (string, bool, error) {
	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, nil)
	if err != nil {
		// API-level failures are assumed transient; the backoff loop
		// bounds how long we keep believing that.
		return "", true, fmt.Errorf("%w: %v", ErrTransientFailure, err)
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return "", false, fmt.Errorf("%w: no content generated", ErrInvalidResponse)
	}
	if resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
		return "", false, ErrContentBlocked
	}

	text := resp.Text()
	if text == "" {
		return "", false, fmt.Errorf("%w: empty response text", ErrInvalidResponse)
	}

	return text, false, nil
}
