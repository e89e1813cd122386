package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/phrazzld/mediagate/internal/domain"
	"github.com/phrazzld/mediagate/internal/provider"
)

// DefaultTargetLanguage is used when the adapter is built without an
// explicit target.
const DefaultTargetLanguage = "English"

// translatePromptFormat carries the target language and the chunk text.
const translatePromptFormat = `Translate the following text into %s.
Preserve the original formatting, line breaks and paragraph structure.
Output only the translation, with no commentary.

%s`

// TranslateAdapter translates text chunks, one fan-out unit per chunk.
type TranslateAdapter struct {
	client         *Client
	targetLanguage string
}

// NewTranslateAdapter creates the translation adapter over a shared
// Gemini client. An empty targetLanguage falls back to the default.
func NewTranslateAdapter(client *Client, targetLanguage string) (*TranslateAdapter, error) {
	if client == nil {
		return nil, errors.New("gemini client cannot be nil")
	}
	if strings.TrimSpace(targetLanguage) == "" {
		targetLanguage = DefaultTargetLanguage
	}
	return &TranslateAdapter{
		client:         client,
		targetLanguage: targetLanguage,
	}, nil
}

var _ provider.Adapter = (*TranslateAdapter)(nil)

func (a *TranslateAdapter) Kind() domain.TaskKind { return domain.TaskKindTranslate }

func (a *TranslateAdapter) Asynchronous() bool { return false }

// EstimateUnits reports the chunk count: one unit per text chunk.
func (a *TranslateAdapter) EstimateUnits(ctx context.Context, input provider.Input) (float64, error) {
	if len(input.Units) == 0 {
		return 0, fmt.Errorf("%w: no text chunks submitted", ErrEmptyUnit)
	}
	return float64(len(input.Units)), nil
}

// SubmitSync translates one text chunk.
func (a *TranslateAdapter) SubmitSync(ctx context.Context, unit string) (string, error) {
	if strings.TrimSpace(unit) == "" {
		return "", ErrEmptyUnit
	}

	prompt := fmt.Sprintf(translatePromptFormat, a.targetLanguage, unit)
	parts := []*genai.Part{genai.NewPartFromText(prompt)}
	return a.client.generate(ctx, parts)
}

// SubmitAsync is not supported: translation completes within the request.
func (a *TranslateAdapter) SubmitAsync(ctx context.Context, input provider.Input, webhookURL, correlationID string) (string, error) {
	return "", errors.New("translate adapter does not support asynchronous dispatch")
}

// FetchResult is not supported: translation has no provider-side job record.
func (a *TranslateAdapter) FetchResult(ctx context.Context, jobHandle string) (*provider.Result, error) {
	return nil, errors.New("translate adapter does not track provider jobs")
}
