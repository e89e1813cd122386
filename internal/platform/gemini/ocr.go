package gemini

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/phrazzld/mediagate/internal/domain"
	"github.com/phrazzld/mediagate/internal/provider"
)

// ocrPrompt instructs the model to transcribe a page image verbatim.
const ocrPrompt = `Extract all text from this page image exactly as it appears.
Preserve the reading order, line breaks and paragraph structure.
Output only the extracted text, with no commentary or markup.`

// OCRAdapter extracts text from page images, one fan-out unit per page.
// Each unit is a base64-encoded page image, optionally carrying a data
// URI prefix declaring its media type.
type OCRAdapter struct {
	client *Client
}

// NewOCRAdapter creates the OCR adapter over a shared Gemini client.
func NewOCRAdapter(client *Client) (*OCRAdapter, error) {
	if client == nil {
		return nil, errors.New("gemini client cannot be nil")
	}
	return &OCRAdapter{client: client}, nil
}

var _ provider.Adapter = (*OCRAdapter)(nil)

func (a *OCRAdapter) Kind() domain.TaskKind { return domain.TaskKindOCR }

func (a *OCRAdapter) Asynchronous() bool { return false }

// EstimateUnits reports the page count: one unit per page image.
func (a *OCRAdapter) EstimateUnits(ctx context.Context, input provider.Input) (float64, error) {
	if len(input.Units) == 0 {
		return 0, fmt.Errorf("%w: no page images submitted", ErrEmptyUnit)
	}
	return float64(len(input.Units)), nil
}

// SubmitSync extracts the text of one page image.
func (a *OCRAdapter) SubmitSync(ctx context.Context, unit string) (string, error) {
	data, mimeType, err := decodePageImage(unit)
	if err != nil {
		return "", err
	}

	parts := []*genai.Part{
		genai.NewPartFromBytes(data, mimeType),
		genai.NewPartFromText(ocrPrompt),
	}
	return a.client.generate(ctx, parts)
}

// SubmitAsync is not supported: OCR completes within the request.
func (a *OCRAdapter) SubmitAsync(ctx context.Context, input provider.Input, webhookURL, correlationID string) (string, error) {
	return "", errors.New("ocr adapter does not support asynchronous dispatch")
}

// FetchResult is not supported: OCR has no provider-side job record.
func (a *OCRAdapter) FetchResult(ctx context.Context, jobHandle string) (*provider.Result, error) {
	return nil, errors.New("ocr adapter does not track provider jobs")
}

// decodePageImage decodes a page unit into raw image bytes and its media
// type. Units may be bare base64 (treated as PNG) or a data URI such as
// "data:image/jpeg;base64,...".
func decodePageImage(unit string) ([]byte, string, error) {
	if unit == "" {
		return nil, "", ErrEmptyUnit
	}

	mimeType := "image/png"
	payload := unit

	if strings.HasPrefix(unit, "data:") {
		header, rest, found := strings.Cut(unit[len("data:"):], ",")
		if !found {
			return nil, "", fmt.Errorf("%w: malformed data URI", ErrInvalidImage)
		}
		if declared, _, _ := strings.Cut(header, ";"); declared != "" {
			mimeType = declared
		}
		payload = rest
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("%w: not valid base64: %v", ErrInvalidImage, err)
	}
	if len(data) == 0 {
		return nil, "", ErrEmptyUnit
	}

	return data, mimeType, nil
}
