package gemini

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/mediagate/internal/domain"
	"github.com/phrazzld/mediagate/internal/provider"
)

func TestDecodePageImage(t *testing.T) {
	t.Parallel()

	raw := []byte{0x89, 0x50, 0x4e, 0x47}
	encoded := base64.StdEncoding.EncodeToString(raw)

	tests := []struct {
		name         string
		unit         string
		wantData     []byte
		wantMimeType string
		wantErr      error
	}{
		{
			name:         "bare base64 defaults to png",
			unit:         encoded,
			wantData:     raw,
			wantMimeType: "image/png",
		},
		{
			name:         "data URI declares media type",
			unit:         "data:image/jpeg;base64," + encoded,
			wantData:     raw,
			wantMimeType: "image/jpeg",
		},
		{
			name:    "empty unit",
			unit:    "",
			wantErr: ErrEmptyUnit,
		},
		{
			name:    "malformed data URI",
			unit:    "data:image/png;base64",
			wantErr: ErrInvalidImage,
		},
		{
			name:    "invalid base64",
			unit:    "not valid base64!!!",
			wantErr: ErrInvalidImage,
		},
		{
			name:    "empty payload",
			unit:    "data:image/png;base64,",
			wantErr: ErrEmptyUnit,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			data, mimeType, err := decodePageImage(tc.unit)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantData, data)
			assert.Equal(t, tc.wantMimeType, mimeType)
		})
	}
}

func TestOCRAdapter_Metadata(t *testing.T) {
	t.Parallel()

	adapter, err := NewOCRAdapter(&Client{})
	require.NoError(t, err)

	assert.Equal(t, domain.TaskKindOCR, adapter.Kind())
	assert.False(t, adapter.Asynchronous())
}

func TestOCRAdapter_EstimateUnits(t *testing.T) {
	t.Parallel()

	adapter, err := NewOCRAdapter(&Client{})
	require.NoError(t, err)

	units, err := adapter.EstimateUnits(context.Background(), provider.Input{
		Units: []string{"page-1", "page-2", "page-3"},
	})
	require.NoError(t, err)
	assert.Equal(t, float64(3), units)

	_, err = adapter.EstimateUnits(context.Background(), provider.Input{})
	assert.ErrorIs(t, err, ErrEmptyUnit)
}

func TestOCRAdapter_RejectsAsyncOperations(t *testing.T) {
	t.Parallel()

	adapter, err := NewOCRAdapter(&Client{})
	require.NoError(t, err)

	_, err = adapter.SubmitAsync(context.Background(), provider.Input{}, "", "")
	assert.Error(t, err)

	_, err = adapter.FetchResult(context.Background(), "job-1")
	assert.Error(t, err)
}

func TestNewOCRAdapter_NilClient(t *testing.T) {
	t.Parallel()

	_, err := NewOCRAdapter(nil)
	assert.Error(t, err)
}

func TestTranslateAdapter_Metadata(t *testing.T) {
	t.Parallel()

	adapter, err := NewTranslateAdapter(&Client{}, "French")
	require.NoError(t, err)

	assert.Equal(t, domain.TaskKindTranslate, adapter.Kind())
	assert.False(t, adapter.Asynchronous())
}

func TestNewTranslateAdapter_DefaultsTargetLanguage(t *testing.T) {
	t.Parallel()

	adapter, err := NewTranslateAdapter(&Client{}, "   ")
	require.NoError(t, err)
	assert.Equal(t, DefaultTargetLanguage, adapter.targetLanguage)
}

func TestTranslateAdapter_EstimateUnits(t *testing.T) {
	t.Parallel()

	adapter, err := NewTranslateAdapter(&Client{}, "")
	require.NoError(t, err)

	units, err := adapter.EstimateUnits(context.Background(), provider.Input{
		Units: []string{"chunk one", "chunk two"},
	})
	require.NoError(t, err)
	assert.Equal(t, float64(2), units)

	_, err = adapter.EstimateUnits(context.Background(), provider.Input{})
	assert.ErrorIs(t, err, ErrEmptyUnit)
}

func TestTranslateAdapter_RejectsEmptyChunk(t *testing.T) {
	t.Parallel()

	adapter, err := NewTranslateAdapter(&Client{}, "")
	require.NoError(t, err)

	_, err = adapter.SubmitSync(context.Background(), "   \n ")
	assert.ErrorIs(t, err, ErrEmptyUnit)
}
