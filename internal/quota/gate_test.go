package quota

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/mediagate/internal/config"
	"github.com/phrazzld/mediagate/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGate(t *testing.T, handler http.Handler) (*Gate, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	gate := NewGate(config.QuotaConfig{
		BaseURL:    server.URL,
		APIKey:     "test-key",
		Asset:      "coin",
		Variant:    "standard",
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
	}, slog.New(slog.NewTextHandler(os.Stderr, nil)))

	return gate, server
}

func TestCheckQuota_Sufficient(t *testing.T) {
	t.Parallel()

	ownerID := uuid.New()
	gate, _ := newTestGate(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/enrollments/quotas", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, ownerID.String(), r.URL.Query().Get("user_id"))
		assert.Equal(t, "coin", r.URL.Query().Get("asset"))
		assert.Equal(t, "standard", r.URL.Query().Get("variant"))

		_ = json.NewEncoder(w).Encode(map[string]float64{"quota": 5})
	}))

	available, err := gate.CheckQuota(context.Background(), ownerID, 3)
	require.NoError(t, err)
	assert.Equal(t, float64(5), available)
}

func TestCheckQuota_Insufficient(t *testing.T) {
	t.Parallel()

	gate, _ := newTestGate(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]float64{"quota": 2})
	}))

	available, err := gate.CheckQuota(context.Background(), uuid.New(), 10)
	assert.ErrorIs(t, err, domain.ErrInsufficientQuota)
	assert.Equal(t, float64(2), available)
}

func TestCheckQuota_RetriesTransientFailures(t *testing.T) {
	t.Parallel()

	var calls int64
	gate, _ := newTestGate(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt64(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]float64{"quota": 8})
	}))

	available, err := gate.CheckQuota(context.Background(), uuid.New(), 4)
	require.NoError(t, err)
	assert.Equal(t, float64(8), available)
	assert.EqualValues(t, 3, atomic.LoadInt64(&calls))
}

func TestCheckQuota_GivesUpAfterMaxRetries(t *testing.T) {
	t.Parallel()

	var calls int64
	gate, _ := newTestGate(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := gate.CheckQuota(context.Background(), uuid.New(), 1)
	assert.ErrorIs(t, err, ErrLedgerUnavailable)
	// Initial attempt plus two retries.
	assert.EqualValues(t, 3, atomic.LoadInt64(&calls))
}

func TestMeterUsage_RecordsOnce(t *testing.T) {
	t.Parallel()

	ownerID := uuid.New()
	var calls int64
	gate, _ := newTestGate(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/usages", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, ownerID.String(), body["user_id"])
		assert.Equal(t, "coin", body["asset"])
		assert.Equal(t, float64(3), body["amount"])

		_ = json.NewEncoder(w).Encode(map[string]string{"uid": "usage-123"})
	}))

	ref, err := gate.MeterUsage(context.Background(), ownerID, 3, map[string]any{"task_kind": "ocr"})
	require.NoError(t, err)
	assert.Equal(t, "usage-123", ref)
	assert.EqualValues(t, 1, atomic.LoadInt64(&calls))
}

func TestMeterUsage_FailureIsNotRetried(t *testing.T) {
	t.Parallel()

	var calls int64
	gate, _ := newTestGate(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	_, err := gate.MeterUsage(context.Background(), uuid.New(), 2, nil)
	assert.ErrorIs(t, err, ErrUsageNotRecorded)
	// Exactly one call: metering is never blindly retried.
	assert.EqualValues(t, 1, atomic.LoadInt64(&calls))
}

func TestCancelUsage(t *testing.T) {
	t.Parallel()

	var cancelled atomic.Bool
	gate, _ := newTestGate(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/usages/usage-456/cancel", r.URL.Path)
		cancelled.Store(true)
		w.WriteHeader(http.StatusOK)
	}))

	require.NoError(t, gate.CancelUsage(context.Background(), "usage-456"))
	assert.True(t, cancelled.Load())

	// Empty reference is a no-op.
	require.NoError(t, gate.CancelUsage(context.Background(), ""))
}
