// Package provider defines the capability contract between the task
// orchestrator and the external AI services that perform the actual OCR,
// speech-to-text and translation work, plus the static registry that maps
// task kinds to adapter implementations.
package provider

import (
	"context"

	"github.com/phrazzld/mediagate/internal/domain"
)

// JobStatus is a provider-reported status for an asynchronous job.
type JobStatus string

// Possible provider job statuses.
const (
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusError      JobStatus = "error"
)

// Result is the authoritative outcome of an asynchronous job, fetched
// from the provider with the stored job handle. Push notifications may be
// partial or redacted, so the orchestrator always fetches this record
// rather than trusting a payload embedded in a webhook.
type Result struct {
	Status        JobStatus
	Result        string
	BillableUnits float64
	ErrorDetail   string
}

// Input is the material a task dispatches to a provider.
type Input struct {
	// Reference is the task's opaque input locator (typically a URL the
	// provider can fetch).
	Reference string

	// Units are the pre-split sub-job payloads for synchronous multi-unit
	// dispatch (page references for OCR, text chunks for translation).
	// Empty for asynchronous single-job providers.
	Units []string

	// DurationSeconds is the client-reported media duration used for
	// cost estimation by time-billed providers. The authoritative figure
	// comes from the provider's own report at completion.
	DurationSeconds float64
}

// Adapter is the fixed capability interface every provider implements.
// Exactly one of the two dispatch shapes applies per adapter, reported by
// Asynchronous().
type Adapter interface {
	// Kind returns the task kind this adapter serves.
	Kind() domain.TaskKind

	// Asynchronous reports the dispatch shape: true means SubmitAsync
	// returns a job handle completed later by webhook or poll, false
	// means SubmitSync is called per unit under the fan-out executor.
	Asynchronous() bool

	// EstimateUnits computes the unit cost of the input before admission
	// (page count, chunk count, or estimated audio minutes).
	EstimateUnits(ctx context.Context, input Input) (float64, error)

	// SubmitSync performs one unit of work and returns its result text.
	// Only called on synchronous adapters.
	SubmitSync(ctx context.Context, unit string) (string, error)

	// SubmitAsync registers the work with the provider and returns the
	// job handle used to correlate the later completion notification.
	// Only called on asynchronous adapters.
	SubmitAsync(ctx context.Context, input Input, webhookURL string, correlationID string) (string, error)

	// FetchResult retrieves the authoritative job outcome for a handle.
	// Only called on asynchronous adapters.
	FetchResult(ctx context.Context, jobHandle string) (*Result, error)
}
