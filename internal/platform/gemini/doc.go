// Package gemini provides the Gemini-backed synchronous provider adapters:
// page-level OCR and chunk-level text translation. Both share one API
// client with rate limiting and retry handling for transient failures.
package gemini
