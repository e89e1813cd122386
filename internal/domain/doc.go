// Package domain contains the core entities of the media gateway,
// primarily the Task lifecycle record shared by the OCR, transcription
// and translation pipelines, along with the validation rules and error
// vocabulary the rest of the application builds on.
package domain
