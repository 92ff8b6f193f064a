package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput indicates malformed or missing caller input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNoDocuments indicates an ingestion call with an empty upload set.
	ErrNoDocuments = errors.New("no documents supplied")

	// ErrIndexNotReady indicates a question was asked before any index was published.
	ErrIndexNotReady = errors.New("no document index has been built yet")

	// ErrIndexEmpty indicates the published index holds no chunks.
	ErrIndexEmpty = errors.New("document index is empty")

	// ErrEmptyGeneration indicates the model answered with blank output.
	ErrEmptyGeneration = errors.New("model returned empty output")

	// ErrDimensionMismatch indicates an embedding with an unexpected vector size.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrUnsupportedFormat indicates an upload type no loader handles.
	ErrUnsupportedFormat = errors.New("unsupported document format")
)

// DocumentLoadError reports an upload that could not be staged or parsed.
// It aborts the whole ingestion batch.
type DocumentLoadError struct {
	File string
	Err  error
}

func (e *DocumentLoadError) Error() string {
	return fmt.Sprintf("failed to load document %q: %v", e.File, e.Err)
}

func (e *DocumentLoadError) Unwrap() error {
	return e.Err
}

// EmbeddingError reports a failure of the embedding service.
type EmbeddingError struct {
	Err error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding failed: %v", e.Err)
}

func (e *EmbeddingError) Unwrap() error {
	return e.Err
}

// GenerationError reports a failure of the generation service. Stage names the
// pipeline step that called it ("contextualize" or "answer").
type GenerationError struct {
	Stage string
	Err   error
}

func (e *GenerationError) Error() string {
	if e.Stage == "" {
		return fmt.Sprintf("generation failed: %v", e.Err)
	}
	return fmt.Sprintf("generation failed during %s: %v", e.Stage, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// RetrievalError reports a missing or empty index at query time. A query that
// simply matches nothing relevant is not a RetrievalError.
type RetrievalError struct {
	Err error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval failed: %v", e.Err)
}

func (e *RetrievalError) Unwrap() error {
	return e.Err
}
