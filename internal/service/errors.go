package service

import "errors"

// Errors returned by the RAG service. The HTTP layer maps them to status codes.
var (
	ErrEmptyQuestion = errors.New("question must not be empty")
	ErrNoDocuments   = errors.New("no document has been uploaded yet")
	ErrIndexNotFound = errors.New("index has not been built yet")
	ErrIndexMismatch = errors.New("index was built with a different embedder")
	ErrNoContent     = errors.New("no extractable text in uploaded documents")
	ErrLLM           = errors.New("language model request failed")
)

// ExtractError reports a stored document whose text could not be extracted.
type ExtractError struct {
	Name string
	Err  error
}

func (e *ExtractError) Error() string { return e.Name + ": " + e.Err.Error() }

func (e *ExtractError) Unwrap() error { return e.Err }
