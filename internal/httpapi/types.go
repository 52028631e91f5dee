package httpapi

import (
	"docqa/internal/docstore"
	"docqa/internal/domain"
)

// Messages shown to API users.
const (
	MsgUploaded        = "File uploaded and processed successfully"
	MsgInvalidFileType = "Invalid file type. Only PDF, DOCX, and TXT are allowed."
	MsgNoDocument      = "No document has been uploaded yet."
	MsgNoFile          = "No file uploaded"
	MsgFileTooLarge    = "File is too large."
	MsgEmptyQuestion   = "Question must not be empty."
	MsgInvalidBody     = "Invalid request body"
	MsgIndexNotReady   = "The document index is not ready. Upload a document again."
	MsgNoText          = "No text could be extracted from the uploaded documents."
	MsgLLMFailed       = "The language model could not answer right now."
	MsgInternal        = "Internal server error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// UploadResponse is returned by POST /upload.
type UploadResponse struct {
	Message   string `json:"message"`
	Summary   string `json:"summary"`
	Documents int    `json:"documents"`
	Chunks    int    `json:"chunks"`
}

// QueryRequest is the body of POST /query.
type QueryRequest struct {
	Question string `json:"question"`
}

// Source is one retrieved chunk backing an answer.
type Source struct {
	Document string  `json:"document"`
	ChunkID  string  `json:"chunk_id"`
	Score    float64 `json:"score"`
	Text     string  `json:"text"`
}

// QueryResponse is returned by POST /query.
type QueryResponse struct {
	Response string   `json:"response"`
	Sources  []Source `json:"sources"`
}

// DocumentsResponse is returned by GET /documents.
type DocumentsResponse struct {
	Documents []docstore.FileInfo `json:"documents"`
}

// PreviewResponse is returned by GET /documents/:name/preview.
type PreviewResponse struct {
	Name      string `json:"name"`
	Text      string `json:"text"`
	Truncated bool   `json:"truncated"`
}

func sourcesFrom(results []domain.SearchResult) []Source {
	out := make([]Source, len(results))
	for i, r := range results {
		out[i] = Source{
			Document: r.Chunk.Source,
			ChunkID:  r.Chunk.ChunkID,
			Score:    r.Score,
			Text:     r.Chunk.Text,
		}
	}
	return out
}
