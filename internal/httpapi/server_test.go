package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/config"
	"docqa/internal/docstore"
	"docqa/internal/domain"
	"docqa/internal/service"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type fakeService struct {
	uploaded  map[string]string
	uploadErr error
	answer    domain.Answer
	queryErr  error
	questions []string
	files     []docstore.FileInfo
	preview   service.Preview
	previewFn func(name string, limit int) (service.Preview, error)
}

func (f *fakeService) Upload(_ context.Context, name string, r io.Reader) (domain.IngestReport, error) {
	if f.uploadErr != nil {
		return domain.IngestReport{}, f.uploadErr
	}
	data, _ := io.ReadAll(r)
	if f.uploaded == nil {
		f.uploaded = map[string]string{}
	}
	f.uploaded[name] = string(data)
	return domain.IngestReport{Documents: len(f.uploaded), Chunks: 3, Summary: "A short summary."}, nil
}

func (f *fakeService) Query(_ context.Context, q string) (domain.Answer, error) {
	f.questions = append(f.questions, q)
	return f.answer, f.queryErr
}

func (f *fakeService) Documents() ([]docstore.FileInfo, error) { return f.files, nil }

func (f *fakeService) Preview(_ context.Context, name string, limit int) (service.Preview, error) {
	return f.previewFn(name, limit)
}

func newTestServer(svc *fakeService) *Server {
	return New(svc, config.ServerConfig{MaxUploadMB: 1, ShutdownTimeoutSecs: 1}, nil)
}

func multipartBody(t *testing.T, field, name string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(field, name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func do(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestUpload(t *testing.T) {
	svc := &fakeService{}
	h := newTestServer(svc).Handler()

	body, ctype := multipartBody(t, "file", "notes.txt", []byte("hello world."))
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", ctype)
	rec := do(h, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[UploadResponse](t, rec)
	assert.Equal(t, UploadResponse{Message: MsgUploaded, Summary: "A short summary.", Documents: 1, Chunks: 3}, resp)
	assert.Equal(t, "hello world.", svc.uploaded["notes.txt"])
	assert.NotEmpty(t, rec.Header().Get(HeaderRequestID))
}

func TestUpload_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		field  string
		file   string
		size   int
		err    error
		status int
		detail string
	}{
		{"wrong type", "file", "setup.exe", 10, nil, http.StatusBadRequest, MsgInvalidFileType},
		{"missing field", "attachment", "a.txt", 10, nil, http.StatusBadRequest, MsgNoFile},
		{"too large", "file", "big.txt", 3 << 19, nil, http.StatusRequestEntityTooLarge, MsgFileTooLarge},
		{"no text", "file", "blank.txt", 1, service.ErrNoContent, http.StatusUnprocessableEntity, MsgNoText},
		{"ingest failure", "file", "a.pdf", 10, fmt.Errorf("a.pdf: %w", io.ErrUnexpectedEOF), http.StatusInternalServerError, "Error processing file: a.pdf: unexpected EOF"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer(&fakeService{uploadErr: tt.err}).Handler()
			body, ctype := multipartBody(t, tt.field, tt.file, bytes.Repeat([]byte("a"), tt.size))
			req := httptest.NewRequest(http.MethodPost, "/upload", body)
			req.Header.Set("Content-Type", ctype)
			rec := do(h, req)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.detail, decode[ErrorResponse](t, rec).Detail)
		})
	}
}

func TestQuery(t *testing.T) {
	svc := &fakeService{answer: domain.Answer{
		Response: "Two years.",
		Sources: []domain.SearchResult{{
			Chunk: domain.Chunk{Source: "manual.txt", ChunkID: "abc:0", Text: "The warranty covers two years."},
			Score: 0.8,
		}},
	}}
	h := newTestServer(svc).Handler()

	req := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(`{"question":"How long is the warranty?"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderRequestID, "req-42")
	rec := do(h, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-42", rec.Header().Get(HeaderRequestID))
	resp := decode[QueryResponse](t, rec)
	assert.Equal(t, "Two years.", resp.Response)
	assert.Equal(t, []Source{{Document: "manual.txt", ChunkID: "abc:0", Score: 0.8, Text: "The warranty covers two years."}}, resp.Sources)
	assert.Equal(t, []string{"How long is the warranty?"}, svc.questions)
}

func TestQuery_ErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		detail string
	}{
		{service.ErrEmptyQuestion, http.StatusBadRequest, MsgEmptyQuestion},
		{service.ErrNoDocuments, http.StatusBadRequest, MsgNoDocument},
		{service.ErrIndexNotFound, http.StatusConflict, MsgIndexNotReady},
		{fmt.Errorf("%w: timeout", service.ErrLLM), http.StatusBadGateway, MsgLLMFailed},
		{io.ErrClosedPipe, http.StatusInternalServerError, MsgInternal},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			h := newTestServer(&fakeService{queryErr: tt.err}).Handler()
			req := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(`{"question":"q"}`))
			rec := do(h, req)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.detail, decode[ErrorResponse](t, rec).Detail)
		})
	}

	h := newTestServer(&fakeService{}).Handler()
	rec := do(h, httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(`{"question":`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, MsgInvalidBody, decode[ErrorResponse](t, rec).Detail)
}

func TestDocumentsAndPreview(t *testing.T) {
	svc := &fakeService{
		previewFn: func(name string, limit int) (service.Preview, error) {
			if name != "manual.txt" {
				return service.Preview{}, docstore.ErrNotFound
			}
			return service.Preview{Name: name, Text: "The war", Truncated: limit == 7}, nil
		},
	}
	h := newTestServer(svc).Handler()

	rec := do(h, httptest.NewRequest(http.MethodGet, "/documents", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"documents":[]}`, rec.Body.String())

	rec = do(h, httptest.NewRequest(http.MethodGet, "/documents/manual.txt/preview?limit=7", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, PreviewResponse{Name: "manual.txt", Text: "The war", Truncated: true}, decode[PreviewResponse](t, rec))

	rec = do(h, httptest.NewRequest(http.MethodGet, "/documents/other.txt/preview", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(h, httptest.NewRequest(http.MethodGet, "/documents/manual.txt/preview?limit=-1", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndRecovery(t *testing.T) {
	svc := &fakeService{previewFn: func(string, int) (service.Preview, error) { panic("boom") }}
	h := newTestServer(svc).Handler()

	rec := do(h, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(h, httptest.NewRequest(http.MethodGet, "/documents/x.txt/preview", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, MsgInternal, decode[ErrorResponse](t, rec).Detail)
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := newTestServer(&fakeService{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/healthz"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
}
