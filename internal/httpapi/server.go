// Package httpapi exposes the document Q&A service over HTTP.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"docqa/internal/config"
	"docqa/internal/docstore"
	"docqa/internal/domain"
	"docqa/internal/service"
)

// Service is what the handlers need from the application core.
type Service interface {
	Upload(ctx context.Context, name string, r io.Reader) (domain.IngestReport, error)
	Query(ctx context.Context, question string) (domain.Answer, error)
	Documents() ([]docstore.FileInfo, error)
	Preview(ctx context.Context, name string, limit int) (service.Preview, error)
}

// multipart envelope allowance on top of the file size limit
const formOverhead = 1 << 20

// Server is the HTTP front end.
type Server struct {
	svc    Service
	cfg    config.ServerConfig
	logger *zap.Logger
	engine *gin.Engine
}

// New builds the router. Call gin.SetMode before New to change gin's mode.
func New(svc Service, cfg config.ServerConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{svc: svc, cfg: cfg, logger: logger}

	r := gin.New()
	r.Use(requestID(), accessLog(logger), recovery(logger))
	r.MaxMultipartMemory = 8 << 20

	r.GET("/healthz", s.handleHealth)
	r.POST("/upload", s.handleUpload)
	r.POST("/query", s.handleQuery)
	r.GET("/documents", s.handleDocuments)
	r.GET("/documents/:name/preview", s.handlePreview)
	s.engine = r
	return s
}

// Handler returns the router for use in tests or a custom http.Server.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves on cfg.Addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.engine,
		ReadTimeout:  config.Duration(s.cfg.ReadTimeoutSecs),
		WriteTimeout: config.Duration(s.cfg.WriteTimeoutSecs),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.Duration(s.cfg.ShutdownTimeoutSecs))
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return <-errCh
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleUpload(c *gin.Context) {
	limit := s.cfg.MaxUploadBytes()
	if limit > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+formOverhead)
	}
	fh, err := c.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			abort(c, http.StatusRequestEntityTooLarge, MsgFileTooLarge, err)
			return
		}
		abort(c, http.StatusBadRequest, MsgNoFile, err)
		return
	}
	if err := docstore.ValidateName(fh.Filename); err != nil {
		abort(c, http.StatusBadRequest, MsgInvalidFileType, err)
		return
	}
	if limit > 0 && fh.Size > limit {
		abort(c, http.StatusRequestEntityTooLarge, MsgFileTooLarge, nil)
		return
	}

	f, err := fh.Open()
	if err != nil {
		abort(c, http.StatusBadRequest, MsgNoFile, err)
		return
	}
	defer f.Close()

	report, err := s.svc.Upload(c.Request.Context(), fh.Filename, f)
	switch {
	case err == nil:
	case errors.Is(err, docstore.ErrInvalidFileType), errors.Is(err, docstore.ErrInvalidName):
		abort(c, http.StatusBadRequest, MsgInvalidFileType, err)
		return
	case errors.Is(err, service.ErrNoContent):
		abort(c, http.StatusUnprocessableEntity, MsgNoText, err)
		return
	default:
		abort(c, http.StatusInternalServerError, "Error processing file: "+err.Error(), err)
		return
	}

	c.JSON(http.StatusOK, UploadResponse{
		Message:   MsgUploaded,
		Summary:   report.Summary,
		Documents: report.Documents,
		Chunks:    report.Chunks,
	})
}

func (s *Server) handleQuery(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, MsgInvalidBody, err)
		return
	}
	answer, err := s.svc.Query(c.Request.Context(), req.Question)
	switch {
	case err == nil:
	case errors.Is(err, service.ErrEmptyQuestion):
		abort(c, http.StatusBadRequest, MsgEmptyQuestion, err)
		return
	case errors.Is(err, service.ErrNoDocuments):
		abort(c, http.StatusBadRequest, MsgNoDocument, err)
		return
	case errors.Is(err, service.ErrIndexNotFound), errors.Is(err, service.ErrIndexMismatch):
		abort(c, http.StatusConflict, MsgIndexNotReady, err)
		return
	case errors.Is(err, service.ErrLLM):
		abort(c, http.StatusBadGateway, MsgLLMFailed, err)
		return
	default:
		abort(c, http.StatusInternalServerError, MsgInternal, err)
		return
	}
	c.JSON(http.StatusOK, QueryResponse{Response: answer.Response, Sources: sourcesFrom(answer.Sources)})
}

func (s *Server) handleDocuments(c *gin.Context) {
	files, err := s.svc.Documents()
	if err != nil {
		abort(c, http.StatusInternalServerError, MsgInternal, err)
		return
	}
	if files == nil {
		files = []docstore.FileInfo{}
	}
	c.JSON(http.StatusOK, DocumentsResponse{Documents: files})
}

func (s *Server) handlePreview(c *gin.Context) {
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			abort(c, http.StatusBadRequest, "limit must be a non-negative integer", err)
			return
		}
		limit = n
	}
	p, err := s.svc.Preview(c.Request.Context(), c.Param("name"), limit)
	switch {
	case err == nil:
	case errors.Is(err, docstore.ErrNotFound):
		abort(c, http.StatusNotFound, "Document not found.", err)
		return
	case errors.Is(err, docstore.ErrInvalidFileType), errors.Is(err, docstore.ErrInvalidName):
		abort(c, http.StatusBadRequest, MsgInvalidFileType, err)
		return
	default:
		abort(c, http.StatusInternalServerError, MsgInternal, err)
		return
	}
	c.JSON(http.StatusOK, PreviewResponse{Name: p.Name, Text: p.Text, Truncated: p.Truncated})
}

// abort records err for the access log and writes the error body.
func abort(c *gin.Context, status int, detail string, err error) {
	if err != nil {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, ErrorResponse{Detail: detail})
}
