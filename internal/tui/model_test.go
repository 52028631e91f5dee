package tui

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/apiclient"
	"docqa/internal/docstore"
	"docqa/internal/httpapi"
)

type fakeBackend struct {
	uploaded []string
	queryErr error
}

func (f *fakeBackend) Upload(_ context.Context, path string) (*httpapi.UploadResponse, error) {
	if strings.HasSuffix(path, ".exe") {
		return nil, &apiclient.APIError{Status: http.StatusBadRequest, Detail: httpapi.MsgInvalidFileType}
	}
	f.uploaded = append(f.uploaded, path)
	return &httpapi.UploadResponse{Message: httpapi.MsgUploaded, Summary: "About invoices."}, nil
}

func (f *fakeBackend) Query(_ context.Context, q string) (*httpapi.QueryResponse, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return &httpapi.QueryResponse{
		Response: "Thirty days.",
		Sources:  []httpapi.Source{{Document: "terms.txt", Text: "Payment is due in thirty days. Late fees apply."}},
	}, nil
}

func (f *fakeBackend) Documents(context.Context) ([]docstore.FileInfo, error) {
	return []docstore.FileInfo{{Name: "terms.txt", Size: 2048}}, nil
}

func (f *fakeBackend) Preview(_ context.Context, name string, _ int) (*httpapi.PreviewResponse, error) {
	return &httpapi.PreviewResponse{Name: name, Text: "Payment is due", Truncated: true}, nil
}

func sized(m Model) Model {
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	return next.(Model)
}

func TestNewStartsWithGreeting(t *testing.T) {
	m := New(&fakeBackend{}, time.Second)
	assert.Equal(t, "Loading...", m.View())

	m = sized(m)
	require.Len(t, m.history, 1)
	assert.Equal(t, Greeting, m.history[0].text)
	assert.Contains(t, m.View(), "Hello! Upload a PDF")
}

func TestEnterSendsQuestion(t *testing.T) {
	m := sized(New(&fakeBackend{}, time.Second))
	m.input.SetValue("  When is payment due?  ")

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	require.NotNil(t, cmd)
	assert.True(t, m.busy)
	assert.Empty(t, m.input.Value())
	assert.Equal(t, turn{role: roleUser, text: "When is payment due?"}, m.history[1])

	// a second enter while waiting is ignored
	m.input.SetValue("again")
	next, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.Len(t, next.(Model).history, 2)

	msg := m.request("When is payment due?")()
	next, _ = m.Update(msg)
	m = next.(Model)
	assert.False(t, m.busy)
	last := m.history[len(m.history)-1]
	assert.Equal(t, roleAssistant, last.role)
	assert.True(t, strings.HasPrefix(last.text, "Thirty days."))
	assert.Contains(t, last.text, "Source: terms.txt")
}

func TestCommands(t *testing.T) {
	ctx := context.Background()
	b := &fakeBackend{}

	out := run(ctx, b, "/upload ./docs/terms.txt")
	assert.Equal(t, "File uploaded and processed successfully\n\nSummary: About invoices.", out)
	assert.Equal(t, []string{"./docs/terms.txt"}, b.uploaded)

	assert.Equal(t, "Error uploading file: "+httpapi.MsgInvalidFileType, run(ctx, b, "/upload setup.exe"))
	assert.Equal(t, "Usage: /upload <path>", run(ctx, b, "/upload"))
	assert.Equal(t, "• terms.txt (2.0 KB)", run(ctx, b, "/docs"))
	assert.Equal(t, "Payment is due …", run(ctx, b, "/preview terms.txt"))
	assert.Equal(t, helpText, run(ctx, b, "/help"))
}

func TestQueryError(t *testing.T) {
	b := &fakeBackend{queryErr: &apiclient.APIError{Status: http.StatusBadRequest, Detail: httpapi.MsgNoDocument}}
	assert.Equal(t, "Error querying document: No document has been uploaded yet.", run(context.Background(), b, "hi"))

	b.queryErr = errors.New("connection refused")
	assert.Equal(t, "Error querying document: connection refused", run(context.Background(), b, "hi"))
}

func TestCtrlCQuits(t *testing.T) {
	m := sized(New(&fakeBackend{}, time.Second))
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestBestSentence(t *testing.T) {
	sentences := []string{"Payment is due in thirty days.", "Late fees apply."}
	assert.Equal(t, 1, bestSentence(sentences, "what late fees?"))
	assert.Equal(t, -1, bestSentence(sentences, "?!"))
	assert.Equal(t, "", highlightBestSentence("   ", "q"))
}
