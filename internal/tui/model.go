// Package tui is the terminal chat front end for the docqa API.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"docqa/internal/apiclient"
	"docqa/internal/docstore"
	"docqa/internal/httpapi"
)

// Greeting opens every conversation.
const Greeting = "Hello! Upload a PDF, DOCX, or TXT file and ask me anything about its content."

const helpText = "Commands: /upload <path>, /docs, /preview <name>, /help. Anything else is a question. Ctrl+C quits."

// Backend is the subset of the API client used by the chat.
type Backend interface {
	Upload(ctx context.Context, path string) (*httpapi.UploadResponse, error)
	Query(ctx context.Context, question string) (*httpapi.QueryResponse, error)
	Documents(ctx context.Context) ([]docstore.FileInfo, error)
	Preview(ctx context.Context, name string, limit int) (*httpapi.PreviewResponse, error)
}

type role int

const (
	roleAssistant role = iota
	roleUser
)

type turn struct {
	role role
	text string
}

type replyMsg struct {
	text string
}

// Model is the Bubble Tea model for the chat.
type Model struct {
	backend  Backend
	timeout  time.Duration
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	history  []turn
	busy     bool
	ready    bool
	status   string
}

// New creates a chat model. timeout bounds each API call.
func New(backend Backend, timeout time.Duration) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question or /upload <path>"
	ti.Focus()
	ti.CharLimit = 0

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	return Model{
		backend:  backend,
		timeout:  timeout,
		input:    ti,
		viewport: viewport.New(0, 0),
		spinner:  sp,
		history:  []turn{{role: roleAssistant, text: Greeting}},
		status:   helpText,
	}
}

// Init starts the cursor blink.
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles keys, window resizes, spinner ticks and API replies.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, bh := historyBoxStyle.GetFrameSize()
		_, ih := inputBoxStyle.GetFrameSize()
		reserved := 1 + 1 + ih + 1 // header, status, input box, spacer
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-reserved-bh)
		m.refresh()
		return m, nil

	case replyMsg:
		m.busy = false
		m.status = helpText
		m.history = append(m.history, turn{role: roleAssistant, text: msg.text})
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD:
			return m, tea.Quit
		case tea.KeyEnter:
			text := strings.TrimSpace(m.input.Value())
			if text == "" || m.busy {
				return m, nil
			}
			m.input.Reset()
			m.history = append(m.history, turn{role: roleUser, text: text})
			m.busy = true
			m.status = "Thinking..."
			m.refresh()
			return m, tea.Batch(m.spinner.Tick, m.request(text))
		case tea.KeyPgUp, tea.KeyPgDown, tea.KeyUp, tea.KeyDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// request returns the command that performs text against the backend.
func (m Model) request(text string) tea.Cmd {
	backend, timeout := m.backend, m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return replyMsg{text: run(ctx, backend, text)}
	}
}

func run(ctx context.Context, b Backend, text string) string {
	cmd, arg, _ := strings.Cut(text, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "/help":
		return helpText
	case "/upload":
		if arg == "" {
			return "Usage: /upload <path>"
		}
		resp, err := b.Upload(ctx, arg)
		if err != nil {
			return "Error uploading file: " + describe(err)
		}
		out := resp.Message
		if resp.Summary != "" {
			out += "\n\nSummary: " + resp.Summary
		}
		return out
	case "/docs":
		docs, err := b.Documents(ctx)
		if err != nil {
			return "Error listing documents: " + describe(err)
		}
		if len(docs) == 0 {
			return "No documents uploaded yet."
		}
		lines := make([]string, len(docs))
		for i, d := range docs {
			lines[i] = fmt.Sprintf("• %s (%s)", d.Name, humanSize(d.Size))
		}
		return strings.Join(lines, "\n")
	case "/preview":
		if arg == "" {
			return "Usage: /preview <name>"
		}
		p, err := b.Preview(ctx, arg, 0)
		if err != nil {
			return "Error previewing document: " + describe(err)
		}
		if p.Truncated {
			return p.Text + " …"
		}
		return p.Text
	}

	resp, err := b.Query(ctx, text)
	if err != nil {
		return "Error querying document: " + describe(err)
	}
	out := resp.Response
	if len(resp.Sources) > 0 {
		src := resp.Sources[0]
		out += "\n\n" + sourceStyle.Render("Source: "+src.Document) + "\n" + highlightBestSentence(src.Text, text)
	}
	return out
}

func describe(err error) string {
	var apiErr *apiclient.APIError
	if errors.As(err, &apiErr) && apiErr.Detail != "" {
		return apiErr.Detail
	}
	return err.Error()
}

func humanSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderHistory())
	m.viewport.GotoBottom()
}

// View renders the conversation, the input box and the status line.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render("Chat with your document")
	status := statusStyle.Render(m.status)
	if m.busy {
		status = m.spinner.View() + " " + status
	}
	return header + "\n" + historyBoxStyle.Render(m.viewport.View()) + "\n" + inputBoxStyle.Render(m.input.View()) + "\n" + status
}

func (m Model) renderHistory() string {
	width := max(10, m.viewport.Width-4)
	var sb strings.Builder
	for i, t := range m.history {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		label, style := "🤖 Assistant", assistantStyle
		if t.role == roleUser {
			label, style = "🧑 You", userStyle
		}
		sb.WriteString(style.Render(label))
		sb.WriteString("\n")
		sb.WriteString(lipgloss.NewStyle().Width(width).Render(t.text))
	}
	return sb.String()
}
