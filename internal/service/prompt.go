package service

import (
	"strings"
	"unicode/utf8"

	"docqa/internal/domain"
)

// FallbackAnswer is returned when the model produces no text.
const FallbackAnswer = "Sorry, I couldn't find an answer."

const promptTemplate = "You are Q&A assistant named CHAT-DOC. Your main goal is to provide answers as " +
	"accurately as possible, based on the instructions and context you have been given. " +
	"If a question does not match the provided context or is outside the scope of the document, " +
	"kindly advise the user to ask questions within the context of the document.\n" +
	"Context:\n{context}\nQuestion:\n{question}\n"

// charsPerToken is a rough estimate used to keep prompts inside the context window.
const charsPerToken = 4

// buildPrompt renders the template with as much retrieved context as fits in
// budgetTokens. A non-positive budget disables trimming.
func buildPrompt(question string, results []domain.SearchResult, budgetTokens int) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		if t := strings.TrimSpace(r.Chunk.Text); t != "" {
			parts = append(parts, t)
		}
	}
	context := strings.Join(parts, "\n\n")

	if budgetTokens > 0 {
		fixed := len(promptTemplate) - len("{context}") - len("{question}") + len(question)
		room := budgetTokens*charsPerToken - fixed
		context = truncate(context, max(room, 0))
	}

	r := strings.NewReplacer("{context}", context, "{question}", question)
	return r.Replace(promptTemplate)
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
