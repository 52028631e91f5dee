package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"docqa/internal/domain"
)

func TestBuildPrompt(t *testing.T) {
	results := []domain.SearchResult{
		{Chunk: domain.Chunk{Text: "first chunk"}},
		{Chunk: domain.Chunk{Text: "  "}},
		{Chunk: domain.Chunk{Text: "second chunk"}},
	}
	got := buildPrompt("why?", results, 0)
	assert.Contains(t, got, "Context:\nfirst chunk\n\nsecond chunk\nQuestion:\nwhy?\n")
	assert.NotContains(t, got, "{context}")
}

func TestBuildPrompt_TrimsContextToBudget(t *testing.T) {
	long := strings.Repeat("é", 5000)
	results := []domain.SearchResult{{Chunk: domain.Chunk{Text: long}}}

	got := buildPrompt("q", results, 200)
	assert.LessOrEqual(t, len(got), 200*charsPerToken)
	assert.True(t, strings.HasSuffix(got, "\nQuestion:\nq\n"))
	assert.NotContains(t, got, "�")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 10))
	assert.Equal(t, "ab", truncate("abc", 2))
	assert.Equal(t, "", truncate("é", 1))
}

func TestLexicalSearch(t *testing.T) {
	chunks := []domain.Chunk{
		{ChunkID: "a", Text: "cats and dogs"},
		{ChunkID: "b", Text: "unrelated text"},
		{ChunkID: "c", Text: "dogs only"},
	}
	got := lexicalSearch("Dogs?", chunks, 5)
	if assert.Len(t, got, 2) {
		assert.Equal(t, "c", got[0].Chunk.ChunkID)
		assert.Equal(t, "a", got[1].Chunk.ChunkID)
	}
	assert.Len(t, lexicalSearch("dogs", chunks, 1), 1)
	assert.Empty(t, lexicalSearch("", chunks, 3))
}
