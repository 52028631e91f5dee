package summarizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/config"
)

func TestSummarize_PicksFrequentSentencesInOrder(t *testing.T) {
	text := "Invoices are due in thirty days. The office cat is named Biscuit. " +
		"Late invoices incur a fee on invoices. Invoices must list the tax number"
	s := NewFrequencySummarizer()

	out, err := s.Summarize(text, 2)
	require.NoError(t, err)
	assert.NotContains(t, out, "Biscuit")
	assert.Contains(t, out, "Late invoices incur a fee on invoices.")
	assert.Less(t, len(out), len(text))
}

func TestSummarize_ShortInputReturnedWhole(t *testing.T) {
	s := NewFrequencySummarizer()
	out, err := s.Summarize("  Only one sentence here.  ", 3)
	require.NoError(t, err)
	assert.Equal(t, "Only one sentence here.", out)

	out, err = s.Summarize("   ", 3)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestSummarize_StopwordOnlyText(t *testing.T) {
	s := NewFrequencySummarizer()
	out, err := s.Summarize("It is. It was.", 1)
	require.NoError(t, err)
	assert.Equal(t, "It is.", out)
}

func TestNew(t *testing.T) {
	s, err := New(config.SummarizerConfig{Type: "frequency"})
	require.NoError(t, err)
	assert.IsType(t, &FrequencySummarizer{}, s)

	_, err = New(config.SummarizerConfig{Type: "abstractive"})
	assert.Error(t, err)
}
