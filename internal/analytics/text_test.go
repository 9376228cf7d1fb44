package analytics

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTokenize_FiltersShortAndStopwords(t *testing.T) {
	got := Tokenize("The Checkout was SLOW and the app crashed")
	assert.Equal(t, []string{"checkout", "slow", "app", "crashed"}, got)
}

func TestPhrases_UnigramsAndBigrams(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"slow checkout page", []string{"slow", "checkout", "page", "slow checkout", "checkout page"}},
		{"love the app", []string{"love", "app"}},
		{"Love the APP", []string{"love", "app"}},
		{"great app so fast", []string{"great", "app", "fast", "great app"}},
		{"", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Phrases(tt.in))
		})
	}
}

func TestRedact(t *testing.T) {
	got := Redact("mail me at jane.doe@example.com or call +1 555-123-4567")
	assert.NotContains(t, got, "jane.doe")
	assert.NotContains(t, got, "4567")
	assert.Contains(t, got, "[email]")
	assert.Contains(t, got, "[phone]")
}

func TestSnippet_Truncates(t *testing.T) {
	s := Snippet(strings.Repeat("word ", 100))
	assert.LessOrEqual(t, utf8.RuneCountInString(s), SnippetRunes)
	assert.True(t, strings.HasSuffix(s, "…"))
}

func TestTextAccumulator_Ranking(t *testing.T) {
	a := NewTextAccumulator()
	a.Add("great support team")
	a.Add("great product")
	a.Add("great product")

	top := a.TopPhrases(3)
	assert.Equal(t, "great", top[0].Phrase)
	assert.EqualValues(t, 3, top[0].Count)
	assert.Equal(t, "great product", top[1].Phrase)
	assert.Equal(t, "product", top[2].Phrase)

	sn := a.TopSnippets(10)
	assert.Len(t, sn, 2)
	assert.Equal(t, "great product", sn[0].Text)
	assert.EqualValues(t, 2, sn[0].Count)
	assert.EqualValues(t, 3, a.Responses())
}
