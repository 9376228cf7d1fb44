package analytics

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"

	"github.com/tbourn/go-survey-backend/internal/domain"
)

const (
	// MaxPhrases caps the ranked phrase list per field and day.
	MaxPhrases = 20
	// MaxSnippets caps the sampled snippet list per field and day.
	MaxSnippets = 10
	// SnippetRunes is the maximum snippet length after redaction.
	SnippetRunes = 160

	minTokenRunes = 3
)

var (
	tokenRE = regexp.MustCompile(`[\p{L}\p{N}]+`)

	redactEmailRE = regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)
	// Seven or more digits with optional separators.
	redactPhoneRE = regexp.MustCompile(`(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)

	spaceRE = regexp.MustCompile(`\s+`)
)

var stopwords = toSet(
	"the", "and", "for", "are", "but", "not", "you", "all", "any", "can", "had",
	"her", "was", "one", "our", "out", "has", "him", "his", "how", "its", "may",
	"who", "did", "get", "got", "let", "she", "too", "use", "that", "with",
	"have", "this", "will", "your", "from", "they", "been", "were", "what",
	"when", "where", "which", "there", "their", "them", "then", "than", "these",
	"those", "would", "could", "should", "about", "into", "just", "very",
	"also", "some", "such", "only", "more", "most", "much", "over", "because",
	"being", "here", "does", "doing", "each", "other", "after", "before",
)

func toSet(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

// Tokenize case-folds s and returns its word tokens of at least three runes
// that are not stopwords, in input order.
func Tokenize(s string) []string {
	raw := words(s)
	out := make([]string, 0, len(raw))
	for _, w := range raw {
		if keep(w) {
			out = append(out, w)
		}
	}
	return out
}

// Phrases returns the unigrams of s followed by its bigrams. A bigram pairs
// two words that are adjacent in s and both kept by Tokenize, so a filtered
// word between them breaks the pair.
func Phrases(s string) []string {
	raw := words(s)
	out := make([]string, 0, 2*len(raw))
	var bigrams []string
	for i, w := range raw {
		if !keep(w) {
			continue
		}
		out = append(out, w)
		if i+1 < len(raw) && keep(raw[i+1]) {
			bigrams = append(bigrams, w+" "+raw[i+1])
		}
	}
	return append(out, bigrams...)
}

func words(s string) []string {
	return tokenRE.FindAllString(cases.Fold().String(s), -1)
}

func keep(w string) bool {
	if utf8.RuneCountInString(w) < minTokenRunes {
		return false
	}
	_, stop := stopwords[w]
	return !stop
}

// Redact replaces email-like and phone-like substrings with placeholders.
func Redact(s string) string {
	s = redactEmailRE.ReplaceAllString(s, "[email]")
	s = redactPhoneRE.ReplaceAllString(s, "[phone]")
	return s
}

// Snippet redacts s, collapses whitespace, and truncates to SnippetRunes.
func Snippet(s string) string {
	s = strings.TrimSpace(spaceRE.ReplaceAllString(Redact(s), " "))
	if utf8.RuneCountInString(s) <= SnippetRunes {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:SnippetRunes-1])) + "…"
}

// TextAccumulator collects phrase and snippet counts for one field.
type TextAccumulator struct {
	responses int64
	phrases   map[string]int64
	snippets  map[string]int64
}

// NewTextAccumulator returns an empty accumulator.
func NewTextAccumulator() *TextAccumulator {
	return &TextAccumulator{phrases: map[string]int64{}, snippets: map[string]int64{}}
}

// Add records one free-text answer.
func (a *TextAccumulator) Add(text string) {
	a.responses++
	// Each phrase counts once per answer.
	seen := map[string]struct{}{}
	for _, p := range Phrases(text) {
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		a.phrases[p]++
	}
	if sn := Snippet(text); sn != "" {
		a.snippets[sn]++
	}
}

// AddSummary merges an already materialized day into the accumulator.
func (a *TextAccumulator) AddSummary(responses int64, phrases []domain.PhraseCount, snippets []domain.SnippetCount) {
	a.responses += responses
	for _, p := range phrases {
		a.phrases[p.Phrase] += p.Count
	}
	for _, s := range snippets {
		a.snippets[s.Text] += s.Count
	}
}

// Responses returns the number of answers seen.
func (a *TextAccumulator) Responses() int64 { return a.responses }

// TopPhrases ranks phrases by count descending then lexicographically.
func (a *TextAccumulator) TopPhrases(limit int) []domain.PhraseCount {
	out := make([]domain.PhraseCount, 0, len(a.phrases))
	for p, c := range a.phrases {
		out = append(out, domain.PhraseCount{Phrase: p, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Phrase < out[j].Phrase
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// TopSnippets ranks snippets by count descending then lexicographically.
func (a *TextAccumulator) TopSnippets(limit int) []domain.SnippetCount {
	out := make([]domain.SnippetCount, 0, len(a.snippets))
	for s, c := range a.snippets {
		out = append(out, domain.SnippetCount{Text: s, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Text < out[j].Text
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
