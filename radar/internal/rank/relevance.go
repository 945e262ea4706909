package rank

import (
	"strings"
	"unicode"

	"github.com/starradar/starradar/pkg/types"
	"github.com/starradar/starradar/radar/internal/config"
)

// Points awarded when a channel term matches a field. Each term scores at
// most once per field.
const (
	nameWeight        = 40.0
	topicWeight       = 30.0
	descriptionWeight = 15.0

	maxScore = 100.0
)

// shortTerm is the length at or below which a term must match a whole
// token; longer terms may match inside compound words.
const shortTerm = 3

// stopWords never become relevance terms when terms are derived from queries.
var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "or": true, "not": true, "the": true,
	"for": true, "of": true, "in": true, "on": true, "to": true, "with": true,
	"by": true, "is": true, "using": true, "based": true, "tool": true, "tools": true,
}

// qualifiers whose value is kept as a term; every other key:value
// qualifier (language:, stars:, pushed:, in:) is search syntax only.
var termQualifiers = map[string]bool{"topic": true, "topics": true}

// Terms returns the lowercase relevance terms of a channel: its keywords
// when configured, otherwise the words of its queries with qualifiers
// stripped ("topic:llm" becomes "llm") and stop words dropped.
func Terms(ch config.Channel) []string {
	var raw []string
	if len(ch.Keywords) > 0 {
		raw = ch.Keywords
	} else {
		for _, q := range ch.Queries {
			raw = append(raw, queryTerms(q)...)
		}
	}

	seen := make(map[string]bool, len(raw))
	var out []string
	for _, t := range raw {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func queryTerms(q string) []string {
	var out []string
	for _, tok := range strings.Fields(q) {
		tok = strings.Trim(tok, `"'()`)
		if key, val, ok := strings.Cut(tok, ":"); ok {
			if !termQualifiers[strings.ToLower(key)] {
				continue
			}
			tok = val
		}
		tok = strings.ToLower(tok)
		if tok == "" || stopWords[tok] || strings.ContainsAny(tok[:1], "<>=-*") {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// Relevance scores c against the terms of each of its channels and returns
// the best channel score, in [0, 100]. terms is keyed by channel name.
func Relevance(c types.Candidate, terms map[string][]string) float64 {
	name := newField(c.Name)
	topics := make([]field, len(c.Topics))
	for i, t := range c.Topics {
		topics[i] = newField(t)
	}
	desc := newField(c.Description)

	best := 0.0
	for _, ch := range c.Channels {
		score := 0.0
		for _, term := range terms[ch] {
			if name.matches(term) {
				score += nameWeight
			}
			for _, tp := range topics {
				if tp.matches(term) {
					score += topicWeight
					break
				}
			}
			if desc.matches(term) {
				score += descriptionWeight
			}
		}
		best = max(best, min(score, maxScore))
	}
	return best
}

// field is a pre-normalized text field: its lowercase tokens and its
// separator-free form for compound matching.
type field struct {
	tokens map[string]bool
	folded string
}

func newField(s string) field {
	lower := strings.ToLower(s)
	f := field{tokens: make(map[string]bool), folded: fold(lower)}
	for _, tok := range strings.FieldsFunc(lower, isSeparator) {
		f.tokens[tok] = true
	}
	return f
}

// matches reports whether term occurs in the field. Short terms need a
// whole-token match so "ai" does not hit "email"; longer ones also match
// across separators, so "vibe-coding" hits "VibeCoding" and "vibe coding".
func (f field) matches(term string) bool {
	if f.tokens[term] {
		return true
	}
	folded := fold(term)
	if len([]rune(folded)) <= shortTerm {
		return false
	}
	return strings.Contains(f.folded, folded)
}

func isSeparator(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

// fold drops every separator so compound spellings compare equal.
func fold(s string) string {
	return strings.Map(func(r rune) rune {
		if isSeparator(r) {
			return -1
		}
		return r
	}, s)
}
