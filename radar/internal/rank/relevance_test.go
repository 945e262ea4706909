package rank

import (
	"reflect"
	"testing"

	"github.com/starradar/starradar/pkg/types"
	"github.com/starradar/starradar/radar/internal/config"
)

func TestTerms(t *testing.T) {
	tests := []struct {
		name string
		ch   config.Channel
		want []string
	}{
		{
			name: "keywords win and are normalized",
			ch:   config.Channel{Queries: []string{"topic:x"}, Keywords: []string{"Claude", " claude-code ", "claude"}},
			want: []string{"claude", "claude-code"},
		},
		{
			name: "topic qualifier stripped",
			ch:   config.Channel{Queries: []string{"topic:llm", "topic:vibe-coding"}},
			want: []string{"llm", "vibe-coding"},
		},
		{
			name: "search syntax and stop words dropped",
			ch:   config.Channel{Queries: []string{`"claude code" in:name language:go stars:>100 OR the -awesome`}},
			want: []string{"claude", "code"},
		},
		{
			name: "no queries no keywords",
			ch:   config.Channel{},
			want: nil,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Terms(tc.ch); !reflect.DeepEqual(got, tc.want) {
				t.Errorf("Terms() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestRelevance_CoreKeywordScoresHigh(t *testing.T) {
	c := types.Candidate{
		ID:          "demo/claude-code-assistant",
		Name:        "claude-code-assistant",
		Description: "A coding assistant powered by claude model",
		Topics:      []string{"ai", "coding", "claude"},
		Channels:    []string{"claude"},
	}
	terms := map[string][]string{"claude": {"claude"}}

	got := Relevance(c, terms)
	if got < 60 {
		t.Errorf("Relevance = %v, want >= 60", got)
	}
	if !almostEqual(got, nameWeight+topicWeight+descriptionWeight, 1e-9) {
		t.Errorf("Relevance = %v, want %v", got, nameWeight+topicWeight+descriptionWeight)
	}
}

func TestRelevance_FieldWeights(t *testing.T) {
	terms := map[string][]string{"llm": {"llm"}}
	tests := []struct {
		name string
		c    types.Candidate
		want float64
	}{
		{"name only", types.Candidate{Name: "llm-router"}, nameWeight},
		{"topic only", types.Candidate{Name: "router", Topics: []string{"llm", "llm-tools"}}, topicWeight},
		{"description only", types.Candidate{Name: "router", Description: "Routes LLM traffic"}, descriptionWeight},
		{"no match", types.Candidate{Name: "router", Description: "smallmodels"}, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.c.Channels = []string{"llm"}
			if got := Relevance(tc.c, terms); !almostEqual(got, tc.want, 1e-9) {
				t.Errorf("Relevance = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestRelevance_ShortTermsNeedWholeToken(t *testing.T) {
	c := types.Candidate{Name: "mailer", Description: "send email fast", Channels: []string{"ai"}}
	if got := Relevance(c, map[string][]string{"ai": {"ai"}}); got != 0 {
		t.Errorf("Relevance = %v, want 0 (no substring match for short terms)", got)
	}
}

func TestRelevance_CompoundSpellings(t *testing.T) {
	c := types.Candidate{Name: "VibeCoding-kit", Description: "tools for vibe coding", Channels: []string{"vibe"}}
	got := Relevance(c, map[string][]string{"vibe": {"vibe-coding"}})
	if !almostEqual(got, nameWeight+descriptionWeight, 1e-9) {
		t.Errorf("Relevance = %v, want %v", got, nameWeight+descriptionWeight)
	}
}

func TestRelevance_CappedAndBestChannel(t *testing.T) {
	c := types.Candidate{
		Name:        "claude-codex-vibe",
		Description: "claude codex vibe",
		Topics:      []string{"claude", "codex", "vibe"},
		Channels:    []string{"weak", "strong"},
	}
	terms := map[string][]string{
		"weak":   {"codex"},
		"strong": {"claude", "codex", "vibe"},
	}
	if got := Relevance(c, terms); got != maxScore {
		t.Errorf("Relevance = %v, want capped %v", got, maxScore)
	}

	c.Channels = []string{"weak"}
	if got := Relevance(c, terms); !almostEqual(got, 85, 1e-9) {
		t.Errorf("single channel Relevance = %v, want 85", got)
	}
}

func TestRelevance_UnknownChannelScoresZero(t *testing.T) {
	c := types.Candidate{Name: "claude", Channels: []string{"removed"}}
	if got := Relevance(c, map[string][]string{"claude": {"claude"}}); got != 0 {
		t.Errorf("Relevance = %v, want 0", got)
	}
}
