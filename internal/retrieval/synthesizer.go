package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/sentra/internal/generation"
)

// defaultMaxContextChars bounds the assembled context passed to generation.
const defaultMaxContextChars = 6000

// noAnswerText is returned when no authorized chunks matched the query.
// No generation call is made in that case.
const noAnswerText = "I could not find any documents you are authorized to access that answer this question."

// Synthesizer assembles a bounded context from reranked candidates and
// invokes the generation service once. Generation failure is a hard error;
// no partial or fabricated answer is ever returned.
type Synthesizer struct {
	client          generation.Client
	maxContextChars int
}

// NewSynthesizer creates a Synthesizer. maxContextChars <= 0 uses the default.
func NewSynthesizer(client generation.Client, maxContextChars int) *Synthesizer {
	if maxContextChars <= 0 {
		maxContextChars = defaultMaxContextChars
	}
	return &Synthesizer{
		client:          client,
		maxContextChars: maxContextChars,
	}
}

// Synthesize produces an answer grounded in the given candidates.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, candidates []Candidate) (Answer, error) {
	if len(candidates) == 0 {
		return Answer{
			Answer:  noAnswerText,
			Sources: []Source{},
		}, nil
	}

	prompt, used := s.buildPrompt(query, candidates)

	text, err := s.client.Complete(ctx, prompt)
	if err != nil {
		return Answer{}, fmt.Errorf("generating answer: %w", err)
	}

	sources := make([]Source, len(used))
	for i, c := range used {
		sources[i] = Source{
			Filename: c.Filename,
			Project:  c.Project,
			Text:     c.Text,
		}
	}

	return Answer{
		Answer:  strings.TrimSpace(text),
		Sources: sources,
	}, nil
}

// buildPrompt concatenates candidate texts up to the context budget and
// returns the prompt plus the candidates that made it in.
func (s *Synthesizer) buildPrompt(query string, candidates []Candidate) (string, []Candidate) {
	var b strings.Builder
	var used []Candidate
	remaining := s.maxContextChars

	for _, c := range candidates {
		text := c.Text
		if len(text) > remaining {
			if remaining <= 0 {
				break
			}
			text = text[:remaining]
		}
		fmt.Fprintf(&b, "[%s] %s\n\n", c.Filename, text)
		used = append(used, c)
		remaining -= len(text)
		if remaining <= 0 {
			break
		}
	}

	prompt := fmt.Sprintf(
		"You are a corporate knowledge assistant. Answer the question using only the context below. "+
			"If the context does not contain the answer, say so.\n\nContext:\n%s\nQuestion: %s\n\nAnswer:",
		b.String(), query,
	)
	return prompt, used
}
