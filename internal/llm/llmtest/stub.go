// Package llmtest provides scripted completion clients for tests.
package llmtest

import (
	"context"
	"errors"
	"sync"

	"kool/internal/llm"
)

// Reply is one scripted completion outcome.
type Reply struct {
	Text string
	Err  error
}

// StubClient returns scripted replies in order and records every request.
// Once the script is exhausted the last reply repeats.
type StubClient struct {
	mu      sync.Mutex
	replies []Reply
	calls   []llm.CompletionRequest
}

func NewStubClient(replies ...Reply) *StubClient {
	return &StubClient{replies: replies}
}

// Text is a shorthand for a stub that always answers text.
func Text(text string) *StubClient {
	return NewStubClient(Reply{Text: text})
}

// Failing is a shorthand for a stub that always fails with err.
func Failing(err error) *StubClient {
	return NewStubClient(Reply{Err: err})
}

func (s *StubClient) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(s.replies) == 0 {
		return nil, errors.New("llmtest: no scripted reply")
	}
	idx := len(s.calls) - 1
	if idx >= len(s.replies) {
		idx = len(s.replies) - 1
	}
	r := s.replies[idx]
	if r.Err != nil {
		return nil, r.Err
	}
	model := req.Model
	if model == "" {
		model = "stub"
	}
	return &llm.CompletionResponse{Text: r.Text, Model: model}, nil
}

// Calls returns a copy of the recorded requests.
func (s *StubClient) Calls() []llm.CompletionRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]llm.CompletionRequest, len(s.calls))
	copy(out, s.calls)
	return out
}
