package llm

import (
	"context"
	"encoding/json"
	"sync"
)

// Reply is one scripted Fake result.
type Reply struct {
	Content json.RawMessage
	Usage   Usage
	Err     error
}

// Fake is an offline Provider. It plays scripted replies in order and
// then repeats Fallback; without a Fallback it reports the provider as
// unavailable. It records every request.
type Fake struct {
	mu       sync.Mutex
	script   []Reply
	fallback *Reply
	requests []Request
}

// NewFake creates a Fake that plays script.
func NewFake(script ...Reply) *Fake {
	return &Fake{script: script}
}

// WithFallback sets the reply used once the script is exhausted.
func (f *Fake) WithFallback(r Reply) *Fake {
	f.mu.Lock()
	f.fallback = &r
	f.mu.Unlock()
	return f
}

func (f *Fake) ModelID() string { return "fake" }

func (f *Fake) Generate(_ context.Context, req Request) (*Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)

	var r Reply
	switch {
	case len(f.script) > 0:
		r, f.script = f.script[0], f.script[1:]
	case f.fallback != nil:
		r = *f.fallback
	default:
		return nil, &Error{Kind: KindUnavailable, Provider: "fake"}
	}
	if r.Err != nil {
		return nil, r.Err
	}
	return finish("fake", req, &Response{Content: r.Content, Usage: r.Usage, Model: "fake", Stop: StopEnd})
}

// Requests returns a copy of the recorded requests.
func (f *Fake) Requests() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Request(nil), f.requests...)
}
