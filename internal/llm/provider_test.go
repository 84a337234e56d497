package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/zapquiz/internal/store"
)

func TestFake(t *testing.T) {
	f := NewFake(
		Reply{Content: json.RawMessage(`{"a":1}`), Usage: Usage{InputTokens: 10, OutputTokens: 5}},
		Reply{Err: &Error{Kind: KindRateLimited}},
	)
	ctx := context.Background()

	resp, err := f.Generate(ctx, Request{System: "sys", Prompt: "first"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(resp.Content))
	assert.Equal(t, 15, resp.Usage.Total())

	_, err = f.Generate(ctx, Request{Prompt: "second"})
	assert.True(t, IsKind(err, KindRateLimited))

	_, err = f.Generate(ctx, Request{Prompt: "third"})
	assert.True(t, IsKind(err, KindUnavailable), "an exhausted script without fallback is unavailable")

	f.WithFallback(Reply{Content: json.RawMessage(`{"b":2}`)})
	resp, err = f.Generate(ctx, Request{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"b":2}`, string(resp.Content))

	reqs := f.Requests()
	require.Len(t, reqs, 4)
	assert.Equal(t, "sys", reqs[0].System)
	assert.Equal(t, "second", reqs[1].Prompt)
}

func TestErrorMessage(t *testing.T) {
	err := &Error{Kind: KindRateLimited, Provider: "openai", Err: errors.New("429")}
	assert.Equal(t, "llm openai: rate limited: 429", err.Error())
	assert.Equal(t, "llm: unavailable", (&Error{}).Error())

	wrapped := errors.Join(errors.New("judge"), err)
	assert.True(t, IsKind(wrapped, KindRateLimited))
	assert.False(t, IsKind(wrapped, KindTruncated))
	assert.False(t, IsKind(errors.New("plain"), KindUnavailable))
}

func TestPurposeContext(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, "unknown", PurposeFrom(ctx))
	assert.Equal(t, PurposeGrading, PurposeFrom(WithPurpose(ctx, PurposeGrading)))
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"anthropic without key", Config{Provider: "anthropic"}, true},
		{"anthropic with key", Config{Provider: "anthropic", Anthropic: AnthropicConfig{APIKey: "sk-test"}}, false},
		{"openai without key", Config{Provider: "openai"}, true},
		{"openai with key", Config{Provider: "openai", OpenAI: OpenAIConfig{APIKey: "sk-test"}}, false},
		{"gemini without key", Config{Provider: "gemini"}, true},
		{"fake without reply", Config{Provider: "fake"}, false},
		{"fake with bad reply", Config{Provider: "fake", Fake: FakeConfig{Reply: "{nope"}}, true},
		{"disabled", Config{Provider: "none"}, false},
		{"unknown provider", Config{Provider: "unknown"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDiscoverKeys(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env")
	cfg := Config{Provider: "openai"}
	cfg.DiscoverKeys()
	assert.Equal(t, "sk-env", cfg.OpenAI.APIKey)

	cfg = Config{Provider: "openai", OpenAI: OpenAIConfig{APIKey: "sk-file"}}
	cfg.DiscoverKeys()
	assert.Equal(t, "sk-file", cfg.OpenAI.APIKey)
}

type recordingRepo struct {
	events []store.LLMRequestEventData
}

func (r *recordingRepo) AppendLLMRequest(_ context.Context, data store.LLMRequestEventData) error {
	r.events = append(r.events, data)
	return nil
}

func (r *recordingRepo) AppendSessionEvent(context.Context, store.SessionEventData) error {
	return nil
}

func quietLog() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestLoggingRecordsEvents(t *testing.T) {
	f := NewFake(
		Reply{Content: json.RawMessage(`{"equivalent":true}`), Usage: Usage{InputTokens: 7, OutputTokens: 3}},
		Reply{Err: &Error{Kind: KindUnavailable, Err: errors.New("down")}},
	)
	repo := &recordingRepo{}
	p := WithLogging(f, "fake", repo, quietLog())

	ctx := WithPurpose(context.Background(), PurposeGrading)
	_, err := p.Generate(ctx, Request{})
	require.NoError(t, err)
	_, err = p.Generate(ctx, Request{})
	require.Error(t, err)

	require.Len(t, repo.events, 2)
	first := repo.events[0]
	assert.True(t, first.Success)
	assert.Equal(t, 7, first.InputTokens)
	assert.Equal(t, PurposeGrading, first.Purpose)
	assert.Equal(t, "fake", first.Model)
	assert.False(t, repo.events[1].Success)
	assert.Contains(t, repo.events[1].ErrorMessage, "down")
}

func TestNewProvider(t *testing.T) {
	ctx := context.Background()

	p, err := NewProvider(ctx, DefaultConfig(), nil, nil)
	require.NoError(t, err)
	assert.Nil(t, p)

	_, err = NewProvider(ctx, Config{Provider: "anthropic"}, nil, nil)
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.Provider = "fake"
	cfg.Fake.Reply = `{"equivalent":true,"confidence":1,"reasoning":"ok"}`
	repo := &recordingRepo{}
	p, err = NewProvider(ctx, cfg, repo, quietLog())
	require.NoError(t, err)
	assert.Equal(t, "fake", p.ModelID())

	for range 2 {
		resp, err := p.Generate(ctx, Request{Prompt: "x"})
		require.NoError(t, err)
		assert.JSONEq(t, cfg.Fake.Reply, string(resp.Content))
	}
	assert.Len(t, repo.events, 2)
}
