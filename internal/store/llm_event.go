package store

import (
	"context"
	"fmt"
	"time"
)

// AppendLLMRequest records one LLM call for cost and latency tracking.
func (c *Conn) AppendLLMRequest(ctx context.Context, data LLMRequestEventData) error {
	seqNum, err := c.nextSequence(ctx)
	if err != nil {
		return err
	}

	query, args := c.builder().Insert("llm_events").
		Columns("sequence", "provider", "model", "purpose", "input_tokens",
			"output_tokens", "latency_ms", "success", "error_message", "created_at").
		Values(seqNum, data.Provider, data.Model, data.Purpose, data.InputTokens,
			data.OutputTokens, data.LatencyMs, data.Success, data.ErrorMessage, Millis(time.Now())).
		Query()
	if _, err := c.exec(ctx, query, args); err != nil {
		return fmt.Errorf("save LLM request event: %w", err)
	}
	return nil
}

var _ EventRepo = (*Conn)(nil)
