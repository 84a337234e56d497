package content

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"text/template"
	"time"

	"github.com/abhisek/zapquiz/internal/llm"
)

// JudgeConfig tunes LLM answer judging.
type JudgeConfig struct {
	MaxTokens int `mapstructure:"max_tokens"`
	// MinConfidence is the confidence an "equivalent" verdict needs.
	MinConfidence float64 `mapstructure:"min_confidence"`
	// Timeout bounds one judgement, retries included. Zero means no bound.
	Timeout time.Duration `mapstructure:"timeout"`
}

// DefaultJudgeConfig returns sensible defaults.
func DefaultJudgeConfig() JudgeConfig {
	return JudgeConfig{MaxTokens: 128, MinConfidence: 0.7, Timeout: 10 * time.Second}
}

// LLMJudge asks an LLM whether two answers are equivalent.
type LLMJudge struct {
	provider llm.Provider
	cfg      JudgeConfig
}

// NewLLMJudge creates an LLM-backed Judge.
func NewLLMJudge(provider llm.Provider, cfg JudgeConfig) *LLMJudge {
	return &LLMJudge{provider: provider, cfg: cfg}
}

type equivalenceOutput struct {
	Equivalent bool    `json:"equivalent"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// Equivalent implements Judge.
func (j *LLMJudge) Equivalent(ctx context.Context, req JudgeRequest) (bool, error) {
	ctx = llm.WithPurpose(ctx, llm.PurposeGrading)
	if j.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.cfg.Timeout)
		defer cancel()
	}

	var buf bytes.Buffer
	if err := equivalenceUserTemplate.Execute(&buf, req); err != nil {
		return false, fmt.Errorf("build judge prompt: %w", err)
	}

	resp, err := j.provider.Generate(ctx, llm.Request{
		System:    equivalenceSystemPrompt,
		Prompt:    buf.String(),
		Schema:    EquivalenceSchema,
		MaxTokens: j.cfg.MaxTokens,
	})
	if err != nil {
		return false, fmt.Errorf("LLM judge failed: %w", err)
	}

	var out equivalenceOutput
	if err := json.Unmarshal(resp.Content, &out); err != nil {
		return false, fmt.Errorf("failed to parse judge response: %w", err)
	}
	return out.Equivalent && out.Confidence >= j.cfg.MinConfidence, nil
}

// EquivalenceSchema defines the JSON schema for judge responses.
var EquivalenceSchema = &llm.Schema{
	Name:        "answer-equivalence",
	Description: "Whether a learner's answer means the same as an accepted answer",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"equivalent": map[string]any{
				"type":        "boolean",
				"description": "True when the learner's answer is an acceptable form of an accepted answer",
			},
			"confidence": map[string]any{
				"type":    "number",
				"minimum": 0.0,
				"maximum": 1.0,
			},
			"reasoning": map[string]any{
				"type":        "string",
				"description": "One sentence",
			},
		},
		"required":             []any{"equivalent", "confidence", "reasoning"},
		"additionalProperties": false,
	},
}

const equivalenceSystemPrompt = `You grade short fill-in-the-blank answers in a language learning quiz.

Instructions:
- Accept spelling variants, missing accents and harmless typos of an accepted answer.
- Reject answers with a different meaning, a different word, or the wrong grammatical form.
- Provide a confidence score (0.0-1.0).
- Keep reasoning to one sentence.`

var equivalenceUserTemplate = template.Must(template.New("equivalence").Parse(`Question: {{.Prompt}}
Accepted answers:
{{range .Expected}}- {{.}}
{{end}}Learner's answer: {{.Given}}`))
