package content

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/abhisek/zapquiz/internal/quiz"
)

// Payload is the decoded content of one question.
type Payload interface {
	// Check reports whether answer is correct by exact rules.
	Check(answer string) bool

	// Solution renders the correct answer for display after a mistake.
	Solution() string
}

// MultipleChoicePayload is answered by option text or 1-based option index.
type MultipleChoicePayload struct {
	Prompt  string   `json:"prompt"`
	Options []string `json:"options"`
	Answer  string   `json:"answer"`
}

func (p *MultipleChoicePayload) Check(answer string) bool {
	answer = strings.TrimSpace(answer)
	if idx, err := strconv.Atoi(answer); err == nil && idx >= 1 && idx <= len(p.Options) {
		answer = p.Options[idx-1]
	}
	return sameText(answer, p.Answer, false)
}

func (p *MultipleChoicePayload) Solution() string { return p.Answer }

// FillInBlankPayload accepts any of Answers.
type FillInBlankPayload struct {
	Prompt        string   `json:"prompt"`
	Answers       []string `json:"answers"`
	CaseSensitive bool     `json:"case_sensitive,omitempty"`
}

func (p *FillInBlankPayload) Check(answer string) bool {
	for _, a := range p.Answers {
		if sameText(answer, a, p.CaseSensitive) {
			return true
		}
	}
	return false
}

func (p *FillInBlankPayload) Solution() string { return p.Answers[0] }

// OrderWordsPayload is answered with the words in order, either as a
// sentence or as a JSON array.
type OrderWordsPayload struct {
	Prompt string   `json:"prompt,omitempty"`
	Words  []string `json:"words"`
	Answer []string `json:"answer"`
}

func (p *OrderWordsPayload) Check(answer string) bool {
	var words []string
	if err := json.Unmarshal([]byte(answer), &words); err == nil {
		answer = strings.Join(words, " ")
	}
	return sameText(trimSentence(answer), trimSentence(strings.Join(p.Answer, " ")), false)
}

func (p *OrderWordsPayload) Solution() string { return strings.Join(p.Answer, " ") }

// TrueFalsePayload is answered with true/false or yes/no.
type TrueFalsePayload struct {
	Statement string `json:"statement"`
	Answer    bool   `json:"answer"`
}

func (p *TrueFalsePayload) Check(answer string) bool {
	v, ok := parseBool(answer)
	return ok && v == p.Answer
}

func (p *TrueFalsePayload) Solution() string { return strconv.FormatBool(p.Answer) }

// MatchPair is one left/right association of a matching question.
type MatchPair struct {
	Left  string `json:"left"`
	Right string `json:"right"`
}

// MatchingPayload is answered with a JSON object mapping every left item to
// its right item.
type MatchingPayload struct {
	Prompt string      `json:"prompt,omitempty"`
	Pairs  []MatchPair `json:"pairs"`
}

func (p *MatchingPayload) Check(answer string) bool {
	var given map[string]string
	if err := json.Unmarshal([]byte(answer), &given); err != nil {
		return false
	}
	if len(given) != len(p.Pairs) {
		return false
	}
	normalized := make(map[string]string, len(given))
	for k, v := range given {
		normalized[normalizeText(k, false)] = v
	}
	for _, pair := range p.Pairs {
		v, ok := normalized[normalizeText(pair.Left, false)]
		if !ok || !sameText(v, pair.Right, false) {
			return false
		}
	}
	return true
}

func (p *MatchingPayload) Solution() string {
	parts := make([]string, len(p.Pairs))
	for i, pair := range p.Pairs {
		parts[i] = pair.Left + " = " + pair.Right
	}
	return strings.Join(parts, "; ")
}

// DecodePayload validates raw against the schema of t and decodes it.
func DecodePayload(t quiz.QuestionType, raw json.RawMessage) (Payload, error) {
	if err := ValidateContent(t, raw); err != nil {
		return nil, err
	}

	var p Payload
	switch t {
	case quiz.MultipleChoice:
		p = &MultipleChoicePayload{}
	case quiz.FillInBlank:
		p = &FillInBlankPayload{}
	case quiz.OrderWords:
		p = &OrderWordsPayload{}
	case quiz.TrueFalse:
		p = &TrueFalsePayload{}
	case quiz.Matching:
		p = &MatchingPayload{}
	}
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, &InvalidContentError{Type: string(t), Err: err}
	}
	if mc, ok := p.(*MultipleChoicePayload); ok && !mc.hasAnswer() {
		return nil, &InvalidContentError{Type: string(t), Err: fmt.Errorf("answer %q is not one of the options", mc.Answer)}
	}
	return p, nil
}

func (p *MultipleChoicePayload) hasAnswer() bool {
	for _, o := range p.Options {
		if sameText(o, p.Answer, false) {
			return true
		}
	}
	return false
}

// ValidateContent checks raw against the JSON schema of question type t.
func ValidateContent(t quiz.QuestionType, raw json.RawMessage) error {
	if !t.Valid() {
		return &InvalidContentError{Type: string(t), Err: fmt.Errorf("unknown question type")}
	}

	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return &InvalidContentError{Type: string(t), Err: fmt.Errorf("invalid JSON: %w", err)}
	}

	compiled, err := compiledSchema(t)
	if err != nil {
		return &InvalidContentError{Type: string(t), Err: err}
	}
	if err := compiled.Validate(parsed); err != nil {
		return &InvalidContentError{Type: string(t), Err: err}
	}
	return nil
}

var schemaCache sync.Map // map[quiz.QuestionType]*jsonschema.Schema

func compiledSchema(t quiz.QuestionType) (*jsonschema.Schema, error) {
	if cached, ok := schemaCache.Load(t); ok {
		return cached.(*jsonschema.Schema), nil
	}

	// The compiler wants plain decoded JSON values.
	defBytes, err := json.Marshal(payloadSchemas[t])
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	var def any
	if err := json.Unmarshal(defBytes, &def); err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	url := fmt.Sprintf("schema://question/%s.json", t)
	if err := c.AddResource(url, def); err != nil {
		return nil, fmt.Errorf("add resource: %w", err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}
	schemaCache.Store(t, compiled)
	return compiled, nil
}

var (
	nonEmptyString = map[string]any{"type": "string", "minLength": 1}
	stringList     = func(min int) map[string]any {
		return map[string]any{"type": "array", "items": nonEmptyString, "minItems": min}
	}
)

var payloadSchemas = map[quiz.QuestionType]map[string]any{
	quiz.MultipleChoice: {
		"type": "object",
		"properties": map[string]any{
			"prompt":  nonEmptyString,
			"options": stringList(2),
			"answer":  nonEmptyString,
		},
		"required": []any{"prompt", "options", "answer"},
	},
	quiz.FillInBlank: {
		"type": "object",
		"properties": map[string]any{
			"prompt":         nonEmptyString,
			"answers":        stringList(1),
			"case_sensitive": map[string]any{"type": "boolean"},
		},
		"required": []any{"prompt", "answers"},
	},
	quiz.OrderWords: {
		"type": "object",
		"properties": map[string]any{
			"prompt": map[string]any{"type": "string"},
			"words":  stringList(2),
			"answer": stringList(2),
		},
		"required": []any{"words", "answer"},
	},
	quiz.TrueFalse: {
		"type": "object",
		"properties": map[string]any{
			"statement": nonEmptyString,
			"answer":    map[string]any{"type": "boolean"},
		},
		"required": []any{"statement", "answer"},
	},
	quiz.Matching: {
		"type": "object",
		"properties": map[string]any{
			"prompt": map[string]any{"type": "string"},
			"pairs": map[string]any{
				"type":     "array",
				"minItems": 2,
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"left":  nonEmptyString,
						"right": nonEmptyString,
					},
					"required": []any{"left", "right"},
				},
			},
		},
		"required": []any{"pairs"},
	},
}

// normalizeText trims, collapses inner whitespace and, unless
// caseSensitive, lowercases.
func normalizeText(s string, caseSensitive bool) string {
	s = strings.Join(strings.Fields(s), " ")
	if !caseSensitive {
		s = strings.ToLower(s)
	}
	return s
}

func sameText(a, b string, caseSensitive bool) bool {
	na := normalizeText(a, caseSensitive)
	return na != "" && na == normalizeText(b, caseSensitive)
}

func trimSentence(s string) string {
	return strings.TrimRight(strings.TrimSpace(s), ".!?")
}

func parseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "t", "yes", "y", "1":
		return true, true
	case "false", "f", "no", "n", "0":
		return false, true
	}
	return false, false
}
