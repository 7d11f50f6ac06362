package moderation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/UkralStul/oraculum-service/internal/llm"
)

// Рекомендованные действия модели.
const (
	ActionApprove = "approve"
	ActionReview  = "review"
	ActionFlag    = "flag"
	ActionRemove  = "remove"
)

// Scores - оценки риска по шести категориям, каждая в [0,1].
type Scores struct {
	Toxic          float64 `json:"toxic"`
	SevereToxic    float64 `json:"severe_toxic"`
	Threat         float64 `json:"threat"`
	IdentityAttack float64 `json:"identity_attack"`
	SexualExplicit float64 `json:"sexual_explicit"`
	Obscene        float64 `json:"obscene"`
}

// Verdict - результат одной классификации. Не сохраняется.
type Verdict struct {
	Summary               string         `json:"summary"`
	PrimaryClassification string         `json:"primary_classification"`
	Classifications       Scores         `json:"classifications"`
	RecommendedAction     string         `json:"recommended_action"`
	Metadata              map[string]any `json:"metadata,omitempty"`
}

// ClassificationError - классификатор недоступен или вернул неразборчивый ответ.
// Это отказ доступности, а не решение модерации.
type ClassificationError struct {
	Err error
}

func (e *ClassificationError) Error() string {
	return "classification failed: " + e.Err.Error()
}

func (e *ClassificationError) Unwrap() error { return e.Err }

// Classifier оценивает текст.
type Classifier interface {
	Classify(ctx context.Context, text string) (*Verdict, error)
}

// LLMClassifier просит языковую модель вернуть вердикт в виде JSON.
type LLMClassifier struct {
	llm llm.Completer
}

// NewLLMClassifier создает классификатор поверх Completer.
func NewLLMClassifier(c llm.Completer) *LLMClassifier {
	return &LLMClassifier{llm: c}
}

// Classify делает ровно один вызов модели.
func (c *LLMClassifier) Classify(ctx context.Context, text string) (*Verdict, error) {
	reply, err := c.llm.Complete(ctx, buildPrompt(text))
	if err != nil {
		return nil, &ClassificationError{Err: err}
	}
	verdict, err := ParseVerdict(reply)
	if err != nil {
		return nil, &ClassificationError{Err: err}
	}
	return verdict, nil
}

var fencedJSON = regexp.MustCompile("(?s)```json(.*?)```")

// ParseVerdict достает JSON из блока ```json ... ```; если блока нет,
// разбирает весь ответ целиком.
func ParseVerdict(reply string) (*Verdict, error) {
	payload := strings.TrimSpace(reply)
	if m := fencedJSON.FindStringSubmatch(reply); m != nil {
		payload = strings.TrimSpace(m[1])
	}

	var raw struct {
		Verdict
		Classifications *Scores `json:"classifications"`
	}
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return nil, fmt.Errorf("parse verdict: %w", err)
	}
	if raw.Classifications == nil {
		return nil, errors.New("parse verdict: missing classifications")
	}

	v := raw.Verdict
	v.Classifications = *raw.Classifications

	switch v.RecommendedAction {
	case ActionApprove, ActionReview, ActionFlag, ActionRemove:
	default:
		return nil, fmt.Errorf("parse verdict: unknown recommended_action %q", v.RecommendedAction)
	}
	for name, score := range v.Classifications.byName() {
		if score < 0 || score > 1 {
			return nil, fmt.Errorf("parse verdict: %s score %v out of range", name, score)
		}
	}
	return &v, nil
}

func (s Scores) byName() map[string]float64 {
	return map[string]float64{
		"toxic":           s.Toxic,
		"severe_toxic":    s.SevereToxic,
		"threat":          s.Threat,
		"identity_attack": s.IdentityAttack,
		"sexual_explicit": s.SexualExplicit,
		"obscene":         s.Obscene,
	}
}

func buildPrompt(text string) string {
	return `
You are an advanced toxicity, safety, and harm classifier.

Analyze the following text and return ONLY a JSON object inside a code block ` + "```json ... ```" + `.

TEXT TO ANALYZE:
"` + text + `"

Your JSON MUST follow EXACTLY this structure:

` + "```json" + `
{
  "summary": "Short explanation of what the text contains.",
  "primary_classification": "one of: toxic, severe_toxic, threat, identity_attack, sexual_explicit, obscene, neutral",
  "classifications": {
    "toxic": number (0-1),
    "severe_toxic": number (0-1),
    "threat": number (0-1),
    "identity_attack": number (0-1),
    "sexual_explicit": number (0-1),
    "obscene": number (0-1)
  },
  "recommended_action": "approve | review | flag | remove",
  "metadata": {
    "confidence": number,
    "notes": "Optional system notes"
  }
}
` + "```" + `

IMPORTANT RULES:
- Use realistic numeric probabilities (0-1).
- If the text is harmless or academic, mark as "neutral".
- "remove" only for highly unsafe content.
- ALWAYS return valid JSON inside a code block.
`
}
