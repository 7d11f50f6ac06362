package moderation

import (
	"context"
	"fmt"
	"log/slog"
)

// RiskThreshold - порог суммарного риска, выше которого контент помечается.
const RiskThreshold = 0.45

// UnavailableMessage возвращается, когда классификатор недоступен и проверка пропущена.
const UnavailableMessage = "Moderation service unavailable, skipping strict checks."

// Decision - решение модерации для публикации. Reason - причина пометки
// либо пояснение о пропуске проверки.
type Decision struct {
	Flagged bool
	Reason  string
	Verdict *Verdict
}

// Gate применяет политику к вердикту классификатора.
type Gate struct {
	classifier Classifier
}

// NewGate создает Gate.
func NewGate(c Classifier) *Gate {
	return &Gate{classifier: c}
}

// Classifier возвращает классификатор, с которым работает Gate.
func (g *Gate) Classifier() Classifier { return g.classifier }

// Evaluate классифицирует "title\n\nbody". Отказ классификатора не блокирует
// публикацию (fail-open).
func (g *Gate) Evaluate(ctx context.Context, title, body string) Decision {
	verdict, err := g.classifier.Classify(ctx, title+"\n\n"+body)
	if err != nil {
		slog.Error("[Moderation] analysis failed, publishing without strict checks",
			slog.Any("error", err))
		return Decision{Flagged: false, Reason: UnavailableMessage}
	}

	if !ShouldFlag(verdict) {
		return Decision{Flagged: false, Verdict: verdict}
	}

	reason := fmt.Sprintf("Comment flagged under '%s' → %s", verdict.PrimaryClassification, verdict.Summary)
	slog.Info("[Moderation] content flagged",
		slog.String("primary_classification", verdict.PrimaryClassification),
		slog.String("recommended_action", verdict.RecommendedAction),
		slog.Float64("risk_score", RiskScore(verdict.Classifications)))
	return Decision{Flagged: true, Reason: reason, Verdict: verdict}
}

// RiskScore - сумма пяти категорий; obscene в сумму не входит.
func RiskScore(s Scores) float64 {
	return s.Toxic + s.SevereToxic + s.Threat + s.IdentityAttack + s.SexualExplicit
}

// ShouldFlag: действие flag/remove или риск выше порога.
func ShouldFlag(v *Verdict) bool {
	return v.RecommendedAction == ActionFlag ||
		v.RecommendedAction == ActionRemove ||
		RiskScore(v.Classifications) > RiskThreshold
}
