package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/UkralStul/oraculum-service/internal/domain"
	"github.com/UkralStul/oraculum-service/internal/llm"
	"github.com/UkralStul/oraculum-service/internal/moderation"
	"github.com/UkralStul/oraculum-service/internal/ratelimit"
	"github.com/UkralStul/oraculum-service/internal/reputation"
)

// BlockedMessage - ответ, когда вопрос не прошел модерацию.
const BlockedMessage = "Your question was blocked by moderation."

// ErrBlocked - вопрос классифицирован как toxic.
var ErrBlocked = errors.New(BlockedMessage)

// Service - AI-ассистент с оплатой репутацией.
// В отличие от публикации, недоступная модерация здесь блокирует запрос.
type Service struct {
	ledger     *reputation.Ledger
	classifier moderation.Classifier
	llm        llm.Completer
	limiter    ratelimit.Limiter
}

// New создает ассистента. limiter может быть nil.
func New(ledger *reputation.Ledger, classifier moderation.Classifier, completer llm.Completer, limiter ratelimit.Limiter) *Service {
	if limiter == nil {
		limiter = ratelimit.Noop{}
	}
	return &Service{ledger: ledger, classifier: classifier, llm: completer, limiter: limiter}
}

// Answer - результат обращения.
type Answer struct {
	Reply   string `json:"reply"`
	Balance int    `json:"balance"`
}

// Ask: лимит -> баланс -> модерация -> модель -> списание.
func (s *Service) Ask(ctx context.Context, userID, message string) (*Answer, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(message) == "" {
		return nil, domain.InvalidInput("Invalid request")
	}

	allowed, err := s.limiter.Allow(ctx, userID)
	if err != nil {
		// Ограничитель недоступен - не блокируем, баланс все равно проверяется
		slog.Warn("[Assistant] rate limiter unavailable", slog.Any("error", err))
	} else if !allowed {
		return nil, domain.ErrRateLimited
	}

	// Проверка баланса до дорогих вызовов
	if err := s.ledger.CanSpend(ctx, userID); err != nil {
		return nil, err
	}

	verdict, err := s.classifier.Classify(ctx, message)
	if err != nil {
		slog.Error("[Assistant] moderation unavailable", slog.Any("error", err))
		return nil, fmt.Errorf("%w: moderation: %w", domain.ErrUpstreamUnavailable, err)
	}
	if verdict.PrimaryClassification == "toxic" {
		slog.Info("[Assistant] question blocked by moderation", slog.String("user_id", userID))
		return nil, ErrBlocked
	}

	reply, err := s.llm.Complete(ctx, buildPrompt(message))
	if err != nil {
		slog.Error("[Assistant] AI assistant failed", slog.Any("error", err))
		return nil, fmt.Errorf("%w: assistant: %w", domain.ErrUpstreamUnavailable, err)
	}

	balance, err := s.ledger.Spend(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Answer{Reply: reply, Balance: balance}, nil
}

func buildPrompt(question string) string {
	return `
You are Oraculum AI, an academic assistant.
Answer clearly, concisely, and academically.
If the question is unclear, ask for clarification.

Question:
` + question + "\n"
}
