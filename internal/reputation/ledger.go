package reputation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/UkralStul/oraculum-service/internal/domain"
)

// DefaultCost - стоимость одного вопроса AI-ассистенту.
const DefaultCost = 10

// Repository - доступ к балансу репутации.
type Repository interface {
	GetProfile(ctx context.Context, id string) (*domain.Profile, error)
	DebitReputation(ctx context.Context, id string, cost int) (int, error)
}

// Ledger проверяет и списывает репутацию. Баланс никогда не уходит в минус.
type Ledger struct {
	repo Repository
	cost int
}

// NewLedger создает Ledger с фиксированной стоимостью.
func NewLedger(repo Repository, cost int) *Ledger {
	return &Ledger{repo: repo, cost: cost}
}

// Cost возвращает стоимость одного использования.
func (l *Ledger) Cost() int { return l.cost }

// CanSpend проверяет баланс до дорогого вызова.
// Возвращает domain.ErrNotFound, если профиля нет.
func (l *Ledger) CanSpend(ctx context.Context, userID string) error {
	profile, err := l.repo.GetProfile(ctx, userID)
	if err != nil {
		return err
	}
	if profile.ReputationPoints < l.cost {
		return fmt.Errorf("%w: have %d, need %d", domain.ErrInsufficientBalance, profile.ReputationPoints, l.cost)
	}
	return nil
}

// Spend атомарно списывает стоимость. Если баланс успел упасть ниже
// стоимости, списание не происходит и возвращается ErrInsufficientBalance.
func (l *Ledger) Spend(ctx context.Context, userID string) (int, error) {
	balance, err := l.repo.DebitReputation(ctx, userID, l.cost)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientBalance) || errors.Is(err, domain.ErrNotFound) {
			return balance, err
		}
		return 0, fmt.Errorf("%w: debit reputation: %w", domain.ErrPersistence, err)
	}
	slog.Info("[Ledger] reputation debited",
		slog.String("user_id", userID),
		slog.Int("cost", l.cost),
		slog.Int("balance", balance))
	return balance, nil
}
