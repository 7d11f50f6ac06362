package moderation

import (
	"context"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerClassifier оборачивает Classifier в circuit breaker: после серии
// отказов вызовы модели не выполняются, пока не пройдет cooldown.
// Открытый breaker - это тоже ClassificationError.
type BreakerClassifier struct {
	inner Classifier
	cb    *gobreaker.CircuitBreaker
}

// NewBreakerClassifier создает обертку. failures - число подряд идущих отказов
// до размыкания, cooldown - время в разомкнутом состоянии.
func NewBreakerClassifier(inner Classifier, failures uint32, cooldown time.Duration) *BreakerClassifier {
	if failures == 0 {
		failures = 5
	}
	settings := gobreaker.Settings{
		Name:        "moderation-classifier",
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("[Moderation] circuit breaker state changed",
				slog.String("name", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	}
	return &BreakerClassifier{inner: inner, cb: gobreaker.NewCircuitBreaker(settings)}
}

func (b *BreakerClassifier) Classify(ctx context.Context, text string) (*Verdict, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.Classify(ctx, text)
	})
	if err != nil {
		if _, ok := err.(*ClassificationError); ok {
			return nil, err
		}
		return nil, &ClassificationError{Err: err}
	}
	return res.(*Verdict), nil
}
