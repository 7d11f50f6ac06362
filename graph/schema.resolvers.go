package graph

import (
	"context"
	"fmt"

	"github.com/99designs/gqlgen/graphql"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/UkralStul/oraculum-service/internal/auth"
	"github.com/UkralStul/oraculum-service/internal/dataloader"
	"github.com/UkralStul/oraculum-service/internal/domain"
)

const maxNotificationsLimit = 100

// === Notification Resolvers ===

// Actor резолвер для инициатора уведомления. Для списков использует Dataloader:
// все элементы списка резолвятся параллельно и попадают в одну пачку.
func (r *notificationResolver) Actor(ctx context.Context, obj *domain.Notification) (*domain.Actor, error) {
	var (
		profiles map[string]*domain.Profile
		err      error
	)
	// Подписка живет столько же, сколько соединение, и кеш лоадера в ней устареет
	loaders := dataloader.For(ctx)
	if loaders != nil && graphql.GetOperationContext(ctx).Operation.Operation != ast.Subscription {
		profiles, err = loaders.Profiles(ctx, []string{obj.ActorID})
	} else {
		profiles, err = r.Storage.GetProfilesByIDs(ctx, []string{obj.ActorID})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load actor: %w", err)
	}
	p, ok := profiles[obj.ActorID]
	if !ok {
		return nil, nil
	}
	return &domain.Actor{Username: p.Username, AvatarURL: p.AvatarURL}, nil
}

// === Mutation Resolvers ===

func (r *mutationResolver) MarkNotificationsRead(ctx context.Context, notificationID *string) (int64, error) {
	userID, err := auth.UserID(ctx)
	if err != nil {
		return 0, err
	}
	target := ""
	if notificationID != nil {
		target = *notificationID
	}
	return r.Storage.MarkNotificationsRead(ctx, userID, target)
}

// === Query Resolvers ===

func (r *queryResolver) Notifications(ctx context.Context, limit *int) ([]*domain.Notification, error) {
	userID, err := auth.UserID(ctx)
	if err != nil {
		return nil, err
	}
	l := 20 // Default limit from schema
	if limit != nil {
		l = *limit
	}
	if l < 1 || l > maxNotificationsLimit {
		return nil, domain.InvalidInput(fmt.Sprintf("limit must be between 1 and %d", maxNotificationsLimit))
	}
	return r.Storage.GetNotificationsByUserID(ctx, userID, l)
}

// === Subscription Resolvers ===

func (r *subscriptionResolver) NotificationAdded(ctx context.Context) (<-chan *domain.Notification, error) {
	userID, err := auth.UserID(ctx)
	if err != nil {
		return nil, err
	}

	ch, cancel := r.Hub.Subscribe(userID)

	// Горутина для очистки при отключении клиента
	go func() {
		<-ctx.Done()
		cancel()
	}()

	return ch, nil
}

// === Boilerplate: Связывание резолверов с интерфейсом исполнителя ===

// Mutation returns MutationResolver implementation.
func (r *Resolver) Mutation() MutationResolver { return &mutationResolver{r} }

// Notification returns NotificationResolver implementation.
func (r *Resolver) Notification() NotificationResolver { return &notificationResolver{r} }

// Query returns QueryResolver implementation.
func (r *Resolver) Query() QueryResolver { return &queryResolver{r} }

// Subscription returns SubscriptionResolver implementation.
func (r *Resolver) Subscription() SubscriptionResolver { return &subscriptionResolver{r} }

type mutationResolver struct{ *Resolver }
type notificationResolver struct{ *Resolver }
type queryResolver struct{ *Resolver }
type subscriptionResolver struct{ *Resolver }
