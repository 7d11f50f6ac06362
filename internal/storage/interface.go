package storage

import (
	"context"

	"github.com/UkralStul/oraculum-service/internal/domain"
)

// ProfileRepository - операции над профилями пользователей.
type ProfileRepository interface {
	GetProfile(ctx context.Context, id string) (*domain.Profile, error)
	UpsertProfile(ctx context.Context, profile *domain.Profile) (*domain.Profile, error)
	UpdateProfile(ctx context.Context, id string, upd ProfileUpdate) (*domain.Profile, error)
	// FindProfilesByInterest возвращает профили, в интересах которых есть category,
	// кроме excludeID. Не больше limit записей.
	FindProfilesByInterest(ctx context.Context, category, excludeID string, limit int) ([]*domain.Profile, error)
	// DebitReputation атомарно списывает cost, только если баланс >= cost.
	// Возвращает новый баланс.
	DebitReputation(ctx context.Context, id string, cost int) (int, error)

	// Метод для Dataloader'а
	GetProfilesByIDs(ctx context.Context, ids []string) (map[string]*domain.Profile, error)
}

// ProfileUpdate - изменяемые пользователем поля профиля.
type ProfileUpdate struct {
	Username  string
	Role      string
	Interests []string
}

// PostRepository - посты, поиск и рекомендации.
type PostRepository interface {
	CreatePost(ctx context.Context, post *domain.Post) (*domain.Post, error)
	GetPostByID(ctx context.Context, id string) (*domain.Post, error)
	GetPosts(ctx context.Context, limit, offset int) ([]*domain.Post, error)

	// SearchPosts ищет подстроку без учета регистра в title, context, category,
	// author и точное (без учета регистра) совпадение тега.
	SearchPosts(ctx context.Context, query string) ([]*domain.Post, error)
	GetTrendingPosts(ctx context.Context, limit int) ([]*domain.Post, error)
	GetPostsByCategories(ctx context.Context, categories []string, limit int) ([]*domain.Post, error)
}

// AnswerRepository - ответы и ответы на ответы.
type AnswerRepository interface {
	// CreateAnswer сохраняет ответ и увеличивает answers_count поста.
	CreateAnswer(ctx context.Context, answer *domain.Answer) (*domain.Answer, error)
	GetAnswerByID(ctx context.Context, id string) (*domain.Answer, error)
	GetAnswersByPostID(ctx context.Context, postID string) ([]*domain.Answer, error)

	CreateReply(ctx context.Context, reply *domain.Reply) (*domain.Reply, error)
	GetRepliesByAnswerID(ctx context.Context, answerID string) ([]*domain.Reply, error)
}

// VoteRepository - голоса за посты.
type VoteRepository interface {
	// ApplyVote переключает голос и обновляет счетчики поста одной неделимой операцией.
	ApplyVote(ctx context.Context, postID, userID string, vote domain.VoteType) (*domain.VoteResult, error)
	// GetVote возвращает текущий голос пользователя или nil.
	GetVote(ctx context.Context, postID, userID string) (*domain.VoteType, error)
}

// NotificationRepository - хранилище уведомлений.
type NotificationRepository interface {
	CreateNotifications(ctx context.Context, notifications []*domain.Notification) error
	GetNotificationsByUserID(ctx context.Context, userID string, limit int) ([]*domain.Notification, error)
	// MarkNotificationsRead помечает прочитанным одно уведомление (notificationID != "")
	// или все непрочитанные уведомления пользователя.
	MarkNotificationsRead(ctx context.Context, userID, notificationID string) (int64, error)
}

// Storage определяет контракт для хранилищ.
type Storage interface {
	ProfileRepository
	PostRepository
	AnswerRepository
	VoteRepository
	NotificationRepository
}
