package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/UkralStul/oraculum-service/internal/domain"
	"github.com/UkralStul/oraculum-service/internal/storage"
)

// Длины усечения текста в уведомлениях, по типу события.
const (
	postTitleLimit    = 30
	answerTitleLimit  = 25
	replyContentLimit = 40

	// MaxInterestRecipients - предел получателей уведомления о новом посте.
	MaxInterestRecipients = 50
)

// Repository - данные, нужные диспетчеру.
type Repository interface {
	FindProfilesByInterest(ctx context.Context, category, excludeID string, limit int) ([]*domain.Profile, error)
	GetPostByID(ctx context.Context, id string) (*domain.Post, error)
	GetAnswerByID(ctx context.Context, id string) (*domain.Answer, error)
	CreateNotifications(ctx context.Context, notifications []*domain.Notification) error
}

var _ Repository = (storage.Storage)(nil)

// Dispatcher создает уведомления после успешной записи контента.
// Ошибки только логируются и никогда не возвращаются вызывающему.
type Dispatcher struct {
	repo Repository
	hub  *Hub
}

// NewDispatcher создает диспетчер. hub может быть nil.
func NewDispatcher(repo Repository, hub *Hub) *Dispatcher {
	return &Dispatcher{repo: repo, hub: hub}
}

// NotifyOnPost уведомляет пользователей, у которых категория поста в интересах.
func (d *Dispatcher) NotifyOnPost(ctx context.Context, post *domain.Post) {
	if post.Category == "" {
		return
	}
	targets, err := d.repo.FindProfilesByInterest(ctx, post.Category, post.UserID, MaxInterestRecipients)
	if err != nil {
		slog.Error("[Dispatcher] Notification dispatch failed but post was created",
			slog.String("post_id", post.ID), slog.Any("error", err))
		return
	}

	batch := make([]*domain.Notification, 0, len(targets))
	for _, target := range targets {
		if target.ID == post.UserID {
			continue
		}
		batch = append(batch, &domain.Notification{
			UserID:   target.ID,
			ActorID:  post.UserID,
			Category: domain.NotificationCourseActivity,
			Content:  fmt.Sprintf("New post in %s: \"%s...\"", post.Category, Truncate(post.Title, postTitleLimit)),
			Link:     PostLink(post.ID),
		})
	}
	d.insert(ctx, batch)
}

// NotifyOnAnswer уведомляет владельца поста. post может быть nil - тогда он загружается.
func (d *Dispatcher) NotifyOnAnswer(ctx context.Context, answer *domain.Answer, post *domain.Post) {
	if post == nil {
		var err error
		if post, err = d.repo.GetPostByID(ctx, answer.PostID); err != nil {
			slog.Error("[Dispatcher] post lookup failed", slog.String("post_id", answer.PostID), slog.Any("error", err))
			return
		}
	}
	if post.UserID == answer.UserID {
		return
	}
	d.insert(ctx, []*domain.Notification{{
		UserID:   post.UserID,
		ActorID:  answer.UserID,
		Category: domain.NotificationComment,
		Content:  fmt.Sprintf("answered your post: \"%s...\"", Truncate(post.Title, answerTitleLimit)),
		Link:     PostLink(post.ID),
	}})
}

// NotifyOnReply уведомляет автора ответа. answer может быть nil - тогда он загружается.
func (d *Dispatcher) NotifyOnReply(ctx context.Context, reply *domain.Reply, answer *domain.Answer) {
	if answer == nil {
		var err error
		if answer, err = d.repo.GetAnswerByID(ctx, reply.AnswerID); err != nil {
			slog.Error("[Dispatcher] answer lookup failed", slog.String("answer_id", reply.AnswerID), slog.Any("error", err))
			return
		}
	}
	if answer.UserID == reply.UserID {
		return
	}
	d.insert(ctx, []*domain.Notification{{
		UserID:   answer.UserID,
		ActorID:  reply.UserID,
		Category: domain.NotificationComment,
		Content:  fmt.Sprintf("replied to your comment: \"%s...\"", Truncate(reply.Content, replyContentLimit)),
		Link:     PostLink(answer.PostID),
	}})
}

func (d *Dispatcher) insert(ctx context.Context, batch []*domain.Notification) {
	// Самоуведомления отбрасываются всегда
	filtered := batch[:0]
	for _, n := range batch {
		if n.UserID != n.ActorID {
			filtered = append(filtered, n)
		}
	}
	if len(filtered) == 0 {
		return
	}

	if err := d.repo.CreateNotifications(ctx, filtered); err != nil {
		slog.Error("[Dispatcher] failed to insert notifications",
			slog.Int("count", len(filtered)), slog.Any("error", err))
		return
	}
	slog.Debug("[Dispatcher] notifications created", slog.Int("count", len(filtered)))

	if d.hub != nil {
		for _, n := range filtered {
			d.hub.Publish(n)
		}
	}
}

// Truncate обрезает строку до limit символов (рун).
func Truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}

// PostLink - ссылка на страницу поста.
func PostLink(postID string) string {
	return "/dashboard/view/" + postID
}
