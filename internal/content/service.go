package content

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/UkralStul/oraculum-service/internal/domain"
	"github.com/UkralStul/oraculum-service/internal/events"
	"github.com/UkralStul/oraculum-service/internal/moderation"
)

// Repository - операции записи контента и голосов.
type Repository interface {
	CreatePost(ctx context.Context, post *domain.Post) (*domain.Post, error)
	CreateAnswer(ctx context.Context, answer *domain.Answer) (*domain.Answer, error)
	CreateReply(ctx context.Context, reply *domain.Reply) (*domain.Reply, error)
	ApplyVote(ctx context.Context, postID, userID string, vote domain.VoteType) (*domain.VoteResult, error)
	GetVote(ctx context.Context, postID, userID string) (*domain.VoteType, error)
}

// Moderator принимает решение о публикации текста.
type Moderator interface {
	Evaluate(ctx context.Context, title, body string) moderation.Decision
}

// Notifier рассылает уведомления о новом контенте.
type Notifier interface {
	NotifyOnPost(ctx context.Context, post *domain.Post)
	NotifyOnAnswer(ctx context.Context, answer *domain.Answer, post *domain.Post)
	NotifyOnReply(ctx context.Context, reply *domain.Reply, answer *domain.Answer)
}

// Service - путь записи контента: валидация, модерация, сохранение, уведомления.
// Идемпотентности нет: два одинаковых запроса создают две записи.
type Service struct {
	repo      Repository
	moderator Moderator
	notifier  Notifier
	events    events.Publisher
	async     bool
	wg        sync.WaitGroup
}

// Option настраивает Service.
type Option func(*Service)

// WithEvents подключает публикацию событий о созданном контенте.
func WithEvents(p events.Publisher) Option {
	return func(s *Service) { s.events = p }
}

// WithSyncDispatch выполняет рассылку в той же горутине (для тестов и CLI).
func WithSyncDispatch() Option {
	return func(s *Service) { s.async = false }
}

// NewService создает сервис записи контента.
func NewService(repo Repository, moderator Moderator, notifier Notifier, opts ...Option) *Service {
	s := &Service{
		repo:      repo,
		moderator: moderator,
		notifier:  notifier,
		events:    events.LogPublisher{},
		async:     true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewPost - поля нового поста.
type NewPost struct {
	UserID   string
	Title    string
	Context  string
	Author   string
	Category string
	Tags     []string
	ImageURL string
}

// NewAnswer - поля нового ответа.
type NewAnswer struct {
	PostID  string
	UserID  string
	Content string
}

// NewReply - поля нового ответа на ответ.
type NewReply struct {
	AnswerID string
	UserID   string
	Content  string
}

// CreatePost проверяет и публикует пост.
func (s *Service) CreatePost(ctx context.Context, in NewPost) (*domain.Post, error) {
	if blank(in.UserID) || blank(in.Title) || blank(in.Context) {
		return nil, domain.InvalidInput("Missing fields")
	}
	if err := s.moderate(ctx, in.Title, in.Context); err != nil {
		return nil, err
	}

	post, err := s.repo.CreatePost(ctx, &domain.Post{
		UserID:   in.UserID,
		Title:    in.Title,
		Context:  in.Context,
		Author:   in.Author,
		Category: in.Category,
		Tags:     in.Tags,
		ImageURL: in.ImageURL,
	})
	if err != nil {
		return nil, persistenceError("post", err)
	}

	slog.Info("[ContentService] post created", slog.String("post_id", post.ID), slog.String("user_id", post.UserID))
	s.afterWrite(ctx, events.Event{
		Type:      events.PostCreated,
		ContentID: post.ID,
		ActorID:   post.UserID,
		Category:  post.Category,
		CreatedAt: post.CreatedAt,
	}, func(ctx context.Context) {
		s.notifier.NotifyOnPost(ctx, post)
	})
	return post, nil
}

// CreateAnswer проверяет и публикует ответ на пост.
func (s *Service) CreateAnswer(ctx context.Context, in NewAnswer) (*domain.Answer, error) {
	if blank(in.PostID) || blank(in.UserID) || blank(in.Content) {
		return nil, domain.InvalidInput("Missing fields")
	}
	if err := s.moderate(ctx, "", in.Content); err != nil {
		return nil, err
	}

	answer, err := s.repo.CreateAnswer(ctx, &domain.Answer{
		PostID:  in.PostID,
		UserID:  in.UserID,
		Content: in.Content,
	})
	if err != nil {
		return nil, persistenceError("answer", err)
	}

	s.afterWrite(ctx, events.Event{
		Type:      events.AnswerCreated,
		ContentID: answer.ID,
		ParentID:  answer.PostID,
		ActorID:   answer.UserID,
		CreatedAt: answer.CreatedAt,
	}, func(ctx context.Context) {
		s.notifier.NotifyOnAnswer(ctx, answer, nil)
	})
	return answer, nil
}

// CreateReply проверяет и публикует ответ на ответ.
func (s *Service) CreateReply(ctx context.Context, in NewReply) (*domain.Reply, error) {
	if blank(in.AnswerID) || blank(in.UserID) || blank(in.Content) {
		return nil, domain.InvalidInput("Missing fields")
	}
	if err := s.moderate(ctx, "", in.Content); err != nil {
		return nil, err
	}

	reply, err := s.repo.CreateReply(ctx, &domain.Reply{
		AnswerID: in.AnswerID,
		UserID:   in.UserID,
		Content:  in.Content,
	})
	if err != nil {
		return nil, persistenceError("reply", err)
	}

	s.afterWrite(ctx, events.Event{
		Type:      events.ReplyCreated,
		ContentID: reply.ID,
		ParentID:  reply.AnswerID,
		ActorID:   reply.UserID,
		CreatedAt: reply.CreatedAt,
	}, func(ctx context.Context) {
		s.notifier.NotifyOnReply(ctx, reply, nil)
	})
	return reply, nil
}

// Wait дожидается завершения всех фоновых рассылок.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) moderate(ctx context.Context, title, body string) error {
	decision := s.moderator.Evaluate(ctx, title, body)
	if decision.Flagged {
		return &domain.RejectionError{Reason: decision.Reason}
	}
	return nil
}

// afterWrite запускает рассылку после того, как результат записи уже определен.
// Ошибки рассылки не влияют на ответ клиенту.
func (s *Service) afterWrite(ctx context.Context, e events.Event, notify func(context.Context)) {
	run := func(ctx context.Context) {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("[ContentService] dispatch panicked", slog.Any("panic", r))
			}
		}()
		notify(ctx)
		if err := s.events.Publish(ctx, e); err != nil {
			slog.Warn("[ContentService] failed to publish content event",
				slog.String("type", e.Type), slog.Any("error", err))
		}
	}

	// Запрос может завершиться раньше рассылки
	bg := context.WithoutCancel(ctx)
	if !s.async {
		run(bg)
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(bg, 30*time.Second)
		defer cancel()
		run(ctx)
	}()
}

func persistenceError(what string, err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return err
	}
	slog.Error("[ContentService] failed to persist "+what, slog.Any("error", err))
	return fmt.Errorf("%w: create %s: %w", domain.ErrPersistence, what, err)
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}
