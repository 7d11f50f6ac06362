package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/UkralStul/oraculum-service/internal/domain"
	"github.com/UkralStul/oraculum-service/internal/storage"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Store реализует интерфейс Storage с использованием PostgreSQL.
type Store struct {
	db *gorm.DB
}

var _ storage.Storage = (*Store)(nil)

// New создает новый экземпляр хранилища PostgreSQL.
func New(dsn string, logLevel logger.LogLevel) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Выполняем миграцию схемы
	if err := db.AutoMigrate(
		&domain.Profile{},
		&domain.Post{},
		&domain.Answer{},
		&domain.Reply{},
		&domain.PostVote{},
		&domain.Notification{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close закрывает пул соединений.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// invalidTextRepresentation - SQLSTATE для значения, не приводимого к типу колонки (например, uuid).
const invalidTextRepresentation = "22P02"

// notFound переводит gorm.ErrRecordNotFound и некорректный uuid в доменную ошибку.
func notFound(err error, what, id string) error {
	var pgErr *pgconn.PgError
	if errors.Is(err, gorm.ErrRecordNotFound) ||
		(errors.As(err, &pgErr) && pgErr.Code == invalidTextRepresentation) {
		return fmt.Errorf("%s %s: %w", what, id, domain.ErrNotFound)
	}
	return err
}

// checkID отсекает строки, которые не могут быть id поста, ответа или уведомления.
// Такой объект заведомо не существует.
func checkID(what, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%s %s: %w", what, id, domain.ErrNotFound)
	}
	return nil
}

// === Profile Methods ===

func (s *Store) GetProfile(ctx context.Context, id string) (*domain.Profile, error) {
	var profile domain.Profile
	if err := s.db.WithContext(ctx).First(&profile, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "profile", id)
	}
	return &profile, nil
}

func (s *Store) UpsertProfile(ctx context.Context, profile *domain.Profile) (*domain.Profile, error) {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username", "role", "interests", "avatar_url", "updated_at"}),
	}).Create(profile).Error
	if err != nil {
		return nil, err
	}
	return profile, nil
}

func (s *Store) UpdateProfile(ctx context.Context, id string, upd storage.ProfileUpdate) (*domain.Profile, error) {
	var profile domain.Profile
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&profile, "id = ?", id).Error; err != nil {
			return notFound(err, "profile", id)
		}
		return tx.Model(&profile).Updates(map[string]any{
			"username":   upd.Username,
			"role":       upd.Role,
			"interests":  pq.StringArray(upd.Interests),
			"updated_at": gorm.Expr("now()"),
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return s.GetProfile(ctx, id)
}

func (s *Store) FindProfilesByInterest(ctx context.Context, category, excludeID string, limit int) ([]*domain.Profile, error) {
	var profiles []*domain.Profile
	err := s.db.WithContext(ctx).
		Where("? = ANY(interests)", category).
		Where("id <> ?", excludeID).
		Order("id").
		Limit(limit).
		Find(&profiles).Error
	return profiles, err
}

func (s *Store) DebitReputation(ctx context.Context, id string, cost int) (int, error) {
	var profile domain.Profile
	// Условный UPDATE сворачивает проверку баланса и списание в одну операцию
	res := s.db.WithContext(ctx).
		Model(&profile).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "reputation_points"}}}).
		Where("id = ? AND reputation_points >= ?", id, cost).
		Update("reputation_points", gorm.Expr("reputation_points - ?", cost))
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		current, err := s.GetProfile(ctx, id)
		if err != nil {
			return 0, err
		}
		return current.ReputationPoints, domain.ErrInsufficientBalance
	}
	return profile.ReputationPoints, nil
}

// === Dataloader Method ===

func (s *Store) GetProfilesByIDs(ctx context.Context, ids []string) (map[string]*domain.Profile, error) {
	var profiles []*domain.Profile
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&profiles).Error; err != nil {
		return nil, err
	}
	result := make(map[string]*domain.Profile, len(profiles))
	for _, p := range profiles {
		result[p.ID] = p
	}
	return result, nil
}

// === Post Methods ===

func (s *Store) CreatePost(ctx context.Context, post *domain.Post) (*domain.Post, error) {
	if err := s.db.WithContext(ctx).Create(post).Error; err != nil {
		return nil, err
	}
	// GORM автоматически заполнит ID и CreatedAt после создания
	return post, nil
}

func (s *Store) GetPostByID(ctx context.Context, id string) (*domain.Post, error) {
	if err := checkID("post", id); err != nil {
		return nil, err
	}
	var post domain.Post
	if err := s.db.WithContext(ctx).First(&post, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "post", id)
	}
	return &post, nil
}

func (s *Store) GetPosts(ctx context.Context, limit, offset int) ([]*domain.Post, error) {
	posts := []*domain.Post{}
	query := s.db.WithContext(ctx).Order("created_at DESC").Offset(offset)
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&posts).Error
	return posts, err
}

func (s *Store) SearchPosts(ctx context.Context, query string) ([]*domain.Post, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return []*domain.Post{}, nil
	}
	like := "%" + escapeLike(q) + "%"

	posts := []*domain.Post{}
	err := s.db.WithContext(ctx).
		Where("title ILIKE @q OR context ILIKE @q OR category ILIKE @q OR author ILIKE @q OR lower(@raw) = ANY(SELECT lower(t) FROM unnest(tags) AS t)",
			map[string]any{"q": like, "raw": q}).
		Order("created_at DESC").
		Find(&posts).Error
	return posts, err
}

func (s *Store) GetTrendingPosts(ctx context.Context, limit int) ([]*domain.Post, error) {
	posts := []*domain.Post{}
	err := s.db.WithContext(ctx).Order("upvotes DESC, created_at DESC").Limit(limit).Find(&posts).Error
	return posts, err
}

func (s *Store) GetPostsByCategories(ctx context.Context, categories []string, limit int) ([]*domain.Post, error) {
	posts := []*domain.Post{}
	err := s.db.WithContext(ctx).
		Where("category IN ?", categories).
		Order("created_at DESC").
		Limit(limit).
		Find(&posts).Error
	return posts, err
}

// === Answer Methods ===

func (s *Store) CreateAnswer(ctx context.Context, answer *domain.Answer) (*domain.Answer, error) {
	if err := checkID("post", answer.PostID); err != nil {
		return nil, err
	}
	// Создание ответа и инкремент счетчика поста в одной транзакции
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.Post{}).
			Where("id = ?", answer.PostID).
			Update("answers_count", gorm.Expr("answers_count + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("post with id %s: %w", answer.PostID, domain.ErrNotFound)
		}
		return tx.Create(answer).Error
	})
	if err != nil {
		return nil, err
	}
	answer.Username = s.usernameOf(ctx, answer.UserID)
	return answer, nil
}

func (s *Store) GetAnswerByID(ctx context.Context, id string) (*domain.Answer, error) {
	if err := checkID("answer", id); err != nil {
		return nil, err
	}
	var answer domain.Answer
	if err := s.db.WithContext(ctx).First(&answer, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "answer", id)
	}
	answer.Username = s.usernameOf(ctx, answer.UserID)
	return &answer, nil
}

func (s *Store) GetAnswersByPostID(ctx context.Context, postID string) ([]*domain.Answer, error) {
	answers := []*domain.Answer{}
	if checkID("post", postID) != nil {
		return answers, nil
	}
	err := s.db.WithContext(ctx).
		Select("answers.*, profiles.username AS username").
		Joins("LEFT JOIN profiles ON profiles.id = answers.user_id").
		Where("answers.post_id = ?", postID).
		Order("answers.created_at DESC").
		Find(&answers).Error
	return answers, err
}

func (s *Store) CreateReply(ctx context.Context, reply *domain.Reply) (*domain.Reply, error) {
	if err := checkID("answer", reply.AnswerID); err != nil {
		return nil, err
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&domain.Answer{}).Where("id = ?", reply.AnswerID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return fmt.Errorf("answer with id %s: %w", reply.AnswerID, domain.ErrNotFound)
		}
		return tx.Create(reply).Error
	})
	if err != nil {
		return nil, err
	}
	reply.Username = s.usernameOf(ctx, reply.UserID)
	return reply, nil
}

func (s *Store) GetRepliesByAnswerID(ctx context.Context, answerID string) ([]*domain.Reply, error) {
	replies := []*domain.Reply{}
	if checkID("answer", answerID) != nil {
		return replies, nil
	}
	err := s.db.WithContext(ctx).
		Select("answer_replies.*, profiles.username AS username").
		Joins("LEFT JOIN profiles ON profiles.id = answer_replies.user_id").
		Where("answer_replies.answer_id = ?", answerID).
		Order("answer_replies.created_at ASC").
		Find(&replies).Error
	return replies, err
}

// === Vote Methods ===

func (s *Store) ApplyVote(ctx context.Context, postID, userID string, vote domain.VoteType) (*domain.VoteResult, error) {
	if err := checkID("post", postID); err != nil {
		return nil, err
	}
	var (
		post    domain.Post
		current *domain.VoteType
	)
	// Строка поста блокируется до конца транзакции: голоса одного поста сериализуются
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&post, "id = ?", postID).Error; err != nil {
			return notFound(err, "post", postID)
		}

		var existing domain.PostVote
		err := tx.Where("post_id = ? AND user_id = ?", postID, userID).First(&existing).Error
		hasVote := err == nil
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		up, down := 0, 0
		switch {
		case hasVote && existing.VoteType == vote:
			if err := tx.Delete(&existing).Error; err != nil {
				return err
			}
			up, down = delta(vote, -1)
		case hasVote:
			if err := tx.Model(&existing).Update("vote_type", vote).Error; err != nil {
				return err
			}
			u1, d1 := delta(existing.VoteType, -1)
			u2, d2 := delta(vote, +1)
			up, down = u1+u2, d1+d2
			current = &vote
		default:
			if err := tx.Create(&domain.PostVote{PostID: postID, UserID: userID, VoteType: vote}).Error; err != nil {
				return err
			}
			up, down = delta(vote, +1)
			current = &vote
		}

		return tx.Model(&post).
			Clauses(clause.Returning{Columns: []clause.Column{{Name: "upvotes"}, {Name: "downvotes"}}}).
			Updates(map[string]any{
				"upvotes":   gorm.Expr("upvotes + ?", up),
				"downvotes": gorm.Expr("downvotes + ?", down),
			}).Error
	})
	if err != nil {
		return nil, err
	}

	return &domain.VoteResult{
		Upvotes:   post.Upvotes,
		Downvotes: post.Downvotes,
		UserVote:  current,
	}, nil
}

func (s *Store) GetVote(ctx context.Context, postID, userID string) (*domain.VoteType, error) {
	if checkID("post", postID) != nil {
		return nil, nil
	}
	var v domain.PostVote
	err := s.db.WithContext(ctx).Where("post_id = ? AND user_id = ?", postID, userID).First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v.VoteType, nil
}

// === Notification Methods ===

func (s *Store) CreateNotifications(ctx context.Context, notifications []*domain.Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Create(&notifications).Error
}

func (s *Store) GetNotificationsByUserID(ctx context.Context, userID string, limit int) ([]*domain.Notification, error) {
	notifications := []*domain.Notification{}
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&notifications).Error
	return notifications, err
}

func (s *Store) MarkNotificationsRead(ctx context.Context, userID, notificationID string) (int64, error) {
	query := s.db.WithContext(ctx).Model(&domain.Notification{}).Where("user_id = ?", userID)
	if notificationID != "" {
		if checkID("notification", notificationID) != nil {
			return 0, nil
		}
		query = query.Where("id = ?", notificationID)
	} else {
		query = query.Where("is_read = ?", false)
	}
	res := query.Update("is_read", true)
	return res.RowsAffected, res.Error
}

// === helpers ===

func (s *Store) usernameOf(ctx context.Context, userID string) string {
	var p domain.Profile
	if err := s.db.WithContext(ctx).Select("username").First(&p, "id = ?", userID).Error; err != nil {
		return ""
	}
	return p.Username
}

func delta(v domain.VoteType, d int) (up, down int) {
	if v == domain.VoteUp {
		return d, 0
	}
	return 0, d
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
