package feed

import (
	"context"
	"strings"

	"github.com/UkralStul/oraculum-service/internal/domain"
	"github.com/UkralStul/oraculum-service/internal/storage"
)

// Типы рекомендаций.
const (
	Trending      = "trending"
	InterestBased = "interest_based"

	trendingLimit = 10
	interestLimit = 20
)

// Repository - источники данных ленты.
type Repository interface {
	GetProfile(ctx context.Context, id string) (*domain.Profile, error)
	SearchPosts(ctx context.Context, query string) ([]*domain.Post, error)
	GetTrendingPosts(ctx context.Context, limit int) ([]*domain.Post, error)
	GetPostsByCategories(ctx context.Context, categories []string, limit int) ([]*domain.Post, error)
}

var _ Repository = (storage.Storage)(nil)

// Service - поиск и рекомендации постов.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Recommendation - подборка постов и способ, которым она построена.
type Recommendation struct {
	Type  string         `json:"type"`
	Posts []*domain.Post `json:"posts"`
}

// Search возвращает посты, где запрос встречается в заголовке, тексте,
// категории, имени автора или тегах. Пустой запрос - пустой результат.
func (s *Service) Search(ctx context.Context, query string) ([]*domain.Post, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return []*domain.Post{}, nil
	}
	return s.repo.SearchPosts(ctx, q)
}

// Recommend: без интересов - самые популярные посты, иначе свежие посты
// из категорий, входящих в интересы.
func (s *Service) Recommend(ctx context.Context, userID string) (*Recommendation, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, domain.InvalidInput("User ID missing")
	}
	profile, err := s.repo.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	if len(profile.Interests) == 0 {
		posts, err := s.repo.GetTrendingPosts(ctx, trendingLimit)
		if err != nil {
			return nil, err
		}
		return &Recommendation{Type: Trending, Posts: posts}, nil
	}

	posts, err := s.repo.GetPostsByCategories(ctx, profile.Interests, interestLimit)
	if err != nil {
		return nil, err
	}
	return &Recommendation{Type: InterestBased, Posts: posts}, nil
}
