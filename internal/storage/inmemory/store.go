package inmemory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/UkralStul/oraculum-service/internal/domain"
	"github.com/UkralStul/oraculum-service/internal/storage"
	"github.com/google/uuid"
)

// Store реализует интерфейс Storage в памяти.
// Все объекты отдаются наружу копиями, чтобы счетчики менялись только под мьютексом.
type Store struct {
	mu              sync.RWMutex
	profiles        map[string]*domain.Profile
	posts           map[string]*domain.Post
	answers         map[string]*domain.Answer
	replies         map[string]*domain.Reply
	votes           map[string]*domain.PostVote // map[postID+"/"+userID]
	notifications   map[string]*domain.Notification
	answersByPost   map[string][]string // map[postID][]answerID
	repliesByAnswer map[string][]string // map[answerID][]replyID
	notifsByUser    map[string][]string // map[userID][]notificationID

	now func() time.Time
}

// New создает новый экземпляр in-memory хранилища.
func New() *Store {
	return &Store{
		profiles:        make(map[string]*domain.Profile),
		posts:           make(map[string]*domain.Post),
		answers:         make(map[string]*domain.Answer),
		replies:         make(map[string]*domain.Reply),
		votes:           make(map[string]*domain.PostVote),
		notifications:   make(map[string]*domain.Notification),
		answersByPost:   make(map[string][]string),
		repliesByAnswer: make(map[string][]string),
		notifsByUser:    make(map[string][]string),
		now:             func() time.Time { return time.Now().UTC() },
	}
}

var _ storage.Storage = (*Store)(nil)

// === Profile Methods ===

func (s *Store) GetProfile(ctx context.Context, id string) (*domain.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[id]
	if !ok {
		return nil, fmt.Errorf("profile %s: %w", id, domain.ErrNotFound)
	}
	return cloneProfile(p), nil
}

func (s *Store) UpsertProfile(ctx context.Context, profile *domain.Profile) (*domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if profile.ID == "" {
		profile.ID = uuid.NewString()
	}
	p := cloneProfile(profile)
	if existing, ok := s.profiles[p.ID]; ok {
		p.CreatedAt = existing.CreatedAt
	} else if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	p.UpdatedAt = s.now()
	s.profiles[p.ID] = p
	return cloneProfile(p), nil
}

func (s *Store) UpdateProfile(ctx context.Context, id string, upd storage.ProfileUpdate) (*domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[id]
	if !ok {
		return nil, fmt.Errorf("profile %s: %w", id, domain.ErrNotFound)
	}
	p.Username = upd.Username
	p.Role = upd.Role
	p.Interests = append([]string(nil), upd.Interests...)
	p.UpdatedAt = s.now()
	return cloneProfile(p), nil
}

func (s *Store) FindProfilesByInterest(ctx context.Context, category, excludeID string, limit int) ([]*domain.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*domain.Profile, 0)
	for _, p := range s.profiles {
		if p.ID == excludeID || !p.HasInterest(category) {
			continue
		}
		matched = append(matched, p)
	}
	// Порядок по ID, чтобы ограничение limit было детерминированным
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}

	result := make([]*domain.Profile, len(matched))
	for i, p := range matched {
		result[i] = cloneProfile(p)
	}
	return result, nil
}

func (s *Store) DebitReputation(ctx context.Context, id string, cost int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[id]
	if !ok {
		return 0, fmt.Errorf("profile %s: %w", id, domain.ErrNotFound)
	}
	if p.ReputationPoints < cost {
		return p.ReputationPoints, domain.ErrInsufficientBalance
	}
	p.ReputationPoints -= cost
	return p.ReputationPoints, nil
}

// === Dataloader Methods ===

func (s *Store) GetProfilesByIDs(ctx context.Context, ids []string) (map[string]*domain.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make(map[string]*domain.Profile, len(ids))
	for _, id := range ids {
		if p, ok := s.profiles[id]; ok {
			results[id] = cloneProfile(p)
		}
	}
	return results, nil
}

// === Post Methods ===

func (s *Store) CreatePost(ctx context.Context, post *domain.Post) (*domain.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := clonePost(post)
	p.ID = uuid.NewString()
	p.CreatedAt = s.now()
	s.posts[p.ID] = p
	return clonePost(p), nil
}

func (s *Store) GetPostByID(ctx context.Context, id string) (*domain.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	post, ok := s.posts[id]
	if !ok {
		return nil, fmt.Errorf("post with id %s: %w", id, domain.ErrNotFound)
	}
	return clonePost(post), nil
}

func (s *Store) GetPosts(ctx context.Context, limit, offset int) ([]*domain.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	allPosts := s.sortedPosts(func(*domain.Post) bool { return true }, byRecency)

	start := offset
	if start >= len(allPosts) {
		return []*domain.Post{}, nil
	}
	end := start + limit
	if limit <= 0 || end > len(allPosts) {
		end = len(allPosts)
	}
	return allPosts[start:end], nil
}

func (s *Store) SearchPosts(ctx context.Context, query string) ([]*domain.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return []*domain.Post{}, nil
	}
	return s.sortedPosts(func(p *domain.Post) bool {
		if containsFold(p.Title, q) || containsFold(p.Context, q) ||
			containsFold(p.Category, q) || containsFold(p.Author, q) {
			return true
		}
		for _, t := range p.Tags {
			if strings.ToLower(t) == q {
				return true
			}
		}
		return false
	}, byRecency), nil
}

func (s *Store) GetTrendingPosts(ctx context.Context, limit int) ([]*domain.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	posts := s.sortedPosts(func(*domain.Post) bool { return true }, func(a, b *domain.Post) bool {
		if a.Upvotes != b.Upvotes {
			return a.Upvotes > b.Upvotes
		}
		return byRecency(a, b)
	})
	return truncate(posts, limit), nil
}

func (s *Store) GetPostsByCategories(ctx context.Context, categories []string, limit int) ([]*domain.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set := make(map[string]struct{}, len(categories))
	for _, c := range categories {
		set[c] = struct{}{}
	}
	posts := s.sortedPosts(func(p *domain.Post) bool {
		_, ok := set[p.Category]
		return ok
	}, byRecency)
	return truncate(posts, limit), nil
}

// sortedPosts отбирает посты по фильтру и возвращает отсортированные копии.
// Вызывать под s.mu.
func (s *Store) sortedPosts(keep func(*domain.Post) bool, less func(a, b *domain.Post) bool) []*domain.Post {
	result := make([]*domain.Post, 0, len(s.posts))
	for _, p := range s.posts {
		if keep(p) {
			result = append(result, clonePost(p))
		}
	}
	sort.Slice(result, func(i, j int) bool { return less(result[i], result[j]) })
	return result
}

// === Answer Methods ===

func (s *Store) CreateAnswer(ctx context.Context, answer *domain.Answer) (*domain.Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	post, ok := s.posts[answer.PostID]
	if !ok {
		return nil, fmt.Errorf("post with id %s: %w", answer.PostID, domain.ErrNotFound)
	}

	a := *answer
	a.ID = uuid.NewString()
	a.CreatedAt = s.now()
	a.Username = s.usernameOf(a.UserID)
	s.answers[a.ID] = &a
	s.answersByPost[a.PostID] = append(s.answersByPost[a.PostID], a.ID)
	post.AnswersCount++

	out := a
	return &out, nil
}

func (s *Store) GetAnswerByID(ctx context.Context, id string) (*domain.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.answers[id]
	if !ok {
		return nil, fmt.Errorf("answer with id %s: %w", id, domain.ErrNotFound)
	}
	out := *a
	out.Username = s.usernameOf(a.UserID)
	return &out, nil
}

func (s *Store) GetAnswersByPostID(ctx context.Context, postID string) ([]*domain.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.answersByPost[postID]
	result := make([]*domain.Answer, 0, len(ids))
	for _, id := range ids {
		if a, ok := s.answers[id]; ok {
			out := *a
			out.Username = s.usernameOf(a.UserID)
			result = append(result, &out)
		}
	}
	// Новые ответы первыми
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (s *Store) CreateReply(ctx context.Context, reply *domain.Reply) (*domain.Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.answers[reply.AnswerID]; !ok {
		return nil, fmt.Errorf("answer with id %s: %w", reply.AnswerID, domain.ErrNotFound)
	}

	r := *reply
	r.ID = uuid.NewString()
	r.CreatedAt = s.now()
	r.Username = s.usernameOf(r.UserID)
	s.replies[r.ID] = &r
	s.repliesByAnswer[r.AnswerID] = append(s.repliesByAnswer[r.AnswerID], r.ID)

	out := r
	return &out, nil
}

func (s *Store) GetRepliesByAnswerID(ctx context.Context, answerID string) ([]*domain.Reply, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.repliesByAnswer[answerID]
	result := make([]*domain.Reply, 0, len(ids))
	for _, id := range ids {
		if r, ok := s.replies[id]; ok {
			out := *r
			out.Username = s.usernameOf(r.UserID)
			result = append(result, &out)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// === Vote Methods ===

func (s *Store) ApplyVote(ctx context.Context, postID, userID string, vote domain.VoteType) (*domain.VoteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	post, ok := s.posts[postID]
	if !ok {
		return nil, fmt.Errorf("post with id %s: %w", postID, domain.ErrNotFound)
	}

	key := voteKey(postID, userID)
	existing, hasVote := s.votes[key]
	var current *domain.VoteType

	switch {
	case hasVote && existing.VoteType == vote:
		// Повторный голос в том же направлении снимает голос
		delete(s.votes, key)
		adjust(post, vote, -1)
	case hasVote:
		adjust(post, existing.VoteType, -1)
		adjust(post, vote, +1)
		existing.VoteType = vote
		current = &vote
	default:
		s.votes[key] = &domain.PostVote{
			ID:        uuid.NewString(),
			PostID:    postID,
			UserID:    userID,
			VoteType:  vote,
			CreatedAt: s.now(),
		}
		adjust(post, vote, +1)
		current = &vote
	}

	return &domain.VoteResult{
		Upvotes:   post.Upvotes,
		Downvotes: post.Downvotes,
		UserVote:  current,
	}, nil
}

func (s *Store) GetVote(ctx context.Context, postID, userID string) (*domain.VoteType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.votes[voteKey(postID, userID)]
	if !ok {
		return nil, nil
	}
	vt := v.VoteType
	return &vt, nil
}

// === Notification Methods ===

func (s *Store) CreateNotifications(ctx context.Context, notifications []*domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, n := range notifications {
		n.ID = uuid.NewString()
		n.CreatedAt = s.now()
		stored := *n
		s.notifications[n.ID] = &stored
		s.notifsByUser[n.UserID] = append(s.notifsByUser[n.UserID], n.ID)
	}
	return nil
}

func (s *Store) GetNotificationsByUserID(ctx context.Context, userID string, limit int) ([]*domain.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.notifsByUser[userID]
	result := make([]*domain.Notification, 0, len(ids))
	// Идем с конца: последние добавленные - самые свежие
	for i := len(ids) - 1; i >= 0; i-- {
		if n, ok := s.notifications[ids[i]]; ok {
			out := *n
			result = append(result, &out)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return truncate(result, limit), nil
}

func (s *Store) MarkNotificationsRead(ctx context.Context, userID, notificationID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var updated int64
	for _, id := range s.notifsByUser[userID] {
		n := s.notifications[id]
		if notificationID != "" && id != notificationID {
			continue
		}
		if notificationID == "" && n.IsRead {
			continue
		}
		n.IsRead = true
		updated++
	}
	return updated, nil
}

// === helpers ===

func (s *Store) usernameOf(userID string) string {
	if p, ok := s.profiles[userID]; ok {
		return p.Username
	}
	return ""
}

func adjust(p *domain.Post, v domain.VoteType, delta int) {
	switch v {
	case domain.VoteUp:
		p.Upvotes += delta
	case domain.VoteDown:
		p.Downvotes += delta
	}
}

func voteKey(postID, userID string) string {
	return postID + "/" + userID
}

func byRecency(a, b *domain.Post) bool {
	return a.CreatedAt.After(b.CreatedAt)
}

func containsFold(s, lowerSubstr string) bool {
	return strings.Contains(strings.ToLower(s), lowerSubstr)
}

func truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

func cloneProfile(p *domain.Profile) *domain.Profile {
	out := *p
	out.Interests = append([]string(nil), p.Interests...)
	return &out
}

func clonePost(p *domain.Post) *domain.Post {
	out := *p
	out.Tags = append([]string(nil), p.Tags...)
	return &out
}
