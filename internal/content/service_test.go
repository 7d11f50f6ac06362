package content

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/UkralStul/oraculum-service/internal/domain"
	"github.com/UkralStul/oraculum-service/internal/events"
	"github.com/UkralStul/oraculum-service/internal/moderation"
	"github.com/UkralStul/oraculum-service/internal/notify"
	"github.com/UkralStul/oraculum-service/internal/storage/inmemory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubModerator возвращает фиксированное решение и считает вызовы
type stubModerator struct {
	decision moderation.Decision
	calls    int
}

func (m *stubModerator) Evaluate(context.Context, string, string) moderation.Decision {
	m.calls++
	return m.decision
}

// failingClassifier имитирует недоступную модель
type failingClassifier struct{}

func (failingClassifier) Classify(context.Context, string) (*moderation.Verdict, error) {
	return nil, &moderation.ClassificationError{Err: errors.New("connection refused")}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func newTestService(t *testing.T, mod Moderator) (*Service, *inmemory.Store) {
	store := inmemory.New()
	ctx := context.Background()
	for _, p := range []*domain.Profile{
		{ID: "U", Username: "alice", Interests: []string{"AI"}},
		{ID: "V", Username: "bob", Interests: []string{"AI", "Math"}},
		{ID: "W", Username: "carol", Interests: []string{"Math"}},
	} {
		_, err := store.UpsertProfile(ctx, p)
		require.NoError(t, err)
	}
	return NewService(store, mod, notify.NewDispatcher(store, nil)), store
}

func TestService_CreatePost_EndToEnd(t *testing.T) {
	pub := &recordingPublisher{}
	svc, store := newTestService(t, &stubModerator{})
	svc.events = pub
	ctx := context.Background()

	post, err := svc.CreatePost(ctx, NewPost{UserID: "U", Title: "X", Context: "harmless text", Category: "AI"})
	require.NoError(t, err)
	svc.Wait()

	assert.NotEmpty(t, post.ID)
	assert.Equal(t, 0, post.Upvotes)
	assert.Equal(t, 0, post.Downvotes)
	assert.Equal(t, 0, post.AnswersCount)

	bob, err := store.GetNotificationsByUserID(ctx, "V", 20)
	require.NoError(t, err)
	require.Len(t, bob, 1)
	assert.Equal(t, domain.NotificationCourseActivity, bob[0].Category)

	for _, id := range []string{"U", "W"} {
		list, err := store.GetNotificationsByUserID(ctx, id, 20)
		require.NoError(t, err)
		assert.Empty(t, list, id)
	}

	require.Len(t, pub.events, 1)
	assert.Equal(t, events.PostCreated, pub.events[0].Type)
	assert.Equal(t, post.ID, pub.events[0].ContentID)
}

func TestService_CreatePost_Flagged(t *testing.T) {
	mod := &stubModerator{decision: moderation.Decision{Flagged: true, Reason: "Comment flagged under 'toxic' → insults"}}
	svc, store := newTestService(t, mod)
	ctx := context.Background()

	_, err := svc.CreatePost(ctx, NewPost{UserID: "U", Title: "X", Context: "nasty", Category: "AI"})
	var rej *domain.RejectionError
	require.ErrorAs(t, err, &rej)
	assert.ErrorIs(t, err, domain.ErrRejected)
	assert.Equal(t, "Comment flagged under 'toxic' → insults", rej.Reason)
	svc.Wait()

	posts, err := store.GetPosts(ctx, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, posts)
	list, err := store.GetNotificationsByUserID(ctx, "V", 20)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestService_CreatePost_FailOpenWhenClassifierDown(t *testing.T) {
	svc, store := newTestService(t, moderation.NewGate(failingClassifier{}))
	ctx := context.Background()

	post, err := svc.CreatePost(ctx, NewPost{UserID: "U", Title: "X", Context: "text"})
	require.NoError(t, err)
	svc.Wait()

	got, err := store.GetPostByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, "X", got.Title)
}

func TestService_MissingFieldsSkipModeration(t *testing.T) {
	mod := &stubModerator{}
	svc, _ := newTestService(t, mod)
	ctx := context.Background()

	_, err := svc.CreatePost(ctx, NewPost{UserID: "U", Title: "  ", Context: "body"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = svc.CreateAnswer(ctx, NewAnswer{PostID: "p", UserID: "U"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = svc.CreateReply(ctx, NewReply{UserID: "U", Content: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	assert.Zero(t, mod.calls)
}

func TestService_CreateAnswer_NotifiesOwner(t *testing.T) {
	svc, store := newTestService(t, &stubModerator{})
	ctx := context.Background()

	post, err := svc.CreatePost(ctx, NewPost{UserID: "U", Title: "Why is the sky blue?", Context: "physics"})
	require.NoError(t, err)

	answer, err := svc.CreateAnswer(ctx, NewAnswer{PostID: post.ID, UserID: "V", Content: "Rayleigh scattering"})
	require.NoError(t, err)
	assert.Equal(t, "bob", answer.Username)
	svc.Wait()

	list, err := store.GetNotificationsByUserID(ctx, "U", 20)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, `answered your post: "Why is the sky blue?..."`, list[0].Content)

	updated, err := store.GetPostByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.AnswersCount)
}

func TestService_CreateAnswer_SelfAnswerNotNotified(t *testing.T) {
	svc, store := newTestService(t, &stubModerator{})
	ctx := context.Background()

	post, err := svc.CreatePost(ctx, NewPost{UserID: "U", Title: "Q", Context: "c"})
	require.NoError(t, err)
	_, err = svc.CreateAnswer(ctx, NewAnswer{PostID: post.ID, UserID: "U", Content: "answering myself"})
	require.NoError(t, err)
	svc.Wait()

	list, err := store.GetNotificationsByUserID(ctx, "U", 20)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestService_CreateAnswer_UnknownPost(t *testing.T) {
	svc, _ := newTestService(t, &stubModerator{})
	_, err := svc.CreateAnswer(context.Background(), NewAnswer{PostID: "missing", UserID: "U", Content: "x"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NotErrorIs(t, err, domain.ErrPersistence)
}

func TestService_CreateReply_NotifiesAnswerAuthor(t *testing.T) {
	svc, store := newTestService(t, &stubModerator{})
	ctx := context.Background()

	post, err := svc.CreatePost(ctx, NewPost{UserID: "U", Title: "Q", Context: "c"})
	require.NoError(t, err)
	answer, err := svc.CreateAnswer(ctx, NewAnswer{PostID: post.ID, UserID: "V", Content: "A"})
	require.NoError(t, err)
	_, err = svc.CreateReply(ctx, NewReply{AnswerID: answer.ID, UserID: "W", Content: "Thanks, that helped"})
	require.NoError(t, err)
	svc.Wait()

	list, err := store.GetNotificationsByUserID(ctx, "V", 20)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, `replied to your comment: "Thanks, that helped..."`, list[0].Content)
	assert.Equal(t, "/dashboard/view/"+post.ID, list[0].Link)
}

func TestService_CreateReply_Flagged(t *testing.T) {
	mod := &stubModerator{decision: moderation.Decision{Flagged: true, Reason: "r"}}
	svc, store := newTestService(t, mod)
	ctx := context.Background()

	_, err := svc.CreateReply(ctx, NewReply{AnswerID: "a", UserID: "W", Content: "bad"})
	assert.ErrorIs(t, err, domain.ErrRejected)
	replies, err := store.GetRepliesByAnswerID(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, replies)
}

type brokenRepo struct {
	*inmemory.Store
}

func (brokenRepo) CreatePost(context.Context, *domain.Post) (*domain.Post, error) {
	return nil, errors.New("db is down")
}

func TestService_CreatePost_PersistenceError(t *testing.T) {
	store := inmemory.New()
	svc := NewService(brokenRepo{store}, &stubModerator{}, notify.NewDispatcher(store, nil), WithSyncDispatch())

	_, err := svc.CreatePost(context.Background(), NewPost{UserID: "U", Title: "X", Context: "c"})
	assert.ErrorIs(t, err, domain.ErrPersistence)
}
