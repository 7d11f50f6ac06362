package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/UkralStul/oraculum-service/graph"
	"github.com/UkralStul/oraculum-service/internal/assistant"
	"github.com/UkralStul/oraculum-service/internal/auth"
	"github.com/UkralStul/oraculum-service/internal/content"
	"github.com/UkralStul/oraculum-service/internal/domain"
	"github.com/UkralStul/oraculum-service/internal/feed"
	"github.com/UkralStul/oraculum-service/internal/moderation"
	"github.com/UkralStul/oraculum-service/internal/notify"
	"github.com/UkralStul/oraculum-service/internal/reputation"
	"github.com/UkralStul/oraculum-service/internal/storage/inmemory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubClassifier отдает заданный вердикт или ошибку
type stubClassifier struct {
	mu      sync.Mutex
	verdict *moderation.Verdict
	err     error
}

func (c *stubClassifier) set(v *moderation.Verdict, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.verdict, c.err = v, err
}

func (c *stubClassifier) Classify(context.Context, string) (*moderation.Verdict, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.verdict, c.err
}

type stubLLM struct{ reply string }

func (l stubLLM) Complete(context.Context, string) (string, error) { return l.reply, nil }

var approve = &moderation.Verdict{
	Summary:               "fine",
	PrimaryClassification: "neutral",
	RecommendedAction:     moderation.ActionApprove,
}

type testEnv struct {
	server     *httptest.Server
	store      *inmemory.Store
	classifier *stubClassifier
}

func newTestEnv(t *testing.T) *testEnv {
	store := inmemory.New()
	ctx := context.Background()
	for _, p := range []*domain.Profile{
		{ID: "alice", Username: "alice", Interests: []string{"AI"}, ReputationPoints: 30},
		{ID: "bob", Username: "bob", Interests: []string{"AI"}, ReputationPoints: 5, AvatarURL: "https://img/bob.png"},
	} {
		_, err := store.UpsertProfile(ctx, p)
		require.NoError(t, err)
	}

	classifier := &stubClassifier{verdict: approve}
	hub := notify.NewHub()
	h := &Handler{
		Storage: store,
		Content: content.NewService(store, moderation.NewGate(classifier), notify.NewDispatcher(store, hub),
			content.WithSyncDispatch()),
		Feed:      feed.NewService(store),
		Assistant: assistant.New(reputation.NewLedger(store, reputation.DefaultCost), classifier, stubLLM{reply: "42"}, nil),
		Hub:       hub,
		Auth:      auth.New(""),
		GraphQL:   graph.NewServer(&graph.Resolver{Storage: store, Hub: hub}),
	}
	srv := httptest.NewServer(h.Router())
	t.Cleanup(srv.Close)
	return &testEnv{server: srv, store: store, classifier: classifier}
}

func (e *testEnv) do(t *testing.T, method, path, user string, body any) (int, map[string]json.RawMessage) {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(auth.DevUserHeader, user)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func decodeInto(t *testing.T, raw json.RawMessage, dst any) {
	require.NoError(t, json.Unmarshal(raw, dst))
}

// whole возвращает тело ответа целиком, для эндпоинтов без обертки data
func whole(t *testing.T, body map[string]json.RawMessage) json.RawMessage {
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	return raw
}

func errorCode(t *testing.T, body map[string]json.RawMessage) string {
	var code string
	decodeInto(t, body["error"], &code)
	return code
}

func TestCreatePost_Success(t *testing.T) {
	env := newTestEnv(t)
	status, body := env.do(t, http.MethodPost, "/api/posts/new", "alice", map[string]any{
		"title":    "What is a monad?",
		"context":  "Explain like I'm five",
		"category": "AI",
		"tags":     []string{"fp"},
	})
	require.Equal(t, http.StatusOK, status)

	var post domain.Post
	decodeInto(t, body["data"], &post)
	assert.NotEmpty(t, post.ID)
	assert.Equal(t, "alice", post.UserID)

	// bob интересуется AI и получает уведомление
	notes, err := env.store.GetNotificationsByUserID(context.Background(), "bob", 20)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, domain.NotificationCourseActivity, notes[0].Category)
}

func TestCreatePost_Flagged(t *testing.T) {
	env := newTestEnv(t)
	env.classifier.set(&moderation.Verdict{
		Summary:               "abusive",
		PrimaryClassification: "toxic",
		RecommendedAction:     moderation.ActionRemove,
		Classifications:       moderation.Scores{Toxic: 0.9},
	}, nil)

	status, body := env.do(t, http.MethodPost, "/api/posts/new", "alice", map[string]any{
		"title": "t", "context": "c",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "content_flagged", errorCode(t, body))

	var msg string
	decodeInto(t, body["message"], &msg)
	assert.Equal(t, "Comment flagged under 'toxic' → abusive", msg)

	posts, err := env.store.GetPosts(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Empty(t, posts)
}

func TestCreatePost_ModerationDownStillPublishes(t *testing.T) {
	env := newTestEnv(t)
	env.classifier.set(nil, &moderation.ClassificationError{Err: errors.New("timeout")})

	status, _ := env.do(t, http.MethodPost, "/api/posts/new", "alice", map[string]any{
		"title": "t", "context": "c",
	})
	assert.Equal(t, http.StatusOK, status)
}

func TestCreatePost_MissingFields(t *testing.T) {
	env := newTestEnv(t)
	status, body := env.do(t, http.MethodPost, "/api/posts/new", "alice", map[string]any{"title": "only title"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_input", errorCode(t, body))
}

func TestCreatePost_Unauthorized(t *testing.T) {
	env := newTestEnv(t)
	status, _ := env.do(t, http.MethodPost, "/api/posts/new", "", map[string]any{"title": "t", "context": "c"})
	assert.Equal(t, http.StatusUnauthorized, status)

	// Чужой userId в теле не принимается
	status, _ = env.do(t, http.MethodPost, "/api/posts/new", "alice", map[string]any{
		"userId": "bob", "title": "t", "context": "c",
	})
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestMalformedBody(t *testing.T) {
	env := newTestEnv(t)
	req, err := http.NewRequest(http.MethodPost, env.server.URL+"/api/posts/search", strings.NewReader("{"))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAnswerFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	post, err := env.store.CreatePost(ctx, &domain.Post{UserID: "alice", Title: "How do B-trees stay balanced?", Context: "c"})
	require.NoError(t, err)

	status, body := env.do(t, http.MethodPost, "/api/answers/create", "bob", map[string]any{
		"postId": post.ID, "content": "Splits and merges",
	})
	require.Equal(t, http.StatusOK, status)
	var answer domain.Answer
	decodeInto(t, body["data"], &answer)

	status, body = env.do(t, http.MethodPost, "/api/answers/list", "", map[string]any{"postId": post.ID})
	require.Equal(t, http.StatusOK, status)
	var answers []domain.Answer
	decodeInto(t, body["data"], &answers)
	require.Len(t, answers, 1)
	assert.Equal(t, "bob", answers[0].Username)

	status, _ = env.do(t, http.MethodPost, "/api/answers/replies/create", "alice", map[string]any{
		"answerId": answer.ID, "content": "Thanks!",
	})
	require.Equal(t, http.StatusOK, status)

	status, body = env.do(t, http.MethodPost, "/api/answers/replies/list", "", map[string]any{"answerId": answer.ID})
	require.Equal(t, http.StatusOK, status)
	var replies []domain.Reply
	decodeInto(t, body["data"], &replies)
	require.Len(t, replies, 1)
	assert.Equal(t, "alice", replies[0].Username)

	status, body = env.do(t, http.MethodPost, "/api/posts/details", "", map[string]any{"id": post.ID})
	require.Equal(t, http.StatusOK, status)
	var got domain.Post
	decodeInto(t, body["data"], &got)
	assert.Equal(t, 1, got.AnswersCount)
}

func TestAnswer_UnknownPost(t *testing.T) {
	env := newTestEnv(t)
	status, body := env.do(t, http.MethodPost, "/api/answers/create", "bob", map[string]any{
		"postId": "missing", "content": "x",
	})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", errorCode(t, body))
}

func TestVote_ToggleAndSwitch(t *testing.T) {
	env := newTestEnv(t)
	post, err := env.store.CreatePost(context.Background(), &domain.Post{UserID: "alice", Title: "t", Context: "c"})
	require.NoError(t, err)

	vote := func(dir string) domain.VoteResult {
		status, body := env.do(t, http.MethodPost, "/api/posts/vote", "bob", map[string]any{
			"postId": post.ID, "voteType": dir,
		})
		require.Equal(t, http.StatusOK, status)
		assert.NotContains(t, body, "data")
		var res domain.VoteResult
		decodeInto(t, whole(t, body), &res)
		return res
	}

	res := vote("upvote")
	assert.Equal(t, 1, res.Upvotes)
	require.NotNil(t, res.UserVote)

	res = vote("downvote")
	assert.Equal(t, 0, res.Upvotes)
	assert.Equal(t, 1, res.Downvotes)

	res = vote("downvote")
	assert.Equal(t, 0, res.Downvotes)
	assert.Nil(t, res.UserVote)

	status, body := env.do(t, http.MethodPost, "/api/posts/vote/get", "bob", map[string]any{"postId": post.ID})
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"voteType":null}`, string(body["data"]))

	status, _ = env.do(t, http.MethodPost, "/api/posts/vote", "bob", map[string]any{
		"postId": post.ID, "voteType": "sideways",
	})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestNotifications_ListEnrichedAndMarkRead(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.store.CreateNotifications(ctx, []*domain.Notification{
		{UserID: "alice", ActorID: "bob", Category: domain.NotificationComment, Content: "bob answered"},
		{UserID: "alice", ActorID: "ghost", Category: domain.NotificationComment, Content: "ghost answered"},
	}))

	status, body := env.do(t, http.MethodGet, "/api/notifications", "alice", nil)
	require.Equal(t, http.StatusOK, status)
	var views []struct {
		ID     string        `json:"id"`
		IsRead bool          `json:"is_read"`
		Actor  *domain.Actor `json:"actor"`
	}
	decodeInto(t, body["data"], &views)
	require.Len(t, views, 2)

	byActor := map[string]*domain.Actor{}
	for _, v := range views {
		if v.Actor != nil {
			byActor[v.Actor.Username] = v.Actor
		}
	}
	require.Contains(t, byActor, "bob")
	assert.Equal(t, "https://img/bob.png", byActor["bob"].AvatarURL)
	assert.Len(t, byActor, 1)

	status, body = env.do(t, http.MethodPatch, "/api/notifications/read", "alice", map[string]any{"notificationId": views[0].ID})
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"updated":1}`, string(body["data"]))

	// Пустое тело: отмечаются все оставшиеся
	status, body = env.do(t, http.MethodPatch, "/api/notifications/read", "alice", map[string]any{})
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"updated":1}`, string(body["data"]))

	status, body = env.do(t, http.MethodPatch, "/api/notifications/read", "alice", map[string]any{"all": true})
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"updated":0}`, string(body["data"]))

	status, _ = env.do(t, http.MethodGet, "/api/notifications", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestChat(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.do(t, http.MethodPost, "/api/ai/chat", "alice", map[string]any{"message": "What is 6*7?"})
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"reply":"42","balance":20}`, string(whole(t, body)))

	// bob: 5 очков при стоимости 10
	status, body = env.do(t, http.MethodPost, "/api/ai/chat", "bob", map[string]any{"message": "q"})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "insufficient_reputation", errorCode(t, body))

	status, _ = env.do(t, http.MethodPost, "/api/ai/chat", "nobody", map[string]any{"message": "q"})
	assert.Equal(t, http.StatusNotFound, status)
}

func TestChat_BlockedAndFailClosed(t *testing.T) {
	env := newTestEnv(t)

	env.classifier.set(&moderation.Verdict{PrimaryClassification: "toxic", RecommendedAction: moderation.ActionFlag}, nil)
	status, body := env.do(t, http.MethodPost, "/api/ai/chat", "alice", map[string]any{"message": "insult"})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "blocked", errorCode(t, body))

	env.classifier.set(nil, &moderation.ClassificationError{Err: errors.New("down")})
	status, body = env.do(t, http.MethodPost, "/api/ai/chat", "alice", map[string]any{"message": "q"})
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "upstream_unavailable", errorCode(t, body))

	p, err := env.store.GetProfile(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, 30, p.ReputationPoints)
}

func TestSearchAndRecommend(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, err := env.store.CreatePost(ctx, &domain.Post{UserID: "bob", Author: "Turing", Title: "Machines", Context: "c", Category: "AI"})
	require.NoError(t, err)

	status, body := env.do(t, http.MethodPost, "/api/posts/search", "", map[string]any{"query": "turing"})
	require.Equal(t, http.StatusOK, status)
	var posts []domain.Post
	decodeInto(t, body["data"], &posts)
	assert.Len(t, posts, 1)

	status, body = env.do(t, http.MethodPost, "/api/posts/recommendation", "alice", map[string]any{})
	require.Equal(t, http.StatusOK, status)
	assert.NotContains(t, body, "data")
	var rec feed.Recommendation
	decodeInto(t, whole(t, body), &rec)
	assert.Equal(t, feed.InterestBased, rec.Type)
	assert.Len(t, rec.Posts, 1)
}

func TestProfiles(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.do(t, http.MethodPut, "/api/profiles/update", "alice", map[string]any{
		"username": "Alice L.", "role": "student", "interests": []string{"Math", " "},
	})
	require.Equal(t, http.StatusOK, status)
	var p domain.Profile
	decodeInto(t, body["data"], &p)
	assert.Equal(t, "Alice L.", p.Username)
	assert.Equal(t, []string{"Math"}, []string(p.Interests))

	status, _ = env.do(t, http.MethodPut, "/api/profiles/update", "alice", map[string]any{"username": ""})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = env.do(t, http.MethodGet, "/api/profiles", "alice", nil)
	require.Equal(t, http.StatusOK, status)
	decodeInto(t, body["data"], &p)
	assert.Equal(t, 30, p.ReputationPoints)
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	status, body := env.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `"ok"`, string(body["status"]))
}

func TestGraphQLEndpoint(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.store.CreateNotifications(context.Background(), []*domain.Notification{
		{UserID: "alice", ActorID: "bob", Category: domain.NotificationComment, Content: "bob answered"},
	}))

	query := map[string]any{"query": `{ notifications { content actor { username } } }`}
	status, body := env.do(t, http.MethodPost, "/query", "alice", query)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"notifications":[{"content":"bob answered","actor":{"username":"bob"}}]}`, string(body["data"]))

	// Та же аутентификация, что и у REST
	status, body = env.do(t, http.MethodPost, "/query", "", query)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body["errors"]), "UNAUTHENTICATED")
}
