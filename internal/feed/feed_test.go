package feed

import (
	"context"
	"fmt"
	"testing"

	"github.com/UkralStul/oraculum-service/internal/domain"
	"github.com/UkralStul/oraculum-service/internal/storage/inmemory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFeed(t *testing.T) (*Service, *inmemory.Store) {
	store := inmemory.New()
	ctx := context.Background()
	posts := []*domain.Post{
		{UserID: "u1", Author: "Ada Lovelace", Title: "Analytical engines", Context: "Notes on computation", Category: "History", Tags: []string{"Babbage"}},
		{UserID: "u2", Author: "Alan", Title: "Halting problem", Context: "Undecidability", Category: "CS", Tags: []string{"turing"}},
		{UserID: "u3", Author: "Grace", Title: "Compilers", Context: "From COBOL onwards", Category: "CS"},
	}
	for _, p := range posts {
		_, err := store.CreatePost(ctx, p)
		require.NoError(t, err)
	}
	return NewService(store), store
}

func titles(posts []*domain.Post) []string {
	out := make([]string, len(posts))
	for i, p := range posts {
		out[i] = p.Title
	}
	return out
}

func TestSearch_MatchesAuthorOnly(t *testing.T) {
	svc, _ := newTestFeed(t)
	posts, err := svc.Search(context.Background(), "lovelace")
	require.NoError(t, err)
	assert.Equal(t, []string{"Analytical engines"}, titles(posts))
}

func TestSearch_Fields(t *testing.T) {
	svc, _ := newTestFeed(t)
	ctx := context.Background()

	cases := map[string][]string{
		"HALTING":     {"Halting problem"},
		"cobol":       {"Compilers"},
		"Turing":      {"Halting problem"},
		"babbage":     {"Analytical engines"},
		"nonexistent": {},
	}
	for q, want := range cases {
		posts, err := svc.Search(ctx, q)
		require.NoError(t, err)
		assert.ElementsMatch(t, want, titles(posts), q)
	}

	posts, err := svc.Search(ctx, "cs")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Halting problem", "Compilers"}, titles(posts))
}

func TestSearch_EmptyQuery(t *testing.T) {
	svc, _ := newTestFeed(t)
	posts, err := svc.Search(context.Background(), "   ")
	require.NoError(t, err)
	assert.Empty(t, posts)
}

func TestRecommend_TrendingWithoutInterests(t *testing.T) {
	svc, store := newTestFeed(t)
	ctx := context.Background()
	_, err := store.UpsertProfile(ctx, &domain.Profile{ID: "reader"})
	require.NoError(t, err)

	all, err := store.GetPosts(ctx, 0, 0)
	require.NoError(t, err)
	var compilers string
	for _, p := range all {
		if p.Title == "Compilers" {
			compilers = p.ID
		}
	}
	_, err = store.ApplyVote(ctx, compilers, "fan", domain.VoteUp)
	require.NoError(t, err)

	rec, err := svc.Recommend(ctx, "reader")
	require.NoError(t, err)
	assert.Equal(t, Trending, rec.Type)
	require.Len(t, rec.Posts, 3)
	assert.Equal(t, "Compilers", rec.Posts[0].Title)
}

func TestRecommend_TrendingCappedAt10(t *testing.T) {
	svc, store := newTestFeed(t)
	ctx := context.Background()
	for i := 0; i < 15; i++ {
		_, err := store.CreatePost(ctx, &domain.Post{UserID: "u", Title: fmt.Sprintf("p%d", i), Context: "c"})
		require.NoError(t, err)
	}
	_, err := store.UpsertProfile(ctx, &domain.Profile{ID: "reader"})
	require.NoError(t, err)

	rec, err := svc.Recommend(ctx, "reader")
	require.NoError(t, err)
	assert.Len(t, rec.Posts, 10)
}

func TestRecommend_InterestBased(t *testing.T) {
	svc, store := newTestFeed(t)
	ctx := context.Background()
	_, err := store.UpsertProfile(ctx, &domain.Profile{ID: "reader", Interests: []string{"CS"}})
	require.NoError(t, err)

	rec, err := svc.Recommend(ctx, "reader")
	require.NoError(t, err)
	assert.Equal(t, InterestBased, rec.Type)
	assert.ElementsMatch(t, []string{"Halting problem", "Compilers"}, titles(rec.Posts))
}

func TestRecommend_Errors(t *testing.T) {
	svc, _ := newTestFeed(t)
	_, err := svc.Recommend(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = svc.Recommend(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
