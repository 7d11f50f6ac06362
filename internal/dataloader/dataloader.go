package dataloader

import (
	"context"
	"net/http"
	"time"

	"github.com/UkralStul/oraculum-service/internal/domain"
	"github.com/graph-gophers/dataloader"
)

type contextKey string

const key = contextKey("dataloaders")

// ProfileSource - хранилище, умеющее отдавать профили пачкой.
type ProfileSource interface {
	GetProfilesByIDs(ctx context.Context, ids []string) (map[string]*domain.Profile, error)
}

// Loaders содержит все дата-лоадеры приложения.
type Loaders struct {
	ProfileByID *dataloader.Loader
}

// NewLoaders создает набор лоадеров на один запрос.
func NewLoaders(store ProfileSource) *Loaders {
	batchFn := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		ids := make([]string, len(keys))
		for i, k := range keys {
			ids[i] = k.String()
		}

		// Один запрос к хранилищу на все ключи
		profiles, err := store.GetProfilesByIDs(ctx, ids)
		results := make([]*dataloader.Result, len(keys))
		if err != nil {
			for i := range results {
				results[i] = &dataloader.Result{Error: err}
			}
			return results
		}

		// Результат в том же порядке, что и ключи. Отсутствующий профиль - nil
		for i, id := range ids {
			results[i] = &dataloader.Result{Data: profiles[id]}
		}
		return results
	}

	return &Loaders{
		ProfileByID: dataloader.NewBatchedLoader(batchFn, dataloader.WithWait(time.Millisecond*1)),
	}
}

// Middleware для внедрения лоадеров в контекст запроса.
func Middleware(store ProfileSource, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), key, NewLoaders(store))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// For извлекает лоадеры из контекста. Вне Middleware возвращает nil.
func For(ctx context.Context) *Loaders {
	l, _ := ctx.Value(key).(*Loaders)
	return l
}

// Profiles загружает профили по списку id. Ключи без профиля в результат не попадают.
func (l *Loaders) Profiles(ctx context.Context, ids []string) (map[string]*domain.Profile, error) {
	thunks := make([]dataloader.Thunk, len(ids))
	for i, id := range ids {
		thunks[i] = l.ProfileByID.Load(ctx, dataloader.StringKey(id))
	}

	result := make(map[string]*domain.Profile, len(ids))
	for i, thunk := range thunks {
		data, err := thunk()
		if err != nil {
			return nil, err
		}
		if p, ok := data.(*domain.Profile); ok && p != nil {
			result[ids[i]] = p
		}
	}
	return result, nil
}
