package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/99designs/gqlgen/graphql/playground"
	"github.com/UkralStul/oraculum-service/internal/assistant"
	"github.com/UkralStul/oraculum-service/internal/auth"
	"github.com/UkralStul/oraculum-service/internal/content"
	"github.com/UkralStul/oraculum-service/internal/dataloader"
	"github.com/UkralStul/oraculum-service/internal/feed"
	"github.com/UkralStul/oraculum-service/internal/notify"
	"github.com/UkralStul/oraculum-service/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Handler - корневая структура HTTP-слоя.
// Содержит все зависимости, которые нужны для обработки запросов.
type Handler struct {
	Storage   storage.Storage
	Content   *content.Service
	Feed      *feed.Service
	Assistant *assistant.Service
	Hub       *notify.Hub
	Auth      *auth.Authenticator

	// GraphQL - необязательный обработчик /query
	GraphQL http.Handler
}

// Router собирает маршруты сервиса.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(h.Auth.Middleware)

		r.Route("/posts", func(r chi.Router) {
			r.Get("/", h.listPosts)
			r.Post("/new", h.createPost)
			r.Post("/details", h.postDetails)
			r.Post("/vote", h.vote)
			r.Post("/vote/get", h.getVote)
			r.Post("/search", h.search)
			r.Post("/recommendation", h.recommend)
		})

		r.Route("/answers", func(r chi.Router) {
			r.Post("/create", h.createAnswer)
			r.Post("/list", h.listAnswers)
			r.Post("/replies/create", h.createReply)
			r.Post("/replies/list", h.listReplies)
		})

		r.Route("/notifications", func(r chi.Router) {
			r.With(h.loaders).Get("/", h.listNotifications)
			r.Patch("/read", h.markNotificationsRead)
			r.Get("/ws", h.notificationFeed)
		})

		r.Post("/ai/chat", h.chat)

		r.Route("/profiles", func(r chi.Router) {
			r.Get("/", h.getProfile)
			r.Put("/update", h.updateProfile)
		})
	})

	// GraphQL для уведомлений: запрос, мутация и подписка поверх тех же данных
	if h.GraphQL != nil {
		r.With(h.Auth.Middleware, h.loaders).Handle("/query", h.GraphQL)
		r.Handle("/playground", playground.Handler("GraphQL playground", "/query"))
	}

	return r
}

// loaders кладет в контекст дата-лоадеры на время запроса.
func (h *Handler) loaders(next http.Handler) http.Handler {
	return dataloader.Middleware(h.Storage, next)
}

// requestLogger пишет одну строку slog на запрос.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			slog.Info("[HTTP] request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("elapsed", time.Since(start)),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}
