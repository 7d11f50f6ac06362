package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/UkralStul/oraculum-service/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

// DevUserHeader - заголовок с id пользователя, когда секрет JWT не задан.
const DevUserHeader = "X-User-ID"

type contextKey string

const userKey = contextKey("auth-user")

// Authenticator извлекает личность пользователя из запроса.
type Authenticator struct {
	secret []byte
}

// New создает Authenticator. Пустой секрет включает режим разработки,
// в котором id берется из заголовка X-User-ID без проверки.
func New(secret string) *Authenticator {
	if secret == "" {
		slog.Warn("AUTH_JWT_SECRET is empty, trusting X-User-ID header")
	}
	return &Authenticator{secret: []byte(secret)}
}

// ParseToken проверяет HS256-токен и возвращает claim sub.
func (a *Authenticator) ParseToken(tokenStr string) (string, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(_ *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	if !token.Valid {
		return "", domain.ErrUnauthorized
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", fmt.Errorf("%w: token has no subject", domain.ErrUnauthorized)
	}
	return sub, nil
}

// Issue подписывает токен для пользователя. Используется в тестах и утилитах.
func (a *Authenticator) Issue(userID string, ttl time.Duration) (string, error) {
	if len(a.secret) == 0 {
		return "", errors.New("jwt secret is not configured")
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	})
	return token.SignedString(a.secret)
}

// Middleware кладет id пользователя в контекст, если запрос аутентифицирован.
// Отказ с 401 остается за обработчиками, которым нужна личность.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := a.identify(r)
		if userID != "" {
			r = r.WithContext(WithUser(r.Context(), userID))
		}
		next.ServeHTTP(w, r)
	})
}

func (a *Authenticator) identify(r *http.Request) string {
	if len(a.secret) == 0 {
		return strings.TrimSpace(r.Header.Get(DevUserHeader))
	}

	header := r.Header.Get("Authorization")
	tokenStr, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || tokenStr == "" {
		// websocket-клиенты не умеют ставить заголовки
		tokenStr = r.URL.Query().Get("token")
	}
	if tokenStr == "" {
		return ""
	}
	userID, err := a.ParseToken(tokenStr)
	if err != nil {
		slog.Debug("rejecting bearer token", "error", err)
		return ""
	}
	return userID
}

// WithUser возвращает контекст с id пользователя.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey, userID)
}

// UserID извлекает id пользователя из контекста.
func UserID(ctx context.Context) (string, error) {
	id, _ := ctx.Value(userKey).(string)
	if id == "" {
		return "", domain.ErrUnauthorized
	}
	return id, nil
}
