package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/UkralStul/oraculum-service/internal/assistant"
	"github.com/UkralStul/oraculum-service/internal/domain"
	"github.com/go-chi/chi/v5/middleware"
)

const maxBodyBytes = 1 << 20

type envelope struct {
	Data any `json:"data"`
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("[HTTP] failed to encode response", slog.Any("error", err))
	}
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Data: data})
}

// writeError переводит доменную ошибку в HTTP-статус.
// Текст внутренних ошибок клиенту не отдается.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := classify(err)
	if status >= http.StatusInternalServerError {
		slog.Error("[HTTP] request failed",
			slog.String("path", r.URL.Path),
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.Any("error", err),
		)
	}
	writeJSON(w, status, errorBody{Error: code, Message: msg})
}

func classify(err error) (status int, code, msg string) {
	var rejection *domain.RejectionError
	switch {
	case errors.As(err, &rejection):
		return http.StatusUnprocessableEntity, "content_flagged", rejection.Reason
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input", clientMessage(err, domain.ErrInvalidInput)
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized", "Unauthorized"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found", "Not found"
	case errors.Is(err, assistant.ErrBlocked):
		return http.StatusForbidden, "blocked", assistant.BlockedMessage
	case errors.Is(err, domain.ErrInsufficientBalance):
		return http.StatusForbidden, "insufficient_reputation", "Not enough reputation points"
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusForbidden, "rate_limited", "Too many requests, try again later"
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		return http.StatusInternalServerError, "upstream_unavailable", "Upstream service unavailable"
	default:
		return http.StatusInternalServerError, "internal", "Internal server error"
	}
}

// clientMessage отрезает префикс sentinel-ошибки: "invalid input: Missing fields" -> "Missing fields".
func clientMessage(err, sentinel error) string {
	msg := strings.TrimPrefix(err.Error(), sentinel.Error()+": ")
	if msg == "" || msg == sentinel.Error() {
		return "Invalid request"
	}
	return msg
}

// decode читает JSON-тело запроса. Пустое тело считается пустым объектом.
func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: malformed JSON body", domain.ErrInvalidInput)
	}
	return nil
}
