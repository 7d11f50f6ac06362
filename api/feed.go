package api

import (
	"net/http"
)

type searchRequest struct {
	Query string `json:"query"`
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	posts, err := h.Feed.Search(r.Context(), req.Query)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, posts)
}

type recommendRequest struct {
	UserID string `json:"userId"`
}

func (h *Handler) recommend(w http.ResponseWriter, r *http.Request) {
	var req recommendRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	userID, err := caller(r, req.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rec, err := h.Feed.Recommend(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type chatRequest struct {
	UserID  string `json:"userId"`
	Message string `json:"message"`
}

func (h *Handler) chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	userID, err := caller(r, req.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	answer, err := h.Assistant.Ask(r.Context(), userID, req.Message)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}
