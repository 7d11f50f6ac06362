package api

import (
	"net/http"
	"strings"

	"github.com/UkralStul/oraculum-service/internal/auth"
	"github.com/UkralStul/oraculum-service/internal/domain"
	"github.com/UkralStul/oraculum-service/internal/storage"
)

func (h *Handler) getProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.UserID(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	profile, err := h.Storage.GetProfile(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, profile)
}

type updateProfileRequest struct {
	Username  string   `json:"username"`
	Role      string   `json:"role"`
	Interests []string `json:"interests"`
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.UserID(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req updateProfileRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Username) == "" {
		writeError(w, r, domain.InvalidInput("Username is required"))
		return
	}

	interests := make([]string, 0, len(req.Interests))
	for _, i := range req.Interests {
		if i = strings.TrimSpace(i); i != "" {
			interests = append(interests, i)
		}
	}

	profile, err := h.Storage.UpdateProfile(r.Context(), userID, storage.ProfileUpdate{
		Username:  strings.TrimSpace(req.Username),
		Role:      req.Role,
		Interests: interests,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, profile)
}
