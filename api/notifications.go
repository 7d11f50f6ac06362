package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/UkralStul/oraculum-service/internal/auth"
	"github.com/UkralStul/oraculum-service/internal/dataloader"
	"github.com/UkralStul/oraculum-service/internal/domain"
	"github.com/gorilla/websocket"
)

const (
	notificationsLimit = 20
	pingInterval       = 10 * time.Second
	writeTimeout       = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (h *Handler) listNotifications(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.UserID(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	notifications, err := h.Storage.GetNotificationsByUserID(r.Context(), userID, notificationsLimit)
	if err != nil {
		writeError(w, r, err)
		return
	}

	actorIDs := make([]string, 0, len(notifications))
	for _, n := range notifications {
		actorIDs = append(actorIDs, n.ActorID)
	}

	// Профили инициаторов одним запросом через лоадер
	var actors map[string]*domain.Profile
	if loaders := dataloader.For(r.Context()); loaders != nil {
		actors, err = loaders.Profiles(r.Context(), actorIDs)
	} else {
		actors, err = h.Storage.GetProfilesByIDs(r.Context(), actorIDs)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	views := make([]domain.NotificationView, len(notifications))
	for i, n := range notifications {
		views[i] = domain.NotificationView{Notification: n}
		if p, ok := actors[n.ActorID]; ok {
			views[i].Actor = &domain.Actor{Username: p.Username, AvatarURL: p.AvatarURL}
		}
	}
	writeData(w, http.StatusOK, views)
}

type markReadRequest struct {
	NotificationID string `json:"notificationId"`
	All            bool   `json:"all"`
}

type markReadResponse struct {
	Updated int64 `json:"updated"`
}

func (h *Handler) markNotificationsRead(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.UserID(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req markReadRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	// Без notificationId отмечаются все уведомления пользователя
	target := req.NotificationID
	if req.All {
		target = ""
	}
	updated, err := h.Storage.MarkNotificationsRead(r.Context(), userID, target)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, markReadResponse{Updated: updated})
}

// notificationFeed отправляет новые уведомления пользователя по websocket.
func (h *Handler) notificationFeed(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.UserID(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade уже записал ответ клиенту
		slog.Warn("[WS] upgrade failed", slog.Any("error", err))
		return
	}
	defer conn.Close()

	ch, cancel := h.Hub.Subscribe(userID)
	defer cancel()
	slog.Debug("[WS] subscriber connected", slog.String("user_id", userID))

	// Чтение нужно только для обработки close и pong от клиента
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case n, ok := <-ch:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(n); err != nil {
				slog.Debug("[WS] write failed", slog.String("user_id", userID), slog.Any("error", err))
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}
