package notify

import (
	"sync"

	"github.com/UkralStul/oraculum-service/internal/domain"
	"github.com/google/uuid"
)

// Hub хранит каналы подписчиков на уведомления.
type Hub struct {
	mu sync.RWMutex
	//          map[userID] map[subscriberID] channel
	subs map[string]map[string]chan *domain.Notification
}

// NewHub - конструктор для хаба.
func NewHub() *Hub {
	return &Hub{
		subs: make(map[string]map[string]chan *domain.Notification),
	}
}

// Subscribe регистрирует подписчика для получателя userID.
// Возвращает канал и функцию отписки.
func (h *Hub) Subscribe(userID string) (<-chan *domain.Notification, func()) {
	ch := make(chan *domain.Notification, 16)
	subID := uuid.NewString()

	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[string]chan *domain.Notification)
	}
	h.subs[userID][subID] = ch
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			if userSubs, ok := h.subs[userID]; ok {
				delete(userSubs, subID)
				if len(userSubs) == 0 {
					delete(h.subs, userID)
				}
			}
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish отправляет уведомление всем подписчикам получателя, не блокируясь.
func (h *Hub) Publish(n *domain.Notification) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.subs[n.UserID] {
		select {
		case ch <- n:
		default:
			// Клиент не успевает читать - пропускаем
		}
	}
}

// Subscribers возвращает число активных подписок получателя.
func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}
