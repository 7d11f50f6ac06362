package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/valkey-io/valkey-go"
)

// Limiter считает обращения пользователя в фиксированном окне.
type Limiter interface {
	// Allow возвращает false, если лимит в текущем окне исчерпан.
	Allow(ctx context.Context, key string) (bool, error)
}

// Noop пропускает все запросы.
type Noop struct{}

func (Noop) Allow(context.Context, string) (bool, error) { return true, nil }

// Memory - ограничитель в памяти процесса.
type Memory struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	buckets map[string]*bucket
	now     func() time.Time
}

type bucket struct {
	start time.Time
	count int
}

// NewMemory создает ограничитель на limit запросов за window.
func NewMemory(limit int, window time.Duration) *Memory {
	return &Memory{
		limit:   limit,
		window:  window,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

func (m *Memory) Allow(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	b, ok := m.buckets[key]
	if !ok || now.Sub(b.start) >= m.window {
		m.buckets[key] = &bucket{start: now, count: 1}
		return true, nil
	}
	if b.count >= m.limit {
		return false, nil
	}
	b.count++
	return true, nil
}

// counterStore - счетчики окна с временем жизни.
type counterStore interface {
	Incr(ctx context.Context, key string) (int64, error)
	// TTL возвращает -1, если у ключа нет срока жизни.
	TTL(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, seconds int64) error
}

// Valkey - ограничитель на INCR + EXPIRE, общий для нескольких инстансов.
type Valkey struct {
	store  counterStore
	limit  int
	window time.Duration
	prefix string
}

// NewValkeyClient подключается к Valkey и проверяет соединение.
func NewValkeyClient(addr, password string) (valkey.Client, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress:      []string{addr},
		Password:         password,
		ConnWriteTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("[ValkeyClient] failed to create Valkey: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("[ValkeyClient] failed to ping Valkey: %w", err)
	}
	return client, nil
}

// NewValkey создает ограничитель поверх готового клиента.
func NewValkey(client valkey.Client, limit int, window time.Duration) *Valkey {
	return newValkey(valkeyCounters{client: client}, limit, window)
}

func newValkey(store counterStore, limit int, window time.Duration) *Valkey {
	return &Valkey{store: store, limit: limit, window: window, prefix: "ratelimit:ai:"}
}

func (v *Valkey) Allow(ctx context.Context, key string) (bool, error) {
	k := v.prefix + key
	count, err := v.store.Incr(ctx, k)
	if err != nil {
		return false, fmt.Errorf("incr %s: %w", k, err)
	}

	// Первое обращение задает срок жизни окна. Если прошлый EXPIRE не дошел,
	// ключ остался без TTL: восстанавливаем его, иначе лимит не сбросится никогда
	expire := count == 1
	if !expire {
		ttl, err := v.store.TTL(ctx, k)
		if err != nil {
			return false, fmt.Errorf("ttl %s: %w", k, err)
		}
		expire = ttl == -1
	}
	if expire {
		if err := v.store.Expire(ctx, k, v.windowSeconds()); err != nil {
			return false, fmt.Errorf("expire %s: %w", k, err)
		}
	}
	return count <= int64(v.limit), nil
}

func (v *Valkey) windowSeconds() int64 {
	seconds := int64(v.window / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}

// valkeyCounters - counterStore поверх valkey-go.
type valkeyCounters struct {
	client valkey.Client
}

func (c valkeyCounters) Incr(ctx context.Context, key string) (int64, error) {
	return c.client.Do(ctx, c.client.B().Incr().Key(key).Build()).AsInt64()
}

func (c valkeyCounters) TTL(ctx context.Context, key string) (int64, error) {
	return c.client.Do(ctx, c.client.B().Ttl().Key(key).Build()).AsInt64()
}

func (c valkeyCounters) Expire(ctx context.Context, key string, seconds int64) error {
	return c.client.Do(ctx, c.client.B().Expire().Key(key).Seconds(seconds).Build()).Error()
}
