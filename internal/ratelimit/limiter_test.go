package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_FixedWindow(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemory(2, time.Minute)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := m.Allow(ctx, "u")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, _ := m.Allow(ctx, "u")
	assert.False(t, ok)

	// Другие ключи считаются отдельно
	ok, _ = m.Allow(ctx, "v")
	assert.True(t, ok)

	now = now.Add(time.Minute)
	ok, _ = m.Allow(ctx, "u")
	assert.True(t, ok)
}

func TestNoop(t *testing.T) {
	ok, err := Noop{}.Allow(context.Background(), "anything")
	require.NoError(t, err)
	assert.True(t, ok)
}

// fakeCounters - counterStore в памяти; failExpire роняет заданное число вызовов EXPIRE
type fakeCounters struct {
	counts     map[string]int64
	ttls       map[string]int64
	failExpire int
	expires    int
}

func newFakeCounters() *fakeCounters {
	return &fakeCounters{counts: map[string]int64{}, ttls: map[string]int64{}}
}

func (f *fakeCounters) Incr(_ context.Context, key string) (int64, error) {
	f.counts[key]++
	if _, ok := f.ttls[key]; !ok {
		f.ttls[key] = -1
	}
	return f.counts[key], nil
}

func (f *fakeCounters) TTL(_ context.Context, key string) (int64, error) {
	ttl, ok := f.ttls[key]
	if !ok {
		return -2, nil
	}
	return ttl, nil
}

func (f *fakeCounters) Expire(_ context.Context, key string, seconds int64) error {
	f.expires++
	if f.failExpire > 0 {
		f.failExpire--
		return errors.New("connection reset")
	}
	f.ttls[key] = seconds
	return nil
}

// expireAll имитирует истечение срока жизни у ключей с TTL
func (f *fakeCounters) expireAll() {
	for k, ttl := range f.ttls {
		if ttl > 0 {
			delete(f.ttls, k)
			delete(f.counts, k)
		}
	}
}

func TestValkey_FixedWindow(t *testing.T) {
	store := newFakeCounters()
	v := newValkey(store, 2, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := v.Allow(ctx, "u")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := v.Allow(ctx, "u")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.EqualValues(t, 60, store.ttls["ratelimit:ai:u"])

	store.expireAll()
	ok, err = v.Allow(ctx, "u")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestValkey_RestoresLostExpiry(t *testing.T) {
	store := newFakeCounters()
	store.failExpire = 1
	v := newValkey(store, 1, time.Minute)
	ctx := context.Background()

	// EXPIRE первого обращения не прошел: ключ остался без срока жизни
	_, err := v.Allow(ctx, "u")
	require.Error(t, err)
	assert.EqualValues(t, -1, store.ttls["ratelimit:ai:u"])

	// Следующее обращение замечает ключ без TTL и выставляет его
	ok, err := v.Allow(ctx, "u")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.EqualValues(t, 60, store.ttls["ratelimit:ai:u"])

	// Окно истекает, и пользователь снова может спрашивать
	store.expireAll()
	ok, err = v.Allow(ctx, "u")
	require.NoError(t, err)
	assert.True(t, ok)
}
