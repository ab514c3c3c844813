package session_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aussiebroadwan/wateroflife/internal/auth/session"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*session.RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return session.NewRedisStore(client, time.Minute), mr
}

func TestStores(t *testing.T) {
	redisStore, _ := newRedisStore(t)
	stores := map[string]session.Store{
		"memory": session.NewMemoryStore(16, time.Minute),
		"redis":  redisStore,
	}

	for name, s := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Ping(ctx))

			_, err := s.Take(ctx, "sid", "nonce")
			require.ErrorIs(t, err, session.ErrNotFound)

			require.NoError(t, s.Put(ctx, "sid", "nonce", "n-1"))
			require.NoError(t, s.Put(ctx, "sid", "nonce", "n-2"))

			// Other sessions do not see it.
			_, err = s.Take(ctx, "other", "nonce")
			require.ErrorIs(t, err, session.ErrNotFound)

			v, err := s.Take(ctx, "sid", "nonce")
			require.NoError(t, err)
			require.Equal(t, "n-2", v)

			// Consumed.
			_, err = s.Take(ctx, "sid", "nonce")
			require.ErrorIs(t, err, session.ErrNotFound)

			_, err = s.Take(ctx, "", "nonce")
			require.ErrorIs(t, err, session.ErrNotFound)
			require.Error(t, s.Put(ctx, "", "nonce", "x"))
		})
	}
}

func TestStores_TakeIsAtomic(t *testing.T) {
	redisStore, _ := newRedisStore(t)
	stores := map[string]session.Store{
		"memory": session.NewMemoryStore(16, time.Minute),
		"redis":  redisStore,
	}

	for name, s := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Put(ctx, "sid", "nonce", "once"))

			var wins atomic.Int32
			var wg sync.WaitGroup
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if _, err := s.Take(ctx, "sid", "nonce"); err == nil {
						wins.Add(1)
					}
				}()
			}
			wg.Wait()
			require.Equal(t, int32(1), wins.Load())
		})
	}
}

// A fresh value written while an old one is being taken must either be the
// value Take returns or still be there afterwards.
func TestStores_PutDuringTakeSurvives(t *testing.T) {
	redisStore, _ := newRedisStore(t)
	stores := map[string]session.Store{
		"memory": session.NewMemoryStore(16, time.Minute),
		"redis":  redisStore,
	}

	for name, s := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := 0; i < 200; i++ {
				require.NoError(t, s.Put(ctx, "sid", "nonce", "old"))

				var taken string
				var wg sync.WaitGroup
				wg.Add(2)
				go func() {
					defer wg.Done()
					taken, _ = s.Take(ctx, "sid", "nonce")
				}()
				go func() {
					defer wg.Done()
					_ = s.Put(ctx, "sid", "nonce", "fresh")
				}()
				wg.Wait()

				rest, err := s.Take(ctx, "sid", "nonce")
				if taken == "fresh" {
					require.ErrorIs(t, err, session.ErrNotFound, "iteration %d", i)
				} else {
					require.NoError(t, err, "iteration %d", i)
					require.Equal(t, "fresh", rest, "iteration %d", i)
				}
			}
		})
	}
}

func TestRedisStore_Expiry(t *testing.T) {
	s, mr := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "sid", "nonce", "n"))
	require.Len(t, mr.Keys(), 1)
	require.NotContains(t, mr.Keys()[0], ":sid:", "raw session id must not be used as a key")

	mr.FastForward(2 * time.Minute)
	_, err := s.Take(ctx, "sid", "nonce")
	require.ErrorIs(t, err, session.ErrNotFound)
}

func TestMemoryStore_Expiry(t *testing.T) {
	s := session.NewMemoryStore(16, 20*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "sid", "nonce", "n"))
	require.Eventually(t, func() bool {
		_, err := s.Take(ctx, "sid", "nonce")
		return err != nil
	}, time.Second, 10*time.Millisecond)
}

func TestManager(t *testing.T) {
	m := session.Manager{TTL: 2 * time.Minute, Secure: true}

	req := httptest.NewRequest(http.MethodGet, "/oidc/login", nil)
	_, ok := m.ID(req)
	require.False(t, ok)

	rec := httptest.NewRecorder()
	id, err := m.Ensure(rec, req)
	require.NoError(t, err)
	require.Len(t, id, 43)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]
	require.Equal(t, session.CookieName, c.Name)
	require.Equal(t, id, c.Value)
	require.True(t, c.HttpOnly)
	require.True(t, c.Secure)
	require.Equal(t, http.SameSiteLaxMode, c.SameSite)
	require.Equal(t, 120, c.MaxAge)

	// An existing session is kept.
	req = httptest.NewRequest(http.MethodGet, "/oidc/login", nil)
	req.AddCookie(c)
	got, ok := m.ID(req)
	require.True(t, ok)
	require.Equal(t, id, got)

	again, err := m.Ensure(httptest.NewRecorder(), req)
	require.NoError(t, err)
	require.Equal(t, id, again)

	rec = httptest.NewRecorder()
	m.Clear(rec)
	require.Equal(t, -1, rec.Result().Cookies()[0].MaxAge)
}
