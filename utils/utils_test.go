package utils

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danz-app/danz/config"
)

func useMiniredis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	SetRedis(rc)
	t.Cleanup(func() {
		SetRedis(nil)
		_ = rc.Close()
	})
	return mr
}

func TestTryAcquire_Redis(t *testing.T) {
	mr := useMiniredis(t)
	ctx := context.Background()

	assert.True(t, TryAcquire(ctx, "k1", time.Minute))
	assert.False(t, TryAcquire(ctx, "k1", time.Minute))
	assert.Equal(t, time.Minute, Remaining(ctx, "k1"))

	mr.FastForward(time.Minute + time.Second)
	assert.True(t, TryAcquire(ctx, "k1", time.Minute))

	Release(ctx, "k1")
	assert.Zero(t, Remaining(ctx, "k1"))
	assert.True(t, TryAcquire(ctx, "k1", time.Minute))
}

func TestTryAcquire_Memory(t *testing.T) {
	SetRedis(nil)
	ctx := context.Background()

	assert.True(t, TryAcquire(ctx, "mem:k", 50*time.Millisecond))
	assert.False(t, TryAcquire(ctx, "mem:k", 50*time.Millisecond))
	assert.Greater(t, Remaining(ctx, "mem:k"), time.Duration(0))
	time.Sleep(60 * time.Millisecond)
	assert.True(t, TryAcquire(ctx, "mem:k", time.Minute))
	Release(ctx, "mem:k")
	assert.True(t, TryAcquire(ctx, "mem:k", time.Minute))
	Release(ctx, "mem:k")

	// a zero ttl never blocks
	assert.True(t, TryAcquire(ctx, "mem:zero", 0))
	assert.True(t, TryAcquire(ctx, "mem:zero", 0))
}

func TestTokenBlacklist(t *testing.T) {
	mr := useMiniredis(t)

	assert.False(t, IsTokenBlacklisted("tok-a"))
	BlacklistToken("tok-a", time.Now().Add(time.Hour))
	assert.True(t, IsTokenBlacklisted("tok-a"))
	assert.True(t, mr.Exists(blacklistPrefix+"tok-a"))

	// already expired tokens are not stored
	BlacklistToken("tok-b", time.Now().Add(-time.Minute))
	assert.False(t, IsTokenBlacklisted("tok-b"))
}

func TestCacheJSON(t *testing.T) {
	useMiniredis(t)
	type payload struct {
		N int `json:"n"`
	}

	var out payload
	assert.False(t, CacheGetJSON("cache:test:1", &out))
	CacheSetJSON("cache:test:1", payload{N: 7}, time.Minute)
	CacheSetJSON("cache:test:2", payload{N: 8}, time.Minute)
	CacheSetJSON("cache:other", payload{N: 9}, time.Minute)
	require.True(t, CacheGetJSON("cache:test:1", &out))
	assert.Equal(t, 7, out.N)

	InvalidateByPrefix("cache:test:")
	assert.False(t, CacheGetJSON("cache:test:1", &out))
	assert.False(t, CacheGetJSON("cache:test:2", &out))
	assert.True(t, CacheGetJSON("cache:other", &out))
}

func TestJWTRoundTrip(t *testing.T) {
	config.Set(config.AppConfig{JWTSecret: "unit-secret"})

	token, err := GenerateToken(12, 345, "dancer", time.Hour)
	require.NoError(t, err)
	claims, err := ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint(12), claims.UserID)
	assert.Equal(t, int64(345), claims.FID)
	assert.Equal(t, "dancer", claims.Username)

	expired, err := GenerateToken(12, 345, "dancer", -time.Minute)
	require.NoError(t, err)
	_, err = ParseToken(expired)
	assert.Error(t, err)

	config.Set(config.AppConfig{JWTSecret: "rotated"})
	_, err = ParseToken(token)
	assert.Error(t, err)
}

func TestSecretHashing(t *testing.T) {
	secret, err := NewSecret(24)
	require.NoError(t, err)
	assert.Len(t, secret, 48)

	hash, err := HashSecret(secret)
	require.NoError(t, err)
	assert.True(t, CheckSecret(hash, secret))
	assert.False(t, CheckSecret(hash, secret+"x"))
}

func TestSanitizeText(t *testing.T) {
	assert.Equal(t, "hi there", SanitizeText("  <script>alert(1)</script>hi <b>there</b> ", 0))
	assert.Equal(t, "Tom & Jerry", SanitizeText("Tom &amp; Jerry", 0))
	assert.Equal(t, "💃💃", SanitizeText("💃💃💃", 2))
	assert.Empty(t, SanitizeText("<i></i>", 10))
}

func TestFetchFarcasterUser(t *testing.T) {
	SetRedis(nil)
	farcasterMu.Lock()
	farcasterCache = make(map[int64]farcasterEntry)
	farcasterMu.Unlock()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/v2/farcaster/user/bulk", r.URL.Path)
		assert.Equal(t, "neynar-key", r.Header.Get("x-api-key"))
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("fids") {
		case "3":
			_, _ = w.Write([]byte(`{"users":[{"fid":3,"username":"dwr","display_name":"Dan","pfp_url":"https://img/3.png","verified_addresses":{"eth_addresses":["0xabc"]}}]}`))
		default:
			_, _ = w.Write([]byte(`{"users":[]}`))
		}
	}))
	defer srv.Close()

	config.Set(config.AppConfig{})
	_, err := FetchFarcasterUser(context.Background(), 3)
	assert.ErrorIs(t, err, ErrNeynarNotConfigured)
	assert.False(t, NeynarConfigured())

	config.Set(config.AppConfig{NeynarAPIKey: "neynar-key", NeynarBaseURL: srv.URL})
	u, err := FetchFarcasterUser(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, "dwr", u.Username)
	assert.Equal(t, []string{"0xabc"}, u.VerifiedAddresses)

	// second lookup is served from memory
	_, err = FetchFarcasterUser(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())

	_, err = FetchFarcasterUser(context.Background(), 4)
	assert.ErrorIs(t, err, ErrFarcasterUserNotFound)
}

func TestServerRunShutsDownOnCancel(t *testing.T) {
	srv := NewServer("127.0.0.1:0", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}), time.Second, time.Second)
	var hooked atomic.Bool
	srv.OnShutdown(func() { hooked.Store(true) })
	require.NoError(t, srv.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	resp, err := http.Get("http://" + srv.ListenAddr().String())
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	assert.True(t, hooked.Load())
}

func TestCacheLoad(t *testing.T) {
	useMiniredis(t)
	calls := 0
	load := func() ([]int, error) {
		calls++
		return []int{1, 2}, nil
	}
	for i := 0; i < 2; i++ {
		v, err := CacheLoad("cache:load:a", time.Minute, load)
		require.NoError(t, err)
		assert.Equal(t, []int{1, 2}, v)
	}
	assert.Equal(t, 1, calls)

	_, err := CacheLoad("cache:load:b", time.Minute, func() (int, error) { return 0, assert.AnError })
	assert.ErrorIs(t, err, assert.AnError)
	var n int
	assert.False(t, CacheGetJSON("cache:load:b", &n))
}
