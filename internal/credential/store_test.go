package credential

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// storeFactories returns one fresh instance of every backend.
func storeFactories(t *testing.T) map[string]func() Store {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	dir := t.TempDir()
	n := 0

	return map[string]func() Store{
		"memory": func() Store { return NewMemoryStore() },
		"file": func() Store {
			n++
			s, err := NewFileStore(filepath.Join(dir, "creds", string(rune('a'+n))+".yaml"), discardLogger())
			require.NoError(t, err)
			return s
		},
		"redis": func() Store {
			n++
			return NewRedisStore(client, "test"+string(rune('a'+n)), discardLogger())
		},
	}
}

func TestStore_Contract(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			t.Run("EmptyStoreReportsAbsent", func(t *testing.T) {
				s := newStore()
				_, ok := s.Get(ctx, Access)
				assert.False(t, ok)
				_, ok = s.Get(ctx, Refresh)
				assert.False(t, ok)
			})

			t.Run("PutPreservesUnspecifiedRefresh", func(t *testing.T) {
				s := newStore()
				s.Put(ctx, "a1", "r1")
				s.Put(ctx, "a2", "")

				access, ok := s.Get(ctx, Access)
				require.True(t, ok)
				assert.Equal(t, "a2", access)

				refresh, ok := s.Get(ctx, Refresh)
				require.True(t, ok)
				assert.Equal(t, "r1", refresh)
			})

			t.Run("AccessWithoutRefresh", func(t *testing.T) {
				s := newStore()
				s.Put(ctx, "a1", "")

				access, ok := s.Get(ctx, Access)
				assert.True(t, ok)
				assert.Equal(t, "a1", access)
				_, ok = s.Get(ctx, Refresh)
				assert.False(t, ok)
			})

			t.Run("ClearRemovesBoth", func(t *testing.T) {
				s := newStore()
				s.Put(ctx, "a1", "r1")
				s.Clear(ctx)

				_, ok := s.Get(ctx, Access)
				assert.False(t, ok)
				_, ok = s.Get(ctx, Refresh)
				assert.False(t, ok)

				// Clearing an empty store is a no-op.
				s.Clear(ctx)
			})

			t.Run("EmptyAccessCountsAsAbsent", func(t *testing.T) {
				s := newStore()
				s.Put(ctx, "", "r1")

				_, ok := s.Get(ctx, Access)
				assert.False(t, ok)
				refresh, ok := s.Get(ctx, Refresh)
				assert.True(t, ok)
				assert.Equal(t, "r1", refresh)
			})
		})
	}
}

func TestFileStore_SharedAcrossInstances(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "credentials.yaml")

	first, err := NewFileStore(path, discardLogger())
	require.NoError(t, err)
	second, err := NewFileStore(path, discardLogger())
	require.NoError(t, err)

	first.Put(ctx, "a1", "r1")
	access, ok := second.Get(ctx, Access)
	require.True(t, ok)
	assert.Equal(t, "a1", access)

	second.Clear(ctx)
	_, ok = first.Get(ctx, Refresh)
	assert.False(t, ok)
}

func TestFileStore_FileLayout(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "credentials.yaml")

	s, err := NewFileStore(path, discardLogger())
	require.NoError(t, err)
	s.Put(ctx, "a1", "r1")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "lf_access: a1")
	assert.Contains(t, string(data), "lf_refresh: r1")
}

func TestFileStore_CorruptFileTreatedAsAbsent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "credentials.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{not: [valid"), 0600))

	s, err := NewFileStore(path, discardLogger())
	require.NoError(t, err)

	_, ok := s.Get(ctx, Access)
	assert.False(t, ok)

	s.Put(ctx, "a1", "r1")
	access, ok := s.Get(ctx, Access)
	assert.True(t, ok)
	assert.Equal(t, "a1", access)
}

func TestNewFileStore_RejectsUnsafePaths(t *testing.T) {
	_, err := NewFileStore("relative/credentials.yaml", discardLogger())
	assert.Error(t, err)

	_, err = NewFileStore("/tmp/../etc/credentials.yaml", discardLogger())
	assert.Error(t, err)
}

func TestRedisStore_OutageTreatedAsAbsent(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer func() { _ = client.Close() }()

	s := NewRedisStore(client, "learnflow", discardLogger())
	s.Put(ctx, "a1", "r1")
	access, err := mr.Get("learnflow:lf_access")
	require.NoError(t, err)
	assert.Equal(t, "a1", access)
	refresh, err := mr.Get("learnflow:lf_refresh")
	require.NoError(t, err)
	assert.Equal(t, "r1", refresh)

	mr.Close()

	_, ok := s.Get(ctx, Access)
	assert.False(t, ok)

	// Writes and clears during the outage do not panic or block.
	s.Put(ctx, "a2", "")
	s.Clear(ctx)
}

func TestNewRedisClient(t *testing.T) {
	ctx := context.Background()

	_, err := NewRedisClient(ctx, "")
	assert.Error(t, err)

	_, err = NewRedisClient(ctx, "not a url")
	assert.Error(t, err)

	mr := miniredis.RunT(t)
	client, err := NewRedisClient(ctx, "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	assert.NoError(t, client.Close())
}

func TestInspect(t *testing.T) {
	now := time.Now()

	sign := func(exp time.Time) string {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": exp.Unix()})
		s, err := token.SignedString([]byte("inspect-test-secret"))
		require.NoError(t, err)
		return s
	}

	t.Run("absent", func(t *testing.T) {
		info := Inspect("")
		assert.False(t, info.Present)
		assert.Equal(t, "absent", info.Describe(now))
	})

	t.Run("opaque token", func(t *testing.T) {
		info := Inspect("not-a-jwt")
		assert.True(t, info.Present)
		assert.False(t, info.HasExpiry)
		assert.Equal(t, "present (expiry unknown)", info.Describe(now))
	})

	t.Run("valid jwt", func(t *testing.T) {
		info := Inspect(sign(now.Add(time.Hour)))
		assert.True(t, info.HasExpiry)
		assert.False(t, info.Expired(now))
		assert.Contains(t, info.Describe(now), "valid until")
	})

	t.Run("expired jwt", func(t *testing.T) {
		info := Inspect(sign(now.Add(-time.Hour)))
		assert.True(t, info.Expired(now))
		assert.Contains(t, info.Describe(now), "expired at")
	})
}

func TestKind_Key(t *testing.T) {
	assert.Equal(t, "lf_access", Access.Key())
	assert.Equal(t, "lf_refresh", Refresh.Key())
	assert.Equal(t, []Kind{Access, Refresh}, Kinds)
}

func TestRedisStore_ClearRemovesEveryKind(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	s := NewRedisStore(client, "learnflow", discardLogger())
	s.Put(ctx, "a1", "r1")
	require.NoError(t, mr.Set("learnflow:other", "kept"))

	s.Clear(ctx)

	for _, kind := range Kinds {
		assert.False(t, mr.Exists("learnflow:"+kind.Key()), kind)
	}
	assert.True(t, mr.Exists("learnflow:other"))
}
