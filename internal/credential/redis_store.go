package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Aniruddha-M-Dhir/learnflow-lms/internal/domain"
)

// RedisStore keeps credentials in Redis so several client processes can share
// one session.
type RedisStore struct {
	client *redis.Client
	logger *slog.Logger
	prefix string
}

// NewRedisClient returns a go-redis client from a URL (e.g. redis://localhost:6379/0)
// after checking that the server answers.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	if redisURL == "" {
		return nil, errors.New("empty redis url")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

// NewRedisStore creates a Redis-backed store. Keys are "<prefix>:lf_access"
// and "<prefix>:lf_refresh".
func NewRedisStore(client *redis.Client, prefix string, logger *slog.Logger) *RedisStore {
	if logger == nil {
		logger = slog.Default()
	}
	prefix = strings.TrimSuffix(prefix, ":")
	if prefix == "" {
		prefix = "learnflow"
	}

	return &RedisStore{
		client: client,
		prefix: prefix,
		logger: logger.With("component", "credential_store", "backend", "redis"),
	}
}

func (s *RedisStore) key(kind Kind) string {
	return s.prefix + ":" + kind.Key()
}

// Get returns the stored token for kind.
func (s *RedisStore) Get(ctx context.Context, kind Kind) (string, bool) {
	val, err := s.client.Get(ctx, s.key(kind)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false
	}
	if err != nil {
		s.unavailable("get", err)
		return "", false
	}

	return val, val != ""
}

// Put stores the access token and, when supplied, the refresh token in one
// MULTI/EXEC transaction.
func (s *RedisStore) Put(ctx context.Context, access, refresh string) {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(Access), access, 0)
		if refresh != "" {
			pipe.Set(ctx, s.key(Refresh), refresh, 0)
		}
		return nil
	})
	if err != nil {
		s.unavailable("put", err)
	}
}

// Clear removes both tokens.
func (s *RedisStore) Clear(ctx context.Context) {
	keys := make([]string, 0, len(Kinds))
	for _, kind := range Kinds {
		keys = append(keys, s.key(kind))
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		s.unavailable("clear", err)
	}
}

func (s *RedisStore) unavailable(op string, cause error) {
	err := domain.NewStorageUnavailableError("CREDENTIAL_REDIS_"+strings.ToUpper(op), "Credential store unavailable", cause)
	s.logger.Warn("credential storage unavailable, treating as absent",
		"op", op,
		"prefix", s.prefix,
		"error", err,
	)
}
