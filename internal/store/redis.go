package store

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/RAHAT11790/RS-ANIME-02-sub000/internal/models"
)

const (
	tokenHashPrefix = "push:tokens:"
	userIndexKey    = "push:token_users"
)

// RedisStore keeps one hash per user (push:tokens:{userID}, field = token
// key) plus a set of user IDs so the registry subtree can be scanned without
// KEYS. Batched deletes run through a single pipeline.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) SetEntry(ctx context.Context, userID, key string, value []byte) error {
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, tokenHashPrefix+userID, key, value)
	pipe.SAdd(ctx, userIndexKey, userID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store: set %s/%s: %w", userID, key, err)
	}
	return nil
}

func (s *RedisStore) ListEntries(ctx context.Context, userID string) (map[string][]byte, error) {
	raw, err := s.client.HGetAll(ctx, tokenHashPrefix+userID).Result()
	if err != nil {
		return nil, fmt.Errorf("store: list %s: %w", userID, err)
	}
	entries := make(map[string][]byte, len(raw))
	for k, v := range raw {
		entries[k] = []byte(v)
	}
	return entries, nil
}

func (s *RedisStore) ListUsers(ctx context.Context) ([]string, error) {
	users, err := s.client.SMembers(ctx, userIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("store: list users: %w", err)
	}
	return users, nil
}

func (s *RedisStore) DeleteEntries(ctx context.Context, paths []models.TokenPath) (int, error) {
	if len(paths) == 0 {
		return 0, nil
	}

	byUser := make(map[string][]string)
	for _, p := range paths {
		byUser[p.UserID] = append(byUser[p.UserID], p.Key)
	}

	pipe := s.client.TxPipeline()
	dels := make(map[string]*redis.IntCmd, len(byUser))
	for userID, keys := range byUser {
		dels[userID] = pipe.HDel(ctx, tokenHashPrefix+userID, keys...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("store: batched delete: %w", err)
	}

	removed := 0
	for userID, cmd := range dels {
		n := int(cmd.Val())
		removed += n
		if n > 0 {
			if remaining, err := s.client.HLen(ctx, tokenHashPrefix+userID).Result(); err == nil && remaining == 0 {
				s.client.SRem(ctx, userIndexKey, userID)
			}
		}
	}
	return removed, nil
}
