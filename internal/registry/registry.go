// Package registry owns the per-user set of live push tokens: registration
// with per-device deduplication, a per-user cap with oldest-first eviction,
// resolution of users to tokens, and reclamation of dead tokens.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/RAHAT11790/RS-ANIME-02-sub000/internal/models"
	"github.com/RAHAT11790/RS-ANIME-02-sub000/internal/store"
)

// MaxTokensPerUser caps how many device tokens one user may hold. Exceeding
// registrations evict the oldest entries by UpdatedAt.
const MaxTokensPerUser = 3

type Registry struct {
	store     store.Store
	logger    *slog.Logger
	maxTokens int
	now       func() time.Time
}

func New(st store.Store, logger *slog.Logger) *Registry {
	return &Registry{
		store:     st,
		logger:    logger,
		maxTokens: MaxTokensPerUser,
		now:       time.Now,
	}
}

// Register writes or refreshes the token entry for userID, then prunes:
// any other entry for the same device is deleted (same device, stale token),
// and if the cap would still be exceeded the oldest entries by UpdatedAt are
// evicted. Both deletion sets go to the store as one batched write.
func (r *Registry) Register(ctx context.Context, userID, token, deviceID, origin, userAgent string) error {
	if userID == "" || token == "" {
		return fmt.Errorf("registry: userID and token are required")
	}

	key := models.TokenKey(token)
	entry := models.DeviceToken{
		Token:     token,
		DeviceID:  deviceID,
		Origin:    origin,
		UpdatedAt: r.now().UTC(),
		UserAgent: userAgent,
	}
	value, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("registry: marshal token entry: %w", err)
	}
	if err := r.store.SetEntry(ctx, userID, key, value); err != nil {
		return fmt.Errorf("registry: register token for %s: %w", userID, err)
	}

	if err := r.prune(ctx, userID, key, deviceID); err != nil {
		// Pruning failures leave extra entries behind but never undo a
		// successful registration; the next registration prunes again.
		r.logger.Warn("token prune failed",
			slog.String("user_id", userID), slog.Any("error", err))
	}
	return nil
}

func (r *Registry) prune(ctx context.Context, userID, justWrittenKey, deviceID string) error {
	entries, err := r.store.ListEntries(ctx, userID)
	if err != nil {
		return err
	}

	doomed := make(map[string]struct{})
	type aged struct {
		key       string
		updatedAt time.Time
	}
	var rest []aged

	for key, raw := range entries {
		if key == justWrittenKey {
			continue
		}
		var entry models.DeviceToken
		if err := json.Unmarshal(raw, &entry); err != nil {
			// Unreadable entries cannot be ordered; evict them first.
			doomed[key] = struct{}{}
			continue
		}
		if deviceID != "" && entry.DeviceID == deviceID {
			doomed[key] = struct{}{}
			continue
		}
		rest = append(rest, aged{key: key, updatedAt: entry.UpdatedAt})
	}

	if excess := len(rest) + 1 - r.maxTokens; excess > 0 {
		sort.Slice(rest, func(i, j int) bool {
			return rest[i].updatedAt.Before(rest[j].updatedAt)
		})
		for _, a := range rest[:excess] {
			doomed[a.key] = struct{}{}
		}
	}

	if len(doomed) == 0 {
		return nil
	}
	paths := make([]models.TokenPath, 0, len(doomed))
	for key := range doomed {
		paths = append(paths, models.TokenPath{UserID: userID, Key: key})
	}
	_, err = r.store.DeleteEntries(ctx, paths)
	return err
}

// ResolveTokens scans the registry for the given user IDs (all users when
// none are given) and returns the deduplicated token list plus a reverse map
// token → storage paths, so invalid tokens can later be deleted without a
// second full scan.
func (r *Registry) ResolveTokens(ctx context.Context, userIDs []string) ([]string, map[string][]models.TokenPath, error) {
	if len(userIDs) == 0 {
		all, err := r.store.ListUsers(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("registry: list users: %w", err)
		}
		userIDs = all
	}

	var tokens []string
	paths := make(map[string][]models.TokenPath)
	for _, userID := range userIDs {
		entries, err := r.store.ListEntries(ctx, userID)
		if err != nil {
			return nil, nil, fmt.Errorf("registry: resolve tokens for %s: %w", userID, err)
		}
		for key, raw := range entries {
			var entry models.DeviceToken
			if err := json.Unmarshal(raw, &entry); err != nil || entry.Token == "" {
				continue
			}
			if _, seen := paths[entry.Token]; !seen {
				tokens = append(tokens, entry.Token)
			}
			paths[entry.Token] = append(paths[entry.Token], models.TokenPath{UserID: userID, Key: key})
		}
	}
	return tokens, paths, nil
}

// DeleteByPaths removes the entries behind the given tokens using a reverse
// map from ResolveTokens. Returns how many entries were actually removed.
func (r *Registry) DeleteByPaths(ctx context.Context, tokens []string, pathsByToken map[string][]models.TokenPath) (int, error) {
	var paths []models.TokenPath
	for _, token := range tokens {
		paths = append(paths, pathsByToken[token]...)
	}
	if len(paths) == 0 {
		return 0, nil
	}
	removed, err := r.store.DeleteEntries(ctx, paths)
	if err != nil {
		return 0, fmt.Errorf("registry: delete invalid tokens: %w", err)
	}
	return removed, nil
}

// DeleteTokens removes the given exact tokens wherever they appear in the
// registry, re-scanning to find matching entries. Returns how many entries
// matched and were removed, which may be fewer than requested.
func (r *Registry) DeleteTokens(ctx context.Context, tokens []string) (int, error) {
	if len(tokens) == 0 {
		return 0, nil
	}
	_, pathsByToken, err := r.ResolveTokens(ctx, nil)
	if err != nil {
		return 0, err
	}
	return r.DeleteByPaths(ctx, tokens, pathsByToken)
}
