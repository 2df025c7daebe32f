// Package store abstracts the document store holding the token registry.
// Entries live under logical paths tokens/{userID}/{key}; every mutation of
// a logical operation is expressed as one batched write so concurrent
// operations on the same user never observe a partial update.
package store

import (
	"context"

	"github.com/RAHAT11790/RS-ANIME-02-sub000/internal/models"
)

// Store is the request/response surface the registry needs. Realtime
// subscription is deliberately out of scope; only diagnostic UIs subscribe.
type Store interface {
	// SetEntry writes or overwrites tokens/{userID}/{key}.
	SetEntry(ctx context.Context, userID, key string, value []byte) error
	// ListEntries returns every entry under tokens/{userID}, keyed by entry key.
	ListEntries(ctx context.Context, userID string) (map[string][]byte, error)
	// ListUsers returns every userID with at least one entry.
	ListUsers(ctx context.Context) ([]string, error)
	// DeleteEntries removes the given paths in one batched write and
	// returns how many entries actually existed and were removed.
	DeleteEntries(ctx context.Context, paths []models.TokenPath) (int, error)
	Close() error
}
