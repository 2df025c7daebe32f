package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RAHAT11790/RS-ANIME-02-sub000/internal/models"
	"github.com/RAHAT11790/RS-ANIME-02-sub000/internal/registry"
	"github.com/RAHAT11790/RS-ANIME-02-sub000/internal/sender"
	"github.com/RAHAT11790/RS-ANIME-02-sub000/internal/store"
	"github.com/RAHAT11790/RS-ANIME-02-sub000/pkg/retry"
)

// outcomeProvider fails selected tokens with the configured error text and
// tracks the peak number of concurrent sends.
type outcomeProvider struct {
	mu       sync.Mutex
	failWith map[string]string
	inFlight int64
	peak     int64
	delay    time.Duration
}

func (p *outcomeProvider) Name() string { return "fake" }

func (p *outcomeProvider) Send(_ context.Context, token string, _ *models.Message) error {
	cur := atomic.AddInt64(&p.inFlight, 1)
	for {
		old := atomic.LoadInt64(&p.peak)
		if cur <= old || atomic.CompareAndSwapInt64(&p.peak, old, cur) {
			break
		}
	}
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	defer atomic.AddInt64(&p.inFlight, -1)

	p.mu.Lock()
	text, ok := p.failWith[token]
	p.mu.Unlock()
	if ok {
		return errors.New(text)
	}
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(t *testing.T, provider sender.PushProvider) (*Engine, *registry.Registry) {
	t.Helper()
	reg := registry.New(store.NewMemoryStore(), discardLogger())
	snd := sender.New(provider, nil, discardLogger()).
		WithPolicy(retry.Policy{MaxRetries: 0, BackoffBase: time.Millisecond})
	return NewEngine(reg, snd, nil, nil, discardLogger()), reg
}

func seedTokens(t *testing.T, reg *registry.Registry, userID string, tokens ...string) {
	t.Helper()
	for _, token := range tokens {
		require.NoError(t, reg.Register(context.Background(), userID, token, "dev-"+token, "", ""))
	}
}

func msg() *models.Message {
	return &models.Message{Title: "t", Body: "b", Data: map[string]string{}}
}

func TestDispatchRejectsEmptyRequest(t *testing.T) {
	engine, _ := newTestEngine(t, &outcomeProvider{})
	_, err := engine.Dispatch(context.Background(), Request{Message: msg()})
	assert.ErrorIs(t, err, ErrNoTargets)
}

func TestDispatchRejectsMissingMessage(t *testing.T) {
	engine, _ := newTestEngine(t, &outcomeProvider{})
	_, err := engine.Dispatch(context.Background(), Request{Tokens: []string{"a"}})
	assert.ErrorIs(t, err, ErrNoMessage)
}

func TestDispatchAllSuccess(t *testing.T) {
	engine, _ := newTestEngine(t, &outcomeProvider{})
	resp, err := engine.Dispatch(context.Background(), Request{
		Tokens:  []string{"a", "b", "c"},
		Message: msg(),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, resp.TotalTokens)
	assert.Equal(t, 3, resp.Success)
	assert.Equal(t, 0, resp.Failed)
	assert.Empty(t, resp.InvalidTokens)
}

func TestDispatchDedupsExplicitTokens(t *testing.T) {
	engine, _ := newTestEngine(t, &outcomeProvider{})
	resp, err := engine.Dispatch(context.Background(), Request{
		Tokens:  []string{"a", "a", "a"},
		Message: msg(),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.TotalTokens)
	assert.Equal(t, 1, resp.Success)
}

func TestDispatchTransientFailuresNeverDeleteTokens(t *testing.T) {
	provider := &outcomeProvider{failWith: map[string]string{
		"a": "UNAVAILABLE", "b": "UNAVAILABLE", "c": "UNAVAILABLE",
	}}
	engine, reg := newTestEngine(t, provider)
	seedTokens(t, reg, "u1", "a", "b", "c")

	resp, err := engine.Dispatch(context.Background(), Request{
		UserIDs: []string{"u1"},
		Message: msg(),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, resp.Failed)
	assert.Equal(t, 3, resp.FailReasons.Transient)
	assert.Equal(t, 0, resp.InvalidRemoved)

	remaining, _, err := reg.ResolveTokens(context.Background(), []string{"u1"})
	require.NoError(t, err)
	assert.Len(t, remaining, 3)
}

func TestDispatchDeletesExactlyTheInvalidSubset(t *testing.T) {
	provider := &outcomeProvider{failWith: map[string]string{
		"b": "push: status 404: UNREGISTERED",
		"c": "some unclassified failure",
	}}
	engine, reg := newTestEngine(t, provider)
	seedTokens(t, reg, "u1", "a", "b", "c")

	resp, err := engine.Dispatch(context.Background(), Request{
		UserIDs: []string{"u1"},
		Message: msg(),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Success)
	assert.Equal(t, 2, resp.Failed)
	assert.Equal(t, models.FailReasons{Invalid: 1, Transient: 0, Other: 1}, resp.FailReasons)
	assert.Equal(t, []string{"b"}, resp.InvalidTokens)
	assert.Equal(t, 1, resp.InvalidRemoved)

	remaining, _, err := reg.ResolveTokens(context.Background(), []string{"u1"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "c"}, remaining)
}

func TestDispatchInvalidSweepForExplicitTokens(t *testing.T) {
	provider := &outcomeProvider{failWith: map[string]string{
		"b": "push: status 404: UNREGISTERED",
	}}
	engine, reg := newTestEngine(t, provider)
	seedTokens(t, reg, "u1", "a", "b")

	// Explicit-token dispatch has no reverse map; the sweep re-scans.
	resp, err := engine.Dispatch(context.Background(), Request{
		Tokens:  []string{"a", "b"},
		Message: msg(),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.InvalidRemoved)

	remaining, _, err := reg.ResolveTokens(context.Background(), []string{"u1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, remaining)
}

func TestDispatchReasonDiscriminators(t *testing.T) {
	engine, reg := newTestEngine(t, &outcomeProvider{})
	seedTokens(t, reg, "u1", "a")

	resp, err := engine.Dispatch(context.Background(), Request{
		UserIDs: []string{"ghost"},
		Message: msg(),
	})
	require.NoError(t, err)
	assert.Equal(t, models.ReasonNoMatchingTokens, resp.Reason)
	assert.Equal(t, 0, resp.TotalTokens)

	resp, err = engine.Dispatch(context.Background(), Request{
		UserIDs: []string{""},
		Message: msg(),
	})
	require.NoError(t, err)
	assert.Equal(t, models.ReasonNoTargetUsers, resp.Reason)
}

func TestDispatchBoundsSendConcurrency(t *testing.T) {
	provider := &outcomeProvider{delay: 2 * time.Millisecond}
	engine, _ := newTestEngine(t, provider)

	tokens := make([]string, 90)
	for i := range tokens {
		tokens[i] = fmt.Sprintf("tok-%d", i)
	}
	resp, err := engine.Dispatch(context.Background(), Request{
		Tokens:  tokens,
		Message: msg(),
	})
	require.NoError(t, err)
	assert.Equal(t, 90, resp.Success)
	assert.LessOrEqual(t, provider.peak, int64(SendConcurrency))
}
