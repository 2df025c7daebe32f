package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RAHAT11790/RS-ANIME-02-sub000/internal/models"
)

// dispatchStub records every request to a fake dispatch endpoint and answers
// each chunk with an all-success response unless a script says otherwise.
type dispatchStub struct {
	mu        sync.Mutex
	requests  []dispatchRequest
	inFlight  int64
	peak      int64
	delay     time.Duration
	scriptFor func(attempt int) int // returns status; 0 means 200
	attempts  int64
}

func (s *dispatchStub) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cur := atomic.AddInt64(&s.inFlight, 1)
		defer atomic.AddInt64(&s.inFlight, -1)
		for {
			old := atomic.LoadInt64(&s.peak)
			if cur <= old || atomic.CompareAndSwapInt64(&s.peak, old, cur) {
				break
			}
		}
		if s.delay > 0 {
			time.Sleep(s.delay)
		}

		attempt := int(atomic.AddInt64(&s.attempts, 1))
		if s.scriptFor != nil {
			if status := s.scriptFor(attempt); status != 0 {
				http.Error(w, "scripted failure", status)
				return
			}
		}

		var req dispatchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.mu.Lock()
		s.requests = append(s.requests, req)
		s.mu.Unlock()

		resp := models.DispatchResponse{
			Success:       len(req.Tokens),
			TotalTokens:   len(req.Tokens),
			InvalidTokens: []string{},
		}
		if len(req.UserIDs) > 0 {
			resp.Success = len(req.UserIDs)
			resp.TotalTokens = len(req.UserIDs)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func newTestClient(endpoint string) *Client {
	c := NewClient(endpoint, "https://anime.example", slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.policy.BackoffBase = 5 * time.Millisecond
	return c
}

func makeTokens(n int) []string {
	tokens := make([]string, n)
	for i := range tokens {
		tokens[i] = fmt.Sprintf("tok-%04d", i)
	}
	return tokens
}

func payload() *models.Payload {
	return &models.Payload{Title: "New episode", Body: "Episode 12 is out", Link: "/watch/12"}
}

func TestSendToTokensChunkingTotality(t *testing.T) {
	stub := &dispatchStub{}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	tokens := makeTokens(400)
	agg, err := newTestClient(srv.URL).SendToTokens(context.Background(), tokens, payload(), nil)
	require.NoError(t, err)

	assert.Equal(t, 400, agg.Total)
	assert.Equal(t, 400, agg.Success)
	require.Len(t, stub.requests, 3)

	var sizes []int
	var union []string
	for _, req := range stub.requests {
		sizes = append(sizes, len(req.Tokens))
		union = append(union, req.Tokens...)
	}
	assert.ElementsMatch(t, []int{180, 180, 40}, sizes)
	assert.ElementsMatch(t, tokens, union)
}

func TestSendToTokensBoundsChunkConcurrency(t *testing.T) {
	stub := &dispatchStub{delay: 10 * time.Millisecond}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	// 2000 tokens make 12 chunks, but never more than 3 requests in flight.
	agg, err := newTestClient(srv.URL).SendToTokens(context.Background(), makeTokens(2000), payload(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2000, agg.Total)
	assert.LessOrEqual(t, stub.peak, int64(ChunkConcurrency))
}

func TestSendToTokensDedupIdempotence(t *testing.T) {
	stub := &dispatchStub{}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	agg, err := newTestClient(srv.URL).SendToTokens(context.Background(),
		[]string{"t", "t", "t"}, payload(), nil)
	require.NoError(t, err)

	assert.Equal(t, 1, agg.Total)
	assert.Equal(t, 1, agg.Success)
	require.Len(t, stub.requests, 1)
	assert.Equal(t, []string{"t"}, stub.requests[0].Tokens)
}

func TestSendToTokensInjectsReservedDataKeys(t *testing.T) {
	stub := &dispatchStub{}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	_, err := newTestClient(srv.URL).SendToTokens(context.Background(), []string{"t"}, payload(), nil)
	require.NoError(t, err)

	require.Len(t, stub.requests, 1)
	assert.Equal(t, "/watch/12", stub.requests[0].Data[models.DataKeyLink])
	assert.Equal(t, "https://anime.example", stub.requests[0].Data[models.DataKeyOrigin])
}

func TestSendToTokensRetriesServerErrorsThenSucceeds(t *testing.T) {
	stub := &dispatchStub{scriptFor: func(attempt int) int {
		if attempt <= 2 {
			return http.StatusServiceUnavailable
		}
		return 0
	}}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	agg, err := newTestClient(srv.URL).SendToTokens(context.Background(), []string{"t"}, payload(), nil)
	require.NoError(t, err)

	// Two 503s then a 200: three requests, chunk counted successful.
	assert.Equal(t, int64(3), stub.attempts)
	assert.Equal(t, 1, agg.Success)
	assert.Equal(t, 0, agg.Failed)
}

func TestSendToTokensChunkFailureCountsWholeChunk(t *testing.T) {
	stub := &dispatchStub{scriptFor: func(int) int { return http.StatusServiceUnavailable }}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	agg, err := newTestClient(srv.URL).SendToTokens(context.Background(), makeTokens(10), payload(), nil)
	require.NoError(t, err)

	// Retries exhausted: no partial credit for the chunk.
	assert.Equal(t, 10, agg.Failed)
	assert.Equal(t, 10, agg.FailReasons.Other)
	assert.Equal(t, 0, agg.Success)
}

func TestSendToTokensNonRetryableClientError(t *testing.T) {
	stub := &dispatchStub{scriptFor: func(int) int { return http.StatusBadRequest }}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	agg, err := newTestClient(srv.URL).SendToTokens(context.Background(), []string{"t"}, payload(), nil)
	require.NoError(t, err)

	// A 4xx other than 429 is not retried.
	assert.Equal(t, int64(1), stub.attempts)
	assert.Equal(t, 1, agg.Failed)
}

func TestSendToTokensEmptyShortCircuit(t *testing.T) {
	stub := &dispatchStub{}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	agg, err := newTestClient(srv.URL).SendToTokens(context.Background(), nil, payload(), nil)
	require.NoError(t, err)

	assert.True(t, agg.Skipped)
	assert.Equal(t, models.ReasonNoTokens, agg.Reason)
	assert.Equal(t, int64(0), stub.attempts)
}

func TestSendToUsersEmptyShortCircuit(t *testing.T) {
	stub := &dispatchStub{}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	var last models.Progress
	done := false
	agg, err := newTestClient(srv.URL).SendToUsers(context.Background(), nil, payload(), func(p models.Progress) {
		last = p
		if p.Phase == models.PhaseDone {
			done = true
		}
	})
	require.NoError(t, err)

	assert.True(t, agg.Skipped)
	assert.Equal(t, models.ReasonNoTargetUsers, agg.Reason)
	assert.Equal(t, int64(0), stub.attempts)
	assert.True(t, done)
	assert.Equal(t, models.PhaseDone, last.Phase)
}

func TestSendToUsersDelegatesResolution(t *testing.T) {
	stub := &dispatchStub{}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	agg, err := newTestClient(srv.URL).SendToUsers(context.Background(),
		[]string{"u1", "u2", "u1"}, payload(), nil)
	require.NoError(t, err)

	require.Len(t, stub.requests, 1)
	assert.Equal(t, []string{"u1", "u2"}, stub.requests[0].UserIDs)
	assert.Empty(t, stub.requests[0].Tokens)
	assert.Equal(t, 2, agg.Total)
}

func TestProgressPhasesAreMonotonicAndFinishDone(t *testing.T) {
	stub := &dispatchStub{delay: 2 * time.Millisecond}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	var mu sync.Mutex
	var phases []models.Phase
	_, err := newTestClient(srv.URL).SendToTokens(context.Background(), makeTokens(400), payload(),
		func(p models.Progress) {
			mu.Lock()
			phases = append(phases, p.Phase)
			mu.Unlock()
		})
	require.NoError(t, err)

	require.NotEmpty(t, phases)
	for i := 1; i < len(phases); i++ {
		assert.GreaterOrEqual(t, phases[i], phases[i-1], "phase went backward at %d", i)
	}
	assert.Equal(t, models.PhaseDone, phases[len(phases)-1])
}
