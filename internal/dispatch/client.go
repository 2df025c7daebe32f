package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/RAHAT11790/RS-ANIME-02-sub000/internal/models"
	"github.com/RAHAT11790/RS-ANIME-02-sub000/pkg/pool"
	"github.com/RAHAT11790/RS-ANIME-02-sub000/pkg/retry"
)

const (
	// ChunkSize stays under the upstream provider's per-request token ceiling.
	ChunkSize = 180
	// ChunkConcurrency bounds simultaneous chunk requests regardless of how
	// many chunks a broadcast produces.
	ChunkConcurrency = 3

	requestTimeout     = 30 * time.Second
	requestMaxRetries  = 2
	requestBackoffBase = 350 * time.Millisecond
)

// dispatchRequest is the wire shape of the dispatch endpoint.
type dispatchRequest struct {
	Tokens  []string          `json:"tokens,omitempty"`
	UserIDs []string          `json:"userIds,omitempty"`
	Title   string            `json:"title"`
	Body    string            `json:"body"`
	Image   string            `json:"image,omitempty"`
	Icon    string            `json:"icon,omitempty"`
	Badge   string            `json:"badge,omitempty"`
	Data    map[string]string `json:"data"`
}

// Client fans a notification out to many tokens through the dispatch
// endpoint: deduplication, fixed-size chunking, a bounded worker pool over
// the chunk queue, per-request retry and cumulative progress reporting.
type Client struct {
	endpoint   string
	origin     string
	httpClient *http.Client
	policy     retry.Policy
	chunkSize  int
	workers    int
	logger     *slog.Logger
}

func NewClient(endpoint, origin string, logger *slog.Logger) *Client {
	return &Client{
		endpoint: endpoint,
		origin:   origin,
		// The per-attempt timeout lives on the HTTP client so a stalled
		// upstream cannot pin a worker past 30s.
		httpClient: &http.Client{Timeout: requestTimeout},
		policy: retry.Policy{
			MaxRetries:  requestMaxRetries,
			BackoffBase: requestBackoffBase,
			Retryable:   retryableRequest,
		},
		chunkSize: ChunkSize,
		workers:   ChunkConcurrency,
		logger:    logger,
	}
}

// SendToTokens delivers payload to the given tokens. The full chunk queue is
// always drained; per-chunk failures are folded into the aggregate rather
// than aborting siblings. An error is returned only before dispatch begins.
func (c *Client) SendToTokens(ctx context.Context, tokens []string, payload *models.Payload, onProgress models.ProgressFunc) (*models.Aggregate, error) {
	if payload == nil || payload.Title == "" || payload.Body == "" {
		return nil, ErrNoMessage
	}

	tokens = dedupe(tokens)
	if len(tokens) == 0 {
		agg := &models.Aggregate{Skipped: true, Reason: models.ReasonNoTokens}
		emit(onProgress, models.Progress{Phase: models.PhaseDone})
		return agg, nil
	}

	msg := payload.Normalize(c.origin)
	chunks := chunk(tokens, c.chunkSize)

	agg := &models.Aggregate{Total: len(tokens)}
	emit(onProgress, models.Progress{Phase: models.PhaseTokens, Total: agg.Total})
	emit(onProgress, models.Progress{Phase: models.PhaseSending, Total: agg.Total})

	var mu sync.Mutex
	sent := 0
	pool.Run(ctx, c.workers, len(chunks), func(ctx context.Context, i int) {
		resp, err := c.postChunk(ctx, chunks[i], msg)

		mu.Lock()
		defer mu.Unlock()
		sent += len(chunks[i])
		if err != nil {
			// The response was unusable, so no partial credit: the whole
			// chunk counts as failed.
			agg.Failed += len(chunks[i])
			agg.FailReasons.Other += len(chunks[i])
			c.logger.Warn("chunk dispatch failed",
				slog.Int("chunk", i), slog.Int("size", len(chunks[i])), slog.Any("error", err))
		} else {
			agg.Success += resp.Success
			agg.Failed += resp.Failed
			agg.InvalidRemoved += resp.InvalidRemoved
			agg.FailReasons.Invalid += resp.FailReasons.Invalid
			agg.FailReasons.Transient += resp.FailReasons.Transient
			agg.FailReasons.Other += resp.FailReasons.Other
		}
		emit(onProgress, models.Progress{
			Phase:          models.PhaseSending,
			Sent:           sent,
			Success:        agg.Success,
			Failed:         agg.Failed,
			InvalidRemoved: agg.InvalidRemoved,
			Total:          agg.Total,
		})
	})

	// Invalid registrations are swept by the endpoint as each chunk settles;
	// the cleanup phase closes once every chunk has reported its sweep.
	emit(onProgress, models.Progress{
		Phase:          models.PhaseCleanup,
		Sent:           sent,
		Success:        agg.Success,
		Failed:         agg.Failed,
		InvalidRemoved: agg.InvalidRemoved,
		Total:          agg.Total,
	})
	emit(onProgress, models.Progress{
		Phase:          models.PhaseDone,
		Sent:           sent,
		Success:        agg.Success,
		Failed:         agg.Failed,
		InvalidRemoved: agg.InvalidRemoved,
		Total:          agg.Total,
	})
	return agg, nil
}

// SendToUsers delegates token resolution to the dispatch endpoint so the
// token table never ships to the caller. Zero targets short-circuit with a
// reason discriminator instead of an ambiguous zero-count success.
func (c *Client) SendToUsers(ctx context.Context, userIDs []string, payload *models.Payload, onProgress models.ProgressFunc) (*models.Aggregate, error) {
	if payload == nil || payload.Title == "" || payload.Body == "" {
		return nil, ErrNoMessage
	}

	userIDs = dedupe(userIDs)
	if len(userIDs) == 0 {
		agg := &models.Aggregate{Skipped: true, Reason: models.ReasonNoTargetUsers}
		emit(onProgress, models.Progress{Phase: models.PhaseDone})
		return agg, nil
	}

	msg := payload.Normalize(c.origin)
	emit(onProgress, models.Progress{Phase: models.PhaseTokens})
	emit(onProgress, models.Progress{Phase: models.PhaseSending})

	resp, err := c.post(ctx, dispatchRequest{
		UserIDs: userIDs,
		Title:   msg.Title,
		Body:    msg.Body,
		Image:   msg.Image,
		Icon:    msg.Icon,
		Badge:   msg.Badge,
		Data:    msg.Data,
	})
	if err != nil {
		emit(onProgress, models.Progress{Phase: models.PhaseDone})
		return nil, err
	}

	agg := &models.Aggregate{
		Success:        resp.Success,
		Failed:         resp.Failed,
		Total:          resp.TotalTokens,
		InvalidRemoved: resp.InvalidRemoved,
		FailReasons:    resp.FailReasons,
		Reason:         resp.Reason,
	}
	snapshot := models.Progress{
		Phase:          models.PhaseCleanup,
		Sent:           agg.Total,
		Success:        agg.Success,
		Failed:         agg.Failed,
		InvalidRemoved: agg.InvalidRemoved,
		Total:          agg.Total,
	}
	emit(onProgress, snapshot)
	snapshot.Phase = models.PhaseDone
	emit(onProgress, snapshot)
	return agg, nil
}

func (c *Client) postChunk(ctx context.Context, tokens []string, msg *models.Message) (*models.DispatchResponse, error) {
	return c.post(ctx, dispatchRequest{
		Tokens: tokens,
		Title:  msg.Title,
		Body:   msg.Body,
		Image:  msg.Image,
		Icon:   msg.Icon,
		Badge:  msg.Badge,
		Data:   msg.Data,
	})
}

// post issues one dispatch request with retry: up to 2 retries on ≥500, 429
// or network failure, exponential backoff from 350ms. Other 4xx responses
// fail immediately with the endpoint's error body as the message.
func (c *Client) post(ctx context.Context, req dispatchRequest) (*models.DispatchResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	var resp *models.DispatchResponse
	err = retry.Do(ctx, c.policy, func() error {
		resp, err = c.attempt(ctx, body)
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) attempt(ctx context.Context, body []byte) (*models.DispatchResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 400 {
		detail, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		return nil, &statusError{status: httpResp.StatusCode, body: string(bytes.TrimSpace(detail))}
	}

	var resp models.DispatchResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("dispatch: decode response: %w", err)
	}
	return &resp, nil
}

type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("dispatch endpoint returned %d: %s", e.status, e.body)
}

func retryableRequest(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.status >= 500 || se.status == http.StatusTooManyRequests
	}
	// Network and timeout failures surface as *url.Error and are always
	// worth another attempt; anything else (e.g. an unparseable 2xx) is not.
	var ue *url.Error
	return errors.As(err, &ue)
}

func emit(onProgress models.ProgressFunc, p models.Progress) {
	if onProgress == nil {
		return
	}
	onProgress(p)
}

// chunk partitions tokens into slices of at most size entries.
func chunk(tokens []string, size int) [][]string {
	if size <= 0 {
		size = ChunkSize
	}
	var chunks [][]string
	for start := 0; start < len(tokens); start += size {
		end := start + size
		if end > len(tokens) {
			end = len(tokens)
		}
		chunks = append(chunks, tokens[start:end])
	}
	return chunks
}
