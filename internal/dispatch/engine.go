// Package dispatch implements the notification fan-out pipeline: the
// server-side engine that resolves targets, drives per-token sends through a
// bounded worker pool and sweeps invalid tokens, plus the HTTP client that
// partitions large token sets into chunked requests against the dispatch
// endpoint.
package dispatch

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/RAHAT11790/RS-ANIME-02-sub000/internal/models"
	"github.com/RAHAT11790/RS-ANIME-02-sub000/internal/registry"
	"github.com/RAHAT11790/RS-ANIME-02-sub000/internal/sender"
	"github.com/RAHAT11790/RS-ANIME-02-sub000/pkg/metrics"
	"github.com/RAHAT11790/RS-ANIME-02-sub000/pkg/pool"
)

// SendConcurrency bounds simultaneous upstream calls within one dispatch;
// the effective pool size is min(SendConcurrency, token count).
const SendConcurrency = 30

// ErrNoTargets is returned when a request names neither tokens nor users.
var ErrNoTargets = errors.New("dispatch: either tokens or userIds must be provided")

// ErrNoMessage is returned when the request carries no title or body.
var ErrNoMessage = errors.New("dispatch: title and body are required")

// Request is one server-side dispatch: exactly one of Tokens/UserIDs should
// be populated.
type Request struct {
	Tokens  []string
	UserIDs []string
	Message *models.Message
}

// Auditor persists job progress for operators. Implementations must be safe
// to skip; a nil Auditor disables auditing.
type Auditor interface {
	RecordPhase(ctx context.Context, jobID string, phase models.Phase, resp *models.DispatchResponse)
}

type Engine struct {
	registry    *registry.Registry
	sender      *sender.Sender
	metrics     *metrics.Metrics
	audit       Auditor
	logger      *slog.Logger
	concurrency int
}

func NewEngine(reg *registry.Registry, snd *sender.Sender, m *metrics.Metrics, audit Auditor, logger *slog.Logger) *Engine {
	return &Engine{
		registry:    reg,
		sender:      snd,
		metrics:     m,
		audit:       audit,
		logger:      logger,
		concurrency: SendConcurrency,
	}
}

// Dispatch delivers the message to every target token. Failures within one
// token never abort the others: the full set is always drained and reported
// through the aggregate. An error is returned only for malformed requests,
// before any send begins.
func (e *Engine) Dispatch(ctx context.Context, req Request) (*models.DispatchResponse, error) {
	if len(req.Tokens) == 0 && len(req.UserIDs) == 0 {
		return nil, ErrNoTargets
	}
	if req.Message == nil || req.Message.Title == "" || req.Message.Body == "" {
		return nil, ErrNoMessage
	}

	jobID := uuid.NewString()
	resp := &models.DispatchResponse{InvalidTokens: []string{}}
	if e.metrics != nil {
		e.metrics.IncDispatches()
	}
	e.recordPhase(ctx, jobID, models.PhaseTokens, resp)

	tokens, pathsByToken, reason, details := e.resolveTargets(ctx, req)
	if reason != "" {
		resp.Reason = reason
		resp.Details = details
		e.recordPhase(ctx, jobID, models.PhaseDone, resp)
		return resp, nil
	}
	resp.TotalTokens = len(tokens)

	e.recordPhase(ctx, jobID, models.PhaseSending, resp)
	outcomes := make([]models.Outcome, len(tokens))
	pool.Run(ctx, e.concurrency, len(tokens), func(ctx context.Context, i int) {
		outcomes[i] = e.sender.SendOne(ctx, tokens[i], req.Message)
	})

	for i, outcome := range outcomes {
		switch outcome {
		case models.OutcomeSuccess:
			resp.Success++
		case models.OutcomeInvalid:
			resp.Failed++
			resp.FailReasons.Invalid++
			resp.InvalidTokens = append(resp.InvalidTokens, tokens[i])
		case models.OutcomeTransient:
			resp.Failed++
			resp.FailReasons.Transient++
		default:
			resp.Failed++
			resp.FailReasons.Other++
		}
	}

	e.recordPhase(ctx, jobID, models.PhaseCleanup, resp)
	if len(resp.InvalidTokens) > 0 {
		removed, err := e.sweepInvalid(ctx, resp.InvalidTokens, pathsByToken)
		if err != nil {
			// The tokens stay registered and will be swept again after the
			// next failed delivery.
			e.logger.Warn("invalid token sweep failed",
				slog.String("job_id", jobID), slog.Any("error", err))
		}
		resp.InvalidRemoved = removed
	}

	if e.metrics != nil {
		e.metrics.AddDelivered(resp.Success)
		e.metrics.AddFailed(resp.Failed)
		e.metrics.AddInvalidRemoved(resp.InvalidRemoved)
	}
	e.recordPhase(ctx, jobID, models.PhaseDone, resp)
	e.logger.Info("dispatch complete",
		slog.String("job_id", jobID),
		slog.Int("total", resp.TotalTokens),
		slog.Int("success", resp.Success),
		slog.Int("failed", resp.Failed),
		slog.Int("invalid_removed", resp.InvalidRemoved))
	return resp, nil
}

func (e *Engine) resolveTargets(ctx context.Context, req Request) (tokens []string, pathsByToken map[string][]models.TokenPath, reason, details string) {
	if len(req.Tokens) > 0 {
		tokens = dedupe(req.Tokens)
		if len(tokens) == 0 {
			return nil, nil, models.ReasonNoTokens, ""
		}
		return tokens, nil, "", ""
	}

	userIDs := dedupe(req.UserIDs)
	if len(userIDs) == 0 {
		return nil, nil, models.ReasonNoTargetUsers, ""
	}
	tokens, pathsByToken, err := e.registry.ResolveTokens(ctx, userIDs)
	if err != nil {
		e.logger.Error("token lookup failed", slog.Any("error", err))
		return nil, nil, models.ReasonTokenLookupFailed, err.Error()
	}
	if len(tokens) == 0 {
		return nil, nil, models.ReasonNoMatchingTokens, ""
	}
	return tokens, pathsByToken, "", ""
}

func (e *Engine) sweepInvalid(ctx context.Context, invalid []string, pathsByToken map[string][]models.TokenPath) (int, error) {
	if pathsByToken != nil {
		return e.registry.DeleteByPaths(ctx, invalid, pathsByToken)
	}
	return e.registry.DeleteTokens(ctx, invalid)
}

func (e *Engine) recordPhase(ctx context.Context, jobID string, phase models.Phase, resp *models.DispatchResponse) {
	if e.audit == nil {
		return
	}
	e.audit.RecordPhase(ctx, jobID, phase, resp)
}

// dedupe returns the input without duplicates or empty strings, preserving
// first-seen order.
func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, v := range in {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
