// Package sender translates one resolved token plus payload into one
// upstream delivery call, classifies the outcome, and retries only when the
// failure is transient.
package sender

import (
	"context"
	"log/slog"
	"time"

	"github.com/RAHAT11790/RS-ANIME-02-sub000/internal/models"
	"github.com/RAHAT11790/RS-ANIME-02-sub000/pkg/metrics"
	"github.com/RAHAT11790/RS-ANIME-02-sub000/pkg/retry"
)

const (
	defaultMaxRetries  = 2
	defaultBackoffBase = 500 * time.Millisecond
)

type Sender struct {
	provider PushProvider
	policy   retry.Policy
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func New(provider PushProvider, m *metrics.Metrics, logger *slog.Logger) *Sender {
	return &Sender{
		provider: provider,
		policy: retry.Policy{
			MaxRetries:  defaultMaxRetries,
			BackoffBase: defaultBackoffBase,
		},
		metrics: m,
		logger:  logger,
	}
}

// WithPolicy overrides the retry policy constants; the transient-only
// retryable predicate is always enforced.
func (s *Sender) WithPolicy(p retry.Policy) *Sender {
	s.policy = p
	return s
}

// SendOne delivers msg to a single token and returns the classified outcome
// after retries are exhausted. Only transient failures are retried.
func (s *Sender) SendOne(ctx context.Context, token string, msg *models.Message) models.Outcome {
	policy := s.policy
	policy.Retryable = func(err error) bool {
		if Classify(err) != models.OutcomeTransient {
			return false
		}
		if s.metrics != nil {
			s.metrics.IncRetried()
		}
		return true
	}

	err := retry.Do(ctx, policy, func() error {
		return s.provider.Send(ctx, token, msg)
	})
	outcome := Classify(err)
	if outcome != models.OutcomeSuccess {
		s.logger.Debug("token send failed",
			slog.String("provider", s.provider.Name()),
			slog.String("outcome", outcome.String()),
			slog.Any("error", err))
	}
	return outcome
}
