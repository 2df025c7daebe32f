package consumer

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/RAHAT11790/RS-ANIME-02-sub000/internal/dispatch"
	"github.com/RAHAT11790/RS-ANIME-02-sub000/internal/models"
)

// BroadcastJob is one queued "send a notification" request, produced by the
// back-office (admin broadcasts, new-episode releases, comment replies).
// Exactly one of UserIDs/Tokens should be populated.
type BroadcastJob struct {
	JobID   string                 `json:"jobId"`
	UserIDs []string               `json:"userIds,omitempty"`
	Tokens  []string               `json:"tokens,omitempty"`
	Title   string                 `json:"title"`
	Body    string                 `json:"body"`
	Image   string                 `json:"image,omitempty"`
	Icon    string                 `json:"icon,omitempty"`
	Badge   string                 `json:"badge,omitempty"`
	Link    string                 `json:"link,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

type BroadcastConsumer struct {
	base          *BaseConsumer
	engine        *dispatch.Engine
	origin        string
	logger        *slog.Logger
	maxDeliveries int
}

func NewBroadcastConsumer(base *BaseConsumer, engine *dispatch.Engine, origin string, logger *slog.Logger, maxDeliveries int) *BroadcastConsumer {
	if maxDeliveries <= 0 {
		maxDeliveries = 3
	}
	return &BroadcastConsumer{
		base:          base,
		engine:        engine,
		origin:        origin,
		logger:        logger,
		maxDeliveries: maxDeliveries,
	}
}

func (c *BroadcastConsumer) Start(ctx context.Context) error {
	return c.base.Start(ctx, c.handleDelivery)
}

func (c *BroadcastConsumer) handleDelivery(ctx context.Context, msg amqp.Delivery) error {
	var job BroadcastJob
	if err := json.Unmarshal(msg.Body, &job); err != nil {
		c.logger.Error("failed to unmarshal broadcast job", slog.Any("error", err))
		_ = msg.Reject(false)
		return err
	}

	payload := &models.Payload{
		Title: job.Title,
		Body:  job.Body,
		Image: job.Image,
		Icon:  job.Icon,
		Badge: job.Badge,
		Link:  job.Link,
		Data:  job.Data,
	}
	resp, err := c.engine.Dispatch(ctx, dispatch.Request{
		Tokens:  job.Tokens,
		UserIDs: job.UserIDs,
		Message: payload.Normalize(c.origin),
	})
	if err != nil {
		// Malformed jobs will never succeed; dead-letter immediately.
		c.logger.Error("broadcast job rejected",
			slog.String("job_id", job.JobID), slog.Any("error", err))
		_ = msg.Reject(false)
		return err
	}

	if resp.Reason == models.ReasonTokenLookupFailed {
		requeue := c.shouldRetry(&msg)
		if requeue {
			c.logger.Warn("token lookup failed, job requeued",
				slog.String("job_id", job.JobID), slog.String("details", resp.Details))
		} else {
			c.logger.Error("token lookup failed, job dead-lettered",
				slog.String("job_id", job.JobID), slog.String("details", resp.Details))
		}
		return msg.Nack(false, requeue)
	}

	c.logger.Info("broadcast job complete",
		slog.String("job_id", job.JobID),
		slog.Int("total", resp.TotalTokens),
		slog.Int("success", resp.Success),
		slog.Int("failed", resp.Failed),
		slog.String("reason", resp.Reason))
	return msg.Ack(false)
}

func (c *BroadcastConsumer) shouldRetry(msg *amqp.Delivery) bool {
	return deliveryAttempts(msg) < c.maxDeliveries
}

func deliveryAttempts(msg *amqp.Delivery) int {
	if msg.Headers == nil {
		if msg.Redelivered {
			return 1
		}
		return 0
	}
	if raw, ok := msg.Headers["x-death"]; ok {
		if deaths, ok := raw.([]interface{}); ok && len(deaths) > 0 {
			if table, ok := deaths[0].(amqp.Table); ok {
				if count, ok := table["count"].(int64); ok {
					return int(count)
				}
			}
		}
	}
	if msg.Redelivered {
		return 1
	}
	return 0
}
