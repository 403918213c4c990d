package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/utafrali/BackOfficeGo/internal/domain"
	"github.com/utafrali/BackOfficeGo/internal/usage"
	pkgkafka "github.com/utafrali/BackOfficeGo/pkg/kafka"
)

// TopicOrderCompleted is published by POS terminals when an order is paid.
const TopicOrderCompleted = "pos.order.completed"

// UsageRecorder is the part of usage.Recorder the consumer needs.
type UsageRecorder interface {
	Record(ctx context.Context, req usage.Request) (domain.PromotionUsage, error)
}

// OrderCompletedData is the expected payload of a pos.order.completed event.
type OrderCompletedData struct {
	OrderID    string                   `json:"order_id"`
	CustomerID *string                  `json:"customer_id,omitempty"`
	Promotions []OrderPromotionConsumed `json:"promotions"`
}

// OrderPromotionConsumed is one promotion applied to a completed order.
type OrderPromotionConsumed struct {
	PromotionID    string `json:"promotion_id"`
	DiscountAmount int64  `json:"discount_amount"`
}

// ErrInvalidPayload marks an event that can never be processed.
var ErrInvalidPayload = errors.New("invalid order.completed payload")

// Consumer turns completed orders into promotion usage records.
type Consumer struct {
	recorder UsageRecorder
	logger   *slog.Logger
}

// NewConsumer creates a new event consumer for completed orders.
func NewConsumer(recorder UsageRecorder, logger *slog.Logger) *Consumer {
	return &Consumer{
		recorder: recorder,
		logger:   logger,
	}
}

// HandleOrderCompleted records one usage per promotion of the order. Business
// rejections (cap reached, already recorded) are logged and skipped; store
// failures are returned so the message is retried. Because usages are unique
// per order, a retry only re-records the promotions that failed.
func (c *Consumer) HandleOrderCompleted(ctx context.Context, event *pkgkafka.Event) error {
	var data OrderCompletedData
	if err := event.UnmarshalData(&data); err != nil {
		return fmt.Errorf("unmarshal order.completed data: %w", err)
	}
	if data.OrderID == "" {
		return fmt.Errorf("%w: missing order_id", ErrInvalidPayload)
	}

	c.logger.InfoContext(ctx, "processing order.completed event",
		slog.String("order_id", data.OrderID),
		slog.Int("promotions", len(data.Promotions)),
	)

	var failed []error
	for _, p := range data.Promotions {
		// Promotion ids are uuids. Anything else can never match a row, so
		// it is dropped here instead of failing in the store and counting
		// against the usage breaker.
		if _, err := uuid.Parse(p.PromotionID); err != nil {
			c.logger.WarnContext(ctx, "skipping promotion with invalid id",
				slog.String("order_id", data.OrderID),
				slog.String("promotion_id", p.PromotionID),
			)
			continue
		}

		_, err := c.recorder.Record(ctx, usage.Request{
			PromotionID:    p.PromotionID,
			CustomerID:     data.CustomerID,
			OrderID:        data.OrderID,
			DiscountAmount: p.DiscountAmount,
		})
		switch {
		case err == nil:
		case usage.IsRejection(err):
			c.logger.WarnContext(ctx, "promotion usage rejected",
				slog.String("order_id", data.OrderID),
				slog.String("promotion_id", p.PromotionID),
				slog.String("reason", err.Error()),
			)
		default:
			failed = append(failed, fmt.Errorf("record usage of promotion %s: %w", p.PromotionID, err))
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("order %s: %w", data.OrderID, errors.Join(failed...))
	}
	return nil
}
