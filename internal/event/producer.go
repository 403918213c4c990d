package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/utafrali/BackOfficeGo/internal/domain"
	pkgkafka "github.com/utafrali/BackOfficeGo/pkg/kafka"
	"github.com/utafrali/BackOfficeGo/pkg/logger"
)

// Kafka topic constants for promotion domain events.
var (
	TopicPromotionCreated       = pkgkafka.Topic("promotion", "created")
	TopicPromotionUpdated       = pkgkafka.Topic("promotion", "updated")
	TopicPromotionUsageRecorded = pkgkafka.Topic("promotion", "usage_recorded")
)

// AggregateTypePromotion is the aggregate type of every promotion event.
const AggregateTypePromotion = "promotion"

// SourcePromotionService identifies events originating from this service.
const SourcePromotionService = "promotion-service"

// PromotionData is the payload of promotion.created and promotion.updated.
type PromotionData struct {
	ID          string `json:"id"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	Kind        string `json:"kind,omitempty"`
	IsActive    bool   `json:"is_active"`
	IsStackable bool   `json:"is_stackable"`
	Priority    int    `json:"priority"`
}

// UsageRecordedData is the payload of promotion.usage_recorded.
type UsageRecordedData struct {
	UsageID        string  `json:"usage_id"`
	PromotionID    string  `json:"promotion_id"`
	CustomerID     *string `json:"customer_id,omitempty"`
	OrderID        string  `json:"order_id"`
	DiscountAmount int64   `json:"discount_amount"`
}

// Publisher is the part of pkgkafka.Producer the event producer needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes promotion domain events to Kafka.
type Producer struct {
	kafka  Publisher
	logger *slog.Logger
}

// NewProducer creates a new event producer for the promotion service.
func NewProducer(kafka Publisher, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishPromotionCreated publishes a promotion.created event.
func (p *Producer) PublishPromotionCreated(ctx context.Context, promo *domain.PromotionDefinition) error {
	return p.publishPromotion(ctx, TopicPromotionCreated, promo)
}

// PublishPromotionUpdated publishes a promotion.updated event.
func (p *Producer) PublishPromotionUpdated(ctx context.Context, promo *domain.PromotionDefinition) error {
	return p.publishPromotion(ctx, TopicPromotionUpdated, promo)
}

func (p *Producer) publishPromotion(ctx context.Context, topic string, promo *domain.PromotionDefinition) error {
	data := PromotionData{
		ID:          promo.ID,
		Code:        promo.Code,
		Name:        promo.Name,
		IsActive:    promo.IsActive,
		IsStackable: promo.IsStackable,
		Priority:    promo.Priority,
	}
	if promo.Model != nil {
		data.Kind = string(promo.Model.Kind())
	}

	event, err := pkgkafka.NewEvent(topic, promo.ID, AggregateTypePromotion, SourcePromotionService, data, requestTags(ctx)...)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published promotion event",
		slog.String("topic", topic),
		slog.String("promotion_id", promo.ID),
		slog.String("code", promo.Code),
	)
	return nil
}

// PublishUsageRecorded publishes a promotion.usage_recorded event.
func (p *Producer) PublishUsageRecorded(ctx context.Context, usage domain.PromotionUsage) error {
	data := UsageRecordedData{
		UsageID:        usage.ID,
		PromotionID:    usage.PromotionID,
		CustomerID:     usage.CustomerID,
		OrderID:        usage.OrderID,
		DiscountAmount: usage.DiscountAmount,
	}

	event, err := pkgkafka.NewEvent(TopicPromotionUsageRecorded, usage.PromotionID, AggregateTypePromotion, SourcePromotionService, data, requestTags(ctx)...)
	if err != nil {
		return fmt.Errorf("create promotion.usage_recorded event: %w", err)
	}
	if err := p.kafka.Publish(ctx, TopicPromotionUsageRecorded, event); err != nil {
		return fmt.Errorf("publish promotion.usage_recorded event: %w", err)
	}

	p.logger.DebugContext(ctx, "published promotion.usage_recorded event",
		slog.String("promotion_id", usage.PromotionID),
		slog.String("order_id", usage.OrderID),
	)
	return nil
}

// requestTags copies the correlation and terminal ids of the request that
// caused the event, when there is one.
func requestTags(ctx context.Context) []pkgkafka.EventOption {
	return []pkgkafka.EventOption{
		pkgkafka.Correlated(logger.CorrelationIDFromContext(ctx)),
		pkgkafka.Tagged("terminal_id", logger.TerminalIDFromContext(ctx)),
	}
}
