package event

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/BackOfficeGo/internal/domain"
	"github.com/utafrali/BackOfficeGo/internal/usage"
	apperrors "github.com/utafrali/BackOfficeGo/pkg/errors"
	pkgkafka "github.com/utafrali/BackOfficeGo/pkg/kafka"
	"github.com/utafrali/BackOfficeGo/pkg/logger"
)

// --- Mocks ---

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, topic string, event *pkgkafka.Event) error {
	args := m.Called(ctx, topic, event)
	return args.Error(0)
}

type mockRecorder struct {
	mock.Mock
}

func (m *mockRecorder) Record(ctx context.Context, req usage.Request) (domain.PromotionUsage, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(domain.PromotionUsage), args.Error(1)
}

// --- Test helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestEvent(eventType string, data any) *pkgkafka.Event {
	dataBytes, _ := json.Marshal(data)
	return &pkgkafka.Event{
		EventID:       "evt-test-123",
		EventType:     eventType,
		AggregateID:   "order-1",
		AggregateType: "order",
		Version:       1,
		Timestamp:     time.Now().UTC(),
		Source:        "pos-terminal",
		Data:          dataBytes,
	}
}

// ============================================================
// Producer
// ============================================================

func TestProducer_PublishPromotionCreated(t *testing.T) {
	pub := new(mockPublisher)
	producer := NewProducer(pub, newTestLogger())

	ten := decimal.NewFromInt(10)
	promo := &domain.PromotionDefinition{
		ID:          "promo-1",
		Code:        "SPRING10",
		Name:        "Spring",
		Model:       domain.PercentageOff{Percentage: &ten},
		IsActive:    true,
		IsStackable: true,
		Priority:    3,
	}

	pub.On("Publish", mock.Anything, "backoffice.promotion.created", mock.MatchedBy(func(e *pkgkafka.Event) bool {
		var data PromotionData
		if err := e.UnmarshalData(&data); err != nil {
			return false
		}
		return e.AggregateID == "promo-1" &&
			e.AggregateType == AggregateTypePromotion &&
			e.Source == SourcePromotionService &&
			data.Code == "SPRING10" &&
			data.Kind == string(domain.KindPercentageOff) &&
			data.Priority == 3
	})).Return(nil)

	require.NoError(t, producer.PublishPromotionCreated(context.Background(), promo))
	pub.AssertExpectations(t)
}

func TestProducer_PublishPromotionUpdated_Error(t *testing.T) {
	pub := new(mockPublisher)
	producer := NewProducer(pub, newTestLogger())

	pub.On("Publish", mock.Anything, TopicPromotionUpdated, mock.Anything).Return(errors.New("broker down"))

	err := producer.PublishPromotionUpdated(context.Background(), &domain.PromotionDefinition{ID: "promo-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}

func TestProducer_PublishUsageRecorded(t *testing.T) {
	pub := new(mockPublisher)
	producer := NewProducer(pub, newTestLogger())

	customer := "cust-1"
	u := domain.PromotionUsage{ID: "usage-1", PromotionID: "promo-1", CustomerID: &customer, OrderID: "order-1", DiscountAmount: 1_500}

	pub.On("Publish", mock.Anything, "backoffice.promotion.usage_recorded", mock.MatchedBy(func(e *pkgkafka.Event) bool {
		var data UsageRecordedData
		if err := e.UnmarshalData(&data); err != nil {
			return false
		}
		return data.UsageID == "usage-1" && data.OrderID == "order-1" &&
			data.DiscountAmount == 1_500 && data.CustomerID != nil && *data.CustomerID == "cust-1"
	})).Return(nil)

	require.NoError(t, producer.PublishUsageRecorded(context.Background(), u))
	pub.AssertExpectations(t)
}

func TestProducer_CarriesRequestContext(t *testing.T) {
	pub := new(mockPublisher)
	producer := NewProducer(pub, newTestLogger())

	ctx := logger.WithCorrelationID(context.Background(), "corr-42")
	ctx = logger.WithTerminalID(ctx, "till-3")

	pub.On("Publish", mock.Anything, "backoffice.promotion.usage_recorded", mock.MatchedBy(func(e *pkgkafka.Event) bool {
		return e.CorrelationID == "corr-42" && e.Metadata["terminal_id"] == "till-3"
	})).Return(nil)

	require.NoError(t, producer.PublishUsageRecorded(ctx, domain.PromotionUsage{ID: "u", PromotionID: "p", OrderID: "o"}))
	pub.AssertExpectations(t)
}

// ============================================================
// Consumer
// ============================================================

const (
	promo1      = "0b6f4a1e-3c55-4f3e-9a8e-1d2c3b4a5f61"
	promo2      = "0b6f4a1e-3c55-4f3e-9a8e-1d2c3b4a5f62"
	promoCapped = "0b6f4a1e-3c55-4f3e-9a8e-1d2c3b4a5f63"
	promoDup    = "0b6f4a1e-3c55-4f3e-9a8e-1d2c3b4a5f64"
)

func TestHandleOrderCompleted_RecordsEachPromotion(t *testing.T) {
	rec := new(mockRecorder)
	consumer := NewConsumer(rec, newTestLogger())

	customer := "cust-9"
	event := newTestEvent(TopicOrderCompleted, OrderCompletedData{
		OrderID:    "order-1",
		CustomerID: &customer,
		Promotions: []OrderPromotionConsumed{
			{PromotionID: promo1, DiscountAmount: 1_000},
			{PromotionID: promo2, DiscountAmount: 250},
		},
	})

	rec.On("Record", mock.Anything, mock.MatchedBy(func(r usage.Request) bool {
		return r.PromotionID == promo1 && r.OrderID == "order-1" && r.DiscountAmount == 1_000 &&
			r.CustomerID != nil && *r.CustomerID == "cust-9"
	})).Return(domain.PromotionUsage{ID: "u1"}, nil).Once()
	rec.On("Record", mock.Anything, mock.MatchedBy(func(r usage.Request) bool {
		return r.PromotionID == promo2 && r.DiscountAmount == 250
	})).Return(domain.PromotionUsage{ID: "u2"}, nil).Once()

	require.NoError(t, consumer.HandleOrderCompleted(context.Background(), event))
	rec.AssertExpectations(t)
}

func TestHandleOrderCompleted_RejectionsAreAcknowledged(t *testing.T) {
	rec := new(mockRecorder)
	consumer := NewConsumer(rec, newTestLogger())

	event := newTestEvent(TopicOrderCompleted, OrderCompletedData{
		OrderID: "order-1",
		Promotions: []OrderPromotionConsumed{
			{PromotionID: promoCapped, DiscountAmount: 100},
			{PromotionID: promoDup, DiscountAmount: 100},
		},
	})

	rec.On("Record", mock.Anything, mock.MatchedBy(func(r usage.Request) bool { return r.PromotionID == promoCapped })).
		Return(domain.PromotionUsage{}, apperrors.Conflict("USAGE_LIMIT_REACHED", "promotion usage limit reached", domain.ErrUsageLimitReached))
	rec.On("Record", mock.Anything, mock.MatchedBy(func(r usage.Request) bool { return r.PromotionID == promoDup })).
		Return(domain.PromotionUsage{}, apperrors.AlreadyExists("promotion usage", "order_id", "order-1"))

	assert.NoError(t, consumer.HandleOrderCompleted(context.Background(), event))
	rec.AssertNumberOfCalls(t, "Record", 2)
}

func TestHandleOrderCompleted_StoreFailureIsRetried(t *testing.T) {
	rec := new(mockRecorder)
	consumer := NewConsumer(rec, newTestLogger())

	event := newTestEvent(TopicOrderCompleted, OrderCompletedData{
		OrderID: "order-1",
		Promotions: []OrderPromotionConsumed{
			{PromotionID: promo1, DiscountAmount: 100},
			{PromotionID: promo2, DiscountAmount: 100},
		},
	})

	storeErr := errors.New("connection refused")
	rec.On("Record", mock.Anything, mock.MatchedBy(func(r usage.Request) bool { return r.PromotionID == promo1 })).
		Return(domain.PromotionUsage{}, storeErr)
	rec.On("Record", mock.Anything, mock.MatchedBy(func(r usage.Request) bool { return r.PromotionID == promo2 })).
		Return(domain.PromotionUsage{ID: "u2"}, nil)

	err := consumer.HandleOrderCompleted(context.Background(), event)
	require.Error(t, err)
	assert.ErrorIs(t, err, storeErr)
	assert.Contains(t, err.Error(), promo1)
	rec.AssertNumberOfCalls(t, "Record", 2)
}

func TestHandleOrderCompleted_InvalidPayload(t *testing.T) {
	rec := new(mockRecorder)
	consumer := NewConsumer(rec, newTestLogger())

	t.Run("malformed json", func(t *testing.T) {
		event := newTestEvent(TopicOrderCompleted, nil)
		event.Data = json.RawMessage(`{not json`)
		assert.Error(t, consumer.HandleOrderCompleted(context.Background(), event))
	})

	t.Run("missing order id", func(t *testing.T) {
		event := newTestEvent(TopicOrderCompleted, OrderCompletedData{})
		err := consumer.HandleOrderCompleted(context.Background(), event)
		assert.ErrorIs(t, err, ErrInvalidPayload)
	})

	rec.AssertNotCalled(t, "Record", mock.Anything, mock.Anything)
}

func TestHandleOrderCompleted_SkipsInvalidPromotionIDs(t *testing.T) {
	tests := []struct {
		name string
		id   string
	}{
		{"blank", ""},
		{"promotion code instead of id", "SPRING10"},
		{"truncated uuid", "0b6f4a1e-3c55-4f3e"},
		{"sql fragment", "1; DROP TABLE promotions"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := new(mockRecorder)
			consumer := NewConsumer(rec, newTestLogger())

			event := newTestEvent(TopicOrderCompleted, OrderCompletedData{
				OrderID: "order-1",
				Promotions: []OrderPromotionConsumed{
					{PromotionID: tt.id, DiscountAmount: 100},
					{PromotionID: promo1, DiscountAmount: 200},
				},
			})
			rec.On("Record", mock.Anything, mock.MatchedBy(func(r usage.Request) bool { return r.PromotionID == promo1 })).
				Return(domain.PromotionUsage{ID: "u1"}, nil).Once()

			// Acknowledged: a poison id must neither reach the store nor
			// send the message to retry.
			assert.NoError(t, consumer.HandleOrderCompleted(context.Background(), event))
			rec.AssertExpectations(t)
			rec.AssertNumberOfCalls(t, "Record", 1)
		})
	}
}

// ============================================================
// Redis idempotency store
// ============================================================

func TestRedisIdempotencyStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := NewRedisIdempotencyStore(client, time.Hour)
	ctx := context.Background()

	seen, err := store.Contains(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, store.Add(ctx, "evt-1"))

	seen, err = store.Contains(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, seen)
	assert.Equal(t, time.Hour, mr.TTL("kafka:processed:evt-1"))

	mr.FastForward(2 * time.Hour)
	seen, err = store.Contains(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, seen, "entry expires after ttl")
}

func TestRedisIdempotencyStore_Unavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	store := NewRedisIdempotencyStore(client, time.Hour)
	_, err := store.Contains(context.Background(), "evt-1")
	assert.Error(t, err)
	assert.Error(t, store.Add(context.Background(), "evt-1"))
}

func TestIdempotentHandler_WithRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	rec := new(mockRecorder)
	consumer := NewConsumer(rec, newTestLogger())
	rec.On("Record", mock.Anything, mock.Anything).Return(domain.PromotionUsage{ID: "u1"}, nil)

	handler := pkgkafka.IdempotentHandler(NewRedisIdempotencyStore(client, time.Hour), consumer.HandleOrderCompleted, newTestLogger())
	event := newTestEvent(TopicOrderCompleted, OrderCompletedData{
		OrderID:    "order-1",
		Promotions: []OrderPromotionConsumed{{PromotionID: promo1, DiscountAmount: 100}},
	})

	require.NoError(t, handler(context.Background(), event))
	require.NoError(t, handler(context.Background(), event))
	rec.AssertNumberOfCalls(t, "Record", 1)
}
