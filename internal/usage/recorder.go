// Package usage records promotion consumption after an order completes. The
// order flow never waits on it: submissions are queued, and store failures are
// logged and counted instead of being returned to the caller.
package usage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"

	"github.com/utafrali/BackOfficeGo/internal/domain"
	apperrors "github.com/utafrali/BackOfficeGo/pkg/errors"
)

var (
	// ErrQueueFull is returned by Submit when the queue has no free slot.
	ErrQueueFull = errors.New("usage queue full")

	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("usage recorder closed")
)

// Store persists a usage and increments the promotion's counter atomically.
type Store interface {
	RecordUsage(ctx context.Context, usage *domain.PromotionUsage) error
}

// Listener is notified after a usage has been stored.
type Listener func(ctx context.Context, usage domain.PromotionUsage)

// Request is one promotion consumed by one order.
type Request struct {
	PromotionID    string
	CustomerID     *string
	OrderID        string
	DiscountAmount int64
}

// Config holds the recorder's sizing and breaker settings.
type Config struct {
	QueueSize    int
	Workers      int
	StoreTimeout time.Duration
	Breaker      BreakerConfig
}

// DefaultConfig returns sensible defaults for the recorder.
func DefaultConfig() Config {
	return Config{
		QueueSize:    1024,
		Workers:      4,
		StoreTimeout: 5 * time.Second,
		Breaker:      DefaultBreakerConfig("promotion-usage-store"),
	}
}

// Recorder is the fire-and-forget usage recorder.
type Recorder struct {
	store     Store
	breaker   *gobreaker.CircuitBreaker[struct{}]
	queue     chan job
	timeout   time.Duration
	logger    *slog.Logger
	listeners []Listener
	now       func() time.Time
	newID     func() string

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

type job struct {
	ctx   context.Context
	usage domain.PromotionUsage
}

// Option customizes a Recorder.
type Option func(*Recorder)

// WithListener registers fn to run after every stored usage.
func WithListener(fn Listener) Option {
	return func(r *Recorder) { r.listeners = append(r.listeners, fn) }
}

// WithClock replaces time.Now for CreatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// WithIDGenerator replaces uuid.NewString for usage ids.
func WithIDGenerator(fn func() string) Option {
	return func(r *Recorder) { r.newID = fn }
}

// NewRecorder creates a recorder and starts its workers.
func NewRecorder(store Store, cfg Config, logger *slog.Logger, opts ...Option) *Recorder {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	r := &Recorder{
		store:   store,
		breaker: newBreaker(cfg.Breaker, logger),
		queue:   make(chan job, cfg.QueueSize),
		timeout: cfg.StoreTimeout,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}

	for i := 0; i < cfg.Workers; i++ {
		r.wg.Add(1)
		go r.work()
	}
	return r
}

// Submit queues req without blocking. The returned error only says the
// request was not queued; it is already logged and counted.
func (r *Recorder) Submit(ctx context.Context, req Request) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		recordsTotal.WithLabelValues(resultDropped).Inc()
		return ErrClosed
	}

	j := job{ctx: context.WithoutCancel(ctx), usage: r.newUsage(req)}
	select {
	case r.queue <- j:
		queueDepth.Set(float64(len(r.queue)))
		return nil
	default:
		recordsTotal.WithLabelValues(resultDropped).Inc()
		r.logger.ErrorContext(ctx, "usage queue full, dropping usage",
			slog.String("promotion_id", req.PromotionID),
			slog.String("order_id", req.OrderID),
		)
		return ErrQueueFull
	}
}

// Record stores req synchronously through the circuit breaker.
func (r *Recorder) Record(ctx context.Context, req Request) (domain.PromotionUsage, error) {
	u := r.newUsage(req)
	return u, r.record(ctx, u)
}

// Close stops accepting submissions and waits for queued usages to be stored
// until ctx expires.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain usage queue: %w", ctx.Err())
	}
}

// BreakerState reports the store circuit breaker state.
func (r *Recorder) BreakerState() gobreaker.State {
	return r.breaker.State()
}

func (r *Recorder) work() {
	defer r.wg.Done()
	for j := range r.queue {
		queueDepth.Set(float64(len(r.queue)))
		if err := r.record(j.ctx, j.usage); err != nil {
			r.logger.ErrorContext(j.ctx, "failed to record promotion usage",
				slog.String("promotion_id", j.usage.PromotionID),
				slog.String("order_id", j.usage.OrderID),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (r *Recorder) newUsage(req Request) domain.PromotionUsage {
	return domain.PromotionUsage{
		ID:             r.newID(),
		PromotionID:    req.PromotionID,
		CustomerID:     req.CustomerID,
		OrderID:        req.OrderID,
		DiscountAmount: req.DiscountAmount,
		CreatedAt:      r.now(),
	}
}

func (r *Recorder) record(ctx context.Context, u domain.PromotionUsage) error {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	_, err := r.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, r.store.RecordUsage(ctx, &u)
	})
	recordsTotal.WithLabelValues(resultOf(err)).Inc()
	if err != nil {
		return err
	}

	for _, fn := range r.listeners {
		fn(ctx, u)
	}
	return nil
}

// Result labels of recordsTotal.
const (
	resultRecorded     = "recorded"
	resultLimitReached = "limit_reached"
	resultDuplicate    = "duplicate"
	resultNotFound     = "not_found"
	resultFailed       = "failed"
	resultDropped      = "dropped"
)

func resultOf(err error) string {
	switch {
	case err == nil:
		return resultRecorded
	case errors.Is(err, domain.ErrUsageLimitReached):
		return resultLimitReached
	case errors.Is(err, apperrors.ErrAlreadyExists):
		return resultDuplicate
	case errors.Is(err, apperrors.ErrNotFound):
		return resultNotFound
	default:
		return resultFailed
	}
}

// IsRejection reports whether err is a business outcome of recording (cap
// reached, order already recorded, unknown promotion) rather than a failure
// of the store. Rejections are final; retrying them cannot succeed.
func IsRejection(err error) bool {
	switch resultOf(err) {
	case resultLimitReached, resultDuplicate, resultNotFound:
		return true
	}
	return false
}
