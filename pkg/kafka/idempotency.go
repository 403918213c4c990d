package kafka

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// IdempotencyStore remembers which event ids have been handled successfully.
// Implementations must be safe for concurrent use.
type IdempotencyStore interface {
	Contains(ctx context.Context, eventID string) (bool, error)
	Add(ctx context.Context, eventID string) error
}

// pruneEvery is how many Adds pass between sweeps of expired entries.
const pruneEvery = 256

// MemoryIdempotencyStore keeps handled event ids in process memory for ttl.
// It forgets everything on restart; durable deduplication needs Redis or the
// database's own unique constraints.
type MemoryIdempotencyStore struct {
	mu     sync.Mutex
	seen   map[string]time.Time
	ttl    time.Duration
	now    func() time.Time
	writes int
}

// NewMemoryIdempotencyStore creates an empty store whose entries live for ttl.
func NewMemoryIdempotencyStore(ttl time.Duration) *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{
		seen: make(map[string]time.Time),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Contains reports whether eventID was added less than ttl ago.
func (s *MemoryIdempotencyStore) Contains(_ context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	at, ok := s.seen[eventID]
	if !ok {
		return false, nil
	}
	if s.expired(at) {
		delete(s.seen, eventID)
		return false, nil
	}
	return true, nil
}

// Add records eventID as handled now.
func (s *MemoryIdempotencyStore) Add(_ context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seen[eventID] = s.now()
	s.writes++
	if s.writes%pruneEvery == 0 {
		for id, at := range s.seen {
			if s.expired(at) {
				delete(s.seen, id)
			}
		}
	}
	return nil
}

// Len returns the number of remembered ids, expired ones not yet swept included.
func (s *MemoryIdempotencyStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

func (s *MemoryIdempotencyStore) expired(at time.Time) bool {
	return s.now().Sub(at) > s.ttl
}

// IdempotentHandler skips events whose id the store already holds. Only a
// successful inner call marks the id as handled, so failed events stay
// eligible for the consumer's retries and for redelivery. A store outage
// degrades to at-least-once handling.
func IdempotentHandler(store IdempotencyStore, inner Handler, logger *slog.Logger) Handler {
	return func(ctx context.Context, event *Event) error {
		if event.EventID == "" {
			return inner(ctx, event)
		}

		seen, err := store.Contains(ctx, event.EventID)
		if err != nil {
			logger.WarnContext(ctx, "idempotency lookup failed, handling event anyway",
				slog.String("event_id", event.EventID),
				slog.String("error", err.Error()),
			)
		}
		if seen {
			topic, group := ConsumerInfoFromContext(ctx)
			countConsumed(topic, group, outcomeDuplicate)
			logger.DebugContext(ctx, "duplicate event skipped",
				slog.String("event_id", event.EventID),
				slog.String("event_type", event.EventType),
			)
			return nil
		}

		if err := inner(ctx, event); err != nil {
			return err
		}

		if err := store.Add(ctx, event.EventID); err != nil {
			logger.WarnContext(ctx, "idempotency record failed",
				slog.String("event_id", event.EventID),
				slog.String("error", err.Error()),
			)
		}
		return nil
	}
}
