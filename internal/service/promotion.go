package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/BackOfficeGo/internal/domain"
	"github.com/utafrali/BackOfficeGo/internal/engine"
	"github.com/utafrali/BackOfficeGo/internal/repository"
	"github.com/utafrali/BackOfficeGo/internal/usage"
	apperrors "github.com/utafrali/BackOfficeGo/pkg/errors"
	"github.com/utafrali/BackOfficeGo/pkg/pagination"
)

// EventPublisher publishes promotion domain events.
type EventPublisher interface {
	PublishPromotionCreated(ctx context.Context, p *domain.PromotionDefinition) error
	PublishPromotionUpdated(ctx context.Context, p *domain.PromotionDefinition) error
	PublishUsageRecorded(ctx context.Context, u domain.PromotionUsage) error
}

// CatalogInvalidator drops any cached copy of the promotion catalog.
type CatalogInvalidator interface {
	Invalidate(ctx context.Context) error
}

// UsageSubmitter queues usage records without waiting for the store.
type UsageSubmitter interface {
	Submit(ctx context.Context, req usage.Request) error
}

// PromotionService implements the business logic for promotion operations.
type PromotionService struct {
	repo     repository.PromotionRepository
	catalog  repository.CatalogProvider
	cache    CatalogInvalidator
	recorder UsageSubmitter
	producer EventPublisher
	logger   *slog.Logger
	now      func() time.Time
	loc      *time.Location
	newID    func() string
}

// Option configures a PromotionService.
type Option func(*PromotionService)

// WithCatalogCache invalidates cache after every promotion write.
func WithCatalogCache(cache CatalogInvalidator) Option {
	return func(s *PromotionService) { s.cache = cache }
}

// WithClock overrides the clock used when a request carries no timestamp.
func WithClock(now func() time.Time) Option {
	return func(s *PromotionService) { s.now = now }
}

// WithLocation sets the store time zone. Evaluation instants, supplied or
// taken from the clock, are converted to it before dates, hours and weekdays
// are checked. The default is UTC.
func WithLocation(loc *time.Location) Option {
	return func(s *PromotionService) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithIDGenerator overrides how promotion ids are generated.
func WithIDGenerator(fn func() string) Option {
	return func(s *PromotionService) { s.newID = fn }
}

// NewPromotionService creates a new promotion service. catalog is what the
// engine evaluates against; it is usually a cache in front of repo.
func NewPromotionService(
	repo repository.PromotionRepository,
	catalog repository.CatalogProvider,
	recorder UsageSubmitter,
	producer EventPublisher,
	logger *slog.Logger,
	opts ...Option,
) *PromotionService {
	s := &PromotionService{
		repo:     repo,
		catalog:  catalog,
		recorder: recorder,
		producer: producer,
		logger:   logger,
		now:      time.Now,
		loc:      time.UTC,
		newID:    func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PromotionInput holds every configurable field of a promotion. Updates
// replace the whole definition except its id, usage counter and creation time.
type PromotionInput struct {
	Code                 string
	Name                 string
	Description          string
	Discount             domain.DiscountParams
	IsActive             bool
	IsStackable          bool
	Priority             int
	StartDate            *time.Time
	EndDate              *time.Time
	TimeStart            *string
	TimeEnd              *string
	DaysOfWeek           []time.Weekday
	MinPurchaseAmount    *int64
	MinQuantity          *int
	MaxUsesTotal         *int
	ApplicableProducts   []string
	ApplicableCategories []string
}

// RecordUsageInput holds the parameters for recording a consumed promotion.
type RecordUsageInput struct {
	PromotionID    string
	CustomerID     *string
	OrderID        string
	DiscountAmount int64
}

func (in *PromotionInput) apply(p *domain.PromotionDefinition) error {
	model, err := in.Discount.Model()
	if err != nil {
		return apperrors.InvalidInput(err.Error())
	}

	p.Code = domain.NormalizeCode(in.Code)
	p.Name = in.Name
	p.Description = in.Description
	p.Model = model
	p.IsActive = in.IsActive
	p.IsStackable = in.IsStackable
	p.Priority = in.Priority
	p.StartDate = in.StartDate
	p.EndDate = in.EndDate
	p.TimeStart = in.TimeStart
	p.TimeEnd = in.TimeEnd
	p.DaysOfWeek = in.DaysOfWeek
	p.MinPurchaseAmount = in.MinPurchaseAmount
	p.MinQuantity = in.MinQuantity
	p.MaxUsesTotal = in.MaxUsesTotal
	p.ApplicableProducts = nonNil(in.ApplicableProducts)
	p.ApplicableCategories = nonNil(in.ApplicableCategories)

	if err := p.Validate(); err != nil {
		return apperrors.InvalidInput(err.Error())
	}
	return nil
}

// CreatePromotion validates and stores a new promotion definition.
func (s *PromotionService) CreatePromotion(ctx context.Context, input *PromotionInput) (*domain.PromotionDefinition, error) {
	now := s.now().UTC()
	promo := &domain.PromotionDefinition{
		ID:        s.newID(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := input.apply(promo); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, promo); err != nil {
		return nil, fmt.Errorf("create promotion: %w", err)
	}

	s.invalidateCatalog(ctx)
	if err := s.producer.PublishPromotionCreated(ctx, promo); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish promotion.created event",
			slog.String("promotion_id", promo.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "promotion created",
		slog.String("promotion_id", promo.ID),
		slog.String("code", promo.Code),
	)

	return promo, nil
}

// GetPromotion retrieves a promotion by its ID.
func (s *PromotionService) GetPromotion(ctx context.Context, id string) (*domain.PromotionDefinition, error) {
	promo, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get promotion by id: %w", err)
	}
	return promo, nil
}

// ListPromotions returns a filtered, paginated list of promotions.
func (s *PromotionService) ListPromotions(ctx context.Context, filter repository.PromotionFilter) ([]domain.PromotionDefinition, int, error) {
	page := pagination.New(filter.Page, filter.PerPage)
	filter.Page, filter.PerPage = page.Page, page.PerPage

	promos, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list promotions: %w", err)
	}
	return promos, total, nil
}

// ListActivePromotions returns the promotions eligible at the given moment,
// highest priority first. A nil at means now.
func (s *PromotionService) ListActivePromotions(ctx context.Context, at *time.Time) ([]domain.PromotionDefinition, error) {
	catalog, err := s.catalog.ListCatalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("list promotion catalog: %w", err)
	}

	now := s.resolveTime(at)
	active := make([]domain.PromotionDefinition, 0, len(catalog))
	for i := range catalog {
		if engine.IsEligible(&catalog[i], now) {
			active = append(active, catalog[i])
		}
	}
	return engine.SortPromotionsByPriority(active), nil
}

// UpdatePromotion replaces the configurable fields of an existing promotion.
func (s *PromotionService) UpdatePromotion(ctx context.Context, id string, input *PromotionInput) (*domain.PromotionDefinition, error) {
	promo, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get promotion for update: %w", err)
	}

	if err := input.apply(promo); err != nil {
		return nil, err
	}
	return s.update(ctx, promo)
}

// DeactivatePromotion switches a promotion off without deleting it.
func (s *PromotionService) DeactivatePromotion(ctx context.Context, id string) (*domain.PromotionDefinition, error) {
	promo, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get promotion for deactivate: %w", err)
	}
	if !promo.IsActive {
		return promo, nil
	}

	promo.IsActive = false
	return s.update(ctx, promo)
}

func (s *PromotionService) update(ctx context.Context, promo *domain.PromotionDefinition) (*domain.PromotionDefinition, error) {
	promo.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, promo); err != nil {
		return nil, fmt.Errorf("update promotion: %w", err)
	}

	s.invalidateCatalog(ctx)
	if err := s.producer.PublishPromotionUpdated(ctx, promo); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish promotion.updated event",
			slog.String("promotion_id", promo.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "promotion updated",
		slog.String("promotion_id", promo.ID),
		slog.String("code", promo.Code),
		slog.Bool("is_active", promo.IsActive),
	)
	return promo, nil
}

// Evaluate prices cart against the current catalog. A nil at means now.
func (s *PromotionService) Evaluate(ctx context.Context, cart []domain.CartLine, at *time.Time) (*engine.Outcome, error) {
	catalog, err := s.catalog.ListCatalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("list promotion catalog: %w", err)
	}

	start := time.Now()
	outcome := engine.Evaluate(catalog, cart, s.resolveTime(at))
	observeEvaluation(&outcome, time.Since(start))

	s.logger.DebugContext(ctx, "cart evaluated",
		slog.Int("lines", len(cart)),
		slog.Int("considered", outcome.Considered),
		slog.Int("applied", len(outcome.Applied)),
		slog.Int64("total_discount", outcome.TotalDiscount),
	)
	return &outcome, nil
}

// RedeemCode checks a manually entered promotion code against cart. Business
// rejections are reported in the Redemption, not as errors.
func (s *PromotionService) RedeemCode(ctx context.Context, code string, cart []domain.CartLine, at *time.Time) (*engine.Redemption, error) {
	if domain.NormalizeCode(code) == "" {
		return nil, apperrors.InvalidInput("promotion code is required")
	}

	catalog, err := s.catalog.ListCatalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("list promotion catalog: %w", err)
	}

	promo := engine.FindByCode(catalog, code)
	redemption := engine.Redeem(promo, cart, domain.Subtotal(cart), s.resolveTime(at))
	observeRedemption(redemption)

	if !redemption.Valid {
		s.logger.InfoContext(ctx, "promotion code rejected",
			slog.String("code", domain.NormalizeCode(code)),
			slog.String("reason", string(redemption.Reason)),
		)
	}
	return &redemption, nil
}

// RecordUsage queues the usage of a promotion by a completed order. It
// returns once the request is queued; storage happens in the background.
func (s *PromotionService) RecordUsage(ctx context.Context, input *RecordUsageInput) error {
	if input.PromotionID == "" {
		return apperrors.InvalidInput("promotion_id is required")
	}
	if input.OrderID == "" {
		return apperrors.InvalidInput("order_id is required")
	}
	if input.DiscountAmount < 0 {
		return apperrors.InvalidInput("discount_amount must not be negative")
	}

	err := s.recorder.Submit(ctx, usage.Request{
		PromotionID:    input.PromotionID,
		CustomerID:     input.CustomerID,
		OrderID:        input.OrderID,
		DiscountAmount: input.DiscountAmount,
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, usage.ErrQueueFull), errors.Is(err, usage.ErrClosed):
		return apperrors.ServiceUnavailable("usage recording is temporarily unavailable")
	default:
		return fmt.Errorf("submit promotion usage: %w", err)
	}
}

// ListUsages returns the usage audit trail of one promotion, newest first.
func (s *PromotionService) ListUsages(ctx context.Context, promotionID string, page, perPage int) ([]domain.PromotionUsage, int, error) {
	if _, err := s.repo.GetByID(ctx, promotionID); err != nil {
		return nil, 0, fmt.Errorf("get promotion for usages: %w", err)
	}

	p := pagination.New(page, perPage)
	usages, total, err := s.repo.ListUsages(ctx, promotionID, p.Page, p.PerPage)
	if err != nil {
		return nil, 0, fmt.Errorf("list promotion usages: %w", err)
	}
	return usages, total, nil
}

// OnUsageRecorded is the usage.Listener that announces a stored usage and
// refreshes the cached catalog so the new usage count is seen.
func (s *PromotionService) OnUsageRecorded(ctx context.Context, u domain.PromotionUsage) {
	s.invalidateCatalog(ctx)
	if err := s.producer.PublishUsageRecorded(ctx, u); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish promotion.usage_recorded event",
			slog.String("promotion_id", u.PromotionID),
			slog.String("order_id", u.OrderID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *PromotionService) invalidateCatalog(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.WarnContext(ctx, "failed to invalidate promotion catalog cache",
			slog.String("error", err.Error()),
		)
	}
}

// resolveTime returns the evaluation instant as store wall-clock time.
func (s *PromotionService) resolveTime(at *time.Time) time.Time {
	if at != nil {
		return at.In(s.loc)
	}
	return s.now().In(s.loc)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
