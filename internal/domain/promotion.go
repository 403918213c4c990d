package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DiscountKind names the pricing formula family of a promotion.
type DiscountKind string

// Discount kinds.
const (
	KindPercentageOff  DiscountKind = "percentage_off"
	KindFixedAmountOff DiscountKind = "fixed_amount_off"
	KindBuyNGetMFree   DiscountKind = "buy_n_get_m_free"
	KindFreeProduct    DiscountKind = "free_product"
)

var (
	// ErrUnknownDiscountKind is returned when stored or submitted discount
	// parameters name a kind this build does not know.
	ErrUnknownDiscountKind = errors.New("unknown discount kind")

	// ErrUsageLimitReached is returned by the usage store when recording one
	// more use would push a promotion past its MaxUsesTotal.
	ErrUsageLimitReached = errors.New("promotion usage limit reached")
)

// ValidKinds returns the set of valid discount kinds.
func ValidKinds() []DiscountKind {
	return []DiscountKind{
		KindPercentageOff,
		KindFixedAmountOff,
		KindBuyNGetMFree,
		KindFreeProduct,
	}
}

// IsValidKind checks whether the given string is a valid discount kind.
func IsValidKind(k string) bool {
	for _, v := range ValidKinds() {
		if string(v) == k {
			return true
		}
	}
	return false
}

// DiscountModel is the closed set of discount formulas. The unexported
// method keeps implementations inside this package.
type DiscountModel interface {
	Kind() DiscountKind
	discountModel()
}

// PercentageOff discounts Percentage (0-100) of the applicable line totals.
type PercentageOff struct {
	Percentage *decimal.Decimal
}

// FixedAmountOff discounts a flat Amount in minor units.
type FixedAmountOff struct {
	Amount *int64
}

// BuyNGetMFree gives GetQuantity units of the cheapest applicable line away
// for every BuyQuantity units in the cart.
type BuyNGetMFree struct {
	BuyQuantity *int
	GetQuantity *int
}

// FreeProduct grants the listed products at no charge.
type FreeProduct struct {
	Products []FreeProductLine
}

func (PercentageOff) Kind() DiscountKind  { return KindPercentageOff }
func (FixedAmountOff) Kind() DiscountKind { return KindFixedAmountOff }
func (BuyNGetMFree) Kind() DiscountKind   { return KindBuyNGetMFree }
func (FreeProduct) Kind() DiscountKind    { return KindFreeProduct }

func (PercentageOff) discountModel()  {}
func (FixedAmountOff) discountModel() {}
func (BuyNGetMFree) discountModel()   {}
func (FreeProduct) discountModel()    {}

// FreeProductLine is a product granted for free and how many units of it.
type FreeProductLine struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// DiscountParams is the flat wire and storage form of a DiscountModel.
type DiscountParams struct {
	Kind         DiscountKind      `json:"kind"`
	Percentage   *decimal.Decimal  `json:"percentage,omitempty"`
	Amount       *int64            `json:"amount,omitempty"`
	BuyQuantity  *int              `json:"buy_quantity,omitempty"`
	GetQuantity  *int              `json:"get_quantity,omitempty"`
	FreeProducts []FreeProductLine `json:"free_products,omitempty"`
}

// Model rebuilds the DiscountModel described by p. Parameters that belong to
// other kinds are ignored; missing ones are kept nil.
func (p DiscountParams) Model() (DiscountModel, error) {
	switch p.Kind {
	case KindPercentageOff:
		return PercentageOff{Percentage: p.Percentage}, nil
	case KindFixedAmountOff:
		return FixedAmountOff{Amount: p.Amount}, nil
	case KindBuyNGetMFree:
		return BuyNGetMFree{BuyQuantity: p.BuyQuantity, GetQuantity: p.GetQuantity}, nil
	case KindFreeProduct:
		return FreeProduct{Products: cloneFreeLines(p.FreeProducts)}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDiscountKind, p.Kind)
	}
}

// ParamsOf flattens m. A nil model yields zero params.
func ParamsOf(m DiscountModel) DiscountParams {
	switch v := m.(type) {
	case PercentageOff:
		return DiscountParams{Kind: v.Kind(), Percentage: v.Percentage}
	case FixedAmountOff:
		return DiscountParams{Kind: v.Kind(), Amount: v.Amount}
	case BuyNGetMFree:
		return DiscountParams{Kind: v.Kind(), BuyQuantity: v.BuyQuantity, GetQuantity: v.GetQuantity}
	case FreeProduct:
		return DiscountParams{Kind: v.Kind(), FreeProducts: cloneFreeLines(v.Products)}
	default:
		return DiscountParams{}
	}
}

func cloneFreeLines(in []FreeProductLine) []FreeProductLine {
	if in == nil {
		return nil
	}
	out := make([]FreeProductLine, len(in))
	copy(out, in)
	return out
}

// PromotionDefinition is a configured marketing rule. Every optional
// constraint is a pointer or an empty slice; absent means unconstrained.
// Dates are calendar dates; TimeStart and TimeEnd are "HH:MM" wall-clock.
type PromotionDefinition struct {
	ID                   string
	Code                 string
	Name                 string
	Description          string
	Model                DiscountModel
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
	CurrentUsage         int
	ApplicableProducts   []string
	ApplicableCategories []string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// HasTargets reports whether the promotion is limited to specific products
// or categories. Untargeted promotions apply to the whole cart.
func (p *PromotionDefinition) HasTargets() bool {
	return len(p.ApplicableProducts) > 0 || len(p.ApplicableCategories) > 0
}

// Matches reports whether line is one of the promotion's applicable lines.
func (p *PromotionDefinition) Matches(line CartLine) bool {
	if !p.HasTargets() {
		return true
	}
	for _, id := range p.ApplicableProducts {
		if id == line.ProductID {
			return true
		}
	}
	if line.CategoryID == "" {
		return false
	}
	for _, id := range p.ApplicableCategories {
		if id == line.CategoryID {
			return true
		}
	}
	return false
}

// NormalizeCode is the canonical form codes are stored and compared in.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

var clockPattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// Validate checks the invariants a definition must hold before it is stored.
func (p *PromotionDefinition) Validate() error {
	var problems []string

	if strings.TrimSpace(p.Name) == "" {
		problems = append(problems, "name is required")
	}
	if strings.TrimSpace(p.Code) == "" {
		problems = append(problems, "code is required")
	}
	if p.StartDate != nil && p.EndDate != nil && dateOf(*p.EndDate).Before(dateOf(*p.StartDate)) {
		problems = append(problems, "start_date must not be after end_date")
	}
	for _, bound := range []struct {
		name  string
		value *string
	}{{"time_start", p.TimeStart}, {"time_end", p.TimeEnd}} {
		if bound.value != nil && !clockPattern.MatchString(*bound.value) {
			problems = append(problems, bound.name+" must be HH:MM")
		}
	}
	for _, d := range p.DaysOfWeek {
		if d < time.Sunday || d > time.Saturday {
			problems = append(problems, fmt.Sprintf("days_of_week contains invalid day %d", d))
			break
		}
	}
	if p.MinPurchaseAmount != nil && *p.MinPurchaseAmount < 0 {
		problems = append(problems, "min_purchase_amount must not be negative")
	}
	if p.MinQuantity != nil && *p.MinQuantity < 0 {
		problems = append(problems, "min_quantity must not be negative")
	}
	if p.MaxUsesTotal != nil && *p.MaxUsesTotal < 0 {
		problems = append(problems, "max_uses_total must not be negative")
	}
	problems = append(problems, validateModel(p.Model)...)

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

var hundred = decimal.NewFromInt(100)

func validateModel(m DiscountModel) []string {
	switch v := m.(type) {
	case nil:
		return []string{"discount is required"}
	case PercentageOff:
		if v.Percentage != nil && (v.Percentage.IsNegative() || v.Percentage.GreaterThan(hundred)) {
			return []string{"discount percentage must be between 0 and 100"}
		}
	case FixedAmountOff:
		if v.Amount != nil && *v.Amount < 0 {
			return []string{"discount amount must not be negative"}
		}
	case BuyNGetMFree:
		if v.BuyQuantity != nil && *v.BuyQuantity < 1 {
			return []string{"buy_quantity must be at least 1"}
		}
		if v.GetQuantity != nil && *v.GetQuantity < 0 {
			return []string{"get_quantity must not be negative"}
		}
	case FreeProduct:
		for _, line := range v.Products {
			if line.ProductID == "" || line.Quantity < 1 {
				return []string{"free_products entries need a product_id and a positive quantity"}
			}
		}
	}
	return nil
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// promotionJSON is the JSON shape of PromotionDefinition.
type promotionJSON struct {
	ID                   string          `json:"id"`
	Code                 string          `json:"code"`
	Name                 string          `json:"name"`
	Description          string          `json:"description,omitempty"`
	Discount             *DiscountParams `json:"discount"`
	IsActive             bool            `json:"is_active"`
	IsStackable          bool            `json:"is_stackable"`
	Priority             int             `json:"priority"`
	StartDate            *string         `json:"start_date,omitempty"`
	EndDate              *string         `json:"end_date,omitempty"`
	TimeStart            *string         `json:"time_start,omitempty"`
	TimeEnd              *string         `json:"time_end,omitempty"`
	DaysOfWeek           []time.Weekday  `json:"days_of_week,omitempty"`
	MinPurchaseAmount    *int64          `json:"min_purchase_amount,omitempty"`
	MinQuantity          *int            `json:"min_quantity,omitempty"`
	MaxUsesTotal         *int            `json:"max_uses_total,omitempty"`
	CurrentUsage         int             `json:"current_usage"`
	ApplicableProducts   []string        `json:"applicable_products"`
	ApplicableCategories []string        `json:"applicable_categories"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// DateLayout is the wire format of StartDate and EndDate.
const DateLayout = "2006-01-02"

// MarshalJSON encodes the discount model as its flat DiscountParams form and
// the date window as calendar dates.
func (p PromotionDefinition) MarshalJSON() ([]byte, error) {
	out := promotionJSON{
		ID:                   p.ID,
		Code:                 p.Code,
		Name:                 p.Name,
		Description:          p.Description,
		IsActive:             p.IsActive,
		IsStackable:          p.IsStackable,
		Priority:             p.Priority,
		StartDate:            formatDate(p.StartDate),
		EndDate:              formatDate(p.EndDate),
		TimeStart:            p.TimeStart,
		TimeEnd:              p.TimeEnd,
		DaysOfWeek:           p.DaysOfWeek,
		MinPurchaseAmount:    p.MinPurchaseAmount,
		MinQuantity:          p.MinQuantity,
		MaxUsesTotal:         p.MaxUsesTotal,
		CurrentUsage:         p.CurrentUsage,
		ApplicableProducts:   nonNil(p.ApplicableProducts),
		ApplicableCategories: nonNil(p.ApplicableCategories),
		CreatedAt:            p.CreatedAt,
		UpdatedAt:            p.UpdatedAt,
	}
	if p.Model != nil {
		params := ParamsOf(p.Model)
		out.Discount = &params
	}
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON. An unknown discount kind is an
// error; a missing discount leaves Model nil.
func (p *PromotionDefinition) UnmarshalJSON(data []byte) error {
	var in promotionJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	var model DiscountModel
	if in.Discount != nil {
		m, err := in.Discount.Model()
		if err != nil {
			return err
		}
		model = m
	}
	start, err := parseDate(in.StartDate)
	if err != nil {
		return fmt.Errorf("start_date: %w", err)
	}
	end, err := parseDate(in.EndDate)
	if err != nil {
		return fmt.Errorf("end_date: %w", err)
	}

	*p = PromotionDefinition{
		ID:                   in.ID,
		Code:                 in.Code,
		Name:                 in.Name,
		Description:          in.Description,
		Model:                model,
		IsActive:             in.IsActive,
		IsStackable:          in.IsStackable,
		Priority:             in.Priority,
		StartDate:            start,
		EndDate:              end,
		TimeStart:            in.TimeStart,
		TimeEnd:              in.TimeEnd,
		DaysOfWeek:           in.DaysOfWeek,
		MinPurchaseAmount:    in.MinPurchaseAmount,
		MinQuantity:          in.MinQuantity,
		MaxUsesTotal:         in.MaxUsesTotal,
		CurrentUsage:         in.CurrentUsage,
		ApplicableProducts:   in.ApplicableProducts,
		ApplicableCategories: in.ApplicableCategories,
		CreatedAt:            in.CreatedAt,
		UpdatedAt:            in.UpdatedAt,
	}
	return nil
}

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(DateLayout)
	return &s
}

// parseDate accepts a calendar date or a full RFC 3339 timestamp.
func parseDate(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	if t, err := time.Parse(DateLayout, *s); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, *s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
