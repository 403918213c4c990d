package engine

import (
	"cmp"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/utafrali/BackOfficeGo/internal/domain"
)

// EvaluationResult is the calculator's verdict for one promotion.
type EvaluationResult struct {
	Promotion        *domain.PromotionDefinition
	DiscountAmount   int64
	FreeProductLines []domain.FreeProductLine
	ApplicableLines  []domain.CartLine
}

// HasBenefit reports whether the result grants money off or free items.
func (r *EvaluationResult) HasBenefit() bool {
	return r.DiscountAmount > 0 || len(r.FreeProductLines) > 0
}

var hundred = decimal.NewFromInt(100)

// CalculateDiscount computes what p is worth on cart. It returns nil when p
// matches no cart line. A model with a missing parameter is worth zero.
func CalculateDiscount(p *domain.PromotionDefinition, cart []domain.CartLine) *EvaluationResult {
	lines := applicableLines(p, cart)
	if len(lines) == 0 {
		return nil
	}

	res := &EvaluationResult{Promotion: p, ApplicableLines: lines}
	switch m := p.Model.(type) {
	case domain.PercentageOff:
		res.DiscountAmount = percentageOff(m, domain.Subtotal(lines))
	case domain.FixedAmountOff:
		// Not clamped to the applicable total; the order total stage decides.
		if m.Amount != nil {
			res.DiscountAmount = *m.Amount
		}
	case domain.BuyNGetMFree:
		res.DiscountAmount = buyNGetMFree(m, lines)
	case domain.FreeProduct:
		if len(m.Products) > 0 {
			res.FreeProductLines = slices.Clone(m.Products)
		}
	}
	if res.DiscountAmount < 0 {
		res.DiscountAmount = 0
	}
	return res
}

// percentageOff rounds half away from zero to a whole minor unit.
func percentageOff(m domain.PercentageOff, total int64) int64 {
	if m.Percentage == nil {
		return 0
	}
	return decimal.NewFromInt(total).Mul(*m.Percentage).Div(hundred).Round(0).IntPart()
}

// buyNGetMFree discounts the single cheapest applicable line only, even when
// several products qualify.
func buyNGetMFree(m domain.BuyNGetMFree, lines []domain.CartLine) int64 {
	if m.BuyQuantity == nil || m.GetQuantity == nil || *m.BuyQuantity < 1 {
		return 0
	}

	totalQty := 0
	for _, line := range lines {
		totalQty += line.Quantity
	}
	sets := totalQty / *m.BuyQuantity
	if sets == 0 {
		return 0
	}

	sorted := slices.Clone(lines)
	slices.SortStableFunc(sorted, func(a, b domain.CartLine) int {
		return cmp.Compare(a.UnitPrice, b.UnitPrice)
	})
	cheapest := sorted[0]
	get := *m.GetQuantity
	free := min(sets*get, cheapest.Quantity)
	return cheapest.UnitPrice * int64(free)
}
