package engine

import (
	"time"

	"github.com/utafrali/BackOfficeGo/internal/domain"
)

// Outcome is the result of evaluating a catalog against a cart.
type Outcome struct {
	Subtotal         int64                    `json:"subtotal"`
	Applied          []AppliedPromotion       `json:"applied"`
	TotalDiscount    int64                    `json:"total_discount"`
	FreeProductLines []domain.FreeProductLine `json:"free_product_lines"`
	// Considered is how many promotions passed selection.
	Considered int `json:"considered"`
}

// Evaluate runs the full pipeline: select, calculate, drop results with no
// benefit, resolve. TotalDiscount is not clamped to the subtotal.
func Evaluate(promotions []domain.PromotionDefinition, cart []domain.CartLine, now time.Time) Outcome {
	subtotal := domain.Subtotal(cart)
	eligible := SelectEligiblePromotions(promotions, cart, subtotal, now)

	results := make([]EvaluationResult, 0, len(eligible))
	for i := range eligible {
		if res := CalculateDiscount(&eligible[i], cart); res != nil && res.HasBenefit() {
			results = append(results, *res)
		}
	}

	out := Outcome{
		Subtotal:         subtotal,
		Applied:          ResolveApplied(results),
		FreeProductLines: []domain.FreeProductLine{},
		Considered:       len(eligible),
	}
	for _, a := range out.Applied {
		out.TotalDiscount += a.DiscountAmount
		out.FreeProductLines = append(out.FreeProductLines, a.FreeProductLines...)
	}
	return out
}
