package engine

import (
	"cmp"
	"slices"
	"strings"

	"github.com/utafrali/BackOfficeGo/internal/domain"
)

// AppliedPromotion is a promotion the resolver decided to apply.
type AppliedPromotion struct {
	PromotionID      string                   `json:"promotion_id"`
	Code             string                   `json:"code"`
	Name             string                   `json:"name"`
	DiscountAmount   int64                    `json:"discount_amount"`
	FreeProductLines []domain.FreeProductLine `json:"free_product_lines"`
}

// ResolveApplied decides which evaluations are applied. Results are ordered
// best discount first, then by priority, then by name. A single non-stackable
// result suppresses every other result, stackable ones included; only when
// none is present are all stackable results applied together.
func ResolveApplied(evaluations []EvaluationResult) []AppliedPromotion {
	sorted := slices.Clone(evaluations)
	slices.SortStableFunc(sorted, compareResults)

	for i := range sorted {
		if !sorted[i].Promotion.IsStackable {
			return []AppliedPromotion{toApplied(&sorted[i])}
		}
	}

	applied := make([]AppliedPromotion, 0, len(sorted))
	for i := range sorted {
		applied = append(applied, toApplied(&sorted[i]))
	}
	return applied
}

func compareResults(a, b EvaluationResult) int {
	if c := cmp.Compare(b.DiscountAmount, a.DiscountAmount); c != 0 {
		return c
	}
	if c := cmp.Compare(b.Promotion.Priority, a.Promotion.Priority); c != 0 {
		return c
	}
	return strings.Compare(a.Promotion.Name, b.Promotion.Name)
}

func toApplied(r *EvaluationResult) AppliedPromotion {
	free := r.FreeProductLines
	if free == nil {
		free = []domain.FreeProductLine{}
	}
	return AppliedPromotion{
		PromotionID:      r.Promotion.ID,
		Code:             r.Promotion.Code,
		Name:             r.Promotion.Name,
		DiscountAmount:   r.DiscountAmount,
		FreeProductLines: slices.Clone(free),
	}
}

// SortPromotionsByPriority returns a new slice ordered by priority, highest
// first, then by name. The input is left untouched.
func SortPromotionsByPriority(promotions []domain.PromotionDefinition) []domain.PromotionDefinition {
	sorted := slices.Clone(promotions)
	slices.SortStableFunc(sorted, func(a, b domain.PromotionDefinition) int {
		if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	return sorted
}
