package engine

import (
	"time"

	"github.com/utafrali/BackOfficeGo/internal/domain"
)

// SelectEligiblePromotions keeps the promotions of the catalog that can be
// applied to cart at now, in their original relative order. Targets are
// expected to be resolved into each definition already.
func SelectEligiblePromotions(promotions []domain.PromotionDefinition, cart []domain.CartLine, subtotal int64, now time.Time) []domain.PromotionDefinition {
	selected := make([]domain.PromotionDefinition, 0, len(promotions))
	for i := range promotions {
		if Screen(&promotions[i], cart, subtotal, now) == ReasonNone {
			selected = append(selected, promotions[i])
		}
	}
	return selected
}

// Screen runs the selection checks for a single promotion and returns the
// first one that fails: eligibility, minimum purchase, minimum quantity of the
// applicable lines, then targeting.
func Screen(p *domain.PromotionDefinition, cart []domain.CartLine, subtotal int64, now time.Time) Reason {
	if r := CheckEligibility(p, now); r != ReasonNone {
		return r
	}
	if p.MinPurchaseAmount != nil && subtotal < *p.MinPurchaseAmount {
		return ReasonMinPurchase
	}

	var matched, quantity int
	for _, line := range cart {
		if p.Matches(line) {
			matched++
			quantity += line.Quantity
		}
	}
	if p.MinQuantity != nil && quantity < *p.MinQuantity {
		return ReasonMinQuantity
	}
	if p.HasTargets() && matched == 0 {
		return ReasonNoMatch
	}
	return ReasonNone
}

// applicableLines returns the lines of cart p targets, or a copy of the whole
// cart for an untargeted promotion.
func applicableLines(p *domain.PromotionDefinition, cart []domain.CartLine) []domain.CartLine {
	lines := make([]domain.CartLine, 0, len(cart))
	for _, line := range cart {
		if p.Matches(line) {
			lines = append(lines, line)
		}
	}
	return lines
}
