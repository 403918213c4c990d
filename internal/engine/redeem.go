package engine

import (
	"time"

	"github.com/utafrali/BackOfficeGo/internal/domain"
)

// Redemption is the answer to a manually typed promotion code.
type Redemption struct {
	Valid  bool
	Reason Reason
	Result *EvaluationResult
}

// FindByCode looks code up case-insensitively, ignoring surrounding spaces.
// It returns nil when nothing matches.
func FindByCode(promotions []domain.PromotionDefinition, code string) *domain.PromotionDefinition {
	want := domain.NormalizeCode(code)
	if want == "" {
		return nil
	}
	for i := range promotions {
		if domain.NormalizeCode(promotions[i].Code) == want {
			return &promotions[i]
		}
	}
	return nil
}

// Redeem checks p the way the selector does and, when it passes, computes its
// discount. A nil p is reported as not found.
func Redeem(p *domain.PromotionDefinition, cart []domain.CartLine, subtotal int64, now time.Time) Redemption {
	if p == nil {
		return Redemption{Reason: ReasonNotFound}
	}
	if r := Screen(p, cart, subtotal, now); r != ReasonNone {
		return Redemption{Reason: r}
	}
	res := CalculateDiscount(p, cart)
	if res == nil {
		return Redemption{Reason: ReasonNoMatch}
	}
	return Redemption{Valid: true, Result: res}
}
