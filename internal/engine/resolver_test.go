package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/BackOfficeGo/internal/domain"
)

func result(name string, amount int64, stackable bool, priority int) EvaluationResult {
	p := promo(name, fixed(amount))
	p.IsStackable = stackable
	p.Priority = priority
	return EvaluationResult{Promotion: &p, DiscountAmount: amount}
}

func appliedNames(applied []AppliedPromotion) []string {
	out := make([]string, 0, len(applied))
	for _, a := range applied {
		out = append(out, a.Name)
	}
	return out
}

func TestResolveApplied_NonStackableSuppressesLargerStackable(t *testing.T) {
	// A single non-stackable promotion wins even against a bigger stackable one.
	evals := []EvaluationResult{
		result("stackable", 8_000, true, 0),
		result("exclusive", 5_000, false, 0),
	}

	applied := ResolveApplied(evals)
	require.Len(t, applied, 1)
	assert.Equal(t, "exclusive", applied[0].Name)
	assert.Equal(t, int64(5_000), applied[0].DiscountAmount)
}

func TestResolveApplied_AllStackablesCompound(t *testing.T) {
	evals := []EvaluationResult{
		result("small", 2_000, true, 0),
		result("large", 3_000, true, 0),
	}

	applied := ResolveApplied(evals)
	require.Len(t, applied, 2)
	assert.Equal(t, []string{"large", "small"}, appliedNames(applied))

	var total int64
	for _, a := range applied {
		total += a.DiscountAmount
	}
	assert.Equal(t, int64(5_000), total)
}

func TestResolveApplied_BestNonStackableWins(t *testing.T) {
	evals := []EvaluationResult{
		result("a", 1_000, false, 0),
		result("b", 4_000, false, 0),
		result("c", 9_000, true, 0),
	}
	assert.Equal(t, []string{"b"}, appliedNames(ResolveApplied(evals)))
}

func TestResolveApplied_TieBreaks(t *testing.T) {
	evals := []EvaluationResult{
		result("zeta", 1_000, true, 1),
		result("alpha", 1_000, true, 1),
		result("low", 1_000, true, 0),
		result("high", 1_000, true, 5),
	}
	assert.Equal(t, []string{"high", "alpha", "zeta", "low"}, appliedNames(ResolveApplied(evals)))
}

func TestResolveApplied_Empty(t *testing.T) {
	applied := ResolveApplied(nil)
	require.NotNil(t, applied)
	assert.Empty(t, applied)
}

func TestResolveApplied_DoesNotReorderInput(t *testing.T) {
	evals := []EvaluationResult{
		result("small", 2_000, true, 0),
		result("large", 3_000, true, 0),
	}
	_ = ResolveApplied(evals)
	assert.Equal(t, "small", evals[0].Promotion.Name)
}

func TestResolveApplied_CarriesFreeLines(t *testing.T) {
	r := result("gift", 0, true, 0)
	r.FreeProductLines = []domain.FreeProductLine{{ProductID: "cookie", Quantity: 1}}

	applied := ResolveApplied([]EvaluationResult{r})
	require.Len(t, applied, 1)
	assert.Equal(t, r.FreeProductLines, applied[0].FreeProductLines)
	assert.Equal(t, "id-gift", applied[0].PromotionID)
	assert.Equal(t, "gift", applied[0].Code)
}

// ============================================================================
// SortPromotionsByPriority
// ============================================================================

func TestSortPromotionsByPriority(t *testing.T) {
	a := promo("b-mid", percent(1))
	a.Priority = 5
	b := promo("a-mid", percent(1))
	b.Priority = 5
	c := promo("top", percent(1))
	c.Priority = 9
	d := promo("bottom", percent(1))

	input := []domain.PromotionDefinition{a, b, c, d}
	snapshot := append([]domain.PromotionDefinition(nil), input...)

	sorted := SortPromotionsByPriority(input)
	assert.Equal(t, []string{"top", "a-mid", "b-mid", "bottom"}, names(sorted))

	assert.Equal(t, snapshot, input, "input must not be mutated")
	assert.NotSame(t, &input[0], &sorted[0])

	again := SortPromotionsByPriority(sorted)
	assert.Equal(t, sorted, again, "sorting is idempotent")
}

func TestResolveApplied_ZeroMoneyFreeProductStillExcludes(t *testing.T) {
	// A non-stackable free-product result worth 0 in money is kept and still
	// shuts out every stackable cash discount.
	gift := result("gift", 0, false, 0)
	gift.FreeProductLines = []domain.FreeProductLine{{ProductID: "cookie", Quantity: 1}}
	evals := []EvaluationResult{
		result("cash", 4_000, true, 0),
		gift,
	}

	applied := ResolveApplied(evals)
	require.Len(t, applied, 1)
	assert.Equal(t, "gift", applied[0].Name)
	assert.Zero(t, applied[0].DiscountAmount)
	assert.Equal(t, gift.FreeProductLines, applied[0].FreeProductLines)
}
