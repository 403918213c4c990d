package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/BackOfficeGo/internal/domain"
)

func TestEvaluate_StackablesCombine(t *testing.T) {
	cart := []domain.CartLine{
		line("coffee", "drinks", 2, 1_500),
		line("bagel", "food", 1, 1_000),
	}
	drinks := promo("drinks 10", percent(10))
	drinks.ApplicableCategories = []string{"drinks"}
	flat := promo("flat 200", fixed(200))

	out := Evaluate([]domain.PromotionDefinition{drinks, flat}, cart, wednesdayNoon)

	assert.Equal(t, int64(4_000), out.Subtotal)
	assert.Equal(t, 2, out.Considered)
	assert.Equal(t, []string{"drinks 10", "flat 200"}, appliedNames(out.Applied))
	assert.Equal(t, int64(500), out.TotalDiscount)
	assert.Empty(t, out.FreeProductLines)
}

func TestEvaluate_NonStackableTakesOver(t *testing.T) {
	cart := []domain.CartLine{line("tv", "", 1, 100_000)}
	exclusive := promo("exclusive", percent(5))
	exclusive.IsStackable = false
	stackA := promo("stack a", fixed(4_000))
	stackB := promo("stack b", fixed(4_000))

	out := Evaluate([]domain.PromotionDefinition{stackA, exclusive, stackB}, cart, wednesdayNoon)

	require.Len(t, out.Applied, 1)
	assert.Equal(t, "exclusive", out.Applied[0].Name)
	assert.Equal(t, int64(5_000), out.TotalDiscount)
}

func TestEvaluate_FreeProductSurvivesBenefitFilter(t *testing.T) {
	cart := []domain.CartLine{line("coffee", "", 1, 1_500)}
	gift := promo("gift", domain.FreeProduct{Products: []domain.FreeProductLine{{ProductID: "cookie", Quantity: 1}}})
	nothing := promo("nothing", domain.PercentageOff{})

	out := Evaluate([]domain.PromotionDefinition{gift, nothing}, cart, wednesdayNoon)

	assert.Equal(t, []string{"gift"}, appliedNames(out.Applied))
	assert.Zero(t, out.TotalDiscount)
	assert.Equal(t, []domain.FreeProductLine{{ProductID: "cookie", Quantity: 1}}, out.FreeProductLines)
}

func TestEvaluate_EmptyCatalogAndCart(t *testing.T) {
	out := Evaluate(nil, nil, wednesdayNoon)
	assert.Zero(t, out.Subtotal)
	assert.Empty(t, out.Applied)
	assert.NotNil(t, out.FreeProductLines)
}

func TestEvaluate_IneligibleIgnored(t *testing.T) {
	cart := []domain.CartLine{line("tv", "", 1, 100_000)}
	expired := promo("expired", percent(50))
	expired.EndDate = date(2026, 1, 1)

	out := Evaluate([]domain.PromotionDefinition{expired}, cart, wednesdayNoon)
	assert.Zero(t, out.Considered)
	assert.Empty(t, out.Applied)
}
