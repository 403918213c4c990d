package engine

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/BackOfficeGo/internal/domain"
)

// ============================================================================
// Percentage off
// ============================================================================

func TestCalculateDiscount_Percentage(t *testing.T) {
	p := promo("ten", percent(10))
	res := CalculateDiscount(&p, []domain.CartLine{line("tv", "", 1, 100_000)})

	require.NotNil(t, res)
	assert.Equal(t, int64(10_000), res.DiscountAmount)
	assert.Empty(t, res.FreeProductLines)
	assert.Same(t, &p, res.Promotion)
}

func TestCalculateDiscount_PercentageRounding(t *testing.T) {
	tests := []struct {
		pct   string
		total int64
		want  int64
	}{
		{"12.5", 100, 13},
		{"12.5", 99, 12},
		{"33.333", 300, 100},
		{"100", 4_321, 4_321},
		{"0", 5_000, 0},
	}
	for _, tt := range tests {
		t.Run(tt.pct, func(t *testing.T) {
			d := decimal.RequireFromString(tt.pct)
			p := promo("p", domain.PercentageOff{Percentage: &d})
			res := CalculateDiscount(&p, []domain.CartLine{line("x", "", 1, tt.total)})
			require.NotNil(t, res)
			assert.Equal(t, tt.want, res.DiscountAmount)
		})
	}
}

func TestCalculateDiscount_PercentageUsesLineTotal(t *testing.T) {
	p := promo("p", percent(50))
	adjusted := domain.CartLine{ProductID: "x", Quantity: 2, UnitPrice: 1_000, LineTotal: 1_500}
	res := CalculateDiscount(&p, []domain.CartLine{adjusted})
	require.NotNil(t, res)
	assert.Equal(t, int64(750), res.DiscountAmount)
}

func TestCalculateDiscount_PercentageOnlyTargetedLines(t *testing.T) {
	p := promo("drinks", percent(20))
	p.ApplicableCategories = []string{"drinks"}
	cart := []domain.CartLine{
		line("cola", "drinks", 2, 500),
		line("burger", "mains", 1, 2_000),
	}

	res := CalculateDiscount(&p, cart)
	require.NotNil(t, res)
	assert.Equal(t, int64(200), res.DiscountAmount)
	assert.Equal(t, []domain.CartLine{cart[0]}, res.ApplicableLines)
}

// ============================================================================
// Fixed amount
// ============================================================================

func TestCalculateDiscount_FixedAmountIsNotClamped(t *testing.T) {
	p := promo("flat", fixed(5_000))
	res := CalculateDiscount(&p, []domain.CartLine{line("gum", "", 1, 300)})
	require.NotNil(t, res)
	assert.Equal(t, int64(5_000), res.DiscountAmount)
}

// ============================================================================
// Buy N get M free
// ============================================================================

func TestCalculateDiscount_BuyTwoGetOne_IdenticalUnits(t *testing.T) {
	p := promo("b2g1", buyGet(2, 1))
	res := CalculateDiscount(&p, []domain.CartLine{line("donut", "", 3, 5_000)})
	require.NotNil(t, res)
	assert.Equal(t, int64(5_000), res.DiscountAmount)
}

func TestCalculateDiscount_BuyTwoGetOne_CheapestLineOnly(t *testing.T) {
	p := promo("b2g1", buyGet(2, 1))

	t.Run("one unit each", func(t *testing.T) {
		cart := []domain.CartLine{line("steak", "", 1, 7_000), line("salad", "", 1, 3_000)}
		res := CalculateDiscount(&p, cart)
		require.NotNil(t, res)
		assert.Equal(t, int64(3_000), res.DiscountAmount)
	})

	t.Run("two units each", func(t *testing.T) {
		// Four units make two sets; both free units come off the 3_000 line.
		// Deliberately 6_000, not the 3_000 often quoted for this cart: the
		// set formula gives floor(4/2) = 2 sets and min(2*1, 2) = 2 free
		// units, and the formula is what the engine follows.
		cart := []domain.CartLine{line("steak", "", 2, 7_000), line("salad", "", 2, 3_000)}
		res := CalculateDiscount(&p, cart)
		require.NotNil(t, res)
		assert.Equal(t, int64(6_000), res.DiscountAmount)
		assert.Zero(t, res.DiscountAmount%3_000)
	})
}

func TestCalculateDiscount_BuyN_FreeUnitsCappedByCheapestLine(t *testing.T) {
	p := promo("b1g1", buyGet(1, 1))
	cart := []domain.CartLine{line("steak", "", 5, 7_000), line("salad", "", 1, 3_000)}
	res := CalculateDiscount(&p, cart)
	require.NotNil(t, res)
	assert.Equal(t, int64(3_000), res.DiscountAmount)
}

func TestCalculateDiscount_BuyN_TieKeepsCartOrder(t *testing.T) {
	p := promo("b2g1", buyGet(2, 1))
	cart := []domain.CartLine{line("first", "", 1, 1_000), line("second", "", 5, 1_000)}
	res := CalculateDiscount(&p, cart)
	require.NotNil(t, res)
	// Three sets, but "first" is the cheapest line by cart order and has one unit.
	assert.Equal(t, int64(1_000), res.DiscountAmount)
}

func TestCalculateDiscount_BuyN_NotEnoughUnits(t *testing.T) {
	p := promo("b3g1", buyGet(3, 1))
	res := CalculateDiscount(&p, []domain.CartLine{line("donut", "", 2, 5_000)})
	require.NotNil(t, res)
	assert.Zero(t, res.DiscountAmount)
}

func TestCalculateDiscount_BuyN_DoesNotReorderCart(t *testing.T) {
	p := promo("b2g1", buyGet(2, 1))
	cart := []domain.CartLine{line("steak", "", 2, 7_000), line("salad", "", 2, 3_000)}
	before := append([]domain.CartLine(nil), cart...)

	_ = CalculateDiscount(&p, cart)
	assert.Equal(t, before, cart)
}

// ============================================================================
// Free product
// ============================================================================

func TestCalculateDiscount_FreeProduct(t *testing.T) {
	gift := []domain.FreeProductLine{{ProductID: "cookie", Quantity: 2}}
	p := promo("gift", domain.FreeProduct{Products: gift})

	res := CalculateDiscount(&p, []domain.CartLine{line("coffee", "", 1, 1_500)})
	require.NotNil(t, res)
	assert.Zero(t, res.DiscountAmount)
	assert.Equal(t, gift, res.FreeProductLines)

	res.FreeProductLines[0].Quantity = 99
	assert.Equal(t, 2, gift[0].Quantity, "configuration must not be aliased")
}

// ============================================================================
// Gaps and no-match
// ============================================================================

func TestCalculateDiscount_MissingParametersYieldZero(t *testing.T) {
	cart := []domain.CartLine{line("x", "", 4, 1_000)}
	models := map[string]domain.DiscountModel{
		"percentage without value": domain.PercentageOff{},
		"fixed without amount":     domain.FixedAmountOff{},
		"buy without quantities":   domain.BuyNGetMFree{},
		"buy zero":                 buyGet(0, 1),
		"buy without get":          domain.BuyNGetMFree{BuyQuantity: ptr(2)},
		"free product empty":       domain.FreeProduct{},
		"no model":                 nil,
		"negative fixed":           fixed(-100),
	}
	for name, m := range models {
		t.Run(name, func(t *testing.T) {
			p := promo("p", m)
			res := CalculateDiscount(&p, cart)
			require.NotNil(t, res)
			assert.Zero(t, res.DiscountAmount)
			assert.False(t, res.HasBenefit())
		})
	}
}

func TestCalculateDiscount_NoMatchingLines(t *testing.T) {
	p := promo("tea only", percent(10))
	p.ApplicableProducts = []string{"tea"}
	p.ApplicableCategories = []string{"hot-drinks"}

	assert.Nil(t, CalculateDiscount(&p, []domain.CartLine{line("coffee", "drinks", 1, 1_000)}))
}

func TestCalculateDiscount_EmptyCart(t *testing.T) {
	p := promo("any", fixed(100))
	assert.Nil(t, CalculateDiscount(&p, nil))
}
