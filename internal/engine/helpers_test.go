package engine

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/utafrali/BackOfficeGo/internal/domain"
)

func ptr[T any](v T) *T { return &v }

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

// wednesdayNoon is Wednesday 2026-03-11 12:00 UTC.
var wednesdayNoon = time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC)

func percent(n int64) domain.PercentageOff {
	d := decimal.NewFromInt(n)
	return domain.PercentageOff{Percentage: &d}
}

func fixed(amount int64) domain.FixedAmountOff {
	return domain.FixedAmountOff{Amount: &amount}
}

func buyGet(buy, get int) domain.BuyNGetMFree {
	return domain.BuyNGetMFree{BuyQuantity: &buy, GetQuantity: &get}
}

func promo(name string, model domain.DiscountModel) domain.PromotionDefinition {
	return domain.PromotionDefinition{
		ID:          "id-" + name,
		Code:        name,
		Name:        name,
		Model:       model,
		IsActive:    true,
		IsStackable: true,
	}
}

func line(productID, categoryID string, qty int, unitPrice int64) domain.CartLine {
	return domain.NewCartLine(productID, categoryID, qty, unitPrice)
}
