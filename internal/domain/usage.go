package domain

import "time"

// PromotionUsage is the audit record of one promotion consumed by one order.
type PromotionUsage struct {
	ID             string    `json:"id"`
	PromotionID    string    `json:"promotion_id"`
	CustomerID     *string   `json:"customer_id,omitempty"`
	OrderID        string    `json:"order_id"`
	DiscountAmount int64     `json:"discount_amount"`
	CreatedAt      time.Time `json:"created_at"`
}
