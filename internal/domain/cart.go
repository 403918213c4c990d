package domain

// CartLine is one priced line of the transaction being evaluated. Amounts are
// minor currency units. LineTotal is authoritative: it may already reflect
// adjustments made before evaluation.
type CartLine struct {
	ProductID  string `json:"product_id"`
	CategoryID string `json:"category_id,omitempty"`
	Quantity   int    `json:"quantity"`
	UnitPrice  int64  `json:"unit_price"`
	LineTotal  int64  `json:"line_total"`
}

// NewCartLine builds a line whose total is quantity × unitPrice.
func NewCartLine(productID, categoryID string, quantity int, unitPrice int64) CartLine {
	return CartLine{
		ProductID:  productID,
		CategoryID: categoryID,
		Quantity:   quantity,
		UnitPrice:  unitPrice,
		LineTotal:  int64(quantity) * unitPrice,
	}
}

// Subtotal sums the line totals of cart.
func Subtotal(cart []CartLine) int64 {
	var total int64
	for _, line := range cart {
		total += line.LineTotal
	}
	return total
}
