// Package snapshot freezes product and seller facts into order lines.
//
// BuildOrderItem works on values that the caller has already loaded. It never
// holds a reference back to the live product or seller, so nothing can later
// refresh an order line from changed or deleted source records.
package snapshot

import (
	"time"

	"github.com/safar/secondhand-store/internal/database"
	"github.com/safar/secondhand-store/internal/models"
)

const (
	UnknownProduct   = "Unknown Product"
	UnknownCondition = "Unknown"
)

// BuildOrderItem copies price, name, condition and seller identity into a new
// order line for orderID. A nil seller leaves the seller fields empty.
func BuildOrderItem(orderID int64, product models.Product, seller *models.User, quantity int, at time.Time) (models.OrderItem, error) {
	if quantity < 1 {
		return models.OrderItem{}, database.ErrInvalidQuantity
	}

	productID := product.ID
	name := product.Name
	condition := product.Condition

	item := models.OrderItem{
		OrderID:                 orderID,
		ProductID:               &productID,
		Quantity:                quantity,
		PriceAtOrder:            product.Price,
		ProductNameAtOrder:      &name,
		ProductConditionAtOrder: &condition,
		CreatedAt:               at,
	}

	if seller != nil {
		sellerID := seller.ID
		sellerName := seller.FullName()
		item.SellerID = &sellerID
		item.SellerNameAtOrder = &sellerName
	}

	return item, nil
}

// DisplayName prefers the frozen name, then the live product when the caller
// was able to resolve it, then a placeholder.
func DisplayName(item models.OrderItem, live *models.Product) string {
	if item.ProductNameAtOrder != nil {
		return *item.ProductNameAtOrder
	}
	if live != nil {
		return live.Name
	}
	return UnknownProduct
}

// DisplayCondition follows the same preference order as DisplayName and
// returns the condition label.
func DisplayCondition(item models.OrderItem, live *models.Product) string {
	if item.ProductConditionAtOrder != nil {
		return item.ProductConditionAtOrder.Label()
	}
	if live != nil {
		return live.Condition.Label()
	}
	return UnknownCondition
}

// DisplaySeller returns the frozen seller name or an empty string.
func DisplaySeller(item models.OrderItem) string {
	if item.SellerNameAtOrder != nil {
		return *item.SellerNameAtOrder
	}
	return ""
}
