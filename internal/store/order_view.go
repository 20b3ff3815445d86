package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/safar/secondhand-store/internal/database"
	"github.com/safar/secondhand-store/internal/models"
	"github.com/safar/secondhand-store/internal/snapshot"
)

// OrderLine is an order item with the text shown to the buyer.
type OrderLine struct {
	models.OrderItem
	DisplayName      string          `json:"display_name"`
	DisplayCondition string          `json:"display_condition"`
	SellerName       string          `json:"seller_name"`
	LineTotal        decimal.Decimal `json:"line_total"`
}

type OrderView struct {
	models.Order
	Items []OrderLine `json:"items"`
}

// ViewOrder resolves display fields for every line of order. Frozen values
// win; the live product is loaded only for lines missing a frozen name or
// condition that still link to a product.
func ViewOrder(ctx context.Context, db database.Querier, order *models.Order) (*OrderView, error) {
	view := &OrderView{Order: *order, Items: make([]OrderLine, 0, len(order.Items))}
	view.Order.Items = nil

	for _, item := range order.Items {
		live, err := liveProductFor(ctx, db, item)
		if err != nil {
			return nil, err
		}
		view.Items = append(view.Items, OrderLine{
			OrderItem:        item,
			DisplayName:      snapshot.DisplayName(item, live),
			DisplayCondition: snapshot.DisplayCondition(item, live),
			SellerName:       snapshot.DisplaySeller(item),
			LineTotal:        item.LineTotal(),
		})
	}

	return view, nil
}

func liveProductFor(ctx context.Context, db database.Querier, item models.OrderItem) (*models.Product, error) {
	if item.ProductID == nil || (item.ProductNameAtOrder != nil && item.ProductConditionAtOrder != nil) {
		return nil, nil
	}

	product, err := GetProduct(ctx, db, *item.ProductID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("resolve product for order item %d: %w", item.ID, err)
	}
	return product, nil
}
