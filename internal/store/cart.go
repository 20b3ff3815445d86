package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/safar/secondhand-store/internal/database"
	"github.com/safar/secondhand-store/internal/models"
)

const cartItemColumns = "id, user_id, product_id, quantity, price_at_time, added_at"

func scanCartItem(row rowScanner) (*models.CartItem, error) {
	item := &models.CartItem{}
	err := row.Scan(
		&item.ID,
		&item.UserID,
		&item.ProductID,
		&item.Quantity,
		&item.PriceAtTime,
		&item.AddedAt,
	)
	if err != nil {
		return nil, err
	}
	return item, nil
}

// AddToCart puts an available product in the user's cart. Adding a product
// that is already there raises its quantity and keeps the original price.
func AddToCart(ctx context.Context, db database.Querier, userID, productID int64, quantity int) (*models.CartItem, error) {
	if quantity < 1 {
		return nil, database.ErrInvalidQuantity
	}
	if err := userExists(ctx, db, userID); err != nil {
		return nil, err
	}

	product, err := GetProduct(ctx, db, productID)
	if err != nil {
		return nil, err
	}
	if err := purchasable(product, userID); err != nil {
		return nil, err
	}

	query := `
		INSERT INTO cart_items (user_id, product_id, quantity, price_at_time, added_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT ON CONSTRAINT cart_items_user_product_key
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
		RETURNING ` + cartItemColumns

	item, err := scanCartItem(db.QueryRowContext(ctx, query, userID, productID, quantity, product.Price))
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("add to cart: %w", err)
	}

	return item, nil
}

func UpdateCartItemQuantity(ctx context.Context, db database.Querier, userID, productID int64, quantity int) (*models.CartItem, error) {
	if quantity < 1 {
		return nil, database.ErrInvalidQuantity
	}

	query := `
		UPDATE cart_items
		SET quantity = $3
		WHERE user_id = $1 AND product_id = $2
		RETURNING ` + cartItemColumns

	item, err := scanCartItem(db.QueryRowContext(ctx, query, userID, productID, quantity))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrCartItemNotFound
		}
		return nil, fmt.Errorf("update cart item: %w", err)
	}

	return item, nil
}

func RemoveFromCart(ctx context.Context, db database.Querier, userID, productID int64) error {
	return execAffectingOne(ctx, db,
		`DELETE FROM cart_items WHERE user_id = $1 AND product_id = $2`,
		database.ErrCartItemNotFound, userID, productID)
}

// ClearCart empties the user's cart and returns how many lines were removed.
func ClearCart(ctx context.Context, db database.Querier, userID int64) (int64, error) {
	result, err := db.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("clear cart: %w", err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return removed, nil
}

// CartItems lists the user's cart in the order lines were added.
func CartItems(ctx context.Context, db database.Querier, userID int64) ([]models.CartItem, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+cartItemColumns+` FROM cart_items WHERE user_id = $1 ORDER BY added_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list cart items: %w", err)
	}
	defer rows.Close()

	items := []models.CartItem{}
	for rows.Next() {
		item, err := scanCartItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		items = append(items, *item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

// CartTotal sums price at time times quantity over the user's cart. An empty
// cart totals zero.
func CartTotal(ctx context.Context, db database.Querier, userID int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(price_at_time * quantity), 0) FROM cart_items WHERE user_id = $1`, userID,
	).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("cart total: %w", err)
	}
	return total, nil
}

// CountCartItems counts cart lines, not units.
func CountCartItems(ctx context.Context, db database.Querier, userID int64) (int, error) {
	var count int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cart_items WHERE user_id = $1`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count cart items: %w", err)
	}
	return count, nil
}

// GetCart returns the user's lines with their count and total.
func GetCart(ctx context.Context, db database.Querier, userID int64) (*models.Cart, error) {
	if err := userExists(ctx, db, userID); err != nil {
		return nil, err
	}

	items, err := CartItems(ctx, db, userID)
	if err != nil {
		return nil, err
	}

	total := decimal.Zero
	for i := range items {
		total = total.Add(items[i].LineTotal())
	}

	return &models.Cart{UserID: userID, Items: items, ItemCount: len(items), Total: total}, nil
}

// CheckoutCart turns the user's cart into a pending order and empties the
// cart, all in one serializable transaction. Lines are charged at the current
// product price, which the order snapshots.
func CheckoutCart(ctx context.Context, db *sql.DB, userID int64) (*models.Order, error) {
	var order *models.Order
	err := database.WithRetry(ctx, db, database.SerializableTxOptions(), func(tx *sql.Tx) error {
		if err := userExists(ctx, tx, userID); err != nil {
			return err
		}

		rows, err := tx.QueryContext(ctx, `
			SELECT product_id, quantity
			FROM cart_items
			WHERE user_id = $1
			ORDER BY added_at, id
			FOR UPDATE`, userID)
		if err != nil {
			return fmt.Errorf("lock cart: %w", err)
		}

		req := CreateOrderRequest{BuyerID: userID}
		for rows.Next() {
			var line OrderItemRequest
			if err := rows.Scan(&line.ProductID, &line.Quantity); err != nil {
				rows.Close()
				return fmt.Errorf("scan cart line: %w", err)
			}
			req.Items = append(req.Items, line)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("rows error: %w", err)
		}

		if len(req.Items) == 0 {
			return database.ErrCartEmpty
		}
		if err := req.validate(); err != nil {
			return err
		}

		order, err = placeOrder(ctx, tx, req)
		if err != nil {
			return err
		}

		_, err = ClearCart(ctx, tx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return order, nil
}
