package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/safar/secondhand-store/internal/database"
	"github.com/safar/secondhand-store/internal/models"
	"github.com/safar/secondhand-store/internal/query"
	"github.com/safar/secondhand-store/internal/snapshot"
	"github.com/shopspring/decimal"
)

const (
	orderColumns     = "id, buyer_id, order_number, status, payment_status, total_amount, created_at, updated_at"
	orderItemColumns = "id, order_id, product_id, quantity, price_at_order, product_name_at_order, " +
		"product_condition_at_order, seller_id, seller_name_at_order, created_at"
)

type CreateOrderRequest struct {
	BuyerID int64              `json:"buyer_id"`
	Items   []OrderItemRequest `json:"items"`
}

type OrderItemRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

func (r *CreateOrderRequest) validate() error {
	if r.BuyerID <= 0 {
		return database.InvalidArgumentf("buyer_id is required")
	}
	if len(r.Items) == 0 {
		return database.InvalidArgumentf("order must contain at least one item")
	}

	seen := make(map[int64]struct{}, len(r.Items))
	for _, item := range r.Items {
		if item.Quantity < 1 {
			return database.ErrInvalidQuantity
		}
		if _, dup := seen[item.ProductID]; dup {
			return database.InvalidArgumentf("product %d appears more than once", item.ProductID)
		}
		seen[item.ProductID] = struct{}{}
	}
	return nil
}

// generateOrderNumber yields ORD-YYYYMMDD-XXXXXXXXXXXX.
func generateOrderNumber(now time.Time) string {
	id := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "ORD-" + now.UTC().Format("20060102") + "-" + id[:12]
}

func scanOrder(row rowScanner) (*models.Order, error) {
	order := &models.Order{}
	err := row.Scan(
		&order.ID,
		&order.BuyerID,
		&order.OrderNumber,
		&order.Status,
		&order.PaymentStatus,
		&order.TotalAmount,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return order, nil
}

func scanOrderItem(row rowScanner) (*models.OrderItem, error) {
	item := &models.OrderItem{}
	err := row.Scan(
		&item.ID,
		&item.OrderID,
		&item.ProductID,
		&item.Quantity,
		&item.PriceAtOrder,
		&item.ProductNameAtOrder,
		&item.ProductConditionAtOrder,
		&item.SellerID,
		&item.SellerNameAtOrder,
		&item.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return item, nil
}

// lockProduct reads a product and its seller once and holds a row lock on the
// product until the transaction ends.
func lockProduct(ctx context.Context, tx *sql.Tx, id int64) (*models.Product, *models.User, error) {
	stmt := `
		SELECT ` + strings.Join(productCols("p"), ", ") + `, u.id, u.first_name, u.last_name
		FROM products p
		LEFT JOIN users u ON u.id = p.seller_id
		WHERE p.id = $1
		FOR UPDATE OF p`

	product := &models.Product{}
	var (
		sellerID            sql.NullInt64
		firstName, lastName sql.NullString
	)
	err := tx.QueryRowContext(ctx, stmt, id).Scan(
		&product.ID,
		&product.Name,
		&product.Description,
		&product.Price,
		&product.Condition,
		&product.Brand,
		&product.Model,
		&product.Color,
		&product.Size,
		&product.Keywords,
		&product.LocationCity,
		&product.LocationState,
		&product.Negotiable,
		&product.CategoryID,
		&product.SellerID,
		&product.IsAvailable,
		&product.IsSold,
		&product.ViewCount,
		&product.FavoriteCount,
		&product.CreatedAt,
		&product.UpdatedAt,
		&sellerID,
		&firstName,
		&lastName,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, database.ErrProductNotFound
		}
		return nil, nil, fmt.Errorf("lock product %d: %w", id, err)
	}

	var seller *models.User
	if sellerID.Valid {
		seller = &models.User{ID: sellerID.Int64, FirstName: firstName.String, LastName: lastName.String}
	}
	return product, seller, nil
}

// purchasable checks a locked product can be bought by buyerID.
func purchasable(product *models.Product, buyerID int64) error {
	if product.State() != models.ProductStateAvailable {
		return fmt.Errorf("product %d: %w", product.ID, database.ErrProductUnavailable)
	}
	if product.SellerID == buyerID {
		return database.InvalidArgumentf("buyer cannot purchase own product %d", product.ID)
	}
	return nil
}

func insertOrderItem(ctx context.Context, tx *sql.Tx, item models.OrderItem) (*models.OrderItem, error) {
	stmt := `
		INSERT INTO order_items (order_id, product_id, quantity, price_at_order, product_name_at_order,
		                         product_condition_at_order, seller_id, seller_name_at_order, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`

	err := tx.QueryRowContext(ctx, stmt,
		item.OrderID, item.ProductID, item.Quantity, item.PriceAtOrder, item.ProductNameAtOrder,
		item.ProductConditionAtOrder, item.SellerID, item.SellerNameAtOrder, item.CreatedAt,
	).Scan(&item.ID)
	if err != nil {
		return nil, fmt.Errorf("create order item: %w", err)
	}
	return &item, nil
}

// sellLine snapshots a locked product into orderID and moves it to SOLD.
func sellLine(ctx context.Context, tx *sql.Tx, orderID int64, product *models.Product, seller *models.User, quantity int, at time.Time) (*models.OrderItem, error) {
	item, err := snapshot.BuildOrderItem(orderID, *product, seller, quantity, at)
	if err != nil {
		return nil, err
	}

	saved, err := insertOrderItem(ctx, tx, item)
	if err != nil {
		return nil, err
	}

	if _, err := MarkProductSold(ctx, tx, product.ID); err != nil {
		return nil, err
	}
	if seller != nil {
		if err := IncrementSellerSales(ctx, tx, seller.ID); err != nil {
			return nil, err
		}
	}
	return saved, nil
}

// CreateOrder places a pending order for the buyer. Every product is locked,
// checked and snapshotted inside one serializable transaction; the products
// end up sold and each seller's sales counter goes up by one per line.
func CreateOrder(ctx context.Context, db *sql.DB, req CreateOrderRequest) (*models.Order, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	var order *models.Order
	err := database.WithRetry(ctx, db, database.SerializableTxOptions(), func(tx *sql.Tx) error {
		var err error
		order, err = placeOrder(ctx, tx, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	return order, nil
}

// placeOrder does the work of CreateOrder inside the caller's transaction.
// req must already be validated.
func placeOrder(ctx context.Context, tx *sql.Tx, req CreateOrderRequest) (*models.Order, error) {
	if err := userExists(ctx, tx, req.BuyerID); err != nil {
		return nil, err
	}

	type lockedLine struct {
		product  *models.Product
		seller   *models.User
		quantity int
	}
	lines := make([]lockedLine, 0, len(req.Items))
	total := decimal.Zero

	for _, item := range req.Items {
		product, seller, err := lockProduct(ctx, tx, item.ProductID)
		if err != nil {
			return nil, err
		}
		if err := purchasable(product, req.BuyerID); err != nil {
			return nil, err
		}
		lines = append(lines, lockedLine{product: product, seller: seller, quantity: item.Quantity})
		total = total.Add(product.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	stmt := `
		INSERT INTO orders (buyer_id, order_number, status, payment_status, total_amount, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING ` + orderColumns

	order, err := scanOrder(tx.QueryRowContext(ctx, stmt,
		req.BuyerID, generateOrderNumber(time.Now()), models.OrderStatusPending, models.PaymentStatusPending, total))
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	order.Items = make([]models.OrderItem, 0, len(lines))
	for _, line := range lines {
		item, err := sellLine(ctx, tx, order.ID, line.product, line.seller, line.quantity, order.CreatedAt)
		if err != nil {
			return nil, err
		}
		order.Items = append(order.Items, *item)
	}

	return order, nil
}

// lockPendingOrder returns the buyer of a pending order and locks the order row.
func lockPendingOrder(ctx context.Context, tx *sql.Tx, orderID int64) (int64, error) {
	var (
		buyerID int64
		status  models.OrderStatus
	)
	err := tx.QueryRowContext(ctx,
		`SELECT buyer_id, status FROM orders WHERE id = $1 FOR UPDATE`, orderID).Scan(&buyerID, &status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, database.ErrOrderNotFound
		}
		return 0, fmt.Errorf("lock order %d: %w", orderID, err)
	}
	if status != models.OrderStatusPending {
		return 0, database.ErrOrderNotPending
	}
	return buyerID, nil
}

func recalculateTotal(ctx context.Context, tx *sql.Tx, orderID int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET total_amount = (
		        SELECT COALESCE(SUM(price_at_order * quantity), 0)
		        FROM order_items
		        WHERE order_id = $1
		    ),
		    updated_at = NOW()
		WHERE id = $1`, orderID)
	if err != nil {
		return fmt.Errorf("recalculate order total: %w", err)
	}
	return nil
}

// AddOrderItem snapshots another product into a pending order.
func AddOrderItem(ctx context.Context, db *sql.DB, orderID, productID int64, quantity int) (*models.OrderItem, error) {
	if quantity < 1 {
		return nil, database.ErrInvalidQuantity
	}

	var item *models.OrderItem
	err := database.WithRetry(ctx, db, database.SerializableTxOptions(), func(tx *sql.Tx) error {
		buyerID, err := lockPendingOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}

		product, seller, err := lockProduct(ctx, tx, productID)
		if err != nil {
			return err
		}
		if err := purchasable(product, buyerID); err != nil {
			return err
		}

		item, err = sellLine(ctx, tx, orderID, product, seller, quantity, time.Now().UTC())
		if err != nil {
			return err
		}
		return recalculateTotal(ctx, tx, orderID)
	})
	if err != nil {
		return nil, err
	}

	return item, nil
}

// UpdateOrderItemQuantity changes the quantity of a line on a pending order.
// The snapshot columns are left as they were.
func UpdateOrderItemQuantity(ctx context.Context, db *sql.DB, itemID int64, quantity int) (*models.OrderItem, error) {
	if quantity < 1 {
		return nil, database.ErrInvalidQuantity
	}

	var item *models.OrderItem
	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		var orderID int64
		err := tx.QueryRowContext(ctx,
			`SELECT order_id FROM order_items WHERE id = $1`, itemID).Scan(&orderID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return database.ErrOrderItemNotFound
			}
			return fmt.Errorf("get order item: %w", err)
		}

		if _, err := lockPendingOrder(ctx, tx, orderID); err != nil {
			return err
		}

		item, err = scanOrderItem(tx.QueryRowContext(ctx,
			`UPDATE order_items SET quantity = $2 WHERE id = $1 RETURNING `+orderItemColumns, itemID, quantity))
		if err != nil {
			return fmt.Errorf("update order item quantity: %w", err)
		}

		return recalculateTotal(ctx, tx, orderID)
	})
	if err != nil {
		return nil, err
	}

	return item, nil
}

func GetOrder(ctx context.Context, db database.Querier, id int64) (*models.Order, error) {
	return getOrderWhere(ctx, db, "id", id)
}

func GetOrderByNumber(ctx context.Context, db database.Querier, orderNumber string) (*models.Order, error) {
	return getOrderWhere(ctx, db, "order_number", strings.TrimSpace(orderNumber))
}

func getOrderWhere(ctx context.Context, db database.Querier, column string, value any) (*models.Order, error) {
	stmt, args := query.From("orders").
		Select(orderColumns).
		Where(query.Eq(column, value)).
		Build()

	order, err := scanOrder(db.QueryRowContext(ctx, stmt, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	order.Items, err = orderItems(ctx, db, order.ID)
	if err != nil {
		return nil, err
	}

	return order, nil
}

func orderItems(ctx context.Context, db database.Querier, orderID int64) ([]models.OrderItem, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+orderItemColumns+` FROM order_items WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	items := []models.OrderItem{}
	for rows.Next() {
		item, err := scanOrderItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, *item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

// ListOrdersCursor pages through a buyer's orders, newest first. Items are
// not loaded.
func ListOrdersCursor(ctx context.Context, db database.Querier, buyerID int64, cursor string, limit int) (*CursorPage[models.Order], error) {
	_, limit = normalizePage(1, limit)

	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, database.InvalidArgumentf("malformed cursor")
	}

	stmt := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE buyer_id = $1
		  AND (created_at, id) < ($2, $3)
		ORDER BY created_at DESC, id DESC
		LIMIT $4`

	orders, err := listOrders(ctx, db, stmt, buyerID, cursorData.CreatedAt, cursorData.ID, limit+1)
	if err != nil {
		return nil, err
	}

	hasMore := len(orders) > limit
	if hasMore {
		orders = orders[:limit]
	}

	var nextCursor string
	if hasMore && len(orders) > 0 {
		last := orders[len(orders)-1]
		nextCursor = EncodeCursor(OrderCursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}

	return &CursorPage[models.Order]{
		Items:      orders,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

// OrdersBySeller lists orders with at least one line sold by sellerID.
func OrdersBySeller(ctx context.Context, db database.Querier, sellerID int64) ([]models.Order, error) {
	if err := userExists(ctx, db, sellerID); err != nil {
		return nil, err
	}

	stmt := `
		SELECT ` + orderColumns + `
		FROM orders o
		WHERE EXISTS (
		    SELECT 1 FROM order_items oi
		    WHERE oi.order_id = o.id AND oi.seller_id = $1
		)
		ORDER BY created_at DESC, id DESC`

	return listOrders(ctx, db, stmt, sellerID)
}

func listOrders(ctx context.Context, db database.Querier, stmt string, args ...any) ([]models.Order, error) {
	rows, err := db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return orders, nil
}

// UpdateOrderStatus moves an order along the status graph
// pending -> confirmed -> shipped -> delivered, with cancellation allowed
// before shipping. Cancelling does not relist the sold products.
func UpdateOrderStatus(ctx context.Context, db *sql.DB, id int64, next models.OrderStatus) (*models.Order, error) {
	if !next.Valid() {
		return nil, database.InvalidArgumentf("unknown order status %q", next)
	}

	var order *models.Order
	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		var current models.OrderStatus
		err := tx.QueryRowContext(ctx, `SELECT status FROM orders WHERE id = $1 FOR UPDATE`, id).Scan(&current)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return database.ErrOrderNotFound
			}
			return fmt.Errorf("lock order %d: %w", id, err)
		}

		if !current.CanTransitionTo(next) {
			return fmt.Errorf("%w: %s -> %s", database.ErrInvalidStatusTransition, current, next)
		}

		order, err = scanOrder(tx.QueryRowContext(ctx,
			`UPDATE orders SET status = $2, updated_at = NOW() WHERE id = $1 RETURNING `+orderColumns, id, next))
		if err != nil {
			return fmt.Errorf("update order status: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return order, nil
}

// DeleteOrder removes an order together with its lines.
func DeleteOrder(ctx context.Context, db database.Querier, id int64) error {
	return execAffectingOne(ctx, db, `DELETE FROM orders WHERE id = $1`, database.ErrOrderNotFound, id)
}
