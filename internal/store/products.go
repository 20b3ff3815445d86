package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/safar/secondhand-store/internal/database"
	"github.com/safar/secondhand-store/internal/models"
	"github.com/shopspring/decimal"
)

var productFields = []string{
	"id", "name", "description", "price", "condition", "brand", "model", "color", "size",
	"keywords", "location_city", "location_state", "negotiable", "category_id", "seller_id",
	"is_available", "is_sold", "view_count", "favorite_count", "created_at", "updated_at",
}

var productColumns = strings.Join(productFields, ", ")

// Prices are stored as NUMERIC(10, 2).
const priceScale = 2

var priceLimit = decimal.New(1, 8)

// productCols qualifies the product columns with a table alias.
func productCols(alias string) []string {
	if alias == "" {
		return productFields
	}
	cols := make([]string, len(productFields))
	for i, f := range productFields {
		cols[i] = alias + "." + f
	}
	return cols
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*models.Product, error) {
	product := &models.Product{}
	err := row.Scan(
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
	)
	if err != nil {
		return nil, err
	}
	return product, nil
}

// ProductDetails are the descriptive fields a seller may edit at any time.
type ProductDetails struct {
	Name          string           `json:"name" validate:"required,max=200"`
	Description   string           `json:"description" validate:"max=5000"`
	Price         decimal.Decimal  `json:"price"`
	Condition     models.Condition `json:"condition" validate:"required"`
	Brand         string           `json:"brand" validate:"max=100"`
	Model         string           `json:"model" validate:"max=100"`
	Color         string           `json:"color" validate:"max=50"`
	Size          string           `json:"size" validate:"max=50"`
	Keywords      string           `json:"keywords" validate:"max=1000"`
	LocationCity  string           `json:"location_city" validate:"max=100"`
	LocationState string           `json:"location_state" validate:"max=100"`
	Negotiable    bool             `json:"negotiable"`
}

type ProductInput struct {
	ProductDetails
	CategoryID int64 `json:"category_id" validate:"required,gt=0"`
	SellerID   int64 `json:"seller_id" validate:"required,gt=0"`
}

func (d *ProductDetails) normalize() {
	d.Name = strings.TrimSpace(d.Name)
	d.LocationCity = strings.TrimSpace(d.LocationCity)
	d.LocationState = strings.TrimSpace(d.LocationState)
}

func (d *ProductDetails) validate() error {
	if err := validateStruct(d); err != nil {
		return err
	}
	if !d.Price.IsPositive() {
		return database.InvalidArgumentf("price must be greater than 0, got %s", d.Price)
	}
	if !d.Price.Equal(d.Price.Truncate(priceScale)) {
		return database.InvalidArgumentf("price must have at most %d decimal places, got %s", priceScale, d.Price)
	}
	if d.Price.GreaterThanOrEqual(priceLimit) {
		return database.InvalidArgumentf("price must be less than %s, got %s", priceLimit, d.Price)
	}
	if !d.Condition.Valid() {
		return database.InvalidArgumentf("unknown condition %q", d.Condition)
	}
	return nil
}

func (in *ProductInput) validate() error {
	if err := in.ProductDetails.validate(); err != nil {
		return err
	}
	return validateStruct(in)
}

// CreateProduct lists a new available product. The category and seller must
// exist.
func CreateProduct(ctx context.Context, db *sql.DB, in ProductInput) (*models.Product, error) {
	in.normalize()
	if err := in.validate(); err != nil {
		return nil, err
	}

	var product *models.Product
	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		if err := categoryExists(ctx, tx, in.CategoryID); err != nil {
			return err
		}
		if err := userExists(ctx, tx, in.SellerID); err != nil {
			return err
		}

		query := `
			INSERT INTO products (name, description, price, condition, brand, model, color, size, keywords,
			                      location_city, location_state, negotiable, category_id, seller_id,
			                      is_available, is_sold, view_count, favorite_count, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, TRUE, FALSE, 0, 0, NOW(), NOW())
			RETURNING ` + productColumns

		var err error
		product, err = scanProduct(tx.QueryRowContext(ctx, query,
			in.Name, in.Description, in.Price, in.Condition, in.Brand, in.Model, in.Color, in.Size, in.Keywords,
			in.LocationCity, in.LocationState, in.Negotiable, in.CategoryID, in.SellerID,
		))
		if err != nil {
			return fmt.Errorf("create product: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return product, nil
}

func GetProduct(ctx context.Context, db database.Querier, id int64) (*models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	product, err := scanProduct(db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	return product, nil
}

// TouchProduct loads a product for its detail view and counts the view. The
// increment happens in the same statement as the read, so concurrent viewers
// never overwrite each other's increments.
func TouchProduct(ctx context.Context, db database.Querier, id int64) (*models.Product, error) {
	query := `
		UPDATE products
		SET view_count = view_count + 1
		WHERE id = $1
		RETURNING ` + productColumns

	product, err := scanProduct(db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("touch product: %w", err)
	}

	return product, nil
}

// UpdateProduct replaces the descriptive fields. Availability, category and
// seller are not editable here.
func UpdateProduct(ctx context.Context, db database.Querier, id int64, details ProductDetails) (*models.Product, error) {
	details.normalize()
	if err := details.validate(); err != nil {
		return nil, err
	}

	query := `
		UPDATE products
		SET name = $2, description = $3, price = $4, condition = $5, brand = $6, model = $7, color = $8,
		    size = $9, keywords = $10, location_city = $11, location_state = $12, negotiable = $13,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING ` + productColumns

	product, err := scanProduct(db.QueryRowContext(ctx, query, id,
		details.Name, details.Description, details.Price, details.Condition, details.Brand, details.Model,
		details.Color, details.Size, details.Keywords, details.LocationCity, details.LocationState, details.Negotiable,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("update product: %w", err)
	}

	return product, nil
}

// MarkProductSold moves an available product to SOLD, which also makes it
// unavailable, and drops it from every cart in the same statement. There is
// no way back; relisting creates a new product.
func MarkProductSold(ctx context.Context, db database.Querier, id int64) (*models.Product, error) {
	query := `
		WITH sold AS (
		    UPDATE products
		    SET is_available = FALSE, is_sold = TRUE, updated_at = NOW()
		    WHERE id = $1 AND is_available AND NOT is_sold
		    RETURNING ` + productColumns + `
		), dropped AS (
		    DELETE FROM cart_items WHERE product_id IN (SELECT id FROM sold)
		)
		SELECT ` + productColumns + ` FROM sold`

	product, err := scanProduct(db.QueryRowContext(ctx, query, id))
	if err == nil {
		return product, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("mark product sold: %w", err)
	}

	if _, err := GetProduct(ctx, db, id); err != nil {
		return nil, err
	}
	return nil, database.ErrProductUnavailable
}

// DeleteProduct removes a listing permanently. Order lines keep their
// snapshot and lose only the link back to the product.
func DeleteProduct(ctx context.Context, db database.Querier, id int64) error {
	result, err := db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrProductNotFound
	}

	return nil
}
