package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/safar/secondhand-store/internal/database"
	"github.com/safar/secondhand-store/internal/models"
	"github.com/safar/secondhand-store/internal/query"
)

const categoryColumns = "id, name, parent_id, is_active, sort_order, created_at"

type CategoryInput struct {
	Name      string `json:"name" validate:"required,max=100"`
	ParentID  *int64 `json:"parent_id"`
	SortOrder int    `json:"sort_order" validate:"gte=0"`
}

func scanCategory(row rowScanner) (*models.Category, error) {
	category := &models.Category{}
	err := row.Scan(
		&category.ID,
		&category.Name,
		&category.ParentID,
		&category.IsActive,
		&category.SortOrder,
		&category.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return category, nil
}

func CreateCategory(ctx context.Context, db *sql.DB, in CategoryInput) (*models.Category, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	var category *models.Category
	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		if in.ParentID != nil {
			if err := categoryExists(ctx, tx, *in.ParentID); err != nil {
				return err
			}
		}

		query := `
			INSERT INTO categories (name, parent_id, is_active, sort_order, created_at)
			VALUES ($1, $2, TRUE, $3, NOW())
			RETURNING ` + categoryColumns

		var err error
		category, err = scanCategory(tx.QueryRowContext(ctx, query, in.Name, in.ParentID, in.SortOrder))
		if err != nil {
			if database.IsUniqueViolation(err, "categories_name_key") {
				return database.InvalidArgumentf("category %q already exists", in.Name)
			}
			return fmt.Errorf("create category: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return category, nil
}

func GetCategory(ctx context.Context, db database.Querier, id int64) (*models.Category, error) {
	category, err := scanCategory(db.QueryRowContext(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrCategoryNotFound
		}
		return nil, fmt.Errorf("get category: %w", err)
	}
	return category, nil
}

func activeCategories() *query.Builder {
	return query.From("categories").
		Select(categoryColumns).
		Where(query.Raw("is_active"))
}

func bySortOrder(b *query.Builder) *query.Builder {
	return b.OrderBy("sort_order", query.Asc).OrderBy("name", query.Asc)
}

// ActiveCategories lists every active category by sort order.
func ActiveCategories(ctx context.Context, db database.Querier) ([]models.Category, error) {
	return listCategories(ctx, db, bySortOrder(activeCategories()))
}

// RootCategories are the browsable roots: active and without a parent.
func RootCategories(ctx context.Context, db database.Querier) ([]models.Category, error) {
	return listCategories(ctx, db, bySortOrder(activeCategories().Where(query.IsNull("parent_id"))))
}

// SubCategories lists the direct children of parentID, active or not.
func SubCategories(ctx context.Context, db database.Querier, parentID int64) ([]models.Category, error) {
	if err := categoryExists(ctx, db, parentID); err != nil {
		return nil, err
	}
	b := query.From("categories").
		Select(categoryColumns).
		Where(query.Eq("parent_id", parentID))
	return listCategories(ctx, db, bySortOrder(b))
}

func DeactivateCategory(ctx context.Context, db database.Querier, id int64) error {
	result, err := db.ExecContext(ctx, `UPDATE categories SET is_active = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate category: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return database.ErrCategoryNotFound
	}
	return nil
}

func listCategories(ctx context.Context, db database.Querier, b *query.Builder) ([]models.Category, error) {
	stmt, args := b.Build()

	rows, err := db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	categories := []models.Category{}
	for rows.Next() {
		category, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, *category)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return categories, nil
}
