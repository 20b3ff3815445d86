package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/safar/secondhand-store/internal/database"
	"github.com/safar/secondhand-store/internal/models"
)

const topSellersWindow = 10

const userColumns = "id, email, first_name, last_name, seller_rating, total_sales, is_active, created_at, updated_at"

type UserInput struct {
	Email     string `json:"email" validate:"required,email,max=255"`
	FirstName string `json:"first_name" validate:"required,max=100"`
	LastName  string `json:"last_name" validate:"required,max=100"`
}

func scanUser(row rowScanner) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.FirstName,
		&user.LastName,
		&user.SellerRating,
		&user.TotalSales,
		&user.IsActive,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

func CreateUser(ctx context.Context, db database.Querier, in UserInput) (*models.User, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	query := `
		INSERT INTO users (email, first_name, last_name, seller_rating, total_sales, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, 0, 0, TRUE, NOW(), NOW())
		RETURNING ` + userColumns

	user, err := scanUser(db.QueryRowContext(ctx, query, in.Email, in.FirstName, in.LastName))
	if err != nil {
		if database.IsUniqueViolation(err, "") {
			return nil, database.InvalidArgumentf("email %q is already registered", in.Email)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	return user, nil
}

func GetUser(ctx context.Context, db database.Querier, id int64) (*models.User, error) {
	user, err := scanUser(db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return user, nil
}

func UpdateSellerRating(ctx context.Context, db database.Querier, id int64, rating float64) (*models.User, error) {
	if rating < 0 || math.IsNaN(rating) || math.IsInf(rating, 0) {
		return nil, database.InvalidArgumentf("seller rating must be a non-negative number, got %v", rating)
	}

	query := `
		UPDATE users
		SET seller_rating = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + userColumns

	user, err := scanUser(db.QueryRowContext(ctx, query, id, rating))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrUserNotFound
		}
		return nil, fmt.Errorf("update seller rating: %w", err)
	}

	return user, nil
}

// IncrementSellerSales adds one completed sale to the seller's counter in a
// single statement.
func IncrementSellerSales(ctx context.Context, db database.Querier, id int64) error {
	return execAffectingOne(ctx, db,
		`UPDATE users SET total_sales = total_sales + 1, updated_at = NOW() WHERE id = $1`,
		database.ErrUserNotFound, id)
}

func DeactivateUser(ctx context.Context, db database.Querier, id int64) error {
	return execAffectingOne(ctx, db,
		`UPDATE users SET is_active = FALSE, updated_at = NOW() WHERE id = $1`,
		database.ErrUserNotFound, id)
}

// TopRatedSellers lists active users whose rating is strictly above
// minRating, best rated first.
func TopRatedSellers(ctx context.Context, db database.Querier, minRating float64) ([]models.User, error) {
	if math.IsNaN(minRating) {
		return nil, database.InvalidArgumentf("minimum rating must be a number")
	}
	return listUsers(ctx, db, `
		SELECT `+userColumns+`
		FROM users
		WHERE is_active AND seller_rating > $1
		ORDER BY seller_rating DESC, id`, minRating)
}

// TopSellersBySales lists up to limit users with at least one sale, highest
// sales count first. limit is capped at topSellersWindow.
func TopSellersBySales(ctx context.Context, db database.Querier, limit int) ([]models.User, error) {
	if limit < 1 {
		return nil, database.InvalidArgumentf("limit must be at least 1, got %d", limit)
	}
	if limit > topSellersWindow {
		limit = topSellersWindow
	}
	return listUsers(ctx, db, `
		SELECT `+userColumns+`
		FROM users
		WHERE total_sales > 0
		ORDER BY total_sales DESC, id
		LIMIT $1`, limit)
}

// SellersWithAvailableProducts lists each user that has at least one listing
// currently for sale.
func SellersWithAvailableProducts(ctx context.Context, db database.Querier) ([]models.User, error) {
	return listUsers(ctx, db, `
		SELECT `+userColumns+`
		FROM users u
		WHERE EXISTS (
		        SELECT 1 FROM products p
		        WHERE p.seller_id = u.id AND p.is_available AND NOT p.is_sold
		    )
		ORDER BY u.id`)
}

func listUsers(ctx context.Context, db database.Querier, query string, args ...any) ([]models.User, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return users, nil
}

func execAffectingOne(ctx context.Context, db database.Querier, stmt string, notFound error, args ...any) error {
	result, err := db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("exec: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return notFound
	}
	return nil
}
