// Package report computes read-only catalog and sales aggregates. Each report
// is a single grouped statement, so the figures come from one consistent scan
// even while listings are being inserted.
package report

import (
	"context"
	"fmt"
	"time"

	"github.com/safar/secondhand-store/internal/database"
	"github.com/safar/secondhand-store/internal/models"
	"github.com/shopspring/decimal"
)

// Source is the set of reports served to callers. Reporter reads them from
// Postgres and Cache decorates any Source.
type Source interface {
	StatsByCategory(ctx context.Context) ([]models.CategoryStats, error)
	StatsByCondition(ctx context.Context) ([]models.ConditionCount, error)
	AveragePriceByCategory(ctx context.Context) ([]models.CategoryAveragePrice, error)
	SalesBetween(ctx context.Context, start, end time.Time) (*models.SalesTotal, error)
}

const priceScale = 2

type Reporter struct {
	db database.Querier
}

func NewReporter(db database.Querier) *Reporter {
	return &Reporter{db: db}
}

// StatsByCategory counts available products per category together with their
// average price. Categories without available products are omitted.
func (r *Reporter) StatsByCategory(ctx context.Context) ([]models.CategoryStats, error) {
	query := `
		SELECT c.id, c.name, COUNT(p.id), AVG(p.price)
		FROM categories c
		JOIN products p ON p.category_id = c.id
		WHERE p.is_available AND NOT p.is_sold
		GROUP BY c.id, c.name
		ORDER BY c.name`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("stats by category: %w", err)
	}
	defer rows.Close()

	stats := []models.CategoryStats{}
	for rows.Next() {
		var s models.CategoryStats
		if err := rows.Scan(&s.CategoryID, &s.CategoryName, &s.ProductCount, &s.AveragePrice); err != nil {
			return nil, fmt.Errorf("scan category stats: %w", err)
		}
		s.AveragePrice = s.AveragePrice.Round(priceScale)
		stats = append(stats, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return stats, nil
}

// StatsByCondition returns one row per condition, best first, with a zero
// count for conditions that have no available products.
func (r *Reporter) StatsByCondition(ctx context.Context) ([]models.ConditionCount, error) {
	query := `
		SELECT condition, COUNT(*)
		FROM products
		WHERE is_available AND NOT is_sold
		GROUP BY condition`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("stats by condition: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.Condition]int64)
	for rows.Next() {
		var (
			condition models.Condition
			count     int64
		)
		if err := rows.Scan(&condition, &count); err != nil {
			return nil, fmt.Errorf("scan condition count: %w", err)
		}
		counts[condition] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	conditions := models.Conditions()
	result := make([]models.ConditionCount, 0, len(conditions))
	for _, c := range conditions {
		result = append(result, models.ConditionCount{Condition: c, Label: c.Label(), Count: counts[c]})
	}
	return result, nil
}

// AveragePriceByCategory groups available products by category name.
func (r *Reporter) AveragePriceByCategory(ctx context.Context) ([]models.CategoryAveragePrice, error) {
	query := `
		SELECT c.name, AVG(p.price)
		FROM products p
		JOIN categories c ON c.id = p.category_id
		WHERE p.is_available AND NOT p.is_sold
		GROUP BY c.name
		ORDER BY c.name`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("average price by category: %w", err)
	}
	defer rows.Close()

	averages := []models.CategoryAveragePrice{}
	for rows.Next() {
		var a models.CategoryAveragePrice
		if err := rows.Scan(&a.CategoryName, &a.AveragePrice); err != nil {
			return nil, fmt.Errorf("scan category average: %w", err)
		}
		a.AveragePrice = a.AveragePrice.Round(priceScale)
		averages = append(averages, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return averages, nil
}

// SalesBetween sums the totals of delivered orders created within
// [start, end]. Orders in any other status never contribute.
func (r *Reporter) SalesBetween(ctx context.Context, start, end time.Time) (*models.SalesTotal, error) {
	if end.Before(start) {
		return nil, database.InvalidArgumentf("end %s is before start %s",
			end.Format(time.RFC3339), start.Format(time.RFC3339))
	}

	query := `
		SELECT COALESCE(SUM(total_amount), 0)
		FROM orders
		WHERE status = $1
		  AND created_at BETWEEN $2 AND $3`

	var total decimal.Decimal
	if err := r.db.QueryRowContext(ctx, query, models.OrderStatusDelivered, start, end).Scan(&total); err != nil {
		return nil, fmt.Errorf("sales between: %w", err)
	}

	return &models.SalesTotal{From: start, To: end, Total: total}, nil
}
