package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/safar/secondhand-store/internal/database"
	"github.com/safar/secondhand-store/internal/models"
	"github.com/safar/secondhand-store/internal/query"
	"github.com/shopspring/decimal"
)

const (
	latestScanWindow     = 20
	mostViewedScanWindow = 10
)

var (
	similarLowerBound = decimal.New(7, -1)
	similarUpperBound = decimal.New(13, -1)
)

type SortOrder string

const (
	SortNewest     SortOrder = "newest"
	SortOldest     SortOrder = "oldest"
	SortPriceAsc   SortOrder = "price_asc"
	SortPriceDesc  SortOrder = "price_desc"
	SortMostViewed SortOrder = "most_viewed"
)

// SearchFilters combines optional criteria with AND. A nil criterion places
// no constraint on the result.
type SearchFilters struct {
	Name       *string
	CategoryID *int64
	MinPrice   *decimal.Decimal
	MaxPrice   *decimal.Decimal
	Condition  *models.Condition
	City       *string
	Sort       SortOrder
	Page       int
	PageSize   int
}

// availableProducts is the base of every catalog query: only listings that
// are available and not sold are visible.
func availableProducts() *query.Builder {
	return query.From("products").
		Select(productFields...).
		Where(query.Raw("is_available")).
		Where(query.Raw("NOT is_sold"))
}

func newestFirst(b *query.Builder) *query.Builder {
	return b.OrderBy("created_at", query.Desc).OrderBy("id", query.Desc)
}

func applySort(b *query.Builder, sort SortOrder) (*query.Builder, error) {
	switch sort {
	case "", SortNewest:
		return newestFirst(b), nil
	case SortOldest:
		return b.OrderBy("created_at", query.Asc).OrderBy("id", query.Asc), nil
	case SortPriceAsc:
		return newestFirst(b.OrderBy("price", query.Asc)), nil
	case SortPriceDesc:
		return newestFirst(b.OrderBy("price", query.Desc)), nil
	case SortMostViewed:
		return newestFirst(b.OrderBy("view_count", query.Desc)), nil
	default:
		return nil, database.InvalidArgumentf("unknown sort order %q", sort)
	}
}

func listProducts(ctx context.Context, db database.Querier, b *query.Builder) ([]models.Product, error) {
	stmt, args := b.Build()

	rows, err := db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := []models.Product{}
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, *product)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return products, nil
}

func pageProducts(ctx context.Context, db database.Querier, b *query.Builder, page, pageSize int) (*OffsetPage[models.Product], error) {
	page, pageSize = normalizePage(page, pageSize)

	countStmt, countArgs := b.Count().Build()
	var total int64
	if err := db.QueryRowContext(ctx, countStmt, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}

	products, err := listProducts(ctx, db, b.Limit(int64(pageSize)).Offset(int64((page-1)*pageSize)))
	if err != nil {
		return nil, err
	}

	return newOffsetPage(products, total, page, pageSize), nil
}

// Search applies every present filter and returns one page, newest first
// unless another sort order is requested.
func Search(ctx context.Context, db database.Querier, f SearchFilters) (*OffsetPage[models.Product], error) {
	b := availableProducts()

	if f.Name != nil {
		b = b.Where(query.ContainsFold("name", *f.Name))
	}
	if f.CategoryID != nil {
		b = b.Where(query.Eq("category_id", *f.CategoryID))
	}
	if f.MinPrice != nil {
		b = b.Where(query.Gte("price", *f.MinPrice))
	}
	if f.MaxPrice != nil {
		b = b.Where(query.Lte("price", *f.MaxPrice))
	}
	if f.Condition != nil {
		b = b.Where(query.Eq("condition", *f.Condition))
	}
	if f.City != nil {
		b = b.Where(query.EqFold("location_city", models.NormalizeCity(*f.City)))
	}

	b, err := applySort(b, f.Sort)
	if err != nil {
		return nil, err
	}

	return pageProducts(ctx, db, b, f.Page, f.PageSize)
}

// FullTextSearch matches term as a case-insensitive substring of the name,
// description, keywords or brand.
func FullTextSearch(ctx context.Context, db database.Querier, term string, page, pageSize int) (*OffsetPage[models.Product], error) {
	b := availableProducts().Where(query.Or(
		query.ContainsFold("name", term),
		query.ContainsFold("description", term),
		query.ContainsFold("keywords", term),
		query.ContainsFold("brand", term),
	))

	return pageProducts(ctx, db, newestFirst(b), page, pageSize)
}

// SimilarityBand returns the inclusive price range [0.7p, 1.3p].
func SimilarityBand(price decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	return price.Mul(similarLowerBound), price.Mul(similarUpperBound)
}

// SimilarProducts returns up to limit other available products in the same
// category whose price lies within the similarity band of the source
// product. Rows come back in storage order.
func SimilarProducts(ctx context.Context, db database.Querier, productID int64, limit int) ([]models.Product, error) {
	if limit < 1 {
		return nil, database.InvalidArgumentf("limit must be at least 1, got %d", limit)
	}

	source, err := GetProduct(ctx, db, productID)
	if err != nil {
		return nil, err
	}

	minPrice, maxPrice := SimilarityBand(source.Price)
	b := availableProducts().
		Where(query.Eq("category_id", source.CategoryID)).
		Where(query.Ne("id", source.ID)).
		Where(query.Between("price", minPrice, maxPrice)).
		Limit(int64(limit))

	return listProducts(ctx, db, b)
}

// LatestProducts reads the newest listings from a fixed window and returns
// the first limit of them.
func LatestProducts(ctx context.Context, db database.Querier, limit int) ([]models.Product, error) {
	return topProducts(ctx, db, newestFirst(availableProducts()), latestScanWindow, limit)
}

// MostViewedProducts is LatestProducts ordered by view count.
func MostViewedProducts(ctx context.Context, db database.Querier, limit int) ([]models.Product, error) {
	b := newestFirst(availableProducts().OrderBy("view_count", query.Desc))
	return topProducts(ctx, db, b, mostViewedScanWindow, limit)
}

// CheapestProducts lists available products by ascending price.
func CheapestProducts(ctx context.Context, db database.Querier, limit int) ([]models.Product, error) {
	b := newestFirst(availableProducts().OrderBy("price", query.Asc))
	return topProducts(ctx, db, b, MaxPageSize, limit)
}

func topProducts(ctx context.Context, db database.Querier, b *query.Builder, window, limit int) ([]models.Product, error) {
	if limit < 1 {
		return nil, database.InvalidArgumentf("limit must be at least 1, got %d", limit)
	}

	products, err := listProducts(ctx, db, b.Limit(int64(window)))
	if err != nil {
		return nil, err
	}

	if len(products) > limit {
		products = products[:limit]
	}
	return products, nil
}

func ProductsByCategory(ctx context.Context, db database.Querier, categoryID int64) ([]models.Product, error) {
	if err := categoryExists(ctx, db, categoryID); err != nil {
		return nil, err
	}
	return listProducts(ctx, db, newestFirst(availableProducts().Where(query.Eq("category_id", categoryID))))
}

func ProductsBySeller(ctx context.Context, db database.Querier, sellerID int64) ([]models.Product, error) {
	if err := userExists(ctx, db, sellerID); err != nil {
		return nil, err
	}
	return listProducts(ctx, db, newestFirst(availableProducts().Where(query.Eq("seller_id", sellerID))))
}

func ProductsByCondition(ctx context.Context, db database.Querier, condition models.Condition) ([]models.Product, error) {
	return listProducts(ctx, db, newestFirst(availableProducts().Where(query.Eq("condition", condition))))
}

// ProductsUnderPrice returns products priced at or below maxPrice.
func ProductsUnderPrice(ctx context.Context, db database.Querier, maxPrice decimal.Decimal) ([]models.Product, error) {
	return listProducts(ctx, db, newestFirst(availableProducts().Where(query.Lte("price", maxPrice))))
}

// ProductsInPriceRange is inclusive on both ends. The caller ensures
// minPrice <= maxPrice; an inverted range simply matches nothing.
func ProductsInPriceRange(ctx context.Context, db database.Querier, minPrice, maxPrice decimal.Decimal) ([]models.Product, error) {
	return listProducts(ctx, db, newestFirst(availableProducts().Where(query.Between("price", minPrice, maxPrice))))
}

func ProductsByCity(ctx context.Context, db database.Querier, city string) ([]models.Product, error) {
	b := availableProducts().Where(query.EqFold("location_city", models.NormalizeCity(city)))
	return listProducts(ctx, db, newestFirst(b))
}

func NegotiableProducts(ctx context.Context, db database.Querier) ([]models.Product, error) {
	return listProducts(ctx, db, newestFirst(availableProducts().Where(query.Raw("negotiable"))))
}

func SearchByName(ctx context.Context, db database.Querier, term string) ([]models.Product, error) {
	return listProducts(ctx, db, newestFirst(availableProducts().Where(query.ContainsFold("name", term))))
}

func SearchByBrand(ctx context.Context, db database.Querier, term string) ([]models.Product, error) {
	return listProducts(ctx, db, newestFirst(availableProducts().Where(query.ContainsFold("brand", term))))
}

// ProductsByHighRatedSellers returns products whose seller rating is at least
// minRating.
func ProductsByHighRatedSellers(ctx context.Context, db database.Querier, minRating float64) ([]models.Product, error) {
	b := query.From("products p JOIN users u ON u.id = p.seller_id").
		Select(productCols("p")...).
		Where(query.Raw("p.is_available")).
		Where(query.Raw("NOT p.is_sold")).
		Where(query.Gte("u.seller_rating", minRating)).
		OrderBy("u.seller_rating", query.Desc).
		OrderBy("p.created_at", query.Desc)

	return listProducts(ctx, db, b)
}

func categoryExists(ctx context.Context, db database.Querier, id int64) error {
	return checkExists(ctx, db, `SELECT EXISTS(SELECT 1 FROM categories WHERE id = $1)`, id, database.ErrCategoryNotFound)
}

func userExists(ctx context.Context, db database.Querier, id int64) error {
	return checkExists(ctx, db, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, id, database.ErrUserNotFound)
}

func checkExists(ctx context.Context, db database.Querier, stmt string, id int64, notFound error) error {
	var exists bool
	if err := db.QueryRowContext(ctx, stmt, id).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return notFound
		}
		return fmt.Errorf("check exists: %w", err)
	}
	if !exists {
		return notFound
	}
	return nil
}
