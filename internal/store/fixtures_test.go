package store_test

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/safar/secondhand-store/internal/models"
	"github.com/safar/secondhand-store/internal/store"
	"github.com/safar/secondhand-store/internal/testutil"
)

var fixtureSeq atomic.Int64

type fixture struct {
	t   *testing.T
	db  *sql.DB
	ctx context.Context
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return &fixture{t: t, db: testutil.NewPostgres(t), ctx: context.Background()}
}

func (f *fixture) user(first, last string) *models.User {
	f.t.Helper()
	user, err := store.CreateUser(f.ctx, f.db, store.UserInput{
		Email:     fmt.Sprintf("user%d@example.com", fixtureSeq.Add(1)),
		FirstName: first,
		LastName:  last,
	})
	require.NoError(f.t, err)
	return user
}

func (f *fixture) category(name string) *models.Category {
	f.t.Helper()
	category, err := store.CreateCategory(f.ctx, f.db, store.CategoryInput{Name: name})
	require.NoError(f.t, err)
	return category
}

type productOption func(*store.ProductInput)

func withCondition(c models.Condition) productOption {
	return func(in *store.ProductInput) { in.Condition = c }
}

func withCity(city string) productOption {
	return func(in *store.ProductInput) { in.LocationCity = city }
}

func withBrand(brand string) productOption {
	return func(in *store.ProductInput) { in.Brand = brand }
}

func withKeywords(keywords string) productOption {
	return func(in *store.ProductInput) { in.Keywords = keywords }
}

func negotiable() productOption {
	return func(in *store.ProductInput) { in.Negotiable = true }
}

func (f *fixture) product(categoryID, sellerID int64, name, price string, opts ...productOption) *models.Product {
	f.t.Helper()
	in := store.ProductInput{
		ProductDetails: store.ProductDetails{
			Name:      name,
			Price:     decimal.RequireFromString(price),
			Condition: models.ConditionGood,
		},
		CategoryID: categoryID,
		SellerID:   sellerID,
	}
	for _, opt := range opts {
		opt(&in)
	}
	product, err := store.CreateProduct(f.ctx, f.db, in)
	require.NoError(f.t, err)
	return product
}

func ids(products []models.Product) []int64 {
	out := make([]int64, len(products))
	for i, p := range products {
		out[i] = p.ID
	}
	return out
}
