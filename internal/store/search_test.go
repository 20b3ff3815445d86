package store_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safar/secondhand-store/internal/database"
	"github.com/safar/secondhand-store/internal/models"
	"github.com/safar/secondhand-store/internal/store"
)

func ptr[T any](v T) *T { return &v }

func TestSearchWithoutFiltersReturnsAvailableNewestFirst(t *testing.T) {
	f := newFixture(t)
	seller := f.user("Ada", "Lovelace")
	category := f.category("Books")

	first := f.product(category.ID, seller.ID, "First", "10.00")
	second := f.product(category.ID, seller.ID, "Second", "20.00")
	third := f.product(category.ID, seller.ID, "Third", "30.00")
	_, err := store.MarkProductSold(f.ctx, f.db, second.ID)
	require.NoError(t, err)

	page, err := store.Search(f.ctx, f.db, store.SearchFilters{})
	require.NoError(t, err)

	assert.Equal(t, []int64{third.ID, first.ID}, ids(page.Items))
	assert.Equal(t, int64(2), page.Total)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, store.DefaultPageSize, page.PageSize)
	assert.Equal(t, 1, page.TotalPages)
}

func TestSearchCombinesFilters(t *testing.T) {
	f := newFixture(t)
	seller := f.user("Ada", "Lovelace")
	electronics := f.category("Electronics")
	books := f.category("Books")

	match := f.product(electronics.ID, seller.ID, "Vintage Camera", "120.00",
		withCondition(models.ConditionGood), withCity("Berlin"))
	f.product(electronics.ID, seller.ID, "Vintage Camera Lens", "300.00",
		withCondition(models.ConditionGood), withCity("Berlin"))
	f.product(electronics.ID, seller.ID, "Camera Bag", "110.00",
		withCondition(models.ConditionPoor), withCity("Berlin"))
	f.product(books.ID, seller.ID, "Camera Manual", "115.00",
		withCondition(models.ConditionGood), withCity("Berlin"))
	f.product(electronics.ID, seller.ID, "Digital Camera", "125.00",
		withCondition(models.ConditionGood), withCity("Munich"))

	page, err := store.Search(f.ctx, f.db, store.SearchFilters{
		Name:       ptr("CAMERA"),
		CategoryID: ptr(electronics.ID),
		MinPrice:   ptr(decimal.NewFromInt(100)),
		MaxPrice:   ptr(decimal.NewFromInt(200)),
		Condition:  ptr(models.ConditionGood),
		City:       ptr("  berlin "),
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{match.ID}, ids(page.Items))
}

func TestSearchPagesAndSorts(t *testing.T) {
	f := newFixture(t)
	seller := f.user("Ada", "Lovelace")
	category := f.category("Books")

	var created []*models.Product
	for _, price := range []string{"50.00", "10.00", "40.00", "20.00", "30.00"} {
		created = append(created, f.product(category.ID, seller.ID, "Book", price))
	}

	page, err := store.Search(f.ctx, f.db, store.SearchFilters{Page: 3, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(5), page.Total)
	assert.Equal(t, 3, page.TotalPages)
	assert.Equal(t, []int64{created[0].ID}, ids(page.Items))

	page, err = store.Search(f.ctx, f.db, store.SearchFilters{Sort: store.SortPriceAsc, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, []int64{created[1].ID, created[3].ID}, ids(page.Items))

	page, err = store.Search(f.ctx, f.db, store.SearchFilters{Sort: store.SortOldest, PageSize: 1})
	require.NoError(t, err)
	assert.Equal(t, []int64{created[0].ID}, ids(page.Items))

	_, err = store.Search(f.ctx, f.db, store.SearchFilters{Sort: "random"})
	assert.ErrorIs(t, err, database.ErrInvalidArgument)
}

func TestFullTextSearchMatchesAnyTextField(t *testing.T) {
	f := newFixture(t)
	seller := f.user("Ada", "Lovelace")
	category := f.category("Clothing")

	byKeywords := f.product(category.ID, seller.ID, "Jacket", "80.00", withKeywords("leather retro biker"))
	byBrand := f.product(category.ID, seller.ID, "Sneakers", "60.00", withBrand("RetroRun"))
	f.product(category.ID, seller.ID, "Scarf", "15.00", withKeywords("wool"))

	page, err := store.FullTextSearch(f.ctx, f.db, "RETRO", 1, 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{byKeywords.ID, byBrand.ID}, ids(page.Items))
	assert.Equal(t, int64(2), page.Total)
}

func TestSubstringSearchIsLiteral(t *testing.T) {
	f := newFixture(t)
	seller := f.user("Ada", "Lovelace")
	category := f.category("Clothing")

	literal := f.product(category.ID, seller.ID, "100% Cotton Shirt", "20.00")
	f.product(category.ID, seller.ID, "1000 Thread Sheets", "20.00")
	f.product(category.ID, seller.ID, "Polo_Shirt", "20.00", withBrand("A_B"))

	products, err := store.SearchByName(f.ctx, f.db, "100%")
	require.NoError(t, err)
	assert.Equal(t, []int64{literal.ID}, ids(products))

	products, err = store.SearchByBrand(f.ctx, f.db, "a_b")
	require.NoError(t, err)
	assert.Len(t, products, 1)

	products, err = store.SearchByBrand(f.ctx, f.db, "a%b")
	require.NoError(t, err)
	assert.Empty(t, products)
}

func TestSimilarProducts(t *testing.T) {
	f := newFixture(t)
	seller := f.user("Ada", "Lovelace")
	electronics := f.category("Electronics")
	books := f.category("Books")

	source := f.product(electronics.ID, seller.ID, "Headphones", "100.00")
	lowEdge := f.product(electronics.ID, seller.ID, "Earbuds", "70.00")
	highEdge := f.product(electronics.ID, seller.ID, "Speaker", "130.00")
	f.product(electronics.ID, seller.ID, "Cable", "69.99")
	f.product(electronics.ID, seller.ID, "Amplifier", "130.01")
	f.product(books.ID, seller.ID, "Audio Book", "100.00")
	sold := f.product(electronics.ID, seller.ID, "Radio", "100.00")
	_, err := store.MarkProductSold(f.ctx, f.db, sold.ID)
	require.NoError(t, err)

	similar, err := store.SimilarProducts(f.ctx, f.db, source.ID, 5)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{lowEdge.ID, highEdge.ID}, ids(similar))

	similar, err = store.SimilarProducts(f.ctx, f.db, source.ID, 1)
	require.NoError(t, err)
	assert.Len(t, similar, 1)

	_, err = store.SimilarProducts(f.ctx, f.db, source.ID, 0)
	assert.ErrorIs(t, err, database.ErrInvalidArgument)

	_, err = store.SimilarProducts(f.ctx, f.db, 424242, 5)
	assert.ErrorIs(t, err, database.ErrProductNotFound)
}

func TestLatestAndMostViewedUseScanWindows(t *testing.T) {
	f := newFixture(t)
	seller := f.user("Ada", "Lovelace")
	category := f.category("Books")

	var created []*models.Product
	for i := 0; i < 25; i++ {
		created = append(created, f.product(category.ID, seller.ID, "Book", "10.00"))
	}

	latest, err := store.LatestProducts(f.ctx, f.db, 100)
	require.NoError(t, err)
	assert.Len(t, latest, 20)

	latest, err = store.LatestProducts(f.ctx, f.db, 3)
	require.NoError(t, err)
	assert.Equal(t, []int64{created[24].ID, created[23].ID, created[22].ID}, ids(latest))

	for i := 0; i < 3; i++ {
		_, err := store.TouchProduct(f.ctx, f.db, created[0].ID)
		require.NoError(t, err)
	}
	_, err = store.TouchProduct(f.ctx, f.db, created[1].ID)
	require.NoError(t, err)

	viewed, err := store.MostViewedProducts(f.ctx, f.db, 100)
	require.NoError(t, err)
	require.Len(t, viewed, 10)
	assert.Equal(t, created[0].ID, viewed[0].ID)
	assert.Equal(t, created[1].ID, viewed[1].ID)

	_, err = store.LatestProducts(f.ctx, f.db, 0)
	assert.ErrorIs(t, err, database.ErrInvalidArgument)
	_, err = store.MostViewedProducts(f.ctx, f.db, -1)
	assert.ErrorIs(t, err, database.ErrInvalidArgument)
}

func TestExactFilters(t *testing.T) {
	f := newFixture(t)
	rated := f.user("Ada", "Lovelace")
	unrated := f.user("Bob", "Builder")
	_, err := store.UpdateSellerRating(f.ctx, f.db, rated.ID, 4.8)
	require.NoError(t, err)

	electronics := f.category("Electronics")
	books := f.category("Books")

	phone := f.product(electronics.ID, rated.ID, "Phone", "300.00", withCity("Paris"), negotiable())
	novel := f.product(books.ID, unrated.ID, "Novel", "8.00", withCondition(models.ConditionPoor), withCity("paris"))
	lamp := f.product(electronics.ID, unrated.ID, "Lamp", "25.00", withCity("Lyon"))

	got, err := store.ProductsByCategory(f.ctx, f.db, electronics.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{lamp.ID, phone.ID}, ids(got))

	_, err = store.ProductsByCategory(f.ctx, f.db, 424242)
	assert.ErrorIs(t, err, database.ErrCategoryNotFound)

	got, err = store.ProductsBySeller(f.ctx, f.db, unrated.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{lamp.ID, novel.ID}, ids(got))

	_, err = store.ProductsBySeller(f.ctx, f.db, 424242)
	assert.ErrorIs(t, err, database.ErrUserNotFound)

	got, err = store.ProductsByCondition(f.ctx, f.db, models.ConditionPoor)
	require.NoError(t, err)
	assert.Equal(t, []int64{novel.ID}, ids(got))

	got, err = store.ProductsUnderPrice(f.ctx, f.db, decimal.NewFromInt(25))
	require.NoError(t, err)
	assert.Equal(t, []int64{lamp.ID, novel.ID}, ids(got))

	got, err = store.ProductsInPriceRange(f.ctx, f.db, decimal.NewFromInt(8), decimal.NewFromInt(25))
	require.NoError(t, err)
	assert.Equal(t, []int64{lamp.ID, novel.ID}, ids(got))

	got, err = store.ProductsInPriceRange(f.ctx, f.db, decimal.NewFromInt(25), decimal.NewFromInt(8))
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = store.ProductsByCity(f.ctx, f.db, "PARIS")
	require.NoError(t, err)
	assert.Equal(t, []int64{novel.ID, phone.ID}, ids(got))

	got, err = store.NegotiableProducts(f.ctx, f.db)
	require.NoError(t, err)
	assert.Equal(t, []int64{phone.ID}, ids(got))

	got, err = store.ProductsByHighRatedSellers(f.ctx, f.db, 4.5)
	require.NoError(t, err)
	assert.Equal(t, []int64{phone.ID}, ids(got))

	got, err = store.CheapestProducts(f.ctx, f.db, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{novel.ID, lamp.ID}, ids(got))
}
