package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/safar/secondhand-store/internal/database"
	"github.com/safar/secondhand-store/internal/models"
	"github.com/safar/secondhand-store/internal/observability"
	"github.com/safar/secondhand-store/internal/report"
	"github.com/safar/secondhand-store/internal/store"
)

const defaultListLimit = 10

type invalidator interface {
	Invalidate(ctx context.Context) error
}

type api struct {
	db          *sql.DB
	reports     report.Source
	invalidator invalidator
	metrics     *observability.Metrics
	logger      *zap.Logger
}

// Products

func (a *api) searchProducts(w http.ResponseWriter, r *http.Request) {
	filters, err := parseSearchFilters(r.URL.Query())
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	a.respond(w, r, http.StatusOK)(store.Search(r.Context(), a.db, filters))
}

func (a *api) fullTextSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	term := strings.TrimSpace(q.Get("q"))
	if term == "" {
		a.respondError(w, r, database.InvalidArgumentf("q is required"))
		return
	}
	page, pageSize, err := parsePage(q)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	a.respond(w, r, http.StatusOK)(store.FullTextSearch(r.Context(), a.db, term, page, pageSize))
}

func (a *api) latestProducts(w http.ResponseWriter, r *http.Request) {
	a.listWithLimit(w, r, store.LatestProducts)
}

func (a *api) mostViewedProducts(w http.ResponseWriter, r *http.Request) {
	a.listWithLimit(w, r, store.MostViewedProducts)
}

func (a *api) cheapestProducts(w http.ResponseWriter, r *http.Request) {
	a.listWithLimit(w, r, store.CheapestProducts)
}

func (a *api) listWithLimit(w http.ResponseWriter, r *http.Request,
	list func(context.Context, database.Querier, int) ([]models.Product, error)) {
	limit, err := queryInt(r.URL.Query(), "limit", defaultListLimit)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	a.respond(w, r, http.StatusOK)(list(r.Context(), a.db, limit))
}

func (a *api) negotiableProducts(w http.ResponseWriter, r *http.Request) {
	a.respond(w, r, http.StatusOK)(store.NegotiableProducts(r.Context(), a.db))
}

func (a *api) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	product, err := store.TouchProduct(r.Context(), a.db, id)
	if err == nil {
		a.metrics.ObserveProductView()
	}
	a.respond(w, r, http.StatusOK)(product, err)
}

func (a *api) similarProducts(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	limit, err := queryInt(r.URL.Query(), "limit", defaultListLimit)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	a.respond(w, r, http.StatusOK)(store.SimilarProducts(r.Context(), a.db, id, limit))
}

func (a *api) createProduct(w http.ResponseWriter, r *http.Request) {
	var in store.ProductInput
	if err := decodeJSON(r, &in); err != nil {
		a.respondError(w, r, err)
		return
	}
	in.Condition = normalizeCondition(in.Condition)

	product, err := store.CreateProduct(r.Context(), a.db, in)
	if err == nil {
		a.invalidateReports(r.Context())
	}
	a.respond(w, r, http.StatusCreated)(product, err)
}

func (a *api) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	var details store.ProductDetails
	if err := decodeJSON(r, &details); err != nil {
		a.respondError(w, r, err)
		return
	}
	details.Condition = normalizeCondition(details.Condition)

	product, err := store.UpdateProduct(r.Context(), a.db, id, details)
	if err == nil {
		a.invalidateReports(r.Context())
	}
	a.respond(w, r, http.StatusOK)(product, err)
}

func (a *api) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	if err := store.DeleteProduct(r.Context(), a.db, id); err != nil {
		a.respondError(w, r, err)
		return
	}
	a.invalidateReports(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) markProductSold(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	product, err := store.MarkProductSold(r.Context(), a.db, id)
	if err == nil {
		a.invalidateReports(r.Context())
	}
	a.respond(w, r, http.StatusOK)(product, err)
}

// Categories

func (a *api) listCategories(w http.ResponseWriter, r *http.Request) {
	a.respond(w, r, http.StatusOK)(store.ActiveCategories(r.Context(), a.db))
}

func (a *api) rootCategories(w http.ResponseWriter, r *http.Request) {
	a.respond(w, r, http.StatusOK)(store.RootCategories(r.Context(), a.db))
}

func (a *api) subCategories(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	a.respond(w, r, http.StatusOK)(store.SubCategories(r.Context(), a.db, id))
}

func (a *api) categoryProducts(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	a.respond(w, r, http.StatusOK)(store.ProductsByCategory(r.Context(), a.db, id))
}

func (a *api) createCategory(w http.ResponseWriter, r *http.Request) {
	var in store.CategoryInput
	if err := decodeJSON(r, &in); err != nil {
		a.respondError(w, r, err)
		return
	}
	a.respond(w, r, http.StatusCreated)(store.CreateCategory(r.Context(), a.db, in))
}

// Users

func (a *api) createUser(w http.ResponseWriter, r *http.Request) {
	var in store.UserInput
	if err := decodeJSON(r, &in); err != nil {
		a.respondError(w, r, err)
		return
	}
	a.respond(w, r, http.StatusCreated)(store.CreateUser(r.Context(), a.db, in))
}

func (a *api) getUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	a.respond(w, r, http.StatusOK)(store.GetUser(r.Context(), a.db, id))
}

func (a *api) sellerProducts(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	a.respond(w, r, http.StatusOK)(store.ProductsBySeller(r.Context(), a.db, id))
}

func (a *api) sellerOrders(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	a.respond(w, r, http.StatusOK)(store.OrdersBySeller(r.Context(), a.db, id))
}

func (a *api) buyerOrders(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	q := r.URL.Query()
	limit, err := queryInt(q, "limit", store.DefaultPageSize)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	a.respond(w, r, http.StatusOK)(store.ListOrdersCursor(r.Context(), a.db, id, q.Get("cursor"), limit))
}

func (a *api) topRatedSellers(w http.ResponseWriter, r *http.Request) {
	v := r.URL.Query().Get("min_rating")
	minRating := 0.0
	if v != "" {
		var err error
		if minRating, err = strconv.ParseFloat(v, 64); err != nil {
			a.respondError(w, r, database.InvalidArgumentf("min_rating must be a number, got %q", v))
			return
		}
	}
	a.respond(w, r, http.StatusOK)(store.TopRatedSellers(r.Context(), a.db, minRating))
}

func (a *api) topSellers(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r.URL.Query(), "limit", defaultListLimit)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	a.respond(w, r, http.StatusOK)(store.TopSellersBySales(r.Context(), a.db, limit))
}

func (a *api) sellersWithListings(w http.ResponseWriter, r *http.Request) {
	a.respond(w, r, http.StatusOK)(store.SellersWithAvailableProducts(r.Context(), a.db))
}

// Carts

type cartLineRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

func (a *api) getCart(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	a.respond(w, r, http.StatusOK)(store.GetCart(r.Context(), a.db, id))
}

func (a *api) addToCart(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	var req cartLineRequest
	if err := decodeJSON(r, &req); err != nil {
		a.respondError(w, r, err)
		return
	}
	a.respond(w, r, http.StatusCreated)(store.AddToCart(r.Context(), a.db, id, req.ProductID, req.Quantity))
}

func (a *api) updateCartItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	productID, err := pathID(r, "productID")
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := decodeJSON(r, &req); err != nil {
		a.respondError(w, r, err)
		return
	}
	a.respond(w, r, http.StatusOK)(store.UpdateCartItemQuantity(r.Context(), a.db, id, productID, req.Quantity))
}

func (a *api) removeFromCart(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	productID, err := pathID(r, "productID")
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	if err := store.RemoveFromCart(r.Context(), a.db, id, productID); err != nil {
		a.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) clearCart(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	removed, err := store.ClearCart(r.Context(), a.db, id)
	a.respond(w, r, http.StatusOK)(map[string]int64{"removed": removed}, err)
}

func (a *api) checkoutCart(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	order, err := store.CheckoutCart(r.Context(), a.db, id)
	if err == nil {
		a.invalidateReports(r.Context())
	}
	a.respond(w, r, http.StatusCreated)(order, err)
}

// Orders

func (a *api) createOrder(w http.ResponseWriter, r *http.Request) {
	var req store.CreateOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		a.respondError(w, r, err)
		return
	}
	order, err := store.CreateOrder(r.Context(), a.db, req)
	if err == nil {
		a.invalidateReports(r.Context())
	}
	a.respond(w, r, http.StatusCreated)(order, err)
}

func (a *api) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	order, err := store.GetOrder(r.Context(), a.db, id)
	a.respondOrder(w, r, order, err)
}

func (a *api) getOrderByNumber(w http.ResponseWriter, r *http.Request) {
	order, err := store.GetOrderByNumber(r.Context(), a.db, chi.URLParam(r, "number"))
	a.respondOrder(w, r, order, err)
}

func (a *api) respondOrder(w http.ResponseWriter, r *http.Request, order *models.Order, err error) {
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	a.respond(w, r, http.StatusOK)(store.ViewOrder(r.Context(), a.db, order))
}

func (a *api) addOrderItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	var req store.OrderItemRequest
	if err := decodeJSON(r, &req); err != nil {
		a.respondError(w, r, err)
		return
	}
	item, err := store.AddOrderItem(r.Context(), a.db, id, req.ProductID, req.Quantity)
	if err == nil {
		a.invalidateReports(r.Context())
	}
	a.respond(w, r, http.StatusCreated)(item, err)
}

func (a *api) updateOrderItemQuantity(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := decodeJSON(r, &req); err != nil {
		a.respondError(w, r, err)
		return
	}
	a.respond(w, r, http.StatusOK)(store.UpdateOrderItemQuantity(r.Context(), a.db, id, req.Quantity))
}

func (a *api) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	var req struct {
		Status models.OrderStatus `json:"status"`
	}
	if err := decodeJSON(r, &req); err != nil {
		a.respondError(w, r, err)
		return
	}
	status := models.OrderStatus(strings.ToLower(strings.TrimSpace(string(req.Status))))

	order, err := store.UpdateOrderStatus(r.Context(), a.db, id, status)
	if err == nil {
		a.invalidateReports(r.Context())
	}
	a.respond(w, r, http.StatusOK)(order, err)
}

// Reports

func (a *api) categoryStats(w http.ResponseWriter, r *http.Request) {
	a.respond(w, r, http.StatusOK)(a.reports.StatsByCategory(r.Context()))
}

func (a *api) conditionStats(w http.ResponseWriter, r *http.Request) {
	a.respond(w, r, http.StatusOK)(a.reports.StatsByCondition(r.Context()))
}

func (a *api) averagePrices(w http.ResponseWriter, r *http.Request) {
	a.respond(w, r, http.StatusOK)(a.reports.AveragePriceByCategory(r.Context()))
}

func (a *api) salesBetween(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := queryTime(q, "from", false)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	to, err := queryTime(q, "to", true)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	a.respond(w, r, http.StatusOK)(a.reports.SalesBetween(r.Context(), from, to))
}

func (a *api) invalidateReports(ctx context.Context) {
	if a.invalidator == nil {
		return
	}
	if err := a.invalidator.Invalidate(ctx); err != nil {
		a.logger.Warn("invalidate report cache", zap.Error(err))
	}
}

// Request parsing

func parseSearchFilters(q url.Values) (store.SearchFilters, error) {
	var f store.SearchFilters

	if v := strings.TrimSpace(q.Get("name")); v != "" {
		f.Name = &v
	}
	if v := strings.TrimSpace(q.Get("city")); v != "" {
		f.City = &v
	}
	if v := q.Get("category_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return f, database.InvalidArgumentf("category_id must be an integer, got %q", v)
		}
		f.CategoryID = &id
	}
	for _, p := range []struct {
		key  string
		dest **decimal.Decimal
	}{{"min_price", &f.MinPrice}, {"max_price", &f.MaxPrice}} {
		v := q.Get(p.key)
		if v == "" {
			continue
		}
		d, err := decimal.NewFromString(v)
		if err != nil {
			return f, database.InvalidArgumentf("%s must be a decimal, got %q", p.key, v)
		}
		*p.dest = &d
	}
	if v := q.Get("condition"); v != "" {
		c, err := models.ParseCondition(v)
		if err != nil {
			return f, database.InvalidArgumentf("%v", err)
		}
		f.Condition = &c
	}
	f.Sort = store.SortOrder(strings.ToLower(q.Get("sort")))

	page, pageSize, err := parsePage(q)
	if err != nil {
		return f, err
	}
	f.Page, f.PageSize = page, pageSize

	return f, nil
}

func parsePage(q url.Values) (int, int, error) {
	page, err := queryInt(q, "page", 1)
	if err != nil {
		return 0, 0, err
	}
	pageSize, err := queryInt(q, "page_size", store.DefaultPageSize)
	if err != nil {
		return 0, 0, err
	}
	return page, pageSize, nil
}

func queryInt(q url.Values, key string, def int) (int, error) {
	v := q.Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, database.InvalidArgumentf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

// queryTime accepts RFC 3339 timestamps or plain dates. A plain date means
// the start of that day, or its last instant when endOfDay is set, so a date
// range covers both end dates in full.
func queryTime(q url.Values, key string, endOfDay bool) (time.Time, error) {
	v := q.Get(key)
	if v == "" {
		return time.Time{}, database.InvalidArgumentf("%s is required", key)
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.DateOnly, v); err == nil {
		if endOfDay {
			t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
		}
		return t, nil
	}
	return time.Time{}, database.InvalidArgumentf("%s must be RFC 3339 or YYYY-MM-DD, got %q", key, v)
}

func pathID(r *http.Request, key string) (int64, error) {
	v := chi.URLParam(r, key)
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id < 1 {
		return 0, database.InvalidArgumentf("invalid %s %q", key, v)
	}
	return id, nil
}

func decodeJSON(r *http.Request, dest any) error {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		return database.InvalidArgumentf("invalid request body: %v", err)
	}
	return nil
}

// normalizeCondition lets clients send display labels such as "Like New".
func normalizeCondition(c models.Condition) models.Condition {
	if parsed, err := models.ParseCondition(string(c)); err == nil {
		return parsed
	}
	return c
}

// Responses

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, database.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, database.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respond returns a sink for a (value, error) pair so handlers can pass a
// store call straight through.
func (a *api) respond(w http.ResponseWriter, r *http.Request, status int) func(any, error) {
	return func(v any, err error) {
		if err != nil {
			a.respondError(w, r, err)
			return
		}
		writeJSON(w, status, v)
	}
}

func (a *api) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	detail := err.Error()
	if status >= http.StatusInternalServerError {
		a.logger.Error("request failed",
			zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Error(err))
		detail = ""
	}
	writeProblem(w, status, detail)
}

func writeProblem(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(problem{
		Type:   "about:blank",
		Title:  http.StatusText(status),
		Status: status,
		Detail: detail,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
