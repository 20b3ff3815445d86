package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"go.uber.org/zap"
)

// newRouter mounts every endpoint. rateLimit is requests per minute per
// client IP; zero disables limiting.
func newRouter(a *api, rateLimit int) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(a.logger))
	r.Use(middleware.Recoverer)
	r.Use(a.metrics.Middleware)
	if rateLimit > 0 {
		r.Use(httprate.Limit(rateLimit, time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				writeProblem(w, http.StatusTooManyRequests, "rate limit exceeded")
			}),
		))
	}

	r.Method(http.MethodGet, "/metrics", a.metrics.Handler())

	r.Route("/products", func(r chi.Router) {
		r.Get("/", a.searchProducts)
		r.Post("/", a.createProduct)
		r.Get("/search", a.fullTextSearch)
		r.Get("/latest", a.latestProducts)
		r.Get("/most-viewed", a.mostViewedProducts)
		r.Get("/cheapest", a.cheapestProducts)
		r.Get("/negotiable", a.negotiableProducts)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", a.getProduct)
			r.Put("/", a.updateProduct)
			r.Delete("/", a.deleteProduct)
			r.Get("/similar", a.similarProducts)
			r.Post("/sold", a.markProductSold)
		})
	})

	r.Route("/categories", func(r chi.Router) {
		r.Get("/", a.listCategories)
		r.Post("/", a.createCategory)
		r.Get("/roots", a.rootCategories)
		r.Get("/{id}/children", a.subCategories)
		r.Get("/{id}/products", a.categoryProducts)
	})

	r.Route("/users", func(r chi.Router) {
		r.Post("/", a.createUser)
		r.Get("/top-rated", a.topRatedSellers)
		r.Get("/top-sellers", a.topSellers)
		r.Get("/with-listings", a.sellersWithListings)
		r.Get("/{id}", a.getUser)
		r.Get("/{id}/orders", a.buyerOrders)
		r.Get("/{id}/products", a.sellerProducts)
		r.Get("/{id}/sales", a.sellerOrders)
		r.Route("/{id}/cart", func(r chi.Router) {
			r.Get("/", a.getCart)
			r.Post("/", a.addToCart)
			r.Delete("/", a.clearCart)
			r.Post("/checkout", a.checkoutCart)
			r.Patch("/{productID}", a.updateCartItem)
			r.Delete("/{productID}", a.removeFromCart)
		})
	})

	r.Route("/orders", func(r chi.Router) {
		r.Post("/", a.createOrder)
		r.Get("/number/{number}", a.getOrderByNumber)
		r.Get("/{id}", a.getOrder)
		r.Post("/{id}/items", a.addOrderItem)
		r.Patch("/{id}/status", a.updateOrderStatus)
	})
	r.Patch("/order-items/{id}", a.updateOrderItemQuantity)

	r.Route("/reports", func(r chi.Router) {
		r.Get("/categories", a.categoryStats)
		r.Get("/conditions", a.conditionStats)
		r.Get("/average-prices", a.averagePrices)
		r.Get("/sales", a.salesBetween)
	})

	return r
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("query", r.URL.RawQuery),
				zap.Int("status", status),
				zap.Duration("latency", time.Since(start)),
				zap.String("client_ip", r.RemoteAddr),
				zap.Int("body_size", ww.BytesWritten()),
			}
			if rid := middleware.GetReqID(r.Context()); rid != "" {
				fields = append(fields, zap.String("request_id", rid))
			}

			switch {
			case status >= 500:
				logger.Error("http_request", fields...)
			case status >= 400:
				logger.Warn("http_request", fields...)
			default:
				logger.Info("http_request", fields...)
			}
		})
	}
}
