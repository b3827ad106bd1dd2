// Package app wires the order service together.
package app

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/food-delivery-orders/internal/domain/auth"
	"github.com/xenking/food-delivery-orders/internal/domain/offer"
	"github.com/xenking/food-delivery-orders/internal/domain/order"
	"github.com/xenking/food-delivery-orders/internal/domain/product"
	"github.com/xenking/food-delivery-orders/internal/handler"
	"github.com/xenking/food-delivery-orders/internal/storage/postgres"
	"github.com/xenking/food-delivery-orders/pkg/health"
	"github.com/xenking/food-delivery-orders/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.Bool("offers_enabled", cfg.Offers.Enabled),
	)

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	checks := health.New()
	checks.Register(health.Check{
		Name:    "postgres",
		Kind:    health.Readiness,
		Timeout: 5 * time.Second,
		Func:    health.PingCheck(pool),
	})
	checks.Register(health.Check{
		Name: "goroutines",
		Kind: health.Liveness,
		Func: health.GoroutineCountCheck(10000),
	})
	checks.Start(ctx, 10*time.Second)
	checks.SetReady(true)

	srv, err := newServer(pool, cfg, m.TracerProvider(), m.MeterProvider())
	if err != nil {
		return err
	}
	go srv.limiter.Run(ctx)

	router := chi.NewRouter()
	router.Get("/livez", checks.LiveEndpoint)
	router.Get("/readyz", checks.ReadyEndpoint)
	router.Mount("/api", srv.api)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: otelhttp.NewHandler(
			httpmiddleware.Wrap(router,
				httpmiddleware.InjectLogger(zctx.From(ctx)),
				httpmiddleware.RequestID(),
				httpmiddleware.LogRequests(),
				httpmiddleware.Recovery(),
			),
			"food-orders-api",
			otelhttp.WithTracerProvider(m.TracerProvider()),
			otelhttp.WithMeterProvider(m.MeterProvider()),
		),
	}

	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		checks.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		checks.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

type apiServer struct {
	api     http.Handler
	limiter *httpmiddleware.Limiter
}

// newServer builds the authenticated /api routes on top of the given pool.
func newServer(pool *pgxpool.Pool, cfg *Config, tp trace.TracerProvider, mp metric.MeterProvider) (*apiServer, error) {
	products := postgres.NewProductRepository(pool)
	offers := postgres.NewOfferRepository(pool)

	pricing := offer.FlatPrice()
	if cfg.Offers.Enabled {
		pricing = offer.WithOffers(offer.NewEvaluator(offers))
	}

	orders, err := order.NewService(order.Dependencies{
		Addresses:   postgres.NewAddressRepository(pool),
		Restaurants: postgres.NewRestaurantRepository(pool),
		Prices:      product.NewPriceResolver(products),
		Pricing:     pricing,
		Usage:       offers,
		Orders:      postgres.NewOrderRepository(pool),
	}, tp, mp)
	if err != nil {
		return nil, errors.Wrap(err, "create order service")
	}

	limiter := httpmiddleware.NewLimiter(httpmiddleware.RateLimitConfig{
		Max:    cfg.RateLimit.Max,
		Window: cfg.RateLimit.Window,
		Key:    rateLimitKey,
	})

	authn := handler.NewAuthenticator([]byte(cfg.JWTSecret))
	h := handler.NewHandler(orders)

	api := chi.NewRouter()
	api.Use(authn.Middleware, limiter.Middleware())
	h.Routes(api)

	return &apiServer{api: api, limiter: limiter}, nil
}

// rateLimitKey limits authenticated callers per user and everyone else per
// client address.
func rateLimitKey(r *http.Request) string {
	if actor, ok := auth.FromContext(r.Context()); ok {
		return "user:" + strconv.FormatInt(actor.UserID, 10)
	}
	return "ip:" + httpmiddleware.ClientIP(r)
}
