package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/promo-storefront/internal/domain/campaign"
	"github.com/xenking/promo-storefront/internal/domain/order"
	"github.com/xenking/promo-storefront/internal/domain/payment"
	"github.com/xenking/promo-storefront/internal/handler"
	"github.com/xenking/promo-storefront/internal/paymentgw"
	"github.com/xenking/promo-storefront/pkg/health"
	"github.com/xenking/promo-storefront/pkg/httpmiddleware"
)

const serviceName = "promo-storefront"

// noPayments rejects every prepaid checkout when no provider is configured.
type noPayments struct{}

func (noPayments) Verify(context.Context, string) (payment.Status, error) {
	return payment.StatusFailed, nil
}

// Server is the assembled application: the HTTP handler with every route
// and middleware, plus the health service and background jobs behind it.
type Server struct {
	Handler http.Handler
	Health  *health.Health

	campaigns *campaign.Service
	stores    *stores
}

// New opens storage and wires the domain services, the payment provider and
// the HTTP stack. The caller must Close the returned Server.
func New(ctx context.Context, lg *zap.Logger, t httpmiddleware.Telemetry, cfg *Config) (*Server, error) {
	ctx = zctx.Base(ctx, lg)

	st, err := openStores(ctx, lg, cfg)
	if err != nil {
		return nil, err
	}

	healthSvc := health.New()
	if st.ping != nil {
		healthSvc.AddReadinessCheck(cfg.Storage, 5*time.Second, st.ping)
	}
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	// Payment provider.
	var (
		verifier payment.Verifier = noPayments{}
		intents  payment.IntentCreator
		webhook  handler.WebhookParser
	)
	if cfg.Payment.BaseURL != "" {
		client := paymentgw.NewClient(cfg.Payment.BaseURL, cfg.Payment.SecretKey,
			paymentgw.WithCurrency(cfg.Payment.Currency),
			paymentgw.WithTimeout(cfg.Payment.Timeout),
			paymentgw.WithTracerProvider(t.TracerProvider()),
		)
		verifier = client
		intents = client
		healthSvc.AddReadinessCheck("payment", 5*time.Second, health.PingCheck(client))
	} else {
		lg.Warn("Payment provider not configured, prepaid checkout is disabled")
	}
	if cfg.Payment.WebhookSecret != "" {
		webhook = paymentgw.NewWebhook(cfg.Payment.WebhookSecret, cfg.Payment.WebhookTolerance)
	}

	// Domain services.
	campaignService := campaign.NewService(st.campaigns, st.products,
		campaign.WithActiveLimit(cfg.Campaigns.ActiveLimit),
	)
	orderService := order.NewService(st.products, campaignService, st.ledger, verifier, st.orders,
		order.WithEstimatedDelivery(cfg.Checkout.EstimatedDelivery),
		order.WithTracerProvider(t.TracerProvider()),
		order.WithMeterProvider(t.MeterProvider()),
	)

	// Router: health endpoints + API routes on one server.
	router := chi.NewRouter()
	router.Get("/livez", healthSvc.LiveEndpoint)
	router.Get("/readyz", healthSvc.ReadyEndpoint)

	var checkoutLimit httpmiddleware.Middleware
	if cfg.RateLimit.Max > 0 {
		checkoutLimit = httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
			Max:    cfg.RateLimit.Max,
			Window: cfg.RateLimit.Window,
		})
	}
	handler.NewHandler(campaignService, orderService, webhook, intents).
		Mount(router, handler.NewSecurity(st.apikeys, []byte(cfg.APIKeyPepper)), checkoutLimit)

	return &Server{
		Handler: httpmiddleware.Wrap(router,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", handler.APIKeyHeader, httpmiddleware.RequestIDHeader},
				ExposeHeaders:    []string{httpmiddleware.RequestIDHeader, "Retry-After"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(lg),
			httpmiddleware.RouteContext(),
			httpmiddleware.Instrument(serviceName, httpmiddleware.ChiRoute, t),
			httpmiddleware.LogRequests(httpmiddleware.ChiRoute),
		),
		Health:    healthSvc,
		campaigns: campaignService,
		stores:    st,
	}, nil
}

// Close releases storage.
func (s *Server) Close() {
	s.Health.Stop()
	s.stores.close()
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("storage", cfg.Storage),
	)

	srv, err := New(ctx, lg, m, cfg)
	if err != nil {
		return err
	}
	defer srv.Close()

	srv.Health.Start(ctx, 10*time.Second)
	srv.Health.SetReady(true)

	if cfg.Campaigns.SweepInterval > 0 {
		go runSweeper(zctx.Base(ctx, lg), lg, srv.campaigns, cfg.Campaigns.SweepInterval)
	}

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10*time.Second + cfg.Payment.Timeout,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           srv.Handler,
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		srv.Health.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
