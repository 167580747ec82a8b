package app

import (
	"context"
	"os"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/promo-storefront/db"
	"github.com/xenking/promo-storefront/internal/domain/auth"
	"github.com/xenking/promo-storefront/internal/domain/campaign"
	"github.com/xenking/promo-storefront/internal/domain/inventory"
	"github.com/xenking/promo-storefront/internal/domain/order"
	"github.com/xenking/promo-storefront/internal/domain/product"
	"github.com/xenking/promo-storefront/internal/handler"
	"github.com/xenking/promo-storefront/internal/storage/memory"
	"github.com/xenking/promo-storefront/internal/storage/postgres"
	"github.com/xenking/promo-storefront/pkg/health"
)

// stores bundles the repositories of one storage driver.
type stores struct {
	products  product.Repository
	ledger    inventory.Ledger
	campaigns campaign.Repository
	orders    order.Repository
	apikeys   auth.Repository

	// ping is the readiness check of the backing store, nil when there is
	// nothing to probe.
	ping  health.CheckFunc
	close func()
}

func openStores(ctx context.Context, lg *zap.Logger, cfg *Config) (*stores, error) {
	switch cfg.Storage {
	case StorageMemory:
		return openMemory(lg, cfg)
	default:
		return openPostgres(ctx, cfg)
	}
}

func openPostgres(ctx context.Context, cfg *Config) (*stores, error) {
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "create db pool")
	}
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "run migrations")
	}

	return &stores{
		products:  postgres.NewProductRepository(pool),
		ledger:    postgres.NewInventoryLedger(pool),
		campaigns: postgres.NewCampaignRepository(pool),
		orders:    postgres.NewOrderRepository(pool),
		apikeys:   postgres.NewAPIKeyRepository(pool),
		ping:      health.PingCheck(pool),
		close:     pool.Close,
	}, nil
}

func openMemory(lg *zap.Logger, cfg *Config) (*stores, error) {
	data := db.SeedProducts
	if cfg.SeedFile != "" {
		var err error
		if data, err = os.ReadFile(cfg.SeedFile); err != nil {
			return nil, errors.Wrap(err, "read seed file")
		}
	}
	products, err := memory.ParseSeed(data)
	if err != nil {
		return nil, errors.Wrap(err, "parse seed")
	}
	catalog := memory.NewCatalog(products...)

	var keys []auth.APIKeyInfo
	if cfg.AdminAPIKey != "" {
		keys = append(keys, auth.APIKeyInfo{
			ID:      "admin",
			KeyHash: handler.HashAPIKey([]byte(cfg.APIKeyPepper), cfg.AdminAPIKey),
			Name:    "Bootstrap admin",
			Scopes:  []string{handler.ScopeAdmin},
		})
	} else {
		lg.Warn("No admin API key configured, admin routes are unreachable")
	}

	lg.Info("Using in-memory storage", zap.Int("products", len(products)))
	return &stores{
		products:  catalog,
		ledger:    catalog,
		campaigns: memory.NewCampaignStore(),
		orders:    memory.NewOrderStore(),
		apikeys:   memory.NewAPIKeyStore(keys...),
		close:     func() {},
	}, nil
}

// runSweeper completes expired campaigns every interval until ctx is done.
func runSweeper(ctx context.Context, lg *zap.Logger, campaigns *campaign.Service, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := campaigns.SweepExpired(ctx)
			if err != nil {
				if ctx.Err() == nil {
					lg.Error("Campaign sweep failed", zap.Error(err))
				}
				continue
			}
			if n > 0 {
				lg.Info("Expired campaigns completed", zap.Int("count", n))
			}
		}
	}
}
