// Command api serves the audit review HTTP API.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"go.temporal.io/sdk/client"

	"github.com/syncshop/catalog-audit/internal/api"
	"github.com/syncshop/catalog-audit/internal/config"
	"github.com/syncshop/catalog-audit/internal/observability"
	"github.com/syncshop/catalog-audit/internal/policy"
	"github.com/syncshop/catalog-audit/internal/store"
	"github.com/syncshop/catalog-audit/internal/temporal/querier"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		slog.Error("config error", "error", err)
		os.Exit(1)
	}

	logger := observability.InitLogger(cfg.LogLevel)
	ctx := context.Background()

	if cfg.OTelEnabled {
		shutdown, err := observability.InitTracer(ctx, "catalog-audit-api", cfg.ShopName)
		if err != nil {
			logger.Error("otel init failed", "error", err)
		} else {
			defer shutdown(context.Background())
		}
	}

	kinds, err := policy.ParseKinds(cfg.AutoFixKinds)
	if err != nil {
		logger.Error("invalid AUDIT_AUTO_FIX_KINDS", "error", err)
		os.Exit(1)
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		logger.Error("unable to open session store", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer st.Close()

	c, err := client.Dial(client.Options{
		HostPort:  cfg.TemporalAddress,
		Namespace: cfg.TemporalNamespace,
		Logger:    observability.NewTemporalSlogAdapter(logger),
	})
	if err != nil {
		logger.Error("unable to create Temporal client", "error", err)
		os.Exit(1)
	}
	defer c.Close()

	srv, err := api.New(ctx, querier.New(c), st, api.Options{
		CORSOrigins: cfg.CORSOrigins,
		OIDC: api.OIDCConfig{
			IssuerURL: cfg.OIDCIssuer,
			Audience:  cfg.OIDCAudience,
			Enabled:   cfg.OIDCEnabled(),
		},
		AutoFixKinds:     kinds,
		MaxPriceDeltaPct: cfg.MaxAutoPriceDeltaPct,
	})
	if err != nil {
		logger.Error("api init failed", "error", err)
		os.Exit(1)
	}

	addr := ":" + cfg.APIPort
	logger.Info("starting API server", "addr", addr, "oidc_enabled", cfg.OIDCEnabled())
	if err := http.ListenAndServe(addr, srv); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
