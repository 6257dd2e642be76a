// Command charityd runs the charity platform API server: notification
// counter aggregation fed by the Supabase realtime stream, donation and
// chat services, wallet balance snapshots, and the REST boundary.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Van103/fun-charity-sub001/internal/app"
	"github.com/Van103/fun-charity-sub001/internal/app/httpapi"
	"github.com/Van103/fun-charity-sub001/internal/app/storage/postgres"
	"github.com/Van103/fun-charity-sub001/internal/app/storage/redisx"
	"github.com/Van103/fun-charity-sub001/internal/chain"
	"github.com/Van103/fun-charity-sub001/internal/config"
	"github.com/Van103/fun-charity-sub001/internal/supabase"
	"github.com/Van103/fun-charity-sub001/pkg/logger"
)

func main() {
	log := logger.NewDefault("charityd")
	if err := run(log); err != nil {
		log.WithError(err).Error("charityd exited")
		os.Exit(1)
	}
}

func run(log *logger.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var supaClient *supabase.Client
	if cfg.SupabaseEnabled() {
		supaClient, err = supabase.New(supabase.Config{
			ProjectURL: cfg.Supabase.ProjectURL,
			APIKey:     cfg.Supabase.AnonKey,
		})
		if err != nil {
			return fmt.Errorf("configure supabase client: %w", err)
		}
	}

	stores := app.Stores{}
	if cfg.PostgresDSN != "" {
		if err := postgres.RunMigrations(cfg.PostgresDSN); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		pg, err := postgres.Open(cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		defer pg.Close()
		stores.Friendships = pg
		stores.Chat = pg
		stores.Donations = pg
		stores.Preferences = pg
		log.Info("using postgres storage")
	} else if supaClient != nil {
		friendships, err := supabase.NewFriendshipStore(supaClient, log)
		if err != nil {
			return fmt.Errorf("configure supabase friendship store: %w", err)
		}
		stores.Friendships = friendships
		log.Info("using supabase friendship storage")
	} else {
		log.Warn("CHARITY_POSTGRES_DSN not set; using in-memory storage")
	}

	if cfg.Redis.Addr != "" {
		prefs, err := redisx.Open(ctx, redisx.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.TTL,
		})
		if err != nil {
			return fmt.Errorf("open redis: %w", err)
		}
		defer prefs.Close()
		stores.Preferences = prefs
		log.WithField("addr", cfg.Redis.Addr).Info("using redis preference storage")
	}

	opts := app.Options{
		TokenAppID:        cfg.TokenAppID,
		TokenKey:          []byte(cfg.TokenKey),
		KYCBaseURL:        cfg.KYCBaseURL,
		KYCSecret:         []byte(cfg.KYCSecret),
		KYCAdmins:         cfg.KYCAdmins,
		ReconcileSchedule: cfg.ReconcileSchedule,
		DonationMaxAge:    cfg.DonationMaxAge,
	}
	if cfg.Chain.RPCURL != "" {
		chainClient, err := chain.NewClient(chain.Config{RPCURL: cfg.Chain.RPCURL})
		if err != nil {
			return fmt.Errorf("configure chain client: %w", err)
		}
		opts.Chain = chainClient
	} else {
		log.Warn("CHAIN_RPC_URL not set; wallet balances disabled")
	}
	if cfg.TranslationsDir != "" {
		opts.Translations = os.DirFS(cfg.TranslationsDir)
	}

	application, err := app.New(stores, opts, log)
	if err != nil {
		return fmt.Errorf("build application: %w", err)
	}

	if supaClient != nil {
		feed, err := supabase.NewRealtimeFeed(supaClient, application.Bus, log)
		if err != nil {
			return fmt.Errorf("configure realtime feed: %w", err)
		}
		if err := application.Attach(feed); err != nil {
			return fmt.Errorf("attach realtime feed: %w", err)
		}
	} else {
		log.Warn("SUPABASE_URL not set; realtime feed disabled")
	}

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("start application: %w", err)
	}

	handler, err := httpapi.NewHandler(application, httpapi.Config{
		AuthSecret:  []byte(cfg.Supabase.JWTSecret),
		AuditPath:   cfg.AuditPath,
		WalletTTL:   cfg.WalletTTL,
		WalletPrice: cfg.WalletPrice,
	}, log)
	if err != nil {
		return fmt.Errorf("build handler: %w", err)
	}

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.ListenAddr).Info("listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.WithField("signal", sig.String()).Info("shutting down")
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("server shutdown")
	}
	if err := application.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("application stop")
	}

	log.Info("stopped")
	return nil
}
