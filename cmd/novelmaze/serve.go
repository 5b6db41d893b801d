package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/novelmaze/novelmaze/internal/api/handlers"
	"github.com/novelmaze/novelmaze/internal/cache"
	"github.com/novelmaze/novelmaze/internal/events"
	"github.com/novelmaze/novelmaze/internal/notify"
	"github.com/novelmaze/novelmaze/internal/repository"
	"github.com/novelmaze/novelmaze/internal/service/access"
	"github.com/novelmaze/novelmaze/internal/service/gamification"
	"github.com/novelmaze/novelmaze/internal/service/listeners"
	"github.com/novelmaze/novelmaze/internal/service/purchase"
	"github.com/novelmaze/novelmaze/internal/service/scheduler"
	"github.com/novelmaze/novelmaze/pkg/ids"
)

// services holds every wired component of a running process.
type services struct {
	db            *repository.DB
	cache         *cache.RedisCache
	webhook       *notify.WebhookClient
	game          *gamification.Service
	access        *access.Service
	purchases     *purchase.Service
	notifications *notify.Service
	bus           *events.Bus
}

func (s *services) close() {
	if s.bus != nil {
		s.bus.Wait()
	}
	if s.webhook != nil {
		s.webhook.Wait()
	}
	_ = s.cache.Close()
	_ = s.db.Close()
}

// wire connects to the stores and builds the domain services.
func (a *app) wire(ctx context.Context) (*services, error) {
	cfg := a.cfg

	if cfg.Database.AutoMigrate {
		if err := repository.RunMigrations(cfg.Database.Postgres.URL(), repository.MigrateUp, a.log.Component("migrate")); err != nil {
			return nil, err
		}
	}

	db, err := repository.NewDB(&cfg.Database.Postgres, a.log.Component("database"))
	if err != nil {
		return nil, err
	}
	redisCache, err := cache.New(&cfg.Database.Redis, a.log.Component("cache"))
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &services{db: db, cache: redisCache}

	var announcer gamification.Announcer
	if cfg.Notifications.WebhookEnable {
		s.webhook = notify.NewWebhookClient(&cfg.Notifications, a.log)
		announcer = s.webhook
	}

	s.game, err = gamification.NewService(db, redisCache, announcer, gamification.Options{
		Curve:               gamification.FlatCurve{XPPerLevel: cfg.Gamification.XPPerLevel},
		SummaryTTL:          cfg.Gamification.SummaryTTL(),
		DefinitionCacheSize: cfg.Gamification.DefinitionCache,
	}, a.log)
	if err != nil {
		s.close()
		return nil, err
	}

	catalog, err := gamification.LoadCatalog(cfg.Gamification.AchievementsFile)
	if err != nil {
		s.close()
		return nil, err
	}
	if _, err := s.game.SyncCatalog(ctx, catalog); err != nil {
		s.close()
		return nil, err
	}

	readable, err := ids.NewReadableGenerator("PUR", cfg.Purchase.ReadableIDSalt, cfg.Purchase.SnowflakeNodeID)
	if err != nil {
		s.close()
		return nil, err
	}

	s.access = access.NewService(db, a.log)
	s.purchases = purchase.NewService(db, redisCache, readable, s.game, announcer, purchase.Options{
		Currency: cfg.Purchase.Currency,
		LockTTL:  time.Duration(cfg.Purchase.LockTTL) * time.Second,
	}, a.log)
	s.notifications = notify.NewService(db, a.log)

	s.bus = events.NewBus(a.log)
	l, err := listeners.New(s.game, redisCache, cfg.Rewards, a.log)
	if err != nil {
		s.close()
		return nil, err
	}
	l.Register(s.bus)

	return s, nil
}

func newServeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API server, metrics exporter and scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
			defer stop()
			return a.serve(ctx)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg

	s, err := a.wire(ctx)
	if err != nil {
		return err
	}
	defer s.close()

	h := handlers.NewHandler(handlers.Dependencies{
		Gamification:  s.game,
		Access:        s.access,
		Purchases:     s.purchases,
		Notifications: s.notifications,
		Library:       repository.NewLibraryRepository(s.db),
		Users:         repository.NewUserRepository(s.db),
		Events:        s.bus,
		HealthChecks: map[string]func(ctx context.Context) error{
			"postgres": func(context.Context) error { return s.db.Health() },
			"redis":    s.cache.Health,
		},
	}, a.log)

	servers := []*http.Server{{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           handlers.NewRouter(cfg, h, a.log),
		ReadHeaderTimeout: 10 * time.Second,
	}}
	if cfg.Metrics.Prometheus.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Prometheus.Path, promhttp.Handler())
		servers = append(servers, &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Metrics.Prometheus.Port),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		})
	}

	sched := scheduler.NewService(cfg, s.game, s.notifications, a.log)
	if err := sched.Start(); err != nil {
		return err
	}
	defer sched.Stop()

	eg, groupCtx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		eg.Go(func() error {
			a.log.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	eg.Go(func() error {
		<-groupCtx.Done()
		a.log.Info().Msg("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
		defer cancel()

		var errs []error
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("shutdown %s: %w", srv.Addr, err))
			}
		}
		return errors.Join(errs...)
	})

	if err := eg.Wait(); err != nil {
		return err
	}
	a.log.Info().Msg("Server stopped")
	return nil
}
