package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/bmintz/emoji-vacuum/pkg/emotepool"
	"github.com/bmintz/emoji-vacuum/pkg/emotepool/admin"
	"github.com/bmintz/emoji-vacuum/pkg/emotepool/api"
	"github.com/bmintz/emoji-vacuum/pkg/emotepool/config"
	repopg "github.com/bmintz/emoji-vacuum/pkg/emotepool/repo/postgres"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(config.WithEnv())
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	repo, cleanup, err := cfg.BuildRepository()
	if err != nil {
		logger.Error("Failed to build repository", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	backend, err := cfg.BuildBackend()
	if err != nil {
		logger.Error("Failed to build backend", "error", err)
		os.Exit(1)
	}

	svc, err := emotepool.New(
		emotepool.WithRepository(repo),
		emotepool.WithBackend(backend),
		emotepool.WithAdmins(cfg.AdminIDs...),
		emotepool.WithSlotCapacity(cfg.SlotCapacity),
		emotepool.WithSlotPrefixes(cfg.SlotPrefixes...),
		emotepool.WithUsageWindow(cfg.Decay.Window),
		emotepool.WithLogger(logger),
	)
	if err != nil {
		logger.Error("Failed to build service", "error", err)
		os.Exit(1)
	}

	var adminSvc *admin.Service
	if pgRepo, ok := repo.(*repopg.Repository); ok {
		adminSvc = admin.New(svc, pgRepo.Database())
	} else {
		adminSvc = admin.New(svc, nil)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Populate the slot directory before serving traffic.
	go func() {
		if err := svc.Directory().Refresh(ctx); err != nil {
			logger.Error("Slot directory refresh failed", "error", err)
		}
	}()

	if cfg.Decay.Enabled {
		engine := emotepool.NewDecayEngine(svc, repo, emotepool.DecaySettings{
			Enabled:        true,
			Window:         cfg.Decay.Window,
			UsageThreshold: cfg.Decay.UsageThreshold,
			PollInterval:   cfg.Decay.PollInterval,
		},
			emotepool.WithDecayNotifier(emotepool.NewLogNotifier(logger)),
			emotepool.WithDecayLogger(logger),
		)
		go func() {
			if err := engine.Run(ctx); err != nil {
				logger.Error("Decay engine stopped", "error", err)
			}
		}()
	}

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: routes(svc, adminSvc, cfg.Environment),
	}

	go func() {
		logger.Info("Emote pool server starting",
			"port", cfg.Port,
			"env", cfg.Environment,
			"database", cfg.DatabaseType,
			"backend", cfg.BackendType,
			"decay", cfg.Decay.Enabled)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("Server exiting")
}

func routes(svc emotepool.Service, adminSvc *admin.Service, environment string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		status := "starting"
		select {
		case <-svc.Directory().Ready():
			status = "ok"
		default:
		}
		render.JSON(w, req, map[string]string{
			"status":      status,
			"environment": environment,
			"time":        time.Now().UTC().Format(time.RFC3339),
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/emotes", api.NewEmoteHandler(svc).Routes())
		r.Mount("/", api.NewPoolHandler(svc, adminSvc).Routes())
	})

	return r
}
