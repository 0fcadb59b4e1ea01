package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/amatveiakin/bughouse-chess/internal/config"
	"github.com/amatveiakin/bughouse-chess/internal/persistence"
	"github.com/amatveiakin/bughouse-chess/internal/redisindex"
	"github.com/amatveiakin/bughouse-chess/internal/server"
)

func main() {
	// Setup logging
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	if level, err := zerolog.ParseLevel(cfg.Development.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	// Persistence: Postgres via GORM when a DSN is configured, the
	// in-memory fake otherwise (local dev without a database).
	var persist persistence.Interface = persistence.NewMemory()
	if cfg.Persistence.DSN != "" {
		db, err := gorm.Open(postgres.Open(cfg.Persistence.DSN), &gorm.Config{})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to postgres")
		}
		if err := persistence.Migrate(db); err != nil {
			log.Fatal().Err(err).Msg("Failed to migrate database")
		}
		persist = persistence.NewStore(db)
		log.Info().Msg("Using postgres persistence")
	} else {
		log.Info().Msg("No persistence DSN configured, archives are in-memory only")
	}

	// Redis match-code index, optional: the server runs standalone
	// without it, it just can't resolve codes across processes.
	var idx *redisindex.Index
	if cfg.Persistence.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Persistence.RedisAddr})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Warn().Err(err).Str("addr", cfg.Persistence.RedisAddr).Msg("Redis unreachable, match-code index disabled")
		} else {
			idx = redisindex.New(rdb)
		}
	}

	srv, err := server.New(cfg, persist, idx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to construct server")
	}

	loopCtx, stopLoops := context.WithCancel(context.Background())
	defer stopLoops()
	go srv.RunClockLoop(loopCtx, 100*time.Millisecond)
	go srv.RunReaper(loopCtx, 30*time.Second)

	httpSrv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      srv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", httpSrv.Addr).Msg("Starting bughouse server")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	stopLoops()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
