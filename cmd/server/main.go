package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prudhvinik1/trackerlive/internal/api"
	"github.com/prudhvinik1/trackerlive/internal/config"
	"github.com/prudhvinik1/trackerlive/internal/database"
	"github.com/prudhvinik1/trackerlive/internal/metrics"
	"github.com/prudhvinik1/trackerlive/internal/realtime"
	"github.com/prudhvinik1/trackerlive/internal/repositories"
	"github.com/prudhvinik1/trackerlive/internal/services"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const shutdownTimeout = 10 * time.Second

func main() {
	issueFor := flag.String("issue-token", "", "print a signed token for this user id and exit")
	flag.Parse()

	godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if *issueFor != "" {
		if err := issueToken(os.Stdout, cfg, *issueFor); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to issue token: %v\n", err)
			os.Exit(1)
		}
		return
	}

	logger := newLogger(cfg.LogLevel)
	if err := run(cfg, logger); err != nil {
		logger.Error("server_failed", "error", err)
		os.Exit(1)
	}
	logger.Info("server_stopped")
}

type stores struct {
	presence      repositories.PresenceRepository
	notifications repositories.NotificationRepository
	close         func()
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	hub := realtime.NewHub(st.presence, realtime.Options{
		GraceWindow:    cfg.GraceWindow,
		StaleThreshold: cfg.StaleThreshold,
		Logger:         logger,
		Metrics:        m,
	})
	notifications := services.NewNotificationService(st.notifications, hub, logger, m)
	tokens := services.NewTokenService(cfg.JWTSecret, cfg.JWTExpiry)
	if !tokens.Enabled() {
		logger.Warn("token_verification_disabled", "header", api.UserIDHeader)
	}

	router := api.NewRouter(api.RouterConfig{
		Hub:           hub,
		Notifications: notifications,
		Tokens:        tokens,
		Gatherer:      registry,
		ClientOptions: realtime.ClientOptions{
			SendBuffer:   cfg.SendBuffer,
			WriteTimeout: cfg.WriteTimeout,
			PingInterval: cfg.PingInterval,
			InboundRate:  rate.Limit(cfg.InboundRate),
			InboundBurst: cfg.InboundBurst,
			Logger:       logger,
			Metrics:      m,
		},
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         logger,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		// Websocket handlers derive from this context, so shutdown reaches them.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	ln, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", server.Addr, err)
	}
	logger.Info("server_starting", "port", cfg.ServerPort, "store", cfg.StoreDriver)
	return serve(ctx, server, ln, hub, cfg.SweepInterval, logger)
}

// serve runs the server and the hub's background loops until ctx is done.
// The persister is not tied to ctx: it keeps writing while the server drains
// and returns only after hub.Close has queued every remaining offline
// snapshot and the queue is flushed.
func serve(ctx context.Context, server *http.Server, ln net.Listener, hub *realtime.Hub, sweepInterval time.Duration, logger *slog.Logger) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return hub.RunSweeper(gctx, sweepInterval)
	})
	g.Go(func() error {
		return hub.RunPersister(context.Background())
	})
	g.Go(func() error {
		if err := server.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("server_shutting_down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		hub.Close()
		return err
	})

	return g.Wait()
}

// issueToken prints a bearer token for userID, for wiring up a client while
// the real auth service is not in the loop.
func issueToken(w io.Writer, cfg *config.Config, userID string) error {
	tokens := services.NewTokenService(cfg.JWTSecret, cfg.JWTExpiry)
	if !tokens.Enabled() {
		return errors.New("JWT_SECRET is not set")
	}
	token, _, err := tokens.Issue(userID)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, token)
	return err
}

func openStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*stores, error) {
	var (
		st      *stores
		closers []func()
	)

	switch cfg.StoreDriver {
	case config.DriverSQLite:
		db, err := database.NewSQLiteDB(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		closers = append(closers, func() { db.Close() })
		st = &stores{
			presence:      repositories.NewSQLitePresenceRepository(db),
			notifications: repositories.NewSQLiteNotificationRepository(db),
		}
	default:
		pool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create postgres pool: %w", err)
		}
		closers = append(closers, pool.Close)
		if err := database.MigratePostgres(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		st = &stores{
			presence:      repositories.NewPostgresPresenceRepository(pool),
			notifications: repositories.NewPostgresNotificationRepository(pool),
		}
	}

	if cfg.RedisURL != "" {
		redisClient, err := database.NewRedisClient(ctx, cfg.RedisURL, logger)
		if err != nil {
			for _, c := range closers {
				c()
			}
			return nil, fmt.Errorf("failed to create redis client: %w", err)
		}
		closers = append(closers, func() { redisClient.Close() })
		st.presence = repositories.NewCachedPresenceRepository(st.presence, redisClient, cfg.PresenceCacheTTL, logger)
	}

	st.close = func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	return st, nil
}

func newLogger(level string) *slog.Logger {
	var lv slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lv = slog.LevelDebug
	case "warn", "warning":
		lv = slog.LevelWarn
	case "error":
		lv = slog.LevelError
	default:
		lv = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lv}))
}
