package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/MrEthical07/storeauth"
	"github.com/MrEthical07/storeauth/account/pgstore"
	"github.com/MrEthical07/storeauth/httpapi"
	"github.com/MrEthical07/storeauth/internal/logging"
	"github.com/MrEthical07/storeauth/mail"
	promexport "github.com/MrEthical07/storeauth/metrics/export/prometheus"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the account API under /api/auth and, when configured, a
Prometheus metrics endpoint. Secrets are read from STOREAUTH_* environment
variables.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadServeConfig(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			sec, err := loadSecrets()
			if err != nil {
				return oops.Code("CONFIG_INVALID").Wrap(err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, sec)
		},
	}
	registerServeFlags(cmd.Flags())
	return cmd
}

func runServe(ctx context.Context, cfg serveConfig, sec secrets) error {
	logger, err := logging.Setup(logging.Options{
		Service: "storeauthd",
		Version: version,
		Format:  cfg.Log.Format,
		Level:   cfg.Log.Level,
		Writer:  os.Stderr,
	})
	if err != nil {
		return oops.Code("CONFIG_INVALID").With("operation", "set up logging").Wrap(err)
	}
	slog.SetDefault(logger)

	engineCfg := cfg.engineConfig(sec)
	for _, w := range engineCfg.Lint() {
		logger.Warn("config lint", "code", w.Code, "message", w.Message)
	}

	builder := storeauth.New().
		WithConfig(engineCfg).
		WithLogger(logger)

	closeStore, err := attachStore(ctx, builder, cfg, sec, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	mailer, err := newMailer(cfg, sec, logger)
	if err != nil {
		return err
	}
	builder = builder.WithMailer(mailer)
	if cfg.Audit.Enabled {
		builder = builder.WithAuditSink(storeauth.NewSlogSink(logger.With("component", "audit")))
	}

	engine, err := builder.Build()
	if err != nil {
		return oops.Code("ENGINE_BUILD_FAILED").Wrap(err)
	}
	defer engine.Close()

	router := httpapi.NewRouter(engine, engineCfg.Cookie, httpapi.WithLogger(logger))
	router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodGet)

	apiServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	servers := []*http.Server{apiServer}

	if cfg.HTTP.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			promexport.NewCollector(engine),
		)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		servers = append(servers, &http.Server{
			Addr:              cfg.HTTP.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		})
	}

	errCh := make(chan error, len(servers))
	for _, srv := range servers {
		go func(srv *http.Server) {
			logger.Info("listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- oops.Code("LISTEN_FAILED").With("addr", srv.Addr).Wrap(err)
			}
		}(srv)
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err = <-errCh:
		logger.Error("server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	for _, srv := range servers {
		if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("shutdown", "addr", srv.Addr, "error", shutdownErr)
		}
	}
	return err
}

// attachStore connects the configured backend and hands it to b. The
// returned func releases the connection.
func attachStore(ctx context.Context, b *storeauth.Builder, cfg serveConfig, sec secrets, logger *slog.Logger) (func(), error) {
	switch cfg.Store.Backend {
	case "postgres":
		if sec.DatabaseURL == "" {
			return nil, oops.Code("CONFIG_INVALID").Errorf("STOREAUTH_DATABASE_URL is required for the postgres backend")
		}
		pool, err := pgxpool.New(ctx, sec.DatabaseURL)
		if err != nil {
			return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "ping database").Wrap(err)
		}
		if cfg.Store.AutoMigrate {
			if err := pgstore.Migrate(ctx, pool); err != nil {
				pool.Close()
				return nil, oops.Code("MIGRATION_FAILED").With("operation", "run migrations").Wrap(err)
			}
			logger.Info("migrations applied")
		}
		b.WithPostgres(pool)
		return pool.Close, nil
	default:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Store.RedisAddr,
			Password: sec.RedisPassword,
			DB:       cfg.Store.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, oops.Code("REDIS_CONNECT_FAILED").With("addr", cfg.Store.RedisAddr).Wrap(err)
		}
		b.WithRedis(client)
		return func() { _ = client.Close() }, nil
	}
}

func newMailer(cfg serveConfig, sec secrets, logger *slog.Logger) (mail.Sender, error) {
	if cfg.Mail.Mailer == "log" {
		if cfg.production() {
			logger.Warn("log mailer in production: OTP codes are written to the log")
		}
		return mail.NewLogSender(logger), nil
	}
	sender, err := mail.NewSMTPSender(mail.SMTPConfig{
		Host:        cfg.Mail.SMTPHost,
		Port:        cfg.Mail.SMTPPort,
		Username:    cfg.Mail.SMTPUser,
		Password:    sec.SMTPPassword,
		From:        cfg.Mail.From,
		FromName:    cfg.Mail.AppName,
		ImplicitTLS: cfg.Mail.ImplicitTLS,
	})
	if err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("operation", "configure smtp").Wrap(err)
	}
	return sender, nil
}
