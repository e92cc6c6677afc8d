package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/ternsecure/ternsecure"
	promexport "github.com/ternsecure/ternsecure/metrics/export/prometheus"
	"github.com/ternsecure/ternsecure/middleware"
)

type serveOptions struct {
	addr       string
	configPath string
	envFile    string
	redisAddr  string
	logFormat  string
}

func serveCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve /api/auth and a guarded demo route",
		Long: `Serve the authentication endpoints under /api/auth, Prometheus metrics
under /metrics and a demo page under /dashboard that requires a session.

Configuration comes from the YAML file given by --config, overridden by
TERNSECURE_* environment variables. A .env file is loaded first when present.

Examples:
  ternsecure serve --config ternsecure.yaml
  ternsecure serve --addr :9000 --redis-addr localhost:6379`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.addr, "addr", "a", ":8080", "Listen address")
	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "YAML configuration file")
	cmd.Flags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before configuration")
	cmd.Flags().StringVar(&opts.redisAddr, "redis-addr", "", "Redis address for the shared session cache and rate limits")
	cmd.Flags().StringVar(&opts.logFormat, "log-format", "json", "Log format: json or text")

	return cmd
}

func runServe(ctx context.Context, opts serveOptions) error {
	if err := godotenv.Load(opts.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", opts.envFile, err)
	}

	cfg, err := ternsecure.LoadConfig(opts.configPath)
	if err != nil {
		return err
	}
	logger := newLogger(os.Stdout, opts.logFormat)

	builder := ternsecure.New().
		WithConfig(*cfg).
		WithLogger(logger).
		WithTracer(otel.Tracer("github.com/ternsecure/ternsecure")).
		WithMetricsEnabled(true)

	if opts.redisAddr != "" {
		rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{opts.redisAddr}})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis %s: %w", opts.redisAddr, err)
		}
		builder.WithRedis(rdb)
	}

	engine, err := builder.Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	srv := &http.Server{
		Addr:              opts.addr,
		Handler:           newRouter(engine),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("ternsecure: listening", "addr", opts.addr, "environment", cfg.Environment)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("ternsecure: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newLogger(w io.Writer, format string) *slog.Logger {
	if format == "text" {
		return slog.New(slog.NewTextHandler(w, nil))
	}
	return slog.New(slog.NewJSONHandler(w, nil))
}

func newRouter(engine *ternsecure.Engine) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)

	r.Handle("/api/auth/*", engine)
	r.Handle("/metrics", promexport.NewPrometheusExporter(engine).Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Guard(engine))
		r.With(middleware.IssueCSRF(engine)).Get("/sign-in", signInPage)
		r.With(middleware.Protect(nil, nil)).Get("/dashboard", dashboardPage)
	})
	return r
}

func signInPage(w http.ResponseWriter, r *http.Request) {
	token, _ := middleware.CSRFTokenFromContext(r.Context())
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "POST /api/auth/sessions/createsession with csrfToken=%s\n", token)
}

func dashboardPage(w http.ResponseWriter, r *http.Request) {
	auth, _ := middleware.AuthObjectFromContext(r.Context())
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "signed in as %s\n", auth.UserID)
}
