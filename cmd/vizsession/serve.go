package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Morditux/vizsession"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

var (
	serveAddr    string
	serveStore   string
	serveDSN     string
	serveTTL     time.Duration
	serveMaxSize int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the session demo server",
	Long: `Run an HTTP server whose routes are wrapped by the session lifecycle.

  /        increments a per-session visit counter
  /clear   clears the session and its cookie
  /metrics Prometheus metrics`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "listen address")
	serveCmd.Flags().StringVar(&serveStore, "store", "sqlite", "session store (sqlite, postgres, memcached, redis)")
	serveCmd.Flags().StringVar(&serveDSN, "dsn", "sessions.db", "store DSN, server list or redis address")
	serveCmd.Flags().DurationVar(&serveTTL, "ttl", 24*time.Hour, "lifetime of persisted session payloads")
	serveCmd.Flags().IntVar(&serveMaxSize, "max-session-bytes", 0, "maximum encoded session size, 0 for unlimited")
	rootCmd.AddCommand(serveCmd)
}

func openStore(kind, dsn string, ttl time.Duration) (vizsession.Store, error) {
	switch kind {
	case "sqlite":
		return vizsession.NewSQLiteStoreWithConfig(vizsession.SQLiteConfig{
			DSN:             dsn,
			MaxOpenConns:    16,
			MaxIdleConns:    16,
			MaxSessionBytes: serveMaxSize,
		})
	case "postgres":
		return vizsession.NewPostgreSQLStore(dsn)
	case "memcached":
		return vizsession.NewMemcachedStore(ttl, dsn), nil
	case "redis":
		return vizsession.NewRedisStore(vizsession.RedisConfig{
			Client: redis.NewClient(&redis.Options{Addr: dsn}),
			TTL:    ttl,
		}), nil
	default:
		return nil, fmt.Errorf("unknown store %q", kind)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	cfg, err := vizsession.LoadServerConfig(configPath)
	if err != nil {
		return err
	}

	store, err := openStore(serveStore, serveDSN, serveTTL)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	mgr, err := vizsession.NewManager(vizsession.Config{
		Server:          cfg,
		Store:           store,
		TTL:             serveTTL,
		MaxSessionBytes: serveMaxSize,
		Logger:          &logger,
		Metrics:         vizsession.NewMetrics(registry),
	})
	if err != nil {
		store.Close()
		return err
	}
	defer mgr.Close()

	mux := http.NewServeMux()
	mux.Handle("/", mgr.Middleware(http.HandlerFunc(handleVisit)))
	mux.Handle("/clear", mgr.Middleware(clearHandler(mgr)))
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              serveAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", serveAddr).
			Str("store", serveStore).
			Bool("generate_session_ids", cfg.GenerateSessionIDs).
			Bool("sign_sessions", cfg.SignSessions).
			Msg("session server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info().Msg("shutting down")
	return srv.Shutdown(shutdownCtx)
}

func handleVisit(w http.ResponseWriter, r *http.Request) {
	h, ok := vizsession.HandleFromContext(r.Context())
	if !ok {
		http.Error(w, "no session", http.StatusInternalServerError)
		return
	}

	count := 0
	h.Session().Update(func(values map[string]any) {
		if c, ok := values["count"].(int); ok {
			count = c
		}
		count++
		values["count"] = count
	})

	fmt.Fprintf(w, "session %s: %d visits\n", h.SessionID, count)
}

func clearHandler(mgr *vizsession.Manager) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, ok := vizsession.HandleFromContext(r.Context())
		if !ok {
			http.Error(w, "no session", http.StatusInternalServerError)
			return
		}
		mgr.OnSessionClear(w, h)
		fmt.Fprintln(w, "session cleared")
	})
}
