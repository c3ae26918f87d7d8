package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"wnpbridge/internal/adapter"
	"wnpbridge/internal/arbiter"
	"wnpbridge/internal/server"
	"wnpbridge/internal/store"
	"wnpbridge/internal/version"
	"wnpbridge/migrations"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

func main() {
	dbPath := envOr("DB_PATH", "./data/wnpbridge.db")
	listenAddr := envOr("LISTEN_ADDR", "127.0.0.1:8698")
	migrationsDir := os.Getenv("MIGRATIONS_DIR")
	corsOrigin := os.Getenv("CORS_ORIGIN")
	dispatchInterval := envDuration("DISPATCH_INTERVAL", arbiter.DefaultInterval)
	tabLifetime := envDuration("TAB_LIFETIME", server.DefaultTabLifetime)
	tabGrace := envDuration("TAB_GRACE", arbiter.DefaultGrace)

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		log.Fatal(err)
	}

	s, err := store.New(dbPath)
	if err != nil {
		log.Fatalf("opening database: %v", err)
	}
	defer s.Close()

	if migrationsDir != "" {
		err = s.Migrate(migrationsDir)
	} else {
		err = s.MigrateFS(migrations.FS)
	}
	if err != nil {
		log.Fatalf("running migrations: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	arb := arbiter.New(
		arbiter.WithInterval(dispatchInterval),
		arbiter.WithGrace(tabGrace),
	)

	mgr := adapter.NewManager(arb, adapter.WithVersionChecker(version.NewChecker(Version)))
	arb.AddSink(mgr)

	adapters, err := s.ListAdapters()
	if err != nil {
		log.Fatalf("loading adapters: %v", err)
	}
	mgr.Start(ctx, adapters)
	defer mgr.Stop()

	arb.Start(ctx)
	defer arb.Stop()

	opts := []server.Option{
		server.WithArbiter(arb),
		server.WithAdapterManager(mgr),
		server.WithTabLifetime(tabLifetime),
	}
	if corsOrigin != "" {
		opts = append(opts, server.WithCORSOrigin(corsOrigin))
	}
	srv := server.NewServer(s, opts...)

	httpServer := &http.Server{
		Addr:              listenAddr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("wnpbridge %s listening on %s", Version, listenAddr)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("ignoring %s=%q: not a positive duration", key, v)
		return fallback
	}
	return d
}
