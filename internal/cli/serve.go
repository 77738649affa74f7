package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"eagerload/internal/api"
	"eagerload/internal/eager"
	"eagerload/internal/relation"
	"eagerload/internal/sqlstore"
	"eagerload/pkg/logger"
)

func HandleServe(args []string) {
	cfg := LoadConfig()
	logger.Setup(cfg.Env)
	slog.Info("Starting eagerload...", "env", cfg.Env)

	srv, closeFn, err := buildServer(cfg)
	if err != nil {
		slog.Error("❌ Critical Startup Error", "error", err)
		os.Exit(1)
	}
	defer closeFn()

	// Start Listener first to catch "port in use" error cleanly
	ln, err := net.Listen("tcp", cfg.Port)
	if err != nil {
		fmt.Println("\n" + strings.Repeat("=", 60))
		fmt.Println("❌ FAILED TO START SERVER")
		fmt.Println(strings.Repeat("=", 60))
		fmt.Printf("Error: %v\n", err)
		fmt.Println("\nChange APP_PORT in the .env file to use a different port.")
		fmt.Println(strings.Repeat("=", 60) + "\n")
		os.Exit(1)
	}

	go func() {
		slog.Info("🚀 Server Ready", "port", cfg.Port)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("❌ Listen failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	slog.Info("⚠️  Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("❌ Server Forced Shutdown", "error", err)
	} else {
		slog.Info("✅ Server Gracefully Stopped")
	}
}

// buildServer loads and validates the schema, connects the database and
// mounts the API. The returned func closes the database.
func buildServer(cfg Config) (*http.Server, func(), error) {
	schema, err := relation.LoadSchemaFile(cfg.SchemaPath)
	if err != nil {
		return nil, nil, err
	}
	if errs := schema.Validate(); len(errs) > 0 {
		for _, e := range errs {
			slog.Error("invalid relation", "error", e)
		}
		return nil, nil, fmt.Errorf("relation schema %s has %d invalid relation(s)", cfg.SchemaPath, len(errs))
	}
	slog.Info("✅ Relation Schema Loaded", "path", cfg.SchemaPath, "types", len(schema.Types()))

	dbMgr, err := cfg.OpenDB()
	if err != nil {
		return nil, nil, err
	}
	store, err := sqlstore.FromManager(dbMgr, "default")
	if err != nil {
		dbMgr.Close()
		return nil, nil, err
	}

	svc := &api.Service{
		Engine: eager.New(schema, store, eager.WithLogger(logger.Log), eager.WithParallelBranches(cfg.Parallel)),
		Schema: schema,
		Exec:   store,
		Ping:   dbMgr.Ping,
	}
	router := api.NewRouter(svc, api.Options{
		JWTSecret:         cfg.JWTSecret,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
		AllowedOrigins:    cfg.CORSOrigins,
		BlockedIPs:        cfg.BlockedIPs,
		Compress:          cfg.Compress,
	})

	srv := &http.Server{
		Addr:              cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv, func() { dbMgr.Close() }, nil
}
