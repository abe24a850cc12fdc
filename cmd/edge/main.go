package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/edge"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/utilities"
)

func main() {
	_ = godotenv.Load()

	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()
	sugar := lg.Sugar()
	sugar.Info("starting edge router")

	cfg, err := edge.ConfigFromEnv()
	if err != nil {
		sugar.Fatalf("config: %v", err)
	}

	if err := utilities.InitSentry(utilities.EnvOrDefault("SENTRY_DSN", ""), utilities.EnvOrDefault("APP_ENV", "development")); err != nil {
		sugar.Warnf("sentry init failed: %v", err)
	}
	defer utilities.FlushSentry()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	keys, closeKeys, err := edge.KeySource(ctx, cfg)
	if keys == nil {
		sugar.Fatalf("verification keys: %v", err)
	}
	if err != nil {
		// the authority may start after us; lookups retry
		sugar.Warnw("verification keys not loaded yet", "err", err)
	}
	defer closeKeys()

	handler, err := edge.NewHandler(cfg, keys, sugar)
	if err != nil {
		sugar.Fatalf("edge: %v", err)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalf("http server failed: %v", err)
		}
	}()
	sugar.Infow("edge is running", "addr", cfg.Addr, "routes", len(cfg.Routes))

	<-ctx.Done()
	sugar.Info("shutting down")

	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}
}
