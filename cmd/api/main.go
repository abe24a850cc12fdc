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
	"golang.org/x/time/rate"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/config"
	credentialrepo "github.com/ovaphlow/pitchfork/service-auth-go/internal/credential/repo"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/guard"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/login"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/maintenance"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/profile"
	profilerepo "github.com/ovaphlow/pitchfork/service-auth-go/internal/profile/repo"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/renewal"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/router"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/signing"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/utilities"
)

func main() {
	// load .env file if present so os.Getenv picks values from it
	_ = godotenv.Load()

	// init logger
	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()
	sugar.Info("starting service-auth-go")

	cfg, err := config.Load()
	if err != nil {
		sugar.Fatalf("config: %v", err)
	}

	if err := utilities.InitSentry(cfg.SentryDSN, cfg.Environment); err != nil {
		sugar.Warnf("sentry init failed: %v", err)
	}
	defer utilities.FlushSentry()

	// init db
	db, err := database.Connect(database.ConfigFromEnv())
	if err != nil {
		sugar.Fatalf("db connect: %v", err)
	}
	defer db.Close()
	if cfg.RunMigrations {
		if err := database.RunMigrations(context.Background(), db); err != nil {
			sugar.Fatalf("db migrate: %v", err)
		}
	}

	// signing key is loaded once and never replaced
	keys, err := signing.LoadKeyPair(cfg.KeyConfig())
	if err != nil {
		sugar.Fatalf("signing key: %v", err)
	}
	authority, err := signing.NewService(keys, cfg.Issuer)
	if err != nil {
		sugar.Fatalf("signing service: %v", err)
	}
	sugar.Infow("signing key loaded", "kid", authority.KeyID(), "issuer", authority.Issuer())

	// graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	discoverCtx, cancelDiscover := context.WithTimeout(ctx, 10*time.Second)
	provider, err := login.NewGoogleProvider(discoverCtx, cfg.ProviderConfig())
	cancelDiscover()
	if err != nil {
		sugar.Fatalf("identity provider: %v", err)
	}

	creds := credentialrepo.NewCredentialRepo(db)
	profiles := profile.NewProfileService(profilerepo.NewProfileRepo(db))
	loginSvc := login.NewLoginService(login.NewSQLStore(db), authority, cfg.FrontendBaseURL, sugar)
	renewalSvc := renewal.NewRenewalService(creds, renewal.NewHTTPUpstream(cfg.UpstreamConfig(provider.TokenURL())), sugar)
	cleaner := maintenance.NewCleaner(creds, cfg.Retention.Days, cfg.Retention.BatchSize, sugar)
	verifier := guard.NewVerifier(guard.NewStaticKey(authority.KeyID(), authority.PublicKey()), authority.Issuer())

	trusted, err := router.ParseProxies(cfg.TrustedProxies)
	if err != nil {
		sugar.Fatalf("trusted proxies: %v", err)
	}

	handler := router.RegisterRoutes(router.Deps{
		Logger:         sugar,
		DB:             db,
		Guard:          guard.New("authority", router.AuthorityPolicy(), verifier, sugar),
		Signing:        signing.NewHandler(authority, sugar),
		Login:          login.NewHandler(provider, loginSvc, authority, cfg.SecureCookies(), sugar),
		Renewal:        renewal.NewHandler(renewalSvc, authority, profiles, sugar),
		Profile:        profile.NewHandler(profiles, sugar),
		Maintenance:    maintenance.NewHandler(cleaner, cfg.CronSecret, sugar),
		CORSOrigins:    cfg.CORSOrigins,
		RefreshLimit:   rate.Limit(cfg.RefreshLimit.RPS),
		RefreshBurst:   cfg.RefreshLimit.Burst,
		TrustedProxies: trusted,
	})

	if cfg.Retention.PurgeInterval > 0 {
		go cleaner.Run(ctx, cfg.Retention.PurgeInterval)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// run server in background
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalf("http server failed: %v", err)
		}
	}()
	sugar.Infow("service is running", "addr", cfg.Addr)

	<-ctx.Done()

	sugar.Info("shutting down")

	// give a short grace period for cleanup
	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}

	sugar.Info("goodbye")
}
