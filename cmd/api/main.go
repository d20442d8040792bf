package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tessera.dev/internal/config"
	"tessera.dev/internal/httpapi"
	"tessera.dev/internal/identity"
	"tessera.dev/internal/obs"
	"tessera.dev/internal/store"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	mgr, err := store.Open(cfg.DatabaseDSN, store.WithQueryTimeout(cfg.QueryTimeout))
	if err != nil {
		log.Fatalf("open db: %v", err)
	}

	directory := identity.NewPGDirectory(mgr)

	var verifier identity.TokenVerifier
	if cfg.UsesOIDC() {
		verifier, err = identity.NewOIDCVerifier(context.Background(), cfg.IssuerURL, cfg.ClientID, cfg.VerifyTimeout)
		if err != nil {
			log.Fatalf("oidc verifier: %v", err)
		}
	} else {
		verifier, err = identity.NewStaticVerifier(cfg.StaticSecret, "tessera-id", "tessera-id")
		if err != nil {
			log.Fatalf("static verifier: %v", err)
		}
	}

	resolver, err := identity.NewResolver(directory)
	if err != nil {
		log.Fatalf("resolver: %v", err)
	}
	auth, err := identity.NewAuthenticator(verifier, resolver)
	if err != nil {
		log.Fatalf("authenticator: %v", err)
	}
	admin, err := identity.NewAdminService(directory)
	if err != nil {
		log.Fatalf("admin service: %v", err)
	}

	api := httpapi.New(auth, admin, httpapi.ReadyProbe{DB: mgr.DB()}, version, httpapi.Limits{
		RateLimitPerSecond: cfg.RateLimitPerSecond,
		RateLimitBurst:     cfg.RateLimitBurst,
		MaxBodyBytes:       cfg.MaxBodyBytes,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting tessera-id %s on %s", version, srv.Addr)
	obs.SetReady(true)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")
	obs.SetReady(false)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if err := mgr.Shutdown(); err != nil {
		log.Printf("db shutdown: %v", err)
	}
	log.Println("Stopped")
}
