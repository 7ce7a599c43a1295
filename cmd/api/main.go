package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sigauth.org/internal/audit"
	"sigauth.org/internal/config"
	"sigauth.org/internal/directory"
	"sigauth.org/internal/directory/remote"
	"sigauth.org/internal/httpapi"
	"sigauth.org/internal/obs"
	"sigauth.org/internal/session"
	"sigauth.org/internal/store/pg"
	"sigauth.org/internal/stream"
)

var version = "0.3.0"

func main() {
	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("SIGAUTH_COMMIT"))

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	boot := cfg.Bootstrap.Directory()

	store, err := pg.Open(cfg.Database.ConnString(), boot)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	fetcher := remote.NewFetcher(
		remote.WithAttempts(cfg.Fetch.Attempts),
		remote.WithTimeout(cfg.Fetch.Timeout()),
	)
	dir, err := directory.NewService(store, boot, directory.WithCatalogFetcher(fetcher))
	if err != nil {
		log.Fatalf("directory service: %v", err)
	}

	signer, err := session.NewTokenSigner(cfg.TokenSecret, cfg.Session.APITokenTTL())
	if err != nil {
		log.Fatalf("token signer: %v", err)
	}
	sessions, err := session.NewService(store, signer, session.WithTTL(cfg.Session.TTL()))
	if err != nil {
		log.Fatalf("session service: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sessions.RunSweeper(ctx, cfg.Session.SweepInterval())

	events := stream.New()
	audit.AddSink(func(ctx context.Context, event string, fields map[string]any) {
		evt := stream.Event{Event: event, Fields: fields}
		evt.RequestID = audit.RequestIDFromContext(ctx)
		if accountID, ok := audit.AccountFromContext(ctx); ok {
			evt.AccountID = accountID
		}
		events.Publish(evt)
	})

	api := httpapi.New(dir, sessions, httpapi.ReadyProbe{DB: store.DB()}, version,
		httpapi.WithEventStream(events))

	handler := api.Handler()
	handler = httpapi.MaxBodyBytes(handler, cfg.Server.MaxBodyBytes)
	handler = httpapi.RateLimit(ctx, handler, cfg.Server.RateLimitBurst, cfg.Server.RateLimitPerSec)
	handler = httpapi.CORS(handler)
	handler = httpapi.SecurityHeaders(handler)
	handler = httpapi.Logging(handler)
	handler = httpapi.RequestID(handler)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting sigauth-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = srv.Shutdown(shutdownCtx)
	log.Println("Stopped")
}
