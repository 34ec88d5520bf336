package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nexusgreen.org/internal/config"
	"nexusgreen.org/internal/export"
	"nexusgreen.org/internal/httpapi"
	"nexusgreen.org/internal/nexusapi"
	"nexusgreen.org/internal/obs"
	"nexusgreen.org/internal/session"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg := config.Load()

	var opts []session.Option
	if cfg.RolesPath != "" {
		defaults, err := config.LoadRoleDefaults(cfg.RolesPath)
		if err != nil {
			log.Fatalf("load role defaults: %v", err)
		}
		opts = append(opts, session.WithRoleDefaults(defaults))
	}

	// Postgres-backed sessions when a DSN is configured, in-process
	// otherwise.
	var store session.Store
	probe := httpapi.ReadyProbe{}
	if cfg.PGDSN != "" {
		pg, err := session.OpenPG(cfg.PGDSN)
		if err != nil {
			log.Fatalf("open session store: %v", err)
		}
		defer pg.Close()
		store = pg
		probe.DB = pg.DB()
	} else {
		store = session.NewMemoryStore()
	}

	upstream := nexusapi.New(cfg.UpstreamURL)
	sessions := session.New(upstream, store, opts...)

	api := httpapi.New(sessions, export.New(),
		httpapi.WithUpstream(upstream),
		httpapi.WithReadyProbe(probe),
		httpapi.WithVersion(version),
		httpapi.WithPublicURL(cfg.PublicURL),
		httpapi.WithSnapshotter(&export.RodSnapshotter{ControlURL: cfg.BrowserURL}),
		httpapi.WithRateLimit(cfg.RateBurst, cfg.RatePerSec),
	)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting nexusgreen-portal %s on %s (upstream %s)", version, srv.Addr, cfg.UpstreamURL)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}
