package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"echomap.org/internal/httpapi"
	"echomap.org/internal/identity"
	"echomap.org/internal/obs"
	"echomap.org/internal/role"
	"echomap.org/internal/store/pg"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	dsn := os.Getenv("ECHOMAP_PG_DSN")
	if dsn == "" {
		log.Fatal("missing ECHOMAP_PG_DSN")
	}
	store, err := pg.Open(dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}

	tokens, err := identity.NewTokenService(os.Getenv("ECHOMAP_AUTH_SECRET"))
	if err != nil {
		log.Fatalf("token service: %v", err)
	}
	verifier := identity.NewStoreVerifier(tokens, store)
	resolver := role.NewResolver(store)

	api := httpapi.New(httpapi.ReadyProbe{DB: store.DB()}, version, store, verifier, resolver, tokens)

	addr := os.Getenv("ECHOMAP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting echomap-admin-api %s on %s", version, srv.Addr)

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
	_ = store.Close()
	log.Println("Stopped")
}
