package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"readalong/companion/internal/api"
	"readalong/companion/internal/audio"
	"readalong/companion/internal/book"
	"readalong/companion/internal/config"
	"readalong/companion/internal/health"
	"readalong/companion/internal/listenerws"
	"readalong/companion/internal/narration"
	"readalong/companion/internal/reading"
	"readalong/companion/internal/workflow"
)

func main() {
	checkHealth := flag.Bool("check", false, "run health checks and exit")
	flag.Parse()

	// Load .env file if present (ignored if missing)
	_ = godotenv.Load()

	cfg := config.Load()

	if *checkHealth {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		status := health.CheckAll(ctx, cfg)
		fmt.Print(status)
		if !status.OK {
			os.Exit(1)
		}
		return
	}

	books := book.NewStore()
	if err := books.LoadFile(cfg.Books.Path); err != nil {
		log.Fatalf("load books: %v", err)
	}
	log.Printf("loaded %d books from %s", len(books.List()), cfg.Books.Path)

	var source workflow.Source
	switch cfg.Narration.Mode {
	case "service":
		if cfg.Narration.BaseURL == "" {
			log.Fatalf("NARRATION_MODE=service requires NARRATION_BASE_URL")
		}
		source = narration.NewHTTPClient(cfg.Narration.BaseURL)
	default:
		source = &narration.StaticSource{Lookup: books.PageAudioURL}
	}

	player := audio.NewBeepPlayer()
	sessions := reading.New()

	h := api.NewHandlers(cfg, sessions, books, player, source)
	reg := listenerws.NewRegistry()
	wss := listenerws.NewServer(cfg, sessions, reg)

	mux := http.NewServeMux()
	mux.Handle("/", api.NewRouter(h, wss.HandleListenerWS))
	mux.Handle("/metrics", promhttp.Handler())

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           logMiddleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigc
		log.Printf("shutdown signal received; stopping server...")
		// Wind down live reading sessions before draining HTTP
		for _, id := range sessions.ListSessionIDs() {
			if rt := sessions.Runtime(id); rt != nil && rt.Machine.Enabled() {
				rt.Stop()
				sessions.SetStatus(id, "ended")
			}
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()

	log.Printf("server starting on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Println("server error:", err)
		os.Exit(1)
	}
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}
