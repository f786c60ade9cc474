package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goldenwok-pos/printd/internal/config"
	"github.com/goldenwok-pos/printd/internal/database"
	"github.com/goldenwok-pos/printd/internal/dispatch"
	"github.com/goldenwok-pos/printd/internal/feed"
	"github.com/goldenwok-pos/printd/internal/order"
	"github.com/goldenwok-pos/printd/internal/printer"
	"github.com/goldenwok-pos/printd/internal/router"
	"github.com/goldenwok-pos/printd/internal/ticket"
	"github.com/goldenwok-pos/printd/internal/ws"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer pool.Close()
	store := database.New(pool)

	// Printer: connect eagerly, but a cold printer must not keep the
	// service down; the watchdog below keeps retrying.
	surface := printer.NewESCPOS(cfg.PrinterAddr, cfg.PrinterTimeout)
	if err := surface.Connect(); err != nil {
		log.Printf("printer: %v (will retry)", err)
	}
	defer surface.Close()
	go printerWatchdog(ctx, surface, cfg.FeedRetryDelay)

	hub := ws.NewHub()
	go hub.Run()

	formatter := order.NewFormatter(cfg)
	emitter := ticket.NewEmitter(cfg, formatter)
	queue := dispatch.New(emitter, surface, store, hub)

	listener := feed.New(cfg.DatabaseURL, cfg.FeedRetryDelay, store, queue)
	go listener.Run(ctx)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router.New(cfg, store, hub),
	}
	go func() {
		log.Printf("listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
}

// printerWatchdog re-dials the printer whenever the connection is down.
func printerWatchdog(ctx context.Context, p *printer.ESCPOS, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if p.Connected() {
				continue
			}
			if err := p.Connect(); err != nil {
				log.Printf("printer: reconnect failed: %v", err)
			} else {
				log.Printf("printer: reconnected to %s", p.Addr())
			}
		}
	}
}
