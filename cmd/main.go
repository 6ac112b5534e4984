package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"alert-service/internal/config"
	"alert-service/internal/server"
)

func main() {
	cfg := config.Load()
	srv := server.NewServer(cfg)

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Alert service HTTP server starting on %s", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		log.Println("Alert service shutting down gracefully...")
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Alert service shutdown error: %v", err)
		}
	case err := <-errCh:
		log.Fatalf("Alert service failed: %v", err)
	}
}
