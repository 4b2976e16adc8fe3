package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/apresai/podcaster/internal/config"
	"github.com/apresai/podcaster/internal/mcpserver"
	"github.com/apresai/podcaster/internal/observability"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Podcaster MCP server starting...")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := observability.InitLogger()
	cfg := config.DefaultConfig()

	srv, err := mcpserver.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("failed to create server: %v", err)
	}

	go func() {
		<-ctx.Done()
		log.Println("shutdown signal received")
		os.Exit(0)
	}()

	if err := srv.Start(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
