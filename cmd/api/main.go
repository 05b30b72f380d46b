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

	"github.com/joho/godotenv"

	"github.com/shodhai/speaking-agent/backend/internal/config"
	"github.com/shodhai/speaking-agent/backend/internal/handler"
	agentService "github.com/shodhai/speaking-agent/backend/internal/service/agent"
	"github.com/shodhai/speaking-agent/backend/internal/service/dialogue"
	"github.com/shodhai/speaking-agent/backend/internal/service/room"
	"github.com/shodhai/speaking-agent/backend/internal/service/transcribe"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// Initialize the dialogue service. Without model credentials the
	// service degrades to apology replies instead of refusing to start.
	var dialogueSvc *dialogue.Service
	if cfg.AI.Enabled() {
		dialogueSvc, err = dialogue.NewService(ctx, cfg.AI)
		if err != nil {
			log.Printf("warning: failed to initialize dialogue service: %v", err)
			log.Println("continuing without AI replies - check Ark model environment variables")
		} else {
			log.Println("Dialogue service initialized successfully")
		}
	} else {
		log.Println("Ark credentials not configured, skipping AI reply initialization")
	}

	// Initialize the media room client.
	roomClient := room.NewClient(cfg.Room)
	if roomClient.Enabled() {
		log.Println("Room provider configured")
	} else {
		log.Println("Room provider credentials not configured, agents run without media rooms")
	}

	registry := agentService.NewRegistry(func() transcribe.Transcriber {
		return transcribe.NewSimulator()
	}, dialogueSvc, cfg.Agent)
	defer registry.CloseAll()

	go registry.RunReaper(ctx)

	router := handler.NewRouter(registry, roomClient, cfg.Agent)

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("Speaking agent backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
