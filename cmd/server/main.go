package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codecollab/internal/api"
	"codecollab/internal/collaboration"
	"codecollab/internal/config"
	"codecollab/internal/db"
	"codecollab/internal/repository"
	"codecollab/internal/services"
	"codecollab/internal/telemetry"

	"github.com/redis/go-redis/v9"
)

/*
LEARNING: GRACEFUL SHUTDOWN PATTERN WITH OBSERVABILITY

Startup wires the pieces leaf-first:
1. Tracing, so everything after it is traced
2. Database and repositories
3. Snapshot writer pool → live mirror → registry/relay/hub
4. Optional Redis bus for cross-instance fan-out
5. HTTP router

Shutdown runs in reverse: stop accepting requests, close live connections
(which queues their unsaved content), drain the snapshot writer, then close
the database.
*/

const version = "1.0.0"

func main() {
	log.Println("🚀 Starting collaborative editing server...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	// Initialize Jaeger tracing
	// Learning: Do this FIRST so all operations are traced
	tracingShutdown, err := telemetry.InitJaeger("codecollab", version, cfg.JaegerEndpoint, cfg.TraceSampleRatio)
	if err != nil {
		log.Printf("⚠️  Failed to initialize Jaeger: %v (continuing without tracing)", err)
		tracingShutdown = func(ctx context.Context) error { return nil }
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracingShutdown(ctx); err != nil {
			log.Printf("⚠️  Failed to shutdown Jaeger: %v", err)
		}
	}()

	database, err := db.NewGorm(cfg)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer database.Close()

	docRepo := repository.NewDocumentRepository(database.DB)
	memberRepo := repository.NewMemberRepository(database.DB)
	access := services.NewAccessService(memberRepo)

	// Snapshot writer pool persists live content in the background
	writer := services.NewSnapshotWriter(docRepo, cfg.SnapshotWorkers, cfg.SnapshotQueueSize)
	writer.Start()

	mirror := collaboration.NewMirror(docRepo, writer, cfg.SaveInterval)

	registry := collaboration.NewRegistry()
	relay := collaboration.NewRelay(registry)
	relay.SetMirror(mirror)

	hub := collaboration.NewHub(registry, relay, cfg.IdleTimeout)
	hub.SetMirror(mirror)
	hub.Start()

	busCtx, stopBus := context.WithCancel(context.Background())
	defer stopBus()

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisClient.Ping(busCtx).Err(); err != nil {
			log.Fatalf("❌ Failed to connect to Redis at %s: %v", cfg.RedisAddr, err)
		}

		bus := collaboration.NewRedisBus(redisClient, cfg.RedisChannel)
		relay.SetPublisher(bus)
		go func() {
			if err := bus.Run(busCtx, relay.DeliverRemote); err != nil && err != context.Canceled {
				log.Printf("⚠️  Delta bus stopped: %v", err)
			}
		}()
	} else {
		log.Println("  Cross-instance fan-out disabled (REDIS_ADDR is empty)")
	}

	wsHandler := collaboration.NewWebSocketHandler(hub, docRepo, access, cfg.SendQueueSize)
	handler := api.NewHandler(docRepo, memberRepo, access, mirror)
	router := api.SetupRoutes(handler, wsHandler.HandleDocumentConnection)

	// Learning: no WriteTimeout, live sockets outlive any request deadline
	addr := fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort)
	server := &http.Server{
		Addr:        addr,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Start HTTP server in a goroutine
	// Learning: This allows us to handle shutdown signals concurrently
	go func() {
		log.Printf("🌐 Server listening on http://%s", addr)
		log.Printf("📚 API Endpoints:")
		log.Printf("   POST   /api/documents              - Create document")
		log.Printf("   GET    /api/documents              - List my documents")
		log.Printf("   GET    /api/documents/:id          - Get document")
		log.Printf("   PUT    /api/documents/:id          - Save document")
		log.Printf("   POST   /api/documents/:id/members  - Share document")
		log.Printf("   GET    /ws/documents/:id           - Live editing socket")
		log.Printf("   GET    /metrics                    - Prometheus metrics")
		log.Println()

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Server error: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Learning: hijacked WebSocket connections are not tracked by Shutdown; the hub closes them
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("⚠️  Server forced to shutdown: %v", err)
	}

	stopBus()
	relay.Close()
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			log.Printf("⚠️  Failed to close Redis client: %v", err)
		}
	}

	// Closes every connection and queues unsaved content
	hub.Shutdown(ctx)

	// Learning: This waits for workers to finish writing queued snapshots
	writer.Shutdown()

	log.Println("✓ Server shutdown complete")
}
