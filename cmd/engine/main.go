package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/spinmatch/engine/db"
	"github.com/spinmatch/engine/internal/blocklist"
	"github.com/spinmatch/engine/internal/engine"
	"github.com/spinmatch/engine/internal/history"
	"github.com/spinmatch/engine/internal/messaging"
	"github.com/spinmatch/engine/internal/metrics"
)

func main() {
	log.Println("Starting SpinMatch engine...")

	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment")
	}

	// Redis setup.
	redisAddr := "localhost:6379"
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		redisAddr = v
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(ctx).Err(); err != nil {
		cancel()
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	cancel()

	// PostgreSQL setup. Without DATABASE_URL the engine runs on Redis
	// alone: no durable blocklist or outcome archive.
	sqlDB := openDatabase()

	// NATS setup.
	natsConfig := messaging.DefaultNATSConfig()
	if v := os.Getenv("NATS_URL"); v != "" {
		natsConfig.URL = v
	}
	natsConfig.Name = "spinmatch-engine"

	natsClient, err := messaging.NewNATSClient(natsConfig)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}

	// Warm the Redis mirrors from the durable tables.
	if sqlDB != nil {
		warmCtx, warmCancel := context.WithTimeout(context.Background(), 30*time.Second)
		if n, err := blocklist.NewStore(sqlDB, rdb).WarmCache(warmCtx); err != nil {
			log.Printf("blocklist warm failed: %v", err)
		} else {
			log.Printf("blocklist mirror warmed (%d pairs)", n)
		}
		if n, err := history.NewStore(sqlDB, rdb).WarmCache(warmCtx); err != nil {
			log.Printf("history warm failed: %v", err)
		} else {
			log.Printf("mutual-yes mirror warmed (%d pairs)", n)
		}
		warmCancel()
	}

	// Start the engine.
	svc := engine.NewService(rdb, sqlDB, natsClient, engine.DefaultConfig())
	if err := svc.Start(); err != nil {
		log.Fatalf("failed to start engine: %v", err)
	}

	// Metrics and health endpoint.
	metricsAddr := ":9100"
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		metricsAddr = v
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	httpSrv := &http.Server{Addr: metricsAddr, Handler: mux}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("metrics server: %v", err)
		}
	}()

	log.Printf("SpinMatch engine running")
	log.Printf("  redis_addr:   %s", redisAddr)
	log.Printf("  nats_url:     %s", natsConfig.URL)
	log.Printf("  metrics_addr: %s", metricsAddr)

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received signal %v, shutting down...", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	httpSrv.Shutdown(shutdownCtx)
	shutdownCancel()

	svc.Stop()
	natsClient.Close()
	if sqlDB != nil {
		sqlDB.Close()
	}
	rdb.Close()
	log.Println("shutdown complete")
}

// openDatabase connects to PostgreSQL and applies migrations. Returns nil
// when DATABASE_URL is unset.
func openDatabase() *sql.DB {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		log.Println("DATABASE_URL not set; durable archive disabled")
		return nil
	}
	conn, err := db.Connect(url)
	if err != nil {
		log.Fatalf("failed to connect to PostgreSQL: %v", err)
	}
	dir := os.Getenv("MIGRATIONS_DIR")
	if dir == "" {
		dir = "migrations"
	}
	if err := db.Migrate(conn, dir); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}
	return conn
}
