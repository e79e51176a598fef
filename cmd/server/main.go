/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the revenue engine server: SQLite store, refresh
  engine, HTTP router, and the background refresh scheduler.

COMMAND-LINE FLAGS:
  -port      HTTP server port (default: 8080)
  -db        SQLite database path (default: crm.db); ":memory:" works
  -interval  Refresh interval (default: 5m, the snapshot TTL)
  -year      Target year override (default: current calendar year)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM: stop the scheduler, stop accepting connections, wait
  up to 30s for in-flight requests, close the database.

SEE ALSO:
  - api/server.go: Router configuration
  - api/scheduler.go: Background refresh
*/
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

	"github.com/warp/revenue-engine/api"
	"github.com/warp/revenue-engine/engine"
	"github.com/warp/revenue-engine/store/sqlite"
)

func main() {
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "crm.db", "SQLite database path (\":memory:\" for in-memory)")
	interval := flag.Duration("interval", 5*time.Minute, "Background refresh interval")
	year := flag.Int("year", 0, "Target year override (0 = current year)")
	flag.Parse()

	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	eng := engine.New(store, store)

	handler := api.NewHandler(store, eng)
	handler.DefaultYear = *year

	scheduler := api.NewRefreshScheduler(eng)
	scheduler.Interval = *interval
	if *year != 0 {
		scheduler.TargetYear = func() int { return *year }
	}
	scheduler.Start()
	defer scheduler.Stop()

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", *port),
		Handler: api.NewRouter(handler),
	}

	go func() {
		log.Printf("[Server] Listening on :%d (db: %s)", *port, *dbPath)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[Server] Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("[Server] forced shutdown: %v", err)
	}
	log.Println("[Server] Stopped")
}
