package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rjmurr/movebook/internal/api"
	"github.com/rjmurr/movebook/internal/booking"
	"github.com/rjmurr/movebook/internal/config"
	"github.com/rjmurr/movebook/internal/linksync"
	"github.com/rjmurr/movebook/internal/movement"
	"github.com/rjmurr/movebook/internal/storage/sqlite"
	"github.com/rjmurr/movebook/internal/vkb"
	"github.com/rjmurr/movebook/internal/websocket"
	"github.com/rjmurr/movebook/pkg/logger"
	"github.com/rjmurr/movebook/pkg/metrics"
)

var (
	// Version is injected at build time
	Version = "dev"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to configuration file (optional - will search in configs/ and root directory)")
	flag.Parse()

	// Load configuration with fallback logic
	cfg, err := config.LoadWithFallback(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Create logger
	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting movebook server",
		logger.String("version", Version),
		logger.String("station", cfg.Station.AirportCode),
	)

	// Ensure the database directory exists
	dbDir := filepath.Dir(cfg.Storage.SQLitePath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		log.Error("Failed to create database directory", logger.Error(err), logger.String("path", dbDir))
		os.Exit(1)
	}

	// Create SQLite snapshot storage
	snapshots, err := sqlite.NewSnapshotStore(cfg.Storage.SQLitePath, log)
	if err != nil {
		log.Error("Failed to open snapshot storage", logger.Error(err))
		os.Exit(1)
	}
	defer snapshots.Close()
	log.Info("Using SQLite storage", logger.String("path", cfg.Storage.SQLitePath))

	// Create in-memory stores backed by the snapshot storage
	movements := movement.NewStore(snapshots, log)
	bookings := booking.NewStore(snapshots, log)

	loadedMovements, err := snapshots.LoadMovements()
	if err != nil {
		log.Error("Failed to load movements snapshot", logger.Error(err))
		os.Exit(1)
	}
	movements.LoadFromPersistence(loadedMovements)

	loadedBookings, err := snapshots.LoadBookings()
	if err != nil {
		log.Error("Failed to load bookings snapshot", logger.Error(err))
		os.Exit(1)
	}
	bookings.LoadFromPersistence(loadedBookings)

	log.Info("Loaded persisted state",
		logger.Int("movements", movements.Count()),
		logger.Int("bookings", len(bookings.List())),
	)

	// Create WebSocket server
	wsServer := websocket.NewServer(log)

	// Start WebSocket server
	go wsServer.Run()

	// Create the movement/booking sync engine
	m := metrics.New("movebook", prometheus.DefaultRegisterer)
	engine := linksync.NewEngine(movements, bookings, wsServer, m, log)

	// Repair cross-references before serving any request
	summary := engine.ReconcileLinks()
	if !summary.Empty() {
		log.Warn("Startup reconciliation repaired links",
			logger.Int("cleared_movement_refs", summary.ClearedMovementRefs),
			logger.Int("cleared_booking_refs", summary.ClearedBookingRefs),
			logger.Int("repaired_booking_refs", summary.RepairedBookingRefs),
			logger.Int("conflicts", len(summary.Conflicts)),
		)
	}

	// Load the aircraft-type database (optional)
	var vkbDB *vkb.DB
	if cfg.VKB.AircraftTypesPath != "" {
		vkbDB, err = vkb.Load(cfg.VKB.AircraftTypesPath, log)
		if err != nil {
			log.Error("Failed to load aircraft type database", logger.Error(err))
			os.Exit(1)
		}
	}

	// Create API router
	router := api.NewRouter(movements, bookings, engine, vkbDB, cfg, log, wsServer)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router.Routes(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSecs) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSecs) * time.Second,
	}

	go func() {
		log.Info("Starting HTTP server", logger.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error on startup", logger.String("addr", server.Addr), logger.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", logger.Error(err))
	}

	// Flush final snapshots so nothing written between persist failures is lost
	if err := snapshots.SaveMovements(movements.List()); err != nil {
		log.Error("Failed to flush movements snapshot", logger.Error(err))
	}
	if err := snapshots.SaveBookings(bookings.List()); err != nil {
		log.Error("Failed to flush bookings snapshot", logger.Error(err))
	}

	log.Info("Server stopped")
}
