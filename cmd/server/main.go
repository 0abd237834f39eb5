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

	"github.com/bluenviron/gomavlib/v3/pkg/message"

	"github.com/yegors/co-gcs/internal/api"
	"github.com/yegors/co-gcs/internal/command"
	"github.com/yegors/co-gcs/internal/config"
	"github.com/yegors/co-gcs/internal/events"
	"github.com/yegors/co-gcs/internal/fleet"
	"github.com/yegors/co-gcs/internal/link"
	"github.com/yegors/co-gcs/internal/simulation"
	"github.com/yegors/co-gcs/internal/storage/sqlite"
	"github.com/yegors/co-gcs/internal/vehicle"
	"github.com/yegors/co-gcs/internal/websocket"
	"github.com/yegors/co-gcs/pkg/logger"
)

var (
	// Version is injected at build time
	Version = "dev"
)

const eventQueueSize = 256

func main() {
	configPath := flag.String("config", "", "Path to configuration file (optional - will search in configs/ and root directory)")
	flag.Parse()

	cfg, err := config.LoadWithFallback(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting Co-GCS server",
		logger.String("version", Version),
		logger.String("config_path", *configPath),
	)

	dbDir := filepath.Dir(cfg.Storage.SQLitePath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		log.Error("Failed to create database directory", logger.Error(err), logger.String("path", dbDir))
		os.Exit(1)
	}

	store, err := sqlite.New(cfg.Storage.SQLitePath, log)
	if err != nil {
		log.Error("Failed to create SQLite storage", logger.Error(err))
		os.Exit(1)
	}
	defer store.Close()
	log.Info("Using SQLite storage", logger.String("path", cfg.Storage.SQLitePath))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := events.NewBus()

	recorder := sqlite.NewEventRecorder(store, eventQueueSize, log)
	if err := recorder.Start(ctx, bus); err != nil {
		log.Error("Failed to start event recorder", logger.Error(err))
		os.Exit(1)
	}

	// The link needs the fleet as its frame handler, and the fleet needs
	// the link to send commands.
	var mavLink *link.Link
	deps := fleet.Deps{
		Publisher: bus,
		Announcer: vehicle.NewLogAnnouncer(log),
	}
	if len(cfg.Link.Endpoints) > 0 {
		deps.Transport = command.TransportFunc(func(msg message.Message) error {
			return mavLink.Send(msg)
		})
	}
	fleetManager := fleet.NewManager(cfg.FleetSettings(), deps, log)

	if len(cfg.Link.Endpoints) > 0 {
		mavLink, err = link.New(cfg.Link, fleetManager, link.OpenSerial, log)
		if err != nil {
			log.Error("Failed to open MAVLink endpoints", logger.Error(err))
			os.Exit(1)
		}
		go func() {
			if err := mavLink.Run(ctx); err != nil {
				log.Error("MAVLink link stopped", logger.Error(err))
			}
		}()
	} else {
		log.Warn("No MAVLink endpoints configured, only the simulated vehicle will be available")
	}

	if err := fleetManager.Start(ctx); err != nil {
		log.Error("Failed to start fleet manager", logger.Error(err))
		os.Exit(1)
	}

	var simulationService *simulation.Service
	if cfg.Simulation.Enabled {
		simulationService = simulation.NewService(cfg.Simulation, fleetManager, log)
		if err := simulationService.Start(ctx); err != nil {
			log.Error("Failed to start simulation", logger.Error(err))
			os.Exit(1)
		}
	}

	inputs, err := api.NewInputCalibration(cfg.Calibration, store, bus, fleetManager, log)
	if err != nil {
		log.Error("Failed to create input calibration", logger.Error(err))
		os.Exit(1)
	}

	wsServer := websocket.NewServer(log)
	wsServer.SetMessageHandler(api.NewInputMessageHandler(inputs))
	go wsServer.Run(ctx)
	unbridge := wsServer.BridgeEvents(bus)

	var linkStats api.LinkStats
	if mavLink != nil {
		linkStats = mavLink.Stats
	}
	handler := api.NewHandler(fleetManager, inputs, store, linkStats, cfg, log, wsServer)
	router := api.NewRouter(handler, wsServer, cfg, log)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Routes(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSecs) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSecs) * time.Second,
	}

	go func() {
		log.Info("Starting HTTP server", logger.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error on startup", logger.String("addr", server.Addr), logger.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("Shutting down server...")

	if simulationService != nil {
		simulationService.Stop()
	}

	log.Info("Stopping fleet manager...")
	fleetManager.Stop()

	if mavLink != nil {
		log.Info("Closing MAVLink link...")
		mavLink.Close()
	}

	unbridge()
	recorder.Stop()

	cancel()

	log.Info("Shutting down HTTP server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", logger.String("addr", server.Addr), logger.Error(err))
	} else {
		log.Info("HTTP server shutdown complete", logger.String("addr", server.Addr))
	}

	log.Info("Server fully stopped")
}
