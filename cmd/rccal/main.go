// Command rccal calibrates a radio transmitter from the terminal. RC_CHANNELS
// of a live vehicle are the axis samples; n advances, s skips and q or Esc
// cancels.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/bluenviron/gomavlib/v3/pkg/message"
	"github.com/eiannone/keyboard"
	"github.com/google/uuid"

	"github.com/yegors/co-gcs/internal/calibration"
	"github.com/yegors/co-gcs/internal/command"
	"github.com/yegors/co-gcs/internal/config"
	"github.com/yegors/co-gcs/internal/events"
	"github.com/yegors/co-gcs/internal/fleet"
	"github.com/yegors/co-gcs/internal/link"
	"github.com/yegors/co-gcs/internal/storage/sqlite"
	"github.com/yegors/co-gcs/pkg/logger"
)

const vehicleWait = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "Path to configuration file (optional - will search in configs/ and root directory)")
	systemID := flag.Int("system", 0, "System id of the vehicle, 0 uses the first vehicle seen")
	deviceID := flag.String("device", "rc", "Device id the calibration is stored under")
	exportPath := flag.String("export", "", "Write the saved calibration to this YAML file")
	importPath := flag.String("import", "", "Store the calibration from this YAML file instead of running the wizard")
	writeParams := flag.Bool("write", false, "Write RC_MAP_* and RCn_* parameters to the vehicle after saving")
	flag.Parse()

	if *systemID < 0 || *systemID > 254 {
		fmt.Fprintf(os.Stderr, "Invalid system id: %d\n", *systemID)
		os.Exit(1)
	}

	cfg, err := config.LoadWithFallback(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	// the wizard needs a real vehicle
	cfg.Simulation.Enabled = false
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: "console",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, uint8(*systemID), *deviceID, *exportPath, *importPath, *writeParams, log); err != nil {
		log.Error("Radio calibration failed", logger.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, systemID uint8, deviceID, exportPath, importPath string, writeParams bool, log *logger.Logger) error {
	if err := os.MkdirAll(filepath.Dir(cfg.Storage.SQLitePath), 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}
	store, err := sqlite.New(cfg.Storage.SQLitePath, log)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := events.NewBus()

	var mavLink *link.Link
	fleetManager := fleet.NewManager(cfg.FleetSettings(), fleet.Deps{
		Publisher: bus,
		Transport: command.TransportFunc(func(msg message.Message) error {
			return mavLink.Send(msg)
		}),
	}, log)

	mavLink, err = link.New(cfg.Link, fleetManager, link.OpenSerial, log)
	if err != nil {
		return err
	}
	defer mavLink.Close()
	go mavLink.Run(ctx)

	calCfg := cfg.Calibration
	calCfg.Profile = calibration.ProfileRC
	thresholds, err := calCfg.Thresholds()
	if err != nil {
		return err
	}

	feeder := newRCFeeder(nil, systemID)
	deps := calibration.Deps{Publisher: bus, Store: store}
	params := &vehicleParams{fleet: fleetManager, feeder: feeder}
	if writeParams {
		deps.Params = params
	}
	controller := calibration.NewController(calibration.ProfileRC, thresholds, deps, log)
	feeder.sink = controller
	defer bus.Subscribe(feeder.handle)()

	if importPath != "" {
		return importProfile(ctx, importPath, thresholds, store, params, writeParams)
	}

	finished := make(chan events.CalibrationFinished, 1)
	defer bus.Subscribe(func(ev events.Event) {
		switch e := ev.(type) {
		case events.CalibrationStep:
			printf("\n== %s ==", e.Step)
			printf("%s", e.Instructions)
			keys := "[q] cancel"
			if e.CanSkip {
				keys = "[s] skip  " + keys
			}
			if e.CanNext {
				keys = "[n] next  " + keys
			}
			printf("%s", keys)
		case events.CalibrationStatus:
			printf("! %s", e.Text)
		case events.AxisMapped:
			if e.Axis >= 0 {
				printf("%s -> channel %d", e.Function, e.Axis+1)
			}
		case events.CalibrationFinished:
			select {
			case finished <- e:
			default:
			}
		}
	})()

	if err := keyboard.Open(); err != nil {
		return fmt.Errorf("failed to open keyboard: %w", err)
	}
	defer keyboard.Close()
	keys, err := keyboard.GetKeys(10)
	if err != nil {
		return fmt.Errorf("failed to read keyboard: %w", err)
	}

	if err := controller.Start(uuid.NewString(), deviceID); err != nil {
		return err
	}
	printf("Waiting for RC_CHANNELS...")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case ev := <-keys:
			if ev.Err != nil {
				return fmt.Errorf("keyboard error: %w", ev.Err)
			}
			if err := handleKey(controller, ev); err != nil {
				printf("! %v", err)
			}

		case <-sigCh:
			controller.Cancel()

		case done := <-finished:
			if !done.Saved {
				printf("Calibration cancelled")
				return nil
			}
			printf("Calibration saved for %s", done.DeviceID)
			if exportPath != "" {
				return exportProfile(exportPath, done.DeviceID, store)
			}
			return nil
		}
	}
}

func handleKey(c *calibration.Controller, ev keyboard.KeyEvent) error {
	switch {
	case ev.Rune == 'n' || ev.Key == keyboard.KeyEnter:
		return c.Next()
	case ev.Rune == 's':
		return c.Skip()
	case ev.Rune == 'q' || ev.Key == keyboard.KeyEsc || ev.Key == keyboard.KeyCtrlC:
		return c.Cancel()
	}
	return nil
}

func exportProfile(path, deviceID string, store calibration.Store) error {
	table, err := store.LoadCalibration(deviceID)
	if err != nil {
		return err
	}
	if table == nil {
		return fmt.Errorf("no calibration stored for %s", deviceID)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := calibration.WriteProfile(f, table); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	printf("Exported to %s", path)
	return nil
}

func importProfile(ctx context.Context, path string, th calibration.Thresholds, store calibration.Store, params *vehicleParams, write bool) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	table, err := calibration.ReadProfile(f)
	if err != nil {
		return err
	}
	if err := calibration.ValidateTable(table, th); err != nil {
		return err
	}
	if err := store.SaveCalibration(table); err != nil {
		return err
	}
	printf("Stored calibration for %s", table.DeviceID)

	if !write {
		return nil
	}
	if err := waitForVehicle(ctx, params); err != nil {
		return err
	}
	return params.WriteCalibration(table)
}

func waitForVehicle(ctx context.Context, params *vehicleParams) error {
	ctx, cancel := context.WithTimeout(ctx, vehicleWait)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		if target := params.feeder.Target(); target != 0 {
			if _, err := params.fleet.Vehicle(target); err == nil {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return errors.New("no vehicle heartbeat received")
		case <-ticker.C:
		}
	}
}

// printf writes one line; the terminal is in raw mode while keys are read
func printf(format string, args ...any) {
	fmt.Printf(format+"\r\n", args...)
}
