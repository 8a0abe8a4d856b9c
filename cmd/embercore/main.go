// Ember Core - Online-Learning Thermostat Service
//
// This is the main entry point for the Ember Core application.
// Ember Core observes a climate device and its surrounding sensors on
// the host automation platform's MQTT bus, learns the occupants'
// setpoint habits, and (when enabled) drives the device to the
// predicted setpoint.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	_ "github.com/embercore/ember-core/migrations"

	"github.com/embercore/ember-core/internal/api"
	"github.com/embercore/ember-core/internal/controller"
	"github.com/embercore/ember-core/internal/infrastructure/config"
	"github.com/embercore/ember-core/internal/infrastructure/database"
	"github.com/embercore/ember-core/internal/infrastructure/logging"
	"github.com/embercore/ember-core/internal/infrastructure/mqtt"
	"github.com/embercore/ember-core/internal/infrastructure/telemetry"
	"github.com/embercore/ember-core/internal/model"
	"github.com/embercore/ember-core/internal/origin"
	"github.com/embercore/ember-core/internal/snapshot"
	"github.com/embercore/ember-core/internal/statebus"
	"github.com/embercore/ember-core/internal/trainstore"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Ember Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Set up MQTT logging callbacks
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Connect to InfluxDB (optional)
	var telemetryClient *telemetry.Client
	if cfg.InfluxDB.Enabled {
		telemetryClient, err = telemetry.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := telemetryClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		telemetryClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Training log
	store := trainstore.NewSQLiteStore(db, log)
	count, err := store.Count(ctx)
	if err != nil {
		return fmt.Errorf("reading training log: %w", err)
	}
	log.Info("training log opened", "instances", count)

	// Model manager; a persisted model survives restarts
	modelRepo := model.NewSQLiteRepository(db)
	models := model.NewManager(modelRepo, cfg.Learning.MinTrainingInstances, cfg.Learning.Regressor, log)
	if err := models.LoadPersisted(ctx); err != nil {
		return fmt.Errorf("loading persisted model: %w", err)
	}

	// Setpoint origin ledger: the controller records every setpoint it
	// issues; the assembler consults the ledger to tell its own echoes
	// apart from human adjustments.
	ledger := origin.NewLedger(0, 0)

	// The target is configured as a full entity ID ("climate.living_room");
	// commands address the device by domain and bare device ID.
	targetEntity := cfg.Learning.TargetDeviceID
	domain, deviceID, found := strings.Cut(targetEntity, ".")
	if !found {
		domain, deviceID = "climate", targetEntity
		targetEntity = domain + "." + deviceID
	}

	// State bus over MQTT
	bus := statebus.New(mqttClient, byte(cfg.MQTT.QoS), log)

	// Controller state machine
	ctrl := controller.New(controller.Config{
		DeviceID:         deviceID,
		Domain:           domain,
		Service:          "set_temperature",
		PredictInterval:  cfg.Learning.PredictInterval(),
		OverrideDuration: cfg.Learning.OverrideDuration(),
		MinSetpointDelta: cfg.Learning.MinSetpointDelta,
		RetrainTime:      cfg.Learning.RetrainTime,
		RetrainEveryN:    cfg.Learning.RetrainEveryNInstances,
	}, controllerDeps(models, store, bus, ledger, db, telemetryClient, log))
	if err := ctrl.Restore(ctx); err != nil {
		return fmt.Errorf("restoring controller state: %w", err)
	}

	// Snapshot assembler
	asmDeps := snapshot.Deps{
		Ledger:     ledger,
		Controller: ctrl,
		Store:      store,
		Logger:     log,
	}
	if telemetryClient != nil {
		asmDeps.Telemetry = telemetryClient
	}
	asm := snapshot.New(snapshot.Config{
		TargetEntityID:  targetEntity,
		SensorEntityIDs: cfg.Learning.SensorEntityIDs,
		Window:          cfg.Learning.DebounceWindow(),
	}, asmDeps)
	ctrl.SetSnapshotSource(asm)

	if err := bus.Subscribe(asm.EntityIDs(), asm.HandleEvent); err != nil {
		return fmt.Errorf("subscribing to state topics: %w", err)
	}
	log.Info("state subscriptions active",
		"target", targetEntity,
		"sensors", len(cfg.Learning.SensorEntityIDs),
	)

	// HTTP API and WebSocket status stream
	apiServer, err := api.New(api.Deps{
		Config:         cfg.API,
		WS:             cfg.WebSocket,
		Logger:         log,
		Controller:     ctrl,
		Store:          store,
		Models:         models,
		States:         bus,
		TargetEntityID: targetEntity,
		Version:        version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := apiServer.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Stream controller status transitions to WebSocket clients
	ctrl.SetOnStatusChange(func(info controller.StatusInfo) {
		apiServer.Hub().Broadcast(api.ChannelStatus, info)
	})

	// Start the predict/retrain loop
	go ctrl.Run(ctx)

	// If no model survived the restart but the log already has enough
	// instances, train one now rather than waiting for a trigger.
	if models.Current() == nil && count >= cfg.Learning.MinTrainingInstances {
		jobID := ctrl.RequestRetrain()
		log.Info("startup training requested", "job_id", jobID, "instances", count)
	}

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, telemetryClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls will run in reverse order:
	// 1. API server
	// 2. InfluxDB (if enabled)
	// 3. MQTT
	// 4. Database

	log.Info("Ember Core stopped")
	return nil
}

// controllerDeps assembles the controller's collaborators. The
// telemetry field is only set from a non-nil client so the controller's
// nil checks work as intended.
func controllerDeps(models *model.Manager, store *trainstore.SQLiteStore, bus *statebus.Bus,
	ledger *origin.Ledger, db *database.DB, telemetryClient *telemetry.Client,
	log *logging.Logger) controller.Deps {
	deps := controller.Deps{
		Models:   models,
		Log:      store,
		Actuator: bus,
		Ledger:   ledger,
		States:   controller.NewSQLiteStateStore(db),
		Logger:   log,
	}
	if telemetryClient != nil {
		deps.Telemetry = telemetryClient
	}
	return deps
}

// getConfigPath returns the configuration file path.
// Uses EMBERCORE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("EMBERCORE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check
//   - telemetryClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, telemetryClient *telemetry.Client) error {
	// Check database
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	// Check MQTT
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	// Check InfluxDB (if enabled)
	if telemetryClient != nil {
		if err := telemetryClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
