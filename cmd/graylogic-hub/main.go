// Gray Logic Hub - home automation hub
//
// This is the main entry point for the hub. It wires the device registry,
// the scene engine and its trigger sources to the MQTT broker, the history
// database and the HTTP/WebSocket API:
//   - Devices are declared in a bridge file and driven over MQTT
//   - Scenes run on device events, presence, location, webhooks and intervals
//   - Readings and scene runs are logged to SQLite and optionally InfluxDB
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gray-logic-hub/internal/api"
	"github.com/nerrad567/gray-logic-hub/internal/automation"
	"github.com/nerrad567/gray-logic-hub/internal/bridge/mqttdevice"
	"github.com/nerrad567/gray-logic-hub/internal/device"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-hub/internal/location"
	"github.com/nerrad567/gray-logic-hub/internal/notify"
	"github.com/nerrad567/gray-logic-hub/internal/presence"
	"github.com/nerrad567/gray-logic-hub/internal/store"
	"github.com/nerrad567/gray-logic-hub/internal/thermostat"
	"github.com/nerrad567/gray-logic-hub/internal/tracker"
	"github.com/nerrad567/gray-logic-hub/migrations"
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

// Status history housekeeping.
const (
	statusHistoryRetention = 90 * 24 * time.Hour
	statusHistoryPrune     = 24 * time.Hour
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence
	log := logging.Default()
	log.Info("starting Gray Logic Hub",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"site", cfg.Site.ID,
		"level", cfg.Logging.Level,
	)

	// History database
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
	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	// Document store
	docs, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer func() {
		log.Info("closing store")
		if closeErr := docs.Close(); closeErr != nil {
			log.Error("error closing store", "error", closeErr)
		}
	}()

	statusLog := device.NewSQLiteStatusHistoryRepository(db.DB)
	registry, err := device.NewRegistry(docs, statusLog)
	if err != nil {
		return err
	}
	registry.SetLogger(log)
	defer func() {
		if closeErr := registry.Close(); closeErr != nil {
			log.Error("error closing devices", "error", closeErr)
		}
	}()

	scenes, err := automation.NewRegistry(docs)
	if err != nil {
		return err
	}
	scenes.SetLogger(log)
	variables, err := automation.NewVariables(docs)
	if err != nil {
		return err
	}
	groups, err := device.NewGroups(docs)
	if err != nil {
		return err
	}
	palettes, err := device.NewPalettes(docs)
	if err != nil {
		return err
	}
	palettes.SetLogger(log)
	log.Info("stores loaded",
		"scenes", scenes.GetSceneCount(),
		"known_devices", len(registry.StoredDevices()),
	)

	// MQTT
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	mqttClient.SetLogger(log)
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

	// InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB, cfg.Site.ID)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		influxClient.SetLogger(log)
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	hub := api.NewHub(cfg.WebSocket, log)
	sink := &triggerSink{}

	// Presence and location
	detector := presence.NewDetector(presence.Options{
		Hosts:             cfg.Presence.Hosts,
		Sink:              sink,
		Hub:               hub,
		Logger:            log,
		NobodyHomeTimeout: cfg.Presence.NobodyHomeTimeout,
	})
	defer detector.Close()

	locations, err := location.NewService(location.Options{
		Store:  docs,
		Repo:   location.NewSQLiteRepository(db.DB),
		Hub:    hub,
		Logger: log,
	})
	if err != nil {
		return err
	}
	defer locations.Close()
	targets, err := location.LoadTargets(cfg.Location.TargetsFile)
	if err != nil {
		return err
	}
	if seedErr := locations.SeedTargets(targets); seedErr != nil {
		return fmt.Errorf("seeding location targets: %w", seedErr)
	}

	// Heating
	heating := thermostat.New(registry, thermostat.Config{
		MasterDeviceIDs: cfg.Thermostat.MasterDeviceIDs,
		SlaveDeviceIDs:  cfg.Thermostat.SlaveDeviceIDs,
	}, log)

	// Scene engine
	engineOpts := automation.Options{
		Devices:     registry,
		Groups:      groups,
		Palettes:    palettes,
		Presence:    detector,
		Variables:   variables,
		Notifier:    notify.New(mqttClient, log),
		Rooms:       thermostat.NewRoomControl(registry, log),
		Executions:  automation.NewSQLiteRepository(db.DB),
		MQTT:        mqttClient,
		Hub:         hub,
		Logger:      log,
		RampStep:    cfg.Automation.RampStep,
		CodeTimeout: cfg.Automation.CodeTimeout,
	}
	if influxClient != nil {
		engineOpts.Metrics = influxClient
	}
	engine := automation.NewEngine(scenes, engineOpts)
	defer engine.Close()
	sink.set(engine)

	if startErr := detector.Start(mqttClient); startErr != nil {
		return fmt.Errorf("starting presence: %w", startErr)
	}
	if startErr := locations.Start(mqttClient); startErr != nil {
		return fmt.Errorf("starting location: %w", startErr)
	}
	heating.Start()
	defer heating.Close()

	g, gctx := errgroup.WithContext(ctx)

	// Trackers
	var trackers *tracker.Set
	if cfg.Trackers.Enabled {
		trackerOpts := tracker.Options{
			DB:               db.DB,
			Sink:             engine,
			Logger:           log,
			SnapshotInterval: cfg.Trackers.SnapshotInterval,
		}
		if influxClient != nil {
			trackerOpts.Metrics = influxClient
		}
		trackers, err = tracker.NewSet(scenes, engine, tracker.SchedulerOptions{
			Options:       trackerOpts,
			Locations:     locations,
			CheckInterval: cfg.Automation.SchedulerInterval,
		})
		if err != nil {
			return fmt.Errorf("creating trackers: %w", err)
		}
		defer trackers.Close()

		stopScenes := scenes.Subscribe(func([]automation.Scene) {
			trackers.PowerThreshold.RefreshThresholds()
		})
		defer stopScenes()
		stopWatch := trackers.Watch(registry.Devices())
		defer stopWatch()

		g.Go(func() error { return trackers.Run(gctx) })
	} else {
		log.Info("trackers disabled")
	}

	g.Go(func() error {
		pruneStatusHistory(gctx, statusLog, log)
		return nil
	})

	// MQTT device bridge
	if cfg.Bridge.Enabled {
		bridgeCfg, loadErr := mqttdevice.LoadConfig(cfg.Bridge.Path)
		if loadErr != nil {
			return fmt.Errorf("loading bridge config: %w", loadErr)
		}
		bridge := mqttdevice.New(mqttClient, registry, log)
		if startErr := bridge.Start(ctx, bridgeCfg); startErr != nil {
			return fmt.Errorf("starting MQTT device bridge: %w", startErr)
		}
		defer bridge.Stop(context.Background())
		log.Info("MQTT device bridge started", "path", cfg.Bridge.Path)
	} else {
		log.Info("MQTT device bridge disabled")
	}

	checks := map[string]api.HealthChecker{
		"database": db,
		"store":    docs,
		"mqtt":     mqttClient,
	}
	if influxClient != nil {
		checks["influxdb"] = influxClient
	}

	// API
	server, err := api.New(api.Deps{
		Config:    cfg.API,
		WS:        cfg.WebSocket,
		Logger:    log,
		Registry:  registry,
		Groups:    groups,
		Palettes:  palettes,
		Engine:    engine,
		Trackers:  trackers,
		StatusLog: statusLog,
		Presence:  detector,
		Locations: locations,
		Heating:   heating,
		Hub:       hub,
		Checks:    checks,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, checks); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")
	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		log.Error("background task failed", "error", err)
	}

	log.Info("Gray Logic Hub stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses GRAYLOGIC_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRAYLOGIC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck checks every component in name order.
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, checks map[string]api.HealthChecker) error {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := checks[name].HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// pruneStatusHistory drops old status transitions once a day until ctx is
// done.
func pruneStatusHistory(ctx context.Context, repo *device.SQLiteStatusHistoryRepository, log *logging.Logger) {
	ticker := time.NewTicker(statusHistoryPrune)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := repo.PruneHistory(ctx, statusHistoryRetention)
			if err != nil {
				log.Warn("pruning status history", "error", err)
				continue
			}
			if n > 0 {
				log.Info("status history pruned", "rows", n)
			}
		}
	}
}

// triggerSink forwards presence triggers to the engine. The detector is
// created before the engine, which reads presence from it.
type triggerSink struct {
	mu     sync.RWMutex
	engine *automation.Engine
}

func (s *triggerSink) set(e *automation.Engine) {
	s.mu.Lock()
	s.engine = e
	s.mu.Unlock()
}

// OnTrigger implements presence.TriggerSink. Triggers before the engine
// exists are dropped.
func (s *triggerSink) OnTrigger(ctx context.Context, trig automation.Trigger, skipConditions bool) int {
	s.mu.RLock()
	e := s.engine
	s.mu.RUnlock()
	if e == nil {
		return 0
	}
	return e.OnTrigger(ctx, trig, skipConditions)
}
