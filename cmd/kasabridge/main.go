// Kasa Bridge - smart-home device pool
//
// This is the main entry point for the bridge. It loads the device
// inventory, attaches to the MQTT broker the Kasa LAN agent publishes on,
// runs every outbound command through the filter pipeline and serves the
// HTTP/WebSocket control surface.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/jowe81/ll-kasa-bridge-sub001/internal/api"
	"github.com/jowe81/ll-kasa-bridge-sub001/internal/bridges/kasa"
	"github.com/jowe81/ll-kasa-bridge-sub001/internal/device"
	"github.com/jowe81/ll-kasa-bridge-sub001/internal/filter"
	"github.com/jowe81/ll-kasa-bridge-sub001/internal/flags"
	"github.com/jowe81/ll-kasa-bridge-sub001/internal/infrastructure/config"
	"github.com/jowe81/ll-kasa-bridge-sub001/internal/infrastructure/database"
	"github.com/jowe81/ll-kasa-bridge-sub001/internal/infrastructure/influxdb"
	"github.com/jowe81/ll-kasa-bridge-sub001/internal/infrastructure/logging"
	"github.com/jowe81/ll-kasa-bridge-sub001/internal/infrastructure/mqtt"
	"github.com/jowe81/ll-kasa-bridge-sub001/internal/solar"
	"github.com/jowe81/ll-kasa-bridge-sub001/internal/telemetry"
	"github.com/jowe81/ll-kasa-bridge-sub001/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// pruneInterval is how often expired device events are deleted.
const pruneInterval = time.Hour

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// It returns nil on clean shutdown.
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence
	log := logging.Default()
	log.Info("starting kasa bridge",
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
	log.Info("configuration loaded", "path", configPath, "level", cfg.Logging.Level)

	tz, err := time.LoadLocation(cfg.Site.Timezone)
	if err != nil {
		return fmt.Errorf("loading timezone %q: %w", cfg.Site.Timezone, err)
	}

	devicesCfg, err := device.LoadConfig(cfg.Devices.ConfigFile)
	if err != nil {
		return fmt.Errorf("loading device inventory: %w", err)
	}
	log.Info("device inventory loaded",
		"path", cfg.Devices.ConfigFile,
		"devices", len(devicesCfg.Devices),
		"presets", len(devicesCfg.Presets),
	)

	checks := make(map[string]api.HealthChecker)
	sinks := telemetry.Multi{}

	// Event log (optional)
	var history *telemetry.EventLog
	if cfg.Database.Enabled {
		db, openErr := database.Open(database.Config{
			Path:        cfg.Database.Path,
			WALMode:     cfg.Database.WALMode,
			BusyTimeout: cfg.Database.BusyTimeout,
		})
		if openErr != nil {
			return fmt.Errorf("opening database: %w", openErr)
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

		history = telemetry.NewEventLog(db.DB)
		sinks = append(sinks, telemetry.NewEventLogSink(history))
		checks["database"] = db

		if retention := cfg.GetRetention(); retention > 0 {
			go pruneLoop(ctx, history, retention, log)
		}
	} else {
		log.Info("event log disabled")
	}

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
	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT connected")
	})
	checks["mqtt"] = mqttClient
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// InfluxDB (optional)
	influxClient, err := influxdb.Connect(cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		sinks = append(sinks, telemetry.NewInfluxSink(influxClient))
		checks["influxdb"] = influxClient
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	if cfg.Telemetry.LifeLogURL != "" {
		sinks = append(sinks, telemetry.NewLifeLogSink(cfg.Telemetry.LifeLogURL, http.DefaultClient, cfg.GetTelemetryTimeout()))
		log.Info("LifeLog telemetry enabled", "url", cfg.Telemetry.LifeLogURL)
	}

	// Filter pipeline
	flagCache := flags.NewCache(flags.NewHTTPSource(cfg.GetFlagFetchTimeout()),
		flags.WithTTL(cfg.GetFlagTTL()),
		flags.WithFetchTimeout(cfg.GetFlagFetchTimeout()),
		flags.WithLogger(log),
	)
	defer flagCache.Close()

	clock := solar.NewClock(solar.Location{
		Latitude:  cfg.Site.Location.Latitude,
		Longitude: cfg.Site.Location.Longitude,
	})
	clock.Now = func() time.Time { return time.Now().In(tz) }

	registry := filter.NewDefaultRegistry(clock, flagCache)
	registry.SetLogger(log)
	log.Info("filter plugins registered", "plugins", registry.Names())

	// Device pool
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	hub := api.NewHub(cfg.WebSocket, log)
	go hub.Run(ctx)

	pool, err := device.NewPool(devicesCfg, filter.NewPipeline(registry), device.PoolOptions{
		Logger:           log,
		Telemetry:        sinks,
		Broadcaster:      hub,
		Metrics:          device.NewMetrics(promRegistry),
		DispatchTimeout:  cfg.GetDispatchTimeout(),
		TelemetryTimeout: cfg.GetTelemetryTimeout(),
		PeriodicInterval: cfg.GetPeriodicInterval(),
		EventBuffer:      cfg.Devices.EventBuffer,
	})
	if err != nil {
		return fmt.Errorf("creating device pool: %w", err)
	}
	defer func() {
		log.Info("stopping device pool")
		pool.Close()
	}()
	go pool.Run(ctx)

	// Kasa bridge
	bridge, err := kasa.NewBridge(kasa.Options{
		Client:     mqttClient,
		Topics:     mqttClient.Topics(),
		QoS:        mqttClient.QoS(),
		Registrar:  pool,
		StaleAfter: cfg.GetStaleAfter(),
		Logger:     log,
	})
	if err != nil {
		return fmt.Errorf("creating kasa bridge: %w", err)
	}
	if startErr := bridge.Start(ctx); startErr != nil {
		return fmt.Errorf("starting kasa bridge: %w", startErr)
	}
	defer func() {
		log.Info("stopping kasa bridge")
		bridge.Stop()
	}()

	// API server
	server, err := api.New(api.Deps{
		Config:  cfg.API,
		WS:      cfg.WebSocket,
		Logger:  log,
		Pool:    pool,
		History: eventHistory(history),
		Checks:  checks,
		Metrics: promRegistry,
		Hub:     hub,
		Version: version,
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

	// Deferred Close() calls run in reverse order: API server, bridge,
	// pool, flag cache, InfluxDB, MQTT, database.
	return nil
}

// getConfigPath returns the configuration file path.
// Uses KASABRIDGE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("KASABRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// eventHistory keeps a nil *EventLog from becoming a non-nil interface.
func eventHistory(l *telemetry.EventLog) api.EventHistory {
	if l == nil {
		return nil
	}
	return l
}

// healthCheck verifies every infrastructure connection, in name order.
func healthCheck(ctx context.Context, checks map[string]api.HealthChecker) error {
	for _, name := range []string{"database", "mqtt", "influxdb"} {
		c, ok := checks[name]
		if !ok {
			continue
		}
		if err := c.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// pruneLoop deletes device events older than retention, once at startup
// and then every pruneInterval.
func pruneLoop(ctx context.Context, history *telemetry.EventLog, retention time.Duration, log *logging.Logger) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		n, err := history.Prune(ctx, retention)
		switch {
		case err != nil && ctx.Err() == nil:
			log.Warn("pruning device events failed", "error", err)
		case n > 0:
			log.Info("pruned device events", "deleted", n)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
