// Gray Logic Subsystems - per-place subsystem runtime
//
// This is the entry point of the subsystem service. It hosts the
// long-lived subsystems (alarm, security, safety, presence) of every place,
// fed by the MQTT platform bus, with one single-threaded executor per
// place held in a bounded cache.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/nerrad567/gray-logic-subsystems/migrations"

	"github.com/nerrad567/gray-logic-subsystems/internal/api"
	"github.com/nerrad567/gray-logic-subsystems/internal/bus"
	"github.com/nerrad567/gray-logic-subsystems/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-subsystems/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-subsystems/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-subsystems/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-subsystems/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-subsystems/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-subsystems/internal/infrastructure/telemetry"
	"github.com/nerrad567/gray-logic-subsystems/internal/persistence"
	"github.com/nerrad567/gray-logic-subsystems/internal/place"
	"github.com/nerrad567/gray-logic-subsystems/internal/subsystem"
	"github.com/nerrad567/gray-logic-subsystems/internal/subsystems"
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

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires the service together and blocks until ctx is cancelled.
// Components are closed in reverse order of creation.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Gray Logic Subsystems",
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
	log.Info("configuration loaded", "path", configPath, "site_id", cfg.Site.ID)

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry, version)
	if err != nil {
		return fmt.Errorf("setting up tracing: %w", err)
	}
	defer func() {
		if shutdownErr := shutdownTracing(context.Background()); shutdownErr != nil {
			log.Error("error flushing traces", "error", shutdownErr)
		}
	}()

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
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

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
	mqttClient.SetOnConnect(func() { log.Info("MQTT reconnected") })
	mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	reg := metrics.NewRegistry(db.DB)
	prom, err := metrics.NewPrometheus(reg)
	if err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}
	sink := metrics.Multi{prom}
	checks := []api.HealthCheck{
		{Name: "database", Check: db.HealthCheck},
		{Name: "mqtt", Check: mqttClient.HealthCheck},
	}

	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		sink = append(sink, metrics.NewInfluxSink(influxClient))
		checks = append(checks, api.HealthCheck{Name: "influxdb", Check: influxClient.HealthCheck})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	registry := newRegistry(cfg, db, mqttClient, sink, prom, log)
	defer func() {
		log.Info("stopping subsystem executors", "cached", registry.Len())
		registry.Close()
	}()

	router := bus.NewRouter(bus.RouterConfig{
		Namespaces:         subsystemNamespaces(),
		QoS:                mqttClient.QoS(),
		RedeliveryAttempts: cfg.Subsystems.RedeliveryAttempts,
		RedeliveryDelay:    cfg.Subsystems.RedeliveryDelay,
	}, bus.RouterDeps{
		Subscriber: mqttClient,
		Executors:  bus.RegistryResolver{Registry: registry},
		Logger:     log.Logger,
		Metrics:    prom,
	})
	if err := router.Start(ctx); err != nil {
		return fmt.Errorf("starting bus router: %w", err)
	}
	defer func() {
		if closeErr := router.Close(); closeErr != nil {
			log.Error("error closing bus router", "error", closeErr)
		}
	}()

	server, err := api.New(api.Deps{
		Config:    cfg.API,
		Logger:    log,
		Executors: registry,
		Checks:    checks,
		Gatherer:  reg,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")
	return nil
}

// newRegistry builds the executor cache over the SQLite repositories, with
// every executor publishing through the bus.
func newRegistry(cfg *config.Config, db *database.DB, pub bus.Publisher, sink metrics.Multi, prom *metrics.Prometheus, log *logging.Logger) *subsystem.Registry {
	sc := cfg.Subsystems
	models := persistence.NewSQLiteRepository(db.DB)
	return subsystem.NewRegistry(subsystem.RegistryConfig{
		MaxSize:            sc.CacheMaxSize,
		ExpireAfterAccess:  sc.CacheExpireAfterAccess,
		InitialCapacity:    sc.CacheInitialCapacity,
		Concurrency:        sc.CacheConcurrency,
		SoftValues:         sc.CacheSoftValues,
		SoftHeapLimitBytes: sc.SoftHeapLimitBytes(),
		Executor: subsystem.Config{
			QueueDepth:     sc.QueueDepth,
			PersistTimeout: sc.PersistTimeout,
		},
	}, subsystem.RegistryDeps{
		Places: place.NewSQLiteRepository(db.DB),
		Models: models,
		Executor: subsystem.Deps{
			Subsystems: subsystems.All(),
			Models:     models,
			Sender:     bus.NewSender(pub, byte(cfg.MQTT.QoS), prom),
			Logger:     log.Logger,
			Metrics:    sink,
		},
	})
}

// subsystemNamespaces returns the unicast namespaces the router serves.
func subsystemNamespaces() []string {
	var out []string
	for _, s := range subsystems.All() {
		out = append(out, s.Namespace())
	}
	return out
}

// getConfigPath returns the configuration file path.
// Uses GRAYLOGIC_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRAYLOGIC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
