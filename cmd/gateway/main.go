// Gray Logic Gateway routes read, write and transaction commands from an
// HTTP API to the device plugins that own the targeted hardware.
//
// Plugins are found through static addresses, a unix socket directory, a
// cluster endpoints API and retained MQTT announcements. The gateway can
// also start and supervise plugin binaries itself.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/gray-logic-gateway/internal/api"
	"github.com/nerrad567/gray-logic-gateway/internal/audit"
	"github.com/nerrad567/gray-logic-gateway/internal/command"
	"github.com/nerrad567/gray-logic-gateway/internal/directory"
	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-gateway/internal/plugin"
	"github.com/nerrad567/gray-logic-gateway/internal/process"
	"github.com/nerrad567/gray-logic-gateway/internal/transaction"
	"github.com/nerrad567/gray-logic-gateway/migrations"
)

// Version information, set at build time:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123 -X main.date=2026-03-01"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component, serves until ctx is cancelled and then shuts
// down in reverse order through the deferred closes.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Gray Logic Gateway",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version).With("gateway_id", cfg.Gateway.ID)
	log.Info("configuration loaded", "path", configPath, "level", cfg.Logging.Level)

	// Events fan out to every sink attached below
	events := &fanout{}

	// MQTT (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.Component("mqtt"))
		mqttClient.SetOnConnect(func() { log.Info("MQTT connected") })
		mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", mqttClient.ID(),
		)

		mqttEvents := mqtt.NewEventPublisher(mqttClient, cfg.Gateway.ID)
		mqttEvents.SetLogger(log.Component("mqtt"))
		events.add(mqttEvents)
	} else {
		log.Info("MQTT disabled")
	}

	// InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
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
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Audit database (optional)
	var auditRepo audit.Repository
	var db *database.DB
	if cfg.Database.Enabled {
		db, err = database.Open(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		if err := db.Migrate(ctx, migrations.FS); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		auditRepo = audit.NewSQLiteRepository(db.DB)
		log.Info("audit database ready", "path", db.Path())
	} else {
		log.Info("audit database disabled")
	}

	// Plugin registry and discovery
	discoverers, err := buildDiscoverers(cfg, mqttClient, log)
	if err != nil {
		return err
	}
	registry := plugin.NewRegistry(plugin.NewHTTPClientFactory(cfg.Plugins.Timeout), discoverers...)
	registry.SetLogger(log.Component("plugins"))
	registry.SetEventPublisher(events)
	defer func() {
		if closeErr := registry.Close(); closeErr != nil {
			log.Error("error closing plugin clients", "error", closeErr)
		}
	}()

	dir := directory.New(registry, cfg.Cache.MetaTTL)
	dir.SetLogger(log.Component("directory"))
	dir.SetEventPublisher(events)
	scan := directory.NewScanCache(dir)

	txns := transaction.New(cfg.Cache.TransactionTTL, cfg.Cache.TransactionCapacity)
	go txns.Run(ctx, cfg.Cache.TransactionSweep)

	router := command.NewRouter(registry, dir, scan, txns)
	router.SetLogger(log.Component("command"))
	router.SetEventPublisher(events)
	if influxClient != nil {
		router.SetReadingRecorder(influxRecorder{client: influxClient})
	}
	if auditRepo != nil {
		router.SetWriteAuditor(audit.NewRecorder(auditRepo))
	}

	// Managed plugin processes (optional)
	var supervisor *process.Supervisor
	if len(cfg.Plugins.Managed) > 0 {
		supervisor, err = startSupervisor(ctx, cfg, registry, dir, scan, events, log)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("stopping managed plugins")
			if stopErr := supervisor.Stop(); stopErr != nil {
				log.Error("error stopping managed plugins", "error", stopErr)
			}
		}()
	}

	// Initial discovery. Failures are retried on the next rebuild.
	if err := registry.Discover(ctx); err != nil {
		log.Warn("initial plugin discovery failed", "error", err)
	}
	go registry.Run(ctx, cfg.Plugins.DiscoveryInterval)

	// HTTP API
	hub := api.NewHub(cfg.WebSocket, log.Component("stream"))
	events.add(hub)

	deps := api.Deps{
		Config:   cfg,
		Logger:   log.Component("api"),
		Commands: router,
		Audit:    auditRepo,
		Hub:      hub,
		Version:  api.VersionInfo{Version: version, Commit: commit, BuildDate: date},
	}
	if supervisor != nil {
		deps.Processes = supervisor
	}
	server, err := api.New(deps)
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

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	return nil
}

// getConfigPath returns GATEWAY_CONFIG or the default path.
func getConfigPath() string {
	if path := os.Getenv("GATEWAY_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// buildDiscoverers returns the discovery strategies enabled in cfg.
func buildDiscoverers(cfg *config.Config, mqttClient *mqtt.Client, log *logging.Logger) ([]plugin.Discoverer, error) {
	var out []plugin.Discoverer

	if len(cfg.Plugins.TCP) > 0 {
		static, err := plugin.NewStaticDiscoverer(cfg.Plugins.TCP)
		if err != nil {
			return nil, fmt.Errorf("parsing plugin addresses: %w", err)
		}
		out = append(out, static)
	}

	if cfg.Plugins.Unix.Enabled {
		out = append(out, plugin.NewSocketDirDiscoverer(cfg.Plugins.Unix.Dir))
	}

	if c := cfg.Plugins.Cluster; c.Enabled {
		out = append(out, plugin.NewClusterDiscoverer(plugin.ClusterConfig{
			Endpoint:      c.Endpoint,
			LabelSelector: c.LabelSelector,
			PortName:      c.PortName,
			Token:         c.Token,
			Timeout:       cfg.Plugins.Timeout,
		}))
	}

	if cfg.Plugins.Announcements && mqttClient != nil {
		announce := plugin.NewAnnouncementDiscoverer(subscriber{client: mqttClient},
			mqtt.Topics{}.AllAnnouncements(), mqttClient.QoS())
		announce.SetLogger(log.Component("announce"))
		if err := announce.Start(); err != nil {
			// Discover subscribes again on its first pass
			log.Warn("subscribing to plugin announcements failed", "error", err)
		}
		out = append(out, announce)
	}

	if len(out) == 0 {
		log.Warn("no plugin discovery configured; plugins can only be registered through the API")
	}
	return out, nil
}

// startSupervisor launches the managed plugin binaries. Each start or exit
// invalidates discovery so sockets that appear or vanish are picked up by
// the next directory rebuild.
func startSupervisor(
	ctx context.Context,
	cfg *config.Config,
	registry *plugin.Registry,
	dir *directory.Directory,
	scan *directory.ScanCache,
	events *fanout,
	log *logging.Logger,
) (*process.Supervisor, error) {
	probe := func(ctx context.Context, name string) error {
		p, err := registry.GetByName(name)
		if err != nil {
			// Not discovered yet
			return nil
		}
		return p.Client().Test(ctx)
	}

	supervisor, err := process.NewSupervisor(cfg.Plugins.Managed, probe)
	if err != nil {
		return nil, fmt.Errorf("configuring managed plugins: %w", err)
	}
	supervisor.SetLogger(log.Component("process"))
	supervisor.SetEventPublisher(events)
	supervisor.SetOnChange(func() {
		registry.Reset()
		dir.Invalidate()
		scan.Invalidate()
	})

	if err := supervisor.Start(ctx); err != nil {
		// Plugins that did start keep running
		log.Error("some managed plugins failed to start", "error", err)
	}
	log.Info("managed plugins started", "count", supervisor.Len())
	return supervisor, nil
}

// healthCheck verifies the optional infrastructure that was enabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var errs []error
	if db != nil {
		if err := db.HealthCheck(ctx); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			errs = append(errs, fmt.Errorf("mqtt: %w", err))
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			errs = append(errs, fmt.Errorf("influxdb: %w", err))
		}
	}
	return errors.Join(errs...)
}
