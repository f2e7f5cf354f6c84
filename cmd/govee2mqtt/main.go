// govee2mqtt bridges Govee cloud-connected lights to an MQTT broker.
//
// It polls the Govee developer API for devices and their state, publishes
// changes as retained MQTT messages (with Home Assistant discovery), and
// forwards commands received on <prefix>/<id>/set back to the API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/dlashua/govee2mqtt/internal/api"
	"github.com/dlashua/govee2mqtt/internal/audit"
	"github.com/dlashua/govee2mqtt/internal/bridge"
	"github.com/dlashua/govee2mqtt/internal/device"
	"github.com/dlashua/govee2mqtt/internal/govee"
	"github.com/dlashua/govee2mqtt/internal/infrastructure/config"
	"github.com/dlashua/govee2mqtt/internal/infrastructure/database"
	"github.com/dlashua/govee2mqtt/internal/infrastructure/influxdb"
	"github.com/dlashua/govee2mqtt/internal/infrastructure/logging"
	"github.com/dlashua/govee2mqtt/internal/infrastructure/mqtt"
	"github.com/dlashua/govee2mqtt/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "config.yaml"

func main() {
	configFlag := flag.String("config", "", "path to the YAML configuration file")
	flag.Parse()

	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, getConfigPath(*configFlag)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Returns:
//   - error: nil on signal-driven shutdown, or the error that ended the bridge
func run(ctx context.Context, configPath string) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting govee2mqtt",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"level", cfg.Logging.Level,
		"api_key", logging.Redact(cfg.Govee.APIKey),
	)

	// Connect to InfluxDB (optional)
	var telemetry bridge.Telemetry
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		var influxErr error
		influxClient, influxErr = influxdb.Connect(cfg.InfluxDB)
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
		telemetry = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Open the command journal (optional)
	var journal audit.Repository
	checks := make(map[string]api.HealthChecker)
	if cfg.Database.Enabled {
		db, dbErr := database.Open(cfg.Database)
		if dbErr != nil {
			return fmt.Errorf("opening database: %w", dbErr)
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
		journal = audit.NewSQLiteRepository(db.DB)
		checks["database"] = db
		log.Info("command journal enabled", "path", db.Path())
	}

	vendor, err := govee.NewClient(cfg.Govee, log)
	if err != nil {
		return fmt.Errorf("creating Govee client: %w", err)
	}

	registry := device.NewRegistry()
	registry.SetLogger(log)
	boosted := device.NewBoostSet()
	metrics := bridge.NewMetrics()

	// The MQTT client is created by the bridge's connector and closed
	// after the bridge has stopped.
	var mqttClient *mqtt.Client
	defer func() {
		if mqttClient == nil {
			return
		}
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()

	b, err := bridge.NewBridge(bridge.BridgeOptions{
		Config: cfg,
		Connect: func(context.Context) (bridge.MQTTClient, error) {
			client, connErr := mqtt.Connect(cfg.MQTT)
			if connErr != nil {
				return nil, connErr
			}
			client.SetLogger(log)
			mqttClient = client
			log.Info("MQTT connected",
				"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			)
			return &mqttBridgeAdapter{client: client}, nil
		},
		Vendor:    vendor,
		Registry:  registry,
		Boosted:   boosted,
		Metrics:   metrics,
		Telemetry: telemetry,
		Journal:   journal,
		Logger:    log,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}
	vendor.SetObserver(b.ObserveVendorCall)

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name:        "govee2mqtt_build_info",
			Help:        "Build information",
			ConstLabels: prometheus.Labels{"version": version, "commit": commit},
		}, func() float64 { return 1 }),
	)
	promReg.MustRegister(metrics.Collectors()...)
	if guard := vendor.RateGuard(); guard != nil {
		promReg.MustRegister(guard.Collectors()...)
	}
	if influxClient != nil {
		promReg.MustRegister(influxCollectors(influxClient)...)
	}

	if err := b.Start(ctx); err != nil {
		return fmt.Errorf("starting bridge: %w", err)
	}
	defer b.Stop()

	// The connector has run by the time Start returns.
	checks["mqtt"] = api.HealthCheckFunc(func(ctx context.Context) error {
		if mqttClient == nil {
			return mqtt.ErrNotConnected
		}
		return mqttClient.HealthCheck(ctx)
	})

	if cfg.API.Enabled {
		srv, apiErr := api.New(api.Deps{
			Config:   cfg.API,
			Logger:   log,
			Bridge:   b,
			Registry: registry,
			Boosted:  boosted,
			Journal:  journal,
			Checks:   checks,
			Gatherer: promReg,
			Version:  version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := srv.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, cleaning up")
	case <-b.Done():
		if err := b.Err(); err != nil {
			return fmt.Errorf("bridge terminated: %w", err)
		}
	}

	// Deferred calls run in reverse order:
	// 1. API server (if enabled)
	// 2. Bridge
	// 3. MQTT
	// 4. Database (if enabled)
	// 5. InfluxDB (if enabled)

	log.Info("govee2mqtt stopped")
	return nil
}

// getConfigPath returns the configuration file path: the -config flag,
// then GOVEE2MQTT_CONFIG, then the default.
func getConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if path := os.Getenv("GOVEE2MQTT_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// influxCollectors exposes the telemetry sink's write counters.
func influxCollectors(c *influxdb.Client) []prometheus.Collector {
	labels := prometheus.Labels{"bucket": c.Bucket()}
	return []prometheus.Collector{
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name:        "govee2mqtt_influxdb_points_total",
			Help:        "Telemetry points handed to the InfluxDB write API.",
			ConstLabels: labels,
		}, func() float64 { return float64(c.Stats().Points) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name:        "govee2mqtt_influxdb_write_errors_total",
			Help:        "Asynchronous InfluxDB write failures.",
			ConstLabels: labels,
		}, func() float64 { return float64(c.Stats().Errors) }),
	}
}

// mqttBridgeAdapter adapts the infrastructure MQTT client to the bridge's
// MQTTClient interface. The difference is the Subscribe handler signature:
//   - Infrastructure mqtt: func(topic, payload []byte) error
//   - Bridge expects: func(topic, payload []byte)
type mqttBridgeAdapter struct {
	client *mqtt.Client
}

// Publish implements bridge.MQTTClient.
func (a *mqttBridgeAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

// Subscribe implements bridge.MQTTClient.
func (a *mqttBridgeAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	return a.client.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

// Unsubscribe implements bridge.MQTTClient.
func (a *mqttBridgeAdapter) Unsubscribe(topic string) error {
	return a.client.Unsubscribe(topic)
}

// IsConnected implements bridge.MQTTClient.
func (a *mqttBridgeAdapter) IsConnected() bool {
	return a.client.IsConnected()
}

// SetOnConnect implements bridge.MQTTClient.
func (a *mqttBridgeAdapter) SetOnConnect(callback func()) {
	a.client.SetOnConnect(callback)
}

// SetOnDisconnect implements bridge.MQTTClient.
func (a *mqttBridgeAdapter) SetOnDisconnect(callback func(err error)) {
	a.client.SetOnDisconnect(callback)
}
