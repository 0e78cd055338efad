// SolarWatch Core receives telemetry from solar charge controllers, keeps
// monthly CSV logs and latest snapshots per device, and raises alerts when
// a device stops reporting.
//
// Usage:
//
//	solarwatch [serve]   run the HTTP API (and optional MQTT ingest, InfluxDB
//	                     mirror and in-process watchdog) until interrupted
//	solarwatch watchdog  evaluate every device once, print "OK sent=N" and exit
//
// The configuration file is read from SOLARWATCH_CONFIG, default
// configs/config.yaml.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/nerrad567/solarwatch-core/internal/api"
	"github.com/nerrad567/solarwatch-core/internal/device"
	"github.com/nerrad567/solarwatch-core/internal/infrastructure/config"
	"github.com/nerrad567/solarwatch-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/solarwatch-core/internal/infrastructure/logging"
	"github.com/nerrad567/solarwatch-core/internal/infrastructure/metrics"
	"github.com/nerrad567/solarwatch-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/solarwatch-core/internal/ingest"
	"github.com/nerrad567/solarwatch-core/internal/notify"
	"github.com/nerrad567/solarwatch-core/internal/recordstore"
	"github.com/nerrad567/solarwatch-core/internal/telemetry"
	"github.com/nerrad567/solarwatch-core/internal/timeseries"
	"github.com/nerrad567/solarwatch-core/internal/watchdog"
)

// Set at build time via -ldflags "-X main.version=...".
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run dispatches to a subcommand. stdout receives the command's result line.
func run(ctx context.Context, args []string, stdout io.Writer) error {
	cmd := "serve"
	if len(args) > 0 {
		cmd = args[0]
	}
	if cmd != "serve" && cmd != "watchdog" {
		return fmt.Errorf("unknown command %q (want serve or watchdog)", cmd)
	}

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log := logging.New(cfg.Logging, version)
	defer log.Sync()

	if cmd == "watchdog" {
		return runWatchdog(ctx, cfg, log, stdout)
	}
	log.Info("starting SolarWatch Core", "version", version, "commit", commit, "build_date", date, "config", configPath)
	return serve(ctx, cfg, log)
}

func getConfigPath() string {
	if path := os.Getenv("SOLARWATCH_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// core holds the storage-backed services shared by both commands.
type core struct {
	store      recordstore.Store
	registry   *device.Source
	series     *timeseries.Store
	snapshots  *telemetry.SnapshotStore
	contacts   *telemetry.ContactStore
	states     *watchdog.StateStore
	recipients *notify.RecipientStore
}

func openCore(ctx context.Context, cfg *config.Config, log *logging.Logger, m *metrics.Metrics) (*core, error) {
	registry, err := device.NewSource(cfg.Registry.DevicesFile)
	if err != nil {
		return nil, fmt.Errorf("loading device registry: %w", err)
	}
	registry.SetLogger(log.With("component", "registry"))

	store, err := recordstore.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening record store: %w", err)
	}
	log.Info("record store opened", "backend", cfg.Storage.Backend)

	return &core{
		store:      store,
		registry:   registry,
		series:     timeseries.NewStore(store, cfg.Location(), m),
		snapshots:  telemetry.NewSnapshotStore(store),
		contacts:   telemetry.NewContactStore(store),
		states:     watchdog.NewStateStore(store),
		recipients: notify.NewRecipientStore(store, cfg.Alerts.RecipientsKey),
	}, nil
}

func (c *core) close(log *logging.Logger) {
	if err := c.store.Close(); err != nil {
		log.Error("error closing record store", "error", err)
	}
}

func (c *core) newWatchdog(cfg *config.Config, notifier notify.Notifier, log *logging.Logger, m *metrics.Metrics) *watchdog.Service {
	return watchdog.NewService(watchdog.Deps{
		Config: watchdog.Config{
			MinGraceSec:     cfg.Watchdog.MinGraceSec,
			DefaultGraceSec: cfg.Watchdog.DefaultGraceSec,
			SubjectPrefix:   cfg.Alerts.SubjectPrefix,
		},
		Registry:   c.registry,
		Snapshots:  c.snapshots,
		States:     c.states,
		Recipients: c.recipients,
		Notifier:   notifier,
		Location:   cfg.Location(),
		Journal:    watchdog.NewJournal(cfg.Storage.LogDir, cfg.Location()),
		Logger:     log,
		Metrics:    m,
	})
}

// buildNotifier combines the enabled alert transports. With none enabled
// alerts go to the service log.
func buildNotifier(cfg *config.Config, mqttClient *mqtt.Client, log *logging.Logger) (notify.Notifier, error) {
	var fan notify.Fanout
	if cfg.Alerts.SMTP.Enabled {
		smtp, err := notify.NewSMTP(cfg.Alerts.SMTP, log)
		if err != nil {
			return nil, err
		}
		fan = append(fan, smtp)
	}
	if cfg.Alerts.MQTT.Enabled && mqttClient != nil {
		fan = append(fan, notify.NewMQTT(mqttClient, log))
	}

	switch len(fan) {
	case 0:
		log.Warn("no alert transport enabled, alerts will only be logged")
		return notify.NewLog(log), nil
	case 1:
		return fan[0], nil
	default:
		return fan, nil
	}
}

func connectMQTT(cfg *config.Config, log *logging.Logger) (*mqtt.Client, error) {
	if !cfg.MQTT.Enabled {
		return nil, nil
	}
	client, err := mqtt.Connect(cfg.MQTT, log.With("component", "mqtt"))
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)
	return client, nil
}

// runWatchdog performs one watchdog pass for an external scheduler.
func runWatchdog(ctx context.Context, cfg *config.Config, log *logging.Logger, stdout io.Writer) error {
	c, err := openCore(ctx, cfg, log, nil)
	if err != nil {
		return err
	}
	defer c.close(log)

	var mqttClient *mqtt.Client
	if cfg.Alerts.MQTT.Enabled {
		if mqttClient, err = connectMQTT(cfg, log); err != nil {
			return err
		}
		defer mqttClient.Close() //nolint:errcheck // shutdown
	}
	notifier, err := buildNotifier(cfg, mqttClient, log)
	if err != nil {
		return fmt.Errorf("building notifier: %w", err)
	}

	sum, err := c.newWatchdog(cfg, notifier, log, nil).RunOnce(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("watchdog run: %w", err)
	}
	fmt.Fprintf(stdout, "OK sent=%d\n", sum.AlertsSent)
	return nil
}

// serve runs every long-lived component until ctx is cancelled.
func serve(ctx context.Context, cfg *config.Config, log *logging.Logger) error {
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(promReg)

	c, err := openCore(ctx, cfg, log, m)
	if err != nil {
		return err
	}
	defer c.close(log)

	checks := map[string]api.HealthCheck{"storage": c.store.HealthCheck}

	var mirror ingest.Mirror
	influxClient, err := influxdb.Connect(cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB mirror disabled")
	case err != nil:
		log.Warn("InfluxDB unavailable, continuing without mirror", "error", err)
	default:
		defer influxClient.Close() //nolint:errcheck // shutdown
		influxClient.SetOnError(func(err error) {
			m.MirrorFailure()
			log.Warn("InfluxDB write failed", "error", err)
		})
		mirror = influxClient
		checks["influxdb"] = influxClient.HealthCheck
		log.Info("InfluxDB mirror connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	mqttClient, err := connectMQTT(cfg, log)
	if err != nil {
		return err
	}
	if mqttClient != nil {
		defer func() {
			log.Info("disconnecting from MQTT")
			mqttClient.Close() //nolint:errcheck // shutdown
		}()
		checks["mqtt"] = mqttClient.HealthCheck
	}

	ingestSvc := ingest.NewService(ingest.Deps{
		Config: ingest.Config{
			ProtocolVersion:    cfg.Ingest.ProtocolVersion,
			ClockSkewTolerance: cfg.Ingest.ClockSkewTolerance,
		},
		Registry:  c.registry,
		Series:    c.series,
		Snapshots: c.snapshots,
		Contacts:  c.contacts,
		Mirror:    mirror,
		Logger:    log,
		Metrics:   m,
	})

	if cfg.MQTT.IngestEnabled {
		topic := mqtt.Topics{}.AllTelemetry()
		if err := mqttClient.Subscribe(topic, byte(cfg.MQTT.QoS), ingestSvc.MQTTHandler(ctx, mqtt.TopicPrefixTelemetry)); err != nil {
			return fmt.Errorf("subscribing to telemetry: %w", err)
		}
		log.Info("MQTT ingest enabled", "topic", topic)
	}

	notifier, err := buildNotifier(cfg, mqttClient, log)
	if err != nil {
		return fmt.Errorf("building notifier: %w", err)
	}
	if cfg.Watchdog.Interval > 0 {
		wd := c.newWatchdog(cfg, notifier, log, m)
		go wd.Run(ctx, cfg.Watchdog.Interval)
		log.Info("in-process watchdog scheduled", "interval", cfg.Watchdog.Interval)
	}

	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	srv, err := api.New(api.Deps{
		Config:       cfg.API,
		MetricsPath:  metricsPath,
		MaxBodyBytes: cfg.Ingest.MaxBodyBytes,
		Logger:       log,
		Metrics:      m,
		Ingest:       ingestSvc,
		Registry:     c.registry,
		Series:       c.series,
		Snapshots:    c.snapshots,
		States:       c.states,
		Recipients:   c.recipients,
		Checks:       checks,
		Version:      version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if err := srv.Close(); err != nil {
			log.Error("error closing API server", "error", err)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")
	return nil
}
