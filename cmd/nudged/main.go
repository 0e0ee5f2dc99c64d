// Command nudged is the context-aware task-suggestion daemon: it loads
// the rule catalog and timing model from disk, serves the HTTP/JSON API,
// and optionally fans suggestions and feedback out over MQTT. Startup
// parses flags, takes the PID-file single-instance guard, wires every
// component, then blocks until a termination signal triggers a
// bounded graceful shutdown.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mirakessler/nudge/pkg"
	"github.com/mirakessler/nudge/pkg/api"
	"github.com/mirakessler/nudge/pkg/audit"
	"github.com/mirakessler/nudge/pkg/calendar"
	"github.com/mirakessler/nudge/pkg/config"
	"github.com/mirakessler/nudge/pkg/feedback"
	"github.com/mirakessler/nudge/pkg/inference"
	"github.com/mirakessler/nudge/pkg/location"
	"github.com/mirakessler/nudge/pkg/logx"
	"github.com/mirakessler/nudge/pkg/metrics"
	"github.com/mirakessler/nudge/pkg/mqtt"
	"github.com/mirakessler/nudge/pkg/persistence"
	"github.com/mirakessler/nudge/pkg/pidfile"
	"github.com/mirakessler/nudge/pkg/rules"
	"github.com/mirakessler/nudge/pkg/timing"
)

const (
	appName    = "nudged"
	appVersion = "0.1.0"
)

var (
	configPath = flag.String("config", "/etc/nudge/nudge.json", "Path to JSON configuration file")
	pidPath    = flag.String("pid-file", "/tmp/nudged.pid", "Path to PID file")
	logLevel   = flag.String("log-level", "", "Override configured log level (trace|debug|info|warn|error)")
	version    = flag.Bool("version", false, "Show version information")
	force      = flag.Bool("force", false, "Force start by removing a stale PID file")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("%s version %s\n", appName, appVersion)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	effectiveLevel := cfg.LogLevel
	if *logLevel != "" {
		effectiveLevel = *logLevel
	}
	logger := logx.NewLogger(effectiveLevel, appName)

	pf := pidfile.New(*pidPath)
	running, existingPID, err := pf.CheckRunning()
	if err != nil {
		logger.Error("failed to check for a running instance", "error", err.Error())
		os.Exit(1)
	}
	if running {
		if !*force {
			logger.Error("another instance is already running", "existing_pid", existingPID)
			fmt.Fprintf(os.Stderr, "Error: %s is already running with PID %d (use --force to override)\n", appName, existingPID)
			os.Exit(1)
		}
		logger.Warn("another instance appears to be running, forcing start", "existing_pid", existingPID)
		if err := pf.ForceRemove(); err != nil {
			logger.Error("failed to remove stale PID file", "error", err.Error())
			os.Exit(1)
		}
	}
	if err := pf.Create(); err != nil {
		logger.Error("failed to create PID file", "error", err.Error())
		os.Exit(1)
	}
	defer pf.Remove()

	logger.Info("starting nudged", "version", appVersion, "pid", os.Getpid())

	sqliteStore, err := persistence.Open(cfg.SQLitePath, logger)
	if err != nil {
		logger.Error("failed to open sqlite store", "error", err.Error(), "path", cfg.SQLitePath)
		os.Exit(1)
	}
	defer sqliteStore.Close()

	boltStore, err := persistence.OpenBolt(cfg.BoltPath)
	if err != nil {
		logger.Error("failed to open bolt store", "error", err.Error(), "path", cfg.BoltPath)
		os.Exit(1)
	}
	defer boltStore.Close()

	catalog := rules.NewCatalog()
	if err := hydrateCatalog(catalog, sqliteStore); err != nil {
		logger.Error("failed to hydrate rule catalog from storage", "error", err.Error())
		os.Exit(1)
	}

	optimizer := timing.New(logger.WithComponent("timing"))
	slots, err := sqliteStore.LoadTimingSlots()
	if err != nil {
		logger.Error("failed to load timing slots", "error", err.Error())
		os.Exit(1)
	}
	optimizer.Load(slots)
	logger.Info("rehydrated persisted state", "rules", len(catalog.List()), "timing_slots", len(slots))

	auditLog := audit.New(logger.WithComponent("audit"), 1000, "/var/log/nudge")

	var reg *metrics.Registry
	if cfg.MetricsEnabled {
		reg = metrics.New()
	}

	persister := compositePersister{sqlite: sqliteStore, bolt: boltStore}
	feedbackSvc := feedback.New(catalog, optimizer, persister, logger.WithComponent("feedback"))

	var travelEstimator calendar.TravelEstimator
	if cfg.MapsAPIKey != "" {
		est, err := calendar.NewGoogleMapsEstimator(cfg.MapsAPIKey, logx.NewPerformanceLogger(logger.WithComponent("calendar.maps")))
		if err != nil {
			logger.Error("failed to initialize google maps travel estimator, continuing without it", "error", err.Error())
		} else {
			travelEstimator = est
		}
	}
	ingester := calendar.New(catalog, travelEstimator, cfg.HomeAddress, logger.WithComponent("calendar"))

	locMgr := location.NewManager(nil, logger.WithComponent("location"))

	engine := inference.New(catalog, optimizer, locMgr, auditLog, logger.WithComponent("inference"), cfg.SearchNodeBudget)

	var publisher *mqtt.Publisher
	if cfg.MQTTEnabled {
		mqttCfg := &mqtt.Config{
			Broker:      cfg.MQTTBroker,
			Port:        cfg.MQTTPort,
			ClientID:    cfg.MQTTClientID,
			TopicPrefix: cfg.MQTTTopicPrefix,
			QoS:         1,
			Enabled:     true,
		}
		publisher = mqtt.NewPublisher(mqttCfg, logger.WithComponent("mqtt"), 10, 20)
		if err := publisher.Connect(); err != nil {
			logger.Error("failed to connect to mqtt broker, continuing without fan-out", "error", err.Error())
		}
		defer publisher.Disconnect()
	}

	var authHash []byte
	if cfg.APIKey != "" {
		authHash, err = api.HashAuthKey(cfg.APIKey)
		if err != nil {
			logger.Error("failed to hash configured api key", "error", err.Error())
			os.Exit(1)
		}
	}
	apiServer := api.New(catalog, engine, feedbackSvc, ingester, locMgr, auditLog, reg, publisher, &api.Config{
		Enabled:     true,
		Host:        cfg.APIHost,
		Port:        cfg.APIPort,
		AuthKeyHash: authHash,
	}, logger.WithComponent("api"))
	if err := apiServer.Start(); err != nil {
		logger.Error("failed to start api server", "error", err.Error())
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	logger.Info("received shutdown signal", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := apiServer.Stop(shutdownCtx); err != nil {
		logger.Error("error during api server shutdown", "error", err.Error())
	}

	logger.Info("nudged stopped")
}

// hydrateCatalog loads every persisted rule row into a fresh catalog,
// decoding each row's trigger_condition JSON.
func hydrateCatalog(catalog *rules.Catalog, store *persistence.Store) error {
	rows, err := store.LoadAllRules()
	if err != nil {
		return err
	}
	for _, row := range rows {
		var trigger map[string]any
		if err := json.Unmarshal([]byte(row.TriggerConditionJSON), &trigger); err != nil {
			return fmt.Errorf("decode trigger_condition for rule %d: %w", row.ID, err)
		}
		catalog.LoadRule(pkg.Rule{
			ID:               row.ID,
			Name:             row.Name,
			Description:      row.Description,
			TriggerCondition: trigger,
			Weight:           row.Weight,
			IsActive:         row.IsActive,
			Source:           pkg.RuleSource(row.Source),
			TaskType:         row.TaskType,
			CreatedAt:        row.CreatedAt,
			UpdatedAt:        row.UpdatedAt,
		})
	}
	return nil
}

// compositePersister satisfies feedback.Persister by splitting writes
// across the SQLite rule/timing tables and the bbolt feedback log.
type compositePersister struct {
	sqlite *persistence.Store
	bolt   *persistence.BoltStore
}

func (c compositePersister) SaveRuleWeight(ruleID int64, weight float64) error {
	return c.sqlite.SaveRuleWeight(ruleID, weight)
}

func (c compositePersister) SaveTimingSlot(slot pkg.TimingSlot) error {
	return c.sqlite.SaveTimingSlot(slot)
}

func (c compositePersister) AppendFeedback(rec pkg.FeedbackRecord) error {
	return c.bolt.AppendFeedback(rec)
}
