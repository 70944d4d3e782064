// Live Logic Core - Workstation Orchestration Daemon
//
// This is the main entry point for the Live Logic Core application.
// Live Logic is a reliability layer for driving an Ableton Live
// workstation over OSC:
//   - Verified write-then-read parameter control
//   - Four-phase device-chain pipeline with durable run history
//   - Crash detection and bounded session recovery
//   - Optional workstation process supervision
//
// Plans arrive as JSON on the MQTT request topic and are executed one
// at a time; results are published per run and recorded in SQLite and
// InfluxDB.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	_ "github.com/nerrad567/live-logic-core/migrations"

	"github.com/nerrad567/live-logic-core/internal/bridges/osc"
	"github.com/nerrad567/live-logic-core/internal/catalog"
	"github.com/nerrad567/live-logic-core/internal/infrastructure/config"
	"github.com/nerrad567/live-logic-core/internal/infrastructure/database"
	"github.com/nerrad567/live-logic-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/live-logic-core/internal/infrastructure/logging"
	"github.com/nerrad567/live-logic-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/live-logic-core/internal/live"
	"github.com/nerrad567/live-logic-core/internal/param"
	"github.com/nerrad567/live-logic-core/internal/pipeline"
	"github.com/nerrad567/live-logic-core/internal/recovery"
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

// intakeQueueSize bounds how many plans may wait behind the one being
// executed. Plans run serially; a deep queue only hides a stuck run.
const intakeQueueSize = 16

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
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Live Logic Core",
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

	// Connect to MQTT broker. Without it the daemon still supervises the
	// workstation, but has no plan intake and no health reporting.
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
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mqttClient.SetLogger(log.WithComponent("mqtt"))
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
	} else {
		log.Warn("MQTT disabled; plan intake and health reporting unavailable")
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Open the OSC command channel to the workstation bridge
	oscClient, err := osc.Connect(cfg.OSC)
	if err != nil {
		return fmt.Errorf("opening OSC transport: %w", err)
	}
	defer func() {
		log.Info("closing OSC transport")
		if closeErr := oscClient.Close(); closeErr != nil {
			log.Error("error closing OSC transport", "error", closeErr)
		}
	}()
	oscClient.SetLogger(log.WithComponent("osc"))
	log.Info("OSC transport open",
		"remote", oscClient.RemoteAddr().String(),
		"local", oscClient.LocalAddr().String(),
	)

	// The loader channel talks to the device-loader remote script
	loader := osc.NewLoader(cfg.OSC)
	loader.SetLogger(log.WithComponent("loader"))

	// Device metadata catalog, optionally extended by an overlay file
	cat, err := catalog.Load(cfg.Catalog.OverlayPath)
	if err != nil {
		return fmt.Errorf("loading device catalog: %w", err)
	}
	log.Info("device catalog loaded",
		"devices", len(cat.KnownDevices()),
		"overlay", cfg.Catalog.OverlayPath,
	)

	// Parameter controller: discovery, caching, curves, verified writes
	controller := param.NewController(oscClient, loader, cat, cfg.Params, log.WithComponent("param"))

	// Pipeline executor with durable run history and metrics
	var metricsWriter pipeline.MetricsWriter
	if influxClient != nil {
		metricsWriter = influxClient
	}
	pipelineLog := log.WithComponent("pipeline")
	metrics := pipeline.NewMetrics(cfg.Pipeline.HistorySize, metricsWriter, pipelineLog)
	runStore := pipeline.NewSQLiteRunStore(db)

	topics := mqtt.Topics{}
	var publisher pipeline.Publisher
	if mqttClient != nil {
		publisher = &resultPublisher{client: mqttClient, qos: byte(cfg.MQTT.QoS), log: log}
	}
	executor := pipeline.NewExecutor(controller, oscClient, metrics, runStore, publisher, cfg.Pipeline, pipelineLog)

	// Health reporter is created before the recovery manager so state
	// transitions can feed its payloads.
	var healthReporter *osc.HealthReporter
	if mqttClient != nil {
		healthReporter = osc.NewHealthReporter(osc.HealthReporterConfig{
			Component: "osc",
			Version:   version,
			Topic:     topics.Health("osc"),
			Interval:  cfg.MQTT.GetHealthInterval(),
			Publisher: mqttClient,
			Client:    oscClient,
			Loader:    loader,
			Logger:    log.WithComponent("health"),
		})
	}

	// Crash detection and bounded session recovery
	recoveryMgr := recovery.NewManager(recovery.Config{
		MaxAttempts:      cfg.Recovery.MaxAttempts,
		Cooldown:         cfg.Recovery.GetCooldown(),
		FailureThreshold: cfg.Recovery.FailureThreshold,
		ExtraIndicators:  cfg.Recovery.ExtraIndicators,
	}, oscClient)
	recoveryMgr.SetLogger(log.WithComponent("recovery"))
	recoveryMgr.SetSnapshotStore(recovery.NewSQLiteSnapshotStore(db))
	recoveryMgr.OnRecovered(func(context.Context) error {
		// Device indices and parameter layouts may have shifted across a
		// workstation restart; force rediscovery.
		controller.Cache().Clear()
		log.Info("device cache cleared after recovery")
		return nil
	})
	recoveryMgr.SetOnStateChange(func(st recovery.Status) {
		log.Info("recovery state changed",
			"state", st.State,
			"consecutive_failures", st.ConsecutiveFailures,
			"attempts", st.RecoveryAttempts,
		)
		if healthReporter != nil {
			healthReporter.SetRecoveryState(string(st.State))
		}
		if influxClient != nil {
			influxClient.WriteRecoveryEvent(string(st.State), st.RecoveryAttempts, st.State == recovery.StateHealthy)
		}
		if mqttClient != nil {
			payload, marshalErr := json.Marshal(st)
			if marshalErr != nil {
				return
			}
			if pubErr := mqttClient.PublishRetained(topics.RecoveryState(), payload); pubErr != nil {
				log.Warn("recovery state publish failed", "error", pubErr)
			}
		}
	})

	// Workstation supervisor (launch, adopt, or track an external instance)
	liveManager, err := startWorkstation(ctx, cfg, oscClient, mqttClient, log)
	if err != nil {
		return fmt.Errorf("starting workstation supervisor: %w", err)
	}
	defer func() {
		log.Info("stopping workstation supervisor")
		if stopErr := liveManager.Stop(); stopErr != nil {
			log.Error("error stopping workstation", "error", stopErr)
		}
	}()

	if healthReporter != nil {
		healthReporter.Start(ctx)
		defer healthReporter.Stop()
	}

	// Plan intake: one worker drains the queue so runs never interleave
	var wg sync.WaitGroup
	if mqttClient != nil {
		planCh := make(chan pipeline.Plan, intakeQueueSize)

		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case plan := <-planCh:
					runPlan(ctx, recoveryMgr, executor, plan, log)
				}
			}
		}()

		subErr := mqttClient.Subscribe(topics.PipelineRequest(), byte(cfg.MQTT.QoS), func(_ string, payload []byte) error {
			var plan pipeline.Plan
			if decodeErr := json.Unmarshal(payload, &plan); decodeErr != nil {
				return fmt.Errorf("decoding plan: %w", decodeErr)
			}
			select {
			case planCh <- plan:
				return nil
			default:
				return fmt.Errorf("plan intake queue full (%d pending), dropping request", intakeQueueSize)
			}
		})
		if subErr != nil {
			return fmt.Errorf("subscribing to plan intake: %w", subErr)
		}
		log.Info("plan intake ready", "topic", topics.PipelineRequest())
	}

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Let an in-flight run observe the cancelled context and finish
	wg.Wait()

	// Deferred Close() calls will run in reverse order:
	// 1. Health reporter
	// 2. Workstation supervisor
	// 3. OSC transport
	// 4. InfluxDB (if enabled)
	// 5. MQTT (if enabled)
	// 6. Database

	log.Info("Live Logic Core stopped")
	return nil
}

// runPlan executes one plan under crash recovery. The executor absorbs
// per-step failures into the run result, so the only errors surfaced
// here are guardrail violations and workstation link faults; the latter
// trigger recovery and a replay, which is safe because plans skip
// parameters already at their targets.
func runPlan(ctx context.Context, recoveryMgr *recovery.Manager, executor *pipeline.Executor, plan pipeline.Plan, log *logging.Logger) {
	err := recoveryMgr.ExecuteWithRecovery(ctx, "pipeline run", func(ctx context.Context) error {
		result, execErr := executor.Execute(ctx, plan)
		if execErr != nil {
			return execErr
		}
		if indicator, ok := recoveryMgr.FirstCrashIndicator(result.Errors...); ok {
			return fmt.Errorf("workstation link fault during run %s: %s", result.RunID, indicator)
		}
		return nil
	})
	if err != nil {
		log.Error("pipeline run failed",
			"track", plan.TrackIndex,
			"devices", len(plan.Devices),
			"error", err,
		)
	}
}

// getConfigPath returns the configuration file path.
// Uses LIVELOGIC_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("LIVELOGIC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check (may be nil if disabled)
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	// The OSC transport is datagram-based; liveness is the recovery
	// manager's concern, not a startup gate. A daemon that boots while
	// the workstation is still loading must come up anyway.

	return nil
}

// startWorkstation initialises the workstation supervisor and starts or
// adopts the workstation process.
//
// Parameters:
//   - ctx: Context for startup/cancellation
//   - cfg: Application configuration
//   - oscClient: OSC client used for readiness and health probes
//   - mqttClient: MQTT client for lifecycle events (may be nil)
//   - log: Logger instance
//
// Returns:
//   - *live.Manager: Running workstation manager
//   - error: If the workstation fails to start or become ready
func startWorkstation(ctx context.Context, cfg *config.Config, oscClient *osc.Client, mqttClient *mqtt.Client, log *logging.Logger) (*live.Manager, error) {
	liveCfg := live.Config{
		Managed:             cfg.Live.Managed,
		Binary:              cfg.Live.Binary,
		ProjectPath:         cfg.Live.ProjectPath,
		StartupWait:         cfg.Live.GetStartupWait(),
		RestartDelay:        cfg.Live.GetRestartDelay(),
		MaxRestartAttempts:  cfg.Live.MaxRestartAttempts,
		HealthCheckInterval: cfg.Live.GetHealthCheckInterval(),
	}

	manager, err := live.NewManager(liveCfg, oscClient)
	if err != nil {
		return nil, fmt.Errorf("creating workstation manager: %w", err)
	}
	manager.SetLogger(log.WithComponent("live"))

	topics := mqtt.Topics{}
	manager.SetOnEvent(func(ev live.Event) {
		log.Info("workstation event", "state", ev.State, "pid", ev.PID, "error", ev.Error)
		if mqttClient == nil {
			return
		}
		payload, marshalErr := json.Marshal(ev)
		if marshalErr != nil {
			return
		}
		if pubErr := mqttClient.PublishRetained(topics.WorkstationState(), payload); pubErr != nil {
			log.Warn("workstation event publish failed", "error", pubErr)
		}
	})

	if err := manager.Start(ctx); err != nil {
		return nil, err
	}

	log.Info("workstation supervisor started",
		"managed", manager.IsManaged(),
		"status", manager.Stats().Status,
	)

	return manager, nil
}

// resultPublisher pushes completed run results onto the message bus.
// The executor calls PublishResult synchronously at the end of each
// run, so the publish itself happens on its own goroutine.
type resultPublisher struct {
	client *mqtt.Client
	qos    byte
	log    *logging.Logger
}

// PublishResult implements pipeline.Publisher.
func (p *resultPublisher) PublishResult(result pipeline.Result) {
	payload, err := json.Marshal(result)
	if err != nil {
		p.log.Error("result payload marshal failed", "run_id", result.RunID, "error", err)
		return
	}
	topic := mqtt.Topics{}.PipelineResult(result.RunID)
	go func() {
		if err := p.client.Publish(topic, payload, p.qos, false); err != nil {
			p.log.Error("result publish failed", "run_id", result.RunID, "topic", topic, "error", err)
		}
	}()
}
