package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Live Logic Core.
// Values come from YAML, with LIVELOGIC_* environment variables layered on top.
type Config struct {
	System   SystemConfig   `yaml:"system"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
	OSC      OSCConfig      `yaml:"osc"`
	Params   ParamsConfig   `yaml:"params"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Recovery RecoveryConfig `yaml:"recovery"`
	Live     LiveConfig     `yaml:"live"`
	Catalog  CatalogConfig  `yaml:"catalog"`
}

// SystemConfig identifies this control-plane instance.
type SystemConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig locates the SQLite state store.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig groups broker endpoint, credentials, and reconnect behaviour.
type MQTTConfig struct {
	Enabled          bool                `yaml:"enabled"`
	Broker           MQTTBrokerConfig    `yaml:"broker"`
	Auth             MQTTAuthConfig      `yaml:"auth"`
	QoS              int                 `yaml:"qos"`
	Reconnect        MQTTReconnectConfig `yaml:"reconnect"`
	HealthIntervalMS int                 `yaml:"health_interval_ms"`
}

// MQTTBrokerConfig identifies the broker endpoint and this client.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig carries optional broker credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig shapes the automatic reconnect backoff.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig configures the optional telemetry export.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig selects log level, format, and destination.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// OSCConfig contains the workstation OSC transport settings.
//
// The command channel talks to the AbletonOSC-compatible bridge; the loader
// channel talks to the companion device-loader remote script. Both use UDP
// against the same host.
type OSCConfig struct {
	Host            string       `yaml:"host"`
	CommandPort     int          `yaml:"command_port"`
	ReplyPort       int          `yaml:"reply_port"`
	LoaderPort      int          `yaml:"loader_port"`
	LoaderReplyPort int          `yaml:"loader_reply_port"`
	ReadBufferSize  int          `yaml:"read_buffer_size"`
	QueryTimeoutMS  int          `yaml:"query_timeout_ms"`
	LoaderTimeoutMS int          `yaml:"loader_timeout_ms"`
	Verify          VerifyConfig `yaml:"verify"`
}

// VerifyConfig tunes the verified-set read-back loop.
type VerifyConfig struct {
	Retries     int     `yaml:"retries"`
	BaseDelayMS int     `yaml:"base_delay_ms"`
	MaxDelayMS  int     `yaml:"max_delay_ms"`
	Tolerance   float64 `yaml:"tolerance"`
}

// ParamsConfig tunes device readiness polling and load settling.
type ParamsConfig struct {
	ReadyTimeoutMS      int `yaml:"ready_timeout_ms"`
	ReadyPollIntervalMS int `yaml:"ready_poll_interval_ms"`
	LoadSettleDelayMS   int `yaml:"load_settle_delay_ms"`
}

// PipelineConfig tunes the plan executor.
type PipelineConfig struct {
	MaxDevices           int     `yaml:"max_devices"`
	AdvisoryBudget       int     `yaml:"advisory_budget"`
	AdvisoryRetryBudget  int     `yaml:"advisory_retry_budget"`
	IdempotencyTolerance float64 `yaml:"idempotency_tolerance"`
	InterParamDelayMS    int     `yaml:"inter_param_delay_ms"`
	ClearSettleDelayMS   int     `yaml:"clear_settle_delay_ms"`
	HistorySize          int     `yaml:"history_size"`

	// DeviceBlacklist maps device names that must never be loaded to an
	// ordered list of preferred substitutes, consulted before the built-in
	// keyword fallback table.
	DeviceBlacklist map[string][]string `yaml:"device_blacklist"`
}

// RecoveryConfig tunes the crash-recovery state machine.
type RecoveryConfig struct {
	MaxAttempts      int `yaml:"max_attempts"`
	CooldownMS       int `yaml:"cooldown_ms"`
	FailureThreshold int `yaml:"failure_threshold"`

	// ExtraIndicators extends the built-in crash-indicator substring list.
	ExtraIndicators []string `yaml:"extra_indicators"`
}

// LiveConfig governs supervision of the workstation process itself.
type LiveConfig struct {
	// Managed indicates whether Live Logic should manage the workstation
	// lifecycle. If false, the workstation is expected to be running
	// externally.
	Managed bool `yaml:"managed"`

	// Binary is the path to the workstation executable.
	Binary string `yaml:"binary"`

	// ProjectPath is an optional project file to open on launch.
	ProjectPath string `yaml:"project_path"`

	StartupWaitMS         int `yaml:"startup_wait_ms"`
	RestartDelayMS        int `yaml:"restart_delay_ms"`
	MaxRestartAttempts    int `yaml:"max_restart_attempts"`
	HealthCheckIntervalMS int `yaml:"health_check_interval_ms"`
}

// CatalogConfig points at overrides for the device-metadata catalog.
type CatalogConfig struct {
	// OverlayPath optionally points to a YAML file whose device profiles
	// and aliases extend or override the built-in catalog.
	OverlayPath string `yaml:"overlay_path"`
}

// Load builds the runtime configuration from the YAML file at path.
//
// Three layers apply, later ones winning: built-in defaults, the YAML
// file, then LIVELOGIC_SECTION_KEY environment variables (for example
// LIVELOGIC_DATABASE_PATH or LIVELOGIC_OSC_HOST). The merged result is
// validated before it is returned, so a non-nil Config is always usable.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns the built-in baseline every deployment starts from.
func defaultConfig() *Config {
	return &Config{
		System: SystemConfig{
			ID:   "livelogic-001",
			Name: "Live Logic",
		},
		Database: DatabaseConfig{
			Path:        "./data/livelogic.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Enabled: true,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "livelogic-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
			HealthIntervalMS: 30000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		OSC: OSCConfig{
			Host:            "127.0.0.1",
			CommandPort:     11000,
			ReplyPort:       11001,
			LoaderPort:      11002,
			LoaderReplyPort: 11003,
			ReadBufferSize:  65535,
			QueryTimeoutMS:  2000,
			LoaderTimeoutMS: 5000,
			Verify: VerifyConfig{
				Retries:     3,
				BaseDelayMS: 100,
				MaxDelayMS:  2000,
				Tolerance:   0.02,
			},
		},
		Params: ParamsConfig{
			ReadyTimeoutMS:      8000,
			ReadyPollIntervalMS: 150,
			LoadSettleDelayMS:   500,
		},
		Pipeline: PipelineConfig{
			MaxDevices:           16,
			AdvisoryBudget:       1,
			AdvisoryRetryBudget:  2,
			IdempotencyTolerance: 0.02,
			InterParamDelayMS:    50,
			ClearSettleDelayMS:   100,
			HistorySize:          100,
		},
		Recovery: RecoveryConfig{
			MaxAttempts:      3,
			CooldownMS:       5000,
			FailureThreshold: 3,
		},
		Live: LiveConfig{
			Managed:               false,
			StartupWaitMS:         15000,
			RestartDelayMS:        5000,
			MaxRestartAttempts:    3,
			HealthCheckIntervalMS: 30000,
		},
	}
}

// applyEnvOverrides maps LIVELOGIC_SECTION_KEY environment variables onto
// their config fields. Only secrets and deployment-specific endpoints are
// exposed this way; tuning knobs stay in the YAML file.
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("LIVELOGIC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("LIVELOGIC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("LIVELOGIC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("LIVELOGIC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// OSC transport
	if v := os.Getenv("LIVELOGIC_OSC_HOST"); v != "" {
		cfg.OSC.Host = v
	}

	// InfluxDB
	if v := os.Getenv("LIVELOGIC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Workstation binary
	if v := os.Getenv("LIVELOGIC_LIVE_BINARY"); v != "" {
		cfg.Live.Binary = v
	}
}

// Validate rejects configurations that cannot produce a working daemon:
// missing identity, unusable ports, or zeroed retry budgets.
func (c *Config) Validate() error {
	var errs []string

	// System validation
	if c.System.ID == "" {
		errs = append(errs, "system.id is required")
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// OSC validation
	for _, p := range []struct {
		name string
		port int
	}{
		{"osc.command_port", c.OSC.CommandPort},
		{"osc.reply_port", c.OSC.ReplyPort},
		{"osc.loader_port", c.OSC.LoaderPort},
		{"osc.loader_reply_port", c.OSC.LoaderReplyPort},
	} {
		if p.port < 1 || p.port > 65535 {
			errs = append(errs, p.name+" must be between 1 and 65535")
		}
	}
	if c.OSC.CommandPort == c.OSC.ReplyPort {
		errs = append(errs, "osc.command_port and osc.reply_port must differ")
	}
	if c.OSC.Verify.Retries < 1 {
		errs = append(errs, "osc.verify.retries must be at least 1")
	}
	if c.OSC.Verify.Tolerance <= 0 {
		errs = append(errs, "osc.verify.tolerance must be positive")
	}

	// Pipeline validation
	if c.Pipeline.MaxDevices < 1 {
		errs = append(errs, "pipeline.max_devices must be at least 1")
	}
	if c.Pipeline.AdvisoryBudget < 1 {
		errs = append(errs, "pipeline.advisory_budget must be at least 1")
	}
	if c.Pipeline.IdempotencyTolerance <= 0 {
		errs = append(errs, "pipeline.idempotency_tolerance must be positive")
	}

	// Recovery validation
	if c.Recovery.MaxAttempts < 1 {
		errs = append(errs, "recovery.max_attempts must be at least 1")
	}
	if c.Recovery.FailureThreshold < 1 {
		errs = append(errs, "recovery.failure_threshold must be at least 1")
	}

	// Workstation management requires a binary to launch
	if c.Live.Managed && c.Live.Binary == "" {
		errs = append(errs, "live.binary is required when live.managed is true")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetQueryTimeout returns the OSC query timeout as a Duration.
func (o OSCConfig) GetQueryTimeout() time.Duration {
	return time.Duration(o.QueryTimeoutMS) * time.Millisecond
}

// GetLoaderTimeout returns the loader ack timeout as a Duration.
func (o OSCConfig) GetLoaderTimeout() time.Duration {
	return time.Duration(o.LoaderTimeoutMS) * time.Millisecond
}

// GetBaseDelay returns the verify backoff base delay as a Duration.
func (v VerifyConfig) GetBaseDelay() time.Duration {
	return time.Duration(v.BaseDelayMS) * time.Millisecond
}

// GetMaxDelay returns the verify backoff cap as a Duration.
func (v VerifyConfig) GetMaxDelay() time.Duration {
	return time.Duration(v.MaxDelayMS) * time.Millisecond
}

// GetReadyTimeout returns the device readiness timeout as a Duration.
func (p ParamsConfig) GetReadyTimeout() time.Duration {
	return time.Duration(p.ReadyTimeoutMS) * time.Millisecond
}

// GetReadyPollInterval returns the readiness poll interval as a Duration.
func (p ParamsConfig) GetReadyPollInterval() time.Duration {
	return time.Duration(p.ReadyPollIntervalMS) * time.Millisecond
}

// GetLoadSettleDelay returns the post-load settle delay as a Duration.
func (p ParamsConfig) GetLoadSettleDelay() time.Duration {
	return time.Duration(p.LoadSettleDelayMS) * time.Millisecond
}

// GetInterParamDelay returns the delay between parameter writes as a Duration.
func (p PipelineConfig) GetInterParamDelay() time.Duration {
	return time.Duration(p.InterParamDelayMS) * time.Millisecond
}

// GetClearSettleDelay returns the delay between device deletions as a Duration.
func (p PipelineConfig) GetClearSettleDelay() time.Duration {
	return time.Duration(p.ClearSettleDelayMS) * time.Millisecond
}

// GetCooldown returns the recovery cooldown as a Duration.
func (r RecoveryConfig) GetCooldown() time.Duration {
	return time.Duration(r.CooldownMS) * time.Millisecond
}

// GetStartupWait returns the workstation startup grace as a Duration.
func (l LiveConfig) GetStartupWait() time.Duration {
	return time.Duration(l.StartupWaitMS) * time.Millisecond
}

// GetRestartDelay returns the workstation restart delay as a Duration.
func (l LiveConfig) GetRestartDelay() time.Duration {
	return time.Duration(l.RestartDelayMS) * time.Millisecond
}

// GetHealthCheckInterval returns the workstation health check interval as a Duration.
func (l LiveConfig) GetHealthCheckInterval() time.Duration {
	return time.Duration(l.HealthCheckIntervalMS) * time.Millisecond
}

// GetHealthInterval returns the MQTT health report interval as a Duration.
func (m MQTTConfig) GetHealthInterval() time.Duration {
	return time.Duration(m.HealthIntervalMS) * time.Millisecond
}
