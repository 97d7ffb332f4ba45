package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/arcworks/arc/internal/ledger"
	"github.com/caarlos0/env/v11"
)

// EnvPrefix prefixes every environment override, e.g. ARC_DATABASE_DSN.
const EnvPrefix = "ARC_"

type Config struct {
	Server     ServerConfig     `toml:"server"     envPrefix:"SERVER_"`
	Ledger     LedgerConfig     `toml:"ledger"     envPrefix:"LEDGER_"`
	Registry   RegistryConfig   `toml:"registry"   envPrefix:"REGISTRY_"`
	Database   DatabaseConfig   `toml:"database"   envPrefix:"DATABASE_"`
	Network    NetworkConfig    `toml:"network"    envPrefix:"NETWORK_"`
	Checkpoint CheckpointConfig `toml:"checkpoint" envPrefix:"CHECKPOINT_"`
	Logging    LoggingConfig    `toml:"logging"    envPrefix:"LOGGING_"`
	Telemetry  TelemetryConfig  `toml:"telemetry"  envPrefix:"TELEMETRY_"`
	Bundles    BundlesConfig    `toml:"bundles"    envPrefix:"BUNDLES_"`
}

type ServerConfig struct {
	Name      string `toml:"name" env:"NAME"`
	StartTime int64  // set at boot, not from config
}

type LedgerConfig struct {
	MaxSlotSize int `toml:"max_slot_size" env:"MAX_SLOT_SIZE"`
	Shards      int `toml:"shards"        env:"SHARDS"`
}

// Store returns the slot store settings.
func (c LedgerConfig) Store() ledger.Config {
	return ledger.Config{MaxSlotSize: c.MaxSlotSize, Shards: c.Shards}
}

type RegistryConfig struct {
	// InstanceCreators lists hex keys allowed to create instances. Empty
	// means anyone.
	InstanceCreators []string `toml:"instance_creators" env:"INSTANCE_CREATORS" envSeparator:","`
	MaxLocatorLen    int      `toml:"max_locator_len"   env:"MAX_LOCATOR_LEN"`
}

// Creators parses InstanceCreators.
func (c RegistryConfig) Creators() ([]ledger.Address, error) {
	out := make([]ledger.Address, 0, len(c.InstanceCreators))
	for _, s := range c.InstanceCreators {
		a, err := ledger.ParseAddress(s)
		if err != nil {
			return nil, fmt.Errorf("instance creator %q: %w", s, err)
		}
		out = append(out, a)
	}
	return out, nil
}

type DatabaseConfig struct {
	Driver          string        `toml:"driver"            env:"DRIVER"` // "postgres", "sqlite" or "" for memory only
	DSN             string        `toml:"dsn"               env:"DSN"`
	MaxOpenConns    int           `toml:"max_open_conns"    env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `toml:"max_idle_conns"    env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `toml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

type NetworkConfig struct {
	BindAddress        string        `toml:"bind_address"          env:"BIND_ADDRESS"`
	TickRate           time.Duration `toml:"tick_rate"             env:"TICK_RATE"`
	InQueueSize        int           `toml:"in_queue_size"         env:"IN_QUEUE_SIZE"`
	OutQueueSize       int           `toml:"out_queue_size"        env:"OUT_QUEUE_SIZE"`
	MaxRequestsPerTick int           `toml:"max_requests_per_tick" env:"MAX_REQUESTS_PER_TICK"`
	MaxFrameSize       int           `toml:"max_frame_size"        env:"MAX_FRAME_SIZE"`
	WriteTimeout       time.Duration `toml:"write_timeout"         env:"WRITE_TIMEOUT"`
	ReadTimeout        time.Duration `toml:"read_timeout"          env:"READ_TIMEOUT"`
}

type CheckpointConfig struct {
	// IntervalTicks is how many ticks pass between checkpoints.
	IntervalTicks int           `toml:"interval_ticks" env:"INTERVAL_TICKS"`
	Timeout       time.Duration `toml:"timeout"        env:"TIMEOUT"`
}

type LoggingConfig struct {
	Level  string `toml:"level"  env:"LEVEL"`
	Format string `toml:"format" env:"FORMAT"` // "json" or "console"
}

type TelemetryConfig struct {
	// Endpoint is the OTLP/HTTP traces endpoint. Empty disables export.
	Endpoint    string `toml:"endpoint"     env:"ENDPOINT"`
	ServiceName string `toml:"service_name" env:"SERVICE_NAME"`
}

type BundlesConfig struct {
	ComponentsTable string `toml:"components_table" env:"COMPONENTS_TABLE"`
	ScriptsDir      string `toml:"scripts_dir"      env:"SCRIPTS_DIR"`
	// Authority is the hex key that administers the built-in bundles and
	// instances created at bootstrap.
	Authority string   `toml:"authority"  env:"AUTHORITY"`
	Instances []uint64 `toml:"instances"  env:"INSTANCES" envSeparator:","`
}

// Load reads the TOML file at path over the defaults, then applies ARC_*
// environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := defaults()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.Server.StartTime = time.Now().Unix()
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Name: "arcd",
		},
		Ledger: LedgerConfig{
			MaxSlotSize: ledger.DefaultMaxSlotSize,
			Shards:      ledger.DefaultShards,
		},
		Registry: RegistryConfig{
			MaxLocatorLen: 256,
		},
		Database: DatabaseConfig{
			Driver:          "sqlite",
			DSN:             "data/arc.db",
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Network: NetworkConfig{
			BindAddress:        "0.0.0.0:7100",
			TickRate:           100 * time.Millisecond,
			InQueueSize:        128,
			OutQueueSize:       256,
			MaxRequestsPerTick: 32,
			MaxFrameSize:       1 << 20,
			WriteTimeout:       10 * time.Second,
			ReadTimeout:        60 * time.Second,
		},
		Checkpoint: CheckpointConfig{
			IntervalTicks: 50,
			Timeout:       5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "arcd",
		},
		Bundles: BundlesConfig{
			ComponentsTable: "data/components.yaml",
			ScriptsDir:      "scripts",
		},
	}
}
