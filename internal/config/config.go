package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix namespaces every environment variable, e.g. TIGHTENING_SERVER_PORT.
const EnvPrefix = "TIGHTENING"

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Security  SecurityConfig  `yaml:"security" envconfig:"SECURITY"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Lake      LakeConfig      `yaml:"lake" envconfig:"LAKE"`
	SPC       SPCConfig       `yaml:"spc" envconfig:"SPC"`
	Store     StoreConfig     `yaml:"store" envconfig:"STORE"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
	WebSocket WebSocketConfig `yaml:"websocket" envconfig:"WEBSOCKET"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" split_words:"true" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" split_words:"true" validate:"gt=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" split_words:"true" validate:"gt=0"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" split_words:"true"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" split_words:"true"`
	BuildTimeout    time.Duration `yaml:"build_timeout" split_words:"true" validate:"gt=0"`
}

// SecurityConfig contains security-related configuration
type SecurityConfig struct {
	AllowedOrigins []string        `yaml:"allowed_origins" split_words:"true"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" split_words:"true"`
	RPS     float64 `yaml:"rps" split_words:"true" validate:"gte=0"`
	Burst   int     `yaml:"burst" split_words:"true" validate:"gte=0"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" split_words:"true" validate:"oneof=debug info warn warning error"`
	Output   string `yaml:"output" split_words:"true" validate:"oneof=console file both"`
	FilePath string `yaml:"file_path" split_words:"true"`
}

// LakeConfig locates the bronze/silver/gold lake and its build defaults.
type LakeConfig struct {
	Root           string `yaml:"root" split_words:"true" validate:"required"`
	DefaultTier    string `yaml:"default_tier" split_words:"true" validate:"oneof=core recurring"`
	BaselineMonths int    `yaml:"baseline_months" split_words:"true" validate:"min=1,max=120"`
	// SilverFormat selects the silver part file: csv or xlsx.
	SilverFormat string `yaml:"silver_format" split_words:"true" validate:"oneof=csv xlsx"`
}

// BaselineWindow returns the window label written into gold paths, e.g. "12m".
func (l LakeConfig) BaselineWindow() string {
	return fmt.Sprintf("%dm", l.BaselineMonths)
}

// SPCConfig holds the statistical thresholds and input column names.
type SPCConfig struct {
	MinPoints int `yaml:"min_points" split_words:"true" validate:"min=1"`
	// MinMR unset means MinPoints-1.
	MinMR   *int          `yaml:"min_mr" split_words:"true" validate:"omitempty,gte=0"`
	Columns ColumnsConfig `yaml:"columns" envconfig:"COLUMNS"`
}

// ColumnsConfig names the silver columns read by the engine.
type ColumnsConfig struct {
	Key   string `yaml:"key" split_words:"true" validate:"required"`
	Time  string `yaml:"time" split_words:"true" validate:"required"`
	Value string `yaml:"value" split_words:"true" validate:"required"`
	LSL   string `yaml:"lsl" split_words:"true" validate:"required"`
	USL   string `yaml:"usl" split_words:"true" validate:"required"`
}

// StoreConfig configures the SQLite results catalog.
type StoreConfig struct {
	Path string `yaml:"path" split_words:"true" validate:"required"`
}

// TelemetryConfig configures OpenTelemetry exporters.
type TelemetryConfig struct {
	EnableTracing  bool    `yaml:"enable_tracing" split_words:"true"`
	EnableMetrics  bool    `yaml:"enable_metrics" split_words:"true"`
	TraceExporter  string  `yaml:"trace_exporter" split_words:"true" validate:"oneof=stdout none"`
	MetricExporter string  `yaml:"metric_exporter" split_words:"true" validate:"oneof=prometheus none"`
	SampleRatio    float64 `yaml:"sample_ratio" split_words:"true" validate:"gte=0,lte=1"`
	Environment    string  `yaml:"environment" split_words:"true"`
}

// WebSocketConfig contains WebSocket configuration
type WebSocketConfig struct {
	ReadBufferSize  int           `yaml:"read_buffer_size" split_words:"true" validate:"gt=0"`
	WriteBufferSize int           `yaml:"write_buffer_size" split_words:"true" validate:"gt=0"`
	PingPeriod      time.Duration `yaml:"ping_period" split_words:"true"`
	PongWait        time.Duration `yaml:"pong_wait" split_words:"true"`
}

// Load builds the configuration from defaults, then the YAML file at path
// (when it exists), then environment variables. An empty path searches the
// usual locations.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = getConfigFilePath()
	}
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := loadFromFile(path, cfg); err != nil {
				return nil, fmt.Errorf("failed to load config from file: %w", err)
			}
		}
	}

	// Leaf fields use split_words, never envconfig names: a named tag would
	// fall back to the unprefixed variable ($PATH for Store.Path).
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFromFile overlays the YAML file onto cfg
func loadFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func (c *Config) normalize() {
	c.Lake.DefaultTier = strings.ToLower(strings.TrimSpace(c.Lake.DefaultTier))
	c.Lake.SilverFormat = strings.ToLower(strings.TrimSpace(c.Lake.SilverFormat))
	c.Logging.Level = strings.ToLower(c.Logging.Level)
	c.Logging.Output = strings.ToLower(c.Logging.Output)
	if c.Logging.Output != "console" && c.Logging.FilePath == "" {
		c.Logging.FilePath = "logs/app.log"
	}
}

// Validate checks struct constraints.
func (c *Config) Validate() error {
	return validator.New().Struct(c)
}

// getConfigFilePath returns the path to the config file
func getConfigFilePath() string {
	locations := []string{
		"config.yaml",
		"configs/config.yaml",
		"../configs/config.yaml",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return ""
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			BuildTimeout:    30 * time.Minute,
		},
		Security: SecurityConfig{
			AllowedOrigins: []string{"http://localhost:8080"},
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     DefaultRateLimit,
				Burst:   DefaultBurstSize,
			},
		},
		Logging: LoggingConfig{
			Level:    "info",
			Output:   "console",
			FilePath: "logs/app.log",
		},
		Lake: LakeConfig{
			Root:           DefaultLakeRoot,
			DefaultTier:    TierCore,
			BaselineMonths: DefaultBaselineMonths,
			SilverFormat:   "csv",
		},
		SPC: SPCConfig{
			MinPoints: DefaultMinPoints,
			Columns: ColumnsConfig{
				Key:   "STEP_ID",
				Time:  "DateTime",
				Value: "FinalTorque",
				LSL:   "TorqueMinTolerance",
				USL:   "TorqueMaxTolerance",
			},
		},
		Store: StoreConfig{
			Path: DefaultStorePath,
		},
		Telemetry: TelemetryConfig{
			EnableTracing:  false,
			EnableMetrics:  true,
			TraceExporter:  "stdout",
			MetricExporter: "prometheus",
			SampleRatio:    1.0,
			Environment:    "development",
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			PingPeriod:      WebSocketPingPeriod,
			PongWait:        WebSocketPongWait,
		},
	}
}
