// =============================================================================
// 📦 Configuration loader
// =============================================================================
// Unified configuration loading: YAML file + environment variable overrides.
//
// Usage:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("KGORCH").
//	    Load()
//
// Precedence: defaults -> YAML file -> environment variables
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 Core configuration structure
// =============================================================================

// Config is the complete process configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server" env:"SERVER"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator" env:"ORCHESTRATOR"`
	Batch        BatchConfig        `yaml:"batch" env:"BATCH"`
	Events       EventsConfig       `yaml:"events" env:"EVENTS"`
	Redis        RedisConfig        `yaml:"redis" env:"REDIS"`
	Database     DatabaseConfig     `yaml:"database" env:"DATABASE"`
	Mongo        MongoConfig        `yaml:"mongo" env:"MONGO"`
	LLM          LLMConfig          `yaml:"llm" env:"LLM"`
	Log          LogConfig          `yaml:"log" env:"LOG"`
	Telemetry    TelemetryConfig    `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig configures the HTTP/websocket listener for the event relay.
type ServerConfig struct {
	HTTPPort        int           `yaml:"http_port" env:"HTTP_PORT"`
	MetricsPort     int           `yaml:"metrics_port" env:"METRICS_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// OrchestratorConfig carries the Smart Orchestrator's tuning knobs, read
// from orchestrator.yaml (spec §4.4's initializeWorkflow defaults).
type OrchestratorConfig struct {
	MaxRetries         int           `yaml:"max_retries" env:"MAX_RETRIES"`
	RetryThreshold     float64       `yaml:"retry_threshold" env:"RETRY_THRESHOLD"`
	SkipThreshold      float64       `yaml:"skip_threshold" env:"SKIP_THRESHOLD"`
	UseLLMRouting      bool          `yaml:"use_llm_routing" env:"USE_LLM_ROUTING"`
	MaxConcurrentSteps int           `yaml:"max_concurrent_steps" env:"MAX_CONCURRENT_STEPS"`
	DefaultStepTimeout time.Duration `yaml:"default_step_timeout" env:"DEFAULT_STEP_TIMEOUT"`
	HeartbeatInterval  time.Duration `yaml:"heartbeat_interval" env:"HEARTBEAT_INTERVAL"`
	MockLLMDelay       time.Duration `yaml:"mock_llm_delay" env:"MOCK_LLM_DELAY"`
}

// BatchConfig configures the Batch Scheduler (spec §4.3, §6 environment
// variable table).
type BatchConfig struct {
	CommitCount       int    `yaml:"commit_count" env:"COMMIT_COUNT"`
	LLMBatchSize      int    `yaml:"llm_batch_size" env:"LLM_BATCH_SIZE"`
	KnowledgeBasePath string `yaml:"knowledge_base_path" env:"KNOWLEDGE_BASE_PATH"`
}

// EventsConfig configures the event relay's transport and command auth.
type EventsConfig struct {
	JWTSecret      string        `yaml:"jwt_secret" env:"JWT_SECRET"`
	JWTIssuer      string        `yaml:"jwt_issuer" env:"JWT_ISSUER"`
	HeartbeatEvery time.Duration `yaml:"heartbeat_every" env:"HEARTBEAT_EVERY"`
	RedisMirror    bool          `yaml:"redis_mirror" env:"REDIS_MIRROR"`
	RedisChannel   string        `yaml:"redis_channel" env:"REDIS_CHANNEL"`
}

// RedisConfig configures the distributed plan lock and the optional event mirror.
type RedisConfig struct {
	Addr         string `yaml:"addr" env:"ADDR"`
	Password     string `yaml:"password" env:"PASSWORD"`
	DB           int    `yaml:"db" env:"DB"`
	PoolSize     int    `yaml:"pool_size" env:"POOL_SIZE"`
	MinIdleConns int    `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
}

// DatabaseConfig configures the plan registry (one row per repo+team plan).
type DatabaseConfig struct {
	Driver          string        `yaml:"driver" env:"DRIVER"` // postgres, mysql, sqlite
	Host            string        `yaml:"host" env:"HOST"`
	Port            int           `yaml:"port" env:"PORT"`
	User            string        `yaml:"user" env:"USER"`
	Password        string        `yaml:"password" env:"PASSWORD"`
	Name            string        `yaml:"name" env:"NAME"`
	SSLMode         string        `yaml:"ssl_mode" env:"SSL_MODE"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// MongoConfig configures the optional best-effort workflow/batch archive.
type MongoConfig struct {
	Enabled    bool   `yaml:"enabled" env:"ENABLED"`
	URI        string `yaml:"uri" env:"URI"`
	Database   string `yaml:"database" env:"DATABASE"`
	Collection string `yaml:"collection" env:"COLLECTION"`
}

// LLMConfig configures the routing-assist LLM call used by decideNextSteps
// and smartRetry. The core never prescribes a provider (spec Non-goals);
// this only carries the black-box dial knobs.
type LLMConfig struct {
	DefaultProvider string        `yaml:"default_provider" env:"DEFAULT_PROVIDER"`
	APIKey          string        `yaml:"api_key" env:"API_KEY"`
	BaseURL         string        `yaml:"base_url" env:"BASE_URL"`
	Timeout         time.Duration `yaml:"timeout" env:"TIMEOUT"`
	MaxRetries      int           `yaml:"max_retries" env:"MAX_RETRIES"`
	RateLimitRPS    float64       `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
}

// LogConfig configures zap.
type LogConfig struct {
	Level            string   `yaml:"level" env:"LEVEL"`
	Format           string   `yaml:"format" env:"FORMAT"`
	OutputPaths      []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller     bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool     `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig configures the OTel SDK (internal/telemetry).
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 🔧 Loader
// =============================================================================

// Loader loads a Config (builder pattern).
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader creates a loader with the default env prefix.
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "KGORCH",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath sets the YAML file path.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix overrides the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator adds a config validator run after loading.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load loads defaults, then the YAML file if configured, then environment
// overrides, then runs validators. Precedence: defaults -> file -> env.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 Helpers
// =============================================================================

// MustLoad loads a config, panicking on failure. Used at process startup
// where a malformed config is a deployment error, not a recoverable one.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv loads a config from defaults plus environment only.
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate runs baseline sanity checks shared by every deployment.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Orchestrator.MaxConcurrentSteps <= 0 {
		errs = append(errs, "orchestrator.max_concurrent_steps must be positive")
	}
	if c.Orchestrator.RetryThreshold < 0 || c.Orchestrator.RetryThreshold > 1 {
		errs = append(errs, "orchestrator.retry_threshold must be between 0 and 1")
	}
	if c.Orchestrator.SkipThreshold < 0 || c.Orchestrator.SkipThreshold > 1 {
		errs = append(errs, "orchestrator.skip_threshold must be between 0 and 1")
	}
	if c.Batch.CommitCount <= 0 {
		errs = append(errs, "batch.commit_count must be positive")
	}
	if c.Batch.LLMBatchSize < 1 || c.Batch.LLMBatchSize > 50 {
		errs = append(errs, "batch.llm_batch_size must be between 1 and 50")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// DSN returns the database connection string for the configured driver.
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}
