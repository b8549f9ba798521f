// =============================================================================
// 📦 Default configuration
// =============================================================================
// Sane defaults for every configuration field, applied before the YAML file
// and environment overrides layer on top.
// =============================================================================
package config

import "time"

// DefaultConfig returns a fully populated Config.
func DefaultConfig() *Config {
	return &Config{
		Server:       DefaultServerConfig(),
		Orchestrator: DefaultOrchestratorConfig(),
		Batch:        DefaultBatchConfig(),
		Events:       DefaultEventsConfig(),
		Redis:        DefaultRedisConfig(),
		Database:     DefaultDatabaseConfig(),
		Mongo:        DefaultMongoConfig(),
		LLM:          DefaultLLMConfig(),
		Log:          DefaultLogConfig(),
		Telemetry:    DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig returns the default event-relay listener settings.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
	}
}

// DefaultOrchestratorConfig mirrors spec §4.4's initializeWorkflow defaults.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		MaxRetries:         3,
		RetryThreshold:     0.5,
		SkipThreshold:      0.3,
		UseLLMRouting:      true,
		MaxConcurrentSteps: 3,
		DefaultStepTimeout: 120 * time.Second,
		HeartbeatInterval:  10 * time.Second,
		MockLLMDelay:       0,
	}
}

// DefaultBatchConfig mirrors spec §6's environment variable table.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		CommitCount:       50,
		LLMBatchSize:      20,
		KnowledgeBasePath: "",
	}
}

// DefaultEventsConfig returns default event-relay transport settings.
func DefaultEventsConfig() EventsConfig {
	return EventsConfig{
		JWTSecret:      "",
		JWTIssuer:      "kg-orchestrator",
		HeartbeatEvery: 10 * time.Second,
		RedisMirror:    false,
		RedisChannel:   "kg-orchestrator:events",
	}
}

// DefaultRedisConfig returns the default distributed-lock Redis settings.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultDatabaseConfig returns the default plan-registry database settings.
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "sqlite",
		Host:            "localhost",
		Port:            5432,
		User:            "kgorch",
		Password:        "",
		Name:            "kg_orchestrator.db",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultMongoConfig returns the default archive settings (disabled by default).
func DefaultMongoConfig() MongoConfig {
	return MongoConfig{
		Enabled:    false,
		URI:        "mongodb://localhost:27017",
		Database:   "kg_orchestrator",
		Collection: "workflow_archive",
	}
}

// DefaultLLMConfig returns the default LLM-assist dial knobs. The core
// never selects a provider (spec Non-goals); DefaultProvider only labels
// whichever black-box client the caller wires in.
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		DefaultProvider: "",
		APIKey:          "",
		BaseURL:         "",
		Timeout:         2 * time.Minute,
		MaxRetries:      3,
		RateLimitRPS:    1,
	}
}

// DefaultLogConfig returns the default zap settings.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig returns the default OTel settings (disabled by default).
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "kg-orchestrator",
		SampleRate:   0.1,
	}
}
