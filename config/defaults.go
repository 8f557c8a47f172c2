// =============================================================================
// 📦 AgentOS Studio 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Executor:  DefaultExecutorConfig(),
		Store:     DefaultStoreConfig(),
		Redis:     DefaultRedisConfig(),
		Database:  DefaultDatabaseConfig(),
		Mongo:     DefaultMongoConfig(),
		Auth:      DefaultAuthConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:            8080,
		MetricsPort:         9091,
		ReadTimeout:         30 * time.Second,
		WriteTimeout:        30 * time.Second,
		ShutdownTimeout:     15 * time.Second,
		RateLimitRPS:        100,
		RateLimitBurst:      200,
		MaxRequestBodyBytes: 1 << 20,
	}
}

// DefaultExecutorConfig 返回默认执行器配置
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		FailurePolicy:     "fail_fast",
		DecisionBranching: false,
		RunTimeout:        5 * time.Minute,
		TokenEncoding:     "cl100k_base",
	}
}

// DefaultStoreConfig 返回默认存储配置
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Type:       "memory",
		MaxRecords: 10000,
		KeyPrefix:  "agentos:exec:",
		RecordTTL:  7 * 24 * time.Hour,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "postgres",
		Host:            "localhost",
		Port:            5432,
		User:            "agentos",
		Password:        "",
		Name:            "agentos",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultMongoConfig 返回默认 MongoDB 配置
func DefaultMongoConfig() MongoConfig {
	return MongoConfig{
		URI:            "mongodb://localhost:27017",
		Database:       "agentos",
		Collection:     "executions",
		ConnectTimeout: 10 * time.Second,
	}
}

// DefaultAuthConfig 返回默认认证配置
func DefaultAuthConfig() AuthConfig {
	return AuthConfig{
		JWTIssuer: "agentos",
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "agentos-studio",
		SampleRate:   0.1,
	}
}
