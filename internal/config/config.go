// Package config provides centralized configuration management for the
// scheduler services. It handles loading configuration from environment
// variables, validation, and sensible defaults for development environments.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// StoreBackend selects the object store implementation.
type StoreBackend string

const (
	// StoreBackendFile roots the bucket at a local directory.
	StoreBackendFile StoreBackend = "file"
	// StoreBackendRedis keeps blobs in a Redis instance under one bucket prefix.
	StoreBackendRedis StoreBackend = "redis"
)

// Config holds all configuration values for the planner and dispatcher.
// It is immutable after Load returns.
type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	Forecast  ForecastConfig
	LLM       LLMConfig
	Deployer  DeployerConfig
	TaskQueue TaskQueueConfig
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Host string // Server host address
	Port int    // Server port
	Env  string // Environment (development, staging, production)
}

// StoreConfig contains object store configuration.
type StoreConfig struct {
	Backend    StoreBackend // "file" or "redis"
	BucketName string       // Bucket name (redis key prefix, or directory label)
	BucketDir  string       // Root directory for the file backend
	RedisURL   string       // Connection URL for the redis backend
}

// ForecastConfig contains Electricity Maps API configuration.
type ForecastConfig struct {
	Token           string        // auth-token header value
	BaseURL         string        // Base URL for the API
	UseLiveForecast bool          // false = mock mode (history shifted +24h)
	Timeout         time.Duration // Per-request timeout
}

// LLMConfig contains the ranking/extraction model configuration.
type LLMConfig struct {
	APIKey  string        // API key for the generative model endpoint
	BaseURL string        // Base URL of the generate endpoint
	Model   string        // Model identifier
	Timeout time.Duration // Per-request timeout
}

// DeployerConfig points at the function deployment service.
type DeployerConfig struct {
	BaseURL string        // Deployment server base URL
	APIKey  string        // Bearer token, empty disables auth header
	Timeout time.Duration // Per-request timeout (deploys build images; keep generous)
}

// TaskQueueConfig points at the deferred-invocation task queue.
type TaskQueueConfig struct {
	BaseURL   string        // Queue API base URL; empty disables enqueueing
	QueuePath string        // Parent queue path for created tasks
	Timeout   time.Duration // Per-request timeout
}

// MaxForecastAgeDays bounds how old a cached schedule may be before the
// planner regenerates it.
const MaxForecastAgeDays = 7

// Load creates a new Config instance by loading values from environment
// variables. It automatically loads .env files if they exist and validates
// all required fields.
func Load() (*Config, error) {
	// Try to load .env file (ignore errors if file doesn't exist)
	_ = godotenv.Load()

	config := &Config{
		Server: ServerConfig{
			Host: getEnvString("HOST", "0.0.0.0"),
			Port: getEnvInt("PORT", 8080),
			Env:  getEnvString("ENVIRONMENT", "development"),
		},
		Store: StoreConfig{
			Backend:    StoreBackend(getEnvString("STORE_BACKEND", string(StoreBackendFile))),
			BucketName: getEnvString("BUCKET_NAME", "faas-scheduling"),
			BucketDir:  getEnvString("BUCKET_DIR", "./local_bucket"),
			RedisURL:   getEnvString("REDIS_URL", "redis://localhost:6379"),
		},
		Forecast: ForecastConfig{
			Token:           getEnvString("ELECTRICITYMAPS_TOKEN", ""),
			BaseURL:         getEnvString("ELECTRICITYMAPS_BASE_URL", "https://api.electricitymaps.com/v3"),
			UseLiveForecast: getEnvBool("USE_ACTUAL_FORECASTS", false),
			Timeout:         getEnvDuration("FORECAST_TIMEOUT_SECONDS", 15*time.Second),
		},
		LLM: LLMConfig{
			APIKey:  getEnvString("LLM_API_KEY", ""),
			BaseURL: getEnvString("LLM_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
			Model:   getEnvString("LLM_MODEL", "gemini-2.5-flash"),
			Timeout: getEnvDuration("LLM_TIMEOUT_SECONDS", 60*time.Second),
		},
		Deployer: DeployerConfig{
			BaseURL: getEnvString("DEPLOYER_URL", "http://localhost:8090"),
			APIKey:  getEnvString("DEPLOYER_API_KEY", ""),
			Timeout: getEnvDuration("DEPLOYER_TIMEOUT_SECONDS", 300*time.Second),
		},
		TaskQueue: TaskQueueConfig{
			BaseURL:   getEnvString("TASK_QUEUE_URL", ""),
			QueuePath: getEnvString("TASK_QUEUE_PATH", ""),
			Timeout:   getEnvDuration("TASK_QUEUE_TIMEOUT_SECONDS", 10*time.Second),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Validate checks that all required configuration values are present and valid.
func (c *Config) Validate() error {
	var errors []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errors = append(errors, "server port must be between 1 and 65535")
	}

	if c.Server.Env == "" {
		errors = append(errors, "ENVIRONMENT must be set")
	}

	switch c.Store.Backend {
	case StoreBackendFile:
		if c.Store.BucketDir == "" {
			errors = append(errors, "BUCKET_DIR must be set for the file backend")
		}
	case StoreBackendRedis:
		if c.Store.RedisURL == "" {
			errors = append(errors, "REDIS_URL must be set for the redis backend")
		}
	default:
		errors = append(errors, fmt.Sprintf("unknown STORE_BACKEND %q (use file or redis)", c.Store.Backend))
	}

	if c.Store.BucketName == "" {
		errors = append(errors, "BUCKET_NAME must be set")
	}

	if c.Server.Env == "production" {
		if c.Forecast.Token == "" {
			errors = append(errors, "ELECTRICITYMAPS_TOKEN is required in production")
		}
		if c.LLM.APIKey == "" {
			errors = append(errors, "LLM_API_KEY is required in production")
		}
	}

	if c.Forecast.Timeout <= 0 {
		errors = append(errors, "forecast timeout must be positive")
	}
	if c.LLM.Timeout <= 0 {
		errors = append(errors, "LLM timeout must be positive")
	}
	if c.Deployer.Timeout <= 0 {
		errors = append(errors, "deployer timeout must be positive")
	}

	if c.TaskQueue.BaseURL != "" && c.TaskQueue.QueuePath == "" {
		errors = append(errors, "TASK_QUEUE_PATH must be set when TASK_QUEUE_URL is configured")
	}

	if len(errors) > 0 {
		return fmt.Errorf("validation errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

// String returns a string representation of the configuration with sensitive
// data masked. This is safe for logging and debugging purposes.
func (c *Config) String() string {
	return fmt.Sprintf(`Config{
  Server: {Host: %s, Port: %d, Env: %s}
  Store: {Backend: %s, Bucket: %s}
  Forecast: {Token: %s, BaseURL: %s, Live: %t}
  LLM: {APIKey: %s, Model: %s}
  Deployer: {BaseURL: %s, APIKey: %s}
  TaskQueue: {BaseURL: %s, QueuePath: %s}
}`,
		c.Server.Host, c.Server.Port, c.Server.Env,
		c.Store.Backend, c.Store.BucketName,
		maskSecret(c.Forecast.Token), c.Forecast.BaseURL, c.Forecast.UseLiveForecast,
		maskSecret(c.LLM.APIKey), c.LLM.Model,
		c.Deployer.BaseURL, maskSecret(c.Deployer.APIKey),
		c.TaskQueue.BaseURL, c.TaskQueue.QueuePath,
	)
}

// IsProduction returns true if the application is running in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// GetServerAddress returns the full server address (host:port).
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func maskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:4] + "***" + secret[len(secret)-4:]
}

// Helper functions for environment variable parsing

// getEnvString returns the value of an environment variable or a default value.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the integer value of an environment variable or a default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvBool returns the boolean value of an environment variable or a default value.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDuration parses an integer number of seconds from the environment.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return time.Duration(parsed) * time.Second
		}
	}
	return defaultValue
}
