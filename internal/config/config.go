package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	AppName     string `mapstructure:"app_name"`
	AppEnv      string `mapstructure:"app_env"`
	AppLogLevel string `mapstructure:"app_log_level"`
	AppPort     int    `mapstructure:"app_port"`

	// model
	ModelPath          string `mapstructure:"model_path"`
	ModelMetadataPath  string `mapstructure:"model_metadata_path"`
	OnnxRuntimeLibPath string `mapstructure:"onnxruntime_lib_path"`
	ModelPoolSize      int    `mapstructure:"model_pool_size"`

	NutritionDataPath string `mapstructure:"nutrition_data_path"`

	// image fetch
	FetchTimeoutMs int   `mapstructure:"fetch_timeout_ms"`
	FetchMaxBytes  int64 `mapstructure:"fetch_max_bytes"`
	FetchMaxPixels int64 `mapstructure:"fetch_max_pixels"`

	// inbound limits
	MaxRequestBytes int64   `mapstructure:"max_request_bytes"`
	RateLimitRPS    float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst  int     `mapstructure:"rate_limit_burst"`

	// telegraf
	TelegrafHost        string  `mapstructure:"telegraf_host"`
	TelegrafPort        string  `mapstructure:"telegraf_port"`
	MetricsSamplingRate float64 `mapstructure:"metrics_sampling_rate"`

	ShutdownTimeoutMs int `mapstructure:"shutdown_timeout_ms"`
}

// Load reads the optional env file (a missing file is not an error) and then
// resolves every key from the environment, falling back to defaults.
func Load(envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", f, err)
		}
	}

	v := viper.New()
	setDefaults(v)
	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config from environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_name", "food-api")
	v.SetDefault("app_env", "local")
	v.SetDefault("app_log_level", "INFO")
	v.SetDefault("app_port", 8080)

	v.SetDefault("model_path", "models/mobilenet_v2.onnx")
	v.SetDefault("model_metadata_path", "models/model_metadata.json")
	v.SetDefault("onnxruntime_lib_path", "")
	v.SetDefault("model_pool_size", 1)

	v.SetDefault("nutrition_data_path", "nutrition_data.json")

	v.SetDefault("fetch_timeout_ms", 10000)
	v.SetDefault("fetch_max_bytes", 20<<20) // 20MB
	v.SetDefault("fetch_max_pixels", 50_000_000)

	v.SetDefault("max_request_bytes", 64<<10)
	v.SetDefault("rate_limit_rps", 0)
	v.SetDefault("rate_limit_burst", 10)

	v.SetDefault("telegraf_host", "localhost")
	v.SetDefault("telegraf_port", "8125")
	v.SetDefault("metrics_sampling_rate", 1.0)

	v.SetDefault("shutdown_timeout_ms", 10000)
}

func bindEnvVars(v *viper.Viper) error {
	bindings := map[string]string{
		"app_name":      "APP_NAME",
		"app_env":       "APP_ENV",
		"app_log_level": "APP_LOG_LEVEL",
		"app_port":      "APP_PORT",

		"model_path":           "MODEL_PATH",
		"model_metadata_path":  "MODEL_METADATA_PATH",
		"onnxruntime_lib_path": "ONNXRUNTIME_LIB_PATH",
		"model_pool_size":      "MODEL_POOL_SIZE",

		"nutrition_data_path": "NUTRITION_DATA_PATH",

		"fetch_timeout_ms": "FETCH_TIMEOUT_MS",
		"fetch_max_bytes":  "FETCH_MAX_BYTES",
		"fetch_max_pixels": "FETCH_MAX_PIXELS",

		"max_request_bytes": "MAX_REQUEST_BYTES",
		"rate_limit_rps":    "RATE_LIMIT_RPS",
		"rate_limit_burst":  "RATE_LIMIT_BURST",

		"telegraf_host":         "TELEGRAF_HOST",
		"telegraf_port":         "TELEGRAF_PORT",
		"metrics_sampling_rate": "METRICS_SAMPLING_RATE",

		"shutdown_timeout_ms": "SHUTDOWN_TIMEOUT_MS",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("failed to bind env %s: %w", env, err)
		}
	}
	return nil
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	switch {
	case c.AppPort <= 0 || c.AppPort > 65535:
		return fmt.Errorf("invalid APP_PORT %d", c.AppPort)
	case c.ModelPath == "":
		return errors.New("MODEL_PATH is required")
	case c.ModelMetadataPath == "":
		return errors.New("MODEL_METADATA_PATH is required")
	case c.NutritionDataPath == "":
		return errors.New("NUTRITION_DATA_PATH is required")
	case c.ModelPoolSize < 1:
		return fmt.Errorf("MODEL_POOL_SIZE must be at least 1, got %d", c.ModelPoolSize)
	case c.FetchTimeoutMs <= 0:
		return fmt.Errorf("FETCH_TIMEOUT_MS must be positive, got %d", c.FetchTimeoutMs)
	case c.FetchMaxBytes <= 0:
		return fmt.Errorf("FETCH_MAX_BYTES must be positive, got %d", c.FetchMaxBytes)
	case c.FetchMaxPixels <= 0:
		return fmt.Errorf("FETCH_MAX_PIXELS must be positive, got %d", c.FetchMaxPixels)
	case c.MaxRequestBytes <= 0:
		return fmt.Errorf("MAX_REQUEST_BYTES must be positive, got %d", c.MaxRequestBytes)
	case c.MetricsSamplingRate < 0 || c.MetricsSamplingRate > 1:
		return fmt.Errorf("METRICS_SAMPLING_RATE must be within [0, 1], got %f", c.MetricsSamplingRate)
	}
	return nil
}

func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutMs) * time.Millisecond
}

func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutMs) * time.Millisecond
}

func (c *Config) Address() string {
	return fmt.Sprintf(":%d", c.AppPort)
}

func (c *Config) TelegrafAddress() string {
	return c.TelegrafHost + ":" + c.TelegrafPort
}
