package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. STLF_REDIS_ADDR.
const EnvPrefix = "STLF"

// maxPipelineRows keeps the hourly grid well inside time.Duration's range.
const maxPipelineRows = 2_000_000

type Config struct {
	Port      string `mapstructure:"port"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
	APIKey    string `mapstructure:"api_key"`

	Store      StoreConfig      `mapstructure:"store"`
	S3         S3Config         `mapstructure:"s3"`
	Registry   RegistryConfig   `mapstructure:"registry"`
	Redis      RedisConfig      `mapstructure:"redis"`
	RateLimit  RateLimitConfig  `mapstructure:"ratelimit"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Evaluation EvaluationConfig `mapstructure:"evaluation"`
}

type StoreConfig struct {
	// Backend is "local" or "s3".
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
}

type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	CacheDir  string `mapstructure:"cache_dir"`
}

type RegistryConfig struct {
	// Backend is "memory" or "redis".
	Backend string `mapstructure:"backend"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	DB       int    `mapstructure:"db"`
	Password string `mapstructure:"password"`
}

type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
	// TrustedProxies lists CIDRs whose X-Forwarded-For header is honoured.
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

type PipelineConfig struct {
	HoldoutHours int     `mapstructure:"holdout_hours"`
	ZThreshold   float64 `mapstructure:"z_threshold"`
	MaxRows      int     `mapstructure:"max_rows"`
	Lags         []int   `mapstructure:"lags"`
	Windows      []int   `mapstructure:"windows"`
}

type EvaluationConfig struct {
	MaxHorizon   int     `mapstructure:"max_horizon"`
	WarningRatio float64 `mapstructure:"warning_ratio"`
	DriftRatio   float64 `mapstructure:"drift_ratio"`
	Parallel     bool    `mapstructure:"parallel"`
}

// SetDefaults installs the built-in values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("log_level", "INFO")
	v.SetDefault("log_format", "json")
	v.SetDefault("api_key", "")

	v.SetDefault("store.backend", "local")
	v.SetDefault("store.path", filepath.Join(os.TempDir(), "stlf"))

	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.bucket", "stlf")
	v.SetDefault("s3.access_key", "")
	v.SetDefault("s3.secret_key", "")
	v.SetDefault("s3.cache_dir", filepath.Join(os.TempDir(), "stlf-cache"))

	v.SetDefault("registry.backend", "memory")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")

	v.SetDefault("ratelimit.rps", 10.0)
	v.SetDefault("ratelimit.burst", 20)
	v.SetDefault("ratelimit.trusted_proxies", []string{})

	v.SetDefault("pipeline.holdout_hours", 168)
	v.SetDefault("pipeline.z_threshold", 3.0)
	v.SetDefault("pipeline.max_rows", 100000)
	v.SetDefault("pipeline.lags", []int{1, 24, 168})
	v.SetDefault("pipeline.windows", []int{3, 24, 168})

	v.SetDefault("evaluation.max_horizon", 24)
	v.SetDefault("evaluation.warning_ratio", 1.2)
	v.SetDefault("evaluation.drift_ratio", 1.5)
	v.SetDefault("evaluation.parallel", true)
}

// New returns a viper instance with defaults, config file search paths and
// environment binding in place, but nothing read yet.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	v.SetConfigName("stlf")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".stlf"))
	}
	v.AddConfigPath("/etc/stlf")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the optional stlf.yaml and the environment into a Config.
func Load() (*Config, error) {
	v := New()
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	return FromViper(v)
}

// FromViper decodes and validates the settings held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "local", "s3":
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	switch c.Registry.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown registry backend %q", c.Registry.Backend)
	}
	if c.Pipeline.HoldoutHours <= 0 {
		return fmt.Errorf("pipeline.holdout_hours must be positive")
	}
	if c.Pipeline.ZThreshold <= 0 {
		return fmt.Errorf("pipeline.z_threshold must be positive")
	}
	if c.Pipeline.MaxRows <= 0 || c.Pipeline.MaxRows > maxPipelineRows {
		return fmt.Errorf("pipeline.max_rows must be in (0, %d]", maxPipelineRows)
	}
	if c.Evaluation.MaxHorizon <= 0 {
		return fmt.Errorf("evaluation.max_horizon must be positive")
	}
	if c.Evaluation.WarningRatio <= 0 || c.Evaluation.DriftRatio < c.Evaluation.WarningRatio {
		return fmt.Errorf("evaluation ratios must satisfy 0 < warning_ratio <= drift_ratio")
	}
	return nil
}
