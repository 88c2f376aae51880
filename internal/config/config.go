// Package config loads the blobcache service configuration.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/IvanBrykalov/blobcache"
)

// EnvPrefix prefixes environment overrides, e.g. BLOBCACHE_REMOTE_AUTH.
const EnvPrefix = "BLOBCACHE"

// Remote backend kinds.
const (
	BackendHTTP = "http"
	BackendS3   = "s3"
)

// Config is the full service configuration.
type Config struct {
	Listen string       `mapstructure:"Listen"`
	Log    LogConfig    `mapstructure:"Log"`
	Remote RemoteConfig `mapstructure:"Remote"`
	Cache  CacheConfig  `mapstructure:"Cache"`
}

// LogConfig controls logging output.
type LogConfig struct {
	Level      string `mapstructure:"Level"`
	FilePath   string `mapstructure:"FilePath"`
	MaxSize    int    `mapstructure:"MaxSize"`
	MaxBackups int    `mapstructure:"MaxBackups"`
	Compress   bool   `mapstructure:"Compress"`
}

// RemoteConfig selects and configures the origin.
type RemoteConfig struct {
	Backend        string        `mapstructure:"Backend"`
	Endpoint       string        `mapstructure:"Endpoint"`
	Auth           string        `mapstructure:"Auth"`
	Table          string        `mapstructure:"Table"`
	Region         string        `mapstructure:"Region"`
	RequestTimeout time.Duration `mapstructure:"RequestTimeout"`
	Chunked        bool          `mapstructure:"Chunked"`
	ChunkSize      int           `mapstructure:"ChunkSize"`
	Parallelism    int           `mapstructure:"Parallelism"`
}

// CacheConfig sizes the in-memory cache.
type CacheConfig struct {
	MaxEntries      int           `mapstructure:"MaxEntries"`
	MaxBytes        int64         `mapstructure:"MaxBytes"`
	Shards          int           `mapstructure:"Shards"`
	BlobTTL         time.Duration `mapstructure:"BlobTTL"`
	NegativeTTL     time.Duration `mapstructure:"NegativeTTL"`
	NegativeEntries int           `mapstructure:"NegativeEntries"`
	FetchTimeout    time.Duration `mapstructure:"FetchTimeout"`
}

// FieldError names the configuration key that failed validation.
type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Load reads the file at path (TOML, YAML or JSON by extension) and applies
// BLOBCACHE_* environment overrides. An empty path uses defaults and the
// environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Remote.Backend = strings.ToLower(strings.TrimSpace(cfg.Remote.Backend))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("Listen", ":8080")
	v.SetDefault("Log.Level", "info")
	v.SetDefault("Log.FilePath", "")
	v.SetDefault("Log.MaxSize", 100)
	v.SetDefault("Log.MaxBackups", 10)
	v.SetDefault("Log.Compress", true)
	v.SetDefault("Remote.Backend", BackendHTTP)
	v.SetDefault("Remote.Endpoint", "")
	v.SetDefault("Remote.Auth", "")
	v.SetDefault("Remote.Table", "")
	v.SetDefault("Remote.Region", "")
	v.SetDefault("Remote.RequestTimeout", "30s")
	v.SetDefault("Remote.Chunked", false)
	v.SetDefault("Remote.ChunkSize", 1<<20)
	v.SetDefault("Remote.Parallelism", 8)
	v.SetDefault("Cache.MaxEntries", 0)
	v.SetDefault("Cache.MaxBytes", 256<<20)
	v.SetDefault("Cache.Shards", 1)
	v.SetDefault("Cache.BlobTTL", "0s")
	v.SetDefault("Cache.NegativeTTL", "0s")
	v.SetDefault("Cache.NegativeEntries", 0)
	v.SetDefault("Cache.FetchTimeout", "1m")
}

// Validate checks service-level fields and the cache configuration.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Listen) == "" {
		return FieldError{Field: "Listen", Reason: "must not be empty"}
	}
	switch c.Remote.Backend {
	case BackendHTTP, BackendS3:
	default:
		return FieldError{Field: "Remote.Backend", Reason: fmt.Sprintf("unknown backend %q", c.Remote.Backend)}
	}
	if c.Remote.Chunked && c.Remote.ChunkSize <= 0 {
		return FieldError{Field: "Remote.ChunkSize", Reason: "must be positive"}
	}
	if c.Remote.RequestTimeout < 0 {
		return FieldError{Field: "Remote.RequestTimeout", Reason: "must not be negative"}
	}
	if err := c.Handler().Validate(); err != nil {
		var ce *blobcache.ConfigError
		if errors.As(err, &ce) {
			return FieldError{Field: fieldPath(ce.Field), Reason: ce.Reason}
		}
		return err
	}
	return nil
}

// Handler converts the file configuration into a blobcache.Config.
func (c *Config) Handler() blobcache.Config {
	return blobcache.Config{
		Endpoint:        c.Remote.Endpoint,
		Auth:            c.Remote.Auth,
		Table:           c.Remote.Table,
		MaxEntries:      c.Cache.MaxEntries,
		MaxBytes:        c.Cache.MaxBytes,
		Shards:          c.Cache.Shards,
		BlobTTL:         c.Cache.BlobTTL,
		NegativeTTL:     c.Cache.NegativeTTL,
		NegativeEntries: c.Cache.NegativeEntries,
		FetchTimeout:    c.Cache.FetchTimeout,
	}
}

func fieldPath(field string) string {
	switch field {
	case "Endpoint", "Auth", "Table":
		return "Remote." + field
	default:
		return "Cache." + field
	}
}

// durationDecodeHook accepts Go duration strings and plain seconds.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	target := reflect.TypeOf(time.Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != target {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			s := strings.TrimSpace(v)
			if s == "" {
				return time.Duration(0), nil
			}
			if d, err := time.ParseDuration(s); err == nil {
				return d, nil
			}
			if seconds, err := strconv.ParseFloat(s, 64); err == nil {
				return time.Duration(seconds * float64(time.Second)), nil
			}
			return nil, fmt.Errorf("invalid duration %q", v)
		case int:
			return time.Duration(v) * time.Second, nil
		case int64:
			return time.Duration(v) * time.Second, nil
		case float64:
			return time.Duration(v * float64(time.Second)), nil
		case time.Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("unsupported duration type %T", v)
		}
	}
}
