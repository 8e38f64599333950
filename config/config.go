// Package config loads the coordinator's tunables from file, environment,
// and flags, and watches the config file for changes so pool and cache
// sizing can be adjusted without a restart.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the coordinator process's full runtime configuration.
type Config struct {
	LogLevel string `mapstructure:"log_level"`

	Storage StorageConfig `mapstructure:"storage"`
	Pool    PoolConfig    `mapstructure:"pool"`
	Bus     BusConfig     `mapstructure:"bus"`
	Server  ServerConfig  `mapstructure:"server"`
	OTEL    OTELConfig    `mapstructure:"otel"`

	// ConfigFile is the path LoadConfig actually resolved and read, if any.
	// WatchPoolConfig needs it to re-read the same file on change; it is
	// never populated from the file/env/flag layers themselves.
	ConfigFile string `mapstructure:"-"`
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	DSN string `mapstructure:"dsn"`
}

// PoolConfig seeds the coordinator's pool/cache tunables (§4.3.6). These are
// the only fields a hot reload is allowed to change underneath a running
// Coordinator.
type PoolConfig struct {
	DefaultPoolSize    int `mapstructure:"default_pool_size"`
	NamespacePoolSize  int `mapstructure:"namespace_pool_size"`
	DefaultCacheSize   int `mapstructure:"default_cache_size"`
	NamespaceCacheSize int `mapstructure:"namespace_cache_size"`
}

// BusConfig selects the invalidation bus transport.
type BusConfig struct {
	// Driver is "inproc" (default, gochannel) or "amqp".
	Driver string `mapstructure:"driver"`
	AMQP   string `mapstructure:"amqp_uri"`
}

// ServerConfig configures the admin HTTP and debug gRPC surfaces.
type ServerConfig struct {
	GRPCAddr string        `mapstructure:"grpc_addr"`
	HTTPAddr string        `mapstructure:"http_addr"`
	PackEvery time.Duration `mapstructure:"pack_every"`
}

// OTELConfig configures trace/log export.
type OTELConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("pool.default_pool_size", 7)
	v.SetDefault("pool.namespace_pool_size", 3)
	v.SetDefault("pool.default_cache_size", 400)
	v.SetDefault("pool.namespace_cache_size", 100)
	v.SetDefault("bus.driver", "inproc")
	v.SetDefault("server.grpc_addr", ":9090")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.pack_every", time.Hour)
	v.SetDefault("otel.insecure", true)
}

// LoadConfig reads configuration from (in ascending precedence) defaults,
// a config file, environment variables prefixed OBJDB_, and command-line
// flags. flags may be nil, in which case only defaults/file/env apply.
func LoadConfig(configFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("objdb")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("config: bind flags: %w", err)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName("coordinator")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/objectdb-coordinator")
		if err := v.ReadInConfig(); err != nil {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
				return nil, fmt.Errorf("config: read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	cfg.ConfigFile = v.ConfigFileUsed()

	return &cfg, nil
}

// WatchPoolConfig watches cfg.ConfigFile (if one was resolved by LoadConfig)
// and invokes fn with the re-parsed PoolConfig on every write. It is a
// no-op if no config file is in use. A changed file whose pool section
// fails to decode is skipped silently: fn is not called for it, since
// fsnotify callbacks cannot return errors.
func WatchPoolConfig(cfg *Config, flags *pflag.FlagSet, fn func(PoolConfig)) error {
	if cfg.ConfigFile == "" {
		return nil
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("objdb")
	v.AutomaticEnv()
	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return fmt.Errorf("config: bind flags: %w", err)
		}
	}
	v.SetConfigFile(cfg.ConfigFile)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("config: read %s: %w", cfg.ConfigFile, err)
	}

	v.OnConfigChange(func(_ fsnotify.Event) {
		var pc PoolConfig
		if err := v.UnmarshalKey("pool", &pc); err != nil {
			return
		}
		fn(pc)
	})
	v.WatchConfig()
	return nil
}
