package config

import (
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/turtacn/argproxy/pkg/constants"
	"github.com/turtacn/argproxy/pkg/errors"
)

// EnvPrefix is prepended to every environment override, e.g. ARGPROXY_DISCORD_TOKEN.
const EnvPrefix = "ARGPROXY"

// Loader reads configuration from file and environment and can watch the file for changes.
type Loader struct {
	v  *viper.Viper
	mu sync.Mutex
}

// NewLoader creates a loader. When configFile is empty the usual search paths are used.
func NewLoader(configFile string) *Loader {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/argproxy/")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Loader{v: v}
}

// LoadConfig loads the configuration from file and environment variables.
func LoadConfig(configFile string) (*Config, error) {
	return NewLoader(configFile).Load()
}

// Load reads, unmarshals and validates the configuration. A missing config file is not an error.
func (l *Loader) Load() (*Config, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.ErrInvalidConfig("failed to read config file").WithCause(err)
		}
	}
	return l.unmarshal()
}

func (l *Loader) unmarshal() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, errors.ErrInvalidConfig("failed to unmarshal config").WithCause(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Watch calls onChange with the re-read configuration whenever the config file changes.
// Invalid revisions are reported through onError and otherwise ignored.
func (l *Loader) Watch(onChange func(*Config), onError func(error)) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		l.mu.Lock()
		cfg, err := l.unmarshal()
		l.mu.Unlock()
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(cfg)
	})
	l.v.WatchConfig()
}

// ConfigFileUsed returns the path of the file that was read, if any.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.grpc_port", 50051)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("redis.mode", "standalone")
	v.SetDefault("redis.addresses", []string{"localhost:6379"})
	v.SetDefault("redis.pool_size", 50)
	v.SetDefault("redis.min_idle_conns", 5)
	v.SetDefault("redis.dial_timeout", "5s")
	v.SetDefault("redis.read_timeout", "3s")
	v.SetDefault("redis.write_timeout", "3s")

	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 1)
	v.SetDefault("postgres.max_conn_lifetime", "1h")
	v.SetDefault("postgres.max_conn_idle_time", "30m")

	v.SetDefault("cache.backend", constants.CacheBackendRedis)
	v.SetDefault("cache.key_prefix", constants.DefaultCacheKeyPrefix)
	v.SetDefault("cache.record_ttl", "0s")
	v.SetDefault("cache.local_ttl", "0s")
	v.SetDefault("cache.local_cleanup", "5m")

	v.SetDefault("discord.refresh_url", constants.DefaultRefreshURL)
	v.SetDefault("discord.user_agent", constants.DefaultUserAgent)
	v.SetDefault("discord.auth_scheme", constants.DefaultAuthScheme)
	v.SetDefault("discord.timeout", constants.DefaultRefreshTimeout.String())
	v.SetDefault("discord.cdn_base_url", constants.DefaultCDNBaseURL)
	// Registered so AutomaticEnv picks up ARGPROXY_DISCORD_TOKEN during Unmarshal.
	v.SetDefault("discord.token", "")

	v.SetDefault("vault.enabled", false)
	v.SetDefault("vault.address", "")
	v.SetDefault("vault.token", "")
	v.SetDefault("vault.mount_path", "secret")
	v.SetDefault("vault.secret_path", "argproxy/discord")
	v.SetDefault("vault.secret_key", "bot_token")
	v.SetDefault("vault.cache_ttl", "5m")

	v.SetDefault("resolver.expiry_margin", constants.DefaultExpiryMargin.String())
	v.SetDefault("resolver.coalesce_refreshes", true)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "argproxy.resolutions")
	v.SetDefault("kafka.batch_timeout", "100ms")

	v.SetDefault("log.level", string(constants.LogLevelInfo))
	v.SetDefault("log.format", "json")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.jaeger_endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("tracing.service_name", constants.ServiceName)
	v.SetDefault("tracing.environment", "development")
	v.SetDefault("tracing.sampling_rate", 0.1)
}
