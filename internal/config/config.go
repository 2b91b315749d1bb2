package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/turtacn/argproxy/pkg/constants"
	"github.com/turtacn/argproxy/pkg/errors"
)

// Config holds the application's configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Discord  DiscordConfig  `mapstructure:"discord"`
	Vault    VaultConfig    `mapstructure:"vault"`
	Resolver ResolverConfig `mapstructure:"resolver"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Log      LogConfig      `mapstructure:"log"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	GRPCPort        int           `mapstructure:"grpc_port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	Environment     string        `mapstructure:"environment"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

// Addr returns the HTTP listen address.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GRPCAddr returns the gRPC listen address.
func (c *ServerConfig) GRPCAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.GRPCPort)
}

// IsProduction reports whether debug surfaces such as pprof must stay off.
func (c *ServerConfig) IsProduction() bool {
	return c.Environment == "production"
}

type RedisConfig struct {
	Mode         string        `mapstructure:"mode"` // standalone, cluster, sentinel
	Addresses    []string      `mapstructure:"addresses"`
	MasterName   string        `mapstructure:"master_name"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type PostgresConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// CacheConfig selects and tunes the link store.
type CacheConfig struct {
	Backend      string        `mapstructure:"backend"` // redis, postgres
	KeyPrefix    string        `mapstructure:"key_prefix"`
	RecordTTL    time.Duration `mapstructure:"record_ttl"` // 0 keeps records forever
	LocalTTL     time.Duration `mapstructure:"local_ttl"`  // 0 disables the in-process tier
	LocalCleanup time.Duration `mapstructure:"local_cleanup"`
}

// DiscordConfig describes the upstream refresh API.
type DiscordConfig struct {
	RefreshURL string        `mapstructure:"refresh_url"`
	UserAgent  string        `mapstructure:"user_agent"`
	AuthScheme string        `mapstructure:"auth_scheme"`
	Token      string        `mapstructure:"token"`
	Timeout    time.Duration `mapstructure:"timeout"`
	CDNBaseURL string        `mapstructure:"cdn_base_url"`
}

// VaultConfig describes where the bot token lives when it is not configured inline.
type VaultConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Address    string        `mapstructure:"address"`
	Token      string        `mapstructure:"token"`
	MountPath  string        `mapstructure:"mount_path"`
	SecretPath string        `mapstructure:"secret_path"`
	SecretKey  string        `mapstructure:"secret_key"`
	CacheTTL   time.Duration `mapstructure:"cache_ttl"`
}

type ResolverConfig struct {
	ExpiryMargin      time.Duration `mapstructure:"expiry_margin"`
	CoalesceRefreshes bool          `mapstructure:"coalesce_refreshes"`
}

type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, console
}

type TracingConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	JaegerEndpoint string  `mapstructure:"jaeger_endpoint"`
	ServiceName    string  `mapstructure:"service_name"`
	Environment    string  `mapstructure:"environment"`
	SamplingRate   float64 `mapstructure:"sampling_rate"`
}

// Validate checks for essential configuration values.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.ErrInvalidConfig(fmt.Sprintf("server.port %d is out of range", c.Server.Port))
	}

	switch c.Cache.Backend {
	case constants.CacheBackendRedis:
		if len(c.Redis.Addresses) == 0 {
			return errors.ErrInvalidConfig("redis.addresses is required for the redis cache backend")
		}
	case constants.CacheBackendPostgres:
		if c.Postgres.DSN == "" {
			return errors.ErrInvalidConfig("postgres.dsn is required for the postgres cache backend")
		}
	default:
		return errors.ErrInvalidConfig(fmt.Sprintf("unknown cache.backend %q", c.Cache.Backend))
	}
	if c.Cache.RecordTTL < 0 || c.Cache.LocalTTL < 0 {
		return errors.ErrInvalidConfig("cache ttls must not be negative")
	}

	if _, err := url.ParseRequestURI(c.Discord.RefreshURL); err != nil {
		return errors.ErrInvalidConfig("discord.refresh_url is not a valid url").WithCause(err)
	}
	if _, err := url.ParseRequestURI(c.Discord.CDNBaseURL); err != nil {
		return errors.ErrInvalidConfig("discord.cdn_base_url is not a valid url").WithCause(err)
	}
	if c.Vault.Enabled {
		if c.Vault.Address == "" || c.Vault.SecretPath == "" {
			return errors.ErrInvalidConfig("vault.address and vault.secret_path are required when vault is enabled")
		}
	} else if c.Discord.Token == "" {
		return errors.ErrInvalidConfig("discord.token is required when vault is disabled")
	}

	if c.Resolver.ExpiryMargin < 0 {
		return errors.ErrInvalidConfig("resolver.expiry_margin must not be negative")
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return errors.ErrInvalidConfig("kafka.brokers and kafka.topic are required when kafka is enabled")
	}
	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		return errors.ErrInvalidConfig("tracing.sampling_rate must be between 0 and 1")
	}
	return nil
}
