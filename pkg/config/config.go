package config

import "time"

// Directory backend constants
const (
	// DirectoryTypeStatic lists routers from configuration
	DirectoryTypeStatic = "static"
	// DirectoryTypeEtcd reads router records from etcd
	DirectoryTypeEtcd = "etcd"
	// DirectoryTypeRedis reads router records from a redis hash
	DirectoryTypeRedis = "redis"
)

// Cycle lock provider constants
const (
	// LockProviderRedis uses Redis for the cross-replica cycle lock
	LockProviderRedis = "redis"
)

// Config is the root configuration structure for the refresh coordinator
type Config struct {
	Service       ServiceConfig       `mapstructure:"service"`
	Refresh       RefreshConfig       `mapstructure:"refresh"`
	Directory     DirectoryConfig     `mapstructure:"directory"`
	AdminClient   AdminClientConfig   `mapstructure:"admin_client"`
	Lock          LockConfig          `mapstructure:"lock"`
	Management    ManagementConfig    `mapstructure:"management"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// ServiceConfig configures service identity metadata.
type ServiceConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// RefreshConfig configures refresh cycles and the admin client cache.
type RefreshConfig struct {
	// Interval between periodic cycles in serve mode; zero disables them.
	Interval          time.Duration `mapstructure:"interval"`
	RunOnStart        bool          `mapstructure:"run_on_start"`
	BatchTimeout      time.Duration `mapstructure:"batch_timeout"`
	ClientMaxLifetime time.Duration `mapstructure:"client_max_lifetime"`
	// SweepPeriod defaults to ClientMaxLifetime when zero.
	SweepPeriod     time.Duration `mapstructure:"sweep_period"`
	LocalMarker     string        `mapstructure:"local_marker"`
	SerializeCycles bool          `mapstructure:"serialize_cycles"`
	CancelOnTimeout bool          `mapstructure:"cancel_on_timeout"`
}

// DirectoryConfig selects where the list of routers comes from.
type DirectoryConfig struct {
	Type             string                `mapstructure:"type"` // static, etcd, redis
	OperationTimeout time.Duration         `mapstructure:"operation_timeout"`
	Static           StaticDirectoryConfig `mapstructure:"static"`
	Etcd             EtcdDirectoryConfig   `mapstructure:"etcd"`
	Redis            RedisDirectoryConfig  `mapstructure:"redis"`
}

// StaticDirectoryConfig lists router admin addresses inline.
type StaticDirectoryConfig struct {
	Addresses []string `mapstructure:"addresses"`
}

// EtcdDirectoryConfig configures the etcd directory backend.
type EtcdDirectoryConfig struct {
	Endpoints   []string      `mapstructure:"endpoints"`
	Prefix      string        `mapstructure:"prefix"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
}

// RedisDirectoryConfig configures the redis directory backend.
type RedisDirectoryConfig struct {
	URL string `mapstructure:"url"`
	Key string `mapstructure:"key"`
}

// AdminClientConfig configures the HTTP client used to reach router admins.
type AdminClientConfig struct {
	Scheme      string        `mapstructure:"scheme"`
	RefreshPath string        `mapstructure:"refresh_path"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Token       string        `mapstructure:"token"`
}

// LockConfig configures the lock that keeps coordinator replicas from running
// the same cycle twice.
type LockConfig struct {
	Enabled  bool            `mapstructure:"enabled"`
	Provider string          `mapstructure:"provider"` // redis
	Key      string          `mapstructure:"key"`
	TTL      time.Duration   `mapstructure:"ttl"`
	Redis    LockRedisConfig `mapstructure:"redis"`
}

// LockRedisConfig configures the Redis lock provider.
type LockRedisConfig struct {
	URL              string        `mapstructure:"url"`
	Prefix           string        `mapstructure:"prefix"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
}

// ManagementConfig configures the management server (health, metrics, refresh trigger)
type ManagementConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// ObservabilityConfig configures logging and tracing.
type ObservabilityConfig struct {
	LogLevel          string             `mapstructure:"log_level"`
	LogFormat         string             `mapstructure:"log_format"` // json, text
	TracingEnabled    bool               `mapstructure:"tracing_enabled"`
	TracingSampleRate float64            `mapstructure:"tracing_sample_rate"`
	TracingEndpoint   string             `mapstructure:"tracing_endpoint"`
	TracingInsecure   bool               `mapstructure:"tracing_insecure"`
	AsyncLogging      AsyncLoggingConfig `mapstructure:"async_logging"`
}

// AsyncLoggingConfig configures optional asynchronous logger dispatching.
type AsyncLoggingConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	QueueSize    int  `mapstructure:"queue_size"`
	DropWhenFull bool `mapstructure:"drop_when_full"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:        "mountsync",
			Environment: "production",
		},
		Refresh: RefreshConfig{
			Interval:          time.Minute,
			RunOnStart:        true,
			BatchTimeout:      10 * time.Second,
			ClientMaxLifetime: 15 * time.Second,
			LocalMarker:       "local",
			SerializeCycles:   true,
		},
		Directory: DirectoryConfig{
			Type:             DirectoryTypeStatic,
			OperationTimeout: 3 * time.Second,
			Etcd: EtcdDirectoryConfig{
				Prefix:      "/mountsync/routers/",
				DialTimeout: 5 * time.Second,
			},
			Redis: RedisDirectoryConfig{
				Key: "mountsync:routers",
			},
		},
		AdminClient: AdminClientConfig{
			Scheme:      "http",
			RefreshPath: "/admin/mount-table/refresh",
			Timeout:     5 * time.Second,
		},
		Lock: LockConfig{
			Provider: LockProviderRedis,
			Key:      "refresh-cycle",
			TTL:      30 * time.Second,
			Redis: LockRedisConfig{
				Prefix:           "mountsync:lock",
				OperationTimeout: 3 * time.Second,
			},
		},
		Management: ManagementConfig{
			Enabled:         true,
			Port:            9090,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Observability: ObservabilityConfig{
			LogLevel:          "info",
			LogFormat:         "json",
			TracingSampleRate: 0.1,
			TracingEndpoint:   "localhost:4317",
			TracingInsecure:   true,
			AsyncLogging: AsyncLoggingConfig{
				QueueSize: 1024,
			},
		},
	}
}
