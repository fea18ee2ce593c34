package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/nimburion/mountsync/pkg/observability/logger"
)

// DefaultEnvPrefix prefixes every environment variable read by the loader.
const DefaultEnvPrefix = "MOUNTSYNC"

// Loader defines the interface for loading configuration
type Loader interface {
	Load() (*Config, error)
	Validate(*Config) error
}

// ViperLoader implements Loader using Viper for configuration management
type ViperLoader struct {
	configFile string
	envPrefix  string
}

// NewViperLoader creates a new ViperLoader
// configFile: path to configuration file (optional, can be empty)
// envPrefix: prefix for environment variables (defaults to MOUNTSYNC)
func NewViperLoader(configFile, envPrefix string) *ViperLoader {
	return &ViperLoader{
		configFile: configFile,
		envPrefix:  envPrefix,
	}
}

// Load loads configuration with precedence: ENV > file > defaults
func (l *ViperLoader) Load() (*Config, error) {
	cfg, _, err := l.load(false)
	return cfg, err
}

// load layers defaults, the config file, optionally the secrets file, and the
// environment, then validates the result. The second result holds only the
// values read from the secrets file.
func (l *ViperLoader) load(withSecrets bool) (*Config, *Config, error) {
	v := viper.New()
	l.setDefaults(v, DefaultConfig())

	if l.configFile != "" {
		v.SetConfigFile(l.configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, nil, fmt.Errorf("failed to read config file %s: %w", l.configFile, err)
		}
	}

	var secrets *Config
	if withSecrets {
		var err error
		if secrets, err = l.mergeSecrets(v); err != nil {
			return nil, nil, err
		}
	}

	v.SetEnvPrefix(l.prefix())
	l.bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := l.Validate(&cfg); err != nil {
		return nil, nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, secrets, nil
}

// bindEnvVars explicitly binds environment variables for nested structs
func (l *ViperLoader) bindEnvVars(v *viper.Viper) {
	// Service
	v.BindEnv("service.name", l.prefixedEnv("SERVICE_NAME"))
	v.BindEnv("service.environment", l.prefixedEnv("SERVICE_ENVIRONMENT"), l.prefixedEnv("ENVIRONMENT"))

	// Refresh
	v.BindEnv("refresh.interval", l.prefixedEnv("REFRESH_INTERVAL"))
	v.BindEnv("refresh.run_on_start", l.prefixedEnv("REFRESH_RUN_ON_START"))
	v.BindEnv("refresh.batch_timeout", l.prefixedEnv("REFRESH_BATCH_TIMEOUT"))
	v.BindEnv("refresh.client_max_lifetime", l.prefixedEnv("REFRESH_CLIENT_MAX_LIFETIME"))
	v.BindEnv("refresh.sweep_period", l.prefixedEnv("REFRESH_SWEEP_PERIOD"))
	v.BindEnv("refresh.local_marker", l.prefixedEnv("REFRESH_LOCAL_MARKER"))
	v.BindEnv("refresh.serialize_cycles", l.prefixedEnv("REFRESH_SERIALIZE_CYCLES"))
	v.BindEnv("refresh.cancel_on_timeout", l.prefixedEnv("REFRESH_CANCEL_ON_TIMEOUT"))

	// Directory
	v.BindEnv("directory.type", l.prefixedEnv("DIRECTORY_TYPE"))
	v.BindEnv("directory.operation_timeout", l.prefixedEnv("DIRECTORY_OPERATION_TIMEOUT"))
	v.BindEnv("directory.static.addresses", l.prefixedEnv("DIRECTORY_STATIC_ADDRESSES"))
	v.BindEnv("directory.etcd.endpoints", l.prefixedEnv("DIRECTORY_ETCD_ENDPOINTS"))
	v.BindEnv("directory.etcd.prefix", l.prefixedEnv("DIRECTORY_ETCD_PREFIX"))
	v.BindEnv("directory.etcd.dial_timeout", l.prefixedEnv("DIRECTORY_ETCD_DIAL_TIMEOUT"))
	v.BindEnv("directory.etcd.username", l.prefixedEnv("DIRECTORY_ETCD_USERNAME"))
	v.BindEnv("directory.etcd.password", l.prefixedEnv("DIRECTORY_ETCD_PASSWORD"))
	v.BindEnv("directory.redis.url", l.prefixedEnv("DIRECTORY_REDIS_URL"))
	v.BindEnv("directory.redis.key", l.prefixedEnv("DIRECTORY_REDIS_KEY"))

	// Admin client
	v.BindEnv("admin_client.scheme", l.prefixedEnv("ADMIN_CLIENT_SCHEME"))
	v.BindEnv("admin_client.refresh_path", l.prefixedEnv("ADMIN_CLIENT_REFRESH_PATH"))
	v.BindEnv("admin_client.timeout", l.prefixedEnv("ADMIN_CLIENT_TIMEOUT"))
	v.BindEnv("admin_client.token", l.prefixedEnv("ADMIN_CLIENT_TOKEN"))

	// Lock
	v.BindEnv("lock.enabled", l.prefixedEnv("LOCK_ENABLED"))
	v.BindEnv("lock.provider", l.prefixedEnv("LOCK_PROVIDER"))
	v.BindEnv("lock.key", l.prefixedEnv("LOCK_KEY"))
	v.BindEnv("lock.ttl", l.prefixedEnv("LOCK_TTL"))
	v.BindEnv("lock.redis.url", l.prefixedEnv("LOCK_REDIS_URL"))
	v.BindEnv("lock.redis.prefix", l.prefixedEnv("LOCK_REDIS_PREFIX"))
	v.BindEnv("lock.redis.operation_timeout", l.prefixedEnv("LOCK_REDIS_OPERATION_TIMEOUT"))

	// Management
	v.BindEnv("management.enabled", l.prefixedEnv("MGMT_ENABLED"), l.prefixedEnv("MANAGEMENT_ENABLED"))
	v.BindEnv("management.port", l.prefixedEnv("MGMT_PORT"), l.prefixedEnv("MANAGEMENT_PORT"))
	v.BindEnv("management.read_timeout", l.prefixedEnv("MGMT_READ_TIMEOUT"))
	v.BindEnv("management.write_timeout", l.prefixedEnv("MGMT_WRITE_TIMEOUT"))
	v.BindEnv("management.shutdown_timeout", l.prefixedEnv("MGMT_SHUTDOWN_TIMEOUT"))

	// Observability
	v.BindEnv("observability.log_level", l.prefixedEnv("LOG_LEVEL"))
	v.BindEnv("observability.log_format", l.prefixedEnv("LOG_FORMAT"))
	v.BindEnv("observability.tracing_enabled", l.prefixedEnv("TRACING_ENABLED"))
	v.BindEnv("observability.tracing_sample_rate", l.prefixedEnv("TRACING_SAMPLE_RATE"))
	v.BindEnv("observability.tracing_endpoint", l.prefixedEnv("TRACING_ENDPOINT"))
	v.BindEnv("observability.tracing_insecure", l.prefixedEnv("TRACING_INSECURE"))
	v.BindEnv("observability.async_logging.enabled", l.prefixedEnv("ASYNC_LOGGING_ENABLED"))
	v.BindEnv("observability.async_logging.queue_size", l.prefixedEnv("ASYNC_LOGGING_QUEUE_SIZE"))
	v.BindEnv("observability.async_logging.drop_when_full", l.prefixedEnv("ASYNC_LOGGING_DROP_WHEN_FULL"))
}

func (l *ViperLoader) prefix() string {
	prefix := strings.TrimSpace(l.envPrefix)
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}
	return strings.ToUpper(prefix)
}

func (l *ViperLoader) prefixedEnv(suffix string) string {
	return fmt.Sprintf("%s_%s", l.prefix(), suffix)
}

// setDefaults sets default values in Viper from the default config
func (l *ViperLoader) setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("service.name", cfg.Service.Name)
	v.SetDefault("service.environment", cfg.Service.Environment)

	v.SetDefault("refresh.interval", cfg.Refresh.Interval)
	v.SetDefault("refresh.run_on_start", cfg.Refresh.RunOnStart)
	v.SetDefault("refresh.batch_timeout", cfg.Refresh.BatchTimeout)
	v.SetDefault("refresh.client_max_lifetime", cfg.Refresh.ClientMaxLifetime)
	v.SetDefault("refresh.sweep_period", cfg.Refresh.SweepPeriod)
	v.SetDefault("refresh.local_marker", cfg.Refresh.LocalMarker)
	v.SetDefault("refresh.serialize_cycles", cfg.Refresh.SerializeCycles)
	v.SetDefault("refresh.cancel_on_timeout", cfg.Refresh.CancelOnTimeout)

	v.SetDefault("directory.type", cfg.Directory.Type)
	v.SetDefault("directory.operation_timeout", cfg.Directory.OperationTimeout)
	v.SetDefault("directory.static.addresses", cfg.Directory.Static.Addresses)
	v.SetDefault("directory.etcd.endpoints", cfg.Directory.Etcd.Endpoints)
	v.SetDefault("directory.etcd.prefix", cfg.Directory.Etcd.Prefix)
	v.SetDefault("directory.etcd.dial_timeout", cfg.Directory.Etcd.DialTimeout)
	v.SetDefault("directory.etcd.username", cfg.Directory.Etcd.Username)
	v.SetDefault("directory.etcd.password", cfg.Directory.Etcd.Password)
	v.SetDefault("directory.redis.url", cfg.Directory.Redis.URL)
	v.SetDefault("directory.redis.key", cfg.Directory.Redis.Key)

	v.SetDefault("admin_client.scheme", cfg.AdminClient.Scheme)
	v.SetDefault("admin_client.refresh_path", cfg.AdminClient.RefreshPath)
	v.SetDefault("admin_client.timeout", cfg.AdminClient.Timeout)
	v.SetDefault("admin_client.token", cfg.AdminClient.Token)

	v.SetDefault("lock.enabled", cfg.Lock.Enabled)
	v.SetDefault("lock.provider", cfg.Lock.Provider)
	v.SetDefault("lock.key", cfg.Lock.Key)
	v.SetDefault("lock.ttl", cfg.Lock.TTL)
	v.SetDefault("lock.redis.url", cfg.Lock.Redis.URL)
	v.SetDefault("lock.redis.prefix", cfg.Lock.Redis.Prefix)
	v.SetDefault("lock.redis.operation_timeout", cfg.Lock.Redis.OperationTimeout)

	v.SetDefault("management.enabled", cfg.Management.Enabled)
	v.SetDefault("management.port", cfg.Management.Port)
	v.SetDefault("management.read_timeout", cfg.Management.ReadTimeout)
	v.SetDefault("management.write_timeout", cfg.Management.WriteTimeout)
	v.SetDefault("management.shutdown_timeout", cfg.Management.ShutdownTimeout)

	v.SetDefault("observability.log_level", cfg.Observability.LogLevel)
	v.SetDefault("observability.log_format", cfg.Observability.LogFormat)
	v.SetDefault("observability.tracing_enabled", cfg.Observability.TracingEnabled)
	v.SetDefault("observability.tracing_sample_rate", cfg.Observability.TracingSampleRate)
	v.SetDefault("observability.tracing_endpoint", cfg.Observability.TracingEndpoint)
	v.SetDefault("observability.tracing_insecure", cfg.Observability.TracingInsecure)
	v.SetDefault("observability.async_logging.enabled", cfg.Observability.AsyncLogging.Enabled)
	v.SetDefault("observability.async_logging.queue_size", cfg.Observability.AsyncLogging.QueueSize)
	v.SetDefault("observability.async_logging.drop_when_full", cfg.Observability.AsyncLogging.DropWhenFull)
}

// Validate normalizes cfg and reports every configuration error at once.
func (l *ViperLoader) Validate(cfg *Config) error {
	var errs []error

	cfg.Directory.Type = strings.ToLower(strings.TrimSpace(cfg.Directory.Type))
	cfg.Directory.Static.Addresses = trimStringSlice(cfg.Directory.Static.Addresses)
	cfg.Directory.Etcd.Endpoints = normalizeStringSlice(cfg.Directory.Etcd.Endpoints)
	cfg.Lock.Provider = strings.ToLower(strings.TrimSpace(cfg.Lock.Provider))
	cfg.AdminClient.Scheme = strings.ToLower(strings.TrimSpace(cfg.AdminClient.Scheme))

	if strings.TrimSpace(cfg.Service.Name) == "" {
		errs = append(errs, errors.New("service.name is required"))
	}

	// Refresh
	if cfg.Refresh.Interval < 0 {
		errs = append(errs, errors.New("refresh.interval cannot be negative"))
	}
	if cfg.Refresh.BatchTimeout <= 0 {
		errs = append(errs, errors.New("refresh.batch_timeout must be positive"))
	}
	if cfg.Refresh.ClientMaxLifetime <= 0 {
		errs = append(errs, errors.New("refresh.client_max_lifetime must be positive"))
	}
	if cfg.Refresh.SweepPeriod < 0 {
		errs = append(errs, errors.New("refresh.sweep_period cannot be negative"))
	}
	if strings.TrimSpace(cfg.Refresh.LocalMarker) == "" {
		errs = append(errs, errors.New("refresh.local_marker is required"))
	}

	// Directory
	validDirectoryTypes := []string{DirectoryTypeStatic, DirectoryTypeEtcd, DirectoryTypeRedis}
	if !contains(validDirectoryTypes, cfg.Directory.Type) {
		errs = append(errs, fmt.Errorf("invalid directory.type: %s (must be one of: %v)", cfg.Directory.Type, validDirectoryTypes))
	}
	if cfg.Directory.Type == DirectoryTypeEtcd && len(cfg.Directory.Etcd.Endpoints) == 0 {
		errs = append(errs, errors.New("directory.etcd.endpoints is required when directory.type is etcd"))
	}
	if cfg.Directory.Type == DirectoryTypeRedis && strings.TrimSpace(cfg.Directory.Redis.URL) == "" {
		errs = append(errs, errors.New("directory.redis.url is required when directory.type is redis"))
	}
	if cfg.Directory.OperationTimeout <= 0 {
		errs = append(errs, errors.New("directory.operation_timeout must be positive"))
	}

	// Admin client
	if !contains([]string{"http", "https"}, cfg.AdminClient.Scheme) {
		errs = append(errs, fmt.Errorf("invalid admin_client.scheme: %s (must be http or https)", cfg.AdminClient.Scheme))
	}
	if cfg.AdminClient.Timeout <= 0 {
		errs = append(errs, errors.New("admin_client.timeout must be positive"))
	}

	// Lock
	if cfg.Lock.Enabled {
		if cfg.Lock.Provider != LockProviderRedis {
			errs = append(errs, fmt.Errorf("invalid lock.provider: %s (must be one of: [%s])", cfg.Lock.Provider, LockProviderRedis))
		}
		if strings.TrimSpace(cfg.Lock.Redis.URL) == "" {
			errs = append(errs, errors.New("lock.redis.url is required when lock is enabled"))
		}
		if strings.TrimSpace(cfg.Lock.Key) == "" {
			errs = append(errs, errors.New("lock.key is required when lock is enabled"))
		}
		if cfg.Lock.TTL <= cfg.Refresh.BatchTimeout {
			errs = append(errs, fmt.Errorf("lock.ttl (%s) must exceed refresh.batch_timeout (%s)", cfg.Lock.TTL, cfg.Refresh.BatchTimeout))
		}
	}

	// Management
	if cfg.Management.Enabled {
		if cfg.Management.Port <= 0 || cfg.Management.Port > 65535 {
			errs = append(errs, fmt.Errorf("invalid management.port: %d (must be between 1 and 65535)", cfg.Management.Port))
		}
	}

	// Observability
	if _, err := logger.ParseLogLevel(cfg.Observability.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid observability.log_level: %s (must be one of: [debug info warn error])", cfg.Observability.LogLevel))
	}
	if _, err := logger.ParseLogFormat(cfg.Observability.LogFormat); err != nil {
		errs = append(errs, fmt.Errorf("invalid observability.log_format: %s (must be one of: [json text])", cfg.Observability.LogFormat))
	}
	if cfg.Observability.TracingEnabled && cfg.Observability.TracingEndpoint == "" {
		errs = append(errs, errors.New("observability.tracing_endpoint is required when tracing is enabled"))
	}
	if cfg.Observability.TracingSampleRate < 0 || cfg.Observability.TracingSampleRate > 1 {
		errs = append(errs, fmt.Errorf("invalid observability.tracing_sample_rate: %v (must be between 0 and 1)", cfg.Observability.TracingSampleRate))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// contains checks if a string slice contains a specific string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// normalizeStringSlice removes empty strings and trims whitespace
func normalizeStringSlice(values []string) []string {
	result := make([]string, 0, len(values))
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// trimStringSlice trims whitespace but keeps empty entries, which mark
// routers with a disabled admin interface.
func trimStringSlice(values []string) []string {
	result := make([]string, 0, len(values))
	for _, value := range values {
		result = append(result, strings.TrimSpace(value))
	}
	return result
}
