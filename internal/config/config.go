package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. HYDROCALC_DATABASE_URL
const EnvPrefix = "HYDROCALC"

// Config holds the runtime configuration of the service and the CLI
type Config struct {
	LogLevel    string
	Database    DatabaseConfig
	Backend     BackendConfig
	Server      ServerConfig
	Storage     StorageConfig
	Scheduler   SchedulerConfig
	Annualities []float64
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// BackendConfig points at the geoprocessing backend that runs the tasks
type BackendConfig struct {
	BaseURL      string
	Timeout      time.Duration
	PollInterval time.Duration
}

type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// StorageConfig configures the optional MinIO mirror for batch artifacts
type StorageConfig struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type SchedulerConfig struct {
	TaskSweepCron string
	TaskRetention time.Duration

	// artifact-prune job of the object storage mirror
	ArtifactPruneCron string
	ArtifactRetention time.Duration
}

// SetDefaults registers every known key with its default value
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")

	v.SetDefault("database.url", "sqlite://./hydrocalc.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("backend.base_url", "http://localhost:8000")
	v.SetDefault("backend.timeout", 60*time.Second)
	v.SetDefault("backend.poll_interval", time.Second)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("storage.enabled", false)
	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.access_key", "")
	v.SetDefault("storage.secret_key", "")
	v.SetDefault("storage.bucket", "hydrocalc-artifacts")
	v.SetDefault("storage.use_ssl", false)

	v.SetDefault("scheduler.task_sweep_cron", "*/5 * * * *")
	v.SetDefault("scheduler.task_retention", 15*time.Minute)
	v.SetDefault("scheduler.artifact_prune_cron", "0 3 * * *")
	v.SetDefault("scheduler.artifact_retention", 7*24*time.Hour)

	v.SetDefault("annualities", []float64{2.3, 20, 100})
}

// BindEnv makes every key overridable from the environment
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}

// Load reads an optional config file and returns the resolved configuration
func Load(v *viper.Viper, configFile string) (*Config, error) {
	SetDefaults(v)
	BindEnv(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	annualities, err := parseAnnualities(v.Get("annualities"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		LogLevel: strings.ToLower(v.GetString("log_level")),
		Database: DatabaseConfig{
			URL:             v.GetString("database.url"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("database.conn_max_lifetime"),
		},
		Backend: BackendConfig{
			BaseURL:      v.GetString("backend.base_url"),
			Timeout:      v.GetDuration("backend.timeout"),
			PollInterval: v.GetDuration("backend.poll_interval"),
		},
		Server: ServerConfig{
			Addr:            v.GetString("server.addr"),
			ReadTimeout:     v.GetDuration("server.read_timeout"),
			WriteTimeout:    v.GetDuration("server.write_timeout"),
			IdleTimeout:     v.GetDuration("server.idle_timeout"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
		},
		Storage: StorageConfig{
			Enabled:   v.GetBool("storage.enabled"),
			Endpoint:  v.GetString("storage.endpoint"),
			AccessKey: v.GetString("storage.access_key"),
			SecretKey: v.GetString("storage.secret_key"),
			Bucket:    v.GetString("storage.bucket"),
			UseSSL:    v.GetBool("storage.use_ssl"),
		},
		Scheduler: SchedulerConfig{
			TaskSweepCron: v.GetString("scheduler.task_sweep_cron"),
			TaskRetention: v.GetDuration("scheduler.task_retention"),

			ArtifactPruneCron: v.GetString("scheduler.artifact_prune_cron"),
			ArtifactRetention: v.GetDuration("scheduler.artifact_retention"),
		},
		Annualities: annualities,
	}

	if cfg.Backend.PollInterval <= 0 {
		return nil, fmt.Errorf("backend.poll_interval must be positive, got %s", cfg.Backend.PollInterval)
	}

	return cfg, nil
}

// parseAnnualities accepts a list from a config file or a comma separated
// string from the environment ("2.3,20,100").
func parseAnnualities(raw interface{}) ([]float64, error) {
	var out []float64
	switch val := raw.(type) {
	case []float64:
		out = append(out, val...)
	case []interface{}:
		for _, item := range val {
			f, err := toFloat(item)
			if err != nil {
				return nil, err
			}
			out = append(out, f)
		}
	case string:
		for _, part := range strings.Split(val, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			f, err := toFloat(part)
			if err != nil {
				return nil, err
			}
			out = append(out, f)
		}
	default:
		return nil, fmt.Errorf("unsupported annualities value %v", raw)
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("at least one annuality must be configured")
	}
	for _, n := range out {
		if n <= 0 {
			return nil, fmt.Errorf("annuality must be positive, got %g", n)
		}
	}
	return out, nil
}

func toFloat(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case string:
		var f float64
		if _, err := fmt.Sscanf(n, "%g", &f); err != nil {
			return 0, fmt.Errorf("invalid annuality %q: %w", n, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("invalid annuality %v", v)
	}
}
