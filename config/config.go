// Package config loads the run configuration from flags, environment and an
// optional YAML file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/mitchellh/mapstructure"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/TreeWu/mongo-perf/benchmark"
	"github.com/TreeWu/mongo-perf/connection"
	"github.com/TreeWu/mongo-perf/workloads"
)

const EnvPrefix = "MONGOPERF"

type Config struct {
	ConnectionString string        `mapstructure:"connection_string"`
	Iterations       int           `mapstructure:"iterations"`
	MultiDB          bool          `mapstructure:"multi_db"`
	Username         string        `mapstructure:"username"`
	Password         string        `mapstructure:"password"`
	AuthDatabase     string        `mapstructure:"auth_database"`
	Batch            bool          `mapstructure:"batch"`
	WriteConcern     bool          `mapstructure:"write_concern"`
	TestName         string        `mapstructure:"testname"`
	Levels           []int         `mapstructure:"levels"`
	Engine           string        `mapstructure:"engine"`
	Timeout          time.Duration `mapstructure:"timeout"`
	LogLevel         string        `mapstructure:"log_level"`

	Output OutputConfig `mapstructure:"output"`
	Store  StoreConfig  `mapstructure:"store"`
	Serve  ServeConfig  `mapstructure:"serve"`
}

type OutputConfig struct {
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// StoreConfig names the result stores a run also writes to. Empty means off.
type StoreConfig struct {
	Label                  string   `mapstructure:"label"`
	MongoURI               string   `mapstructure:"mongo_uri"`
	PostgresDSN            string   `mapstructure:"postgres_dsn"`
	PostgresTable          string   `mapstructure:"postgres_table"`
	ElasticsearchAddresses []string `mapstructure:"elasticsearch_addresses"`
	ElasticsearchIndex     string   `mapstructure:"elasticsearch_index"`
}

type ServeConfig struct {
	Addr string `mapstructure:"addr"`
}

const (
	EngineMongo  = "mongo"
	EngineMemory = "memory"

	FormatJSON = "json"
	FormatCSV  = "csv"
	FormatText = "text"
)

// SetDefaults registers every key so environment variables can override any
// of them.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("connection_string", "mongodb://localhost:27017")
	v.SetDefault("iterations", 100000)
	v.SetDefault("multi_db", false)
	v.SetDefault("username", "")
	v.SetDefault("password", "")
	v.SetDefault("auth_database", "")
	v.SetDefault("batch", false)
	v.SetDefault("write_concern", false)
	v.SetDefault("testname", "")
	v.SetDefault("timeout", time.Duration(0))
	v.SetDefault("levels", benchmark.DefaultLevels)
	v.SetDefault("engine", EngineMongo)
	v.SetDefault("log_level", "info")
	v.SetDefault("output.format", FormatJSON)
	v.SetDefault("output.file", "")
	v.SetDefault("store.label", "local")
	v.SetDefault("store.mongo_uri", "")
	v.SetDefault("store.postgres_dsn", "")
	v.SetDefault("store.elasticsearch_addresses", []string{})
	v.SetDefault("store.postgres_table", "bench_results")
	v.SetDefault("store.elasticsearch_index", "bench_results")
	v.SetDefault("serve.addr", ":8080")
}

// New returns a viper instance with defaults and MONGOPERF_ environment
// variables wired. Nested keys use '_' in place of '.'.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// ReadFile merges a YAML config file. An empty path looks for
// ./mongo-perf.yaml and skips it when absent.
func ReadFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("mongo-perf")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok && path == "" {
			return nil
		}
		return fmt.Errorf("读取配置文件失败: %w", err)
	}
	log.WithField("file", v.ConfigFileUsed()).Debug("config file loaded")
	return nil
}

// Load decodes and validates the configuration.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)))
	if err != nil {
		return cfg, &benchmark.ConfigError{Err: fmt.Errorf("解析配置失败: %w", err)}
	}
	return cfg, cfg.Validate()
}

// Validate reports every problem at once as a *benchmark.ConfigError.
func (c Config) Validate() error {
	var result *multierror.Error
	switch c.Engine {
	case EngineMongo:
		if c.ConnectionString == "" {
			result = multierror.Append(result, fmt.Errorf("connection_string is required"))
		}
	case EngineMemory:
	default:
		result = multierror.Append(result, fmt.Errorf("unknown engine %q, want %s or %s", c.Engine, EngineMongo, EngineMemory))
	}
	if c.Iterations <= 0 {
		result = multierror.Append(result, fmt.Errorf("iterations must be positive, got %d", c.Iterations))
	}
	if (c.Username == "") != (c.Password == "") {
		result = multierror.Append(result, fmt.Errorf("username and password must be given together"))
	}
	if c.TestName != "" {
		if _, err := workloads.ForCategory(c.TestName); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := benchmark.ValidateLevels(c.Levels, connection.MaxShards); err != nil {
		result = multierror.Append(result, err)
	}
	if c.Timeout < 0 {
		result = multierror.Append(result, fmt.Errorf("timeout must not be negative"))
	}
	switch c.Output.Format {
	case FormatJSON, FormatCSV, FormatText:
	default:
		result = multierror.Append(result, fmt.Errorf("unknown output format %q", c.Output.Format))
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		result = multierror.Append(result, err)
	}
	if err := result.ErrorOrNil(); err != nil {
		return &benchmark.ConfigError{Err: err}
	}
	return nil
}

// Mongo is the facade configuration for a run.
func (c Config) Mongo() connection.MongoConfig {
	return connection.MongoConfig{
		URI:          c.ConnectionString,
		Username:     c.Username,
		Password:     c.Password,
		AuthDatabase: c.AuthDatabase,
		Iterations:   c.Iterations,
		MultiDB:      c.MultiDB,
		Batch:        c.Batch,
		WriteConcern: c.WriteConcern,
		Timeout:      c.Timeout,
	}
}

func (c Config) Memory() connection.MemoryConfig {
	return connection.MemoryConfig{
		Iterations:   c.Iterations,
		MultiDB:      c.MultiDB,
		WriteConcern: c.WriteConcern,
	}
}
