package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var config Config

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Routing    RoutingConfig    `yaml:"routing"`
	Conflation ConflationConfig `yaml:"conflation"`
	Process    ProcessConfig    `yaml:"process"`
	NodeWays   NodeWaysConfig   `yaml:"nodeways"`
	Log        LogConfig        `yaml:"log"`
}

type ServerConfig struct {
	Port                  int        `yaml:"port" validate:"gt=0,lt=65536"`
	MaxConcurrentRequests int        `yaml:"maxConcurrentRequests" validate:"gt=0"`
	Timeout               int        `yaml:"timeout" validate:"gt=0"`
	CORS                  CORSConfig `yaml:"cors"`
}

type CORSConfig struct {
	AllowOrigins []string `yaml:"allowOrigins"`
	AllowMethods []string `yaml:"allowMethods"`
	AllowHeaders []string `yaml:"allowHeaders"`
}

// DatabaseConfig configures the PostGIS pool. An empty connection string
// makes pgx fall back to the PG* environment variables.
type DatabaseConfig struct {
	ConnectionString string `yaml:"connectionString"`
	MaxConnections   int32  `yaml:"maxConnections" validate:"gt=0"`
}

// RoutingConfig maps every conflation map version to the OSRM instance
// built from the matching base map.
type RoutingConfig struct {
	Servers map[string]string `yaml:"servers" validate:"dive,keys,required,endkeys,url"`
	Timeout int               `yaml:"timeout" validate:"gt=0"`
}

type ConflationConfig struct {
	Buffer              float64 `yaml:"buffer" validate:"gt=0"`
	Workers             int     `yaml:"workers" validate:"gt=0"`
	VersionCacheMinutes int     `yaml:"versionCacheMinutes" validate:"gte=0"`
}

type ProcessConfig struct {
	Folder string `yaml:"folder"`
}

type NodeWaysConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=trace debug info warn error"`
}

// InitializeConfig loads the configuration
// returns an error if there was a problem loading the configuration.
func InitializeConfig() error {
	path := os.Getenv("CONFLATOR_CONFIG")
	if path == "" {
		path = "config.yml"
	}

	cfg, err := Load(path)
	if err != nil {
		return err
	}

	config = cfg
	return nil
}

// Load reads a .env file when present, then the YAML file at path, applies
// defaults and CONFLATOR_* environment overrides and validates the result.
// A missing YAML file is not an error, defaults and the environment are used.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("error loading .env: %w", err)
	}

	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("error reading %s: %w", path, err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("error parsing %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Default returns the configuration used for every value not set in the
// config file or environment.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:                  7182,
			MaxConcurrentRequests: 64,
			Timeout:               60,
			CORS: CORSConfig{
				AllowOrigins: []string{"*"},
				AllowMethods: []string{"GET", "POST", "OPTIONS"},
				AllowHeaders: []string{"Authorization", "Content-Type"},
			},
		},
		Database: DatabaseConfig{
			MaxConnections: 10,
		},
		Routing: RoutingConfig{
			Servers: map[string]string{},
			Timeout: 10,
		},
		Conflation: ConflationConfig{
			Buffer:              0.00001,
			Workers:             4,
			VersionCacheMinutes: 10,
		},
		Process: ProcessConfig{
			Folder: "../data/",
		},
		NodeWays: NodeWaysConfig{
			Path: "../data/nodeways",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("CONFLATOR_DB_CONNECTION"); v != "" {
		cfg.Database.ConnectionString = v
	}

	if v := os.Getenv("CONFLATOR_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CONFLATOR_PORT: %w", err)
		}
		cfg.Server.Port = port
	}

	if v := os.Getenv("CONFLATOR_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}

	return nil
}

// GetConfig returns the current configuration.
func GetConfig() Config {
	return config
}
