// Package config loads the engine configuration from YAML or TOML files.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/VanDung-dev/ArrowRow-Engine/api"
	"github.com/VanDung-dev/ArrowRow-Engine/rowdata"
)

var ErrInvalidConfig = errors.New("invalid config")

// Config is the configuration of `arrowrow serve`. An empty listen address
// disables that transport.
type Config struct {
	// Schema is the produced row type, e.g. "ROW<id BIGINT, ts TIME(6)>".
	Schema   string `yaml:"schema" toml:"schema"`
	LogLevel string `yaml:"logLevel" toml:"logLevel"`

	TCP     TCPConfig      `yaml:"tcp" toml:"tcp"`
	Flight  FlightConfig   `yaml:"flight" toml:"flight"`
	Zmq     ZmqConfig      `yaml:"zmq" toml:"zmq"`
	Metrics MetricsConfig  `yaml:"metrics" toml:"metrics"`
	Auth    api.AuthConfig `yaml:"auth" toml:"auth"`
	Workers WorkersConfig  `yaml:"workers" toml:"workers"`
}

type TCPConfig struct {
	Address string `yaml:"address" toml:"address"`
}

type FlightConfig struct {
	Address        string `yaml:"address" toml:"address"`
	MaxRecvMsgSize int    `yaml:"maxRecvMsgSize" toml:"maxRecvMsgSize"`
}

type ZmqConfig struct {
	Endpoint string `yaml:"endpoint" toml:"endpoint"`
}

type MetricsConfig struct {
	Address   string `yaml:"address" toml:"address"`
	Namespace string `yaml:"namespace" toml:"namespace"`
}

type WorkersConfig struct {
	Count     int `yaml:"count" toml:"count"`
	QueueSize int `yaml:"queueSize" toml:"queueSize"`
}

// Default returns a config with every transport on its default port. Schema
// is left empty and must be supplied.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		TCP:      TCPConfig{Address: ":9000"},
		Flight: FlightConfig{
			Address:        api.DefaultFlightServerConfig().Address,
			MaxRecvMsgSize: api.DefaultFlightServerConfig().MaxRecvMsgSize,
		},
		Metrics: MetricsConfig{Address: ":9090", Namespace: "arrowrow"},
		Workers: WorkersConfig{Count: 4, QueueSize: 100},
	}
}

// Load reads path on top of Default. Files ending in .toml are TOML, anything
// else YAML.
func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config %s", path)
	}
	config := Default()
	isToml := strings.EqualFold(filepath.Ext(path), ".toml")
	if err := Unmarshall(content, config, isToml); err != nil {
		return nil, errors.Wrapf(err, "failed to parse config %s", path)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func Unmarshall(content []byte, config *Config, isToml bool) error {
	if isToml {
		return toml.Unmarshal(content, config)
	}
	return yaml.Unmarshal(content, config)
}

// Validate checks the schema and log level and that at least one ingest
// transport is enabled.
func (c *Config) Validate() error {
	if c.Schema == "" {
		return errors.Wrap(ErrInvalidConfig, "schema is required")
	}
	if _, err := c.RowType(); err != nil {
		return errors.Wrapf(ErrInvalidConfig, "schema: %v", err)
	}
	if _, err := c.Level(); err != nil {
		return errors.Wrapf(ErrInvalidConfig, "logLevel: %v", err)
	}
	if c.TCP.Address == "" && c.Flight.Address == "" && c.Zmq.Endpoint == "" {
		return errors.Wrap(ErrInvalidConfig, "no ingest transport enabled")
	}
	if c.Workers.Count < 0 || c.Workers.QueueSize < 0 {
		return errors.Wrap(ErrInvalidConfig, "workers must not be negative")
	}
	return nil
}

// RowType parses Schema.
func (c *Config) RowType() (*rowdata.RowType, error) {
	return rowdata.ParseRowType(c.Schema)
}

// Level parses LogLevel, defaulting to info.
func (c *Config) Level() (log.Level, error) {
	if c.LogLevel == "" {
		return log.InfoLevel, nil
	}
	return log.ParseLevel(c.LogLevel)
}

// Authenticator builds the authenticator, applying the ARROWROW_AUTH_TOKEN
// override.
func (c *Config) Authenticator() *api.Authenticator {
	return api.NewAuthenticatorFromEnv(c.Auth)
}
