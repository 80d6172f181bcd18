// Package config loads the YAML configuration of the graphexec command.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	ErrFileNotFound = errors.New("configuration file not found")
	ErrInvalidYAML  = errors.New("invalid YAML syntax")
)

type Config struct {
	Server    Server    `yaml:"server"`
	Executor  Executor  `yaml:"executor"`
	Logging   Logging   `yaml:"logging"`
	Telemetry Telemetry `yaml:"telemetry"`
	Metrics   Metrics   `yaml:"metrics"`
	// Schema is an SDL file served instead of the demo schema. Fields of
	// an SDL schema resolve from the root value with the default resolver.
	Schema string `yaml:"schema"`
}

type Server struct {
	Addr              string        `yaml:"addr"`
	Path              string        `yaml:"path"`
	Timeout           time.Duration `yaml:"timeout"`
	MaxBodyBytes      int64         `yaml:"max_body_bytes"`
	Pretty            bool          `yaml:"pretty"`
	GraphiQL          bool          `yaml:"graphiql"`
	CORSOrigins       []string      `yaml:"cors_origins"`
	MetadataHeaders   []string      `yaml:"metadata_headers"`
	DocumentCacheSize int           `yaml:"document_cache_size"`
	RateLimit         float64       `yaml:"rate_limit"`
	RateBurst         int           `yaml:"rate_burst"`
}

type Executor struct {
	MaxParallelExecutionCount int           `yaml:"max_parallel_execution_count"`
	Timeout                   time.Duration `yaml:"timeout"`
	// TimeoutAction is "return" or "throw".
	TimeoutAction       string `yaml:"timeout_action"`
	MaskUnhandledErrors bool   `yaml:"mask_unhandled_errors"`
	Introspection       bool   `yaml:"introspection"`
}

type Logging struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is "json" or "console".
	Format string `yaml:"format"`
}

type Telemetry struct {
	Endpoint    string `yaml:"endpoint"`
	Service     string `yaml:"service"`
	TraceFields bool   `yaml:"trace_fields"`
}

type Metrics struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Server: Server{
			Addr:              ":8080",
			Path:              "/graphql",
			Timeout:           10 * time.Second,
			GraphiQL:          true,
			DocumentCacheSize: 256,
		},
		Executor: Executor{
			MaxParallelExecutionCount: 64,
			TimeoutAction:             "return",
			Introspection:             true,
		},
		Logging:   Logging{Level: "info", Format: "json"},
		Telemetry: Telemetry{Service: "graphexec"},
		Metrics:   Metrics{Enabled: true, Path: "/metrics"},
	}
}

// Load reads path on top of Default. Keys absent from the file keep their
// default values.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML on top of Default. Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Executor.TimeoutAction {
	case "return", "throw":
	default:
		return fmt.Errorf("executor.timeout_action must be \"return\" or \"throw\", got %q", c.Executor.TimeoutAction)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be \"json\" or \"console\", got %q", c.Logging.Format)
	}
	if c.Server.RateLimit < 0 {
		return errors.New("server.rate_limit must not be negative")
	}
	return nil
}
