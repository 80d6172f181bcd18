package main

import (
	"bytes"
	"flag"
	"fmt"
	"strings"

	"github.com/hanpama/graphexec/internal/config"
)

type stringListFlag struct{ list *[]string }

func (s stringListFlag) String() string {
	if s.list == nil {
		return ""
	}
	return strings.Join(*s.list, ",")
}

// Set appends comma separated values. Values given on the command line
// replace those from the configuration file.
func (s stringListFlag) Set(v string) error {
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			*s.list = append(*s.list, item)
		}
	}
	return nil
}

func bindCommonFlags(fs *flag.FlagSet, cfg *config.Config) {
	fs.StringVar(&cfg.Schema, "schema", cfg.Schema, "SDL file served instead of the demo schema")
	fs.IntVar(&cfg.Executor.MaxParallelExecutionCount, "executor.max-parallel", cfg.Executor.MaxParallelExecutionCount, "Max concurrently running async resolvers")
	fs.DurationVar(&cfg.Executor.Timeout, "executor.timeout", cfg.Executor.Timeout, "Execution timeout")
	fs.StringVar(&cfg.Executor.TimeoutAction, "executor.timeout-action", cfg.Executor.TimeoutAction, "return or throw")
	fs.BoolVar(&cfg.Executor.MaskUnhandledErrors, "executor.mask-errors", cfg.Executor.MaskUnhandledErrors, "Hide resolver error messages")
	fs.BoolVar(&cfg.Executor.Introspection, "executor.introspection", cfg.Executor.Introspection, "Enable introspection")
	fs.StringVar(&cfg.Logging.Level, "log.level", cfg.Logging.Level, "Log level")
	fs.StringVar(&cfg.Logging.Format, "log.format", cfg.Logging.Format, "json or console")
}

func bindServeFlags(fs *flag.FlagSet, cfg *config.Config) {
	bindCommonFlags(fs, cfg)
	fs.StringVar(&cfg.Server.Addr, "server.addr", cfg.Server.Addr, "HTTP listen address")
	fs.StringVar(&cfg.Server.Path, "server.path", cfg.Server.Path, "GraphQL endpoint path")
	fs.BoolVar(&cfg.Server.Pretty, "server.pretty", cfg.Server.Pretty, "Pretty-print JSON responses")
	fs.DurationVar(&cfg.Server.Timeout, "server.timeout", cfg.Server.Timeout, "Per-request timeout")
	fs.BoolVar(&cfg.Server.GraphiQL, "server.graphiql", cfg.Server.GraphiQL, "Serve GraphiQL")
	fs.Var(stringListFlag{&cfg.Server.MetadataHeaders}, "server.metadata-header", "Forward HTTP header to gRPC metadata")
	fs.Var(stringListFlag{&cfg.Server.CORSOrigins}, "server.cors-origin", "Allowed CORS origin")
	fs.Float64Var(&cfg.Server.RateLimit, "server.rate-limit", cfg.Server.RateLimit, "Requests per second, 0 disables")
	fs.IntVar(&cfg.Server.RateBurst, "server.rate-burst", cfg.Server.RateBurst, "Rate limiter burst")
	fs.StringVar(&cfg.Telemetry.Endpoint, "otel.endpoint", cfg.Telemetry.Endpoint, "OTLP collector endpoint")
	fs.StringVar(&cfg.Telemetry.Service, "otel.service", cfg.Telemetry.Service, "OpenTelemetry service name")
	fs.BoolVar(&cfg.Telemetry.TraceFields, "otel.trace-fields", cfg.Telemetry.TraceFields, "Emit a span per resolved field")
	fs.BoolVar(&cfg.Metrics.Enabled, "metrics.enabled", cfg.Metrics.Enabled, "Serve Prometheus metrics")
	fs.StringVar(&cfg.Metrics.Path, "metrics.path", cfg.Metrics.Path, "Metrics endpoint path")
}

// parseConfig parses args into a configuration. When -config names a file,
// the file is loaded and flags set on the command line are applied on top
// of it. extra binds command specific flags that are not configuration.
func parseConfig(name string, args []string, bind func(*flag.FlagSet, *config.Config), extra func(*flag.FlagSet)) (config.Config, *flag.FlagSet, error) {
	cfg := config.Default()
	var path string
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&path, "config", "", "YAML configuration file")
	bind(fs, &cfg)
	if extra != nil {
		extra(fs)
	}
	if err := fs.Parse(args); err != nil {
		return config.Config{}, nil, err
	}
	if path == "" {
		return cfg, fs, cfg.Validate()
	}

	fromFile, err := config.Load(path)
	if err != nil {
		return config.Config{}, nil, err
	}
	overlay := flag.NewFlagSet(name, flag.ContinueOnError)
	overlay.SetOutput(new(bytes.Buffer))
	bind(overlay, &fromFile)
	var setErr error
	fs.Visit(func(f *flag.Flag) {
		if setErr != nil || overlay.Lookup(f.Name) == nil {
			return
		}
		if l, ok := overlay.Lookup(f.Name).Value.(stringListFlag); ok {
			*l.list = nil
		}
		if err := overlay.Set(f.Name, f.Value.String()); err != nil {
			setErr = fmt.Errorf("flag -%s: %w", f.Name, err)
		}
	})
	if setErr != nil {
		return config.Config{}, nil, setErr
	}
	return fromFile, fs, fromFile.Validate()
}
