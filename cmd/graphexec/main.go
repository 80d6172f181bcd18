package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hanpama/graphexec/internal/config"
	"github.com/hanpama/graphexec/internal/eventbus"
	executor "github.com/hanpama/graphexec/internal/executor"
	language "github.com/hanpama/graphexec/internal/language"
	"github.com/hanpama/graphexec/internal/logging"
	"github.com/hanpama/graphexec/internal/metrics"
	"github.com/hanpama/graphexec/internal/otel"
	schema "github.com/hanpama/graphexec/internal/schema"
	"github.com/hanpama/graphexec/internal/server"
	"github.com/hanpama/graphexec/internal/starwars"
)

const rootUsage = `graphexec - GraphQL execution engine and tools

USAGE:
  graphexec <command> [flags]

COMMANDS:
  serve          Run the HTTP GraphQL endpoint
  query          Execute one operation and print the result
  print-schema   Print the served schema as SDL
  help           Show help for any command

Without -schema the commands use the built-in Star Wars schema.
`

const commonUsage = `  -config <file>                    YAML configuration; flags override it
  -schema <file>                    SDL file served instead of the demo schema
  -executor.max-parallel N          Max concurrently running async resolvers (default: 64)
  -executor.timeout <duration>      Execution timeout, 0 disables
  -executor.timeout-action <action> return or throw (default: return)
  -executor.mask-errors             Hide resolver error messages
  -executor.introspection <bool>    Enable introspection (default: true)
  -log.level <level>                debug, info, warn or error (default: info)
  -log.format <format>              json or console (default: json)
`

const serveUsage = `serve FLAGS:
` + commonUsage + `  -root <file>                      JSON root value for an SDL schema
  -server.addr <addr>               HTTP listen address (default: :8080)
  -server.path <path>               GraphQL endpoint path (default: /graphql)
  -server.pretty                    Pretty-print JSON responses
  -server.timeout <duration>        Per-request timeout (default: 10s)
  -server.graphiql <bool>           Serve GraphiQL to browsers (default: true)
  -server.metadata-header <name>    Forward HTTP header to gRPC metadata. Repeatable
  -server.cors-origin <origin>      Allowed CORS origin. Repeatable
  -server.rate-limit <rps>          Requests per second, 0 disables
  -server.rate-burst N              Rate limiter burst
  -otel.endpoint <addr>             OTLP collector endpoint
  -otel.service <name>              OpenTelemetry service name (default: graphexec)
  -otel.trace-fields                Emit a span per resolved field
  -metrics.enabled <bool>           Serve Prometheus metrics (default: true)
  -metrics.path <path>              Metrics endpoint path (default: /metrics)
`

const queryUsage = `query FLAGS:
` + commonUsage + `  -root <file>                      JSON root value for an SDL schema
  -file <file>                      Read the document from a file
  -vars <json>                      Variables as a JSON object
  -operation <name>                 Operation to execute
  -events N                         Stop a subscription after N events, 0 waits for the end
USAGE:
  graphexec query [flags] '<document>'
`

const printSchemaUsage = `print-schema FLAGS:
` + commonUsage + `  -out <file>                       Write SDL to file (default: stdout)
`

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "graphexec:", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stderr, rootUsage)
		return errors.New("missing command")
	}
	cmd, cmdArgs := args[0], args[1:]
	switch cmd {
	case "serve":
		return cmdServe(cmdArgs, stderr)
	case "query":
		return cmdQuery(cmdArgs, stdout, stderr)
	case "print-schema":
		return cmdPrintSchema(cmdArgs, stdout, stderr)
	case "help", "-h", "-help", "--help":
		return cmdHelp(cmdArgs, stdout)
	default:
		fmt.Fprint(stderr, rootUsage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdHelp(args []string, stdout io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stdout, rootUsage)
		return nil
	}
	switch args[0] {
	case "serve":
		fmt.Fprint(stdout, serveUsage)
	case "query":
		fmt.Fprint(stdout, queryUsage)
	case "print-schema":
		fmt.Fprint(stdout, printSchemaUsage)
	default:
		return fmt.Errorf("unknown help topic %q", args[0])
	}
	return nil
}

// target is the schema being served with the values its resolvers need.
type target struct {
	schema      *schema.Schema
	root        any
	userContext func() any
}

func loadTarget(sdlPath, rootPath string) (*target, error) {
	if sdlPath == "" {
		if rootPath != "" {
			return nil, errors.New("-root needs -schema")
		}
		store := starwars.NewStore()
		s := starwars.NewSchema(store)
		if err := s.Initialize(); err != nil {
			return nil, err
		}
		return &target{schema: s, userContext: func() any { return store.NewRequestContext() }}, nil
	}

	sdl, err := os.ReadFile(sdlPath)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	resolvers, err := typenameResolvers(string(sdl))
	if err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	s, err := schema.BuildFromSDL(string(sdl), schema.SDLOptions{ResolveType: resolvers})
	if err != nil {
		return nil, fmt.Errorf("build schema: %w", err)
	}
	t := &target{schema: s, userContext: func() any { return nil }}
	if rootPath != "" {
		data, err := os.ReadFile(rootPath)
		if err != nil {
			return nil, fmt.Errorf("read root value: %w", err)
		}
		if err := json.Unmarshal(data, &t.root); err != nil {
			return nil, fmt.Errorf("decode root value: %w", err)
		}
	}
	return t, nil
}

// typenameResolvers resolves every abstract type of sdl from the
// "__typename" key of JSON objects.
func typenameResolvers(sdl string) (map[string]func(any) string, error) {
	doc, err := language.ParseSchema("schema.graphql", sdl)
	if err != nil {
		return nil, err
	}
	byTypename := func(v any) string {
		m, _ := v.(map[string]any)
		name, _ := m["__typename"].(string)
		return name
	}
	out := map[string]func(any) string{}
	for _, def := range doc.Definitions {
		if def.Kind == language.Interface || def.Kind == language.Union {
			out[def.Name] = byTypename
		}
	}
	return out, nil
}

func executorOptions(cfg config.Executor, logger *zap.Logger) []executor.Option {
	action := executor.ReturnTimeoutError
	if cfg.TimeoutAction == "throw" {
		action = executor.ThrowTimeoutError
	}
	return []executor.Option{
		executor.WithLogger(logger),
		executor.WithMaxParallelExecutionCount(cfg.MaxParallelExecutionCount),
		executor.WithTimeout(cfg.Timeout, action),
		executor.WithMaskUnhandledErrors(cfg.MaskUnhandledErrors),
		executor.WithIntrospection(cfg.Introspection),
	}
}

func cmdServe(args []string, stderr io.Writer) error {
	var rootPath string
	cfg, _, err := parseConfig("serve", args, bindServeFlags, func(fs *flag.FlagSet) {
		fs.StringVar(&rootPath, "root", "", "JSON root value")
	})
	if err != nil {
		fmt.Fprint(stderr, serveUsage)
		return err
	}
	logger, err := logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	t, err := loadTarget(cfg.Schema, rootPath)
	if err != nil {
		return err
	}

	bus := eventbus.New()
	eventbus.Use(bus)
	defer eventbus.Use(nil)
	shutdown, err := otel.Setup(otel.Config{
		Endpoint:    cfg.Telemetry.Endpoint,
		Service:     cfg.Telemetry.Service,
		TraceFields: cfg.Telemetry.TraceFields,
	})
	if err != nil {
		return fmt.Errorf("otel setup: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	handler, closeHandler, err := newMux(cfg, t, bus, logger)
	if err != nil {
		return err
	}
	defer closeHandler()

	srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("GraphQL server listening",
			zap.String("addr", cfg.Server.Addr),
			zap.String("path", cfg.Server.Path))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

// newMux wires the GraphQL handler and, when enabled, the metrics
// endpoint. The returned function detaches the metrics collectors.
func newMux(cfg config.Config, t *target, bus *eventbus.Bus, logger *zap.Logger) (http.Handler, func(), error) {
	exec, err := executor.New(t.schema, executorOptions(cfg.Executor, logger)...)
	if err != nil {
		return nil, nil, fmt.Errorf("executor init: %w", err)
	}
	sopts := []server.Option{
		server.WithLogger(logger),
		server.WithTimeout(cfg.Server.Timeout),
		server.WithGraphiQL(cfg.Server.GraphiQL),
		server.WithDocumentCache(cfg.Server.DocumentCacheSize),
		server.WithRootValue(t.root),
		server.WithUserContext(func(*http.Request) any { return t.userContext() }),
	}
	if cfg.Server.Pretty {
		sopts = append(sopts, server.WithPretty())
	}
	if cfg.Server.MaxBodyBytes > 0 {
		sopts = append(sopts, server.WithMaxBodyBytes(cfg.Server.MaxBodyBytes))
	}
	if len(cfg.Server.CORSOrigins) > 0 {
		sopts = append(sopts, server.WithCORS(cfg.Server.CORSOrigins...))
	}
	if len(cfg.Server.MetadataHeaders) > 0 {
		sopts = append(sopts, server.WithMetadataHeaders(cfg.Server.MetadataHeaders...))
	}
	if cfg.Server.RateLimit > 0 {
		sopts = append(sopts, server.WithRateLimit(cfg.Server.RateLimit, cfg.Server.RateBurst))
	}
	h, err := server.New(exec, sopts...)
	if err != nil {
		return nil, nil, fmt.Errorf("server init: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.Server.Path, h)
	closeFn := func() {}
	if cfg.Metrics.Enabled && bus != nil {
		m := metrics.New()
		m.Attach(bus)
		mux.Handle(cfg.Metrics.Path, m.Handler())
		closeFn = m.Close
	}
	return mux, closeFn, nil
}

func cmdQuery(args []string, stdout, stderr io.Writer) error {
	var (
		rootPath, file, vars, operation string
		maxEvents                       int
	)
	cfg, fs, err := parseConfig("query", args, bindCommonFlags, func(fs *flag.FlagSet) {
		fs.StringVar(&rootPath, "root", "", "JSON root value")
		fs.StringVar(&file, "file", "", "Document file")
		fs.StringVar(&vars, "vars", "", "Variables as JSON")
		fs.StringVar(&operation, "operation", "", "Operation name")
		fs.IntVar(&maxEvents, "events", 0, "Subscription event limit")
	})
	if err != nil {
		fmt.Fprint(stderr, queryUsage)
		return err
	}

	var query string
	switch {
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read document: %w", err)
		}
		query = string(data)
	case fs.NArg() == 1:
		query = fs.Arg(0)
	default:
		fmt.Fprint(stderr, queryUsage)
		return errors.New("expected exactly one document argument or -file")
	}
	var variables map[string]any
	if vars != "" {
		if err := json.Unmarshal([]byte(vars), &variables); err != nil {
			return fmt.Errorf("decode -vars: %w", err)
		}
	}

	logger, err := logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	t, err := loadTarget(cfg.Schema, rootPath)
	if err != nil {
		return err
	}
	exec, err := executor.New(t.schema, executorOptions(cfg.Executor, logger)...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	res, err := exec.Execute(ctx, executor.Request{
		Query:         query,
		OperationName: operation,
		Variables:     variables,
		RootValue:     t.root,
		UserContext:   t.userContext(),
	})
	if err != nil {
		return err
	}
	if res.Streams != nil {
		return printStreams(ctx, stdout, res.Streams, maxEvents)
	}
	if err := printJSON(stdout, res); err != nil {
		return err
	}
	if len(res.Errors) > 0 {
		return fmt.Errorf("operation reported %d error(s)", len(res.Errors))
	}
	return nil
}

// printStreams prints subscription events as they arrive, one JSON document
// per line, until every stream ends or limit events were printed.
func printStreams(ctx context.Context, w io.Writer, streams map[string]<-chan *executor.ExecutionResult, limit int) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	merged := make(chan *executor.ExecutionResult)
	g, gctx := errgroup.WithContext(ctx)
	for _, stream := range streams {
		g.Go(func() error {
			for {
				select {
				case ev, ok := <-stream:
					if !ok {
						return nil
					}
					select {
					case merged <- ev:
					case <-gctx.Done():
						return nil
					}
				case <-gctx.Done():
					return nil
				}
			}
		})
	}
	go func() {
		_ = g.Wait()
		close(merged)
	}()

	printed := 0
	for ev := range merged {
		out, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(out))
		printed++
		if limit > 0 && printed >= limit {
			cancel()
			break
		}
	}
	for range merged {
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

func cmdPrintSchema(args []string, stdout, stderr io.Writer) error {
	var out string
	cfg, _, err := parseConfig("print-schema", args, bindCommonFlags, func(fs *flag.FlagSet) {
		fs.StringVar(&out, "out", "", "Output file")
	})
	if err != nil {
		fmt.Fprint(stderr, printSchemaUsage)
		return err
	}
	t, err := loadTarget(cfg.Schema, "")
	if err != nil {
		return err
	}
	sdl := schema.Render(t.schema)
	if out == "" {
		_, err := io.WriteString(stdout, sdl)
		return err
	}
	if !strings.HasSuffix(sdl, "\n") {
		sdl += "\n"
	}
	return os.WriteFile(out, []byte(sdl), 0o644)
}
