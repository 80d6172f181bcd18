package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
server:
  addr: ":9000"
  timeout: 3s
  cors_origins: ["*"]
executor:
  max_parallel_execution_count: 8
  timeout_action: throw
logging:
  level: debug
  format: console
`))
	require.NoError(t, err)

	want := Default()
	want.Server.Addr = ":9000"
	want.Server.Timeout = 3 * time.Second
	want.Server.CORSOrigins = []string{"*"}
	want.Executor.MaxParallelExecutionCount = 8
	want.Executor.TimeoutAction = "throw"
	want.Logging = Logging{Level: "debug", Format: "console"}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestParseErrors(t *testing.T) {
	for _, tc := range []struct {
		name string
		in   string
		want string
	}{
		{name: "unknown key", in: "server:\n  port: 1\n", want: "invalid YAML syntax"},
		{name: "bad timeout action", in: "executor:\n  timeout_action: explode\n", want: "executor.timeout_action"},
		{name: "bad format", in: "logging:\n  format: xml\n", want: "logging.format"},
		{name: "negative rate", in: "server:\n  rate_limit: -1\n", want: "server.rate_limit"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.in))
			require.ErrorContains(t, err, tc.want)
		})
	}
}

func TestLoad(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, ErrFileNotFound)

	path := filepath.Join(t.TempDir(), "graphexec.yaml")
	require.NoError(t, os.WriteFile(path, nil, 0o600))
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}
