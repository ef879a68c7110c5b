package nlargest

import (
	"bytes"
	"flag"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ShoshinNikita/nlargest/pkg/rlog"
)

func TestParseConfig(t *testing.T) {
	t.Setenv("NLARGEST_CONFIG_FILE", "/tmp/nlargest.yaml")
	t.Setenv("NLARGEST_LOG_LEVEL", "info")
	t.Setenv("NLARGEST_HTTP_TIMEOUT", "30s")

	parse := func(args ...string) (Config, error) {
		return ParseConfig(args, bytes.NewBuffer(nil))
	}

	t.Run("get", func(t *testing.T) {
		r := require.New(t)

		cfg, err := parse("get", "https://example.com/data.txt", "10")
		r.NoError(err)
		r.Equal(CommandGet, cfg.Command)
		r.Equal(GetConfig{
			URL:       "https://example.com/data.txt",
			N:         10,
			ChunkSize: DefaultChunkSize,
		}, cfg.Get)
		r.Equal(rlog.LevelInfo, cfg.LogLevel)
		r.Equal(Env{
			SettingsFile: "/tmp/nlargest.yaml",
			LogLevel:     rlog.LevelInfo,
			HTTPTimeout:  30 * time.Second,
			UserAgent:    "nlargest",
		}, cfg.Env)
	})

	t.Run("get with flags", func(t *testing.T) {
		r := require.New(t)

		cfg, err := parse(
			"--log-level", "debug", "--metrics-file", "/tmp/metrics.prom",
			"get", "--no-cache", "https://example.com/data.txt", "--chunk-size", "2048", "3", "--refresh-cache",
		)
		r.NoError(err)
		r.Equal(GetConfig{
			URL:          "https://example.com/data.txt",
			N:            3,
			NoCache:      true,
			RefreshCache: true,
			ChunkSize:    2048,
		}, cfg.Get)
		r.Equal(rlog.LevelDebug, cfg.LogLevel)
		r.Equal("/tmp/metrics.prom", cfg.MetricsFile)
	})

	t.Run("set-cache-dir", func(t *testing.T) {
		r := require.New(t)

		cfg, err := parse("set-cache-dir", "/var/cache/nlargest")
		r.NoError(err)
		r.Equal(CommandSetCacheDir, cfg.Command)
		r.Equal("/var/cache/nlargest", cfg.SetCacheDir.Path)
	})

	t.Run("clear-cache", func(t *testing.T) {
		r := require.New(t)

		cfg, err := parse("clear-cache", "--max-age", "72h", "--max-size", "2Gi")
		r.NoError(err)
		r.Equal(CommandClearCache, cfg.Command)
		r.Equal(ClearCacheConfig{MaxAge: 72 * time.Hour, MaxSize: 2048}, cfg.ClearCache)
	})

	t.Run("version", func(t *testing.T) {
		r := require.New(t)

		cfg, err := parse("--version")
		r.NoError(err)
		r.Equal(CommandVersion, cfg.Command)
	})

	t.Run("help", func(t *testing.T) {
		_, err := parse("get", "--help")
		require.ErrorIs(t, err, flag.ErrHelp)
	})

	for _, tt := range []struct {
		args    []string
		wantErr string
	}{
		{args: nil, wantErr: "command is required"},
		{args: []string{"download"}, wantErr: `unknown command "download"`},
		{args: []string{"get", "https://example.com"}, wantErr: "expected 2 argument(s), got 1"},
		{args: []string{"get", "https://example.com", "0"}, wantErr: "n must be >= 1"},
		{args: []string{"get", "https://example.com", "x"}, wantErr: "n must be >= 1"},
		{args: []string{"get", "--chunk-size", "1023", "https://example.com", "1"}, wantErr: "invalid chunk size"},
		{args: []string{"set-cache-dir"}, wantErr: "expected 1 argument(s), got 0"},
		{args: []string{"clear-cache", "--max-size", "1GB"}, wantErr: "valid suffixes: Mi, Gi"},
		{args: []string{"--log-level", "trace", "get"}, wantErr: "valid values"},
	} {
		t.Run("", func(t *testing.T) {
			_, err := parse(tt.args...)
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestParseConfig_InvalidEnv(t *testing.T) {
	t.Setenv("NLARGEST_HTTP_TIMEOUT", "soon")

	_, err := ParseConfig([]string{"clear-cache"}, bytes.NewBuffer(nil))
	require.ErrorContains(t, err, "couldn't parse env")
}

func TestMiB(t *testing.T) {
	for _, tt := range []struct {
		in        string
		wantErr   string
		wantText  string
		wantBytes int64
	}{
		{in: "0Mi", wantText: "0Mi", wantBytes: 0},
		{in: "1Mi", wantText: "1Mi", wantBytes: 1 << 20},
		{in: "500Mi", wantText: "500Mi", wantBytes: 500 << 20},
		{in: "1024Mi", wantText: "1Gi", wantBytes: 1 << 30},
		{in: "2047Mi", wantText: "2047Mi", wantBytes: 2047 << 20},
		{in: "2048Mi", wantText: "2Gi", wantBytes: 2 << 30},
		{in: "1Gi", wantText: "1Gi", wantBytes: 1 << 30},
		{in: "3Gi", wantText: "3Gi", wantBytes: 3 << 30},
		//
		{in: "3GiB", wantErr: "valid suffixes: Mi, Gi", wantText: "0Mi"},
		{in: "3xGi", wantErr: "invalid size: strconv.Atoi", wantText: "0Mi"},
		{in: "-1Gi", wantErr: "size can't be negative", wantText: "0Mi"},
	} {
		t.Run("", func(t *testing.T) {
			r := require.New(t)

			var s MiB
			err := s.UnmarshalText([]byte(tt.in))
			if tt.wantErr == "" {
				r.NoError(err)
			} else {
				r.Error(err)
				r.Contains(err.Error(), tt.wantErr)
			}

			r.Equal(tt.wantText, s.String())
			r.Equal(tt.wantBytes, s.Bytes())
		})
	}
}
