package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"lofi/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Database.Path = filepath.Join(base, "data", "lofi.db")
	cfgVal.Media.AudioDir = filepath.Join(base, "audio")
	cfgVal.API.Bind = "127.0.0.1:0"
	cfgVal.RateLimit.Store = config.RateStoreSQL
	cfgVal.Pipeline.StageTimeoutSeconds = 5
	cfgVal.Pipeline.PollIntervalSeconds = 1
	cfgVal.Pipeline.ErrorRetrySeconds = 1
	cfgVal.Pipeline.HeartbeatIntervalSeconds = 1
	cfgVal.Pipeline.HeartbeatTimeoutSeconds = 30

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithPostgres switches the store to PostgreSQL using LOFI_TEST_POSTGRES_URL,
// skipping the test when the variable is unset.
func WithPostgres() ConfigOption {
	return func(b *configBuilder) {
		url := os.Getenv("LOFI_TEST_POSTGRES_URL")
		if url == "" {
			b.t.Skip("LOFI_TEST_POSTGRES_URL not set")
		}
		b.cfg.Database.Driver = config.DriverPostgres
		b.cfg.Database.URL = url
	}
}

// WithRateLimit sets the admission ceiling and window.
func WithRateLimit(requests, windowSeconds int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.RateLimit.Enabled = true
		b.cfg.RateLimit.Requests = requests
		b.cfg.RateLimit.WindowSeconds = windowSeconds
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, ffmpeg and ffprobe are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffmpeg", "ffprobe"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
