package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"lofi/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_ADDR", "")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "lofi")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.Database.Path != filepath.Join(wantData, "lofi.db") {
		t.Fatalf("unexpected database path: %q", cfg.Database.Path)
	}
	if cfg.API.Bind != "127.0.0.1:8087" {
		t.Fatalf("unexpected api bind: %q", cfg.API.Bind)
	}
	if cfg.RateLimit.Requests != 60 || cfg.RateLimit.WindowSeconds != 60 {
		t.Fatalf("unexpected rate limit defaults: %+v", cfg.RateLimit)
	}
	if cfg.RateLimit.Store != config.RateStoreSQL {
		t.Fatalf("expected sql rate store without redis, got %q", cfg.RateLimit.Store)
	}
	if cfg.Pipeline.Concurrency != 1 {
		t.Fatalf("expected concurrency 1, got %d", cfg.Pipeline.Concurrency)
	}
	if cfg.Publish.Target != config.PublishSimulated {
		t.Fatalf("expected simulated publish target, got %q", cfg.Publish.Target)
	}
}

func TestLoadCustomConfigOverridesDefaults(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("REDIS_ADDR", "")

	configPath := filepath.Join(tempHome, "config.toml")
	content := `
[paths]
data_dir = "~/lofi-data"

[redis]
addr = "127.0.0.1:6379"

[rate_limit]
requests = 2
window_seconds = 30

[pipeline]
stage_timeout_seconds = 600
handoff = "ASYNQ"

[pipeline.stage_timeouts]
Render = 3600

[logging]
format = "JSON"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("unexpected resolution: %q exists=%v", resolved, exists)
	}
	if cfg.Paths.DataDir != filepath.Join(tempHome, "lofi-data") {
		t.Fatalf("unexpected data dir %q", cfg.Paths.DataDir)
	}
	if cfg.RateLimit.Store != config.RateStoreRedis {
		t.Fatalf("expected redis rate store when redis.addr is set, got %q", cfg.RateLimit.Store)
	}
	if cfg.RateWindow() != 30*time.Second {
		t.Fatalf("unexpected window %s", cfg.RateWindow())
	}
	if cfg.Pipeline.Handoff != config.HandoffAsynq {
		t.Fatalf("expected handoff normalized to asynq, got %q", cfg.Pipeline.Handoff)
	}
	if got := cfg.StageTimeout("render"); got != time.Hour {
		t.Fatalf("expected render override, got %s", got)
	}
	if got := cfg.StageTimeout("image"); got != 10*time.Minute {
		t.Fatalf("expected default stage timeout, got %s", got)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("expected logging format normalized, got %q", cfg.Logging.Format)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"concurrency":     "[pipeline]\nconcurrency = 2\n",
		"driver":          "[database]\ndriver = \"mysql\"\n",
		"postgres no url": "[database]\ndriver = \"postgres\"\n",
		"redis store":     "[rate_limit]\nstore = \"redis\"\n",
		"handoff":         "[pipeline]\nhandoff = \"kafka\"\n",
		"unknown stage":   "[pipeline.stage_timeouts]\nupscale = 10\n",
		"playlist":        "[media]\nplaylist_min = 10\nplaylist_max = 5\n",
		"cron":            "[schedule]\ncron = \"not a cron\"\n",
		"publish":         "[publish]\ntarget = \"youtube\"\n",
		"object store":    "[publish]\ntarget = \"object_store\"\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			tempHome := t.TempDir()
			t.Setenv("HOME", tempHome)
			t.Setenv("DATABASE_URL", "")
			t.Setenv("REDIS_ADDR", "")
			t.Setenv("S3_ACCESS_KEY", "")
			t.Setenv("S3_SECRET_KEY", "")
			path := filepath.Join(tempHome, "config.toml")
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				t.Fatalf("write config: %v", err)
			}
			if _, _, _, err := config.Load(path); err == nil {
				t.Fatalf("expected validation error for %s", name)
			}
		})
	}
}

func TestDatabaseURLFromEnv(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("DATABASE_URL", "postgres://lofi@localhost/lofi")
	path := filepath.Join(tempHome, "config.toml")
	if err := os.WriteFile(path, []byte("[database]\ndriver = \"postgresql\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Database.Driver != config.DriverPostgres {
		t.Fatalf("expected postgres driver alias to normalize, got %q", cfg.Database.Driver)
	}
	if cfg.Database.URL != "postgres://lofi@localhost/lofi" {
		t.Fatalf("unexpected database url %q", cfg.Database.URL)
	}
}

func TestSampleConfigParsesAndValidates(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("REDIS_ADDR", "")

	var decoded map[string]any
	if err := toml.Unmarshal([]byte(config.SampleConfig()), &decoded); err != nil {
		t.Fatalf("sample config is not valid TOML: %v", err)
	}

	path := filepath.Join(tempHome, "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("sample config failed validation: %v", err)
	}
	if !exists {
		t.Fatal("expected sample config to exist")
	}
	if !strings.HasPrefix(cfg.Paths.DataDir, tempHome) {
		t.Fatalf("expected data dir under HOME, got %q", cfg.Paths.DataDir)
	}
}

func TestEnsureDirectoriesCreatesRunsDir(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Database.Path = filepath.Join(base, "db", "lofi.db")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, dir := range []string{cfg.RunsDir(), cfg.Paths.LogDir, filepath.Dir(cfg.Database.Path)} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s: %v", dir, err)
		}
	}
	if got := cfg.RunWorkDir("abc"); got != filepath.Join(cfg.RunsDir(), "abc") {
		t.Fatalf("unexpected run work dir %q", got)
	}
}
