package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
  timeout_seconds: 45
auth:
  enabled: true
  api_key: secret
sim:
  tick_interval_ms: 50
  total_batches: 6
  records_per_batch: 200
db:
  driver: postgres
  dsn: postgres://localhost/migsim
  max_conns: 8
storage:
  backend: gcs
  gcs_bucket: bucket
  prefix: archives
pubsub:
  enabled: true
  project_id: demo-project
  topic_name: migsim-events
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if cfg.Sim.TickIntervalMs != 50 || cfg.Sim.TotalBatches != 6 || cfg.Sim.RecordsPerBatch != 200 {
		t.Fatalf("expected sim overrides to apply, got %+v", cfg.Sim)
	}
	if cfg.DB.Driver != "postgres" || cfg.DB.MaxConns != 8 {
		t.Fatalf("expected db overrides to apply, got %+v", cfg.DB)
	}
	if cfg.Storage.Backend != "gcs" || cfg.Storage.GCSBucket != "bucket" || cfg.Storage.Prefix != "archives" {
		t.Fatalf("expected storage overrides to apply, got %+v", cfg.Storage)
	}
	if !cfg.PubSub.Enabled || cfg.PubSub.TopicName != "migsim-events" {
		t.Fatalf("expected pubsub overrides to apply, got %+v", cfg.PubSub)
	}
	if cfg.Logging.Development {
		t.Fatal("expected development logging to be disabled")
	}
	if got := cfg.TickInterval(); got != 50*time.Millisecond {
		t.Fatalf("expected tick interval 50ms, got %v", got)
	}
	if got := cfg.RequestTimeout(); got != 45*time.Second {
		t.Fatalf("expected request timeout 45s, got %v", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Sim.TickIntervalMs != 100 || cfg.Sim.TotalBatches != 12 || cfg.Sim.RecordsPerBatch != 100 {
		t.Fatalf("unexpected sim defaults: %+v", cfg.Sim)
	}
	if cfg.DB.Driver != "memory" || cfg.Storage.Backend != "memory" {
		t.Fatalf("expected in-memory defaults, got db=%q storage=%q", cfg.DB.Driver, cfg.Storage.Backend)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:  ServerConfig{Port: 8080, TimeoutSeconds: 60},
		Sim:     SimConfig{TickIntervalMs: 100, TotalBatches: 12, RecordsPerBatch: 100},
		DB:      DBConfig{Driver: "memory"},
		Storage: StorageConfig{Backend: "memory"},
	}

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "invalid port",
			cfg: func() Config {
				c := base
				c.Server.Port = 0
				return c
			}(),
			want: "server.port",
		},
		{
			name: "invalid tick interval",
			cfg: func() Config {
				c := base
				c.Sim.TickIntervalMs = 0
				return c
			}(),
			want: "sim.tick_interval_ms",
		},
		{
			name: "invalid batch shape",
			cfg: func() Config {
				c := base
				c.Sim.TotalBatches = 0
				return c
			}(),
			want: "sim.total_batches",
		},
		{
			name: "postgres missing dsn",
			cfg: func() Config {
				c := base
				c.DB.Driver = "postgres"
				return c
			}(),
			want: "db.dsn",
		},
		{
			name: "unknown db driver",
			cfg: func() Config {
				c := base
				c.DB.Driver = "sqlite"
				return c
			}(),
			want: "db.driver",
		},
		{
			name: "local missing base dir",
			cfg: func() Config {
				c := base
				c.Storage.Backend = "local"
				return c
			}(),
			want: "storage.base_dir",
		},
		{
			name: "gcs missing bucket",
			cfg: func() Config {
				c := base
				c.Storage.Backend = "gcs"
				return c
			}(),
			want: "storage.gcs_bucket",
		},
		{
			name: "pubsub missing project",
			cfg: func() Config {
				c := base
				c.PubSub.Enabled = true
				return c
			}(),
			want: "pubsub.project_id",
		},
		{
			name: "auth missing api key",
			cfg: func() Config {
				c := base
				c.Auth.Enabled = true
				return c
			}(),
			want: "auth.api_key",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
