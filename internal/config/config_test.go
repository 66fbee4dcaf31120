package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
app:
  name: "syncengine-test"
database:
  path: "test.db"
webhook:
  enabled: true
  port: 8090
  secrets:
    calcom: "whsec_test"
worker:
  poll_interval: 5
  batch_size: 4
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.App.Name != "syncengine-test" {
		t.Errorf("expected app name syncengine-test, got %s", cfg.App.Name)
	}
	if cfg.Webhook.Port != 8090 {
		t.Errorf("expected webhook port 8090, got %d", cfg.Webhook.Port)
	}
	if cfg.Webhook.Secrets["calcom"] != "whsec_test" {
		t.Errorf("expected calcom secret to be loaded")
	}
	if cfg.Worker.PollInterval != 5 {
		t.Errorf("expected poll_interval 5, got %d", cfg.Worker.PollInterval)
	}
	if cfg.Worker.BatchSize != 4 {
		t.Errorf("expected batch_size 4, got %d", cfg.Worker.BatchSize)
	}
}

func TestLoadConfigExpandsEnv(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	t.Setenv("TEST_WEBHOOK_SECRET", "whsec_env")
	yamlContent := `
database:
  path: "test.db"
webhook:
  secrets:
    calendly: "${TEST_WEBHOOK_SECRET}"
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Webhook.Secrets["calendly"] != "whsec_env" {
		t.Errorf("expected env-expanded secret, got %q", cfg.Webhook.Secrets["calendly"])
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{Database: DatabaseConfig{Path: "x.db"}}
	cfg.applyDefaults()

	if cfg.Worker.PollInterval != 30 {
		t.Errorf("expected default poll interval 30, got %d", cfg.Worker.PollInterval)
	}
	if cfg.Worker.BatchSize != 10 {
		t.Errorf("expected default batch size 10, got %d", cfg.Worker.BatchSize)
	}
	if cfg.Worker.MaxRetries != 3 {
		t.Errorf("expected default max retries 3, got %d", cfg.Worker.MaxRetries)
	}
	if cfg.Breaker.FailureThreshold != 5 {
		t.Errorf("expected default failure threshold 5, got %d", cfg.Breaker.FailureThreshold)
	}
	if cfg.Breaker.Timeout != 120 {
		t.Errorf("expected default breaker timeout 120, got %d", cfg.Breaker.Timeout)
	}
	if cfg.Providers.CalCom.Timeout != 15 {
		t.Errorf("expected default adapter timeout 15, got %d", cfg.Providers.CalCom.Timeout)
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name:    "valid config",
			cfg:     Config{Database: DatabaseConfig{Path: "path"}, Breaker: BreakerConfig{FailureThreshold: 5}},
			wantErr: false,
		},
		{
			name:    "missing database path",
			cfg:     Config{Breaker: BreakerConfig{FailureThreshold: 5}},
			wantErr: true,
		},
		{
			name: "webhook enabled without port",
			cfg: Config{
				Database: DatabaseConfig{Path: "path"},
				Webhook:  WebhookConfig{Enabled: true},
				Breaker:  BreakerConfig{FailureThreshold: 5},
			},
			wantErr: true,
		},
		{
			name: "zero failure threshold",
			cfg:  Config{Database: DatabaseConfig{Path: "path"}},

			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr = %v", err, tt.wantErr)
			}
		})
	}
}
