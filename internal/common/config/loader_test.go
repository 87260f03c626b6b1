package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFile_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
camunda:
  broker_address: localhost:26500
record_store:
  backend: memory
workers:
  trigger-referral-match:
    enabled: true
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, BackendMemory, cfg.RecordStore.Backend)
	assert.InDelta(t, 0.10, cfg.Referral.CommissionRate, 1e-9)
	assert.Equal(t, 5, cfg.Referral.DefaultMaxActive)
	assert.Equal(t, 50, cfg.Referral.DefaultPerformance)
	assert.Equal(t, "buyer-profile-updated", cfg.Referral.ProfileUpdatedMessage)
	assert.Equal(t, 100, cfg.Notifications.QueueSize)
	assert.Equal(t, ":8080", cfg.Metrics.Address)

	w := cfg.Workers["trigger-referral-match"]
	assert.True(t, w.Enabled)
	assert.Equal(t, 5, w.MaxJobsActive)
	assert.Equal(t, 30000, w.Timeout)
}

func TestLoadFromFile_Validation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "missing broker",
			body:    "record_store:\n  backend: memory\n",
			wantErr: "camunda.broker_address is required",
		},
		{
			name:    "postgres backend needs host",
			body:    "camunda:\n  broker_address: zeebe:26500\n",
			wantErr: "database.postgres.host is required",
		},
		{
			name:    "unknown backend",
			body:    "camunda:\n  broker_address: zeebe:26500\nrecord_store:\n  backend: sqlite\n",
			wantErr: "not supported",
		},
		{
			name:    "journal needs redis",
			body:    "camunda:\n  broker_address: zeebe:26500\nrecord_store:\n  backend: memory\ncapacity:\n  journal_enabled: true\n",
			wantErr: "database.redis.address is required",
		},
		{
			name:    "commission out of range",
			body:    "camunda:\n  broker_address: zeebe:26500\nrecord_store:\n  backend: memory\nreferral:\n  commission_rate: 1.5\n",
			wantErr: "commission_rate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromFile(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGetWorkerConfig_Fallback(t *testing.T) {
	cfg := &Config{Workers: map[string]WorkerConfig{}}

	w := GetWorkerConfig(cfg, "reconcile-capacity")
	assert.True(t, w.Enabled)
	assert.Equal(t, 3, w.MaxRetries)
	assert.True(t, IsWorkerEnabled(cfg, "reconcile-capacity"))
}
