package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func memoryConfigFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
camunda:
  broker_address: localhost:26500
record_store:
  backend: memory
logging:
  level: error
`), 0o600))
	return path
}

func TestScoreCommand(t *testing.T) {
	out, err := run(t, "score", "--flow", "upgrade", "--order-type", "Whole", "--budget", "$2000+", "--output", "human")
	require.NoError(t, err)
	assert.Equal(t, "score 85 (High)\n", out)

	out, err = run(t, "score", "--flow", "backfill", "--order-type", "Half", "--budget", "$500-$1000", "--output", "json")
	require.NoError(t, err)
	var result map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, float64(40), result["intentScore"])
	assert.Equal(t, "Medium", result["intentClassification"])
}

func TestScoreCommand_RejectsUnknownFlow(t *testing.T) {
	_, err := run(t, "score", "--flow", "import", "--output", "human")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flow flag must be")
}

func TestReconcileCommand_MemoryStore(t *testing.T) {
	out, err := run(t, "reconcile", "--config", memoryConfigFile(t), "--output", "human")
	require.NoError(t, err)
	assert.Contains(t, out, "0 status change(s), 0 journal entr(ies) resolved")
}

func TestTriggerCommand_UnknownBuyer(t *testing.T) {
	_, err := run(t, "trigger", "--config", memoryConfigFile(t), "--buyer-id", "buyer-1", "--state", "tx", "--flow", "backfill", "--output", "human")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RESOURCE_NOT_FOUND")
}
