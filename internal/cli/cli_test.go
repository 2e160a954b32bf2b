package cli

import (
	"bytes"
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

func TestDurationCommand(t *testing.T) {
	tests := []struct {
		arg  string
		want string
	}{
		{"0", "0ms\n"},
		{"1500", "01s 500ms\n"},
		{"3723000", "01h 02m 03s\n"},
	}
	for _, tt := range tests {
		out, err := run(t, "duration", tt.arg)
		require.NoError(t, err)
		assert.Equal(t, tt.want, out)
	}
}

func TestDurationCommandRejectsText(t *testing.T) {
	_, err := run(t, "duration", "soon")
	assert.Error(t, err)
}

func TestProgressCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.json")
	metrics := `{
		"host_type": "server",
		"fit_start": "2024-04-23 15:00:00",
		"fit_end": "2024-04-23 15:01:30",
		"rounds": {
			"1": {"eval_round_start": "2024-04-23 15:00:10", "eval_round_end": "2024-04-23 15:00:20"},
			"2": {"eval_round_start": "2024-04-23 15:01:00", "eval_round_end": "2024-04-23 15:01:25"}
		}
	}`
	require.NoError(t, os.WriteFile(path, []byte(metrics), 0o644))

	out, err := run(t, "progress", "--file", path, "--rounds", "4", "--role", "server", "--status", "IN_PROGRESS")
	require.NoError(t, err)
	assert.Contains(t, out, "Status:   In Progress")
	assert.Contains(t, out, "Progress: 50% (round 2 of 4)")
	assert.Contains(t, out, "Elapsed:  01m 30s")
	assert.Contains(t, out, "Round 2: done eval=25s")
}

func TestProgressCommandErrors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o644))
	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))

	_, err := run(t, "progress", "--file", bad, "--rounds", "2", "--role", "server", "--status", "IN_PROGRESS")
	assert.EqualError(t, err, "Error parsing metrics.")

	_, err = run(t, "progress", "--file", bad, "--rounds", "2", "--role", "worker", "--status", "IN_PROGRESS")
	assert.Error(t, err)

	out, err := run(t, "progress", "--file", empty, "--rounds", "2", "--role", "server", "--status", "IN_PROGRESS")
	require.NoError(t, err)
	assert.Contains(t, out, "No metrics reported yet.")
}
