package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/aretw0/plotlink/internal/adapters/file"
	"github.com/aretw0/plotlink/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	// Flag values persist between executions of the shared command tree.
	require.NoError(t, rootCmd.PersistentFlags().Set("config", ""))
	require.NoError(t, rootCmd.PersistentFlags().Set("log-level", ""))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "plotlink version ")
}

func TestPlotCommands(t *testing.T) {
	dir := t.TempDir()
	plots := filepath.Join(dir, "plots")
	cfgPath := filepath.Join(dir, "plotlink.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("store:\n  kind: file\n  dir: "+plots+"\nlog:\n  level: error\n"), 0o644))

	out, err := run(t, "plot", "ls", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "No plots stored.")

	store := file.New(plots)
	require.NoError(t, store.Save(context.Background(), "p1", &domain.Snapshot{
		PlotID: "p1", Phase: domain.PhaseReady, Accepting: true, UpdatedAt: time.Now(),
	}))

	out, err = run(t, "plot", "ls", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "| p1 | ready | yes | none |")

	out, err = run(t, "plot", "inspect", "p1", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "# Plot `p1`")

	out, err = run(t, "plot", "graph", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, `plot_p1["p1 <br/> ready"]`)

	_, err = run(t, "plot", "inspect", "missing", "--config", cfgPath)
	assert.ErrorIs(t, err, domain.ErrPlotNotFound)

	out, err = run(t, "plot", "rm", "p1", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted p1")

	out, err = run(t, "plot", "ls", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "No plots stored.")
}

func TestProbeCommand(t *testing.T) {
	out, err := run(t, "probe", strconv.Itoa(os.Getpid()), "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "is responding")

	_, err = run(t, "probe", "not-a-pid")
	assert.ErrorContains(t, err, "invalid pid")
}
