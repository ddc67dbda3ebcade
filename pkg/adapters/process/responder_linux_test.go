//go:build linux

package process_test

import (
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/aretw0/plotlink/pkg/adapters/process"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponder_StoppedProcess(t *testing.T) {
	ctx := context.Background()
	cmd := startChild(t)

	r, err := process.NewResponder(cmd.Process.Pid)
	require.NoError(t, err)

	require.NoError(t, cmd.Process.Signal(syscall.SIGSTOP))
	assert.Eventually(t, func() bool { return !r.IsResponding(ctx) }, 2*time.Second, 20*time.Millisecond)

	require.NoError(t, cmd.Process.Signal(syscall.SIGCONT))
	assert.Eventually(t, func() bool { return r.IsResponding(ctx) }, 2*time.Second, 20*time.Millisecond)
}
