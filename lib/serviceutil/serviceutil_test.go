package serviceutil

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignalContext(t *testing.T) {
	ctx := SignalContext()
	require.NoError(t, ctx.Err())

	err := syscall.Kill(os.Getpid(), syscall.SIGTERM)
	require.NoError(t, err)

	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("context was not cancelled by SIGTERM")
	}
}

func TestFatal(t *testing.T) {
	if os.Getenv("SERVICEUTIL_FATAL") == "1" {
		Fatal("command failed", errors.New("boom"))
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=^TestFatal$")
	cmd.Env = append(os.Environ(), "SERVICEUTIL_FATAL=1")
	out, err := cmd.CombinedOutput()

	var exitErr *exec.ExitError
	require.ErrorAs(t, err, &exitErr)
	require.Equal(t, 1, exitErr.ExitCode())
	require.Contains(t, string(out), "command failed")
	require.Contains(t, string(out), "boom")
}
