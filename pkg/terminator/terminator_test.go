package terminator

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/sentinel/pkg/log"
	"github.com/cuemby/sentinel/pkg/types"
	"github.com/stretchr/testify/require"
)

func TestRun_AlreadyExitedCleansUpPidFile(t *testing.T) {
	dir := t.TempDir()
	pidFile := filepath.Join(dir, "test.pid")
	require.NoError(t, os.WriteFile(pidFile, []byte("1"), 0640))

	cmd := exec.Command("true")
	require.NoError(t, cmd.Run())

	outcome := Run(context.Background(), Config{Pid: cmd.Process.Pid, PidFilePath: pidFile})
	require.Equal(t, AlreadyExited, outcome)
	_, err := os.Stat(pidFile)
	require.True(t, os.IsNotExist(err))
}

func TestRun_GracefulTerminationWhenProcessRespondsToTerm(t *testing.T) {
	cmd := exec.Command("sleep", "30")
	cmd.SysProcAttr = setpgid()
	require.NoError(t, cmd.Start())
	pid := cmd.Process.Pid
	go cmd.Wait()

	outcome := Run(context.Background(), Config{Pid: pid, GraceWindow: 2 * time.Second})
	require.Equal(t, GracefulTermination, outcome)
}

func TestRun_KillsAfterGraceWindowExpires(t *testing.T) {
	cmd := exec.Command("sh", "-c", "trap '' TERM; sleep 30")
	cmd.SysProcAttr = setpgid()
	require.NoError(t, cmd.Start())
	pid := cmd.Process.Pid
	go cmd.Wait()

	outcome := Run(context.Background(), Config{Pid: pid, GraceWindow: 300 * time.Millisecond})
	require.Equal(t, Killed, outcome)
}

func TestRun_WritesServiceGroupPreamble(t *testing.T) {
	sg, err := types.ParseServiceGroup("web.default")
	require.NoError(t, err)

	var buf bytes.Buffer
	prev := log.Logger
	log.Init(log.Config{Output: &buf, JSONOutput: true})
	defer func() { log.Logger = prev }()

	cmd := exec.Command("true")
	require.NoError(t, cmd.Run())

	outcome := Run(context.Background(), Config{Pid: cmd.Process.Pid, ServiceGroup: sg})
	require.Equal(t, AlreadyExited, outcome)
	require.Contains(t, buf.String(), "Supervisor web.default: Already exited")
}
