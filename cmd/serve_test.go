package cmd

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/issuetracker/internal/daemon"
)

func TestPidFile_Path(t *testing.T) {
	dir := testEnv(t)

	pf := pidFile()
	assert.Equal(t, filepath.Join(dir, "issuetracker-serve.pid"), pf.Path)
}

func TestServeLogPath(t *testing.T) {
	dir := testEnv(t)

	assert.Equal(t, filepath.Join(dir, "issuetracker-serve.log"), serveLogPath())
}

func TestServeStatusRun_NotRunning(t *testing.T) {
	testEnv(t)

	// No PID file exists, so status should show "not running" without error.
	assert.NoError(t, serveStatusRun())
}

func TestServeStopRun_NotRunning(t *testing.T) {
	testEnv(t)

	err := serveStopRun()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not running")
}

func TestServeStopRun_RemovesStalePIDFile(t *testing.T) {
	dir := testEnv(t)

	pf := daemon.NewPIDFile(filepath.Join(dir, "issuetracker-serve.pid"))
	require.NoError(t, pf.WritePID(999999))

	err := serveStopRun()
	require.Error(t, err)
	_, statErr := os.Stat(pf.Path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestServeStartRun_AlreadyRunning(t *testing.T) {
	dir := testEnv(t)

	// Write a PID file for the current process (which is alive).
	pf := daemon.NewPIDFile(filepath.Join(dir, "issuetracker-serve.pid"))
	require.NoError(t, pf.WritePID(os.Getpid()))
	t.Cleanup(func() { _ = os.Remove(pf.Path) })

	err := serveStartRun()
	require.Error(t, err)
	assert.ErrorIs(t, err, daemon.ErrAlreadyRunning)
	assert.Contains(t, err.Error(), "already running")
}

func TestServeStartRun_DryRun(t *testing.T) {
	testEnv(t)
	dryRun = true
	defer func() { dryRun = false }()

	require.NoError(t, serveStartRun())
	_, running := pidFile().IsRunning()
	assert.False(t, running)
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func TestServeRun_ServesAndShutsDown(t *testing.T) {
	testEnv(t)
	port := freePort(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serveRun(ctx, port) }()

	url := fmt.Sprintf("http://127.0.0.1:%d/healthz", port)
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode == http.StatusOK && string(body) == "{\"status\":\"ok\"}\n"
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(shutdownTimeout):
		t.Fatal("server did not shut down")
	}
}

func TestNewHTTPServer_Timeouts(t *testing.T) {
	srv := newHTTPServer(":0", http.NotFoundHandler())
	assert.NotZero(t, srv.ReadHeaderTimeout)
	assert.NotZero(t, srv.WriteTimeout)
	assert.Equal(t, ":0", srv.Addr)
}

func TestServeRun_BadDriver(t *testing.T) {
	testEnv(t)
	viper.Set("store.driver", "mongo")

	err := serveRun(context.Background(), freePort(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown store driver")
}
