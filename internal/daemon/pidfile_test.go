package daemon

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPIDFile_WriteAndRead(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "serve.pid"))

	require.NoError(t, pf.WritePID(12345))

	pid, err := pf.Read()
	require.NoError(t, err)
	assert.Equal(t, 12345, pid)

	_, err = os.Stat(pf.Path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file should be renamed away")
}

func TestPIDFile_Read_MissingFile(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "nonexistent.pid"))

	_, err := pf.Read()
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestPIDFile_Read_InvalidContent(t *testing.T) {
	for _, content := range []string{"not-a-number\n", "0\n", "-4"} {
		path := filepath.Join(t.TempDir(), "bad.pid")
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		_, err := NewPIDFile(path).Read()
		require.Error(t, err, content)
		assert.Contains(t, err.Error(), "invalid PID file content")
	}
}

func TestPIDFile_Claim_CreatesDir(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "state", "serve.pid"))

	require.NoError(t, pf.Claim(os.Getpid()))

	pid, err := pf.Read()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestPIDFile_Claim_AlreadyRunning(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "serve.pid"))
	require.NoError(t, pf.WritePID(os.Getpid()))

	err := pf.Claim(12345)
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	pid, err := pf.Read()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid, "live owner must be kept")
}

func TestPIDFile_Claim_ReplacesStale(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "serve.pid"))
	// Use a very high PID that almost certainly doesn't exist.
	require.NoError(t, pf.WritePID(999999))

	require.NoError(t, pf.Claim(os.Getpid()))

	pid, err := pf.Read()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestPIDFile_Release(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "serve.pid"))
	require.NoError(t, pf.WritePID(42))

	require.NoError(t, pf.Release(7))
	_, err := pf.Read()
	require.NoError(t, err, "file owned by another pid is kept")

	require.NoError(t, pf.Release(42))
	_, err = os.Stat(pf.Path)
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, pf.Release(42), "missing file is fine")
}

func TestPIDFile_Remove_MissingFile(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "nonexistent.pid"))

	assert.Error(t, pf.Remove())
}

func TestPIDFile_IsRunning(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "serve.pid"))

	pid, running := pf.IsRunning()
	assert.Equal(t, 0, pid)
	assert.False(t, running)

	require.NoError(t, pf.WritePID(os.Getpid()))
	pid, running = pf.IsRunning()
	assert.True(t, running)
	assert.Equal(t, os.Getpid(), pid)

	require.NoError(t, pf.WritePID(999999))
	pid, running = pf.IsRunning()
	assert.Equal(t, 999999, pid)
	assert.False(t, running)
}

func TestPIDFile_WaitExit(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "serve.pid"))

	require.NoError(t, pf.WritePID(999999))
	assert.True(t, pf.WaitExit(time.Second, 10*time.Millisecond))

	require.NoError(t, pf.WritePID(os.Getpid()))
	assert.False(t, pf.WaitExit(30*time.Millisecond, 10*time.Millisecond))
}

func TestPIDFile_Signal(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "serve.pid"))

	err := pf.Signal(syscall.Signal(0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read PID file")

	require.NoError(t, pf.WritePID(os.Getpid()))
	// Signal 0 only probes the process.
	assert.NoError(t, pf.Signal(syscall.Signal(0)))
}
