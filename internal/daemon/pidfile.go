package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrAlreadyRunning is returned by Claim when a live process owns the file.
var ErrAlreadyRunning = errors.New("server already running")

// PIDFile tracks the background API server process.
type PIDFile struct {
	Path string
}

// NewPIDFile creates a PIDFile manager for the given path.
func NewPIDFile(path string) *PIDFile {
	return &PIDFile{Path: path}
}

// Claim records pid as the running server. A file left behind by a dead
// process is replaced; a live one yields ErrAlreadyRunning.
func (p *PIDFile) Claim(pid int) error {
	if existing, running := p.IsRunning(); running {
		return fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, existing)
	}
	if err := os.MkdirAll(filepath.Dir(p.Path), 0o755); err != nil {
		return fmt.Errorf("create pid dir: %w", err)
	}
	return p.WritePID(pid)
}

// WritePID writes the given PID to the file, replacing it atomically.
func (p *PIDFile) WritePID(pid int) error {
	tmp := p.Path + ".tmp"
	if err := os.WriteFile(tmp, []byte(strconv.Itoa(pid)+"\n"), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, p.Path)
}

// Read reads the PID from the file.
func (p *PIDFile) Read() (int, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid PID file content: %q", strings.TrimSpace(string(data)))
	}
	return pid, nil
}

// Release removes the file if it still names pid. A missing file is not an
// error.
func (p *PIDFile) Release(pid int) error {
	current, err := p.Read()
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err == nil && current != pid {
		return nil
	}
	return p.Remove()
}

// Remove deletes the PID file.
func (p *PIDFile) Remove() error {
	return os.Remove(p.Path)
}

// WaitExit polls until the recorded process is gone or timeout elapses.
func (p *PIDFile) WaitExit(timeout, interval time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if _, running := p.IsRunning(); !running {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(interval)
	}
}
