package client

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// pidLock is a pid file created exclusively by whichever client spawns the
// daemon. The daemon takes it over once running and removes it as soon as
// it stops accepting commands.
type pidLock struct {
	path string

	// fresh is how long an empty lock is trusted to belong to a client that
	// has not written the pid yet.
	fresh time.Duration
}

// acquire creates the lock file. It reports false if a live process holds it.
// Locks naming a dead process, or empty ones older than fresh, are replaced.
func (l pidLock) acquire() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return false, err
	}

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			return true, f.Close()
		}
		if !errors.Is(err, fs.ErrExist) {
			return false, err
		}

		if l.held() {
			return false, nil
		}
		if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return false, err
		}
	}
	return false, nil
}

// held reports whether the existing lock belongs to a live process or a
// spawn still in progress.
func (l pidLock) held() bool {
	info, err := os.Stat(l.path)
	if err != nil {
		return false
	}

	pid, err := ReadPID(l.path)
	if err != nil {
		return time.Since(info.ModTime()) < l.fresh
	}

	alive, err := process.PidExists(int32(pid))
	return err == nil && alive
}

func (l pidLock) write(pid int) error {
	return os.WriteFile(l.path, []byte(strconv.Itoa(pid)+"\n"), 0644)
}

func (l pidLock) release() {
	_ = os.Remove(l.path)
}

// ReadPID returns the pid recorded in a pid file.
func ReadPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid pid file %s", path)
	}
	return pid, nil
}

// ClaimPID records the current process in the pid file at path. The
// returned function removes it, unless another process has since claimed it.
func ClaimPID(path string) (func(), error) {
	pid := os.Getpid()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	if err := (pidLock{path: path}).write(pid); err != nil {
		return nil, err
	}

	return func() {
		if owner, err := ReadPID(path); err == nil && owner == pid {
			_ = os.Remove(path)
		}
	}, nil
}
