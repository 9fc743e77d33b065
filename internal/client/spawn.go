package client

import (
	"fmt"
	"os"
	"os/exec"
)

// ExecSpawner starts the daemon by running this executable again.
type ExecSpawner struct {
	// Executable defaults to the running binary.
	Executable string
	// Args are passed to the executable, for example "daemon".
	Args []string
}

// Spawn starts the daemon detached from this process's terminal and
// standard streams.
func (s ExecSpawner) Spawn() (int, error) {
	exe := s.Executable
	if exe == "" {
		var err error
		if exe, err = os.Executable(); err != nil {
			return 0, fmt.Errorf("failed to locate executable: %w", err)
		}
	}

	cmd := exec.Command(exe, s.Args...)
	// Nil streams are connected to the null device.
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.SysProcAttr = detached()

	if err := cmd.Start(); err != nil {
		return 0, err
	}

	pid := cmd.Process.Pid
	if err := cmd.Process.Release(); err != nil {
		return pid, err
	}
	return pid, nil
}
