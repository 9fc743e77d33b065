//go:build unix

package client

import (
	"errors"
	"syscall"

	"golang.org/x/sys/unix"
)

// detached starts the child in its own session so it outlives the terminal.
func detached() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}

func isRefused(err error) bool {
	return errors.Is(err, unix.ECONNREFUSED)
}
