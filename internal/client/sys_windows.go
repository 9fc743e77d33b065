//go:build windows

package client

import (
	"errors"
	"syscall"

	"golang.org/x/sys/windows"
)

// detached starts the child without a console in its own process group.
func detached() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		CreationFlags: windows.CREATE_NEW_PROCESS_GROUP | windows.DETACHED_PROCESS,
	}
}

func isRefused(err error) bool {
	return errors.Is(err, windows.WSAECONNREFUSED)
}
