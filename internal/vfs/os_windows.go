//go:build windows

package vfs

import (
	"errors"
	"syscall"
)

// ERROR_DIRECTORY is returned when a file is used where a directory is expected.
const errDirectory syscall.Errno = 267

func isNotDir(err error) bool {
	return errors.Is(err, errDirectory)
}
