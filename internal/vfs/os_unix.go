//go:build !windows

package vfs

import (
	"errors"
	"syscall"
)

func isNotDir(err error) bool {
	return errors.Is(err, syscall.ENOTDIR)
}
