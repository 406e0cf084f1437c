//go:build !windows

package service

import (
	"os"
	"syscall"
)

var foregroundSignals = []os.Signal{syscall.SIGCONT}
