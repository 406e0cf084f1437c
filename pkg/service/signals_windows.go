//go:build windows

package service

import "os"

var foregroundSignals []os.Signal
