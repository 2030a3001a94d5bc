// Package debug provides a process-wide debug logger gated on an
// environment variable, in the style of the teacher's own debug.Logf.
package debug

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu      sync.Mutex
	enabled bool
	logger  *slog.Logger
	out     io.Writer = os.Stderr
)

// Init wires structured logging to a rotating file under dataDir when
// CFAIT_DEBUG is set. Safe to call multiple times; the last call wins.
func Init(dataDir string) {
	mu.Lock()
	defer mu.Unlock()

	enabled = os.Getenv("CFAIT_DEBUG") != ""
	if !enabled {
		return
	}

	if dataDir != "" {
		out = &lumberjack.Logger{
			Filename:   dataDir + "/debug.log",
			MaxSize:    5, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}
	}
	logger = slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// Logf writes a formatted debug line when debugging is enabled. It is a
// no-op otherwise, matching the teacher's Logf contract.
func Logf(format string, args ...any) {
	mu.Lock()
	e, l := enabled, logger
	mu.Unlock()
	if !e {
		return
	}
	if l == nil {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
		return
	}
	l.Debug(fmt.Sprintf(format, args...))
}

// Warn always surfaces a warning line to stderr, independent of CFAIT_DEBUG.
// Used for recoverable conditions a user should notice (corrupt journal,
// discarded cache, ghost pruning) without requiring debug mode.
func Warn(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "cfait: warning: "+format+"\n", args...)
}
