// Package log prints leveled build-pipeline diagnostics and counts warnings,
// so the orchestrator can report spec.md's "Warnings ... are printed but do
// not abort" policy (e.g. a service table spilling past its firmware-stable
// 32 slots, or a --romfs directory that scans to no files and no
// subdirectories) in its summary.
package log

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"
)

// Output is where diagnostics are written. Tests redirect it to a buffer.
var Output io.Writer = os.Stderr

var warningCount int64

// Warnf prints a non-fatal diagnostic and records it in WarningCount.
func Warnf(format string, args ...interface{}) {
	atomic.AddInt64(&warningCount, 1)
	fmt.Fprintf(Output, "[cxitool][WARN] "+format+"\n", args...)
}

// Errorf prints a non-fatal error diagnostic.
func Errorf(format string, args ...interface{}) {
	fmt.Fprintf(Output, "[cxitool][ERROR] "+format+"\n", args...)
}

// Fatalf prints a diagnostic and exits the process with status 1, matching
// the original tool's no-retries, message-to-stderr error policy.
func Fatalf(format string, args ...interface{}) {
	fmt.Fprintf(Output, "[cxitool][FATAL] "+format+"\n", args...)
	os.Exit(1)
}

// WarningCount returns the number of Warnf calls since the last reset.
func WarningCount() int {
	return int(atomic.LoadInt64(&warningCount))
}

// ResetWarningCount zeroes the counter. Called at the start of each build so
// counts don't leak across repeated cxitool build invocations in one process.
func ResetWarningCount() {
	atomic.StoreInt64(&warningCount, 0)
}
