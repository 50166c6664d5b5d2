// Package latticelog is a minimal logging wrapper around the standard
// library's log.Logger, gated by a package-level verbose toggle.
//
// Grounded in the teacher's own logging texture — it carries no
// structured-logging dependency and logs via ad hoc
// fmt.Fprintf(os.Stderr, ...) guarded by a verbose flag (see
// internal/config.Initialize's debug-logging comments and cmd/bd's
// verbose-flag-gated prints) — generalized here into a named package
// rather than scattered guarded prints, but the same "stderr, toggled"
// texture (SPEC_FULL.md §2.2).
package latticelog

import (
	"io"
	"log"
	"os"
	"sync"
)

var (
	mu      sync.Mutex
	verbose bool
	logger  = log.New(os.Stderr, "", log.LstdFlags)
)

// SetVerbose toggles whether Debugf output is emitted.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
}

// SetOutput redirects log output, mainly for tests that want to capture
// or silence it.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	logger.SetOutput(w)
}

// Debugf logs format/args only when verbose logging is enabled.
func Debugf(format string, args ...any) {
	mu.Lock()
	v := verbose
	mu.Unlock()
	if !v {
		return
	}
	logger.Printf(format, args...)
}

// Infof always logs, for events worth surfacing regardless of the
// verbose toggle (sync peer connect/disconnect, bootstrap grants).
func Infof(format string, args ...any) {
	logger.Printf(format, args...)
}

// Errorf always logs, prefixed to stand out from Infof lines.
func Errorf(format string, args ...any) {
	logger.Printf("error: "+format, args...)
}
