// Package hooks holds logrus hooks shared by the binaries.
package hooks

import (
	"fmt"
	"runtime"
	"strings"

	log "github.com/sirupsen/logrus"
)

type contextHook struct{}

// NewContextHook returns a hook that tags every entry with the file:line of
// the logging callsite.
func NewContextHook() log.Hook {
	return contextHook{}
}

func (hook contextHook) Levels() []log.Level {
	return log.AllLevels
}

func (hook contextHook) Fire(entry *log.Entry) error {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "sirupsen/logrus") &&
			!strings.Contains(frame.File, "common/log/hooks") {
			entry.Data["file:line"] = fmt.Sprintf("%s:%d", shortPath(frame.File), frame.Line)
			return nil
		}
		if !more {
			return nil
		}
	}
}

// Last two path elements, enough to locate the callsite without the noise of
// a full GOPATH prefix.
func shortPath(path string) string {
	parts := strings.Split(path, "/")
	if len(parts) > 2 {
		parts = parts[len(parts)-2:]
	}
	return strings.Join(parts, "/")
}
