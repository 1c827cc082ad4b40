package utils

import (
	"runtime/debug"
	"time"

	log "github.com/sirupsen/logrus"
)

// ParseTime parses a time stored in the cache index
func ParseTime(t string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, t)
}

// MakeTimeToString formats a time for the cache index
func MakeTimeToString(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// StackTraceFromPanic logs the stack trace of a panic and re-panics
func StackTraceFromPanic(logger *log.Entry) {
	if r := recover(); r != nil {
		logger.Errorf("stacktrace from panic: %s", string(debug.Stack()))
		logger.Panic(r)
	}
}
