// Package weblog provides colored request/lifecycle logging, grounded on
// server/logging.go in the teacher repository: 2xx logs green, 4xx/5xx logs
// red, everything else goes through the plain logger.
package weblog

import (
	"log"
	"os"

	"github.com/fatih/color"
)

// Logger wraps a standard *log.Logger so verbosity is configured per server
// instance instead of mutating the global logger. Output always goes to
// stderr; the destination is not configurable.
type Logger struct {
	out     *log.Logger
	verbose bool
}

// New returns a Logger writing to stderr. verbose enables debug-level
// detail such as the per-dispatch CGI script/interpreter line.
func New(verbose bool) *Logger {
	return &Logger{out: log.New(os.Stderr, "", log.LstdFlags), verbose: verbose}
}

// Request logs one completed request/response exchange.
func (l *Logger) Request(method, path string, status int) {
	switch {
	case status >= 200 && status < 300:
		l.out.Print(color.GreenString("%s %s %d", method, path, status))
	case status >= 400:
		l.out.Print(color.RedString("%s %s %d", method, path, status))
	default:
		l.out.Printf("%s %s %d", method, path, status)
	}
}

// Info logs a plain informational message.
func (l *Logger) Info(format string, args ...any) {
	l.out.Printf(format, args...)
}

// Error logs an error-level message in red.
func (l *Logger) Error(format string, args ...any) {
	l.out.Print(color.RedString(format, args...))
}

// Debug logs a message only when verbose logging is enabled. The CGI
// dispatch path uses it to log the script and interpreter; the CGI
// environment itself is not logged.
func (l *Logger) Debug(format string, args ...any) {
	if !l.verbose {
		return
	}
	l.out.Printf(format, args...)
}
