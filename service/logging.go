// Package service holds capabilities that aspects introduce onto controllers.
package service

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// Logging is a capability for writing a single log line
type Logging interface {
	Log(message string)
}

// ConsoleLogging writes log lines to a console writer
type ConsoleLogging struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsoleLogging creates console logging on out, or stdout when out is nil
func NewConsoleLogging(out io.Writer) *ConsoleLogging {
	if out == nil {
		out = os.Stdout
	}
	return &ConsoleLogging{out: out}
}

// Log implements Logging
func (l *ConsoleLogging) Log(message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.out, message)
}
