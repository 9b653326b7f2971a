// Package clog provides the internal logging used by the gomdf library.
//
// The library is quiet by default. Applications that want diagnostics from
// the streaming writer enable output with LogMode(true) and may install
// their own LogProvider to route messages into their logging framework.
package clog

import (
	"log"
	"os"
	"sync/atomic"
)

// LogProvider receives the library log messages. Only Error, Warn and
// Debug levels are used.
type LogProvider interface {
	Error(format string, v ...any)
	Warn(format string, v ...any)
	Debug(format string, v ...any)
}

// Clog is a thin, switchable front for a LogProvider.
type Clog struct {
	provider LogProvider
	// is log output enabled, 1: enable, 0: disable
	has uint32
}

// NewLogger creates a new logger with the specified prefix writing to
// stderr. Output is disabled until LogMode(true) is called.
func NewLogger(prefix string) Clog {
	return Clog{
		provider: defaultLogger{log.New(os.Stderr, prefix, log.LstdFlags)},
	}
}

// LogMode enables or disables log output.
func (sf *Clog) LogMode(enable bool) {
	if enable {
		atomic.StoreUint32(&sf.has, 1)
	} else {
		atomic.StoreUint32(&sf.has, 0)
	}
}

// SetLogProvider replaces the output provider.
func (sf *Clog) SetLogProvider(p LogProvider) {
	if p != nil {
		sf.provider = p
	}
}

// Error logs an ERROR level message.
func (sf Clog) Error(format string, v ...any) {
	if atomic.LoadUint32(&sf.has) == 1 {
		sf.provider.Error(format, v...)
	}
}

// Warn logs a WARN level message.
func (sf Clog) Warn(format string, v ...any) {
	if atomic.LoadUint32(&sf.has) == 1 {
		sf.provider.Warn(format, v...)
	}
}

// Debug logs a DEBUG level message.
func (sf Clog) Debug(format string, v ...any) {
	if atomic.LoadUint32(&sf.has) == 1 {
		sf.provider.Debug(format, v...)
	}
}

type defaultLogger struct {
	*log.Logger
}

func (sf defaultLogger) Error(format string, v ...any) {
	sf.Printf("[E]: "+format, v...)
}

func (sf defaultLogger) Warn(format string, v ...any) {
	sf.Printf("[W]: "+format, v...)
}

func (sf defaultLogger) Debug(format string, v ...any) {
	sf.Printf("[D]: "+format, v...)
}
