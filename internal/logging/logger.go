/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

/*
Package logging provides component loggers for TopicMQ.

Each subsystem creates its own logger with NewLogger("server"),
NewLogger("broker") and so on, and logs a message followed by key/value
pairs:

	log.Info("Client registered", "session", id, "codec", "XML")

Output goes through zerolog, as JSON lines in JSON mode or through the
console writer otherwise. Level, output and mode are process-wide and
are read on every call, so changing them affects existing loggers.
*/
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Level represents the severity of a log message.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) zerolog() zerolog.Level {
	switch l {
	case DEBUG:
		return zerolog.DebugLevel
	case WARN:
		return zerolog.WarnLevel
	case ERROR:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// ParseLevel parses a string into a Level. Unknown names map to INFO.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DEBUG
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

// Config holds logger configuration options.
type Config struct {
	Level    Level
	Output   io.Writer
	JSONMode bool
}

// DefaultConfig returns the default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:    INFO,
		Output:   os.Stdout,
		JSONMode: false,
	}
}

var (
	globalMu     sync.RWMutex
	globalConfig = DefaultConfig()
	globalBase   = build(globalConfig)
)

func build(cfg Config) zerolog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	if !cfg.JSONMode {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: "2006-01-02T15:04:05.000Z07:00",
			NoColor:    out != os.Stdout && out != os.Stderr,
		}
	}
	return zerolog.New(out).
		Level(cfg.Level.zerolog()).
		With().Timestamp().Logger()
}

func update(fn func(*Config)) {
	globalMu.Lock()
	defer globalMu.Unlock()
	fn(&globalConfig)
	globalBase = build(globalConfig)
}

// Configure replaces the global configuration.
func Configure(cfg Config) {
	update(func(c *Config) { *c = cfg })
}

// SetGlobalLevel sets the global log level.
func SetGlobalLevel(level Level) {
	update(func(c *Config) { c.Level = level })
}

// SetGlobalOutput sets the global log output.
func SetGlobalOutput(w io.Writer) {
	update(func(c *Config) { c.Output = w })
}

// SetJSONMode enables or disables JSON output mode.
func SetJSONMode(enabled bool) {
	update(func(c *Config) { c.JSONMode = enabled })
}

func base() zerolog.Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalBase
}

// Logger is a component logger carrying optional bound fields.
type Logger struct {
	component string
	fields    []interface{}
}

// NewLogger creates a new Logger for the specified component.
func NewLogger(component string) *Logger {
	return &Logger{component: component}
}

// With returns a logger that adds the given key/value pairs to every entry.
func (l *Logger) With(args ...interface{}) *Logger {
	fields := make([]interface{}, 0, len(l.fields)+len(args))
	fields = append(fields, l.fields...)
	fields = append(fields, args...)
	return &Logger{component: l.component, fields: fields}
}

func (l *Logger) log(level Level, msg string, args ...interface{}) {
	zl := base()
	ev := zl.WithLevel(level.zerolog())
	if ev == nil {
		return
	}
	ev = ev.Str("component", l.component)
	ev = appendFields(ev, l.fields)
	ev = appendFields(ev, args)
	ev.Msg(msg)
}

func appendFields(ev *zerolog.Event, args []interface{}) *zerolog.Event {
	for i := 0; i < len(args)-1; i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprintf("arg%d", i)
		}
		switch v := args[i+1].(type) {
		case error:
			ev = ev.AnErr(key, v)
		case time.Duration:
			ev = ev.Dur(key, v)
		case fmt.Stringer:
			ev = ev.Stringer(key, v)
		default:
			ev = ev.Interface(key, v)
		}
	}
	if len(args)%2 != 0 {
		ev = ev.Interface("extra", args[len(args)-1])
	}
	return ev
}

// Debug logs a message at DEBUG level.
func (l *Logger) Debug(msg string, args ...interface{}) {
	l.log(DEBUG, msg, args...)
}

// Info logs a message at INFO level.
func (l *Logger) Info(msg string, args ...interface{}) {
	l.log(INFO, msg, args...)
}

// Warn logs a message at WARN level.
func (l *Logger) Warn(msg string, args ...interface{}) {
	l.log(WARN, msg, args...)
}

// Error logs a message at ERROR level.
func (l *Logger) Error(msg string, args ...interface{}) {
	l.log(ERROR, msg, args...)
}
