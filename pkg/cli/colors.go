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
Package cli provides shared terminal output for TopicMQ command line tools.

ICONS:
======
IconSuccess (✓), IconError (✗), IconWarning (⚠), IconInfo (ℹ), IconArrow (→), IconDot (●)

USAGE:
======

	cli.Success("Published to %s", topic)
	cli.Publish("/temperature/porto", 21)

Colors come from github.com/fatih/color and are disabled when NO_COLOR is
set or output is not a terminal.
*/
package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/goccy/go-json"
)

// Icons for CLI output
const (
	IconSuccess = "✓"
	IconError   = "✗"
	IconWarning = "⚠"
	IconInfo    = "ℹ"
	IconArrow   = "→"
	IconDot     = "●"
)

var (
	successColor = color.New(color.FgGreen)
	errorColor   = color.New(color.FgRed)
	warnColor    = color.New(color.FgYellow)
	infoColor    = color.New(color.FgCyan)
	dimColor     = color.New(color.Faint)
	headerColor  = color.New(color.FgCyan, color.Bold)
	topicColor   = color.New(color.FgMagenta)
)

// SetColorsEnabled enables or disables color output globally.
func SetColorsEnabled(enabled bool) {
	color.NoColor = !enabled
}

// Printer writes formatted messages to an output and an error stream.
type Printer struct {
	Out io.Writer
	Err io.Writer
}

// NewPrinter creates a Printer.
func NewPrinter(out, errOut io.Writer) *Printer {
	return &Printer{Out: out, Err: errOut}
}

var std = NewPrinter(color.Output, color.Error)

// Success prints a success message.
func (p *Printer) Success(format string, args ...any) {
	fmt.Fprintln(p.Out, successColor.Sprint(IconSuccess+" "+fmt.Sprintf(format, args...)))
}

// Error prints an error message to the error stream.
func (p *Printer) Error(format string, args ...any) {
	fmt.Fprintln(p.Err, errorColor.Sprint(IconError+" "+fmt.Sprintf(format, args...)))
}

// ErrorWithHint prints an error followed by a dimmed hint.
func (p *Printer) ErrorWithHint(message, hint string) {
	fmt.Fprintln(p.Err, errorColor.Sprint(IconError+" "+message))
	if hint != "" {
		fmt.Fprintln(p.Err, dimColor.Sprint("  "+IconArrow+" Hint: "+hint))
	}
}

// Warning prints a warning message.
func (p *Printer) Warning(format string, args ...any) {
	fmt.Fprintln(p.Out, warnColor.Sprint(IconWarning+" "+fmt.Sprintf(format, args...)))
}

// Info prints an info message.
func (p *Printer) Info(format string, args ...any) {
	fmt.Fprintln(p.Out, infoColor.Sprint(IconInfo+" "+fmt.Sprintf(format, args...)))
}

// Hint prints a dimmed hint.
func (p *Printer) Hint(format string, args ...any) {
	fmt.Fprintln(p.Out, dimColor.Sprint("  "+IconArrow+" "+fmt.Sprintf(format, args...)))
}

// Header prints a section title.
func (p *Printer) Header(text string) {
	fmt.Fprintln(p.Out, headerColor.Sprint(text))
}

// KeyValue prints an indented key/value pair.
func (p *Printer) KeyValue(key string, value any) {
	fmt.Fprintf(p.Out, "  %s: %v\n", dimColor.Sprint(key), value)
}

// Separator prints a horizontal line.
func (p *Printer) Separator() {
	fmt.Fprintln(p.Out, dimColor.Sprint(strings.Repeat("─", 40)))
}

// Example prints a described example command.
func (p *Printer) Example(description, command string) {
	fmt.Fprintf(p.Out, "  %s\n", dimColor.Sprint("# "+description))
	fmt.Fprintf(p.Out, "  %s\n", infoColor.Sprint(command))
}

// Publish prints one delivered message as "topic → value".
func (p *Printer) Publish(topic string, value any) {
	fmt.Fprintf(p.Out, "%s %s %s\n", topicColor.Sprint(topic), dimColor.Sprint(IconArrow), FormatValue(value))
}

// List prints items as a bulleted list.
func (p *Printer) List(items []string) {
	for _, item := range items {
		fmt.Fprintf(p.Out, "  %s %s\n", successColor.Sprint(IconDot), item)
	}
}

// FormatValue renders a message value as compact JSON. Strings are printed bare.
func FormatValue(value any) string {
	if s, ok := value.(string); ok {
		return s
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%v", value)
	}
	return string(data)
}

// Success prints a success message to stdout.
func Success(format string, args ...any) { std.Success(format, args...) }

// Error prints an error message to stderr.
func Error(format string, args ...any) { std.Error(format, args...) }

// ErrorWithHint prints an error with a hint to stderr.
func ErrorWithHint(message, hint string) { std.ErrorWithHint(message, hint) }

// Warning prints a warning message to stdout.
func Warning(format string, args ...any) { std.Warning(format, args...) }

// Info prints an info message to stdout.
func Info(format string, args ...any) { std.Info(format, args...) }

// Hint prints a dimmed hint to stdout.
func Hint(format string, args ...any) { std.Hint(format, args...) }

// Header prints a section title to stdout.
func Header(text string) { std.Header(text) }

// KeyValue prints a key/value pair to stdout.
func KeyValue(key string, value any) { std.KeyValue(key, value) }

// Separator prints a horizontal line to stdout.
func Separator() { std.Separator() }

// Example prints an example command to stdout.
func Example(description, command string) { std.Example(description, command) }

// Publish prints a delivered message to stdout.
func Publish(topic string, value any) { std.Publish(topic, value) }

// List prints a bulleted list to stdout.
func List(items []string) { std.List(items) }
