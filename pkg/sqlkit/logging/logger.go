// Package logging provides the leveled logger used across sqlkit. Log lines are
// rendered as single-line JSON when the output is not a terminal, and as
// colorized human-readable lines when it is.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/term"
)

// Logger is the logging interface consumed by the rest of sqlkit.
type Logger interface {
	Debug(args ...any)
	Debugf(format string, args ...any)
	Log(args ...any)
	Logf(format string, args ...any)
	Info(args ...any)
	Infof(format string, args ...any)
	Notice(args ...any)
	Noticef(format string, args ...any)
	Warn(args ...any)
	Warnf(format string, args ...any)
	Error(args ...any)
	Errorf(format string, args ...any)
	Fatal(args ...any)
	Fatalf(format string, args ...any)
	ChangeLevel(level Level)
}

// PrettyPrinter lets a logged value control its own terminal rendering. The SQL
// datasource uses this to print query logs with aligned duration columns.
type PrettyPrinter interface {
	PrettyPrint(writer io.Writer)
}

type logger struct {
	level      Level
	normalOut  io.Writer
	errorOut   io.Writer
	isTerminal bool
}

type logEntry struct {
	Level   Level     `json:"level"`
	Time    time.Time `json:"time"`
	Message any       `json:"message"`
}

// NewLogger creates a Logger writing to stdout/stderr at the given level.
func NewLogger(level Level) Logger {
	l := &logger{
		level:     level,
		normalOut: os.Stdout,
		errorOut:  os.Stderr,
	}
	l.isTerminal = checkIfTerminal(l.normalOut)

	return l
}

// NewFileLogger creates a Logger that appends all levels to the named file.
// A path that cannot be opened falls back to a discard writer.
func NewFileLogger(path string) Logger {
	l := &logger{
		level:     DEBUG,
		normalOut: io.Discard,
		errorOut:  io.Discard,
	}

	if path == "" {
		return l
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return l
	}

	l.normalOut = f
	l.errorOut = f

	return l
}

func checkIfTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	return term.IsTerminal(int(f.Fd()))
}

func (l *logger) logf(level Level, format string, args ...any) {
	if level < l.level {
		return
	}

	out := l.normalOut
	if level >= ERROR {
		out = l.errorOut
	}

	entry := logEntry{
		Level: level,
		Time:  time.Now(),
	}

	switch {
	case len(args) == 1 && format == "":
		entry.Message = args[0]
	case len(args) != 1 && format == "":
		entry.Message = args
	case format != "":
		entry.Message = fmt.Sprintf(format, args...)
	}

	if l.isTerminal {
		l.prettyPrint(entry, out)
	} else {
		_ = json.NewEncoder(out).Encode(entry)
	}
}

func (l *logger) prettyPrint(e logEntry, out io.Writer) {
	fmt.Fprintf(out, "[38;5;%dm%s[0m [%s] ", e.Level.color(), e.Level.String()[0:4],
		e.Time.Format("15:04:05"))

	if printer, ok := e.Message.(PrettyPrinter); ok {
		printer.PrettyPrint(out)
		return
	}

	fmt.Fprintf(out, "%v\n", e.Message)
}

func (l *logger) Debug(args ...any)                 { l.logf(DEBUG, "", args...) }
func (l *logger) Debugf(format string, args ...any) { l.logf(DEBUG, format, args...) }

func (l *logger) Log(args ...any)                 { l.logf(INFO, "", args...) }
func (l *logger) Logf(format string, args ...any) { l.logf(INFO, format, args...) }

func (l *logger) Info(args ...any)                 { l.logf(INFO, "", args...) }
func (l *logger) Infof(format string, args ...any) { l.logf(INFO, format, args...) }

func (l *logger) Notice(args ...any)                 { l.logf(NOTICE, "", args...) }
func (l *logger) Noticef(format string, args ...any) { l.logf(NOTICE, format, args...) }

func (l *logger) Warn(args ...any)                 { l.logf(WARN, "", args...) }
func (l *logger) Warnf(format string, args ...any) { l.logf(WARN, format, args...) }

func (l *logger) Error(args ...any)                 { l.logf(ERROR, "", args...) }
func (l *logger) Errorf(format string, args ...any) { l.logf(ERROR, format, args...) }

func (l *logger) Fatal(args ...any) {
	l.logf(FATAL, "", args...)
	os.Exit(1)
}

func (l *logger) Fatalf(format string, args ...any) {
	l.logf(FATAL, format, args...)
	os.Exit(1)
}

func (l *logger) ChangeLevel(level Level) {
	l.level = level
}
