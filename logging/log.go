// Copyright (C) 2019-2024 Algorand, Inc.
// This file is part of go-twochain
//
// go-twochain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// go-twochain is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with go-twochain.  If not, see <https://www.gnu.org/licenses/>.

/*
Package logging wraps logrus for the node.

Components take a Logger and narrow it with the fields they own:

	log := logging.Base().WithFields(logging.Fields{"epoch": 1, "author": addr.ShortString()})
	log.With("round", r).Warnf("proposal rejected: %v", err)
*/
package logging

import (
	"fmt"
	"io"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Level is a logging severity. Lower values are more severe.
type Level uint32

const (
	// Panic is kept so that Level values line up with logrus.
	Panic Level = iota
	// Fatal is kept so that Level values line up with logrus.
	Fatal
	// Error entries need an operator's attention.
	Error
	// Warn entries are dropped messages and rejected peers.
	Warn
	// Info entries are round changes, commits and lifecycle events.
	Info
	// Debug entries follow individual messages.
	Debug
)

var levelNames = []string{"panic", "fatal", "error", "warn", "info", "debug"}

func (l Level) String() string {
	if int(l) < len(levelNames) {
		return levelNames[l]
	}
	return fmt.Sprintf("level(%d)", uint32(l))
}

// ParseLevel maps a level name, as printed by Level.String, to its Level.
func ParseLevel(name string) (Level, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "warning" {
		name = "warn"
	}
	for i, n := range levelNames {
		if n == name {
			return Level(i), nil
		}
	}
	return Info, fmt.Errorf("unknown log level %q", name)
}

var (
	baseLogger Logger
	once       sync.Once
)

// Init sets up the base logger. It is safe to call more than once.
func Init() {
	once.Do(func() {
		baseLogger = NewLogger()
		baseLogger.SetLevel(Warn)
	})
}

func init() {
	Init()
}

// Fields maps logrus fields
type Fields = logrus.Fields

// Logger is the interface for loggers.
type Logger interface {
	Debug(...interface{})
	Debugln(...interface{})
	Debugf(string, ...interface{})

	Info(...interface{})
	Infoln(...interface{})
	Infof(string, ...interface{})

	Warn(...interface{})
	Warnln(...interface{})
	Warnf(string, ...interface{})

	// Error variants attach the caller's stack when Debug is enabled.
	Error(...interface{})
	Errorln(...interface{})
	Errorf(string, ...interface{})

	// With adds one field to every entry of the returned Logger.
	With(key string, value interface{}) Logger
	WithFields(Fields) Logger

	SetLevel(Level)
	GetLevel() Level
	IsLevelEnabled(level Level) bool

	SetOutput(io.Writer)
	SetJSONFormatter()

	source() *logrus.Entry
}

type logger struct {
	entry *logrus.Entry
}

func (l logger) With(key string, value interface{}) Logger {
	return logger{l.entry.WithField(key, value)}
}

func (l logger) WithFields(fields Fields) Logger {
	return logger{l.entry.WithFields(fields)}
}

func (l logger) Debug(args ...interface{}) {
	l.source().Debug(args...)
}

func (l logger) Debugln(args ...interface{}) {
	l.source().Debugln(args...)
}

func (l logger) Debugf(format string, args ...interface{}) {
	l.source().Debugf(format, args...)
}

func (l logger) Info(args ...interface{}) {
	l.source().Info(args...)
}

func (l logger) Infoln(args ...interface{}) {
	l.source().Infoln(args...)
}

func (l logger) Infof(format string, args ...interface{}) {
	l.source().Infof(format, args...)
}

func (l logger) Warn(args ...interface{}) {
	l.source().Warn(args...)
}

func (l logger) Warnln(args ...interface{}) {
	l.source().Warnln(args...)
}

func (l logger) Warnf(format string, args ...interface{}) {
	l.source().Warnf(format, args...)
}

func (l logger) Error(args ...interface{}) {
	l.errorEntry().Error(args...)
}

func (l logger) Errorln(args ...interface{}) {
	l.errorEntry().Errorln(args...)
}

func (l logger) Errorf(format string, args ...interface{}) {
	l.errorEntry().Errorf(format, args...)
}

// errorEntry must be called directly from a logging method so that source
// resolves the right caller.
func (l logger) errorEntry() *logrus.Entry {
	e := l.sourceAt(3)
	if l.IsLevelEnabled(Debug) {
		e = e.WithField("stack", string(debug.Stack()))
	}
	return e
}

func (l logger) SetLevel(lvl Level) {
	l.entry.Logger.SetLevel(logrus.Level(lvl))
}

func (l logger) GetLevel() Level {
	return Level(l.entry.Logger.GetLevel())
}

func (l logger) IsLevelEnabled(level Level) bool {
	return l.entry.Logger.IsLevelEnabled(logrus.Level(level))
}

func (l logger) SetOutput(w io.Writer) {
	l.entry.Logger.SetOutput(w)
}

func (l logger) SetJSONFormatter() {
	l.entry.Logger.Formatter = &logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000000Z07:00"}
}

func (l logger) source() *logrus.Entry {
	return l.sourceAt(3)
}

// sourceAt adds file and line of the frame skip levels above itself.
func (l logger) sourceAt(skip int) *logrus.Entry {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return l.entry
	}
	return l.entry.WithFields(logrus.Fields{
		"file": file[strings.LastIndex(file, "/")+1:],
		"line": line,
	})
}

// Base returns the process-wide Logger.
func Base() Logger {
	return baseLogger
}

// NewLogger returns a Logger at Info writing text to stderr.
func NewLogger() Logger {
	l := logrus.New()
	if tf, ok := l.Formatter.(*logrus.TextFormatter); ok {
		tf.TimestampFormat = "2006-01-02T15:04:05.000000 -0700"
	}
	return logger{logrus.NewEntry(l)}
}
