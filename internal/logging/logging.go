/*
 * MIT License
 *
 * Copyright (c) 2026 chess-uci-bridge contributors
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

// Package logging wraps logrus with the structured-field conventions this
// module's components share, plus bridges for the CLI framework's own
// diagnostic output.
package logging

import (
	"io"
	"os"

	"github.com/mattn/go-colorable"
	"github.com/sirupsen/logrus"
	"github.com/spf13/jwalterweatherman"
)

// Logger is the structured logging surface used across every component.
type Logger interface {
	Debug(msg string, fields map[string]any)
	Info(msg string, fields map[string]any)
	Warn(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
	WithField(key string, val any) Logger
	WithFields(fields map[string]any) Logger
}

type logger struct {
	entry *logrus.Entry
}

// Options configures the backing logrus logger.
type Options struct {
	Level      string // debug|info|warn|error
	JSON       bool
	Color      bool
	Output     io.Writer // defaults to a colorable stdout wrapper
	FilePath   string    // optional additional file sink
	EnableFile bool
}

// New builds a Logger from Options and installs it as the target of
// jwalterweatherman's output (the logger cobra and viper use internally),
// so every diagnostic line flows through one sink.
func New(opt Options) Logger {
	l := logrus.New()

	if opt.Output != nil {
		l.SetOutput(opt.Output)
	} else {
		l.SetOutput(colorable.NewColorableStdout())
	}

	if opt.JSON {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
			ForceColors:   opt.Color,
		})
	}

	switch opt.Level {
	case "debug":
		l.SetLevel(logrus.DebugLevel)
	case "warn":
		l.SetLevel(logrus.WarnLevel)
	case "error":
		l.SetLevel(logrus.ErrorLevel)
	default:
		l.SetLevel(logrus.InfoLevel)
	}

	if opt.EnableFile && opt.FilePath != "" {
		if f, err := os.OpenFile(opt.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644); err == nil {
			l.AddHook(&fileHook{file: f, level: l.GetLevel()})
		}
	}

	lg := &logger{entry: logrus.NewEntry(l)}
	bridgeJWalterWeatherman(lg)
	return lg
}

// bridgeJWalterWeatherman routes cobra/viper's internal diagnostic output
// (LOG/FEEDBACK) through this logger instead of the default stderr writer.
func bridgeJWalterWeatherman(l Logger) {
	jwalterweatherman.SetLogOutput(&writerAdapter{l: l, level: "debug"})
	jwalterweatherman.SetStdoutOutput(&writerAdapter{l: l, level: "info"})
}

type writerAdapter struct {
	l     Logger
	level string
}

func (w *writerAdapter) Write(p []byte) (int, error) {
	msg := string(p)
	switch w.level {
	case "debug":
		w.l.Debug(msg, nil)
	default:
		w.l.Info(msg, nil)
	}
	return len(p), nil
}

func (l *logger) Debug(msg string, fields map[string]any) { l.log(logrus.DebugLevel, msg, fields) }
func (l *logger) Info(msg string, fields map[string]any)  { l.log(logrus.InfoLevel, msg, fields) }
func (l *logger) Warn(msg string, fields map[string]any)  { l.log(logrus.WarnLevel, msg, fields) }
func (l *logger) Error(msg string, fields map[string]any) { l.log(logrus.ErrorLevel, msg, fields) }

func (l *logger) log(level logrus.Level, msg string, fields map[string]any) {
	e := l.entry
	if len(fields) > 0 {
		e = e.WithFields(logrus.Fields(fields))
	}
	e.Log(level, msg)
}

func (l *logger) WithField(key string, val any) Logger {
	return &logger{entry: l.entry.WithField(key, val)}
}

func (l *logger) WithFields(fields map[string]any) Logger {
	return &logger{entry: l.entry.WithFields(logrus.Fields(fields))}
}

// fileHook is a minimal logrus hook writing every entry to an open file.
type fileHook struct {
	file  *os.File
	level logrus.Level
}

func (h *fileHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *fileHook) Fire(e *logrus.Entry) error {
	line, err := e.String()
	if err != nil {
		return err
	}
	_, err = h.file.WriteString(line)
	return err
}
