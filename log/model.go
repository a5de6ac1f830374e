/*
 * MIT License
 *
 * Copyright (c) 2019 Nicolas JUHEL
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
 *
 *
 */

package log

import (
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

type logger struct {
	entry *logrus.Entry
}

// New returns a Logger that writes colorized, leveled entries to out
// (stdout by default) through a *logrus.Logger.
func New(lvl Level, out io.Writer) Logger {
	l := logrus.New()
	l.SetLevel(lvl.logrus())
	if out == nil {
		out = os.Stdout
	}
	l.SetOutput(out)
	l.SetFormatter(&logrus.TextFormatter{
		ForceColors:     color.NoColor == false,
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	return &logger{entry: logrus.NewEntry(l)}
}

func (l *logger) WithFields(f Fields) Logger {
	return &logger{entry: l.entry.WithFields(f.logrus())}
}

func (l *logger) Debug(args ...interface{}) { l.entry.Debug(args...) }
func (l *logger) Info(args ...interface{})  { l.entry.Info(args...) }
func (l *logger) Warn(args ...interface{})  { l.entry.Warn(args...) }
func (l *logger) Error(args ...interface{}) { l.entry.Error(args...) }

type noop struct{}

// NoOp returns a Logger that discards everything - the default when a
// caller does not supply one.
func NoOp() Logger { return noop{} }

func (noop) WithFields(Fields) Logger    { return noop{} }
func (noop) Debug(args ...interface{})   {}
func (noop) Info(args ...interface{})    {}
func (noop) Warn(args ...interface{})    {}
func (noop) Error(args ...interface{})   {}
