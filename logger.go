// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package socp

import (
	"fmt"
	"io"
)

// LogLevel controls the frequency and type of logger output.
type LogLevel int

const (
	// LogNoop no output is generated (level < 0)
	LogNoop LogLevel = -1
	// LogLast the solver prints nothing at this level; it has no
	// last-iteration summary line
	LogLast LogLevel = 0
	// LogIter print one line of progress per iteration
	LogIter LogLevel = 1
	// LogTrace prints the same per-iteration line as LogIter; the solver has
	// no separate trace output
	LogTrace LogLevel = 99
)

// Logger handles logging output for the solver.
// Note the writer must be thread-safe across concurrent Workspaces sharing
// one Optimizer.
type Logger struct {
	Level LogLevel
	Msg   io.Writer // Writer to output log messages.
}

func (l *Logger) enable(level LogLevel) bool {
	return l != nil && l.Level >= level
}

func (l *Logger) log(format string, a ...any) {
	if l == nil || l.Msg == nil {
		return
	}
	if len(a) > 0 {
		_, _ = fmt.Fprintf(l.Msg, format, a...)
	} else {
		_, _ = fmt.Fprint(l.Msg, format)
	}
}
