// Copyright © 2018 Intel Corporation
//
// SPDX-License-Identifier: GPL-3.0-only

// Package errors defines the error taxonomy shared by the partition and
// mount engines. Every engine operation returns one of the Kind values
// below instead of a bare error, so a caller can branch on failure mode
// without string matching, while still getting a traceable stack for
// logging.
package errors

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"
)

// Kind classifies an Error so callers can branch on failure mode.
type Kind int

const (
	// Io is an underlying syscall failure; Errno carries the errno.
	Io Kind = iota
	// NotFound is a device, partition index, tag, or mount target absent.
	NotFound
	// InvalidLabel is an on-disk structure that failed signature or CRC checks.
	InvalidLabel
	// NoSpace is returned when no gap fits the requested partition.
	NoSpace
	// Overlap is returned when a requested range conflicts with an existing partition.
	Overlap
	// BadAlignment is returned when a request violates alignment policy.
	BadAlignment
	// Busy is returned when a device or resource is in use.
	Busy
	// ParseError is a text-format problem; File/Line/Reason are set.
	ParseError
	// ReadOnly is returned when a write is requested on a read-only Context.
	ReadOnly
	// Cancelled names a cancellation through an Ask callback; no package
	// here returns it, since a callback's error is passed back unchanged.
	Cancelled
	// Unsupported is returned when an operation is not defined for the active label.
	Unsupported
)

var kindNames = map[Kind]string{
	Io:           "io",
	NotFound:     "not-found",
	InvalidLabel: "invalid-label",
	NoSpace:      "no-space",
	Overlap:      "overlap",
	BadAlignment: "bad-alignment",
	Busy:         "busy",
	ParseError:   "parse-error",
	ReadOnly:     "read-only",
	Cancelled:    "cancelled",
	Unsupported:  "unsupported",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Error is the concrete error type returned by engine operations. It
// carries a Kind, an optional errno, an optional parse location, and a
// stack trace captured at construction time (same technique the
// installer's errors.TraceableError used: walk runtime.Callers once).
type Error struct {
	kind   Kind
	what   string
	errno  syscall.Errno
	file   string
	line   int
	reason string
	trace  string
	when   time.Time
}

// Kind reports the classification of err.
func (e *Error) Kind() Kind { return e.kind }

// Errno reports the underlying errno for Io-kind errors, or 0.
func (e *Error) Errno() syscall.Errno { return e.errno }

// File, Line and Reason report the parse location for ParseError kinds.
func (e *Error) File() string   { return e.file }
func (e *Error) Line() int      { return e.line }
func (e *Error) Reason() string { return e.reason }

func (e *Error) Error() string {
	if e.kind == ParseError && e.what == "" {
		return fmt.Sprintf("%s:%d: %s%s", e.file, e.line, e.reason, e.trace)
	}
	return fmt.Sprintf("%s%s", e.what, e.trace)
}

// Unwrap lets errors.Is/errors.As reach the underlying errno.
func (e *Error) Unwrap() error {
	if e.errno != 0 {
		return e.errno
	}
	return nil
}

func getTraceIdx(idx int) (string, string, int) {
	pc := make([]uintptr, 10)
	runtime.Callers(2, pc)
	f := runtime.FuncForPC(pc[idx+1])
	file, line := f.FileLine(pc[idx+1])
	return f.Name(), file, line
}

func formatTraceIdx(idx int) (string, string) {
	funcName, file, line := getTraceIdx(idx)
	fileName := filepath.Base(file)

	fn := strings.Split(funcName, "github.com/clearlinux/partkit/")
	if len(fn) > 1 {
		funcName = fn[1]
	} else {
		funcName = fn[0]
	}

	dir := strings.Split(filepath.Dir(file), "/partkit/")
	var dirName string
	if len(dir) > 1 {
		dirName = dir[1]
	} else {
		dirName = dir[0]
	}

	return funcName, fmt.Sprintf("%s/%s:%d", dirName, fileName, line)
}

func getTrace() string {
	cfName, cTrace := formatTraceIdx(3)
	caller := fmt.Sprintf("%s()\n     %s\n", cfName, cTrace)

	rfName, rTrace := formatTraceIdx(2)
	raiser := fmt.Sprintf("%s()\n     %s\n", rfName, rTrace)

	return fmt.Sprintf("\n\nError Trace:\n%s%s", raiser, caller)
}

// New builds a Kind-tagged error with a formatted message and a captured trace.
func New(kind Kind, format string, a ...interface{}) error {
	return &Error{
		kind:  kind,
		what:  fmt.Sprintf(format, a...),
		trace: getTrace(),
		when:  time.Now(),
	}
}

// Errnof builds an Io-kind error wrapping errno, as returned by a failed syscall.
func Errnof(errno syscall.Errno, format string, a ...interface{}) error {
	return &Error{
		kind:  Io,
		what:  fmt.Sprintf(format, a...) + ": " + errno.Error(),
		errno: errno,
		trace: getTrace(),
		when:  time.Now(),
	}
}

// Parsef builds a ParseError carrying the failing file/line.
func Parsef(file string, line int, format string, a ...interface{}) error {
	return &Error{
		kind:   ParseError,
		file:   file,
		line:   line,
		reason: fmt.Sprintf(format, a...),
		trace:  getTrace(),
		when:   time.Now(),
	}
}

// Wrap re-tags an arbitrary error with Kind and a trace captured at this call site.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{
		kind:  kind,
		what:  err.Error(),
		trace: getTrace(),
		when:  time.Now(),
	}
}

// Is reports whether err is an *Error of the given Kind.
func Is(err error, kind Kind) bool {
	e, ok := err.(*Error)
	return ok && e.kind == kind
}
