// Copyright © 2018 Intel Corporation
//
// SPDX-License-Identifier: GPL-3.0-only

// Package progress reports long-running operation progress to a caller
// through an explicit, Context-scoped interface rather than a
// package-global singleton: move-data reports progress to the Reporter
// passed to it, not to shared state.
package progress

// Reporter receives incremental progress for a chunked operation such
// as script.MoveData's sector-by-sector relocation.
type Reporter interface {
	// Step reports that done out of total units of work have completed.
	Step(done, total uint64)
}

// Nop is a Reporter that discards all progress reports.
type Nop struct{}

// Step implements Reporter.
func (Nop) Step(done, total uint64) {}

// Func adapts a plain function to the Reporter interface.
type Func func(done, total uint64)

// Step implements Reporter.
func (f Func) Step(done, total uint64) { f(done, total) }
