// Copyright © 2018 Intel Corporation
//
// SPDX-License-Identifier: GPL-3.0-only

package ptable

import "fmt"

// AskKind tags the variant carried by an AskMessage.
type AskKind int

const (
	// AskInfo is an informational message; no reply expected.
	AskInfo AskKind = iota
	// AskWarn is a warning message; no reply expected.
	AskWarn
	// AskWarnErrno is a warning carrying an errno; no reply expected.
	AskWarnErrno
	// AskYesNo requests a boolean decision.
	AskYesNo
	// AskNumber requests an integer within [Low, High].
	AskNumber
	// AskOffset requests an LBA offset within [Low, High].
	AskOffset
	// AskMenu requests a choice among Choices.
	AskMenu
	// AskString requests free-form text.
	AskString
)

// AskMessage is the tagged union the engine emits through the
// ask-callback bottleneck. The front-end fills in the Result* field that
// matches Kind and returns; returning an error cancels the operation.
type AskMessage struct {
	Kind AskKind
	Text string
	Errno int

	Low, High, Default int64
	Choices            []string

	ResultBool   bool
	ResultInt    int64
	ResultString string
}

// Asker is the front-end-supplied callback. Returning an error aborts
// the current operation, which passes that error back unchanged.
type Asker func(*AskMessage) error

// Info builds an AskInfo message.
func Info(format string, a ...interface{}) AskMessage {
	return AskMessage{Kind: AskInfo, Text: fmt.Sprintf(format, a...)}
}

// Warn builds an AskWarn message.
func Warn(format string, a ...interface{}) AskMessage {
	return AskMessage{Kind: AskWarn, Text: fmt.Sprintf(format, a...)}
}

// YesNo builds an AskYesNo message with the given default.
func YesNo(def bool, format string, a ...interface{}) AskMessage {
	d := int64(0)
	if def {
		d = 1
	}
	return AskMessage{Kind: AskYesNo, Text: fmt.Sprintf(format, a...), Default: d}
}
