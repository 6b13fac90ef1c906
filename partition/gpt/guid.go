// Copyright © 2018 Intel Corporation
//
// SPDX-License-Identifier: GPL-3.0-only

package gpt

import (
	"strings"

	"github.com/google/uuid"

	"github.com/clearlinux/partkit/errors"
)

// GPT stores GUIDs "mixed-endian": the first three fields (time_low,
// time_mid, time_hi_and_version) are little-endian on disk, the last
// two (clock_seq, node) are big-endian — the classic Microsoft GUID
// layout. google/uuid always holds the canonical big-endian (RFC 4122
// string) byte order, so every on-disk read/write swaps the first 8
// bytes.

func toDiskBytes(u uuid.UUID) [16]byte {
	var b [16]byte
	copy(b[:], u[:])
	b[0], b[1], b[2], b[3] = b[3], b[2], b[1], b[0]
	b[4], b[5] = b[5], b[4]
	b[6], b[7] = b[7], b[6]
	return b
}

func fromDiskBytes(b [16]byte) uuid.UUID {
	var u uuid.UUID
	copy(u[:], b[:])
	u[0], u[1], u[2], u[3] = u[3], u[2], u[1], u[0]
	u[4], u[5] = u[5], u[4]
	u[6], u[7] = u[7], u[6]
	return u
}

// guidFromString parses a canonical GUID string into its mixed-endian
// on-disk byte representation.
func guidFromString(s string) ([16]byte, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return [16]byte{}, errors.New(errors.ParseError, "invalid GUID %q: %v", s, err)
	}
	return toDiskBytes(u), nil
}

// guidToString renders an on-disk mixed-endian GUID as a canonical
// upper-case string.
func guidToString(b [16]byte) string {
	return strings.ToUpper(fromDiskBytes(b).String())
}

var zeroGUID [16]byte

func isZeroGUID(b [16]byte) bool { return b == zeroGUID }

// newRandomGUID generates a fresh partition unique GUID.
func newRandomGUID() ([16]byte, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return [16]byte{}, errors.New(errors.Io, "generate GUID: %v", err)
	}
	return toDiskBytes(u), nil
}
