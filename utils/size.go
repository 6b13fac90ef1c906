// Copyright © 2018 Intel Corporation
//
// SPDX-License-Identifier: GPL-3.0-only

package utils

import (
	"strconv"
	"strings"

	"github.com/clearlinux/partkit/errors"
)

// SizeHint is a parsed size request: either an absolute byte count, a percentage of the
// chosen gap, or "round to fill" the gap.
type SizeHint struct {
	Bytes     uint64
	Percent   float64 // valid when IsPercent
	IsPercent bool
	RoundFill bool // trailing '+' — round to fill the gap
}

// binary suffix multipliers: the bare letter is always 1024-based
// (K=1024, etc.).
var sizeMultiplier = map[byte]uint64{
	'K': 1 << 10,
	'M': 1 << 20,
	'G': 1 << 30,
	'T': 1 << 40,
	'P': 1 << 50,
}

// ParseSize parses a size hint of the form "N", "+N{K,M,G,T,P}",
// "+N%", with an optional trailing '+' meaning round-to-fill.
func ParseSize(s string) (SizeHint, error) {
	var hint SizeHint

	orig := s
	s = strings.TrimSpace(s)
	if s == "" {
		return hint, errors.New(errors.ParseError, "empty size")
	}

	if strings.HasSuffix(s, "+") {
		hint.RoundFill = true
		s = strings.TrimSuffix(s, "+")
	}

	if strings.HasPrefix(s, "+") {
		s = s[1:]
	}

	if s == "" {
		if hint.RoundFill {
			return hint, nil
		}
		return hint, errors.New(errors.ParseError, "empty size %q", orig)
	}

	if strings.HasSuffix(s, "%") {
		num := strings.TrimSuffix(s, "%")
		pct, err := strconv.ParseFloat(num, 64)
		if err != nil {
			return hint, errors.New(errors.ParseError, "invalid percent size %q: %v", orig, err)
		}
		hint.IsPercent = true
		hint.Percent = pct
		return hint, nil
	}

	mult := uint64(1)
	if len(s) > 0 {
		last := s[len(s)-1]
		up := last
		if up >= 'a' && up <= 'z' {
			up -= 'a' - 'A'
		}
		if m, ok := sizeMultiplier[up]; ok {
			mult = m
			s = s[:len(s)-1]
		}
	}

	val, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return hint, errors.New(errors.ParseError, "invalid size %q: %v", orig, err)
	}
	if val < 0 {
		return hint, errors.New(errors.ParseError, "negative size %q", orig)
	}

	hint.Bytes = uint64(val * float64(mult))
	return hint, nil
}

// AlignUp rounds lba up to the next multiple of grain (grain must be > 0).
func AlignUp(lba, grain uint64) uint64 {
	if grain == 0 {
		return lba
	}
	rem := lba % grain
	if rem == 0 {
		return lba
	}
	return lba + (grain - rem)
}
