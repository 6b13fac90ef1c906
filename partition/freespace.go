// Copyright © 2018 Intel Corporation
//
// SPDX-License-Identifier: GPL-3.0-only

package partition

import (
	"sort"

	"github.com/clearlinux/partkit/ptable"
)

// Gap is one free run of sectors.
type Gap struct {
	Start uint64
	Size  uint64
}

// End returns the last LBA in the gap.
func (g Gap) End() uint64 {
	if g.Size == 0 {
		return g.Start
	}
	return g.Start + g.Size - 1
}

type span struct{ start, end uint64 }

// gapsBetween sweeps the sorted-by-start used spans and returns the
// complementary free runs within [first, last].
func gapsBetween(used []span, first, last uint64) []Gap {
	sort.Slice(used, func(i, j int) bool { return used[i].start < used[j].start })
	var gaps []Gap
	cursor := first
	for _, s := range used {
		if s.start > cursor {
			gaps = append(gaps, Gap{Start: cursor, Size: s.start - cursor})
		}
		if s.end+1 > cursor {
			cursor = s.end + 1
		}
	}
	if cursor <= last {
		gaps = append(gaps, Gap{Start: cursor, Size: last - cursor + 1})
	}
	return gaps
}

// Freespace returns the sorted list of gaps in [first_usable,
// last_usable], without applying alignment — the caller (Add) aligns.
// A partition that is itself a container (MBR extended) still reserves
// its whole span against the rest of the device, but its interior is
// also swept separately against its own actual occupied extents, so a
// logical can be placed in the container's unused interior; a
// logical's own span is folded into its container's accounting and is
// not counted separately.
func (c *Context) Freespace() []Gap {
	if c.label == nil {
		return nil
	}
	container, _ := c.label.(ptable.ContainerLabel)

	var used []span
	var gaps []Gap
	for _, p := range c.label.List().Partitions {
		if p.ParentIdx >= 0 {
			continue
		}
		used = append(used, span{p.Start, p.End()})
		if container == nil {
			continue
		}
		nested := container.Nested(p.Index)
		if nested == nil {
			continue
		}
		inner := make([]span, len(nested))
		for i, e := range nested {
			inner[i] = span{e.Start, e.End()}
		}
		gaps = append(gaps, gapsBetween(inner, p.Start, p.End())...)
	}
	gaps = append(gaps, gapsBetween(used, c.info.FirstUsable, c.info.LastUsable)...)
	sort.Slice(gaps, func(i, j int) bool { return gaps[i].Start < gaps[j].Start })
	return gaps
}

// Best returns the largest free gap, used as the interactive default.
// Returns ok=false when the device is full.
func (c *Context) Best() (Gap, bool) {
	gaps := c.Freespace()
	if len(gaps) == 0 {
		return Gap{}, false
	}
	best := gaps[0]
	for _, g := range gaps[1:] {
		if g.Size > best.Size {
			best = g
		}
	}
	return best, true
}
