// Copyright © 2018 Intel Corporation
//
// SPDX-License-Identifier: GPL-3.0-only

package mbr

import (
	"sort"

	"github.com/clearlinux/partkit/ptable"
)

// Verify implements ptable.Label.
func (l *Label) Verify(info ptable.DeviceInfo, ask ptable.Asker) (int, error) {
	problems := 0
	type span struct {
		idx        int
		start, end uint64
	}
	var spans []span
	warn := func(format string, a ...interface{}) error {
		problems++
		if ask == nil {
			return nil
		}
		msg := ptable.Warn(format, a...)
		return ask(&msg)
	}

	for _, p := range l.List().Partitions {
		if p.Start < 1 || p.End() >= info.TotalSectors {
			if err := warn("partition %d: [%d,%d] is outside the device", p.Index, p.Start, p.End()); err != nil {
				return problems, err
			}
		}
		if info.AlignmentGrain > 0 && p.Start%info.AlignmentGrain != 0 {
			if err := warn("partition %d: start %d is not aligned to %d sectors", p.Index, p.Start, info.AlignmentGrain); err != nil {
				return problems, err
			}
		}
		spans = append(spans, span{p.Index, p.Start, p.End()})
	}

	sort.Slice(spans, func(a, b int) bool { return spans[a].start < spans[b].start })
	for i := 1; i < len(spans); i++ {
		if spans[i].start <= spans[i-1].end {
			if err := warn("partitions %d and %d overlap", spans[i-1].idx, spans[i].idx); err != nil {
				return problems, err
			}
		}
	}

	bootCount := 0
	for _, s := range l.primary {
		if s.bootable == 0x80 {
			bootCount++
		}
	}
	if bootCount > 1 {
		if err := warn("more than one partition is marked bootable"); err != nil {
			return problems, err
		}
	}

	return problems, nil
}
