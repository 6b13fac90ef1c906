// Copyright © 2018 Intel Corporation
//
// SPDX-License-Identifier: GPL-3.0-only

package gpt

import (
	"sort"

	"github.com/clearlinux/partkit/ptable"
)

// Verify implements ptable.Label: checks alignment, overlap and bounds
// against info, surfacing problems through ask rather than failing
// outright.
func (l *Label) Verify(info ptable.DeviceInfo, ask ptable.Asker) (int, error) {
	problems := 0

	type span struct {
		idx        int
		start, end uint64
	}
	var spans []span
	for i, e := range l.entries {
		if isZeroGUID(e.TypeGUID) {
			continue
		}
		if e.FirstLBA > e.LastLBA {
			problems++
			if ask != nil {
				msg := ptable.Warn("partition %d: start %d is after end %d", i, e.FirstLBA, e.LastLBA)
				if err := ask(&msg); err != nil {
					return problems, err
				}
			}
			continue
		}
		if e.FirstLBA < info.FirstUsable || e.LastLBA > info.LastUsable {
			problems++
			if ask != nil {
				msg := ptable.Warn("partition %d: [%d,%d] outside usable range [%d,%d]",
					i, e.FirstLBA, e.LastLBA, info.FirstUsable, info.LastUsable)
				if err := ask(&msg); err != nil {
					return problems, err
				}
			}
		}
		if info.AlignmentGrain > 0 && e.FirstLBA%info.AlignmentGrain != 0 {
			problems++
			if ask != nil {
				msg := ptable.Warn("partition %d: start %d is not aligned to %d sectors", i, e.FirstLBA, info.AlignmentGrain)
				if err := ask(&msg); err != nil {
					return problems, err
				}
			}
		}
		spans = append(spans, span{i, e.FirstLBA, e.LastLBA})
	}

	sort.Slice(spans, func(a, b int) bool { return spans[a].start < spans[b].start })
	for i := 1; i < len(spans); i++ {
		if spans[i].start <= spans[i-1].end {
			problems++
			if ask != nil {
				msg := ptable.Warn("partitions %d and %d overlap", spans[i-1].idx, spans[i].idx)
				if err := ask(&msg); err != nil {
					return problems, err
				}
			}
		}
	}

	if l.hybridMBR && ask != nil {
		msg := ptable.Warn("protective MBR contains non-EE partition entries (hybrid MBR)")
		if err := ask(&msg); err != nil {
			return problems, err
		}
	}

	return problems, nil
}
