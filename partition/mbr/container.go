// Copyright © 2018 Intel Corporation
//
// SPDX-License-Identifier: GPL-3.0-only

package mbr

import (
	"sort"

	"github.com/clearlinux/partkit/ptable"
)

// Nested implements ptable.ContainerLabel: index must name a primary
// slot holding an extended (0x05/0x0F) type. The extended partition's
// own start sector is always reserved for the EBR chain head even
// before any logical exists; each logical after the first reserves the
// sector immediately before its data for its own EBR, mirroring the
// layout Encode writes.
func (l *Label) Nested(index int) []ptable.Extent {
	if index < 0 || index >= maxPrimary || !isExtended(l.primary[index].typ) {
		return nil
	}
	extStart := uint64(l.primary[index].startLBA)

	var idxs []int
	for i, s := range l.logical {
		if s.logicalOf == index {
			idxs = append(idxs, i)
		}
	}
	sort.Slice(idxs, func(a, b int) bool {
		return l.logical[idxs[a]].startLBA < l.logical[idxs[b]].startLBA
	})

	extents := []ptable.Extent{{Start: extStart, Size: 1}}
	for pos, idx := range idxs {
		s := l.logical[idx]
		start := uint64(s.startLBA)
		size := uint64(s.sizeLBA)
		if pos == 0 {
			extents = append(extents, ptable.Extent{Start: start, Size: size})
			continue
		}
		ebr := ebrSector(start)
		extents = append(extents, ptable.Extent{Start: ebr, Size: size + (start - ebr)})
	}
	return extents
}
