// Copyright © 2018 Intel Corporation
//
// SPDX-License-Identifier: GPL-3.0-only

package mbr

import (
	"sort"

	"github.com/clearlinux/partkit/errors"
	"github.com/clearlinux/partkit/ptable"
)

// ebrSector returns the LBA of the EBR sector describing a logical
// partition: the sector immediately before its data, a convention the
// Context must reserve space for when placing logicals.
func ebrSector(logicalStart uint64) uint64 {
	if logicalStart == 0 {
		return 0
	}
	return logicalStart - 1
}

// Encode implements ptable.Label: the boot sector plus one EBR sector
// per logical partition, chained in ascending start-LBA order.
func (l *Label) Encode(info ptable.DeviceInfo) (map[int64][]byte, error) {
	sectorSize := int(info.LogicalSectorSize)
	if sectorSize == 0 {
		sectorSize = 512
	}

	out := make(map[int64][]byte)

	boot := make([]byte, sectorSize)
	for i, s := range l.primary {
		if s.typ == 0 {
			continue
		}
		encodeEntry(boot[entryOff+i*entrySize:entryOff+(i+1)*entrySize], s.entry)
	}
	boot[bootSigOff] = bootSig0
	boot[bootSigOff+1] = bootSig1
	out[0] = boot

	extIdx := l.extendedIndex()
	var indices []int
	for i := range l.logical {
		indices = append(indices, i)
	}
	sort.Slice(indices, func(a, b int) bool {
		return l.logical[indices[a]].startLBA < l.logical[indices[b]].startLBA
	})

	extStart := uint64(0)
	if extIdx >= 0 {
		extStart = uint64(l.primary[extIdx].startLBA)
	} else if len(indices) > 0 {
		return nil, errors.New(errors.InvalidLabel, "logical partitions present without an extended partition")
	}

	for pos, idx := range indices {
		s := l.logical[idx]
		// The first EBR in the chain always sits at the extended
		// partition's own start LBA; later EBRs sit one sector before
		// their own logical's data, the conventional minimal-gap layout.
		var ebrLBA uint64
		if pos == 0 {
			ebrLBA = extStart
		} else {
			ebrLBA = ebrSector(uint64(s.startLBA))
		}
		ebr := make([]byte, sectorSize)

		self := entry{
			bootable: s.bootable,
			typ:      s.typ,
			startLBA: uint32(uint64(s.startLBA) - ebrLBA),
			sizeLBA:  s.sizeLBA,
		}
		encodeEntry(ebr[entryOff:entryOff+entrySize], self)

		if pos+1 < len(indices) {
			next := l.logical[indices[pos+1]]
			nextEBR := ebrSector(uint64(next.startLBA))
			link := entry{
				typ:      extTypeLBA,
				startLBA: uint32(nextEBR - extStart),
				sizeLBA:  uint32(uint64(next.startLBA) - nextEBR + (uint64(next.sizeLBA))),
			}
			encodeEntry(ebr[entryOff+entrySize:entryOff+2*entrySize], link)
		}

		ebr[bootSigOff] = bootSig0
		ebr[bootSigOff+1] = bootSig1
		out[int64(ebrLBA)*int64(sectorSize)] = ebr
	}

	return out, nil
}
