// Copyright © 2018 Intel Corporation
//
// SPDX-License-Identifier: GPL-3.0-only

package mbr

import (
	"github.com/clearlinux/partkit/ptable"
)

// Probe implements ptable.Prober for MBR: valid whenever the boot
// signature 0x55AA is present at offset 510, walking the EBR chain for
// any extended partition found among the four primaries.
func Probe(info ptable.DeviceInfo, read func(offset int64, size int) ([]byte, error)) (ptable.Label, error) {
	sectorSize := int(info.LogicalSectorSize)
	if sectorSize == 0 {
		sectorSize = 512
	}

	boot, err := read(0, sectorSize)
	if err != nil {
		return nil, err
	}
	if len(boot) < 512 || boot[bootSigOff] != bootSig0 || boot[bootSigOff+1] != bootSig1 {
		return nil, nil
	}

	l := New()
	l.dirty = false
	for i := 0; i < maxPrimary; i++ {
		e := decodeEntry(boot[entryOff+i*entrySize : entryOff+(i+1)*entrySize])
		l.primary[i] = slot{entry: e, logicalOf: -1}
	}

	extIdx := l.extendedIndex()
	if extIdx < 0 {
		return l, nil
	}
	extStart := uint64(l.primary[extIdx].startLBA)

	ebrLBA := extStart
	for logIdx := maxPrimary; logIdx < maxPrimary+maxLogical; logIdx++ {
		buf, err := read(int64(ebrLBA)*int64(sectorSize), sectorSize)
		if err != nil || len(buf) < 512 {
			break
		}
		if buf[bootSigOff] != bootSig0 || buf[bootSigOff+1] != bootSig1 {
			break
		}
		self := decodeEntry(buf[entryOff : entryOff+entrySize])
		if self.typ == 0 {
			break
		}
		s := slot{
			entry: entry{
				bootable: self.bootable,
				typ:      self.typ,
				startLBA: uint32(ebrLBA) + self.startLBA,
				sizeLBA:  self.sizeLBA,
			},
			logicalOf: extIdx,
		}
		l.logical[logIdx] = s

		link := decodeEntry(buf[entryOff+entrySize : entryOff+2*entrySize])
		if link.typ == 0 || !isExtended(link.typ) {
			break
		}
		ebrLBA = extStart + uint64(link.startLBA)
	}

	return l, nil
}
