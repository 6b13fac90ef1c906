// Copyright © 2018 Intel Corporation
//
// SPDX-License-Identifier: GPL-3.0-only

// Package mbr implements the MBR (DOS) label driver: a single 512-byte boot sector with four primary slots at
// offset 0x1BE, and a singly-linked chain of extended boot records
// (EBRs) for logical partitions when a primary slot holds type 0x05 or
// 0x0F.
package mbr

import (
	"encoding/binary"

	"github.com/clearlinux/partkit/ptable"
)

const (
	bootSigOff  = 510
	bootSig0    = 0x55
	bootSig1    = 0xAA
	entryOff    = 0x1BE
	entrySize   = 16
	maxPrimary  = 4
	maxLogical  = 56 // 60-partition cap minus 4 primaries
	extTypeCHS  = 0x05
	extTypeLBA  = 0x0F
)

func isExtended(t uint8) bool { return t == extTypeCHS || t == extTypeLBA }

// entry is one raw 16-byte MBR/EBR partition-table entry.
type entry struct {
	bootable   uint8
	startHead  uint8
	startSec   uint8
	startCyl   uint8
	typ        uint8
	endHead    uint8
	endSec     uint8
	endCyl     uint8
	startLBA   uint32
	sizeLBA    uint32
}

func decodeEntry(b []byte) entry {
	return entry{
		bootable:  b[0],
		startHead: b[1], startSec: b[2], startCyl: b[3],
		typ:       b[4],
		endHead:   b[5], endSec: b[6], endCyl: b[7],
		startLBA: binary.LittleEndian.Uint32(b[8:12]),
		sizeLBA:  binary.LittleEndian.Uint32(b[12:16]),
	}
}

func encodeEntry(b []byte, e entry) {
	b[0] = e.bootable
	b[1], b[2], b[3] = e.startHead, e.startSec, e.startCyl
	b[4] = e.typ
	b[5], b[6], b[7] = e.endHead, e.endSec, e.endCyl
	binary.LittleEndian.PutUint32(b[8:12], e.startLBA)
	binary.LittleEndian.PutUint32(b[12:16], e.sizeLBA)
}

// chs computes a CHS triple for lba, capped at (1023, heads-1, sectors)
// when lba exceeds what CHS can represent.
func chs(lba uint64, heads, sectorsPerTrack uint32) (head, sector, cyl uint8) {
	if heads == 0 {
		heads = 255
	}
	if sectorsPerTrack == 0 {
		sectorsPerTrack = 63
	}
	cylCount := lba / uint64(heads*sectorsPerTrack)
	rem := lba % uint64(heads*sectorsPerTrack)
	h := rem / uint64(sectorsPerTrack)
	s := rem%uint64(sectorsPerTrack) + 1

	if cylCount > 1023 {
		return uint8(heads - 1), uint8(sectorsPerTrack) | 0xC0, 0xFF
	}
	c := uint8(cylCount & 0xFF)
	sByte := uint8(s) | uint8((cylCount>>8)<<6)
	return uint8(h), sByte, c
}

// slot is an in-memory primary or logical partition.
type slot struct {
	entry
	// logicalOf is the index of the extended partition this logical
	// lives inside, or -1 for a primary.
	logicalOf int
}

// Label implements ptable.Label for MBR.
type Label struct {
	diskSig [4]byte
	primary [maxPrimary]slot   // unused slot has typ == 0
	logical map[int]slot       // keyed by partition index (maxPrimary..); gaps persist across deletes
	dirty   bool
}

func emptySlot() slot { return slot{logicalOf: -1} }

// New creates an empty MBR label.
func New() *Label {
	l := &Label{dirty: true, logical: make(map[int]slot)}
	for i := range l.primary {
		l.primary[i] = emptySlot()
	}
	return l
}

// Kind implements ptable.Label.
func (l *Label) Kind() ptable.Kind { return ptable.DOS }

// Dirty implements ptable.Label.
func (l *Label) Dirty() bool { return l.dirty }

// MarkClean implements ptable.Label.
func (l *Label) MarkClean() { l.dirty = false }

func slotToPartition(idx int, s slot, parent int) ptable.Partition {
	return ptable.Partition{
		Index:    idx,
		Start:    uint64(s.startLBA),
		Size:     uint64(s.sizeLBA),
		Type:     ptable.Parttype{Kind: ptable.DOS, Code: s.typ},
		Bootable: s.bootable == 0x80,
		ParentIdx: parent,
		HasStart: true,
		HasSize:  true,
		HasType:  true,
	}
}

// List implements ptable.Label. Primary slots are indices 0-3;
// logicals are indices 4.., listed in index order — never
// renumbered across deletes.
func (l *Label) List() ptable.Table {
	var t ptable.Table
	for i, s := range l.primary {
		if s.typ == 0 {
			continue
		}
		t.Partitions = append(t.Partitions, slotToPartition(i, s, -1))
	}
	for i := maxPrimary; i < maxPrimary+maxLogical; i++ {
		s, ok := l.logical[i]
		if !ok || s.typ == 0 {
			continue
		}
		t.Partitions = append(t.Partitions, slotToPartition(i, s, s.logicalOf))
	}
	return t
}

func (l *Label) extendedIndex() int {
	for i, s := range l.primary {
		if isExtended(s.typ) {
			return i
		}
	}
	return -1
}

// freeLogicalIndex returns the lowest unused logical index, reusing
// gaps left by deletes rather than ever renumbering.
func (l *Label) freeLogicalIndex() int {
	for i := maxPrimary; i < maxPrimary+maxLogical; i++ {
		if _, ok := l.logical[i]; !ok {
			return i
		}
	}
	return -1
}
