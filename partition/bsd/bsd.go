// Copyright © 2018 Intel Corporation
//
// SPDX-License-Identifier: GPL-3.0-only

// Package bsd implements the BSD disklabel driver: normally nested inside an MBR slice of type 0xA5, holding up
// to 16 slots (8 on the original format) with an XOR-fold checksum.
package bsd

import (
	"encoding/binary"

	"github.com/clearlinux/partkit/errors"
	"github.com/clearlinux/partkit/ptable"
)

const (
	magic       = 0x82564557
	labelOffset = 512 // the label sits one sector into its container
	labelSize   = 512
	maxSlots    = 16
	csumOff     = 4
	numSlotsOff = 138
)

type slot struct {
	size  uint32
	start uint32
	fstype uint8
}

// Label implements ptable.Label for BSD disklabels, optionally nested
// inside an MBR partition of type 0xA5 (ParentIdx on the returned
// Partition values carries that relationship).
type Label struct {
	slots     [maxSlots]slot
	numSlots  uint16
	parentIdx int
	dirty     bool
}

// New creates an empty BSD disklabel with n slots (8 or 16), nested
// inside the MBR partition at parentIdx (-1 if standalone).
func New(n uint16, parentIdx int) *Label {
	if n == 0 || n > maxSlots {
		n = 8
	}
	return &Label{numSlots: n, parentIdx: parentIdx, dirty: true}
}

func (l *Label) Kind() ptable.Kind { return ptable.BSD }
func (l *Label) Dirty() bool       { return l.dirty }
func (l *Label) MarkClean()        { l.dirty = false }

func (l *Label) toPartition(i int, s slot) ptable.Partition {
	return ptable.Partition{
		Index:     i,
		Start:     uint64(s.start),
		Size:      uint64(s.size),
		Type:      ptable.Parttype{Kind: ptable.BSD, Code: s.fstype},
		ParentIdx: l.parentIdx,
		HasStart:  true,
		HasSize:   true,
		HasType:   true,
	}
}

// List implements ptable.Label.
func (l *Label) List() ptable.Table {
	var t ptable.Table
	for i := 0; i < int(l.numSlots); i++ {
		s := l.slots[i]
		if s.size == 0 {
			continue
		}
		t.Partitions = append(t.Partitions, l.toPartition(i, s))
	}
	return t
}

// Add implements ptable.Label.
func (l *Label) Add(template ptable.Partition) (int, error) {
	if !template.HasStart || !template.HasSize || template.Size == 0 {
		return -1, errors.New(errors.InvalidLabel, "BSD add requires start and nonzero size")
	}
	for i := 0; i < int(l.numSlots); i++ {
		if l.slots[i].size != 0 {
			continue
		}
		l.slots[i] = slot{start: uint32(template.Start), size: uint32(template.Size)}
		if template.HasType {
			l.slots[i].fstype = template.Type.Code
		}
		l.dirty = true
		return i, nil
	}
	return -1, errors.New(errors.NoSpace, "all %d BSD slots in use", l.numSlots)
}

// Delete implements ptable.Label.
func (l *Label) Delete(index int) error {
	if index < 0 || index >= int(l.numSlots) || l.slots[index].size == 0 {
		return errors.New(errors.NotFound, "no BSD partition at index %d", index)
	}
	l.slots[index] = slot{}
	l.dirty = true
	return nil
}

// SetType implements ptable.Label.
func (l *Label) SetType(index int, t ptable.Parttype) error {
	if index < 0 || index >= int(l.numSlots) || l.slots[index].size == 0 {
		return errors.New(errors.NotFound, "no BSD partition at index %d", index)
	}
	l.slots[index].fstype = t.Code
	l.dirty = true
	return nil
}

// ToggleFlag implements ptable.Label: BSD disklabels have no flags.
func (l *Label) ToggleFlag(index int, flag string) error {
	return errors.New(errors.Unsupported, "BSD disklabels have no toggleable flags")
}

// SetFields implements ptable.Label.
func (l *Label) SetFields(index int, fields ptable.Partition) error {
	if index < 0 || index >= int(l.numSlots) || l.slots[index].size == 0 {
		return errors.New(errors.NotFound, "no BSD partition at index %d", index)
	}
	if fields.HasStart {
		l.slots[index].start = uint32(fields.Start)
	}
	if fields.HasSize {
		l.slots[index].size = uint32(fields.Size)
	}
	if fields.HasType {
		l.slots[index].fstype = fields.Type.Code
	}
	l.dirty = true
	return nil
}

// Verify implements ptable.Label.
func (l *Label) Verify(info ptable.DeviceInfo, ask ptable.Asker) (int, error) {
	problems := 0
	for _, p := range l.List().Partitions {
		if p.End() >= info.TotalSectors {
			problems++
			if ask != nil {
				msg := ptable.Warn("BSD partition %d extends past the end of its container", p.Index)
				if err := ask(&msg); err != nil {
					return problems, err
				}
			}
		}
	}
	return problems, nil
}

// Fields implements ptable.Label.
func (l *Label) Fields() []ptable.FieldWidth {
	return []ptable.FieldWidth{
		{Name: "slot", Width: 4},
		{Name: "start", Width: 12},
		{Name: "size", Width: 10},
		{Name: "fstype", Width: 6},
	}
}

// Types implements ptable.Label.
func (l *Label) Types() []ptable.Parttype {
	return []ptable.Parttype{
		{Kind: ptable.BSD, Code: 0, Name: "unused"},
		{Kind: ptable.BSD, Code: 1, Name: "swap"},
		{Kind: ptable.BSD, Code: 7, Name: "4.2BSD"},
		{Kind: ptable.BSD, Code: 8, Name: "ext2fs"},
	}
}

func checksum(buf []byte) uint16 {
	var sum uint16
	for i := 0; i+1 < len(buf); i += 2 {
		sum ^= binary.LittleEndian.Uint16(buf[i : i+2])
	}
	return sum
}

// Encode implements ptable.Label.
func (l *Label) Encode(info ptable.DeviceInfo) (map[int64][]byte, error) {
	buf := make([]byte, labelSize)
	binary.LittleEndian.PutUint32(buf[0:4], magic)
	binary.LittleEndian.PutUint16(buf[numSlotsOff:numSlotsOff+2], l.numSlots)
	for i := 0; i < int(l.numSlots); i++ {
		s := l.slots[i]
		off := 148 + i*16
		binary.LittleEndian.PutUint32(buf[off:off+4], s.size)
		binary.LittleEndian.PutUint32(buf[off+4:off+8], s.start)
		buf[off+8] = s.fstype
	}
	binary.LittleEndian.PutUint16(buf[csumOff:csumOff+2], 0)
	sum := checksum(buf)
	binary.LittleEndian.PutUint16(buf[csumOff:csumOff+2], sum)
	return map[int64][]byte{labelOffset: buf}, nil
}

// Probe implements ptable.Prober for BSD disklabels, reading from the
// sector immediately following the container's start.
func Probe(info ptable.DeviceInfo, read func(offset int64, size int) ([]byte, error)) (ptable.Label, error) {
	buf, err := read(labelOffset, labelSize)
	if err != nil {
		return nil, err
	}
	if len(buf) < labelSize || binary.LittleEndian.Uint32(buf[0:4]) != magic {
		return nil, nil
	}
	stored := binary.LittleEndian.Uint16(buf[csumOff : csumOff+2])
	check := make([]byte, len(buf))
	copy(check, buf)
	binary.LittleEndian.PutUint16(check[csumOff:csumOff+2], 0)
	if checksum(check) != stored {
		return nil, errors.New(errors.InvalidLabel, "BSD disklabel checksum mismatch")
	}

	n := binary.LittleEndian.Uint16(buf[numSlotsOff : numSlotsOff+2])
	if n == 0 || n > maxSlots {
		n = 8
	}
	l := &Label{numSlots: n, parentIdx: -1}
	for i := 0; i < int(n); i++ {
		off := 148 + i*16
		l.slots[i] = slot{
			size:   binary.LittleEndian.Uint32(buf[off : off+4]),
			start:  binary.LittleEndian.Uint32(buf[off+4 : off+8]),
			fstype: buf[off+8],
		}
	}
	return l, nil
}
