// Copyright © 2018 Intel Corporation
//
// SPDX-License-Identifier: GPL-3.0-only

// Package sgi implements the SGI disklabel driver: a big-endian volume header with 16 partition entries and a
// sum-to-zero 32-bit checksum over the whole label.
package sgi

import (
	"encoding/binary"

	"github.com/clearlinux/partkit/errors"
	"github.com/clearlinux/partkit/ptable"
)

const (
	magic     = 0x0BE5A941
	numSlots  = 16
	labelSize = 512
	csumOff   = 12
)

type slot struct {
	numBlock uint32
	first    uint32
	typ      uint32
}

// Label implements ptable.Label for SGI disklabels.
type Label struct {
	slots [numSlots]slot
	dirty bool
}

// New creates an empty SGI disklabel.
func New() *Label { return &Label{dirty: true} }

func (l *Label) Kind() ptable.Kind { return ptable.SGI }
func (l *Label) Dirty() bool       { return l.dirty }
func (l *Label) MarkClean()        { l.dirty = false }

func (l *Label) toPartition(i int, s slot) ptable.Partition {
	return ptable.Partition{
		Index: i,
		Start: uint64(s.first),
		Size:  uint64(s.numBlock),
		Type:  ptable.Parttype{Kind: ptable.SGI, Code: uint8(s.typ)},
		HasStart: true,
		HasSize:  true,
		HasType:  true,
	}
}

// List implements ptable.Label.
func (l *Label) List() ptable.Table {
	var t ptable.Table
	for i, s := range l.slots {
		if s.numBlock == 0 {
			continue
		}
		t.Partitions = append(t.Partitions, l.toPartition(i, s))
	}
	return t
}

// Add implements ptable.Label.
func (l *Label) Add(template ptable.Partition) (int, error) {
	if !template.HasStart || !template.HasSize || template.Size == 0 {
		return -1, errors.New(errors.InvalidLabel, "SGI add requires start and nonzero size")
	}
	for i, s := range l.slots {
		if s.numBlock != 0 {
			continue
		}
		l.slots[i] = slot{first: uint32(template.Start), numBlock: uint32(template.Size)}
		if template.HasType {
			l.slots[i].typ = uint32(template.Type.Code)
		}
		l.dirty = true
		return i, nil
	}
	return -1, errors.New(errors.NoSpace, "all 16 SGI slots in use")
}

// Delete implements ptable.Label.
func (l *Label) Delete(index int) error {
	if index < 0 || index >= numSlots || l.slots[index].numBlock == 0 {
		return errors.New(errors.NotFound, "no SGI partition at index %d", index)
	}
	l.slots[index] = slot{}
	l.dirty = true
	return nil
}

// SetType implements ptable.Label.
func (l *Label) SetType(index int, t ptable.Parttype) error {
	if index < 0 || index >= numSlots || l.slots[index].numBlock == 0 {
		return errors.New(errors.NotFound, "no SGI partition at index %d", index)
	}
	l.slots[index].typ = uint32(t.Code)
	l.dirty = true
	return nil
}

// ToggleFlag implements ptable.Label: SGI has no per-partition flags.
func (l *Label) ToggleFlag(index int, flag string) error {
	return errors.New(errors.Unsupported, "SGI disklabels have no toggleable flags")
}

// SetFields implements ptable.Label.
func (l *Label) SetFields(index int, fields ptable.Partition) error {
	if index < 0 || index >= numSlots || l.slots[index].numBlock == 0 {
		return errors.New(errors.NotFound, "no SGI partition at index %d", index)
	}
	if fields.HasStart {
		l.slots[index].first = uint32(fields.Start)
	}
	if fields.HasSize {
		l.slots[index].numBlock = uint32(fields.Size)
	}
	if fields.HasType {
		l.slots[index].typ = uint32(fields.Type.Code)
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
				msg := ptable.Warn("SGI partition %d extends past the end of the device", p.Index)
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
		{Name: "type", Width: 4},
	}
}

// Types implements ptable.Label.
func (l *Label) Types() []ptable.Parttype {
	return []ptable.Parttype{
		{Kind: ptable.SGI, Code: 0, Name: "Empty"},
		{Kind: ptable.SGI, Code: 1, Name: "Boot"},
		{Kind: ptable.SGI, Code: 2, Name: "SGI xfs"},
		{Kind: ptable.SGI, Code: 3, Name: "SGI swap"},
	}
}

func checksum(buf []byte) uint32 {
	var sum uint32
	for i := 0; i+3 < len(buf); i += 4 {
		sum += binary.BigEndian.Uint32(buf[i : i+4])
	}
	return sum
}

// Encode implements ptable.Label: the checksum field is zeroed, the sum
// of all other 32-bit words computed, and the field set to -sum so the
// whole label sums to zero.
func (l *Label) Encode(info ptable.DeviceInfo) (map[int64][]byte, error) {
	buf := make([]byte, labelSize)
	binary.BigEndian.PutUint32(buf[0:4], magic)
	for i, s := range l.slots {
		off := 16 + i*12
		binary.BigEndian.PutUint32(buf[off:off+4], s.numBlock)
		binary.BigEndian.PutUint32(buf[off+4:off+8], s.first)
		binary.BigEndian.PutUint32(buf[off+8:off+12], s.typ)
	}
	binary.BigEndian.PutUint32(buf[csumOff:csumOff+4], 0)
	sum := checksum(buf)
	binary.BigEndian.PutUint32(buf[csumOff:csumOff+4], uint32(-int32(sum)))
	return map[int64][]byte{0: buf}, nil
}

// Probe implements ptable.Prober for SGI disklabels.
func Probe(info ptable.DeviceInfo, read func(offset int64, size int) ([]byte, error)) (ptable.Label, error) {
	buf, err := read(0, labelSize)
	if err != nil {
		return nil, err
	}
	if len(buf) < labelSize || binary.BigEndian.Uint32(buf[0:4]) != magic {
		return nil, nil
	}
	if checksum(buf) != 0 {
		return nil, errors.New(errors.InvalidLabel, "SGI disklabel checksum mismatch")
	}
	l := &Label{}
	for i := range l.slots {
		off := 16 + i*12
		l.slots[i] = slot{
			numBlock: binary.BigEndian.Uint32(buf[off : off+4]),
			first:    binary.BigEndian.Uint32(buf[off+4 : off+8]),
			typ:      binary.BigEndian.Uint32(buf[off+8 : off+12]),
		}
	}
	return l, nil
}
