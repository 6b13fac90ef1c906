// Copyright © 2018 Intel Corporation
//
// SPDX-License-Identifier: GPL-3.0-only

// Package sun implements the Sun disklabel (VTOC) driver: an 8-slot table with slot 2 conventionally spanning
// the whole disk, and a 16-bit XOR-fold checksum over the label.
package sun

import (
	"encoding/binary"

	"github.com/clearlinux/partkit/errors"
	"github.com/clearlinux/partkit/ptable"
)

const (
	magic      = 0xDABE
	numSlots   = 8
	labelSize  = 512
	wholeDisk  = 2 // whole-disk slot convention
	vtocOff    = 0
	magicOff   = 508
	csumOff    = 510
)

type slotInfo struct {
	tag   uint16
	flag  uint16
}

type slot struct {
	startCyl uint32
	numBlock uint32
	info     slotInfo
}

// Label implements ptable.Label for Sun disklabels.
type Label struct {
	slots      [numSlots]slot
	cylinders  uint32
	heads      uint32
	sectors    uint32
	dirty      bool
}

// New creates an empty Sun disklabel, with slot 2 spanning the whole
// device by convention.
func New(info ptable.DeviceInfo) *Label {
	l := &Label{dirty: true, cylinders: info.Cylinders, heads: info.Heads, sectors: info.SectorsPerTrack}
	spc := l.heads * l.sectors
	if spc == 0 {
		spc = 1
	}
	l.slots[wholeDisk] = slot{
		startCyl: 0,
		numBlock: uint32(info.TotalSectors),
		info:     slotInfo{tag: 5, flag: 0}, // tag 5 = "whole disk"
	}
	return l
}

func (l *Label) Kind() ptable.Kind { return ptable.SUN }
func (l *Label) Dirty() bool       { return l.dirty }
func (l *Label) MarkClean()        { l.dirty = false }

func (l *Label) spc() uint32 {
	spc := l.heads * l.sectors
	if spc == 0 {
		spc = 1
	}
	return spc
}

func (l *Label) toPartition(i int, s slot) ptable.Partition {
	return ptable.Partition{
		Index: i,
		Start: uint64(s.startCyl) * uint64(l.spc()),
		Size:  uint64(s.numBlock),
		Type:  ptable.Parttype{Kind: ptable.SUN, Code: uint8(s.info.tag)},
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

// Add implements ptable.Label: finds the first empty slot other than
// the whole-disk slot 2.
func (l *Label) Add(template ptable.Partition) (int, error) {
	if !template.HasStart || !template.HasSize || template.Size == 0 {
		return -1, errors.New(errors.InvalidLabel, "SUN add requires start and nonzero size")
	}
	spc := l.spc()
	if template.Start%uint64(spc) != 0 {
		return -1, errors.New(errors.BadAlignment, "SUN partitions must start on a cylinder boundary (%d sectors)", spc)
	}
	for i, s := range l.slots {
		if i == wholeDisk || s.numBlock != 0 {
			continue
		}
		l.slots[i] = slot{
			startCyl: uint32(template.Start / uint64(spc)),
			numBlock: uint32(template.Size),
		}
		if template.HasType {
			l.slots[i].info.tag = uint16(template.Type.Code)
		}
		l.dirty = true
		return i, nil
	}
	return -1, errors.New(errors.NoSpace, "all 8 SUN slots in use")
}

// Delete implements ptable.Label.
func (l *Label) Delete(index int) error {
	if index < 0 || index >= numSlots || l.slots[index].numBlock == 0 {
		return errors.New(errors.NotFound, "no SUN partition at index %d", index)
	}
	l.slots[index] = slot{}
	l.dirty = true
	return nil
}

// SetType implements ptable.Label.
func (l *Label) SetType(index int, t ptable.Parttype) error {
	if index < 0 || index >= numSlots || l.slots[index].numBlock == 0 {
		return errors.New(errors.NotFound, "no SUN partition at index %d", index)
	}
	l.slots[index].info.tag = uint16(t.Code)
	l.dirty = true
	return nil
}

// ToggleFlag implements ptable.Label: the only flag is "unmountable"
// (bit 0x10 in the Sun slot flag field).
func (l *Label) ToggleFlag(index int, flag string) error {
	if flag != "unmountable" {
		return errors.New(errors.Unsupported, "unknown SUN flag %q", flag)
	}
	if index < 0 || index >= numSlots || l.slots[index].numBlock == 0 {
		return errors.New(errors.NotFound, "no SUN partition at index %d", index)
	}
	l.slots[index].info.flag ^= 0x10
	l.dirty = true
	return nil
}

// SetFields implements ptable.Label.
func (l *Label) SetFields(index int, fields ptable.Partition) error {
	if index < 0 || index >= numSlots || l.slots[index].numBlock == 0 {
		return errors.New(errors.NotFound, "no SUN partition at index %d", index)
	}
	if fields.HasStart {
		l.slots[index].startCyl = uint32(fields.Start / uint64(l.spc()))
	}
	if fields.HasSize {
		l.slots[index].numBlock = uint32(fields.Size)
	}
	if fields.HasType {
		l.slots[index].info.tag = uint16(fields.Type.Code)
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
				msg := ptable.Warn("SUN partition %d extends past the end of the device", p.Index)
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
		{Name: "tag", Width: 4},
	}
}

// Types implements ptable.Label: the standard Sun VTOC tag values.
func (l *Label) Types() []ptable.Parttype {
	return []ptable.Parttype{
		{Kind: ptable.SUN, Code: 0, Name: "Empty"},
		{Kind: ptable.SUN, Code: 1, Name: "Boot"},
		{Kind: ptable.SUN, Code: 2, Name: "SunOS root"},
		{Kind: ptable.SUN, Code: 3, Name: "SunOS swap"},
		{Kind: ptable.SUN, Code: 5, Name: "Whole disk"},
		{Kind: ptable.SUN, Code: 8, Name: "Linux"},
	}
}

func checksum(buf []byte) uint16 {
	var sum uint16
	for i := 0; i+1 < csumOff; i += 2 {
		sum ^= binary.BigEndian.Uint16(buf[i : i+2])
	}
	return sum
}

// Encode implements ptable.Label.
func (l *Label) Encode(info ptable.DeviceInfo) (map[int64][]byte, error) {
	sectorSize := int(info.LogicalSectorSize)
	if sectorSize == 0 {
		sectorSize = 512
	}
	buf := make([]byte, labelSize)
	for i, s := range l.slots {
		tagOff := 444 + i*8
		binary.BigEndian.PutUint16(buf[tagOff:tagOff+2], s.info.tag)
		binary.BigEndian.PutUint16(buf[tagOff+2:tagOff+4], s.info.flag)
	}
	binary.BigEndian.PutUint16(buf[magicOff:magicOff+2], magic)
	for i, s := range l.slots {
		partOff := 180 + i*8
		binary.BigEndian.PutUint32(buf[partOff:partOff+4], s.startCyl)
		binary.BigEndian.PutUint32(buf[partOff+4:partOff+8], s.numBlock)
	}
	sum := checksum(buf)
	binary.BigEndian.PutUint16(buf[csumOff:csumOff+2], sum)
	return map[int64][]byte{0: buf}, nil
}

// Probe implements ptable.Prober for Sun disklabels.
func Probe(info ptable.DeviceInfo, read func(offset int64, size int) ([]byte, error)) (ptable.Label, error) {
	buf, err := read(0, labelSize)
	if err != nil {
		return nil, err
	}
	if len(buf) < labelSize {
		return nil, nil
	}
	if binary.BigEndian.Uint16(buf[magicOff:magicOff+2]) != magic {
		return nil, nil
	}
	stored := binary.BigEndian.Uint16(buf[csumOff : csumOff+2])
	computed := checksum(buf)
	if stored != computed {
		return nil, errors.New(errors.InvalidLabel, "SUN disklabel checksum mismatch")
	}

	l := &Label{cylinders: info.Cylinders, heads: info.Heads, sectors: info.SectorsPerTrack}
	for i := range l.slots {
		tagOff := 444 + i*8
		partOff := 180 + i*8
		l.slots[i] = slot{
			info: slotInfo{
				tag:  binary.BigEndian.Uint16(buf[tagOff : tagOff+2]),
				flag: binary.BigEndian.Uint16(buf[tagOff+2 : tagOff+4]),
			},
			startCyl: binary.BigEndian.Uint32(buf[partOff : partOff+4]),
			numBlock: binary.BigEndian.Uint32(buf[partOff+4 : partOff+8]),
		}
	}
	return l, nil
}
