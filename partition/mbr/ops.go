// Copyright © 2018 Intel Corporation
//
// SPDX-License-Identifier: GPL-3.0-only

package mbr

import (
	"github.com/clearlinux/partkit/errors"
	"github.com/clearlinux/partkit/ptable"
)

func slotFromTemplate(t ptable.Partition, heads, spt uint32, bootable bool) slot {
	h1, s1, c1 := chs(t.Start, heads, spt)
	h2, s2, c2 := chs(t.End(), heads, spt)
	e := entry{
		startHead: h1, startSec: s1, startCyl: c1,
		endHead: h2, endSec: s2, endCyl: c2,
		startLBA: uint32(t.Start),
		sizeLBA:  uint32(t.Size),
	}
	if t.HasType {
		e.typ = t.Type.Code
	}
	if bootable || t.Bootable {
		e.bootable = 0x80
	}
	return slot{entry: e, logicalOf: -1}
}

// Add implements ptable.Label. A type of 0x05/0x0F always targets the
// extended-partition primary slot. A partition lying inside the
// existing extended partition becomes a logical (index 4 and up);
// otherwise the first free primary slot is used, falling back to a
// logical inside the existing extended partition once all four
// primaries are occupied.
func (l *Label) Add(template ptable.Partition) (int, error) {
	if !template.HasStart || !template.HasSize || template.Size == 0 {
		return -1, errors.New(errors.InvalidLabel, "MBR add requires start and nonzero size")
	}

	if template.HasType && isExtended(template.Type.Code) {
		for i, s := range l.primary {
			if s.typ == 0 {
				l.primary[i] = slotFromTemplate(template, 0, 0, false)
				l.dirty = true
				return i, nil
			}
		}
		return -1, errors.New(errors.NoSpace, "no free primary slot for extended partition")
	}

	ext := l.extendedIndex()
	inExt := false
	if ext >= 0 {
		e := l.primary[ext].entry
		inExt = template.Start > uint64(e.startLBA) && template.End() < uint64(e.startLBA)+uint64(e.sizeLBA)
	}
	if !inExt {
		for i, s := range l.primary {
			if s.typ == 0 {
				l.primary[i] = slotFromTemplate(template, 0, 0, false)
				l.dirty = true
				return i, nil
			}
		}
	}

	if ext < 0 {
		return -1, errors.New(errors.NoSpace, "all 4 primary slots used and no extended partition to hold logicals")
	}
	idx := l.freeLogicalIndex()
	if idx < 0 {
		return -1, errors.New(errors.NoSpace, "MBR logical partition limit reached (%d)", maxLogical)
	}
	s := slotFromTemplate(template, 0, 0, false)
	s.logicalOf = ext
	l.logical[idx] = s
	l.dirty = true
	return idx, nil
}

// Delete implements ptable.Label. Deleting a logical leaves its index
// unused rather than shifting later logicals down.
func (l *Label) Delete(index int) error {
	if index >= 0 && index < maxPrimary {
		if l.primary[index].typ == 0 {
			return errors.New(errors.NotFound, "no MBR partition at index %d", index)
		}
		l.primary[index] = emptySlot()
		l.dirty = true
		return nil
	}
	if _, ok := l.logical[index]; !ok {
		return errors.New(errors.NotFound, "no MBR partition at index %d", index)
	}
	delete(l.logical, index)
	l.dirty = true
	return nil
}

// SetType implements ptable.Label.
func (l *Label) SetType(index int, t ptable.Parttype) error {
	if index >= 0 && index < maxPrimary {
		if l.primary[index].typ == 0 {
			return errors.New(errors.NotFound, "no MBR partition at index %d", index)
		}
		l.primary[index].typ = t.Code
		l.dirty = true
		return nil
	}
	s, ok := l.logical[index]
	if !ok {
		return errors.New(errors.NotFound, "no MBR partition at index %d", index)
	}
	s.typ = t.Code
	l.logical[index] = s
	l.dirty = true
	return nil
}

// ToggleFlag implements ptable.Label: MBR defines a single flag,
// "boot", the 0x80 bootable marker.
func (l *Label) ToggleFlag(index int, flag string) error {
	if flag != "boot" {
		return errors.New(errors.Unsupported, "unknown MBR flag %q", flag)
	}
	if index < 0 || index >= maxPrimary {
		return errors.New(errors.Unsupported, "only primary partitions can be marked bootable")
	}
	if l.primary[index].typ == 0 {
		return errors.New(errors.NotFound, "no MBR partition at index %d", index)
	}
	if l.primary[index].bootable == 0x80 {
		l.primary[index].bootable = 0
	} else {
		l.primary[index].bootable = 0x80
	}
	l.dirty = true
	return nil
}

// SetFields implements ptable.Label.
func (l *Label) SetFields(index int, fields ptable.Partition) error {
	apply := func(s *slot) {
		if fields.HasStart {
			s.startLBA = uint32(fields.Start)
		}
		if fields.HasSize {
			s.sizeLBA = uint32(fields.Size)
		}
		if fields.HasType {
			s.typ = fields.Type.Code
		}
	}
	if index >= 0 && index < maxPrimary {
		if l.primary[index].typ == 0 {
			return errors.New(errors.NotFound, "no MBR partition at index %d", index)
		}
		apply(&l.primary[index])
		l.dirty = true
		return nil
	}
	s, ok := l.logical[index]
	if !ok {
		return errors.New(errors.NotFound, "no MBR partition at index %d", index)
	}
	apply(&s)
	l.logical[index] = s
	l.dirty = true
	return nil
}

// Fields implements ptable.Label.
func (l *Label) Fields() []ptable.FieldWidth {
	return []ptable.FieldWidth{
		{Name: "boot", Width: 4},
		{Name: "start", Width: 12},
		{Name: "end", Width: 12},
		{Name: "size", Width: 10},
		{Name: "type", Width: 4},
	}
}

// Types implements ptable.Label: a short list of common DOS type codes.
func (l *Label) Types() []ptable.Parttype {
	return []ptable.Parttype{
		{Kind: ptable.DOS, Code: 0x83, Name: "Linux"},
		{Kind: ptable.DOS, Code: 0x82, Name: "Linux swap"},
		{Kind: ptable.DOS, Code: 0x8e, Name: "Linux LVM"},
		{Kind: ptable.DOS, Code: 0x07, Name: "HPFS/NTFS/exFAT"},
		{Kind: ptable.DOS, Code: 0x0b, Name: "W95 FAT32"},
		{Kind: ptable.DOS, Code: extTypeLBA, Name: "W95 Ext'd (LBA)"},
		{Kind: ptable.DOS, Code: extTypeCHS, Name: "Extended"},
	}
}
