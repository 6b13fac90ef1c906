// Copyright © 2018 Intel Corporation
//
// SPDX-License-Identifier: GPL-3.0-only

package gpt

import (
	"github.com/clearlinux/partkit/errors"
	"github.com/clearlinux/partkit/ptable"
)

// New creates an empty GPT label sized for info, with minEntries slots.
func New(info ptable.DeviceInfo) (*Label, error) {
	if info.TotalSectors < 64 {
		return nil, errors.New(errors.InvalidLabel, "device too small for GPT (%d sectors)", info.TotalSectors)
	}
	l := &Label{
		entries:    make([]Entry, minEntries),
		sectorSize: info.LogicalSectorSize,
		dirty:      true,
	}
	return l, nil
}

func (l *Label) freeSlot() (int, error) {
	for i, e := range l.entries {
		if isZeroGUID(e.TypeGUID) {
			return i, nil
		}
	}
	return -1, errors.New(errors.NoSpace, "GPT entry array full (%d slots)", len(l.entries))
}

// Add implements ptable.Label. The caller (Context) is responsible for
// placement; template must carry Start and Size.
func (l *Label) Add(template ptable.Partition) (int, error) {
	if !template.HasStart || !template.HasSize {
		return -1, errors.New(errors.InvalidLabel, "GPT add requires start and size")
	}
	if template.Size == 0 {
		return -1, errors.New(errors.InvalidLabel, "GPT partition size must be nonzero")
	}
	idx, err := l.freeSlot()
	if err != nil {
		return -1, err
	}

	var typeGUID [16]byte
	var uerr error
	if template.HasType && template.Type.GUID != "" {
		typeGUID, uerr = guidFromString(template.Type.GUID)
		if uerr != nil {
			return -1, uerr
		}
	} else {
		// Linux filesystem data GUID, the conventional default.
		typeGUID, _ = guidFromString("0FC63DAF-8483-4772-8E79-3D69D8477DE4")
	}

	unique, uerr := newRandomGUID()
	if uerr != nil {
		return -1, uerr
	}
	if template.UUID != "" {
		unique, uerr = guidFromString(template.UUID)
		if uerr != nil {
			return -1, uerr
		}
	}

	name, nerr := encodeName(template.Name)
	if nerr != nil {
		return -1, nerr
	}

	l.entries[idx] = Entry{
		TypeGUID:    typeGUID,
		UniqueGUID:  unique,
		FirstLBA:    template.Start,
		LastLBA:     template.End(),
		Attributes:  template.Attributes,
		NameUTF16LE: name,
	}
	l.dirty = true
	return idx, nil
}

// Delete implements ptable.Label: entry type = all-zero GUID means
// unused.
func (l *Label) Delete(index int) error {
	if index < 0 || index >= len(l.entries) {
		return errors.New(errors.NotFound, "no GPT partition at index %d", index)
	}
	if isZeroGUID(l.entries[index].TypeGUID) {
		return errors.New(errors.NotFound, "no GPT partition at index %d", index)
	}
	l.entries[index] = Entry{}
	l.dirty = true
	return nil
}

// SetType implements ptable.Label.
func (l *Label) SetType(index int, t ptable.Parttype) error {
	if index < 0 || index >= len(l.entries) || isZeroGUID(l.entries[index].TypeGUID) {
		return errors.New(errors.NotFound, "no GPT partition at index %d", index)
	}
	g, err := guidFromString(t.GUID)
	if err != nil {
		return err
	}
	l.entries[index].TypeGUID = g
	l.dirty = true
	return nil
}

// gptAttrRequired, gptAttrNoBlockIO and gptAttrLegacyBoot are the three
// generic attribute bits GPT defines outside the type-specific range.
const (
	gptAttrRequired   = 1 << 0
	gptAttrNoBlockIO  = 1 << 1
	gptAttrLegacyBoot = 1 << 2
)

var gptFlags = map[string]uint64{
	"required":    gptAttrRequired,
	"no-blockio":  gptAttrNoBlockIO,
	"legacy-boot": gptAttrLegacyBoot,
}

// ToggleFlag implements ptable.Label.
func (l *Label) ToggleFlag(index int, flag string) error {
	if index < 0 || index >= len(l.entries) || isZeroGUID(l.entries[index].TypeGUID) {
		return errors.New(errors.NotFound, "no GPT partition at index %d", index)
	}
	bit, ok := gptFlags[flag]
	if !ok {
		return errors.New(errors.Unsupported, "unknown GPT flag %q", flag)
	}
	l.entries[index].Attributes ^= bit
	l.dirty = true
	return nil
}

// SetFields implements ptable.Label.
func (l *Label) SetFields(index int, fields ptable.Partition) error {
	if index < 0 || index >= len(l.entries) || isZeroGUID(l.entries[index].TypeGUID) {
		return errors.New(errors.NotFound, "no GPT partition at index %d", index)
	}
	e := &l.entries[index]
	if fields.HasStart {
		e.FirstLBA = fields.Start
	}
	if fields.HasSize {
		e.LastLBA = e.FirstLBA + fields.Size - 1
	}
	if fields.HasType {
		g, err := guidFromString(fields.Type.GUID)
		if err != nil {
			return err
		}
		e.TypeGUID = g
	}
	if fields.HasName {
		n, err := encodeName(fields.Name)
		if err != nil {
			return err
		}
		e.NameUTF16LE = n
	}
	if fields.HasUUID {
		g, err := guidFromString(fields.UUID)
		if err != nil {
			return err
		}
		e.UniqueGUID = g
	}
	l.dirty = true
	return nil
}

// Fields implements ptable.Label.
func (l *Label) Fields() []ptable.FieldWidth {
	return []ptable.FieldWidth{
		{Name: "start", Width: 14},
		{Name: "end", Width: 14},
		{Name: "size", Width: 10},
		{Name: "type", Width: 36},
		{Name: "name", Width: 24},
		{Name: "uuid", Width: 36},
	}
}

// Types implements ptable.Label: the well-known GPT type GUIDs.
func (l *Label) Types() []ptable.Parttype {
	return []ptable.Parttype{
		{Kind: ptable.GPT, GUID: "0FC63DAF-8483-4772-8E79-3D69D8477DE4", Name: "Linux filesystem"},
		{Kind: ptable.GPT, GUID: "0657FD6D-A4AB-43C4-84E5-0933C84B4F4F", Name: "Linux swap"},
		{Kind: ptable.GPT, GUID: "E6D6D379-F507-44C2-A23C-238F2A3DF928", Name: "Linux LVM"},
		{Kind: ptable.GPT, GUID: "C12A7328-F81F-11D2-BA4B-00A0C93EC93B", Name: "EFI System"},
		{Kind: ptable.GPT, GUID: "21686148-6449-6E6F-744E-656564454649", Name: "BIOS boot"},
		{Kind: ptable.GPT, GUID: "DE94BBA4-06D1-4D40-A16A-BFD50179D6AC", Name: "Windows Recovery"},
	}
}
