// Copyright © 2018 Intel Corporation
//
// SPDX-License-Identifier: GPL-3.0-only

package partition

import (
	"github.com/clearlinux/partkit/errors"
	"github.com/clearlinux/partkit/ptable"
	"github.com/clearlinux/partkit/utils"
)

func alignUp(lba, grain uint64) uint64 {
	if grain == 0 {
		return lba
	}
	return utils.AlignUp(lba, grain)
}

// AddSpec is the caller-facing request for AddPartition: Start/Size
// use utils.SizeHint semantics (absolute, +N{K,M,G,T,P}, +N%, or
// trailing "+" for round-to-fill).
type AddSpec struct {
	Start    *uint64 // nil means "pick from freespace"
	Size     utils.SizeHint
	Max      bool //
	Type     ptable.Parttype
	Name     string
	UUID     string
	Bootable bool
}

func (c *Context) findGap(want *uint64, size uint64) (Gap, error) {
	gaps := c.Freespace()
	if want != nil {
		start := alignUp(*want, c.info.AlignmentGrain)
		for _, g := range gaps {
			if start >= g.Start && start <= g.End() {
				if start+size-1 > g.End() {
					return Gap{}, errors.New(errors.NoSpace, "requested start %d leaves insufficient room in its gap", *want)
				}
				return Gap{Start: start, Size: g.End() - start + 1}, nil
			}
		}
		return Gap{}, errors.New(errors.Overlap, "requested start %d falls inside an existing partition", *want)
	}
	for _, g := range gaps {
		start := alignUp(g.Start, c.info.AlignmentGrain)
		if start > g.End() {
			continue
		}
		avail := g.End() - start + 1
		if avail >= size {
			return Gap{Start: start, Size: avail}, nil
		}
	}
	return Gap{}, errors.New(errors.NoSpace, "no free gap large enough for %d sectors", size)
}

// AddPartition implements "add_partition": walks the sorted free-space list, honours an
// explicit start when given, and expands to the gap's end for Max or
// a trailing-"+" size hint.
func (c *Context) AddPartition(spec AddSpec) (int, error) {
	if c.label == nil {
		return -1, errors.New(errors.InvalidLabel, "no label assigned")
	}

	// A rough size estimate to locate a gap; exact sizing happens below
	// once the chosen gap's true extent is known.
	rough := spec.Size.Bytes / c.info.LogicalSectorSize
	if spec.Size.IsPercent || spec.Max || spec.Size.RoundFill {
		rough = 1
	}
	if rough == 0 {
		rough = 1
	}

	gap, err := c.findGap(spec.Start, rough)
	if err != nil {
		return -1, err
	}

	size := rough
	switch {
	case spec.Max || spec.Size.RoundFill:
		size = gap.Size
	case spec.Size.IsPercent:
		size = uint64(float64(gap.Size) * spec.Size.Percent / 100)
		if size > gap.Size {
			size = gap.Size
		}
	default:
		if size > gap.Size {
			return -1, errors.New(errors.NoSpace, "requested size exceeds the available gap")
		}
	}
	if size == 0 {
		return -1, errors.New(errors.InvalidLabel, "resulting partition size is zero")
	}

	template := ptable.Partition{
		HasStart: true, HasSize: true,
		Start: gap.Start, Size: size,
		Type: spec.Type, HasType: spec.Type.GUID != "" || spec.Type.Code != 0,
		Name: spec.Name, HasName: spec.Name != "",
		UUID: spec.UUID, HasUUID: spec.UUID != "",
		Bootable: spec.Bootable,
	}
	return c.label.Add(template)
}

// DeletePartition implements "delete_partition".
func (c *Context) DeletePartition(index int) error {
	if c.label == nil {
		return errors.New(errors.InvalidLabel, "no label assigned")
	}
	return c.label.Delete(index)
}

// SetPartitionType implements "set_partition_type".
func (c *Context) SetPartitionType(index int, t ptable.Parttype) error {
	if c.label == nil {
		return errors.New(errors.InvalidLabel, "no label assigned")
	}
	return c.label.SetType(index, t)
}

// ToggleFlag implements "toggle_flag".
func (c *Context) ToggleFlag(index int, flag string) error {
	if c.label == nil {
		return errors.New(errors.InvalidLabel, "no label assigned")
	}
	return c.label.ToggleFlag(index, flag)
}

// SetPartition implements "set_partition".
func (c *Context) SetPartition(index int, fields ptable.Partition) error {
	if c.label == nil {
		return errors.New(errors.InvalidLabel, "no label assigned")
	}
	return c.label.SetFields(index, fields)
}

// Verify implements "verify".
func (c *Context) Verify() (int, error) {
	if c.label == nil {
		return 0, errors.New(errors.InvalidLabel, "no label assigned")
	}
	return c.label.Verify(c.info, c.asker)
}

// Ask implements the ask-callback bottleneck: the engine never reads
// stdin or writes stdout itself.
func (c *Context) Ask(msg ptable.AskMessage) error {
	if c.asker == nil {
		return nil
	}
	return c.asker(&msg)
}

// Write implements "write": flushes the active label to disk
// atomically per label kind, resetting the dirty bit on success. A
// nested Context's Write affects only its own slice; the parent's
// Write (when this Context has one) is not implied.
func (c *Context) Write() error {
	if c.label == nil {
		return errors.New(errors.InvalidLabel, "no label assigned")
	}
	if c.handle == nil || c.handle.ReadOnly {
		return errors.New(errors.ReadOnly, "device is read-only")
	}
	images, err := c.label.Encode(c.info)
	if err != nil {
		return err
	}
	baseOffset := int64(c.baseLBA) * int64(c.info.LogicalSectorSize)
	f := c.handle.File()
	for offset, buf := range images {
		at := offset + baseOffset
		if _, err := f.WriteAt(buf, at); err != nil {
			return errors.New(errors.Io, "write partition table at %d: %v", at, err)
		}
	}
	if err := f.Sync(); err != nil {
		return errors.New(errors.Io, "fsync partition table: %v", err)
	}
	c.label.MarkClean()
	return nil
}

// RereadPartitionTable implements "reread_partition_table": issues
// BLKRRPART through device.Handle.Reread, which returns a Busy error
// when the kernel refuses because of busy partitions.
func (c *Context) RereadPartitionTable() error {
	if c.handle == nil {
		return errors.New(errors.InvalidLabel, "no device assigned")
	}
	return c.handle.Reread()
}
