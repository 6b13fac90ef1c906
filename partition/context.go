// Copyright © 2018 Intel Corporation
//
// SPDX-License-Identifier: GPL-3.0-only

// Package partition implements the Partition Context:
// the single point of coordination for reading, mutating and writing
// one block device's partition table, dispatching to the label driver
// that matches the on-disk (or newly created) format.
package partition

import (
	"io"

	"github.com/clearlinux/partkit/conf"
	"github.com/clearlinux/partkit/device"
	"github.com/clearlinux/partkit/errors"
	"github.com/clearlinux/partkit/partition/bsd"
	"github.com/clearlinux/partkit/partition/gpt"
	"github.com/clearlinux/partkit/partition/mbr"
	"github.com/clearlinux/partkit/partition/sgi"
	"github.com/clearlinux/partkit/partition/sun"
	"github.com/clearlinux/partkit/ptable"
)

// probers is consulted in order: GPT must be tried before MBR so a
// protective MBR never hides the real GPT label.
var probers = []struct {
	kind  ptable.Kind
	probe ptable.Prober
}{
	{ptable.GPT, gpt.Probe},
	{ptable.DOS, mbr.Probe},
	{ptable.SUN, sun.Probe},
	{ptable.SGI, sgi.Probe},
}

// Context owns one block device's handle, geometry and active label.
type Context struct {
	handle *device.Handle
	info   ptable.DeviceInfo
	label  ptable.Label
	asker  ptable.Asker

	// parent is set on a Context created by CreateNestedBSD: writing a
	// child writes only the nested slice, writing the parent writes
	// both.
	parent    *Context
	parentIdx int

	// baseLBA is the absolute LBA this Context's label images are
	// offset from: 0 for a top-level Context, the enclosing partition's
	// start LBA for one created by CreateNestedBSD.
	baseLBA uint64
}

// New creates an unassigned Context.
func New() *Context { return &Context{} }

func deviceInfo(g device.Geometry, lockPolicy conf.LockPolicy) ptable.DeviceInfo {
	grain := g.OptimalIOSize / g.LogicalSectorSize
	if grain == 0 {
		grain = 2048 // 1 MiB at 512-byte sectors, the conventional default
	}
	firstUsable := grain
	lastUsable := uint64(0)
	if g.TotalSectors > 34 {
		lastUsable = g.TotalSectors - 34 // reserve GPT backup header+array; harmless for other labels
	}
	return ptable.DeviceInfo{
		LogicalSectorSize: g.LogicalSectorSize,
		TotalSectors:      g.TotalSectors,
		Heads:             g.Heads,
		SectorsPerTrack:   g.SectorsPerTrack,
		Cylinders:         g.Cylinders,
		AlignmentGrain:    grain,
		FirstUsable:       firstUsable,
		LastUsable:        lastUsable,
	}
}

// Assign opens path and probes for an existing label. When no label is recognized the
// Context is left label-less; CreateLabel must be called before Add.
func Assign(path string, readOnly bool, lockPolicy conf.LockPolicy, asker ptable.Asker) (*Context, error) {
	h, err := device.Open(path, readOnly)
	if err != nil {
		return nil, err
	}
	if !readOnly {
		if err := h.Lock(lockPolicy); err != nil {
			h.Close()
			return nil, err
		}
	}
	geo, err := h.Probe()
	if err != nil {
		h.Close()
		return nil, err
	}

	c := &Context{handle: h, asker: asker}
	c.info = deviceInfo(geo, lockPolicy)

	read := func(offset int64, size int) ([]byte, error) {
		buf := make([]byte, size)
		n, err := h.File().ReadAt(buf, offset)
		if err != nil && err != io.EOF {
			return nil, errors.New(errors.Io, "read %s at %d: %v", path, offset, err)
		}
		return buf[:n], nil
	}

	for _, p := range probers {
		lbl, err := p.probe(c.info, read)
		if err != nil {
			return nil, err
		}
		if lbl != nil {
			c.label = lbl
			break
		}
	}
	return c, nil
}

// CreateLabel discards any existing label and instantiates a blank one
// of kind.
func (c *Context) CreateLabel(kind ptable.Kind) error {
	switch kind {
	case ptable.GPT:
		l, err := gpt.New(c.info)
		if err != nil {
			return err
		}
		c.label = l
	case ptable.DOS:
		c.label = mbr.New()
	case ptable.SUN:
		c.label = sun.New(c.info)
	case ptable.SGI:
		c.label = sgi.New()
	case ptable.BSD:
		c.label = bsd.New(8, -1)
	default:
		return errors.New(errors.Unsupported, "unsupported label kind %v", kind)
	}
	return nil
}

// CreateNestedBSD creates a BSD label inside the MBR extended/type-0xA5
// slice at parentIdx of this (MBR) Context, returning a child Context
// whose Write affects only that slice.
func (c *Context) CreateNestedBSD(parentIdx int) (*Context, error) {
	if c.label == nil || c.label.Kind() != ptable.DOS {
		return nil, errors.New(errors.Unsupported, "nested BSD labels require an MBR parent")
	}
	parentPart, err := c.GetPartition(parentIdx)
	if err != nil {
		return nil, err
	}
	child := &Context{
		handle:    c.handle,
		info:      c.info,
		label:     bsd.New(8, parentIdx),
		asker:     c.asker,
		parent:    c,
		parentIdx: parentIdx,
		baseLBA:   c.baseLBA + parentPart.Start,
	}
	return child, nil
}

// Label returns the active label, or nil if none is assigned.
func (c *Context) Label() ptable.Label { return c.label }

// DevicePath returns the backing device or image path, walking up to
// the root Context for one created by CreateNestedBSD (which shares
// its parent's handle).
func (c *Context) DevicePath() string {
	for p := c; p != nil; p = p.parent {
		if p.handle != nil {
			return p.handle.Path
		}
	}
	return ""
}

// ListPartitions implements "list_partitions": a snapshot copy.
func (c *Context) ListPartitions() ptable.Table {
	if c.label == nil {
		return ptable.Table{}
	}
	return c.label.List()
}

// GetPartition implements "get_partition".
func (c *Context) GetPartition(index int) (ptable.Partition, error) {
	if c.label == nil {
		return ptable.Partition{}, errors.New(errors.InvalidLabel, "no label assigned")
	}
	for _, p := range c.label.List().Partitions {
		if p.Index == index {
			return p, nil
		}
	}
	return ptable.Partition{}, errors.New(errors.NotFound, "no partition at index %d", index)
}

// Close releases the device handle.
func (c *Context) Close() error {
	if c.handle == nil {
		return nil
	}
	return c.handle.Close()
}

// Info exposes the Context's device geometry for callers that need to
// size/align templates before calling Add.
func (c *Context) Info() ptable.DeviceInfo { return c.info }

// Resize updates the Context's notion of device size after the
// backing device has grown or shrunk, recomputing LastUsable so a
// subsequent Write relocates a GPT backup header to the new last
// sector. It does not touch the device itself.
func (c *Context) Resize(newTotalSectors uint64) error {
	if c.label == nil {
		return errors.New(errors.InvalidLabel, "no label assigned")
	}
	c.info.TotalSectors = newTotalSectors
	c.info.LastUsable = 0
	if newTotalSectors > 34 {
		c.info.LastUsable = newTotalSectors - 34
	}
	return nil
}
