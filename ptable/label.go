// Copyright © 2018 Intel Corporation
//
// SPDX-License-Identifier: GPL-3.0-only

package ptable

// DeviceInfo is the subset of device.Geometry a label driver needs,
// duplicated here (rather than imported) so ptable has no dependency
// on the device package — drivers receive it from the Context.
type DeviceInfo struct {
	LogicalSectorSize uint64
	TotalSectors      uint64
	Heads             uint32
	SectorsPerTrack   uint32
	Cylinders         uint32
	AlignmentGrain    uint64
	FirstUsable       uint64
	LastUsable        uint64
}

// FieldWidth describes one column a label wants shown in a listing.
type FieldWidth struct {
	Name  string
	Width int
}

// Label is the operation set every driver (MBR/GPT/SUN/SGI/BSD)
// implements identically, dispatched by Context.
type Label interface {
	Kind() Kind
	Dirty() bool
	MarkClean()

	// List returns a snapshot of the current partitions.
	List() Table

	// Add inserts template at the given start/size, returning the
	// assigned index. The driver applies its own numbering and
	// constraint rules (at most 4 primary, single-GUID "unused" slots, etc).
	Add(template Partition) (int, error)

	// Delete removes the partition at index.
	Delete(index int) error

	// SetType changes the partition's type.
	SetType(index int, t Parttype) error

	// ToggleFlag flips a label-specific boolean attribute (e.g. DOS bootable).
	ToggleFlag(index int, flag string) error

	// SetFields applies a sparse set of field updates (by Partition
	// with Has* bits set) to the partition at index.
	SetFields(index int, fields Partition) error

	// Verify checks alignment, overlap, order and label-specific
	// constraints, emitting warnings through ask and returning the
	// number of problems found.
	Verify(info DeviceInfo, ask Asker) (int, error)

	// Encode renders the label's on-disk byte images, keyed by the
	// byte offset each image is written at — letting GPT emit both the
	// primary and backup copies. The offset is relative to the start
	// of the device the label was created against: for a label nested
	// inside another (BSD inside an MBR slice), that is the start of
	// the enclosing slice, and the Context applies the translation to
	// an absolute device offset.
	Encode(info DeviceInfo) (map[int64][]byte, error)

	// Fields reports which columns this label wants displayed, and their widths.
	Fields() []FieldWidth

	// Types lists the fixed per-label Parttype catalog.
	Types() []Parttype
}

// Extent is a used or reserved span of sectors, as reported by a
// ContainerLabel's Nested method.
type Extent struct {
	Start uint64
	Size  uint64
}

// End returns the last LBA in the extent.
func (e Extent) End() uint64 {
	if e.Size == 0 {
		return e.Start
	}
	return e.Start + e.Size - 1
}

// ContainerLabel is implemented by a label whose List() can report a
// partition that itself holds nested partitions (MBR's extended/logical
// chain). Freespace consults Nested for such a partition instead of
// treating its whole span as used, so the container's own interior
// gaps become available to Add.
type ContainerLabel interface {
	// Nested returns the extents actually occupied by metadata and
	// data inside the partition at index, or nil if index does not
	// identify a container in this label.
	Nested(index int) []Extent
}

// Prober decodes an existing on-disk label from raw bytes read by the
// Context, returning nil (no error) when the signature does not match
// — allowing Context to try the next label kind in priority order.
type Prober func(info DeviceInfo, read func(offset int64, size int) ([]byte, error)) (Label, error)
