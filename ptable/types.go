// Copyright © 2018 Intel Corporation
//
// SPDX-License-Identifier: GPL-3.0-only

// Package ptable holds the partition-table data model shared by the
// Context (package partition) and the five label drivers: the variant
// over label kinds, the Partition/Table/Parttype value types, and the
// Ask message protocol. Keeping these
// in their own package lets each label driver depend only on the data
// model, not on the Context that orchestrates them.
package ptable

import "fmt"

// Kind identifies a partition-table label format.
type Kind int

const (
	// DOS is the MBR label.
	DOS Kind = iota
	// GPT is the GUID Partition Table label.
	GPT
	// SUN is the Sun disklabel (VTOC).
	SUN
	// SGI is the SGI disklabel.
	SGI
	// BSD is the BSD disklabel, normally nested inside an MBR slice.
	BSD
	// None means no label is present.
	None
)

var kindNames = map[Kind]string{
	DOS:  "dos",
	GPT:  "gpt",
	SUN:  "sun",
	SGI:  "sgi",
	BSD:  "bsd",
	None: "none",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// ParseKind parses the label names accepted by script headers.
func ParseKind(s string) (Kind, bool) {
	for k, v := range kindNames {
		if v == s {
			return k, true
		}
	}
	return None, false
}

// Parttype identifies a partition's type within a label: a numeric code for DOS/SUN/SGI/BSD, or a GUID string for GPT.
type Parttype struct {
	Kind    Kind
	Code    uint8  // DOS/SUN/SGI/BSD numeric type code
	GUID    string // GPT type GUID, canonical upper-case with dashes
	Name    string // human-readable name
	Aliases []string
}

// String renders the type the way scripts and dumps expect it.
func (t Parttype) String() string {
	if t.Kind == GPT {
		return t.GUID
	}
	return fmt.Sprintf("%02x", t.Code)
}

// Partition is a value type describing one table entry. Optional
// fields use the Has* bits so an absent field is distinguishable from
// a zero one.
type Partition struct {
	Index      int
	Start      uint64 // LBA
	Size       uint64 // sectors
	Type       Parttype
	Name       string
	UUID       string
	Attributes uint64
	Bootable   bool
	ParentIdx  int // >=0 for MBR logicals, index of the enclosing extended partition

	HasStart bool
	HasSize  bool
	HasType  bool
	HasName  bool
	HasUUID  bool
}

// End returns the last LBA occupied by the partition (Start+Size-1).
func (p Partition) End() uint64 {
	if p.Size == 0 {
		return p.Start
	}
	return p.Start + p.Size - 1
}

// Table is an ordered sequence of Partition plus a wrong-order flag.
type Table struct {
	Partitions []Partition
	WrongOrder bool
}

// Len, Less and Swap let Table be sorted by sort.Sort when callers need
// a normalized view without mutating insertion order elsewhere.
type byStart Table

func (t *byStart) Len() int           { return len(t.Partitions) }
func (t *byStart) Less(i, j int) bool { return t.Partitions[i].Start < t.Partitions[j].Start }
func (t *byStart) Swap(i, j int) {
	t.Partitions[i], t.Partitions[j] = t.Partitions[j], t.Partitions[i]
}

// SortedByStart returns a copy of the table's partitions ordered by
// start LBA, used by script.Dump.
func (t Table) SortedByStart() []Partition {
	out := make([]Partition, len(t.Partitions))
	copy(out, t.Partitions)
	bs := byStart(Table{Partitions: out})
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && bs.Less(j, j-1); j-- {
			bs.Swap(j, j-1)
		}
	}
	return out
}
