// Copyright © 2018 Intel Corporation
//
// SPDX-License-Identifier: GPL-3.0-only

package sun

import (
	"testing"

	"github.com/clearlinux/partkit/ptable"
)

func TestRoundTrip(t *testing.T) {
	info := ptable.DeviceInfo{LogicalSectorSize: 512, TotalSectors: 2048000, Heads: 255, SectorsPerTrack: 63, Cylinders: 127}
	l := New(info)
	spc := uint64(l.spc())

	idx, err := l.Add(ptable.Partition{HasStart: true, HasSize: true, HasType: true,
		Start: spc, Size: spc * 10, Type: ptable.Parttype{Code: 2}})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	encoded, err := l.Encode(info)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	buf := encoded[0]

	disk := func(offset int64, size int) ([]byte, error) { return buf[offset : int(offset)+size], nil }
	probed, err := Probe(info, disk)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if probed == nil {
		t.Fatal("Probe returned nil for a valid Sun disklabel")
	}
	table := probed.List()
	found := false
	for _, p := range table.Partitions {
		if p.Index == idx {
			found = true
			if p.Size != spc*10 {
				t.Fatalf("size mismatch: got %d want %d", p.Size, spc*10)
			}
		}
	}
	if !found {
		t.Fatal("added partition missing after round trip")
	}
}

func TestChecksumMismatchRejected(t *testing.T) {
	info := ptable.DeviceInfo{LogicalSectorSize: 512, TotalSectors: 2048000, Heads: 255, SectorsPerTrack: 63}
	l := New(info)
	encoded, _ := l.Encode(info)
	buf := encoded[0]
	buf[0] ^= 0xFF

	disk := func(offset int64, size int) ([]byte, error) { return buf[offset : int(offset)+size], nil }
	_, err := Probe(info, disk)
	if err == nil {
		t.Fatal("expected checksum mismatch error")
	}
}

func TestWholeDiskSlotCannotBeReused(t *testing.T) {
	info := ptable.DeviceInfo{LogicalSectorSize: 512, TotalSectors: 2048000, Heads: 255, SectorsPerTrack: 63}
	l := New(info)
	for i := 0; i < numSlots-1; i++ {
		if _, err := l.Add(ptable.Partition{HasStart: true, HasSize: true, Start: uint64(l.spc()) * uint64(i+1), Size: uint64(l.spc())}); err != nil {
			t.Fatalf("Add %d: %v", i, err)
		}
	}
	if _, err := l.Add(ptable.Partition{HasStart: true, HasSize: true, Start: uint64(l.spc()) * 100, Size: uint64(l.spc())}); err == nil {
		t.Fatal("expected NoSpace once all non-whole-disk slots are used")
	}
}
