// Copyright © 2018 Intel Corporation
//
// SPDX-License-Identifier: GPL-3.0-only

package sgi

import (
	"testing"

	"github.com/clearlinux/partkit/ptable"
)

func TestRoundTrip(t *testing.T) {
	info := ptable.DeviceInfo{LogicalSectorSize: 512, TotalSectors: 204800}
	l := New()
	idx, err := l.Add(ptable.Partition{HasStart: true, HasSize: true, HasType: true,
		Start: 2048, Size: 4096, Type: ptable.Parttype{Code: 2}})
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
		t.Fatal("Probe returned nil for a valid SGI disklabel")
	}
	table := probed.List()
	if len(table.Partitions) != 1 || table.Partitions[0].Index != idx {
		t.Fatalf("unexpected partitions: %+v", table.Partitions)
	}
	if table.Partitions[0].Start != 2048 || table.Partitions[0].Size != 4096 {
		t.Fatalf("geometry mismatch: %+v", table.Partitions[0])
	}
}

func TestChecksumMismatchRejected(t *testing.T) {
	info := ptable.DeviceInfo{LogicalSectorSize: 512, TotalSectors: 204800}
	l := New()
	encoded, _ := l.Encode(info)
	buf := encoded[0]
	buf[20] ^= 0xFF

	disk := func(offset int64, size int) ([]byte, error) { return buf[offset : int(offset)+size], nil }
	if _, err := Probe(info, disk); err == nil {
		t.Fatal("expected checksum mismatch error")
	}
}

func TestToggleFlagUnsupported(t *testing.T) {
	l := New()
	l.Add(ptable.Partition{HasStart: true, HasSize: true, Start: 0, Size: 10})
	if err := l.ToggleFlag(0, "anything"); err == nil {
		t.Fatal("SGI has no flags; ToggleFlag should always fail")
	}
}
