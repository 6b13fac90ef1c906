// Copyright © 2018 Intel Corporation
//
// SPDX-License-Identifier: GPL-3.0-only

package mbr

import (
	"errors"
	"testing"

	"github.com/clearlinux/partkit/ptable"
)

func testInfo(totalSectors uint64) ptable.DeviceInfo {
	return ptable.DeviceInfo{
		LogicalSectorSize: 512,
		TotalSectors:      totalSectors,
		AlignmentGrain:    2048,
	}
}

var errShortRead = errors.New("short read")

type memDisk struct{ data []byte }

func (m *memDisk) read(offset int64, size int) ([]byte, error) {
	if int(offset)+size > len(m.data) {
		return nil, errShortRead
	}
	return m.data[offset : int(offset)+size], nil
}

func (m *memDisk) apply(encoded map[int64][]byte) {
	for off, b := range encoded {
		copy(m.data[off:], b)
	}
}

func TestPrimaryRoundTrip(t *testing.T) {
	info := testInfo(204800)
	l := New()
	idx, err := l.Add(ptable.Partition{
		HasStart: true, HasSize: true, HasType: true,
		Start: 2048, Size: 4096,
		Type: ptable.Parttype{Code: 0x83},
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if idx != 0 {
		t.Fatalf("expected first primary slot 0, got %d", idx)
	}

	encoded, err := l.Encode(info)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	disk := &memDisk{data: make([]byte, info.TotalSectors*512)}
	disk.apply(encoded)

	probed, err := Probe(info, disk.read)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if probed == nil {
		t.Fatal("Probe returned nil for a valid MBR")
	}
	table := probed.List()
	if len(table.Partitions) != 1 {
		t.Fatalf("expected 1 partition, got %d", len(table.Partitions))
	}
	if table.Partitions[0].Start != 2048 || table.Partitions[0].Size != 4096 {
		t.Fatalf("geometry mismatch: %+v", table.Partitions[0])
	}
	if table.Partitions[0].Type.Code != 0x83 {
		t.Fatalf("type mismatch: %+v", table.Partitions[0].Type)
	}
}

func TestLogicalChainRoundTrip(t *testing.T) {
	info := testInfo(409600)
	l := New()
	if _, err := l.Add(ptable.Partition{HasStart: true, HasSize: true, HasType: true,
		Start: 2048, Size: 2048, Type: ptable.Parttype{Code: 0x83}}); err != nil {
		t.Fatalf("Add primary: %v", err)
	}
	if _, err := l.Add(ptable.Partition{HasStart: true, HasSize: true, HasType: true,
		Start: 4096, Size: 200000, Type: ptable.Parttype{Code: extTypeLBA}}); err != nil {
		t.Fatalf("Add extended: %v", err)
	}
	// Reserve one sector before each logical for its EBR, as Encode expects.
	idx1, err := l.Add(ptable.Partition{HasStart: true, HasSize: true, HasType: true,
		Start: 4098, Size: 10000, Type: ptable.Parttype{Code: 0x83}})
	if err != nil {
		t.Fatalf("Add logical 1: %v", err)
	}
	idx2, err := l.Add(ptable.Partition{HasStart: true, HasSize: true, HasType: true,
		Start: 14100, Size: 10000, Type: ptable.Parttype{Code: 0x83}})
	if err != nil {
		t.Fatalf("Add logical 2: %v", err)
	}
	if idx1 != 4 || idx2 != 5 {
		t.Fatalf("expected logical indices 4,5, got %d,%d", idx1, idx2)
	}

	encoded, err := l.Encode(info)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	disk := &memDisk{data: make([]byte, info.TotalSectors*512)}
	disk.apply(encoded)

	probed, err := Probe(info, disk.read)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	table := probed.List()
	if len(table.Partitions) != 4 {
		t.Fatalf("expected 4 partitions (1 primary + 1 extended + 2 logical), got %d: %+v", len(table.Partitions), table.Partitions)
	}
}

func TestCHSEncodesDeclaredGeometryLBA4096(t *testing.T) {
	// LBA 4096 under the default declared
	// geometry (255 heads, 63 sectors/track, the same fallback device.Probe
	// reports when the kernel ioctls are unavailable).
	head, sector, cyl := chs(4096, 255, 63)
	if head != 65 || sector != 2 || cyl != 0 {
		t.Fatalf("chs(4096, 255, 63) = (%d, %d, %d), want (65, 2, 0)", head, sector, cyl)
	}
}

func TestLogicalChainEncodesExtendedAndLogical(t *testing.T) {
	// Fresh 100 MiB image (204800 sectors), primary extended
	// at [2048, 204800] type 0x05, logical at [4096, 200704] type 0x83.
	info := testInfo(204800)
	l := New()
	if _, err := l.Add(ptable.Partition{HasStart: true, HasSize: true, HasType: true,
		Start: 2048, Size: 204800 - 2048, Type: ptable.Parttype{Code: extTypeCHS}}); err != nil {
		t.Fatalf("Add extended: %v", err)
	}
	idx, err := l.Add(ptable.Partition{HasStart: true, HasSize: true, HasType: true,
		Start: 4096, Size: 200704, Type: ptable.Parttype{Code: 0x83}})
	if err != nil {
		t.Fatalf("Add logical: %v", err)
	}
	if idx != 4 {
		t.Fatalf("logical index = %d, want 4 (the fifth slot)", idx)
	}

	encoded, err := l.Encode(info)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	disk := &memDisk{data: make([]byte, info.TotalSectors*512)}
	disk.apply(encoded)

	probed, err := Probe(info, disk.read)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	table := probed.List()
	if len(table.Partitions) != 2 {
		t.Fatalf("partition count = %d, want 2", len(table.Partitions))
	}
	var logical *ptable.Partition
	for i := range table.Partitions {
		if table.Partitions[i].Index == 4 {
			logical = &table.Partitions[i]
		}
	}
	if logical == nil {
		t.Fatalf("no partition at index 4: %+v", table.Partitions)
	}
	if logical.Start != 4096 || logical.Size != 200704 {
		t.Fatalf("logical partition = %+v, want start=4096 size=200704", *logical)
	}
}

func TestDeleteLogicalLeavesGap(t *testing.T) {
	l := New()
	l.Add(ptable.Partition{HasStart: true, HasSize: true, HasType: true,
		Start: 2048, Size: 8192, Type: ptable.Parttype{Code: extTypeLBA}})
	idx1, _ := l.Add(ptable.Partition{HasStart: true, HasSize: true, Start: 4098, Size: 1000})
	idx2, _ := l.Add(ptable.Partition{HasStart: true, HasSize: true, Start: 6000, Size: 1000})

	if err := l.Delete(idx1); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	idx3, err := l.Add(ptable.Partition{HasStart: true, HasSize: true, Start: 8000, Size: 1000})
	if err != nil {
		t.Fatalf("Add after delete: %v", err)
	}
	if idx3 != idx1 {
		t.Fatalf("expected reuse of freed index %d, got %d", idx1, idx3)
	}
	if idx2 == idx1 {
		t.Fatalf("idx2 should differ from the freed/reused slot")
	}
}

func TestCHSCapsAtLargeLBA(t *testing.T) {
	h, s, c := chs(1<<40, 255, 63)
	if c != 0xFF {
		t.Fatalf("expected capped cylinder byte 0xFF, got %#x", c)
	}
	if h != 254 {
		t.Fatalf("expected capped head 254, got %d", h)
	}
	_ = s
}

func TestAddFailsWithoutGeometry(t *testing.T) {
	l := New()
	if _, err := l.Add(ptable.Partition{}); err == nil {
		t.Fatal("expected error for partition missing start/size")
	}
}
