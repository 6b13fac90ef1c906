// Copyright © 2018 Intel Corporation
//
// SPDX-License-Identifier: GPL-3.0-only

package gpt

import (
	"encoding/binary"

	"github.com/clearlinux/partkit/errors"
	"github.com/clearlinux/partkit/ptable"
)

func readHeader(read func(offset int64, size int) ([]byte, error), lba uint64, sectorSize int) (Header, []byte, error) {
	buf, err := read(int64(lba)*int64(sectorSize), sectorSize)
	if err != nil {
		return Header{}, nil, err
	}
	if len(buf) < headerSize {
		return Header{}, buf, errors.New(errors.InvalidLabel, "short read at LBA %d", lba)
	}
	h := decodeHeaderFrom(buf)
	return h, buf, nil
}

func headerValid(h Header) bool {
	if string(h.Signature[:]) != signature {
		return false
	}
	if h.HeaderSize < 92 {
		return false
	}
	return headerCRC(h) == h.HeaderCRC32
}

func readEntries(read func(offset int64, size int) ([]byte, error), h Header, sectorSize int) ([]Entry, error) {
	n := int(h.NumEntries)
	sz := int(h.EntrySize)
	if sz == 0 {
		sz = entrySize
	}
	total := n * sz
	buf, err := read(int64(h.EntriesLBA)*int64(sectorSize), total)
	if err != nil {
		return nil, err
	}
	if len(buf) < total {
		return nil, errors.New(errors.InvalidLabel, "short read of GPT entry array")
	}
	entries := make([]Entry, n)
	for i := 0; i < n; i++ {
		entries[i] = decodeEntryFrom(buf[i*sz : i*sz+entrySize])
	}
	if entriesCRC(entries, entrySize) != h.EntriesCRC32 {
		return entries, errors.New(errors.InvalidLabel, "GPT entry array CRC mismatch")
	}
	return entries, nil
}

// detectHybrid reports whether the protective MBR at LBA 0 contains a
// partition entry other than a single all-disk 0xEE slot.
func detectHybrid(read func(offset int64, size int) ([]byte, error), sectorSize int, totalSectors uint64) bool {
	buf, err := read(0, sectorSize)
	if err != nil || len(buf) < 512 {
		return false
	}
	wholeDisk := uint64(0)
	if totalSectors > 0 {
		wholeDisk = totalSectors - 1
	}
	if wholeDisk > 0xFFFFFFFF {
		wholeDisk = 0xFFFFFFFF
	}
	const entryOff = 0x1BE
	count := 0
	for i := 0; i < 4; i++ {
		off := entryOff + i*16
		typ := buf[off+4]
		if typ != 0 {
			count++
			if typ != 0xEE {
				return true
			}
			if uint64(binary.LittleEndian.Uint32(buf[off+12:off+16])) < wholeDisk {
				return true
			}
		}
	}
	return count > 1
}

// Probe implements ptable.Prober for GPT: reads the primary header,
// falling back to the backup (at the last LBA) when the primary is
// missing or fails its CRC. When both headers are valid the primary is
// used; the two are not compared, so a disagreement between them is not
// recorded or reported.
func Probe(info ptable.DeviceInfo, read func(offset int64, size int) ([]byte, error)) (ptable.Label, error) {
	sectorSize := int(info.LogicalSectorSize)
	if sectorSize == 0 {
		sectorSize = 512
	}

	primary, _, perr := readHeader(read, 1, sectorSize)
	primaryOK := perr == nil && headerValid(primary)

	lastLBA := info.TotalSectors - 1
	backup, _, berr := readHeader(read, lastLBA, sectorSize)
	backupOK := berr == nil && headerValid(backup)

	if !primaryOK && !backupOK {
		return nil, nil // not a GPT disk; Context tries the next label kind
	}

	needsRewrite := false
	var use Header
	if primaryOK {
		use = primary
		if !backupOK {
			needsRewrite = true
		}
	} else {
		use = backup
		needsRewrite = true
	}

	entries, eerr := readEntries(read, use, sectorSize)
	if eerr != nil {
		if primaryOK && backupOK {
			// primary header valid but its entry array is corrupt; fall
			// back to the backup's array.
			entries, eerr = readEntries(read, backup, sectorSize)
			if eerr != nil {
				return nil, eerr
			}
			needsRewrite = true
		} else {
			return nil, eerr
		}
	}

	l := &Label{
		primary:    use,
		backup:     backup,
		entries:    entries,
		sectorSize: uint64(sectorSize),
		dirty:      needsRewrite,
		hybridMBR:  detectHybrid(read, sectorSize, info.TotalSectors),
	}
	return l, nil
}
