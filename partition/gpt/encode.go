// Copyright © 2018 Intel Corporation
//
// SPDX-License-Identifier: GPL-3.0-only

package gpt

import (
	"encoding/binary"

	"github.com/clearlinux/partkit/errors"
	"github.com/clearlinux/partkit/ptable"
)

// protectiveMBR renders the single protective MBR sector GPT requires
// at LBA 0: one partition entry of type 0xEE spanning the disk (capped
// at 0xFFFFFFFF sectors), boot signature 0x55AA.
func protectiveMBR(totalSectors uint64, sectorSize int) []byte {
	buf := make([]byte, sectorSize)
	size := totalSectors - 1
	if size > 0xFFFFFFFF {
		size = 0xFFFFFFFF
	}
	const entryOff = 0x1BE
	buf[entryOff] = 0x00                    // not bootable
	buf[entryOff+1] = 0xFF                  // CHS start, irrelevant
	buf[entryOff+2] = 0xFF
	buf[entryOff+3] = 0xFF
	buf[entryOff+4] = 0xEE                  // GPT protective type
	buf[entryOff+5] = 0xFF                  // CHS end, irrelevant
	buf[entryOff+6] = 0xFF
	buf[entryOff+7] = 0xFF
	binary.LittleEndian.PutUint32(buf[entryOff+8:entryOff+12], 1)
	binary.LittleEndian.PutUint32(buf[entryOff+12:entryOff+16], uint32(size))
	buf[510] = 0x55
	buf[511] = 0xAA
	return buf
}

// Encode implements ptable.Label: recomputes both header CRCs and both
// entry-array CRCs, and writes the primary and backup copies
// plus the protective MBR.
func (l *Label) Encode(info ptable.DeviceInfo) (map[int64][]byte, error) {
	sectorSize := int(info.LogicalSectorSize)
	if sectorSize == 0 {
		sectorSize = 512
	}
	numEntries := uint32(len(l.entries))
	entriesPerSector := uint32(sectorSize) / entrySize
	if entriesPerSector == 0 {
		entriesPerSector = 1
	}
	arraySectors := uint64((numEntries + entriesPerSector - 1) / entriesPerSector)

	if l.primary.DiskGUID == zeroGUID {
		g, err := newRandomGUID()
		if err != nil {
			return nil, err
		}
		l.primary.DiskGUID = g
	}

	primaryEntriesLBA := uint64(2)
	firstUsable := primaryEntriesLBA + arraySectors
	lastLBA := info.TotalSectors - 1
	backupEntriesLBA := lastLBA - arraySectors
	lastUsable := backupEntriesLBA - 1

	entriesCRC32 := entriesCRC(l.entries, entrySize)

	primary := Header{
		Signature:      [8]byte{'E', 'F', 'I', ' ', 'P', 'A', 'R', 'T'},
		Revision:       revision10,
		HeaderSize:     headerSize,
		CurrentLBA:     1,
		BackupLBA:      lastLBA,
		FirstUsableLBA: firstUsable,
		LastUsableLBA:  lastUsable,
		DiskGUID:       l.primary.DiskGUID,
		EntriesLBA:     primaryEntriesLBA,
		NumEntries:     numEntries,
		EntrySize:      entrySize,
		EntriesCRC32:   entriesCRC32,
	}
	primary.HeaderCRC32 = headerCRC(primary)

	backup := primary
	backup.CurrentLBA = lastLBA
	backup.BackupLBA = 1
	backup.EntriesLBA = backupEntriesLBA
	backup.HeaderCRC32 = headerCRC(backup)

	l.primary = primary
	l.backup = backup

	headerBuf := make([]byte, sectorSize)
	encodeHeaderInto(headerBuf, primary)
	backupHeaderBuf := make([]byte, sectorSize)
	encodeHeaderInto(backupHeaderBuf, backup)

	entriesBuf := make([]byte, int(arraySectors)*sectorSize)
	for i, e := range l.entries {
		off := i * entrySize
		if off+entrySize > len(entriesBuf) {
			return nil, errors.New(errors.NoSpace, "entry array overflow encoding GPT")
		}
		encodeEntryInto(entriesBuf[off:off+entrySize], e)
	}

	out := map[int64][]byte{
		0:                                       protectiveMBR(info.TotalSectors, sectorSize),
		int64(primary.CurrentLBA) * int64(sectorSize): headerBuf,
		int64(primary.EntriesLBA) * int64(sectorSize):  append([]byte(nil), entriesBuf...),
		int64(backup.EntriesLBA) * int64(sectorSize):   append([]byte(nil), entriesBuf...),
		int64(backup.CurrentLBA) * int64(sectorSize):   backupHeaderBuf,
	}
	return out, nil
}
