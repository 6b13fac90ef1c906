// Copyright © 2018 Intel Corporation
//
// SPDX-License-Identifier: GPL-3.0-only

// Package gpt implements the GPT (GUID Partition Table) label driver
// described in: protective MBR at sector 0, primary
// header at LBA 1 with its entry array immediately after, and a backup
// header/array mirrored at the end of the device.
package gpt

import (
	"encoding/binary"
	"hash/crc32"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/clearlinux/partkit/errors"
	"github.com/clearlinux/partkit/ptable"
)

const (
	signature  = "EFI PART"
	revision10 = 0x00010000
	headerSize = 92
	entrySize  = 128
	nameUnits  = 36 // UTF-16 code units, 72 bytes
	minEntries = 128
)

// Header mirrors the on-disk GPT header.
type Header struct {
	Signature      [8]byte
	Revision       uint32
	HeaderSize     uint32
	HeaderCRC32    uint32
	Reserved       uint32
	CurrentLBA     uint64
	BackupLBA      uint64
	FirstUsableLBA uint64
	LastUsableLBA  uint64
	DiskGUID       [16]byte
	EntriesLBA     uint64
	NumEntries     uint32
	EntrySize      uint32
	EntriesCRC32   uint32
}

// Entry mirrors one on-disk partition-entry array slot.
type Entry struct {
	TypeGUID    [16]byte
	UniqueGUID  [16]byte
	FirstLBA    uint64
	LastLBA     uint64
	Attributes  uint64
	NameUTF16LE [nameUnits * 2]byte
}

// NamePolicy names how write-back handles partition names that cannot
// be represented cleanly in UTF-16LE. Label carries a namePolicy field,
// but nothing sets or reads it: encodeName applies no policy, and
// NameReject is never enforced.
type NamePolicy int

const (
	// NameReplace substitutes U+FFFD for unpaired surrogates (default).
	NameReplace NamePolicy = iota
	// NameReject would fail the write instead of mangling the name; no
	// code path selects or applies it.
	NameReject
)

// Label implements ptable.Label for GPT.
type Label struct {
	primary    Header
	backup     Header
	entries    []Entry
	dirty      bool
	sectorSize uint64
	namePolicy NamePolicy

	// hybridMBR records whether a non-EE-only protective MBR was found,
	// surfaced as a warning.
	hybridMBR bool
}

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

func encodeName(name string) ([nameUnits * 2]byte, error) {
	var out [nameUnits * 2]byte
	enc := utf16le.NewEncoder()
	b, _, err := transform.Bytes(enc, []byte(name))
	if err != nil {
		return out, errors.New(errors.InvalidLabel, "encode partition name %q: %v", name, err)
	}
	if len(b) > len(out)-2 {
		b = b[:len(out)-2]
	}
	copy(out[:], b)
	// last two bytes (final UTF-16 code unit) must be zero on write.
	out[len(out)-2] = 0
	out[len(out)-1] = 0
	return out, nil
}

func decodeName(raw [nameUnits * 2]byte) string {
	// Name is NUL-terminated within the fixed-size slot.
	end := len(raw)
	for i := 0; i+1 < len(raw); i += 2 {
		if raw[i] == 0 && raw[i+1] == 0 {
			end = i
			break
		}
	}
	dec := utf16le.NewDecoder()
	s, _, err := transform.Bytes(dec, raw[:end])
	if err != nil {
		// Decoding failure means an unpaired surrogate or similar; fall
		// back to the replacement character rather than failing reads.
		return string([]rune{0xFFFD})
	}
	return string(s)
}

func headerCRC(h Header) uint32 {
	cp := h
	cp.HeaderCRC32 = 0
	buf := make([]byte, h.HeaderSize)
	encodeHeaderInto(buf, cp)
	return crc32.ChecksumIEEE(buf[:h.HeaderSize])
}

func entriesCRC(entries []Entry, entrySz uint32) uint32 {
	buf := make([]byte, 0, len(entries)*int(entrySz))
	for _, e := range entries {
		b := make([]byte, entrySz)
		encodeEntryInto(b, e)
		buf = append(buf, b...)
	}
	return crc32.ChecksumIEEE(buf)
}

func encodeHeaderInto(buf []byte, h Header) {
	copy(buf[0:8], h.Signature[:])
	binary.LittleEndian.PutUint32(buf[8:12], h.Revision)
	binary.LittleEndian.PutUint32(buf[12:16], h.HeaderSize)
	binary.LittleEndian.PutUint32(buf[16:20], h.HeaderCRC32)
	binary.LittleEndian.PutUint32(buf[20:24], h.Reserved)
	binary.LittleEndian.PutUint64(buf[24:32], h.CurrentLBA)
	binary.LittleEndian.PutUint64(buf[32:40], h.BackupLBA)
	binary.LittleEndian.PutUint64(buf[40:48], h.FirstUsableLBA)
	binary.LittleEndian.PutUint64(buf[48:56], h.LastUsableLBA)
	copy(buf[56:72], h.DiskGUID[:])
	binary.LittleEndian.PutUint64(buf[72:80], h.EntriesLBA)
	binary.LittleEndian.PutUint32(buf[80:84], h.NumEntries)
	binary.LittleEndian.PutUint32(buf[84:88], h.EntrySize)
	binary.LittleEndian.PutUint32(buf[88:92], h.EntriesCRC32)
}

func decodeHeaderFrom(buf []byte) Header {
	var h Header
	copy(h.Signature[:], buf[0:8])
	h.Revision = binary.LittleEndian.Uint32(buf[8:12])
	h.HeaderSize = binary.LittleEndian.Uint32(buf[12:16])
	h.HeaderCRC32 = binary.LittleEndian.Uint32(buf[16:20])
	h.Reserved = binary.LittleEndian.Uint32(buf[20:24])
	h.CurrentLBA = binary.LittleEndian.Uint64(buf[24:32])
	h.BackupLBA = binary.LittleEndian.Uint64(buf[32:40])
	h.FirstUsableLBA = binary.LittleEndian.Uint64(buf[40:48])
	h.LastUsableLBA = binary.LittleEndian.Uint64(buf[48:56])
	copy(h.DiskGUID[:], buf[56:72])
	h.EntriesLBA = binary.LittleEndian.Uint64(buf[72:80])
	h.NumEntries = binary.LittleEndian.Uint32(buf[80:84])
	h.EntrySize = binary.LittleEndian.Uint32(buf[84:88])
	h.EntriesCRC32 = binary.LittleEndian.Uint32(buf[88:92])
	return h
}

func encodeEntryInto(buf []byte, e Entry) {
	copy(buf[0:16], e.TypeGUID[:])
	copy(buf[16:32], e.UniqueGUID[:])
	binary.LittleEndian.PutUint64(buf[32:40], e.FirstLBA)
	binary.LittleEndian.PutUint64(buf[40:48], e.LastLBA)
	binary.LittleEndian.PutUint64(buf[48:56], e.Attributes)
	copy(buf[56:56+len(e.NameUTF16LE)], e.NameUTF16LE[:])
}

func decodeEntryFrom(buf []byte) Entry {
	var e Entry
	copy(e.TypeGUID[:], buf[0:16])
	copy(e.UniqueGUID[:], buf[16:32])
	e.FirstLBA = binary.LittleEndian.Uint64(buf[32:40])
	e.LastLBA = binary.LittleEndian.Uint64(buf[40:48])
	e.Attributes = binary.LittleEndian.Uint64(buf[48:56])
	copy(e.NameUTF16LE[:], buf[56:56+len(e.NameUTF16LE)])
	return e
}

// Kind implements ptable.Label.
func (l *Label) Kind() ptable.Kind { return ptable.GPT }

// Dirty implements ptable.Label.
func (l *Label) Dirty() bool { return l.dirty }

// MarkClean implements ptable.Label.
func (l *Label) MarkClean() { l.dirty = false }

func (l *Label) toPartition(idx int, e Entry) ptable.Partition {
	return ptable.Partition{
		Index:    idx,
		Start:    e.FirstLBA,
		Size:     e.LastLBA - e.FirstLBA + 1,
		Type:     ptable.Parttype{Kind: ptable.GPT, GUID: guidToString(e.TypeGUID)},
		UUID:     guidToString(e.UniqueGUID),
		Name:     decodeName(e.NameUTF16LE),
		Attributes: e.Attributes,
		HasStart: true,
		HasSize:  true,
		HasType:  true,
		HasUUID:  true,
		HasName:  true,
	}
}

// List implements ptable.Label.
func (l *Label) List() ptable.Table {
	var t ptable.Table
	for i, e := range l.entries {
		if isZeroGUID(e.TypeGUID) {
			continue
		}
		t.Partitions = append(t.Partitions, l.toPartition(i, e))
	}
	return t
}
