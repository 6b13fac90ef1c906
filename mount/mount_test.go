// Copyright © 2018 Intel Corporation
//
// SPDX-License-Identifier: GPL-3.0-only

package mount

import (
	"strings"
	"testing"
)

func TestParseFstab(t *testing.T) {
	input := "# comment\nUUID=abc-123 / ext4 defaults 0 1\n/dev/sda2 /boot\\040dir vfat rw 0 2\n"
	table, err := Parse(strings.NewReader(input), Fstab, nil, nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(table.Records) != 2 {
		t.Fatalf("expected 2 records, got %d: %+v", len(table.Records), table.Records)
	}
	if table.Records[1].Target != "/boot dir" {
		t.Fatalf("expected unescaped target, got %q", table.Records[1].Target)
	}
}

func TestParseMountinfo(t *testing.T) {
	input := "36 35 98:0 /mnt1 /mnt2 rw,noatime master:1 - ext3 /dev/root rw,errors=continue\n"
	table, err := Parse(strings.NewReader(input), Mountinfo, nil, nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(table.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(table.Records))
	}
	r := table.Records[0]
	if r.ID != 36 || r.ParentID != 35 || r.Major != 98 || r.Minor != 0 {
		t.Fatalf("id fields mismatch: %+v", r)
	}
	if r.FSType != "ext3" || r.Source != "/dev/root" {
		t.Fatalf("fs fields mismatch: %+v", r)
	}
}

func TestParseMountinfoMergedOptions(t *testing.T) {
	input := "25 24 8:1 / /mnt rw,relatime shared:1 - ext4 /dev/sda1 rw,errors=remount-ro\n"
	table, err := Parse(strings.NewReader(input), Mountinfo, nil, nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(table.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(table.Records))
	}
	r := table.Records[0]
	if r.ID != 25 || r.ParentID != 24 || r.Major != 8 || r.Minor != 1 {
		t.Fatalf("id fields mismatch: %+v", r)
	}
	if r.Root != "/" || r.Target != "/mnt" || r.FSType != "ext4" || r.Source != "/dev/sda1" {
		t.Fatalf("field mismatch: %+v", r)
	}
	if r.VFSOptions != "rw,relatime" || r.FSOptions != "rw,errors=remount-ro" {
		t.Fatalf("option fields mismatch: %+v", r)
	}
	if got := MergedOptions(r); got != "rw,relatime,errors=remount-ro" {
		t.Fatalf("MergedOptions = %q, want %q", got, "rw,relatime,errors=remount-ro")
	}
}

func TestMergedOptionsDropsDuplicateKeys(t *testing.T) {
	r := Record{VFSOptions: "rw,noatime", FSOptions: "rw,errors=panic"}
	if got := MergedOptions(r); got != "rw,noatime,errors=panic" {
		t.Fatalf("MergedOptions = %q, want %q", got, "rw,noatime,errors=panic")
	}
}

func TestGuessDetectsMountinfo(t *testing.T) {
	input := "36 35 98:0 / / rw - ext3 /dev/root rw\n"
	table, err := Parse(strings.NewReader(input), Guess, nil, nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if table.Format != Mountinfo {
		t.Fatalf("expected Mountinfo detection, got %v", table.Format)
	}
}

func TestGuessDetectsSwaps(t *testing.T) {
	input := "Filename\t\t\t\tType\t\tSize\tUsed\tPriority\n/dev/sda3 partition 2097148 0 -2\n"
	table, err := Parse(strings.NewReader(input), Guess, nil, nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if table.Format != Swaps {
		t.Fatalf("expected Swaps detection, got %v", table.Format)
	}
	if len(table.Records) != 1 || table.Records[0].SwapSize != 2097148 {
		t.Fatalf("unexpected swaps record: %+v", table.Records)
	}
}

func TestTargetDeletedSuffixTrimmed(t *testing.T) {
	input := "/dev/sda1 /mnt\\040(deleted) ext4 rw 0 0\n"
	table, err := Parse(strings.NewReader(input), Fstab, nil, nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !table.Records[0].TargetDeleted || table.Records[0].Target != "/mnt" {
		t.Fatalf("deleted-target cleanup failed: %+v", table.Records[0])
	}
}

func TestErrorCallbackSkipsByDefault(t *testing.T) {
	input := "good / ext4 rw 0 0\nbadline\nalsogood /x ext4 rw 0 0\n"
	table, err := Parse(strings.NewReader(input), Fstab, nil, nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(table.Records) != 2 {
		t.Fatalf("expected bad line skipped leaving 2 records, got %d", len(table.Records))
	}
}

func TestMangleUnmangleRoundTrip(t *testing.T) {
	s := "a path with spaces\tand\\backslash"
	m := Mangle(s)
	got := unescapeField(m)
	if got != s {
		t.Fatalf("round trip mismatch: got %q want %q", got, s)
	}
}

func TestWriteFstab(t *testing.T) {
	table := &Table{Format: Fstab, Records: []Record{{Source: "/dev/sda1", Target: "/mnt point", FSType: "ext4", Options: "rw", Freq: 0, Passno: 2}}}
	var sb strings.Builder
	if err := Write(&sb, table); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !strings.Contains(sb.String(), `/mnt\040point`) {
		t.Fatalf("expected mangled target in output: %q", sb.String())
	}
}
