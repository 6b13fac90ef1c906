// Copyright © 2018 Intel Corporation
//
// SPDX-License-Identifier: GPL-3.0-only

package update

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestMergeKeepsMatchingEntryAndFlagsMerged(t *testing.T) {
	existing := `SRC=/dev/sda1 TARGET=/mnt ROOT=/ BINDSRC= OPTS=rw ATTRS=
`
	fresh := "36 35 8:1 / /mnt rw - ext4 /dev/sda1 rw\n"

	table, err := Merge([]byte(existing), []byte(fresh))
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(table.Records) != 1 {
		t.Fatalf("expected 1 merged record, got %d", len(table.Records))
	}
	if !table.Records[0].Merged {
		t.Fatal("expected record to be flagged Merged")
	}
	if table.Records[0].Options != "rw" {
		t.Fatalf("expected utab options preserved, got %q", table.Records[0].Options)
	}
}

func TestMergeRetainsNonMatchingUtabEntry(t *testing.T) {
	existing := `SRC=/dev/sda1 TARGET=/mnt ROOT=/ BINDSRC= OPTS=rw ATTRS=
`
	fresh := "" // nothing currently mounted

	table, err := Merge([]byte(existing), []byte(fresh))
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(table.Records) != 1 {
		t.Fatalf("expected non-matching utab entry retained for a subsequent write, got %d records", len(table.Records))
	}
	if table.Records[0].Merged {
		t.Fatal("retained entry with no fresh match should not be flagged Merged")
	}
}

func TestMergeLoopDeviceUserOptions(t *testing.T) {
	// The kernel reports the loop device as source while utab still
	// records the original backing file; the match must still succeed.
	existing := "SRC=/path/image.iso TARGET=/mnt/x ROOT=/ BINDSRC= OPTS=loop ATTRS=\n"
	fresh := "10 1 7:0 / /mnt/x ro - iso9660 /dev/loop0 ro\n"

	table, err := Merge([]byte(existing), []byte(fresh))
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(table.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(table.Records))
	}
	r := table.Records[0]
	if !r.Merged {
		t.Fatal("expected record flagged Merged")
	}
	if r.Options != "loop" {
		t.Fatalf("user-options = %q, want %q", r.Options, "loop")
	}
}

func TestApplyWritesAtomicallyViaRename(t *testing.T) {
	dir := t.TempDir()
	utabPath := filepath.Join(dir, "utab")
	mountinfoPath := filepath.Join(dir, "mountinfo")

	if err := os.WriteFile(utabPath, []byte("SRC=/dev/sda1 TARGET=/mnt ROOT=/ BINDSRC= OPTS=rw ATTRS=\n"), 0644); err != nil {
		t.Fatalf("seed utab: %v", err)
	}
	if err := os.WriteFile(mountinfoPath, []byte("36 35 8:1 / /mnt rw - ext4 /dev/sda1 rw\n"), 0644); err != nil {
		t.Fatalf("seed mountinfo: %v", err)
	}

	u := New(utabPath)
	if err := u.Apply(mountinfoPath); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if _, err := os.Stat(utabPath + ".NEW"); !os.IsNotExist(err) {
		t.Fatal("expected utab.NEW to be gone after rename")
	}
	out, err := os.ReadFile(utabPath)
	if err != nil {
		t.Fatalf("read utab: %v", err)
	}
	if !strings.Contains(string(out), "SRC=/dev/sda1") {
		t.Fatalf("expected merged entry in final utab, got %q", out)
	}
}
