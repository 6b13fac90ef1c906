// Copyright © 2018 Intel Corporation
//
// SPDX-License-Identifier: GPL-3.0-only

package device

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/clearlinux/partkit/conf"
	"github.com/clearlinux/partkit/errors"
)

func makeImage(t *testing.T, sectors uint64) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "disk.img")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Truncate(int64(sectors * 512)); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestOpenAndProbeFallsBackToFileSize(t *testing.T) {
	path := makeImage(t, 4194304) // 2 GiB of 512-byte sectors

	h, err := Open(path, false)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer h.Close()

	g, err := h.Probe()
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}

	if g.LogicalSectorSize != 512 {
		t.Fatalf("LogicalSectorSize = %d, want 512 (fallback default)", g.LogicalSectorSize)
	}
	if g.TotalSectors != 4194304 {
		t.Fatalf("TotalSectors = %d, want 4194304", g.TotalSectors)
	}
}

func TestOpenMissingIsNotFound(t *testing.T) {
	_, err := Open("/nonexistent/path/to/disk", true)
	if err == nil {
		t.Fatal("expected an error opening a missing device")
	}
	if !errors.Is(err, errors.NotFound) {
		t.Fatalf("expected a NotFound error, got %v", err)
	}
}

func TestLockPolicyNever(t *testing.T) {
	path := makeImage(t, 2048)

	h, err := Open(path, false)
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	if err := h.Lock(conf.LockNever); err != nil {
		t.Fatalf("LockNever should never fail: %v", err)
	}
	if h.locked {
		t.Fatal("LockNever should not mark the handle as locked")
	}
}

func TestLockReadOnlyIsNoop(t *testing.T) {
	path := makeImage(t, 2048)

	h, err := Open(path, true)
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	if err := h.Lock(conf.LockAlways); err != nil {
		t.Fatalf("Lock on read-only handle should be a no-op: %v", err)
	}
}
