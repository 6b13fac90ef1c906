// Copyright © 2019 Intel Corporation
//
// SPDX-License-Identifier: GPL-3.0-only

package utils

import (
	"os"
	"path/filepath"
	"testing"
)

func TestMkdirAllIdempotent(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")

	if err := MkdirAll(dir, 0755); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := MkdirAll(dir, 0755); err != nil {
		t.Fatalf("second MkdirAll should be a no-op: %v", err)
	}

	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		t.Fatalf("MkdirAll did not create a directory")
	}
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "present")
	if err := os.WriteFile(f, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	ok, err := FileExists(f)
	if err != nil || !ok {
		t.Fatalf("FileExists(%q) = %v, %v, want true, nil", f, ok, err)
	}

	ok, err = FileExists(filepath.Join(dir, "missing"))
	if err != nil || ok {
		t.Fatalf("FileExists(missing) = %v, %v, want false, nil", ok, err)
	}
}

func TestIntSliceContains(t *testing.T) {
	if !IntSliceContains([]int{1, 2, 3}, 2) {
		t.Fatal("expected 2 to be found")
	}
	if IntSliceContains([]int{1, 2, 3}, 9) {
		t.Fatal("expected 9 to be absent")
	}
}

func TestStringSliceContains(t *testing.T) {
	if !StringSliceContains([]string{"a", "b"}, "b") {
		t.Fatal("expected b to be found")
	}
}
