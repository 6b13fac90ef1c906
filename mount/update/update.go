// Copyright © 2018 Intel Corporation
//
// SPDX-License-Identifier: GPL-3.0-only

// Package update implements the utab atomic updater:
// flock the sidecar lock file, merge fresh mountinfo records into the
// existing utab entries, and replace the utab file via write-then-rename.
package update

import (
	"bytes"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/clearlinux/partkit/errors"
	"github.com/clearlinux/partkit/mount"
)

const lockSuffix = ".lock"

// Updater owns the utab path and its companion lock file.
type Updater struct {
	path string
}

// New returns an Updater for the utab file at path (default
// "/run/mount/utab" per conf.Config.UtabPath).
func New(path string) *Updater { return &Updater{path: path} }

// lockPath is where the monitor (package mount/monitor) also watches
// for close-nowrite events.
func (u *Updater) lockPath() string { return u.path + lockSuffix }

// lock opens (creating if necessary) and flocks the sidecar lock file,
// returning the open file for unlock. Held for the duration of a
// merge-and-write.
func (u *Updater) lock() (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(u.path), 0755); err != nil {
		return nil, errors.New(errors.Io, "create utab directory: %v", err)
	}
	f, err := os.OpenFile(u.lockPath(), os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, errors.New(errors.Io, "open utab lock: %v", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		return nil, errors.New(errors.Busy, "lock utab: %v", err)
	}
	return f, nil
}

func (u *Updater) unlock(f *os.File) {
	_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
	f.Close()
}

// matchKey identifies a mount instance by (target, root): a bind mount
// shares its source with its origin, so target disambiguates it, while
// a loop-mounted file's source differs between mountinfo (the kernel's
// /dev/loopN) and utab (the original backing path) and must still
// match.
func matchKey(target, root string) string {
	return target + "\x00" + root
}

// merge folds the existing utab entries into fresh mountinfo records:
// for every fresh record, a matching utab entry (same target and root,
// see matchKey) has its BindSrc/Attrs/Options copied in and the record is
// flagged Merged; a utab entry with no fresh match is retained as-is
// for a subsequent write.
func merge(existing *mount.Table, fresh *mount.Table) *mount.Table {
	byKey := make(map[string]mount.Record, len(existing.Records))
	for _, e := range existing.Records {
		byKey[matchKey(e.Target, e.Root)] = e
	}

	out := &mount.Table{Format: mount.Utab}
	matched := make(map[string]bool, len(existing.Records))
	for _, r := range fresh.Records {
		key := matchKey(r.Target, r.Root)
		if e, ok := byKey[key]; ok {
			r.BindSrc = e.BindSrc
			r.Attrs = e.Attrs
			r.Options = e.Options
			r.Merged = true
			matched[key] = true
		}
		out.Records = append(out.Records, r)
	}
	for _, e := range existing.Records {
		if !matched[matchKey(e.Target, e.Root)] {
			out.Records = append(out.Records, e)
		}
	}
	return out
}

// Merge reads the current utab contents and folds them against fresh
// mountinfo data, without touching disk, implementing the pure half of
// "update_utab" so callers can test matching independent of I/O.
func Merge(existingUtab []byte, freshMountinfo []byte) (*mount.Table, error) {
	existing, err := mount.Parse(bytes.NewReader(existingUtab), mount.Utab, nil, nil)
	if err != nil {
		return nil, err
	}
	fresh, err := mount.Parse(bytes.NewReader(freshMountinfo), mount.Mountinfo, nil, nil)
	if err != nil {
		return nil, err
	}
	return merge(existing, fresh), nil
}

// Apply performs the full "update_utab" operation: lock, read the
// current utab and fresh mountinfo off disk, merge, and atomically
// replace the utab file.
func (u *Updater) Apply(mountinfoPath string) error {
	lockFile, err := u.lock()
	if err != nil {
		return err
	}
	defer u.unlock(lockFile)

	existingBytes, err := os.ReadFile(u.path)
	if err != nil && !os.IsNotExist(err) {
		return errors.New(errors.Io, "read utab: %v", err)
	}
	freshBytes, err := os.ReadFile(mountinfoPath)
	if err != nil {
		return errors.New(errors.Io, "read mountinfo: %v", err)
	}

	merged, err := Merge(existingBytes, freshBytes)
	if err != nil {
		return err
	}

	tmpPath := u.path + ".NEW"
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return errors.New(errors.Io, "create utab.NEW: %v", err)
	}
	if err := mount.Write(tmp, merged); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.New(errors.Io, "fsync utab.NEW: %v", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.New(errors.Io, "close utab.NEW: %v", err)
	}
	if err := os.Rename(tmpPath, u.path); err != nil {
		os.Remove(tmpPath)
		return errors.New(errors.Io, "rename utab.NEW over utab: %v", err)
	}
	return nil
}
