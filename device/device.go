// Copyright © 2018 Intel Corporation
//
// SPDX-License-Identifier: GPL-3.0-only

// Package device implements the shared device substrate: opening and
// advisory-locking a block device (or a
// file-backed stand-in for tests), querying its geometry through the
// BLKSSZGET/BLKPBSZGET/HDIO_GETGEO/BLKGETSIZE64 ioctls with a
// lseek(SEEK_END) fallback, and issuing BLKRRPART to ask the kernel to
// re-read the partition table.
package device

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/clearlinux/partkit/conf"
	"github.com/clearlinux/partkit/errors"
)

// Geometry holds the declared and queried shape of a block device:
// logical and physical sector size, optimal/minimal I/O size, declared
// CHS geometry and total sector count.
type Geometry struct {
	LogicalSectorSize  uint64
	PhysicalSectorSize uint64
	OptimalIOSize      uint64
	MinimumIOSize      uint64
	Heads              uint32
	SectorsPerTrack    uint32
	Cylinders          uint32
	TotalSectors       uint64
}

// Handle is the open file descriptor for one block device plus its
// lock state, the device-substrate half of's Context.
type Handle struct {
	Path     string
	ReadOnly bool

	file   *os.File
	locked bool
}

// Open opens path, matching Context's "assign" opening side effects
// except for geometry probing, which callers do via Probe.
func Open(path string, readOnly bool) (*Handle, error) {
	flag := os.O_RDWR
	if readOnly {
		flag = os.O_RDONLY
	}

	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(errors.NotFound, "open %s: %v", path, err)
		}
		if os.IsPermission(err) && !readOnly {
			// Retry read-only: many callers probe devices they cannot write.
			f, err = os.OpenFile(path, os.O_RDONLY, 0)
			if err != nil {
				return nil, errors.New(errors.Io, "open %s: %v", path, err)
			}
			return &Handle{Path: path, ReadOnly: true, file: f}, nil
		}
		return nil, errors.New(errors.Io, "open %s: %v", path, err)
	}

	return &Handle{Path: path, ReadOnly: readOnly, file: f}, nil
}

// File exposes the underlying *os.File for ReadAt/WriteAt/Sync use by
// label drivers.
func (h *Handle) File() *os.File { return h.file }

// Close releases the lock (if held) and closes the device.
func (h *Handle) Close() error {
	if h.locked {
		_ = h.Unlock()
	}
	return h.file.Close()
}

// Lock takes an advisory exclusive flock on the device
// "Block-device locking", honoring the configured LockPolicy.
func (h *Handle) Lock(policy conf.LockPolicy) error {
	if policy == conf.LockNever || h.ReadOnly {
		return nil
	}

	op := unix.LOCK_EX
	if policy == conf.LockNonBlocking {
		op |= unix.LOCK_NB
	}

	if err := unix.Flock(int(h.file.Fd()), op); err != nil {
		if err == unix.EWOULDBLOCK {
			return errors.New(errors.Busy, "device %s is locked by another process", h.Path)
		}
		return errors.New(errors.Io, "flock %s: %v", h.Path, err)
	}

	h.locked = true
	return nil
}

// Unlock releases a previously taken lock.
func (h *Handle) Unlock() error {
	if !h.locked {
		return nil
	}
	if err := unix.Flock(int(h.file.Fd()), unix.LOCK_UN); err != nil {
		return errors.New(errors.Io, "funlock %s: %v", h.Path, err)
	}
	h.locked = false
	return nil
}

// Probe queries the device's geometry, falling back to
// lseek(SEEK_END) for the total size (and a 512-byte logical sector)
// when the ioctls are unsupported — the case for the file-backed mocks
// used by tests, and for image files passed directly to the engine.
func (h *Handle) Probe() (Geometry, error) {
	var g Geometry
	fd := int(h.file.Fd())

	if v, err := unix.IoctlGetInt(fd, unix.BLKSSZGET); err == nil {
		g.LogicalSectorSize = uint64(v)
	} else {
		g.LogicalSectorSize = 512
	}

	if v, err := unix.IoctlGetInt(fd, blkpbszget); err == nil {
		g.PhysicalSectorSize = uint64(v)
	} else {
		g.PhysicalSectorSize = g.LogicalSectorSize
	}

	if v, err := unix.IoctlGetInt(fd, blkiomin); err == nil {
		g.MinimumIOSize = uint64(v)
	} else {
		g.MinimumIOSize = g.PhysicalSectorSize
	}

	if v, err := unix.IoctlGetInt(fd, blkioopt); err == nil && v > 0 {
		g.OptimalIOSize = uint64(v)
	} else {
		g.OptimalIOSize = g.MinimumIOSize
	}

	if geo, err := ioctlGetGeo(fd); err == nil {
		g.Heads = uint32(geo.heads)
		g.SectorsPerTrack = uint32(geo.sectors)
		g.Cylinders = uint32(geo.cylinders)
	}

	size, err := ioctlBlkGetSize64(fd)
	if err != nil {
		end, serr := h.file.Seek(0, os.SEEK_END)
		if serr != nil {
			return g, errors.New(errors.Io, "probe size of %s: %v", h.Path, serr)
		}
		if _, err := h.file.Seek(0, os.SEEK_SET); err != nil {
			return g, errors.New(errors.Io, "seek %s: %v", h.Path, err)
		}
		size = uint64(end)
	}

	if g.LogicalSectorSize == 0 {
		g.LogicalSectorSize = 512
	}
	g.TotalSectors = size / g.LogicalSectorSize

	if g.Heads == 0 {
		g.Heads = 255
	}
	if g.SectorsPerTrack == 0 {
		g.SectorsPerTrack = 63
	}
	if g.Cylinders == 0 && g.Heads > 0 && g.SectorsPerTrack > 0 {
		g.Cylinders = uint32(g.TotalSectors / uint64(g.Heads) / uint64(g.SectorsPerTrack))
	}

	return g, nil
}

// Reread issues BLKRRPART. When the kernel refuses because partitions
// are busy it returns a Busy error; it does not fall back to the
// per-partition BLKPG_* ioctls.
func (h *Handle) Reread() error {
	fd := int(h.file.Fd())

	if err := unix.IoctlSetInt(fd, unix.BLKRRPART, 0); err != nil {
		if err == unix.EBUSY {
			return errors.New(errors.Busy, "BLKRRPART on %s: device busy, retry with BLKPG_* per-partition updates", h.Path)
		}
		return errors.New(errors.Io, "BLKRRPART on %s: %v", h.Path, err)
	}
	return nil
}
