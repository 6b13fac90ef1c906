// Copyright © 2018 Intel Corporation
//
// SPDX-License-Identifier: GPL-3.0-only

package script

import (
	"io"

	"github.com/clearlinux/partkit/errors"
	"github.com/clearlinux/partkit/partition"
	"github.com/clearlinux/partkit/progress"
	"github.com/clearlinux/partkit/ptable"
)

const moveChunkSectors = 2048 // 1 MiB at 512-byte sectors

// MoveData streams sectors sectors from srcStart to dstStart within f,
// choosing a copy direction that never overwrites data before it is
// read, reporting progress as it goes.
func MoveData(f io.ReaderAt, w io.WriterAt, srcStart, dstStart, sectors, sectorSize uint64, reporter progress.Reporter) error {
	if reporter == nil {
		reporter = progress.Nop{}
	}
	if srcStart == dstStart || sectors == 0 {
		reporter.Step(sectors, sectors)
		return nil
	}

	buf := make([]byte, sectorSize*moveChunkSectors)
	var done uint64

	if dstStart < srcStart {
		// Destination precedes source: copy forward, low addresses first.
		for done < sectors {
			n := moveChunkSectors
			if remaining := sectors - done; uint64(n) > remaining {
				n = int(remaining)
			}
			if err := copyChunk(f, w, srcStart+done, dstStart+done, n, sectorSize, buf); err != nil {
				return err
			}
			done += uint64(n)
			reporter.Step(done, sectors)
		}
		return nil
	}

	// Destination follows source: copy backward, high addresses first,
	// so a chunk is never overwritten before it has been read.
	for done < sectors {
		n := moveChunkSectors
		if remaining := sectors - done; uint64(n) > remaining {
			n = int(remaining)
		}
		offset := sectors - done - uint64(n)
		if err := copyChunk(f, w, srcStart+offset, dstStart+offset, n, sectorSize, buf); err != nil {
			return err
		}
		done += uint64(n)
		reporter.Step(done, sectors)
	}
	return nil
}

func copyChunk(f io.ReaderAt, w io.WriterAt, srcSector, dstSector uint64, sectors int, sectorSize uint64, buf []byte) error {
	size := uint64(sectors) * sectorSize
	chunk := buf[:size]
	if _, err := f.ReadAt(chunk, int64(srcSector*sectorSize)); err != nil {
		return errors.New(errors.Io, "read sectors at %d: %v", srcSector, err)
	}
	if _, err := w.WriteAt(chunk, int64(dstSector*sectorSize)); err != nil {
		return errors.New(errors.Io, "write sectors at %d: %v", dstSector, err)
	}
	return nil
}

// RelocateBackup moves a GPT backup header to the new last sector
// after a device resize: it updates ctx's notion of device size and
// writes the label, which recomputes both GPT headers from scratch.
func RelocateBackup(ctx *partition.Context, newTotalSectors uint64) error {
	if ctx.Label() == nil || ctx.Label().Kind() != ptable.GPT {
		return errors.New(errors.Unsupported, "relocate-backup applies only to GPT labels")
	}
	if err := ctx.Resize(newTotalSectors); err != nil {
		return err
	}
	return ctx.Write()
}
