// Copyright © 2018 Intel Corporation
//
// SPDX-License-Identifier: GPL-3.0-only

package device

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// These block-layer ioctl numbers are stable ABI but not all are
// exposed by golang.org/x/sys/unix under every build tag combination,
// so they are pinned here the way small device libraries in the
// ecosystem typically do (see linux/fs.h, linux/hdreg.h).
const (
	blkpbszget = 0x127b // BLKPBSZGET
	blkiomin   = 0x1278 // BLKIOMIN
	blkioopt   = 0x1279 // BLKIOOPT
	blkgetsize64 = 0x80081272 // BLKGETSIZE64
	hdioGetgeo   = 0x0301     // HDIO_GETGEO
)

// hdGeometry mirrors struct hd_geometry from linux/hdreg.h.
type hdGeometry struct {
	heads     uint8
	sectors   uint8
	cylinders uint16
	start     uintptr // unsigned long
}

func ioctlGetGeo(fd int) (hdGeometry, error) {
	var geo hdGeometry
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), hdioGetgeo, uintptr(unsafe.Pointer(&geo)))
	if errno != 0 {
		return geo, errno
	}
	return geo, nil
}

func ioctlBlkGetSize64(fd int) (uint64, error) {
	var size uint64
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), blkgetsize64, uintptr(unsafe.Pointer(&size)))
	if errno != 0 {
		return 0, errno
	}
	return size, nil
}
