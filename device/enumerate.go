// Copyright © 2018 Intel Corporation
//
// SPDX-License-Identifier: GPL-3.0-only

package device

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/clearlinux/partkit/errors"
)

// BlockDeviceInfo is one row of /proc/partitions.
type BlockDeviceInfo struct {
	Major, Minor int
	Blocks       uint64
	Name         string
}

// ListBlockDevices parses /proc/partitions text (the header line and
// any malformed row are skipped rather than failing the whole read,
// matching the tolerant line-oriented parsing the rest of this module
// uses for kernel text files).
func ListBlockDevices(r io.Reader) ([]BlockDeviceInfo, error) {
	var out []BlockDeviceInfo
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 4 {
			continue
		}
		major, err1 := strconv.Atoi(fields[0])
		minor, err2 := strconv.Atoi(fields[1])
		blocks, err3 := strconv.ParseUint(fields[2], 10, 64)
		if err1 != nil || err2 != nil || err3 != nil {
			continue
		}
		out = append(out, BlockDeviceInfo{Major: major, Minor: minor, Blocks: blocks, Name: fields[3]})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.New(errors.Io, "scan /proc/partitions: %v", err)
	}
	return out, nil
}

// ListBlockDevicesFile opens path (conf.Config.PartitionsPath) and
// parses it with ListBlockDevices.
func ListBlockDevicesFile(path string) ([]BlockDeviceInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.New(errors.Io, "open %s: %v", path, err)
	}
	defer f.Close()
	return ListBlockDevices(f)
}

// DevnoPath resolves a major:minor device number to its devpath and
// reports whether it names a whole disk rather than a partition, via
// the sysBlockRoot symlink farm. A partition's sysfs node nests one directory below its
// parent disk's (.../block/sda/sda1); a whole disk's does not
// (.../block/sda).
func DevnoPath(sysBlockRoot string, major, minor int) (devpath string, wholeDisk bool, err error) {
	link := filepath.Join(sysBlockRoot, fmt.Sprintf("%d:%d", major, minor))
	target, lerr := os.Readlink(link)
	if lerr != nil {
		return "", false, errors.New(errors.NotFound, "resolve devno %d:%d: %v", major, minor, lerr)
	}
	devpath = filepath.Base(target)
	wholeDisk = filepath.Base(filepath.Dir(target)) == "block"
	return devpath, wholeDisk, nil
}
