// Copyright © 2018 Intel Corporation
//
// SPDX-License-Identifier: GPL-3.0-only

// Package utils collects small helpers shared by the partition and mount
// engines: filesystem convenience wrappers, slice membership tests, and
// the size-hint parser.
package utils

import (
	"os"

	"github.com/clearlinux/partkit/errors"
)

// MkdirAll creates path and any necessary parents, taking no action if
// path already exists.
func MkdirAll(path string, perm os.FileMode) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	if err := os.MkdirAll(path, perm); err != nil {
		return errors.New(errors.Io, "mkdir %s: %v", path, err)
	}

	return nil
}

// FileExists returns true if the file or directory exists.
func FileExists(filePath string) (bool, error) {
	_, err := os.Stat(filePath)
	if err == nil {
		return true, nil
	}

	if os.IsNotExist(err) {
		return false, nil
	}

	return true, err
}

// StringSliceContains returns true if sl contains str.
func StringSliceContains(sl []string, str string) bool {
	for _, curr := range sl {
		if curr == str {
			return true
		}
	}
	return false
}

// IntSliceContains returns true if is contains value.
func IntSliceContains(is []int, value int) bool {
	for _, curr := range is {
		if curr == value {
			return true
		}
	}
	return false
}
