// Copyright © 2018 Intel Corporation
//
// SPDX-License-Identifier: GPL-3.0-only

// Package conf centralizes the process-wide, explicitly-passed
// configuration: default paths for the
// kernel and userspace mount tables, the utab sidecar, and the lock
// policy, each overridable by the environment variables the downstream
// CLIs already use. There is exactly one package-level mutable value
// (Default), initialized once; other packages do not read the
// environment themselves and take the individual settings they need
// (such as a LockPolicy) as arguments.
package conf

import "os"

// LockPolicy controls how a Context acquires the advisory device lock
// before writing.
type LockPolicy int

const (
	// LockAlways blocks until the exclusive flock is granted.
	LockAlways LockPolicy = iota
	// LockNever skips flock entirely.
	LockNever
	// LockNonBlocking attempts flock and reports EWOULDBLOCK as a recoverable Busy error.
	LockNonBlocking
)

// Config is the process-wide configuration. Constructors in the other
// packages do not take a *Config; callers pass them the fields they need.
type Config struct {
	// MtabPath is the path read as the mtab format, default "/proc/mounts".
	MtabPath string
	// FstabPath is the path read as the fstab format, default "/etc/fstab".
	FstabPath string
	// UtabPath is the userspace sidecar path, default "/run/mount/utab".
	UtabPath string
	// MountinfoPath is the kernel mount table, default "/proc/self/mountinfo".
	MountinfoPath string
	// SwapsPath is the kernel swap table, default "/proc/swaps".
	SwapsPath string
	// PartitionsPath enumerates block devices, default "/proc/partitions".
	PartitionsPath string
	// SysBlockPath is the sysfs root used to resolve devno to devpath.
	SysBlockPath string
	// LockBlockDevice is the advisory-lock policy for partition writes.
	LockBlockDevice LockPolicy
	// Debug enables verbose libmount/libblkid-style tracing.
	Debug bool
}

const (
	envMtab     = "LIBMOUNT_MTAB"
	envUtab     = "LIBMOUNT_UTAB"
	envFstab    = "LIBMOUNT_FSTAB"
	envDebug    = "LIBMOUNT_DEBUG"
	envBlkid    = "LIBBLKID_DEBUG"
	envLockMode = "LOCK_BLOCK_DEVICE"
)

func getenvDefault(name, def string) string {
	if v, ok := os.LookupEnv(name); ok && v != "" {
		return v
	}
	return def
}

// FromEnvironment builds a Config from the environment variables named
// in, falling back to the standard kernel/runtime paths.
func FromEnvironment() *Config {
	c := &Config{
		MtabPath:       getenvDefault(envMtab, "/proc/mounts"),
		FstabPath:      getenvDefault(envFstab, "/etc/fstab"),
		UtabPath:       getenvDefault(envUtab, "/run/mount/utab"),
		MountinfoPath:  "/proc/self/mountinfo",
		SwapsPath:      "/proc/swaps",
		PartitionsPath: "/proc/partitions",
		SysBlockPath:   "/sys/dev/block",
		LockBlockDevice: parseLockPolicy(getenvDefault(envLockMode, "always")),
	}

	if os.Getenv(envDebug) != "" || os.Getenv(envBlkid) != "" {
		c.Debug = true
	}

	return c
}

func parseLockPolicy(s string) LockPolicy {
	switch s {
	case "never":
		return LockNever
	case "nonblock", "non-blocking":
		return LockNonBlocking
	default:
		return LockAlways
	}
}

// Default is the process-wide configuration, initialized once from the
// environment by the library entry point.
var Default = FromEnvironment()
