// Copyright © 2018 Intel Corporation
//
// SPDX-License-Identifier: GPL-3.0-only

// Package monitor implements the mount-change monitor:
// a single epoll fd multiplexing an inotify watch on the utab lock file
// (userspace-initiated changes) and a level/edge watch on the kernel's
// /proc/self/mountinfo (kernel-initiated changes).
package monitor

import (
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/clearlinux/partkit/errors"
)

// ChangeKind reports which source fired.
type ChangeKind int

const (
	// KernelMounts is a change in /proc/self/mountinfo.
	KernelMounts ChangeKind = iota
	// UserspaceMounts is a close (close-nowrite or close-write) of the
	// utab lock file, or the creation of that file.
	UserspaceMounts
)

// Monitor multiplexes mount-change sources behind one epoll fd.
type Monitor struct {
	epfd int

	mountinfoFd int
	mountinfoOn bool

	inotifyFd      int
	inotifyWatchFd int
	utabLockPath   string
	utabOn         bool

	pending []event
}

type event struct {
	kind     ChangeKind
	filename string
}

// New opens the epoll fd and wires up watches for mountinfoPath (the
// kernel table) and utabLockPath (the userspace sidecar's lock file).
// Both sources start enabled.
func New(mountinfoPath, utabLockPath string) (*Monitor, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, errors.New(errors.Io, "epoll_create1: %v", err)
	}
	m := &Monitor{epfd: epfd, mountinfoFd: -1, inotifyFd: -1, inotifyWatchFd: -1, utabLockPath: utabLockPath}

	if mountinfoPath != "" {
		fd, err := unix.Open(mountinfoPath, unix.O_RDONLY|unix.O_CLOEXEC, 0)
		if err != nil {
			m.Close()
			return nil, errors.New(errors.Io, "open %s: %v", mountinfoPath, err)
		}
		m.mountinfoFd = fd
		if err := m.Enable(KernelMounts, true); err != nil {
			m.Close()
			return nil, err
		}
	}

	if utabLockPath != "" {
		fd, err := unix.InotifyInit1(unix.IN_CLOEXEC | unix.IN_NONBLOCK)
		if err != nil {
			m.Close()
			return nil, errors.New(errors.Io, "inotify_init1: %v", err)
		}
		m.inotifyFd = fd
		if err := m.Enable(UserspaceMounts, true); err != nil {
			m.Close()
			return nil, err
		}
	}

	return m, nil
}

// addInotifyWatch watches the lock file for IN_CLOSE_NOWRITE and
// IN_CLOSE_WRITE (another process finished with the lock); when the
// lock file does not exist yet, it watches the parent directory for
// IN_CREATE instead.
func (m *Monitor) addInotifyWatch() error {
	target := m.utabLockPath
	mask := uint32(unix.IN_CLOSE_NOWRITE | unix.IN_CLOSE_WRITE)
	if _, err := os.Stat(target); err != nil {
		target = filepath.Dir(m.utabLockPath)
		mask = unix.IN_CREATE
	}
	wd, err := unix.InotifyAddWatch(m.inotifyFd, target, mask)
	if err != nil {
		return errors.New(errors.Io, "inotify_add_watch %s: %v", target, err)
	}
	m.inotifyWatchFd = wd
	return nil
}

// GetFd returns the single fd callers select/epoll on alongside their
// own event loop.
func (m *Monitor) GetFd() int { return m.epfd }

// Enable toggles whether kind participates in Wait/NextChange.
func (m *Monitor) Enable(kind ChangeKind, on bool) error {
	switch kind {
	case KernelMounts:
		if m.mountinfoFd < 0 {
			return errors.New(errors.Unsupported, "kernel mountinfo watch not configured")
		}
		if on == m.mountinfoOn {
			return nil
		}
		op := unix.EPOLL_CTL_ADD
		if !on {
			op = unix.EPOLL_CTL_DEL
		}
		ev := unix.EpollEvent{Events: unix.EPOLLIN | unix.EPOLLET, Fd: int32(m.mountinfoFd)}
		if err := unix.EpollCtl(m.epfd, op, m.mountinfoFd, &ev); err != nil {
			return errors.New(errors.Io, "epoll_ctl mountinfo: %v", err)
		}
		m.mountinfoOn = on
	case UserspaceMounts:
		if m.inotifyFd < 0 {
			return errors.New(errors.Unsupported, "utab lock watch not configured")
		}
		if on == m.utabOn {
			return nil
		}
		if on {
			if m.inotifyWatchFd < 0 {
				if err := m.addInotifyWatch(); err != nil {
					return err
				}
			}
			ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(m.inotifyFd)}
			if err := unix.EpollCtl(m.epfd, unix.EPOLL_CTL_ADD, m.inotifyFd, &ev); err != nil {
				return errors.New(errors.Io, "epoll_ctl inotify: %v", err)
			}
		} else {
			ev := unix.EpollEvent{Fd: int32(m.inotifyFd)}
			if err := unix.EpollCtl(m.epfd, unix.EPOLL_CTL_DEL, m.inotifyFd, &ev); err != nil {
				return errors.New(errors.Io, "epoll_ctl inotify remove: %v", err)
			}
		}
		m.utabOn = on
	default:
		return errors.New(errors.Unsupported, "unknown change kind")
	}
	return nil
}

// Wait blocks up to timeoutMs (negative means forever) for a change,
// returning the number of ready sources.
func (m *Monitor) Wait(timeoutMs int) (int, error) {
	events := make([]unix.EpollEvent, 4)
	n, err := unix.EpollWait(m.epfd, events, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, errors.New(errors.Io, "epoll_wait: %v", err)
	}
	for i := 0; i < n; i++ {
		fd := int(events[i].Fd)
		switch fd {
		case m.mountinfoFd:
			m.pending = append(m.pending, event{kind: KernelMounts})
		case m.inotifyFd:
			m.drainInotify()
		}
	}
	return n, nil
}

// drainInotify reads pending inotify events and re-arms the watch: a
// deleted-and-recreated lock file needs a fresh watch descriptor.
func (m *Monitor) drainInotify() {
	buf := make([]byte, 4096)
	n, err := unix.Read(m.inotifyFd, buf)
	if err != nil || n == 0 {
		return
	}
	offset := 0
	for offset+unix.SizeofInotifyEvent <= n {
		nameLen := int(le32(buf[offset+12 : offset+16]))
		mask := le32(buf[offset+8 : offset+12])
		offset += unix.SizeofInotifyEvent + nameLen

		m.pending = append(m.pending, event{kind: UserspaceMounts, filename: m.utabLockPath})
		if mask&unix.IN_CREATE != 0 {
			// The lock file itself now exists; re-arm a direct watch on it.
			_ = m.addInotifyWatch()
		}
	}
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// NextChange dequeues one pending change, reporting false once drained.
func (m *Monitor) NextChange() (filename string, kind ChangeKind, ok bool) {
	if len(m.pending) == 0 {
		return "", 0, false
	}
	ev := m.pending[0]
	m.pending = m.pending[1:]
	return ev.filename, ev.kind, true
}

// Close releases every fd the Monitor opened.
func (m *Monitor) Close() error {
	if m.mountinfoFd >= 0 {
		unix.Close(m.mountinfoFd)
	}
	if m.inotifyFd >= 0 {
		unix.Close(m.inotifyFd)
	}
	return unix.Close(m.epfd)
}
