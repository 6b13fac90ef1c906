// Copyright © 2018 Intel Corporation
//
// SPDX-License-Identifier: GPL-3.0-only

package cache

import (
	"testing"

	"github.com/clearlinux/partkit/mount"
)

func fakeProbe(tags map[string]map[string]string) Prober {
	return func(device string, wanted []string) (map[string]string, error) {
		if device != "" {
			return tags[device], nil
		}
		// single-tag resolution: search all devices for a matching tag.
		out := make(map[string]string)
		for dev, t := range tags {
			for _, w := range wanted {
				if v, ok := t[w]; ok {
					out[v] = dev
				}
			}
		}
		return out, nil
	}
}

func TestResolveTagFindsDevice(t *testing.T) {
	probe := fakeProbe(map[string]map[string]string{
		"/dev/sda1": {"UUID": "1111-2222", "LABEL": "root"},
	})
	c := New(probe, nil, nil)
	dev, err := c.ResolveTag("UUID", "1111-2222")
	if err != nil {
		t.Fatalf("ResolveTag: %v", err)
	}
	if dev != "/dev/sda1" {
		t.Fatalf("expected /dev/sda1, got %q", dev)
	}
}

func TestResolveTagRejectsUnknownTagName(t *testing.T) {
	c := New(fakeProbe(nil), nil, nil)
	if _, err := c.ResolveTag("BOGUS", "x"); err == nil {
		t.Fatal("expected error for unknown tag name")
	}
}

func TestResolveSpecDispatchesOnPrefix(t *testing.T) {
	probe := fakeProbe(map[string]map[string]string{
		"/dev/sda1": {"LABEL": "root"},
	})
	c := New(probe, nil, nil)
	dev, err := c.ResolveSpec("LABEL=root")
	if err != nil {
		t.Fatalf("ResolveSpec: %v", err)
	}
	if dev != "/dev/sda1" {
		t.Fatalf("expected /dev/sda1, got %q", dev)
	}
}

func TestResolveSpecFallsBackToPath(t *testing.T) {
	c := New(nil, nil, nil)
	dev, err := c.ResolveSpec("/dev/sda2")
	if err != nil {
		t.Fatalf("ResolveSpec: %v", err)
	}
	if dev != "/dev/sda2" {
		t.Fatalf("expected passthrough path, got %q", dev)
	}
}

func TestReadTagsProbesAtMostOnce(t *testing.T) {
	calls := 0
	probe := Prober(func(device string, wanted []string) (map[string]string, error) {
		calls++
		return map[string]string{"UUID": "abc"}, nil
	})
	c := New(probe, nil, nil)
	if _, err := c.ReadTags("/dev/sda1"); err != nil {
		t.Fatalf("ReadTags: %v", err)
	}
	if _, err := c.ReadTags("/dev/sda1"); err != nil {
		t.Fatalf("ReadTags second call: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected probe called exactly once, got %d", calls)
	}
}

func TestResolvePathTrustsMountinfo(t *testing.T) {
	c := New(nil, nil, nil)
	c.AttachMountinfo(&mount.Table{Records: []mount.Record{{Target: "/mnt/data"}}})
	p, err := c.ResolvePath("/mnt/data")
	if err != nil {
		t.Fatalf("ResolvePath: %v", err)
	}
	if p != "/mnt/data" {
		t.Fatalf("expected passthrough, got %q", p)
	}
}

func TestPrettySubstitutesLoopBackingFile(t *testing.T) {
	loop := func(path string) (string, bool, error) {
		if path == "/dev/loop0" {
			return "/var/lib/image.raw", true, nil
		}
		return "", false, nil
	}
	c := New(nil, loop, func(p string) (string, error) { return p, nil })
	got, err := c.Pretty("/dev/loop0")
	if err != nil {
		t.Fatalf("Pretty: %v", err)
	}
	if got != "/var/lib/image.raw" {
		t.Fatalf("expected backing file, got %q", got)
	}
}

func TestPrettyHandlesEmptyPath(t *testing.T) {
	c := New(nil, nil, nil)
	got, err := c.Pretty("")
	if err != nil {
		t.Fatalf("Pretty: %v", err)
	}
	if got != "none" {
		t.Fatalf("expected \"none\", got %q", got)
	}
}
