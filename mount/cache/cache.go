// Copyright © 2018 Intel Corporation
//
// SPDX-License-Identifier: GPL-3.0-only

// Package cache implements the tag cache and resolver: mapping between caller-supplied identifiers (paths,
// UUID=/LABEL=/PARTUUID=/PARTLABEL= tags) and canonical device paths,
// backed by an external identity-probe callback standing in for
// libblkid.
package cache

import (
	"path/filepath"
	"strings"

	"github.com/clearlinux/partkit/errors"
	"github.com/clearlinux/partkit/mount"
)

// validTags is the fixed, case-sensitive set of tag names the
// resolver accepts.
var validTags = map[string]bool{
	"UUID": true, "LABEL": true, "PARTUUID": true, "PARTLABEL": true, "TYPE": true,
}

// Prober is the external identity backend: probes device for the
// requested tag names. Production wires libblkid; tests substitute a map.
type Prober func(device string, tags []string) (map[string]string, error)

// LoopBackingFile resolves a /dev/loopN path to its backing file, used
// by Pretty.
type LoopBackingFile func(loopPath string) (string, bool, error)

// Realpath resolves symlinks and ".."; production wires filepath.EvalSymlinks.
type Realpath func(path string) (string, error)

// Cache maps identifiers to canonical device paths. Not safe for
// concurrent use by multiple goroutines.
type Cache struct {
	probe    Prober
	loop     LoopBackingFile
	realpath Realpath

	pathCache   map[string]string
	tagCache    map[string]string // "TAG=value" -> device path
	probedTags  map[string]map[string]string
	probedOnce  map[string]bool
	mountinfo   *mount.Table
}

// New creates a Cache backed by the given external collaborators.
func New(probe Prober, loop LoopBackingFile, realpath Realpath) *Cache {
	return &Cache{
		probe:      probe,
		loop:       loop,
		realpath:   realpath,
		pathCache:  make(map[string]string),
		tagCache:   make(map[string]string),
		probedTags: make(map[string]map[string]string),
		probedOnce: make(map[string]bool),
	}
}

// AttachMountinfo gives the cache a parsed mountinfo Table so
// ResolvePath can trust kernel-reported mountpoints without a
// realpath round trip.
func (c *Cache) AttachMountinfo(t *mount.Table) { c.mountinfo = t }

// ResolvePath implements "resolve_path".
func (c *Cache) ResolvePath(path string) (string, error) {
	if v, ok := c.pathCache[path]; ok {
		return v, nil
	}
	if c.mountinfo != nil {
		for _, r := range c.mountinfo.Records {
			if r.Target == path {
				c.pathCache[path] = path
				return path, nil
			}
		}
	}
	if c.realpath == nil {
		c.pathCache[path] = path
		return path, nil
	}
	resolved, err := c.realpath(path)
	if err != nil {
		return "", errors.New(errors.NotFound, "resolve path %s: %v", path, err)
	}
	c.pathCache[path] = resolved
	return resolved, nil
}

func tagKey(tag, value string) string { return tag + "=" + value }

// ResolveTag implements "resolve_tag".
func (c *Cache) ResolveTag(tag, value string) (string, error) {
	if !validTags[tag] {
		return "", errors.New(errors.Unsupported, "unknown tag name %q", tag)
	}
	key := tagKey(tag, value)
	if v, ok := c.tagCache[key]; ok {
		return v, nil
	}
	if c.probe == nil {
		return "", errors.New(errors.NotFound, "no identity backend configured for tag %s", key)
	}
	// Without an enumeration collaborator, delegate the match to the
	// backend directly: probe is expected to resolve spec->device for
	// single-tag lookups the way libblkid's cache does.
	tags, err := c.probe("", []string{tag})
	if err != nil {
		return "", errors.New(errors.NotFound, "resolve tag %s: %v", key, err)
	}
	dev, ok := tags[value]
	if !ok {
		return "", errors.New(errors.NotFound, "no device with %s", key)
	}
	c.tagCache[key] = dev
	return dev, nil
}

// ResolveSpec implements "resolve_spec": parses spec as `<TAG>=value`
// or falls back to treating it as a path.
func (c *Cache) ResolveSpec(spec string) (string, error) {
	if idx := strings.Index(spec, "="); idx > 0 {
		tag := spec[:idx]
		if validTags[tag] {
			return c.ResolveTag(tag, spec[idx+1:])
		}
	}
	return c.ResolvePath(spec)
}

// ReadTags implements "read_tags": probes device at most once per
// process lifetime, tracked by a per-device flag in probedOnce.
func (c *Cache) ReadTags(device string) (map[string]string, error) {
	if tags, ok := c.probedTags[device]; ok {
		return tags, nil
	}
	if c.probedOnce[device] {
		return nil, nil
	}
	c.probedOnce[device] = true
	if c.probe == nil {
		return nil, errors.New(errors.NotFound, "no identity backend configured")
	}
	tags, err := c.probe(device, []string{"LABEL", "UUID", "TYPE", "PARTUUID", "PARTLABEL"})
	if err != nil {
		return nil, errors.New(errors.Io, "probe %s: %v", device, err)
	}
	c.probedTags[device] = tags
	for name, val := range tags {
		if validTags[name] {
			c.tagCache[tagKey(name, val)] = device
		}
	}
	return tags, nil
}

// Pretty implements "pretty": canonicalizes path, then for a loop
// device substitutes the backing file; the empty path becomes "none".
func (c *Cache) Pretty(path string) (string, error) {
	if path == "" {
		return "none", nil
	}
	resolved, err := c.ResolvePath(path)
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(filepath.Base(resolved), "loop") && c.loop != nil {
		if backing, ok, lerr := c.loop(resolved); lerr == nil && ok {
			return backing, nil
		}
	}
	return resolved, nil
}
