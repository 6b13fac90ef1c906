// Copyright © 2018 Intel Corporation
//
// SPDX-License-Identifier: GPL-3.0-only

// Package script implements the sfdisk-style reader/writer: a text form of a Context's headers and partition list,
// parsed into a Script value and applied by appending add_partition
// calls in order, or emitted back out in canonical form.
package script

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/clearlinux/partkit/errors"
	"github.com/clearlinux/partkit/partition"
	"github.com/clearlinux/partkit/ptable"
	"github.com/clearlinux/partkit/utils"
)

// typeAlias maps the short letters scripts may use for Type= values.
var typeAlias = map[string]ptable.Parttype{
	"L": {Kind: ptable.DOS, Code: 0x83},
	"S": {Kind: ptable.DOS, Code: 0x82},
	"E": {Kind: ptable.DOS, Code: 0x0F},
	"U": {Kind: ptable.GPT, GUID: "C12A7328-F81F-11D2-BA4B-00A0C93EC93B"},
	"R": {Kind: ptable.DOS, Code: 0xFD},
	"V": {Kind: ptable.DOS, Code: 0x8E},
}

// Line is one parsed partition entry, prior to resolving against a
// specific Context's label kind.
type Line struct {
	Device   string
	Start    *uint64
	Size     string // raw size hint text, "" means expand to remaining free space
	Type     string
	UUID     string
	Name     string
	Bootable bool
}

// Script is the parsed form of an sfdisk-style document: ordered
// headers plus ordered partition lines.
type Script struct {
	Headers map[string]string
	Order   []string // header keys in file order, for faithful Write
	Lines   []Line
}

var knownHeaders = map[string]bool{
	"label": true, "label-id": true, "unit": true, "first-lba": true,
	"last-lba": true, "table-length": true, "sector-size": true, "grain": true,
}

// ErrorCallback is invoked for a partition line that failed to parse;
// returning true continues to the next line, false aborts the read.
type ErrorCallback func(lineNo int, text string, err error) (skip bool)

// Parse reads an sfdisk-style document: header lines "key: value",
// a blank separator, then partition lines.
func Parse(r io.Reader, onError ErrorCallback) (*Script, error) {
	s := &Script{Headers: make(map[string]string)}
	scanner := bufio.NewScanner(r)

	lineNo := 0
	inHeaders := true
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		if inHeaders {
			if trimmed == "" {
				inHeaders = false
				continue
			}
			if strings.HasPrefix(trimmed, "#") {
				continue
			}
			key, val, err := parseHeaderLine(trimmed)
			if err != nil {
				return nil, errors.New(errors.ParseError, "script:%d: %v", lineNo, err)
			}
			if !knownHeaders[key] {
				// Unknown headers are skipped without a warning, not fatal.
				continue
			}
			s.Headers[key] = val
			s.Order = append(s.Order, key)
			continue
		}

		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		pl, err := parseLine(trimmed)
		if err != nil {
			skip := true
			if onError != nil {
				skip = onError(lineNo, trimmed, err)
			}
			if !skip {
				return nil, errors.New(errors.ParseError, "script:%d: %v", lineNo, err)
			}
			continue
		}
		s.Lines = append(s.Lines, pl)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.New(errors.Io, "scan script: %v", err)
	}
	return s, nil
}

func parseHeaderLine(line string) (string, string, error) {
	idx := strings.Index(line, ":")
	if idx < 0 {
		return "", "", errors.New(errors.ParseError, "header line missing ':' %q", line)
	}
	key := strings.TrimSpace(line[:idx])
	val := strings.TrimSpace(line[idx+1:])
	return key, val, nil
}

// parseLine accepts the keyword form "device : start=N, size=N,
// type=X, uuid=U, name=\"S\", bootable".
func parseLine(line string) (Line, error) {
	parts := strings.SplitN(line, ":", 2)
	if len(parts) != 2 {
		return Line{}, errors.New(errors.ParseError, "partition line missing ':' separator")
	}
	pl := Line{Device: strings.TrimSpace(parts[0])}

	for _, tok := range splitFields(parts[1]) {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if tok == "bootable" {
			pl.Bootable = true
			continue
		}
		kv := strings.SplitN(tok, "=", 2)
		if len(kv) != 2 {
			return Line{}, errors.New(errors.ParseError, "unknown keyword %q", tok)
		}
		key := strings.TrimSpace(kv[0])
		val := strings.Trim(strings.TrimSpace(kv[1]), `"`)
		switch key {
		case "start":
			v, err := strconv.ParseUint(val, 10, 64)
			if err != nil {
				return Line{}, errors.New(errors.ParseError, "invalid start %q", val)
			}
			pl.Start = &v
		case "size":
			pl.Size = val
		case "type":
			pl.Type = val
		case "uuid":
			pl.UUID = val
		case "name":
			pl.Name = val
		default:
			return Line{}, errors.New(errors.ParseError, "unknown keyword %q", key)
		}
	}
	return pl, nil
}

// splitFields splits a comma-separated attribute list, keeping commas
// inside double quotes intact (names may contain them).
func splitFields(s string) []string {
	var out []string
	var cur strings.Builder
	inQuote := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			inQuote = !inQuote
			cur.WriteByte(c)
		case c == ',' && !inQuote:
			out = append(out, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

// resolveType maps a script Type string onto a Parttype for the
// label kind active in ctx. GPT accepts a bare GUID; other labels
// accept two hex digits; both accept the short aliases.
func resolveType(kind ptable.Kind, raw string) (ptable.Parttype, error) {
	if raw == "" {
		return ptable.Parttype{}, nil
	}
	if t, ok := typeAlias[strings.ToUpper(raw)]; ok {
		return t, nil
	}
	if kind == ptable.GPT {
		return ptable.Parttype{Kind: ptable.GPT, GUID: strings.ToUpper(raw)}, nil
	}
	v, err := strconv.ParseUint(strings.TrimPrefix(raw, "0x"), 16, 8)
	if err != nil {
		return ptable.Parttype{}, errors.New(errors.ParseError, "invalid type %q", raw)
	}
	return ptable.Parttype{Kind: kind, Code: uint8(v)}, nil
}

// Apply implements the reader's Context side: creates a label from
// the headers (when "label" is present and ctx has none yet), then
// appends every Line via add_partition in order.
func Apply(ctx *partition.Context, s *Script) error {
	if labelName, ok := s.Headers["label"]; ok && ctx.Label() == nil {
		kind, ok := ptable.ParseKind(labelName)
		if !ok {
			return errors.New(errors.ParseError, "unknown label kind %q", labelName)
		}
		if err := ctx.CreateLabel(kind); err != nil {
			return err
		}
	}
	if ctx.Label() == nil {
		return errors.New(errors.InvalidLabel, "script applies no label and the context has none")
	}

	for i, pl := range s.Lines {
		t, err := resolveType(ctx.Label().Kind(), pl.Type)
		if err != nil {
			return errors.New(errors.ParseError, "partition %d: %v", i, err)
		}
		spec := partition.AddSpec{
			Start:    pl.Start,
			Type:     t,
			Name:     pl.Name,
			UUID:     pl.UUID,
			Bootable: pl.Bootable,
		}
		if pl.Size == "" {
			spec.Max = true
		} else {
			hint, err := utils.ParseSize(pl.Size)
			if err != nil {
				return errors.New(errors.ParseError, "partition %d: %v", i, err)
			}
			spec.Size = hint
		}
		if _, err := ctx.AddPartition(spec); err != nil {
			return errors.New(errors.ParseError, "partition %d: %v", i, err)
		}
	}
	return nil
}

// Dump implements the writer's Context side: builds a Script from
// ctx's current label for Write to render.
func Dump(ctx *partition.Context) *Script {
	s := &Script{Headers: make(map[string]string)}
	if ctx.Label() == nil {
		return s
	}
	info := ctx.Info()
	s.Headers["label"] = ctx.Label().Kind().String()
	s.Headers["unit"] = "sectors"
	s.Headers["first-lba"] = strconv.FormatUint(info.FirstUsable, 10)
	s.Headers["last-lba"] = strconv.FormatUint(info.LastUsable, 10)
	s.Headers["sector-size"] = strconv.FormatUint(info.LogicalSectorSize, 10)
	s.Headers["grain"] = strconv.FormatUint(info.AlignmentGrain, 10)
	s.Order = []string{"label", "unit", "first-lba", "last-lba", "sector-size", "grain"}

	devicePath := ctx.DevicePath()
	for _, p := range ctx.ListPartitions().SortedByStart() {
		start := p.Start
		pl := Line{
			Device:   partitionDeviceName(devicePath, p.Index),
			Start:    &start,
			Size:     strconv.FormatUint(p.Size, 10),
			Type:     p.Type.String(),
			UUID:     p.UUID,
			Name:     p.Name,
			Bootable: p.Bootable,
		}
		s.Lines = append(s.Lines, pl)
	}
	return s
}

// partitionDeviceName builds the conventional partition device path
// for index on devicePath: a trailing-digit base name (nvme0n1,
// loop0) gets a "p" separator before the number, everything else
// (sda) does not.
func partitionDeviceName(devicePath string, index int) string {
	if devicePath == "" {
		return fmt.Sprintf("%d", index)
	}
	sep := ""
	if n := len(devicePath); n > 0 && devicePath[n-1] >= '0' && devicePath[n-1] <= '9' {
		sep = "p"
	}
	return fmt.Sprintf("%s%s%d", devicePath, sep, index)
}

// Write renders s in canonical form with LF terminators.
func Write(w io.Writer, s *Script) error {
	bw := bufio.NewWriter(w)
	for _, key := range s.Order {
		fmt.Fprintf(bw, "%s: %s\n", key, s.Headers[key])
	}
	fmt.Fprint(bw, "\n")
	for _, pl := range s.Lines {
		var attrs []string
		if pl.Start != nil {
			attrs = append(attrs, fmt.Sprintf("start= %d", *pl.Start))
		}
		if pl.Size != "" {
			attrs = append(attrs, fmt.Sprintf("size= %s", pl.Size))
		}
		if pl.Type != "" {
			attrs = append(attrs, fmt.Sprintf("type=%s", pl.Type))
		}
		if pl.Name != "" {
			attrs = append(attrs, fmt.Sprintf("name=\"%s\"", pl.Name))
		}
		if pl.UUID != "" {
			attrs = append(attrs, fmt.Sprintf("uuid=%s", pl.UUID))
		}
		if pl.Bootable {
			attrs = append(attrs, "bootable")
		}
		fmt.Fprintf(bw, "%s : %s\n", pl.Device, strings.Join(attrs, ", "))
	}
	return bw.Flush()
}
