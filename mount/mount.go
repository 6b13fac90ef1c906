// Copyright © 2018 Intel Corporation
//
// SPDX-License-Identifier: GPL-3.0-only

// Package mount implements the mount-table parser:
// converts fstab, mtab, mountinfo, utab and swaps text into a common
// Table/Record model, with the mangle/unmangle escape codec the
// updater (package mount/update) uses for the inverse direction.
package mount

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/clearlinux/partkit/errors"
)

// Format identifies which of the five text table shapes to parse.
type Format int

const (
	// Guess peeks at the first non-comment line to pick a format.
	Guess Format = iota
	Fstab
	Mtab
	Mountinfo
	Utab
	Swaps
)

const deletedSuffix = "\\040(deleted)"

// Record is one mount-table entry. Not every field applies to every
// format; callers check the format the Table was parsed as.
type Record struct {
	// fstab/mtab/mountinfo
	Source  string
	Target  string
	FSType  string
	Options string
	Freq    int
	Passno  int

	// mountinfo
	ID         int
	ParentID   int
	Major      int
	Minor      int
	Root       string
	VFSOptions string
	FSOptions  string

	// utab
	BindSrc string
	Attrs   string

	// swaps
	SwapSize     int
	SwapUsed     int
	SwapPriority int

	TargetDeleted bool
	Merged        bool

	raw string
}

// Table is an ordered sequence of Records plus preserved intro/
// trailing comment blocks.
type Table struct {
	Format  Format
	Records []Record
	Intro   []string
	Trailer []string
}

// ErrorCallback is invoked with (table, filename, line) on a syntax
// error. Return <0 aborts, 0 continues, >0 skips the line. The zero
// value (nil) behaves as "always skip".
type ErrorCallback func(t *Table, filename string, line int) int

// FilterCallback drops lines for which it returns false before parsing.
type FilterCallback func(line string) bool

func unescapeField(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' {
			b.WriteByte(s[i])
			continue
		}
		if i+1 >= len(s) {
			b.WriteByte('\\')
			break
		}
		switch s[i+1] {
		case ' ':
			b.WriteByte(' ')
			i++
		case 't':
			b.WriteByte('\t')
			i++
		case 'n':
			b.WriteByte('\n')
			i++
		case '\\':
			b.WriteByte('\\')
			i++
		default:
			if i+3 < len(s) && isOctalDigit(s[i+1]) && isOctalDigit(s[i+2]) && isOctalDigit(s[i+3]) {
				v, err := strconv.ParseUint(s[i+1:i+4], 8, 8)
				if err == nil {
					b.WriteByte(byte(v))
					i += 3
					continue
				}
			}
			b.WriteByte('\\')
		}
	}
	return b.String()
}

func isOctalDigit(c byte) bool { return c >= '0' && c <= '7' }

// Mangle is the inverse of unescapeField, used by the updater when
// writing fields back out.
func Mangle(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case ' ':
			b.WriteString(`\040`)
		case '\t':
			b.WriteString(`\011`)
		case '\n':
			b.WriteString(`\012`)
		case '\\':
			b.WriteString(`\134`)
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

func cleanTarget(r *Record) {
	// Targets are already unescaped here, so match the unescaped marker.
	suffix := unescapeField(deletedSuffix)
	if strings.HasSuffix(r.Target, suffix) {
		r.Target = strings.TrimSuffix(r.Target, suffix)
		r.TargetDeleted = true
	}
}

func detectFormat(firstLine string) Format {
	fields := strings.Fields(firstLine)
	if len(fields) >= 2 {
		if _, err := strconv.Atoi(fields[0]); err == nil {
			if _, err := strconv.Atoi(fields[1]); err == nil {
				return Mountinfo
			}
		}
	}
	if strings.HasPrefix(firstLine, "Filename\t") {
		return Swaps
	}
	return Fstab
}

// Parse reads r as format (or detects it with Guess), invoking onError
// for malformed lines and dropping lines filter rejects.
func Parse(r io.Reader, format Format, onError ErrorCallback, filter FilterCallback) (*Table, error) {
	// Procfs files are non-seekable and produce a fresh snapshot per
	// open; slurp to memory first.
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.New(errors.Io, "read mount table: %v", err)
	}

	t := &Table{Format: format}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	lineNo := 0
	seenContent := false
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			if !seenContent {
				t.Intro = append(t.Intro, line)
			} else {
				t.Trailer = append(t.Trailer, line)
			}
			continue
		}

		if format == Guess && !seenContent {
			t.Format = detectFormat(trimmed)
			format = t.Format
		}
		if format == Swaps && !seenContent {
			seenContent = true
			continue // header line
		}

		if filter != nil && !filter(trimmed) {
			continue
		}

		rec, perr := parseLine(format, trimmed)
		if perr != nil {
			action := 0
			if onError != nil {
				action = onError(t, "", lineNo)
			}
			if action < 0 {
				return t, errors.New(errors.ParseError, "%s:%d: %v", "", lineNo, "aborted by error callback")
			}
			if action > 0 {
				continue
			}
			continue // default: skip
		}
		cleanTarget(&rec)
		rec.raw = trimmed
		t.Records = append(t.Records, rec)
		t.Trailer = nil
		seenContent = true
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.New(errors.Io, "scan mount table: %v", err)
	}
	return t, nil
}

func parseLine(format Format, line string) (Record, error) {
	switch format {
	case Fstab, Mtab:
		return parseFstabLine(line)
	case Mountinfo:
		return parseMountinfoLine(line)
	case Utab:
		return parseUtabLine(line)
	case Swaps:
		return parseSwapsLine(line)
	default:
		return Record{}, errors.New(errors.ParseError, "unresolved table format")
	}
}

func parseFstabLine(line string) (Record, error) {
	f := strings.Fields(line)
	if len(f) < 4 {
		return Record{}, errors.New(errors.ParseError, "fstab line has fewer than 4 fields")
	}
	r := Record{
		Source:  unescapeField(f[0]),
		Target:  unescapeField(f[1]),
		FSType:  f[2],
		Options: f[3],
	}
	if len(f) > 4 {
		v, err := strconv.Atoi(f[4])
		if err != nil {
			return Record{}, errors.New(errors.ParseError, "invalid freq field %q", f[4])
		}
		r.Freq = v
	}
	if len(f) > 5 {
		v, err := strconv.Atoi(f[5])
		if err != nil {
			return Record{}, errors.New(errors.ParseError, "invalid passno field %q", f[5])
		}
		r.Passno = v
	}
	return r, nil
}

func parseMountinfoLine(line string) (Record, error) {
	sepIdx := strings.Index(line, " - ")
	if sepIdx < 0 {
		return Record{}, errors.New(errors.ParseError, "mountinfo line missing \" - \" separator")
	}
	head := strings.Fields(line[:sepIdx])
	tail := strings.Fields(line[sepIdx+3:])
	if len(head) < 6 || len(tail) < 3 {
		return Record{}, errors.New(errors.ParseError, "mountinfo line has too few fields")
	}

	id, err1 := strconv.Atoi(head[0])
	parent, err2 := strconv.Atoi(head[1])
	majmin := strings.SplitN(head[2], ":", 2)
	if err1 != nil || err2 != nil || len(majmin) != 2 {
		return Record{}, errors.New(errors.ParseError, "malformed mountinfo id/parent/major:minor")
	}
	major, err3 := strconv.Atoi(majmin[0])
	minor, err4 := strconv.Atoi(majmin[1])
	if err3 != nil || err4 != nil {
		return Record{}, errors.New(errors.ParseError, "malformed mountinfo major:minor %q", head[2])
	}

	r := Record{
		ID:         id,
		ParentID:   parent,
		Major:      major,
		Minor:      minor,
		Root:       unescapeField(head[3]),
		Target:     unescapeField(head[4]),
		VFSOptions: head[5],
		FSType:     tail[0],
		Source:     unescapeField(tail[1]),
		FSOptions:  tail[2],
	}
	return r, nil
}

func parseUtabLine(line string) (Record, error) {
	var r Record
	for _, tok := range strings.Fields(line) {
		kv := strings.SplitN(tok, "=", 2)
		if len(kv) != 2 {
			return Record{}, errors.New(errors.ParseError, "malformed utab token %q", tok)
		}
		val := unescapeField(strings.Trim(kv[1], `"`))
		switch kv[0] {
		case "SRC":
			r.Source = val
		case "TARGET":
			r.Target = val
		case "ROOT":
			r.Root = val
		case "BINDSRC":
			r.BindSrc = val
		case "OPTS":
			r.Options = val
		case "ATTRS":
			r.Attrs = val
		default:
			return Record{}, errors.New(errors.ParseError, "unknown utab key %q", kv[0])
		}
	}
	return r, nil
}

func parseSwapsLine(line string) (Record, error) {
	f := strings.Fields(line)
	if len(f) < 3 {
		return Record{}, errors.New(errors.ParseError, "swaps line has fewer than 3 fields")
	}
	r := Record{Source: f[0], FSType: f[1]}
	size, err := strconv.Atoi(f[2])
	if err != nil {
		return Record{}, errors.New(errors.ParseError, "invalid swap size %q", f[2])
	}
	r.SwapSize = size
	if len(f) > 3 {
		if v, err := strconv.Atoi(f[3]); err == nil {
			r.SwapUsed = v
		}
	}
	if len(f) > 4 {
		if v, err := strconv.Atoi(f[4]); err == nil {
			r.SwapPriority = v
		}
	}
	return r, nil
}

// optionKey returns the part of a single mount-option token before its
// "=" value, used to de-duplicate merged option lists by name.
func optionKey(opt string) string {
	if i := strings.IndexByte(opt, '='); i >= 0 {
		return opt[:i]
	}
	return opt
}

// MergedOptions combines a mountinfo record's VFSOptions and FSOptions
// into the single comma-separated string libmount calls the merged
// optstr: VFS options first, then FS options whose name does not
// already appear among them.
func MergedOptions(r Record) string {
	var merged []string
	seen := make(map[string]bool)

	for _, opt := range strings.Split(r.VFSOptions, ",") {
		if opt == "" {
			continue
		}
		merged = append(merged, opt)
		seen[optionKey(opt)] = true
	}
	for _, opt := range strings.Split(r.FSOptions, ",") {
		if opt == "" || seen[optionKey(opt)] {
			continue
		}
		merged = append(merged, opt)
		seen[optionKey(opt)] = true
	}
	return strings.Join(merged, ",")
}

// Write renders t back out in its own format, using Mangle on fields
// that need it (fstab/mtab/mountinfo).
func Write(w io.Writer, t *Table) error {
	bw := bufio.NewWriter(w)
	for _, line := range t.Intro {
		fmt.Fprintln(bw, line)
	}
	for _, r := range t.Records {
		switch t.Format {
		case Fstab, Mtab:
			fmt.Fprintf(bw, "%s %s %s %s %d %d\n",
				Mangle(r.Source), Mangle(r.Target), r.FSType, r.Options, r.Freq, r.Passno)
		case Mountinfo:
			fmt.Fprintf(bw, "%d %d %d:%d %s %s %s - %s %s %s\n",
				r.ID, r.ParentID, r.Major, r.Minor, Mangle(r.Root), Mangle(r.Target),
				r.VFSOptions, r.FSType, Mangle(r.Source), r.FSOptions)
		case Utab:
			fmt.Fprintf(bw, "SRC=%s TARGET=%s ROOT=%s BINDSRC=%s OPTS=%s ATTRS=%s\n",
				Mangle(r.Source), Mangle(r.Target), Mangle(r.Root), Mangle(r.BindSrc), r.Options, r.Attrs)
		case Swaps:
			fmt.Fprintf(bw, "%s %s %d %d %d\n", r.Source, r.FSType, r.SwapSize, r.SwapUsed, r.SwapPriority)
		}
	}
	for _, line := range t.Trailer {
		fmt.Fprintln(bw, line)
	}
	return bw.Flush()
}
