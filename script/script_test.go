// Copyright © 2018 Intel Corporation
//
// SPDX-License-Identifier: GPL-3.0-only

package script

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/clearlinux/partkit/conf"
	"github.com/clearlinux/partkit/partition"
	"github.com/clearlinux/partkit/ptable"
	"github.com/clearlinux/partkit/utils"
)

func mustParseSize(t *testing.T, s string) utils.SizeHint {
	t.Helper()
	h, err := utils.ParseSize(s)
	if err != nil {
		t.Fatalf("ParseSize(%q): %v", s, err)
	}
	return h
}

func makeImage(t *testing.T, sectors uint64) string {
	t.Helper()
	f, err := os.CreateTemp("", "partkit-script-")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	path := f.Name()
	t.Cleanup(func() { os.Remove(path) })
	if err := f.Truncate(int64(sectors * 512)); err != nil {
		t.Fatalf("Truncate: %v", err)
	}
	f.Close()
	return path
}

func TestParseHeadersAndLines(t *testing.T) {
	doc := "label: gpt\nunit: sectors\n\n1 : start=2048, size=+1G, type=L, name=\"root fs\", bootable\n"
	s, err := Parse(strings.NewReader(doc), nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if s.Headers["label"] != "gpt" {
		t.Fatalf("expected label header gpt, got %+v", s.Headers)
	}
	if len(s.Lines) != 1 {
		t.Fatalf("expected 1 partition line, got %d", len(s.Lines))
	}
	pl := s.Lines[0]
	if pl.Start == nil || *pl.Start != 2048 || pl.Size != "+1G" || pl.Type != "L" || pl.Name != "root fs" || !pl.Bootable {
		t.Fatalf("unexpected parsed line: %+v", pl)
	}
}

func TestParseSkipsBadLineWhenCallbackSkips(t *testing.T) {
	doc := "label: dos\n\n1 : start=2048, size=4096, type=L\nnonsense\n2 : start=8192, size=4096, type=L\n"
	skipped := 0
	s, err := Parse(strings.NewReader(doc), func(lineNo int, text string, perr error) bool {
		skipped++
		return true
	})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if skipped != 1 {
		t.Fatalf("expected 1 skipped line, got %d", skipped)
	}
	if len(s.Lines) != 2 {
		t.Fatalf("expected 2 valid lines, got %d", len(s.Lines))
	}
}

func TestApplyThenDumpRoundTrip(t *testing.T) {
	path := makeImage(t, 204800)
	ctx, err := partition.Assign(path, false, conf.LockNever, nil)
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	defer ctx.Close()

	doc := "label: dos\n\n1 : size=4096, type=L\n2 : size=4096, type=S\n"
	s, err := Parse(strings.NewReader(doc), nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := Apply(ctx, s); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(ctx.ListPartitions().Partitions) != 2 {
		t.Fatalf("expected 2 partitions after apply, got %d", len(ctx.ListPartitions().Partitions))
	}

	dumped := Dump(ctx)
	var buf bytes.Buffer
	if err := Write(&buf, dumped); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !strings.Contains(buf.String(), "label: dos") {
		t.Fatalf("expected label header in dump, got %q", buf.String())
	}
}

func TestDumpCanonicalForm(t *testing.T) {
	path := makeImage(t, 20480)
	ctx, err := partition.Assign(path, false, conf.LockNever, nil)
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	defer ctx.Close()
	if err := ctx.CreateLabel(ptable.GPT); err != nil {
		t.Fatalf("CreateLabel: %v", err)
	}

	start := uint64(2048)
	if _, err := ctx.AddPartition(partition.AddSpec{
		Start: &start,
		Size:  mustParseSize(t, "10240"),
		Type:  ptable.Parttype{Kind: ptable.GPT, GUID: "C12A7328-F81F-11D2-BA4B-00A0C93EC93B"},
		Name:  "ESP",
	}); err != nil {
		t.Fatalf("AddPartition: %v", err)
	}

	var buf bytes.Buffer
	if err := Write(&buf, Dump(ctx)); err != nil {
		t.Fatalf("Write: %v", err)
	}

	idx := strings.Index(buf.String(), ": start=")
	if idx < 0 {
		t.Fatalf("expected a partition line, got %q", buf.String())
	}
	got := buf.String()[idx:]
	want := ": start= 2048, size= 10240, type=C12A7328-F81F-11D2-BA4B-00A0C93EC93B, name=\"ESP\""
	if !strings.HasPrefix(got, want) {
		t.Fatalf("partition line = %q, want prefix %q", got, want)
	}
}

func TestResolveTypeAliasesAndRaw(t *testing.T) {
	tp, err := resolveType(ptable.DOS, "L")
	if err != nil || tp.Code != 0x83 {
		t.Fatalf("resolveType(L): %+v, %v", tp, err)
	}
	tp, err = resolveType(ptable.DOS, "0x07")
	if err != nil || tp.Code != 0x07 {
		t.Fatalf("resolveType(0x07): %+v, %v", tp, err)
	}
	tp, err = resolveType(ptable.GPT, "0FC63DAF-8483-4772-8E79-3D69D8477DE4")
	if err != nil || tp.GUID != "0FC63DAF-8483-4772-8E79-3D69D8477DE4" {
		t.Fatalf("resolveType(GUID): %+v, %v", tp, err)
	}
}

func TestWriteQuotesNameWithSpaces(t *testing.T) {
	s := &Script{Headers: map[string]string{"label": "gpt"}, Order: []string{"label"}, Lines: []Line{
		{Device: "1", Name: "has space"},
	}}
	var buf bytes.Buffer
	if err := Write(&buf, s); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !strings.Contains(buf.String(), `name="has space"`) {
		t.Fatalf("expected quoted name, got %q", buf.String())
	}
}
