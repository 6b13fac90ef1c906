// Copyright © 2018 Intel Corporation
//
// SPDX-License-Identifier: GPL-3.0-only

// Command partkit is a minimal sfdisk-style smoke-test harness driving
// the partition Context through the script reader/writer: it marshals
// flags and renders output, leaving every decision to the packages it calls.
package main

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	flag "github.com/spf13/pflag"
	"github.com/nightlyone/lockfile"
	yaml "gopkg.in/yaml.v2"

	"github.com/clearlinux/partkit/conf"
	"github.com/clearlinux/partkit/log"
	"github.com/clearlinux/partkit/partition"
	"github.com/clearlinux/partkit/ptable"
	"github.com/clearlinux/partkit/script"
)

func parseLabelFlag(s string) (ptable.Kind, bool) {
	return ptable.ParseKind(strings.ToLower(s))
}

type options struct {
	Device  string
	Dump    bool
	Apply   string
	Label   string
	YAML    bool
	LogFile string
}

func parseArgs() options {
	var o options
	flag.StringVar(&o.Device, "device", "", "block device or image path")
	flag.BoolVar(&o.Dump, "dump", false, "read the device's partition table and print it as a script")
	flag.StringVar(&o.Apply, "apply", "", "apply the sfdisk-style script at this path to --device")
	flag.StringVar(&o.Label, "label", "", "create this label kind before applying a script with no 'label:' header")
	flag.BoolVar(&o.YAML, "yaml", false, "render --dump output as YAML instead of script text")
	flag.StringVar(&o.LogFile, "log-file", "", "write logging to this file instead of stderr")
	flag.Parse()
	return o
}

// fatal and usageFatal report an error and exit: 0 success,
// 1 syntax/semantic error, 2 usage. partkit has no analogue to the
// mount-tool-specific 32/64 codes, since it only drives the partition
// engine.
func fatal(err error) {
	log.Error("%v", err)
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

func usageFatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(2)
}

func main() {
	o := parseArgs()
	if o.Device == "" {
		usageFatal(fmt.Errorf("--device is required"))
	}
	if o.LogFile != "" {
		if f, err := log.SetOutputFile(o.LogFile); err == nil {
			defer f.Close()
		}
	}

	lockPath := strings.TrimSuffix(o.Device, "/") + ".partkit.lock"
	lock, err := lockfile.New(lockPath)
	if err == nil {
		if lerr := lock.TryLock(); lerr == nil {
			defer func() { _ = lock.Unlock() }()
		}
		// A lock that cannot be acquired is ignored: the run, dump or
		// apply, goes on without it.
	}

	readOnly := o.Apply == ""
	ctx, err := partition.Assign(o.Device, readOnly, conf.LockNonBlocking, nil)
	if err != nil {
		fatal(err)
	}
	defer ctx.Close()

	if o.Apply != "" {
		data, err := os.ReadFile(o.Apply)
		if err != nil {
			fatal(err)
		}
		if o.Label != "" && ctx.Label() == nil {
			kind, ok := parseLabelFlag(o.Label)
			if !ok {
				usageFatal(fmt.Errorf("unknown label kind %q", o.Label))
			}
			if err := ctx.CreateLabel(kind); err != nil {
				fatal(err)
			}
		}
		s, err := script.Parse(bytes.NewReader(data), nil)
		if err != nil {
			fatal(err)
		}
		if err := script.Apply(ctx, s); err != nil {
			fatal(err)
		}
		if err := ctx.Write(); err != nil {
			fatal(err)
		}
		log.Info("applied %s to %s", o.Apply, o.Device)
		return
	}

	if o.Dump {
		s := script.Dump(ctx)
		if o.YAML {
			out, err := yaml.Marshal(s)
			if err != nil {
				fatal(err)
			}
			os.Stdout.Write(out)
			return
		}
		if err := script.Write(os.Stdout, s); err != nil {
			fatal(err)
		}
	}
}
