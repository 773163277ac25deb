// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/intuitivelabs/mallocs/flmalloc"
	"github.com/intuitivelabs/mallocs/script"
	"github.com/intuitivelabs/mallocs/segment"
)

var (
	runSize     int
	runImplicit bool
	runCheck    bool
	runDump     bool
)

func init() {
	cmd := newRunCmd()
	cmd.Flags().IntVar(&runSize, "size", 1<<20, "segment size in bytes")
	cmd.Flags().BoolVar(&runImplicit, "implicit", false,
		"use the implicit variant (no free list, no coalescing)")
	cmd.Flags().BoolVar(&runCheck, "check", false,
		"validate the heap after every operation")
	cmd.Flags().BoolVar(&runDump, "dump", false,
		"dump the allocator status after the script")
	rootCmd.AddCommand(cmd)
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <script>",
		Short: "Execute an allocation script",
		Long: `The run command reserves a fresh segment, initialises the
allocator on it and executes the script's a/r/f operations in order.

Example:
  mallocctl run scripts/pattern.alloc
  mallocctl run --size 4096 --check scripts/pattern.alloc
  mallocctl run --implicit scripts/pattern.alloc`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScript(args[0])
		},
	}
}

func runScript(path string) error {
	ops, err := script.ParseFile(path)
	if err != nil {
		return err
	}

	mem, release, err := segment.Reserve(runSize)
	if err != nil {
		return err
	}
	defer release()

	opts := flmalloc.MDefaultOptions
	if runImplicit {
		opts |= flmalloc.MImplicit
	}
	if verbose {
		opts |= flmalloc.MDebug
	}

	var m flmalloc.FLMalloc
	if !m.Init(mem, opts) {
		return fmt.Errorf("segment of %d bytes: %w", runSize, flmalloc.ErrInit)
	}

	r := script.NewRunner(&m)
	r.Check = runCheck
	if err := r.Run(ops); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if !m.Valid() {
		return fmt.Errorf("%s: %w", path, script.ErrCorrupt)
	}

	u := m.MUsage()
	printInfo("%s: %d op(s), %d live allocation(s)\n", path, r.Executed, r.Live())
	printInfo("used %s of %s, peak %s (with overhead)\n",
		humanize.Bytes(u.Used), humanize.Bytes(m.Size()),
		humanize.Bytes(u.MaxRealUsed))
	if runDump {
		m.DumpStatus()
	}
	return nil
}
