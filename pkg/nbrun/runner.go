// Copyright 2020 VMware, Inc.
// SPDX-License-Identifier: BSD-2-Clause

// Package nbrun executes notebooks in place and saves them back without execution metadata.
package nbrun

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"cikit.io/pkg/nbexec"
	"cikit.io/pkg/notebook"
)

// DefaultDir is the directory notebook names are resolved against.
const DefaultDir = "notebooks"

// Status is the outcome of running one notebook.
type Status int

const (
	Succeeded Status = iota
	NotFound
	Invalid
	ExecutionFailed
	WriteFailed
)

func (s Status) String() string {
	switch s {
	case Succeeded:
		return "ok"
	case NotFound:
		return "not found"
	case Invalid:
		return "invalid"
	case ExecutionFailed:
		return "execution failed"
	case WriteFailed:
		return "write failed"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Result reports what happened to one notebook.
type Result struct {
	Name   string
	Path   string
	Status Status
	Err    error
}

// OK reports whether the notebook was executed and saved.
func (r Result) OK() bool { return r.Status == Succeeded }

func (r Result) String() string {
	if r.Err != nil {
		return fmt.Sprintf("%s: %s: %v", r.Name, r.Status, r.Err)
	}
	return fmt.Sprintf("%s: %s", r.Name, r.Status)
}

var errNoExecutor = errors.New("no executor configured")

// Runner executes notebooks found in Dir.
type Runner struct {
	Dir      string
	Executor nbexec.Executor
	// Timeout bounds each cell. Zero means nbexec.DefaultTimeout, negative disables it.
	Timeout time.Duration
	Kernel  string
	Logger  *slog.Logger
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return r.Logger
}

// Run executes the notebook called name, strips its execution metadata and writes
// it back over the original file. A failed run leaves the file untouched.
func (r *Runner) Run(ctx context.Context, name string) Result {
	dir := r.Dir
	if dir == "" {
		dir = DefaultDir
	}
	res := Result{Name: name, Path: filepath.Join(dir, name)}
	log := r.logger().With("notebook", res.Path)

	fail := func(s Status, err error) Result {
		res.Status, res.Err = s, err
		log.Error("notebook run failed", "status", s.String(), "err", err)
		return res
	}

	nb, err := notebook.ReadFile(res.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return fail(NotFound, err)
	} else if err != nil {
		return fail(Invalid, err)
	}

	if r.Executor == nil {
		return fail(ExecutionFailed, errNoExecutor)
	}
	workDir, err := filepath.Abs(filepath.Dir(res.Path))
	if err != nil {
		return fail(ExecutionFailed, err)
	}
	timeout := r.Timeout
	if timeout == 0 {
		timeout = nbexec.DefaultTimeout
	}
	kernel := r.Kernel
	if kernel == "" {
		kernel = nbexec.DefaultKernel
	}

	log.Debug("executing", "kernel", kernel, "timeout", timeout, "workdir", workDir)
	start := time.Now()
	executed, err := r.Executor.Execute(ctx, nb, nbexec.Options{Timeout: timeout, Kernel: kernel, WorkDir: workDir})
	if err == nil && executed == nil {
		err = fmt.Errorf("%w: no notebook returned", nbexec.ErrExecution)
	}
	if err != nil {
		return fail(ExecutionFailed, err)
	}

	if err := notebook.Clean(executed).WriteFile(res.Path); err != nil {
		return fail(WriteFailed, err)
	}
	log.Info("notebook executed", "elapsed", time.Since(start).Round(time.Millisecond))
	res.Status = Succeeded
	return res
}

// RunAll runs each notebook in turn. A failing notebook doesn't stop the others;
// results are in the same order as names.
func (r *Runner) RunAll(ctx context.Context, names []string) []Result {
	res := make([]Result, 0, len(names))
	for _, n := range names {
		res = append(res, r.Run(ctx, n))
	}
	return res
}

// Failed returns the results that are not OK.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.OK() {
			failed = append(failed, r)
		}
	}
	return failed
}
