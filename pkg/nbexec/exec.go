// Copyright 2020 VMware, Inc.
// SPDX-License-Identifier: BSD-2-Clause

// Package nbexec executes every cell of a notebook by handing it to an external kernel runner.
package nbexec

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cikit.io/pkg/notebook"
)

const (
	// DefaultTimeout is the default per-cell timeout.
	DefaultTimeout = 600 * time.Second
	// DefaultKernel is the default kernel name.
	DefaultKernel = "python3"
)

// ErrExecution wraps every failure of the kernel runner: cell errors, kernel crashes and timeouts.
var ErrExecution = errors.New("notebook execution failed")

// Options configures one execution.
type Options struct {
	// Timeout bounds the execution of each cell. Zero or negative disables the timeout.
	Timeout time.Duration
	// Kernel is the kernel name, e.g. "python3".
	Kernel string
	// WorkDir is the kernel working directory; relative paths in the notebook resolve against it.
	WorkDir string
}

// An Executor runs all the cells of a notebook and returns the executed notebook.
type Executor interface {
	Execute(ctx context.Context, nb *notebook.Notebook, opts Options) (*notebook.Notebook, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, nb *notebook.Notebook, opts Options) (*notebook.Notebook, error)

// Execute implements Executor.
func (f ExecutorFunc) Execute(ctx context.Context, nb *notebook.Notebook, opts Options) (*notebook.Notebook, error) {
	return f(ctx, nb, opts)
}

// nbconvertArgs returns the nbconvert flags that execute a notebook file and print it to stdout.
func nbconvertArgs(opts Options, filename string) []string {
	timeout := -1
	if opts.Timeout > 0 {
		timeout = int((opts.Timeout + time.Second - 1) / time.Second)
	}
	kernel := opts.Kernel
	if kernel == "" {
		kernel = DefaultKernel
	}
	return []string{
		"--to", "notebook",
		"--execute",
		"--stdout",
		fmt.Sprintf("--ExecutePreprocessor.timeout=%d", timeout),
		fmt.Sprintf("--ExecutePreprocessor.kernel_name=%s", kernel),
		filename,
	}
}

// tail returns the last n lines of s, for error messages.
func tail(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
