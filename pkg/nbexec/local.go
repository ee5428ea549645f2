// Copyright 2020 VMware, Inc.
// SPDX-License-Identifier: BSD-2-Clause

package nbexec

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"cikit.io/pkg/notebook"
)

const killGrace = 10 * time.Second

// Local executes notebooks with a locally installed "jupyter nbconvert".
type Local struct {
	// Command is the nbconvert invocation, defaults to {"jupyter", "nbconvert"}.
	Command []string
	// Stderr, if set, receives the runner diagnostics as they're produced.
	Stderr io.Writer
}

// Execute implements Executor.
//
// The notebook is saved to a temporary file inside opts.WorkDir so that the runner
// starts the kernel in that directory.
func (l *Local) Execute(ctx context.Context, nb *notebook.Notebook, opts Options) (*notebook.Notebook, error) {
	in, err := os.CreateTemp(opts.WorkDir, ".nbrun-*.ipynb")
	if err != nil {
		return nil, err
	}
	defer os.Remove(in.Name())

	if err := nb.Write(in); err != nil {
		in.Close()
		return nil, err
	}
	if err := in.Close(); err != nil {
		return nil, err
	}

	command := l.Command
	if len(command) == 0 {
		command = []string{"jupyter", "nbconvert"}
	}
	args := append(append([]string{}, command[1:]...), nbconvertArgs(opts, in.Name())...)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, command[0], args...)
	cmd.Dir = opts.WorkDir
	// kernels may outlive a killed runner and keep the output pipes open.
	cmd.WaitDelay = killGrace
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if l.Stderr != nil {
		cmd.Stderr = io.MultiWriter(&stderr, l.Stderr)
	}

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v: %s", ErrExecution, err, tail(stderr.String(), 20))
	}

	res, err := notebook.Read(&stdout)
	if err != nil {
		return nil, fmt.Errorf("%w: reading executed notebook: %v", ErrExecution, err)
	}
	return res, nil
}
