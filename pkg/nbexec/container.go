// Copyright 2020 VMware, Inc.
// SPDX-License-Identifier: BSD-2-Clause

package nbexec

import (
	"context"
	"fmt"
	"path"
	"strings"

	"dagger.io/dagger"

	"cikit.io/pkg/notebook"
)

// DefaultMountPoint is where Container mounts the notebook directory.
const DefaultMountPoint = "/home/jovyan/work"

// Container executes notebooks with "jupyter nbconvert" inside a container image,
// typically the very image whose notebooks are being validated.
type Container struct {
	Client *dagger.Client
	// Image is the image reference to run, e.g. "quay.io/jupyter/base-notebook:latest".
	Image string
	// MountPoint is the container directory the notebook working directory is mounted at.
	MountPoint string
}

// Execute implements Executor.
func (c *Container) Execute(ctx context.Context, nb *notebook.Notebook, opts Options) (*notebook.Notebook, error) {
	if c.Client == nil {
		return nil, fmt.Errorf("%w: no dagger client", ErrExecution)
	}
	if c.Image == "" {
		return nil, fmt.Errorf("%w: no container image", ErrExecution)
	}

	b, err := nb.Marshal()
	if err != nil {
		return nil, err
	}

	mnt := c.MountPoint
	if mnt == "" {
		mnt = DefaultMountPoint
	}
	in := path.Join(mnt, ".nbrun-input.ipynb")

	ctr := c.Client.Container().From(c.Image)
	if opts.WorkDir != "" {
		ctr = ctr.WithDirectory(mnt, c.Client.Host().Directory(opts.WorkDir))
	}
	ctr = ctr.
		WithWorkdir(mnt).
		WithNewFile(in, dagger.ContainerWithNewFileOpts{Contents: string(b)}).
		WithExec(append([]string{"jupyter", "nbconvert"}, nbconvertArgs(opts, in)...))

	stdout, err := ctr.Stdout(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExecution, err)
	}

	res, err := notebook.Read(strings.NewReader(stdout))
	if err != nil {
		return nil, fmt.Errorf("%w: reading executed notebook: %v", ErrExecution, err)
	}
	return res, nil
}
