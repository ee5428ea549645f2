// Copyright 2020 VMware, Inc.
// SPDX-License-Identifier: BSD-2-Clause

// Command nbrun executes notebooks and saves them back without execution metadata,
// so that CI can check they still run.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"dagger.io/dagger"
	"github.com/alecthomas/kong"

	"cikit.io/pkg/nbexec"
	"cikit.io/pkg/nbrun"
)

const (
	version = "0.1.0"

	// DefaultConfig is used when present in the working directory and --config isn't given.
	DefaultConfig = "nbrun.yaml"
)

type Context struct {
	Logger *slog.Logger
	Stdout io.Writer
	Stderr io.Writer
	// Executor, if set, overrides the executor selected by the flags.
	Executor nbexec.Executor
}

type NbrunCmd struct {
	Config   string        `name:"config" short:"c" type:"existingfile" help:"Notebook list in YAML, JSON, TOML or Jsonnet. Defaults to ${default_config} if present."`
	Dir      string        `name:"dir" help:"Directory holding the notebooks."`
	Timeout  string        `name:"timeout" help:"Per-cell timeout, as a duration (10m) or seconds (600)."`
	Kernel   string        `name:"kernel" help:"Kernel name."`
	Image    string        `name:"image" help:"Run notebooks inside this container image instead of the local jupyter."`
	Deadline time.Duration `name:"deadline" help:"Give up on the whole run after this long."`
	Verbose  bool          `short:"v" help:"Log debug information and stream the runner output."`

	Version kong.VersionFlag `name:"version" help:"Print version information and quit"`

	Notebooks []string `arg:"" optional:"" help:"Notebook names relative to the notebook directory. Defaults to the configured list."`
}

func (c *NbrunCmd) AfterApply() error {
	if c.Config == "" {
		if _, err := os.Stat(DefaultConfig); err == nil {
			c.Config = DefaultConfig
		}
	}
	return nil
}

// config merges the configuration file with the flags.
func (c *NbrunCmd) config() (*nbrun.Config, error) {
	cfg := nbrun.DefaultConfig()
	if c.Config != "" {
		var err error
		if cfg, err = nbrun.LoadConfig(c.Config); err != nil {
			return nil, err
		}
	}
	if c.Dir != "" {
		cfg.Dir = c.Dir
	}
	if c.Kernel != "" {
		cfg.Kernel = c.Kernel
	}
	if c.Timeout != "" {
		d, err := nbrun.ParseTimeout(c.Timeout)
		if err != nil {
			return nil, err
		}
		cfg.Timeout = d
	}
	if len(c.Notebooks) > 0 {
		cfg.Notebooks = c.Notebooks
	}
	return cfg, nil
}

func (c *NbrunCmd) Run(cli *Context) error {
	cfg, err := c.config()
	if err != nil {
		return err
	}
	if len(cfg.Notebooks) == 0 {
		return fmt.Errorf("no notebooks to run, list them in %s or on the command line", DefaultConfig)
	}

	ctx := context.Background()
	if c.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Deadline)
		defer cancel()
	}

	if err := cfg.Fetch(ctx, cli.Logger); err != nil {
		// missing notebooks are reported per notebook below.
		cli.Logger.Error("cannot fetch notebooks", "err", err)
	}

	exe := cli.Executor
	if exe == nil {
		var closer io.Closer
		if exe, closer, err = c.executor(ctx, cli); err != nil {
			return err
		}
		if closer != nil {
			defer closer.Close()
		}
	}

	r := &nbrun.Runner{
		Dir:      cfg.Dir,
		Executor: exe,
		Timeout:  cfg.Timeout,
		Kernel:   cfg.Kernel,
		Logger:   cli.Logger,
	}
	results := r.RunAll(ctx, cfg.Notebooks)
	for _, res := range results {
		fmt.Fprintln(cli.Stdout, res)
	}

	if failed := nbrun.Failed(results); len(failed) > 0 {
		return fmt.Errorf("%d of %d notebooks failed", len(failed), len(results))
	}
	return nil
}

func (c *NbrunCmd) executor(ctx context.Context, cli *Context) (nbexec.Executor, io.Closer, error) {
	if c.Image == "" {
		l := &nbexec.Local{}
		if c.Verbose {
			l.Stderr = cli.Stderr
		}
		return l, nil, nil
	}

	var opts []dagger.ClientOpt
	if c.Verbose {
		opts = append(opts, dagger.WithLogOutput(cli.Stderr))
	}
	client, err := dagger.Connect(ctx, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to dagger: %w", err)
	}
	return &nbexec.Container{Client: client, Image: c.Image}, client, nil
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func main() {
	var cli NbrunCmd
	ctx := kong.Parse(&cli,
		kong.Name("nbrun"),
		kong.Description("Execute notebooks and save them back without execution metadata."),
		kong.UsageOnError(),
		kong.Vars{
			"version":        version,
			"default_config": DefaultConfig,
		},
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}),
	)
	err := ctx.Run(&Context{
		Logger: newLogger(os.Stderr, cli.Verbose),
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	})
	ctx.FatalIfErrorf(err)
}
