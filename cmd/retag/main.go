// Copyright 2020 VMware, Inc.
// SPDX-License-Identifier: BSD-2-Clause

// Command retag rewrites container image tags in YAML manifests while preserving their formatting.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"cikit.io/pkg/retag"
)

const version = "0.1.0"

type Context struct {
	Logger *slog.Logger
	Stdin  io.Reader
	Stdout io.Writer
}

type RetagCmd struct {
	Paths   []string `name:"filename" short:"f" help:"Filenames, globs or directories containing YAML manifests. Use - (the default) for standard input."`
	At      []string `name:"at" help:"Only rewrite inside subtrees selected by this YAML JSONPointer (e.g. /spec/template). Can be repeated."`
	DryRun  bool     `name:"dry-run" help:"Report the changes but don't write them."`
	Stdout  bool     `name:"stdout" help:"Output to stdout and never update files in-place."`
	Verbose bool     `short:"v" help:"Log debug information."`

	Version kong.VersionFlag `name:"version" help:"Print version information and quit"`

	Image  string `arg:"" help:"Image name without tag, e.g. nginx or ghcr.io/org/app."`
	OldTag string `arg:"" name:"old-tag" help:"Tag to replace."`
	NewTag string `arg:"" name:"new-tag" help:"Replacement tag."`
}

func (c *RetagCmd) Run(ctx *Context) error {
	u := &retag.Updater{
		Image:  c.Image,
		OldTag: c.OldTag,
		NewTag: c.NewTag,
		Scopes: c.At,
		Logger: ctx.Logger,
	}
	if err := u.Validate(); err != nil {
		return err
	}

	paths := c.Paths
	if len(paths) == 0 {
		paths = []string{stdinPath}
	}
	filenames, err := expandPaths(paths)
	if err != nil {
		return err
	}
	if len(filenames) == 0 {
		return fmt.Errorf("cannot find any manifest in %q", paths)
	}

	var (
		errs  []error
		total int
	)
	for _, f := range filenames {
		changes, err := c.process(ctx, u, f)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		total += len(changes)
	}
	ctx.Logger.Debug("done", "files", len(filenames), "changes", total)
	return errors.Join(errs...)
}

func (c *RetagCmd) process(ctx *Context, u *retag.Updater, filename string) ([]retag.Change, error) {
	switch {
	case filename == stdinPath:
		stdinNotice()
		return c.stream(ctx, u, filename, ctx.Stdin)
	case c.Stdout:
		f, err := os.Open(filename)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return c.stream(ctx, u, filename, f)
	case c.DryRun:
		return u.DryRun(filename)
	default:
		return u.UpdateFile(filename)
	}
}

func (c *RetagCmd) stream(ctx *Context, u *retag.Updater, filename string, r io.Reader) ([]retag.Change, error) {
	w := ctx.Stdout
	if c.DryRun {
		w = io.Discard
	}
	changes, err := u.RewriteStream(w, r)
	if err != nil {
		return nil, fmt.Errorf("%q: %w", filename, err)
	}
	u.LogChanges(filename, changes)
	return changes, nil
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func main() {
	var cli RetagCmd
	ctx := kong.Parse(&cli,
		kong.Name("retag"),
		kong.Description("Rewrite container image tags in YAML manifests."),
		kong.UsageOnError(),
		kong.Vars{
			"version": version,
		},
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}),
	)
	err := ctx.Run(&Context{
		Logger: newLogger(cli.Verbose),
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
	})
	ctx.FatalIfErrorf(err)
}
