// Copyright 2020 VMware, Inc.
// SPDX-License-Identifier: BSD-2-Clause

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/mattn/go-isatty"
)

const stdinPath = "-"

// stdinNotice warns interactive users that retag is waiting for input.
func stdinNotice() {
	if isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		fmt.Fprintf(os.Stderr, "(reading manifests from standard input; hit ctrl-c if this is not what you wanted)\n")
	}
}

// expandPaths turns the path arguments into a list of manifest filenames.
// Globs are expanded, directories are replaced by the manifests they directly contain
// and "-" is passed through as the standard input marker.
func expandPaths(paths []string) ([]string, error) {
	var (
		res  []string
		errs []error
	)
	for _, p := range paths {
		if p == stdinPath {
			res = append(res, p)
			continue
		}
		matches, err := filepath.Glob(p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if matches == nil {
			// not a glob, let the stat below report a missing file.
			matches = []string{p}
		}
		for _, m := range matches {
			fs, err := manifestsAt(m)
			if err != nil {
				errs = append(errs, err)
			} else {
				res = append(res, fs...)
			}
		}
	}
	if errs != nil {
		return nil, errors.Join(errs...)
	}
	return res, nil
}

func manifestsAt(p string) ([]string, error) {
	st, err := os.Stat(p)
	if err != nil {
		return nil, err
	}
	if st.IsDir() {
		return manifestsInDir(p)
	}
	return []string{p}, nil
}

func manifestsInDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var res []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ok, err := matchExts(e.Name(), "yaml", "yml"); err != nil {
			return nil, err
		} else if ok {
			res = append(res, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(res)
	return res, nil
}

func matchExts(filename string, exts ...string) (bool, error) {
	for _, e := range exts {
		if ok, err := filepath.Match(fmt.Sprintf("*.%s", e), filename); err != nil {
			return false, err
		} else if ok {
			return true, nil
		}
	}
	return false, nil
}
