// Copyright 2020 VMware, Inc.
// SPDX-License-Identifier: BSD-2-Clause

package notebook

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func readTestdata(t *testing.T, name string) (*Notebook, string) {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatal(err)
	}
	nb, err := ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatal(err)
	}
	return nb, string(b)
}

func marshal(t *testing.T, nb *Notebook) string {
	t.Helper()
	b, err := nb.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func TestRoundTrip(t *testing.T) {
	for _, name := range []string{"executed.ipynb", "cleaned.ipynb"} {
		t.Run(name, func(t *testing.T) {
			nb, src := readTestdata(t, name)
			if got, want := marshal(t, nb), src; got != want {
				t.Errorf("got: %q, want: %q", got, want)
			}
		})
	}
}

func TestClean(t *testing.T) {
	nb, src := readTestdata(t, "executed.ipynb")
	_, want := readTestdata(t, "cleaned.ipynb")

	if IsClean(nb) {
		t.Fatalf("executed notebook shouldn't be clean")
	}

	cleaned := Clean(nb)
	if !IsClean(cleaned) {
		t.Errorf("cleaned notebook isn't clean")
	}
	if got := marshal(t, cleaned); got != want {
		t.Errorf("got: %q, want: %q", got, want)
	}

	// the input is left untouched.
	if got := marshal(t, nb); got != src {
		t.Errorf("input notebook was modified: %q", got)
	}
}

func TestCleanIsIdempotent(t *testing.T) {
	nb, _ := readTestdata(t, "executed.ipynb")
	once := marshal(t, Clean(nb))
	twice := marshal(t, Clean(Clean(nb)))
	if once != twice {
		t.Errorf("got: %q, want: %q", twice, once)
	}
}

func TestCleanMarkdownHasNoExecutionCount(t *testing.T) {
	nb, _ := readTestdata(t, "executed.ipynb")
	c := Clean(nb).Cells[0]
	if got, want := c.Type(), MarkdownCell; got != want {
		t.Fatalf("got: %q, want: %q", got, want)
	}
	if _, ok := c["execution_count"]; ok {
		t.Errorf("markdown cell got an execution_count")
	}
}

func TestExecutionCount(t *testing.T) {
	nb, _ := readTestdata(t, "executed.ipynb")
	n, ok := nb.Cells[2].ExecutionCount()
	if !ok {
		t.Fatalf("missing execution count")
	}
	if got, want := n, int64(2); got != want {
		t.Errorf("got: %d, want: %d", got, want)
	}
	if _, ok := Clean(nb).Cells[2].ExecutionCount(); ok {
		t.Errorf("execution count survived cleaning")
	}
}

func TestRead(t *testing.T) {
	testCases := []struct {
		src string
		err error
	}{
		{`{"cells": [], "metadata": {}, "nbformat": 4, "nbformat_minor": 5}`, nil},
		{`{"cells": [], "nbformat": 4, "nbformat_minor": 2}`, nil},
		{`{"cells": [], "metadata": {}, "nbformat": 3, "nbformat_minor": 0}`, ErrUnsupportedFormat},
		{`{"worksheets": []}`, ErrUnsupportedFormat},
	}
	for i, tc := range testCases {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			_, err := Read(strings.NewReader(tc.src))
			if !errors.Is(err, tc.err) {
				t.Errorf("got: %v, want: %v", err, tc.err)
			}
		})
	}
}

func TestReadInvalid(t *testing.T) {
	for _, src := range []string{``, `{`, `[]`, `{"cells": [null], "nbformat": 4}`} {
		if _, err := Read(strings.NewReader(src)); err == nil {
			t.Errorf("%q: expected error", src)
		}
	}
}

func TestMarshalEmpty(t *testing.T) {
	nb := &Notebook{NBFormat: 4, NBFormatMinor: 5}
	want := "{\n \"cells\": [],\n \"metadata\": {},\n \"nbformat\": 4,\n \"nbformat_minor\": 5\n}\n"
	if got := marshal(t, nb); got != want {
		t.Errorf("got: %q, want: %q", got, want)
	}
}

func TestWriteFile(t *testing.T) {
	nb, src := readTestdata(t, "executed.ipynb")
	name := filepath.Join(t.TempDir(), "nb.ipynb")
	if err := nb.WriteFile(name); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(name)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(b), src; got != want {
		t.Errorf("got: %q, want: %q", got, want)
	}
}

func TestReadFileMissing(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "nope.ipynb"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("got: %v, want: %v", err, os.ErrNotExist)
	}
}
