// Copyright 2020 VMware, Inc.
// SPDX-License-Identifier: BSD-2-Clause

package nbexec

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"cikit.io/pkg/notebook"
)

func TestNbconvertArgs(t *testing.T) {
	testCases := []struct {
		opts Options
		want []string
	}{
		{
			Options{Timeout: DefaultTimeout, Kernel: "python3"},
			[]string{"--to", "notebook", "--execute", "--stdout", "--ExecutePreprocessor.timeout=600", "--ExecutePreprocessor.kernel_name=python3", "nb.ipynb"},
		},
		{
			Options{Timeout: 1500 * time.Millisecond},
			[]string{"--to", "notebook", "--execute", "--stdout", "--ExecutePreprocessor.timeout=2", "--ExecutePreprocessor.kernel_name=python3", "nb.ipynb"},
		},
		{
			Options{Kernel: "ir"},
			[]string{"--to", "notebook", "--execute", "--stdout", "--ExecutePreprocessor.timeout=-1", "--ExecutePreprocessor.kernel_name=ir", "nb.ipynb"},
		},
	}
	for i, tc := range testCases {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			if got, want := nbconvertArgs(tc.opts, "nb.ipynb"), tc.want; !reflect.DeepEqual(got, want) {
				t.Errorf("got: %q, want: %q", got, want)
			}
		})
	}
}

func TestTail(t *testing.T) {
	if got, want := tail("a\nb\nc\n", 2), "b\nc"; got != want {
		t.Errorf("got: %q, want: %q", got, want)
	}
	if got, want := tail("a", 2), "a"; got != want {
		t.Errorf("got: %q, want: %q", got, want)
	}
}

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func sampleNotebook() *notebook.Notebook {
	return &notebook.Notebook{
		Cells: []notebook.Cell{
			{"cell_type": "code", "execution_count": nil, "metadata": map[string]any{}, "outputs": []any{}, "source": "1+1"},
		},
		Metadata:      map[string]any{},
		NBFormat:      4,
		NBFormatMinor: 5,
	}
}

// The fake runner prints back its last argument (the input notebook) and
// records its working directory and arguments next to it.
const echoRunner = `for a; do f="$a"; done; pwd > ran-in; echo "$@" > ran-with; cat "$f"`

func TestLocal(t *testing.T) {
	requireShell(t)
	dir := t.TempDir()

	l := &Local{Command: []string{"sh", "-c", echoRunner, "sh"}}
	res, err := l.Execute(context.Background(), sampleNotebook(), Options{Timeout: time.Minute, Kernel: "python3", WorkDir: dir})
	if err != nil {
		t.Fatal(err)
	}
	if got, want := len(res.Cells), 1; got != want {
		t.Fatalf("got: %d, want: %d", got, want)
	}

	pwd, err := os.ReadFile(filepath.Join(dir, "ran-in"))
	if err != nil {
		t.Fatal(err)
	}
	realDir, err := filepath.EvalSymlinks(dir)
	if err != nil {
		t.Fatal(err)
	}
	ranIn, err := filepath.EvalSymlinks(strings.TrimSpace(string(pwd)))
	if err != nil {
		t.Fatal(err)
	}
	if got, want := ranIn, realDir; got != want {
		t.Errorf("got: %q, want: %q", got, want)
	}

	args, err := os.ReadFile(filepath.Join(dir, "ran-with"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(args), "--ExecutePreprocessor.timeout=60") {
		t.Errorf("unexpected args %q", args)
	}

	// the temporary input notebook is gone.
	matches, err := filepath.Glob(filepath.Join(dir, ".nbrun-*"))
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 0 {
		t.Errorf("leftover temporary files: %q", matches)
	}
}

func TestLocalFailure(t *testing.T) {
	requireShell(t)

	l := &Local{Command: []string{"sh", "-c", `echo "CellExecutionError: boom" >&2; exit 1`, "sh"}}
	_, err := l.Execute(context.Background(), sampleNotebook(), Options{WorkDir: t.TempDir()})
	if !errors.Is(err, ErrExecution) {
		t.Fatalf("got: %v, want: %v", err, ErrExecution)
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Errorf("stderr not reported in %q", err)
	}
}

func TestLocalGarbageOutput(t *testing.T) {
	requireShell(t)

	l := &Local{Command: []string{"sh", "-c", `echo not json`, "sh"}}
	_, err := l.Execute(context.Background(), sampleNotebook(), Options{WorkDir: t.TempDir()})
	if !errors.Is(err, ErrExecution) {
		t.Errorf("got: %v, want: %v", err, ErrExecution)
	}
}

func TestLocalCancelled(t *testing.T) {
	requireShell(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	l := &Local{Command: []string{"sh", "-c", `exec sleep 5`, "sh"}}
	_, err := l.Execute(ctx, sampleNotebook(), Options{WorkDir: t.TempDir()})
	if !errors.Is(err, ErrExecution) {
		t.Errorf("got: %v, want: %v", err, ErrExecution)
	}
}

func TestContainerRequiresClient(t *testing.T) {
	_, err := (&Container{Image: "x"}).Execute(context.Background(), sampleNotebook(), Options{})
	if !errors.Is(err, ErrExecution) {
		t.Errorf("got: %v, want: %v", err, ErrExecution)
	}
}

func TestExecutorFunc(t *testing.T) {
	var e Executor = ExecutorFunc(func(ctx context.Context, nb *notebook.Notebook, opts Options) (*notebook.Notebook, error) {
		return nb, nil
	})
	nb := sampleNotebook()
	res, err := e.Execute(context.Background(), nb, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if res != nb {
		t.Errorf("unexpected notebook")
	}
}
