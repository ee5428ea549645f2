// Copyright 2020 VMware, Inc.
// SPDX-License-Identifier: BSD-2-Clause

/*
Package notebook reads and writes notebooks in the nbformat v4 JSON interchange format.

Cells and metadata are kept as generic JSON values so that fields this package doesn't know
about survive a read/write cycle untouched. Written files follow the layout nbformat itself
produces (sorted keys, one space indentation, trailing newline) so that re-saving a notebook
doesn't cause spurious diffs.
*/
package notebook

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"cikit.io/pkg/atomicfile"
)

// Format is the only nbformat major version supported.
const Format = 4

// ErrUnsupportedFormat is returned when reading a notebook that isn't nbformat v4.
var ErrUnsupportedFormat = errors.New("unsupported notebook format")

// Cell types.
const (
	CodeCell     = "code"
	MarkdownCell = "markdown"
	RawCell      = "raw"
)

// A Notebook is an nbformat v4 document.
// Fields are declared in sorted key order, which is the order nbformat writes them in.
type Notebook struct {
	Cells         []Cell         `json:"cells"`
	Metadata      map[string]any `json:"metadata"`
	NBFormat      int            `json:"nbformat"`
	NBFormatMinor int            `json:"nbformat_minor"`
}

// A Cell is a raw notebook cell.
type Cell map[string]any

// Type returns the cell_type field.
func (c Cell) Type() string {
	t, _ := c["cell_type"].(string)
	return t
}

// Metadata returns the cell metadata, or nil if the cell has none.
func (c Cell) Metadata() map[string]any {
	m, _ := c["metadata"].(map[string]any)
	return m
}

// ExecutionCount returns the execution counter of a code cell, if set.
func (c Cell) ExecutionCount() (int64, bool) {
	n, ok := c["execution_count"].(json.Number)
	if !ok {
		return 0, false
	}
	i, err := n.Int64()
	return i, err == nil
}

// Read decodes a notebook. Numbers are preserved verbatim.
func Read(r io.Reader) (*Notebook, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var nb Notebook
	if err := dec.Decode(&nb); err != nil {
		return nil, err
	}
	if nb.NBFormat != Format {
		return nil, fmt.Errorf("%w: nbformat %d (want %d)", ErrUnsupportedFormat, nb.NBFormat, Format)
	}
	if nb.Metadata == nil {
		nb.Metadata = map[string]any{}
	}
	for i, c := range nb.Cells {
		if c == nil {
			return nil, fmt.Errorf("cell %d is not an object", i)
		}
	}
	return &nb, nil
}

// ReadFile reads a notebook from a file.
func ReadFile(filename string) (*Notebook, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	nb, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%q: %w", filename, err)
	}
	return nb, nil
}

// Write encodes the notebook the way nbformat does.
func (nb *Notebook) Write(w io.Writer) error {
	b, err := nb.Marshal()
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// Marshal returns the nbformat encoding of the notebook, including the trailing newline.
func (nb *Notebook) Marshal() ([]byte, error) {
	out := *nb
	if out.Metadata == nil {
		out.Metadata = map[string]any{}
	}
	if out.Cells == nil {
		out.Cells = []Cell{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", " ")
	if err := enc.Encode(&out); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFile atomically replaces filename with the notebook.
func (nb *Notebook) WriteFile(filename string) error {
	w, err := atomicfile.Writer(filename, 0644)
	if err != nil {
		return err
	}
	defer w.Close()

	if err := nb.Write(w); err != nil {
		return err
	}
	return w.Commit()
}

// Clone returns a deep copy of the notebook.
func (nb *Notebook) Clone() *Notebook {
	res := &Notebook{
		Metadata:      cloneMap(nb.Metadata),
		NBFormat:      nb.NBFormat,
		NBFormatMinor: nb.NBFormatMinor,
	}
	if nb.Cells != nil {
		res.Cells = make([]Cell, len(nb.Cells))
		for i, c := range nb.Cells {
			res.Cells[i] = Cell(cloneMap(c))
		}
	}
	return res
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	res := make(map[string]any, len(m))
	for k, v := range m {
		res[k] = cloneValue(v)
	}
	return res
}

func cloneValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		return cloneMap(v)
	case Cell:
		return Cell(cloneMap(v))
	case []any:
		res := make([]any, len(v))
		for i := range v {
			res[i] = cloneValue(v[i])
		}
		return res
	default:
		return v
	}
}
