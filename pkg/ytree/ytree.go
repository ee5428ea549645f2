// Copyright 2020 VMware, Inc.
// SPDX-License-Identifier: BSD-2-Clause

/*
Package ytree exposes a YAML document as a small tree of mappings, sequences and scalars
that can be walked and mutated without touching the parser's node types.

Mutations are not serialized by re-encoding the tree. Instead each changed scalar is turned
into a splice operation over the original source text, so comments, key order, flow style and
quoting survive an edit untouched.
*/
package ytree

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-openapi/jsonpointer"
	yamled "github.com/vmware-labs/go-yaml-edit"
	"github.com/vmware-labs/go-yaml-edit/splice"
	yptr "github.com/vmware-labs/yaml-jsonpointer"
	"golang.org/x/text/transform"
	"gopkg.in/yaml.v3"
)

// A Node is one of *Mapping, *Sequence, *Scalar or *Alias.
type Node interface {
	node()
}

// A Mapping is an ordered set of key/value entries.
type Mapping struct {
	Entries []*Entry
}

// An Entry is a key/value pair of a Mapping. Non scalar keys have an empty Key.
type Entry struct {
	Key   string
	Value Node
}

// A Sequence is an ordered list of nodes.
type Sequence struct {
	Items []Node
}

// A Scalar is a leaf value. Tag is the resolved short tag (e.g. "!!str", "!!int").
type Scalar struct {
	Value string
	Tag   string

	orig string
	src  *yaml.Node
}

// An Alias refers to an anchored node defined elsewhere in the document.
// Walks don't follow aliases: the anchored node is visited where it's defined.
type Alias struct {
	Anchor string
	// Target is the anchored node, nil if the alias occurs inside its own anchor.
	Target Node
}

const mergeKey = "<<"

func (*Mapping) node()  {}
func (*Sequence) node() {}
func (*Scalar) node()   {}
func (*Alias) node()    {}

// Get returns the value of the first entry with the given key.
func (m *Mapping) Get(key string) (Node, bool) {
	for _, e := range m.Entries {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

// Lookup is like Get but also searches the mappings merged in with "<<" keys.
// Keys of m take precedence over merged ones, earlier merged mappings over later ones.
func (m *Mapping) Lookup(key string) (Node, bool) {
	if key != mergeKey {
		if n, ok := m.Get(key); ok {
			return n, true
		}
	}
	for _, e := range m.Entries {
		if e.Key != mergeKey {
			continue
		}
		for _, src := range merged(e.Value) {
			if n, ok := src.Lookup(key); ok {
				return n, true
			}
		}
	}
	return nil, false
}

// merged returns the mappings referenced by the value of a merge key.
func merged(n Node) []*Mapping {
	switch n := n.(type) {
	case *Alias:
		if m, ok := n.Target.(*Mapping); ok {
			return []*Mapping{m}
		}
	case *Mapping:
		return []*Mapping{n}
	case *Sequence:
		var res []*Mapping
		for _, item := range n.Items {
			res = append(res, merged(item)...)
		}
		return res
	}
	return nil
}

// String returns the value of a string scalar stored under key, merge keys included.
func (m *Mapping) String(key string) (string, bool) {
	n, ok := m.Lookup(key)
	if !ok {
		return "", false
	}
	s, ok := n.(*Scalar)
	if !ok || !s.IsString() {
		return "", false
	}
	return s.Value, true
}

// IsString returns true if the scalar resolves to a YAML string.
func (s *Scalar) IsString() bool { return s.Tag == "!!str" }

// Set replaces the scalar value.
func (s *Scalar) Set(v string) { s.Value = v }

// Original returns the value the scalar had when the document was parsed.
func (s *Scalar) Original() string { return s.orig }

// Changed returns true if the scalar value differs from the parsed one.
func (s *Scalar) Changed() bool { return s.Value != s.orig }

// Line returns the 1-based source line of the scalar, or 0 if unknown.
func (s *Scalar) Line() int {
	if s.src == nil {
		return 0
	}
	return s.src.Line
}

// A Document is one YAML document of a stream.
type Document struct {
	Root Node

	src     []rune
	raw     *yaml.Node
	index   map[*yaml.Node]Node
	scalars []*Scalar
}

// Parse parses all documents in a YAML stream.
func Parse(src []byte) ([]*Document, error) {
	dec := yaml.NewDecoder(bytes.NewReader(src))
	runes := []rune(string(src))
	var res []*Document
	for {
		var n yaml.Node
		if err := dec.Decode(&n); errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return nil, err
		}
		d, err := NewDocument(&n, runes)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, nil
}

// NewDocument builds a Document out of a parsed yaml.Node and the stream it was parsed from.
func NewDocument(n *yaml.Node, src []rune) (*Document, error) {
	d := &Document{src: src, raw: n, index: map[*yaml.Node]Node{}}
	root, err := d.convert(n)
	if err != nil {
		return nil, err
	}
	d.Root = root
	return d, nil
}

func (d *Document) convert(n *yaml.Node) (Node, error) {
	var res Node
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return d.convert(n.Content[0])
	case yaml.MappingNode:
		c := n.Content
		if l := len(c); l%2 != 0 {
			return nil, fmt.Errorf("yaml.Node invariant broken, found %d map content", l)
		}
		m := &Mapping{}
		for i := 0; i < len(c); i += 2 {
			v, err := d.convert(c[i+1])
			if err != nil {
				return nil, err
			}
			var key string
			if c[i].Kind == yaml.ScalarNode {
				key = c[i].Value
			}
			m.Entries = append(m.Entries, &Entry{Key: key, Value: v})
		}
		res = m
	case yaml.SequenceNode:
		s := &Sequence{}
		for _, c := range n.Content {
			v, err := d.convert(c)
			if err != nil {
				return nil, err
			}
			s.Items = append(s.Items, v)
		}
		res = s
	case yaml.ScalarNode:
		s := &Scalar{Value: n.Value, Tag: n.ShortTag(), orig: n.Value, src: n}
		d.scalars = append(d.scalars, s)
		res = s
	case yaml.AliasNode:
		res = &Alias{Anchor: n.Value, Target: d.index[n.Alias]}
	default:
		return nil, fmt.Errorf("unhandled node kind %v at line %d", n.Kind, n.Line)
	}
	d.index[n] = res
	return res, nil
}

// Find returns the nodes selected by an extended YAML JSONPointer
// (see github.com/vmware-labs/yaml-jsonpointer). The empty pointer selects the root.
func (d *Document) Find(ptr string) ([]Node, error) {
	if ptr == "" {
		return []Node{d.Root}, nil
	}
	found, err := yptr.FindAll(d.raw, ptr)
	if err != nil {
		return nil, err
	}
	res := make([]Node, 0, len(found))
	for _, f := range found {
		n, ok := d.index[f]
		if !ok {
			return nil, fmt.Errorf("%q: selected node at line %d is not a value", ptr, f.Line)
		}
		res = append(res, n)
	}
	return res, nil
}

// Changed returns true if any scalar of the document has been modified.
func (d *Document) Changed() bool {
	for _, s := range d.scalars {
		if s.Changed() {
			return true
		}
	}
	return false
}

// Ops returns one splice operation per modified scalar, in document order.
func (d *Document) Ops() []splice.Op {
	var ops []splice.Op
	for _, s := range d.scalars {
		if s.Changed() {
			ops = append(ops, d.valueSpan(s.src).With(s.Value))
		}
	}
	return ops
}

// valueSpan selects the text of a scalar. The node extent also covers its
// anchor and tag properties, which must survive the edit.
func (d *Document) valueSpan(n *yaml.Node) splice.Selection {
	sel := yamled.Node(n)
	if n.Anchor == "" && n.Style&yaml.TaggedStyle == 0 {
		return sel
	}
	sel.Start = skipProperties(d.src, sel.Start, sel.End)
	return sel
}

// skipProperties returns the position of the first rune in src[start:end]
// that follows the "&anchor" and "!tag" properties and the blanks and comments around them.
func skipProperties(src []rune, start, end int) int {
	if end > len(src) {
		return start
	}
	i := start
	for i < end {
		switch c := src[i]; {
		case c == '&' || c == '!':
			for i < end && !isBlank(src[i]) {
				i++
			}
		case isBlank(c):
			i++
		case c == '#' && i > start && isBlank(src[i-1]):
			for i < end && src[i] != '\n' {
				i++
			}
		default:
			return i
		}
	}
	return start
}

func isBlank(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

// Render applies the changes of all docs to src, which must be the text the docs were parsed from.
func Render(src []byte, docs []*Document) ([]byte, error) {
	ops := Ops(docs)
	if len(ops) == 0 {
		return src, nil
	}
	b, _, err := transform.Bytes(yamled.T(ops...), src)
	return b, err
}

// Ops collects the splice operations of several documents of the same stream.
func Ops(docs []*Document) []splice.Op {
	var ops []splice.Op
	for _, d := range docs {
		ops = append(ops, d.Ops()...)
	}
	return ops
}

// A Visit describes a scalar reached during a Walk.
type Visit struct {
	// Path holds the keys and sequence indices leading to the scalar.
	Path []string
	// Parent is the enclosing mapping, nil for sequence items and the root.
	Parent *Mapping
	// Key is the enclosing mapping key, empty when Parent is nil.
	Key    string
	Scalar *Scalar
}

// Pointer renders Path as a JSONPointer.
func (v Visit) Pointer() string {
	if len(v.Path) == 0 {
		return ""
	}
	toks := make([]string, len(v.Path))
	for i, p := range v.Path {
		toks[i] = jsonpointer.Escape(p)
	}
	return "/" + strings.Join(toks, "/")
}

// Walk calls fn for every scalar value under n, depth first in document order.
// Mapping keys are not visited.
func Walk(n Node, fn func(Visit)) {
	w := walker{fn: fn}
	w.walk(n, nil, nil, "", true)
}

// WalkScoped is like Walk but only reports scalars located at or under one of the scope nodes.
func WalkScoped(n Node, scopes []Node, fn func(Visit)) {
	w := walker{fn: fn, scopes: map[Node]bool{}}
	for _, s := range scopes {
		w.scopes[s] = true
	}
	w.walk(n, nil, nil, "", false)
}

type walker struct {
	fn     func(Visit)
	scopes map[Node]bool
}

func (w *walker) walk(n Node, path []string, parent *Mapping, key string, active bool) {
	active = active || w.scopes[n]
	switch n := n.(type) {
	case *Mapping:
		for _, e := range n.Entries {
			w.walk(e.Value, appendPath(path, e.Key), n, e.Key, active)
		}
	case *Sequence:
		for i, item := range n.Items {
			w.walk(item, appendPath(path, fmt.Sprint(i)), nil, "", active)
		}
	case *Scalar:
		if active {
			w.fn(Visit{Path: path, Parent: parent, Key: key, Scalar: n})
		}
	}
}

func appendPath(path []string, tok string) []string {
	res := make([]string, len(path), len(path)+1)
	copy(res, path)
	return append(res, tok)
}
