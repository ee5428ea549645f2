// Copyright 2020 VMware, Inc.
// SPDX-License-Identifier: BSD-2-Clause

/*
Package retag rewrites container image tags in YAML manifests.

Given an image name, an old tag and a new tag, every string scalar in every document of a
YAML stream is checked against the following rules, first match wins:

 1. the scalar is the value of an "image" field and equals "<image>:<old>": it becomes "<image>:<new>";
 2. the scalar equals "<image>:<old>" anywhere else: it becomes "<image>:<new>";
 3. the scalar is "<image>@sha256:<hex>": it's left alone, digests are never rewritten;
 4. the scalar is the value of a "tag" field equal to <old>, and a sibling "image" field
    starts with <image> (and isn't itself a digest reference): it becomes <new>.

Only the text of the rewritten scalars changes; the rest of the file is preserved byte by byte.
*/
package retag

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	yamled "github.com/vmware-labs/go-yaml-edit"

	"cikit.io/pkg/atomicfile"
	"cikit.io/pkg/imageref"
	"cikit.io/pkg/ytree"
)

// ErrInvalidArgs is returned when the image or tags cannot possibly match anything sensible.
var ErrInvalidArgs = errors.New("invalid arguments")

// A Rule identifies which matching rule caused a rewrite.
type Rule int

const (
	// ImageField is a "<image>:<tag>" value under an "image" key.
	ImageField Rule = iota + 1
	// Embedded is a "<image>:<tag>" value under any other key or in a sequence.
	Embedded
	// SiblingTag is a bare tag under a "tag" key next to a matching "image" key.
	SiblingTag
)

func (r Rule) String() string {
	switch r {
	case ImageField:
		return "image-field"
	case Embedded:
		return "embedded"
	case SiblingTag:
		return "sibling-tag"
	default:
		return fmt.Sprintf("Rule(%d)", int(r))
	}
}

// A Change records one rewritten scalar.
type Change struct {
	// Doc is the 0-based index of the document in the stream.
	Doc  int
	Path string
	Line int
	Rule Rule
	Old  string
	New  string
}

// An Updater rewrites Image from OldTag to NewTag.
type Updater struct {
	Image  string
	OldTag string
	NewTag string

	// Scopes optionally restricts rewriting to the subtrees selected by these
	// extended YAML JSONPointers, evaluated against every document.
	Scopes []string

	Logger *slog.Logger
}

// Update is the one-shot form: it rewrites image from oldTag to newTag in the file at filePath.
func Update(filePath, image, oldTag, newTag string) error {
	u := &Updater{Image: image, OldTag: oldTag, NewTag: newTag}
	_, err := u.UpdateFile(filePath)
	return err
}

// Validate checks the updater arguments.
func (u *Updater) Validate() error {
	switch {
	case u.Image == "":
		return fmt.Errorf("%w: empty image", ErrInvalidArgs)
	case strings.ContainsAny(u.Image, " \t\n"):
		return fmt.Errorf("%w: image %q contains whitespace", ErrInvalidArgs, u.Image)
	case u.OldTag == "":
		return fmt.Errorf("%w: empty old tag", ErrInvalidArgs)
	case u.NewTag == "":
		return fmt.Errorf("%w: empty new tag", ErrInvalidArgs)
	}
	return nil
}

func (u *Updater) logger() *slog.Logger {
	if u.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return u.Logger
}

// Apply mutates the parsed documents in place and returns the changes made.
func (u *Updater) Apply(docs []*ytree.Document) ([]Change, error) {
	if err := u.Validate(); err != nil {
		return nil, err
	}

	var changes []Change
	for i, d := range docs {
		visit := func(v ytree.Visit) {
			if c, ok := u.rewrite(v); ok {
				c.Doc = i
				changes = append(changes, c)
			}
		}

		if len(u.Scopes) == 0 {
			ytree.Walk(d.Root, visit)
			continue
		}
		var scopes []ytree.Node
		for _, p := range u.Scopes {
			found, err := d.Find(p)
			if err != nil {
				// a scope pointer that doesn't apply to this document just selects nothing.
				u.logger().Debug("scope not found", "doc", i, "pointer", p, "error", err)
				continue
			}
			scopes = append(scopes, found...)
		}
		ytree.WalkScoped(d.Root, scopes, visit)
	}
	return changes, nil
}

// rewrite applies the matching rules to one scalar.
func (u *Updater) rewrite(v ytree.Visit) (Change, bool) {
	s := v.Scalar
	if !s.IsString() {
		return Change{}, false
	}
	value := s.Value

	var (
		rule Rule
		next string
	)
	switch {
	case v.Key == "image" && imageref.HasTag(value, u.Image, u.OldTag):
		rule, next = ImageField, imageref.WithTag(u.Image, u.NewTag)
	case imageref.HasTag(value, u.Image, u.OldTag):
		rule, next = Embedded, imageref.WithTag(u.Image, u.NewTag)
	case imageref.IsDigestOf(value, u.Image):
		return Change{}, false
	case v.Key == "tag" && value == u.OldTag && u.siblingMatches(v.Parent):
		rule, next = SiblingTag, u.NewTag
	default:
		return Change{}, false
	}

	s.Set(next)
	return Change{Path: v.Pointer(), Line: s.Line(), Rule: rule, Old: value, New: next}, true
}

func (u *Updater) siblingMatches(parent *ytree.Mapping) bool {
	if parent == nil {
		return false
	}
	img, ok := parent.String("image")
	return ok && strings.HasPrefix(img, u.Image) && !imageref.IsDigestRef(img)
}

// Rewrite applies the updater to a YAML stream held in memory.
func (u *Updater) Rewrite(src []byte) ([]byte, []Change, error) {
	docs, err := ytree.Parse(src)
	if err != nil {
		return nil, nil, err
	}
	changes, err := u.Apply(docs)
	if err != nil {
		return nil, nil, err
	}
	out, err := ytree.Render(src, docs)
	if err != nil {
		return nil, nil, err
	}
	return out, changes, nil
}

// RewriteStream reads a YAML stream from r and writes the rewritten stream to w.
func (u *Updater) RewriteStream(w io.Writer, r io.Reader) ([]Change, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	out, changes, err := u.Rewrite(src)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(out); err != nil {
		return nil, err
	}
	return changes, nil
}

// UpdateFile rewrites a file in place. The file is replaced atomically and only if something changed.
func (u *Updater) UpdateFile(filename string) ([]Change, error) {
	changes, docs, err := u.plan(filename)
	if err != nil {
		return nil, err
	}
	if len(changes) == 0 {
		u.logger().Debug("nothing to update", "file", filename)
		return nil, nil
	}
	if err := atomicfile.Transform(yamled.T(ytree.Ops(docs)...), filename); err != nil {
		return nil, fmt.Errorf("%q: %w", filename, err)
	}
	u.LogChanges(filename, changes)
	return changes, nil
}

// DryRun reports the changes UpdateFile would make without writing anything.
func (u *Updater) DryRun(filename string) ([]Change, error) {
	changes, _, err := u.plan(filename)
	if err != nil {
		return nil, err
	}
	u.LogChanges(filename, changes)
	return changes, nil
}

func (u *Updater) plan(filename string) ([]Change, []*ytree.Document, error) {
	src, err := os.ReadFile(filename)
	if err != nil {
		return nil, nil, err
	}
	docs, err := ytree.Parse(src)
	if err != nil {
		return nil, nil, fmt.Errorf("%q: %w", filename, err)
	}
	changes, err := u.Apply(docs)
	if err != nil {
		return nil, nil, err
	}
	return changes, docs, nil
}

// LogChanges logs one line per change made to filename.
func (u *Updater) LogChanges(filename string, changes []Change) {
	for _, c := range changes {
		u.logger().Info("tag updated",
			"file", filename,
			"doc", c.Doc,
			"path", c.Path,
			"line", c.Line,
			"rule", c.Rule,
			"old", c.Old,
			"new", c.New,
		)
	}
}
