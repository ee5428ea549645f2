// Copyright 2020 VMware, Inc.
// SPDX-License-Identifier: BSD-2-Clause

/*
Package imageref understands the two shapes a container image reference takes in a manifest:

	<image-path>:<tag>
	<image-path>@sha256:<digest>

A tag is a mutable label, a digest pins the image content and is never rewritten.
The image path may carry a registry host with a port (e.g. "localhost:5000/app"),
so the tag separator is the last colon after the last slash.
*/
package imageref

import (
	"regexp"
	"strings"
)

// DigestAlgorithm is the only digest algorithm recognized in references.
const DigestAlgorithm = "sha256"

var digestRE = regexp.MustCompile(`^sha256:[a-f0-9]+$`)

// A Reference is a parsed image reference.
type Reference struct {
	Name   string
	Tag    string
	Digest string
}

// Parse splits an image reference into name, tag and digest.
// Missing components are left empty; Parse never fails.
func Parse(s string) Reference {
	var r Reference
	if i := strings.Index(s, "@"); i >= 0 {
		s, r.Digest = s[:i], s[i+1:]
	}
	slash := strings.LastIndex(s, "/")
	if i := strings.LastIndex(s, ":"); i > slash {
		s, r.Tag = s[:i], s[i+1:]
	}
	r.Name = s
	return r
}

// String renders the reference back, digest taking precedence over tag.
func (r Reference) String() string {
	switch {
	case r.Digest != "":
		return r.Name + "@" + r.Digest
	case r.Tag != "":
		return r.Name + ":" + r.Tag
	default:
		return r.Name
	}
}

// IsDigest returns true if the reference is pinned by a well formed sha256 digest.
func (r Reference) IsDigest() bool {
	return digestRE.MatchString(r.Digest)
}

// WithTag returns "<image>:<tag>".
func WithTag(image, tag string) string {
	return image + ":" + tag
}

// HasTag returns true if value is exactly image tagged with tag.
func HasTag(value, image, tag string) bool {
	return value == WithTag(image, tag)
}

// IsDigestOf returns true if value references image by digest, i.e. it matches
// "<image>@sha256:<hex>".
func IsDigestOf(value, image string) bool {
	rest, ok := strings.CutPrefix(value, image+"@")
	return ok && digestRE.MatchString(rest)
}

// IsDigestRef returns true if value references any image by digest.
func IsDigestRef(value string) bool {
	return Parse(value).IsDigest()
}
