// Copyright 2020 VMware, Inc.
// SPDX-License-Identifier: BSD-2-Clause

package notebook

// executionKey is the metadata field kernel runners use to record cell and notebook timings.
const executionKey = "execution"

// Clean returns a copy of nb stripped of execution order metadata:
// the notebook and cell level "execution" metadata are removed
// and every code cell execution_count is reset to null.
// Cleaned notebooks are stable across repeated runs.
func Clean(nb *Notebook) *Notebook {
	res := nb.Clone()

	delete(res.Metadata, executionKey)
	for _, c := range res.Cells {
		if c.Type() == CodeCell {
			c["execution_count"] = nil
		}
		if m := c.Metadata(); m != nil {
			delete(m, executionKey)
		}
	}
	return res
}

// IsClean returns true if nb carries no execution order metadata.
func IsClean(nb *Notebook) bool {
	if _, ok := nb.Metadata[executionKey]; ok {
		return false
	}
	for _, c := range nb.Cells {
		if c.Type() == CodeCell {
			if v, ok := c["execution_count"]; !ok || v != nil {
				return false
			}
		}
		if _, ok := c.Metadata()[executionKey]; ok {
			return false
		}
	}
	return true
}
