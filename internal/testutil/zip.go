package testutil

import (
	"sort"
	"testing"

	"molt-mart/internal/archive"
)

// ZipBytes builds a zip archive from the given path-to-content map. Entries
// are added in sorted path order so the output is stable across runs.
func ZipBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()

	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	w := archive.NewWriter()
	for _, p := range paths {
		if err := w.Add(p, []byte(files[p])); err != nil {
			t.Fatalf("failed to add %s to zip: %v", p, err)
		}
	}

	data, err := w.Bytes()
	if err != nil {
		t.Fatalf("failed to finalize zip: %v", err)
	}
	return data
}
