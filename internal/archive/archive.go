// Package archive wraps zip reading and writing behind a small codec so the
// scanning and packaging logic is not coupled to one archive library.
package archive

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/klauspost/compress/zip"
)

// ErrCorrupt is returned by Open for bytes that do not parse as a zip
// archive. Callers treat this as a rejection, never a crash.
var ErrCorrupt = errors.New("invalid or corrupt archive")

// ErrNotText is returned by ReadText when an entry's bytes do not decode as
// text. A text-named entry that trips this is a sign of disguised binary
// content.
var ErrNotText = errors.New("entry is not valid text")

// Entry describes one archive member in archive order.
type Entry struct {
	Path string
	Dir  bool
}

// Archive is a read-only handle over an opened zip buffer.
type Archive struct {
	entries []Entry
	byPath  map[string]*zip.File
}

// Open parses data as a zip archive held fully in memory.
func Open(data []byte) (*Archive, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	a := &Archive{byPath: make(map[string]*zip.File, len(zr.File))}
	for _, f := range zr.File {
		dir := f.FileInfo().IsDir()
		a.entries = append(a.entries, Entry{Path: f.Name, Dir: dir})
		if !dir {
			a.byPath[f.Name] = f
		}
	}
	return a, nil
}

// Entries returns all members in archive order, directories included.
func (a *Archive) Entries() []Entry {
	return a.entries
}

// Files returns the paths of all non-directory members in archive order.
func (a *Archive) Files() []string {
	files := make([]string, 0, len(a.byPath))
	for _, e := range a.entries {
		if !e.Dir {
			files = append(files, e.Path)
		}
	}
	return files
}

// ReadBytes returns the raw bytes of the named entry.
func (a *Archive) ReadBytes(path string) ([]byte, error) {
	f, ok := a.byPath[path]
	if !ok {
		return nil, fmt.Errorf("no such entry: %s", path)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", ErrCorrupt, path, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrCorrupt, path, err)
	}
	return data, nil
}

// ReadText returns the named entry decoded as text. Returns ErrNotText when
// the bytes are not valid UTF-8 or contain NUL bytes.
func (a *Archive) ReadText(path string) (string, error) {
	data, err := a.ReadBytes(path)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) || bytes.IndexByte(data, 0) >= 0 {
		return "", fmt.Errorf("%w: %s", ErrNotText, path)
	}
	return string(data), nil
}

// Writer builds a new zip archive in memory. Entries are compressed with a
// fixed method and zeroed timestamps so identical inputs serialize to
// byte-identical output across runs.
type Writer struct {
	buf bytes.Buffer
	zw  *zip.Writer
}

// NewWriter creates an empty writable archive.
func NewWriter() *Writer {
	w := &Writer{}
	w.zw = zip.NewWriter(&w.buf)
	return w
}

// Add appends one entry with the given path and contents.
func (w *Writer) Add(path string, data []byte) error {
	// Fixed header: no per-run timestamps, always deflate.
	hdr := &zip.FileHeader{
		Name:   path,
		Method: zip.Deflate,
	}
	fw, err := w.zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("creating entry %s: %w", path, err)
	}
	if _, err := fw.Write(data); err != nil {
		return fmt.Errorf("writing entry %s: %w", path, err)
	}
	return nil
}

// Bytes finalizes the archive and returns its serialized form.
// The writer must not be used after Bytes.
func (w *Writer) Bytes() ([]byte, error) {
	if err := w.zw.Close(); err != nil {
		return nil, fmt.Errorf("finalizing archive: %w", err)
	}
	return w.buf.Bytes(), nil
}
