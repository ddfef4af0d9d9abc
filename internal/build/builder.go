// Package build reconstructs the archive handed to a buyer at download
// time: the seller's payload verbatim plus three generated companions (a
// machine-readable manifest, human-readable instructions, and an installer
// script).
package build

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"molt-mart/internal/archive"
)

// Generated entry names. Seller entries with these names are dropped so the
// generated versions always win and the output gains exactly three entries.
const (
	ManifestEntry     = "molt-mart.json"
	InstructionsEntry = "INSTALL.md"
	InstallerEntry    = "install.sh"
)

// ErrNoContent means neither original archive bytes nor preview fragments
// were available, so there is nothing to rebuild from.
var ErrNoContent = errors.New("no content to rebuild from")

// Fallback is the preview material captured at ingestion time, used when
// the original blob is gone. Documents maps entry names to captured text.
type Fallback struct {
	Documents map[string]string
	FileList  []string
}

// Empty reports whether the fallback carries nothing usable.
func (f Fallback) Empty() bool {
	return len(f.Documents) == 0
}

// Rebuild produces the distributable archive. When original is non-nil and
// parses, every non-directory entry is copied byte-for-byte; otherwise a
// best-effort archive is assembled from the fallback fragments. The three
// generated companions are appended in either case.
func Rebuild(original []byte, fallback Fallback, info Info) ([]byte, error) {
	w := archive.NewWriter()
	var files []string

	switch {
	case len(original) > 0:
		a, err := archive.Open(original)
		if err != nil {
			return nil, fmt.Errorf("opening stored archive: %w", err)
		}
		for _, name := range a.Files() {
			if isGeneratedName(name) {
				continue
			}
			data, err := a.ReadBytes(name)
			if err != nil {
				return nil, fmt.Errorf("copying %s: %w", name, err)
			}
			if err := w.Add(name, data); err != nil {
				return nil, err
			}
			files = append(files, name)
		}

	case !fallback.Empty():
		// Partial substitute: only the documents captured at upload time.
		names := make([]string, 0, len(fallback.Documents))
		for name := range fallback.Documents {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if isGeneratedName(name) {
				continue
			}
			if err := w.Add(name, []byte(fallback.Documents[name])); err != nil {
				return nil, err
			}
			files = append(files, name)
		}

	default:
		return nil, ErrNoContent
	}

	manifest, err := renderManifest(info, files)
	if err != nil {
		return nil, err
	}
	if err := w.Add(ManifestEntry, manifest); err != nil {
		return nil, err
	}

	payload := struct {
		Info
		Files []string
	}{info, files}

	var instructions bytes.Buffer
	if err := installMD.Execute(&instructions, payload); err != nil {
		return nil, fmt.Errorf("rendering instructions: %w", err)
	}
	if err := w.Add(InstructionsEntry, instructions.Bytes()); err != nil {
		return nil, err
	}

	var installer bytes.Buffer
	if err := installSH.Execute(&installer, payload); err != nil {
		return nil, fmt.Errorf("rendering installer: %w", err)
	}
	if err := w.Add(InstallerEntry, installer.Bytes()); err != nil {
		return nil, err
	}

	return w.Bytes()
}

func renderManifest(info Info, files []string) ([]byte, error) {
	m := Manifest{
		Name:        info.Name,
		Slug:        info.Slug,
		Version:     info.Version,
		Author:      info.Author,
		Description: info.Description,
		Category:    info.Category,
		Source:      info.Source,
		InstalledAt: nil,
		Files:       files,
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding manifest: %w", err)
	}
	return append(data, '\n'), nil
}

func isGeneratedName(name string) bool {
	return name == ManifestEntry || name == InstructionsEntry || name == InstallerEntry
}
