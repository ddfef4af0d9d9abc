package mart

import (
	"strings"

	"molt-mart/internal/archive"
)

// Preview capture bounds. The captured set is deliberately small: two named
// documents plus a capped entry-name list, never the full archive.
const (
	previewDocLimit  = 2000 // characters kept per captured document
	previewListLimit = 50   // entry names kept
)

// capturePreview extracts the display fragments from an opened archive.
// SOUL.md and AGENTS.md are matched case-insensitively by suffix; the first
// match of each wins.
func capturePreview(a *archive.Archive) Preview {
	var p Preview

	files := a.Files()
	if len(files) > previewListLimit {
		p.FileList = append(p.FileList, files[:previewListLimit]...)
	} else {
		p.FileList = append(p.FileList, files...)
	}

	for _, name := range files {
		lower := strings.ToLower(name)
		if strings.HasSuffix(lower, "soul.md") && p.SoulMD == "" {
			if text, err := a.ReadText(name); err == nil {
				p.SoulMD = truncate(text, previewDocLimit)
			}
		}
		if strings.HasSuffix(lower, "agents.md") && p.AgentsMD == "" {
			if text, err := a.ReadText(name); err == nil {
				p.AgentsMD = truncate(text, previewDocLimit)
			}
		}
	}
	return p
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
