// Package scan inspects uploaded archive bytes for suspicious content
// without executing anything inside them. A scan is a pure function of the
// input buffer: identical bytes always produce an identical verdict.
package scan

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"molt-mart/internal/archive"
)

// Status classifies a scan outcome.
type Status string

const (
	StatusClean    Status = "clean"
	StatusFlagged  Status = "flagged"
	StatusRejected Status = "rejected"
)

// Verdict is the immutable result of one scan pass over one byte buffer.
type Verdict struct {
	Status      Status
	Findings    []string
	EntryCount  int
	Fingerprint string
}

// Policy holds the classification boundary. This is the single source of
// truth for how findings map to a status: zero findings is clean, RejectAt
// or more is rejected, anything in between is flagged.
type Policy struct {
	RejectAt int
}

// DefaultPolicy rejects at three findings.
var DefaultPolicy = Policy{RejectAt: 3}

// Scanner applies structural and pattern heuristics to archive bytes.
type Scanner struct {
	rules  []Rule
	policy Policy
}

// NewScanner creates a scanner with the given rule set and policy.
// A zero or negative RejectAt falls back to DefaultPolicy.
func NewScanner(rules []Rule, policy Policy) *Scanner {
	if policy.RejectAt <= 0 {
		policy = DefaultPolicy
	}
	return &Scanner{rules: rules, policy: policy}
}

// NewDefaultScanner creates a scanner with DefaultRules and DefaultPolicy.
func NewDefaultScanner() *Scanner {
	return NewScanner(DefaultRules, DefaultPolicy)
}

// Scan inspects data and produces a verdict. Scanning never fails for
// content reasons; a fundamentally corrupt archive yields an early rejection
// with a single explanatory finding.
func (s *Scanner) Scan(data []byte) Verdict {
	sum := sha256.Sum256(data)
	fingerprint := hex.EncodeToString(sum[:])

	a, err := archive.Open(data)
	if err != nil {
		return Verdict{
			Status:      StatusRejected,
			Findings:    []string{"Invalid or corrupt archive"},
			EntryCount:  0,
			Fingerprint: fingerprint,
		}
	}

	files := a.Files()
	var findings []string

	// Structural pass: denylisted binary formats.
	for _, name := range files {
		if binaryExtensions[extOf(name)] {
			findings = append(findings, fmt.Sprintf("Unexpected binary file: %s", name))
		}
	}

	// Content pass: decode text-like entries and apply the rule set.
	for _, name := range files {
		if !textExtensions[strings.TrimPrefix(extOf(name), ".")] {
			continue
		}
		text, err := a.ReadText(name)
		if err != nil {
			if errors.Is(err, archive.ErrNotText) {
				findings = append(findings, fmt.Sprintf("Unreadable file with text extension: %s", name))
			}
			// Any other read error degrades to no finding for this entry;
			// the archive as a whole already parsed.
			continue
		}
		for _, rule := range s.rules {
			if rule.Match(text) {
				findings = append(findings, fmt.Sprintf("%s in %s", rule.Label, name))
			}
		}
	}

	return Verdict{
		Status:      s.classify(len(findings)),
		Findings:    findings,
		EntryCount:  len(files),
		Fingerprint: fingerprint,
	}
}

func (s *Scanner) classify(findings int) Status {
	switch {
	case findings == 0:
		return StatusClean
	case findings >= s.policy.RejectAt:
		return StatusRejected
	default:
		return StatusFlagged
	}
}

// extOf returns the lowercased final extension of name including the dot,
// or "" when name has none.
func extOf(name string) string {
	idx := strings.LastIndexByte(name, '.')
	if idx < 0 || idx == len(name)-1 {
		return ""
	}
	return strings.ToLower(name[idx:])
}
