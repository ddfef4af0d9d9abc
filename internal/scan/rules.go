package scan

import "regexp"

// Rule pairs a pattern with a human-readable label. Rules are evaluated in
// order and each rule contributes at most one finding per file.
type Rule struct {
	Label   string
	Pattern *regexp.Regexp
}

// Match reports whether the rule fires on the given text.
func (r Rule) Match(text string) bool {
	return r.Pattern.MatchString(text)
}

// DefaultRules is the fixed ordered rule set applied to text entries.
// Ordering is part of the contract: findings are reported in rule order
// within a file, and the sequence here determines it.
var DefaultRules = []Rule{
	{"Destructive shell command (rm -rf)", regexp.MustCompile(`(?i)rm\s+-rf`)},
	{"Remote code execution (curl|bash)", regexp.MustCompile(`(?i)curl\s.*\|\s*(ba)?sh`)},
	{"Remote code execution (wget|bash)", regexp.MustCompile(`(?i)wget\s.*\|\s*(ba)?sh`)},
	{"eval() usage", regexp.MustCompile(`(?i)eval\s*\(`)},
	{"exec() usage", regexp.MustCompile(`(?i)exec\s*\(`)},
	{"child_process module reference", regexp.MustCompile(`(?i)child_process`)},
	{"Credential harvesting pattern", regexp.MustCompile(`(?i)process\.env\.(API_KEY|SECRET|TOKEN|PASSWORD|CREDENTIAL)`)},
	{"Obfuscated code (hex sequences)", regexp.MustCompile(`(?i)\\x[0-9a-f]{2}(\\x[0-9a-f]{2}){5,}`)},
	{"Base64 encode/decode (potential obfuscation)", regexp.MustCompile(`(?i)atob\s*\(|btoa\s*\(`)},
	{"Obfuscated string construction", regexp.MustCompile(`(?i)String\.fromCharCode\s*\(\s*\d+(\s*,\s*\d+){10,}`)},
	{"External URL fetch", regexp.MustCompile("(?i)fetch\\s*\\(\\s*['\"`]https?://")},
	{"XMLHttpRequest usage", regexp.MustCompile(`(?i)XMLHttpRequest`)},
	{"Executable file reference", regexp.MustCompile(`(?i)\.exe\b|\.bat\b|\.cmd\b|\.sh\b|\.ps1\b`)},
}

// binaryExtensions is the denylist of executable and platform-package
// formats that have no business inside a text-oriented artifact.
var binaryExtensions = map[string]bool{
	".exe": true, ".dll": true, ".so": true, ".dylib": true,
	".bin": true, ".com": true, ".bat": true, ".cmd": true,
	".ps1": true, ".sh": true, ".msi": true, ".dmg": true,
	".app": true, ".deb": true, ".rpm": true,
}

// textExtensions is the allowlist of text-like formats whose contents are
// decoded and run through the rule set.
var textExtensions = map[string]bool{
	"md": true, "txt": true, "json": true, "yaml": true, "yml": true,
	"toml": true, "js": true, "ts": true, "py": true, "sh": true,
	"bat": true, "cfg": true, "conf": true, "ini": true, "xml": true,
	"html": true, "css": true,
}
