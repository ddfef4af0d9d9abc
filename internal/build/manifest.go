package build

// Manifest is the machine-readable description embedded in every rebuilt
// download archive as molt-mart.json. Key names and ordering are part of
// the download format; installers and agents parse this file.
type Manifest struct {
	Name        string   `json:"name"`
	Slug        string   `json:"slug"`
	Version     string   `json:"version"`
	Author      string   `json:"author"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Source      string   `json:"source"`
	InstalledAt *string  `json:"installed_at"` // always null at generation time
	Files       []string `json:"files"`
}

// Info carries the listing metadata interpolated into the generated
// manifest, instructions and installer.
type Info struct {
	Name        string
	Slug        string
	Version     string
	Author      string
	Description string
	Category    string
	Source      string
}
