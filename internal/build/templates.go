package build

import "text/template"

// installMD covers the three supported install methods. The concrete file
// list is interpolated so buyers see exactly what lands in their workspace.
var installMD = template.Must(template.New("install.md").Parse(`# Installing {{.Name}}

This archive contains the following files:

{{range .Files}}- ` + "`{{.}}`" + `
{{end}}
## Option 1: Installer script

Run the included installer. It backs up any files it would overwrite before
copying anything into place:

    cd ~/Downloads
    unzip {{.Slug}}.zip -d {{.Slug}}
    cd {{.Slug}}
    sh install.sh

Backups land in ` + "`$HOME/.openclaw/workspace/.molt-mart-backup/<timestamp>/`" + `.
Set ` + "`MOLT_WORKSPACE`" + ` to install somewhere other than the default workspace.

## Option 2: Manual copy

Extract the archive and copy each file listed above into your workspace:

    unzip {{.Slug}}.zip -d {{.Slug}}
{{range .Files}}    cp {{$.Slug}}/{{.}} ~/.openclaw/workspace/{{.}}
{{end}}
See ` + "`molt-mart.json`" + ` for the authoritative file list.

## Option 3: Ask your agent

Tell your OpenClaw agent:

    "Install the {{.Name}} template I just downloaded"

The agent reads ` + "`molt-mart.json`" + ` from the archive and handles the copy with
your approval.
`))

// installSH is a POSIX shell installer. It never overwrites silently: any
// pre-existing target file is copied to a timestamped backup directory
// before the new version goes in.
var installSH = template.Must(template.New("install.sh").Parse(`#!/bin/sh
# Installer for {{.Name}} ({{.Slug}} v{{.Version}}), generated by Molt Mart.
set -eu

WORKSPACE="${MOLT_WORKSPACE:-$HOME/.openclaw/workspace}"
STAMP="$(date +%Y%m%d-%H%M%S)"
BACKUP="$WORKSPACE/.molt-mart-backup/$STAMP"

mkdir -p "$WORKSPACE"

printf '%s\n' \
{{range .Files}}	'{{.}}' \
{{end}}| while IFS= read -r f; do
	[ -n "$f" ] || continue
	if [ -e "$WORKSPACE/$f" ]; then
		mkdir -p "$BACKUP/$(dirname "$f")"
		cp "$WORKSPACE/$f" "$BACKUP/$f"
		echo "backed up $f"
	fi
	mkdir -p "$WORKSPACE/$(dirname "$f")"
	cp "$f" "$WORKSPACE/$f"
	echo "installed $f"
done

echo "{{.Name}} installed into $WORKSPACE"
echo "Backups (if any): $BACKUP"
`))
