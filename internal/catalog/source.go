package catalog

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

//go:embed data/*.json
var defaultData embed.FS

// Source supplies catalog documents. The catalog's authoring format is
// owned elsewhere; a Source only has to deliver already-authored records.
type Source interface {
	Load() ([]Document, error)
}

// FSSource reads every *.json document in Dir of FS, in name order.
type FSSource struct {
	FS  fs.FS
	Dir string
}

// DefaultSource returns the catalog embedded in the binary.
func DefaultSource() FSSource {
	return FSSource{FS: defaultData, Dir: "data"}
}

// Load reads and decodes all documents. Unknown fields are rejected so
// authoring typos fail at startup instead of silently dropping content.
func (s FSSource) Load() ([]Document, error) {
	dir := s.Dir
	if dir == "" {
		dir = "."
	}
	entries, err := fs.ReadDir(s.FS, dir)
	if err != nil {
		return nil, fmt.Errorf("read catalog dir %q: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	docs := make([]Document, 0, len(names))
	for _, name := range names {
		p := path.Join(dir, name)
		data, err := fs.ReadFile(s.FS, p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		var doc Document
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("parse %s: %w", p, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// StaticSource serves in-memory documents.
type StaticSource []Document

func (s StaticSource) Load() ([]Document, error) {
	return s, nil
}

// Modules wraps module records in a single current-version document.
func Modules(mods ...Module) StaticSource {
	return StaticSource{{FormatVersion: "v1.0.0", Modules: mods}}
}
