package catalog

import (
	"fmt"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/abhisek/lingua/internal/apperr"
)

// supportedMajor is the only catalog format major version understood.
const supportedMajor = "v1"

// SchemaSet answers whether an interaction schema id is registered.
type SchemaSet interface {
	HasSchema(id string) bool
}

// validateDocuments performs all structural checks on the loaded documents.
// Returns a combined error describing all problems found, or nil if valid.
func validateDocuments(docs []Document) error {
	var errs []string

	moduleIDs := make(map[string]bool)
	total := 0
	for di, doc := range docs {
		if err := checkFormatVersion(doc.FormatVersion); err != nil {
			errs = append(errs, fmt.Sprintf("document %d: %v", di, err))
		}

		for _, m := range doc.Modules {
			total++
			if m.ID == "" {
				errs = append(errs, fmt.Sprintf("document %d: module with empty id", di))
				continue
			}
			if moduleIDs[m.ID] {
				errs = append(errs, fmt.Sprintf("duplicate module ID: %q", m.ID))
			}
			moduleIDs[m.ID] = true

			if m.Title == "" && m.Titles[DefaultLanguage] == "" {
				errs = append(errs, fmt.Sprintf("module %q has no title", m.ID))
			}
			if len(m.SourceLanguages) == 0 {
				errs = append(errs, fmt.Sprintf("module %q declares no source languages", m.ID))
			}
			for _, lang := range m.SourceLanguages {
				if _, err := CanonicalLanguage(lang); err != nil {
					errs = append(errs, fmt.Sprintf("module %q: invalid source language %q", m.ID, lang))
				}
			}

			errs = append(errs, validateSubmodules(m)...)
		}
	}

	if total == 0 {
		errs = append(errs, "catalog contains no modules")
	}

	if len(errs) > 0 {
		return apperr.Configf("catalog", "validation failed:\n  %s", strings.Join(errs, "\n  "))
	}
	return nil
}

func validateSubmodules(m Module) []string {
	var errs []string
	seen := make(map[string]bool, len(m.Submodules))
	for _, sub := range m.Submodules {
		if sub.ID == "" {
			errs = append(errs, fmt.Sprintf("module %q: submodule with empty id", m.ID))
			continue
		}
		if seen[sub.ID] {
			errs = append(errs, fmt.Sprintf("module %q: duplicate submodule ID %q", m.ID, sub.ID))
		}
		seen[sub.ID] = true

		schemas := make(map[string]bool, len(sub.SchemaIDs))
		for _, id := range sub.SchemaIDs {
			if schemas[id] {
				errs = append(errs, fmt.Sprintf("submodule %s/%s lists schema %q twice", m.ID, sub.ID, id))
			}
			schemas[id] = true
		}
		for id := range sub.PromptOverrides {
			if !schemas[id] {
				errs = append(errs, fmt.Sprintf("submodule %s/%s overrides prompts for unsupported schema %q", m.ID, sub.ID, id))
			}
		}
	}
	return errs
}

// checkFormatVersion accepts any v1.x.y version, with or without the "v".
func checkFormatVersion(v string) error {
	if v == "" {
		return fmt.Errorf("missing format_version")
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return fmt.Errorf("invalid format_version %q", v)
	}
	if major := semver.Major(v); major != supportedMajor {
		return fmt.Errorf("unsupported format_version %q (want %s.x.y)", v, supportedMajor)
	}
	return nil
}

// ValidateAgainst checks that every schema id referenced by a submodule is
// registered in schemas. It is run once when the engine is assembled.
func (c *Catalog) ValidateAgainst(schemas SchemaSet) error {
	idx, err := c.index()
	if err != nil {
		return err
	}

	var errs []string
	for _, m := range idx.modules {
		for _, sub := range m.Submodules {
			for _, id := range sub.SchemaIDs {
				if !schemas.HasSchema(id) {
					errs = append(errs, fmt.Sprintf("submodule %s/%s references unknown schema %q", m.ID, sub.ID, id))
				}
			}
		}
	}
	if len(errs) > 0 {
		return apperr.Configf("catalog", "schema references invalid:\n  %s", strings.Join(errs, "\n  "))
	}
	return nil
}
