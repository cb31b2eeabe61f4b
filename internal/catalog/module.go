package catalog

import "github.com/samber/lo"

// DefaultLanguage is the language whose strings are used when a
// translation is missing.
const DefaultLanguage = "en"

// Document is one catalog file.
type Document struct {
	// FormatVersion is a semantic version ("v1.2.0"). Only major version 1
	// is understood.
	FormatVersion string   `json:"format_version"`
	Modules       []Module `json:"modules"`
}

// Module is a top-level content grouping, such as a grammar topic.
type Module struct {
	ID     string            `json:"id"`
	Title  string            `json:"title"`
	Titles map[string]string `json:"titles,omitempty"`

	Submodules []Submodule `json:"submodules"`

	// SourceLanguages lists the learner languages this module is offered in.
	SourceLanguages []string `json:"source_languages"`
}

// Submodule is a focused exercise topic within a module.
type Submodule struct {
	ID     string            `json:"id"`
	Title  string            `json:"title"`
	Titles map[string]string `json:"titles,omitempty"`

	// Context describes the primary task; it is fed into every prompt.
	Context string `json:"context"`

	// SchemaIDs lists the interaction schemas this submodule supports.
	SchemaIDs []string `json:"schemas"`

	// PromptOverrides replaces a schema's default prompts for this
	// submodule, keyed by schema id.
	PromptOverrides map[string]PromptOverride `json:"prompt_overrides,omitempty"`
}

// PromptOverride holds custom prompt templates for one (submodule, schema)
// pair. Empty fields fall back to the schema's default prompt.
type PromptOverride struct {
	GenerationPrompt string `json:"generation_prompt,omitempty"`
	MarkingPrompt    string `json:"marking_prompt,omitempty"`
}

// Override returns the prompt override for schemaID, if any.
func (s Submodule) Override(schemaID string) (PromptOverride, bool) {
	o, ok := s.PromptOverrides[schemaID]
	return o, ok
}

// Supports reports whether the submodule offers the given schema.
func (s Submodule) Supports(schemaID string) bool {
	return lo.Contains(s.SchemaIDs, schemaID)
}

// ModuleView is a read-only projection of a Module with titles resolved
// to one language.
type ModuleView struct {
	ID              string          `json:"id"`
	Title           string          `json:"title"`
	Language        string          `json:"language"`
	Submodules      []SubmoduleView `json:"submodules"`
	SourceLanguages []string        `json:"source_languages"`
}

// SubmoduleView is a read-only projection of a Submodule.
type SubmoduleView struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Context   string   `json:"context"`
	SchemaIDs []string `json:"schemas"`
}

// TitleFor returns the module title in lang, falling back to the default.
func (m Module) TitleFor(lang string) string {
	return resolveTitle(m.Title, m.Titles, lang)
}

// TitleFor returns the submodule title in lang, falling back to the default.
func (s Submodule) TitleFor(lang string) string {
	return resolveTitle(s.Title, s.Titles, lang)
}

// Submodule returns the submodule with the given id.
func (m Module) Submodule(id string) (Submodule, bool) {
	return lo.Find(m.Submodules, func(s Submodule) bool { return s.ID == id })
}

// OffersLanguage reports whether lang (or its base language) is one of
// the module's source languages.
func (m Module) OffersLanguage(lang string) bool {
	base := baseLanguage(lang)
	for _, l := range m.SourceLanguages {
		if baseLanguage(l) == base {
			return true
		}
	}
	return false
}
