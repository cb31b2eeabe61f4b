// Package catalog is the immutable in-memory index of learning modules.
//
// A Catalog is created empty, loaded exactly once with Initialize and is
// read-only afterwards, so concurrent reads need no locking. Every read
// before a successful Initialize fails with apperr.ErrNotInitialized.
package catalog

import (
	"sort"
	"sync/atomic"

	"github.com/samber/lo"

	"github.com/abhisek/lingua/internal/apperr"
)

// index holds the loaded modules with precomputed lookups.
type index struct {
	modules []Module // sorted by ID
	byID    map[string]*Module
}

// Catalog is the module index.
type Catalog struct {
	idx atomic.Pointer[index]
}

// New returns an uninitialized catalog.
func New() *Catalog {
	return &Catalog{}
}

// Initialize loads and validates all documents from src. On any error the
// catalog stays uninitialized; there is never a partial catalog.
func (c *Catalog) Initialize(src Source) error {
	if c.idx.Load() != nil {
		return apperr.ErrAlreadyInitialized
	}

	docs, err := src.Load()
	if err != nil {
		return apperr.Configf("catalog", "load: %v", err)
	}
	if err := validateDocuments(docs); err != nil {
		return err
	}

	idx := buildIndex(docs)
	if !c.idx.CompareAndSwap(nil, idx) {
		return apperr.ErrAlreadyInitialized
	}
	return nil
}

func buildIndex(docs []Document) *index {
	var mods []Module
	for _, d := range docs {
		mods = append(mods, d.Modules...)
	}
	sort.Slice(mods, func(i, j int) bool { return mods[i].ID < mods[j].ID })

	idx := &index{
		modules: mods,
		byID:    make(map[string]*Module, len(mods)),
	}
	for i := range idx.modules {
		idx.byID[idx.modules[i].ID] = &idx.modules[i]
	}
	return idx
}

func (c *Catalog) index() (*index, error) {
	idx := c.idx.Load()
	if idx == nil {
		return nil, apperr.ErrNotInitialized
	}
	return idx, nil
}

// Initialized reports whether Initialize has succeeded.
func (c *Catalog) Initialized() bool {
	return c.idx.Load() != nil
}

// GetModule returns a projection of the module with titles resolved to
// lang. Unknown ids report ok=false without an error.
func (c *Catalog) GetModule(id, lang string) (ModuleView, bool, error) {
	idx, err := c.index()
	if err != nil {
		return ModuleView{}, false, err
	}
	m, ok := idx.byID[id]
	if !ok {
		return ModuleView{}, false, nil
	}
	return project(m, lang), true, nil
}

// GetAllModules returns projections of every module, ordered by id.
func (c *Catalog) GetAllModules(lang string) ([]ModuleView, error) {
	idx, err := c.index()
	if err != nil {
		return nil, err
	}
	return lo.Map(idx.modules, func(m Module, _ int) ModuleView {
		return project(&m, lang)
	}), nil
}

// GetModulesForLanguage returns the modules offered to learners speaking
// lang, with titles in that language. Regional variants match their base
// language ("en-GB" matches a module offered in "en").
func (c *Catalog) GetModulesForLanguage(lang string) ([]ModuleView, error) {
	idx, err := c.index()
	if err != nil {
		return nil, err
	}
	want := baseLanguage(lang)
	matching := lo.Filter(idx.modules, func(m Module, _ int) bool {
		return lo.ContainsBy(m.SourceLanguages, func(l string) bool {
			return l == lang || baseLanguage(l) == want
		})
	})
	return lo.Map(matching, func(m Module, _ int) ModuleView {
		return project(&m, lang)
	}), nil
}

// Module returns the full definition of a module. The returned value
// shares slices with the catalog and must not be modified.
func (c *Catalog) Module(id string) (Module, error) {
	idx, err := c.index()
	if err != nil {
		return Module{}, err
	}
	m, ok := idx.byID[id]
	if !ok {
		return Module{}, apperr.Configf("module "+id, "not in catalog")
	}
	return *m, nil
}

// Submodule returns one submodule definition of a module.
func (c *Catalog) Submodule(moduleID, submoduleID string) (Submodule, error) {
	m, err := c.Module(moduleID)
	if err != nil {
		return Submodule{}, err
	}
	sub, ok := m.Submodule(submoduleID)
	if !ok {
		return Submodule{}, apperr.Configf("submodule "+moduleID+"/"+submoduleID, "not in catalog")
	}
	return sub, nil
}

func project(m *Module, lang string) ModuleView {
	if lang == "" {
		lang = DefaultLanguage
	}
	return ModuleView{
		ID:       m.ID,
		Title:    resolveTitle(m.Title, m.Titles, lang),
		Language: lang,
		Submodules: lo.Map(m.Submodules, func(s Submodule, _ int) SubmoduleView {
			return SubmoduleView{
				ID:        s.ID,
				Title:     resolveTitle(s.Title, s.Titles, lang),
				Context:   s.Context,
				SchemaIDs: append([]string(nil), s.SchemaIDs...),
			}
		}),
		SourceLanguages: append([]string(nil), m.SourceLanguages...),
	}
}
