// Package interaction holds the registry of exercise types. Like the
// content catalog it is loaded exactly once and read-only afterwards.
package interaction

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/abhisek/lingua/internal/apperr"
	"github.com/abhisek/lingua/internal/llm"
)

// ErrSchemaNotFound is returned (wrapped with a configuration error) for
// ids that are not registered.
var ErrSchemaNotFound = errors.New("interaction schema not found")

type table struct {
	byID    map[string]Schema
	ordered []Schema
}

// Registry indexes interaction schemas by id.
type Registry struct {
	t atomic.Pointer[table]
}

// NewRegistry returns an empty, uninitialized registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Initialize validates and registers schemas. Any invalid entry rejects
// the whole set and leaves the registry uninitialized.
func (r *Registry) Initialize(schemas []Schema) error {
	if r.t.Load() != nil {
		return apperr.ErrAlreadyInitialized
	}
	if err := validateSchemas(schemas); err != nil {
		return err
	}

	t := &table{byID: make(map[string]Schema, len(schemas))}
	for _, s := range schemas {
		t.byID[s.ID] = s
		t.ordered = append(t.ordered, s)
	}
	sort.Slice(t.ordered, func(i, j int) bool { return t.ordered[i].ID < t.ordered[j].ID })

	if !r.t.CompareAndSwap(nil, t) {
		return apperr.ErrAlreadyInitialized
	}
	return nil
}

func validateSchemas(schemas []Schema) error {
	var errs []string
	if len(schemas) == 0 {
		errs = append(errs, "no schemas supplied")
	}
	seen := make(map[string]bool, len(schemas))
	contracts := make(map[string]string)
	for i, s := range schemas {
		if s.ID == "" {
			errs = append(errs, fmt.Sprintf("schema %d has empty id", i))
			continue
		}
		if seen[s.ID] {
			errs = append(errs, fmt.Sprintf("duplicate schema ID: %q", s.ID))
		}
		seen[s.ID] = true
		if !s.Skill.Valid() {
			errs = append(errs, fmt.Sprintf("schema %q has invalid skill %q", s.ID, s.Skill))
		}
		for name, p := range map[string]Phase{"generation": s.Generation, "marking": s.Marking} {
			if p.Contract == nil || p.Contract.Name == "" {
				errs = append(errs, fmt.Sprintf("schema %q: %s contract missing", s.ID, name))
			} else if msg := checkContract(contracts, p.Contract); msg != "" {
				errs = append(errs, fmt.Sprintf("schema %q: %s", s.ID, msg))
			}
			if p.BuildPrompt == nil {
				errs = append(errs, fmt.Sprintf("schema %q: %s prompt builder missing", s.ID, name))
			}
		}
	}
	if len(errs) > 0 {
		sort.Strings(errs)
		return apperr.Configf("interaction registry", "validation failed:\n  %s", strings.Join(errs, "\n  "))
	}
	return nil
}

// checkContract records the contract's definition under its name and
// reports a name reused with a different definition.
func checkContract(seen map[string]string, c *llm.Schema) string {
	def, err := json.Marshal(c.Definition)
	if err != nil {
		return fmt.Sprintf("contract %q does not encode: %v", c.Name, err)
	}
	prev, ok := seen[c.Name]
	if !ok {
		seen[c.Name] = string(def)
		return ""
	}
	if prev != string(def) {
		return fmt.Sprintf("contract %q is defined twice with different definitions", c.Name)
	}
	return ""
}

func (r *Registry) table() (*table, error) {
	t := r.t.Load()
	if t == nil {
		return nil, apperr.ErrNotInitialized
	}
	return t, nil
}

// GetSchema returns the schema registered under id.
func (r *Registry) GetSchema(id string) (Schema, error) {
	t, err := r.table()
	if err != nil {
		return Schema{}, err
	}
	s, ok := t.byID[id]
	if !ok {
		return Schema{}, fmt.Errorf("%w: %w", ErrSchemaNotFound, apperr.Configf("schema "+id, "not registered"))
	}
	return s, nil
}

// GetAllSchemas returns all schemas ordered by id.
func (r *Registry) GetAllSchemas() ([]Schema, error) {
	t, err := r.table()
	if err != nil {
		return nil, err
	}
	return append([]Schema(nil), t.ordered...), nil
}

// HasSchema reports whether id is registered. It is false before
// Initialize.
func (r *Registry) HasSchema(id string) bool {
	t := r.t.Load()
	if t == nil {
		return false
	}
	_, ok := t.byID[id]
	return ok
}

// SkillOf returns the skill tag of a registered schema.
func (r *Registry) SkillOf(id string) (Skill, bool, error) {
	t, err := r.table()
	if err != nil {
		return "", false, err
	}
	s, ok := t.byID[id]
	return s.Skill, ok, nil
}
