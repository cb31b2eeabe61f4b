package interaction

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/abhisek/lingua/internal/apperr"
	"github.com/abhisek/lingua/internal/llm"
)

func TestBuiltinsRegister(t *testing.T) {
	r := NewRegistry()
	if err := r.Initialize(Builtins()); err != nil {
		t.Fatalf("initialize builtins: %v", err)
	}

	all, err := r.GetAllSchemas()
	if err != nil {
		t.Fatalf("get all: %v", err)
	}
	if len(all) != 6 {
		t.Fatalf("expected 6 builtin schemas, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].ID >= all[i].ID {
			t.Fatalf("schemas not ordered by id: %s before %s", all[i-1].ID, all[i].ID)
		}
	}

	want := map[string]Skill{
		MultipleChoice:       SkillReading,
		GapFill:              SkillWriting,
		Translation:          SkillWriting,
		ListeningChoice:      SkillListening,
		ReadingComprehension: SkillReading,
		SpokenResponse:       SkillSpeaking,
	}
	for id, skill := range want {
		got, ok, err := r.SkillOf(id)
		if err != nil || !ok {
			t.Fatalf("SkillOf(%s): ok=%v err=%v", id, ok, err)
		}
		if got != skill {
			t.Errorf("%s skill = %s, want %s", id, got, skill)
		}
	}
}

func TestReadsBeforeInitialize(t *testing.T) {
	r := NewRegistry()
	if _, err := r.GetSchema(GapFill); !errors.Is(err, apperr.ErrNotInitialized) {
		t.Errorf("GetSchema: expected ErrNotInitialized, got %v", err)
	}
	if _, err := r.GetAllSchemas(); !errors.Is(err, apperr.ErrNotInitialized) {
		t.Errorf("GetAllSchemas: expected ErrNotInitialized, got %v", err)
	}
	if r.HasSchema(GapFill) {
		t.Error("HasSchema must be false before initialize")
	}
}

func TestInitializeTwice(t *testing.T) {
	r := NewRegistry()
	if err := r.Initialize(Builtins()); err != nil {
		t.Fatal(err)
	}
	if err := r.Initialize(Builtins()); !errors.Is(err, apperr.ErrAlreadyInitialized) {
		t.Fatalf("expected ErrAlreadyInitialized, got %v", err)
	}
}

func TestGetSchemaUnknown(t *testing.T) {
	r := NewRegistry()
	if err := r.Initialize(Builtins()); err != nil {
		t.Fatal(err)
	}
	_, err := r.GetSchema("essay")
	if !errors.Is(err, ErrSchemaNotFound) {
		t.Errorf("expected ErrSchemaNotFound, got %v", err)
	}
	if !apperr.IsConfiguration(err) {
		t.Errorf("expected configuration error, got %v", err)
	}
}

func TestInitializeRejectsInvalidSet(t *testing.T) {
	good := Builtins()[0]

	tests := []struct {
		name    string
		schemas []Schema
		wantErr string
	}{
		{"empty", nil, "no schemas"},
		{"duplicate", []Schema{good, good}, "duplicate schema ID"},
		{"bad skill", []Schema{func() Schema { s := good; s.Skill = "juggling"; return s }()}, "invalid skill"},
		{"missing contract", []Schema{func() Schema { s := good; s.Marking.Contract = nil; return s }()}, "marking contract missing"},
		{"missing builder", []Schema{func() Schema { s := good; s.Generation.BuildPrompt = nil; return s }()}, "generation prompt builder missing"},
		{"empty id", []Schema{func() Schema { s := good; s.ID = ""; return s }()}, "empty id"},
		{"contract name reused", []Schema{good, func() Schema {
			s := Builtins()[1]
			s.Generation.Contract = &llm.Schema{Name: good.Generation.Contract.Name, Definition: map[string]any{"type": "string"}}
			return s
		}()}, "defined twice with different definitions"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			err := r.Initialize(tt.schemas)
			if !apperr.IsConfiguration(err) {
				t.Fatalf("expected configuration error, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q should mention %q", err, tt.wantErr)
			}
			if r.HasSchema(good.ID) {
				t.Error("registry must stay empty after a rejected set")
			}
		})
	}
}

func compile(t *testing.T, s *llm.Schema) *jsonschema.Schema {
	t.Helper()
	raw, err := json.Marshal(s.Definition)
	if err != nil {
		t.Fatalf("marshal %s: %v", s.Name, err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("parse %s: %v", s.Name, err)
	}
	c := jsonschema.NewCompiler()
	url := "schema://" + s.Name + ".json"
	if err := c.AddResource(url, doc); err != nil {
		t.Fatalf("add %s: %v", s.Name, err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		t.Fatalf("compile %s: %v", s.Name, err)
	}
	return compiled
}

func TestContractsCompile(t *testing.T) {
	for _, s := range Builtins() {
		compile(t, s.Generation.Contract)
		compile(t, s.Marking.Contract)
	}
}

func TestMarkingContract(t *testing.T) {
	c := compile(t, MarkingContract)

	tests := []struct {
		doc   string
		valid bool
	}{
		{`{"is_correct":true,"score":100,"feedback":"Bien.","correct_answer":""}`, true},
		{`{"is_correct":false,"score":0,"feedback":"No.","correct_answer":"suis"}`, true},
		{`{"is_correct":false,"score":101,"feedback":"No.","correct_answer":""}`, false},
		{`{"is_correct":false,"score":-1,"feedback":"No.","correct_answer":""}`, false},
		{`{"is_correct":false,"score":10,"feedback":"","correct_answer":""}`, false},
		{`{"is_correct":"yes","score":10,"feedback":"ok","correct_answer":""}`, false},
		{`{"is_correct":true,"score":10,"feedback":"ok"}`, false},
	}
	for _, tt := range tests {
		v, err := jsonschema.UnmarshalJSON(strings.NewReader(tt.doc))
		if err != nil {
			t.Fatalf("bad fixture %s: %v", tt.doc, err)
		}
		err = c.Validate(v)
		if (err == nil) != tt.valid {
			t.Errorf("%s: valid=%v, err=%v", tt.doc, tt.valid, err)
		}
	}
}

func TestGenerationPromptsCarryContext(t *testing.T) {
	pc := PromptContext{
		ModuleTitle:    "French: the present tense",
		SubmoduleTitle: "Être and avoir",
		Context:        "Use être and avoir",
		TargetLanguage: "fr",
		SourceLanguage: "en",
	}
	for _, s := range Builtins() {
		p := s.Generation.BuildPrompt(pc)
		for _, want := range []string{pc.ModuleTitle, pc.SubmoduleTitle, pc.Context, "Target language: fr", "Source language: en"} {
			if !strings.Contains(p, want) {
				t.Errorf("%s generation prompt missing %q", s.ID, want)
			}
		}
		if p != s.Generation.BuildPrompt(pc) {
			t.Errorf("%s generation prompt is not deterministic", s.ID)
		}
	}
}

func TestMarkingPromptsCarryAnswer(t *testing.T) {
	pc := PromptContext{
		ModuleTitle:    "M",
		SubmoduleTitle: "S",
		TargetLanguage: "fr",
		SourceLanguage: "en",
		QuestionData:   json.RawMessage(`{"sentence":"Je ___ faim","answer":"ai"}`),
		UserAnswer:     "suis",
	}
	for _, s := range Builtins() {
		p := s.Marking.BuildPrompt(pc)
		if !strings.Contains(p, `"sentence":"Je ___ faim"`) || !strings.Contains(p, "suis") {
			t.Errorf("%s marking prompt missing question or answer:\n%s", s.ID, p)
		}
	}

	pc.UserAnswer = "  "
	if p := Builtins()[0].Marking.BuildPrompt(pc); !strings.Contains(p, "(empty)") {
		t.Error("blank answers should be shown as (empty)")
	}
}

func TestRender(t *testing.T) {
	pc := PromptContext{
		ModuleTitle:    "M",
		SubmoduleTitle: "S",
		Context:        "ctx",
		TargetLanguage: "fr",
		SourceLanguage: "es",
		QuestionData:   json.RawMessage(`{"text":"hola"}`),
		UserAnswer:     "bonjour",
	}
	got := Render("{{module}}/{{submodule}}/{{context}}/{{target_language}}/{{source_language}}/{{question}}/{{answer}}/{{unknown}}", pc)
	want := `M/S/ctx/fr/es/{"text":"hola"}/bonjour/{{unknown}}`
	if got != want {
		t.Errorf("Render = %q, want %q", got, want)
	}
}
