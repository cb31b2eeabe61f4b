package interaction

import (
	"encoding/json"
	"strings"

	"github.com/abhisek/lingua/internal/llm"
)

// Skill tags the language skill an exercise type trains. Performance is
// aggregated per skill.
type Skill string

const (
	SkillReading   Skill = "reading"
	SkillWriting   Skill = "writing"
	SkillListening Skill = "listening"
	SkillSpeaking  Skill = "speaking"
)

// AllSkills returns every skill in display order.
func AllSkills() []Skill {
	return []Skill{SkillReading, SkillWriting, SkillListening, SkillSpeaking}
}

// Valid reports whether s is one of the known skills.
func (s Skill) Valid() bool {
	switch s {
	case SkillReading, SkillWriting, SkillListening, SkillSpeaking:
		return true
	}
	return false
}

// PromptContext is everything a prompt builder may use. Builders are pure
// functions of this value.
type PromptContext struct {
	ModuleTitle    string
	SubmoduleTitle string
	Context        string
	TargetLanguage string
	SourceLanguage string

	// QuestionData and UserAnswer are set for marking prompts only.
	QuestionData json.RawMessage
	UserAnswer   string
}

// PromptBuilder renders the prompt text for one phase of an exercise.
type PromptBuilder func(PromptContext) string

// Phase pairs a structural contract with the prompt that asks for it.
type Phase struct {
	Contract    *llm.Schema
	BuildPrompt PromptBuilder
}

// Schema is a reusable exercise type. Generation and marking are
// independent so either can evolve without touching the other.
type Schema struct {
	ID    string
	Skill Skill

	// Component identifies the UI widget that renders this exercise. The
	// engine passes it through without interpreting it.
	Component string

	Generation Phase
	Marking    Phase
}

// Render fills a prompt template authored in the catalog. Supported
// placeholders: {{module}}, {{submodule}}, {{context}},
// {{target_language}}, {{source_language}}, {{question}} and {{answer}}.
func Render(template string, pc PromptContext) string {
	r := strings.NewReplacer(
		"{{module}}", pc.ModuleTitle,
		"{{submodule}}", pc.SubmoduleTitle,
		"{{context}}", pc.Context,
		"{{target_language}}", pc.TargetLanguage,
		"{{source_language}}", pc.SourceLanguage,
		"{{question}}", string(pc.QuestionData),
		"{{answer}}", pc.UserAnswer,
	)
	return r.Replace(template)
}
