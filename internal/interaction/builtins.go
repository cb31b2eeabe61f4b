package interaction

import (
	"fmt"
	"strings"

	"github.com/abhisek/lingua/internal/llm"
)

// Built-in schema ids.
const (
	MultipleChoice       = "multiple-choice"
	GapFill              = "gap-fill"
	Translation          = "translation"
	ListeningChoice      = "listening-choice"
	ReadingComprehension = "reading-comprehension"
	SpokenResponse       = "spoken-response"
)

// MarkingContract is shared by every built-in schema's marking phase.
var MarkingContract = &llm.Schema{
	Name:        "marking-result",
	Description: "Judgement of a learner answer",
	Definition: object(map[string]any{
		"is_correct": map[string]any{
			"type":        "boolean",
			"description": "Whether the answer is acceptable",
		},
		"score": map[string]any{
			"type":        "integer",
			"minimum":     0,
			"maximum":     100,
			"description": "Quality of the answer from 0 to 100",
		},
		"feedback": map[string]any{
			"type":        "string",
			"minLength":   1,
			"description": "One or two sentences of feedback in the learner's source language",
		},
		"correct_answer": map[string]any{
			"type":        "string",
			"description": "The expected answer when the learner was wrong, otherwise empty",
		},
	}, "is_correct", "score", "feedback", "correct_answer"),
}

func object(props map[string]any, required ...string) map[string]any {
	req := make([]any, len(required))
	for i, r := range required {
		req[i] = r
	}
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             req,
		"additionalProperties": false,
	}
}

func str(desc string) map[string]any {
	return map[string]any{"type": "string", "minLength": 1, "description": desc}
}

func strArray(desc string, min, max int) map[string]any {
	return map[string]any{
		"type":        "array",
		"items":       map[string]any{"type": "string", "minLength": 1},
		"minItems":    min,
		"maxItems":    max,
		"description": desc,
	}
}

// Builtins returns the default exercise types.
func Builtins() []Schema {
	return []Schema{
		{
			ID:        MultipleChoice,
			Skill:     SkillReading,
			Component: "choice-list",
			Generation: Phase{
				Contract: &llm.Schema{
					Name:        "multiple-choice-question",
					Description: "A question with one correct option",
					Definition: object(map[string]any{
						"question":       str("The question, written in the target language"),
						"options":        strArray("Answer options in the target language", 3, 5),
						"correct_option": map[string]any{"type": "integer", "minimum": 0, "maximum": 4},
						"explanation":    str("Why the correct option is right, in the source language"),
					}, "question", "options", "correct_option", "explanation"),
				},
				BuildPrompt: func(pc PromptContext) string {
					return generationPrompt(pc,
						"Write one multiple-choice question with 3 to 5 options. Exactly one option is correct; "+
							"distractors should reflect typical learner mistakes. correct_option is the zero-based index.")
				},
			},
			Marking: Phase{Contract: MarkingContract, BuildPrompt: choiceMarkingPrompt},
		},
		{
			ID:        GapFill,
			Skill:     SkillWriting,
			Component: "gap-fill",
			Generation: Phase{
				Contract: &llm.Schema{
					Name:        "gap-fill-question",
					Description: "A sentence with one blank",
					Definition: object(map[string]any{
						"sentence": map[string]any{
							"type":        "string",
							"pattern":     "___",
							"description": "A sentence in the target language with the blank written as ___",
						},
						"answer": str("The word or words that fill the blank"),
						"hint":   map[string]any{"type": "string", "description": "Optional hint in the source language"},
					}, "sentence", "answer", "hint"),
				},
				BuildPrompt: func(pc PromptContext) string {
					return generationPrompt(pc,
						"Write one sentence with a single blank written as ___ that practises the task. "+
							"Give the exact answer and a short hint that does not reveal it.")
				},
			},
			Marking: Phase{Contract: MarkingContract, BuildPrompt: func(pc PromptContext) string {
				return markingPrompt(pc,
					"Accept the answer if it fills the blank correctly. Ignore capitalisation. "+
						"Minor accent mistakes lower the score but may still be correct.")
			}},
		},
		{
			ID:        Translation,
			Skill:     SkillWriting,
			Component: "free-text",
			Generation: Phase{
				Contract: &llm.Schema{
					Name:        "translation-question",
					Description: "A sentence to translate into the target language",
					Definition: object(map[string]any{
						"text":                  str("A sentence in the source language"),
						"reference_translation": str("One good translation into the target language"),
					}, "text", "reference_translation"),
				},
				BuildPrompt: func(pc PromptContext) string {
					return generationPrompt(pc,
						"Write one short sentence in the source language for the learner to translate into the target language, "+
							"plus a reference translation.")
				},
			},
			Marking: Phase{Contract: MarkingContract, BuildPrompt: func(pc PromptContext) string {
				return markingPrompt(pc,
					"Any natural, grammatical translation with the same meaning is correct, even if it differs from the reference.")
			}},
		},
		{
			ID:        ListeningChoice,
			Skill:     SkillListening,
			Component: "audio-choice",
			Generation: Phase{
				Contract: &llm.Schema{
					Name:        "listening-choice-question",
					Description: "A short utterance to be spoken aloud and a question about it",
					Definition: object(map[string]any{
						"audio_text":     str("The utterance in the target language, to be synthesised as audio"),
						"question":       str("A question about the utterance"),
						"options":        strArray("Answer options", 3, 4),
						"correct_option": map[string]any{"type": "integer", "minimum": 0, "maximum": 3},
					}, "audio_text", "question", "options", "correct_option"),
				},
				BuildPrompt: func(pc PromptContext) string {
					return generationPrompt(pc,
						"Write one or two sentences that will be read aloud to the learner, then a question about them "+
							"with 3 or 4 options. correct_option is the zero-based index.")
				},
			},
			Marking: Phase{Contract: MarkingContract, BuildPrompt: choiceMarkingPrompt},
		},
		{
			ID:        ReadingComprehension,
			Skill:     SkillReading,
			Component: "passage-question",
			Generation: Phase{
				Contract: &llm.Schema{
					Name:        "reading-comprehension-question",
					Description: "A passage and an open question about it",
					Definition: object(map[string]any{
						"passage":         str("A short passage in the target language"),
						"question":        str("An open question about the passage"),
						"expected_answer": str("The information a correct answer must contain"),
					}, "passage", "question", "expected_answer"),
				},
				BuildPrompt: func(pc PromptContext) string {
					return generationPrompt(pc,
						"Write a passage of 3 to 6 sentences and one question that can only be answered by reading it.")
				},
			},
			Marking: Phase{Contract: MarkingContract, BuildPrompt: func(pc PromptContext) string {
				return markingPrompt(pc,
					"The answer is correct if it contains the expected information. It may be written in either language.")
			}},
		},
		{
			ID:        SpokenResponse,
			Skill:     SkillSpeaking,
			Component: "voice-input",
			Generation: Phase{
				Contract: &llm.Schema{
					Name:        "spoken-response-question",
					Description: "A speaking prompt",
					Definition: object(map[string]any{
						"prompt":          str("What the learner should say, written in the source language"),
						"expected_points": strArray("Points a good spoken answer covers", 1, 5),
					}, "prompt", "expected_points"),
				},
				BuildPrompt: func(pc PromptContext) string {
					return generationPrompt(pc,
						"Write a short speaking task the learner can answer in one or two sentences, "+
							"and list the points a good answer covers.")
				},
			},
			Marking: Phase{Contract: MarkingContract, BuildPrompt: func(pc PromptContext) string {
				return markingPrompt(pc,
					"The answer is a speech-recognition transcript. Ignore punctuation and recognition noise; "+
						"judge whether the spoken answer covers the expected points in the target language.")
			}},
		},
	}
}

func header(b *strings.Builder, pc PromptContext) {
	fmt.Fprintf(b, "Module: %s\n", pc.ModuleTitle)
	fmt.Fprintf(b, "Topic: %s\n", pc.SubmoduleTitle)
	if pc.Context != "" {
		fmt.Fprintf(b, "Task: %s\n", pc.Context)
	}
	fmt.Fprintf(b, "Target language: %s\n", pc.TargetLanguage)
	fmt.Fprintf(b, "Source language: %s\n", pc.SourceLanguage)
}

func generationPrompt(pc PromptContext, instructions string) string {
	var b strings.Builder
	header(&b, pc)
	b.WriteString("\n")
	b.WriteString(instructions)
	b.WriteString("\nInstructions and explanations meant for the learner are written in the source language.")
	return b.String()
}

func markingPrompt(pc PromptContext, rules string) string {
	var b strings.Builder
	header(&b, pc)
	b.WriteString("\nExercise:\n")
	b.Write(pc.QuestionData)
	b.WriteString("\n\nLearner answer:\n")
	if strings.TrimSpace(pc.UserAnswer) == "" {
		b.WriteString("(empty)")
	} else {
		b.WriteString(pc.UserAnswer)
	}
	b.WriteString("\n\n")
	b.WriteString(rules)
	b.WriteString("\nWrite feedback in the source language. Leave correct_answer empty when the answer is correct.")
	return b.String()
}

func choiceMarkingPrompt(pc PromptContext) string {
	return markingPrompt(pc,
		"The learner picked an option, given as its text or zero-based index. "+
			"It is correct only if it matches correct_option.")
}
