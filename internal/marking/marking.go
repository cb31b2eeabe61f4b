// Package marking judges learner answers through the generative content
// service. It never fails: any generation problem yields the fallback
// result so a live session can continue.
package marking

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/abhisek/lingua/internal/catalog"
	"github.com/abhisek/lingua/internal/contentgen"
	"github.com/abhisek/lingua/internal/interaction"
	"github.com/abhisek/lingua/internal/llm"
)

// FallbackFeedback is the feedback text of the fallback result.
const FallbackFeedback = "evaluation error"

// Input is one answer to mark.
type Input struct {
	Module         catalog.Module
	Submodule      catalog.Submodule
	Schema         interaction.Schema
	QuestionData   json.RawMessage
	UserAnswer     string
	TargetLanguage string
	SourceLanguage string
}

// Result is the judgement of one answer.
type Result struct {
	IsCorrect     bool   `json:"is_correct"`
	Score         int    `json:"score"`
	Feedback      string `json:"feedback"`
	CorrectAnswer string `json:"correct_answer"`

	// Fallback is set when marking failed and this is the fallback result.
	Fallback bool `json:"-"`
}

// Fallback returns the result used when marking fails.
func Fallback() Result {
	return Result{IsCorrect: false, Score: 0, Feedback: FallbackFeedback, Fallback: true}
}

// Generator is the part of contentgen.Service the marker needs.
type Generator interface {
	GenerateStructuredData(ctx context.Context, prompt string, contract *llm.Schema, label string, opts ...contentgen.Option) contentgen.Result
}

// Service marks answers.
type Service struct {
	gen Generator
	log *zap.Logger
}

// NewService creates a marking Service. A nil logger discards logs.
func NewService(gen Generator, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{gen: gen, log: log}
}

// Prompt builds the marking prompt for in. A submodule override for the
// schema wins over the schema's default builder.
func Prompt(in Input) string {
	pc := interaction.PromptContext{
		ModuleTitle:    in.Module.Title,
		SubmoduleTitle: in.Submodule.Title,
		Context:        in.Submodule.Context,
		TargetLanguage: in.TargetLanguage,
		SourceLanguage: in.SourceLanguage,
		QuestionData:   in.QuestionData,
		UserAnswer:     in.UserAnswer,
	}
	if o, ok := in.Submodule.Override(in.Schema.ID); ok && strings.TrimSpace(o.MarkingPrompt) != "" {
		return interaction.Render(o.MarkingPrompt, pc)
	}
	return in.Schema.Marking.BuildPrompt(pc)
}

// MarkAnswer judges one answer. Marking runs at temperature 0 so the same
// answer is judged consistently.
func (s *Service) MarkAnswer(ctx context.Context, in Input) Result {
	log := s.log.With(
		zap.String("module", in.Module.ID),
		zap.String("submodule", in.Submodule.ID),
		zap.String("schema", in.Schema.ID),
	)

	if in.Schema.Marking.BuildPrompt == nil {
		log.Error("schema has no marking prompt builder")
		return Fallback()
	}

	res := s.gen.GenerateStructuredData(ctx, Prompt(in), in.Schema.Marking.Contract,
		"mark:"+in.Schema.ID, contentgen.WithTemperature(0))
	if !res.OK() {
		log.Warn("marking failed, using fallback", zap.Int("attempts", res.Attempts), zap.Error(res.Err))
		return Fallback()
	}

	var out Result
	if err := res.Decode(&out); err != nil {
		log.Warn("marking result did not decode, using fallback", zap.Error(err))
		return Fallback()
	}

	out.Score = clamp(out.Score, 0, 100)
	if out.IsCorrect && out.CorrectAnswer != "" {
		log.Warn("correct answer supplied for a correct mark, clearing it",
			zap.String("correct_answer", out.CorrectAnswer))
		out.CorrectAnswer = ""
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
