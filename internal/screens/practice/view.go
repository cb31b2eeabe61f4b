package practice

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/abhisek/lingua/internal/interaction"
	"github.com/abhisek/lingua/internal/session"
	"github.com/abhisek/lingua/internal/stats"
	"github.com/abhisek/lingua/internal/ui/theme"
)

// Fields that give the answer away.
var hiddenFields = map[string]bool{
	"answer":                true,
	"correct_option":        true,
	"explanation":           true,
	"reference_translation": true,
	"expected_answer":       true,
	"expected_points":       true,
}

// Fields shown first, in this order.
var fieldOrder = []string{"passage", "audio_text", "text", "sentence", "question", "prompt", "options", "hint"}

func (m *Model) content() string {
	var b strings.Builder
	b.WriteString(theme.Title.Render(fmt.Sprintf("%s · %s", m.params.ModuleID, m.params.TargetLanguage)))
	if m.o != nil && m.view.Phase != session.PhaseEnded {
		b.WriteString(theme.Hint.Render(fmt.Sprintf("  %d/%d correct", m.view.CorrectCount, m.view.TotalAnswered)))
	}
	b.WriteByte('\n')

	switch {
	case m.err != nil:
		b.WriteString(theme.Wrong.Render("error: " + m.err.Error()))
		b.WriteByte('\n')
		return b.String()
	case m.o == nil:
		b.WriteString(theme.Hint.Render("Preparing your first question…"))
		b.WriteByte('\n')
		return b.String()
	}

	switch m.view.Phase {
	case session.PhaseError:
		fmt.Fprintf(&b, "\nCould not prepare a question: %s\n", m.view.LastError)
		b.WriteString(theme.Hint.Render("Retry? [Y/n]"))
		b.WriteByte('\n')

	case session.PhaseAwaitingAnswer, session.PhaseMarking, session.PhaseAnswered:
		b.WriteString(stepText(m.view.Current, m.choice == nil))
		if m.choice != nil {
			b.WriteString(m.choice.View())
		} else {
			b.WriteString(m.input.View())
			b.WriteByte('\n')
		}
		if m.mark != nil {
			b.WriteString(markText(*m.mark))
		}
		b.WriteString(theme.Hint.Render(m.keyHelp()))
		b.WriteByte('\n')

	case session.PhaseEnded:
		b.WriteString(summaryText(m.view, m.summary))
	}

	if m.warning != "" {
		b.WriteString(theme.Wrong.Render("warning: " + m.warning))
		b.WriteByte('\n')
	}
	return b.String()
}

func (m *Model) keyHelp() string {
	switch {
	case m.waiting:
		return "…"
	case m.view.Phase == session.PhaseAnswered && m.view.PersistPending:
		return "enter next · r retry saving · esc end"
	case m.view.Phase == session.PhaseAnswered:
		return "enter next · esc end"
	case m.choice != nil:
		return "↑/↓ choose · enter answer · s skip · esc end"
	default:
		return "enter answer · :skip · :q"
	}
}

// stepText lists the visible question fields. Options are left out when a
// choice widget shows them.
func stepText(step *session.Step, withOptions bool) string {
	if step == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "\n[%s · %s]\n", step.Title, step.SchemaID)

	var data map[string]any
	if err := json.Unmarshal(step.QuestionData, &data); err != nil {
		b.Write(step.QuestionData)
		b.WriteByte('\n')
		return b.String()
	}

	keys := lo.Filter(lo.Keys(data), func(k string, _ int) bool {
		return !hiddenFields[k] && (withOptions || k != "options")
	})
	rank := func(k string) int {
		if i := lo.IndexOf(fieldOrder, k); i >= 0 {
			return i
		}
		return len(fieldOrder)
	}
	sort.Slice(keys, func(i, j int) bool {
		ri, rj := rank(keys[i]), rank(keys[j])
		if ri != rj {
			return ri < rj
		}
		return keys[i] < keys[j]
	})

	for _, k := range keys {
		switch v := data[k].(type) {
		case []any:
			fmt.Fprintf(&b, "%s:\n", k)
			for i, item := range v {
				fmt.Fprintf(&b, "  %d) %v\n", i, item)
			}
		default:
			fmt.Fprintf(&b, "%s: %v\n", k, v)
		}
	}
	return b.String()
}

// options returns the question's answer options, if it has any.
func options(step *session.Step) []string {
	var data struct {
		Options []any `json:"options"`
	}
	if err := json.Unmarshal(step.QuestionData, &data); err != nil {
		return nil
	}
	return lo.Map(data.Options, func(v any, _ int) string { return fmt.Sprint(v) })
}

func markText(res session.SubmitResult) string {
	m := res.Mark
	verdict := fmt.Sprintf("✗ Not quite (%d/100) %s", m.Score, m.Feedback)
	style := theme.Wrong
	if m.IsCorrect {
		verdict = fmt.Sprintf("✓ Correct (%d/100) %s", m.Score, m.Feedback)
		style = theme.Correct
	}
	out := style.Render(verdict) + "\n"
	if m.CorrectAnswer != "" {
		out += fmt.Sprintf("  Answer: %s\n", m.CorrectAnswer)
	}
	return out
}

func summaryText(view session.StateView, sum *stats.ModulePerformance) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\nSession over: %d/%d correct.\n", view.CorrectCount, view.TotalAnswered)
	if sum == nil {
		return b.String()
	}
	for _, skill := range interaction.AllSkills() {
		if t, ok := sum.BySkill[skill]; ok {
			fmt.Fprintf(&b, "  %-10s %d/%d (%d%%)\n", skill, t.Correct, t.Total, t.Accuracy)
		}
	}
	return b.String()
}
