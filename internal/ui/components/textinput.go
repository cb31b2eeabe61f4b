package components

import (
	"strings"

	"charm.land/bubbles/v2/textinput"
	tea "charm.land/bubbletea/v2"

	"github.com/abhisek/lingua/internal/ui/theme"
)

// TextInput is a free-text answer field.
type TextInput struct {
	Model  textinput.Model
	judged bool
	right  bool
}

// NewTextInput creates a focused answer field. A positive limit caps the
// answer length.
func NewTextInput(placeholder string, limit int) TextInput {
	ti := textinput.New()
	ti.Placeholder = placeholder
	if limit > 0 {
		ti.CharLimit = limit
	}
	ti.Focus()
	return TextInput{Model: ti}
}

// Init starts the cursor.
func (t TextInput) Init() tea.Cmd {
	return t.Model.Focus()
}

// Update forwards editing keys to the field. Keys are ignored once the
// answer has been judged.
func (t TextInput) Update(msg tea.Msg) (TextInput, tea.Cmd) {
	if t.judged {
		return t, nil
	}
	var cmd tea.Cmd
	t.Model, cmd = t.Model.Update(msg)
	return t, cmd
}

// View renders the field with a verdict mark once judged.
func (t TextInput) View() string {
	view := t.Model.View()
	if !t.judged {
		return view
	}
	if t.right {
		return view + " " + theme.Correct.Render("✓")
	}
	return view + " " + theme.Wrong.Render("✗")
}

// Value returns the trimmed answer.
func (t TextInput) Value() string {
	return strings.TrimSpace(t.Model.Value())
}

// Judge freezes the field and shows the verdict.
func (t *TextInput) Judge(correct bool) {
	t.judged = true
	t.right = correct
}

// Reset clears the field for the next question.
func (t *TextInput) Reset() {
	t.Model.Reset()
	t.judged = false
	t.right = false
}
