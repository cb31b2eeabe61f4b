package components

import (
	"fmt"
	"strings"

	tea "charm.land/bubbletea/v2"

	"github.com/abhisek/lingua/internal/ui/theme"
)

// Choice is an option selector. Unlike a quiz widget it does not know the
// right option; the verdict comes from marking.
type Choice struct {
	Options  []string
	Selected int

	// Chosen is the submitted option, or -1.
	Chosen int
}

// NewChoice creates a selector with the first option highlighted.
func NewChoice(options []string) Choice {
	return Choice{Options: options, Chosen: -1}
}

// Submitted reports whether an option was chosen.
func (c Choice) Submitted() bool {
	return c.Chosen >= 0
}

// Value returns the chosen option's text.
func (c Choice) Value() string {
	if !c.Submitted() {
		return ""
	}
	return c.Options[c.Chosen]
}

// Update moves the highlight with the arrow keys or j/k, jumps with the
// option number and submits with enter.
func (c Choice) Update(msg tea.Msg) (Choice, tea.Cmd) {
	if c.Submitted() {
		return c, nil
	}
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return c, nil
	}

	switch s := key.String(); s {
	case "up", "k":
		if c.Selected > 0 {
			c.Selected--
		}
	case "down", "j":
		if c.Selected < len(c.Options)-1 {
			c.Selected++
		}
	case "enter", "ctrl+j":
		c.Chosen = c.Selected
	default:
		if len(s) == 1 && s[0] >= '1' && s[0] <= '9' {
			if i := int(s[0] - '1'); i < len(c.Options) {
				c.Selected = i
			}
		}
	}
	return c, nil
}

// View renders the options, numbered from 1.
func (c Choice) View() string {
	var b strings.Builder
	for i, opt := range c.Options {
		prefix := "  "
		if i == c.Selected && !c.Submitted() {
			prefix = "▸ "
		}
		line := fmt.Sprintf("%s%d) %s", prefix, i+1, opt)

		switch {
		case i == c.Chosen:
			b.WriteString(theme.Title.Render(line))
		case c.Submitted():
			b.WriteString(theme.Hint.Render(line))
		case i == c.Selected:
			b.WriteString(theme.Title.Render(line))
		default:
			b.WriteString(theme.Body.Render(line))
		}
		b.WriteByte('\n')
	}
	return b.String()
}
