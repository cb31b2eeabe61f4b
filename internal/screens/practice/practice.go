// Package practice is the terminal screen for one learner session.
package practice

import (
	"context"

	tea "charm.land/bubbletea/v2"

	"github.com/abhisek/lingua/internal/apperr"
	"github.com/abhisek/lingua/internal/session"
	"github.com/abhisek/lingua/internal/stats"
	"github.com/abhisek/lingua/internal/ui/components"
)

// Sessions starts sessions and looks them up.
type Sessions interface {
	Start(ctx context.Context, p session.StartParams) (session.StateView, error)
	Get(id string) (*session.Orchestrator, error)
}

// Summaries reports the results of a finished session.
type Summaries interface {
	SessionSummary(ctx context.Context, sessionID string) (stats.ModulePerformance, error)
}

// Widgets that take an option instead of typed text.
var choiceComponents = map[string]bool{
	"choice-list":  true,
	"audio-choice": true,
}

// Model runs one session from start to summary.
type Model struct {
	ctx       context.Context
	sessions  Sessions
	summaries Summaries
	params    session.StartParams

	o       *session.Orchestrator
	view    session.StateView
	input   components.TextInput
	choice  *components.Choice
	mark    *session.SubmitResult
	summary *stats.ModulePerformance
	warning string
	waiting bool
	err     error
}

// New creates the screen. The session is started by Init.
func New(ctx context.Context, sessions Sessions, summaries Summaries, p session.StartParams) *Model {
	return &Model{
		ctx:       ctx,
		sessions:  sessions,
		summaries: summaries,
		params:    p,
		input:     components.NewTextInput("Type your answer", 500),
		waiting:   true,
	}
}

// Err is the error that stopped the screen, if any.
func (m *Model) Err() error {
	return m.err
}

func (m *Model) Init() tea.Cmd {
	ctx, sessions, p := m.ctx, m.sessions, m.params
	return func() tea.Msg {
		view, err := sessions.Start(ctx, p)
		if view.SessionID == "" {
			return startedMsg{err: err}
		}
		o, gerr := sessions.Get(view.SessionID)
		if gerr != nil {
			return startedMsg{err: gerr}
		}
		return startedMsg{o: o, view: view, err: err}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case startedMsg:
		m.waiting = false
		if msg.o == nil {
			m.err = msg.err
			return m, tea.Quit
		}
		m.o = msg.o
		return m, m.enter(msg.view, msg.err)

	case stateMsg:
		m.waiting = false
		return m, m.enter(msg.view, msg.err)

	case markedMsg:
		m.waiting = false
		if msg.err != nil && !apperr.IsPersistence(msg.err) {
			cmd := m.enter(msg.view, nil)
			m.warning = msg.err.Error()
			return m, cmd
		}
		m.view = msg.view
		m.mark = &msg.res
		m.input.Judge(msg.res.Mark.IsCorrect)
		m.warning = ""
		if msg.err != nil {
			m.warning = msg.err.Error()
		}
		return m, nil

	case persistedMsg:
		m.waiting = false
		m.view = msg.view
		m.warning = ""
		if msg.err != nil {
			m.warning = msg.err.Error()
		}
		return m, nil

	case summaryMsg:
		m.waiting = false
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.summary = &msg.sum
		}
		return m, tea.Quit

	case tea.KeyPressMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) View() tea.View {
	v := tea.NewView("")
	v.SetContent(m.content())
	return v
}

// enter shows a new session state.
func (m *Model) enter(view session.StateView, err error) tea.Cmd {
	m.view = view
	m.mark = nil
	m.warning = ""
	if err != nil && view.Phase != session.PhaseError {
		m.warning = err.Error()
	}

	switch view.Phase {
	case session.PhaseAwaitingAnswer:
		m.input.Reset()
		m.choice = nil
		if view.Current != nil && choiceComponents[view.Current.Component] {
			if opts := options(view.Current); len(opts) > 0 {
				c := components.NewChoice(opts)
				m.choice = &c
			}
		}
	case session.PhaseEnded:
		m.waiting = true
		ctx, summaries, id := m.ctx, m.summaries, view.SessionID
		return func() tea.Msg {
			sum, err := summaries.SessionSummary(ctx, id)
			return summaryMsg{sum: sum, err: err}
		}
	}
	return nil
}

func (m *Model) handleKey(key tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	k := key.String()
	if m.waiting || m.o == nil {
		if k == "ctrl+c" {
			return m, tea.Quit
		}
		return m, nil
	}

	switch k {
	case "ctrl+c", "esc":
		if m.view.Phase == session.PhaseEnded {
			return m, tea.Quit
		}
		return m, m.run(m.o.End)
	}

	switch m.view.Phase {
	case session.PhaseError:
		switch k {
		case "n", "N":
			return m, m.run(m.o.End)
		case "y", "Y", "enter", "ctrl+j":
			return m, m.run(m.o.Retry)
		}

	case session.PhaseAnswered:
		switch k {
		case "enter", "ctrl+j":
			return m, m.run(m.o.Advance)
		case "r":
			if m.view.PersistPending {
				return m, m.retryPersist()
			}
		}

	case session.PhaseAwaitingAnswer:
		if m.choice != nil {
			return m.updateChoice(key)
		}
		return m.updateInput(key)
	}
	return m, nil
}

func (m *Model) updateInput(key tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	if k := key.String(); k != "enter" && k != "ctrl+j" {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(key)
		return m, cmd
	}

	switch answer := m.input.Value(); answer {
	case "":
		return m, nil
	case ":q", ":quit":
		return m, m.run(m.o.End)
	case ":skip":
		return m, m.run(m.o.Skip)
	default:
		return m, m.submit(answer)
	}
}

func (m *Model) updateChoice(key tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch key.String() {
	case "s":
		return m, m.run(m.o.Skip)
	case "q":
		return m, m.run(m.o.End)
	}

	c, _ := m.choice.Update(key)
	m.choice = &c
	if c.Submitted() {
		return m, m.submit(c.Value())
	}
	return m, nil
}

// run calls a session transition off the UI loop.
func (m *Model) run(op func(context.Context) (session.StateView, error)) tea.Cmd {
	m.waiting = true
	ctx, o := m.ctx, m.o
	return func() tea.Msg {
		view, err := op(ctx)
		if err != nil {
			view = o.Snapshot()
		}
		return stateMsg{view: view, err: err}
	}
}

func (m *Model) submit(answer string) tea.Cmd {
	m.waiting = true
	ctx, o := m.ctx, m.o
	return func() tea.Msg {
		res, err := o.Submit(ctx, answer)
		return markedMsg{res: res, view: o.Snapshot(), err: err}
	}
}

func (m *Model) retryPersist() tea.Cmd {
	m.waiting = true
	ctx, o := m.ctx, m.o
	return func() tea.Msg {
		err := o.RetryPersist(ctx)
		return persistedMsg{view: o.Snapshot(), err: err}
	}
}
