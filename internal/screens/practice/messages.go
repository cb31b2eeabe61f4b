package practice

import (
	"github.com/abhisek/lingua/internal/session"
	"github.com/abhisek/lingua/internal/stats"
)

// startedMsg carries the new session, or the error that prevented it.
type startedMsg struct {
	o    *session.Orchestrator
	view session.StateView
	err  error
}

// stateMsg is the session state after Advance, Skip, Retry or End.
type stateMsg struct {
	view session.StateView
	err  error
}

// markedMsg is the outcome of Submit.
type markedMsg struct {
	res  session.SubmitResult
	view session.StateView
	err  error
}

// persistedMsg is the outcome of RetryPersist.
type persistedMsg struct {
	view session.StateView
	err  error
}

type summaryMsg struct {
	sum stats.ModulePerformance
	err error
}
