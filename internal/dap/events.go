package dap

import (
	"encoding/json"

	"github.com/google/go-dap"
)

// Event is the tagged union SessionCore's handleEvent switches on:
// each event variant is a tagged case, dispatched as a callback on
// the installed handler rather than a raw message type. translateEvent
// converts a raw go-dap message into one of these before it reaches
// the installed handler, so the session package never imports go-dap
// event types directly.
type Event interface {
	eventTag()
}

type InitializedEvent struct{}

func (InitializedEvent) eventTag() {}

type StoppedEvent struct {
	Reason            string
	ThreadID          int
	Description       string
	AllThreadsStopped bool
}

func (StoppedEvent) eventTag() {}

type ContinuedEvent struct {
	ThreadID            int
	AllThreadsContinued bool
}

func (ContinuedEvent) eventTag() {}

type ThreadEvent struct {
	Reason   string // "started" | "exited"
	ThreadID int
}

func (ThreadEvent) eventTag() {}

type OutputEvent struct {
	Category string
	Output   string
}

func (OutputEvent) eventTag() {}

type BreakpointEvent struct {
	Reason     string
	ID         int
	HasID      bool
	Verified   bool
	Message    string
	SourcePath string
	Line       int
}

func (BreakpointEvent) eventTag() {}

type ExitedEvent struct {
	ExitCode int
}

func (ExitedEvent) eventTag() {}

type TerminatedEvent struct {
	Restart bool
}

func (TerminatedEvent) eventTag() {}

// AdapterExitedEvent is fbdbg's own synthetic event, raised by the
// Client when the adapter process or transport dies outside of a
// normal terminated/exited sequence.
type AdapterExitedEvent struct {
	Err error
}

func (AdapterExitedEvent) eventTag() {}

type CustomEvent struct {
	Name string
	Body map[string]interface{}
}

func (CustomEvent) eventTag() {}

// translateEvent converts a raw go-dap event message into fbdbg's
// tagged Event union. Returns nil, false for messages that aren't
// events SessionCore cares about (e.g. responses, handled elsewhere).
func translateEvent(msg dap.Message) (Event, bool) {
	switch m := msg.(type) {
	case *dap.InitializedEvent:
		return InitializedEvent{}, true
	case *dap.StoppedEvent:
		return StoppedEvent{
			Reason:            m.Body.Reason,
			ThreadID:          m.Body.ThreadId,
			Description:       m.Body.Description,
			AllThreadsStopped: m.Body.AllThreadsStopped,
		}, true
	case *dap.ContinuedEvent:
		return ContinuedEvent{
			ThreadID:            m.Body.ThreadId,
			AllThreadsContinued: m.Body.AllThreadsContinued,
		}, true
	case *dap.ThreadEvent:
		return ThreadEvent{Reason: m.Body.Reason, ThreadID: m.Body.ThreadId}, true
	case *dap.OutputEvent:
		return OutputEvent{Category: m.Body.Category, Output: m.Body.Output}, true
	case *dap.BreakpointEvent:
		id, hasID := m.Body.Breakpoint.Id, m.Body.Breakpoint.Id != 0
		path, line := "", 0
		if m.Body.Breakpoint.Source != nil {
			path = m.Body.Breakpoint.Source.Path
		}
		line = m.Body.Breakpoint.Line
		return BreakpointEvent{
			Reason:     m.Body.Reason,
			ID:         id,
			HasID:      hasID,
			Verified:   m.Body.Breakpoint.Verified,
			Message:    m.Body.Breakpoint.Message,
			SourcePath: path,
			Line:       line,
		}, true
	case *dap.ExitedEvent:
		return ExitedEvent{ExitCode: m.Body.ExitCode}, true
	case *dap.TerminatedEvent:
		restart := false
		if len(m.Body.Restart) > 0 {
			var b bool
			if err := json.Unmarshal(m.Body.Restart, &b); err == nil {
				restart = b
			}
		}
		return TerminatedEvent{Restart: restart}, true
	case *dap.Event:
		// Custom events go-dap doesn't have a concrete struct for
		// (e.g. readyForEvaluations) surface as the generic Event type.
		return CustomEvent{Name: m.Event}, true
	}
	return nil, false
}
