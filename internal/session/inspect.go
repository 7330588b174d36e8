package session

import (
	"sync"

	godap "github.com/google/go-dap"

	sessionerrors "github.com/fbdbg/fbdbg/internal/errors"
	"github.com/fbdbg/fbdbg/internal/sourcecache"
	"github.com/fbdbg/fbdbg/internal/thread"
)

// ScopeVariables pairs a scope with the variables fetched for it,
// preserving the adapter's original scope order.
type ScopeVariables struct {
	Name      string
	Expensive bool
	Variables []godap.Variable
}

// GetThreads refreshes the ThreadCollection from the adapter and
// returns the resulting set.
func (c *Core) GetThreads() ([]thread.Thread, error) {
	c.mu.Lock()
	ds, err := c.requireSessionLocked()
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}

	raw, err := ds.Threads()
	if err != nil {
		return nil, sessionerrors.AdapterFailure("threads", err)
	}
	list := make([]thread.Thread, len(raw))
	for i, t := range raw {
		list[i] = thread.Thread{ID: int64(t.Id), Name: t.Name}
	}
	c.threads.UpdateThreads(list)
	return c.threads.All(), nil
}

// SetFocusThread sets the thread whose frames/variables commands
// default to.
func (c *Core) SetFocusThread(threadID int64) error {
	if !c.threads.SetFocusThread(threadID) {
		return sessionerrors.NoSuchThread(threadID)
	}
	return nil
}

// FocusThread returns the thread console commands default to when no
// thread id is given explicitly.
func (c *Core) FocusThread() (thread.Thread, bool) {
	return c.threads.FocusThread()
}

// GetStackTrace fetches up to levels frames for threadID. Legal only
// while Stopped, since a running thread has no meaningful frames.
func (c *Core) GetStackTrace(threadID int64, levels int) ([]godap.StackFrame, error) {
	c.mu.Lock()
	ds := c.debugSession
	state := c.state
	c.mu.Unlock()
	if ds == nil {
		return nil, sessionerrors.NoActiveSession()
	}
	if state != StateStopped {
		return nil, sessionerrors.StateViolation(string(state), "stackTrace")
	}

	frames, err := ds.StackTrace(int(threadID), levels)
	if err != nil {
		return nil, sessionerrors.AdapterFailure("stackTrace", err)
	}
	return frames, nil
}

// SetSelectedStackFrame selects frame index for threadID, failing
// with NoSuchFrame if the adapter returns fewer frames than needed to
// reach it.
func (c *Core) SetSelectedStackFrame(threadID int64, index int) error {
	frames, err := c.GetStackTrace(threadID, index+1)
	if err != nil {
		return err
	}
	if len(frames) < index+1 {
		return sessionerrors.NoSuchFrame(index)
	}
	if !c.threads.SetSelectedFrame(threadID, uint32(index)) {
		return sessionerrors.NoSuchThread(threadID)
	}
	return nil
}

// GetVariablesByScope resolves the currently selected frame for
// threadID, fetches its scopes, filters by scopeName when given (or
// drops expensive scopes otherwise), and fetches every retained
// scope's variables in parallel.
func (c *Core) GetVariablesByScope(threadID int64, scopeName string) ([]ScopeVariables, error) {
	c.mu.Lock()
	ds := c.debugSession
	c.mu.Unlock()
	if ds == nil {
		return nil, sessionerrors.NoActiveSession()
	}

	th, ok := c.threads.Get(threadID)
	if !ok {
		return nil, sessionerrors.NoSuchThread(threadID)
	}

	frames, err := ds.StackTrace(int(threadID), int(th.SelectedFrame)+1)
	if err != nil {
		return nil, sessionerrors.AdapterFailure("stackTrace", err)
	}
	if len(frames) < int(th.SelectedFrame)+1 {
		return nil, sessionerrors.NoSuchFrame(int(th.SelectedFrame))
	}
	frame := frames[th.SelectedFrame]

	scopes, err := ds.Scopes(frame.Id)
	if err != nil {
		return nil, sessionerrors.AdapterFailure("scopes", err)
	}

	var retained []godap.Scope
	if scopeName != "" {
		found := false
		for _, sc := range scopes {
			if sc.Name == scopeName {
				retained = append(retained, sc)
				found = true
				break
			}
		}
		if !found {
			return nil, sessionerrors.NoSuchScope(scopeName)
		}
	} else {
		for _, sc := range scopes {
			if !sc.Expensive {
				retained = append(retained, sc)
			}
		}
	}

	results := make([]ScopeVariables, len(retained))
	var wg sync.WaitGroup
	for i, sc := range retained {
		wg.Add(1)
		go func(i int, sc godap.Scope) {
			defer wg.Done()
			vars, err := ds.Variables(sc.VariablesReference)
			if err != nil {
				c.log.WithError(err).WithField("scope", sc.Name).Warn("fetch variables")
				vars = nil
			}
			results[i] = ScopeVariables{Name: sc.Name, Expensive: sc.Expensive, Variables: vars}
		}(i, sc)
	}
	wg.Wait()

	return results, nil
}

// Evaluate runs expr in the "repl" context, attaching the currently
// selected frame's id only while Stopped — a frame only exists once
// the debuggee has actually stopped.
func (c *Core) Evaluate(threadID int64, expr string) (*godap.EvaluateResponseBody, error) {
	c.mu.Lock()
	ds := c.debugSession
	state := c.state
	c.mu.Unlock()
	if ds == nil {
		return nil, sessionerrors.NoActiveSession()
	}

	frameID := 0
	if state == StateStopped {
		if th, ok := c.threads.Get(threadID); ok {
			frames, err := ds.StackTrace(int(threadID), int(th.SelectedFrame)+1)
			if err == nil && len(frames) > int(th.SelectedFrame) {
				frameID = frames[th.SelectedFrame].Id
			}
		}
	}

	result, err := ds.Evaluate(expr, frameID, "repl")
	if err != nil {
		return nil, sessionerrors.AdapterFailure("evaluate", err)
	}
	return result, nil
}

// beginStep validates that threadID-qualified stepping is legal
// (Stopped only) and disables console input before the caller sends
// its request, so adapter output arriving before the matching
// continued/stopped event can't interleave with a prompt.
func (c *Core) beginStep(op string) (DebugSession, error) {
	c.mu.Lock()
	ds := c.debugSession
	state := c.state
	c.mu.Unlock()
	if ds == nil {
		return nil, sessionerrors.NoActiveSession()
	}
	if state != StateStopped {
		return nil, sessionerrors.StateViolation(string(state), op)
	}
	c.console.StopInput()
	return ds, nil
}

// Continue resumes threadID. On failure console input is restored
// before the error propagates.
func (c *Core) Continue(threadID int64) error {
	ds, err := c.beginStep("continue")
	if err != nil {
		return err
	}
	if _, err := ds.Continue(int(threadID)); err != nil {
		c.console.StartInput()
		return sessionerrors.AdapterFailure("continue", err)
	}
	c.mu.Lock()
	c.state = StateRunning
	c.mu.Unlock()
	return nil
}

// Next steps over the current line on threadID.
func (c *Core) Next(threadID int64) error {
	ds, err := c.beginStep("next")
	if err != nil {
		return err
	}
	if err := ds.Next(int(threadID)); err != nil {
		c.console.StartInput()
		return sessionerrors.AdapterFailure("next", err)
	}
	c.mu.Lock()
	c.state = StateRunning
	c.mu.Unlock()
	return nil
}

// StepIn steps into the call on the current line of threadID.
func (c *Core) StepIn(threadID int64) error {
	ds, err := c.beginStep("stepIn")
	if err != nil {
		return err
	}
	if err := ds.StepIn(int(threadID)); err != nil {
		c.console.StartInput()
		return sessionerrors.AdapterFailure("stepIn", err)
	}
	c.mu.Lock()
	c.state = StateRunning
	c.mu.Unlock()
	return nil
}

// StepOut runs threadID until the current function returns.
func (c *Core) StepOut(threadID int64) error {
	ds, err := c.beginStep("stepOut")
	if err != nil {
		return err
	}
	if err := ds.StepOut(int(threadID)); err != nil {
		c.console.StartInput()
		return sessionerrors.AdapterFailure("stepOut", err)
	}
	c.mu.Lock()
	c.state = StateRunning
	c.mu.Unlock()
	return nil
}

// Pause interrupts threadID. Unlike the other stepping commands,
// pause is issued while Running, so it does not toggle console input
// itself — the stopped event that follows does.
func (c *Core) Pause(threadID int64) error {
	c.mu.Lock()
	ds := c.debugSession
	c.mu.Unlock()
	if ds == nil {
		return sessionerrors.NoActiveSession()
	}
	if err := ds.Pause(int(threadID)); err != nil {
		return sessionerrors.AdapterFailure("pause", err)
	}
	return nil
}

// GetSourceLines resolves source content by reference when one is
// given, falling back to path, then slices out [start, start+length),
// clamped to the lines actually available.
func (c *Core) GetSourceLines(path string, sourceRef int, start, length int) []string {
	var lines []string
	if sourceRef > 0 {
		lines = c.sourceCache.GetBySourceReference(sourceRef)
	} else {
		lines = c.sourceCache.GetByPath(path)
	}
	return sourcecache.Slice(lines, start, length)
}
