package session

import (
	"fmt"
	"sync"

	godap "github.com/google/go-dap"

	"github.com/fbdbg/fbdbg/internal/breakpoint"
	sessionerrors "github.com/fbdbg/fbdbg/internal/errors"
)

// AddSourceBreakpoint records a new enabled source breakpoint and
// reconciles immediately if a session is active, so a breakpoint
// added mid-session is sent to the adapter without waiting for an
// unrelated delete/enable/disable to trigger the next reconcile.
// condition, hitCondition, and logMessage are the break command's
// optional "if"/"hit"/"log" clauses; pass "" for any not given.
func (c *Core) AddSourceBreakpoint(path string, line uint32, condition, hitCondition, logMessage string) (uint32, error) {
	index := c.breakpoints.AddSource(path, line)
	if condition != "" || hitCondition != "" || logMessage != "" {
		c.breakpoints.SetCondition(index, condition, hitCondition, logMessage)
	}
	return index, c.maybeReconcile()
}

// AddFunctionBreakpoint records a new enabled function breakpoint and
// reconciles immediately if a session is active.
func (c *Core) AddFunctionBreakpoint(fn string) (uint32, error) {
	index := c.breakpoints.AddFunction(fn)
	return index, c.maybeReconcile()
}

// DeleteBreakpoint removes the breakpoint at index and reconciles if
// a session is active.
func (c *Core) DeleteBreakpoint(index uint32) error {
	if !c.breakpoints.Delete(index) {
		return sessionerrors.NoSuchBreakpoint(index)
	}
	return c.maybeReconcile()
}

// DeleteAllBreakpoints empties the collection and reconciles.
func (c *Core) DeleteAllBreakpoints() error {
	c.breakpoints.DeleteAll()
	return c.maybeReconcile()
}

// SetBreakpointEnabled toggles enabled and reconciles.
func (c *Core) SetBreakpointEnabled(index uint32, enabled bool) error {
	if !c.breakpoints.SetEnabled(index, enabled) {
		return sessionerrors.NoSuchBreakpoint(index)
	}
	return c.maybeReconcile()
}

// AllBreakpoints returns every declared breakpoint, for the `delete`
// and listing commands.
func (c *Core) AllBreakpoints() []breakpoint.Breakpoint {
	return c.breakpoints.All()
}

func (c *Core) maybeReconcile() error {
	c.mu.Lock()
	ds := c.debugSession
	state := c.state
	c.mu.Unlock()
	if ds == nil || state == StateInitializing {
		return nil
	}
	return c.resetAllBreakpoints(ds)
}

// resetAllBreakpoints is the Breakpoint Reconciler: one setBreakpoints
// call per source path plus one setFunctionBreakpoints call, fanned
// out concurrently and joined, so a reconcile's wall clock is bounded
// by its slowest single request rather than their sum. A path that
// once had breakpoints but now has none enabled still gets an empty
// setBreakpoints call, since omitting the call would leave the
// adapter's prior breakpoint list for that path untouched.
func (c *Core) resetAllBreakpoints(ds DebugSession) error {
	grouped := c.breakpoints.AllEnabledBySource()
	functions := c.breakpoints.AllEnabledFunction()

	c.mu.Lock()
	caps := c.capabilities
	c.mu.Unlock()

	var wg sync.WaitGroup
	var errsMu sync.Mutex
	var errs []error
	recordErr := func(err error) {
		if err == nil {
			return
		}
		errsMu.Lock()
		errs = append(errs, err)
		errsMu.Unlock()
	}

	for path, bps := range grouped {
		wg.Add(1)
		go func(path string, bps []*breakpoint.SourceBreakpoint) {
			defer wg.Done()
			c.reconcileSource(ds, caps, path, bps, recordErr)
		}(path, bps)
	}

	for path := range c.breakpoints.AllPaths() {
		if _, covered := grouped[path]; covered {
			continue
		}
		wg.Add(1)
		go func(path string) {
			defer wg.Done()
			c.reconcileSource(ds, caps, path, nil, recordErr)
		}(path)
	}

	if len(functions) > 0 {
		if !caps.SupportsFunctionBreakpoints {
			recordErr(sessionerrors.CapabilityNotSupported("function breakpoints"))
		} else {
			wg.Add(1)
			go func() {
				defer wg.Done()
				c.reconcileFunctions(ds, functions, recordErr)
			}()
		}
	}

	wg.Wait()

	if len(errs) == 0 {
		return nil
	}
	for _, err := range errs {
		if se, ok := err.(*sessionerrors.SessionError); ok && se.Code == sessionerrors.CodeCapabilityNotSupported {
			return se
		}
	}
	return sessionerrors.AdapterFailure("reset breakpoints", errs[0])
}

func (c *Core) reconcileSource(ds DebugSession, caps Capabilities, path string, bps []*breakpoint.SourceBreakpoint, recordErr func(error)) {
	reqBps := make([]godap.SourceBreakpoint, len(bps))
	for i, sb := range bps {
		wireBp := godap.SourceBreakpoint{Line: int(sb.Line)}
		if sb.Condition != "" {
			if caps.SupportsConditionalBreakpoints {
				wireBp.Condition = sb.Condition
			} else {
				c.console.OutputLine(fmt.Sprintf("condition on breakpoint at %s:%d dropped: adapter does not support conditional breakpoints", sb.Path, sb.Line))
			}
		}
		if sb.HitCondition != "" {
			if caps.SupportsHitConditionalBreakpoints {
				wireBp.HitCondition = sb.HitCondition
			} else {
				c.console.OutputLine(fmt.Sprintf("hit condition on breakpoint at %s:%d dropped: adapter does not support hit conditional breakpoints", sb.Path, sb.Line))
			}
		}
		if sb.LogMessage != "" {
			if caps.SupportsLogPoints {
				wireBp.LogMessage = sb.LogMessage
			} else {
				c.console.OutputLine(fmt.Sprintf("log message on breakpoint at %s:%d dropped: adapter does not support log points", sb.Path, sb.Line))
			}
		}
		reqBps[i] = wireBp
	}

	result, err := ds.SetBreakpoints(godap.Source{Path: path}, reqBps)
	if err != nil {
		recordErr(fmt.Errorf("setBreakpoints %s: %w", path, err))
		return
	}
	for i, sb := range bps {
		if i >= len(result) {
			break
		}
		c.applyReconcileResult(sb.Index(), result[i])
	}
}

func (c *Core) reconcileFunctions(ds DebugSession, functions []*breakpoint.FunctionBreakpoint, recordErr func(error)) {
	reqBps := make([]godap.FunctionBreakpoint, len(functions))
	for i, fb := range functions {
		reqBps[i] = godap.FunctionBreakpoint{Name: fb.Func}
	}

	result, err := ds.SetFunctionBreakpoints(reqBps)
	if err != nil {
		recordErr(fmt.Errorf("setFunctionBreakpoints: %w", err))
		return
	}
	for i, fb := range functions {
		if i >= len(result) {
			break
		}
		c.applyReconcileResult(fb.Index(), result[i])
		if result[i].Source != nil && result[i].Line != 0 {
			c.breakpoints.SetPathAndLine(fb.Index(), result[i].Source.Path, uint32(result[i].Line))
		}
	}
}

// applyReconcileResult pairs reconcile results back to breakpoints by
// position: record id/verified, and if the adapter returned no id,
// auto-verify optimistically since no later breakpoint event can
// confirm it.
func (c *Core) applyReconcileResult(index uint32, rb godap.Breakpoint) {
	hasID := rb.Id != 0
	verified := rb.Verified
	if !hasID {
		verified = true
	}
	if hasID {
		c.breakpoints.SetID(index, uint32(rb.Id))
	}
	c.breakpoints.SetVerified(index, verified)

	msg := rb.Message
	if !verified && msg == "" {
		msg = breakpoint.UnresolvedMessage
	}
	c.breakpoints.SetMessage(index, msg)
}
