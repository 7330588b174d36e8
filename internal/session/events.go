package session

import (
	"fmt"

	"github.com/fbdbg/fbdbg/internal/breakpoint"
	"github.com/fbdbg/fbdbg/internal/dap"
	"github.com/fbdbg/fbdbg/internal/thread"
	"github.com/fbdbg/fbdbg/pkg/types"
)

// handleEvent is installed as the DebugSession's event handler. It
// runs on whatever goroutine the transport's read loop uses, which is
// why every field access below goes through c.mu rather than
// assuming it runs on the same goroutine as command dispatch.
func (c *Core) handleEvent(ev dap.Event) {
	switch e := ev.(type) {
	case dap.InitializedEvent:
		c.onInitialized()
	case dap.StoppedEvent:
		c.onStopped(e)
	case dap.ContinuedEvent:
		c.onContinued(e)
	case dap.ThreadEvent:
		c.onThread(e)
	case dap.OutputEvent:
		c.console.OutputLine(e.Output)
	case dap.BreakpointEvent:
		c.onBreakpointEvent(e)
	case dap.ExitedEvent:
		c.onTerminated()
	case dap.TerminatedEvent:
		c.onTerminated()
	case dap.AdapterExitedEvent:
		c.onAdapterExited(e)
	case dap.CustomEvent:
		c.onCustomEvent(e)
	}
}

func (c *Core) onInitialized() {
	c.mu.Lock()
	ds := c.debugSession
	action := c.action
	c.mu.Unlock()
	if ds == nil {
		return
	}

	if action == types.ActionAttach {
		go c.configureAfterAttach(ds)
		return
	}

	c.mu.Lock()
	c.state = StateConfiguring
	ready := c.readyForEvaluations
	c.mu.Unlock()
	if ready {
		c.console.StartInput()
	}
}

// configureAfterAttach runs configurationDoneSequence immediately
// once an attach-mode adapter reports initialized, and issues the
// adapter's async stop request afterward if it declares one.
func (c *Core) configureAfterAttach(ds DebugSession) {
	if err := c.configurationDoneSequence(ds); err != nil {
		c.console.OutputLine(fmt.Sprintf("configuration failed: %v", err))
		return
	}

	c.mu.Lock()
	adapter := c.adapter
	c.mu.Unlock()
	if adapter == nil {
		return
	}
	if threadID, ok := adapter.AsyncStopThread(); ok {
		if err := ds.Pause(int(threadID)); err != nil {
			c.log.WithError(err).Warn("pause after attach")
		}
	}
}

func (c *Core) onStopped(e dap.StoppedEvent) {
	c.mu.Lock()
	c.state = StateStopped
	c.mu.Unlock()

	if e.AllThreadsStopped {
		c.threads.MarkAllThreadsStopped()
	} else if e.ThreadID != 0 {
		c.threads.MarkThreadStopped(int64(e.ThreadID))
	}

	var focus thread.Thread
	var ok bool
	if e.ThreadID != 0 {
		focus, ok = c.threads.Get(int64(e.ThreadID))
	}
	if !ok {
		focus, ok = c.threads.FirstStoppedThread()
	}
	if ok {
		c.threads.SetFocusThread(focus.ID)
		c.printTopOfStack(focus.ID)
	}

	c.console.StartInput()
}

func (c *Core) printTopOfStack(threadID int64) {
	c.mu.Lock()
	ds := c.debugSession
	c.mu.Unlock()
	if ds == nil {
		return
	}
	frames, err := ds.StackTrace(int(threadID), 1)
	if err != nil || len(frames) == 0 {
		return
	}
	top := frames[0]
	if top.Source != nil {
		c.console.OutputLine(fmt.Sprintf("%s:%d", top.Source.Path, top.Line))
	}
}

func (c *Core) onContinued(e dap.ContinuedEvent) {
	c.mu.Lock()
	c.state = StateRunning
	c.mu.Unlock()

	if e.AllThreadsContinued {
		c.threads.MarkAllThreadsRunning()
	} else if e.ThreadID != 0 {
		c.threads.MarkThreadRunning(int64(e.ThreadID))
	}

	c.console.StopInput()
}

func (c *Core) onThread(e dap.ThreadEvent) {
	switch e.Reason {
	case "started":
		c.threads.AddThread(thread.Thread{ID: int64(e.ThreadID)})
	case "exited":
		c.threads.RemoveThread(int64(e.ThreadID))
	}
}

func (c *Core) onBreakpointEvent(e dap.BreakpointEvent) {
	if !e.HasID {
		return
	}
	bp, ok := c.breakpoints.GetByID(uint32(e.ID))
	if !ok {
		return
	}

	c.breakpoints.SetVerified(bp.Index(), e.Verified)
	msg := e.Message
	if !e.Verified && msg == "" {
		msg = breakpoint.UnresolvedMessage
	}
	c.breakpoints.SetMessage(bp.Index(), msg)

	if fb, ok := bp.(*breakpoint.FunctionBreakpoint); ok && e.SourcePath != "" {
		c.breakpoints.SetPathAndLine(fb.Index(), e.SourcePath, uint32(e.Line))
	}
}

// onTerminated handles both "exited" and "terminated": an adapter
// running a debuggee to completion normally sends both, and
// onAdapterExited may additionally call this on an unexpected
// transport failure. The state check makes a second notification for
// the same debuggee a no-op rather than spawning a second concurrent
// relaunch that races the first's closeSession/createSession pair.
func (c *Core) onTerminated() {
	c.mu.Lock()
	if c.state == StateTerminated || c.debugSession == nil {
		c.mu.Unlock()
		return
	}
	action := c.action
	c.state = StateTerminated
	c.mu.Unlock()

	c.console.OutputLine("debuggee terminated")
	c.console.StartInput()

	if action == types.ActionLaunch {
		go c.relaunch()
		return
	}

	c.mu.Lock()
	onExit := c.onAttachExit
	c.mu.Unlock()
	if onExit != nil {
		onExit()
	}
}

// onAdapterExited handles the synthetic event the transport raises
// when its read loop dies. During a relaunch's closeSession, Close()
// tears the transport down on purpose, so an adapter-exited event
// arriving while Initializing and relaunching is expected and
// ignored.
func (c *Core) onAdapterExited(e dap.AdapterExitedEvent) {
	c.mu.Lock()
	relaunching := c.relaunching
	state := c.state
	c.mu.Unlock()

	if state == StateInitializing && relaunching {
		return
	}

	c.log.WithError(e.Err).Warn("adapter exited unexpectedly")
	c.onTerminated()
}

func (c *Core) onCustomEvent(e dap.CustomEvent) {
	if e.Name != "readyForEvaluations" {
		return
	}
	c.mu.Lock()
	c.readyForEvaluations = true
	state := c.state
	c.mu.Unlock()
	if state == StateConfiguring {
		c.console.StartInput()
	}
}
