package session

import (
	"fmt"

	sessionerrors "github.com/fbdbg/fbdbg/internal/errors"
	"github.com/fbdbg/fbdbg/internal/thread"
	"github.com/fbdbg/fbdbg/pkg/types"
)

// Launch starts a new debuggee under lang. Breakpoints declared before
// the launch are kept and sent to the adapter when the session is
// configured; a later relaunch keeps them too — see relaunch below.
func (c *Core) Launch(lang types.Language, args map[string]interface{}) error {
	c.mu.Lock()
	if c.debugSession != nil {
		state := c.state
		c.mu.Unlock()
		return sessionerrors.StateViolation(string(state), "launch")
	}
	c.mu.Unlock()

	c.mu.Lock()
	c.action = types.ActionLaunch
	c.lang = lang
	c.pendingLaunchArgs = args
	c.mu.Unlock()

	return c.createSession(lang, types.ActionLaunch, args)
}

// Attach connects to an already-running debuggee under lang.
func (c *Core) Attach(lang types.Language, args map[string]interface{}) error {
	c.mu.Lock()
	if c.debugSession != nil {
		state := c.state
		c.mu.Unlock()
		return sessionerrors.StateViolation(string(state), "attach")
	}
	c.mu.Unlock()

	c.mu.Lock()
	c.action = types.ActionAttach
	c.lang = lang
	c.pendingAttachArgs = args
	c.mu.Unlock()

	return c.createSession(lang, types.ActionAttach, args)
}

// createSession spawns the adapter, sends initialize, and fires the
// launch/attach request asynchronously since an adapter may defer its
// response until after configurationDone. Failures here are fatal:
// there is no session to recover into.
func (c *Core) createSession(lang types.Language, action types.Action, args map[string]interface{}) error {
	ds, adapter, err := c.spawner.Spawn(lang, action, args)
	if err != nil {
		return sessionerrors.FatalSessionError("spawn adapter", err)
	}

	caps, err := ds.Initialize(c.clientID)
	if err != nil {
		_ = ds.Close()
		return sessionerrors.FatalSessionError("initialize adapter", err)
	}

	var transformed map[string]interface{}
	if action == types.ActionLaunch {
		transformed, err = adapter.TransformLaunchArguments(args)
	} else {
		transformed, err = adapter.TransformAttachArguments(args)
	}
	if err != nil {
		_ = ds.Close()
		return sessionerrors.FatalSessionError("transform arguments", err)
	}

	c.mu.Lock()
	c.debugSession = ds
	c.adapter = adapter
	c.capabilities = capabilitiesFrom(caps)
	c.readyForEvaluations = !c.capabilities.SupportsReadyForEvaluationsEvent
	c.state = StateInitializing
	c.threads = thread.New()
	c.mu.Unlock()
	c.sourceCache.Flush()

	ds.SetEventHandler(c.handleEvent)

	go func() {
		var err error
		if action == types.ActionLaunch {
			err = ds.Launch(transformed)
		} else {
			err = ds.Attach(transformed)
		}
		if err != nil {
			c.log.WithError(err).Warn("launch/attach request failed")
			c.console.OutputLine(fmt.Sprintf("failed to start debuggee: %v", err))
		}
	}()

	return nil
}

// Run transitions Configuring -> Running: reconciles every declared
// breakpoint, sends the (empty) exception-filter set, sends
// configurationDone when supported, and caches the initial thread
// list.
func (c *Core) Run() error {
	c.mu.Lock()
	if c.state != StateConfiguring {
		state := c.state
		c.mu.Unlock()
		return sessionerrors.StateViolation(string(state), "run")
	}
	ds := c.debugSession
	c.mu.Unlock()
	if ds == nil {
		return sessionerrors.NoActiveSession()
	}
	return c.configurationDoneSequence(ds)
}

// configurationDoneSequence is shared by the explicit run command
// (Configuring -> Running) and the automatic configuration fbdbg
// performs immediately on attach (Initializing -> Running).
// setExceptionBreakpoints is the logical "I'm done configuring"
// signal and must be sent last among the configuration requests, even
// when configurationDone itself is unsupported.
func (c *Core) configurationDoneSequence(ds DebugSession) error {
	if err := c.resetAllBreakpoints(ds); err != nil {
		return err
	}
	if err := ds.SetExceptionBreakpoints([]string{}); err != nil {
		return sessionerrors.AdapterFailure("setExceptionBreakpoints", err)
	}

	c.mu.Lock()
	supportsConfigDone := c.capabilities.SupportsConfigurationDoneRequest
	c.mu.Unlock()
	if supportsConfigDone {
		if err := ds.ConfigurationDone(); err != nil {
			return sessionerrors.AdapterFailure("configurationDone", err)
		}
	}

	c.cacheThreads(ds)

	c.mu.Lock()
	c.state = StateRunning
	c.mu.Unlock()
	c.console.StopInput()
	return nil
}

func (c *Core) cacheThreads(ds DebugSession) {
	threads, err := ds.Threads()
	if err != nil {
		c.log.WithError(err).Warn("fetch threads")
		return
	}
	list := make([]thread.Thread, len(threads))
	for i, t := range threads {
		list[i] = thread.Thread{ID: int64(t.Id), Name: t.Name}
	}
	c.threads.UpdateThreads(list)
}

// closeSession tears down the active DebugSession, nulls the
// reference, and flushes the source cache. It prefers terminate over
// disconnect when the adapter supports it and the session is in
// launch mode, since terminate asks the adapter to end the debuggee
// its own way rather than fbdbg severing the connection outright;
// attach-mode sessions always disconnect, leaving the attached-to
// process running.
func (c *Core) closeSession(terminateDebuggee bool) {
	c.mu.Lock()
	ds := c.debugSession
	c.debugSession = nil
	c.adapter = nil
	action := c.action
	supportsTerminate := c.capabilities.SupportsTerminateRequest
	c.mu.Unlock()

	if ds != nil {
		if terminateDebuggee && action == types.ActionLaunch && supportsTerminate {
			_ = ds.Terminate(false)
		} else {
			_ = ds.Disconnect(terminateDebuggee)
		}
		_ = ds.Close()
	}
	c.sourceCache.Flush()
}

// CloseSession is the `quit` command: tears down the active session
// without relaunching.
func (c *Core) CloseSession() error {
	c.mu.Lock()
	_, err := c.requireSessionLocked()
	c.mu.Unlock()
	if err != nil {
		return err
	}

	c.closeSession(true)

	c.mu.Lock()
	c.state = StateTerminated
	c.mu.Unlock()
	return nil
}

// relaunch enforces the closeSession -> createSession -> launch
// ordering, and runs only in launch mode on unexpected termination.
// Breakpoints are kept, as they are by Launch.
func (c *Core) relaunch() {
	c.mu.Lock()
	c.relaunching = true
	lang := c.lang
	args := c.pendingLaunchArgs
	c.mu.Unlock()

	c.closeSession(false)

	c.mu.Lock()
	c.relaunching = false
	c.mu.Unlock()

	if err := c.createSession(lang, types.ActionLaunch, args); err != nil {
		c.console.OutputLine(fmt.Sprintf("relaunch failed: %v", err))
	}
}
