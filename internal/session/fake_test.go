package session

import (
	"fmt"
	"sync"

	godap "github.com/google/go-dap"

	"github.com/fbdbg/fbdbg/internal/dap"
	"github.com/fbdbg/fbdbg/pkg/types"
)

// fakeDebugSession is a hand-written DebugSession double: no mocking
// library, canned responses keyed by command, and a way to push
// synthetic events through the installed handler.
type fakeDebugSession struct {
	mu      sync.Mutex
	handler func(dap.Event)

	caps godap.Capabilities

	initializeErr error
	launchErr     error
	attachErr     error

	threads     []godap.Thread
	stackFrames []godap.StackFrame
	scopes      []godap.Scope
	variables   map[int][]godap.Variable

	sourceBreakpointResults  map[string][]godap.Breakpoint
	functionBreakpointResult []godap.Breakpoint
	setBreakpointsErr        error
	setFunctionBreakpointsErr error

	evaluateResult *godap.EvaluateResponseBody

	pauseCalls       []int
	continueCalls    []int
	setBreakpointsBy []godap.Source
	disconnects      int
	terminates       int
	closes           int
}

func newFakeDebugSession() *fakeDebugSession {
	return &fakeDebugSession{
		variables:               make(map[int][]godap.Variable),
		sourceBreakpointResults: make(map[string][]godap.Breakpoint),
	}
}

func (f *fakeDebugSession) Initialize(clientID string) (godap.Capabilities, error) {
	return f.caps, f.initializeErr
}

func (f *fakeDebugSession) Launch(args map[string]interface{}) error { return f.launchErr }
func (f *fakeDebugSession) Attach(args map[string]interface{}) error { return f.attachErr }
func (f *fakeDebugSession) ConfigurationDone() error                 { return nil }

func (f *fakeDebugSession) SetBreakpoints(source godap.Source, bps []godap.SourceBreakpoint) ([]godap.Breakpoint, error) {
	f.mu.Lock()
	f.setBreakpointsBy = append(f.setBreakpointsBy, source)
	f.mu.Unlock()
	if f.setBreakpointsErr != nil {
		return nil, f.setBreakpointsErr
	}
	if result, ok := f.sourceBreakpointResults[source.Path]; ok {
		return result, nil
	}
	out := make([]godap.Breakpoint, len(bps))
	for i := range bps {
		out[i] = godap.Breakpoint{Verified: true}
	}
	return out, nil
}

func (f *fakeDebugSession) SetFunctionBreakpoints(bps []godap.FunctionBreakpoint) ([]godap.Breakpoint, error) {
	if f.setFunctionBreakpointsErr != nil {
		return nil, f.setFunctionBreakpointsErr
	}
	if f.functionBreakpointResult != nil {
		return f.functionBreakpointResult, nil
	}
	out := make([]godap.Breakpoint, len(bps))
	for i := range bps {
		out[i] = godap.Breakpoint{Verified: true}
	}
	return out, nil
}

func (f *fakeDebugSession) SetExceptionBreakpoints(filters []string) error { return nil }

func (f *fakeDebugSession) Threads() ([]godap.Thread, error) { return f.threads, nil }

func (f *fakeDebugSession) StackTrace(threadID, levels int) ([]godap.StackFrame, error) {
	if levels > len(f.stackFrames) {
		return f.stackFrames, nil
	}
	return f.stackFrames[:levels], nil
}

func (f *fakeDebugSession) Scopes(frameID int) ([]godap.Scope, error) { return f.scopes, nil }

func (f *fakeDebugSession) Variables(variablesRef int) ([]godap.Variable, error) {
	return f.variables[variablesRef], nil
}

func (f *fakeDebugSession) Evaluate(expr string, frameID int, context string) (*godap.EvaluateResponseBody, error) {
	if f.evaluateResult != nil {
		return f.evaluateResult, nil
	}
	return &godap.EvaluateResponseBody{Result: fmt.Sprintf("%s=?", expr)}, nil
}

func (f *fakeDebugSession) Continue(threadID int) (bool, error) {
	f.mu.Lock()
	f.continueCalls = append(f.continueCalls, threadID)
	f.mu.Unlock()
	return true, nil
}

func (f *fakeDebugSession) Next(threadID int) error    { return nil }
func (f *fakeDebugSession) StepIn(threadID int) error  { return nil }
func (f *fakeDebugSession) StepOut(threadID int) error { return nil }

func (f *fakeDebugSession) Pause(threadID int) error {
	f.mu.Lock()
	f.pauseCalls = append(f.pauseCalls, threadID)
	f.mu.Unlock()
	return nil
}

func (f *fakeDebugSession) Source(sourceRef int, path string) (string, error) { return "", nil }

func (f *fakeDebugSession) Disconnect(terminateDebuggee bool) error {
	f.mu.Lock()
	f.disconnects++
	f.mu.Unlock()
	return nil
}

func (f *fakeDebugSession) Terminate(restart bool) error {
	f.mu.Lock()
	f.terminates++
	f.mu.Unlock()
	return nil
}

func (f *fakeDebugSession) SetEventHandler(handler func(dap.Event)) {
	f.mu.Lock()
	f.handler = handler
	f.mu.Unlock()
}

func (f *fakeDebugSession) Close() error {
	f.mu.Lock()
	f.closes++
	f.mu.Unlock()
	return nil
}

// Emit pushes ev through the currently installed handler, synchronously
// on the calling goroutine — matching how dap.Client's own read loop
// invokes it.
func (f *fakeDebugSession) Emit(ev dap.Event) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h != nil {
		h(ev)
	}
}

func (f *fakeDebugSession) PauseCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pauseCalls)
}

// SetBreakpointsCallCountFor counts how many setBreakpoints calls
// named path, across every reconcile so far.
func (f *fakeDebugSession) SetBreakpointsCallCountFor(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, src := range f.setBreakpointsBy {
		if src.Path == path {
			n++
		}
	}
	return n
}

func (f *fakeDebugSession) DisconnectCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disconnects
}

func (f *fakeDebugSession) TerminateCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.terminates
}

// fakeAdapter is the Adapter double; its transforms are identity
// functions unless overridden.
type fakeAdapter struct {
	asyncStopThreadID int64
	asyncStopOK       bool
}

func (a *fakeAdapter) TransformLaunchArguments(args map[string]interface{}) (map[string]interface{}, error) {
	return args, nil
}

func (a *fakeAdapter) TransformAttachArguments(args map[string]interface{}) (map[string]interface{}, error) {
	return args, nil
}

func (a *fakeAdapter) AsyncStopThread() (int64, bool) { return a.asyncStopThreadID, a.asyncStopOK }

// fakeSpawner always returns the same DebugSession/Adapter pair,
// counting calls so relaunch can be observed deterministically.
type fakeSpawner struct {
	mu       sync.Mutex
	ds       DebugSession
	adapter  Adapter
	err      error
	spawnCh  chan struct{}
	spawns   int
}

func newFakeSpawner(ds DebugSession, adapter Adapter) *fakeSpawner {
	return &fakeSpawner{ds: ds, adapter: adapter, spawnCh: make(chan struct{}, 16)}
}

func (s *fakeSpawner) Spawn(lang types.Language, action types.Action, args map[string]interface{}) (DebugSession, Adapter, error) {
	s.mu.Lock()
	s.spawns++
	s.mu.Unlock()
	s.spawnCh <- struct{}{}
	return s.ds, s.adapter, s.err
}

// fakeConsole records every output line and input toggle.
type fakeConsole struct {
	mu         sync.Mutex
	lines      []string
	inputOn    bool
	startCalls int
	stopCalls  int
}

func (c *fakeConsole) Output(text string)     { c.OutputLine(text) }
func (c *fakeConsole) OutputLine(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, text)
}
func (c *fakeConsole) StartInput() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inputOn = true
	c.startCalls++
}
func (c *fakeConsole) StopInput() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inputOn = false
	c.stopCalls++
}
func (c *fakeConsole) InputOn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inputOn
}
