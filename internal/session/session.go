// Package session implements the Debugger Session Core: the state
// machine, breakpoint reconciler, and command-facing API that mediate
// between a textual console and a single Debug Adapter Protocol
// session. It owns a BreakpointCollection, a ThreadCollection, and a
// SourceFileCache, and drives exactly one DebugSession at a time.
//
// Go's runtime schedules the event handler (invoked from the
// DebugSession's own read loop) and command dispatch concurrently, so
// Core wraps its mutable state in a mutex rather than relying on
// run-to-completion semantics.
package session

import (
	"fmt"
	"sync"

	godap "github.com/google/go-dap"
	"github.com/sirupsen/logrus"

	"github.com/fbdbg/fbdbg/internal/breakpoint"
	"github.com/fbdbg/fbdbg/internal/dap"
	sessionerrors "github.com/fbdbg/fbdbg/internal/errors"
	"github.com/fbdbg/fbdbg/internal/sourcecache"
	"github.com/fbdbg/fbdbg/internal/thread"
	"github.com/fbdbg/fbdbg/pkg/types"
)

// State is the SessionCore's tagged session state.
type State string

const (
	StateInitializing State = "initializing"
	StateConfiguring  State = "configuring"
	StateRunning      State = "running"
	StateStopped      State = "stopped"
	StateTerminated   State = "terminated"
)

// DebugSession is the transport to a connected adapter: request/
// response methods plus an observable event stream. dap.Client is the
// concrete implementation; Core depends only on this interface.
type DebugSession interface {
	Initialize(clientID string) (godap.Capabilities, error)
	Launch(args map[string]interface{}) error
	Attach(args map[string]interface{}) error
	ConfigurationDone() error
	SetBreakpoints(source godap.Source, bps []godap.SourceBreakpoint) ([]godap.Breakpoint, error)
	SetFunctionBreakpoints(bps []godap.FunctionBreakpoint) ([]godap.Breakpoint, error)
	SetExceptionBreakpoints(filters []string) error
	Threads() ([]godap.Thread, error)
	StackTrace(threadID, levels int) ([]godap.StackFrame, error)
	Scopes(frameID int) ([]godap.Scope, error)
	Variables(variablesRef int) ([]godap.Variable, error)
	Evaluate(expr string, frameID int, context string) (*godap.EvaluateResponseBody, error)
	Continue(threadID int) (allThreadsContinued bool, err error)
	Next(threadID int) error
	StepIn(threadID int) error
	StepOut(threadID int) error
	Pause(threadID int) error
	Source(sourceRef int, path string) (content string, err error)
	Disconnect(terminateDebuggee bool) error
	Terminate(restart bool) error
	SetEventHandler(func(dap.Event))
	Close() error
}

// Adapter transforms generic launch/attach arguments into an
// adapter-specific shape and reports asynchronous stop behavior.
type Adapter interface {
	TransformLaunchArguments(args map[string]interface{}) (map[string]interface{}, error)
	TransformAttachArguments(args map[string]interface{}) (map[string]interface{}, error)
	AsyncStopThread() (threadID int64, ok bool)
}

// AdapterDescriptor groups everything createSession needs to bring up
// one session: which adapter, which action, and the raw arguments.
type AdapterDescriptor struct {
	Type       string
	Action     types.Action
	LaunchArgs map[string]interface{}
	AttachArgs map[string]interface{}
	Adapter    Adapter
}

// Spawner starts an adapter process for lang and returns a connected
// DebugSession plus the Adapter used to transform its arguments.
// adapterfactory.Registry implements this.
type Spawner interface {
	Spawn(lang types.Language, action types.Action, args map[string]interface{}) (DebugSession, Adapter, error)
}

// ConsoleIO is the textual console SessionCore writes to and toggles
// input on for.
type ConsoleIO interface {
	Output(text string)
	OutputLine(text string)
	StartInput()
	StopInput()
}

// Capabilities is SessionCore's copy of the adapter's initialize
// response, narrowed to the fields the reconciler and closeSession
// consult.
type Capabilities struct {
	SupportsConfigurationDoneRequest  bool
	SupportsFunctionBreakpoints       bool
	SupportsConditionalBreakpoints    bool
	SupportsHitConditionalBreakpoints bool
	SupportsLogPoints                 bool
	SupportsTerminateRequest          bool
	SupportsRestartRequest            bool

	// SupportsReadyForEvaluationsEvent marks an adapter that sends its
	// own "readyForEvaluations" custom event rather than being ready
	// for evaluation requests as soon as it reaches Configuring.
	SupportsReadyForEvaluationsEvent bool
}

func capabilitiesFrom(caps godap.Capabilities) Capabilities {
	return Capabilities{
		SupportsConfigurationDoneRequest:  caps.SupportsConfigurationDoneRequest,
		SupportsFunctionBreakpoints:       caps.SupportsFunctionBreakpoints,
		SupportsConditionalBreakpoints:    caps.SupportsConditionalBreakpoints,
		SupportsHitConditionalBreakpoints: caps.SupportsHitConditionalBreakpoints,
		SupportsLogPoints:                 caps.SupportsLogPoints,
		SupportsTerminateRequest:          caps.SupportsTerminateRequest,
		SupportsRestartRequest:            caps.SupportsRestartRequest,
		// go-dap's Capabilities struct has no field for this custom
		// extension, so it can never be populated from the wire.
		SupportsReadyForEvaluationsEvent: false,
	}
}

// Core is the Debugger Session Core.
type Core struct {
	mu sync.Mutex

	spawner Spawner
	console ConsoleIO
	log     *logrus.Entry

	// onAttachExit, if set, is called when an attach-mode session
	// terminates — the expected, non-error way an attach session
	// ends. cmd/fbdbg wires this to end the process with exit status 0;
	// tests leave it nil and just observe state.
	onAttachExit func()

	clientID string
	state    State
	action   types.Action
	lang     types.Language

	pendingLaunchArgs map[string]interface{}
	pendingAttachArgs map[string]interface{}

	debugSession DebugSession
	adapter      Adapter

	capabilities        Capabilities
	readyForEvaluations bool

	// relaunching suppresses the unexpected-adapter-exited handling
	// while closeSession tears down the outgoing session during a
	// relaunch.
	relaunching bool

	breakpoints *breakpoint.Collection
	threads     *thread.Collection
	sourceCache *sourcecache.Cache
}

// New returns a Core with no active session. clientID is sent as the
// DAP initialize request's clientID field.
func New(spawner Spawner, console ConsoleIO, clientID string, log *logrus.Entry) *Core {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	c := &Core{
		spawner:             spawner,
		console:             console,
		log:                 log,
		clientID:            clientID,
		state:               StateTerminated,
		breakpoints:         breakpoint.New(),
		readyForEvaluations: true,
	}
	c.threads = thread.New()
	c.sourceCache = sourcecache.New(c.fetchSourceByReference)
	return c
}

// SetOnAttachExit installs the callback invoked on attach-mode
// termination, in place of exiting the process directly.
func (c *Core) SetOnAttachExit(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onAttachExit = fn
}

// State returns the current session state.
func (c *Core) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// HasActiveSession reports whether Core currently owns a DebugSession.
func (c *Core) HasActiveSession() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.debugSession != nil
}

func (c *Core) fetchSourceByReference(ref int) (string, error) {
	c.mu.Lock()
	ds := c.debugSession
	c.mu.Unlock()
	if ds == nil {
		return "", fmt.Errorf("no active debug session")
	}
	return ds.Source(ref, "")
}

// requireSessionLocked returns the active DebugSession or NoActiveSession.
// Callers hold c.mu.
func (c *Core) requireSessionLocked() (DebugSession, error) {
	if c.debugSession == nil {
		return nil, sessionerrors.NoActiveSession()
	}
	return c.debugSession, nil
}
