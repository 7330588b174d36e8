package session

import (
	"testing"
	"time"

	godap "github.com/google/go-dap"
	"github.com/sirupsen/logrus"

	"github.com/fbdbg/fbdbg/internal/dap"
	sessionerrors "github.com/fbdbg/fbdbg/internal/errors"
	"github.com/fbdbg/fbdbg/pkg/types"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(log)
}

func newTestCore(ds DebugSession, adapter Adapter) (*Core, *fakeSpawner, *fakeConsole) {
	spawner := newFakeSpawner(ds, adapter)
	console := &fakeConsole{}
	c := New(spawner, console, "fbdbg-test", testLogger())
	return c, spawner, console
}

// drainSpawns waits until spawner has processed n spawns, since createSession
// runs the launch/attach request on its own goroutine.
func drainSpawns(t *testing.T, sp *fakeSpawner, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-sp.spawnCh:
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for spawn %d/%d", i+1, n)
		}
	}
}

// Scenario 1: launch, set breakpoint, run, stop, continue, exit.
func TestScenarioLaunchBreakpointRunStopContinueExit(t *testing.T) {
	ds := newFakeDebugSession()
	ds.caps = godap.Capabilities{SupportsConfigurationDoneRequest: true}
	ds.sourceBreakpointResults["/a.py"] = []godap.Breakpoint{{Id: 1, Verified: true}}

	c, sp, console := newTestCore(ds, &fakeAdapter{})

	c.AddSourceBreakpoint("/a.py", 10, "", "", "")

	if err := c.Launch(types.LanguagePython, map[string]interface{}{}); err != nil {
		t.Fatalf("Launch: %v", err)
	}
	drainSpawns(t, sp, 1)

	if got := c.State(); got != StateInitializing {
		t.Fatalf("state after Launch = %v, want Initializing", got)
	}

	ds.Emit(dap.InitializedEvent{})
	if got := c.State(); got != StateConfiguring {
		t.Fatalf("state after initialized = %v, want Configuring", got)
	}

	if err := c.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := c.State(); got != StateRunning {
		t.Fatalf("state after Run = %v, want Running", got)
	}
	if console.InputOn() {
		t.Fatalf("console input should be off while Running")
	}

	ds.Emit(dap.StoppedEvent{ThreadID: 1, Reason: "breakpoint", AllThreadsStopped: true})
	if got := c.State(); got != StateStopped {
		t.Fatalf("state after stopped = %v, want Stopped", got)
	}
	if !console.InputOn() {
		t.Fatalf("console input should be on at Stopped entry")
	}

	if err := c.Continue(1); err != nil {
		t.Fatalf("Continue: %v", err)
	}
	if got := c.State(); got != StateRunning {
		t.Fatalf("state after Continue = %v, want Running", got)
	}
	if console.InputOn() {
		t.Fatalf("console input should be off immediately after Continue")
	}

	ds.Emit(dap.ContinuedEvent{AllThreadsContinued: true})
	if console.InputOn() {
		t.Fatalf("console input should remain off after continued event")
	}

	ds.Emit(dap.ExitedEvent{ExitCode: 0})
	if got := c.State(); got != StateTerminated {
		t.Fatalf("state after exited = %v, want Terminated", got)
	}
	if !console.InputOn() {
		t.Fatalf("console input should be on after termination")
	}

	drainSpawns(t, sp, 1)
	if sp.spawns != 2 {
		t.Fatalf("expected relaunch to spawn a second adapter, spawns = %d", sp.spawns)
	}
}

// A launch-mode debuggee that runs to completion is reported via both
// exited and terminated; only the first should trigger a relaunch.
func TestExitedThenTerminatedRelaunchesOnlyOnce(t *testing.T) {
	ds := newFakeDebugSession()
	ds.caps = godap.Capabilities{SupportsConfigurationDoneRequest: true}

	c, sp, _ := newTestCore(ds, &fakeAdapter{})

	if err := c.Launch(types.LanguagePython, map[string]interface{}{}); err != nil {
		t.Fatalf("Launch: %v", err)
	}
	drainSpawns(t, sp, 1)
	ds.Emit(dap.InitializedEvent{})
	if err := c.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	ds.Emit(dap.ExitedEvent{ExitCode: 0})
	ds.Emit(dap.TerminatedEvent{})

	drainSpawns(t, sp, 1)
	if sp.spawns != 2 {
		t.Fatalf("expected exactly one relaunch (2 total spawns), got %d", sp.spawns)
	}
}

// Scenario 2: attach with asyncStopThread=7.
func TestScenarioAttachWithAsyncStopThread(t *testing.T) {
	ds := newFakeDebugSession()
	ds.caps = godap.Capabilities{SupportsConfigurationDoneRequest: true}
	adapter := &fakeAdapter{asyncStopThreadID: 7, asyncStopOK: true}

	c, sp, _ := newTestCore(ds, adapter)

	done := make(chan struct{})
	go func() {
		_ = c.Attach(types.LanguagePython, map[string]interface{}{})
		close(done)
	}()
	drainSpawns(t, sp, 1)
	<-done

	ds.Emit(dap.InitializedEvent{})

	deadline := time.Now().Add(time.Second)
	for ds.PauseCallCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	if got := c.State(); got != StateRunning {
		t.Fatalf("state after configureAfterAttach = %v, want Running", got)
	}
	if n := ds.PauseCallCount(); n != 1 {
		t.Fatalf("pause call count = %d, want 1", n)
	}
}

// Scenario 3: breakpoint verification update.
func TestScenarioBreakpointVerificationUpdate(t *testing.T) {
	ds := newFakeDebugSession()
	ds.caps = godap.Capabilities{SupportsConfigurationDoneRequest: true}
	ds.sourceBreakpointResults["/x"] = []godap.Breakpoint{{Id: 42, Verified: false, Message: ""}}

	c, sp, _ := newTestCore(ds, &fakeAdapter{})

	idx, _ := c.AddSourceBreakpoint("/x", 5, "", "", "")

	if err := c.Launch(types.LanguagePython, map[string]interface{}{}); err != nil {
		t.Fatalf("Launch: %v", err)
	}
	drainSpawns(t, sp, 1)
	ds.Emit(dap.InitializedEvent{})
	if err := c.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	findByIndex := func() breakpointView {
		for _, bp := range c.AllBreakpoints() {
			if bp.Index() == idx {
				id, _ := bp.ID()
				return breakpointView{id: id, verified: bp.Verified(), message: bp.Message(), found: true}
			}
		}
		return breakpointView{}
	}

	before := findByIndex()
	if !before.found {
		t.Fatalf("breakpoint %d not found after reconcile", idx)
	}
	if before.id != 42 || before.verified {
		t.Fatalf("breakpoint after reconcile = %+v, want id=42 verified=false", before)
	}
	if before.message != "Could not set this breakpoint. The module may not have been loaded yet." {
		t.Fatalf("breakpoint message = %q, want unresolved default", before.message)
	}

	ds.Emit(dap.BreakpointEvent{HasID: true, ID: 42, Verified: true})

	after := findByIndex()
	if !after.found || !after.verified {
		t.Fatalf("breakpoint after breakpoint event = %+v, want verified=true", after)
	}
}

// Deleting a source's last breakpoint must still send an empty
// setBreakpoints for that path, since the adapter only replaces a
// source's breakpoint list on an explicit call for that source.
func TestDeletingLastBreakpointOnPathClearsItAtAdapter(t *testing.T) {
	ds := newFakeDebugSession()
	ds.caps = godap.Capabilities{SupportsConfigurationDoneRequest: true}
	c, sp, _ := newTestCore(ds, &fakeAdapter{})

	idx, err := c.AddSourceBreakpoint("/a.py", 10, "", "", "")
	if err != nil {
		t.Fatalf("AddSourceBreakpoint: %v", err)
	}

	if err := c.Launch(types.LanguagePython, map[string]interface{}{}); err != nil {
		t.Fatalf("Launch: %v", err)
	}
	drainSpawns(t, sp, 1)
	ds.Emit(dap.InitializedEvent{})
	if err := c.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if n := ds.SetBreakpointsCallCountFor("/a.py"); n != 1 {
		t.Fatalf("setBreakpoints calls for /a.py after run = %d, want 1", n)
	}

	if err := c.DeleteBreakpoint(idx); err != nil {
		t.Fatalf("DeleteBreakpoint: %v", err)
	}

	if n := ds.SetBreakpointsCallCountFor("/a.py"); n != 2 {
		t.Fatalf("setBreakpoints calls for /a.py after delete = %d, want 2 (clear call missing)", n)
	}
}

type breakpointView struct {
	id       uint32
	verified bool
	message  string
	found    bool
}

// Scenario 4: function breakpoint on a non-supporting adapter.
func TestScenarioFunctionBreakpointUnsupportedCapability(t *testing.T) {
	ds := newFakeDebugSession()
	ds.caps = godap.Capabilities{SupportsConfigurationDoneRequest: true, SupportsFunctionBreakpoints: false}

	c, sp, _ := newTestCore(ds, &fakeAdapter{})

	c.AddFunctionBreakpoint("main")

	if err := c.Launch(types.LanguagePython, map[string]interface{}{}); err != nil {
		t.Fatalf("Launch: %v", err)
	}
	drainSpawns(t, sp, 1)
	ds.Emit(dap.InitializedEvent{})

	err := c.Run()
	if err == nil {
		t.Fatalf("Run: expected CapabilityNotSupported, got nil")
	}
	se, ok := err.(*sessionerrors.SessionError)
	if !ok || se.Code != sessionerrors.CodeCapabilityNotSupported {
		t.Fatalf("Run err = %v, want CapabilityNotSupported", err)
	}
}

// Scenario 5: selected scope not present.
func TestScenarioSelectedScopeNotPresent(t *testing.T) {
	ds := newFakeDebugSession()
	ds.caps = godap.Capabilities{SupportsConfigurationDoneRequest: true}
	ds.threads = []godap.Thread{{Id: 1, Name: "main"}}
	ds.stackFrames = []godap.StackFrame{{Id: 100, Line: 1}}
	ds.scopes = []godap.Scope{{Name: "Locals"}, {Name: "Globals"}}

	c, sp, _ := newTestCore(ds, &fakeAdapter{})

	if err := c.Launch(types.LanguagePython, map[string]interface{}{}); err != nil {
		t.Fatalf("Launch: %v", err)
	}
	drainSpawns(t, sp, 1)
	ds.Emit(dap.InitializedEvent{})
	if err := c.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	ds.Emit(dap.StoppedEvent{ThreadID: 1, Reason: "breakpoint", AllThreadsStopped: true})

	_, err := c.GetVariablesByScope(1, "Registers")
	if err == nil {
		t.Fatalf("GetVariablesByScope: expected NoSuchScope, got nil")
	}
	se, ok := err.(*sessionerrors.SessionError)
	if !ok || se.Code != sessionerrors.CodeNoSuchScope {
		t.Fatalf("GetVariablesByScope err = %v, want NoSuchScope", err)
	}
}

// Rejected-command invariant: a command issued with no active session
// yields NoActiveSession without mutating the breakpoint collection.
func TestRejectedCommandLeavesCollectionsUntouched(t *testing.T) {
	c, _, _ := newTestCore(newFakeDebugSession(), &fakeAdapter{})

	_, err := c.GetStackTrace(1, 5)
	se, ok := err.(*sessionerrors.SessionError)
	if !ok || se.Code != sessionerrors.CodeNoActiveSession {
		t.Fatalf("GetStackTrace with no session err = %v, want NoActiveSession", err)
	}
	if len(c.AllBreakpoints()) != 0 {
		t.Fatalf("breakpoint collection mutated by a rejected command")
	}
}

// CloseSession on a launch-mode session with supportsTerminateRequest
// prefers terminate over disconnect.
func TestCloseSessionPrefersTerminateInLaunchMode(t *testing.T) {
	ds := newFakeDebugSession()
	ds.caps = godap.Capabilities{SupportsConfigurationDoneRequest: true, SupportsTerminateRequest: true}
	c, sp, _ := newTestCore(ds, &fakeAdapter{})

	if err := c.Launch(types.LanguagePython, map[string]interface{}{}); err != nil {
		t.Fatalf("Launch: %v", err)
	}
	drainSpawns(t, sp, 1)
	ds.Emit(dap.InitializedEvent{})

	if err := c.CloseSession(); err != nil {
		t.Fatalf("CloseSession: %v", err)
	}
	if ds.TerminateCallCount() != 1 {
		t.Fatalf("terminate calls = %d, want 1", ds.TerminateCallCount())
	}
	if ds.DisconnectCallCount() != 0 {
		t.Fatalf("disconnect calls = %d, want 0", ds.DisconnectCallCount())
	}
}

// CloseSession on an attach-mode session always disconnects, even
// when the adapter supports terminate, so the attached-to process is
// left running.
func TestCloseSessionDisconnectsInAttachMode(t *testing.T) {
	ds := newFakeDebugSession()
	ds.caps = godap.Capabilities{SupportsConfigurationDoneRequest: true, SupportsTerminateRequest: true}
	c, sp, _ := newTestCore(ds, &fakeAdapter{})

	done := make(chan struct{})
	go func() {
		_ = c.Attach(types.LanguagePython, map[string]interface{}{})
		close(done)
	}()
	drainSpawns(t, sp, 1)
	<-done
	ds.Emit(dap.InitializedEvent{})

	if err := c.CloseSession(); err != nil {
		t.Fatalf("CloseSession: %v", err)
	}
	if ds.DisconnectCallCount() != 1 {
		t.Fatalf("disconnect calls = %d, want 1", ds.DisconnectCallCount())
	}
	if ds.TerminateCallCount() != 0 {
		t.Fatalf("terminate calls = %d, want 0", ds.TerminateCallCount())
	}
}

// After closeSession, getThreads yields NoActiveSession.
func TestCloseSessionThenGetThreadsYieldsNoActiveSession(t *testing.T) {
	ds := newFakeDebugSession()
	ds.caps = godap.Capabilities{SupportsConfigurationDoneRequest: true}
	c, sp, _ := newTestCore(ds, &fakeAdapter{})

	if err := c.Launch(types.LanguagePython, map[string]interface{}{}); err != nil {
		t.Fatalf("Launch: %v", err)
	}
	drainSpawns(t, sp, 1)
	ds.Emit(dap.InitializedEvent{})

	if err := c.CloseSession(); err != nil {
		t.Fatalf("CloseSession: %v", err)
	}

	_, err := c.GetThreads()
	se, ok := err.(*sessionerrors.SessionError)
	if !ok || se.Code != sessionerrors.CodeNoActiveSession {
		t.Fatalf("GetThreads after CloseSession err = %v, want NoActiveSession", err)
	}
}
