package dap

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/google/go-dap"
)

// Client is fbdbg's concrete DebugSession: it owns a Transport to a
// single adapter process and translates go-dap request/response calls
// and events into the session package's DebugSession interface and
// tagged Event union. SessionCore talks to adapters only through this
// type.
type Client struct {
	transport *Transport
	log       *logrus.Entry

	pendingRequests map[int]chan dap.Message
	mu              sync.Mutex

	eventHandler func(Event)
	handlerMu    sync.Mutex

	capabilities dap.Capabilities

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewClient creates a client around transport and starts its read
// loop. log may be nil, in which case the standard logrus logger is
// used.
func NewClient(transport *Transport, log *logrus.Entry) *Client {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	transport.log = log
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		transport:       transport,
		log:             log,
		pendingRequests: make(map[int]chan dap.Message),
		ctx:             ctx,
		cancel:          cancel,
	}

	c.wg.Add(1)
	go c.readLoop()

	return c
}

// SetEventHandler installs the callback invoked for every translated
// event, including the synthetic AdapterExitedEvent raised when the
// read loop dies.
func (c *Client) SetEventHandler(handler func(Event)) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.eventHandler = handler
}

func (c *Client) emit(ev Event) {
	c.handlerMu.Lock()
	handler := c.eventHandler
	c.handlerMu.Unlock()
	if handler != nil {
		handler(ev)
	}
}

// readLoop continuously reads messages from the transport, routing
// responses to their waiting caller and events to the installed
// handler. A transport failure is terminal: it ends the session, so
// the loop raises AdapterExitedEvent and returns rather than retrying.
func (c *Client) readLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		msg, err := c.transport.Receive()
		if err != nil {
			select {
			case <-c.ctx.Done():
				return
			default:
				c.log.WithError(err).Warn("dap transport closed")
				c.emit(AdapterExitedEvent{Err: err})
				return
			}
		}

		c.handleMessage(msg)
	}
}

func (c *Client) handleMessage(msg dap.Message) {
	if requestSeq, ok := responseSeq(msg); ok {
		c.mu.Lock()
		ch, pending := c.pendingRequests[requestSeq]
		if pending {
			delete(c.pendingRequests, requestSeq)
		}
		c.mu.Unlock()
		if pending {
			ch <- msg
		}
		return
	}

	if ev, ok := translateEvent(msg); ok {
		c.emit(ev)
	}
}

// responseSeq extracts the RequestSeq from a go-dap response message.
func responseSeq(msg dap.Message) (int, bool) {
	switch m := msg.(type) {
	case *dap.InitializeResponse:
		return m.RequestSeq, true
	case *dap.LaunchResponse:
		return m.RequestSeq, true
	case *dap.AttachResponse:
		return m.RequestSeq, true
	case *dap.DisconnectResponse:
		return m.RequestSeq, true
	case *dap.TerminateResponse:
		return m.RequestSeq, true
	case *dap.ConfigurationDoneResponse:
		return m.RequestSeq, true
	case *dap.ThreadsResponse:
		return m.RequestSeq, true
	case *dap.StackTraceResponse:
		return m.RequestSeq, true
	case *dap.ScopesResponse:
		return m.RequestSeq, true
	case *dap.VariablesResponse:
		return m.RequestSeq, true
	case *dap.EvaluateResponse:
		return m.RequestSeq, true
	case *dap.SetBreakpointsResponse:
		return m.RequestSeq, true
	case *dap.SetFunctionBreakpointsResponse:
		return m.RequestSeq, true
	case *dap.SetExceptionBreakpointsResponse:
		return m.RequestSeq, true
	case *dap.ContinueResponse:
		return m.RequestSeq, true
	case *dap.NextResponse:
		return m.RequestSeq, true
	case *dap.StepInResponse:
		return m.RequestSeq, true
	case *dap.StepOutResponse:
		return m.RequestSeq, true
	case *dap.PauseResponse:
		return m.RequestSeq, true
	case *dap.SourceResponse:
		return m.RequestSeq, true
	case *dap.ErrorResponse:
		return m.RequestSeq, true
	}
	return 0, false
}

// sendRequest sends req, stamping its sequence number, and blocks for
// the matching response or timeout.
func (c *Client) sendRequest(req dap.RequestMessage, timeout time.Duration) (dap.Message, error) {
	seq := c.transport.NextSeq()
	stampSeq(req, seq)

	respCh := make(chan dap.Message, 1)
	c.mu.Lock()
	c.pendingRequests[seq] = respCh
	c.mu.Unlock()

	if err := c.transport.Send(req); err != nil {
		c.mu.Lock()
		delete(c.pendingRequests, seq)
		c.mu.Unlock()
		return nil, err
	}

	select {
	case resp := <-respCh:
		return resp, nil
	case <-time.After(timeout):
		c.mu.Lock()
		delete(c.pendingRequests, seq)
		c.mu.Unlock()
		return nil, fmt.Errorf("dap request %s: timeout", req.GetRequest().Command)
	case <-c.ctx.Done():
		return nil, c.ctx.Err()
	}
}

func stampSeq(req dap.RequestMessage, seq int) {
	switch r := req.(type) {
	case *dap.InitializeRequest:
		r.Seq = seq
	case *dap.LaunchRequest:
		r.Seq = seq
	case *dap.AttachRequest:
		r.Seq = seq
	case *dap.DisconnectRequest:
		r.Seq = seq
	case *dap.TerminateRequest:
		r.Seq = seq
	case *dap.ConfigurationDoneRequest:
		r.Seq = seq
	case *dap.ThreadsRequest:
		r.Seq = seq
	case *dap.StackTraceRequest:
		r.Seq = seq
	case *dap.ScopesRequest:
		r.Seq = seq
	case *dap.VariablesRequest:
		r.Seq = seq
	case *dap.EvaluateRequest:
		r.Seq = seq
	case *dap.SetBreakpointsRequest:
		r.Seq = seq
	case *dap.SetFunctionBreakpointsRequest:
		r.Seq = seq
	case *dap.SetExceptionBreakpointsRequest:
		r.Seq = seq
	case *dap.ContinueRequest:
		r.Seq = seq
	case *dap.NextRequest:
		r.Seq = seq
	case *dap.StepInRequest:
		r.Seq = seq
	case *dap.StepOutRequest:
		r.Seq = seq
	case *dap.PauseRequest:
		r.Seq = seq
	case *dap.SourceRequest:
		r.Seq = seq
	}
}

func errorMessage(resp dap.Message, command string) error {
	if er, ok := resp.(*dap.ErrorResponse); ok {
		return fmt.Errorf("%s failed: %s", command, er.Message)
	}
	return fmt.Errorf("%s: unexpected response type %T", command, resp)
}

// Initialize sends the initialize request and records the adapter's
// declared capabilities.
func (c *Client) Initialize(clientID string) (dap.Capabilities, error) {
	req := &dap.InitializeRequest{
		Request: dap.Request{ProtocolMessage: dap.ProtocolMessage{Type: "request"}, Command: "initialize"},
		Arguments: dap.InitializeRequestArguments{
			ClientID:                     clientID,
			ClientName:                   "fbdbg",
			AdapterID:                    "fbdbg",
			Locale:                       "en-US",
			LinesStartAt1:                true,
			ColumnsStartAt1:              true,
			PathFormat:                   "path",
			SupportsVariableType:         true,
			SupportsVariablePaging:       false,
			SupportsRunInTerminalRequest: false,
		},
	}

	resp, err := c.sendRequest(req, 10*time.Second)
	if err != nil {
		return dap.Capabilities{}, err
	}

	initResp, ok := resp.(*dap.InitializeResponse)
	if !ok || !initResp.Success {
		return dap.Capabilities{}, errorMessage(resp, "initialize")
	}

	c.capabilities = initResp.Body
	return initResp.Body, nil
}

// Launch sends the launch request. Per the DAP spec an adapter may
// defer its response until after configurationDone, so the timeout is
// generous.
func (c *Client) Launch(args map[string]interface{}) error {
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("marshal launch arguments: %w", err)
	}

	req := &dap.LaunchRequest{
		Request:   dap.Request{ProtocolMessage: dap.ProtocolMessage{Type: "request"}, Command: "launch"},
		Arguments: argsJSON,
	}

	resp, err := c.sendRequest(req, 30*time.Second)
	if err != nil {
		return err
	}
	launchResp, ok := resp.(*dap.LaunchResponse)
	if !ok || !launchResp.Success {
		return errorMessage(resp, "launch")
	}
	return nil
}

// Attach sends the attach request.
func (c *Client) Attach(args map[string]interface{}) error {
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("marshal attach arguments: %w", err)
	}

	req := &dap.AttachRequest{
		Request:   dap.Request{ProtocolMessage: dap.ProtocolMessage{Type: "request"}, Command: "attach"},
		Arguments: argsJSON,
	}

	resp, err := c.sendRequest(req, 30*time.Second)
	if err != nil {
		return err
	}
	attachResp, ok := resp.(*dap.AttachResponse)
	if !ok || !attachResp.Success {
		return errorMessage(resp, "attach")
	}
	return nil
}

func (c *Client) ConfigurationDone() error {
	req := &dap.ConfigurationDoneRequest{
		Request: dap.Request{ProtocolMessage: dap.ProtocolMessage{Type: "request"}, Command: "configurationDone"},
	}
	resp, err := c.sendRequest(req, 10*time.Second)
	if err != nil {
		return err
	}
	cdResp, ok := resp.(*dap.ConfigurationDoneResponse)
	if !ok || !cdResp.Success {
		return errorMessage(resp, "configurationDone")
	}
	return nil
}

func (c *Client) Disconnect(terminateDebuggee bool) error {
	req := &dap.DisconnectRequest{
		Request:   dap.Request{ProtocolMessage: dap.ProtocolMessage{Type: "request"}, Command: "disconnect"},
		Arguments: &dap.DisconnectArguments{TerminateDebuggee: terminateDebuggee},
	}
	resp, err := c.sendRequest(req, 10*time.Second)
	if err != nil {
		return err
	}
	discResp, ok := resp.(*dap.DisconnectResponse)
	if !ok || !discResp.Success {
		return errorMessage(resp, "disconnect")
	}
	return nil
}

// Terminate sends the terminate request, asking the adapter to end the
// debuggee its own way rather than fbdbg severing the connection via
// disconnect. Only sent to adapters advertising supportsTerminateRequest.
func (c *Client) Terminate(restart bool) error {
	req := &dap.TerminateRequest{
		Request:   dap.Request{ProtocolMessage: dap.ProtocolMessage{Type: "request"}, Command: "terminate"},
		Arguments: &dap.TerminateArguments{Restart: restart},
	}
	resp, err := c.sendRequest(req, 10*time.Second)
	if err != nil {
		return err
	}
	termResp, ok := resp.(*dap.TerminateResponse)
	if !ok || !termResp.Success {
		return errorMessage(resp, "terminate")
	}
	return nil
}

func (c *Client) Threads() ([]dap.Thread, error) {
	req := &dap.ThreadsRequest{Request: dap.Request{ProtocolMessage: dap.ProtocolMessage{Type: "request"}, Command: "threads"}}
	resp, err := c.sendRequest(req, 10*time.Second)
	if err != nil {
		return nil, err
	}
	threadsResp, ok := resp.(*dap.ThreadsResponse)
	if !ok || !threadsResp.Success {
		return nil, errorMessage(resp, "threads")
	}
	return threadsResp.Body.Threads, nil
}

func (c *Client) StackTrace(threadID, levels int) ([]dap.StackFrame, error) {
	req := &dap.StackTraceRequest{
		Request:   dap.Request{ProtocolMessage: dap.ProtocolMessage{Type: "request"}, Command: "stackTrace"},
		Arguments: dap.StackTraceArguments{ThreadId: threadID, Levels: levels},
	}
	resp, err := c.sendRequest(req, 10*time.Second)
	if err != nil {
		return nil, err
	}
	stackResp, ok := resp.(*dap.StackTraceResponse)
	if !ok || !stackResp.Success {
		return nil, errorMessage(resp, "stackTrace")
	}
	return stackResp.Body.StackFrames, nil
}

func (c *Client) Scopes(frameID int) ([]dap.Scope, error) {
	req := &dap.ScopesRequest{
		Request:   dap.Request{ProtocolMessage: dap.ProtocolMessage{Type: "request"}, Command: "scopes"},
		Arguments: dap.ScopesArguments{FrameId: frameID},
	}
	resp, err := c.sendRequest(req, 10*time.Second)
	if err != nil {
		return nil, err
	}
	scopesResp, ok := resp.(*dap.ScopesResponse)
	if !ok || !scopesResp.Success {
		return nil, errorMessage(resp, "scopes")
	}
	return scopesResp.Body.Scopes, nil
}

func (c *Client) Variables(variablesRef int) ([]dap.Variable, error) {
	req := &dap.VariablesRequest{
		Request:   dap.Request{ProtocolMessage: dap.ProtocolMessage{Type: "request"}, Command: "variables"},
		Arguments: dap.VariablesArguments{VariablesReference: variablesRef},
	}
	resp, err := c.sendRequest(req, 10*time.Second)
	if err != nil {
		return nil, err
	}
	varsResp, ok := resp.(*dap.VariablesResponse)
	if !ok || !varsResp.Success {
		return nil, errorMessage(resp, "variables")
	}
	return varsResp.Body.Variables, nil
}

func (c *Client) Evaluate(expr string, frameID int, context string) (*dap.EvaluateResponseBody, error) {
	req := &dap.EvaluateRequest{
		Request:   dap.Request{ProtocolMessage: dap.ProtocolMessage{Type: "request"}, Command: "evaluate"},
		Arguments: dap.EvaluateArguments{Expression: expr, FrameId: frameID, Context: context},
	}
	resp, err := c.sendRequest(req, 10*time.Second)
	if err != nil {
		return nil, err
	}
	evalResp, ok := resp.(*dap.EvaluateResponse)
	if !ok || !evalResp.Success {
		return nil, errorMessage(resp, "evaluate")
	}
	return &evalResp.Body, nil
}

func (c *Client) SetBreakpoints(source dap.Source, bps []dap.SourceBreakpoint) ([]dap.Breakpoint, error) {
	req := &dap.SetBreakpointsRequest{
		Request:   dap.Request{ProtocolMessage: dap.ProtocolMessage{Type: "request"}, Command: "setBreakpoints"},
		Arguments: dap.SetBreakpointsArguments{Source: source, Breakpoints: bps},
	}
	resp, err := c.sendRequest(req, 10*time.Second)
	if err != nil {
		return nil, err
	}
	bpResp, ok := resp.(*dap.SetBreakpointsResponse)
	if !ok || !bpResp.Success {
		return nil, errorMessage(resp, "setBreakpoints")
	}
	return bpResp.Body.Breakpoints, nil
}

func (c *Client) SetFunctionBreakpoints(bps []dap.FunctionBreakpoint) ([]dap.Breakpoint, error) {
	req := &dap.SetFunctionBreakpointsRequest{
		Request:   dap.Request{ProtocolMessage: dap.ProtocolMessage{Type: "request"}, Command: "setFunctionBreakpoints"},
		Arguments: dap.SetFunctionBreakpointsArguments{Breakpoints: bps},
	}
	resp, err := c.sendRequest(req, 10*time.Second)
	if err != nil {
		return nil, err
	}
	bpResp, ok := resp.(*dap.SetFunctionBreakpointsResponse)
	if !ok || !bpResp.Success {
		return nil, errorMessage(resp, "setFunctionBreakpoints")
	}
	return bpResp.Body.Breakpoints, nil
}

func (c *Client) SetExceptionBreakpoints(filters []string) error {
	req := &dap.SetExceptionBreakpointsRequest{
		Request:   dap.Request{ProtocolMessage: dap.ProtocolMessage{Type: "request"}, Command: "setExceptionBreakpoints"},
		Arguments: dap.SetExceptionBreakpointsArguments{Filters: filters},
	}
	resp, err := c.sendRequest(req, 10*time.Second)
	if err != nil {
		return err
	}
	ebResp, ok := resp.(*dap.SetExceptionBreakpointsResponse)
	if !ok || !ebResp.Success {
		return errorMessage(resp, "setExceptionBreakpoints")
	}
	return nil
}

func (c *Client) Continue(threadID int) (bool, error) {
	req := &dap.ContinueRequest{
		Request:   dap.Request{ProtocolMessage: dap.ProtocolMessage{Type: "request"}, Command: "continue"},
		Arguments: dap.ContinueArguments{ThreadId: threadID},
	}
	resp, err := c.sendRequest(req, 10*time.Second)
	if err != nil {
		return false, err
	}
	contResp, ok := resp.(*dap.ContinueResponse)
	if !ok || !contResp.Success {
		return false, errorMessage(resp, "continue")
	}
	return contResp.Body.AllThreadsContinued, nil
}

func (c *Client) Next(threadID int) error {
	req := &dap.NextRequest{
		Request:   dap.Request{ProtocolMessage: dap.ProtocolMessage{Type: "request"}, Command: "next"},
		Arguments: dap.NextArguments{ThreadId: threadID},
	}
	resp, err := c.sendRequest(req, 10*time.Second)
	if err != nil {
		return err
	}
	nextResp, ok := resp.(*dap.NextResponse)
	if !ok || !nextResp.Success {
		return errorMessage(resp, "next")
	}
	return nil
}

func (c *Client) StepIn(threadID int) error {
	req := &dap.StepInRequest{
		Request:   dap.Request{ProtocolMessage: dap.ProtocolMessage{Type: "request"}, Command: "stepIn"},
		Arguments: dap.StepInArguments{ThreadId: threadID},
	}
	resp, err := c.sendRequest(req, 10*time.Second)
	if err != nil {
		return err
	}
	stepResp, ok := resp.(*dap.StepInResponse)
	if !ok || !stepResp.Success {
		return errorMessage(resp, "stepIn")
	}
	return nil
}

func (c *Client) StepOut(threadID int) error {
	req := &dap.StepOutRequest{
		Request:   dap.Request{ProtocolMessage: dap.ProtocolMessage{Type: "request"}, Command: "stepOut"},
		Arguments: dap.StepOutArguments{ThreadId: threadID},
	}
	resp, err := c.sendRequest(req, 10*time.Second)
	if err != nil {
		return err
	}
	stepResp, ok := resp.(*dap.StepOutResponse)
	if !ok || !stepResp.Success {
		return errorMessage(resp, "stepOut")
	}
	return nil
}

func (c *Client) Pause(threadID int) error {
	req := &dap.PauseRequest{
		Request:   dap.Request{ProtocolMessage: dap.ProtocolMessage{Type: "request"}, Command: "pause"},
		Arguments: dap.PauseArguments{ThreadId: threadID},
	}
	resp, err := c.sendRequest(req, 10*time.Second)
	if err != nil {
		return err
	}
	pauseResp, ok := resp.(*dap.PauseResponse)
	if !ok || !pauseResp.Success {
		return errorMessage(resp, "pause")
	}
	return nil
}

func (c *Client) Source(sourceRef int, path string) (string, error) {
	req := &dap.SourceRequest{
		Request: dap.Request{ProtocolMessage: dap.ProtocolMessage{Type: "request"}, Command: "source"},
		Arguments: dap.SourceArguments{
			Source:          &dap.Source{Path: path, SourceReference: sourceRef},
			SourceReference: sourceRef,
		},
	}
	resp, err := c.sendRequest(req, 10*time.Second)
	if err != nil {
		return "", err
	}
	sourceResp, ok := resp.(*dap.SourceResponse)
	if !ok || !sourceResp.Success {
		return "", errorMessage(resp, "source")
	}
	return sourceResp.Body.Content, nil
}

// Close shuts down the read loop and underlying transport. It does not
// send a disconnect request — callers that want a clean DAP shutdown
// call Disconnect first.
func (c *Client) Close() error {
	c.cancel()
	c.wg.Wait()
	return c.transport.Close()
}
