// Package adapterfactory spawns and connects to concrete debug
// adapter processes (dlv, debugpy, lldb-dap, node --inspect) and
// exposes them as session.DebugSession/session.Adapter values. The
// Session Core never imports this package: it depends only on the
// DebugSession and Adapter interfaces, which this package implements.
package adapterfactory

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fbdbg/fbdbg/internal/config"
	"github.com/fbdbg/fbdbg/internal/dap"
	sessionerrors "github.com/fbdbg/fbdbg/internal/errors"
	"github.com/fbdbg/fbdbg/internal/session"
	"github.com/fbdbg/fbdbg/pkg/types"
)

// Descriptor implements session.Adapter: it transforms launch/attach
// arguments into adapter-specific shapes and spawns a connected
// DebugSession.
type Descriptor interface {
	// Language returns the language this descriptor supports.
	Language() types.Language

	// TransformLaunchArguments maps generic launch args into the
	// adapter's own launch request shape.
	TransformLaunchArguments(args map[string]any) (map[string]any, error)

	// TransformAttachArguments maps generic attach args into the
	// adapter's own attach request shape.
	TransformAttachArguments(args map[string]any) (map[string]any, error)

	// AsyncStopThread reports the thread id an adapter asynchronously
	// stops without a matching client request (NodeAdapter reports
	// thread 1; the other descriptors report none).
	AsyncStopThread() (threadID int64, ok bool)

	// Spawn starts the adapter process, connects a dap.Client to it,
	// and returns both. cmd is nil for adapters fbdbg does not manage
	// a subprocess for.
	Spawn(ctx context.Context, log *logrus.Entry, args map[string]interface{}) (*dap.Client, *exec.Cmd, error)
}

// Registry resolves a language to the descriptor that debugs it, and
// itself implements session.Spawner so SessionCore never has to know
// how a particular adapter process is started.
type Registry struct {
	descriptors map[types.Language]Descriptor
	log         *logrus.Entry
}

// NewRegistry builds the default registry: Delve for Go, debugpy for
// Python, a Node inspector adapter for JS/TS, and lldb-dap for the
// native languages.
func NewRegistry(cfg *config.Config, log *logrus.Entry) *Registry {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	r := &Registry{descriptors: make(map[types.Language]Descriptor), log: log}

	r.descriptors[types.LanguageGo] = NewDelveAdapter(cfg.Adapters.Go)
	r.descriptors[types.LanguagePython] = NewDebugpyAdapter(cfg.Adapters.Python)

	node := NewNodeAdapter(cfg.Adapters.Node)
	r.descriptors[types.LanguageJavaScript] = node
	r.descriptors[types.LanguageTypeScript] = node

	lldb := NewLLDBAdapter(cfg.Adapters.LLDB)
	r.descriptors[types.LanguageC] = lldb
	r.descriptors[types.LanguageCpp] = lldb
	r.descriptors[types.LanguageRust] = lldb

	return r
}

// Get returns the descriptor registered for lang.
func (r *Registry) Get(lang types.Language) (Descriptor, error) {
	d, ok := r.descriptors[lang]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for language: %s", lang)
	}
	return d, nil
}

// Register overrides the descriptor used for lang, e.g. swapping in
// GDBAdapter for LLDBAdapter.
func (r *Registry) Register(lang types.Language, d Descriptor) {
	r.descriptors[lang] = d
}

// Spawn implements session.Spawner: it resolves lang to a descriptor,
// starts the adapter process, and connects a dap.Client to it. action
// is not needed to pick the descriptor itself, but is accepted so
// Spawn matches the interface SessionCore depends on.
func (r *Registry) Spawn(lang types.Language, action types.Action, args map[string]interface{}) (session.DebugSession, session.Adapter, error) {
	d, err := r.Get(lang)
	if err != nil {
		return nil, nil, err
	}

	client, cmd, err := d.Spawn(context.Background(), r.log.WithField("language", lang), args)
	if err != nil {
		if cmd != nil && cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		return nil, nil, sessionerrors.AdapterFailure(fmt.Sprintf("spawn %s adapter", lang), err)
	}

	return client, d, nil
}

// connectTCP dials address, retrying every 200ms up to maxRetries
// times while the adapter finishes starting up, and wraps the
// connection in a dap.Client.
func connectTCP(address string, maxRetries int, log *logrus.Entry) (*dap.Client, error) {
	var transport *dap.Transport
	var err error

	for i := 0; i < maxRetries; i++ {
		transport, err = dap.NewTCPTransport(address)
		if err == nil {
			break
		}
		time.Sleep(200 * time.Millisecond)
	}
	if err != nil {
		return nil, fmt.Errorf("connect to debug adapter at %s: %w", address, err)
	}

	return dap.NewClient(transport, log), nil
}

// findAvailablePort binds to port 0 to let the OS assign an unused
// TCP port, then releases it for the adapter to bind.
func findAvailablePort() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer listener.Close()
	addr, ok := listener.Addr().(*net.TCPAddr)
	if !ok {
		return 0, fmt.Errorf("unexpected listener address type")
	}
	return addr.Port, nil
}
