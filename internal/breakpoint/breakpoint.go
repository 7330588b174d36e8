// Package breakpoint implements the BreakpointCollection: the
// user-visible set of source- and function-breakpoints with stable
// 1-based indices, independent of the adapter-assigned ids that come
// and go with each debug session.
package breakpoint

// Kind distinguishes the two breakpoint variants. Breakpoint is
// modeled as a sum type over {SourceBreakpoint, FunctionBreakpoint};
// Go has no sum types, so Kind plus a shared accessor interface
// stands in for the tag.
type Kind int

const (
	KindSource Kind = iota
	KindFunction
)

// Breakpoint is the shared view both variants present to the
// collection and the reconciler: a stable index, the adapter-assigned
// id (if any), enabled/verified bits, and a status message.
type Breakpoint interface {
	Kind() Kind
	Index() uint32
	ID() (uint32, bool)
	Enabled() bool
	Verified() bool
	Message() string

	setID(id uint32, ok bool)
	setEnabled(bool)
	setVerified(bool)
	setMessage(string)
}

// SourceBreakpoint pauses execution when a specific source line is
// reached.
type SourceBreakpoint struct {
	index    uint32
	Path     string
	Line     uint32
	enabled  bool
	id       uint32
	hasID    bool
	verified bool
	message  string

	// Condition, HitCondition, and LogMessage are DAP passthrough
	// fields; they are dropped by the reconciler when the adapter
	// lacks the matching capability.
	Condition    string
	HitCondition string
	LogMessage   string
}

func (b *SourceBreakpoint) Kind() Kind   { return KindSource }
func (b *SourceBreakpoint) Index() uint32 { return b.index }
func (b *SourceBreakpoint) ID() (uint32, bool) { return b.id, b.hasID }
func (b *SourceBreakpoint) Enabled() bool  { return b.enabled }
func (b *SourceBreakpoint) Verified() bool { return b.verified }
func (b *SourceBreakpoint) Message() string { return b.message }

func (b *SourceBreakpoint) setID(id uint32, ok bool) { b.id, b.hasID = id, ok }
func (b *SourceBreakpoint) setEnabled(v bool)        { b.enabled = v }
func (b *SourceBreakpoint) setVerified(v bool)       { b.verified = v }
func (b *SourceBreakpoint) setMessage(m string)      { b.message = m }

// FunctionBreakpoint pauses execution on entry to a named function.
// ResolvedPath/ResolvedLine are filled in by the reconciler once the
// adapter reports where the function actually lives.
type FunctionBreakpoint struct {
	index    uint32
	Func     string
	enabled  bool
	id       uint32
	hasID    bool
	verified bool
	message  string

	ResolvedPath string
	ResolvedLine uint32
}

func (b *FunctionBreakpoint) Kind() Kind    { return KindFunction }
func (b *FunctionBreakpoint) Index() uint32 { return b.index }
func (b *FunctionBreakpoint) ID() (uint32, bool) { return b.id, b.hasID }
func (b *FunctionBreakpoint) Enabled() bool  { return b.enabled }
func (b *FunctionBreakpoint) Verified() bool { return b.verified }
func (b *FunctionBreakpoint) Message() string { return b.message }

func (b *FunctionBreakpoint) setID(id uint32, ok bool) { b.id, b.hasID = id, ok }
func (b *FunctionBreakpoint) setEnabled(v bool)        { b.enabled = v }
func (b *FunctionBreakpoint) setVerified(v bool)       { b.verified = v }
func (b *FunctionBreakpoint) setMessage(m string)      { b.message = m }

// UnresolvedMessage is substituted by the reconciler when the adapter
// reports verified == false with no message of its own.
const UnresolvedMessage = "Could not set this breakpoint. The module may not have been loaded yet."
