// Package thread implements the ThreadCollection: the live set of
// debuggee threads, their running/stopped bits, the focus thread, and
// each thread's selected stack frame.
package thread

// Thread mirrors a DAP thread plus the console-facing cursor state
// SessionCore layers on top of it: whether it's running, and which
// frame of its stack the user last selected.
type Thread struct {
	ID            int64
	Name          string
	Running       bool
	SelectedFrame uint32
}
