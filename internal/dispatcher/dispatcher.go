// Package dispatcher registers fbdbg's console command set and
// hands each command to session.Core, printing any returned error to
// the console rather than letting it propagate.
package dispatcher

import (
	"strings"

	"github.com/fbdbg/fbdbg/internal/session"
)

// commandHandler runs one command's args against d and reports
// whether the REPL loop should keep reading (false means quit).
type commandHandler func(d *Dispatcher, args []string) bool

// command pairs a handler with its usage string, shown by `help` and
// on argument-shape errors.
type command struct {
	names   []string
	usage   string
	handler commandHandler
}

// Dispatcher is fbdbg's CommandDispatcher.
type Dispatcher struct {
	core    *session.Core
	console session.ConsoleIO

	byName  map[string]*command
	ordered []*command

	lastLine string

	// fatal is set by handleLaunch/handleAttach when session creation
	// fails with a FatalSessionError: a failed initial launch/attach
	// stops the REPL loop so the process can exit non-zero.
	fatal error
}

// FatalError returns the error that caused Dispatch to stop the REPL
// loop on its own, or nil if it stopped for an ordinary `quit`.
func (d *Dispatcher) FatalError() error {
	return d.fatal
}

// New builds a Dispatcher with the full command table wired to core.
func New(core *session.Core, console session.ConsoleIO) *Dispatcher {
	d := &Dispatcher{
		core:    core,
		console: console,
		byName:  make(map[string]*command),
	}
	d.registerCommands()
	return d
}

func (d *Dispatcher) register(usage string, handler commandHandler, names ...string) {
	cmd := &command{names: names, usage: usage, handler: handler}
	d.ordered = append(d.ordered, cmd)
	for _, name := range names {
		d.byName[name] = cmd
	}
}

// CommandNames returns every recognized command name and alias, for
// the console's tab completer.
func (d *Dispatcher) CommandNames() []string {
	names := make([]string, 0, len(d.byName))
	for name := range d.byName {
		names = append(names, name)
	}
	return names
}

// StaticCommandNames returns the same names CommandNames does, without
// requiring a session.Core or console — cmd/fbdbg uses this to build
// the console's tab completer before the Dispatcher itself exists.
func StaticCommandNames() []string {
	d := &Dispatcher{byName: make(map[string]*command)}
	d.registerCommands()
	return d.CommandNames()
}

// Dispatch parses one line of console input and runs the matching
// command. It returns false when the REPL loop should stop (the
// `quit` command, or EOF upstream already handled by the caller).
// An empty line repeats the previous command, matching the debugger
// REPL convention of defaulting to `continue`/`step` on a bare Enter.
func (d *Dispatcher) Dispatch(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		line = d.lastLine
		if line == "" {
			return true
		}
	} else {
		d.lastLine = line
	}

	fields := strings.Fields(line)
	name, args := fields[0], fields[1:]

	cmd, ok := d.byName[name]
	if !ok {
		d.console.OutputLine("unknown command: " + name + " (try `help`)")
		return true
	}
	return cmd.handler(d, args)
}
