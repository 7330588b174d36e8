package dispatcher

import (
	"fmt"
	"strconv"
	"strings"

	sessionerrors "github.com/fbdbg/fbdbg/internal/errors"
	"github.com/fbdbg/fbdbg/pkg/types"
)

// registerCommands builds the full console command table. Every
// handler validates its own argument shape and calls into session.Core
// for the work itself.
func (d *Dispatcher) registerCommands() {
	d.register("launch <language> <program> [args...]", handleLaunch, "launch")
	d.register("attach <language> <target>", handleAttach, "attach")
	d.register("break <path>:<line> [if <cond>] [hit <cond>] [log <msg>]", handleBreak, "break", "b")
	d.register("fbreak <func>", handleFBreak, "fbreak")
	d.register("delete [index]", handleDelete, "delete", "d")
	d.register("enable <index>", handleEnable, "enable")
	d.register("disable <index>", handleDisable, "disable")
	d.register("run", handleRun, "run")
	d.register("continue [threadID]", handleContinue, "continue", "c")
	d.register("next [threadID]", handleNext, "next", "n")
	d.register("step [threadID]", handleStep, "step", "s")
	d.register("finish [threadID]", handleFinish, "finish")
	d.register("pause [threadID]", handlePause, "pause")
	d.register("threads", handleThreads, "threads")
	d.register("thread <id>", handleThread, "thread")
	d.register("bt", handleBacktrace, "bt")
	d.register("frame <index>", handleFrame, "frame")
	d.register("print <expr>", handlePrint, "print", "p")
	d.register("list [path] [start] [length]", handleList, "list", "l")
	d.register("quit", handleQuit, "quit", "q")
	d.register("help", handleHelp, "help", "h")
}

func (d *Dispatcher) usage(cmdName, usage string) bool {
	d.console.OutputLine("usage: " + usage)
	_ = cmdName
	return true
}

func (d *Dispatcher) reportErr(err error) bool {
	if err != nil {
		d.console.OutputLine(err.Error())
	}
	return true
}

// reportSessionErr prints err like reportErr, but a FatalSessionError
// additionally stops the REPL loop so cmd/fbdbg can exit non-zero.
func (d *Dispatcher) reportSessionErr(err error) bool {
	if err == nil {
		return true
	}
	d.console.OutputLine(err.Error())
	if sessionerrors.IsFatal(err) {
		d.fatal = err
		return false
	}
	return true
}

// resolveThread returns an explicit thread id from args[0] if
// present, falling back to the currently focused thread.
func (d *Dispatcher) resolveThread(args []string) (int64, bool) {
	if len(args) > 0 {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			d.console.OutputLine("invalid thread id: " + args[0])
			return 0, false
		}
		return id, true
	}
	focus, ok := d.core.FocusThread()
	if !ok {
		d.console.OutputLine("no focused thread; use `thread <id>` or pass a thread id")
		return 0, false
	}
	return focus.ID, true
}

func handleLaunch(d *Dispatcher, args []string) bool {
	if len(args) < 2 {
		return d.usage("launch", "launch <language> <program> [args...]")
	}
	lang := types.Language(args[0])
	launchArgs := map[string]interface{}{"program": args[1]}
	if len(args) > 2 {
		launchArgs["args"] = args[2:]
	}
	return d.reportSessionErr(d.core.Launch(lang, launchArgs))
}

func handleAttach(d *Dispatcher, args []string) bool {
	if len(args) < 2 {
		return d.usage("attach", "attach <language> <target>")
	}
	lang := types.Language(args[0])
	attachArgs := map[string]interface{}{"target": args[1]}
	return d.reportSessionErr(d.core.Attach(lang, attachArgs))
}

func handleBreak(d *Dispatcher, args []string) bool {
	if len(args) < 1 {
		return d.usage("break", "break <path>:<line> [if <cond>] [hit <cond>] [log <msg>]")
	}
	sep := strings.LastIndex(args[0], ":")
	if sep < 0 {
		return d.usage("break", "break <path>:<line> [if <cond>] [hit <cond>] [log <msg>]")
	}
	path := args[0][:sep]
	line, err := strconv.ParseUint(args[0][sep+1:], 10, 32)
	if err != nil {
		d.console.OutputLine("invalid line number: " + args[0][sep+1:])
		return true
	}
	condition, hitCondition, logMessage, ok := parseBreakClauses(args[1:])
	if !ok {
		return d.usage("break", "break <path>:<line> [if <cond>] [hit <cond>] [log <msg>]")
	}
	index, err := d.core.AddSourceBreakpoint(path, uint32(line), condition, hitCondition, logMessage)
	d.console.OutputLine(fmt.Sprintf("breakpoint %d set at %s:%d", index, path, line))
	return d.reportErr(err)
}

// parseBreakClauses parses the break command's trailing optional
// clauses. Each clause's value runs until the next recognized
// keyword, so a condition itself may contain spaces.
func parseBreakClauses(args []string) (condition, hitCondition, logMessage string, ok bool) {
	dst := map[string]*string{"if": &condition, "hit": &hitCondition, "log": &logMessage}
	for i := 0; i < len(args); {
		target, known := dst[args[i]]
		if !known {
			return "", "", "", false
		}
		i++
		start := i
		for i < len(args) {
			if _, isKeyword := dst[args[i]]; isKeyword {
				break
			}
			i++
		}
		*target = strings.Join(args[start:i], " ")
	}
	return condition, hitCondition, logMessage, true
}

func handleFBreak(d *Dispatcher, args []string) bool {
	if len(args) != 1 {
		return d.usage("fbreak", "fbreak <func>")
	}
	index, err := d.core.AddFunctionBreakpoint(args[0])
	d.console.OutputLine(fmt.Sprintf("breakpoint %d set on function %s", index, args[0]))
	return d.reportErr(err)
}

func handleDelete(d *Dispatcher, args []string) bool {
	if len(args) == 0 {
		return d.reportErr(d.core.DeleteAllBreakpoints())
	}
	index, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		d.console.OutputLine("invalid breakpoint index: " + args[0])
		return true
	}
	return d.reportErr(d.core.DeleteBreakpoint(uint32(index)))
}

func handleEnable(d *Dispatcher, args []string) bool  { return setEnabled(d, args, true) }
func handleDisable(d *Dispatcher, args []string) bool { return setEnabled(d, args, false) }

func setEnabled(d *Dispatcher, args []string, enabled bool) bool {
	if len(args) != 1 {
		return d.usage("enable/disable", "enable|disable <index>")
	}
	index, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		d.console.OutputLine("invalid breakpoint index: " + args[0])
		return true
	}
	return d.reportErr(d.core.SetBreakpointEnabled(uint32(index), enabled))
}

func handleRun(d *Dispatcher, args []string) bool {
	return d.reportErr(d.core.Run())
}

func handleContinue(d *Dispatcher, args []string) bool {
	threadID, ok := d.resolveThread(args)
	if !ok {
		return true
	}
	return d.reportErr(d.core.Continue(threadID))
}

func handleNext(d *Dispatcher, args []string) bool {
	threadID, ok := d.resolveThread(args)
	if !ok {
		return true
	}
	return d.reportErr(d.core.Next(threadID))
}

func handleStep(d *Dispatcher, args []string) bool {
	threadID, ok := d.resolveThread(args)
	if !ok {
		return true
	}
	return d.reportErr(d.core.StepIn(threadID))
}

func handleFinish(d *Dispatcher, args []string) bool {
	threadID, ok := d.resolveThread(args)
	if !ok {
		return true
	}
	return d.reportErr(d.core.StepOut(threadID))
}

func handlePause(d *Dispatcher, args []string) bool {
	threadID, ok := d.resolveThread(args)
	if !ok {
		return true
	}
	return d.reportErr(d.core.Pause(threadID))
}

func handleThreads(d *Dispatcher, args []string) bool {
	threads, err := d.core.GetThreads()
	if err != nil {
		return d.reportErr(err)
	}
	if len(threads) == 0 {
		d.console.OutputLine("(no threads)")
		return true
	}
	for _, t := range threads {
		state := "running"
		if !t.Running {
			state = "stopped"
		}
		d.console.OutputLine(fmt.Sprintf("%d  %s  [%s]", t.ID, t.Name, state))
	}
	return true
}

func handleThread(d *Dispatcher, args []string) bool {
	if len(args) != 1 {
		return d.usage("thread", "thread <id>")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		d.console.OutputLine("invalid thread id: " + args[0])
		return true
	}
	return d.reportErr(d.core.SetFocusThread(id))
}

func handleBacktrace(d *Dispatcher, args []string) bool {
	threadID, ok := d.resolveThread(nil)
	if !ok {
		return true
	}
	frames, err := d.core.GetStackTrace(threadID, 32)
	if err != nil {
		return d.reportErr(err)
	}
	for i, f := range frames {
		loc := ""
		if f.Source != nil {
			loc = fmt.Sprintf("  %s:%d", f.Source.Path, f.Line)
		}
		d.console.OutputLine(fmt.Sprintf("#%d %s%s", i, f.Name, loc))
	}
	return true
}

func handleFrame(d *Dispatcher, args []string) bool {
	if len(args) != 1 {
		return d.usage("frame", "frame <index>")
	}
	threadID, ok := d.resolveThread(nil)
	if !ok {
		return true
	}
	index, err := strconv.Atoi(args[0])
	if err != nil {
		d.console.OutputLine("invalid frame index: " + args[0])
		return true
	}
	return d.reportErr(d.core.SetSelectedStackFrame(threadID, index))
}

func handlePrint(d *Dispatcher, args []string) bool {
	if len(args) == 0 {
		return d.usage("print", "print <expr>")
	}
	threadID, ok := d.resolveThread(nil)
	if !ok {
		return true
	}
	result, err := d.core.Evaluate(threadID, strings.Join(args, " "))
	if err != nil {
		return d.reportErr(err)
	}
	d.console.OutputLine(result.Result)
	return true
}

func handleList(d *Dispatcher, args []string) bool {
	path := ""
	start := 1
	length := 10

	if len(args) > 0 {
		path = args[0]
	}
	if len(args) > 1 {
		if n, err := strconv.Atoi(args[1]); err == nil {
			start = n
		}
	}
	if len(args) > 2 {
		if n, err := strconv.Atoi(args[2]); err == nil {
			length = n
		}
	}

	if path == "" {
		threadID, ok := d.resolveThread(nil)
		if !ok {
			return true
		}
		frames, err := d.core.GetStackTrace(threadID, 1)
		if err != nil || len(frames) == 0 || frames[0].Source == nil {
			d.console.OutputLine("no current source location")
			return true
		}
		path = frames[0].Source.Path
		if len(args) < 2 {
			start = frames[0].Line - length/2
			if start < 1 {
				start = 1
			}
		}
	}

	lines := d.core.GetSourceLines(path, 0, start, length)
	for i, line := range lines {
		d.console.OutputLine(fmt.Sprintf("%d\t%s", start+i, line))
	}
	return true
}

func handleQuit(d *Dispatcher, args []string) bool {
	if err := d.core.CloseSession(); err != nil {
		d.console.OutputLine(err.Error())
	}
	return false
}

func handleHelp(d *Dispatcher, args []string) bool {
	d.console.OutputLine("commands:")
	for _, cmd := range d.ordered {
		d.console.OutputLine("  " + cmd.usage)
	}
	return true
}
