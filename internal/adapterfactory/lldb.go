package adapterfactory

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/creack/pty"
	"github.com/sirupsen/logrus"

	"github.com/fbdbg/fbdbg/internal/config"
	"github.com/fbdbg/fbdbg/internal/dap"
	"github.com/fbdbg/fbdbg/pkg/types"
)

// LLDBAdapter debugs C, C++, Rust, and Objective-C programs via
// lldb-dap over stdio. The debuggee's own stdio is routed through a
// pseudo-terminal rather than inherited, so its output doesn't race
// with fbdbg's own console prompt on the same fd.
type LLDBAdapter struct {
	lldbDapPath string
}

func NewLLDBAdapter(cfg config.LLDBConfig) *LLDBAdapter {
	path := cfg.Path
	if path == "" {
		path = "lldb-dap"
	}
	return &LLDBAdapter{lldbDapPath: path}
}

func (l *LLDBAdapter) Language() types.Language { return types.LanguageC }

func (l *LLDBAdapter) AsyncStopThread() (int64, bool) { return 0, false }

func (l *LLDBAdapter) Spawn(ctx context.Context, log *logrus.Entry, args map[string]interface{}) (*dap.Client, *exec.Cmd, error) {
	cmd := exec.CommandContext(ctx, l.lldbDapPath, "--repl-mode=auto")
	cmd.Env = os.Environ()
	setProcAttr(cmd)

	if cwd, ok := args["cwd"].(string); ok && cwd != "" {
		cmd.Dir = cwd
	}

	debuggeeTTY, debuggeeSide, err := pty.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("allocate debuggee pty: %w", err)
	}
	cmd.Stderr = debuggeeSide

	stdin, err := cmd.StdinPipe()
	if err != nil {
		_ = debuggeeTTY.Close()
		_ = debuggeeSide.Close()
		return nil, nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = stdin.Close()
		_ = debuggeeTTY.Close()
		_ = debuggeeSide.Close()
		return nil, nil, fmt.Errorf("stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		_ = stdout.Close()
		_ = debuggeeTTY.Close()
		_ = debuggeeSide.Close()
		return nil, nil, fmt.Errorf("start lldb-dap: %w", err)
	}
	_ = debuggeeSide.Close()
	go func() { _ = debuggeeTTY.Close() }()

	transport := dap.NewStdioTransport(stdin, stdout)
	return dap.NewClient(transport, log), cmd, nil
}

func (l *LLDBAdapter) TransformLaunchArguments(args map[string]interface{}) (map[string]interface{}, error) {
	launch := map[string]interface{}{"program": args["program"]}

	if programArgs, ok := args["args"].([]interface{}); ok {
		strArgs := make([]string, len(programArgs))
		for i, a := range programArgs {
			strArgs[i] = fmt.Sprint(a)
		}
		launch["args"] = strArgs
	}
	if cwd, ok := args["cwd"].(string); ok && cwd != "" {
		launch["cwd"] = cwd
	}
	if env, ok := args["env"].(map[string]interface{}); ok {
		envList := make([]string, 0, len(env))
		for k, v := range env {
			envList = append(envList, fmt.Sprintf("%s=%v", k, v))
		}
		launch["env"] = envList
	}
	if stopOnEntry, ok := args["stopOnEntry"].(bool); ok {
		launch["stopOnEntry"] = stopOnEntry
	}
	if initCommands, ok := args["initCommands"].([]interface{}); ok {
		launch["initCommands"] = stringSlice(initCommands)
	}
	if preRunCommands, ok := args["preRunCommands"].([]interface{}); ok {
		launch["preRunCommands"] = stringSlice(preRunCommands)
	}

	return launch, nil
}

func (l *LLDBAdapter) TransformAttachArguments(args map[string]interface{}) (map[string]interface{}, error) {
	attach := map[string]interface{}{}

	if pid, ok := args["pid"].(float64); ok {
		attach["pid"] = int(pid)
	}
	if waitFor, ok := args["waitFor"].(bool); ok {
		attach["waitFor"] = waitFor
	}
	if program, ok := args["program"].(string); ok {
		attach["program"] = program
	}

	return attach, nil
}

func stringSlice(vals []interface{}) []string {
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = fmt.Sprint(v)
	}
	return out
}
