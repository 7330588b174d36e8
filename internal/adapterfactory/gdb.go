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

// GDBAdapter debugs native programs via GDB's built-in DAP support
// (`--interpreter=dap`, GDB 14.1+). Registry.Register can install it
// as an override of LLDBAdapter; NewRegistry does not register it.
type GDBAdapter struct {
	gdbPath string
}

func NewGDBAdapter(cfg config.GDBConfig) *GDBAdapter {
	path := cfg.Path
	if path == "" {
		path = "gdb"
	}
	return &GDBAdapter{gdbPath: path}
}

func (g *GDBAdapter) Language() types.Language { return types.LanguageC }

func (g *GDBAdapter) AsyncStopThread() (int64, bool) { return 0, false }

func (g *GDBAdapter) Spawn(ctx context.Context, log *logrus.Entry, args map[string]interface{}) (*dap.Client, *exec.Cmd, error) {
	cmd := exec.CommandContext(ctx, g.gdbPath,
		"--interpreter=dap", "--eval-command", "set print pretty on", "--quiet")
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
		return nil, nil, fmt.Errorf("start gdb: %w", err)
	}
	_ = debuggeeSide.Close()
	go func() { _ = debuggeeTTY.Close() }()

	transport := dap.NewStdioTransport(stdin, stdout)
	return dap.NewClient(transport, log), cmd, nil
}

func (g *GDBAdapter) TransformLaunchArguments(args map[string]interface{}) (map[string]interface{}, error) {
	launch := map[string]interface{}{"program": args["program"]}

	if programArgs, ok := args["args"].([]interface{}); ok {
		launch["args"] = stringSlice(programArgs)
	}
	if cwd, ok := args["cwd"].(string); ok && cwd != "" {
		launch["cwd"] = cwd
	}
	if env, ok := args["env"].(map[string]interface{}); ok {
		envMap := make(map[string]string, len(env))
		for k, v := range env {
			envMap[k] = fmt.Sprint(v)
		}
		launch["env"] = envMap
	}
	if stopOnEntry, ok := args["stopOnEntry"].(bool); ok {
		launch["stopOnEntry"] = stopOnEntry
	}
	if stopAtMain, ok := args["stopAtBeginningOfMainSubprogram"].(bool); ok {
		launch["stopAtBeginningOfMainSubprogram"] = stopAtMain
	}

	return launch, nil
}

func (g *GDBAdapter) TransformAttachArguments(args map[string]interface{}) (map[string]interface{}, error) {
	attach := map[string]interface{}{}

	if pid, ok := args["pid"].(float64); ok {
		attach["pid"] = int(pid)
	}
	if program, ok := args["program"].(string); ok {
		attach["program"] = program
	}
	if target, ok := args["target"].(string); ok {
		attach["target"] = target
	}

	return attach, nil
}
