package adapterfactory

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fbdbg/fbdbg/internal/config"
	"github.com/fbdbg/fbdbg/internal/dap"
	"github.com/fbdbg/fbdbg/pkg/types"
)

// DelveAdapter debugs Go programs via `dlv dap`.
type DelveAdapter struct {
	dlvPath    string
	buildFlags string
}

func NewDelveAdapter(cfg config.DelveConfig) *DelveAdapter {
	path := cfg.Path
	if path == "" {
		path = "dlv"
	}
	return &DelveAdapter{dlvPath: path, buildFlags: cfg.BuildFlags}
}

func (d *DelveAdapter) Language() types.Language { return types.LanguageGo }

func (d *DelveAdapter) AsyncStopThread() (int64, bool) { return 0, false }

func (d *DelveAdapter) Spawn(ctx context.Context, log *logrus.Entry, args map[string]interface{}) (*dap.Client, *exec.Cmd, error) {
	port, err := findAvailablePort()
	if err != nil {
		return nil, nil, fmt.Errorf("find available port: %w", err)
	}
	address := fmt.Sprintf("127.0.0.1:%d", port)

	dlvArgs := []string{"dap", "--listen", address}
	if d.buildFlags != "" {
		dlvArgs = append(dlvArgs, "--build-flags", d.buildFlags)
	}

	cmd := exec.CommandContext(ctx, d.dlvPath, dlvArgs...)
	cmd.Env = os.Environ()
	cmd.Stdin = nil
	cmd.Stderr = os.Stderr
	setProcAttr(cmd)

	if cwd, ok := args["cwd"].(string); ok && cwd != "" {
		cmd.Dir = cwd
	}

	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("start dlv: %w", err)
	}
	time.Sleep(500 * time.Millisecond)

	client, err := connectTCP(address, 20, log)
	if err != nil {
		_ = killProcessGroup(cmd.Process.Pid, cmd)
		return nil, nil, err
	}
	return client, cmd, nil
}

func (d *DelveAdapter) TransformLaunchArguments(args map[string]interface{}) (map[string]interface{}, error) {
	launch := map[string]interface{}{
		"mode":    "debug",
		"program": args["program"],
	}

	if programArgs, ok := args["args"].([]interface{}); ok {
		strArgs := make([]string, len(programArgs))
		for i, a := range programArgs {
			strArgs[i] = fmt.Sprint(a)
		}
		launch["args"] = strArgs
	}
	if cwd, ok := args["cwd"].(string); ok {
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
	if buildFlags, ok := args["buildFlags"].(string); ok {
		launch["buildFlags"] = buildFlags
	}

	return launch, nil
}

func (d *DelveAdapter) TransformAttachArguments(args map[string]interface{}) (map[string]interface{}, error) {
	attach := map[string]interface{}{"mode": "local"}
	if pid, ok := args["pid"].(float64); ok {
		attach["processId"] = int(pid)
	}
	return attach, nil
}
