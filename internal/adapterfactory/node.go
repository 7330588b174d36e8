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

// NodeAdapter debugs JavaScript/TypeScript programs by starting
// node with its inspector enabled and connecting over the inspector's
// DAP-compatible port. stopOnEntry maps to --inspect-brk rather than
// --inspect; attaching to an already-running inspector stops
// asynchronously, which AsyncStopThread surfaces to SessionCore.
type NodeAdapter struct {
	nodePath string
}

func NewNodeAdapter(cfg config.NodeConfig) *NodeAdapter {
	path := cfg.Path
	if path == "" {
		path = "node"
	}
	return &NodeAdapter{nodePath: path}
}

func (n *NodeAdapter) Language() types.Language { return types.LanguageJavaScript }

// AsyncStopThread reports that attach-mode sessions may receive a
// stopped event the client never requested, since the inspector can
// already be paused (--inspect-brk) by the time fbdbg connects.
func (n *NodeAdapter) AsyncStopThread() (int64, bool) { return 1, true }

func (n *NodeAdapter) Spawn(ctx context.Context, log *logrus.Entry, args map[string]interface{}) (*dap.Client, *exec.Cmd, error) {
	port, err := findAvailablePort()
	if err != nil {
		return nil, nil, fmt.Errorf("find available port: %w", err)
	}
	address := fmt.Sprintf("127.0.0.1:%d", port)

	inspectFlag := "--inspect"
	if stopOnEntry, _ := args["stopOnEntry"].(bool); stopOnEntry {
		inspectFlag = "--inspect-brk"
	}

	nodeArgs := []string{fmt.Sprintf("%s=%s", inspectFlag, address)}
	if program, ok := args["program"].(string); ok && program != "" {
		nodeArgs = append(nodeArgs, program)
		if programArgs, ok := args["args"].([]interface{}); ok {
			nodeArgs = append(nodeArgs, stringSlice(programArgs)...)
		}
	}

	cmd := exec.CommandContext(ctx, n.nodePath, nodeArgs...)
	cmd.Env = os.Environ()
	cmd.Stderr = os.Stderr
	setProcAttr(cmd)

	if env, ok := args["env"].(map[string]interface{}); ok {
		for k, v := range env {
			cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, fmt.Sprint(v)))
		}
	}
	if cwd, ok := args["cwd"].(string); ok && cwd != "" {
		cmd.Dir = cwd
	}

	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("start node: %w", err)
	}
	time.Sleep(500 * time.Millisecond)

	client, err := connectTCP(address, 20, log)
	if err != nil {
		_ = killProcessGroup(cmd.Process.Pid, cmd)
		return nil, nil, err
	}
	return client, cmd, nil
}

func (n *NodeAdapter) TransformLaunchArguments(args map[string]interface{}) (map[string]interface{}, error) {
	launch := map[string]interface{}{
		"type":    "pwa-node",
		"request": "launch",
		"program": args["program"],
	}
	if programArgs, ok := args["args"].([]interface{}); ok {
		launch["args"] = stringSlice(programArgs)
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
	return launch, nil
}

func (n *NodeAdapter) TransformAttachArguments(args map[string]interface{}) (map[string]interface{}, error) {
	attach := map[string]interface{}{"type": "pwa-node", "request": "attach"}
	if port, ok := args["port"].(float64); ok {
		attach["port"] = int(port)
	}
	if host, ok := args["host"].(string); ok {
		attach["address"] = host
	} else {
		attach["address"] = "127.0.0.1"
	}
	return attach, nil
}
