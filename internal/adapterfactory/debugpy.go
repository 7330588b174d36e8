package adapterfactory

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fbdbg/fbdbg/internal/config"
	"github.com/fbdbg/fbdbg/internal/dap"
	"github.com/fbdbg/fbdbg/pkg/types"
)

// DebugpyAdapter debugs Python programs via debugpy's adapter mode.
type DebugpyAdapter struct {
	pythonPath string
}

func NewDebugpyAdapter(cfg config.DebugpyConfig) *DebugpyAdapter {
	path := cfg.PythonPath
	if path == "" {
		path = "python3"
	}
	return &DebugpyAdapter{pythonPath: path}
}

func (d *DebugpyAdapter) Language() types.Language { return types.LanguagePython }

func (d *DebugpyAdapter) AsyncStopThread() (int64, bool) { return 0, false }

// resolvePythonPath supports venv interpreters passed through launch
// arguments via either VS Code's "python" key or debugpy's own
// "pythonPath" key, falling back to the configured default.
func (d *DebugpyAdapter) resolvePythonPath(args map[string]interface{}) string {
	if p, ok := args["python"].(string); ok && p != "" {
		return p
	}
	if p, ok := args["pythonPath"].(string); ok && p != "" {
		return p
	}
	return d.pythonPath
}

func detectVenvRoot(pythonPath string) string {
	venvRoot := filepath.Dir(filepath.Dir(pythonPath))
	if _, err := os.Stat(filepath.Join(venvRoot, "pyvenv.cfg")); err == nil {
		return venvRoot
	}
	return ""
}

func (d *DebugpyAdapter) Spawn(ctx context.Context, log *logrus.Entry, args map[string]interface{}) (*dap.Client, *exec.Cmd, error) {
	port, err := findAvailablePort()
	if err != nil {
		return nil, nil, fmt.Errorf("find available port: %w", err)
	}
	address := fmt.Sprintf("127.0.0.1:%d", port)

	pythonPath := d.resolvePythonPath(args)

	cmd := exec.CommandContext(ctx, pythonPath,
		"-m", "debugpy.adapter", "--host", "127.0.0.1", "--port", fmt.Sprintf("%d", port))
	cmd.Env = os.Environ()
	cmd.Stdin = nil
	cmd.Stderr = os.Stderr
	setProcAttr(cmd)

	if venvRoot := detectVenvRoot(pythonPath); venvRoot != "" {
		cmd.Env = append(cmd.Env, "VIRTUAL_ENV="+venvRoot)
		binDir := filepath.Dir(pythonPath)
		for i, e := range cmd.Env {
			if strings.HasPrefix(e, "PATH=") {
				cmd.Env[i] = "PATH=" + binDir + string(os.PathListSeparator) + e[len("PATH="):]
				break
			}
		}
	}

	if env, ok := args["env"].(map[string]interface{}); ok {
		for k, v := range env {
			cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, fmt.Sprint(v)))
		}
	}
	if cwd, ok := args["cwd"].(string); ok && cwd != "" {
		cmd.Dir = cwd
	}

	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("start debugpy: %w", err)
	}
	time.Sleep(time.Second)

	client, err := connectTCP(address, 20, log)
	if err != nil {
		_ = killProcessGroup(cmd.Process.Pid, cmd)
		return nil, nil, err
	}
	return client, cmd, nil
}

func (d *DebugpyAdapter) TransformLaunchArguments(args map[string]interface{}) (map[string]interface{}, error) {
	launch := map[string]interface{}{
		"type":    "python",
		"request": "launch",
		"program": args["program"],
		"console": "internalConsole",
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
	if module, ok := args["module"].(string); ok {
		delete(launch, "program")
		launch["module"] = module
	}

	return launch, nil
}

func (d *DebugpyAdapter) TransformAttachArguments(args map[string]interface{}) (map[string]interface{}, error) {
	attach := map[string]interface{}{"type": "python", "request": "attach"}

	if host, ok := args["host"].(string); ok {
		attach["host"] = host
	} else {
		attach["host"] = "127.0.0.1"
	}
	if port, ok := args["port"].(float64); ok {
		attach["port"] = int(port)
	}
	if pid, ok := args["pid"].(float64); ok {
		attach["processId"] = int(pid)
	}

	return attach, nil
}
