// Package config loads fbdbg's configuration: adapter binary paths
// and CLI-wide options. Values come from, in increasing priority,
// built-in defaults, an fbdbg.yaml config file, environment variables
// prefixed FBDBG_, and command-line flags, via viper.
package config

import (
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds fbdbg's runtime configuration.
type Config struct {
	// LogLevel is a logrus level name (debug, info, warn, error).
	LogLevel string `mapstructure:"logLevel"`

	// LogFile, if set, is where structured logs are written instead
	// of stderr; useful since the console itself owns the terminal.
	LogFile string `mapstructure:"logFile"`

	// HistoryFile is loaded from configuration. The console does not
	// read it: it always keeps command history in $HOME/.fbdbg_history.
	HistoryFile string `mapstructure:"historyFile"`

	// RequestTimeout is loaded from configuration. DAP requests do not
	// read it: dap.Client uses fixed timeouts of 30s for launch/attach
	// and 10s for every other request.
	RequestTimeout time.Duration `mapstructure:"requestTimeout"`

	Adapters AdapterConfigs `mapstructure:"adapters"`
}

// AdapterConfigs holds per-language adapter settings.
type AdapterConfigs struct {
	Go     DelveConfig   `mapstructure:"go"`
	Python DebugpyConfig `mapstructure:"python"`
	Node   NodeConfig    `mapstructure:"node"`
	LLDB   LLDBConfig    `mapstructure:"lldb"`
	GDB    GDBConfig     `mapstructure:"gdb"`
}

type DelveConfig struct {
	Path       string `mapstructure:"path"`
	BuildFlags string `mapstructure:"buildFlags"`
}

type DebugpyConfig struct {
	PythonPath string `mapstructure:"pythonPath"`
}

type NodeConfig struct {
	Path string `mapstructure:"path"`
}

type LLDBConfig struct {
	Path string `mapstructure:"path"`
}

type GDBConfig struct {
	Path string `mapstructure:"path"`
}

// findLLDBDap searches common per-platform install locations for
// lldb-dap (formerly lldb-vscode) when it isn't on PATH.
func findLLDBDap() string {
	if path, err := exec.LookPath("lldb-dap"); err == nil {
		return path
	}

	locations := []string{
		"/Library/Developer/CommandLineTools/usr/bin/lldb-dap",
		"/Applications/Xcode.app/Contents/Developer/usr/bin/lldb-dap",
		"/opt/homebrew/bin/lldb-dap",
		"/usr/local/bin/lldb-dap",
		"/usr/bin/lldb-dap",
		"/usr/bin/lldb-dap-18",
		"/usr/bin/lldb-dap-17",
		"/usr/lib/llvm-18/bin/lldb-dap",
		"/usr/lib/llvm-17/bin/lldb-dap",
	}
	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	if path, err := exec.LookPath("lldb-vscode"); err == nil {
		return path
	}
	return "lldb-dap"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logLevel", "info")
	v.SetDefault("historyFile", "~/.fbdbg_history")
	v.SetDefault("requestTimeout", 10*time.Second)
	v.SetDefault("adapters.go.path", "dlv")
	v.SetDefault("adapters.python.pythonPath", "python3")
	v.SetDefault("adapters.node.path", "node")
	v.SetDefault("adapters.lldb.path", findLLDBDap())
	v.SetDefault("adapters.gdb.path", "gdb")
}

// Load reads fbdbg's configuration. configFile, if non-empty, is the
// only file read; otherwise fbdbg.yaml is searched for in ./ and then
// $HOME. Flags should have
// already been bound onto v by the caller (cmd/fbdbg) before Load is
// called.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	setDefaults(v)

	v.SetEnvPrefix("FBDBG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("fbdbg")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
