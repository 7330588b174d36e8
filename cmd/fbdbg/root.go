package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fbdbg/fbdbg/internal/adapterfactory"
	"github.com/fbdbg/fbdbg/internal/config"
	"github.com/fbdbg/fbdbg/internal/console"
	"github.com/fbdbg/fbdbg/internal/dispatcher"
	"github.com/fbdbg/fbdbg/internal/session"
)

var (
	cfgFile  string
	logLevel string
	logFile  string
)

var rootCmd = &cobra.Command{
	Use:   "fbdbg",
	Short: "fbdbg is an interactive console front-end for a Debug Adapter Protocol adapter",
	Long: `fbdbg drives an external Debug Adapter Protocol adapter process
(dlv, debugpy, lldb-dap, or node --inspect) and exposes a
small set of console commands — launch, break, run, continue, step,
print, threads, bt — over its own terminal.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runRoot,
}

// Execute runs the root command. Called once from main.main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./fbdbg.yaml or $HOME/fbdbg.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "override the configured log file path")
}

func runRoot(cmd *cobra.Command, args []string) error {
	v := viper.New()
	if logLevel != "" {
		v.Set("logLevel", logLevel)
	}
	if logFile != "" {
		v.Set("logFile", logFile)
	}

	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// sessionID correlates one run's log lines across components; it
	// also doubles as the DAP initialize request's clientID.
	sessionID := uuid.NewString()
	log := newLogger(cfg).WithField("session", sessionID)

	registry := adapterfactory.NewRegistry(cfg, log.WithField("component", "adapterfactory"))

	completer := &console.CommandCompleter{Names: dispatcher.StaticCommandNames()}
	con, err := console.New("(fbdbg) ", completer)
	if err != nil {
		return fmt.Errorf("start console: %w", err)
	}
	defer con.Close()

	core := session.New(registry, con, sessionID, log.WithField("component", "session"))
	disp := dispatcher.New(core, con)

	exitCh := make(chan int, 1)
	core.SetOnAttachExit(func() {
		exitCh <- 0
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		con.OutputLine("")
		_ = core.CloseSession()
		exitCh <- 0
	}()

	go runRepl(disp, con, exitCh)

	code := <-exitCh
	if code != 0 {
		return fatalExitError(code)
	}
	return nil
}

// runRepl drains lines from con and dispatches them until Dispatch
// returns false or reading fails. The exit code is non-zero only when
// the loop stopped because of a FatalSessionError from launch/attach.
func runRepl(disp *dispatcher.Dispatcher, con *console.Console, exitCh chan<- int) {
	for {
		line, err := con.ReadLine()
		if err != nil {
			exitCh <- 0
			return
		}
		if !disp.Dispatch(line) {
			if disp.FatalError() != nil {
				exitCh <- 1
			} else {
				exitCh <- 0
			}
			return
		}
	}
}

// fatalExitError lets runRoot's caller (Execute) print a message and
// set the process exit code through cobra's normal error path rather
// than calling os.Exit directly from inside RunE.
type fatalExitError int

func (e fatalExitError) Error() string {
	return "fbdbg: session terminated with a fatal error"
}

func newLogger(cfg *config.Config) *logrus.Entry {
	log := logrus.New()
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err == nil {
			log.SetOutput(f)
		}
	} else {
		log.SetOutput(os.Stderr)
	}
	return logrus.NewEntry(log)
}
