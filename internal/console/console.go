// Package console is the readline-backed terminal fbdbg's dispatcher
// reads commands from and SessionCore prints to. It implements
// session.ConsoleIO.
package console

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ergochat/readline"
)

// Console wraps a readline.Instance, adding the enable/disable input
// toggle SessionCore uses to keep a prompt from appearing while the
// debuggee is running.
type Console struct {
	rl *readline.Instance

	mu      sync.Mutex
	enabled bool
}

// New starts a readline console with prompt and an optional completer
// over the dispatcher's command set.
func New(prompt string, completer readline.AutoCompleter) (*Console, error) {
	cfg := &readline.Config{
		Prompt:            prompt,
		HistoryFile:       historyPath(),
		HistorySearchFold: true,
		AutoComplete:      completer,
	}
	rl, err := readline.NewEx(cfg)
	if err != nil {
		return nil, fmt.Errorf("start console: %w", err)
	}
	return &Console{rl: rl, enabled: true}, nil
}

// Output writes text with no trailing newline.
func (c *Console) Output(text string) {
	fmt.Fprint(c.rl.Stdout(), text)
}

// OutputLine writes text followed by a newline, through the
// readline instance's own stdout so an active prompt line is not
// corrupted by the write.
func (c *Console) OutputLine(text string) {
	fmt.Fprintln(c.rl.Stdout(), strings.TrimRight(text, "\n"))
}

// StartInput re-enables the read loop.
func (c *Console) StartInput() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = true
}

// StopInput disables the read loop without closing the underlying
// terminal, so Output/OutputLine keep working while a command runs.
func (c *Console) StopInput() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = false
}

func (c *Console) inputEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// ReadLine blocks until input is enabled and a line has been typed.
// While input is disabled it polls at a short interval rather than
// calling into readline, so a StartInput issued mid-wait is picked up
// promptly without needing a dedicated wakeup channel.
func (c *Console) ReadLine() (string, error) {
	for !c.inputEnabled() {
		time.Sleep(25 * time.Millisecond)
	}
	line, err := c.rl.ReadSlice()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(line)), nil
}

// SetPrompt changes the prompt shown before the next ReadLine.
func (c *Console) SetPrompt(prompt string) {
	c.rl.SetPrompt(prompt)
}

// Close releases the terminal.
func (c *Console) Close() error {
	return c.rl.Close()
}

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".fbdbg_history")
}
