// Package types defines shared value types used across fbdbg: the
// supported target languages and the launch/attach action a debug
// session was started with.
package types

// Language identifies a debuggee's source language, used to pick an
// adapter from the registry.
type Language string

const (
	LanguageGo         Language = "go"
	LanguagePython     Language = "python"
	LanguageJavaScript Language = "javascript"
	LanguageTypeScript Language = "typescript"
	LanguageRust       Language = "rust"
	LanguageC          Language = "c"
	LanguageCpp        Language = "cpp"
)

// Action distinguishes a launch-mode session (fbdbg spawns the
// debuggee) from an attach-mode session (fbdbg connects to one
// already running). The two differ in their termination and restart
// semantics throughout the session core.
type Action string

const (
	ActionLaunch Action = "launch"
	ActionAttach Action = "attach"
)
