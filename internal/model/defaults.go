package model

// Shared defaults used by the server and TUI binaries.
const (
	DefaultRowLimit    = 1000
	DefaultTopLimit    = 20
	DefaultProcessName = "unknown"
)
