package ui

// Unicode symbols for status indicators.
const (
	SymbolSuccess  = "✓" // connected / healthy
	SymbolFail     = "✗" // connection or call failure
	SymbolProgress = "◐" // handshake in progress
	SymbolPartial  = "⊘" // sample incomplete this tick
)
