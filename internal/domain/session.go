package domain

// Session is a named window of the trading day used to vary execution
// parameters and slippage.
type Session string

// Session labels. Overlap wins over single-session windows.
const (
	SessionSydney  Session = "sydney"
	SessionTokyo   Session = "tokyo"
	SessionLondon  Session = "london"
	SessionNewYork Session = "new_york"
	SessionOverlap Session = "overlap"
)
