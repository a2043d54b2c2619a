package ir

// Version constants for the journal schema and runtime.
const (
	// IRVersion is the receipt/result schema version.
	IRVersion = "1"

	// RuntimeVersion is the tally runtime version.
	RuntimeVersion = "0.1.0"
)
