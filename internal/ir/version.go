package ir

// Version constants for the record encoding and the harness.
const (
	// RecordVersion is the record schema version. Bump it together with
	// the domain suffixes in hash.go.
	RecordVersion = "1"

	// HarnessVersion is the fixharness release.
	HarnessVersion = "0.1.0"
)
