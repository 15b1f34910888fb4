// Package ir provides the canonical encoding used to identify harness
// records.
//
// Assertion and output records are addressed by the SHA-256 of their
// canonical JSON with a per-record domain prefix, so re-running a fixture
// against an unchanged engine yields byte-identical IDs and digests.
//
// Key constraints:
//   - NO floats in canonical JSON; numbers are int64
//   - Strings are NFC normalized at the serialization boundary
//   - Object keys are ordered by UTF-16 code units (RFC 8785)
//   - Logical sequence numbers only, never wall-clock timestamps
package ir
