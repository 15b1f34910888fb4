package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix allows the encoding to migrate.
const (
	DomainAssertion = "fixharness/assertion/v1"
	DomainOutput    = "fixharness/output/v1"
	DomainResult    = "fixharness/result/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null byte keeps the domain/data boundary unambiguous.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// AssertionID identifies one checked AssertType call. It covers the fixture
// content, the site index, and both type strings, so a changed oracle answer
// changes the ID.
func AssertionID(fixtureHash string, index int, expected, actual string) (string, error) {
	canonical, err := MarshalCanonical(map[string]any{
		"fixture":  fixtureHash,
		"index":    index,
		"expected": expected,
		"actual":   actual,
	})
	if err != nil {
		return "", fmt.Errorf("AssertionID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainAssertion, canonical), nil
}

// OutputID identifies one captured print record by its position in the
// output log.
func OutputID(fixtureHash string, seq int64, text string) (string, error) {
	canonical, err := MarshalCanonical(map[string]any{
		"fixture": fixtureHash,
		"seq":     seq,
		"text":    text,
	})
	if err != nil {
		return "", fmt.Errorf("OutputID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainOutput, canonical), nil
}

// ResultDigest folds the record IDs of one fixture run into a single value.
// Two runs of the same fixture are deterministic iff their digests match.
func ResultDigest(fixtureHash string, assertionIDs, outputIDs []string) (string, error) {
	if assertionIDs == nil {
		assertionIDs = []string{}
	}
	if outputIDs == nil {
		outputIDs = []string{}
	}
	canonical, err := MarshalCanonical(map[string]any{
		"fixture":    fixtureHash,
		"assertions": assertionIDs,
		"outputs":    outputIDs,
	})
	if err != nil {
		return "", fmt.Errorf("ResultDigest: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainResult, canonical), nil
}

// MustAssertionID is like AssertionID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustAssertionID(fixtureHash string, index int, expected, actual string) string {
	id, err := AssertionID(fixtureHash, index, expected, actual)
	if err != nil {
		panic(err)
	}
	return id
}

// MustOutputID is like OutputID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustOutputID(fixtureHash string, seq int64, text string) string {
	id, err := OutputID(fixtureHash, seq, text)
	if err != nil {
		panic(err)
	}
	return id
}
