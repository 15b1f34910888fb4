package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssertionIDDeterminism(t *testing.T) {
	id1, err := AssertionID("abc", 0, "int", "int")
	require.NoError(t, err)
	id2, err := AssertionID("abc", 0, "int", "int")
	require.NoError(t, err)

	assert.Equal(t, id1, id2, "AssertionID must be deterministic")
	assert.Len(t, id1, 64, "SHA-256 hex is 64 characters")
}

func TestAssertionIDChangesWithInput(t *testing.T) {
	base := MustAssertionID("abc", 0, "int", "int")

	assert.NotEqual(t, base, MustAssertionID("abd", 0, "int", "int"), "fixture content")
	assert.NotEqual(t, base, MustAssertionID("abc", 1, "int", "int"), "site index")
	assert.NotEqual(t, base, MustAssertionID("abc", 0, "number", "int"), "expected type")
	assert.NotEqual(t, base, MustAssertionID("abc", 0, "int", "number"), "actual type")
}

func TestOutputIDChangesWithInput(t *testing.T) {
	base := MustOutputID("abc", 1, "3")

	assert.Equal(t, base, MustOutputID("abc", 1, "3"))
	assert.NotEqual(t, base, MustOutputID("abc", 2, "3"))
	assert.NotEqual(t, base, MustOutputID("abc", 1, "4"))
}

func TestDomainSeparation(t *testing.T) {
	data := []byte(`{"x":1}`)
	assert.NotEqual(t,
		hashWithDomain(DomainAssertion, data),
		hashWithDomain(DomainOutput, data),
	)
}

func TestResultDigest(t *testing.T) {
	a := []string{MustAssertionID("abc", 0, "int", "int")}
	o := []string{MustOutputID("abc", 1, "3")}

	d1, err := ResultDigest("abc", a, o)
	require.NoError(t, err)
	d2, err := ResultDigest("abc", a, o)
	require.NoError(t, err)
	assert.Equal(t, d1, d2)

	empty, err := ResultDigest("abc", nil, nil)
	require.NoError(t, err)
	assert.NotEqual(t, d1, empty)

	swapped, err := ResultDigest("abc", o, a)
	require.NoError(t, err)
	assert.NotEqual(t, d1, swapped, "assertions and outputs are distinct fields")
}
