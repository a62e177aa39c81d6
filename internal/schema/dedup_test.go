package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeduperFlagsSecondOccurrence(t *testing.T) {
	d := NewDeduper()

	first := ValidateRow(validRow())
	second := ValidateRow(validRow())

	assert.False(t, d.Apply(first))
	assert.True(t, d.Apply(second))

	// First occurrence is canonical and untouched.
	assert.True(t, first.IsValid)
	assert.Nil(t, first.ErrorMessage)

	require.False(t, second.IsValid)
	require.NotNil(t, second.ErrorMessage)
	assert.Equal(t, DuplicateMessage, *second.ErrorMessage)
}

func TestDeduperIgnoresInvalidRecords(t *testing.T) {
	d := NewDeduper()

	// Invalid record with the same key does not register it as seen.
	row := validRow()
	row["quantity"] = "bad"
	invalid := ValidateRow(row)
	assert.False(t, d.Apply(invalid))

	// A later valid record with that key is not a duplicate.
	valid := ValidateRow(validRow())
	assert.False(t, d.Apply(valid))
	assert.True(t, valid.IsValid)

	// An invalid record after a seen key is not flagged either; it keeps
	// its own validation error.
	row2 := validRow()
	row2["date"] = "nope"
	invalid2 := ValidateRow(row2)
	assert.False(t, d.Apply(invalid2))
	assert.Equal(t, "Invalid or missing date", *invalid2.ErrorMessage)
}

func TestDeduperDistinguishesItems(t *testing.T) {
	d := NewDeduper()

	a := ValidateRow(validRow())
	row := validRow()
	row["item"] = "Bolt"
	b := ValidateRow(row)

	assert.False(t, d.Apply(a))
	assert.False(t, d.Apply(b))
	assert.True(t, a.IsValid)
	assert.True(t, b.IsValid)
}
