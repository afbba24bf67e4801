package shadow_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soldalen/heatpumpctl/internal/shadow"
	"github.com/soldalen/heatpumpctl/internal/source"
)

func TestCanonicalizeSortsKeys(t *testing.T) {
	a, err := shadow.Canonicalize(map[string]any{"b": 1, "a": 2})
	require.NoError(t, err)
	assert.Equal(t, `{"a":2,"b":1}`, a)
}

func TestCanonicalizeRoundsFloats(t *testing.T) {
	a, err := shadow.Canonicalize(map[string]any{"temp": 21.04})
	require.NoError(t, err)
	b, err := shadow.Canonicalize(map[string]any{"temp": 21.0400001})
	require.NoError(t, err)

	assert.Equal(t, a, b, "jitter below the rounding precision must canonicalize identically")
	assert.Equal(t, `{"temp":21}`, a)

	c, err := shadow.Canonicalize(map[string]any{"temp": 21.17})
	require.NoError(t, err)
	assert.Equal(t, `{"temp":21.2}`, c)
}

func TestCanonicalizeOrdersRecordsByIdentity(t *testing.T) {
	a, err := shadow.Canonicalize([]map[string]any{
		{"circuit_id": 1, "temp": 20.0},
		{"circuit_id": 0, "temp": 22.0},
	})
	require.NoError(t, err)

	b, err := shadow.Canonicalize([]map[string]any{
		{"circuit_id": 0, "temp": 22.0},
		{"circuit_id": 1, "temp": 20.0},
	})
	require.NoError(t, err)

	assert.Equal(t, a, b, "record order must not matter when identity keys match")
}

func TestCanonicalizeFallsBackToPosition(t *testing.T) {
	a, err := shadow.Canonicalize([]map[string]any{
		{"position": 1, "mode": "reduced"},
		{"position": 0, "mode": "normal"},
	})
	require.NoError(t, err)

	b, err := shadow.Canonicalize([]map[string]any{
		{"position": 0, "mode": "normal"},
		{"position": 1, "mode": "reduced"},
	})
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestCanonicalizeKeepsUnkeyedListOrder(t *testing.T) {
	a, err := shadow.Canonicalize([]string{"b", "a"})
	require.NoError(t, err)
	assert.Equal(t, `["b","a"]`, a, "lists without identity keys are positional")
}

func TestCanonicalizeTypedSnapshot(t *testing.T) {
	// The same schedule expressed with reordered slots and float jitter
	first := source.WeeklySchedule{
		Active: true,
		Mon: []source.TimeSlot{
			{Start: "06:00", End: "22:00", Mode: "normal", Position: 0},
			{Start: "22:00", End: "23:00", Mode: "reduced", Position: 1},
		},
	}
	second := source.WeeklySchedule{
		Active: true,
		Mon: []source.TimeSlot{
			{Start: "22:00", End: "23:00", Mode: "reduced", Position: 1},
			{Start: "06:00", End: "22:00", Mode: "normal", Position: 0},
		},
	}

	a, err := shadow.Canonicalize(first)
	require.NoError(t, err)
	b, err := shadow.Canonicalize(second)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, shadow.Hash(a), shadow.Hash(b))
}

func TestHashDiffersForRealChange(t *testing.T) {
	a, err := shadow.Canonicalize(map[string]any{"temp_target": 48.0})
	require.NoError(t, err)
	b, err := shadow.Canonicalize(map[string]any{"temp_target": 50.0})
	require.NoError(t, err)

	assert.NotEqual(t, shadow.Hash(a), shadow.Hash(b))
}
