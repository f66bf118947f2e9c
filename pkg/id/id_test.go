package id

import (
	"bytes"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestULIDGenerator(t *testing.T) {
	gen := NewULIDGenerator()

	t.Run("Generate", func(t *testing.T) {
		id := gen.Generate()
		assert.Len(t, id, 26)
		assert.True(t, IsValidULID(id))
	})

	t.Run("GenerateN is unique and ordered", func(t *testing.T) {
		ids := gen.GenerateN(100)
		seen := make(map[string]bool, len(ids))
		for _, id := range ids {
			assert.False(t, seen[id], "duplicate ID %s", id)
			seen[id] = true
		}
		assert.True(t, sort.StringsAreSorted(ids))
	})

	t.Run("Time", func(t *testing.T) {
		before := time.Now().Add(-time.Second)
		ts, err := Time(gen.Generate())
		require.NoError(t, err)
		assert.True(t, ts.After(before))
	})
}

func TestWithULIDReader(t *testing.T) {
	gen := NewULIDGenerator(WithULIDReader(bytes.NewReader(bytes.Repeat([]byte{0x42}, 64))))
	assert.True(t, IsValidULID(gen.Generate()))
}

func TestIsValidULID(t *testing.T) {
	assert.True(t, IsValidULID(New()))
	for _, s := range []string{"", "invalid", "01AN4Z07BY79KA1307SR9X4MV", "550e8400-e29b-41d4-a716-446655440000"} {
		assert.False(t, IsValidULID(s), s)
	}
}
