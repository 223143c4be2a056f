package stream

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccumulatorConcatenation(t *testing.T) {
	deltas := []struct{ content, extra string }{
		{"Hel", ""},
		{"lo ", "thinking"},
		{"wor", " about"},
		{"ld", " it"},
		{"", "..."},
	}

	acc := NewAccumulator(5)

	var gotContent, gotExtra strings.Builder
	for _, d := range deltas {
		acc.Accumulate(d.content, d.extra)
		if acc.ShouldFlush() {
			c, e := acc.Flush()
			gotContent.WriteString(c)
			gotExtra.WriteString(e)
		}
	}
	// Mandatory end-of-stream flush.
	c, e := acc.Flush()
	gotContent.WriteString(c)
	gotExtra.WriteString(e)

	assert.Equal(t, "Hello world", gotContent.String())
	assert.Equal(t, "thinking about it...", gotExtra.String())
}

func TestAccumulatorFlushBound(t *testing.T) {
	const capacity = 10
	acc := NewAccumulator(capacity)

	total := 0
	flushes := 0
	for i := 0; i < 100; i++ {
		acc.Accumulate("abc", "")
		total += 3
		if acc.ShouldFlush() {
			acc.Flush()
			flushes++
		}
	}
	acc.Flush()
	flushes++

	// At most ceil(L/C) + 1 flush events for total length L and capacity C.
	maxFlushes := (total+capacity-1)/capacity + 1
	assert.LessOrEqual(t, flushes, maxFlushes)
}

func TestAccumulatorFlushClearsBuffers(t *testing.T) {
	acc := NewAccumulator(100)
	acc.Accumulate("one", "two")

	c, e := acc.Flush()
	require.Equal(t, "one", c)
	require.Equal(t, "two", e)

	c, e = acc.Flush()
	assert.Empty(t, c)
	assert.Empty(t, e)
	assert.False(t, acc.ShouldFlush())
}

func TestAccumulatorShouldFlushThreshold(t *testing.T) {
	acc := NewAccumulator(6)

	acc.Accumulate("abc", "def")
	assert.False(t, acc.ShouldFlush(), "combined length equal to capacity must not flush")

	acc.Accumulate("g", "")
	assert.True(t, acc.ShouldFlush())
}

func TestAccumulatorDefaultCapacity(t *testing.T) {
	acc := NewAccumulator(0)
	acc.Accumulate(strings.Repeat("x", DefaultFlushCapacity), "")
	assert.False(t, acc.ShouldFlush())
	acc.Accumulate("x", "")
	assert.True(t, acc.ShouldFlush())
}
