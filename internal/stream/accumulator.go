package stream

import (
	"strings"
)

// DefaultFlushCapacity is the combined buffer size above which a flush is
// due. Tuned so a typical generation produces a handful of chunk events
// instead of one per token.
const DefaultFlushCapacity = 100

// Accumulator batches small generation deltas into fewer, larger chunk
// events. It buffers the primary content channel and the secondary
// reasoning channel independently and flushes both together.
//
// An Accumulator is exclusively owned by one orchestration task; it is not
// safe for concurrent use and does not need to be.
type Accumulator struct {
	capacity int
	content  strings.Builder
	extra    strings.Builder
}

// NewAccumulator creates an accumulator with the given flush capacity.
// Non-positive capacities fall back to DefaultFlushCapacity.
func NewAccumulator(capacity int) *Accumulator {
	if capacity <= 0 {
		capacity = DefaultFlushCapacity
	}
	return &Accumulator{capacity: capacity}
}

// Accumulate appends one delta to each channel's buffer.
func (a *Accumulator) Accumulate(deltaContent, deltaExtra string) {
	a.content.WriteString(deltaContent)
	a.extra.WriteString(deltaExtra)
}

// ShouldFlush reports whether the combined buffered length exceeds the
// capacity. Callers check this immediately after every Accumulate; the
// end-of-stream flush happens unconditionally regardless.
func (a *Accumulator) ShouldFlush() bool {
	return a.content.Len()+a.extra.Len() > a.capacity
}

// Flush returns both buffered strings and clears both buffers. The ordered
// concatenation of everything Flush returns equals the concatenation of
// everything fed to Accumulate, per channel.
func (a *Accumulator) Flush() (content, extra string) {
	content = a.content.String()
	extra = a.extra.String()
	a.content.Reset()
	a.extra.Reset()
	return content, extra
}
