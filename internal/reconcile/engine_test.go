package reconcile

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YudoTLE/VelonY-sub000/pkg/models"
)

func TestOptimisticSendThenAck(t *testing.T) {
	e := NewEngine()

	e.SubmitOptimistic(models.Message{
		TempID:  "t-1",
		Type:    models.MessageTypeUser,
		Content: "hello",
	})

	list := e.Messages()
	require.Len(t, list, 1)
	assert.Equal(t, "t-1", list[0].Message.ID)
	assert.Equal(t, StatusSending, list[0].Status)
	assert.Equal(t, "hello", list[0].Message.Content)

	e.AckSend(&models.Message{ID: "m-1", TempID: "t-1", Type: models.MessageTypeUser, Content: "hello"})

	list = e.Messages()
	require.Len(t, list, 1)
	assert.Equal(t, "m-1", list[0].Message.ID)
	assert.Equal(t, StatusSent, list[0].Status)
	assert.Equal(t, "hello", list[0].Message.Content)
}

func TestAckWithoutOptimisticEntryAppends(t *testing.T) {
	e := NewEngine()

	e.AckSend(&models.Message{ID: "m-1", TempID: "t-gone", Content: "hi"})

	list := e.Messages()
	require.Len(t, list, 1)
	assert.Equal(t, "m-1", list[0].Message.ID)
	assert.Equal(t, StatusSent, list[0].Status)
}

func TestRollbackSendRestoresList(t *testing.T) {
	e := NewEngine()
	e.ApplyCreated(&models.Message{ID: "m-0", Content: "earlier"})

	e.SubmitOptimistic(models.Message{TempID: "t-1", Content: "oops"})
	e.RollbackSend("t-1")

	list := e.Messages()
	require.Len(t, list, 1)
	assert.Equal(t, "m-0", list[0].Message.ID)
}

func TestChunkApplication(t *testing.T) {
	e := NewEngine()
	e.ApplyCreated(&models.Message{ID: "m-2", Type: models.MessageTypeAgent})

	e.ApplyChunk(models.ChunkEvent{MessageID: "m-2", DeltaContent: "Hello", DeltaExtra: "think "})
	e.ApplyChunk(models.ChunkEvent{MessageID: "m-2", DeltaContent: " world", DeltaExtra: "more"})

	list := e.Messages()
	require.Len(t, list, 1)
	assert.Equal(t, "Hello world", list[0].Message.Content)
	assert.Equal(t, "think more", list[0].Message.Extra)
	assert.Equal(t, StatusSending, list[0].Status)

	// The finalized re-broadcast settles the entry without duplicating it.
	e.ApplyCreated(&models.Message{ID: "m-2", Type: models.MessageTypeAgent, Content: "Hello world", Extra: "think more"})
	list = e.Messages()
	require.Len(t, list, 1)
	assert.Equal(t, StatusSent, list[0].Status)
}

func TestChunkForUnknownIDIsDropped(t *testing.T) {
	e := NewEngine()
	e.ApplyChunk(models.ChunkEvent{MessageID: "ghost", DeltaContent: "x"})
	assert.Empty(t, e.Messages())
}

func TestDeleteLifecycle(t *testing.T) {
	e := NewEngine()
	e.ApplyCreated(&models.Message{ID: "m-1", Content: "hello"})

	e.BeginDelete("m-1")
	list := e.Messages()
	require.Len(t, list, 1)
	assert.Equal(t, StatusDeleting, list[0].Status)

	e.ApplyRemoved("m-1")
	assert.Empty(t, e.Messages())
}

func TestChunkDoesNotReviveDeletingEntry(t *testing.T) {
	e := NewEngine()
	e.ApplyCreated(&models.Message{ID: "m-2", Type: models.MessageTypeAgent, Content: "Hel"})

	e.BeginDelete("m-2")
	e.ApplyChunk(models.ChunkEvent{MessageID: "m-2", DeltaContent: "lo"})

	list := e.Messages()
	require.Len(t, list, 1)
	assert.Equal(t, StatusDeleting, list[0].Status)
	assert.Equal(t, "Hello", list[0].Message.Content)
}

func TestRollbackDelete(t *testing.T) {
	e := NewEngine()
	e.ApplyCreated(&models.Message{ID: "m-1"})

	e.BeginDelete("m-1")
	e.RollbackDelete("m-1")

	list := e.Messages()
	require.Len(t, list, 1)
	assert.Equal(t, StatusSent, list[0].Status)
}

func TestRemovalIsIdempotent(t *testing.T) {
	e := NewEngine()
	e.ApplyCreated(&models.Message{ID: "m-1"})
	e.ApplyCreated(&models.Message{ID: "m-2"})

	e.ApplyRemoved("absent")
	require.Len(t, e.Messages(), 2)

	e.ApplyRemoved("m-1")
	e.ApplyRemoved("m-1")

	list := e.Messages()
	require.Len(t, list, 1)
	assert.Equal(t, "m-2", list[0].Message.ID)
}

func TestOrderSurvivesMiddleRemoval(t *testing.T) {
	e := NewEngine()
	for _, id := range []string{"m-1", "m-2", "m-3", "m-4"} {
		e.ApplyCreated(&models.Message{ID: id})
	}

	e.ApplyRemoved("m-2")

	var ids []string
	for _, entry := range e.Messages() {
		ids = append(ids, entry.Message.ID)
	}
	assert.Equal(t, []string{"m-1", "m-3", "m-4"}, ids)

	// Later events still resolve against the compacted index.
	e.ApplyChunk(models.ChunkEvent{MessageID: "m-4", DeltaContent: "tail"})
	list := e.Messages()
	assert.Equal(t, "tail", list[2].Message.Content)
}

// Two engines fed the identical ordered event sequence end with identical
// lists in content, order, and id set.
func TestConvergenceAcrossClients(t *testing.T) {
	events := []func(*Engine){
		func(e *Engine) { e.ApplyCreated(&models.Message{ID: "m-1", Content: "hi"}) },
		func(e *Engine) { e.ApplyCreated(&models.Message{ID: "m-2", Type: models.MessageTypeAgent}) },
		func(e *Engine) { e.ApplyChunk(models.ChunkEvent{MessageID: "m-2", DeltaContent: "Hel"}) },
		func(e *Engine) { e.ApplyChunk(models.ChunkEvent{MessageID: "m-2", DeltaContent: "lo"}) },
		func(e *Engine) {
			e.ApplyCreated(&models.Message{ID: "m-2", Type: models.MessageTypeAgent, Content: "Hello"})
		},
		func(e *Engine) { e.ApplyRemoved("m-1") },
	}

	a, b := NewEngine(), NewEngine()
	for _, ev := range events {
		ev(a)
		ev(b)
	}

	if diff := cmp.Diff(a.Messages(), b.Messages()); diff != "" {
		t.Errorf("clients diverged (-a +b):\n%s", diff)
	}

	list := a.Messages()
	require.Len(t, list, 1)
	assert.Equal(t, "m-2", list[0].Message.ID)
	assert.Equal(t, "Hello", list[0].Message.Content)
}

func TestSeedResetsState(t *testing.T) {
	e := NewEngine()
	e.ApplyCreated(&models.Message{ID: "stale"})

	e.Seed([]*models.Message{
		{ID: "m-1", Content: "a"},
		{ID: "m-2", Content: "b"},
	})

	list := e.Messages()
	require.Len(t, list, 2)
	assert.Equal(t, "m-1", list[0].Message.ID)
	assert.Equal(t, StatusSent, list[1].Status)
}
