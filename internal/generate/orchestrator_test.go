package generate

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YudoTLE/VelonY-sub000/internal/apperr"
	"github.com/YudoTLE/VelonY-sub000/internal/realtime"
	"github.com/YudoTLE/VelonY-sub000/pkg/models"
)

type fakeBackend struct {
	mu            sync.Mutex
	agent         *models.Agent
	model         *models.Model
	participants  []models.Participant
	history       []*models.Message
	created       []*models.Message
	finalizeCalls int
	finalizedWith [2]string
	finalizeErr   error
	touched       []string
}

func (b *fakeBackend) CreateMessage(ctx context.Context, m *models.Message) (*models.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	saved := *m
	saved.ID = "msg-1"
	b.created = append(b.created, &saved)
	return &saved, nil
}

func (b *fakeBackend) FinalizeMessage(ctx context.Context, id, content, extra string) (*models.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.finalizeCalls++
	b.finalizedWith = [2]string{content, extra}
	if b.finalizeErr != nil {
		return nil, b.finalizeErr
	}
	return &models.Message{ID: id, Type: models.MessageTypeAgent, Content: content, Extra: extra}, nil
}

func (b *fakeBackend) ListMessages(ctx context.Context, conversationID string, limit int) ([]*models.Message, error) {
	return b.history, nil
}

func (b *fakeBackend) ListParticipants(ctx context.Context, conversationID string) ([]models.Participant, error) {
	return b.participants, nil
}

func (b *fakeBackend) TouchConversation(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.touched = append(b.touched, id)
	return nil
}

func (b *fakeBackend) GetAgent(ctx context.Context, id string) (*models.Agent, error) {
	if b.agent == nil {
		return nil, apperr.New(apperr.KindNotFound, "agent not found")
	}
	return b.agent, nil
}

func (b *fakeBackend) GetModel(ctx context.Context, id string) (*models.Model, error) {
	if b.model == nil {
		return nil, apperr.New(apperr.KindNotFound, "model not found")
	}
	return b.model, nil
}

type scriptedProvider struct {
	deltas  [][2]string
	failure error
}

func (p *scriptedProvider) Stream(ctx context.Context, turns []Turn, handler StreamHandler) error {
	for _, d := range p.deltas {
		handler(d[0], d[1])
	}
	return p.failure
}

type fakeFactory struct {
	provider Provider
	openErr  error
	opens    int
}

func (f *fakeFactory) Open(ctx context.Context, model *models.Model) (Provider, error) {
	f.opens++
	if f.openErr != nil {
		return nil, f.openErr
	}
	return f.provider, nil
}

type emitted struct {
	namespace, recipient, event string
	payload                     any
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []emitted
}

func (r *recordingBroadcaster) Emit(namespace, recipientKey, event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, emitted{namespace, recipientKey, event, payload})
}

func (r *recordingBroadcaster) Cleanup() {}

func (r *recordingBroadcaster) byEvent(event string) []emitted {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []emitted
	for _, e := range r.events {
		if e.event == event {
			out = append(out, e)
		}
	}
	return out
}

func testBackend() *fakeBackend {
	return &fakeBackend{
		agent: &models.Agent{ID: "agent-1", Name: "Scribe", SystemPrompt: "Be brief."},
		model: &models.Model{ID: "model-1", Name: "gpt-thing", Provider: models.ProviderOpenAI, ModelName: "gpt-4o"},
		participants: []models.Participant{
			{ConversationID: "conv-1", UserID: "user-a", Role: models.RoleCreator},
			{ConversationID: "conv-1", UserID: "user-b", Role: models.RoleMember},
		},
	}
}

func turnInput() TurnInput {
	return TurnInput{ConversationID: "conv-1", AgentID: "agent-1", ModelID: "model-1", CallerID: "user-a"}
}

func TestRunAgentTurnStreamsAndFinalizes(t *testing.T) {
	backend := testBackend()
	provider := &scriptedProvider{deltas: [][2]string{
		{"The quick brown fox jumps over the lazy dog. ", "thinking about foxes "},
		{"Again and again and again, far past any capacity bound. ", "and dogs "},
		{"Done.", ""},
	}}
	bc := &recordingBroadcaster{}

	o := NewOrchestrator(backend, &fakeFactory{provider: provider}, bc, Options{FlushCapacity: 20})

	final, err := o.RunAgentTurn(context.Background(), turnInput())
	require.NoError(t, err)
	require.NotNil(t, final)

	var wantContent, wantExtra strings.Builder
	for _, d := range provider.deltas {
		wantContent.WriteString(d[0])
		wantExtra.WriteString(d[1])
	}
	assert.Equal(t, wantContent.String(), final.Content)
	assert.Equal(t, wantExtra.String(), final.Extra)
	assert.Equal(t, 1, backend.finalizeCalls)
	assert.Equal(t, []string{"conv-1"}, backend.touched)
	assert.Equal(t, "Scribe", *final.AgentName)
	assert.Equal(t, "gpt-thing", *final.ModelName)

	// Chunk events reassemble to the full text, in order, per recipient.
	var gotContent, gotExtra strings.Builder
	for _, e := range bc.byEvent(realtime.EventReceiveMessageChunk) {
		if e.recipient != "user-a" {
			continue
		}
		chunk := e.payload.(models.ChunkEvent)
		assert.Equal(t, "msg-1", chunk.MessageID)
		gotContent.WriteString(chunk.DeltaContent)
		gotExtra.WriteString(chunk.DeltaExtra)
	}
	assert.Equal(t, wantContent.String(), gotContent.String())
	assert.Equal(t, wantExtra.String(), gotExtra.String())

	// Placeholder creation and finalized message both fan out to every
	// participant.
	created := bc.byEvent(realtime.EventReceiveMessage)
	assert.Len(t, created, 4)
}

func TestRunAgentTurnUpstreamFailureKeepsPartial(t *testing.T) {
	backend := testBackend()
	provider := &scriptedProvider{
		deltas:  [][2]string{{"partial out", "partial think"}},
		failure: errors.New("upstream exploded"),
	}
	bc := &recordingBroadcaster{}

	o := NewOrchestrator(backend, &fakeFactory{provider: provider}, bc, Options{FlushCapacity: 1000})

	final, err := o.RunAgentTurn(context.Background(), turnInput())
	require.NoError(t, err)
	assert.Equal(t, "partial out", final.Content)
	assert.Equal(t, "partial think", final.Extra)
	assert.Equal(t, 1, backend.finalizeCalls)

	// The under-capacity buffer still flushed once at end of stream.
	chunks := bc.byEvent(realtime.EventReceiveMessageChunk)
	require.Len(t, chunks, 2)
}

func TestRunAgentTurnOpenFailureFinalizesEmpty(t *testing.T) {
	backend := testBackend()
	bc := &recordingBroadcaster{}

	o := NewOrchestrator(backend, &fakeFactory{openErr: errors.New("invalid api key")}, bc, Options{})

	final, err := o.RunAgentTurn(context.Background(), turnInput())
	require.NoError(t, err)
	assert.Equal(t, "", final.Content)
	assert.Equal(t, 1, backend.finalizeCalls)
	assert.Empty(t, bc.byEvent(realtime.EventReceiveMessageChunk))
}

// stallingProvider emits one delta and then hangs until the turn context
// dies, like an upstream that stops producing mid-generation.
type stallingProvider struct{}

func (p *stallingProvider) Stream(ctx context.Context, turns []Turn, handler StreamHandler) error {
	handler("Par", "")
	<-ctx.Done()
	return ctx.Err()
}

func TestRunAgentTurnFinalizesAfterDeadline(t *testing.T) {
	backend := testBackend()
	bc := &recordingBroadcaster{}
	o := NewOrchestrator(backend, &fakeFactory{provider: &stallingProvider{}}, bc, Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	final, err := o.RunAgentTurn(ctx, turnInput())
	require.NoError(t, err)
	assert.Equal(t, "Par", final.Content)
	assert.Equal(t, 1, backend.finalizeCalls)
	assert.Equal(t, []string{"conv-1"}, backend.touched)
}

func TestRunAgentTurnFinalizeFailureIsFatal(t *testing.T) {
	backend := testBackend()
	backend.finalizeErr = apperr.New(apperr.KindPersistence, "write failed")
	provider := &scriptedProvider{deltas: [][2]string{{"hello", ""}}}

	o := NewOrchestrator(backend, &fakeFactory{provider: provider}, &recordingBroadcaster{}, Options{})

	_, err := o.RunAgentTurn(context.Background(), turnInput())
	require.Error(t, err)
	assert.Equal(t, apperr.KindPersistence, apperr.KindOf(err))
	assert.Empty(t, backend.touched)
}

func TestRunAgentTurnRequiresCaller(t *testing.T) {
	o := NewOrchestrator(testBackend(), &fakeFactory{}, &recordingBroadcaster{}, Options{})

	in := turnInput()
	in.CallerID = ""
	_, err := o.RunAgentTurn(context.Background(), in)
	require.Error(t, err)
	assert.Equal(t, apperr.KindUnauthenticated, apperr.KindOf(err))
}

func TestRunAgentTurnRetriesBarrenStreamOpen(t *testing.T) {
	backend := testBackend()
	factory := &failThenSucceedFactory{
		failures: 1,
		provider: &scriptedProvider{deltas: [][2]string{{"ok", ""}}},
	}

	o := NewOrchestrator(backend, factory, &recordingBroadcaster{}, Options{StreamRetries: 2})
	o.retryCfg.BaseDelay = time.Millisecond
	o.retryCfg.MaxDelay = 5 * time.Millisecond

	final, err := o.RunAgentTurn(context.Background(), turnInput())
	require.NoError(t, err)
	assert.Equal(t, "ok", final.Content)
	assert.Equal(t, 2, factory.opens)
}

type failThenSucceedFactory struct {
	failures int
	opens    int
	provider Provider
}

func (f *failThenSucceedFactory) Open(ctx context.Context, model *models.Model) (Provider, error) {
	f.opens++
	if f.opens <= f.failures {
		return nil, errors.New("connection refused")
	}
	return f.provider, nil
}
