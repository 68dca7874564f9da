package callsession

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"voice-agent-server/internal/clients/callcontrol"
	"voice-agent-server/internal/config"
	"voice-agent-server/internal/monitor"
	"voice-agent-server/internal/observability"
	"voice-agent-server/internal/recognition"
	"voice-agent-server/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCalls struct {
	answerErr    error
	answered     []string
	plays        []playRecord
	hangups      []hangupRecord
	connectionID string
}

type playRecord struct {
	connectionID string
	text         string
	opts         callcontrol.PlayOptions
}

type hangupRecord struct {
	connectionID string
	forEveryone  bool
}

func (f *fakeCalls) Answer(ctx context.Context, incomingCallContext, callbackURI string) (string, error) {
	if f.answerErr != nil {
		return "", f.answerErr
	}
	f.answered = append(f.answered, callbackURI)
	return f.connectionID, nil
}

func (f *fakeCalls) Play(ctx context.Context, callConnectionID, text string, opts callcontrol.PlayOptions) error {
	f.plays = append(f.plays, playRecord{callConnectionID, text, opts})
	return nil
}

func (f *fakeCalls) Hangup(ctx context.Context, callConnectionID string, forEveryone bool) error {
	f.hangups = append(f.hangups, hangupRecord{callConnectionID, forEveryone})
	return nil
}

// fakeSpeech mirrors the real manager's retry arbitration: the session's
// budget decides whether a retry is started.
type fakeSpeech struct {
	promptErr error
	prompts   []string
}

func (f *fakeSpeech) Prompt(ctx context.Context, call recognition.Call, prompt string) error {
	if f.promptErr != nil {
		return f.promptErr
	}
	f.prompts = append(f.prompts, prompt)
	return nil
}

func (f *fakeSpeech) Retry(ctx context.Context, call recognition.Call, prompt string) (bool, error) {
	if !call.TakeRetry() {
		return false, nil
	}
	return true, f.Prompt(ctx, call, prompt)
}

type fakeResponder struct {
	reply      string
	err        error
	utterances []string
}

func (f *fakeResponder) Respond(ctx context.Context, utterance string) (string, error) {
	f.utterances = append(f.utterances, utterance)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

type turnRecord struct {
	role    string
	content string
}

type fakeStore struct {
	callID      uuid.UUID
	turns       []turnRecord
	completions map[uuid.UUID]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{callID: uuid.New(), completions: make(map[uuid.UUID]string)}
}

func (f *fakeStore) CreateCall(ctx context.Context, connectionID, callerID string) (*store.Call, error) {
	return &store.Call{ID: f.callID, ConnectionID: connectionID, CallerID: callerID, Status: store.CallStatusActive}, nil
}

func (f *fakeStore) AddCallTurn(ctx context.Context, callID uuid.UUID, role, content string) (*store.CallTurn, error) {
	f.turns = append(f.turns, turnRecord{role, content})
	return &store.CallTurn{CallID: callID, Role: role, Content: content}, nil
}

func (f *fakeStore) CompleteCall(ctx context.Context, callID uuid.UUID, endReason string) error {
	f.completions[callID] = endReason
	return nil
}

type fakeBroadcaster struct {
	events []monitor.Event
}

func (f *fakeBroadcaster) Broadcast(ctx context.Context, event monitor.Event) {
	f.events = append(f.events, event)
}

func (f *fakeBroadcaster) states() []string {
	states := make([]string, len(f.events))
	for i, e := range f.events {
		states[i] = e.State
	}
	return states
}

type fakePostCall struct {
	done chan uuid.UUID
}

func (f *fakePostCall) CallEnded(ctx context.Context, callID uuid.UUID) error {
	f.done <- callID
	return nil
}

type controllerFixture struct {
	controller  *Controller
	calls       *fakeCalls
	speech      *fakeSpeech
	responder   *fakeResponder
	store       *fakeStore
	broadcaster *fakeBroadcaster
	postCall    *fakePostCall
}

func testProfile() config.AgentProfile {
	return config.AgentProfile{
		Greeting:             "こんにちは。ご用件をお話しください。",
		Farewell:             "お電話ありがとうございました。失礼いたします。",
		Voice:                "ja-JP-NanamiNeural",
		RetryBudget:          2,
		EmptyUtterancePolicy: "drop",
	}
}

func newFixture(t *testing.T, profile config.AgentProfile) *controllerFixture {
	t.Helper()
	f := &controllerFixture{
		calls:       &fakeCalls{connectionID: "conn-1"},
		speech:      &fakeSpeech{},
		responder:   &fakeResponder{reply: "東京は晴れ、23度です。"},
		store:       newFakeStore(),
		broadcaster: &fakeBroadcaster{},
		postCall:    &fakePostCall{done: make(chan uuid.UUID, 1)},
	}
	f.controller = NewController(f.calls, f.speech, f.responder, f.store, f.postCall,
		f.broadcaster, NewRegistry(), profile, observability.NewLogger())
	return f
}

func (f *controllerFixture) startCall(t *testing.T) *Session {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.controller.HandleIncomingCall(ctx, "4:+81312345678", "ctx-token", "https://example.com/callbacks"))
	require.NoError(t, f.controller.HandleCallConnected(ctx, "conn-1"))
	session, ok := f.controller.Registry().Get("conn-1")
	require.True(t, ok)
	return session
}

func TestIncomingCallRegistersSession(t *testing.T) {
	f := newFixture(t, testProfile())

	err := f.controller.HandleIncomingCall(context.Background(), "4:+81312345678", "ctx-token", "https://example.com/callbacks")
	require.NoError(t, err)

	require.Len(t, f.calls.answered, 1)
	assert.Equal(t, "https://example.com/callbacks", f.calls.answered[0])

	session, ok := f.controller.Registry().Get("conn-1")
	require.True(t, ok)
	assert.Equal(t, StateAnswering, session.State())
	assert.Equal(t, "4:+81312345678", session.CallerID())
	assert.Equal(t, 2, session.RetriesLeft())
}

func TestAnswerFailureRegistersNothing(t *testing.T) {
	f := newFixture(t, testProfile())
	f.calls.answerErr = errors.New("call already answered")

	err := f.controller.HandleIncomingCall(context.Background(), "4:+81312345678", "ctx-token", "https://example.com/callbacks")
	assert.ErrorContains(t, err, "failed to answer incoming call")
	assert.Equal(t, 0, f.controller.Registry().Count())
}

func TestCallConnectedGreetsAndListens(t *testing.T) {
	f := newFixture(t, testProfile())
	session := f.startCall(t)

	require.Len(t, f.speech.prompts, 1)
	assert.Equal(t, "こんにちは。ご用件をお話しください。", f.speech.prompts[0])
	assert.Equal(t, StateAwaitingRecognition, session.State())
	assert.Equal(t, "こんにちは。ご用件をお話しください。", session.LastPrompt())
}

func TestRecognizedUtteranceProducesSpokenReply(t *testing.T) {
	f := newFixture(t, testProfile())
	session := f.startCall(t)

	err := f.controller.HandleRecognizeCompleted(context.Background(), "conn-1", "東京の天気は?")
	require.NoError(t, err)

	require.Len(t, f.responder.utterances, 1)
	assert.Equal(t, "東京の天気は?", f.responder.utterances[0])

	// Greeting first, then the reply; the reply doubles as the next prompt.
	require.Len(t, f.speech.prompts, 2)
	assert.Equal(t, "東京は晴れ、23度です。", f.speech.prompts[1])
	assert.Equal(t, "東京は晴れ、23度です。", session.LastPrompt())
	assert.Equal(t, StateAwaitingRecognition, session.State())

	require.Len(t, f.store.turns, 2)
	assert.Equal(t, turnRecord{"caller", "東京の天気は?"}, f.store.turns[0])
	assert.Equal(t, turnRecord{"agent", "東京は晴れ、23度です。"}, f.store.turns[1])
}

func TestEmptyUtteranceIsDroppedObservably(t *testing.T) {
	f := newFixture(t, testProfile())
	f.startCall(t)

	err := f.controller.HandleRecognizeCompleted(context.Background(), "conn-1", "   ")
	require.NoError(t, err)

	// The model is never consulted and listening resumes silently.
	assert.Empty(t, f.responder.utterances)
	require.Len(t, f.speech.prompts, 2)
	assert.Equal(t, "", f.speech.prompts[1])
	assert.Contains(t, f.broadcaster.states(), "utterance_dropped")
	assert.Empty(t, f.store.turns)
}

func TestEmptyUtteranceRepromptPolicy(t *testing.T) {
	profile := testProfile()
	profile.EmptyUtterancePolicy = "reprompt"
	f := newFixture(t, profile)
	f.startCall(t)

	require.NoError(t, f.controller.HandleRecognizeCompleted(context.Background(), "conn-1", ""))

	require.Len(t, f.speech.prompts, 2)
	assert.Equal(t, profile.Greeting, f.speech.prompts[1])
}

func TestResponderFailureKeepsSessionListening(t *testing.T) {
	f := newFixture(t, testProfile())
	f.responder.err = errors.New("model overloaded")
	session := f.startCall(t)

	err := f.controller.HandleRecognizeCompleted(context.Background(), "conn-1", "東京の天気は?")
	assert.ErrorContains(t, err, "failed to resolve reply")
	assert.Equal(t, StateAwaitingRecognition, session.State())
	// No reply prompt was issued.
	assert.Len(t, f.speech.prompts, 1)
}

func TestSilenceRetriesReplayLastPrompt(t *testing.T) {
	f := newFixture(t, testProfile())
	session := f.startCall(t)

	for i := 0; i < 2; i++ {
		require.NoError(t, f.controller.HandleRecognizeFailed(context.Background(), "conn-1", true))
	}

	require.Len(t, f.speech.prompts, 3)
	assert.Equal(t, session.LastPrompt(), f.speech.prompts[1])
	assert.Equal(t, session.LastPrompt(), f.speech.prompts[2])
	assert.Equal(t, 0, session.RetriesLeft())
	assert.Empty(t, f.calls.plays)
}

func TestSilenceBudgetExhaustionPlaysFarewell(t *testing.T) {
	f := newFixture(t, testProfile())
	session := f.startCall(t)

	for i := 0; i < 3; i++ {
		require.NoError(t, f.controller.HandleRecognizeFailed(context.Background(), "conn-1", true))
	}

	assert.Equal(t, 0, session.RetriesLeft())
	require.Len(t, f.calls.plays, 1)
	farewell := f.calls.plays[0]
	assert.Equal(t, "conn-1", farewell.connectionID)
	assert.Equal(t, "お電話ありがとうございました。失礼いたします。", farewell.text)
	assert.Equal(t, "farewell", farewell.opts.OperationContext)
	assert.Equal(t, EndReasonSilenceExhausted, session.EndReason())

	// A fourth silence event after exhaustion plays the farewell again but
	// never pushes the budget negative.
	require.NoError(t, f.controller.HandleRecognizeFailed(context.Background(), "conn-1", true))
	assert.Equal(t, 0, session.RetriesLeft())
}

func TestNonSilenceRecognitionFailureWindsDown(t *testing.T) {
	f := newFixture(t, testProfile())
	session := f.startCall(t)

	require.NoError(t, f.controller.HandleRecognizeFailed(context.Background(), "conn-1", false))

	require.Len(t, f.calls.plays, 1)
	assert.Equal(t, EndReasonRecognitionFailed, session.EndReason())
	// The retry budget is untouched.
	assert.Equal(t, 2, session.RetriesLeft())
}

func TestFarewellPlayCompletedHangsUp(t *testing.T) {
	f := newFixture(t, testProfile())
	f.startCall(t)

	require.NoError(t, f.controller.HandlePlayCompleted(context.Background(), "conn-1", "farewell"))

	require.Len(t, f.calls.hangups, 1)
	assert.Equal(t, hangupRecord{"conn-1", true}, f.calls.hangups[0])
}

func TestNonFarewellPlayCompletedIsIgnored(t *testing.T) {
	f := newFixture(t, testProfile())
	f.startCall(t)

	require.NoError(t, f.controller.HandlePlayCompleted(context.Background(), "conn-1", ""))
	assert.Empty(t, f.calls.hangups)
}

func TestFarewellPlayCompletedWithoutSessionStillHangsUp(t *testing.T) {
	f := newFixture(t, testProfile())

	require.NoError(t, f.controller.HandlePlayCompleted(context.Background(), "conn-zombie", "farewell"))
	require.Len(t, f.calls.hangups, 1)
	assert.Equal(t, hangupRecord{"conn-zombie", true}, f.calls.hangups[0])
}

func TestFarewellPlayFailedHangsUp(t *testing.T) {
	f := newFixture(t, testProfile())
	f.startCall(t)

	require.NoError(t, f.controller.HandlePlayFailed(context.Background(), "conn-1", "farewell"))
	require.Len(t, f.calls.hangups, 1)
}

func TestDisconnectFinalizesCall(t *testing.T) {
	f := newFixture(t, testProfile())
	session := f.startCall(t)

	require.NoError(t, f.controller.HandleCallDisconnected(context.Background(), "conn-1"))

	assert.Equal(t, 0, f.controller.Registry().Count())
	assert.Equal(t, StateTerminated, session.State())
	assert.Equal(t, EndReasonCallerHangup, f.store.completions[f.store.callID])

	select {
	case callID := <-f.postCall.done:
		assert.Equal(t, f.store.callID, callID)
	case <-time.After(2 * time.Second):
		t.Fatal("post-call pipeline was not triggered")
	}
}

func TestDisconnectAfterSilenceExhaustionKeepsEndReason(t *testing.T) {
	f := newFixture(t, testProfile())
	f.startCall(t)

	for i := 0; i < 3; i++ {
		require.NoError(t, f.controller.HandleRecognizeFailed(context.Background(), "conn-1", true))
	}
	require.NoError(t, f.controller.HandleCallDisconnected(context.Background(), "conn-1"))

	assert.Equal(t, EndReasonSilenceExhausted, f.store.completions[f.store.callID])
}

func TestRepeatedDisconnectIsHarmless(t *testing.T) {
	f := newFixture(t, testProfile())
	f.startCall(t)

	require.NoError(t, f.controller.HandleCallDisconnected(context.Background(), "conn-1"))
	require.NoError(t, f.controller.HandleCallDisconnected(context.Background(), "conn-1"))
	assert.Len(t, f.store.completions, 1)
}

func TestEventsForUnknownConnectionAreIgnored(t *testing.T) {
	f := newFixture(t, testProfile())

	require.NoError(t, f.controller.HandleCallConnected(context.Background(), "conn-ghost"))
	require.NoError(t, f.controller.HandleRecognizeCompleted(context.Background(), "conn-ghost", "hello"))
	require.NoError(t, f.controller.HandleRecognizeFailed(context.Background(), "conn-ghost", true))

	assert.Empty(t, f.speech.prompts)
	assert.Empty(t, f.responder.utterances)
	assert.Empty(t, f.calls.plays)
}

func TestConversationSurvivesManyExchanges(t *testing.T) {
	f := newFixture(t, testProfile())
	session := f.startCall(t)

	for i := 0; i < 5; i++ {
		utterance := fmt.Sprintf("質問 %d", i)
		require.NoError(t, f.controller.HandleRecognizeCompleted(context.Background(), "conn-1", utterance))
		assert.Equal(t, StateAwaitingRecognition, session.State())
	}

	// Greeting plus one reply prompt per exchange.
	assert.Len(t, f.speech.prompts, 6)
	assert.Len(t, f.store.turns, 10)
	// The budget is not consumed by successful exchanges.
	assert.Equal(t, 2, session.RetriesLeft())
}
