package webhooks

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"voice-agent-server/internal/observability"
	"voice-agent-server/internal/webhooks/token"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dispatched struct {
	kind         string
	connectionID string
	text         string
	silence      bool
	opContext    string
	callerID     string
	callbackURI  string
}

type fakeController struct {
	calls []dispatched
	err   error
}

func (f *fakeController) HandleIncomingCall(ctx context.Context, callerID, incomingCallContext, callbackURI string) error {
	f.calls = append(f.calls, dispatched{kind: "incoming", callerID: callerID, callbackURI: callbackURI})
	return f.err
}

func (f *fakeController) HandleCallConnected(ctx context.Context, connectionID string) error {
	f.calls = append(f.calls, dispatched{kind: "connected", connectionID: connectionID})
	return f.err
}

func (f *fakeController) HandleRecognizeCompleted(ctx context.Context, connectionID, text string) error {
	f.calls = append(f.calls, dispatched{kind: "recognized", connectionID: connectionID, text: text})
	return f.err
}

func (f *fakeController) HandleRecognizeFailed(ctx context.Context, connectionID string, initialSilence bool) error {
	f.calls = append(f.calls, dispatched{kind: "recognize_failed", connectionID: connectionID, silence: initialSilence})
	return f.err
}

func (f *fakeController) HandlePlayCompleted(ctx context.Context, connectionID, operationContext string) error {
	f.calls = append(f.calls, dispatched{kind: "play_completed", connectionID: connectionID, opContext: operationContext})
	return f.err
}

func (f *fakeController) HandlePlayFailed(ctx context.Context, connectionID, operationContext string) error {
	f.calls = append(f.calls, dispatched{kind: "play_failed", connectionID: connectionID, opContext: operationContext})
	return f.err
}

func (f *fakeController) HandleCallDisconnected(ctx context.Context, connectionID string) error {
	f.calls = append(f.calls, dispatched{kind: "disconnected", connectionID: connectionID})
	return f.err
}

func newWebhookFixture(t *testing.T) (*fakeController, *token.Issuer, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	controller := &fakeController{}
	issuer, err := token.NewIssuer("test-secret", observability.NewLogger())
	require.NoError(t, err)

	h := New(controller, issuer, "https://agent.example.com", observability.NewLogger())
	router := gin.New()
	router.POST("/api/calls/events", h.HandleInboundEvents)
	router.POST("/api/calls/callbacks/:contextId", h.HandleCallbacks)
	return controller, issuer, router
}

func postJSON(router *gin.Engine, path, body string) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	request.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(recorder, request)
	return recorder
}

func TestSubscriptionValidationEchoesCode(t *testing.T) {
	controller, _, router := newWebhookFixture(t)

	recorder := postJSON(router, "/api/calls/events", `[
		{"id":"ev-1","eventType":"Microsoft.EventGrid.SubscriptionValidationEvent",
		 "data":{"validationCode":"code-123"}}
	]`)

	require.Equal(t, http.StatusOK, recorder.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, "code-123", body["validationResponse"])
	// The handshake never reaches the controller.
	assert.Empty(t, controller.calls)
}

func TestIncomingCallIsAnsweredWithTokenizedCallback(t *testing.T) {
	controller, issuer, router := newWebhookFixture(t)

	recorder := postJSON(router, "/api/calls/events", `[
		{"id":"ev-1","eventType":"Microsoft.Communication.IncomingCall",
		 "data":{"incomingCallContext":"opaque-ctx","from":{"rawId":"4:+81312345678"},"to":{"rawId":"4:+81387654321"}}}
	]`)

	require.Equal(t, http.StatusOK, recorder.Code)
	require.Len(t, controller.calls, 1)
	call := controller.calls[0]
	assert.Equal(t, "incoming", call.kind)
	assert.Equal(t, "4:+81312345678", call.callerID)
	assert.Contains(t, call.callbackURI, "https://agent.example.com/api/calls/callbacks/")
	assert.Contains(t, call.callbackURI, "callerId=4%3A%2B81312345678")

	// The callback URI embeds a token our issuer accepts.
	path := strings.TrimPrefix(call.callbackURI, "https://agent.example.com/api/calls/callbacks/")
	signed := strings.SplitN(path, "?", 2)[0]
	_, err := issuer.Verify(context.Background(), signed)
	assert.NoError(t, err)
}

func TestInboundRejectsMalformedPayload(t *testing.T) {
	_, _, router := newWebhookFixture(t)

	recorder := postJSON(router, "/api/calls/events", `{"not":"an array"}`)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestCallbacksRequireValidToken(t *testing.T) {
	controller, _, router := newWebhookFixture(t)

	recorder := postJSON(router, "/api/calls/callbacks/bogus-token", `[
		{"id":"ev-1","type":"Microsoft.Communication.CallConnected","data":{"callConnectionId":"conn-1"}}
	]`)

	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	assert.Empty(t, controller.calls)
}

func TestCallbacksDispatchToController(t *testing.T) {
	controller, issuer, router := newWebhookFixture(t)
	signed, err := issuer.Issue(context.Background(), "ctx-1")
	require.NoError(t, err)

	recorder := postJSON(router, "/api/calls/callbacks/"+signed+"?callerId=4%3A%2B81312345678", `[
		{"id":"ev-1","type":"Microsoft.Communication.CallConnected","data":{"callConnectionId":"conn-1"}},
		{"id":"ev-2","type":"Microsoft.Communication.RecognizeCompleted",
		 "data":{"callConnectionId":"conn-1","speechResult":{"speech":"東京の天気は?"}}},
		{"id":"ev-3","type":"Microsoft.Communication.RecognizeFailed",
		 "data":{"callConnectionId":"conn-1","resultInformation":{"code":400,"subCode":8510,"message":"initial silence"}}},
		{"id":"ev-4","type":"Microsoft.Communication.PlayCompleted",
		 "data":{"callConnectionId":"conn-1","operationContext":"farewell"}},
		{"id":"ev-5","type":"Microsoft.Communication.CallDisconnected","data":{"callConnectionId":"conn-1"}}
	]`)

	require.Equal(t, http.StatusOK, recorder.Code)
	require.Len(t, controller.calls, 5)

	assert.Equal(t, dispatched{kind: "connected", connectionID: "conn-1"}, controller.calls[0])
	assert.Equal(t, dispatched{kind: "recognized", connectionID: "conn-1", text: "東京の天気は?"}, controller.calls[1])
	assert.Equal(t, dispatched{kind: "recognize_failed", connectionID: "conn-1", silence: true}, controller.calls[2])
	assert.Equal(t, dispatched{kind: "play_completed", connectionID: "conn-1", opContext: "farewell"}, controller.calls[3])
	assert.Equal(t, dispatched{kind: "disconnected", connectionID: "conn-1"}, controller.calls[4])
}

func TestCallbackDispatchErrorsDoNotAbortTheBatch(t *testing.T) {
	controller, issuer, router := newWebhookFixture(t)
	controller.err = assert.AnError
	signed, err := issuer.Issue(context.Background(), "ctx-1")
	require.NoError(t, err)

	recorder := postJSON(router, "/api/calls/callbacks/"+signed, `[
		{"id":"ev-1","type":"Microsoft.Communication.CallConnected","data":{"callConnectionId":"conn-1"}},
		{"id":"ev-2","type":"Microsoft.Communication.CallDisconnected","data":{"callConnectionId":"conn-1"}}
	]`)

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Len(t, controller.calls, 2)
}

func TestUnknownCallbackEventsAreIgnored(t *testing.T) {
	controller, issuer, router := newWebhookFixture(t)
	signed, err := issuer.Issue(context.Background(), "ctx-1")
	require.NoError(t, err)

	recorder := postJSON(router, "/api/calls/callbacks/"+signed, `[
		{"id":"ev-1","type":"Microsoft.Communication.ParticipantsUpdated","data":{"callConnectionId":"conn-1"}}
	]`)

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Empty(t, controller.calls)
}
