package callcontrol

// Event types delivered to the inbound webhook endpoint.
const (
	EventSubscriptionValidation = "Microsoft.EventGrid.SubscriptionValidationEvent"
	EventIncomingCall           = "Microsoft.Communication.IncomingCall"
)

// Event types delivered to the per-call callback endpoint.
const (
	EventCallConnected      = "Microsoft.Communication.CallConnected"
	EventCallDisconnected   = "Microsoft.Communication.CallDisconnected"
	EventRecognizeCompleted = "Microsoft.Communication.RecognizeCompleted"
	EventRecognizeFailed    = "Microsoft.Communication.RecognizeFailed"
	EventPlayCompleted      = "Microsoft.Communication.PlayCompleted"
	EventPlayFailed         = "Microsoft.Communication.PlayFailed"
)

// SubCodeInitialSilenceTimeout marks a recognition that failed because the
// caller did not start speaking within the initial-silence window. This is the
// only retryable recognition failure.
const SubCodeInitialSilenceTimeout = 8510

// CallbackEvent is one call lifecycle event posted to the callback endpoint.
type CallbackEvent struct {
	ID   string       `json:"id"`
	Type string       `json:"type"`
	Data CallbackData `json:"data"`
}

// CallbackData carries the payload shared by all callback event types; fields
// not applicable to a given type are left zero.
type CallbackData struct {
	CallConnectionID  string             `json:"callConnectionId"`
	OperationContext  string             `json:"operationContext,omitempty"`
	SpeechResult      *SpeechResult      `json:"speechResult,omitempty"`
	ResultInformation *ResultInformation `json:"resultInformation,omitempty"`
}

// SpeechResult carries the recognized text of a RecognizeCompleted event.
type SpeechResult struct {
	Speech string `json:"speech"`
}

// ResultInformation describes the outcome of a failed operation.
type ResultInformation struct {
	Code    int    `json:"code"`
	SubCode int    `json:"subCode"`
	Message string `json:"message"`
}

// IsInitialSilenceTimeout reports whether a RecognizeFailed event was caused
// by the caller staying silent past the initial-silence window.
func (e *CallbackEvent) IsInitialSilenceTimeout() bool {
	return e.Data.ResultInformation != nil &&
		e.Data.ResultInformation.SubCode == SubCodeInitialSilenceTimeout
}

// RecognizedText returns the recognized speech of a RecognizeCompleted event,
// or the empty string when no speech result is attached.
func (e *CallbackEvent) RecognizedText() string {
	if e.Data.SpeechResult == nil {
		return ""
	}
	return e.Data.SpeechResult.Speech
}

// IncomingCallData is the payload of an IncomingCall event on the inbound
// webhook. IncomingCallContext is an opaque token consumed by Answer.
type IncomingCallData struct {
	IncomingCallContext string                  `json:"incomingCallContext"`
	From                CommunicationIdentifier `json:"from"`
	To                  CommunicationIdentifier `json:"to"`
}

// CommunicationIdentifier identifies a call participant. RawID is the opaque
// address used to target recognition and playback.
type CommunicationIdentifier struct {
	RawID       string       `json:"rawId"`
	PhoneNumber *PhoneNumber `json:"phoneNumber,omitempty"`
}

// PhoneNumber is set when the participant is a PSTN caller.
type PhoneNumber struct {
	Value string `json:"value"`
}

// SubscriptionValidationData is the payload of the subscription-validation
// handshake event.
type SubscriptionValidationData struct {
	ValidationCode string `json:"validationCode"`
}
