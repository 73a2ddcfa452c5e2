package domain

// ControlType enumerates client → service control messages.
type ControlType string

const (
	ControlStart           ControlType = "start"
	ControlStop            ControlType = "stop"
	ControlPause           ControlType = "pause"
	ControlResume          ControlType = "resume"
	ControlReset           ControlType = "reset"
	ControlSetPatientName  ControlType = "set_patient"
	ControlGenerateSummary ControlType = "generate_soap"
	ControlStartDemo       ControlType = "start_demo"
	ControlPing            ControlType = "ping"
)

// DiarizationOverrides tunes speaker separation on session start. Zero
// values mean "use the service default".
type DiarizationOverrides struct {
	SpeakerSensitivity   float64 `json:"speaker_sensitivity,omitempty"`
	PreferCurrentSpeaker bool    `json:"prefer_current_speaker,omitempty"`
}

// ControlMessage is a JSON control frame sent to the collaborator service.
type ControlMessage struct {
	Type        ControlType           `json:"type"`
	Name        string                `json:"name,omitempty"`
	Diarization *DiarizationOverrides `json:"diarization,omitempty"`
}

// EventType enumerates service → client transport events.
type EventType string

const (
	EventConnected          EventType = "connected"
	EventPartialTranscript  EventType = "partial"
	EventFinalTranscript    EventType = "final"
	EventEndOfUtterance     EventType = "end_of_utterance"
	EventFormUpdate         EventType = "form_update"
	EventSuggestionsUpdate  EventType = "suggestions_update"
	EventSummaryUpdate      EventType = "soap_update"
	EventCodesUpdate        EventType = "icd_codes_update"
	EventAnalysisProcessing EventType = "ai_processing"
	EventReasoningStep      EventType = "reasoning"
	EventDemoComplete       EventType = "demo_complete"
	EventError              EventType = "error"
	EventResetAck           EventType = "reset_complete"
	EventPong               EventType = "pong"
)

// SessionConfig is the effective session configuration echoed by the
// service on the connected event.
type SessionConfig struct {
	SessionID            string  `json:"session_id"`
	Language             string  `json:"language"`
	DiarizationEnabled   bool    `json:"diarization_enabled"`
	SpeakerSensitivity   float64 `json:"speaker_sensitivity"`
	PreferCurrentSpeaker bool    `json:"prefer_current_speaker"`
}

// TransportEvent is one decoded service event. Only the fields relevant to
// Type are populated.
type TransportEvent struct {
	Type        EventType
	Fragment    *TranscriptFragment
	Config      *SessionConfig
	Form        *MedicalForm
	Suggestions *Suggestions
	Summary     *SOAPNote
	Codes       []ICDCode
	Processing  bool
	Reasoning   string
	EndTime     float64
	Message     string
}
