package domain

import "errors"

// SessionState models the recording lifecycle.
type SessionState string

const (
	SessionStateIdle        SessionState = "idle"
	SessionStateRecording   SessionState = "recording"
	SessionStatePaused      SessionState = "paused"
	SessionStateStopped     SessionState = "stopped"
	SessionStateDemoPlaying SessionState = "demoPlaying"
	SessionStateDemoStopped SessionState = "demoStopped"
)

// ConnectionStatus describes the transport link as seen by the UI.
type ConnectionStatus string

const (
	ConnectionStatusDisconnected ConnectionStatus = "disconnected"
	ConnectionStatusConnected    ConnectionStatus = "connected"
)

// SpeakerRole is the inferred conversational role of a diarized speaker.
type SpeakerRole string

const (
	SpeakerRoleDoctor  SpeakerRole = "doctor"
	SpeakerRolePatient SpeakerRole = "patient"
	SpeakerRoleUnknown SpeakerRole = "unknown"
)

// TranscriptFragment is a unit of recognized speech from the transport.
// Fragments arrive in streaming order and are not guaranteed to be
// utterance-complete.
type TranscriptFragment struct {
	Text        string      `json:"text"`
	SpeakerID   string      `json:"speaker"`
	SpeakerRole SpeakerRole `json:"speakerRole"`
	StartTime   float64     `json:"startTime"`
	EndTime     float64     `json:"endTime"`
	IsFinal     bool        `json:"isFinal"`
}

// Utterance is an ordered concatenation of consecutive final fragments
// sharing the same speaker role, bounded by a role change or an explicit
// end-of-utterance signal from the transport.
type Utterance struct {
	SpeakerID   string      `json:"speaker"`
	SpeakerRole SpeakerRole `json:"speakerRole"`
	Text        string      `json:"text"`
	StartTime   float64     `json:"startTime"`
	EndTime     float64     `json:"endTime"`
}

// ErrorCode identifies non-fatal and fatal backend errors surfaced to the UI.
type ErrorCode string

const (
	ErrorCodeStartup     ErrorCode = "startup"
	ErrorCodeDevice      ErrorCode = "device"
	ErrorCodeAudioStream ErrorCode = "audio_stream"
	ErrorCodeTransport   ErrorCode = "transport"
	ErrorCodeMalformed   ErrorCode = "malformed_event"
	ErrorCodeAnalysis    ErrorCode = "analysis"
)

// Sentinel errors for the capture path. Device errors are fatal to starting
// a session but recoverable by retrying Initialize.
var (
	ErrDeviceUnavailable = errors.New("audio device unavailable")
	ErrPermissionDenied  = errors.New("microphone access denied")
	ErrNotInitialized    = errors.New("capture session not initialized")
)

// Status summarizes the current runtime status.
type Status struct {
	State              SessionState     `json:"state"`
	Connection         ConnectionStatus `json:"connection"`
	CaptureUnavailable bool             `json:"captureUnavailable"`
	PatientName        string           `json:"patientName,omitempty"`
	ElapsedSeconds     float64          `json:"elapsedSeconds"`
}
