package ports

import (
	"context"

	"medscribe/internal/domain"
)

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate int
	Channels   int
	BlockSize  int
	Device     string
}

// AnalysisTap exposes read-only frequency-domain data for the live signal,
// independent of recording state. FrequencyData returns nil when no audio
// has flowed yet; callers must tolerate that.
type AnalysisTap interface {
	FrequencyData() []float64
}

// CaptureSession owns the microphone handle and delivers encoded blocks.
//
// Initialize acquires the device and must surface failures to the caller
// rather than retrying. Destroy is idempotent and safe from any state.
type CaptureSession interface {
	Initialize(ctx context.Context) error
	Start(onBlock func(domain.AudioBlock)) error
	Stop() error
	Tap() AnalysisTap
	Destroy() error
}

// TranscriptStream is an active session with the transcription collaborator.
type TranscriptStream interface {
	SendAudio(pcm []byte) error
	SendControl(msg domain.ControlMessage) error
	Events() <-chan domain.TransportEvent
	Close() error
}

// Transport opens sessions with the transcription collaborator service.
type Transport interface {
	Connect(ctx context.Context, overrides *domain.DiarizationOverrides) (TranscriptStream, error)
}

// Analyzer is the external extraction/suggestion collaborator.
type Analyzer interface {
	ExtractForm(ctx context.Context, transcript string) (domain.MedicalForm, error)
	Suggest(ctx context.Context, transcript string, form *domain.MedicalForm) (domain.Suggestions, error)
	Summarize(ctx context.Context, transcript string, form *domain.MedicalForm) (domain.SOAPNote, error)
	SuggestCodes(ctx context.Context, transcript string, note domain.SOAPNote) ([]domain.ICDCode, error)
}

// EventSink is the UI collaborator surface. Hooks are invoked synchronously
// within the event-loop turn the corresponding event is processed; the UI
// owns rendering and must not block these callbacks.
type EventSink interface {
	SessionStateChanged(state domain.SessionState)
	ConnectionStatusChanged(status domain.ConnectionStatus)
	PartialTranscript(fragment domain.TranscriptFragment)
	FinalTranscript(fragment domain.TranscriptFragment)
	FormUpdated(form domain.MedicalForm)
	SuggestionsUpdated(suggestions domain.Suggestions)
	SummaryUpdated(note domain.SOAPNote)
	CodesUpdated(codes []domain.ICDCode)
	AnalysisProcessing(active bool)
	ReasoningStep(text string)
	SessionError(code domain.ErrorCode, detail string)
}
