package assistant

import (
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"medscribe/internal/domain"
)

func newTestStream() *stream {
	return &stream{
		logger: zap.NewNop(),
		events: make(chan domain.TransportEvent, 8),
		frames: make(chan frame, 8),
		done:   make(chan struct{}),
	}
}

func TestNewProviderDefaults(t *testing.T) {
	t.Parallel()

	p := NewProvider(Config{}, nil, nil)
	if p.cfg.URL != "ws://localhost:8000" {
		t.Fatalf("unexpected url: %q", p.cfg.URL)
	}
	if p.cfg.Language != "ar_en" {
		t.Fatalf("unexpected language: %q", p.cfg.Language)
	}
}

func TestBuildSessionURL(t *testing.T) {
	t.Parallel()

	got, err := buildSessionURL(Config{URL: "ws://localhost:8000", Language: "ar_en"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ws://localhost:8000/ws/ar_en" {
		t.Fatalf("unexpected url: %s", got)
	}
}

func TestBuildSessionURLUpgradesHTTPSchemes(t *testing.T) {
	t.Parallel()

	got, err := buildSessionURL(Config{URL: "https://scribe.example.com/", Language: "en"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(got, "wss://scribe.example.com/ws/en") {
		t.Fatalf("unexpected url: %s", got)
	}
}

func TestBuildSessionURLDiarizationOverrides(t *testing.T) {
	t.Parallel()

	overrides := &domain.DiarizationOverrides{SpeakerSensitivity: 0.7, PreferCurrentSpeaker: true}
	got, err := buildSessionURL(Config{URL: "ws://localhost:8000", Language: "ar_en"}, overrides)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(got, "speaker_sensitivity=0.7") {
		t.Fatalf("expected sensitivity in url: %s", got)
	}
	if !strings.Contains(got, "prefer_current_speaker=true") {
		t.Fatalf("expected prefer_current_speaker in url: %s", got)
	}
}

func TestBuildSessionURLRejectsBadScheme(t *testing.T) {
	t.Parallel()

	if _, err := buildSessionURL(Config{URL: "ftp://nope", Language: "en"}, nil); err == nil {
		t.Fatalf("expected scheme error")
	}
}

func TestDecodeFinalTranscript(t *testing.T) {
	t.Parallel()

	s := newTestStream()
	payload := []byte(`{"type":"final","text":"I feel dizzy","speaker":"S2","speaker_role":"patient","start_time":1.5,"end_time":3.2}`)
	event, ok := s.decode(payload)
	if !ok {
		t.Fatalf("expected event")
	}
	if event.Type != domain.EventFinalTranscript {
		t.Fatalf("unexpected type: %s", event.Type)
	}
	frag := event.Fragment
	if frag == nil || frag.Text != "I feel dizzy" || frag.SpeakerID != "S2" {
		t.Fatalf("unexpected fragment: %+v", frag)
	}
	if frag.SpeakerRole != domain.SpeakerRolePatient || !frag.IsFinal {
		t.Fatalf("unexpected fragment flags: %+v", frag)
	}
	if frag.StartTime != 1.5 || frag.EndTime != 3.2 {
		t.Fatalf("unexpected timings: %+v", frag)
	}
}

func TestDecodePartialWithoutRole(t *testing.T) {
	t.Parallel()

	s := newTestStream()
	event, ok := s.decode([]byte(`{"type":"partial","text":"hel","speaker":"S1"}`))
	if !ok {
		t.Fatalf("expected event")
	}
	if event.Type != domain.EventPartialTranscript || event.Fragment.IsFinal {
		t.Fatalf("unexpected event: %+v", event)
	}
	if event.Fragment.SpeakerRole != "" {
		t.Fatalf("expected empty role, got %q", event.Fragment.SpeakerRole)
	}
}

func TestDecodeDropsBlankTranscripts(t *testing.T) {
	t.Parallel()

	s := newTestStream()
	if _, ok := s.decode([]byte(`{"type":"final","text":"   "}`)); ok {
		t.Fatalf("blank transcript should be dropped")
	}
}

func TestDecodeConnected(t *testing.T) {
	t.Parallel()

	s := newTestStream()
	payload := []byte(`{"type":"connected","session_id":"abc","language":"ar_en","diarization_enabled":true,"speaker_sensitivity":0.7}`)
	event, ok := s.decode(payload)
	if !ok || event.Type != domain.EventConnected {
		t.Fatalf("unexpected event: %+v", event)
	}
	if event.Config == nil || event.Config.SessionID != "abc" || !event.Config.DiarizationEnabled {
		t.Fatalf("unexpected config: %+v", event.Config)
	}
}

func TestDecodeFormUpdate(t *testing.T) {
	t.Parallel()

	s := newTestStream()
	payload := []byte(`{"type":"form_update","form":{"symptoms":["dizziness"],"vitals":{"blood_pressure":"130/85"}}}`)
	event, ok := s.decode(payload)
	if !ok || event.Type != domain.EventFormUpdate {
		t.Fatalf("unexpected event: %+v", event)
	}
	if event.Form == nil || len(event.Form.Symptoms) != 1 || event.Form.Vitals.BloodPressure != "130/85" {
		t.Fatalf("unexpected form: %+v", event.Form)
	}
}

func TestDecodeMalformedPayloads(t *testing.T) {
	t.Parallel()

	s := newTestStream()
	cases := [][]byte{
		[]byte(`not json`),
		[]byte(`{"text":"missing type"}`),
		[]byte(`{"type":"form_update"}`),
		[]byte(`{"type":"suggestions_update"}`),
		[]byte(`{"type":"soap_update"}`),
	}
	for _, payload := range cases {
		if _, ok := s.decode(payload); ok {
			t.Fatalf("payload %s should be dropped", payload)
		}
	}
}

func TestDecodeUnknownTypeDropped(t *testing.T) {
	t.Parallel()

	s := newTestStream()
	if _, ok := s.decode([]byte(`{"type":"telemetry"}`)); ok {
		t.Fatalf("unknown type should be dropped")
	}
}

func TestDecodeErrorEvent(t *testing.T) {
	t.Parallel()

	s := newTestStream()
	event, ok := s.decode([]byte(`{"type":"error","message":"quota exceeded"}`))
	if !ok || event.Type != domain.EventError || event.Message != "quota exceeded" {
		t.Fatalf("unexpected event: %+v", event)
	}

	event, ok = s.decode([]byte(`{"type":"error"}`))
	if !ok || event.Message == "" {
		t.Fatalf("expected fallback error message, got %+v", event)
	}
}

func TestDecodeDemoCompleteAndAcks(t *testing.T) {
	t.Parallel()

	s := newTestStream()
	for _, payload := range []string{
		`{"type":"demo_complete"}`,
		`{"type":"reset_complete"}`,
		`{"type":"pong"}`,
	} {
		if _, ok := s.decode([]byte(payload)); !ok {
			t.Fatalf("payload %s should decode", payload)
		}
	}
}

func TestStreamSendAfterCloseFails(t *testing.T) {
	t.Parallel()

	s := newTestStream()
	s.sendClosed = true
	if err := s.SendAudio([]byte{1, 2}); err == nil {
		t.Fatalf("expected closed error")
	}
	if err := s.SendControl(domain.ControlMessage{Type: domain.ControlPing}); err == nil {
		t.Fatalf("expected closed error")
	}
}

func TestStreamCloseDuringSendsDoesNotPanic(t *testing.T) {
	t.Parallel()

	s := newTestStream()
	// Stand-in for the write loop: drain until frames closes, then signal
	// done the way the session teardown goroutine does.
	go func() {
		for range s.frames {
		}
		close(s.done)
	}()

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for j := 0; j < 64; j++ {
				_ = s.SendAudio([]byte{1, 2, 3, 4})
			}
		}()
	}
	close(start)
	_ = s.Close()
	wg.Wait()

	if err := s.SendAudio([]byte{1}); err == nil {
		t.Fatalf("expected closed error after close")
	}
}

func TestStreamSendAudioSkipsEmpty(t *testing.T) {
	t.Parallel()

	s := newTestStream()
	if err := s.SendAudio(nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	select {
	case f := <-s.frames:
		t.Fatalf("empty chunk enqueued: %+v", f)
	default:
	}
}

func TestStreamSendControlPreservesOrder(t *testing.T) {
	t.Parallel()

	s := newTestStream()
	if err := s.SendControl(domain.ControlMessage{Type: domain.ControlStart}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.SendAudio([]byte{1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	first := <-s.frames
	second := <-s.frames
	if !strings.Contains(string(first.payload), `"start"`) {
		t.Fatalf("control frame not first: %s", first.payload)
	}
	if len(second.payload) != 1 {
		t.Fatalf("audio frame not second: %v", second.payload)
	}
}
