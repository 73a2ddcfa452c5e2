// Package demo provides a scripted transport that replays a bilingual
// consultation without a microphone or a transcription service. It feeds
// the same aggregation and analysis path as live audio.
package demo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"medscribe/internal/domain"
	"medscribe/internal/ports"
)

const defaultPacing = 600 * time.Millisecond

type segment struct {
	role  domain.SpeakerRole
	text  string
	start float64
	end   float64
}

// A bilingual cardiology consultation, Arabic and English mixed the way
// the clinic actually speaks.
var script = []segment{
	{domain.SpeakerRoleDoctor, "المريض is a 45 year old male presenting with chest pain.", 0.0, 3.5},
	{domain.SpeakerRoleDoctor, "ضغط الدم 140 over 90. نبض القلب 88 beats per minute, regular rhythm.", 4.0, 8.0},
	{domain.SpeakerRoleDoctor, "حرارة 37.2 degrees Celsius. الأكسجين saturation 98 percent.", 8.5, 12.0},
	{domain.SpeakerRolePatient, "I feel shortness of breath و دوخة when I walk.", 12.5, 16.0},
	{domain.SpeakerRoleDoctor, "الفحص shows mild bilateral leg edema.", 16.5, 19.0},
	{domain.SpeakerRolePatient, "أنا عندي diabetes and السكري hypertension. No known allergies. Currently on metformin.", 19.5, 25.0},
	{domain.SpeakerRoleDoctor, "متابعة recommended in 2 weeks. Discharge is recommended.", 25.5, 29.0},
}

// Config tunes demo playback.
type Config struct {
	// Pacing is the delay between scripted segments.
	Pacing time.Duration
}

// Provider implements ports.Transport with scripted playback.
type Provider struct {
	cfg    Config
	logger *zap.Logger
}

func NewProvider(cfg Config, logger *zap.Logger) *Provider {
	if cfg.Pacing <= 0 {
		cfg.Pacing = defaultPacing
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{cfg: cfg, logger: logger}
}

func (p *Provider) Connect(_ context.Context, _ *domain.DiarizationOverrides) (ports.TranscriptStream, error) {
	s := &scriptedStream{
		pacing: p.cfg.Pacing,
		logger: p.logger,
		events: make(chan domain.TransportEvent, 32),
		stop:   make(chan struct{}),
	}
	s.emit(domain.TransportEvent{
		Type: domain.EventConnected,
		Config: &domain.SessionConfig{
			SessionID:          "demo-" + fmt.Sprintf("%d", time.Now().UnixNano()),
			Language:           "ar_en",
			DiarizationEnabled: true,
		},
	})
	return s, nil
}

type scriptedStream struct {
	pacing time.Duration
	logger *zap.Logger

	events chan domain.TransportEvent
	stop   chan struct{}

	playOnce  sync.Once
	closeOnce sync.Once
	playing   sync.WaitGroup
}

// SendAudio is accepted and discarded; the script is the audio.
func (s *scriptedStream) SendAudio([]byte) error { return nil }

func (s *scriptedStream) SendControl(msg domain.ControlMessage) error {
	if msg.Type != domain.ControlStartDemo {
		return nil
	}
	s.playOnce.Do(func() {
		s.playing.Add(1)
		go s.play()
	})
	return nil
}

func (s *scriptedStream) Events() <-chan domain.TransportEvent {
	return s.events
}

func (s *scriptedStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.stop)
		go func() {
			s.playing.Wait()
			close(s.events)
		}()
	})
	return nil
}

func (s *scriptedStream) play() {
	defer s.playing.Done()

	for i, seg := range script {
		if i > 0 {
			select {
			case <-time.After(s.pacing):
			case <-s.stop:
				return
			}
		}

		speaker := "S1"
		if seg.role == domain.SpeakerRolePatient {
			speaker = "S2"
		}
		s.emit(domain.TransportEvent{
			Type: domain.EventFinalTranscript,
			Fragment: &domain.TranscriptFragment{
				Text:        seg.text,
				SpeakerID:   speaker,
				SpeakerRole: seg.role,
				StartTime:   seg.start,
				EndTime:     seg.end,
				IsFinal:     true,
			},
		})
		s.emit(domain.TransportEvent{Type: domain.EventEndOfUtterance, EndTime: seg.end})
	}

	s.emit(domain.TransportEvent{Type: domain.EventDemoComplete})
	s.logger.Debug("demo script complete", zap.Int("segments", len(script)))
}

func (s *scriptedStream) emit(event domain.TransportEvent) {
	select {
	case s.events <- event:
	case <-s.stop:
	}
}
