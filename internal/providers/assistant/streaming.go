// Package assistant implements the websocket transport to the medical
// assistant service.
package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"medscribe/internal/domain"
	"medscribe/internal/metrics"
	"medscribe/internal/ports"
)

// Config controls the websocket connection to the assistant service.
type Config struct {
	// URL is the service base, e.g. "ws://localhost:8000".
	URL string
	// Language selects the transcription language pack, e.g. "ar_en".
	Language string
	// DialTimeout bounds each connection attempt.
	DialTimeout time.Duration
	// MaxDialRetries bounds reconnection attempts before Connect fails.
	MaxDialRetries uint64
}

// Provider implements ports.Transport over a websocket session.
type Provider struct {
	cfg    Config
	logger *zap.Logger
	stats  *metrics.Metrics
}

func NewProvider(cfg Config, logger *zap.Logger, stats *metrics.Metrics) *Provider {
	if cfg.URL == "" {
		cfg.URL = "ws://localhost:8000"
	}
	if cfg.Language == "" {
		cfg.Language = "ar_en"
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.MaxDialRetries == 0 {
		cfg.MaxDialRetries = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{cfg: cfg, logger: logger, stats: stats}
}

func (p *Provider) Connect(ctx context.Context, overrides *domain.DiarizationOverrides) (ports.TranscriptStream, error) {
	wsURL, err := buildSessionURL(p.cfg, overrides)
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{HandshakeTimeout: p.cfg.DialTimeout}

	var conn *websocket.Conn
	dial := func() error {
		c, _, err := dialer.DialContext(ctx, wsURL, nil)
		if err != nil {
			return fmt.Errorf("dial assistant service: %w", err)
		}
		conn = c
		return nil
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), p.cfg.MaxDialRetries),
		ctx,
	)
	if err := backoff.Retry(dial, policy); err != nil {
		return nil, err
	}

	session := &stream{
		conn:   conn,
		logger: p.logger,
		stats:  p.stats,
		events: make(chan domain.TransportEvent, 64),
		frames: make(chan frame, 64),
		done:   make(chan struct{}),
	}

	session.wg.Add(2)
	go session.readLoop()
	go session.writeLoop()
	go func() {
		session.wg.Wait()
		close(session.events)
		close(session.done)
		_ = conn.Close()
	}()

	return session, nil
}

type frame struct {
	messageType int
	payload     []byte
}

// stream is one websocket session. All frames go through a single writer
// goroutine so audio and control messages keep their submission order.
type stream struct {
	conn   *websocket.Conn
	logger *zap.Logger
	stats  *metrics.Metrics

	events chan domain.TransportEvent
	frames chan frame
	done   chan struct{}

	wg sync.WaitGroup

	closeOnce  sync.Once
	sendMu     sync.RWMutex
	sendClosed bool
}

func (s *stream) SendAudio(pcm []byte) error {
	if len(pcm) == 0 {
		return nil
	}
	copied := append([]byte(nil), pcm...)
	return s.enqueue(frame{messageType: websocket.BinaryMessage, payload: copied})
}

func (s *stream) SendControl(msg domain.ControlMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode control message: %w", err)
	}
	return s.enqueue(frame{messageType: websocket.TextMessage, payload: payload})
}

// enqueue holds the send lock across the channel send so Close cannot
// close frames between the closed check and the send. The write loop keeps
// draining frames until they are closed, so the send always completes.
func (s *stream) enqueue(f frame) error {
	s.sendMu.RLock()
	defer s.sendMu.RUnlock()
	if s.sendClosed {
		return errors.New("stream is closed")
	}

	select {
	case s.frames <- f:
		return nil
	case <-s.done:
		return errors.New("stream is closed")
	}
}

func (s *stream) Events() <-chan domain.TransportEvent {
	return s.events
}

func (s *stream) Close() error {
	s.closeOnce.Do(func() {
		s.sendMu.Lock()
		s.sendClosed = true
		close(s.frames)
		s.sendMu.Unlock()
	})
	<-s.done
	return nil
}

func (s *stream) writeLoop() {
	defer s.wg.Done()

	for f := range s.frames {
		if err := s.conn.WriteMessage(f.messageType, f.payload); err != nil {
			s.logger.Debug("websocket write failed", zap.Error(err))
			// Drain so senders are not blocked until the reader notices.
			for range s.frames {
			}
			return
		}
	}

	deadline := time.Now().Add(time.Second)
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	_ = s.conn.Close()
}

func (s *stream) readLoop() {
	defer s.wg.Done()

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				s.logger.Debug("websocket read failed", zap.Error(err))
			}
			return
		}

		event, ok := s.decode(payload)
		if !ok {
			continue
		}
		s.emit(event)
	}
}

// decode maps one service message to a transport event. Malformed payloads
// are counted and dropped; one bad message must not end the session.
func (s *stream) decode(payload []byte) (domain.TransportEvent, bool) {
	var msg serviceMessage
	if err := json.Unmarshal(payload, &msg); err != nil || msg.Type == "" {
		s.markMalformed(payload, err)
		return domain.TransportEvent{}, false
	}

	switch domain.EventType(msg.Type) {
	case domain.EventConnected:
		return domain.TransportEvent{
			Type: domain.EventConnected,
			Config: &domain.SessionConfig{
				SessionID:            msg.SessionID,
				Language:             msg.Language,
				DiarizationEnabled:   msg.DiarizationEnabled,
				SpeakerSensitivity:   msg.SpeakerSensitivity,
				PreferCurrentSpeaker: msg.PreferCurrentSpeaker,
			},
		}, true

	case domain.EventPartialTranscript, domain.EventFinalTranscript:
		eventType := domain.EventType(msg.Type)
		if strings.TrimSpace(msg.Text) == "" {
			return domain.TransportEvent{}, false
		}
		return domain.TransportEvent{
			Type: eventType,
			Fragment: &domain.TranscriptFragment{
				Text:        msg.Text,
				SpeakerID:   msg.Speaker,
				SpeakerRole: domain.SpeakerRole(msg.SpeakerRole),
				StartTime:   msg.StartTime,
				EndTime:     msg.EndTime,
				IsFinal:     eventType == domain.EventFinalTranscript,
			},
		}, true

	case domain.EventEndOfUtterance:
		return domain.TransportEvent{Type: domain.EventEndOfUtterance, EndTime: msg.EndTime}, true

	case domain.EventFormUpdate:
		if msg.Form == nil {
			s.markMalformed(payload, errors.New("form_update without form"))
			return domain.TransportEvent{}, false
		}
		return domain.TransportEvent{Type: domain.EventFormUpdate, Form: msg.Form}, true

	case domain.EventSuggestionsUpdate:
		if msg.Suggestions == nil {
			s.markMalformed(payload, errors.New("suggestions_update without suggestions"))
			return domain.TransportEvent{}, false
		}
		return domain.TransportEvent{Type: domain.EventSuggestionsUpdate, Suggestions: msg.Suggestions}, true

	case domain.EventSummaryUpdate:
		if msg.SOAP == nil {
			s.markMalformed(payload, errors.New("soap_update without note"))
			return domain.TransportEvent{}, false
		}
		return domain.TransportEvent{Type: domain.EventSummaryUpdate, Summary: msg.SOAP}, true

	case domain.EventCodesUpdate:
		return domain.TransportEvent{Type: domain.EventCodesUpdate, Codes: msg.Codes}, true

	case domain.EventAnalysisProcessing:
		return domain.TransportEvent{Type: domain.EventAnalysisProcessing, Processing: msg.Processing}, true

	case domain.EventReasoningStep:
		return domain.TransportEvent{Type: domain.EventReasoningStep, Reasoning: msg.Text}, true

	case domain.EventDemoComplete:
		return domain.TransportEvent{Type: domain.EventDemoComplete}, true

	case domain.EventError:
		message := strings.TrimSpace(msg.Message)
		if message == "" {
			message = "assistant service returned an unknown error"
		}
		return domain.TransportEvent{Type: domain.EventError, Message: message}, true

	case domain.EventResetAck, domain.EventPong:
		return domain.TransportEvent{Type: domain.EventType(msg.Type)}, true

	default:
		s.logger.Debug("unknown service event", zap.String("type", msg.Type))
		return domain.TransportEvent{}, false
	}
}

func (s *stream) markMalformed(payload []byte, err error) {
	if s.stats != nil {
		s.stats.MalformedEvents.Inc()
	}
	s.logger.Warn("dropping malformed service event",
		zap.Error(err),
		zap.Int("bytes", len(payload)))
}

func (s *stream) emit(event domain.TransportEvent) {
	select {
	case s.events <- event:
	case <-s.done:
	}
}

// serviceMessage is the union of all assistant service message shapes.
type serviceMessage struct {
	Type string `json:"type"`

	SessionID            string  `json:"session_id"`
	Language             string  `json:"language"`
	DiarizationEnabled   bool    `json:"diarization_enabled"`
	SpeakerSensitivity   float64 `json:"speaker_sensitivity"`
	PreferCurrentSpeaker bool    `json:"prefer_current_speaker"`

	Text        string  `json:"text"`
	Speaker     string  `json:"speaker"`
	SpeakerRole string  `json:"speaker_role"`
	StartTime   float64 `json:"start_time"`
	EndTime     float64 `json:"end_time"`

	Form        *domain.MedicalForm `json:"form"`
	Suggestions *domain.Suggestions `json:"suggestions"`
	SOAP        *domain.SOAPNote    `json:"soap"`
	Codes       []domain.ICDCode    `json:"icd_codes"`

	Processing bool   `json:"processing"`
	Message    string `json:"message"`
}

func buildSessionURL(cfg Config, overrides *domain.DiarizationOverrides) (string, error) {
	base := strings.TrimSpace(cfg.URL)
	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	base = strings.TrimRight(base, "/")

	sessionURL, err := url.Parse(base + "/ws/" + url.PathEscape(cfg.Language))
	if err != nil {
		return "", fmt.Errorf("invalid assistant service URL: %w", err)
	}
	if sessionURL.Scheme != "ws" && sessionURL.Scheme != "wss" {
		return "", fmt.Errorf("unsupported scheme %q in assistant service URL", sessionURL.Scheme)
	}

	if overrides != nil {
		query := sessionURL.Query()
		if overrides.SpeakerSensitivity > 0 {
			query.Set("speaker_sensitivity", fmt.Sprintf("%g", overrides.SpeakerSensitivity))
		}
		if overrides.PreferCurrentSpeaker {
			query.Set("prefer_current_speaker", "true")
		}
		sessionURL.RawQuery = query.Encode()
	}
	return sessionURL.String(), nil
}
