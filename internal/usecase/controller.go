// Package usecase contains the session orchestration: the state machine
// driving capture, transcription, utterance aggregation and analysis.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"medscribe/internal/domain"
	"medscribe/internal/metrics"
	"medscribe/internal/ports"
)

// Visualizer renders live frequency data while a session is active.
type Visualizer interface {
	Start(tap ports.AnalysisTap)
	Stop()
}

// Options tunes session behavior.
type Options struct {
	// Diarization overrides sent on session start. Nil means server defaults.
	Diarization *domain.DiarizationOverrides
	// QuietPeriod is the analysis debounce window.
	QuietPeriod time.Duration
}

// SessionController owns the session lifecycle. All triggers are safe to
// call from any state; a trigger that is not legal in the current state is
// a no-op. Exactly one session (live or demo) is active at a time.
type SessionController struct {
	capture ports.CaptureSession
	live    ports.Transport
	demo    ports.Transport
	events  ports.EventSink
	viz     Visualizer
	logger  *zap.Logger
	stats   *metrics.Metrics
	opts    Options

	dispatcher *analysisDispatcher
	roles      *roleInferencer
	utterances *utteranceAccumulator
	timer      recordingTimer

	mu                 sync.Mutex
	state              domain.SessionState
	connection         domain.ConnectionStatus
	captureUnavailable bool
	captureReady       bool
	patientName        string
	session            *activeSession
	demoCancel         context.CancelFunc
	destroyed          bool
}

// NewSessionController wires the controller from its collaborators. viz,
// stats and the diarization overrides are optional.
func NewSessionController(
	capture ports.CaptureSession,
	live ports.Transport,
	demo ports.Transport,
	analyzer ports.Analyzer,
	events ports.EventSink,
	viz Visualizer,
	logger *zap.Logger,
	stats *metrics.Metrics,
	opts Options,
) *SessionController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionController{
		capture:    capture,
		live:       live,
		demo:       demo,
		events:     events,
		viz:        viz,
		logger:     logger,
		stats:      stats,
		opts:       opts,
		dispatcher: newAnalysisDispatcher(analyzer, events, logger, stats, opts.QuietPeriod),
		roles:      newRoleInferencer(),
		utterances: newUtteranceAccumulator(),
		state:      domain.SessionStateIdle,
		connection: domain.ConnectionStatusDisconnected,
	}
}

// StartRecording begins a live session. Legal only from idle.
func (c *SessionController) StartRecording(ctx context.Context) error {
	c.mu.Lock()
	if c.destroyed || c.state != domain.SessionStateIdle {
		c.mu.Unlock()
		return nil
	}

	if !c.captureReady {
		if err := c.capture.Initialize(ctx); err != nil {
			c.captureUnavailable = true
			c.mu.Unlock()
			code := domain.ErrorCodeDevice
			if errors.Is(err, domain.ErrPermissionDenied) {
				c.events.SessionError(code, "microphone access denied")
			} else {
				c.events.SessionError(code, "audio device unavailable: "+err.Error())
			}
			return fmt.Errorf("initialize capture: %w", err)
		}
		c.captureReady = true
		c.captureUnavailable = false
	}

	stream, err := c.live.Connect(ctx, c.opts.Diarization)
	if err != nil {
		c.mu.Unlock()
		c.events.SessionError(domain.ErrorCodeTransport, "failed to connect: "+err.Error())
		return fmt.Errorf("connect transport: %w", err)
	}

	sessCtx, cancel := context.WithCancel(context.Background())
	sess := &activeSession{
		cancel:     cancel,
		stream:     stream,
		pump:       newAudioPump(stream, c.events, c.logger, c.stats),
		eventsDone: make(chan struct{}),
	}
	c.session = sess
	c.dispatcher.Activate(sessCtx)

	if err := c.capture.Start(sess.pump.HandleBlock); err != nil {
		c.session = nil
		cancel()
		_ = stream.Close()
		c.mu.Unlock()
		c.events.SessionError(domain.ErrorCodeDevice, "failed to start capture: "+err.Error())
		return fmt.Errorf("start capture: %w", err)
	}

	start := domain.ControlMessage{
		Type:        domain.ControlStart,
		Name:        c.patientName,
		Diarization: c.opts.Diarization,
	}
	if err := stream.SendControl(start); err != nil {
		c.logger.Warn("failed to send start control", zap.Error(err))
	}

	c.timer.Start()
	c.setStateLocked(domain.SessionStateRecording)
	if c.viz != nil {
		c.viz.Start(c.capture.Tap())
	}
	if c.stats != nil {
		c.stats.SessionActive.Set(1)
	}
	c.mu.Unlock()

	go c.consumeEvents(sess)
	c.logger.Info("recording started", zap.String("patient", c.patientName))
	return nil
}

// PauseRecording suspends audio forwarding without releasing the device.
// Legal only while recording.
func (c *SessionController) PauseRecording() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != domain.SessionStateRecording || c.session == nil || c.session.demo {
		return
	}
	c.session.pump.SetPaused(true)
	c.timer.Pause()
	if err := c.session.stream.SendControl(domain.ControlMessage{Type: domain.ControlPause}); err != nil {
		c.logger.Warn("failed to send pause control", zap.Error(err))
	}
	c.setStateLocked(domain.SessionStatePaused)
}

// ResumeRecording resumes a paused session.
func (c *SessionController) ResumeRecording() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != domain.SessionStatePaused || c.session == nil {
		return
	}
	c.session.pump.SetPaused(false)
	c.timer.Resume()
	if err := c.session.stream.SendControl(domain.ControlMessage{Type: domain.ControlResume}); err != nil {
		c.logger.Warn("failed to send resume control", zap.Error(err))
	}
	c.setStateLocked(domain.SessionStateRecording)
}

// StopRecording ends the live session and runs one final analysis pass
// synchronously, bypassing the debounce so trailing speech is analyzed
// before the method returns. Legal from recording or paused.
func (c *SessionController) StopRecording(ctx context.Context) {
	c.mu.Lock()
	if c.state != domain.SessionStateRecording && c.state != domain.SessionStatePaused {
		c.mu.Unlock()
		return
	}
	sess := c.session
	c.session = nil
	c.teardownCaptureLocked()
	c.setStateLocked(domain.SessionStateStopped)
	c.mu.Unlock()

	if sess != nil {
		sess.pump.Detach()
		if err := sess.stream.SendControl(domain.ControlMessage{Type: domain.ControlStop}); err != nil {
			c.logger.Debug("failed to send stop control", zap.Error(err))
		}
		_ = sess.stream.Close()
		<-sess.eventsDone
		sess.cancel()
	}
	c.setConnection(domain.ConnectionStatusDisconnected)

	c.dispatcher.Flush(ctx, c.utterances.Transcript())
	c.logger.Info("recording stopped")
}

// RunDemo replays a scripted consultation through the same aggregation and
// analysis path as live audio. Legal from idle, stopped or demoStopped;
// any prior transcript and analysis state is cleared first.
func (c *SessionController) RunDemo(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case domain.SessionStateIdle, domain.SessionStateStopped, domain.SessionStateDemoStopped:
	default:
		c.mu.Unlock()
		return nil
	}
	if c.destroyed || c.demo == nil {
		c.mu.Unlock()
		return nil
	}
	c.resetSessionDataLocked()

	stream, err := c.demo.Connect(ctx, nil)
	if err != nil {
		c.mu.Unlock()
		c.events.SessionError(domain.ErrorCodeTransport, "failed to start demo: "+err.Error())
		return fmt.Errorf("connect demo transport: %w", err)
	}

	sessCtx, cancel := context.WithCancel(context.Background())
	sess := &activeSession{
		cancel:     cancel,
		stream:     stream,
		pump:       newAudioPump(stream, c.events, c.logger, c.stats),
		eventsDone: make(chan struct{}),
		demo:       true,
	}
	c.session = sess
	c.dispatcher.Activate(sessCtx)

	if err := stream.SendControl(domain.ControlMessage{Type: domain.ControlStartDemo}); err != nil {
		c.session = nil
		cancel()
		_ = stream.Close()
		c.mu.Unlock()
		c.events.SessionError(domain.ErrorCodeTransport, "failed to start demo: "+err.Error())
		return fmt.Errorf("start demo: %w", err)
	}

	c.timer.Start()
	c.setStateLocked(domain.SessionStateDemoPlaying)
	if c.stats != nil {
		c.stats.SessionActive.Set(1)
	}
	c.mu.Unlock()

	go c.consumeEvents(sess)
	c.logger.Info("demo started")
	return nil
}

// Reset returns to idle from any state, discarding the transcript, analysis
// results and speaker history. In-flight analysis responses are discarded
// when they land.
func (c *SessionController) Reset(ctx context.Context) {
	c.mu.Lock()
	sess := c.session
	c.session = nil
	c.teardownCaptureLocked()
	c.resetSessionDataLocked()
	c.patientName = ""
	c.setStateLocked(domain.SessionStateIdle)
	c.mu.Unlock()

	if sess != nil {
		sess.pump.Detach()
		if err := sess.stream.SendControl(domain.ControlMessage{Type: domain.ControlReset}); err != nil {
			c.logger.Debug("failed to send reset control", zap.Error(err))
		}
		_ = sess.stream.Close()
		<-sess.eventsDone
		sess.cancel()
	}
	c.setConnection(domain.ConnectionStatusDisconnected)
	c.logger.Info("session reset")
}

// SetPatientName records the patient name and forwards it to the service
// when a session is active.
func (c *SessionController) SetPatientName(name string) {
	c.mu.Lock()
	c.patientName = name
	sess := c.session
	c.mu.Unlock()

	if sess != nil {
		msg := domain.ControlMessage{Type: domain.ControlSetPatientName, Name: name}
		if err := sess.stream.SendControl(msg); err != nil {
			c.logger.Debug("failed to send patient name", zap.Error(err))
		}
	}
}

// Ping sends a keepalive over the active stream, if any.
func (c *SessionController) Ping() {
	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()
	if sess == nil {
		return
	}
	if err := sess.stream.SendControl(domain.ControlMessage{Type: domain.ControlPing}); err != nil {
		c.logger.Debug("ping failed", zap.Error(err))
	}
}

// GenerateSummary produces a SOAP note and ICD codes from the transcript
// accumulated so far. An active session is told as well, best effort, so a
// service that summarizes server side can push its own updates.
func (c *SessionController) GenerateSummary(ctx context.Context) {
	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()
	if sess != nil {
		msg := domain.ControlMessage{Type: domain.ControlGenerateSummary}
		if err := sess.stream.SendControl(msg); err != nil {
			c.logger.Debug("failed to send summary control", zap.Error(err))
		}
	}
	c.dispatcher.Summarize(ctx, c.utterances.Transcript())
}

// Status reports a snapshot of the controller state.
func (c *SessionController) Status() domain.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.Status{
		State:              c.state,
		Connection:         c.connection,
		CaptureUnavailable: c.captureUnavailable,
		PatientName:        c.patientName,
		ElapsedSeconds:     c.timer.Elapsed().Seconds(),
	}
}

// Utterances returns the aggregated transcript, including the open
// utterance if one exists.
func (c *SessionController) Utterances() []domain.Utterance {
	return c.utterances.Utterances()
}

// Destroy releases the microphone and tears down any active session.
// Idempotent; the controller accepts no triggers afterwards.
func (c *SessionController) Destroy() {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	c.destroyed = true
	sess := c.session
	c.session = nil
	c.teardownCaptureLocked()
	c.dispatcher.Invalidate()
	if c.demoCancel != nil {
		c.demoCancel()
		c.demoCancel = nil
	}
	c.mu.Unlock()

	if sess != nil {
		sess.pump.Detach()
		_ = sess.stream.Close()
		<-sess.eventsDone
		sess.cancel()
	}
	if err := c.capture.Destroy(); err != nil {
		c.logger.Warn("capture destroy failed", zap.Error(err))
	}
	c.logger.Info("controller destroyed")
}

// consumeEvents is the per-session transport event loop. It exits when the
// stream's event channel closes.
func (c *SessionController) consumeEvents(sess *activeSession) {
	defer close(sess.eventsDone)

	for ev := range sess.stream.Events() {
		c.handleEvent(sess, ev)
	}

	// An unsolicited close while the session is still current means the
	// service went away mid-session.
	c.mu.Lock()
	current := c.session == sess
	if current {
		c.connection = domain.ConnectionStatusDisconnected
	}
	c.mu.Unlock()
	if current {
		c.events.ConnectionStatusChanged(domain.ConnectionStatusDisconnected)
		c.events.SessionError(domain.ErrorCodeTransport, "connection to transcription service lost")
	}
}

func (c *SessionController) handleEvent(sess *activeSession, ev domain.TransportEvent) {
	if !c.sessionCurrent(sess) {
		return
	}

	switch ev.Type {
	case domain.EventConnected:
		c.setConnection(domain.ConnectionStatusConnected)
		if ev.Config != nil {
			c.logger.Info("session established",
				zap.String("session_id", ev.Config.SessionID),
				zap.String("language", ev.Config.Language))
		}

	case domain.EventPartialTranscript:
		if ev.Fragment == nil {
			return
		}
		frag := *ev.Fragment
		if frag.SpeakerRole == "" || frag.SpeakerRole == domain.SpeakerRoleUnknown {
			frag.SpeakerRole = c.roles.Infer(frag.Text, frag.SpeakerID)
		}
		if c.stats != nil {
			c.stats.PartialFragments.Inc()
		}
		c.events.PartialTranscript(frag)

	case domain.EventFinalTranscript:
		if ev.Fragment == nil {
			return
		}
		frag := *ev.Fragment
		frag.IsFinal = true
		if frag.SpeakerRole != "" && frag.SpeakerRole != domain.SpeakerRoleUnknown {
			c.roles.Fix(frag.SpeakerID, frag.SpeakerRole)
		} else {
			frag.SpeakerRole = c.roles.Commit(frag.Text, frag.SpeakerID)
		}
		c.utterances.AppendFinal(frag)
		if c.stats != nil {
			c.stats.FinalFragments.Inc()
		}
		c.events.FinalTranscript(frag)
		c.dispatcher.NoteFinal(c.utterances.Transcript, sess.demo)

	case domain.EventEndOfUtterance:
		c.utterances.CloseOpen()

	case domain.EventFormUpdate:
		if ev.Form != nil {
			c.events.FormUpdated(*ev.Form)
		}
	case domain.EventSuggestionsUpdate:
		if ev.Suggestions != nil {
			c.events.SuggestionsUpdated(*ev.Suggestions)
		}
	case domain.EventSummaryUpdate:
		if ev.Summary != nil {
			c.events.SummaryUpdated(*ev.Summary)
		}
	case domain.EventCodesUpdate:
		c.events.CodesUpdated(ev.Codes)
	case domain.EventAnalysisProcessing:
		c.events.AnalysisProcessing(ev.Processing)
	case domain.EventReasoningStep:
		c.events.ReasoningStep(ev.Reasoning)

	case domain.EventDemoComplete:
		c.handleDemoComplete(sess)

	case domain.EventError:
		c.events.SessionError(domain.ErrorCodeTransport, ev.Message)

	case domain.EventResetAck, domain.EventPong:
		c.logger.Debug("transport ack", zap.String("type", string(ev.Type)))

	default:
		c.logger.Debug("unhandled transport event", zap.String("type", string(ev.Type)))
	}
}

func (c *SessionController) handleDemoComplete(sess *activeSession) {
	c.mu.Lock()
	if c.session != sess || c.state != domain.SessionStateDemoPlaying {
		c.mu.Unlock()
		return
	}
	c.session = nil
	// Keep the session context alive for analysis still pending on the
	// demo transcript; released on the next reset or data clear.
	c.demoCancel = sess.cancel
	c.timer.Stop()
	c.setStateLocked(domain.SessionStateDemoStopped)
	if c.stats != nil {
		c.stats.SessionActive.Set(0)
	}
	c.mu.Unlock()

	// Close from the consumer side; the loop drains whatever the script
	// already queued before the channel closes.
	go func() {
		_ = sess.stream.Close()
	}()
	c.logger.Info("demo complete")
}

func (c *SessionController) sessionCurrent(sess *activeSession) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session == sess
}

// teardownCaptureLocked stops the capture path; callers hold c.mu.
func (c *SessionController) teardownCaptureLocked() {
	if c.captureReady {
		if err := c.capture.Stop(); err != nil {
			c.logger.Debug("capture stop failed", zap.Error(err))
		}
	}
	if c.viz != nil {
		c.viz.Stop()
	}
	c.timer.Stop()
	if c.stats != nil {
		c.stats.SessionActive.Set(0)
	}
}

// resetSessionDataLocked clears transcript and analysis state; callers
// hold c.mu.
func (c *SessionController) resetSessionDataLocked() {
	c.dispatcher.Invalidate()
	if c.demoCancel != nil {
		c.demoCancel()
		c.demoCancel = nil
	}
	c.roles.Reset()
	c.utterances.Reset()
	c.timer.Reset()
}

func (c *SessionController) setStateLocked(state domain.SessionState) {
	if c.state == state {
		return
	}
	c.state = state
	c.events.SessionStateChanged(state)
}

func (c *SessionController) setConnection(status domain.ConnectionStatus) {
	c.mu.Lock()
	changed := c.connection != status
	c.connection = status
	c.mu.Unlock()
	if changed {
		c.events.ConnectionStatusChanged(status)
	}
}
