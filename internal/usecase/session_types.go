package usecase

import (
	"sync"
	"time"

	"medscribe/internal/ports"
)

// activeSession bundles the per-session moving parts: the transport stream,
// the audio pump feeding it, and the goroutine consuming transport events.
type activeSession struct {
	cancel     func()
	stream     ports.TranscriptStream
	pump       *audioPump
	eventsDone chan struct{}
	demo       bool
}

// recordingTimer accumulates elapsed recording time across pause/resume.
type recordingTimer struct {
	mu          sync.Mutex
	accumulated time.Duration
	startedAt   time.Time
	running     bool
}

func (t *recordingTimer) Start() {
	t.mu.Lock()
	t.accumulated = 0
	t.startedAt = time.Now()
	t.running = true
	t.mu.Unlock()
}

func (t *recordingTimer) Pause() {
	t.mu.Lock()
	if t.running {
		t.accumulated += time.Since(t.startedAt)
		t.running = false
	}
	t.mu.Unlock()
}

func (t *recordingTimer) Resume() {
	t.mu.Lock()
	if !t.running {
		t.startedAt = time.Now()
		t.running = true
	}
	t.mu.Unlock()
}

func (t *recordingTimer) Stop() {
	t.Pause()
}

func (t *recordingTimer) Reset() {
	t.mu.Lock()
	t.accumulated = 0
	t.running = false
	t.mu.Unlock()
}

func (t *recordingTimer) Elapsed() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return t.accumulated + time.Since(t.startedAt)
	}
	return t.accumulated
}
