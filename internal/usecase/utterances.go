package usecase

import (
	"strings"
	"sync"

	"medscribe/internal/domain"
)

// utteranceAccumulator groups consecutive final fragments of the same
// speaker role into utterances. At most one utterance is open at a time;
// open text is append-only. An explicit end-of-turn signal closes the open
// utterance regardless of role continuity.
type utteranceAccumulator struct {
	mu        sync.Mutex
	committed []domain.Utterance
	open      *domain.Utterance
}

func newUtteranceAccumulator() *utteranceAccumulator {
	return &utteranceAccumulator{}
}

// AppendFinal folds a final fragment into the open utterance when the role
// matches, otherwise closes it and opens a new one seeded by the fragment.
func (a *utteranceAccumulator) AppendFinal(frag domain.TranscriptFragment) {
	text := strings.TrimSpace(frag.Text)
	if text == "" {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.open != nil && a.open.SpeakerRole == frag.SpeakerRole {
		a.open.Text += " " + text
		a.open.EndTime = frag.EndTime
		return
	}

	a.closeOpen()
	a.open = &domain.Utterance{
		SpeakerID:   frag.SpeakerID,
		SpeakerRole: frag.SpeakerRole,
		Text:        text,
		StartTime:   frag.StartTime,
		EndTime:     frag.EndTime,
	}
}

// CloseOpen handles the transport's end-of-utterance signal: the next
// fragment starts a new utterance even for a same-role continuation.
func (a *utteranceAccumulator) CloseOpen() {
	a.mu.Lock()
	a.closeOpen()
	a.mu.Unlock()
}

func (a *utteranceAccumulator) closeOpen() {
	if a.open != nil {
		a.committed = append(a.committed, *a.open)
		a.open = nil
	}
}

// Utterances returns the committed utterances plus the open one, if any.
func (a *utteranceAccumulator) Utterances() []domain.Utterance {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]domain.Utterance, len(a.committed), len(a.committed)+1)
	copy(out, a.committed)
	if a.open != nil {
		out = append(out, *a.open)
	}
	return out
}

// Transcript joins all accumulated text for analysis calls.
func (a *utteranceAccumulator) Transcript() string {
	parts := make([]string, 0, 8)
	for _, u := range a.Utterances() {
		parts = append(parts, u.Text)
	}
	return strings.Join(parts, " ")
}

func (a *utteranceAccumulator) Reset() {
	a.mu.Lock()
	a.committed = nil
	a.open = nil
	a.mu.Unlock()
}
