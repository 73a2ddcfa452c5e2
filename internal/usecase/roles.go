package usecase

import (
	"strings"
	"sync"

	"medscribe/internal/domain"
)

// Lexical cues for conversational roles, English and Arabic. Pattern hits
// decide the first classification of a speaker; afterwards the assigned
// role sticks for the session so short utterances cannot flip it.
var doctorPatterns = []string{
	"blood pressure", "pulse", "temperature", "let me examine",
	"i recommend", "i suggest", "prescribed", "diagnosis",
	"your vitals", "your symptoms", "examination shows",
	"we need to", "i'll order", "the test", "follow-up",
	"ضغط الدم", "نبض", "حرارة", "الفحص", "الفحص يظهر",
	"أنصح", "أوصي", "العلاج", "التشخيص", "المتابعة",
}

var patientPatterns = []string{
	"i feel", "i have", "it hurts", "i'm experiencing",
	"my pain", "when i", "i can't", "i've been",
	"started yesterday", "woke up with", "since last",
	"أشعر", "عندي", "يؤلمني", "ألم في", "منذ",
	"بدأت", "أعاني من", "لا أستطيع",
}

// roleInferencer maps diarization speaker IDs to conversational roles.
type roleInferencer struct {
	mu      sync.Mutex
	history map[string]domain.SpeakerRole
}

func newRoleInferencer() *roleInferencer {
	return &roleInferencer{history: make(map[string]domain.SpeakerRole)}
}

// Infer returns the role for a fragment without fixing it, used for
// partial previews.
func (r *roleInferencer) Infer(text, speakerID string) domain.SpeakerRole {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.infer(text, speakerID)
}

// Commit returns the role for a final fragment and fixes it for the
// speaker ID for the rest of the session.
func (r *roleInferencer) Commit(text, speakerID string) domain.SpeakerRole {
	r.mu.Lock()
	defer r.mu.Unlock()
	role := r.infer(text, speakerID)
	if role != domain.SpeakerRoleUnknown && speakerID != "" {
		r.history[speakerID] = role
	}
	return role
}

func (r *roleInferencer) infer(text, speakerID string) domain.SpeakerRole {
	// A fixed role wins over everything, including fresh pattern hits.
	if role, ok := r.history[speakerID]; ok {
		return role
	}

	lower := strings.ToLower(text)
	doctorScore := patternScore(lower, doctorPatterns)
	patientScore := patternScore(lower, patientPatterns)
	if doctorScore > patientScore {
		return domain.SpeakerRoleDoctor
	}
	if patientScore > doctorScore {
		return domain.SpeakerRolePatient
	}

	// Convention: the first diarized speaker is the clinician.
	switch speakerID {
	case "S1":
		return domain.SpeakerRoleDoctor
	case "S2":
		return domain.SpeakerRolePatient
	}
	return domain.SpeakerRoleUnknown
}

// Fix pins a role decided upstream, e.g. by the transcription service's
// own diarization, so later local inference agrees with it.
func (r *roleInferencer) Fix(speakerID string, role domain.SpeakerRole) {
	if speakerID == "" || role == domain.SpeakerRoleUnknown || role == "" {
		return
	}
	r.mu.Lock()
	r.history[speakerID] = role
	r.mu.Unlock()
}

func (r *roleInferencer) Reset() {
	r.mu.Lock()
	r.history = make(map[string]domain.SpeakerRole)
	r.mu.Unlock()
}

func patternScore(text string, patterns []string) int {
	score := 0
	for _, p := range patterns {
		if strings.Contains(text, p) {
			score++
		}
	}
	return score
}
