package usecase

import (
	"testing"

	"medscribe/internal/domain"
)

func TestRoleInferencePatterns(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		text string
		want domain.SpeakerRole
	}{
		{name: "doctor english", text: "Let me examine your chest, your blood pressure is elevated", want: domain.SpeakerRoleDoctor},
		{name: "patient english", text: "I feel dizzy and it hurts when I breathe", want: domain.SpeakerRolePatient},
		{name: "doctor arabic", text: "سأقيس ضغط الدم و أنصح بالمتابعة", want: domain.SpeakerRoleDoctor},
		{name: "patient arabic", text: "أشعر بدوخة و عندي ألم في الصدر", want: domain.SpeakerRolePatient},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			r := newRoleInferencer()
			if got := r.Infer(tc.text, "S9"); got != tc.want {
				t.Fatalf("Infer(%q) = %s, want %s", tc.text, got, tc.want)
			}
		})
	}
}

func TestRoleInferenceSpeakerConvention(t *testing.T) {
	t.Parallel()

	r := newRoleInferencer()
	if got := r.Infer("okay", "S1"); got != domain.SpeakerRoleDoctor {
		t.Fatalf("S1 fallback = %s, want doctor", got)
	}
	if got := r.Infer("okay", "S2"); got != domain.SpeakerRolePatient {
		t.Fatalf("S2 fallback = %s, want patient", got)
	}
	if got := r.Infer("okay", "S3"); got != domain.SpeakerRoleUnknown {
		t.Fatalf("S3 fallback = %s, want unknown", got)
	}
}

func TestRoleCommitSticks(t *testing.T) {
	t.Parallel()

	r := newRoleInferencer()
	if got := r.Commit("I feel terrible, my pain is getting worse", "S1"); got != domain.SpeakerRolePatient {
		t.Fatalf("first commit = %s, want patient", got)
	}

	// A later fragment with doctor phrasing must not flip the fixed role.
	if got := r.Commit("I recommend you rest", "S1"); got != domain.SpeakerRolePatient {
		t.Fatalf("committed role flipped to %s", got)
	}
	if got := r.Infer("your vitals look fine", "S1"); got != domain.SpeakerRolePatient {
		t.Fatalf("Infer ignored history, got %s", got)
	}
}

func TestRoleInferDoesNotPersist(t *testing.T) {
	t.Parallel()

	r := newRoleInferencer()
	if got := r.Infer("I feel terrible", "S5"); got != domain.SpeakerRolePatient {
		t.Fatalf("Infer = %s, want patient", got)
	}
	// Partial previews must not fix the role.
	if got := r.Commit("examination shows clear lungs, I recommend rest", "S5"); got != domain.SpeakerRoleDoctor {
		t.Fatalf("Commit after non-persisted Infer = %s, want doctor", got)
	}
}

func TestRoleFixOverridesPatterns(t *testing.T) {
	t.Parallel()

	r := newRoleInferencer()
	r.Fix("S2", domain.SpeakerRoleDoctor)
	if got := r.Infer("I feel terrible", "S2"); got != domain.SpeakerRoleDoctor {
		t.Fatalf("fixed role not honored, got %s", got)
	}

	// Unknown and empty fixes are ignored.
	r.Fix("S2", domain.SpeakerRoleUnknown)
	if got := r.Infer("okay", "S2"); got != domain.SpeakerRoleDoctor {
		t.Fatalf("unknown fix overwrote history, got %s", got)
	}
}

func TestRoleResetClearsHistory(t *testing.T) {
	t.Parallel()

	r := newRoleInferencer()
	r.Fix("S1", domain.SpeakerRolePatient)
	r.Reset()
	if got := r.Infer("okay", "S1"); got != domain.SpeakerRoleDoctor {
		t.Fatalf("after reset S1 = %s, want doctor convention", got)
	}
}
