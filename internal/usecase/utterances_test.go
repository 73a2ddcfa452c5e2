package usecase

import (
	"testing"

	"medscribe/internal/domain"
)

func finalFrag(text, speaker string, role domain.SpeakerRole, start, end float64) domain.TranscriptFragment {
	return domain.TranscriptFragment{
		Text:        text,
		SpeakerID:   speaker,
		SpeakerRole: role,
		StartTime:   start,
		EndTime:     end,
		IsFinal:     true,
	}
}

func TestUtteranceGroupsSameRole(t *testing.T) {
	t.Parallel()

	acc := newUtteranceAccumulator()
	acc.AppendFinal(finalFrag("Good morning,", "S1", domain.SpeakerRoleDoctor, 0, 1.2))
	acc.AppendFinal(finalFrag("what brings you in today?", "S1", domain.SpeakerRoleDoctor, 1.3, 2.8))

	got := acc.Utterances()
	if len(got) != 1 {
		t.Fatalf("expected 1 utterance, got %d", len(got))
	}
	if got[0].Text != "Good morning, what brings you in today?" {
		t.Fatalf("unexpected text: %q", got[0].Text)
	}
	if got[0].StartTime != 0 || got[0].EndTime != 2.8 {
		t.Fatalf("unexpected bounds: %v..%v", got[0].StartTime, got[0].EndTime)
	}
}

func TestUtteranceRoleChangeClosesOpen(t *testing.T) {
	t.Parallel()

	acc := newUtteranceAccumulator()
	acc.AppendFinal(finalFrag("How long have you had the pain?", "S1", domain.SpeakerRoleDoctor, 0, 2))
	acc.AppendFinal(finalFrag("Since yesterday morning.", "S2", domain.SpeakerRolePatient, 2.5, 4))
	acc.AppendFinal(finalFrag("It gets worse at night.", "S2", domain.SpeakerRolePatient, 4.2, 6))

	got := acc.Utterances()
	if len(got) != 2 {
		t.Fatalf("expected 2 utterances, got %d", len(got))
	}
	if got[0].SpeakerRole != domain.SpeakerRoleDoctor {
		t.Fatalf("first utterance role = %s", got[0].SpeakerRole)
	}
	if got[1].Text != "Since yesterday morning. It gets worse at night." {
		t.Fatalf("unexpected second text: %q", got[1].Text)
	}
}

func TestUtteranceEndOfTurnForcesNewUtterance(t *testing.T) {
	t.Parallel()

	acc := newUtteranceAccumulator()
	acc.AppendFinal(finalFrag("Take this twice a day.", "S1", domain.SpeakerRoleDoctor, 0, 2))
	acc.CloseOpen()
	acc.AppendFinal(finalFrag("Come back in two weeks.", "S1", domain.SpeakerRoleDoctor, 5, 7))

	got := acc.Utterances()
	if len(got) != 2 {
		t.Fatalf("expected 2 utterances after end-of-turn, got %d", len(got))
	}
	if got[0].Text != "Take this twice a day." || got[1].Text != "Come back in two weeks." {
		t.Fatalf("unexpected split: %q / %q", got[0].Text, got[1].Text)
	}
}

func TestUtteranceIgnoresBlankFragments(t *testing.T) {
	t.Parallel()

	acc := newUtteranceAccumulator()
	acc.AppendFinal(finalFrag("   ", "S1", domain.SpeakerRoleDoctor, 0, 1))
	acc.AppendFinal(finalFrag("", "S1", domain.SpeakerRoleDoctor, 1, 2))
	if got := acc.Utterances(); len(got) != 0 {
		t.Fatalf("expected no utterances, got %d", len(got))
	}
}

func TestUtteranceTranscriptJoinsAll(t *testing.T) {
	t.Parallel()

	acc := newUtteranceAccumulator()
	acc.AppendFinal(finalFrag("I have a headache.", "S2", domain.SpeakerRolePatient, 0, 2))
	acc.AppendFinal(finalFrag("Any nausea?", "S1", domain.SpeakerRoleDoctor, 2, 3))
	if got := acc.Transcript(); got != "I have a headache. Any nausea?" {
		t.Fatalf("unexpected transcript: %q", got)
	}
}

func TestUtteranceResetDiscardsEverything(t *testing.T) {
	t.Parallel()

	acc := newUtteranceAccumulator()
	acc.AppendFinal(finalFrag("hello", "S1", domain.SpeakerRoleDoctor, 0, 1))
	acc.Reset()
	if got := acc.Utterances(); len(got) != 0 {
		t.Fatalf("expected empty after reset, got %d", len(got))
	}
	if acc.Transcript() != "" {
		t.Fatalf("expected empty transcript after reset")
	}
}

func TestUtteranceSnapshotIsCopy(t *testing.T) {
	t.Parallel()

	acc := newUtteranceAccumulator()
	acc.AppendFinal(finalFrag("first", "S1", domain.SpeakerRoleDoctor, 0, 1))
	snap := acc.Utterances()
	acc.AppendFinal(finalFrag("second", "S1", domain.SpeakerRoleDoctor, 1, 2))
	if snap[0].Text != "first" {
		t.Fatalf("snapshot mutated: %q", snap[0].Text)
	}
}
