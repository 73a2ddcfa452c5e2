package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"medscribe/internal/domain"
)

func newTestDispatcher(t *testing.T, analyzer *fakeAnalyzer, events *fakeEventSink, quiet time.Duration) *analysisDispatcher {
	t.Helper()
	d := newAnalysisDispatcher(analyzer, events, nil, nil, quiet)
	d.Activate(context.Background())
	return d
}

func TestDispatcherCollapsesBurstsIntoOneCall(t *testing.T) {
	t.Parallel()

	analyzer := &fakeAnalyzer{}
	events := &fakeEventSink{}
	d := newTestDispatcher(t, analyzer, events, 30*time.Millisecond)

	transcript := "I feel dizzy"
	for i := 0; i < 5; i++ {
		d.NoteFinal(func() string { return transcript }, false)
		time.Sleep(2 * time.Millisecond)
	}

	waitFor(t, func() bool { return analyzer.formCalls() > 0 })
	d.Wait()

	if got := analyzer.formCalls(); got != 1 {
		t.Fatalf("burst produced %d extraction calls, want 1", got)
	}
	if got := analyzer.suggestCalls(); got != 1 {
		t.Fatalf("burst produced %d suggestion calls, want 1", got)
	}
}

func TestDispatcherSeesTranscriptAtFireTime(t *testing.T) {
	t.Parallel()

	analyzer := &fakeAnalyzer{}
	events := &fakeEventSink{}
	d := newTestDispatcher(t, analyzer, events, 30*time.Millisecond)

	transcript := "first"
	d.NoteFinal(func() string { return transcript }, false)
	transcript = "first second"
	d.NoteFinal(func() string { return transcript }, false)

	waitFor(t, func() bool { return analyzer.formCalls() > 0 })
	d.Wait()

	got := analyzer.snapshotTranscripts()
	if len(got) != 1 || got[0] != "first second" {
		t.Fatalf("analysis saw %v, want the transcript as of fire time", got)
	}
}

func TestDispatcherInvalidateCancelsPending(t *testing.T) {
	t.Parallel()

	analyzer := &fakeAnalyzer{}
	events := &fakeEventSink{}
	d := newTestDispatcher(t, analyzer, events, 30*time.Millisecond)

	d.NoteFinal(func() string { return "about to be reset" }, false)
	d.Invalidate()

	time.Sleep(80 * time.Millisecond)
	d.Wait()

	if got := analyzer.formCalls(); got != 0 {
		t.Fatalf("invalidated token still ran %d times", got)
	}
	if forms := events.snapshotForms(); len(forms) != 0 {
		t.Fatalf("stale form reached the sink: %+v", forms)
	}
}

func TestDispatcherSequentialOrder(t *testing.T) {
	t.Parallel()

	analyzer := &fakeAnalyzer{
		form: domain.MedicalForm{Symptoms: []string{"dizziness"}},
	}
	events := &fakeEventSink{}
	d := newTestDispatcher(t, analyzer, events, 0)

	d.Flush(context.Background(), "I feel dizzy")

	if analyzer.formCalls() != 1 || analyzer.suggestCalls() != 1 {
		t.Fatalf("flush calls: extract=%d suggest=%d", analyzer.formCalls(), analyzer.suggestCalls())
	}
	// Sequential mode feeds the fresh form into the suggestion call.
	forms := analyzer.snapshotSuggestForms()
	if len(forms) != 1 || forms[0] == nil || len(forms[0].Symptoms) != 1 {
		t.Fatalf("suggestion call did not receive the extracted form: %+v", forms)
	}
	if got := events.snapshotForms(); len(got) != 1 {
		t.Fatalf("expected one form update, got %d", len(got))
	}
	if got := events.snapshotSuggestions(); len(got) != 1 {
		t.Fatalf("expected one suggestions update, got %d", len(got))
	}
	// Processing toggled on and back off.
	proc := events.processingSnapshot()
	if len(proc) != 2 || proc[0] != true || proc[1] != false {
		t.Fatalf("unexpected processing sequence: %v", proc)
	}
}

func TestDispatcherConcurrentModePassesNilForm(t *testing.T) {
	t.Parallel()

	analyzer := &fakeAnalyzer{}
	events := &fakeEventSink{}
	d := newTestDispatcher(t, analyzer, events, 10*time.Millisecond)

	d.NoteFinal(func() string { return "demo transcript" }, true)
	waitFor(t, func() bool { return analyzer.formCalls() > 0 && analyzer.suggestCalls() > 0 })
	d.Wait()

	forms := analyzer.snapshotSuggestForms()
	if len(forms) != 1 || forms[0] != nil {
		t.Fatalf("concurrent suggestion call received a form: %+v", forms)
	}
}

func TestDispatcherExtractionFailureStopsPass(t *testing.T) {
	t.Parallel()

	analyzer := &fakeAnalyzer{formErr: errors.New("rate limited")}
	events := &fakeEventSink{}
	d := newTestDispatcher(t, analyzer, events, 0)

	d.Flush(context.Background(), "transcript")

	if analyzer.suggestCalls() != 0 {
		t.Fatalf("suggestions requested after extraction failure")
	}
	errs := events.snapshotErrors()
	if len(errs) != 1 || errs[0].code != domain.ErrorCodeAnalysis {
		t.Fatalf("expected one analysis error, got %+v", errs)
	}
	if forms := events.snapshotForms(); len(forms) != 0 {
		t.Fatalf("form updated despite failure")
	}
}

func TestDispatcherEmptyTranscriptSkipsAnalysis(t *testing.T) {
	t.Parallel()

	analyzer := &fakeAnalyzer{}
	events := &fakeEventSink{}
	d := newTestDispatcher(t, analyzer, events, 0)

	d.Flush(context.Background(), "   ")
	if analyzer.formCalls() != 0 {
		t.Fatalf("analysis ran on an empty transcript")
	}
}

func TestDispatcherSummarizeHappyPath(t *testing.T) {
	t.Parallel()

	analyzer := &fakeAnalyzer{
		note:  domain.SOAPNote{Assessment: "vertigo"},
		codes: []domain.ICDCode{{Code: "R42"}},
	}
	events := &fakeEventSink{}
	d := newTestDispatcher(t, analyzer, events, 0)

	d.Summarize(context.Background(), "I feel dizzy")

	if got := events.snapshotSummaries(); len(got) != 1 || got[0].Assessment != "vertigo" {
		t.Fatalf("unexpected summaries: %+v", got)
	}
	if got := events.snapshotCodes(); len(got) != 1 || got[0][0].Code != "R42" {
		t.Fatalf("unexpected codes: %+v", got)
	}
	if got := events.reasoningSnapshot(); len(got) != 2 {
		t.Fatalf("expected two reasoning steps, got %v", got)
	}
}

func TestDispatcherSummarizeEmptyTranscript(t *testing.T) {
	t.Parallel()

	analyzer := &fakeAnalyzer{}
	events := &fakeEventSink{}
	d := newTestDispatcher(t, analyzer, events, 0)

	d.Summarize(context.Background(), "")

	errs := events.snapshotErrors()
	if len(errs) != 1 || errs[0].code != domain.ErrorCodeAnalysis {
		t.Fatalf("expected analysis error, got %+v", errs)
	}
	if analyzer.summaries != 0 {
		t.Fatalf("summarize called without a transcript")
	}
}
