package usecase

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/bep/debounce"
	"go.uber.org/zap"

	"medscribe/internal/domain"
	"medscribe/internal/metrics"
	"medscribe/internal/ports"
)

const defaultQuietPeriod = 1500 * time.Millisecond

// analysisDispatcher debounces downstream analysis calls. Every committed
// final fragment reschedules a trailing-edge form-extraction token; at most
// one token is live per kind. Results from a superseded generation are
// discarded so a reset can never be overwritten by a stale response.
type analysisDispatcher struct {
	analyzer ports.Analyzer
	events   ports.EventSink
	logger   *zap.Logger
	stats    *metrics.Metrics

	debounced func(func())

	mu         sync.Mutex
	generation uint64
	ctx        context.Context
	pending    bool
	lastForm   *domain.MedicalForm
	inflight   sync.WaitGroup
}

func newAnalysisDispatcher(
	analyzer ports.Analyzer,
	events ports.EventSink,
	logger *zap.Logger,
	stats *metrics.Metrics,
	quietPeriod time.Duration,
) *analysisDispatcher {
	if quietPeriod <= 0 {
		quietPeriod = defaultQuietPeriod
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &analysisDispatcher{
		analyzer:  analyzer,
		events:    events,
		logger:    logger,
		stats:     stats,
		debounced: debounce.New(quietPeriod),
		ctx:       context.Background(),
	}
}

// Activate binds the dispatcher to a session context and invalidates any
// tokens from the previous session.
func (d *analysisDispatcher) Activate(ctx context.Context) {
	d.mu.Lock()
	d.generation++
	d.ctx = ctx
	d.pending = false
	d.lastForm = nil
	d.mu.Unlock()
}

// Invalidate cancels outstanding tokens; responses already in flight are
// discarded when they land.
func (d *analysisDispatcher) Invalidate() {
	d.mu.Lock()
	d.generation++
	d.pending = false
	d.lastForm = nil
	d.mu.Unlock()
}

// NoteFinal schedules (or reschedules) a debounced analysis pass over the
// transcript as it will stand when the quiet period elapses. concurrent
// selects demo pacing: extraction and suggestions issued together rather
// than sequentially.
func (d *analysisDispatcher) NoteFinal(transcript func() string, concurrent bool) {
	d.mu.Lock()
	gen := d.generation
	if d.pending && d.stats != nil {
		d.stats.DebounceReplaced.Inc()
	}
	d.pending = true
	d.mu.Unlock()

	d.debounced(func() {
		d.mu.Lock()
		if gen != d.generation || !d.pending {
			d.mu.Unlock()
			return
		}
		d.pending = false
		ctx := d.ctx
		d.mu.Unlock()

		d.inflight.Add(1)
		defer d.inflight.Done()
		d.run(ctx, gen, transcript(), concurrent)
	})
}

// Flush bypasses the debounce: it invalidates any pending token and runs a
// final synchronous analysis pass, so no trailing speech is lost to
// debounce latency. Called when recording stops.
func (d *analysisDispatcher) Flush(ctx context.Context, transcript string) {
	d.mu.Lock()
	d.generation++
	gen := d.generation
	d.pending = false
	d.mu.Unlock()

	d.run(ctx, gen, transcript, false)
}

// Summarize produces a SOAP note and ICD codes for the full transcript.
func (d *analysisDispatcher) Summarize(ctx context.Context, transcript string) {
	if strings.TrimSpace(transcript) == "" {
		d.events.SessionError(domain.ErrorCodeAnalysis, "no transcript available for summary")
		return
	}

	d.mu.Lock()
	gen := d.generation
	form := d.lastForm
	d.mu.Unlock()

	d.events.AnalysisProcessing(true)
	defer d.events.AnalysisProcessing(false)

	d.events.ReasoningStep("Structuring the clinical encounter...")
	note, err := d.analyzer.Summarize(ctx, transcript, form)
	d.countCall("summary", err)
	if err != nil {
		d.events.SessionError(domain.ErrorCodeAnalysis, err.Error())
		return
	}
	if d.stale(gen) {
		return
	}
	d.events.SummaryUpdated(note)

	d.events.ReasoningStep("Mapping to ICD-10 diagnostic codes...")
	codes, err := d.analyzer.SuggestCodes(ctx, transcript, note)
	d.countCall("codes", err)
	if err != nil {
		d.events.SessionError(domain.ErrorCodeAnalysis, err.Error())
		return
	}
	if d.stale(gen) {
		return
	}
	d.events.CodesUpdated(codes)
}

// Wait blocks until in-flight debounced work finishes. Test hook.
func (d *analysisDispatcher) Wait() {
	d.inflight.Wait()
}

func (d *analysisDispatcher) run(ctx context.Context, gen uint64, transcript string, concurrent bool) {
	if strings.TrimSpace(transcript) == "" {
		return
	}

	d.events.AnalysisProcessing(true)
	defer d.events.AnalysisProcessing(false)
	d.events.ReasoningStep("Analyzing transcript for medical entities...")

	if concurrent {
		d.runConcurrent(ctx, gen, transcript)
		return
	}

	// Live mode: extraction completes before suggestions are requested to
	// bound concurrent load on the collaborator.
	form, err := d.analyzer.ExtractForm(ctx, transcript)
	d.countCall(string(domain.AnalysisFormExtraction), err)
	if err != nil {
		// Safe to retry on the next debounce cycle.
		d.events.SessionError(domain.ErrorCodeAnalysis, err.Error())
		return
	}
	if d.stale(gen) {
		d.logger.Debug("discarding stale form extraction result")
		return
	}
	d.setForm(form)
	d.events.FormUpdated(form)

	suggestions, err := d.analyzer.Suggest(ctx, transcript, &form)
	d.countCall(string(domain.AnalysisSuggestions), err)
	if err != nil {
		d.events.SessionError(domain.ErrorCodeAnalysis, err.Error())
		return
	}
	if d.stale(gen) {
		return
	}
	d.events.SuggestionsUpdated(suggestions)
}

// runConcurrent issues both calls at once; the scripted demo transcript is
// already paced, so bounding collaborator load is not a concern there.
func (d *analysisDispatcher) runConcurrent(ctx context.Context, gen uint64, transcript string) {
	type formResult struct {
		form domain.MedicalForm
		err  error
	}
	type suggestionsResult struct {
		suggestions domain.Suggestions
		err         error
	}

	formCh := make(chan formResult, 1)
	suggCh := make(chan suggestionsResult, 1)
	go func() {
		form, err := d.analyzer.ExtractForm(ctx, transcript)
		formCh <- formResult{form: form, err: err}
	}()
	go func() {
		suggestions, err := d.analyzer.Suggest(ctx, transcript, nil)
		suggCh <- suggestionsResult{suggestions: suggestions, err: err}
	}()

	fr := <-formCh
	sr := <-suggCh
	d.countCall(string(domain.AnalysisFormExtraction), fr.err)
	d.countCall(string(domain.AnalysisSuggestions), sr.err)

	if d.stale(gen) {
		return
	}
	if fr.err != nil {
		d.events.SessionError(domain.ErrorCodeAnalysis, fr.err.Error())
	} else {
		d.setForm(fr.form)
		d.events.FormUpdated(fr.form)
	}
	if sr.err != nil {
		d.events.SessionError(domain.ErrorCodeAnalysis, sr.err.Error())
	} else {
		d.events.SuggestionsUpdated(sr.suggestions)
	}
}

func (d *analysisDispatcher) setForm(form domain.MedicalForm) {
	d.mu.Lock()
	d.lastForm = &form
	d.mu.Unlock()
}

func (d *analysisDispatcher) stale(gen uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return gen != d.generation
}

func (d *analysisDispatcher) countCall(kind string, err error) {
	if d.stats == nil {
		return
	}
	d.stats.AnalysisCalls.WithLabelValues(kind).Inc()
	if err != nil {
		d.stats.AnalysisFailures.WithLabelValues(kind).Inc()
	}
}
