package usecase

import (
	"sync/atomic"

	"go.uber.org/zap"

	"medscribe/internal/domain"
	"medscribe/internal/metrics"
	"medscribe/internal/ports"
)

// audioPump forwards captured blocks to the transcription transport.
// While paused, capture keeps running but blocks are suppressed, avoiding
// device re-acquisition latency on resume. A send failure detaches the
// pump so a dead transport produces one error, not one per block.
type audioPump struct {
	stream ports.TranscriptStream
	events ports.EventSink
	logger *zap.Logger
	stats  *metrics.Metrics

	paused   atomic.Bool
	detached atomic.Bool
}

func newAudioPump(stream ports.TranscriptStream, events ports.EventSink, logger *zap.Logger, stats *metrics.Metrics) *audioPump {
	return &audioPump{stream: stream, events: events, logger: logger, stats: stats}
}

// HandleBlock is the capture session's onBlock callback. Blocks arrive in
// strict capture order and are forwarded in the same order.
func (p *audioPump) HandleBlock(block domain.AudioBlock) {
	if p.paused.Load() || p.detached.Load() {
		if p.stats != nil {
			p.stats.BlocksSuppressed.Inc()
		}
		return
	}

	pcm := block.PCM()
	if err := p.stream.SendAudio(pcm); err != nil {
		if p.detached.CompareAndSwap(false, true) {
			p.events.SessionError(domain.ErrorCodeAudioStream, "failed to stream audio: "+err.Error())
			p.logger.Warn("audio pump detached", zap.Error(err))
		}
		return
	}
	if p.stats != nil {
		p.stats.BlocksForwarded.Inc()
		p.stats.BytesStreamed.Add(float64(len(pcm)))
	}
}

func (p *audioPump) SetPaused(paused bool) {
	p.paused.Store(paused)
}

// Detach permanently stops forwarding; used on session teardown so late
// blocks from the capture channel cannot hit a closed stream.
func (p *audioPump) Detach() {
	p.detached.Store(true)
}
