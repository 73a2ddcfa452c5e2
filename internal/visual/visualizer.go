// Package visual derives a bar-graph energy display from the capture
// session's frequency-domain tap. It is purely a consumer of analysis data
// and is best-effort: it must never block or fail the capture path.
package visual

import (
	"sync"
	"time"

	"medscribe/internal/ports"
)

// Surface is the drawing target. Bounds is queried every frame because the
// surface may not be laid out when the visualizer is constructed.
type Surface interface {
	Bounds() (width, height float64)
	DrawBars(bars []Bar)
}

// Bar is one capsule (rounded-end rectangle) in surface coordinates.
type Bar struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
	Radius float64
}

// Config controls bar geometry.
type Config struct {
	BarCount      int
	BarWidth      float64
	BarGap        float64
	MinBarHeight  float64
	MaxHeightFrac float64
	FrameInterval time.Duration
}

func (c *Config) applyDefaults() {
	if c.BarCount <= 0 {
		c.BarCount = 24
	}
	if c.BarWidth <= 0 {
		c.BarWidth = 4
	}
	if c.BarGap <= 0 {
		c.BarGap = 3
	}
	if c.MinBarHeight <= 0 {
		c.MinBarHeight = 4
	}
	if c.MaxHeightFrac <= 0 || c.MaxHeightFrac > 1 {
		c.MaxHeightFrac = 0.85
	}
	if c.FrameInterval <= 0 {
		c.FrameInterval = 33 * time.Millisecond
	}
}

// Visualizer renders per-frame energy bars from an analysis tap.
type Visualizer struct {
	cfg     Config
	surface Surface

	mu      sync.Mutex
	tap     ports.AnalysisTap
	stop    chan struct{}
	stopped chan struct{}
}

func New(cfg Config, surface Surface) *Visualizer {
	cfg.applyDefaults()
	return &Visualizer{cfg: cfg, surface: surface}
}

// Start begins the frame loop sampling tap. A nil tap is tolerated: idle
// bars are rendered until a tap is attached via a later Start.
func (v *Visualizer) Start(tap ports.AnalysisTap) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.stop != nil {
		v.tap = tap
		return
	}
	v.tap = tap
	v.stop = make(chan struct{})
	v.stopped = make(chan struct{})
	go v.loop(v.stop, v.stopped)
}

// Stop halts the frame loop and renders the idle state: minimum-height bars
// stay visible so the UI reads as responsive-but-silent, never blank.
func (v *Visualizer) Stop() {
	v.mu.Lock()
	stop := v.stop
	stopped := v.stopped
	v.stop = nil
	v.stopped = nil
	v.mu.Unlock()

	if stop != nil {
		close(stop)
		<-stopped
	}
	v.surface.DrawBars(v.RenderFrame(nil))
}

func (v *Visualizer) loop(stop <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)
	ticker := time.NewTicker(v.cfg.FrameInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			v.mu.Lock()
			tap := v.tap
			v.mu.Unlock()
			var bins []float64
			if tap != nil {
				bins = tap.FrequencyData()
			}
			v.surface.DrawBars(v.RenderFrame(bins))
		}
	}
}

// RenderFrame maps frequency bins to bar geometry. With nil or empty bins
// (no tap, no audio yet) every bar sits at the minimum height.
func (v *Visualizer) RenderFrame(bins []float64) []Bar {
	width, height := v.surface.Bounds()
	cfg := v.cfg

	total := float64(cfg.BarCount)*cfg.BarWidth + float64(cfg.BarCount-1)*cfg.BarGap
	left := (width - total) / 2
	maxHeight := height * cfg.MaxHeightFrac
	if maxHeight < cfg.MinBarHeight {
		maxHeight = cfg.MinBarHeight
	}

	bars := make([]Bar, cfg.BarCount)
	for i := range bars {
		level := groupAverage(bins, i, cfg.BarCount)
		h := cfg.MinBarHeight + level*(maxHeight-cfg.MinBarHeight)
		x := left + float64(i)*(cfg.BarWidth+cfg.BarGap)
		bars[i] = Bar{
			X:      x,
			Y:      (height - h) / 2,
			Width:  cfg.BarWidth,
			Height: h,
			Radius: cfg.BarWidth / 2,
		}
	}
	return bars
}

// groupAverage partitions bins into barCount contiguous groups and averages
// group i, scaled into [0, 1].
func groupAverage(bins []float64, i, barCount int) float64 {
	if len(bins) == 0 {
		return 0
	}
	group := len(bins) / barCount
	if group == 0 {
		group = 1
	}
	start := i * group
	if start >= len(bins) {
		return 0
	}
	end := start + group
	if end > len(bins) {
		end = len(bins)
	}
	var sum float64
	for _, v := range bins[start:end] {
		sum += v
	}
	avg := sum / float64(end-start)
	// Bins are normalized magnitudes; scale so speech-level energy reaches
	// full deflection.
	level := avg * 40
	if level > 1 {
		level = 1
	}
	return level
}
