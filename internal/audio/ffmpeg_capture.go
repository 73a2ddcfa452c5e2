package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"medscribe/internal/domain"
	"medscribe/internal/metrics"
	"medscribe/internal/ports"
)

const captureFrameSamples = 512

// Config describes the ffmpeg capture pipeline.
type Config struct {
	Command     string
	InputFormat string
	Device      string
	SampleRate  int
	Channels    int
	BlockSize   int
}

// FFMPEGCapture acquires the microphone through an ffmpeg subprocess
// producing raw float32 samples, encodes them into fixed-length PCM blocks
// and delivers the blocks in capture order through a lossless FIFO queue.
//
// The read loop is the real-time side of the pipeline: it only feeds the
// spectrum tap and the encoder; block delivery to the consumer happens on a
// separate dispatch goroutine. The queue between the two grows while the
// consumer is stalled, so no block is lost while capture is active.
type FFMPEGCapture struct {
	cfg    Config
	logger *zap.Logger
	stats  *metrics.Metrics

	tap     *SpectrumTap
	onBlock atomic.Value // func(domain.AudioBlock)

	emitting     atomic.Bool
	resetPending atomic.Bool

	mu          sync.Mutex
	initialized bool
	process     *os.Process
	stdout      io.ReadCloser
	stderr      *bytes.Buffer
	waitErr     <-chan error
	queue       *blockQueue
	readDone    chan struct{}
	destroyed   bool
}

func NewFFMPEGCapture(cfg Config, stats *metrics.Metrics, logger *zap.Logger) *FFMPEGCapture {
	if cfg.Command == "" {
		cfg.Command = "ffmpeg"
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = "pulse"
	}
	if cfg.Device == "" {
		cfg.Device = "default"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = defaultBlockSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FFMPEGCapture{cfg: cfg, logger: logger, stats: stats, tap: NewSpectrumTap()}
}

// Initialize acquires the microphone. Device failures are surfaced to the
// caller and never retried internally; a later Initialize call may retry.
func (c *FFMPEGCapture) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.destroyed {
		return domain.ErrNotInitialized
	}
	if c.initialized {
		return nil
	}

	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", c.cfg.InputFormat,
		"-i", c.cfg.Device,
		"-ac", strconv.Itoa(c.cfg.Channels),
		"-ar", strconv.Itoa(c.cfg.SampleRate),
		"-af", "aresample=async=1,highpass=f=60,afftdn=nr=12,loudnorm=I=-20",
		"-f", "f32le",
		"-",
	}

	cmd := exec.CommandContext(ctx, c.cfg.Command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create capture stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: failed to start %s: %v", domain.ErrDeviceUnavailable, c.cfg.Command, err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	// ffmpeg fails fast when the source is missing or access is denied.
	select {
	case err := <-waitErr:
		detail := strings.TrimSpace(stderr.String())
		if err == nil {
			err = errors.New("capture process exited before producing audio")
		}
		return fmt.Errorf("%w: %v: %s", classifyDeviceError(detail), err, detail)
	case <-time.After(250 * time.Millisecond):
	}

	c.initialized = true
	c.process = cmd.Process
	c.stdout = stdout
	c.stderr = &stderr
	c.waitErr = waitErr
	c.queue = newBlockQueue()
	c.readDone = make(chan struct{})

	go c.readLoop(c.stdout, c.queue, c.readDone)
	go c.dispatchLoop(c.queue)

	c.logger.Info("microphone acquired",
		zap.String("device", c.cfg.Device),
		zap.Int("sample_rate", c.cfg.SampleRate),
		zap.Int("block_size", c.cfg.BlockSize),
	)
	return nil
}

// Start begins delivering encoded blocks to onBlock in capture order.
func (c *FFMPEGCapture) Start(onBlock func(domain.AudioBlock)) error {
	c.mu.Lock()
	initialized := c.initialized
	c.mu.Unlock()
	if !initialized {
		return domain.ErrNotInitialized
	}
	if onBlock != nil {
		c.onBlock.Store(onBlock)
	}
	c.resetPending.Store(true)
	c.emitting.Store(true)
	return nil
}

// Stop disconnects the encoder from the live audio path. The in-flight
// partial buffer is discarded, not flushed. The tap keeps running.
func (c *FFMPEGCapture) Stop() error {
	c.emitting.Store(false)
	c.resetPending.Store(true)
	return nil
}

// Tap returns the frequency-domain analysis handle, valid in any state.
func (c *FFMPEGCapture) Tap() ports.AnalysisTap {
	return c.tap
}

// Destroy releases the microphone and closes the pipeline. Idempotent and
// safe to call from any state, including before Initialize.
func (c *FFMPEGCapture) Destroy() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.destroyed {
		return nil
	}
	c.destroyed = true
	c.emitting.Store(false)

	if !c.initialized {
		return nil
	}
	c.initialized = false

	if c.process != nil {
		_ = c.process.Signal(os.Interrupt)
	}
	select {
	case <-c.waitErr:
	case <-time.After(1200 * time.Millisecond):
		if c.process != nil {
			_ = c.process.Kill()
		}
		<-c.waitErr
	}
	if err := c.stdout.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		c.logger.Warn("capture stdout close", zap.Error(err))
	}
	<-c.readDone
	c.queue.close()
	return nil
}

// readLoop consumes float32 frames from ffmpeg, feeding the tap always and
// the encoder only while emitting. It never blocks on the consumer.
func (c *FFMPEGCapture) readLoop(stdout io.Reader, queue *blockQueue, done chan<- struct{}) {
	defer close(done)

	encoder := NewSampleEncoder(c.cfg.BlockSize, func(block domain.AudioBlock) {
		queue.push(block)
		if c.stats != nil {
			c.stats.BlocksEncoded.Inc()
		}
	})

	raw := make([]byte, captureFrameSamples*4)
	frame := make([]float32, 0, captureFrameSamples)
	pending := make([]byte, 0, 4)

	for {
		n, err := stdout.Read(raw)
		if n > 0 {
			data := raw[:n]
			if len(pending) > 0 {
				data = append(pending, data...)
			}
			frame = frame[:0]
			complete := len(data) / 4 * 4
			for i := 0; i < complete; i += 4 {
				bits := binary.LittleEndian.Uint32(data[i:])
				frame = append(frame, math.Float32frombits(bits))
			}
			pending = append(pending[:0], data[complete:]...)

			c.tap.Push(frame)

			if c.resetPending.Swap(false) {
				encoder.Reset()
			}
			if c.emitting.Load() {
				encoder.Push(frame)
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				c.logger.Warn("capture read ended", zap.Error(err))
			}
			return
		}
	}
}

func (c *FFMPEGCapture) dispatchLoop(queue *blockQueue) {
	for {
		block, ok := queue.pop()
		if !ok {
			return
		}
		if c.stats != nil {
			c.stats.CaptureBacklog.Set(float64(queue.depth()))
		}
		if fn, ok := c.onBlock.Load().(func(domain.AudioBlock)); ok && fn != nil {
			fn(block)
		}
	}
}

// blockQueue is the FIFO bridge between the capture read loop and the
// dispatch goroutine. push never blocks and never discards; the queue
// absorbs consumer backpressure so every encoded block is delivered in
// capture order while the session is active.
type blockQueue struct {
	mu     sync.Mutex
	queue  []domain.AudioBlock
	wake   chan struct{}
	closed bool
}

func newBlockQueue() *blockQueue {
	return &blockQueue{wake: make(chan struct{}, 1)}
}

func (q *blockQueue) push(block domain.AudioBlock) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.queue = append(q.queue, block)
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// pop blocks until a block is available. It returns false once the queue
// is closed and drained.
func (q *blockQueue) pop() (domain.AudioBlock, bool) {
	for {
		q.mu.Lock()
		if len(q.queue) > 0 {
			block := q.queue[0]
			q.queue[0] = nil
			q.queue = q.queue[1:]
			if len(q.queue) == 0 {
				q.queue = nil
			}
			q.mu.Unlock()
			return block, true
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return nil, false
		}
		<-q.wake
	}
}

func (q *blockQueue) depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queue)
}

func (q *blockQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func classifyDeviceError(stderr string) error {
	lower := strings.ToLower(stderr)
	if strings.Contains(lower, "permission denied") || strings.Contains(lower, "access denied") {
		return domain.ErrPermissionDenied
	}
	return domain.ErrDeviceUnavailable
}
