// Package bootstrap assembles the runtime graph.
package bootstrap

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"medscribe/internal/audio"
	"medscribe/internal/config"
	"medscribe/internal/domain"
	"medscribe/internal/metrics"
	"medscribe/internal/ports"
	"medscribe/internal/providers/assistant"
	"medscribe/internal/providers/demo"
	"medscribe/internal/providers/openai"
	"medscribe/internal/usecase"
	"medscribe/internal/visual"
)

// Services is the assembled runtime graph.
type Services struct {
	Controller *usecase.SessionController
	Stats      *metrics.Metrics
	Config     config.Config
}

// Build wires all backend dependencies for the current runtime. surface is
// optional; without one the level visualizer is disabled. registry is
// optional and defaults to the global Prometheus registerer.
func Build(logger *zap.Logger, eventSink ports.EventSink, surface visual.Surface, registry prometheus.Registerer) (Services, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}

	stats := metrics.New(registry)

	capture := audio.NewFFMPEGCapture(audio.Config{
		Command:     cfg.Audio.RecorderCommand,
		InputFormat: cfg.Audio.InputFormat,
		Device:      cfg.Audio.InputDevice,
		SampleRate:  cfg.Audio.SampleRate,
		Channels:    cfg.Audio.Channels,
		BlockSize:   cfg.Audio.BlockSize,
	}, stats, logger.Named("audio"))

	live := assistant.NewProvider(assistant.Config{
		URL:         cfg.Assistant.URL,
		Language:    cfg.Assistant.Language,
		DialTimeout: cfg.Assistant.DialTimeout,
	}, logger.Named("assistant"), stats)

	demoProvider := demo.NewProvider(demo.Config{
		Pacing: cfg.Demo.Pacing,
	}, logger.Named("demo"))

	analyzer := openai.NewAnalyzer(openai.Config{
		APIKey:     cfg.Analysis.APIKey,
		BaseURL:    cfg.Analysis.BaseURL,
		Model:      cfg.Analysis.Model,
		MaxRetries: cfg.Analysis.MaxRetries,
	}, logger.Named("openai"))

	var viz usecase.Visualizer
	if surface != nil {
		viz = visual.New(visual.Config{}, surface)
	}

	controller := usecase.NewSessionController(
		capture,
		live,
		demoProvider,
		analyzer,
		eventSink,
		viz,
		logger.Named("session"),
		stats,
		usecase.Options{
			Diarization: &domain.DiarizationOverrides{
				SpeakerSensitivity:   cfg.Assistant.SpeakerSensitivity,
				PreferCurrentSpeaker: cfg.Assistant.PreferCurrentSpeaker,
			},
			QuietPeriod: cfg.Analysis.QuietPeriod,
		},
	)

	return Services{Controller: controller, Stats: stats, Config: cfg}, nil
}
