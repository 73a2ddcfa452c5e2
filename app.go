package main

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"medscribe/internal/bootstrap"
	"medscribe/internal/config"
	"medscribe/internal/domain"
	"medscribe/internal/usecase"
)

// App binds the session controller to the console. It implements
// ports.EventSink; backend events are rendered as log lines.
type App struct {
	logger *zap.Logger

	controller *usecase.SessionController
	cfg        config.Config
	bootErr    error
}

func NewApp(logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{logger: logger}
}

func (a *App) startup() {
	services, err := bootstrap.Build(a.logger, a, nil, nil)
	if err != nil {
		a.bootErr = err
		a.SessionError(domain.ErrorCodeStartup, err.Error())
		return
	}
	a.cfg = services.Config
	a.controller = services.Controller
}

func (a *App) shutdown() {
	if a.controller != nil {
		a.controller.Destroy()
	}
}

// Dispatch runs one console command against the controller.
func (a *App) Dispatch(ctx context.Context, line string) error {
	if err := a.requireReady(); err != nil {
		return err
	}

	command, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	switch strings.ToLower(command) {
	case "start":
		return a.controller.StartRecording(ctx)
	case "stop":
		a.controller.StopRecording(ctx)
	case "pause":
		a.controller.PauseRecording()
	case "resume":
		a.controller.ResumeRecording()
	case "demo":
		return a.controller.RunDemo(ctx)
	case "reset":
		a.controller.Reset(ctx)
	case "name":
		a.controller.SetPatientName(strings.TrimSpace(arg))
	case "summary":
		a.controller.GenerateSummary(ctx)
	case "status":
		status := a.controller.Status()
		a.logger.Info("status",
			zap.String("state", string(status.State)),
			zap.String("connection", string(status.Connection)),
			zap.Bool("capture_unavailable", status.CaptureUnavailable),
			zap.String("patient", status.PatientName),
			zap.Float64("elapsed_seconds", status.ElapsedSeconds))
	case "transcript":
		for _, u := range a.controller.Utterances() {
			fmt.Printf("[%s] %s\n", u.SpeakerRole, u.Text)
		}
	case "":
	default:
		return fmt.Errorf("unknown command %q", command)
	}
	return nil
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.controller == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

func (a *App) SessionStateChanged(state domain.SessionState) {
	a.logger.Info("session state", zap.String("state", string(state)))
}

func (a *App) ConnectionStatusChanged(status domain.ConnectionStatus) {
	a.logger.Info("connection", zap.String("status", string(status)))
}

func (a *App) PartialTranscript(fragment domain.TranscriptFragment) {
	fmt.Printf("\r… [%s] %s", fragment.SpeakerRole, fragment.Text)
}

func (a *App) FinalTranscript(fragment domain.TranscriptFragment) {
	fmt.Printf("\r[%s] %s\n", fragment.SpeakerRole, fragment.Text)
}

func (a *App) FormUpdated(form domain.MedicalForm) {
	a.logger.Info("form updated",
		zap.Strings("symptoms", form.Symptoms),
		zap.String("action", form.Action))
}

func (a *App) SuggestionsUpdated(suggestions domain.Suggestions) {
	a.logger.Info("suggestions updated",
		zap.Int("questions", len(suggestions.QuestionsToAsk)),
		zap.Int("diagnoses", len(suggestions.PotentialDiagnoses)),
		zap.Int("tests", len(suggestions.TestsToConsider)))
	for _, d := range suggestions.PotentialDiagnoses {
		fmt.Printf("  dx: %s (%s)\n", d.Text, d.Priority)
	}
}

func (a *App) SummaryUpdated(note domain.SOAPNote) {
	fmt.Printf("\nSOAP NOTE\nS: %s\nO: %s\nA: %s\nP: %s\n",
		note.Subjective, note.Objective, note.Assessment, note.Plan)
}

func (a *App) CodesUpdated(codes []domain.ICDCode) {
	for _, c := range codes {
		fmt.Printf("  icd: %s %s (%.0f%%)\n", c.Code, c.Description, c.Confidence*100)
	}
}

func (a *App) AnalysisProcessing(active bool) {
	a.logger.Debug("analysis processing", zap.Bool("active", active))
}

func (a *App) ReasoningStep(text string) {
	a.logger.Info("reasoning", zap.String("step", text))
}

func (a *App) SessionError(code domain.ErrorCode, detail string) {
	a.logger.Warn(errorMessage(code, detail),
		zap.String("code", string(code)),
		zap.String("detail", detail))
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeDevice:
		return "Microphone unavailable"
	case domain.ErrorCodeAudioStream:
		return "Audio streaming issue"
	case domain.ErrorCodeTransport:
		return "Transcription service error"
	case domain.ErrorCodeMalformed:
		return "Malformed service event"
	case domain.ErrorCodeAnalysis:
		return "Analysis failed"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}
