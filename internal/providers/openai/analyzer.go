// Package openai implements the analysis collaborator over the OpenAI
// chat completions API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"medscribe/internal/domain"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o"
)

const extractionPrompt = `You are a medical transcription assistant. Extract structured medical form data from clinical conversations.

Return a JSON object with EXACTLY these field names (use snake_case):

{
  "physical_examination": "string or null - physical exam findings",
  "other_details": "string or null - additional clinical notes",
  "symptoms": ["array of strings"] or null,
  "action": "Follow-up|Referral|Admit|Discharge|Observation" or null,
  "review_after": "1 week|2 weeks|1 month|3 months|6 months" or null,
  "discharge_recommended": true/false or null,
  "vitals": {
    "blood_pressure": "string like 120/80" or null,
    "pulse": integer or null,
    "temperature": float or null,
    "respiratory_rate": integer or null,
    "spo2": integer or null,
    "rhythm": "string" or null
  } or null
}

Rules:
- Use EXACTLY the field names shown above (snake_case)
- Only extract EXPLICITLY mentioned information
- Return null for unmentioned fields
- For Arabic, translate terms to English`

const suggestionsPrompt = `You are a clinical decision support assistant. Analyze the transcript and return a JSON object with these fields:

{
  "questions_to_ask": [
    {"id": "q1", "text": "question to ask patient", "priority": "normal|high", "rationale": "why ask this"}
  ],
  "potential_diagnoses": [
    {"id": "d1", "text": "possible diagnosis", "priority": "normal|high", "rationale": "clinical reasoning"}
  ],
  "tests_to_consider": [
    {"id": "t1", "text": "test name", "priority": "normal|high", "rationale": "why this test"}
  ],
  "medications_to_consider": [
    {"id": "m1", "text": "medication suggestion", "priority": "normal", "rationale": "indication"}
  ],
  "referrals": [
    {"id": "r1", "text": "specialty referral", "priority": "normal", "rationale": "reason for referral"}
  ]
}

Guidelines:
- Generate 0-4 items per category based on clinical relevance
- Prioritize clinically actionable suggestions
- Base all suggestions on explicitly mentioned symptoms and findings
- If the transcript is minimal or unclear, return empty arrays
- For Arabic transcripts, provide suggestions in English`

const soapPrompt = `You are a medical documentation assistant. Generate a SOAP note from the clinical conversation.

Return a JSON object with EXACTLY these fields:
{
  "subjective": "Patient's reported symptoms, medical history, and chief complaint. Quote patient's own words when possible.",
  "objective": "Physical examination findings, vital signs, and observable clinical data.",
  "assessment": "Clinical assessment including working diagnosis and differential diagnoses.",
  "plan": "Treatment plan, medications, tests ordered, follow-up instructions, and patient education."
}

Guidelines:
- Use professional medical terminology
- Be concise but comprehensive
- Only include information explicitly mentioned in the transcript
- If a section has no relevant information, use "Not documented" or similar
- Translate any Arabic terms to English`

const icdPrompt = `You are a medical coding assistant. Based on the clinical transcript and SOAP note, suggest appropriate ICD-10 diagnosis codes.

Return a JSON object:
{
  "codes": [
    {"code": "I10", "description": "Essential (primary) hypertension", "confidence": 0.9},
    {"code": "E11.9", "description": "Type 2 diabetes mellitus without complications", "confidence": 0.85}
  ]
}

Guidelines:
- Only suggest codes for conditions explicitly mentioned or clearly implied
- Include confidence score (0.5-1.0) based on how clearly the condition is documented
- Order by relevance (primary diagnosis first)
- Limit to 3-5 most relevant codes
- Use current ICD-10-CM codes`

// Config controls the chat completions client.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	MaxRetries uint64
}

// Analyzer implements ports.Analyzer against OpenAI.
type Analyzer struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

func NewAnalyzer(cfg Config, logger *zap.Logger) *Analyzer {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 2
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

func (a *Analyzer) ExtractForm(ctx context.Context, transcript string) (domain.MedicalForm, error) {
	user := "Extract medical form data from this clinical transcript:\n\n" + transcript
	var form domain.MedicalForm
	if err := a.complete(ctx, extractionPrompt, user, &form); err != nil {
		return domain.MedicalForm{}, fmt.Errorf("extract form: %w", err)
	}
	if form.Vitals != nil && form.Vitals.BloodPressure != "" {
		form.Vitals.BloodPressure = normalizeBloodPressure(form.Vitals.BloodPressure)
	}
	return form, nil
}

func (a *Analyzer) Suggest(ctx context.Context, transcript string, form *domain.MedicalForm) (domain.Suggestions, error) {
	var b strings.Builder
	b.WriteString("Analyze this clinical encounter and generate suggestions:\n\nTranscript:\n")
	b.WriteString(transcript)
	if form != nil {
		b.WriteString("\n\nExtracted findings so far:\n")
		b.WriteString(describeForm(form))
	}

	var suggestions domain.Suggestions
	if err := a.complete(ctx, suggestionsPrompt, b.String(), &suggestions); err != nil {
		return domain.Suggestions{}, fmt.Errorf("generate suggestions: %w", err)
	}
	fillSuggestionIDs(&suggestions)
	return suggestions, nil
}

func (a *Analyzer) Summarize(ctx context.Context, transcript string, form *domain.MedicalForm) (domain.SOAPNote, error) {
	var b strings.Builder
	b.WriteString("Generate a SOAP note from this clinical encounter:\n\nTranscript:\n")
	b.WriteString(transcript)
	if form != nil {
		b.WriteString("\n\nExtracted findings:\n")
		b.WriteString(describeForm(form))
	}

	var note domain.SOAPNote
	if err := a.complete(ctx, soapPrompt, b.String(), &note); err != nil {
		return domain.SOAPNote{}, fmt.Errorf("generate soap note: %w", err)
	}
	return note, nil
}

func (a *Analyzer) SuggestCodes(ctx context.Context, transcript string, note domain.SOAPNote) ([]domain.ICDCode, error) {
	var b strings.Builder
	b.WriteString("Suggest ICD-10 codes for this clinical encounter:\n\nTranscript:\n")
	b.WriteString(transcript)
	b.WriteString("\n\nSOAP note:\nAssessment: ")
	b.WriteString(note.Assessment)
	b.WriteString("\nPlan: ")
	b.WriteString(note.Plan)

	var payload struct {
		Codes []domain.ICDCode `json:"codes"`
	}
	if err := a.complete(ctx, icdPrompt, b.String(), &payload); err != nil {
		return nil, fmt.Errorf("suggest icd codes: %w", err)
	}
	return payload.Codes, nil
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat *respFormat   `json:"response_format,omitempty"`
	Temperature    float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type respFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// complete issues one JSON-mode chat completion and decodes the reply into
// out. Transient failures are retried with exponential backoff.
func (a *Analyzer) complete(ctx context.Context, system, user string, out any) error {
	if strings.TrimSpace(a.cfg.APIKey) == "" {
		return errors.New("OPENAI_API_KEY is not configured")
	}

	body, err := json.Marshal(chatRequest{
		Model: a.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		ResponseFormat: &respFormat{Type: "json_object"},
		Temperature:    0.2,
	})
	if err != nil {
		return err
	}

	var content string
	attempt := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			a.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)

		resp, err := a.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return err
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return fmt.Errorf("openai returned status %s", resp.Status)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("openai returned status %s: %s", resp.Status, truncate(payload, 200)))
		}

		var decoded chatResponse
		if err := json.Unmarshal(payload, &decoded); err != nil {
			return backoff.Permanent(fmt.Errorf("decode completion: %w", err))
		}
		if decoded.Error != nil {
			return backoff.Permanent(errors.New(decoded.Error.Message))
		}
		if len(decoded.Choices) == 0 {
			return backoff.Permanent(errors.New("completion returned no choices"))
		}
		content = decoded.Choices[0].Message.Content
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), a.cfg.MaxRetries),
		ctx,
	)
	notify := func(err error, wait time.Duration) {
		a.logger.Warn("openai call failed, retrying",
			zap.Error(err),
			zap.Duration("backoff", wait))
	}
	if err := backoff.RetryNotify(attempt, policy, notify); err != nil {
		return err
	}

	if err := json.Unmarshal([]byte(content), out); err != nil {
		return fmt.Errorf("decode model output: %w", err)
	}
	return nil
}

var bpOverPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\s*over\s*`),
	regexp.MustCompile(`\s*על\s*`),
	regexp.MustCompile(`\s*على\s*`),
	regexp.MustCompile(`\s*/\s*`),
}

// normalizeBloodPressure rewrites spoken readings like "145 over 95" (or
// the Arabic and Hebrew equivalents) into the charted "145/95" form.
func normalizeBloodPressure(value string) string {
	normalized := value
	for _, re := range bpOverPatterns {
		normalized = re.ReplaceAllString(normalized, "/")
	}
	return strings.TrimSpace(normalized)
}

// fillSuggestionIDs assigns IDs the model omitted so the UI can track
// suggestion identity across updates.
func fillSuggestionIDs(s *domain.Suggestions) {
	for _, group := range [][]domain.Suggestion{
		s.QuestionsToAsk,
		s.PotentialDiagnoses,
		s.TestsToConsider,
		s.MedicationsToConsider,
		s.Referrals,
	} {
		for i := range group {
			if group[i].ID == "" {
				group[i].ID = uuid.NewString()
			}
			if group[i].Priority == "" {
				group[i].Priority = "normal"
			}
		}
	}
}

func describeForm(form *domain.MedicalForm) string {
	parts := make([]string, 0, 4)
	if len(form.Symptoms) > 0 {
		parts = append(parts, "Symptoms: "+strings.Join(form.Symptoms, ", "))
	}
	if form.Vitals != nil {
		vitals := make([]string, 0, 3)
		if form.Vitals.BloodPressure != "" {
			vitals = append(vitals, "BP: "+form.Vitals.BloodPressure)
		}
		if form.Vitals.Pulse > 0 {
			vitals = append(vitals, fmt.Sprintf("Pulse: %d", form.Vitals.Pulse))
		}
		if form.Vitals.Temperature > 0 {
			vitals = append(vitals, fmt.Sprintf("Temp: %.1f", form.Vitals.Temperature))
		}
		if len(vitals) > 0 {
			parts = append(parts, "Vitals: "+strings.Join(vitals, ", "))
		}
	}
	if form.PhysicalExamination != "" {
		parts = append(parts, "Exam: "+form.PhysicalExamination)
	}
	if form.Action != "" {
		parts = append(parts, "Action: "+form.Action)
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "\n")
}

func truncate(payload []byte, max int) string {
	text := strings.TrimSpace(string(payload))
	if len(text) <= max {
		return text
	}
	return text[:max] + "..."
}
