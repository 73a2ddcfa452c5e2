package domain

// AnalysisKind identifies a debounced downstream analysis call. At most one
// pending token is live per kind.
type AnalysisKind string

const (
	AnalysisFormExtraction AnalysisKind = "form_extraction"
	AnalysisSuggestions    AnalysisKind = "suggestions"
)

// Vitals holds patient vital signs extracted from the transcript.
type Vitals struct {
	BloodPressure   string  `json:"blood_pressure,omitempty"`
	Pulse           int     `json:"pulse,omitempty"`
	Temperature     float64 `json:"temperature,omitempty"`
	RespiratoryRate int     `json:"respiratory_rate,omitempty"`
	SpO2            int     `json:"spo2,omitempty"`
	Rhythm          string  `json:"rhythm,omitempty"`
}

// MedicalForm is the structured form extracted from the conversation.
type MedicalForm struct {
	PhysicalExamination  string   `json:"physical_examination,omitempty"`
	OtherDetails         string   `json:"other_details,omitempty"`
	Symptoms             []string `json:"symptoms,omitempty"`
	Action               string   `json:"action,omitempty"`
	ReviewAfter          string   `json:"review_after,omitempty"`
	DischargeRecommended *bool    `json:"discharge_recommended,omitempty"`
	Vitals               *Vitals  `json:"vitals,omitempty"`
}

// Suggestion is one AI-generated clinical suggestion.
type Suggestion struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Priority  string `json:"priority"`
	Rationale string `json:"rationale,omitempty"`
}

// Suggestions groups clinical decision support output by category.
type Suggestions struct {
	QuestionsToAsk        []Suggestion `json:"questions_to_ask"`
	PotentialDiagnoses    []Suggestion `json:"potential_diagnoses"`
	TestsToConsider       []Suggestion `json:"tests_to_consider"`
	MedicationsToConsider []Suggestion `json:"medications_to_consider"`
	Referrals             []Suggestion `json:"referrals"`
}

// SOAPNote is a structured clinical summary.
type SOAPNote struct {
	Subjective string `json:"subjective"`
	Objective  string `json:"objective"`
	Assessment string `json:"assessment"`
	Plan       string `json:"plan"`
}

// ICDCode is an ICD-10 diagnosis code suggestion.
type ICDCode struct {
	Code        string  `json:"code"`
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
}
