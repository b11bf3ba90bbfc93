package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TempRecordInput is the create call accepted by the staging store.
type TempRecordInput struct {
	ProjectTitle      string          `json:"project_title"`
	ClientName        string          `json:"client_name"`
	Location          *string         `json:"location"`
	BudgetText        *string         `json:"budget_text"`
	Deadline          *string         `json:"deadline"` // ISO-8601
	Documents         []string        `json:"documents"`
	Tags              []string        `json:"tags"`
	AISummary         *string         `json:"ai_summary"`
	AIMetadata        json.RawMessage `json:"ai_metadata"`
	RawPayload        json.RawMessage `json:"raw_payload"`
	MatchScore        *int            `json:"match_score"`
	RiskScore         *int            `json:"risk_score"`
	StrategicFitScore *int            `json:"strategic_fit_score"`
	ReviewerNotes     *string         `json:"reviewer_notes"`
	Embedding         []float32       `json:"-"`
}

// TempRecord is a staged opportunity awaiting human promotion.
type TempRecord struct {
	ID                uuid.UUID       `json:"id"`
	ProjectTitle      string          `json:"project_title"`
	ClientName        string          `json:"client_name"`
	Location          *string         `json:"location"`
	BudgetText        *string         `json:"budget_text"`
	Deadline          *time.Time      `json:"deadline"`
	Documents         []string        `json:"documents"`
	Tags              []string        `json:"tags"`
	AISummary         *string         `json:"ai_summary"`
	AIMetadata        json.RawMessage `json:"ai_metadata"`
	RawPayload        json.RawMessage `json:"raw_payload"`
	MatchScore        *int            `json:"match_score"`
	RiskScore         *int            `json:"risk_score"`
	StrategicFitScore *int            `json:"strategic_fit_score"`
	ReviewerNotes     *string         `json:"reviewer_notes"`
	Similarity        *float64        `json:"similarity,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

// StagedKey carries the fields of an existing staged record that take part
// in duplicate detection.
type StagedKey struct {
	ProjectTitle string `json:"project_title"`
	ClientName   string `json:"client_name"`
	Location     string `json:"location"`
}

// ImportRun is one recorded import batch.
type ImportRun struct {
	ID          uuid.UUID  `json:"id"`
	URLs        []string   `json:"urls"`
	Status      string     `json:"status"` // running, completed, failed
	Outcome     string     `json:"outcome,omitempty"`
	Found       int        `json:"found"`
	Stored      int        `json:"stored"`
	Skipped     int        `json:"skipped"`
	Errors      int        `json:"errors"`
	Warnings    []string   `json:"warnings"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
}
