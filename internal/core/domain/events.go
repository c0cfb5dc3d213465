package domain

import (
	"time"
)

// ClaimEvent is a lifecycle event emitted while a claim moves through intake.
// Events are published to event buses for decoupled consumers (audit, analytics, adjusters).
type ClaimEvent struct {
	ID             string            `json:"id"`
	Type           ClaimEventType    `json:"type"`
	ConversationID string            `json:"conversation_id"`
	ClaimID        string            `json:"claim_id"`
	Flow           string            `json:"flow,omitempty"`
	Step           string            `json:"step,omitempty"`
	Timestamp      time.Time         `json:"timestamp"`
	Attributes     map[string]string `json:"attributes,omitempty"`
}

// ClaimEventType identifies the type of lifecycle event.
type ClaimEventType string

const (
	ClaimEventDraftStarted     ClaimEventType = "claim.draft_started"
	ClaimEventEvidenceAnalyzed ClaimEventType = "claim.evidence_analyzed"
	ClaimEventAnalysisFailed   ClaimEventType = "claim.analysis_failed"
	ClaimEventSubmitted        ClaimEventType = "claim.submitted"
	ClaimEventSubmissionFailed ClaimEventType = "claim.submission_failed"
	ClaimEventCompleted        ClaimEventType = "claim.completed"
	ClaimEventStatusChanged    ClaimEventType = "claim.status_changed"
)
