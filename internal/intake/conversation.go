package intake

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tjfontaine/claim-intake/internal/core/domain"
)

// Busy states. At most one analysis or one submission is in flight.
const (
	BusyAnalyzing  = "analyzing"
	BusySubmitting = "submitting"
)

const (
	modeStatus = "status"
	modeHelp   = "help"
)

// Conversation is the persisted state of one intake session.
type Conversation struct {
	ID       string            `json:"id"`
	Flow     string            `json:"flow"`
	Step     Step              `json:"step"`
	Mode     string            `json:"mode,omitempty"`
	Draft    domain.ClaimDraft `json:"draft"`
	Messages []Message         `json:"messages"`

	Busy      string    `json:"busy,omitempty"`
	BusySince time.Time `json:"busy_since,omitempty"`

	// Generation counts analysis requests. A result is applied only if it
	// belongs to the latest one.
	Generation int `json:"generation"`

	// Hint is the category suggested by keyword inference when the
	// claimant had not chosen one.
	Hint     domain.ClaimType `json:"hint,omitempty"`
	Finished bool             `json:"finished,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// InputEnabled reports whether free text is accepted in the current state.
func (c *Conversation) InputEnabled() bool {
	if c.Finished || c.Busy != "" {
		return false
	}
	switch c.Step {
	case StepAwaitingEvidence, StepSubmitting, StepCompleted:
		return false
	}
	return true
}

// UploadEnabled reports whether evidence can be attached right now.
func (c *Conversation) UploadEnabled() bool {
	if c.Finished || c.Busy != "" {
		return false
	}
	switch c.Step {
	case StepChoosingClaimType, StepAwaitingEvidence, StepReviewingExtractedFields:
		return true
	}
	return false
}

// LastMessage returns the most recent message, or nil.
func (c *Conversation) LastMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return &c.Messages[len(c.Messages)-1]
}

// optionLabel finds the label of value among the options last offered.
func (c *Conversation) optionLabel(value string) string {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		msg := c.Messages[i]
		if msg.Role != RoleBot {
			continue
		}
		for _, o := range msg.Options {
			if o.Value == value {
				return o.Label
			}
		}
		break
	}
	return value
}

// NewClaimID returns a claim identifier of the form CLM-XXXXXXXX.
func NewClaimID() string {
	id := strings.ReplaceAll(uuid.New().String(), "-", "")
	return "CLM-" + strings.ToUpper(id[:8])
}
