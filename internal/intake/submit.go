package intake

import (
	"errors"
	"fmt"
	"time"

	"github.com/tjfontaine/claim-intake/internal/core/domain"
)

var errAbandoned = errors.New("operation abandoned")

// BeginSubmit moves a reviewed draft into submission. The caller persists
// the draft and reports the result with CompleteSubmit.
func (m *Machine) BeginSubmit(c *Conversation) error {
	if c.Finished {
		return ErrClosed
	}
	if c.Busy != "" {
		return ErrBusy
	}
	if c.Step != StepSummary && c.Step != StepSubmissionFailed {
		return fmt.Errorf("%w: submit in %s", ErrInvalidAction, c.Step)
	}
	if c.Draft.ClaimType == "" {
		return ErrClaimTypeRequired
	}
	c.Busy = BusySubmitting
	c.BusySince = m.now()
	c.Draft.Status.Advance(domain.DraftStatusSubmitted)
	m.enter(c, StepSubmitting, false)
	return nil
}

// CompleteSubmit applies the persistence result. On failure the draft is
// kept unchanged so the claimant can retry.
func (m *Machine) CompleteSubmit(c *Conversation, persistErr error) error {
	if c.Busy != BusySubmitting {
		return ErrStaleResult
	}
	c.Busy = ""
	c.BusySince = time.Time{}
	if persistErr != nil {
		m.enter(c, StepSubmissionFailed, false)
		return nil
	}
	at := m.now()
	c.Draft.SubmittedAt = &at
	c.Draft.Status.Advance(domain.DraftStatusReceived)
	m.enter(c, StepCompleted, false)
	return nil
}

// Record builds the persistence record for the conversation's draft.
func (m *Machine) Record(c *Conversation) *domain.ClaimRecord {
	rec := domain.NewClaimRecord(&c.Draft, c.Flow, m.now())
	if c.Draft.DamageAnalysis != nil {
		rec.RecommendedAction = m.Summary(c).Recommendation
	}
	return rec
}
