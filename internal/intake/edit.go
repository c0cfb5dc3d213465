package intake

import (
	"fmt"

	"github.com/tjfontaine/claim-intake/internal/core/domain"
)

func (m *Machine) editable(c *Conversation) error {
	if c.Finished || c.Step.afterSubmission() {
		return ErrClosed
	}
	if c.Busy == BusySubmitting {
		return ErrBusy
	}
	return nil
}

// EditFields overwrites extracted fields with claimant corrections. An
// empty value clears the field. Unknown keys reject the whole edit.
func (m *Machine) EditFields(c *Conversation, edits map[string]string) error {
	if err := m.editable(c); err != nil {
		return err
	}
	for key := range edits {
		if _, ok := c.Draft.ExtractedFields.Get(key); !ok {
			return fmt.Errorf("%w: %s", ErrUnknownField, key)
		}
	}
	for key, v := range edits {
		c.Draft.ExtractedFields.Set(key, v)
	}
	c.UpdatedAt = m.now()
	return nil
}

// SetClaimType records an explicit category choice, replacing any inferred
// one.
func (m *Machine) SetClaimType(c *Conversation, t domain.ClaimType) error {
	if err := m.editable(c); err != nil {
		return err
	}
	cat, ok := m.flow.Category(t)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCategory, t)
	}
	m.setClaimType(c, cat)
	c.UpdatedAt = m.now()
	return nil
}

// EditOCRText replaces the recognized text and re-runs extraction over it.
// Values extracted from the new text fill or replace fields; fields it does
// not mention keep their current values.
func (m *Machine) EditOCRText(c *Conversation, text string) error {
	if err := m.editable(c); err != nil {
		return err
	}
	if c.Busy != "" {
		return ErrBusy
	}
	c.Draft.RawOCRText = text
	c.Draft.ExtractedFields.Merge(m.flow.Extract(text))
	m.infer(c, text)
	c.UpdatedAt = m.now()
	return nil
}

// RemoveFile detaches an uploaded file from the draft.
func (m *Machine) RemoveFile(c *Conversation, fileID string) error {
	if err := m.editable(c); err != nil {
		return err
	}
	if c.Busy != "" {
		return ErrBusy
	}
	if !c.Draft.RemoveFile(fileID) {
		return fmt.Errorf("%w: %s", ErrFileNotFound, fileID)
	}
	c.UpdatedAt = m.now()
	return nil
}
