package intake

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/tjfontaine/claim-intake/internal/core/domain"
	"github.com/tjfontaine/claim-intake/internal/core/ports"
	"github.com/tjfontaine/claim-intake/internal/extract"
)

// lowConfidence is the threshold below which a reported confidence marks
// the result as unusable.
const lowConfidence = 0.3

var unreadableMarkers = []*regexp.Regexp{
	regexp.MustCompile(`(?i)no text could be detected`),
	regexp.MustCompile(`(?i)invalid image`),
	regexp.MustCompile(`(?i)too dark`),
	regexp.MustCompile(`(?i)\bblank\b`),
}

// Outcome classifies how an analysis result was applied.
type Outcome string

const (
	OutcomeExtracted  Outcome = "extracted"
	OutcomeEmpty      Outcome = "empty"
	OutcomeDamage     Outcome = "damage"
	OutcomeUnreadable Outcome = "unreadable"
	OutcomeFailed     Outcome = "failed"
)

// Ticket identifies an in-flight analysis. CompleteAnalysis accepts the
// result only if the ticket is still current.
type Ticket struct {
	Generation int    `json:"generation"`
	FileID     string `json:"file_id"`
}

// BeginAnalysis attaches file to the draft and marks the conversation busy
// until CompleteAnalysis is called with the returned ticket.
func (m *Machine) BeginAnalysis(c *Conversation, file domain.UploadedFile) (Ticket, error) {
	if c.Finished || c.Step.afterSubmission() {
		return Ticket{}, ErrClosed
	}
	if c.Busy != "" {
		return Ticket{}, ErrBusy
	}
	if !c.UploadEnabled() {
		return Ticket{}, fmt.Errorf("%w: upload in %s", ErrInvalidAction, c.Step)
	}
	if cat, ok := m.flow.Category(c.Draft.ClaimType); ok && !cat.Accepts(file.ContentType) {
		return Ticket{}, fmt.Errorf("%w: %s for %s", ErrUnsupportedMedia, file.ContentType, cat.Label)
	}

	c.Draft.UploadedFiles = append(c.Draft.UploadedFiles, file)
	c.Generation++
	c.Busy = BusyAnalyzing
	c.BusySince = m.now()
	c.Step = StepAwaitingEvidence
	m.echo(c, "Uploaded "+file.Name)
	m.say(c, "I'm analyzing your document...")
	return Ticket{Generation: c.Generation, FileID: file.ID}, nil
}

// CompleteAnalysis applies the result of the analysis identified by t.
// Transport errors and unreadable results are soft failures: the claimant
// is offered another upload or manual entry.
func (m *Machine) CompleteAnalysis(c *Conversation, t Ticket, res *ports.AnalysisResult, analyzeErr error) (Outcome, error) {
	if c.Busy != BusyAnalyzing || t.Generation != c.Generation {
		return "", ErrStaleResult
	}
	c.Busy = ""
	c.BusySince = time.Time{}
	c.Step = StepReviewingExtractedFields

	if analyzeErr != nil || res == nil {
		m.say(c, "I couldn't process the document properly. Would you like to try again or continue manually?", retryOptions()...)
		return OutcomeFailed, nil
	}
	if !usable(res) {
		if res.Mode == ports.AnalysisModeDamage {
			m.say(c, "I couldn't analyze the damage properly. Please upload clearer photos or continue manually.", retryOptions()...)
		} else {
			m.say(c, "I couldn't read this document. The image may be blurry, too dark, or blank. Please upload a clearer image or continue manually.", retryOptions()...)
		}
		return OutcomeUnreadable, nil
	}

	if res.Mode == ports.AnalysisModeDamage {
		return m.applyDamage(c, res), nil
	}
	return m.applyText(c, res.Text), nil
}

func usable(res *ports.AnalysisResult) bool {
	if !res.Success {
		return false
	}
	if res.Confidence > 0 && res.Confidence < lowConfidence {
		return false
	}
	if res.Mode == ports.AnalysisModeDamage {
		return true
	}
	if strings.TrimSpace(res.Text) == "" {
		return false
	}
	for _, re := range unreadableMarkers {
		if re.MatchString(res.Text) {
			return false
		}
	}
	return true
}

func (m *Machine) applyText(c *Conversation, text string) Outcome {
	c.Draft.RawOCRText = text
	fields := m.flow.Extract(text)
	c.Draft.ExtractedFields.Merge(fields)
	m.infer(c, text)

	if fields.Empty() {
		m.say(c, "I couldn't extract specific information from your document. Let's continue with manual entry.",
			Option{Label: "Continue Manually", Value: ActionContinueManually},
			Option{Label: "Try Another Document", Value: ActionTryAnother},
		)
		return OutcomeEmpty
	}

	var b strings.Builder
	b.WriteString("I've analyzed your document and extracted the following information:\n")
	for _, key := range domain.FieldNames {
		if v, _ := fields.Get(key); v != "" {
			fmt.Fprintf(&b, "\n%s: %s", fieldLabels[key], v)
		}
	}
	m.hintText(c, &b)
	m.say(c, b.String(),
		Option{Label: "Continue", Value: ActionContinue},
		Option{Label: "Try Another Document", Value: ActionTryAnother},
	)
	return OutcomeExtracted
}

func (m *Machine) applyDamage(c *Conversation, res *ports.AnalysisResult) Outcome {
	c.Draft.DamageAnalysis = &domain.DamageAnalysis{
		Damages:    res.Damages,
		Confidence: res.Confidence,
	}
	if c.Draft.ClaimType == "" {
		if cat, ok := m.flow.CategoryForLine(domain.ClaimTypeProduct); ok {
			c.Draft.ClaimType = cat.Value
			c.Draft.ClaimTypeInferred = true
			c.Hint = cat.Value
		}
	}

	dr := extract.DamageResult{Success: true, Damages: res.Damages, Confidence: res.Confidence}
	if len(res.Damages) == 0 {
		m.say(c, extract.DamageRecommendation(dr),
			Option{Label: "Continue Manually", Value: ActionContinueManually},
			Option{Label: "Try Another Photo", Value: ActionTryAnother},
		)
		return OutcomeEmpty
	}

	var b strings.Builder
	b.WriteString(extract.DamageSummary(dr))
	b.WriteString("\n\n")
	b.WriteString(extract.DamageRecommendation(dr))
	m.hintText(c, &b)
	m.say(c, b.String(),
		Option{Label: "Continue", Value: ActionContinue},
		Option{Label: "Try Another Photo", Value: ActionTryAnother},
	)
	return OutcomeDamage
}

// infer sets the claim type from keywords when the claimant has not chosen
// one. An explicit choice is never overridden.
func (m *Machine) infer(c *Conversation, text string) {
	if c.Draft.ClaimType != "" {
		return
	}
	line, ok := extract.Classify(text)
	if !ok {
		return
	}
	if cat, ok := m.flow.CategoryForLine(line); ok {
		c.Draft.ClaimType = cat.Value
		c.Draft.ClaimTypeInferred = true
		c.Hint = cat.Value
	}
}

func (m *Machine) hintText(c *Conversation, b *strings.Builder) {
	if c.Hint == "" {
		return
	}
	if cat, ok := m.flow.Category(c.Hint); ok {
		fmt.Fprintf(b, "\n\nThis looks like a %s claim. You can change the claim type before continuing.", cat.Label)
	}
}

func retryOptions() []Option {
	return []Option{
		{Label: "Try Again", Value: ActionTryAnother},
		{Label: "Continue Manually", Value: ActionContinueManually},
	}
}

// AttachFileURL records where an uploaded file was stored.
func (m *Machine) AttachFileURL(c *Conversation, fileID, url string) bool {
	for i := range c.Draft.UploadedFiles {
		if c.Draft.UploadedFiles[i].ID == fileID {
			c.Draft.UploadedFiles[i].URL = url
			return true
		}
	}
	return false
}

// Abandon clears a busy flag whose operation will never report back, for
// example after a restart. The pending operation is treated as failed.
func (m *Machine) Abandon(c *Conversation) {
	switch c.Busy {
	case BusyAnalyzing:
		_, _ = m.CompleteAnalysis(c, Ticket{Generation: c.Generation}, nil, errAbandoned)
	case BusySubmitting:
		_ = m.CompleteSubmit(c, errAbandoned)
	}
}
