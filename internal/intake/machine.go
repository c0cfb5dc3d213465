package intake

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tjfontaine/claim-intake/internal/core/domain"
	"github.com/tjfontaine/claim-intake/internal/extract"
)

// EffectKind names work the caller must perform after a transition.
type EffectKind int

const (
	EffectNone EffectKind = iota
	// EffectSubmit asks the caller to persist the draft and then call
	// CompleteSubmit.
	EffectSubmit
	// EffectLookup asks the caller to look up the claim id in Value and
	// then call ReportStatus.
	EffectLookup
	// EffectComplete asks the caller to hand the finished draft to the
	// completion handler.
	EffectComplete
)

// Effect is returned by transitions that need a collaborator.
type Effect struct {
	Kind  EffectKind
	Value string
}

// Machine applies intake transitions to conversations of one flow. It holds
// no per-conversation state and is safe for concurrent use.
type Machine struct {
	flow       *Flow
	pace       time.Duration
	now        func() time.Time
	newClaimID func() string
}

// MachineOption configures a Machine.
type MachineOption func(*Machine)

// WithPace sets the delay clients should apply before showing prompts that
// follow an automatic advance.
func WithPace(d time.Duration) MachineOption {
	return func(m *Machine) {
		m.pace = d
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) MachineOption {
	return func(m *Machine) {
		m.now = now
	}
}

// WithClaimIDs overrides claim id generation.
func WithClaimIDs(fn func() string) MachineOption {
	return func(m *Machine) {
		m.newClaimID = fn
	}
}

// NewMachine creates a machine for flow.
func NewMachine(flow *Flow, opts ...MachineOption) *Machine {
	m := &Machine{
		flow:       flow,
		now:        time.Now,
		newClaimID: NewClaimID,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Flow returns the flow this machine drives.
func (m *Machine) Flow() *Flow {
	return m.flow
}

// Start creates a conversation with a fresh draft. A pre-supplied claim type
// skips category selection.
func (m *Machine) Start(policyID string, claimType domain.ClaimType) (*Conversation, error) {
	now := m.now()
	c := &Conversation{
		ID:        uuid.New().String(),
		Flow:      m.flow.Name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.reset(c, policyID, claimType); err != nil {
		return nil, err
	}
	return c, nil
}

func (m *Machine) reset(c *Conversation, policyID string, claimType domain.ClaimType) error {
	var cat *Category
	if claimType != "" {
		var ok bool
		if cat, ok = m.flow.Category(claimType); !ok {
			return fmt.Errorf("%w: %s", ErrUnknownCategory, claimType)
		}
	}

	c.Draft = domain.ClaimDraft{
		ClaimID:  m.newClaimID(),
		PolicyID: policyID,
		Status:   domain.DraftStatusDraft,
	}
	c.Messages = nil
	c.Mode = ""
	c.Busy = ""
	c.BusySince = time.Time{}
	c.Hint = ""
	c.Finished = false

	switch {
	case cat != nil:
		m.say(c, m.flow.Greeting)
		m.choose(c, cat)
	case len(m.flow.GreetingOptions) > 0:
		c.Step = StepGreeting
		m.say(c, m.flow.Greeting, m.flow.GreetingOptions...)
	default:
		m.say(c, m.flow.Greeting)
		m.enter(c, StepChoosingClaimType, false)
	}
	return nil
}

// Select applies the option value chosen by the claimant.
func (m *Machine) Select(c *Conversation, value string) (Effect, error) {
	if c.Finished {
		return Effect{}, ErrClosed
	}
	if c.Busy != "" {
		return Effect{}, ErrBusy
	}

	if value == ActionStartOver {
		m.echo(c, c.optionLabel(value))
		// Results for uploads made before the restart must not land on the
		// new draft.
		c.Generation++
		return Effect{}, m.reset(c, c.Draft.PolicyID, "")
	}

	switch c.Step {
	case StepGreeting:
		return Effect{}, m.selectGreeting(c, value)

	case StepChoosingClaimType:
		cat, ok := m.flow.Category(domain.ClaimType(value))
		if !ok {
			return Effect{}, ErrInvalidAction
		}
		m.echo(c, cat.Label)
		m.choose(c, cat)
		return Effect{}, nil

	case StepAwaitingEvidence:
		if value == ActionContinueManually {
			m.echo(c, c.optionLabel(value))
			m.leaveEvidence(c)
			return Effect{}, nil
		}

	case StepReviewingExtractedFields:
		switch value {
		case ActionContinue, ActionContinueManually:
			m.echo(c, c.optionLabel(value))
			m.leaveEvidence(c)
			return Effect{}, nil
		case ActionTryAnother:
			m.echo(c, c.optionLabel(value))
			m.clearExtraction(c)
			m.enter(c, StepAwaitingEvidence, false)
			return Effect{}, nil
		}
		if cat, ok := m.flow.Category(domain.ClaimType(value)); ok {
			m.echo(c, cat.Label)
			m.setClaimType(c, cat)
			m.say(c, fmt.Sprintf("Claim type set to %s.", cat.Label), m.reviewOptions()...)
			return Effect{}, nil
		}

	case StepDetails, StepFollowUp, StepNotes:
		if value == ActionSkip {
			m.echo(c, c.optionLabel(value))
			m.advance(c, c.Step, true)
			return Effect{}, nil
		}
		cat, _ := m.flow.Category(c.Draft.ClaimType)
		if fu, ok := m.flow.step(cat, c.Step); ok && fu.OfferReasons && cat != nil && slices.Contains(cat.Reasons, value) {
			m.echo(c, value)
			m.answer(c, fu.Field, value)
			m.advance(c, c.Step, true)
			return Effect{}, nil
		}

	case StepSummary:
		switch value {
		case ActionSubmit:
			m.echo(c, c.optionLabel(value))
			if err := m.BeginSubmit(c); err != nil {
				return Effect{}, err
			}
			return Effect{Kind: EffectSubmit}, nil
		case ActionMakeChanges:
			m.echo(c, c.optionLabel(value))
			m.enter(c, StepReviewingExtractedFields, false)
			return Effect{}, nil
		}

	case StepSubmissionFailed:
		if value == ActionTryAgain {
			m.echo(c, c.optionLabel(value))
			if err := m.BeginSubmit(c); err != nil {
				return Effect{}, err
			}
			return Effect{Kind: EffectSubmit}, nil
		}

	case StepCompleted:
		if value == ActionDone {
			m.echo(c, c.optionLabel(value))
			c.Finished = true
			return Effect{Kind: EffectComplete}, nil
		}
	}

	return Effect{}, fmt.Errorf("%w: %q in %s", ErrInvalidAction, value, c.Step)
}

func (m *Machine) selectGreeting(c *Conversation, value string) error {
	switch value {
	case ActionNewClaim:
		m.echo(c, c.optionLabel(value))
		c.Mode = ""
		m.enter(c, StepChoosingClaimType, false)
	case ActionCheckStatus:
		m.echo(c, c.optionLabel(value))
		c.Mode = modeStatus
		m.say(c, orDefault(m.flow.StatusPrompt, "Please enter your claim ID:"))
	case ActionHelp:
		m.echo(c, c.optionLabel(value))
		c.Mode = modeHelp
		m.say(c, orDefault(m.flow.HelpText, "Please describe what you need help with."))
	default:
		return fmt.Errorf("%w: %q in %s", ErrInvalidAction, value, c.Step)
	}
	return nil
}

// Reply applies a free-text message. Empty text and text sent while input
// is disabled are ignored.
func (m *Machine) Reply(c *Conversation, text string) (Effect, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Effect{}, nil
	}
	if c.Finished {
		return Effect{}, ErrClosed
	}
	if c.Busy != "" {
		return Effect{}, ErrBusy
	}
	if !c.InputEnabled() {
		return Effect{}, nil
	}

	m.echo(c, text)

	switch c.Step {
	case StepGreeting:
		if c.Mode == modeStatus {
			return Effect{Kind: EffectLookup, Value: text}, nil
		}
		m.say(c, "Thank you for that information. How else can I assist you today?", m.flow.GreetingOptions...)

	case StepChoosingClaimType:
		if cat, ok := m.flow.MatchCategory(text); ok {
			m.choose(c, cat)
			break
		}
		if line, ok := extract.Classify(text); ok {
			if cat, ok := m.flow.CategoryForLine(line); ok {
				c.Hint = cat.Value
				m.say(c, fmt.Sprintf("It sounds like this may be a %s claim. Please confirm the claim type:", cat.Label), m.flow.CategoryOptions()...)
				break
			}
		}
		m.say(c, m.flow.ChoosePrompt, m.flow.CategoryOptions()...)

	case StepCollectingFreeform:
		m.appendDetails(c, text)
		m.enter(c, StepAwaitingEvidence, true)

	case StepReviewingExtractedFields:
		m.appendDetails(c, text)
		m.say(c, "Thanks, I've added that to your claim details.", m.reviewOptions()...)

	case StepDetails, StepFollowUp, StepNotes:
		cat, _ := m.flow.Category(c.Draft.ClaimType)
		if fu, ok := m.flow.step(cat, c.Step); ok {
			m.answer(c, fu.Field, text)
		}
		m.advance(c, c.Step, true)

	case StepSummary:
		m.say(c, "Please submit your claim or choose to make changes.", summaryOptions()...)

	case StepSubmissionFailed:
		m.say(c, "Your claim details are saved. Choose Try Again to resubmit.", Option{Label: "Try Again", Value: ActionTryAgain})
	}

	return Effect{}, nil
}

// ReportStatus answers a status lookup started from the greeting. A nil
// record means the claim was not found or could not be read.
func (m *Machine) ReportStatus(c *Conversation, claimID string, rec *domain.ClaimRecord, lookupErr error) {
	switch {
	case lookupErr != nil:
		m.say(c, "I couldn't look up that claim right now. Please try again in a moment.")
	case rec == nil:
		m.say(c, fmt.Sprintf("I couldn't find a claim with ID %s. Please check the ID and try again.", claimID))
	default:
		c.Mode = ""
		text := fmt.Sprintf("Claim %s is currently %s.", rec.ID, statusLabel(rec.Status))
		if !rec.SubmittedAt.IsZero() {
			text += fmt.Sprintf(" It was submitted on %s.", rec.SubmittedAt.Format("January 2, 2006"))
		}
		text += " How else can I assist you today?"
		m.say(c, text, m.flow.GreetingOptions...)
	}
}

func (m *Machine) choose(c *Conversation, cat *Category) {
	m.setClaimType(c, cat)
	m.say(c, fmt.Sprintf("Great! I'll help you file a %s claim.", strings.ToLower(cat.Label)))
	if m.flow.CollectFreeform {
		m.enter(c, StepCollectingFreeform, false)
		return
	}
	m.enter(c, StepAwaitingEvidence, false)
}

func (m *Machine) setClaimType(c *Conversation, cat *Category) {
	c.Draft.ClaimType = cat.Value
	c.Draft.ClaimTypeInferred = false
	c.Hint = ""
}

// leaveEvidence advances past evidence review. A claim type is required;
// without one the claimant is asked to pick a category first.
func (m *Machine) leaveEvidence(c *Conversation) {
	if c.Draft.ClaimType == "" {
		c.Step = StepReviewingExtractedFields
		m.say(c, "Please choose a claim type before continuing:", m.flow.CategoryOptions()...)
		return
	}
	m.advance(c, StepReviewingExtractedFields, false)
}

// advance moves to the next configured step after from.
func (m *Machine) advance(c *Conversation, from Step, paced bool) {
	m.enter(c, m.nextAfter(c, from), paced)
}

func (m *Machine) nextAfter(c *Conversation, from Step) Step {
	cat, _ := m.flow.Category(c.Draft.ClaimType)
	for _, s := range freeformSteps {
		if s <= from {
			continue
		}
		if _, ok := m.flow.step(cat, s); ok {
			return s
		}
	}
	return StepSummary
}

// enter moves to step and emits its prompt.
func (m *Machine) enter(c *Conversation, step Step, paced bool) {
	c.Step = step
	cat, _ := m.flow.Category(c.Draft.ClaimType)

	var msg *Message
	switch step {
	case StepChoosingClaimType:
		msg = m.say(c, m.flow.ChoosePrompt, m.flow.CategoryOptions()...)

	case StepCollectingFreeform:
		msg = m.say(c, freeformPrompt(m.flow, cat))

	case StepAwaitingEvidence:
		prompt := "Please upload a photo or scan of your document."
		if cat != nil && cat.EvidencePrompt != "" {
			prompt = cat.EvidencePrompt
		}
		msg = m.say(c, prompt, Option{Label: "Continue Without a Document", Value: ActionContinueManually})

	case StepReviewingExtractedFields:
		msg = m.say(c, "Please complete or correct your claim details, then continue.", m.reviewOptions()...)

	case StepDetails, StepFollowUp, StepNotes:
		fu, _ := m.flow.step(cat, step)
		var opts []Option
		if fu.OfferReasons && cat != nil {
			for _, r := range cat.Reasons {
				opts = append(opts, Option{Label: r, Value: r})
			}
		}
		opts = append(opts, Option{Label: "Skip", Value: ActionSkip})
		msg = m.say(c, fu.Prompt, opts...)

	case StepSummary:
		msg = m.say(c, m.Summary(c).Text(), summaryOptions()...)

	case StepSubmitting:
		msg = m.say(c, "Submitting your claim...")

	case StepCompleted:
		msg = m.say(c,
			fmt.Sprintf("Your claim has been submitted successfully! Your claim ID is %s. We'll review it and get back to you soon.", c.Draft.ClaimID),
			Option{Label: "Start Over", Value: ActionStartOver},
			Option{Label: "Done", Value: ActionDone},
		)

	case StepSubmissionFailed:
		msg = m.say(c,
			"There was an error submitting your claim. Your details are saved, please try again.",
			Option{Label: "Try Again", Value: ActionTryAgain},
		)
	}

	if paced && msg != nil {
		msg.DelayMS = m.pace.Milliseconds()
	}
}

func (m *Machine) reviewOptions() []Option {
	return []Option{{Label: "Continue", Value: ActionContinue}}
}

func summaryOptions() []Option {
	return []Option{
		{Label: "Submit Claim", Value: ActionSubmit},
		{Label: "Make Changes", Value: ActionMakeChanges},
	}
}

func freeformPrompt(f *Flow, cat *Category) string {
	if cat == nil || cat.Intro == "" || len(cat.Questions) == 0 {
		return orDefault(f.FreeformPrompt, "Please describe what happened.")
	}
	var b strings.Builder
	b.WriteString(cat.Intro)
	for i, q := range cat.Questions {
		fmt.Fprintf(&b, "\n%d. %s", i+1, q)
	}
	return b.String()
}

// answer stores a freeform answer under field.
func (m *Machine) answer(c *Conversation, field, text string) {
	if field == "additionalDetails" {
		m.appendDetails(c, text)
		return
	}
	if c.Draft.ExtractedFields.Set(field, text) {
		return
	}
	if c.Draft.Answers == nil {
		c.Draft.Answers = make(map[string]string)
	}
	c.Draft.Answers[field] = text
}

func (m *Machine) appendDetails(c *Conversation, text string) {
	if c.Draft.AdditionalDetails == "" {
		c.Draft.AdditionalDetails = text
		return
	}
	c.Draft.AdditionalDetails += "\n" + text
}

// clearExtraction drops everything derived from earlier evidence.
func (m *Machine) clearExtraction(c *Conversation) {
	c.Draft.ExtractedFields = domain.ExtractedFields{}
	c.Draft.RawOCRText = ""
	c.Draft.DamageAnalysis = nil
	if c.Draft.ClaimTypeInferred {
		c.Draft.ClaimType = ""
		c.Draft.ClaimTypeInferred = false
	}
	c.Hint = ""
}

func (m *Machine) say(c *Conversation, text string, opts ...Option) *Message {
	return m.post(c, RoleBot, text, opts)
}

func (m *Machine) echo(c *Conversation, text string) {
	m.post(c, RoleUser, text, nil)
}

func (m *Machine) post(c *Conversation, role Role, text string, opts []Option) *Message {
	now := m.now()
	c.Messages = append(c.Messages, Message{
		ID:        uuid.New().String(),
		Role:      role,
		Text:      text,
		Options:   slices.Clone(opts),
		CreatedAt: now,
	})
	c.UpdatedAt = now
	return &c.Messages[len(c.Messages)-1]
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func statusLabel(s domain.ClaimStatus) string {
	return strings.ReplaceAll(string(s), "_", " ")
}
