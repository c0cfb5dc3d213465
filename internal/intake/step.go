package intake

import "fmt"

// Step is the position of a conversation in the intake sequence.
type Step int

const (
	StepGreeting Step = iota
	StepChoosingClaimType
	StepCollectingFreeform
	StepAwaitingEvidence
	StepReviewingExtractedFields
	StepDetails
	StepFollowUp
	StepNotes
	StepSummary
	StepSubmitting
	StepCompleted
	StepSubmissionFailed
)

var stepNames = [...]string{
	StepGreeting:                 "greeting",
	StepChoosingClaimType:        "choosing_claim_type",
	StepCollectingFreeform:       "collecting_freeform",
	StepAwaitingEvidence:         "awaiting_evidence",
	StepReviewingExtractedFields: "reviewing_extracted_fields",
	StepDetails:                  "details",
	StepFollowUp:                 "follow_up",
	StepNotes:                    "notes",
	StepSummary:                  "summary",
	StepSubmitting:               "submitting",
	StepCompleted:                "completed",
	StepSubmissionFailed:         "submission_failed",
}

func (s Step) String() string {
	if s < 0 || int(s) >= len(stepNames) {
		return fmt.Sprintf("step(%d)", int(s))
	}
	return stepNames[s]
}

// MarshalText encodes the step by name.
func (s Step) MarshalText() ([]byte, error) {
	if s < 0 || int(s) >= len(stepNames) {
		return nil, fmt.Errorf("unknown step %d", int(s))
	}
	return []byte(stepNames[s]), nil
}

// UnmarshalText decodes a step name.
func (s *Step) UnmarshalText(b []byte) error {
	for i, name := range stepNames {
		if name == string(b) {
			*s = Step(i)
			return nil
		}
	}
	return fmt.Errorf("unknown step %q", string(b))
}

// freeformSteps are the optional answer steps after evidence review.
var freeformSteps = []Step{StepDetails, StepFollowUp, StepNotes}

// afterSubmission reports whether the draft has left the editable phase.
func (s Step) afterSubmission() bool {
	return s == StepSubmitting || s == StepCompleted
}
