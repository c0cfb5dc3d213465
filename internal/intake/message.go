package intake

import "time"

// Role identifies who authored a message.
type Role string

const (
	RoleBot  Role = "bot"
	RoleUser Role = "user"
)

// Option is a selectable reply offered with a bot message.
type Option struct {
	Label string `json:"label" yaml:"label"`
	Value string `json:"value" yaml:"value"`
}

// Action values understood by every flow.
const (
	ActionNewClaim         = "new_claim"
	ActionCheckStatus      = "check_status"
	ActionHelp             = "help"
	ActionContinue         = "continue"
	ActionContinueManually = "continue_manually"
	ActionTryAnother       = "try_another"
	ActionSkip             = "skip"
	ActionSubmit           = "submit"
	ActionMakeChanges      = "make_changes"
	ActionTryAgain         = "try_again"
	ActionStartOver        = "start_over"
	ActionDone             = "done"
)

// Message is one entry in the conversation transcript.
type Message struct {
	ID      string   `json:"id"`
	Role    Role     `json:"role"`
	Text    string   `json:"text"`
	Options []Option `json:"options,omitempty"`

	// DelayMS asks the client to wait before rendering, to keep a
	// conversational pace after automatic advances.
	DelayMS   int64     `json:"delay_ms,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
