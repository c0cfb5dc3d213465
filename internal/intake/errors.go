package intake

import "errors"

var (
	// ErrBusy is returned when an analysis or submission is already in
	// flight for the conversation.
	ErrBusy = errors.New("conversation is busy")

	// ErrStaleResult is returned when an analysis result arrives for an
	// upload that has since been superseded.
	ErrStaleResult = errors.New("stale analysis result")

	// ErrInvalidAction is returned for an option that is not offered in the
	// current step.
	ErrInvalidAction = errors.New("action not available in current step")

	// ErrClosed is returned when a finished or submitted draft is modified.
	ErrClosed = errors.New("conversation is closed")

	// ErrUnknownCategory is returned for a claim type the flow does not offer.
	ErrUnknownCategory = errors.New("unknown claim category")

	// ErrUnknownField is returned when editing a field that does not exist.
	ErrUnknownField = errors.New("unknown field")

	// ErrFileNotFound is returned when removing a file that is not attached.
	ErrFileNotFound = errors.New("file not found")

	// ErrUnknownFlow is returned when a conversation names a flow that is
	// not configured.
	ErrUnknownFlow = errors.New("unknown flow")
)

var (
	// ErrUnsupportedMedia is returned for uploads whose content type the
	// category or service does not accept.
	ErrUnsupportedMedia = errors.New("unsupported media type")

	// ErrTooLarge is returned for uploads above the configured size limit.
	ErrTooLarge = errors.New("upload too large")
)

// ErrClaimTypeRequired is returned when a draft without a claim type is
// submitted.
var ErrClaimTypeRequired = errors.New("claim type required")
