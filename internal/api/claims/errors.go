package claims

import (
	"errors"

	"github.com/tjfontaine/claim-intake/internal/analysis"
	"github.com/tjfontaine/claim-intake/internal/core/domain"
	"github.com/tjfontaine/claim-intake/internal/core/ports"
	"github.com/tjfontaine/claim-intake/internal/intake"
)

// toAPIError maps service errors onto client-facing error types. Anything
// unrecognised is left for server.WriteError to hide.
func toAPIError(err error) error {
	if _, ok := domain.AsAPIError(err); ok {
		return err
	}
	var t domain.ErrorType
	switch {
	case errors.Is(err, ports.ErrNotFound):
		return domain.ErrNotFound("conversation not found")
	case errors.Is(err, intake.ErrFileNotFound):
		return domain.ErrNotFound("file not found")
	case errors.Is(err, intake.ErrBusy),
		errors.Is(err, intake.ErrInvalidAction),
		errors.Is(err, intake.ErrClosed),
		errors.Is(err, intake.ErrStaleResult):
		t = domain.ErrorTypeConflict
	case errors.Is(err, intake.ErrUnknownFlow),
		errors.Is(err, intake.ErrUnknownCategory),
		errors.Is(err, intake.ErrUnknownField),
		errors.Is(err, intake.ErrClaimTypeRequired):
		t = domain.ErrorTypeInvalidRequest
	case errors.Is(err, intake.ErrUnsupportedMedia),
		errors.Is(err, analysis.ErrUnsupportedMedia):
		t = domain.ErrorTypeUnsupportedMedia
	case errors.Is(err, intake.ErrTooLarge):
		t = domain.ErrorTypeTooLarge
	default:
		return err
	}
	return domain.NewAPIError(t, err.Error())
}
