// Package storage holds the claim and draft store implementations. The
// interfaces live in core/ports and are re-exported here for callers that
// only deal with storage.
package storage

import (
	"github.com/tjfontaine/claim-intake/internal/core/ports"
)

type (
	ClaimStore  = ports.ClaimStore
	DraftStore  = ports.DraftStore
	ClaimFilter = ports.ClaimFilter
)

// ErrNotFound is returned when a claim or draft does not exist.
var ErrNotFound = ports.ErrNotFound
