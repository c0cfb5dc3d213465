// Package intake is the public API for embedding the claim intake service.
package intake

import (
	"github.com/tjfontaine/claim-intake/internal/runtime"
)

// App runs the claim intake service.
// See internal/runtime.App for full documentation.
type App = runtime.App

// Option is a functional option for configuring an App.
type Option = runtime.Option

// New creates an App with the given options.
// Example:
//
//	app, err := intake.New(
//	    intake.WithFileConfig("config.yaml"),
//	    intake.WithLogger(logger),
//	)
var New = runtime.New

var (
	// Config sources
	WithFileConfig     = runtime.WithFileConfig
	WithConfig         = runtime.WithConfig
	WithConfigProvider = runtime.WithConfigProvider

	// Logging
	WithLogger   = runtime.WithLogger
	WithLogLevel = runtime.WithLogLevel

	// Backends that replace the configured ones
	WithClaimStore        = runtime.WithClaimStore
	WithDraftStore        = runtime.WithDraftStore
	WithFileStore         = runtime.WithFileStore
	WithAnalyzer          = runtime.WithAnalyzer
	WithEventPublisher    = runtime.WithEventPublisher
	WithCompletionHandler = runtime.WithCompletionHandler
	WithFlows             = runtime.WithFlows
)
