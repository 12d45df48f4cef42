// Package service implements the HTTP-facing orchestration handlers.
// It validates inbound requests, delegates to the biz flows, and maps
// flow failures onto transport error codes.
package service

import (
	"github.com/google/wire"
)

// ProviderSet is service providers.
var ProviderSet = wire.NewSet(
	NewOrchestratorService,
	NewSystemService,
)
