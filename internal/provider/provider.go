// Package provider contains the pull-mode quote providers: each one
// knows how to produce a fresh snapshot of the edge quotes for its
// venue. Providers are stateless between calls except for the
// last-known-good cache that papers over partial upstream outages.
package provider

import (
	"context"

	"github.com/lumapay/routingd/internal/quote"
)

// QuoteProvider is the single contract every venue adapter implements.
type QuoteProvider interface {
	// VenueID identifies the provider for health tracking and logs.
	VenueID() string

	// FetchQuotes returns a snapshot of the quotes this provider knows.
	// An empty snapshot is not an error.
	FetchQuotes(ctx context.Context) ([]quote.EdgeQuote, error)
}

// Tier labels how often the prefetch orchestrator invokes a provider.
type Tier int

const (
	// TierFast providers are cheap to call (static sets, DEX reads).
	TierFast Tier = iota
	// TierSlow providers are rate-limited upstreams (HTTP FX feeds).
	TierSlow
)
