package domain

import "time"

// FailureKind classifies why a venue was excluded from a cycle.
type FailureKind string

const (
	FailureUnavailable FailureKind = "unavailable"
	FailureTimeout     FailureKind = "timeout"
	FailureCancelled   FailureKind = "cancelled"
)

// SourceFailure records one failed (asset, venue) fetch.
type SourceFailure struct {
	AssetID string      `json:"asset_id"`
	VenueID string      `json:"venue_id"`
	Kind    FailureKind `json:"kind"`
	Err     string      `json:"error"`
}

// AssetFailure records an asset whose processing was aborted for the cycle.
type AssetFailure struct {
	AssetID string `json:"asset_id"`
	Err     string `json:"error"`
}

// Cycle is the full report of one detection run.
type Cycle struct {
	StartedAt      time.Time       `json:"started_at"`
	Duration       time.Duration   `json:"duration"`
	Opportunities  []Opportunity   `json:"opportunities"`
	SourceFailures []SourceFailure `json:"source_failures,omitempty"`
	AssetFailures  []AssetFailure  `json:"asset_failures,omitempty"`

	// ConfigGaps lists venues scored with the default gas entry.
	ConfigGaps []string `json:"config_gaps,omitempty"`
}
