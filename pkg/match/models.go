package match

import (
	"time"

	"github.com/civium/matchd/pkg/collection"
	"github.com/civium/matchd/pkg/tenant"
)

// Outcome tags the terminal state of a smart-match cascade.
type Outcome string

const (
	OutcomeFoundKnown     Outcome = "found_known"
	OutcomeFoundUnknown   Outcome = "found_unknown"
	OutcomeAutoRegistered Outcome = "auto_registered"
	OutcomeNotFound       Outcome = "not_found"
)

// Query is one smart-match request.
type Query struct {
	// Vector is the pre-computed embedding to resolve.
	Vector []float32

	// Category and TenantID identify the caller. The collection kind is
	// implied by the cascade stage.
	Category tenant.Category
	TenantID int

	// Federated widens stage 1 to all public known collections plus the
	// caller's own known collection.
	Federated bool

	// SearchUnknown enables stage 2 against the caller's unknown collection.
	SearchUnknown bool

	// AutoRegister enables stage 3: insert the query vector into the
	// caller's unknown collection when nothing matched.
	AutoRegister bool

	// Threshold overrides the configured default when non-nil. Zero is a
	// legal override, hence the pointer.
	Threshold *float32

	// TopK overrides the configured default when positive.
	TopK int
}

// AttributedMatch annotates a match with the collection it came from.
type AttributedMatch struct {
	Category tenant.Category `json:"category"`
	TenantID int             `json:"tenant_id"`
	Kind     tenant.Kind     `json:"kind"`
	collection.Match
}

// Grouped organizes matches by category, then tenant ID.
type Grouped map[tenant.Category]map[int][]collection.Match

// Result is the terminal outcome of a cascade.
type Result struct {
	Outcome Outcome `json:"result_type"`

	// Ranked holds the merged matches, best first, truncated to top-k.
	Ranked []AttributedMatch `json:"ranked,omitempty"`

	// Matches groups the same hits by category and tenant.
	Matches Grouped `json:"matches,omitempty"`

	// AutoRegisteredPosition is the assigned position when Outcome is
	// OutcomeAutoRegistered, -1 otherwise.
	AutoRegisteredPosition int `json:"auto_registered_position"`

	// CollectionsSearched counts distinct searches issued across all stages.
	CollectionsSearched int `json:"total_collections_searched"`

	// Elapsed is the wall-clock duration of the whole cascade.
	Elapsed time.Duration `json:"search_time"`

	// Threshold and TopK are the effective values used.
	Threshold float32 `json:"threshold_used"`
	TopK      int     `json:"top_k_used"`
}

// Stats is a point-in-time service snapshot.
type Stats struct {
	Uptime              time.Duration `json:"uptime"`
	CollectionsLoaded   int           `json:"collections_loaded"`
	ValidFaces          int           `json:"total_valid_faces"`
	TotalFaces          int           `json:"total_faces_including_tombstoned"`
	TombstonedFaces     int           `json:"tombstoned_faces"`
	SmartMatches        int64         `json:"total_smart_matches"`
	AutoRegistrations   int64         `json:"auto_registrations"`
	AverageMatchLatency time.Duration `json:"average_match_latency"`
}
