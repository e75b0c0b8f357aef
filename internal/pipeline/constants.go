package pipeline

import "cloud.google.com/go/civil"

// Defaults for the tracked organization and the sync schedule.
// cmd/ binaries override them from configuration.
const (
	// DefaultOrgID is the registry's organization id for the municipality.
	DefaultOrgID = "6135"

	// DefaultOrgTaxID is the municipality's own tax id (AFM). An award naming
	// it as the first counterparty is a tender announcement, not a spend.
	DefaultOrgTaxID = "997648454"

	// DefaultWindowMonths is the backfill window length.
	DefaultWindowMonths = 6

	// DefaultLookbackDays is how far back an incremental run starts when no
	// successful run exists yet.
	DefaultLookbackDays = 7

	// DefaultOverlapDays is subtracted from the checkpoint so decisions
	// published late relative to their issue date are picked up again.
	DefaultOverlapDays = 2
)

// DefaultBackfillStart is the first issue date the backfill covers.
var DefaultBackfillStart = civil.Date{Year: 2019, Month: 1, Day: 1}
