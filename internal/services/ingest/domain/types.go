package domain

import "time"

// CycleResult summarizes one poll cycle for stats logging
type CycleResult struct {
	// Fetched is the raw page size the source returned
	Fetched int

	// Malformed events failed normalization and were recorded and dropped
	Malformed int

	// Deduped events were suppressed by the seen-cache before publish
	Deduped int

	// Published events reached the queue acknowledged
	Published int

	// Dropped events were lost to publish failure after capped retries
	Dropped int

	Elapsed time.Duration
}
