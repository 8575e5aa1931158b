package domain

import "time"

// BatchResult summarizes one committed batch for stats logging
type BatchResult struct {
	// Messages counts everything taken off the queue, corrupt included
	Messages int

	// Corrupt messages failed to decode and were dropped before the tx
	Corrupt int

	// Dupes are in-batch repeats of an event id; only the first copy counts
	Dupes int

	// Replayed event ids already had a persisted point and were skipped
	Replayed int

	// Points were scored and handed to the store this batch
	Points int

	// Inserted is how many of those the store actually landed
	Inserted int

	// Entities touched by the batch
	Entities int

	// Attempts it took to commit, 1 when the first try held
	Attempts int

	Elapsed time.Duration
}
