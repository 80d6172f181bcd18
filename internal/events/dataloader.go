package events

import "time"

// DataLoaderBatch is emitted after a data loader dispatched one batch.
type DataLoaderBatch struct {
	Loader   string
	Keys     int
	Err      error
	Duration time.Duration
}
