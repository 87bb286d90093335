package pipeline

import (
	"context"
	"errors"

	"github.com/edulake/shapeld/mapping"
)

// Source adapter failures. Open failures are NotFound, Auth, or
// Connect; a mid-stream failure is Read and terminates the run with
// partial counts.
var (
	ErrSourceNotFound = errors.New("source not found")
	ErrSourceAuth     = errors.New("source authentication")
	ErrSourceConnect  = errors.New("source connect")
	ErrSourceRead     = errors.New("source read")
)

// Source produces raw records for one pipeline run. Sources are finite
// and single-pass; Next returns io.EOF when drained.
type Source interface {
	// Next returns the next raw record. It must observe ctx between
	// records and return its error when cancelled.
	Next(ctx context.Context) (mapping.Record, error)

	// Count returns the exact record count when the source knows it
	// ahead of time.
	Count() (int, bool)

	// Close releases the underlying handle. Safe to call more than
	// once.
	Close() error
}

// ReadBatch drains up to n records from a source. The second result is
// false when the source is exhausted.
func ReadBatch(ctx context.Context, src Source, n int) ([]mapping.Record, bool, error) {
	batch := make([]mapping.Record, 0, n)

	for len(batch) < n {
		rec, err := src.Next(ctx)
		if err != nil {
			if isEOF(err) {
				return batch, false, nil
			}

			return batch, false, err
		}

		batch = append(batch, rec)
	}

	return batch, true, nil
}
