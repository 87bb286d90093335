package pipeline

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/edulake/shapeld/mapping"
)

// CSVSource reads raw records from a delimited file. The first row is
// the header; every value is a string.
type CSVSource struct {
	f      *os.File
	reader *csv.Reader
	header []string
}

// OpenCSV opens a CSV file and reads its header row. comma is the field
// delimiter, zero for the default.
func OpenCSV(path string, comma rune) (*CSVSource, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, path)
		}

		return nil, fmt.Errorf("%w: %s: %w", ErrSourceConnect, path, err)
	}

	r := csv.NewReader(f)
	r.ReuseRecord = false
	r.FieldsPerRecord = -1

	if comma != 0 {
		r.Comma = comma
	}

	header, err := r.Read()
	if err != nil {
		_ = f.Close()

		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %s has no header row", ErrSourceRead, path)
		}

		return nil, fmt.Errorf("%w: %s: %w", ErrSourceRead, path, err)
	}

	return &CSVSource{f: f, reader: r, header: header}, nil
}

// Next returns one row keyed by the header columns. Short rows leave
// trailing columns absent; long rows error.
func (s *CSVSource) Next(ctx context.Context) (mapping.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	row, err := s.reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}

		return nil, fmt.Errorf("%w: %w", ErrSourceRead, err)
	}

	if len(row) > len(s.header) {
		return nil, fmt.Errorf("%w: row has %d fields, header has %d", ErrSourceRead, len(row), len(s.header))
	}

	rec := make(mapping.Record, len(s.header))
	for i, val := range row {
		rec[s.header[i]] = val
	}

	return rec, nil
}

// Count is unknown for CSV without a full scan.
func (s *CSVSource) Count() (int, bool) {
	return 0, false
}

// Columns returns the header row.
func (s *CSVSource) Columns() []string {
	return s.header
}

func (s *CSVSource) Close() error {
	return s.f.Close()
}

func isEOF(err error) bool {
	return errors.Is(err, io.EOF)
}
