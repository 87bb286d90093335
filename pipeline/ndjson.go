package pipeline

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/edulake/shapeld/mapping"
)

// ndjsonMaxLine bounds one input line; documents larger than this fail
// the run rather than silently truncating.
const ndjsonMaxLine = 16 << 20

// NDJSONSource reads one JSON object per line.
type NDJSONSource struct {
	f       *os.File
	scanner *bufio.Scanner
	line    int
}

// OpenNDJSON opens a newline-delimited JSON file.
func OpenNDJSON(path string) (*NDJSONSource, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, path)
		}

		return nil, fmt.Errorf("%w: %s: %w", ErrSourceConnect, path, err)
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64<<10), ndjsonMaxLine)

	return &NDJSONSource{f: f, scanner: scanner}, nil
}

func (s *NDJSONSource) Next(ctx context.Context) (mapping.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for s.scanner.Scan() {
		s.line++

		data := s.scanner.Bytes()
		if len(data) == 0 {
			continue
		}

		var rec mapping.Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrSourceRead, s.line, err)
		}

		return rec, nil
	}

	if err := s.scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceRead, err)
	}

	return nil, io.EOF
}

func (s *NDJSONSource) Count() (int, bool) {
	return 0, false
}

func (s *NDJSONSource) Close() error {
	return s.f.Close()
}
