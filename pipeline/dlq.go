package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/edulake/shapeld/builder"
	"github.com/edulake/shapeld/mapping"
	"github.com/edulake/shapeld/sanitize"
	"github.com/edulake/shapeld/validate"
)

// dlqEntry is one dead-letter line. RawRow is masked before writing so
// the file is safe to share when triaging failures.
type dlqEntry struct {
	Reason    string         `json:"reason"`
	ErrorKind string         `json:"error_kind"`
	Message   string         `json:"message"`
	RawRow    map[string]any `json:"raw_row"`
}

// deadLetter appends one JSON line per rejected record. The file is
// created on first write, so a clean run leaves nothing behind. Safe
// for concurrent use.
type deadLetter struct {
	mu    sync.Mutex
	path  string
	f     *os.File
	enc   *json.Encoder
	count int
}

func newDeadLetter(path string) *deadLetter {
	return &deadLetter{path: path}
}

func (d *deadLetter) write(reason, kind, message string, raw mapping.Record) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.f == nil {
		f, err := os.Create(d.path)
		if err != nil {
			return fmt.Errorf("open dead-letter file: %w", err)
		}

		d.f = f
		d.enc = json.NewEncoder(f)
	}

	entry := dlqEntry{
		Reason:    reason,
		ErrorKind: kind,
		Message:   message,
		RawRow:    sanitize.MaskRecord(raw),
	}

	if err := d.enc.Encode(entry); err != nil {
		return fmt.Errorf("write dead-letter entry: %w", err)
	}

	d.count++

	return nil
}

func (d *deadLetter) written() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.count
}

func (d *deadLetter) close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.f == nil {
		return nil
	}

	f := d.f
	d.f = nil

	return f.Close()
}

// errorKind labels a per-record failure for the dead-letter file.
func errorKind(err error) string {
	switch {
	case errors.Is(err, mapping.ErrRequiredMissing):
		return "required_missing"
	case errors.Is(err, mapping.ErrRaggedMultiValue):
		return "ragged_multi_value"
	case errors.Is(err, mapping.ErrTypeMismatch):
		return "type_mismatch"
	case errors.Is(err, mapping.ErrInvalidScalar):
		return "invalid_scalar"
	case errors.Is(err, builder.ErrIDEmpty):
		return "id_empty"
	case errors.Is(err, builder.ErrUnwrappableStructure):
		return "unwrappable_structure"
	case errors.Is(err, builder.ErrInvalidIRI):
		return "invalid_iri"
	case errors.Is(err, validate.ErrValidation):
		return "validation"
	default:
		return "unknown"
	}
}
