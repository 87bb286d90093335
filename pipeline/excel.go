package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/xuri/excelize/v2"

	"github.com/edulake/shapeld/mapping"
)

// ExcelSource reads raw records from one worksheet. The first row is
// the header; cell values arrive as strings.
type ExcelSource struct {
	f      *excelize.File
	rows   *excelize.Rows
	header []string
	count  int
}

// OpenExcel opens a workbook and positions on the given sheet index
// (zero-based).
func OpenExcel(path string, sheet int) (*ExcelSource, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, path)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSourceRead, path, err)
	}

	sheets := f.GetSheetList()
	if sheet < 0 || sheet >= len(sheets) {
		_ = f.Close()

		return nil, fmt.Errorf("%w: sheet %d out of range, workbook has %d sheets",
			ErrSourceRead, sheet, len(sheets))
	}

	name := sheets[sheet]

	rows, err := f.Rows(name)
	if err != nil {
		_ = f.Close()

		return nil, fmt.Errorf("%w: sheet %q: %w", ErrSourceRead, name, err)
	}

	if !rows.Next() {
		_ = rows.Close()
		_ = f.Close()

		return nil, fmt.Errorf("%w: sheet %q has no header row", ErrSourceRead, name)
	}

	header, err := rows.Columns()
	if err != nil {
		_ = rows.Close()
		_ = f.Close()

		return nil, fmt.Errorf("%w: sheet %q header: %w", ErrSourceRead, name, err)
	}

	return &ExcelSource{f: f, rows: rows, header: header}, nil
}

func (s *ExcelSource) Next(ctx context.Context) (mapping.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !s.rows.Next() {
		if err := s.rows.Error(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSourceRead, err)
		}

		return nil, io.EOF
	}

	cells, err := s.rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceRead, err)
	}

	rec := make(mapping.Record, len(s.header))

	for i, col := range s.header {
		if i < len(cells) {
			rec[col] = cells[i]
		} else {
			rec[col] = ""
		}
	}

	s.count++

	return rec, nil
}

func (s *ExcelSource) Count() (int, bool) {
	return 0, false
}

func (s *ExcelSource) Close() error {
	if s.rows != nil {
		_ = s.rows.Close()
	}

	return s.f.Close()
}
