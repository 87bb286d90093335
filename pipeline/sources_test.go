package pipeline_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/edulake/shapeld/mapping"
	"github.com/edulake/shapeld/pipeline"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func drain(t *testing.T, src pipeline.Source) []mapping.Record {
	t.Helper()

	var out []mapping.Record

	for {
		rec, err := src.Next(context.Background())
		if err == io.EOF {
			return out
		}

		require.NoError(t, err)

		out = append(out, rec)
	}
}

func TestCSVSource(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "people.csv", "FirstName,LastName,Sex\nEDITH,ADAMS,Female\nJOHN,DOE,Male\n")

	src, err := pipeline.OpenCSV(path, 0)
	require.NoError(t, err)

	defer src.Close()

	assert.Equal(t, []string{"FirstName", "LastName", "Sex"}, src.Columns())

	records := drain(t, src)
	require.Len(t, records, 2)
	assert.Equal(t, "EDITH", records[0]["FirstName"])
	assert.Equal(t, "Male", records[1]["Sex"])
}

func TestCSVSourceShortRow(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "short.csv", "A,B,C\n1,2\n")

	src, err := pipeline.OpenCSV(path, 0)
	require.NoError(t, err)

	defer src.Close()

	rec, err := src.Next(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "1", rec["A"])
	assert.Equal(t, "2", rec["B"])

	_, hasC := rec["C"]
	assert.False(t, hasC)
}

func TestCSVSourceLongRow(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "long.csv", "A,B\n1,2,3\n")

	src, err := pipeline.OpenCSV(path, 0)
	require.NoError(t, err)

	defer src.Close()

	_, err = src.Next(context.Background())
	require.ErrorIs(t, err, pipeline.ErrSourceRead)
}

func TestCSVSourceTabDelimited(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "people.tsv", "A\tB\n1\t2\n")

	src, err := pipeline.OpenCSV(path, '\t')
	require.NoError(t, err)

	defer src.Close()

	rec, err := src.Next(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "2", rec["B"])
}

func TestOpenCSVErrors(t *testing.T) {
	t.Parallel()

	_, err := pipeline.OpenCSV(filepath.Join(t.TempDir(), "absent.csv"), 0)
	require.ErrorIs(t, err, pipeline.ErrSourceNotFound)

	empty := writeFile(t, "empty.csv", "")

	_, err = pipeline.OpenCSV(empty, 0)
	require.ErrorIs(t, err, pipeline.ErrSourceRead)
}

func TestNDJSONSource(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "people.ndjson",
		`{"FirstName":"EDITH","Age":59}`+"\n\n"+`{"FirstName":"JOHN","Age":41}`+"\n")

	src, err := pipeline.OpenNDJSON(path)
	require.NoError(t, err)

	defer src.Close()

	records := drain(t, src)
	require.Len(t, records, 2)
	assert.Equal(t, "EDITH", records[0]["FirstName"])
	assert.Equal(t, float64(41), records[1]["Age"])
}

func TestNDJSONSourceBadLine(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "bad.ndjson", `{"ok":true}`+"\n{not json\n")

	src, err := pipeline.OpenNDJSON(path)
	require.NoError(t, err)

	defer src.Close()

	_, err = src.Next(context.Background())
	require.NoError(t, err)

	_, err = src.Next(context.Background())
	require.ErrorIs(t, err, pipeline.ErrSourceRead)
	assert.Contains(t, err.Error(), "line 2")
}

func TestExcelSource(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "people.xlsx")

	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]any{"FirstName", "LastName"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]any{"EDITH", "ADAMS"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A3", &[]any{"JOHN"}))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	src, err := pipeline.OpenExcel(path, 0)
	require.NoError(t, err)

	defer src.Close()

	records := drain(t, src)
	require.Len(t, records, 2)
	assert.Equal(t, "ADAMS", records[0]["LastName"])
	assert.Equal(t, "", records[1]["LastName"], "missing trailing cells read as empty")
}

func TestOpenExcelErrors(t *testing.T) {
	t.Parallel()

	_, err := pipeline.OpenExcel(filepath.Join(t.TempDir(), "absent.xlsx"), 0)
	require.ErrorIs(t, err, pipeline.ErrSourceNotFound)

	path := filepath.Join(t.TempDir(), "one.xlsx")

	f := excelize.NewFile()
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	_, err = pipeline.OpenExcel(path, 3)
	require.ErrorIs(t, err, pipeline.ErrSourceRead)
}

func TestReadBatch(t *testing.T) {
	t.Parallel()

	src := &memSource{records: []mapping.Record{
		personRow("1"), personRow("2"), personRow("3"),
	}}

	batch, more, err := pipeline.ReadBatch(context.Background(), src, 2)
	require.NoError(t, err)
	assert.Len(t, batch, 2)
	assert.True(t, more)

	batch, more, err = pipeline.ReadBatch(context.Background(), src, 2)
	require.NoError(t, err)
	assert.Len(t, batch, 1)
	assert.False(t, more)
}
