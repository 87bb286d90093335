package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/edulake/shapeld/pipeline"
	"github.com/edulake/shapeld/shape"
)

const defaultShapesDir = "shapes"

func loadDefinition(shapesDir, name string) (*shape.Definition, error) {
	if name == "" {
		return nil, fmt.Errorf("a shape name is required (-s)")
	}

	reg := shape.NewRegistry(shape.WithLogger(slog.Default()))
	reg.AddSearchPath(shapesDir)

	return reg.Load(name)
}

// openSource picks an adapter from the input file extension. sheet only
// applies to Excel workbooks.
func openSource(input string, sheet int) (pipeline.Source, error) {
	if input == "" {
		return nil, fmt.Errorf("an input file is required (-i)")
	}

	switch strings.ToLower(filepath.Ext(input)) {
	case ".csv":
		return pipeline.OpenCSV(input, 0)
	case ".tsv":
		return pipeline.OpenCSV(input, '\t')
	case ".ndjson", ".jsonl":
		return pipeline.OpenNDJSON(input)
	case ".xlsx", ".xlsm":
		return pipeline.OpenExcel(input, sheet)
	default:
		return nil, fmt.Errorf("unsupported input format %q (known: .csv, .tsv, .ndjson, .jsonl, .xlsx)", filepath.Ext(input))
	}
}

// signalContext returns a context cancelled on SIGINT or SIGTERM, so an
// interrupted run still reports its partial counts.
func signalContext() context.Context {
	ctx, _ := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	return ctx
}

// logProgress returns a progress callback that emits periodic log lines.
func logProgress() pipeline.Progress {
	return func(processed, total int) {
		if total >= 0 {
			slog.Info("progress", slog.Int("processed", processed), slog.Int("total", total))

			return
		}

		slog.Info("progress", slog.Int("processed", processed))
	}
}
