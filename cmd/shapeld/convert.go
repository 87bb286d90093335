package main

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/edulake/shapeld/pipeline"
	"github.com/edulake/shapeld/validate"
)

type convertOptions struct {
	shapesDir  string
	shapeName  string
	input      string
	output     string
	format     string
	sheet      int
	validate   bool
	mode       string
	sampleRate float64
	seed       uint64
	deadLetter string
	pretty     bool
	compact    bool
}

func newConvertCmd() *cobra.Command {
	opts := &convertOptions{}

	cmd := &cobra.Command{
		Use:   "convert -s <shape> -i <input> -o <output>",
		Short: "Convert records to JSON-LD documents",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runConvert(opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.shapesDir, "shapes-dir", defaultShapesDir, "directory holding shape definitions")
	flags.StringVarP(&opts.shapeName, "shape", "s", "", "shape name to convert against")
	flags.StringVarP(&opts.input, "input", "i", "", "input file (.csv, .tsv, .ndjson, .jsonl, .xlsx)")
	flags.StringVarP(&opts.output, "output", "o", "", "output file, or - for stdout")
	flags.StringVar(&opts.format, "format", "json", "output format, json or ndjson")
	flags.IntVar(&opts.sheet, "sheet", 0, "worksheet index for Excel input")
	flags.BoolVar(&opts.validate, "validate", false, "validate records before building")
	flags.StringVar(&opts.mode, "mode", "report", "validation mode, one of: strict, report, sample")
	flags.Float64Var(&opts.sampleRate, "sample-rate", 0, "fraction of records validated in sample mode")
	flags.Uint64Var(&opts.seed, "seed", 0, "sampling RNG seed")
	flags.StringVar(&opts.deadLetter, "dead-letter", "", "write rejected records to this NDJSON file")
	flags.BoolVar(&opts.pretty, "pretty", false, "indent JSON output")
	flags.BoolVar(&opts.compact, "compact", false, "force compact JSON output")

	return cmd
}

func runConvert(opts *convertOptions) error {
	if opts.format != "json" && opts.format != "ndjson" {
		return fmt.Errorf("unknown output format %q (known: json, ndjson)", opts.format)
	}

	if opts.pretty && opts.compact {
		return fmt.Errorf("--pretty and --compact are mutually exclusive")
	}

	def, err := loadDefinition(opts.shapesDir, opts.shapeName)
	if err != nil {
		return err
	}

	popts := []pipeline.Option{
		pipeline.WithLogger(slog.Default()),
		pipeline.WithProgress(logProgress(), 0),
	}

	if opts.validate {
		mode, err := validate.ParseMode(opts.mode)
		if err != nil {
			return err
		}

		popts = append(popts, pipeline.WithValidation(mode, validate.Options{
			SampleRate: opts.sampleRate,
			Seed:       opts.seed,
		}))
	}

	if opts.deadLetter != "" {
		popts = append(popts, pipeline.WithDeadLetter(opts.deadLetter))
	}

	p, err := pipeline.New(def, popts...)
	if err != nil {
		return err
	}

	src, err := openSource(opts.input, opts.sheet)
	if err != nil {
		return err
	}

	out, closeOut, err := openOutput(opts.output)
	if err != nil {
		_ = src.Close()

		return err
	}

	w := bufio.NewWriter(out)

	var result *pipeline.Result

	ctx := signalContext()

	switch opts.format {
	case "ndjson":
		result, err = p.ToNDJSON(ctx, src, w)
	default:
		// Arrays default to pretty output unless --compact asks otherwise.
		result, err = p.ToJSON(ctx, src, w, !opts.compact || opts.pretty)
	}

	if flushErr := w.Flush(); flushErr != nil && err == nil {
		err = flushErr
	}

	if closeErr := closeOut(); closeErr != nil && err == nil {
		err = closeErr
	}

	if result != nil {
		logResult(result)
	}

	return err
}

func openOutput(path string) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return os.Stdout, func() error { return nil }, nil
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create output: %w", err)
	}

	return f, f.Close, nil
}

func logResult(result *pipeline.Result) {
	attrs := []any{
		slog.String("state", string(result.State)),
		slog.Int("records_in", result.RecordsIn),
		slog.Int("records_out", result.RecordsOut),
		slog.Int("records_failed", result.RecordsFailed),
		slog.Int("records_filtered", result.RecordsFiltered),
		slog.Int64("bytes_written", result.BytesWritten),
		slog.Duration("elapsed", result.Elapsed),
		slog.Float64("records_per_second", result.RecordsPerSecond),
	}

	if result.DeadLetterPath != "" {
		attrs = append(attrs, slog.String("dead_letter", result.DeadLetterPath))
	}

	slog.Info("run finished", attrs...)
}
