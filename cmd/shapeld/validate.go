package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/edulake/shapeld/pipeline"
	"github.com/edulake/shapeld/validate"
)

type validateOptions struct {
	shapesDir  string
	shapeName  string
	input      string
	sheet      int
	mode       string
	shacl      bool
	sampleRate float64
	seed       uint64
}

func newValidateCmd() *cobra.Command {
	opts := &validateOptions{}

	cmd := &cobra.Command{
		Use:   "validate -s <shape> -i <input>",
		Short: "Validate records against a shape without writing output",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runValidate(cmd, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.shapesDir, "shapes-dir", defaultShapesDir, "directory holding shape definitions")
	flags.StringVarP(&opts.shapeName, "shape", "s", "", "shape name to validate against")
	flags.StringVarP(&opts.input, "input", "i", "", "input file (.csv, .tsv, .ndjson, .jsonl, .xlsx)")
	flags.IntVar(&opts.sheet, "sheet", 0, "worksheet index for Excel input")
	flags.StringVar(&opts.mode, "mode", "report", "validation mode, one of: strict, report, sample")
	flags.BoolVar(&opts.shacl, "shacl", false, "also validate built documents against the shape graph")
	flags.Float64Var(&opts.sampleRate, "sample-rate", 0, "fraction of records validated in sample mode")
	flags.Uint64Var(&opts.seed, "seed", 0, "sampling RNG seed")

	return cmd
}

func runValidate(cmd *cobra.Command, opts *validateOptions) error {
	mode, err := validate.ParseMode(opts.mode)
	if err != nil {
		return err
	}

	def, err := loadDefinition(opts.shapesDir, opts.shapeName)
	if err != nil {
		return err
	}

	popts := []pipeline.Option{
		pipeline.WithLogger(slog.Default()),
		pipeline.WithValidation(mode, validate.Options{
			SampleRate: opts.sampleRate,
			Seed:       opts.seed,
		}),
	}

	if opts.shacl {
		popts = append(popts, pipeline.WithSHACL())
	}

	p, err := pipeline.New(def, popts...)
	if err != nil {
		return err
	}

	src, err := openSource(opts.input, opts.sheet)
	if err != nil {
		return err
	}

	vres, result, runErr := p.Validate(signalContext(), src)
	if vres == nil {
		return runErr
	}

	out := cmd.OutOrStdout()

	for _, issue := range vres.Issues {
		fmt.Fprintln(out, issue.String())
	}

	fmt.Fprintf(out, "checked %d records: %d errors, %d warnings\n",
		result.RecordsIn, vres.Errors, vres.Warnings)

	return runErr
}
