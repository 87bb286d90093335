// Command shapeld converts tabular education records into
// shape-conformant JSON-LD documents.
//
// Shapes are loaded from a shapes directory holding, per shape, a SHACL
// file, a JSON-LD context, and a mapping config; the shape package
// documents the directory layout.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/edulake/shapeld/log"
	"github.com/edulake/shapeld/validate"
	"github.com/edulake/shapeld/version"
)

// exit codes: 1 for general failure, 2 for a validation failure under
// strict mode.
const (
	exitOK         = 0
	exitFailure    = 1
	exitValidation = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	logCfg := log.NewConfig()

	root := &cobra.Command{
		Use:     "shapeld",
		Short:   "Convert tabular education records to shape-conformant JSON-LD",
		Version: version.String(),
		Long: `shapeld ingests tabular records (CSV, NDJSON, Excel), applies a declarative
mapping driven by a SHACL shape and a JSON-LD context, and emits one JSON-LD
document per record. Documents can be validated against the shape before and
after building, and rejected records are routed to a dead-letter file.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := logCfg.NewLogger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			slog.SetDefault(logger)

			return nil
		},
	}

	logCfg.RegisterFlags(root.PersistentFlags())

	if err := logCfg.RegisterCompletions(root); err != nil {
		fmt.Fprintf(os.Stderr, "register completions: %v\n", err)
	}

	root.AddCommand(
		newConvertCmd(),
		newValidateCmd(),
		newIntrospectCmd(),
		newGenerateMappingCmd(),
		newListShapesCmd(),
		newBenchmarkCmd(),
	)

	root.SetArgs(args)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "shapeld: %v\n", err)

		if errors.Is(err, validate.ErrValidation) {
			return exitValidation
		}

		return exitFailure
	}

	return exitOK
}
