package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/edulake/shapeld/shape"
)

func newListShapesCmd() *cobra.Command {
	var shapesDir string

	cmd := &cobra.Command{
		Use:   "list-shapes",
		Short: "List the shapes available in the shapes directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg := shape.NewRegistry(shape.WithLogger(slog.Default()))
			reg.AddSearchPath(shapesDir)

			names, err := reg.Names()
			if err != nil {
				return err
			}

			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&shapesDir, "shapes-dir", defaultShapesDir, "directory holding shape definitions")

	return cmd
}
