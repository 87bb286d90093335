package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/edulake/shapeld/shacl"
)

type introspectOptions struct {
	shaclPath string
	asJSON    bool
}

func newIntrospectCmd() *cobra.Command {
	opts := &introspectOptions{}

	cmd := &cobra.Command{
		Use:   "introspect --shacl <file>",
		Short: "Summarize the node shapes in a SHACL file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIntrospect(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.shaclPath, "shacl", "", "SHACL Turtle file to introspect")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "emit the shape summary as JSON")
	_ = cmd.MarkFlagRequired("shacl")

	return cmd
}

func runIntrospect(cmd *cobra.Command, opts *introspectOptions) error {
	data, err := os.ReadFile(opts.shaclPath)
	if err != nil {
		return fmt.Errorf("read SHACL file: %w", err)
	}

	in, err := shacl.Parse(data)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	if opts.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")

		return enc.Encode(in.Shapes())
	}

	for _, shp := range in.Shapes() {
		fmt.Fprintf(out, "%s", shp.Name)

		if shp.TargetClass != "" {
			fmt.Fprintf(out, " (targets %s)", shacl.LocalName(shp.TargetClass))
		}

		if shp.Closed {
			fmt.Fprint(out, " [closed]")
		}

		fmt.Fprintln(out)

		for i := range shp.Properties {
			fmt.Fprintf(out, "  %s\n", describeProperty(&shp.Properties[i]))
		}
	}

	return nil
}

func describeProperty(prop *shacl.PropertyInfo) string {
	var sb strings.Builder

	sb.WriteString(prop.LocalName)
	sb.WriteString(" ")
	sb.WriteString(cardinality(prop))

	if prop.Datatype != "" {
		fmt.Fprintf(&sb, " datatype=%s", shacl.LocalName(prop.Datatype))
	}

	if prop.NodeShapeRef != "" {
		fmt.Fprintf(&sb, " node=%s", shacl.LocalName(prop.NodeShapeRef))
	}

	if len(prop.AllowedValues) > 0 {
		names := make([]string, 0, len(prop.AllowedValues))
		for _, v := range prop.AllowedValues {
			names = append(names, shacl.LocalName(v))
		}

		fmt.Fprintf(&sb, " in={%s}", strings.Join(names, ", "))
	}

	return sb.String()
}

func cardinality(prop *shacl.PropertyInfo) string {
	max := "*"
	if prop.MaxCount != shacl.MaxUnbounded {
		max = fmt.Sprintf("%d", prop.MaxCount)
	}

	return fmt.Sprintf("[%d..%s]", prop.MinCount, max)
}
