package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/edulake/shapeld/jsonld"
	"github.com/edulake/shapeld/mapping"
	"github.com/edulake/shapeld/shacl"
)

type generateMappingOptions struct {
	shaclPath   string
	output      string
	contextURL  string
	contextFile string
	baseURI     string
}

func newGenerateMappingCmd() *cobra.Command {
	opts := &generateMappingOptions{}

	cmd := &cobra.Command{
		Use:   "generate-mapping --shacl <file>",
		Short: "Generate a skeleton mapping config from a SHACL file",
		Long: `generate-mapping walks the root node shape and emits a mapping config
skeleton with one slot per sub-shape. Source column names are guessed from
property local names; edit them to match the real input before use.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGenerateMapping(cmd, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.shaclPath, "shacl", "", "SHACL Turtle file to generate from")
	flags.StringVarP(&opts.output, "output", "o", "", "output file, or - for stdout")
	flags.StringVar(&opts.contextURL, "context-url", "", "context URL written to the template")
	flags.StringVar(&opts.contextFile, "context-file", "", "local context file used for term names")
	flags.StringVar(&opts.baseURI, "base-uri", "", "base URI written to the template")
	_ = cmd.MarkFlagRequired("shacl")

	return cmd
}

func runGenerateMapping(cmd *cobra.Command, opts *generateMappingOptions) error {
	data, err := os.ReadFile(opts.shaclPath)
	if err != nil {
		return fmt.Errorf("read SHACL file: %w", err)
	}

	in, err := shacl.Parse(data)
	if err != nil {
		return err
	}

	root := in.Root()
	if root == nil {
		return fmt.Errorf("%w: no root node shape found", shacl.ErrInvalidShape)
	}

	var ctx *jsonld.Context

	if opts.contextFile != "" {
		ctxData, err := os.ReadFile(opts.contextFile)
		if err != nil {
			return fmt.Errorf("read context file: %w", err)
		}

		ctx, err = jsonld.ParseContext(ctxData)
		if err != nil {
			return err
		}
	}

	cfg, err := shacl.GenerateMapping(root, ctx, shacl.TemplateOptions{
		ContextURL:  opts.contextURL,
		ContextFile: opts.contextFile,
		BaseURI:     opts.baseURI,
	})
	if err != nil {
		return err
	}

	out, err := mapping.EncodeYAML(cfg)
	if err != nil {
		return err
	}

	if opts.output == "" || opts.output == "-" {
		_, err := cmd.OutOrStdout().Write(out)

		return err
	}

	if err := os.WriteFile(opts.output, out, 0o644); err != nil {
		return fmt.Errorf("write mapping: %w", err)
	}

	return nil
}
