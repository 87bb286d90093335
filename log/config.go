package log

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Config holds the logging flag values for the CLI. Register flags with
// [Config.RegisterFlags], then call [Config.NewLogger] after parsing.
type Config struct {
	Level  string
	Format string
}

// NewConfig returns a config with the standard defaults.
func NewConfig() *Config {
	return &Config{
		Level:  "info",
		Format: "text",
	}
}

// RegisterFlags adds --log-level and --log-format to flags.
func (c *Config) RegisterFlags(flags *pflag.FlagSet) {
	flags.StringVar(&c.Level, "log-level", c.Level,
		fmt.Sprintf("log level, one of: %s", GetAllLevelStrings()))
	flags.StringVar(&c.Format, "log-format", c.Format,
		fmt.Sprintf("log format, one of: %s", GetAllFormatStrings()))
}

// RegisterCompletions registers shell completions for the log flags.
func (c *Config) RegisterCompletions(cmd *cobra.Command) error {
	err := cmd.RegisterFlagCompletionFunc("log-level",
		cobra.FixedCompletions(GetAllLevelStrings(), cobra.ShellCompDirectiveNoFileComp))
	if err != nil {
		return fmt.Errorf("registering log-level completion: %w", err)
	}

	err = cmd.RegisterFlagCompletionFunc("log-format",
		cobra.FixedCompletions(GetAllFormatStrings(), cobra.ShellCompDirectiveNoFileComp))
	if err != nil {
		return fmt.Errorf("registering log-format completion: %w", err)
	}

	return nil
}

// NewLogger builds a [slog.Logger] writing to w with the configured
// level and format.
func (c *Config) NewLogger(w io.Writer) (*slog.Logger, error) {
	handler, err := NewHandlerFromStrings(w, c.Level, c.Format)
	if err != nil {
		return nil, err
	}

	return slog.New(handler), nil
}
