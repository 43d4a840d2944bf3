// Package cli implements the eas-build command line.
package cli

import (
	"fmt"

	"github.com/cross19xx/eas-build/pkg/config"
	"github.com/cross19xx/eas-build/pkg/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// globalOptions are flags shared by every subcommand.
type globalOptions struct {
	configFile string
	logLevel   string
	logFormat  string
}

// Execute runs the root command
func Execute(version, commit, date string) error {
	return NewRootCmd(version, commit, date).Execute()
}

// NewRootCmd builds the command tree.
func NewRootCmd(version, commit, date string) *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "eas-build",
		Short: "Run build workflows and collect their artifacts",
		Long: `eas-build runs the steps of a YAML build definition one after another
in a shared working directory, expands reusable build functions, and
reports the artifacts the steps uploaded, grouped by type.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	opts.addFlags(rootCmd)

	rootCmd.AddCommand(
		newVersionCmd(version, commit, date),
		newValidateCmd(opts),
		newRunCmd(opts),
		newFunctionsCmd(opts),
		newServeCmd(opts, version, commit, date),
	)

	return rootCmd
}

func (o *globalOptions) addFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVarP(&o.configFile, "config", "c", "", "config file path")
	cmd.PersistentFlags().StringVar(&o.logLevel, "log-level", "", "log level (overrides config)")
	cmd.PersistentFlags().StringVar(&o.logFormat, "log-format", "", "log format: json or text (overrides config)")
}

// setup loads configuration and initialises the global logger.
func (o *globalOptions) setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(o.configFile)
	if err != nil {
		return nil, nil, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Log.Format = o.logFormat
	}

	if err := logger.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.Output); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, logger.Log, nil
}

// newVersionCmd creates the version command
func newVersionCmd(version, commit, date string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "eas-build %s\n", version)
			fmt.Fprintf(out, "Commit: %s\n", commit)
			fmt.Fprintf(out, "Built: %s\n", date)
		},
	}
}

func checkOutputFormat(format string) error {
	switch format {
	case "text", "json":
		return nil
	default:
		return fmt.Errorf("invalid output format %q (must be text or json)", format)
	}
}
