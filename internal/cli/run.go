package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/cross19xx/eas-build/internal/service"
	"github.com/cross19xx/eas-build/pkg/build"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type runOptions struct {
	env          []string
	workdir      string
	artifactsDir string
	output       string
	stepTimeout  int
}

// newRunCmd creates the run command
func newRunCmd(global *globalOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run [file]",
		Short: "Execute a build definition",
		Long: `Execute the steps of a build definition in order and print the
collected artifacts. The base working directory is removed when the build
finishes; copy deliverables to $EAS_BUILD_ARTIFACTS_DIR (--artifacts-dir)
to keep them.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkOutputFormat(opts.output); err != nil {
				return err
			}
			env, err := parseEnvFlags(opts.env)
			if err != nil {
				return err
			}

			content, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read build definition: %w", err)
			}

			cfg, log, err := global.setup()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			if cmd.Flags().Changed("step-timeout") {
				cfg.Build.StepTimeoutMinutes = opts.stepTimeout
			}

			svc, err := service.New(service.Options{
				Config:               cfg,
				Logger:               log,
				StepOutput:           cmd.ErrOrStderr(),
				TrustDefinitionPaths: true,
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			result, runErr := svc.Run(ctx, service.RunRequest{
				Content:          content,
				Env:              env,
				WorkingDirectory: opts.workdir,
				ArtifactsDir:     opts.artifactsDir,
			})
			if result == nil {
				return runErr
			}

			if err := printResult(cmd.OutOrStdout(), result, opts.output); err != nil {
				log.Error("Failed to print build result", zap.Error(err))
			}
			return runErr
		},
	}

	cmd.Flags().StringArrayVarP(&opts.env, "env", "e", nil, "environment variable KEY=VALUE (repeatable)")
	cmd.Flags().StringVar(&opts.workdir, "workdir", "", "base working directory (removed after the build)")
	cmd.Flags().StringVar(&opts.artifactsDir, "artifacts-dir", "", "directory exposed to steps as EAS_BUILD_ARTIFACTS_DIR")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "text", "output format: text or json")
	cmd.Flags().IntVar(&opts.stepTimeout, "step-timeout", 0, "default step timeout in minutes (0 disables)")

	return cmd
}

// parseEnvFlags 解析 KEY=VALUE 形式的环境变量
func parseEnvFlags(values []string) (build.Env, error) {
	if len(values) == 0 {
		return nil, nil
	}
	env := make(build.Env, len(values))
	for _, kv := range values {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --env value %q (expected KEY=VALUE)", kv)
		}
		env[key] = value
	}
	return env, nil
}

func printResult(w io.Writer, result *service.Result, format string) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	fmt.Fprintf(w, "Build:  %s (%s)\n", result.Name, result.ID)
	fmt.Fprintf(w, "Status: %s in %s\n", result.Status, result.Duration.Round(time.Millisecond))
	if result.Error != "" {
		fmt.Fprintf(w, "Error:  %s\n", result.Error)
	}

	fmt.Fprintln(w, "\nSteps:")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, st := range result.Steps {
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%d artifacts\n",
			st.StepID, st.Status, time.Duration(st.DurationMillis)*time.Millisecond, st.Artifacts)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(result.Artifacts) == 0 {
		fmt.Fprintln(w, "\nNo artifacts.")
		return nil
	}

	types := make([]string, 0, len(result.Artifacts))
	for t := range result.Artifacts {
		types = append(types, t)
	}
	sort.Strings(types)

	fmt.Fprintln(w, "\nArtifacts:")
	for _, t := range types {
		fmt.Fprintf(w, "  %s:\n", t)
		for _, path := range result.Artifacts[t] {
			fmt.Fprintf(w, "    %s\n", path)
		}
	}
	return nil
}

