package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cross19xx/eas-build/internal/service"
	"github.com/cross19xx/eas-build/pkg/dsl"
	"github.com/spf13/cobra"
)

// newValidateCmd creates the validate command
func newValidateCmd(global *globalOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "validate [file]",
		Short: "Validate a build definition without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkOutputFormat(output); err != nil {
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
			svc, err := service.New(service.Options{Config: cfg, Logger: log})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			def, err := svc.Validate(content)
			if err != nil {
				var valErr *dsl.ValidationError
				if !errors.As(err, &valErr) {
					return err
				}
				if output == "json" {
					data, jsonErr := valErr.ToJSON()
					if jsonErr != nil {
						return jsonErr
					}
					fmt.Fprintln(out, data)
				} else {
					printValidationError(out, args[0], valErr)
				}
				return fmt.Errorf("%s is not a valid build definition", args[0])
			}

			if output == "json" {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]interface{}{
					"valid":     true,
					"name":      def.Name,
					"steps":     len(def.Steps),
					"functions": def.FunctionNames(),
				})
			}
			fmt.Fprintf(out, "✅ %s is valid (%d steps, %d functions)\n", args[0], len(def.Steps), len(def.Functions))
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text or json")
	return cmd
}

func printValidationError(out io.Writer, file string, valErr *dsl.ValidationError) {
	fmt.Fprintf(out, "❌ %s: %s\n", file, valErr.Detail)
	for _, fe := range valErr.Errors {
		location := fe.Field
		if fe.Line > 0 {
			location = fmt.Sprintf("line %d: %s", fe.Line, fe.Field)
		}
		fmt.Fprintf(out, "\n  %s\n    %s\n", location, fe.Error)
		if fe.Suggestion != "" {
			fmt.Fprintf(out, "    hint: %s\n", fe.Suggestion)
		}
	}
}
