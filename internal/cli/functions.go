package cli

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/cross19xx/eas-build/internal/service"
	"github.com/spf13/cobra"
)

// newFunctionsCmd creates the functions command
func newFunctionsCmd(global *globalOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "functions",
		Short: "List the build functions available to every definition",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkOutputFormat(output); err != nil {
				return err
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
			functions := svc.Functions()
			if output == "json" {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(functions)
			}

			for _, fn := range functions {
				fmt.Fprintf(out, "%s\n", fn.Name)
				if fn.Description != "" {
					fmt.Fprintf(out, "  %s\n", fn.Description)
				}
				names := make([]string, 0, len(fn.Params))
				for name := range fn.Params {
					names = append(names, name)
				}
				sort.Strings(names)
				for _, name := range names {
					spec := fn.Params[name]
					var attrs []string
					if spec.Type != "" {
						attrs = append(attrs, spec.Type)
					}
					if spec.Required {
						attrs = append(attrs, "required")
					}
					if spec.Default != nil {
						attrs = append(attrs, fmt.Sprintf("default %v", spec.Default))
					}
					fmt.Fprintf(out, "    with.%s (%s)\n", name, strings.Join(attrs, ", "))
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text or json")
	return cmd
}
