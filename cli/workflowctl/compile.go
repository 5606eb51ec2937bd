package workflowctl

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/realtalishaw/super-enigma/engine/dag"
	"github.com/realtalishaw/super-enigma/engine/expr"
	"github.com/realtalishaw/super-enigma/engine/validator"
)

func newCompileCmd() *cobra.Command {
	var catalogPath, outPath string
	var fanoutThreshold int

	cmd := &cobra.Command{
		Use:   "compile <executable>",
		Short: "Lower an executable-stage document to the dag stage (exit 0 valid, 2 errors)",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("workflowctl: read document: %w", err)
			}
			doc, err := validator.ParseWireFormat(raw, dag.StageExecutable)
			if err != nil {
				return err
			}

			opts := validator.Options{FanoutThreshold: fanoutThreshold}
			cat, err := resolveCatalog(catalogPath, &opts)
			if err != nil {
				return err
			}
			exprEnv, err := expr.NewEnv()
			if err != nil {
				return fmt.Errorf("workflowctl: build expression env: %w", err)
			}

			result := validator.ValidateAndCompile(context.Background(), doc, cat, exprEnv, opts)
			if err := printJSONReport(result); err != nil {
				return err
			}
			if !result.OK {
				os.Exit(exitErrors)
			}
			if outPath != "" {
				out, err := json.MarshalIndent(result.DAG, "", "  ")
				if err != nil {
					return fmt.Errorf("workflowctl: encode compiled document: %w", err)
				}
				if err := os.WriteFile(outPath, out, 0o644); err != nil {
					return fmt.Errorf("workflowctl: write %s: %w", outPath, err)
				}
			}
			os.Exit(exitValid)
			return nil
		},
	}
	cmd.Flags().StringVar(&catalogPath, "catalog", "", "path to a JSON Tool Catalog snapshot (omit to skip catalog checks)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write the compiled dag-stage document to this path")
	cmd.Flags().IntVar(&fanoutThreshold, "fanout-threshold", 0, "override W201's parallel fan-out threshold (0 = default)")
	return cmd
}
