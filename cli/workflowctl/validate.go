package workflowctl

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/realtalishaw/super-enigma/engine/catalog"
	"github.com/realtalishaw/super-enigma/engine/dag"
	"github.com/realtalishaw/super-enigma/engine/expr"
	"github.com/realtalishaw/super-enigma/engine/validator"
)

// validateReport is the JSON shape `validate` prints: the validation
// result plus the non-blocking lint report, since an operator checking a
// document wants both in one call (spec.md §4.1 names them as separate
// operations, but the CLI surface in §6 only names one `validate` verb).
type validateReport struct {
	OK     bool                        `json:"ok"`
	Stage  dag.Stage                   `json:"stage"`
	Errors []validator.ValidationError `json:"errors,omitempty"`
	Lint   validator.LintReport        `json:"lint"`
}

func newValidateCmd() *cobra.Command {
	var catalogPath string
	var fanoutThreshold int

	cmd := &cobra.Command{
		Use:   "validate <stage> <path>",
		Short: "Validate a workflow document at a given stage (exit 0 valid, 2 errors)",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			stage := dag.Stage(args[0])
			if stage != dag.StageTemplate && stage != dag.StageExecutable && stage != dag.StageDAG {
				return fmt.Errorf("workflowctl: stage must be one of template, executable, dag (got %q)", args[0])
			}
			raw, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("workflowctl: read document: %w", err)
			}
			doc, err := validator.ParseWireFormat(raw, stage)
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

			res, err := validator.Validate(context.Background(), doc, cat, exprEnv, opts)
			if err != nil {
				return err
			}
			report := validateReport{
				OK: res.OK, Stage: stage, Errors: res.Errors, Lint: validator.Lint(doc, opts),
			}
			if err := printJSONReport(report); err != nil {
				return err
			}
			if !res.OK {
				os.Exit(exitErrors)
			}
			os.Exit(exitValid)
			return nil
		},
	}
	cmd.Flags().StringVar(&catalogPath, "catalog", "", "path to a JSON Tool Catalog snapshot (omit to skip catalog checks)")
	cmd.Flags().IntVar(&fanoutThreshold, "fanout-threshold", 0, "override W201's parallel fan-out threshold (0 = default)")
	return cmd
}

// resolveCatalog loads --catalog into opts, or sets SkipCatalogChecks when
// no path was given. Returning a bare nil (not a typed *catalog.Memory)
// matters here: checkCatalog's `cat == nil` guard only short-circuits on
// an untyped nil interface, and engine/catalog.Memory's methods assume a
// non-nil receiver.
func resolveCatalog(path string, opts *validator.Options) (catalog.Catalog, error) {
	if path == "" {
		opts.SkipCatalogChecks = true
		return nil, nil
	}
	mem, err := loadCatalog(path)
	if err != nil {
		return nil, err
	}
	return mem, nil
}
