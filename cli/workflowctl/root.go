// Package workflowctl is the cobra command tree for the `workflowctl`
// operator CLI named in spec.md §6: validate/compile documents offline
// against engine/validator, and manage cron schedules against the
// Postgres-backed Scheduler.
package workflowctl

import (
	"github.com/spf13/cobra"
)

// RootCmd builds the workflowctl command tree.
func RootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "workflowctl",
		Short: "Operator CLI for the workflow control plane",
		Long: `workflowctl validates and compiles workflow DAG documents and manages
cron schedules, per spec.md §6's optional CLI surface.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newValidateCmd(),
		newCompileCmd(),
		newScheduleCmd(),
	)
	return root
}
