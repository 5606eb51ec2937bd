// Command workflowctl is the operator CLI named in spec.md §6:
// `validate`, `compile`, and `schedule upsert|pause|delete|preview`.
package main

import (
	"fmt"
	"os"

	"github.com/realtalishaw/super-enigma/cli/workflowctl"
)

func main() {
	if err := workflowctl.RootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
