package workflowctl

import (
	"encoding/json"
	"fmt"
	"os"
)

// exitValid and exitErrors are spec.md §6's two named exit codes for
// `validate`/`compile`: 0 when the document is valid, 2 when it isn't.
// Any other failure (bad flags, unreadable file) is a cobra error instead.
const (
	exitValid  = 0
	exitErrors = 2
)

// printJSONReport marshals v as indented JSON to stdout. Pretty-printing
// uses encoding/json directly rather than a formatting library: tidwall/
// pretty was never added to go.mod, so reaching for it here would be an
// unlisted dependency rather than an already-wired one.
func printJSONReport(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("workflowctl: encode report: %w", err)
	}
	return nil
}
