package workflowctl

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/realtalishaw/super-enigma/engine/catalog"
)

// catalogFile is the on-disk shape workflowctl accepts for the --catalog
// flag: a snapshot of the Tool Catalog (spec.md §6's "consumed" contract)
// an operator can hand the CLI when validating offline, without standing
// up the live integration registry. Keyed as "<provider>:<name>" to match
// engine/catalog.Memory's own lookup key.
type catalogFile struct {
	Providers []*catalog.Provider            `json:"providers"`
	Actions   map[string]*catalog.ActionSpec  `json:"actions"`
	Triggers  map[string]*catalog.TriggerSpec `json:"triggers"`
}

// loadCatalog reads path into an engine/catalog.Memory. An empty path
// means "no catalog supplied"; callers should pass SkipCatalogChecks=true
// in that case rather than treating it as an error.
func loadCatalog(path string) (*catalog.Memory, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("workflowctl: read catalog file: %w", err)
	}
	var cf catalogFile
	if err := json.Unmarshal(raw, &cf); err != nil {
		return nil, fmt.Errorf("workflowctl: parse catalog file: %w", err)
	}
	mem := catalog.NewMemory()
	for _, p := range cf.Providers {
		mem.PutProvider(p)
	}
	for key, spec := range cf.Actions {
		provider, action, err := splitCatalogKey(key)
		if err != nil {
			return nil, fmt.Errorf("workflowctl: catalog actions: %w", err)
		}
		mem.PutAction(provider, action, spec)
	}
	for key, spec := range cf.Triggers {
		provider, slug, err := splitCatalogKey(key)
		if err != nil {
			return nil, fmt.Errorf("workflowctl: catalog triggers: %w", err)
		}
		mem.PutTrigger(provider, slug, spec)
	}
	return mem, nil
}

func splitCatalogKey(key string) (provider, name string, err error) {
	for i := 0; i < len(key); i++ {
		if key[i] == ':' {
			return key[:i], key[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("key %q is not of the form provider:name", key)
}
