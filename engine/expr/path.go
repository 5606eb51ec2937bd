package expr

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/tidwall/gjson"
)

var legalPathRe = regexp.MustCompile(`^[A-Za-z0-9_.\[\]#@*\-]+$`)

// ExtractOutputVar resolves a dotted/bracketed JSON path (spec.md §3:
// "output_vars pointing to legal JSON paths") against an action result and
// returns the plain Go value at that path. result is marshaled to JSON
// once so gjson can walk it; callers extracting many paths from the same
// result should marshal once and call ResolvePath directly.
func ExtractOutputVar(result any, path string) (any, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("expr: marshal result for path %q: %w", path, err)
	}
	return ResolvePath(raw, path)
}

// ResolvePath resolves path against an already-marshaled JSON document.
func ResolvePath(raw []byte, path string) (any, error) {
	r := gjson.GetBytes(raw, path)
	if !r.Exists() {
		return nil, fmt.Errorf("expr: path %q not found", path)
	}
	return r.Value(), nil
}

// PathIsLegal reports whether path is a syntactically well-formed gjson
// path, independent of whether it currently resolves against any
// particular document. The Validator uses this at the dag stage to catch
// malformed output_vars paths (E008-class) before a run ever reaches them.
func PathIsLegal(path string) bool {
	return path != "" && legalPathRe.MatchString(path)
}
