package validator

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/realtalishaw/super-enigma/engine/dag"
)

// documentSchemaReflector is what DocumentSchema uses to generate the JSON
// Schema for the wire-format DAG document. No `workflowctl` command
// publishes that schema.
var documentSchemaReflector = &jsonschema.Reflector{ExpandedStruct: true}

// DocumentSchema returns the JSON Schema describing dag.Document's wire
// format.
func DocumentSchema() *jsonschema.Schema {
	return documentSchemaReflector.Reflect(&dag.Document{})
}

// ParseWireFormat decodes raw strictly: any top-level field dag.Document
// doesn't declare is a hard error (spec.md §6 "unknown-field rejection"),
// returned as a plain decode error rather than silently dropped. Node data
// is decoded by dag.Node's own UnmarshalJSON, which does not reject
// unknown fields. The
// stage must be supplied by the caller since `stage` is carried out of
// band of the wire document (spec.md §4.1 operations take stage as a
// parameter, not a document field the wire format itself asserts).
func ParseWireFormat(raw []byte, stage dag.Stage) (*dag.Document, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var doc dag.Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("validator: %s document has unknown or malformed fields: %w", stage, err)
	}
	doc.Stage = stage
	return &doc, nil
}
