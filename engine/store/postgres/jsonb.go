package postgres

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// toJSONB marshals a value to JSONB-compatible bytes, returning nil for a
// nil or nil-pointer input so the column is stored as SQL NULL rather
// than the JSON literal "null".
func toJSONB(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface:
		if rv.IsNil() {
			return nil, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling to jsonb: %w", err)
	}
	return data, nil
}

// fromJSONBMap unmarshals JSONB data into a map[string]any, returning nil
// for nil source bytes.
func fromJSONBMap(src []byte) (map[string]any, error) {
	if src == nil {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal(src, &m); err != nil {
		return nil, fmt.Errorf("unmarshaling from jsonb: %w", err)
	}
	return m, nil
}
