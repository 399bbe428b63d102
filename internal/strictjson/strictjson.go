// Package strictjson decodes model-generated JSON under the untrusted-
// parsing discipline spec.md §9 requires of the planner, evaluator, and
// entity-extractor outputs: unknown fields are rejected at error level,
// missing optional fields are tolerated (ordinary zero-value decoding).
package strictjson

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Decode unmarshals raw into v, rejecting any field in raw that has no
// matching member in v's type. Missing fields are left at their zero value,
// which callers treat as "optional and absent."
func Decode(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("strictjson: %w", err)
	}
	return nil
}
