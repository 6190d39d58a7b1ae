// Package check backs the check module's optional schema-validation and
// JSON-path-extraction kinds (spec §6 names "check" among the host's
// built-in modules but does not enumerate its check kinds; the original
// Rust wrkr exposes check.matches_schema / value-path extraction backed by
// the same two libraries this package wraps). Every kind returns a plain
// bool or value.Value plus an error for caller misuse, mirroring
// httpclient's "never throws for protocol-level failures" convention.
package check

import (
	"fmt"

	"github.com/nogcio/wrkr/internal/value"
	"github.com/nogcio/wrkr/pkg/jsonpath"
	"github.com/nogcio/wrkr/pkg/jsonschema"
)

// InvalidUsageError reports caller misuse, such as a malformed schema.
type InvalidUsageError struct{ Msg string }

func (e *InvalidUsageError) Error() string { return "invalid usage: " + e.Msg }

// MatchesSchema reports whether body validates against the given JSON
// Schema document, both as raw JSON text. A malformed schema is an
// InvalidUsageError; a body that fails validation is simply a false
// result, not an error, since check predicates are never fatal.
func MatchesSchema(body []byte, schema []byte) (bool, error) {
	ok, err := jsonschema.Validate(string(body), string(schema))
	if err != nil {
		return false, &InvalidUsageError{Msg: err.Error()}
	}
	return ok, nil
}

// MatchesSchemaVerbose is MatchesSchema plus the validation messages. Its
// error result is always nil: a malformed schema or body comes back as a
// false result with the problem described in the messages.
func MatchesSchemaVerbose(body []byte, schema []byte) (bool, []string, error) {
	ok, errs := jsonschema.ValidateWithErrors(string(body), string(schema))
	if errs == nil {
		return ok, nil, nil
	}
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Error())
	}
	return ok, msgs, nil
}

// ExtractPath pulls one field out of a JSON document using a
// JSONPath-style expression (e.g. "$.data.items[0].id"), returned as a
// scripting Value so the result can flow back into a check predicate or a
// shared-store write without an extra conversion at the call site.
func ExtractPath(body []byte, path string) (value.Value, error) {
	s, err := jsonpath.Extract(string(body), path)
	if err != nil {
		return value.Null(), fmt.Errorf("check: extract %q: %w", path, err)
	}
	return value.String(s), nil
}
