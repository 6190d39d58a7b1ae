package check

import "testing"

func TestMatchesSchema(t *testing.T) {
	schema := []byte(`{
		"type": "object",
		"properties": {
			"name": { "type": "string" }
		},
		"required": ["name"]
	}`)

	tests := []struct {
		name string
		body []byte
		want bool
	}{
		{"matches", []byte(`{"name": "wrkr"}`), true},
		{"missing required field", []byte(`{}`), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := MatchesSchema(tt.body, schema)
			if err != nil {
				t.Fatalf("MatchesSchema returned error: %v", err)
			}
			if ok != tt.want {
				t.Errorf("MatchesSchema = %v, want %v", ok, tt.want)
			}
		})
	}
}

func TestMatchesSchemaInvalidSchema(t *testing.T) {
	_, err := MatchesSchema([]byte(`{}`), []byte(`not json`))
	if err == nil {
		t.Fatal("expected an error for a malformed schema")
	}
	if _, ok := err.(*InvalidUsageError); !ok {
		t.Errorf("expected *InvalidUsageError, got %T", err)
	}
}

func TestMatchesSchemaVerboseReportsViolations(t *testing.T) {
	schema := []byte(`{"type": "object", "required": ["id"]}`)
	ok, msgs, err := MatchesSchemaVerbose([]byte(`{}`), schema)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected ok == false")
	}
	if len(msgs) == 0 {
		t.Error("expected at least one violation message")
	}
}

func TestExtractPath(t *testing.T) {
	body := []byte(`{"data": {"items": [{"id": "abc"}]}}`)
	v, err := ExtractPath(body, "$.data.items[0].id")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.String() != "abc" {
		t.Errorf("ExtractPath = %q, want %q", v.String(), "abc")
	}
}

func TestExtractPathMissing(t *testing.T) {
	body := []byte(`{"data": {}}`)
	if _, err := ExtractPath(body, "$.data.missing"); err == nil {
		t.Fatal("expected an error for a missing path")
	}
}
