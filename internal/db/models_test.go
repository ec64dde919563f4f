package db

import (
	"strings"
	"testing"
)

// The schema qualifier must stay clear of SQL reserved words: the raw
// queries reference tables unquoted, so a reserved name (COLLATE is one)
// would be a syntax error on every statement.
func TestTableNames_SchemaQualifier(t *testing.T) {
	t.Parallel()

	names := []string{
		Item{}.TableName(),
		DedupeCluster{}.TableName(),
		DedupeMember{}.TableName(),
		DedupeDecision{}.TableName(),
	}
	for _, name := range names {
		schema, _, ok := strings.Cut(name, ".")
		if !ok {
			t.Fatalf("table name %q is not schema-qualified", name)
		}
		if schema != "collate_core" {
			t.Fatalf("table %q is outside the collate_core schema", name)
		}
	}
}
