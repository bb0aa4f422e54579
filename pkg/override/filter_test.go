package override

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFilter(t *testing.T) {
	tests := []struct {
		name     string
		expr     string
		wantSQL  string
		wantArgs []any
	}{
		{"empty", "  ", "", nil},
		{"single equality", `status = "active"`, "status = ?", []any{"ACTIVE"}},
		{"not equal", `requested_by != "alice"`, "requested_by <> ?", []any{"alice"}},
		{"numeric compare", `priority_level <= 2`, "priority_level <= ?", []any{2}},
		{"bool", `is_emergency = TRUE`, "is_emergency = ?", []any{true}},
		{
			"in list",
			`risk_level in ("high", "critical")`,
			"risk_level IN ?",
			[]any{[]any{"HIGH", "CRITICAL"}},
		},
		{
			"and binds tighter than or",
			`status = "active" AND priority_level < 3 OR is_emergency = true`,
			"((status = ? AND priority_level < ?) OR is_emergency = ?)",
			[]any{"ACTIVE", 3, true},
		},
		{
			"parentheses",
			`status = "active" and (risk_level = "high" or target_id = "vp-1")`,
			"(status = ? AND (risk_level = ? OR target_id = ?))",
			[]any{"ACTIVE", "HIGH", "vp-1"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := ParseFilter(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, f.SQL)
			assert.Equal(t, tt.wantArgs, f.Args)
		})
	}
}

func TestParseFilter_Errors(t *testing.T) {
	tests := []struct {
		name string
		expr string
		want string
	}{
		{"unknown field", `password = "x"`, "unknown field"},
		{"syntax", `status = `, ""},
		{"unquoted string", `status = active`, "expects a quoted string"},
		{"string for int", `priority_level = "1"`, "expects an integer"},
		{"ordering on text", `requested_by > "a"`, "only supported for numeric"},
		{"in on bool", `is_emergency IN (true)`, "IN is not supported"},
		{"list without IN", `status = ("a", "b")`, "exactly one value"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFilter(tt.expr)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, "filter", ve.Field)
			assert.Contains(t, ve.Reason, tt.want)
		})
	}
}
