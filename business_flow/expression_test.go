package businessflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(values map[string]string) Lookup {
	return func(name string) (string, bool) {
		v, ok := values[name]
		return v, ok
	}
}

func TestParseExpression_Evaluate(t *testing.T) {
	row := lookupFrom(map[string]string{
		"first_name":   "sara",
		"last_name":    "Karimi",
		"nickname":     "",
		"contact.city": "Tehran",
		"order-id":     "A-17",
		"padded":       "  x  ",
	})

	tests := []struct {
		name string
		src  string
		want string
	}{
		{"identifier", "first_name", "sara"},
		{"literal", "'hello'", "hello"},
		{"double quoted literal", `"hi there"`, "hi there"},
		{"concat", "first_name + ' ' + last_name", "sara Karimi"},
		{"coalesce skips empty", "nickname ?? first_name", "sara"},
		{"coalesce skips unknown", "missing ?? 'friend'", "friend"},
		{"coalesce binds tighter than concat", "nickname + '' ?? 'x' + 'y'", "xy"},
		{"fallback inside concat", "'Hi ' + nickname ?? 'friend'", "Hi friend"},
		{"fallback after filled prefix", "'Hi ' + first_name ?? 'friend'", "Hi sara"},
		{"function", "upper(first_name)", "SARA"},
		{"function case insensitive", "LOWER(last_name)", "karimi"},
		{"title", "title(first_name)", "Sara"},
		{"trim", "trim(padded)", "x"},
		{"nested parens", "(nickname ?? first_name) + '!'", "sara!"},
		{"contact attribute", "contact.city", "Tehran"},
		{"dash in identifier", "order-id", "A-17"},
		{"escaped quote", `'it\'s'`, "it's"},
		{"unknown identifier is empty", "nope", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expr, err := ParseExpression(tt.src)
			require.NoError(t, err)
			assert.Equal(t, tt.want, expr.Evaluate(row))
			assert.Equal(t, tt.src, expr.String())
		})
	}
}

func TestParseExpression_Errors(t *testing.T) {
	for _, src := range []string{
		"",
		"first_name +",
		"'unterminated",
		"a ? b",
		"shout(first_name)",
		"upper(first_name",
		"(a",
		"a b",
		"a * b",
	} {
		t.Run(src, func(t *testing.T) {
			_, err := ParseExpression(src)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidExpression)
		})
	}
}
