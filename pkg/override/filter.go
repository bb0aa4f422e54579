package override

import (
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// Filter expressions look like:
//
//	status = "active" AND (risk_level IN ("high", "critical") OR is_emergency = true)
//
// Keywords are case-insensitive. Only the columns in filterColumns may be
// referenced.

type filterOr struct {
	And []*filterAnd `parser:"@@ ( \"OR\" @@ )*"`
}

type filterAnd struct {
	Terms []*filterTerm `parser:"@@ ( \"AND\" @@ )*"`
}

type filterTerm struct {
	Sub *filterOr      `parser:"  \"(\" @@ \")\""`
	Cmp *filterCompare `parser:"| @@"`
}

type filterCompare struct {
	Field  string         `parser:"@Ident"`
	Op     string         `parser:"@( \"!=\" | \"<=\" | \">=\" | \"=\" | \"<\" | \">\" | \"IN\" )"`
	Values []*filterValue `parser:"( \"(\" @@ ( \",\" @@ )* \")\" | @@ )"`
}

type filterValue struct {
	String *string `parser:"  @String"`
	Int    *int    `parser:"| @Int"`
	Bool   *string `parser:"| @( \"true\" | \"false\" )"`
	Ident  *string `parser:"| @Ident"`
}

var filterLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "String", Pattern: `"(?:\\.|[^"\\])*"`},
	{Name: "Int", Pattern: `-?\d+`},
	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_]*`},
	{Name: "Operator", Pattern: `!=|<=|>=|[=<>(),]`},
	{Name: "whitespace", Pattern: `\s+`},
})

var filterParser = participle.MustBuild[filterOr](
	participle.Lexer(filterLexer),
	participle.Unquote("String"),
	participle.CaseInsensitive("Ident"),
	participle.UseLookahead(2),
)

type columnKind int

const (
	kindEnum columnKind = iota // string, compared upper-cased
	kindText
	kindInt
	kindBool
)

var filterColumns = map[string]columnKind{
	"status":         kindEnum,
	"override_type":  kindEnum,
	"risk_level":     kindEnum,
	"impact_level":   kindEnum,
	"is_emergency":   kindBool,
	"priority_level": kindInt,
	"requested_by":   kindText,
	"approved_by":    kindText,
	"target_type":    kindText,
	"target_id":      kindText,
}

// Filter is a parsed filter expression compiled to a SQL condition.
type Filter struct {
	SQL  string
	Args []any
}

// ParseFilter parses and compiles expr. An empty expr matches everything.
func ParseFilter(expr string) (*Filter, error) {
	if strings.TrimSpace(expr) == "" {
		return &Filter{}, nil
	}
	ast, err := filterParser.ParseString("filter", expr)
	if err != nil {
		return nil, invalid("filter", "%v", err)
	}
	f := &Filter{}
	sql, err := f.compileOr(ast)
	if err != nil {
		return nil, err
	}
	f.SQL = sql
	return f, nil
}

func (f *Filter) compileOr(n *filterOr) (string, error) {
	parts := make([]string, 0, len(n.And))
	for _, a := range n.And {
		s, err := f.compileAnd(a)
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return "(" + strings.Join(parts, " OR ") + ")", nil
}

func (f *Filter) compileAnd(n *filterAnd) (string, error) {
	parts := make([]string, 0, len(n.Terms))
	for _, t := range n.Terms {
		var (
			s   string
			err error
		)
		if t.Sub != nil {
			s, err = f.compileOr(t.Sub)
		} else {
			s, err = f.compileCompare(t.Cmp)
		}
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return "(" + strings.Join(parts, " AND ") + ")", nil
}

func (f *Filter) compileCompare(c *filterCompare) (string, error) {
	column := strings.ToLower(c.Field)
	kind, ok := filterColumns[column]
	if !ok {
		return "", invalid("filter", "unknown field %q", c.Field)
	}
	op := strings.ToUpper(c.Op)

	args := make([]any, 0, len(c.Values))
	for _, v := range c.Values {
		arg, err := v.coerce(column, kind)
		if err != nil {
			return "", err
		}
		args = append(args, arg)
	}

	if op == "IN" {
		if kind == kindBool {
			return "", invalid("filter", "IN is not supported for %s", column)
		}
		f.Args = append(f.Args, args)
		return column + " IN ?", nil
	}
	if len(args) != 1 {
		return "", invalid("filter", "%s %s takes exactly one value", column, op)
	}
	switch op {
	case "=", "!=":
	default:
		if kind != kindInt {
			return "", invalid("filter", "operator %s is only supported for numeric fields", op)
		}
	}
	sqlOp := op
	if op == "!=" {
		sqlOp = "<>"
	}
	f.Args = append(f.Args, args[0])
	return column + " " + sqlOp + " ?", nil
}

func (v *filterValue) coerce(column string, kind columnKind) (any, error) {
	switch kind {
	case kindEnum, kindText:
		if v.String == nil {
			return nil, invalid("filter", "%s expects a quoted string", column)
		}
		if kind == kindEnum {
			return strings.ToUpper(*v.String), nil
		}
		return *v.String, nil
	case kindInt:
		if v.Int == nil {
			return nil, invalid("filter", "%s expects an integer", column)
		}
		return *v.Int, nil
	case kindBool:
		if v.Bool == nil {
			return nil, invalid("filter", "%s expects true or false", column)
		}
		return strings.EqualFold(*v.Bool, "true"), nil
	}
	return nil, fmt.Errorf("unhandled column kind %d", kind)
}
