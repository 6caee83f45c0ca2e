package search

import (
	"fmt"
	"sort"
	"strings"
)

// Op is a comparison operator inside a compiled condition.
type Op string

const (
	OpContains Op = "contains" // case-insensitive substring
	OpEq       Op = "eq"
	OpIEq      Op = "ieq" // case-insensitive exact
	OpNe       Op = "ne"
	OpLt       Op = "lt"
	OpLte      Op = "lte"
	OpGt       Op = "gt"
	OpGte      Op = "gte"
	OpIn       Op = "in"
	OpRegex    Op = "regex"
)

// Query is a composable boolean predicate over storage columns. It is
// built by the query compiler and rendered to SQL by the storage layer;
// the tree itself carries no database handles.
type Query interface {
	fmt.Stringer
	isQuery()
}

// And matches when every sub-predicate matches. An empty And matches
// everything (the empty query).
type And []Query

// Or matches when at least one sub-predicate matches.
type Or []Query

// Not negates a predicate.
type Not struct {
	Q Query
}

// Cond is a single column comparison.
type Cond struct {
	Field string
	Op    Op
	Value any
}

func (And) isQuery()  {}
func (Or) isQuery()   {}
func (Not) isQuery()  {}
func (Cond) isQuery() {}

func (q And) String() string { return joinQueries("AND", q) }
func (q Or) String() string  { return joinQueries("OR", q) }

func (q Not) String() string {
	return "NOT " + q.Q.String()
}

func (q Cond) String() string {
	return fmt.Sprintf("%s %s %v", q.Field, q.Op, q.Value)
}

func joinQueries(op string, qs []Query) string {
	if len(qs) == 0 {
		return "()"
	}
	parts := make([]string, len(qs))
	for i, q := range qs {
		parts[i] = q.String()
	}
	return "(" + strings.Join(parts, " "+op+" ") + ")"
}

// Dialect selects the SQL flavor predicates are rendered to.
type Dialect int

const (
	DialectPostgres Dialect = iota
	DialectSQLite
)

// ToSQL renders a predicate into a WHERE fragment with positional
// arguments. Postgres placeholders are numbered ($1, $2, ...); SQLite
// uses "?".
func ToSQL(q Query, dialect Dialect) (string, []any) {
	w := &sqlWriter{dialect: dialect}
	clause := w.render(q)
	return clause, w.args
}

type sqlWriter struct {
	dialect Dialect
	args    []any
}

func (w *sqlWriter) placeholder(v any) string {
	w.args = append(w.args, v)
	if w.dialect == DialectPostgres {
		return fmt.Sprintf("$%d", len(w.args))
	}
	return "?"
}

func (w *sqlWriter) render(q Query) string {
	switch q := q.(type) {
	case And:
		if len(q) == 0 {
			return "TRUE"
		}
		return w.renderList("AND", q)
	case Or:
		if len(q) == 0 {
			return "FALSE"
		}
		return w.renderList("OR", q)
	case Not:
		return "NOT (" + w.render(q.Q) + ")"
	case Cond:
		return w.renderCond(q)
	default:
		panic(fmt.Sprintf("search: unknown query node %T", q))
	}
}

func (w *sqlWriter) renderList(op string, qs []Query) string {
	parts := make([]string, len(qs))
	for i, q := range qs {
		parts[i] = w.render(q)
	}
	return "(" + strings.Join(parts, " "+op+" ") + ")"
}

func (w *sqlWriter) renderCond(c Cond) string {
	switch c.Op {
	case OpContains:
		pattern := "%" + escapeLike(fmt.Sprintf("%v", c.Value)) + "%"
		if w.dialect == DialectPostgres {
			return fmt.Sprintf("%s ILIKE %s ESCAPE '\\'", c.Field, w.placeholder(pattern))
		}
		return fmt.Sprintf("%s LIKE %s ESCAPE '\\'", c.Field, w.placeholder(pattern))
	case OpEq:
		return fmt.Sprintf("%s = %s", c.Field, w.placeholder(c.Value))
	case OpIEq:
		return fmt.Sprintf("LOWER(%s) = LOWER(%s)", c.Field, w.placeholder(c.Value))
	case OpNe:
		return fmt.Sprintf("%s <> %s", c.Field, w.placeholder(c.Value))
	case OpLt:
		return fmt.Sprintf("%s < %s", c.Field, w.placeholder(c.Value))
	case OpLte:
		return fmt.Sprintf("%s <= %s", c.Field, w.placeholder(c.Value))
	case OpGt:
		return fmt.Sprintf("%s > %s", c.Field, w.placeholder(c.Value))
	case OpGte:
		return fmt.Sprintf("%s >= %s", c.Field, w.placeholder(c.Value))
	case OpIn:
		return w.renderIn(c)
	case OpRegex:
		if w.dialect == DialectPostgres {
			return fmt.Sprintf("%s ~ %s", c.Field, w.placeholder(c.Value))
		}
		return fmt.Sprintf("%s REGEXP %s", c.Field, w.placeholder(c.Value))
	default:
		panic(fmt.Sprintf("search: unknown operator %q", c.Op))
	}
}

func (w *sqlWriter) renderIn(c Cond) string {
	values := inValues(c.Value)
	if len(values) == 0 {
		return "FALSE"
	}
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = w.placeholder(v)
	}
	return fmt.Sprintf("%s IN (%s)", c.Field, strings.Join(parts, ", "))
}

func inValues(v any) []any {
	switch v := v.(type) {
	case []any:
		return v
	case []int64:
		out := make([]any, len(v))
		for i, n := range v {
			out[i] = n
		}
		return out
	case []int:
		out := make([]any, len(v))
		for i, n := range v {
			out[i] = n
		}
		return out
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out
	default:
		return []any{v}
	}
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// sortedInt64s returns a sorted copy, used to keep IN predicates
// deterministic for comparison in tests and cache keys.
func sortedInt64s(set map[int64]struct{}) []int64 {
	out := make([]int64, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
