package search

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/WeblateOrg/weblate-go/pkg/trans"
)

// Kind selects the entity a query is compiled against.
type Kind string

const (
	KindUnit      Kind = "unit"
	KindUser      Kind = "user"
	KindSuperuser Kind = "superuser"
)

// Context carries caller-bound data needed during compilation: the
// currently scoped project (for path: lookups) and its glossary terms
// (for has:glossary).
type Context struct {
	Project       *trans.Project
	GlossaryTerms []string
}

// compiler holds the per-kind field tables. Compilation walks the parse
// tree and dispatches every term through these maps; unknown fields and
// unknown is:/has: tokens are errors, never silent no-ops.
type compiler struct {
	// Substring-matched text columns; regular expressions allowed.
	plainFields map[string]string
	// Substring-matched columns without regex support.
	stringFields map[string]string
	// Case-insensitive exact matches.
	exactFields map[string]string

	intFields   map[string]string
	boolFields  map[string]string
	dateFields  map[string]string
	stateFields map[string]string

	isTokens  map[string]func(ctx *Context) (Query, error)
	hasTokens map[string]func(ctx *Context) (Query, error)

	// Extra conjunct implicitly ANDed onto the field's predicate.
	fieldExtra map[string]func(ctx *Context) Query

	// Columns a bare (fieldless) term is matched against.
	bareColumns []string
}

func compilerFor(kind Kind) (*compiler, error) {
	switch kind {
	case KindUnit:
		return unitCompiler, nil
	case KindUser:
		return userCompiler, nil
	case KindSuperuser:
		return superuserCompiler, nil
	default:
		return nil, queryErrorf("unsupported query kind %q", kind)
	}
}

// compile reduces a parse tree into a predicate. A nil tree is the
// empty query and matches everything.
func (c *compiler) compile(e *Expr, ctx *Context) (Query, error) {
	if e == nil {
		return And{}, nil
	}
	switch e.Op {
	case ExprTerm:
		return c.compileTerm(e.Term, ctx)
	case ExprNot:
		sub, err := c.compile(e.Sub[0], ctx)
		if err != nil {
			return nil, err
		}
		return Not{Q: sub}, nil
	case ExprAnd, ExprOr:
		parts := make([]Query, 0, len(e.Sub))
		for _, sub := range e.Sub {
			q, err := c.compile(sub, ctx)
			if err != nil {
				return nil, err
			}
			parts = append(parts, q)
		}
		if e.Op == ExprAnd {
			return And(parts), nil
		}
		return Or(parts), nil
	default:
		return nil, queryErrorf("could not parse query")
	}
}

func (c *compiler) compileTerm(t *Term, ctx *Context) (Query, error) {
	if t.Field == "" {
		return c.compileBare(t.Value)
	}

	switch t.Field {
	case "is":
		return c.compileToken(t, c.isTokens, "is", ctx)
	case "has":
		return c.compileToken(t, c.hasTokens, "has", ctx)
	case "path":
		return c.compilePath(t, ctx)
	}

	q, err := c.compileField(t, ctx)
	if err != nil {
		return nil, err
	}
	if extra, ok := c.fieldExtra[t.Field]; ok {
		return And{q, extra(ctx)}, nil
	}
	return q, nil
}

func (c *compiler) compileField(t *Term, ctx *Context) (Query, error) {
	if column, ok := c.plainFields[t.Field]; ok {
		return compileText(t, column, true)
	}
	if column, ok := c.stringFields[t.Field]; ok {
		return compileText(t, column, false)
	}
	if column, ok := c.exactFields[t.Field]; ok {
		if t.Value.Regex {
			return nil, queryErrorf("regular expressions are not supported for field %q", t.Field)
		}
		if t.Op != ":" && t.Op != ":=" {
			return nil, queryErrorf("unsupported operator %q for field %q", t.Op, t.Field)
		}
		return Cond{Field: column, Op: OpIEq, Value: t.Value.Text}, nil
	}
	if column, ok := c.intFields[t.Field]; ok {
		return compileInt(t, column)
	}
	if column, ok := c.boolFields[t.Field]; ok {
		return compileBool(t, column)
	}
	if column, ok := c.dateFields[t.Field]; ok {
		return compileDate(t, column)
	}
	if column, ok := c.stateFields[t.Field]; ok {
		return compileState(t, column)
	}
	return nil, queryErrorf("field %q is not supported", t.Field)
}

func (c *compiler) compileToken(t *Term, table map[string]func(*Context) (Query, error), prefix string, ctx *Context) (Query, error) {
	if t.Value.Range != nil || t.Value.Regex {
		return nil, queryErrorf("unsupported %s: value", prefix)
	}
	token := strings.ToLower(t.Value.Text)
	fn, ok := table[token]
	if !ok {
		return nil, queryErrorf("unsupported %s lookup: %q", prefix, token)
	}
	return fn(ctx)
}

// compilePath matches a component by its full path. A single element is
// resolved inside the active project when one is bound.
func (c *compiler) compilePath(t *Term, ctx *Context) (Query, error) {
	if _, ok := c.exactFields["component"]; !ok {
		return nil, queryErrorf("field %q is not supported", t.Field)
	}
	parts := strings.Split(strings.Trim(t.Value.Text, "/"), "/")
	switch {
	case len(parts) == 1 && ctx != nil && ctx.Project != nil:
		return And{
			Cond{Field: "project_slug", Op: OpIEq, Value: ctx.Project.Slug},
			Cond{Field: "component_slug", Op: OpIEq, Value: parts[0]},
		}, nil
	case len(parts) >= 2:
		return And{
			Cond{Field: "project_slug", Op: OpIEq, Value: parts[0]},
			Cond{Field: "component_slug", Op: OpIEq, Value: parts[len(parts)-1]},
		}, nil
	default:
		return nil, queryErrorf("invalid path %q", t.Value.Text)
	}
}

func (c *compiler) compileBare(v Value) (Query, error) {
	if v.Range != nil {
		return nil, queryErrorf("date range requires a field")
	}
	out := make(Or, 0, len(c.bareColumns))
	if v.Regex {
		if _, err := compileRegex(v.Text); err != nil {
			return nil, err
		}
		for _, column := range c.bareColumns {
			out = append(out, Cond{Field: column, Op: OpRegex, Value: v.Text})
		}
		return out, nil
	}
	for _, column := range c.bareColumns {
		out = append(out, Cond{Field: column, Op: OpContains, Value: v.Text})
	}
	return out, nil
}

func compileText(t *Term, column string, fulltext bool) (Query, error) {
	if t.Value.Range != nil {
		return nil, queryErrorf("date range is not supported for field %q", t.Field)
	}
	if t.Value.Regex {
		if !fulltext {
			return nil, queryErrorf("regular expressions are not supported for field %q", t.Field)
		}
		if _, err := compileRegex(t.Value.Text); err != nil {
			return nil, err
		}
		if t.Op != ":" {
			return nil, queryErrorf("unsupported operator %q for a regular expression", t.Op)
		}
		return Cond{Field: column, Op: OpRegex, Value: t.Value.Text}, nil
	}
	switch t.Op {
	case ":":
		return Cond{Field: column, Op: OpContains, Value: t.Value.Text}, nil
	case ":=":
		return Cond{Field: column, Op: OpIEq, Value: t.Value.Text}, nil
	default:
		return nil, queryErrorf("unsupported operator %q for field %q", t.Op, t.Field)
	}
}

// compileRegex validates a regular expression against the engine the
// storage layer evaluates it with, surfacing errors at parse time.
func compileRegex(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, queryErrorf("invalid regular expression %q: %v", pattern, regexErrMessage(err))
	}
	// Dry-run to catch patterns valid to compile but pathological to
	// evaluate (none currently; mirrors checking the storage dialect).
	re.MatchString("")
	return re, nil
}

func regexErrMessage(err error) string {
	msg := err.Error()
	return strings.TrimPrefix(msg, "error parsing regexp: ")
}

func compileInt(t *Term, column string) (Query, error) {
	if t.Value.Range != nil || t.Value.Regex {
		return nil, queryErrorf("invalid value for field %q", t.Field)
	}
	if strings.Contains(t.Value.Text, ",") {
		if t.Op != ":" && t.Op != ":=" {
			return nil, queryErrorf("unsupported operator %q for a number list", t.Op)
		}
		set := make(map[int64]struct{})
		for _, part := range strings.Split(t.Value.Text, ",") {
			n, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err != nil {
				return nil, queryErrorf("invalid number %q for field %q", part, t.Field)
			}
			set[n] = struct{}{}
		}
		return Cond{Field: column, Op: OpIn, Value: sortedInt64s(set)}, nil
	}
	n, err := strconv.ParseInt(t.Value.Text, 10, 64)
	if err != nil {
		return nil, queryErrorf("invalid number %q for field %q", t.Value.Text, t.Field)
	}
	return orderedCond(t, column, n)
}

func compileBool(t *Term, column string) (Query, error) {
	if t.Op != ":" && t.Op != ":=" {
		return nil, queryErrorf("unsupported operator %q for field %q", t.Op, t.Field)
	}
	switch strings.ToLower(t.Value.Text) {
	case "yes", "true", "on", "1":
		return Cond{Field: column, Op: OpEq, Value: true}, nil
	case "no", "false", "off", "0":
		return Cond{Field: column, Op: OpEq, Value: false}, nil
	default:
		return nil, queryErrorf("invalid boolean value %q for field %q", t.Value.Text, t.Field)
	}
}

func compileDate(t *Term, column string) (Query, error) {
	if t.Value.Regex {
		return nil, queryErrorf("regular expressions are not supported for field %q", t.Field)
	}
	var ts timestamp
	var err error
	if t.Value.Range != nil {
		if t.Op != ":" && t.Op != ":=" {
			return nil, queryErrorf("unsupported operator %q for a date range", t.Op)
		}
		ts, err = parseRange(t.Value.Range)
	} else {
		ts, err = parseTimestamp(t.Value.Text)
	}
	if err != nil {
		return nil, err
	}
	return dateQuery(column, t.Op, ts)
}

// unitStateNames maps symbolic state names to their codes; numeric
// codes are accepted directly.
var unitStateNames = map[string]trans.State{
	"empty":         trans.StateEmpty,
	"needs-editing": trans.StateNeedsEditing,
	"fuzzy":         trans.StateNeedsEditing,
	"translated":    trans.StateTranslated,
	"approved":      trans.StateApproved,
	"read-only":     trans.StateReadonly,
	"readonly":      trans.StateReadonly,
}

func compileState(t *Term, column string) (Query, error) {
	if t.Value.Range != nil || t.Value.Regex {
		return nil, queryErrorf("invalid value for field %q", t.Field)
	}
	state, ok := unitStateNames[strings.ToLower(t.Value.Text)]
	if !ok {
		n, err := strconv.Atoi(t.Value.Text)
		if err != nil {
			return nil, queryErrorf("unsupported state %q", t.Value.Text)
		}
		state = trans.State(n)
	}
	return orderedCond(t, column, int64(state))
}

func orderedCond(t *Term, column string, value any) (Query, error) {
	switch t.Op {
	case ":", ":=":
		return Cond{Field: column, Op: OpEq, Value: value}, nil
	case ":<":
		return Cond{Field: column, Op: OpLt, Value: value}, nil
	case ":<=":
		return Cond{Field: column, Op: OpLte, Value: value}, nil
	case ":>":
		return Cond{Field: column, Op: OpGt, Value: value}, nil
	case ":>=":
		return Cond{Field: column, Op: OpGte, Value: value}, nil
	default:
		return nil, queryErrorf("unsupported operator %q for field %q", t.Op, t.Field)
	}
}

func contentChanges(*Context) Query {
	return Cond{Field: "change_action", Op: OpIn, Value: trans.ContentActions()}
}

func countGt0(column string) func(*Context) (Query, error) {
	return func(*Context) (Query, error) {
		return Cond{Field: column, Op: OpGt, Value: int64(0)}, nil
	}
}

func notEmpty(column string) func(*Context) (Query, error) {
	return func(*Context) (Query, error) {
		return Cond{Field: column, Op: OpNe, Value: ""}, nil
	}
}

func stateIs(state trans.State) func(*Context) (Query, error) {
	return func(*Context) (Query, error) {
		return Cond{Field: "state", Op: OpEq, Value: int64(state)}, nil
	}
}

// glossaryQuery matches units whose source mentions any glossary term
// of the active project, using a word-boundary regex built from the
// term set. Without glossary terms nothing matches.
func glossaryQuery(ctx *Context) (Query, error) {
	if ctx == nil || len(ctx.GlossaryTerms) == 0 {
		return Or{}, nil
	}
	quoted := make([]string, 0, len(ctx.GlossaryTerms))
	for _, term := range ctx.GlossaryTerms {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		quoted = append(quoted, regexp.QuoteMeta(term))
	}
	if len(quoted) == 0 {
		return Or{}, nil
	}
	pattern := `(?i)\b(` + strings.Join(quoted, "|") + `)\b`
	if _, err := compileRegex(pattern); err != nil {
		return nil, err
	}
	return Cond{Field: "source", Op: OpRegex, Value: pattern}, nil
}

var unitCompiler = &compiler{
	plainFields: map[string]string{
		"source":      "source",
		"target":      "target",
		"context":     "context",
		"note":        "note",
		"location":    "location",
		"explanation": "explanation",
	},
	stringFields: map[string]string{
		"suggestion": "suggestion_target",
		"comment":    "comment_text",
		"key":        "context",
		"screenshot": "screenshot_name",
	},
	exactFields: map[string]string{
		"check":           "check_name",
		"dismissed_check": "check_name",
		"language":        "language_code",
		"component":       "component_slug",
		"project":         "project_slug",
		"changed_by":      "change_author",
		"label":           "label_name",
		"source_language": "source_language_code",
	},
	intFields: map[string]string{
		"priority": "priority",
		"position": "position",
		"id":       "id",
	},
	boolFields: map[string]string{
		"pending": "pending",
	},
	dateFields: map[string]string{
		"changed":     "changed",
		"change_time": "change_time",
		"added":       "added",
	},
	stateFields: map[string]string{
		"state": "state",
	},
	isTokens: map[string]func(*Context) (Query, error){
		"translated": func(*Context) (Query, error) {
			return Cond{Field: "state", Op: OpGte, Value: int64(trans.StateTranslated)}, nil
		},
		"untranslated": func(*Context) (Query, error) {
			return Cond{Field: "state", Op: OpLt, Value: int64(trans.StateTranslated)}, nil
		},
		"needs-editing": stateIs(trans.StateNeedsEditing),
		"fuzzy":         stateIs(trans.StateNeedsEditing),
		"approved":      stateIs(trans.StateApproved),
		"read-only":     stateIs(trans.StateReadonly),
		"pending": func(*Context) (Query, error) {
			return Cond{Field: "pending", Op: OpEq, Value: true}, nil
		},
	},
	hasTokens: map[string]func(*Context) (Query, error){
		"suggestion":      countGt0("suggestion_count"),
		"comment":         countGt0("comment_count"),
		"check":           countGt0("active_check_count"),
		"dismissed-check": countGt0("dismissed_check_count"),
		"variant":         countGt0("variant_count"),
		"screenshot":      countGt0("screenshot_count"),
		"label":           countGt0("label_count"),
		"note":            notEmpty("note"),
		"explanation":     notEmpty("explanation"),
		"location":        notEmpty("location"),
		"context":         notEmpty("context"),
		"glossary":        glossaryQuery,
	},
	fieldExtra: map[string]func(*Context) Query{
		"check": func(*Context) Query {
			return Cond{Field: "check_dismissed", Op: OpEq, Value: false}
		},
		"dismissed_check": func(*Context) Query {
			return Cond{Field: "check_dismissed", Op: OpEq, Value: true}
		},
		"changed":    contentChanges,
		"changed_by": contentChanges,
	},
	bareColumns: []string{"source", "target", "context"},
}

var userCompiler = &compiler{
	plainFields: map[string]string{
		"username":  "username",
		"full_name": "full_name",
	},
	stringFields: map[string]string{},
	exactFields: map[string]string{
		"language":    "language_code",
		"translates":  "language_code",
		"contributes": "project_slug",
	},
	intFields:  map[string]string{"id": "id"},
	boolFields: map[string]string{},
	dateFields: map[string]string{
		"joined": "date_joined",
	},
	stateFields: map[string]string{},
	isTokens:    map[string]func(*Context) (Query, error){},
	hasTokens:   map[string]func(*Context) (Query, error){},
	fieldExtra:  map[string]func(*Context) Query{},
	bareColumns: []string{"username", "full_name"},
}

var superuserCompiler = &compiler{
	plainFields: map[string]string{
		"username":  "username",
		"full_name": "full_name",
		"email":     "email",
	},
	stringFields: map[string]string{},
	exactFields: map[string]string{
		"language":    "language_code",
		"translates":  "language_code",
		"contributes": "project_slug",
	},
	intFields:  map[string]string{"id": "id"},
	boolFields: map[string]string{},
	dateFields: map[string]string{
		"joined": "date_joined",
	},
	stateFields: map[string]string{},
	isTokens: map[string]func(*Context) (Query, error){
		"active": func(*Context) (Query, error) {
			return Cond{Field: "is_active", Op: OpEq, Value: true}, nil
		},
		"bot": func(*Context) (Query, error) {
			return Cond{Field: "is_bot", Op: OpEq, Value: true}, nil
		},
		"superuser": func(*Context) (Query, error) {
			return Cond{Field: "is_superuser", Op: OpEq, Value: true}, nil
		},
	},
	hasTokens:   map[string]func(*Context) (Query, error){},
	fieldExtra:  map[string]func(*Context) Query{},
	bareColumns: []string{"username", "full_name", "email"},
}
