package search

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/WeblateOrg/weblate-go/pkg/observability"
)

// parseCacheSize bounds the memoized parse results so adversarial or
// high-cardinality search input cannot grow memory without limit.
const parseCacheSize = 512

type parseKey struct {
	text string
	kind Kind
}

type parseResult struct {
	expr *Expr
	err  error
}

var (
	// parseMu serializes access to the shared cache and keeps the
	// build-and-insert step atomic across worker goroutines.
	parseMu      sync.Mutex
	parseCache   *lru.Cache[parseKey, parseResult]
	parseMetrics *observability.Metrics
)

// SetMetrics wires the parse cache hit/miss counters. Nil leaves the
// cache uninstrumented.
func SetMetrics(m *observability.Metrics) {
	parseMu.Lock()
	defer parseMu.Unlock()
	parseMetrics = m
}

func init() {
	cache, err := lru.New[parseKey, parseResult](parseCacheSize)
	if err != nil {
		panic(err)
	}
	parseCache = cache
}

// Parse parses query text into a tree, memoizing results per
// (text, kind). Parse results are pure functions of their key, so plain
// LRU eviction is the only invalidation needed.
func Parse(text string, kind Kind) (*Expr, error) {
	if _, err := compilerFor(kind); err != nil {
		return nil, err
	}
	key := parseKey{text: text, kind: kind}

	parseMu.Lock()
	defer parseMu.Unlock()

	if cached, ok := parseCache.Get(key); ok {
		if parseMetrics != nil {
			parseMetrics.ParseCacheHitsTotal.Inc()
		}
		return cached.expr, cached.err
	}
	if parseMetrics != nil {
		parseMetrics.ParseCacheMissesTotal.Inc()
	}
	expr, err := parse(text)
	parseCache.Add(key, parseResult{expr: expr, err: err})
	return expr, err
}

// ParseQuery parses and compiles query text into a storage predicate.
// The context may be nil when no project is scoped; project-relative
// lookups (path:, has:glossary) then match accordingly. Errors caused
// by the query text are *QueryError; anything else is a caller bug.
func ParseQuery(text string, kind Kind, ctx *Context) (Query, error) {
	c, err := compilerFor(kind)
	if err != nil {
		return nil, err
	}
	expr, err := Parse(text, kind)
	if err != nil {
		return nil, err
	}
	return c.compile(expr, ctx)
}
