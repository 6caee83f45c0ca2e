// Package search implements the structured search-query language used
// to filter translation units and users.
//
// # Query language
//
// A query is a boolean combination of terms:
//
//	state:translated AND (source:hello OR source:bar)
//	changed:2024 changed_by:nijel
//	source:r"^[A-Z]" NOT target:""
//
// Terms are either bare words, matched against the obvious text columns
// for the entity kind, or field:value pairs. Supported operators are
// ":" (substring or default match), ":=" (exact), and ":<", ":<=",
// ":>", ":>=" for ordered fields. Values can be bare words, single or
// double quoted strings, r"..." regular expressions, or [A to B] date
// ranges. Juxtaposition of two terms means AND; explicit OR binds
// loosest and NOT tightest.
//
// # Pipeline
//
// Parse turns a query string into a parse tree, memoized in a bounded
// LRU cache keyed by (text, kind). ParseQuery compiles the tree with a
// caller-supplied Context into a composable predicate (Query) that the
// storage layer renders to SQL. This package never executes queries.
//
// Syntax and value errors are reported as *QueryError carrying a
// message suitable for direct display; anything else indicates a bug in
// the caller.
package search
