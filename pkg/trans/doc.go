// Package trans defines the translation-domain entities the access
// control engine and the search compiler operate on: projects,
// components, translations, units, languages and their groupings.
//
// These types are deliberately plain structs. The surrounding
// application owns their full lifecycle (VCS sync, file parsing,
// rendering); this package carries only the attributes consulted by
// permission evaluation and query compilation, plus the unit store
// that consumes compiled search predicates.
package trans
