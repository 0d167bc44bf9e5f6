// Package ast is the elaborated, fully typed script tree the translator
// consumes. Lexing, parsing and elaboration happen elsewhere; by the time a
// Program reaches this package every symbol is resolved and every expression
// carries its type.
//
// Nodes are tagged variants: a Kind plus the payload fields that kind uses.
// The tree is treated as read-only, with one exception: Number assigns dense
// per-unit statement IDs once, before any analysis, so that analyses can
// keep their results in index-addressed tables instead of keying on node
// identity.
package ast
