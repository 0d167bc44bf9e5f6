// Package diag defines the diagnostic model shared by the translator phases.
//
// Translation errors are data: a Diagnostic carries a severity, a stable
// numeric Code, a short message and the script position it refers to.
// Producers report through a Reporter so they never depend on storage; the
// driver collects into a Bag, which sorts and deduplicates before rendering.
//
// Internal generator defects are not diagnostics. They surface as panics
// carrying an InternalError and are never collected into a Bag.
package diag
