// Package sindex implements the secondary-index catalog: create,
// bulk-reconcile, rename, two-phase drop, and the mod-report pipeline
// that keeps post-constructed indexes and their disk-backed
// post-construction consumers in sync with primary writes.
package sindex
