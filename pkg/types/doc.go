// Package types defines the domain model shared by the storage engine:
// secondary-index records, modification reports, backfill chunks, and the
// artificial-table row/conflict model.
//
// Nothing here is specific to a storage backend; pkg/store, pkg/sindex,
// pkg/backfill and pkg/artificial all operate on these types, and
// pkg/region supplies the region/region-map algebra used alongside them.
package types
