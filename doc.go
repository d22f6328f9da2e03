// Package datalab applies operations to datasets.
//
// An operation is a user callable described by an operation.Descriptor: its
// category (per-record or aggregate), the record fields it reads, the field
// it writes and static resources. The engine resolves how records feed the
// callable, then runs it in one of three execution modes:
//
//   - Streaming yields output records lazily and recomputes on every pass.
//   - Materializing builds a new immutable dataset, optionally sharding the
//     records over a worker pool. Output order always matches input order.
//   - Persisting materializes once per fingerprint and reuses the cached
//     result on identical calls.
//
// Every dataset carries a content fingerprint. Applying an operation derives
// the output fingerprint from the input fingerprint and the operation's
// identity, which keys the persisted cache.
//
// # Packages
//
//   - pkg/dataset: records, schemas and immutable datasets
//   - pkg/operation: descriptors, resources, templates and the registry
//   - pkg/engine: resolver, execution modes and streams
//   - pkg/fingerprint: xxh3 content and lineage fingerprints
//   - pkg/schema: output schema merging and collision detection
//   - pkg/cache: fingerprint-keyed cache over file, memory, S3 or GCS storage
//   - pkg/ops: built-in operations
//   - pkg/source: JSONL and CSV loaders
//
// # Example
//
//	eng := engine.New(engine.WithStore(store))
//	src, _ := source.ReadFile("reviews.jsonl", source.Options{})
//	res, err := eng.Apply(ctx, src, ops.GetLength, engine.ApplyOptions{
//		Mode:    engine.Persisting,
//		NumProc: 4,
//	})
package datalab
