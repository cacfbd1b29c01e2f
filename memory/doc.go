// Package memory implements the hierarchical memory subsystem used to guide
// and learn from refinement runs. It provides:
//
//   - DualBuffer: a short-term FIFO of task facts plus two capacity-bounded
//     long-term stores (strategic and operational) retrieved by keyword
//     overlap, with anti-pattern entries protected from eviction
//   - Tree: a versioned, ever-growing decision tree stored in a flat arena,
//     selected via Thompson sampling and updated by back-propagating
//     trajectory utilities from leaf to root
//   - Hierarchical: the composition of both behind the core.MemoryProvider
//     guidance / ingestion interface
//
// All types are safe for concurrent use from multiple in-flight runs; each
// run owns its provider instance and the orchestrator is the only writer
// within a run.
package memory
