// Package core provides the foundational domain types shared by the
// RefineLoop subsystems. It defines:
//
//   - Run-state value types (AgentOutput, ReflectionMemory, CritiqueResult,
//     HealthStatus, ConsensusVote, MetaState)
//   - The memory-provider boundary (MemoryRequest / MemoryResponse /
//     Trajectory and the MemoryProvider interface)
//   - Configuration for the memory and optimization subsystems
//   - The closed set of specialist types and the constitutional principles
//     checked by the critique phase
//   - The final Result record emitted by a completed run
//
// The package intentionally keeps implementation concerns (orchestration,
// providers, stores) out of scope, exposing small types and interfaces so
// the engine, memory, pareto and trajectory packages can interoperate
// without depending on one another.
package core
