// Package capability defines the provider-agnostic generation capabilities
// the orchestration engine depends on: specialist drafting, refinement,
// constitutional critique, judging, reflection, self-healing, consensus
// voting, meta-learning and diagram generation.
//
// Core goals:
//   - Keep the engine decoupled from vendor SDKs; providers implement small
//     single-method interfaces with explicit request structs
//   - Ship a Suite that maps every capability onto a plain-text LLM via a
//     JSON contract with lenient parsing
//   - Facilitate lightweight mocking for tests (MockProviders, *Func types)
//
// Concrete LLM backends (e.g. OpenAI, Anthropic) live in subpackages and
// implement the LLM interface from this package.
package capability
