package core

// SpecialistType enumerates the closed set of specialist agents dispatched
// during fan-out. The set is fixed at compile time; dispatch happens
// through a lookup table so an unknown type degrades to a zero-confidence
// placeholder instead of failing the batch.
type SpecialistType string

const (
	// SpecialistDataProcessing cleans, validates and structures task data.
	SpecialistDataProcessing SpecialistType = "data_processing"
	// SpecialistAnalysis runs statistical analysis and hypothesis generation.
	SpecialistAnalysis SpecialistType = "analysis"
	// SpecialistExperimental designs experiments and reports findings.
	SpecialistExperimental SpecialistType = "experimental"
	// SpecialistLearning synthesizes knowledge across sources.
	SpecialistLearning SpecialistType = "learning"
	// SpecialistOptimization identifies efficiency improvements.
	SpecialistOptimization SpecialistType = "optimization"
	// SpecialistCreative generates novel solutions.
	SpecialistCreative SpecialistType = "creative"
)

// SpecialistTypes returns the ordered list of known specialist types.
// The order is stable so health maps and logs are deterministic.
func SpecialistTypes() []SpecialistType {
	return []SpecialistType{
		SpecialistDataProcessing,
		SpecialistAnalysis,
		SpecialistExperimental,
		SpecialistLearning,
		SpecialistOptimization,
		SpecialistCreative,
	}
}
