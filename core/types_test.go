package core

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSeverity(t *testing.T) {
	assert.Equal(t, SeverityNone, ParseSeverity("none"))
	assert.Equal(t, SeverityCritical, ParseSeverity("critical"))
	// Unrecognized labels degrade to minor.
	assert.Equal(t, SeverityMinor, ParseSeverity("catastrophic"))
	assert.Equal(t, SeverityMinor, ParseSeverity(""))
}

func TestSeverity_Ordering(t *testing.T) {
	assert.True(t, SeverityCritical > SeverityMajor)
	assert.True(t, SeverityMajor > SeverityMinor)
	assert.True(t, SeverityMinor > SeverityNone)
	assert.Equal(t, "major", SeverityMajor.String())
}

func TestMetaState_MergeWeights(t *testing.T) {
	m := NewMetaState()

	m.MergeWeights(map[string]float64{
		"depth_vs_breadth":        1.7,  // clamped to 1
		"unknown_knob":            0.9,  // ignored, key not present
		"creativity_vs_precision": -0.2, // clamped to 0
	})

	assert.InDelta(t, 1.0, m.StrategyWeights["depth_vs_breadth"], 1e-9)
	assert.InDelta(t, 0.0, m.StrategyWeights["creativity_vs_precision"], 1e-9)
	assert.InDelta(t, 0.5, m.StrategyWeights["exploration_vs_exploitation"], 1e-9)
	_, ok := m.StrategyWeights["unknown_knob"]
	assert.False(t, ok)
}

func TestMetaState_RecordPattern(t *testing.T) {
	m := NewMetaState()

	m.RecordPattern("winning move", 8.5)
	m.RecordPattern("losing move", 4.0)
	m.RecordPattern("neutral move", 7.0) // between thresholds: recorded nowhere

	assert.Equal(t, []string{"winning move"}, m.SuccessfulPatterns)
	assert.Equal(t, []string{"losing move"}, m.FailedPatterns)
}

func TestMetaState_HistoryBounded(t *testing.T) {
	m := NewMetaState()

	for i := 0; i < 15; i++ {
		m.RecordAdaptation(fmt.Sprintf("note-%d", i))
	}

	assert.Len(t, m.AdaptationHistory, 10)
	assert.Equal(t, "note-14", m.LatestAdaptation())
	assert.Equal(t, "note-5", m.AdaptationHistory[0])
}

func TestResult_FinalScore(t *testing.T) {
	r := &Result{}
	assert.Zero(t, r.FinalScore())

	r.Scores = []float64{5.0, 8.6}
	assert.InDelta(t, 8.6, r.FinalScore(), 1e-9)
}
