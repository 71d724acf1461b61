package perfstats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUpdateTracksMinMax(t *testing.T) {
	s := New()
	s.Succeeded.Update(0.5, 1, 3)
	s.Succeeded.Update(0.1, 2, 7)
	s.Succeeded.Update(0.9, 3, 2)

	assert.InDelta(t, 0.1, s.Succeeded.Min, 1e-9)
	assert.InDelta(t, 0.9, s.Succeeded.Max, 1e-9)
	assert.Equal(t, int64(3), s.Succeeded.MaxMatchJobID)
	assert.Equal(t, int64(2), s.Succeeded.MatchIterCt)
	assert.Equal(t, uint64(3), s.Succeeded.NJobs)
}

func TestWelfordMeanAndVarianceMatchDirectComputation(t *testing.T) {
	samples := []float64{0.10, 0.25, 0.40, 0.15, 0.33}
	s := New()
	for i, v := range samples {
		s.Succeeded.Update(v, int64(i), 1)
	}

	var sum float64
	for _, v := range samples {
		sum += v
	}
	mean := sum / float64(len(samples))

	var sq float64
	for _, v := range samples {
		sq += (v - mean) * (v - mean)
	}
	variance := sq / float64(len(samples))

	assert.InDelta(t, mean, s.Succeeded.Avg, 1e-9)
	assert.InDelta(t, variance, s.Succeeded.Variance(), 1e-9)
}

func TestResetPreservesLifetimeCountButClearsWindow(t *testing.T) {
	s := New()
	s.Succeeded.Update(0.2, 1, 1)
	s.Succeeded.Update(0.3, 2, 1)
	s.ClearCounters()

	assert.Equal(t, uint64(2), s.Succeeded.NJobs)
	assert.Equal(t, uint64(0), s.Succeeded.NJobsReset)
	assert.Equal(t, float64(0), s.Succeeded.Avg)
	assert.Equal(t, math.MaxFloat64, s.Succeeded.Min)
}
