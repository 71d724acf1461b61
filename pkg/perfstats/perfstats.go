package perfstats

import "math"

// Series is one outcome bucket (succeeded or failed): running Welford
// statistics over match elapsed times, plus the bookkeeping fields
// the original implementation's perf_stats carries.
type Series struct {
	NJobs         uint64
	NJobsReset    uint64
	MaxMatchJobID int64
	MatchIterCt   int64
	Min           float64
	Max           float64
	Accum         float64
	Avg           float64
	M2            float64
}

func newSeries() Series {
	return Series{Min: math.MaxFloat64}
}

// Update folds one match attempt's elapsed time into the series
// using Welford's online algorithm (spec section 4.8 / original
// perf_data.hpp update_stats).
func (s *Series) Update(elapsedSeconds float64, jobid, matchIterCount int64) {
	s.NJobs++
	s.NJobsReset++
	if s.Min > elapsedSeconds {
		s.Min = elapsedSeconds
	}
	if s.Max < elapsedSeconds {
		s.Max = elapsedSeconds
		s.MaxMatchJobID = jobid
		s.MatchIterCt = matchIterCount
	}
	s.Accum += elapsedSeconds
	delta := elapsedSeconds - s.Avg
	s.Avg += delta / float64(s.NJobsReset)
	delta2 := elapsedSeconds - s.Avg
	s.M2 += delta * delta2
}

// Variance returns the population variance of the recorded samples
// (spec section 8 testable property 8: M2/N equals population
// variance).
func (s *Series) Variance() float64 {
	if s.NJobsReset == 0 {
		return 0
	}
	return s.M2 / float64(s.NJobsReset)
}

// Reset clears the "since last reset" counters for …resource.stats-clear,
// leaving lifetime NJobs untouched.
func (s *Series) Reset() {
	njobs := s.NJobs
	*s = newSeries()
	s.NJobs = njobs
}

// Stats is the match_perf_t equivalent: load time and the two outcome
// series. It keeps no graph-uptime reference point.
type Stats struct {
	LoadTime float64

	Succeeded Series
	Failed    Series
}

// New creates a Stats block with both series initialized so that Min
// reads as "no samples yet" (spec's min = DBL_MAX).
func New() *Stats {
	return &Stats{
		Succeeded: newSeries(),
		Failed:    newSeries(),
	}
}

// ClearCounters resets both series' since-reset counters, for
// …resource.stats-clear. LoadTime and lifetime NJobs are untouched.
func (s *Stats) ClearCounters() {
	s.Succeeded.Reset()
	s.Failed.Reset()
}
