package batch

import (
	"time"

	"github.com/sells-group/gazette-cli/internal/model"
)

// Stats reduces outcomes into batch statistics. Elapsed figures sum the
// per-document times, so throughput is per worker rather than wall clock.
func Stats(outcomes []model.ProcessingOutcome) model.BatchStats {
	var s model.BatchStats
	s.Total = len(outcomes)
	if s.Total == 0 {
		return s
	}

	for _, o := range outcomes {
		s.TotalElapsed += o.Elapsed
		if o.CacheHit {
			s.CacheHits++
		}
		if !o.Success {
			s.Failed++
			s.Errors = append(s.Errors, model.DocumentError{DocumentPath: o.DocumentPath, Error: o.Error})
			continue
		}
		s.Succeeded++
		s.TotalMatches += o.MatchCount
	}

	s.SuccessRate = float64(s.Succeeded) / float64(s.Total)
	if s.Succeeded > 0 {
		s.AvgMatchesPerDoc = float64(s.TotalMatches) / float64(s.Succeeded)
	}
	s.AvgElapsed = s.TotalElapsed / time.Duration(s.Total)
	if secs := s.TotalElapsed.Seconds(); secs > 0 {
		s.ThroughputPerSecond = float64(s.Total) / secs
	}
	return s
}
