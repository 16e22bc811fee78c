package pipeline

import "time"

// RunStats tracks aggregate counters and byte totals across a batch run.
type RunStats struct {
	Total            int
	Succeeded        int
	Failed           int
	Duplicates       int // successes answered from the ledger
	TotalInputBytes  int64
	TotalOutputBytes int64
	ByCategory       map[Category]int
	Elapsed          time.Duration

	started int
}

// Add folds one result into the stats.
func (s *RunStats) Add(r Result) {
	if r.Success {
		s.Succeeded++
		if r.Duplicate {
			s.Duplicates++
		}
		s.TotalOutputBytes += r.OutputBytes
	} else {
		s.Failed++
		if s.ByCategory == nil {
			s.ByCategory = make(map[Category]int, 3)
		}
		s.ByCategory[r.Category()]++
	}
	s.TotalInputBytes += r.InputBytes
}

// Started returns how many jobs were handed to the controller.
func (s *RunStats) Started() int { return s.started }

// Skipped returns how many jobs never started, e.g. after an interrupt.
func (s *RunStats) Skipped() int { return s.Total - s.Succeeded - s.Failed }
