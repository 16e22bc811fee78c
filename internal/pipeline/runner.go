package pipeline

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Run processes jobs with at most limit in flight and returns aggregate
// stats. onResult, if non-nil, is called once per job as it finishes;
// calls are serialized. Jobs not yet started when ctx ends are skipped.
func (c *Controller) Run(ctx context.Context, jobs []Job, limit int, onResult func(Result)) RunStats {
	start := time.Now()
	if limit < 1 {
		limit = 1
	}

	var (
		mu    sync.Mutex
		stats = RunStats{Total: len(jobs)}
		g     errgroup.Group
	)
	g.SetLimit(limit)

	for _, job := range jobs {
		if ctx.Err() != nil {
			c.deps.Log.Warn("Interrupted, %d job(s) not started", stats.Total-stats.Started())
			break
		}
		mu.Lock()
		stats.started++
		mu.Unlock()

		g.Go(func() error {
			res := c.Process(ctx, job)
			mu.Lock()
			defer mu.Unlock()
			stats.Add(res)
			if onResult != nil {
				onResult(res)
			}
			return nil
		})
	}
	_ = g.Wait()

	stats.Elapsed = time.Since(start)
	return stats
}
