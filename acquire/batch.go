package acquire

import (
	"context"
	"errors"
	"slices"

	"golang.org/x/sync/errgroup"
)

// BatchResult is the fate of one batch entry.
type BatchResult struct {
	Key     string `json:"key"`
	Job     *Job   `json:"job,omitempty"`
	Skipped bool   `json:"skipped,omitempty"`
	Error   string `json:"error,omitempty"`
}

// RunBatch runs the entries with at most BatchConcurrency jobs in flight
// and waits for all of them. Keys on the skip list are not started. One
// entry's failure does not stop the others; results keep input order.
func (s *Service) RunBatch(ctx context.Context, entries []BatchEntry) ([]BatchResult, error) {
	skip, err := s.SkipList(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]BatchResult, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.BatchConcurrency)
	for i, e := range entries {
		results[i].Key = e.Key
		if slices.Contains(skip, e.Key) {
			results[i].Skipped = true
			s.logger.Info("acquire: batch skip", "job_key", e.Key)
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i].Error = err.Error()
				return nil
			}
			_, err := s.Start(gctx, e.Key, Request{URL: e.URL, Name: e.Name, State: e.State})
			if err != nil && !errors.Is(err, ErrAlreadyRunning) {
				results[i].Error = err.Error()
				return nil
			}
			s.Wait(e.Key)
			job, err := s.Status(context.WithoutCancel(gctx), e.Key)
			if err != nil {
				results[i].Error = err.Error()
				return nil
			}
			results[i].Job = job
			if job.Status == StatusFailed {
				results[i].Error = job.Error
			}
			return nil
		})
	}
	err = g.Wait()
	return results, err
}
