package dispute

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Analytics aggregates the dispute set: counts by status, counts by category
// and a per-day creation trend. Nothing is cached; every call recomputes.
// The three aggregate queries run concurrently.
func (s *Service) Analytics(ctx context.Context) (Analytics, error) {
	var out Analytics

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		counts, err := s.repo.StatusCounts(ctx)
		if err != nil {
			return err
		}
		out.StatusCounts = counts
		return nil
	})
	g.Go(func() error {
		counts, err := s.repo.CategoryCounts(ctx)
		if err != nil {
			return err
		}
		out.CategoryCounts = counts
		return nil
	})
	g.Go(func() error {
		trends, err := s.repo.Trends(ctx)
		if err != nil {
			return err
		}
		out.Trends = trends
		return nil
	})

	if err := g.Wait(); err != nil {
		return Analytics{}, err
	}
	return out, nil
}
