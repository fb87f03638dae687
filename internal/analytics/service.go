package analytics

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

// Repository exposes the read aggregates the metrics are computed from.
type Repository interface {
	ShipmentStats(ctx context.Context, filter Filter) (ShipmentStats, error)
	PickListStats(ctx context.Context, filter Filter) (PickListStats, error)
	ScanStats(ctx context.Context, filter Filter) (ScanStats, error)
	LocationUsage(ctx context.Context, filter Filter) ([]LocationUsage, error)
	PickedQuantities(ctx context.Context, filter Filter) ([]ProductPicks, error)
	LedgerRowAges(ctx context.Context, filter Filter) ([]RowAge, error)
}

// Service coordinates analytics query execution with the cache layer.
type Service struct {
	repo   Repository
	cache  *Cache
	logger *slog.Logger
	now    func() time.Time
}

// NewService wires a Repository with a Cache helper. cache may be nil.
func NewService(repo Repository, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Service) prepare(filter Filter) (Filter, error) {
	filter = filter.Normalize(s.now())
	if filter.From.After(filter.To) {
		return Filter{}, shared.Validationf("from must not be after to")
	}
	return filter, nil
}

// cached serves metric from the versioned cache, computing it with load on a
// miss. Cache failures degrade to a direct load.
func cached[T any](ctx context.Context, s *Service, metric string, filter Filter, load func(context.Context) (T, error)) (T, error) {
	if !s.cache.enabled() {
		return load(ctx)
	}
	gen, err := s.cache.Generation(ctx)
	if err != nil {
		s.logger.Warn("analytics cache unavailable", slog.String("metric", metric), slog.Any("error", err))
		return load(ctx)
	}
	key := metricKey(gen, metric, filter)

	var out T
	hit, err := s.cache.get(ctx, key, &out)
	if err != nil {
		s.logger.Warn("analytics cache read failed", slog.String("metric", metric), slog.Any("error", err))
		return load(ctx)
	}
	if hit {
		return out, nil
	}
	out, err = load(ctx)
	if err != nil {
		return out, err
	}
	if err := s.cache.put(ctx, key, out); err != nil {
		s.logger.Warn("analytics cache write failed", slog.String("metric", metric), slog.Any("error", err))
	}
	return out, nil
}

// Throughput counts shipments and pick lists created in the window.
func (s *Service) Throughput(ctx context.Context, filter Filter) (Throughput, error) {
	filter, err := s.prepare(filter)
	if err != nil {
		return Throughput{}, err
	}
	return cached(ctx, s, "throughput", filter, func(ctx context.Context) (Throughput, error) {
		ship, err := s.repo.ShipmentStats(ctx, filter)
		if err != nil {
			return Throughput{}, err
		}
		pick, err := s.repo.PickListStats(ctx, filter)
		if err != nil {
			return Throughput{}, err
		}
		return Throughput{
			Shipments: workflowCounts(ship.Total, ship.Completed),
			PickLists: workflowCounts(pick.Total, pick.Completed),
		}, nil
	})
}

// Accuracy reports received/expected, picked/requested and scan success.
// Every ratio is 0 when its denominator is 0.
func (s *Service) Accuracy(ctx context.Context, filter Filter) (Accuracy, error) {
	filter, err := s.prepare(filter)
	if err != nil {
		return Accuracy{}, err
	}
	return cached(ctx, s, "accuracy", filter, func(ctx context.Context) (Accuracy, error) {
		ship, err := s.repo.ShipmentStats(ctx, filter)
		if err != nil {
			return Accuracy{}, err
		}
		pick, err := s.repo.PickListStats(ctx, filter)
		if err != nil {
			return Accuracy{}, err
		}
		scans, err := s.repo.ScanStats(ctx, filter)
		if err != nil {
			return Accuracy{}, err
		}
		return buildAccuracy(ship, pick, scans), nil
	})
}

// Utilization reports current/capacity per active location.
func (s *Service) Utilization(ctx context.Context, filter Filter) (Utilization, error) {
	filter, err := s.prepare(filter)
	if err != nil {
		return Utilization{}, err
	}
	return cached(ctx, s, "utilization", filter, func(ctx context.Context) (Utilization, error) {
		rows, err := s.repo.LocationUsage(ctx, filter)
		if err != nil {
			return Utilization{}, err
		}
		return buildUtilization(rows), nil
	})
}

// Velocity ranks products by picked volume in the window.
func (s *Service) Velocity(ctx context.Context, filter Filter) ([]VelocityEntry, error) {
	filter, err := s.prepare(filter)
	if err != nil {
		return nil, err
	}
	return cached(ctx, s, "velocity", filter, func(ctx context.Context) ([]VelocityEntry, error) {
		picks, err := s.repo.PickedQuantities(ctx, filter)
		if err != nil {
			return nil, err
		}
		return classifyVelocity(picks), nil
	})
}

// Aging buckets stocked ledger rows by days since their last update, as of
// the end of the window.
func (s *Service) Aging(ctx context.Context, filter Filter) ([]AgingBucket, error) {
	filter, err := s.prepare(filter)
	if err != nil {
		return nil, err
	}
	return cached(ctx, s, "aging", filter, func(ctx context.Context) ([]AgingBucket, error) {
		rows, err := s.repo.LedgerRowAges(ctx, filter)
		if err != nil {
			return nil, err
		}
		return bucketAges(rows, filter.To), nil
	})
}

// Dashboard loads every metric concurrently.
func (s *Service) Dashboard(ctx context.Context, filter Filter) (Dashboard, error) {
	filter, err := s.prepare(filter)
	if err != nil {
		return Dashboard{}, err
	}
	data := Dashboard{Filter: filter}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		out, err := s.Throughput(ctx, filter)
		data.Throughput = out
		return err
	})
	g.Go(func() error {
		out, err := s.Accuracy(ctx, filter)
		data.Accuracy = out
		return err
	})
	g.Go(func() error {
		out, err := s.Utilization(ctx, filter)
		data.Utilization = out
		return err
	})
	g.Go(func() error {
		out, err := s.Velocity(ctx, filter)
		data.Velocity = out
		return err
	})
	g.Go(func() error {
		out, err := s.Aging(ctx, filter)
		data.Aging = out
		return err
	})

	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}
	return data, nil
}

// Warmup precomputes the default dashboard so the first reader hits cache.
func (s *Service) Warmup(ctx context.Context) error {
	_, err := s.Dashboard(ctx, Filter{})
	return err
}

// Invalidate drops every cached metric.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}
