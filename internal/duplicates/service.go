package duplicates

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jonesrussell/north-cloud/timeline/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/timeline/internal/domain"
)

// ErrEdgeNotFound is returned when deleting an edge that does not exist.
var ErrEdgeNotFound = errors.New("duplicate edge not found")

// EdgeTx is the edge storage available inside one transaction.
type EdgeTx interface {
	DeleteEdgesForDate(ctx context.Context, date string) error
	InsertEdges(ctx context.Context, edges []domain.DuplicateEdge) error
	DeleteEdge(ctx context.Context, dateA, dateB string) (bool, error)
	EdgesTouching(ctx context.Context, dates []string) ([]domain.DuplicateEdge, error)
	// StampClusters writes the cluster id of each date onto its record and
	// its edges. An empty id clears the stamp.
	StampClusters(ctx context.Context, stamps map[string]string) error
}

// Store persists duplicate edges.
type Store interface {
	RecordReader
	// EdgesInRange returns edges with at least one endpoint in [start, end].
	EdgesInRange(ctx context.Context, start, end string) ([]domain.DuplicateEdge, error)
	InTx(ctx context.Context, fn func(EdgeTx) error) error
}

// Recorder observes window analyses.
type Recorder interface {
	WindowAnalyzed(edges int, d time.Duration, err error)
}

type nopRecorder struct{}

func (nopRecorder) WindowAnalyzed(int, time.Duration, error) {}

// Service maintains the duplicate graph and its cluster stamps.
type Service struct {
	detector *Detector
	store    Store
	rec      Recorder
	log      logger.Logger
}

// NewService creates a Service. rec may be nil.
func NewService(detector *Detector, store Store, rec Recorder, log logger.Logger) *Service {
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Service{detector: detector, store: store, rec: rec, log: logger.Component(log, "duplicates")}
}

// AnalyzeWindow re-detects duplicates for date. Judgment happens first; the
// previous edges touching date are then cleared before the new ones are
// inserted, and every date whose component changed is restamped, all in one
// transaction.
func (s *Service) AnalyzeWindow(ctx context.Context, date string) ([]domain.DuplicateEdge, error) {
	start := time.Now()
	edges, err := s.detector.DetectDuplicates(ctx, date)
	if err != nil {
		s.rec.WindowAnalyzed(0, time.Since(start), err)
		return nil, err
	}

	err = s.store.InTx(ctx, func(tx EdgeTx) error {
		_, before, compErr := component(ctx, tx, []string{date})
		if compErr != nil {
			return compErr
		}

		if delErr := tx.DeleteEdgesForDate(ctx, date); delErr != nil {
			return fmt.Errorf("failed to clear edges for %s: %w", date, delErr)
		}
		if len(edges) > 0 {
			if insErr := tx.InsertEdges(ctx, edges); insErr != nil {
				return fmt.Errorf("failed to insert edges for %s: %w", date, insErr)
			}
		}

		seeds := append([]string{}, before...)
		for _, e := range edges {
			seeds = append(seeds, e.DateA, e.DateB)
		}
		return restamp(ctx, tx, seeds)
	})
	s.rec.WindowAnalyzed(len(edges), time.Since(start), err)
	if err != nil {
		return nil, err
	}

	s.log.Info("Duplicate window analyzed",
		logger.String("date", date),
		logger.Int("edges", len(edges)),
		logger.Duration("duration", time.Since(start)),
	)
	return edges, nil
}

// DeleteEdge removes the edge between a and b and restamps every date of the
// component it belonged to.
func (s *Service) DeleteEdge(ctx context.Context, a, b string) error {
	if err := domain.ValidateDates([]string{a, b}); err != nil {
		return err
	}
	edge, err := domain.NewEdge(a, b)
	if err != nil {
		return err
	}

	err = s.store.InTx(ctx, func(tx EdgeTx) error {
		_, before, compErr := component(ctx, tx, []string{edge.DateA, edge.DateB})
		if compErr != nil {
			return compErr
		}

		deleted, delErr := tx.DeleteEdge(ctx, edge.DateA, edge.DateB)
		if delErr != nil {
			return fmt.Errorf("failed to delete edge %s: %w", edge.ID(), delErr)
		}
		if !deleted {
			return ErrEdgeNotFound
		}
		return restamp(ctx, tx, before)
	})
	if err != nil {
		return err
	}

	s.log.Info("Duplicate edge deleted", logger.String("edge", edge.ID()))
	return nil
}

// Clusters returns every cluster with a member in [start, end]. Clusters are
// complete: members outside the range are included, so ids match the stamps.
func (s *Service) Clusters(ctx context.Context, start, end string) ([]domain.Cluster, error) {
	if err := domain.ValidateDates([]string{start, end}); err != nil {
		return nil, err
	}
	inRange, err := s.store.EdgesInRange(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to list edges: %w", err)
	}
	if len(inRange) == 0 {
		return []domain.Cluster{}, nil
	}

	seeds := make([]string, 0, len(inRange)*2)
	for _, e := range inRange {
		seeds = append(seeds, e.DateA, e.DateB)
	}

	var clusters []domain.Cluster
	err = s.store.InTx(ctx, func(tx EdgeTx) error {
		edges, _, compErr := component(ctx, tx, seeds)
		if compErr != nil {
			return compErr
		}
		clusters = BuildClusters(edges)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return clusters, nil
}

// restamp recomputes cluster ids for the components reachable from seeds.
func restamp(ctx context.Context, tx EdgeTx, seeds []string) error {
	edges, dates, err := component(ctx, tx, seeds)
	if err != nil {
		return err
	}
	if err = tx.StampClusters(ctx, Stamps(BuildClusters(edges), dates)); err != nil {
		return fmt.Errorf("failed to stamp clusters: %w", err)
	}
	return nil
}

// component walks edges outward from seeds until no new dates appear. It
// returns the edges found and every date visited, seeds included.
func component(ctx context.Context, tx EdgeTx, seeds []string) ([]domain.DuplicateEdge, []string, error) {
	visited := make(map[string]bool, len(seeds))
	frontier := make([]string, 0, len(seeds))
	for _, d := range seeds {
		if !visited[d] {
			visited[d] = true
			frontier = append(frontier, d)
		}
	}

	found := make(map[string]domain.DuplicateEdge)
	for len(frontier) > 0 {
		edges, err := tx.EdgesTouching(ctx, frontier)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load edges: %w", err)
		}
		frontier = frontier[:0]
		for _, e := range edges {
			found[e.ID()] = e
			for _, d := range []string{e.DateA, e.DateB} {
				if !visited[d] {
					visited[d] = true
					frontier = append(frontier, d)
				}
			}
		}
	}

	edges := make([]domain.DuplicateEdge, 0, len(found))
	for _, e := range found {
		edges = append(edges, e)
	}
	dates := make([]string, 0, len(visited))
	for d := range visited {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	return edges, dates, nil
}
