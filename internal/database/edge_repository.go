package database

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/north-cloud/timeline/internal/domain"
	"github.com/jonesrussell/north-cloud/timeline/internal/duplicates"
)

const edgeSelectColumns = `date_a, date_b, COALESCE(cluster_id, '') AS cluster_id`

// EdgeRepository stores duplicate edges and the cluster stamps derived from
// them. It implements duplicates.Store.
type EdgeRepository struct {
	db      *sqlx.DB
	records *RecordRepository
	now     func() time.Time
}

// NewEdgeRepository creates an edge repository.
func NewEdgeRepository(db *sqlx.DB, records *RecordRepository) *EdgeRepository {
	return &EdgeRepository{db: db, records: records, now: time.Now}
}

// RecordsInRange implements duplicates.RecordReader.
func (r *EdgeRepository) RecordsInRange(ctx context.Context, start, end string) ([]domain.DailyRecord, error) {
	return r.records.RecordsInRange(ctx, start, end)
}

// EdgesInRange returns edges with at least one endpoint in [start, end].
func (r *EdgeRepository) EdgesInRange(ctx context.Context, start, end string) ([]domain.DuplicateEdge, error) {
	query := r.db.Rebind(`SELECT ` + edgeSelectColumns + ` FROM duplicate_edges
		WHERE (date_a >= ? AND date_a <= ?) OR (date_b >= ? AND date_b <= ?)
		ORDER BY date_a, date_b`)

	var edges []domain.DuplicateEdge
	if err := r.db.SelectContext(ctx, &edges, query, start, end, start, end); err != nil {
		return nil, fmt.Errorf("failed to list edges: %w", err)
	}
	if edges == nil {
		edges = []domain.DuplicateEdge{}
	}
	return edges, nil
}

// InTx runs fn in a transaction, committing when it returns nil.
func (r *EdgeRepository) InTx(ctx context.Context, fn func(duplicates.EdgeTx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if fnErr := fn(&edgeTx{tx: tx, now: r.now}); fnErr != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %w)", fnErr, rbErr)
		}
		return fnErr
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type edgeTx struct {
	tx  *sqlx.Tx
	now func() time.Time
}

func (t *edgeTx) DeleteEdgesForDate(ctx context.Context, date string) error {
	query := t.tx.Rebind(`DELETE FROM duplicate_edges WHERE date_a = ? OR date_b = ?`)
	if _, err := t.tx.ExecContext(ctx, query, date, date); err != nil {
		return err
	}
	return nil
}

func (t *edgeTx) InsertEdges(ctx context.Context, edges []domain.DuplicateEdge) error {
	query := t.tx.Rebind(`INSERT INTO duplicate_edges (date_a, date_b, created_at) VALUES (?, ?, ?)
		ON CONFLICT (date_a, date_b) DO NOTHING`)
	createdAt := t.now().UTC()
	for _, e := range edges {
		if _, err := t.tx.ExecContext(ctx, query, e.DateA, e.DateB, createdAt); err != nil {
			return fmt.Errorf("edge %s: %w", e.ID(), err)
		}
	}
	return nil
}

func (t *edgeTx) DeleteEdge(ctx context.Context, dateA, dateB string) (bool, error) {
	query := t.tx.Rebind(`DELETE FROM duplicate_edges WHERE date_a = ? AND date_b = ?`)
	result, err := t.tx.ExecContext(ctx, query, dateA, dateB)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (t *edgeTx) EdgesTouching(ctx context.Context, dates []string) ([]domain.DuplicateEdge, error) {
	if len(dates) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT `+edgeSelectColumns+` FROM duplicate_edges
		WHERE date_a IN (?) OR date_b IN (?)`, dates, dates)
	if err != nil {
		return nil, err
	}

	var edges []domain.DuplicateEdge
	if err = t.tx.SelectContext(ctx, &edges, t.tx.Rebind(query), args...); err != nil {
		return nil, err
	}
	return edges, nil
}

// StampClusters updates dates in sorted order so concurrent stampers lock
// rows in the same sequence.
func (t *edgeTx) StampClusters(ctx context.Context, stamps map[string]string) error {
	dates := make([]string, 0, len(stamps))
	for d := range stamps {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	recordQuery := t.tx.Rebind(`UPDATE daily_records SET cluster_id = ? WHERE date = ?`)
	edgeQuery := t.tx.Rebind(`UPDATE duplicate_edges SET cluster_id = ? WHERE date_a = ?`)
	for _, d := range dates {
		id := nullable(stamps[d])
		if _, err := t.tx.ExecContext(ctx, recordQuery, id, d); err != nil {
			return fmt.Errorf("record %s: %w", d, err)
		}
		if _, err := t.tx.ExecContext(ctx, edgeQuery, id, d); err != nil {
			return fmt.Errorf("edges from %s: %w", d, err)
		}
	}
	return nil
}
