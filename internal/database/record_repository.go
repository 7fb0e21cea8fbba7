package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/north-cloud/timeline/internal/domain"
)

// ErrRecordNotFound is returned when no record exists for a date.
var ErrRecordNotFound = errors.New("record not found")

const recordSelectColumns = `date, tiered_candidates, selected_document_id, selected_tier, generated_text,
	judge_verdicts, resolution_mode, judge_error, tie_break, proposed_document_id,
	generation_violation, fact_check, cluster_id, flag, updated_at`

// recordPutColumns excludes cluster_id, flag and fact_check. Those are owned
// by StampClusters, SetFlag and the fact-check pass and survive a Put.
const recordPutColumns = `date, tiered_candidates, selected_document_id, selected_tier, generated_text,
	judge_verdicts, resolution_mode, judge_error, tie_break, proposed_document_id,
	generation_violation, updated_at`

type recordRow struct {
	Date                string         `db:"date"`
	TieredCandidates    string         `db:"tiered_candidates"`
	SelectedDocumentID  sql.NullString `db:"selected_document_id"`
	SelectedTier        sql.NullString `db:"selected_tier"`
	GeneratedText       sql.NullString `db:"generated_text"`
	JudgeVerdicts       sql.NullString `db:"judge_verdicts"`
	ResolutionMode      string         `db:"resolution_mode"`
	JudgeError          bool           `db:"judge_error"`
	TieBreak            sql.NullString `db:"tie_break"`
	ProposedDocumentID  sql.NullString `db:"proposed_document_id"`
	GenerationViolation bool           `db:"generation_violation"`
	FactCheck           sql.NullString `db:"fact_check"`
	ClusterID           sql.NullString `db:"cluster_id"`
	Flag                sql.NullString `db:"flag"`
	UpdatedAt           time.Time      `db:"updated_at"`
}

func (r *recordRow) toDomain() (domain.DailyRecord, error) {
	rec := domain.DailyRecord{
		Date:                r.Date,
		SelectedDocumentID:  r.SelectedDocumentID.String,
		SelectedTier:        domain.Tier(r.SelectedTier.String),
		GeneratedText:       r.GeneratedText.String,
		ResolutionMode:      domain.ResolutionMode(r.ResolutionMode),
		JudgeError:          r.JudgeError,
		ProposedDocumentID:  r.ProposedDocumentID.String,
		GenerationViolation: r.GenerationViolation,
		ClusterID:           r.ClusterID.String,
		UpdatedAt:           r.UpdatedAt,
	}

	decode := []struct {
		col  string
		raw  sql.NullString
		into any
	}{
		{"tiered_candidates", sql.NullString{String: r.TieredCandidates, Valid: true}, &rec.TieredCandidates},
		{"judge_verdicts", r.JudgeVerdicts, &rec.JudgeVerdicts},
		{"tie_break", r.TieBreak, &rec.TieBreak},
		{"fact_check", r.FactCheck, &rec.FactCheck},
		{"flag", r.Flag, &rec.Flag},
	}
	for _, d := range decode {
		if !d.raw.Valid || d.raw.String == "" {
			continue
		}
		if err := json.Unmarshal([]byte(d.raw.String), d.into); err != nil {
			return domain.DailyRecord{}, fmt.Errorf("failed to decode %s for %s: %w", d.col, r.Date, err)
		}
	}
	return rec, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func encodeJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// RecordRepository stores one DailyRecord per date.
type RecordRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewRecordRepository creates a record repository.
func NewRecordRepository(db *sqlx.DB) *RecordRepository {
	return &RecordRepository{db: db, now: time.Now}
}

// Get returns the record for date.
func (r *RecordRepository) Get(ctx context.Context, date string) (*domain.DailyRecord, error) {
	query := r.db.Rebind(`SELECT ` + recordSelectColumns + ` FROM daily_records WHERE date = ?`)

	var row recordRow
	if err := r.db.GetContext(ctx, &row, query, date); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, date)
		}
		return nil, fmt.Errorf("failed to get record: %w", err)
	}

	rec, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Put inserts or replaces the curation fields of rec.Date and sets
// UpdatedAt. The stored cluster id, flag and fact check are left untouched.
func (r *RecordRepository) Put(ctx context.Context, rec *domain.DailyRecord) error {
	candidates, err := encodeJSON(rec.TieredCandidates)
	if err != nil {
		return fmt.Errorf("failed to encode candidates: %w", err)
	}
	verdicts, err := encodeJSON(rec.JudgeVerdicts)
	if err != nil {
		return fmt.Errorf("failed to encode verdicts: %w", err)
	}
	tieBreak, err := encodeJSON(rec.TieBreak)
	if err != nil {
		return fmt.Errorf("failed to encode tie break: %w", err)
	}
	rec.UpdatedAt = r.now().UTC()

	query := r.db.Rebind(`
		INSERT INTO daily_records (` + recordPutColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (date) DO UPDATE SET
			tiered_candidates = excluded.tiered_candidates,
			selected_document_id = excluded.selected_document_id,
			selected_tier = excluded.selected_tier,
			generated_text = excluded.generated_text,
			judge_verdicts = excluded.judge_verdicts,
			resolution_mode = excluded.resolution_mode,
			judge_error = excluded.judge_error,
			tie_break = excluded.tie_break,
			proposed_document_id = excluded.proposed_document_id,
			generation_violation = excluded.generation_violation,
			updated_at = excluded.updated_at
	`)

	_, err = r.db.ExecContext(ctx, query,
		rec.Date, candidates, nullable(rec.SelectedDocumentID), nullable(string(rec.SelectedTier)),
		nullable(rec.GeneratedText), verdicts, string(rec.ResolutionMode), rec.JudgeError, tieBreak,
		nullable(rec.ProposedDocumentID), rec.GenerationViolation, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save record %s: %w", rec.Date, err)
	}
	return nil
}

// RecordsInRange returns the records between start and end inclusive, by date.
func (r *RecordRepository) RecordsInRange(ctx context.Context, start, end string) ([]domain.DailyRecord, error) {
	query := r.db.Rebind(`SELECT ` + recordSelectColumns + ` FROM daily_records WHERE date >= ? AND date <= ? ORDER BY date`)

	var rows []recordRow
	if err := r.db.SelectContext(ctx, &rows, query, start, end); err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}

	out := make([]domain.DailyRecord, 0, len(rows))
	for i := range rows {
		rec, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// SetFlag marks or clears the review flag on a record.
func (r *RecordRepository) SetFlag(ctx context.Context, date string, flag domain.Flag) error {
	encoded, err := encodeJSON(flag)
	if err != nil {
		return fmt.Errorf("failed to encode flag: %w", err)
	}
	query := r.db.Rebind(`UPDATE daily_records SET flag = ?, updated_at = ? WHERE date = ?`)
	result, err := r.db.ExecContext(ctx, query, encoded, r.now().UTC(), date)
	return execRequireRows(result, err, fmt.Errorf("%w: %s", ErrRecordNotFound, date))
}
