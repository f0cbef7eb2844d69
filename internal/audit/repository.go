package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5"

	"github.com/wonny/eodsnap/internal/contracts"
	"github.com/wonny/eodsnap/pkg/database"
)

// ErrSummaryNotFound means no run has been summarized yet
var ErrSummaryNotFound = errors.New("run summary not found")

// Repository persists audit records and run summaries
type Repository interface {
	// SaveRun writes every record and the summary atomically
	SaveRun(ctx context.Context, records []contracts.AuditRecord, summary *contracts.RunSummary) error
	LatestSummary(ctx context.Context) (*contracts.RunSummary, error)
	Records(ctx context.Context, runID string) ([]contracts.AuditRecord, error)
}

// PostgresRepository handles audit data persistence
// ⭐ SSOT: Audit 데이터 저장/조회는 여기서만
type PostgresRepository struct {
	db *database.DB
}

// NewPostgresRepository creates a new audit repository
func NewPostgresRepository(db *database.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// SaveRun inserts records and the summary in one transaction.
// Records are append-only; a rerun of the same run id keeps the first copy.
func (r *PostgresRepository) SaveRun(ctx context.Context, records []contracts.AuditRecord, summary *contracts.RunSummary) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}

	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, rec := range records {
			batch.Queue(`
				INSERT INTO snapshot.audit_records (
					run_id, symbol, included, exclude_stage, exclude_reason, exclude_detail,
					price_used, price_source, retries, as_of
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
				ON CONFLICT (run_id, symbol) DO NOTHING
			`,
				rec.RunID, rec.Symbol, rec.Included, string(rec.ExcludeStage), string(rec.ExcludeReason), rec.ExcludeDetail,
				rec.PriceUsed, string(rec.PriceSource), rec.Retries, rec.AsOf,
			)
		}

		if batch.Len() > 0 {
			if err := tx.SendBatch(ctx, batch).Close(); err != nil {
				return fmt.Errorf("failed to insert audit records: %w", err)
			}
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO snapshot.run_summaries (
				run_id, universe_version, trade_date, state, started_at, completed_at, duration_ms, summary
			) VALUES ($1, $2, $3::date, $4, $5, $6, $7, $8)
			ON CONFLICT (run_id) DO UPDATE SET
				state = EXCLUDED.state,
				completed_at = EXCLUDED.completed_at,
				duration_ms = EXCLUDED.duration_ms,
				summary = EXCLUDED.summary
		`,
			summary.RunID, summary.UniverseVersion, summary.TradeDate, string(summary.State),
			summary.StartedAt, summary.CompletedAt, summary.Duration.Milliseconds(), summaryJSON,
		)
		if err != nil {
			return fmt.Errorf("failed to save run summary: %w", err)
		}
		return nil
	})
}

// LatestSummary retrieves the most recently completed run summary
func (r *PostgresRepository) LatestSummary(ctx context.Context) (*contracts.RunSummary, error) {
	query := `
		SELECT summary
		FROM snapshot.run_summaries
		ORDER BY completed_at DESC
		LIMIT 1
	`

	var summaryJSON []byte
	err := r.db.Pool.QueryRow(ctx, query).Scan(&summaryJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSummaryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest summary: %w", err)
	}

	var summary contracts.RunSummary
	if err := json.Unmarshal(summaryJSON, &summary); err != nil {
		return nil, fmt.Errorf("failed to unmarshal summary: %w", err)
	}
	return &summary, nil
}

// Records retrieves the audit records of a run ordered by symbol
func (r *PostgresRepository) Records(ctx context.Context, runID string) ([]contracts.AuditRecord, error) {
	query := `
		SELECT run_id, symbol, included, exclude_stage, exclude_reason, exclude_detail,
			price_used, price_source, retries, as_of
		FROM snapshot.audit_records
		WHERE run_id = $1
		ORDER BY symbol
	`

	rows, err := r.db.Pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit records: %w", err)
	}
	defer rows.Close()

	var out []contracts.AuditRecord
	for rows.Next() {
		var rec contracts.AuditRecord
		var stage, reason, source string
		if err := rows.Scan(
			&rec.RunID, &rec.Symbol, &rec.Included, &stage, &reason, &rec.ExcludeDetail,
			&rec.PriceUsed, &source, &rec.Retries, &rec.AsOf,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		rec.ExcludeStage = contracts.Stage(stage)
		rec.ExcludeReason = contracts.FailureCode(reason)
		rec.PriceSource = contracts.PriceSource(source)
		out = append(out, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit records: %w", err)
	}
	return out, nil
}

// MemoryRepository keeps audit data in process (dry runs, tests)
type MemoryRepository struct {
	mu        sync.Mutex
	records   map[string][]contracts.AuditRecord
	summaries []*contracts.RunSummary
}

// NewMemoryRepository creates an empty repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[string][]contracts.AuditRecord)}
}

// SaveRun stores records and the summary
func (r *MemoryRepository) SaveRun(_ context.Context, records []contracts.AuditRecord, summary *contracts.RunSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[summary.RunID]; !exists {
		r.records[summary.RunID] = append([]contracts.AuditRecord(nil), records...)
	}
	cp := *summary
	r.summaries = append(r.summaries, &cp)
	return nil
}

// LatestSummary returns the summary with the latest completion time
func (r *MemoryRepository) LatestSummary(context.Context) (*contracts.RunSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.summaries) == 0 {
		return nil, ErrSummaryNotFound
	}
	latest := r.summaries[0]
	for _, s := range r.summaries[1:] {
		if !s.CompletedAt.Before(latest.CompletedAt) {
			latest = s
		}
	}
	cp := *latest
	return &cp, nil
}

// Records returns the records of runID ordered by symbol
func (r *MemoryRepository) Records(_ context.Context, runID string) ([]contracts.AuditRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := append([]contracts.AuditRecord(nil), r.records[runID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}
