package universe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/eodsnap/internal/contracts"
)

// ErrUniverseNotFound means no universe version has been persisted yet
var ErrUniverseNotFound = errors.New("universe version not found")

// Repository persists universe versions
type Repository interface {
	Save(ctx context.Context, v *contracts.UniverseVersion) error
	Latest(ctx context.Context) (*contracts.UniverseVersion, error)
	Get(ctx context.Context, versionID string) (*contracts.UniverseVersion, error)
}

// PostgresRepository stores versions in snapshot.universe_versions
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new Repository instance
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Save inserts a version; an identical id already stored is kept as is
func (r *PostgresRepository) Save(ctx context.Context, v *contracts.UniverseVersion) error {
	tiersJSON, err := json.Marshal(v.Tiers)
	if err != nil {
		return fmt.Errorf("marshal tiers: %w", err)
	}
	countsJSON, err := json.Marshal(v.TierCounts)
	if err != nil {
		return fmt.Errorf("marshal tier counts: %w", err)
	}

	query := `
		INSERT INTO snapshot.universe_versions (
			version_id, symbols, tiers, tier_counts, source, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (version_id) DO NOTHING
	`

	_, err = r.db.Exec(ctx, query, v.VersionID, v.Symbols, tiersJSON, countsJSON, v.Source, v.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert universe version: %w", err)
	}
	return nil
}

const versionColumns = `version_id, symbols, tiers, tier_counts, source, created_at`

// Latest retrieves the most recently created version
func (r *PostgresRepository) Latest(ctx context.Context) (*contracts.UniverseVersion, error) {
	query := `SELECT ` + versionColumns + `
		FROM snapshot.universe_versions
		ORDER BY created_at DESC
		LIMIT 1
	`
	return scanVersion(r.db.QueryRow(ctx, query))
}

// Get retrieves a version by id
func (r *PostgresRepository) Get(ctx context.Context, versionID string) (*contracts.UniverseVersion, error) {
	query := `SELECT ` + versionColumns + `
		FROM snapshot.universe_versions
		WHERE version_id = $1
	`
	return scanVersion(r.db.QueryRow(ctx, query, versionID))
}

func scanVersion(row pgx.Row) (*contracts.UniverseVersion, error) {
	var v contracts.UniverseVersion
	var tiersJSON, countsJSON []byte

	err := row.Scan(&v.VersionID, &v.Symbols, &tiersJSON, &countsJSON, &v.Source, &v.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUniverseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query universe version: %w", err)
	}

	if err := json.Unmarshal(tiersJSON, &v.Tiers); err != nil {
		return nil, fmt.Errorf("unmarshal tiers: %w", err)
	}
	if err := json.Unmarshal(countsJSON, &v.TierCounts); err != nil {
		return nil, fmt.Errorf("unmarshal tier counts: %w", err)
	}
	return &v, nil
}

// MemoryRepository keeps versions in process (dry runs, tests)
type MemoryRepository struct {
	mu       sync.Mutex
	versions []*contracts.UniverseVersion
}

// NewMemoryRepository creates an empty repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

// Save appends a version unless its id is already stored
func (r *MemoryRepository) Save(_ context.Context, v *contracts.UniverseVersion) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.versions {
		if existing.VersionID == v.VersionID {
			return nil
		}
	}
	r.versions = append(r.versions, v)
	return nil
}

// Latest returns the last saved version
func (r *MemoryRepository) Latest(context.Context) (*contracts.UniverseVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.versions) == 0 {
		return nil, ErrUniverseNotFound
	}
	return r.versions[len(r.versions)-1], nil
}

// Get returns a version by id
func (r *MemoryRepository) Get(_ context.Context, versionID string) (*contracts.UniverseVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, v := range r.versions {
		if v.VersionID == versionID {
			return v, nil
		}
	}
	return nil, ErrUniverseNotFound
}
