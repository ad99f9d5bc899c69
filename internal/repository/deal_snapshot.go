package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dealfeed/internal/domain"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type SnapshotRepository interface {
	EnsureSchema(ctx context.Context) error
	SaveSnapshot(ctx context.Context, snapshot *domain.DealSnapshot) error
	// LatestSnapshot returns nil without an error when the user has none.
	LatestSnapshot(ctx context.Context, userID string) (*domain.DealSnapshot, error)
}

// DB is the subset of *pgxpool.Pool the repository uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type snapshotRepository struct {
	db DB
}

func NewSnapshotRepository(db DB) SnapshotRepository {
	return &snapshotRepository{
		db: db,
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS deal_snapshots (
	id         UUID PRIMARY KEY,
	user_id    TEXT NOT NULL,
	query      TEXT NOT NULL,
	filtered   BOOLEAN NOT NULL,
	top_deal   JSONB,
	deals      JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS deal_snapshots_user_created_idx
	ON deal_snapshots (user_id, created_at DESC);`

func (r *snapshotRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create deal_snapshots schema: %w", err)
	}
	return nil
}

// SaveSnapshot stores snapshot, filling in ID and CreatedAt when unset.
func (r *snapshotRepository) SaveSnapshot(ctx context.Context, snapshot *domain.DealSnapshot) error {
	if snapshot.ID == uuid.Nil {
		snapshot.ID = uuid.New()
	}
	if snapshot.CreatedAt.IsZero() {
		snapshot.CreatedAt = time.Now().UTC()
	}

	deals := snapshot.Deals
	if deals == nil {
		deals = []domain.Deal{}
	}
	dealsJSON, err := json.Marshal(deals)
	if err != nil {
		return fmt.Errorf("failed to encode deals: %w", err)
	}

	var topJSON []byte
	if snapshot.TopDeal != nil {
		topJSON, err = json.Marshal(snapshot.TopDeal)
		if err != nil {
			return fmt.Errorf("failed to encode top deal: %w", err)
		}
	}

	query := `
	INSERT INTO deal_snapshots (id, user_id, query, filtered, top_deal, deals, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err = r.db.Exec(ctx, query,
		snapshot.ID.String(),
		snapshot.UserID,
		snapshot.Query,
		snapshot.Filtered,
		topJSON,
		dealsJSON,
		snapshot.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save deal snapshot: %w", err)
	}

	return nil
}

func (r *snapshotRepository) LatestSnapshot(ctx context.Context, userID string) (*domain.DealSnapshot, error) {
	query := `
	SELECT id::text, user_id, query, filtered, top_deal, deals, created_at
	FROM deal_snapshots
	WHERE user_id = $1
	ORDER BY created_at DESC
	LIMIT 1`

	var (
		id        string
		topJSON   []byte
		dealsJSON []byte
		snapshot  domain.DealSnapshot
	)
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&id,
		&snapshot.UserID,
		&snapshot.Query,
		&snapshot.Filtered,
		&topJSON,
		&dealsJSON,
		&snapshot.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load latest snapshot for user %s: %w", userID, err)
	}

	if snapshot.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot id %q: %w", id, err)
	}
	if len(topJSON) > 0 {
		var top domain.Deal
		if err := json.Unmarshal(topJSON, &top); err != nil {
			return nil, fmt.Errorf("failed to decode top deal: %w", err)
		}
		snapshot.TopDeal = &top
	}
	if err := json.Unmarshal(dealsJSON, &snapshot.Deals); err != nil {
		return nil, fmt.Errorf("failed to decode deals: %w", err)
	}

	return &snapshot, nil
}
