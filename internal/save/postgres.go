package save

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
)

// PGStore keeps one JSONB row per slot.
type PGStore struct {
	db    *pgxpool.Pool
	table string
	ident string
}

func NewPGStore(db *pgxpool.Pool, schema string) *PGStore {
	if schema == "" {
		schema = "idle"
	}
	ident := pq.QuoteIdentifier(schema)
	return &PGStore{
		db:    db,
		ident: ident,
		table: ident + ".save_slots",
	}
}

func (p *PGStore) Migrate(ctx context.Context) error {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `CREATE SCHEMA IF NOT EXISTS `+p.ident); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+p.table+` (
			slot       text PRIMARY KEY,
			revision   uuid NOT NULL,
			state      jsonb NOT NULL,
			saved_at   timestamptz NOT NULL,
			updated_at timestamptz NOT NULL DEFAULT now()
		)
	`); err != nil {
		return fmt.Errorf("create save table: %w", err)
	}
	return tx.Commit(ctx)
}

func (p *PGStore) Load(ctx context.Context, slot string) (State, error) {
	if err := ValidateSlot(slot); err != nil {
		return State{}, err
	}
	var raw []byte
	err := p.db.QueryRow(ctx, `
		SELECT state
		FROM `+p.table+`
		WHERE slot = $1
	`, slot).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return State{}, ErrNotFound
		}
		return State{}, wrapPGError(err)
	}
	return Unmarshal(raw)
}

// Save upserts st under a fresh revision. A non-empty st.Revision must match
// the stored row; an empty one overwrites unconditionally.
func (p *PGStore) Save(ctx context.Context, slot string, st State) (string, error) {
	if err := ValidateSlot(slot); err != nil {
		return "", err
	}
	parent := st.Revision
	st.Revision = uuid.NewString()
	if st.SavedAt.IsZero() {
		st.SavedAt = time.Now().UTC()
	}
	raw, err := Marshal(st)
	if err != nil {
		return "", err
	}

	tag, err := p.db.Exec(ctx, `
		INSERT INTO `+p.table+` AS s (slot, revision, state, saved_at, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (slot) DO UPDATE
		SET revision = EXCLUDED.revision,
		    state = EXCLUDED.state,
		    saved_at = EXCLUDED.saved_at,
		    updated_at = now()
		WHERE $5 = '' OR s.revision::text = $5
	`, slot, st.Revision, raw, st.SavedAt, parent)
	if err != nil {
		return "", wrapPGError(err)
	}
	if tag.RowsAffected() == 0 {
		return "", ErrConflict
	}
	return st.Revision, nil
}

func (p *PGStore) List(ctx context.Context) ([]SlotInfo, error) {
	rows, err := p.db.Query(ctx, `
		SELECT slot, revision::text, saved_at
		FROM `+p.table+`
		ORDER BY slot
	`)
	if err != nil {
		return nil, wrapPGError(err)
	}
	defer rows.Close()
	var out []SlotInfo
	for rows.Next() {
		var info SlotInfo
		if err := rows.Scan(&info.Slot, &info.Revision, &info.SavedAt); err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

func (p *PGStore) Delete(ctx context.Context, slot string) error {
	if err := ValidateSlot(slot); err != nil {
		return err
	}
	tag, err := p.db.Exec(ctx, `DELETE FROM `+p.table+` WHERE slot = $1`, slot)
	if err != nil {
		return wrapPGError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func wrapPGError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "42P01" {
		return fmt.Errorf("save table missing, run migrations: %w", err)
	}
	return err
}
