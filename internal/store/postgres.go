package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jeenglish/speaking-backend/internal/usage"
)

// Postgres stores the ledger as one jsonb document row, mirroring the
// single-document model of the remote bin rather than normalizing into
// per-user rows.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// EnsureSchema creates the ledger table if it does not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS usage_ledger (
			id  int PRIMARY KEY,
			doc jsonb NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("create usage_ledger table: %w", err)
	}
	return nil
}

func (p *Postgres) Load(ctx context.Context) (usage.Ledger, error) {
	var data []byte
	err := p.pool.QueryRow(ctx, `SELECT doc FROM usage_ledger WHERE id = 1`).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return make(usage.Ledger), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}

	var l usage.Ledger
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("parse ledger document: %w", err)
	}
	if l == nil {
		l = make(usage.Ledger)
	}
	return l, nil
}

func (p *Postgres) Save(ctx context.Context, l usage.Ledger) error {
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("marshal ledger: %w", err)
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO usage_ledger (id, doc) VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET doc = excluded.doc`, data)
	if err != nil {
		return fmt.Errorf("save ledger: %w", err)
	}
	return nil
}
