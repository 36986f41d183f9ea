package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/komorebi-pos/engine/internal/model"
	"github.com/rs/zerolog"
)

// PostgresRemote is the self-hosted alternative to Firestore: one JSONB
// document table keyed the same way the document store keys its documents.
type PostgresRemote struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

const (
	keyPrefixTable   = "table:"
	keyPrefixHistory = "history:"
	keyTakeout       = "takeout"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS pos_documents (
	key        text PRIMARY KEY,
	doc        jsonb NOT NULL,
	updated_at timestamptz NOT NULL DEFAULT now()
)`

// NewPostgresRemote connects and ensures the document table exists.
func NewPostgresRemote(ctx context.Context, databaseURL string, log zerolog.Logger) (*PostgresRemote, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("pgx pool: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &PostgresRemote{pool: pool, log: log}, nil
}

// Close releases the connection pool.
func (p *PostgresRemote) Close() { p.pool.Close() }

func (p *PostgresRemote) TableStates(ctx context.Context) (map[string]*model.TableOrderState, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT key, doc FROM pos_documents WHERE key LIKE $1`, keyPrefixTable+"%")
	if err != nil {
		return nil, classifyPostgres("list tables", err)
	}
	defer rows.Close()

	out := make(map[string]*model.TableOrderState)
	for rows.Next() {
		var key string
		var doc []byte
		if err := rows.Scan(&key, &doc); err != nil {
			return nil, classifyPostgres("scan table", err)
		}
		id := strings.TrimPrefix(key, keyPrefixTable)
		st, rep, err := model.DecodeTableState(doc)
		if err != nil {
			return nil, Permanent(fmt.Errorf("table %s: %w", id, err))
		}
		if rep.Dirty() {
			p.log.Warn().Str("table_id", id).
				Int("flattened", rep.Flattened).Int("dropped", rep.Dropped).
				Msg("repaired stored order list shape")
		}
		st.TableID = id
		out[id] = st
	}
	return out, classifyPostgres("list tables", rows.Err())
}

func (p *PostgresRemote) TakeoutOrders(ctx context.Context) ([]*model.TakeoutOrder, error) {
	var doc []byte
	err := p.pool.QueryRow(ctx,
		`SELECT doc FROM pos_documents WHERE key = $1`, keyTakeout).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classifyPostgres("get takeout", err)
	}
	all, rep, err := model.DecodeTakeoutOrders(doc)
	if err != nil {
		return nil, Permanent(err)
	}
	if rep.Dirty() {
		p.log.Warn().Int("flattened", rep.Flattened).Int("dropped", rep.Dropped).
			Msg("repaired stored takeout list shape")
	}
	return all, nil
}

func (p *PostgresRemote) SalesHistory(ctx context.Context) ([]*model.SalesHistoryRecord, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT doc FROM pos_documents WHERE key LIKE $1 ORDER BY (doc->>'timestamp')::bigint`,
		keyPrefixHistory+"%")
	if err != nil {
		return nil, classifyPostgres("list history", err)
	}
	defer rows.Close()

	var out []*model.SalesHistoryRecord
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, classifyPostgres("scan record", err)
		}
		var rec model.SalesHistoryRecord
		if err := json.Unmarshal(doc, &rec); err != nil {
			return nil, Permanent(err)
		}
		out = append(out, &rec)
	}
	return out, classifyPostgres("list history", rows.Err())
}

func (p *PostgresRemote) PutTableState(ctx context.Context, id string, st *model.TableOrderState) error {
	return p.upsert(ctx, keyPrefixTable+id, st)
}

func (p *PostgresRemote) DeleteTableState(ctx context.Context, id string) error {
	_, err := p.pool.Exec(ctx,
		`DELETE FROM pos_documents WHERE key = $1`, keyPrefixTable+id)
	return classifyPostgres("delete table", err)
}

func (p *PostgresRemote) PutTakeoutOrders(ctx context.Context, all []*model.TakeoutOrder) error {
	if all == nil {
		all = []*model.TakeoutOrder{}
	}
	return p.upsert(ctx, keyTakeout, all)
}

func (p *PostgresRemote) AppendSalesRecord(ctx context.Context, rec *model.SalesHistoryRecord) error {
	return p.upsert(ctx, keyPrefixHistory+rec.ID, rec)
}

func (p *PostgresRemote) UpdateSalesRecord(ctx context.Context, id string, patch RecordPatch) error {
	raw, err := json.Marshal(patch.Refund)
	if err != nil {
		return Permanent(err)
	}
	tag, err := p.pool.Exec(ctx,
		`UPDATE pos_documents SET doc = jsonb_set(doc, '{refund}', $2::jsonb), updated_at = now() WHERE key = $1`,
		keyPrefixHistory+id, raw)
	if err != nil {
		return classifyPostgres("update record", err)
	}
	if tag.RowsAffected() == 0 {
		return Permanent(fmt.Errorf("record %s: %w", id, ErrNotFound))
	}
	return nil
}

func (p *PostgresRemote) upsert(ctx context.Context, key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return Permanent(err)
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO pos_documents (key, doc, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()`,
		key, raw)
	return classifyPostgres("upsert "+key, err)
}

// classifyPostgres: a PgError means the server understood and rejected the
// request (permanent); anything else is assumed to be connectivity.
func classifyPostgres(op string, err error) error {
	if err == nil {
		return nil
	}
	wrapped := fmt.Errorf("%s: %w", op, err)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return Permanent(wrapped)
	}
	return Transient(wrapped)
}
