package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/zhouzirui/z-relay/backend/internal/model/chat"
)

const (
	pgCreateTable = `CREATE TABLE IF NOT EXISTS relay_kv (
	key        TEXT PRIMARY KEY,
	value      JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`
	pgUpsert = `INSERT INTO relay_kv (key, value, updated_at) VALUES ($1, $2, now())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`
	pgSelect = `SELECT value FROM relay_kv WHERE key = $1`
)

// PostgresStore keeps each key as a JSONB row in relay_kv.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore opens a pool and makes sure the table exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(connectCtx, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "postgres connect")
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "postgres ping")
	}
	if _, err := pool.Exec(connectCtx, pgCreateTable); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "postgres create relay_kv")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) put(ctx context.Context, key string, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "encode %s", key)
	}
	_, err = s.pool.Exec(ctx, pgUpsert, key, b)
	return errors.Wrapf(err, "postgres upsert %s", key)
}

// get decodes the row into out; found is false when the key is absent.
func (s *PostgresStore) get(ctx context.Context, key string, out any) (bool, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, pgSelect, key).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "postgres select %s", key)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, errors.Wrapf(err, "decode %s", key)
	}
	return true, nil
}

func (s *PostgresStore) SaveMessages(ctx context.Context, messages []chat.Message) error {
	if messages == nil {
		messages = []chat.Message{}
	}
	return s.put(ctx, keyMessages, messages)
}

func (s *PostgresStore) SaveClients(ctx context.Context, clients map[string]chat.ClientRecord) error {
	if clients == nil {
		clients = map[string]chat.ClientRecord{}
	}
	return s.put(ctx, keyClients, clients)
}

func (s *PostgresStore) LoadMessages(ctx context.Context) ([]chat.Message, error) {
	var messages []chat.Message
	found, err := s.get(ctx, keyMessages, &messages)
	if err != nil {
		return nil, err
	}
	if !found || messages == nil {
		return []chat.Message{}, nil
	}
	return messages, nil
}

func (s *PostgresStore) LoadClients(ctx context.Context) (map[string]chat.ClientRecord, error) {
	var clients map[string]chat.ClientRecord
	found, err := s.get(ctx, keyClients, &clients)
	if err != nil {
		return nil, err
	}
	if !found || clients == nil {
		return map[string]chat.ClientRecord{}, nil
	}
	return clients, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
