package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/zhouzirui/z-relay/backend/internal/model/chat"
)

// RedisOptions configures RedisStore.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// RedisStore keeps the history as one JSON string and the client records as
// a hash keyed by client id.
//
//	<prefix>:messages -> JSON array of chat.Message
//	<prefix>:clients  -> hash id -> JSON chat.ClientRecord
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisStore dials and pings the server.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrapf(err, "ping redis %s", opts.Addr)
	}

	return NewRedisStoreWithClient(rdb, opts.Prefix), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(rdb *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "relay"
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) key(name string) string { return s.prefix + ":" + name }

func (s *RedisStore) SaveMessages(ctx context.Context, messages []chat.Message) error {
	if messages == nil {
		messages = []chat.Message{}
	}
	b, err := json.Marshal(messages)
	if err != nil {
		return errors.Wrap(err, "encode messages")
	}
	return errors.Wrap(s.rdb.Set(ctx, s.key(keyMessages), b, 0).Err(), "redis set messages")
}

func (s *RedisStore) SaveClients(ctx context.Context, clients map[string]chat.ClientRecord) error {
	fields := make(map[string]any, len(clients))
	for id, record := range clients {
		b, err := json.Marshal(record)
		if err != nil {
			return errors.Wrapf(err, "encode client %s", id)
		}
		fields[id] = string(b)
	}

	key := s.key(keyClients)
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(fields) > 0 {
			pipe.HSet(ctx, key, fields)
		}
		return nil
	})
	return errors.Wrap(err, "redis save clients")
}

func (s *RedisStore) LoadMessages(ctx context.Context) ([]chat.Message, error) {
	raw, err := s.rdb.Get(ctx, s.key(keyMessages)).Bytes()
	if errors.Is(err, redis.Nil) {
		return []chat.Message{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "redis get messages")
	}

	var messages []chat.Message
	if err := json.Unmarshal(raw, &messages); err != nil {
		return nil, errors.Wrap(err, "decode messages")
	}
	return messages, nil
}

func (s *RedisStore) LoadClients(ctx context.Context) (map[string]chat.ClientRecord, error) {
	vals, err := s.rdb.HGetAll(ctx, s.key(keyClients)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redis hgetall clients")
	}

	clients := make(map[string]chat.ClientRecord, len(vals))
	for id, v := range vals {
		var record chat.ClientRecord
		if err := json.Unmarshal([]byte(v), &record); err != nil {
			return nil, errors.Wrapf(err, "decode client %s", id)
		}
		clients[id] = record
	}
	return clients, nil
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
