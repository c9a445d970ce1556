// Package store holds the persistence backends for relay history and client
// records. Every backend is a two-key value store: one key for the ordered
// message history and one for the client record set.
package store

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/zhouzirui/z-relay/backend/internal/config"
	"github.com/zhouzirui/z-relay/backend/internal/model/chat"
)

const (
	keyMessages = "messages"
	keyClients  = "clients"
)

// ErrUnknownDriver is returned by Open for an unsupported STORE_DRIVER.
var ErrUnknownDriver = errors.New("unknown store driver")

// Store persists relay state. Loading from an empty store yields empty
// values and a nil error.
type Store interface {
	SaveMessages(ctx context.Context, messages []chat.Message) error
	SaveClients(ctx context.Context, clients map[string]chat.ClientRecord) error
	LoadMessages(ctx context.Context) ([]chat.Message, error)
	LoadClients(ctx context.Context) (map[string]chat.ClientRecord, error)
	Close() error
}

// Open connects the backend selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig, log *zap.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	log.Info("opening store", zap.String("driver", driver))

	switch driver {
	case "", "memory":
		return NewMemoryStore(), nil
	case "redis":
		return NewRedisStore(ctx, RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
		})
	case "mongo", "mongodb":
		return NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection)
	case "postgres", "postgresql":
		return NewPostgresStore(ctx, cfg.PostgresDSN)
	default:
		return nil, errors.Wrapf(ErrUnknownDriver, "driver %q", cfg.Driver)
	}
}
