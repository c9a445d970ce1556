package store

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/zhouzirui/z-relay/backend/internal/model/chat"
)

type mongoMessagesDoc struct {
	ID    string         `bson:"_id"`
	Items []chat.Message `bson:"items"`
}

type mongoClientsDoc struct {
	ID    string              `bson:"_id"`
	Items []chat.ClientRecord `bson:"items"`
}

// MongoStore keeps one document per key in a single collection.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongoStore connects and pings the primary.
func NewMongoStore(ctx context.Context, uri, database, collection string) (*MongoStore, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrap(err, "mongo connect")
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(err, "mongo ping")
	}

	return NewMongoStoreWithCollection(client.Database(database).Collection(collection)), nil
}

// NewMongoStoreWithCollection wraps an existing collection. Close disconnects
// the collection's client.
func NewMongoStoreWithCollection(coll *mongo.Collection) *MongoStore {
	return &MongoStore{
		client: coll.Database().Client(),
		coll:   coll,
	}
}

func (s *MongoStore) upsert(ctx context.Context, id string, doc any) error {
	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": id}, doc, options.Replace().SetUpsert(true))
	return errors.Wrapf(err, "mongo upsert %s", id)
}

func (s *MongoStore) SaveMessages(ctx context.Context, messages []chat.Message) error {
	if messages == nil {
		messages = []chat.Message{}
	}
	return s.upsert(ctx, keyMessages, mongoMessagesDoc{ID: keyMessages, Items: messages})
}

func (s *MongoStore) SaveClients(ctx context.Context, clients map[string]chat.ClientRecord) error {
	items := make([]chat.ClientRecord, 0, len(clients))
	for _, record := range clients {
		items = append(items, record)
	}
	return s.upsert(ctx, keyClients, mongoClientsDoc{ID: keyClients, Items: items})
}

func (s *MongoStore) LoadMessages(ctx context.Context) ([]chat.Message, error) {
	var doc mongoMessagesDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": keyMessages}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return []chat.Message{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "mongo load messages")
	}
	if doc.Items == nil {
		return []chat.Message{}, nil
	}
	return doc.Items, nil
}

func (s *MongoStore) LoadClients(ctx context.Context) (map[string]chat.ClientRecord, error) {
	var doc mongoClientsDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": keyClients}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return map[string]chat.ClientRecord{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "mongo load clients")
	}

	clients := make(map[string]chat.ClientRecord, len(doc.Items))
	for _, record := range doc.Items {
		clients[record.ID] = record
	}
	return clients, nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
