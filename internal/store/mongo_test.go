package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/zhouzirui/z-relay/backend/internal/model/chat"
)

const mongoTestNS = "relay.relay_state"

// asDoc converts v into the document a server would return for it.
func asDoc(t *testing.T, v any) bson.D {
	t.Helper()
	raw, err := bson.Marshal(v)
	require.NoError(t, err)
	var doc bson.D
	require.NoError(t, bson.Unmarshal(raw, &doc))
	return doc
}

func upsertOK() bson.D {
	return mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1})
}

func TestMongoStore(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	defer mt.Close()

	mt.Run("empty store loads empty values", func(mt *mtest.T) {
		s := NewMongoStoreWithCollection(mt.Coll)
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, mongoTestNS, mtest.FirstBatch),
			mtest.CreateCursorResponse(0, mongoTestNS, mtest.FirstBatch),
		)

		messages, err := s.LoadMessages(context.Background())
		require.NoError(mt, err)
		assert.NotNil(mt, messages)
		assert.Empty(mt, messages)

		clients, err := s.LoadClients(context.Background())
		require.NoError(mt, err)
		assert.NotNil(mt, clients)
		assert.Empty(mt, clients)
	})

	mt.Run("messages round trip", func(mt *mtest.T) {
		s := NewMongoStoreWithCollection(mt.Coll)
		want, _ := sampleState()

		mt.AddMockResponses(upsertOK())
		require.NoError(mt, s.SaveMessages(context.Background(), want))

		stored := asDoc(mt.T, mongoMessagesDoc{ID: keyMessages, Items: want})
		mt.AddMockResponses(mtest.CreateCursorResponse(0, mongoTestNS, mtest.FirstBatch, stored))
		got, err := s.LoadMessages(context.Background())
		require.NoError(mt, err)
		assert.Equal(mt, want, got)
	})

	mt.Run("clients round trip", func(mt *mtest.T) {
		s := NewMongoStoreWithCollection(mt.Coll)
		_, want := sampleState()

		mt.AddMockResponses(upsertOK())
		require.NoError(mt, s.SaveClients(context.Background(), want))

		items := make([]chat.ClientRecord, 0, len(want))
		for _, record := range want {
			items = append(items, record)
		}
		stored := asDoc(mt.T, mongoClientsDoc{ID: keyClients, Items: items})
		mt.AddMockResponses(mtest.CreateCursorResponse(0, mongoTestNS, mtest.FirstBatch, stored))

		got, err := s.LoadClients(context.Background())
		require.NoError(mt, err)
		require.Len(mt, got, len(want))
		for id, record := range want {
			assert.Equal(mt, record.ID, got[id].ID)
			assert.True(mt, record.ConnectedAt.Equal(got[id].ConnectedAt), "connectedAt for %s", id)
			assert.True(mt, record.LastSeen.Equal(got[id].LastSeen), "lastSeen for %s", id)
		}
	})

	mt.Run("server error is wrapped", func(mt *mtest.T) {
		s := NewMongoStoreWithCollection(mt.Coll)
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    11600,
			Message: "interrupted at shutdown",
			Name:    "InterruptedAtShutdown",
		}))

		_, err := s.LoadMessages(context.Background())
		require.Error(mt, err)
		assert.Contains(mt, err.Error(), "mongo load messages")
	})
}

func TestMongoDocumentsUseWireFieldNames(t *testing.T) {
	messages, clients := sampleState()

	msg, err := bson.Marshal(messages[2])
	require.NoError(t, err)
	for _, key := range []string{"type", "content", "timestamp", "fromUserId", "toUserId"} {
		_, err := bson.Raw(msg).LookupErr(key)
		assert.NoError(t, err, "message field %s", key)
	}

	record, err := bson.Marshal(clients["alice"])
	require.NoError(t, err)
	for _, key := range []string{"id", "connectedAt", "lastSeen"} {
		_, err := bson.Raw(record).LookupErr(key)
		assert.NoError(t, err, "client field %s", key)
	}

	system, err := bson.Marshal(messages[0])
	require.NoError(t, err)
	_, err = bson.Raw(system).LookupErr("fromUserId")
	assert.Error(t, err, "empty sender is omitted")
}
