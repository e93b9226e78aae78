package sagaflow

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLEventStoreAppendAndIterate(t *testing.T) {
	db := openTestDB(t)
	store, err := NewSQLEventStore(db, "saga-1")
	require.NoError(t, err)

	_, err = store.Append(newSagaStarted(0, "start"))
	require.NoError(t, err)
	_, err = store.Append(newTransactionStarted(1, "charge"))
	require.NoError(t, err)

	envelopes, err := store.Iterate()
	require.NoError(t, err)
	require.Len(t, envelopes, 2)
	assert.Equal(t, SagaStarted, envelopes[0].Event.Kind)
	assert.Equal(t, TransactionStarted, envelopes[1].Event.Kind)
	assert.Equal(t, uint64(1), envelopes[0].ID)
	assert.Equal(t, uint64(2), envelopes[1].ID)
}

func TestSQLEventStoreScopesRowsBySagaID(t *testing.T) {
	db := openTestDB(t)
	storeA, err := NewSQLEventStore(db, "saga-a")
	require.NoError(t, err)
	storeB, err := NewSQLEventStore(db, "saga-b")
	require.NoError(t, err)

	_, err = storeA.Append(newSagaStarted(0, "start"))
	require.NoError(t, err)
	_, err = storeB.Append(newSagaStarted(0, "start"))
	require.NoError(t, err)

	envelopesA, err := storeA.Iterate()
	require.NoError(t, err)
	envelopesB, err := storeB.Iterate()
	require.NoError(t, err)
	assert.Len(t, envelopesA, 1)
	assert.Len(t, envelopesB, 1)
}

func TestSQLEventStorePopulatePreservesIDs(t *testing.T) {
	db := openTestDB(t)
	store, err := NewSQLEventStore(db, "saga-1")
	require.NoError(t, err)

	require.NoError(t, store.Populate([]Envelope{
		{ID: 7, Event: newSagaStarted(0, "start")},
		{ID: 9, Event: newTransactionStarted(1, "charge")},
	}))

	envelopes, err := store.Iterate()
	require.NoError(t, err)
	require.Len(t, envelopes, 2)
	assert.Equal(t, uint64(7), envelopes[0].ID)
	assert.Equal(t, uint64(9), envelopes[1].ID)
}

func TestSQLEventStorePopulateRejectedAfterAppend(t *testing.T) {
	db := openTestDB(t)
	store, err := NewSQLEventStore(db, "saga-1")
	require.NoError(t, err)

	_, err = store.Append(newSagaStarted(0, "start"))
	require.NoError(t, err)

	err = store.Populate([]Envelope{{ID: 1, Event: newSagaStarted(0, "start")}})
	assert.Error(t, err)
}
