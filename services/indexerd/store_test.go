package main

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	store, err := OpenStore(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSaveEventIdempotentBySeq(t *testing.T) {
	store := setupTestStore(t)

	stored, err := store.SaveEvent(1, "assertion.submitted", map[string]string{"id": "7", "stake": "100"})
	require.NoError(t, err)
	require.True(t, stored)

	// Replaying the same sequence after a reconnect must not duplicate it.
	stored, err = store.SaveEvent(1, "assertion.submitted", map[string]string{"id": "7", "stake": "100"})
	require.NoError(t, err)
	require.False(t, stored)

	count, err := store.CountEvents()
	require.NoError(t, err)
	require.Equal(t, int64(1), count)

	lastSeq, err := store.LastSeq()
	require.NoError(t, err)
	require.Equal(t, uint64(1), lastSeq)
}

func TestLastSeqEmptyStore(t *testing.T) {
	store := setupTestStore(t)

	lastSeq, err := store.LastSeq()
	require.NoError(t, err)
	require.Equal(t, uint64(0), lastSeq)
}

func TestEntityIDParsedFromAttributes(t *testing.T) {
	store := setupTestStore(t)

	stored, err := store.SaveEvent(1, "assertion.attested", map[string]string{"id": "42", "attester": "vnt1..."})
	require.NoError(t, err)
	require.True(t, stored)

	// Delegation events carry no numeric id and index as entity zero.
	stored, err = store.SaveEvent(2, "reputation.delegated", map[string]string{"delegator": "vnt1...", "amount": "40"})
	require.NoError(t, err)
	require.True(t, stored)

	records, err := store.ListEvents(EventFilter{EntityID: 42})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, uint64(1), records[0].Seq)
	require.Equal(t, uint64(42), records[0].EntityID)
}

func TestListEventsFiltersAndPaging(t *testing.T) {
	store := setupTestStore(t)

	fixtures := []struct {
		seq       uint64
		eventType string
		id        string
	}{
		{1, "assertion.submitted", "1"},
		{2, "assertion.attested", "1"},
		{3, "assertion.submitted", "2"},
		{4, "assertion.disputed", "1"},
		{5, "topic.proposed", "3"},
	}
	for _, fx := range fixtures {
		stored, err := store.SaveEvent(fx.seq, fx.eventType, map[string]string{"id": fx.id})
		require.NoError(t, err)
		require.True(t, stored)
	}

	byType, err := store.ListEvents(EventFilter{Type: "assertion.submitted"})
	require.NoError(t, err)
	require.Len(t, byType, 2)
	require.Equal(t, uint64(1), byType[0].Seq)
	require.Equal(t, uint64(3), byType[1].Seq)

	byEntity, err := store.ListEvents(EventFilter{EntityID: 1})
	require.NoError(t, err)
	require.Len(t, byEntity, 3)

	afterSeq, err := store.ListEvents(EventFilter{AfterSeq: 3})
	require.NoError(t, err)
	require.Len(t, afterSeq, 2)
	require.Equal(t, uint64(4), afterSeq[0].Seq)

	limited, err := store.ListEvents(EventFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, limited, 2)
	require.Equal(t, uint64(1), limited[0].Seq)
	require.Equal(t, uint64(2), limited[1].Seq)

	combined, err := store.ListEvents(EventFilter{Type: "assertion.submitted", EntityID: 2})
	require.NoError(t, err)
	require.Len(t, combined, 1)
	require.Equal(t, uint64(3), combined[0].Seq)
}

func TestListEventsClampsLimit(t *testing.T) {
	store := setupTestStore(t)

	for seq := uint64(1); seq <= maxListLimit+10; seq++ {
		stored, err := store.SaveEvent(seq, "assertion.attested", map[string]string{"id": "1"})
		require.NoError(t, err)
		require.True(t, stored)
	}

	records, err := store.ListEvents(EventFilter{Limit: maxListLimit + 10})
	require.NoError(t, err)
	require.Len(t, records, maxListLimit)

	defaulted, err := store.ListEvents(EventFilter{})
	require.NoError(t, err)
	require.Len(t, defaulted, defaultListLimit)
}
