package stastore_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wmac/upper-mac/internal/dot11"
	"github.com/wmac/upper-mac/internal/stastore"
	"github.com/wmac/upper-mac/internal/txqueue"
	"github.com/wmac/upper-mac/internal/wmacerr"
)

func addr(b byte) dot11.Addr { return dot11.Addr{0x02, 0, 0, 0, 0, b} }

func TestAddAssignsSequentialIDs(t *testing.T) {
	s := stastore.New(2)
	st1, err := s.Add(addr(1), stastore.AnyID)
	require.NoError(t, err)
	assert.Equal(t, 1, st1.ID)

	st2, err := s.Add(addr(2), stastore.AnyID)
	require.NoError(t, err)
	assert.Equal(t, 2, st2.ID)
}

func TestAddSameAddrIsIdempotent(t *testing.T) {
	s := stastore.New(2)
	st1, err := s.Add(addr(1), stastore.AnyID)
	require.NoError(t, err)
	st2, err := s.Add(addr(1), stastore.AnyID)
	require.NoError(t, err)
	assert.Equal(t, st1.ID, st2.ID)
	assert.Equal(t, 1, s.Len())
}

func TestMaxAssociationsEnforced(t *testing.T) {
	s := stastore.New(1)
	_, err := s.Add(addr(1), stastore.AnyID)
	require.NoError(t, err)
	_, err = s.Add(addr(2), stastore.AnyID)
	assert.ErrorIs(t, err, wmacerr.ErrCapacity)
}

func TestRemovePurgesQueueAndFreesID(t *testing.T) {
	s := stastore.New(2)
	txq := txqueue.NewManager(4, nil)
	st, err := s.Add(addr(1), stastore.AnyID)
	require.NoError(t, err)

	r, err := txq.Checkout()
	require.NoError(t, err)
	require.NoError(t, txq.EnqueueTail(txqueue.StationQueueID(st.ID), r))
	assert.Equal(t, 1, txq.NumQueued(txqueue.StationQueueID(st.ID)))

	id, removed := s.Remove(addr(1), txq)
	require.True(t, removed)
	assert.Equal(t, st.ID, id)
	assert.Equal(t, 0, txq.NumQueued(txqueue.StationQueueID(id)))
	assert.Equal(t, 0, s.Len())

	// id is now free for reassignment.
	st2, err := s.Add(addr(2), stastore.AnyID)
	require.NoError(t, err)
	assert.Equal(t, 1, st2.ID)
}

func TestExpiredRespectsDisableAssocCheck(t *testing.T) {
	s := stastore.New(2)
	_, err := s.Add(addr(1), stastore.AnyID)
	require.NoError(t, err)

	s.SetDisableAssocCheck(true)
	assert.Empty(t, s.Expired())

	s.SetDisableAssocCheck(false)
	assert.Empty(t, s.Expired(), "freshly added station is not yet idle")
}

func TestAddWithExplicitIDConflict(t *testing.T) {
	s := stastore.New(4)
	_, err := s.Add(addr(1), 5)
	require.NoError(t, err)
	_, err = s.Add(addr(2), 5)
	assert.ErrorIs(t, err, wmacerr.ErrInvalidBuf)
}
