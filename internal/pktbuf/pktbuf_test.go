package pktbuf_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wmac/upper-mac/internal/pktbuf"
	"github.com/wmac/upper-mac/internal/wmacerr"
)

func TestTxHandshakeProtocol(t *testing.T) {
	pool := pktbuf.NewPool()

	h, err := pool.TryLockTx(3)
	require.NoError(t, err)

	// A second attempt while held must fail, never silently succeed:
	// invariant 3, exactly one holder at a time.
	_, err = pool.TryLockTx(3)
	assert.ErrorIs(t, err, wmacerr.ErrAlreadyLocked)

	h.Info().State = pktbuf.TxHighCtrl
	h.Info().Seq = 42
	require.NoError(t, h.Unlock())

	h2, err := pool.TryLockTx(3)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), h2.Info().Seq, "state persists across lock/unlock cycles")
	h2.Info().State = pktbuf.TxReady
	require.NoError(t, h2.Unlock())

	// CPU-Low side.
	h3, err := pool.TryLockTx(3)
	require.NoError(t, err)
	assert.Equal(t, pktbuf.TxReady, h3.Info().State)
	h3.Info().State = pktbuf.TxLowCtrl
	h3.Info().Result = pktbuf.TxResultSuccess
	h3.Info().State = pktbuf.TxDone
	require.NoError(t, h3.Unlock())
}

func TestInvalidIndex(t *testing.T) {
	pool := pktbuf.NewPool()
	_, err := pool.TryLockTx(pktbuf.NumTxBufs)
	assert.ErrorIs(t, err, wmacerr.ErrInvalidBuf)

	_, err = pool.TryLockRx(-1)
	assert.ErrorIs(t, err, wmacerr.ErrInvalidBuf)
}

func TestDoubleUnlock(t *testing.T) {
	pool := pktbuf.NewPool()
	h, err := pool.TryLockTx(0)
	require.NoError(t, err)
	require.NoError(t, h.Unlock())
	assert.ErrorIs(t, h.Unlock(), wmacerr.ErrNotLockOwner)
}
