package mailbox_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wmac/upper-mac/internal/mailbox"
)

func TestTxReadyThenDoneOrdering(t *testing.T) {
	link := mailbox.NewLink(1)
	high := link.HighSide()
	low := link.LowSide()

	require.NoError(t, high.Send(mailbox.Message{Kind: mailbox.KindTxReady, BufIndex: 3}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, err := low.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, mailbox.KindTxReady, msg.Kind)
	assert.Equal(t, 3, msg.BufIndex)

	require.NoError(t, low.Send(mailbox.Message{Kind: mailbox.KindTxDone, BufIndex: 3, NumTxLowDetails: 1}))
	msg, err = high.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, mailbox.KindTxDone, msg.Kind)
	assert.Equal(t, 1, msg.NumTxLowDetails)
}

func TestCloseUnblocksBothSides(t *testing.T) {
	link := mailbox.NewLink(0)
	high := link.HighSide()
	link.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := high.Recv(ctx)
	assert.Error(t, err)

	err = high.Send(mailbox.Message{Kind: mailbox.KindTimeUpdate})
	assert.Error(t, err)
}

func TestSendTimeoutOnFullBuffer(t *testing.T) {
	link := mailbox.NewLink(0)
	high := link.HighSide()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := high.SendTimeout(ctx, mailbox.Message{Kind: mailbox.KindCPUStatus})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
