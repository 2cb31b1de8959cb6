package stastore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wmac/upper-mac/internal/dot11"
)

func TestExpiredAfterAssociationTimeout(t *testing.T) {
	s := New(2)
	fakeNow := time.Now()
	s.now = func() time.Time { return fakeNow }

	a := dot11.Addr{0x02, 0, 0, 0, 0, 1}
	_, err := s.Add(a, AnyID)
	require.NoError(t, err)

	fakeNow = fakeNow.Add(AssociationTimeout + time.Second)
	expired := s.Expired()
	require.Len(t, expired, 1)
	assert.Equal(t, a, expired[0])
}
