package simlow_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wmac/upper-mac/internal/platform/simlow"
)

func TestOpenRoundTripsBytes(t *testing.T) {
	sim, err := simlow.Open()
	require.NoError(t, err)
	defer sim.Close()

	require.NotEmpty(t, sim.SlavePath())

	n, err := sim.Write([]byte("hello"))
	require.NoError(t, err)
	require.Equal(t, 5, n)

	slave, err := os.OpenFile(sim.SlavePath(), os.O_RDWR, 0)
	require.NoError(t, err)
	defer slave.Close()

	buf := make([]byte, 5)
	n, err = slave.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "hello", string(buf[:n]))
}
