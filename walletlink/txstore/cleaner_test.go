package txstore

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pushchain/push-wallet-link/walletlink/chains/common"
)

func TestCleaner_Cleanup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, "finalized", nil, testBound))
	require.NoError(t, s.Create(ctx, "expired", nil, testBound))
	require.NoError(t, s.Create(ctx, "pending", nil, testBound))
	require.NoError(t, s.RecordTransition(ctx, "finalized", common.StatusFinalized, ""))
	require.NoError(t, s.RecordTransition(ctx, "expired", common.StatusExpired, "blockhash expired"))

	clk := clock.NewMock()
	clk.Set(time.Now())
	c := NewCleaner(s, clk, time.Hour, 24*time.Hour, zerolog.Nop())

	// nothing is older than the retention period yet
	deleted, err := c.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted)

	clk.Add(25 * time.Hour)
	deleted, err = c.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	// non-terminal rows are kept regardless of age
	tx, err := s.Get(ctx, "pending")
	require.NoError(t, err)
	assert.Equal(t, string(common.StatusPending), tx.Status)
}

func TestCleaner_StartStop(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	clk := clock.NewMock()
	clk.Set(time.Now().Add(48 * time.Hour))
	c := NewCleaner(s, clk, time.Hour, 24*time.Hour, zerolog.Nop())
	c.Start(ctx)
	defer c.Stop()

	require.NoError(t, s.Create(ctx, "late", nil, testBound))
	require.NoError(t, s.RecordTransition(ctx, "late", common.StatusFailed, "custom program error"))

	require.Eventually(t, func() bool {
		clk.Add(time.Hour)
		_, err := s.Get(ctx, "late")
		return err == ErrNotFound
	}, 2*time.Second, 10*time.Millisecond)
}
