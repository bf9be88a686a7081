package epoch

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fystack/plinko-engine/internal/chain"
	"github.com/fystack/plinko-engine/internal/fairness"
	"github.com/fystack/plinko-engine/pkg/cache"
	"github.com/fystack/plinko-engine/pkg/common/config"
	"github.com/fystack/plinko-engine/pkg/common/enum"
	"github.com/fystack/plinko-engine/pkg/common/logger"
	"github.com/fystack/plinko-engine/pkg/common/types"
	"github.com/fystack/plinko-engine/pkg/infra"
	"github.com/fystack/plinko-engine/pkg/kvstore"
	"github.com/fystack/plinko-engine/pkg/store/chainstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const game = enum.GameLightningPlinko

func TestSchedule(t *testing.T) {
	s := Schedule{Window: 15 * time.Minute, GameCount: 10}
	require.NoError(t, s.Validate())

	at := time.Unix(900*7+30, 0)
	assert.Equal(t, int64(7), s.Number(at))
	assert.Equal(t, int64(7), s.BoardIndex(7))
	assert.Equal(t, int64(3), s.BoardIndex(13))
	assert.Equal(t, int64(9), s.ChainIndex(0))
	assert.Equal(t, int64(0), s.ChainIndex(9))

	start, end := s.Bounds(7)
	assert.Equal(t, time.Unix(6300, 0).UTC(), start)
	assert.Equal(t, time.Unix(7200, 0).UTC(), end)
	assert.Equal(t, 870*time.Second, s.Remaining(at))

	assert.Error(t, Schedule{Window: 1500 * time.Millisecond, GameCount: 1}.Validate())
	assert.Error(t, Schedule{Window: time.Minute}.Validate())
}

type fixture struct {
	store    chainstore.Store
	provider *Provider[string]
	builds   *int32
	now      *time.Time
}

func newFixture(t *testing.T, gameCount int64) fixture {
	t.Helper()
	kv, err := kvstore.NewBadgerStore(t.TempDir(), "", infra.JSON)
	require.NoError(t, err)
	store := chainstore.NewChainStore(kv)
	t.Cleanup(func() { _ = store.Close() })

	b, err := chain.NewBuilder(game, config.ChainConfig{
		Seed: "root", GameCount: gameCount, BatchSize: 100, HashAlgorithm: enum.HashSHA256,
	}, store, logger.Discard())
	require.NoError(t, err)
	_, err = b.Run(context.Background())
	require.NoError(t, err)

	c, err := cache.NewMemory[Epoch[string]](100, "")
	require.NoError(t, err)
	t.Cleanup(c.Close)

	var builds int32
	now := time.Unix(60*1000+5, 0)
	p, err := NewProvider[string](game, Schedule{Window: time.Minute, GameCount: gameCount}, "salt", store, c,
		func(hash string) (string, error) {
			atomic.AddInt32(&builds, 1)
			return "board:" + hash[:8], nil
		},
		logger.Discard(),
		WithClock[string](func() time.Time { return now }),
	)
	require.NoError(t, err)
	return fixture{store: store, provider: p, builds: &builds, now: &now}
}

func TestProvider_CurrentIsCached(t *testing.T) {
	f := newFixture(t, 50)
	ctx := context.Background()

	e, err := f.provider.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), e.Number)
	assert.Equal(t, int64(0), e.BoardIndex)
	assert.Equal(t, int64(49), e.ChainIndex)

	link, err := f.store.Get(game, 49)
	require.NoError(t, err)
	assert.Equal(t, link.Hash, e.Hash)
	assert.Equal(t, fairness.SaltedCommitment(game, link.Hash, "salt"), e.Commitment)
	assert.Equal(t, "board:"+link.Hash[:8], e.Board)

	_, err = f.provider.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(f.builds))

	// next epoch uses the previous chain link
	*f.now = f.now.Add(time.Minute)
	next, err := f.provider.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(48), next.ChainIndex)
	assert.True(t, fairness.VerifyLink(fairness.SHA256, next.Hash, e.Hash))
}

func TestProvider_ByBoardIndexMatchesCurrent(t *testing.T) {
	f := newFixture(t, 50)
	ctx := context.Background()

	current, err := f.provider.Current(ctx)
	require.NoError(t, err)
	regenerated, err := f.provider.ByNumber(ctx, current.Number)
	require.NoError(t, err)
	assert.Equal(t, current, regenerated)

	byIndex, err := f.provider.ByBoardIndex(ctx, current.BoardIndex)
	require.NoError(t, err)
	assert.Equal(t, current.Board, byIndex.Board)
	assert.Equal(t, int64(-1), byIndex.Number)

	_, err = f.provider.ByBoardIndex(ctx, 50)
	assert.ErrorIs(t, err, types.KindValidation)
}

func TestProvider_CommitmentAndReveal(t *testing.T) {
	f := newFixture(t, 50)
	ctx := context.Background()

	c, err := f.provider.Commitment(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), c.Number)
	assert.NotEmpty(t, c.Commitment)

	_, err = f.provider.Reveal(ctx, c.Number)
	assert.ErrorIs(t, err, types.KindValidation)

	*f.now = c.EndsAt
	hash, err := f.provider.Reveal(ctx, c.Number)
	require.NoError(t, err)
	assert.Equal(t, c.Commitment, fairness.SaltedCommitment(game, hash, "salt"))
}

func TestProvider_RevealSealsReusedLink(t *testing.T) {
	f := newFixture(t, 50)
	ctx := context.Background()

	c, err := f.provider.Commitment(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1000), c.Number)

	// epoch 950 ended long ago but used board 0, which epoch 1000 is using now
	_, err = f.provider.Reveal(ctx, c.Number-50)
	assert.ErrorIs(t, err, types.KindValidation)

	previous, err := f.provider.Reveal(ctx, c.Number-1)
	require.NoError(t, err)
	assert.NotEqual(t, c.Commitment, fairness.SaltedCommitment(game, previous, "salt"))

	*f.now = c.EndsAt
	old, err := f.provider.Reveal(ctx, c.Number-50)
	require.NoError(t, err)
	current, err := f.provider.Reveal(ctx, c.Number)
	require.NoError(t, err)
	assert.Equal(t, current, old)
	assert.Equal(t, c.Commitment, fairness.SaltedCommitment(game, old, "salt"))
}

func TestProvider_MissingHashIsDefect(t *testing.T) {
	f := newFixture(t, 50)
	// chain holds 50 links but the schedule claims 80 boards
	p, err := NewProvider[string](game, Schedule{Window: time.Minute, GameCount: 80}, "salt", f.store,
		mustMemory(t), func(h string) (string, error) { return h, nil }, logger.Discard())
	require.NoError(t, err)

	_, err = p.ByBoardIndex(context.Background(), 0)
	assert.ErrorIs(t, err, types.KindDefect)
	assert.ErrorIs(t, err, chainstore.ErrLinkNotFound)
}

func mustMemory(t *testing.T) cache.Cache[Epoch[string]] {
	c, err := cache.NewMemory[Epoch[string]](10, "")
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}
