package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/fystack/plinko-engine/internal/chain"
	"github.com/fystack/plinko-engine/internal/fairness"
	"github.com/fystack/plinko-engine/pkg/common/config"
	"github.com/fystack/plinko-engine/pkg/common/constant"
	"github.com/fystack/plinko-engine/pkg/common/enum"
	"github.com/fystack/plinko-engine/pkg/common/logger"
	"github.com/fystack/plinko-engine/pkg/infra"
	"github.com/fystack/plinko-engine/pkg/kvstore"
	"github.com/fystack/plinko-engine/pkg/store/chainstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateChain(t *testing.T) {
	src, err := kvstore.NewInMemoryBadgerStore("node-a", infra.JSON)
	require.NoError(t, err)
	defer src.Close()
	dst, err := kvstore.NewInMemoryBadgerStore("node-b", infra.JSON)
	require.NoError(t, err)
	defer dst.Close()

	cfg := config.ChainConfig{Seed: "root", Salt: "salt", GameCount: 25, BatchSize: 10, HashAlgorithm: enum.HashSHA256}
	b, err := chain.NewBuilder(enum.GameLightningPlinko, cfg, chainstore.NewChainStore(src), logger.Discard())
	require.NoError(t, err)
	_, err = b.Run(context.Background())
	require.NoError(t, err)

	total, copied, err := migrate(src, dst, []string{constant.KVPrefixChain}, true, false)
	require.NoError(t, err)
	assert.Equal(t, 26, total, "25 links and the head")
	assert.Equal(t, total, copied)

	migrated := chainstore.NewChainStore(dst)
	head, ok, err := migrated.Head(enum.GameLightningPlinko)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(24), head)
	require.NoError(t, chain.Audit(context.Background(), migrated, fairness.SHA256, enum.GameLightningPlinko, "root", 0, head))
}

func TestMigrateDryRun(t *testing.T) {
	src, err := kvstore.NewInMemoryBadgerStore("", infra.JSON)
	require.NoError(t, err)
	defer src.Close()
	dst, err := kvstore.NewInMemoryBadgerStore("", infra.JSON)
	require.NoError(t, err)
	defer dst.Close()

	require.NoError(t, src.Set("rounds/plinko/r1", `{"id":"r1"}`))
	total, copied, err := migrate(src, dst, []string{constant.KVPrefixRounds}, false, true)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Zero(t, copied)

	_, err = dst.Get("rounds/plinko/r1")
	assert.ErrorIs(t, err, kvstore.ErrKeyNotFound)
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "migrate.yaml")
	doc := `
source:
  type: badger
  badger: {directory: /tmp/src}
destination:
  type: consul
  consul: {address: "localhost:8500", folder: plinko}
verify: true
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, []string{constant.KVPrefixChain, constant.KVPrefixRounds}, cfg.Prefixes)
	assert.Equal(t, "plinko", cfg.Source.Badger.Prefix)
	assert.Equal(t, "/tmp/src", cfg.Source.Badger.Directory)
	assert.Equal(t, enum.KVStoreTypeConsul, cfg.Destination.Type)
	assert.Equal(t, "plinko", cfg.Destination.Consul.Folder)
	assert.True(t, cfg.Verify)

	require.NoError(t, os.WriteFile(path, []byte("prefixes: [chain]\n"), 0o600))
	cfg, err = loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, []string{constant.KVPrefixChain}, cfg.Prefixes)
}
