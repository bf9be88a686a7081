package constant

import "time"

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"

	DefaultEdge        = 1.0
	DefaultRows        = 16
	DefaultEpochWindow = 15 * time.Minute

	DefaultChainBatchSize  = 1000
	DefaultChainBatchPause = 200 * time.Millisecond
	DefaultChainGameCount  = 100000

	// RTPTolerance is the absolute distance allowed between a table's expected value and 1 - edge/100.
	RTPTolerance = 0.005

	KVPrefixChain  = "chain"
	KVPrefixRounds = "rounds"
	KVKeyHead      = "head"
	KVKeyOpen      = "open"

	CacheKeyEpoch = "epoch"

	SettlementSubject = "plinko.settlement.bet"
	RoundSubject      = "plinko.round.closed"
	EpochSubject      = "plinko.epoch.committed"
)
