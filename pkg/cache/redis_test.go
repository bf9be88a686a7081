package cache

import (
	"context"
	"testing"
	"time"

	"github.com/fystack/plinko-engine/pkg/infra"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
)

type payload struct {
	Index int64     `json:"index"`
	Table []float64 `json:"table"`
}

type RedisCacheTestSuite struct {
	suite.Suite
	client infra.RedisClient
	cache  *Redis[payload]
}

func (s *RedisCacheTestSuite) SetupSuite() {
	client, err := infra.NewRedisClient("localhost:6379", "", "test")
	if err != nil {
		s.T().Skip("Redis not available, skipping integration tests")
	}
	s.client = client
	s.cache = NewRedis[payload](client, "test-"+uuid.NewString(), infra.JSON)
}

func (s *RedisCacheTestSuite) TearDownSuite() {
	if s.client != nil {
		s.NoError(s.client.Close())
	}
}

func (s *RedisCacheTestSuite) TestGetOrCompute_RoundTrip() {
	ctx := context.Background()
	calls := 0
	load := func(context.Context) (payload, error) {
		calls++
		return payload{Index: 3, Table: []float64{1.5, 0.2}}, nil
	}

	v, err := s.cache.GetOrCompute(ctx, "epoch", time.Minute, load)
	s.Require().NoError(err)
	s.Equal(int64(3), v.Index)

	v, err = s.cache.GetOrCompute(ctx, "epoch", time.Minute, load)
	s.Require().NoError(err)
	s.Equal([]float64{1.5, 0.2}, v.Table)
	s.Equal(1, calls)

	s.NoError(s.cache.Delete(ctx, "epoch"))
	_, err = s.cache.GetOrCompute(ctx, "epoch", time.Minute, load)
	s.Require().NoError(err)
	s.Equal(2, calls)
}

func TestRedisCacheTestSuite(t *testing.T) {
	suite.Run(t, new(RedisCacheTestSuite))
}
