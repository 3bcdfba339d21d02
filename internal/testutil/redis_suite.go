package testutil

import (
	"context"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
)

// RedisTestSuite shares one miniredis instance across a suite and flushes it
// before every test.
//
//	type LockerSuite struct {
//	    testutil.RedisTestSuite
//	}
//
//	func TestLockerSuite(t *testing.T) {
//	    suite.Run(t, new(LockerSuite))
//	}
type RedisTestSuite struct {
	suite.Suite

	MiniRedis   *miniredis.Miniredis
	RedisClient *redis.Client
	Ctx         context.Context
}

func (s *RedisTestSuite) SetupSuite() {
	mr, err := miniredis.Run()
	s.Require().NoError(err, "failed to create miniredis")
	s.MiniRedis = mr
	s.Ctx = context.Background()
	s.RedisClient = redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func (s *RedisTestSuite) SetupTest() {
	s.MiniRedis.FlushAll()
}

func (s *RedisTestSuite) TearDownSuite() {
	if s.RedisClient != nil {
		_ = s.RedisClient.Close()
	}
	if s.MiniRedis != nil {
		s.MiniRedis.Close()
	}
}

func (s *RedisTestSuite) RequireKeyExists(key string) {
	exists, err := s.RedisClient.Exists(s.Ctx, key).Result()
	s.Require().NoError(err, "failed to check key existence")
	s.Require().Equal(int64(1), exists, "key %q should exist", key)
}

func (s *RedisTestSuite) RequireKeyNotExists(key string) {
	exists, err := s.RedisClient.Exists(s.Ctx, key).Result()
	s.Require().NoError(err, "failed to check key existence")
	s.Require().Equal(int64(0), exists, "key %q should not exist", key)
}
