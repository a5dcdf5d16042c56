package config

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// MigrationRunLockKey serializes mutating operator commands across hosts.
const MigrationRunLockKey = "financeiro:migration-run"

var ErrRunInProgress = errors.New("another migration run holds the lock")

// RunLocker wraps the redis client and lock client used by the operator commands.
// A nil *RunLocker is valid and means "no cross-host locking configured".
type RunLocker struct {
	rdb    *redis.Client
	locker *redislock.Client
	ttl    time.Duration
	logger *logrus.Logger
}

// ConnectRedis returns nil when REDIS_ADDRESS is not set.
func ConnectRedis(ctx context.Context, s *Settings, l *logrus.Logger) (*RunLocker, error) {
	if s.RedisAddress == "" {
		return nil, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     s.RedisAddress,
		Password: "",
		DB:       0,
		PoolSize: 4,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect redis %s: %w", s.RedisAddress, err)
	}
	l.WithField("addr", s.RedisAddress).Info("connected to redis")
	return &RunLocker{
		rdb:    rdb,
		locker: redislock.New(rdb),
		ttl:    time.Duration(s.LockTTLSeconds) * time.Second,
		logger: l,
	}, nil
}

// Obtain takes the run lock and keeps extending it until release is called;
// the returned release func is always safe to call.
func (r *RunLocker) Obtain(ctx context.Context, key string) (release func(), err error) {
	if r == nil {
		return func() {}, nil
	}
	lock, err := r.locker.Obtain(ctx, key, r.ttl, nil)
	if err == redislock.ErrNotObtained {
		return func() {}, ErrRunInProgress
	} else if err != nil {
		return func() {}, err
	}
	stop := keepAlive(lock, r.ttl, func(err error) {
		LogError(r.logger, "config", "RunLocker.Obtain", "refresh run lock", key, err)
	})
	return func() {
		stop()
		if err := lock.Release(context.Background()); err != nil && err != redislock.ErrLockNotHeld {
			LogError(r.logger, "config", "RunLocker.Obtain", "release run lock", key, err)
		}
	}, nil
}

type lockRefresher interface {
	Refresh(ctx context.Context, ttl time.Duration, opt *redislock.Options) error
}

// keepAlive refreshes l every ttl/3 until stop is called. A failed refresh
// means the lock is gone; onLost is called once and refreshing stops.
func keepAlive(l lockRefresher, ttl time.Duration, onLost func(error)) (stop func()) {
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		ticker := time.NewTicker(ttl / 3)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), ttl/3)
				err := l.Refresh(ctx, ttl, nil)
				cancel()
				if err != nil {
					onLost(err)
					return
				}
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
		<-exited
	}
}

func (r *RunLocker) Close() error {
	if r == nil {
		return nil
	}
	return r.rdb.Close()
}
