package storage

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// SeenSet 已入库 ID 的集合缓存
type SeenSet interface {
	Contains(ctx context.Context, id string) (bool, error)
	Add(ctx context.Context, id string) error
	Close() error
}

// RedisSeenSet 用一个 Redis Set 记录已入库的 ID
type RedisSeenSet struct {
	rdb *redis.Client
	key string
}

func NewRedisSeenSet(rdb *redis.Client, key string) *RedisSeenSet {
	return &RedisSeenSet{rdb: rdb, key: key}
}

func (r *RedisSeenSet) Contains(ctx context.Context, id string) (bool, error) {
	return r.rdb.SIsMember(ctx, r.key, id).Result()
}

func (r *RedisSeenSet) Add(ctx context.Context, id string) error {
	return r.rdb.SAdd(ctx, r.key, id).Err()
}

func (r *RedisSeenSet) Close() error {
	return r.rdb.Close()
}

// CachedStore 在 PostStore 外层加已见 ID 缓存：命中直接返回存在，
// 缓存出错时退回底层存储，不影响结果正确性
type CachedStore struct {
	PostStore
	seen SeenSet
}

func NewCachedStore(inner PostStore, seen SeenSet) *CachedStore {
	return &CachedStore{PostStore: inner, seen: seen}
}

func (c *CachedStore) Exists(ctx context.Context, id string) (bool, error) {
	ok, err := c.seen.Contains(ctx, id)
	if err != nil {
		zap.L().Warn("seen cache lookup failed", zap.String("id", id), zap.Error(err))
	} else if ok {
		return true, nil
	}

	ok, err = c.PostStore.Exists(ctx, id)
	if err != nil {
		return false, err
	}
	if ok {
		c.remember(ctx, id)
	}
	return ok, nil
}

func (c *CachedStore) Insert(ctx context.Context, rec Record) error {
	err := c.PostStore.Insert(ctx, rec)
	if err == nil || errors.Is(err, ErrDuplicate) {
		c.remember(ctx, rec.ID)
	}
	return err
}

func (c *CachedStore) Close() error {
	return errors.Join(c.PostStore.Close(), c.seen.Close())
}

func (c *CachedStore) remember(ctx context.Context, id string) {
	if err := c.seen.Add(ctx, id); err != nil {
		zap.L().Warn("seen cache add failed", zap.String("id", id), zap.Error(err))
	}
}
