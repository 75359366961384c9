package guestbook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache は一覧取得結果の読み取りキャッシュ。
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	Delete(ctx context.Context, keys ...string)
}

// NopCache は何もキャッシュしないCache。Redis未設定時に使用する。
type NopCache struct{}

func (NopCache) Get(context.Context, string) ([]byte, bool)         { return nil, false }
func (NopCache) Set(context.Context, string, []byte, time.Duration) {}
func (NopCache) Delete(context.Context, ...string)                  {}

// RedisCache はRedisを使用したCache。
// Redisのエラーはキャッシュミスとして扱い、呼び出し元には返さない。
type RedisCache struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisCache はRedisCacheを生成する。
func NewRedisCache(rdb *redis.Client, prefix string) *RedisCache {
	return &RedisCache{rdb: rdb, prefix: prefix}
}

// Get はキャッシュ済みの値を返す。
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	bs, err := c.rdb.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		return nil, false
	}
	return bs, true
}

// Set は値をTTL付きで保存する。
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	_ = c.rdb.Set(ctx, c.prefix+key, value, ttl).Err()
}

// Delete はキーを削除する。
func (c *RedisCache) Delete(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.prefix + k
	}
	_ = c.rdb.Del(ctx, full...).Err()
}

// RedisOptions はRedis接続設定。
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient はRedisクライアントを生成し、疎通を確認する。
// Addrが空、または接続できない場合はエラーを返す。呼び出し元はキャッシュなしで動作を続ける。
func NewRedisClient(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	if opts.Addr == "" {
		return nil, errors.New("redis address is empty")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redisへの接続に失敗しました: %w", err)
	}
	return client, nil
}

// compile-time interface check
var (
	_ Cache = (*RedisCache)(nil)
	_ Cache = NopCache{}
)
