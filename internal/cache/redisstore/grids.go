package redisstore

import (
	"context"

	"github.com/mohammed-shakir/pvgrid-cache/internal/cache"
	"github.com/mohammed-shakir/pvgrid-cache/internal/cache/keys"
)

// GridBackend stores artifacts as plain Redis strings without expiry.
// SET NX keeps the first write.
type GridBackend struct {
	cli *Client
}

func NewGridBackend(cli *Client) *GridBackend {
	return &GridBackend{cli: cli}
}

func (b *GridBackend) Get(ctx context.Context, key string) ([]byte, error) {
	v, found, err := b.cli.Get(ctx, keys.RedisGridKey(key))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, cache.ErrNotFound
	}
	return v, nil
}

func (b *GridBackend) PutIfAbsent(ctx context.Context, key string, val []byte) (bool, error) {
	return b.cli.SetNX(ctx, keys.RedisGridKey(key), val)
}

func (b *GridBackend) Remove(ctx context.Context, key string) error {
	return b.cli.Del(ctx, keys.RedisGridKey(key))
}

func (b *GridBackend) Ping(ctx context.Context) error {
	return b.cli.Ping(ctx)
}
