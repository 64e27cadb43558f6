package cache

import (
	"context"
	"time"
)

var _ Cache = NoopCache{}

// NoopCache never stores anything
type NoopCache struct{}

// NewNoopCache returns a cache that always misses
func NewNoopCache() NoopCache { return NoopCache{} }

func (NoopCache) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }

func (NoopCache) Set(context.Context, string, []byte, time.Duration) error { return nil }

func (NoopCache) Close() error { return nil }
