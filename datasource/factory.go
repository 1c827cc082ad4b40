package datasource

import (
	"context"
	"io"
)

// Factory opens readers of one media source for the decoding engine
type Factory interface {
	Open(ctx context.Context, position int64, length int64) (io.ReadCloser, error)
	GetSpec() DataSpec
}

type cachedFactory struct {
	source *CacheDataSource
	spec   DataSpec
}

// NewCachedFactory creates a Factory reading through the cache
func NewCachedFactory(source *CacheDataSource, spec DataSpec) Factory {
	return &cachedFactory{
		source: source,
		spec:   spec,
	}
}

func (factory *cachedFactory) Open(ctx context.Context, position int64, length int64) (io.ReadCloser, error) {
	spec := factory.spec
	spec.Position = position
	spec.Length = length
	return factory.source.Open(ctx, spec)
}

func (factory *cachedFactory) GetSpec() DataSpec {
	return factory.spec
}

type upstreamFactory struct {
	upstream Upstream
	spec     DataSpec
}

// NewUpstreamFactory creates a Factory reading the upstream directly
func NewUpstreamFactory(upstream Upstream, spec DataSpec) Factory {
	return &upstreamFactory{
		upstream: upstream,
		spec:     spec,
	}
}

func (factory *upstreamFactory) Open(ctx context.Context, position int64, length int64) (io.ReadCloser, error) {
	spec := factory.spec
	spec.Position = position
	spec.Length = length
	return NewUpstreamReader(ctx, factory.upstream, spec), nil
}

func (factory *upstreamFactory) GetSpec() DataSpec {
	return factory.spec
}
