package remote

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	apperrors "github.com/huanfeng/corehub/internal/errors"
	"github.com/huanfeng/corehub/pkg/schema"
)

// collection memoizes the leaves of an index document by unique name.
type collection[T any] struct {
	url   string
	index schema.Index
	fetch func(ctx context.Context, key, leafURL string) (*T, error)

	mu     sync.Mutex
	items  map[string]*T
	flight singleflight.Group
}

func newCollection[T any](url string, index schema.Index, fetch func(context.Context, string, string) (*T, error)) *collection[T] {
	return &collection[T]{
		url:   url,
		index: index,
		fetch: fetch,
		items: make(map[string]*T),
	}
}

// Keys lists the unique names in the index, sorted.
func (c *collection[T]) Keys() []string {
	return c.index.Keys()
}

// get returns the leaf for key, fetching it on first use. Concurrent calls
// for the same key share one request.
func (c *collection[T]) get(ctx context.Context, key string) (*T, error) {
	c.mu.Lock()
	if item, ok := c.items[key]; ok {
		c.mu.Unlock()
		return item, nil
	}
	c.mu.Unlock()

	ref, ok := c.index[key]
	if !ok {
		return nil, apperrors.NewNotFoundError("NOT_IN_INDEX", "no entry named "+key).
			WithContext("index", c.url)
	}

	v, err, _ := c.flight.Do(key, func() (interface{}, error) {
		leafURL, err := ResolveURL(c.url, ref.URL)
		if err != nil {
			return nil, err
		}
		item, err := c.fetch(ctx, key, leafURL)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if existing, ok := c.items[key]; ok {
			return existing, nil
		}
		c.items[key] = item
		return item, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*T), nil
}

// getAll fetches every leaf accepted by pred, at most limit at a time.
func (c *collection[T]) getAll(ctx context.Context, pred func(string, schema.Ref) bool, limit int) (map[string]*T, error) {
	keys := make([]string, 0, len(c.index))
	for _, key := range c.index.Keys() {
		if pred == nil || pred(key, c.index[key]) {
			keys = append(keys, key)
		}
	}

	results := make([]*T, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, key := range keys {
		g.Go(func() error {
			item, err := c.get(gctx, key)
			if err != nil {
				return err
			}
			results[i] = item
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]*T, len(keys))
	for i, key := range keys {
		out[key] = results[i]
	}
	return out, nil
}
