// Page ancestry lookup used to resolve links between pages.
package main

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

var (
	errPageNotFound = errors.New("page not found")
	errNoLookup     = errors.New("no page lookup configured")
)

// pagePath is the position of a page in its space: the titles of its
// ancestors from the space homepage down, and its own title.
type pagePath struct {
	Title     string
	Ancestors []string
}

// pageLookup resolves a page ID to its ancestry. Every call may fail;
// implementations must be safe for concurrent use.
type pageLookup interface {
	Ancestry(ctx context.Context, pageID string) (pagePath, error)
}

// chainLookup tries each lookup in order and returns the first success.
// When all fail the last error is returned.
type chainLookup []pageLookup

func (c chainLookup) Ancestry(ctx context.Context, pageID string) (pagePath, error) {
	err := errNoLookup
	for _, l := range c {
		if l == nil {
			continue
		}
		p, lerr := l.Ancestry(ctx, pageID)
		if lerr == nil {
			return p, nil
		}
		err = lerr
	}
	return pagePath{}, fmt.Errorf("page %s: %w", pageID, err)
}

// memoLookup caches successful lookups and collapses concurrent lookups of
// the same ID. Failures are never cached: the next call asks again.
type memoLookup struct {
	next  pageLookup
	group singleflight.Group

	mu    sync.Mutex
	cache map[string]pagePath
}

func newMemoLookup(next pageLookup) *memoLookup {
	return &memoLookup{next: next, cache: map[string]pagePath{}}
}

func (m *memoLookup) Ancestry(ctx context.Context, pageID string) (pagePath, error) {
	m.mu.Lock()
	p, ok := m.cache[pageID]
	m.mu.Unlock()
	if ok {
		return p, nil
	}

	v, err, _ := m.group.Do(pageID, func() (any, error) {
		p, err := m.next.Ancestry(ctx, pageID)
		if err != nil {
			return pagePath{}, err
		}
		m.mu.Lock()
		m.cache[pageID] = p
		m.mu.Unlock()
		return p, nil
	})
	if err != nil {
		return pagePath{}, err
	}
	return v.(pagePath), nil
}
