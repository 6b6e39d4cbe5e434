// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package render

import (
	"sync"
	"testing"

	"github.com/gogpu/vkgraph/internal/hashkey"
	"github.com/stretchr/testify/require"
)

func testCache() *cache {
	return &cache{
		device:    testDevice(),
		simple:    make(map[string]*cacheElem),
		immutable: make(map[string]*cacheElem),
		mutable:   make(map[string]*cacheElem),
	}
}

func testKey(v uint32) hashkey.Key {
	b := hashkey.NewBuilder(8)
	b.PushUint32(v)
	return b.Key()
}

func TestCacheIsAFunction(t *testing.T) {
	c := testCache()

	created := 0
	create := func(e *cacheElem) error {
		created++
		e.typ = elemSampler
		return nil
	}

	// Identical keys always resolve to the same element, regardless of
	// insertion order.
	e1 := c.getSimple(testKey(1), create)
	e2 := c.getSimple(testKey(1), create)
	require.NotNil(t, e1)
	require.Equal(t, e1, e2)
	require.Equal(t, 1, created)

	e3 := c.getSimple(testKey(2), create)
	require.NotEqual(t, e1, e3)
	require.Equal(t, 2, created)

	// Element indices are unique; they substitute handles in keys.
	require.NotEqual(t, e1.index, e3.index)
}

func TestCacheSimpleCreateFailure(t *testing.T) {
	c := testCache()

	fail := func(e *cacheElem) error { return ErrCacheCreate }
	require.Nil(t, c.getSimple(testKey(1), fail))

	// The failed insert was unwound; a later create succeeds.
	ok := func(e *cacheElem) error { return nil }
	require.NotNil(t, c.getSimple(testKey(1), ok))
}

func TestCachePipelinePromotion(t *testing.T) {
	c := testCache()

	create := func(e *cacheElem) error {
		e.typ = elemGraphicsPipeline
		return nil
	}

	e := c.getPipeline(testKey(1), create)
	require.NotNil(t, e)
	require.Contains(t, c.mutable, testKey(1).String())
	require.NotContains(t, c.immutable, testKey(1).String())

	// Flush moves every entry from mutable to immutable; afterwards the
	// lookup is served lock-free from the immutable table.
	c.flush()
	require.Len(t, c.mutable, 0)
	require.Equal(t, e, c.immutable[testKey(1).String()])
	require.Equal(t, e, c.getPipeline(testKey(1), func(*cacheElem) error {
		t.Fatal("flushed pipeline must not be re-created")
		return nil
	}))
}

func TestCachePipelineDoubleCheck(t *testing.T) {
	c := testCache()

	created := 0
	var mu sync.Mutex
	create := func(e *cacheElem) error {
		mu.Lock()
		created++
		mu.Unlock()
		return nil
	}

	// Concurrent lookups of one key create the pipeline exactly once.
	var wg sync.WaitGroup
	elems := make([]*cacheElem, 8)
	for i := range elems {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			elems[i] = c.getPipeline(testKey(9), create)
		}(i)
	}
	wg.Wait()

	require.Equal(t, 1, created)
	for _, e := range elems {
		require.Equal(t, elems[0], e)
	}
}

func TestCacheWarmupBypassesMutable(t *testing.T) {
	c := testCache()

	require.NoError(t, c.warmup(testKey(4), func(e *cacheElem) error {
		e.typ = elemComputePipeline
		return nil
	}))
	require.Len(t, c.mutable, 0)
	require.Contains(t, c.immutable, testKey(4).String())

	// Warming the same key again is a no-op.
	require.NoError(t, c.warmup(testKey(4), func(*cacheElem) error {
		t.Fatal("warm pipeline must not be re-created")
		return nil
	}))

	// A failed warmup erases its placeholder.
	require.Error(t, c.warmup(testKey(5), func(*cacheElem) error {
		return ErrCacheCreate
	}))
	require.NotContains(t, c.immutable, testKey(5).String())
}
