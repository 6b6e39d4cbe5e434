// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package render

import (
	"testing"

	"github.com/gogpu/vkgraph/internal/hashkey"
	"github.com/stretchr/testify/require"
)

// fabricate inserts a hand-built element into a subordinate's table,
// standing in for a descriptor set allocation.
func fabricate(p *pool, s *PoolSub, block *poolBlock, key hashkey.Key) *poolElem {
	elem := &poolElem{block: block}
	block.elems = append(block.elems, elem)
	block.sets.Add(1)
	s.mutable[key.String()] = elem
	return elem
}

func poolKey(layoutIndex uint64, payload uint32) hashkey.Key {
	b := hashkey.NewBuilder(16)
	b.PushHandle(layoutIndex)
	b.PushUint32(payload)
	return b.Key()
}

func TestPoolFlushMergesAndRecycles(t *testing.T) {
	p := newPool(testDevice(), 2, 8)
	s := p.sub()
	block := &poolBlock{}

	k1 := poolKey(1, 10)
	k2 := poolKey(1, 20)
	e1 := fabricate(p, s, block, k1)
	e2 := fabricate(p, s, block, k2)

	// First flush merges the subordinate table into immutable without
	// copying handles.
	p.flush()
	require.Len(t, s.mutable, 0)
	require.Equal(t, e1, p.immutable[k1.String()])
	require.Equal(t, e2, p.immutable[k2.String()])

	// Counter reset keeps an element alive across flushes.
	e1.flushes.Store(0)

	// The second flush pushes e2 to the threshold; it recycles under the
	// set-layout prefix while e1 stays.
	p.flush()
	require.Equal(t, e1, p.immutable[k1.String()])
	require.NotContains(t, p.immutable, k2.String())

	rk := k2.String()[:recKeyLen]
	require.Len(t, p.recycled[rk], 1)
	require.Equal(t, e2, p.recycled[rk][0])
	require.Equal(t, int32(1), block.sets.Load())
}

func TestPoolRecycleByKey(t *testing.T) {
	p := newPool(testDevice(), 64, 8)
	s := p.sub()
	block := &poolBlock{}

	k := poolKey(7, 1)
	other := poolKey(7, 2)
	e1 := fabricate(p, s, block, k)
	e2 := fabricate(p, s, block, other)

	p.recycle(k)

	// Only the matching element moved; both keys share the recycle
	// prefix, so e1 is now reusable for any layout-7 composition.
	require.NotContains(t, s.mutable, k.String())
	require.Equal(t, e2, s.mutable[other.String()])

	rk := k.String()[:recKeyLen]
	require.Len(t, p.recycled[rk], 1)
	require.Equal(t, e1, p.recycled[rk][0])

	// The block still holds a live set and survives.
	require.Equal(t, int32(1), block.sets.Load())
}

func TestPoolBlockDiesWhenFullyRecycled(t *testing.T) {
	p := newPool(testDevice(), 64, 8)
	s := p.sub()
	block := &poolBlock{}
	p.free = append(p.free, block)

	k := poolKey(3, 1)
	fabricate(p, s, block, k)

	p.recycle(k)

	// The last live set recycled; the block is destroyed immediately and
	// its elements leave the recycled table.
	require.Len(t, p.recycled, 0)
	require.Len(t, p.free, 0)
	require.Nil(t, block.elems)
}

func TestPoolResetReturnsBlocksToFree(t *testing.T) {
	p := newPool(testDevice(), 2, 8)
	s := p.sub()

	full := &poolBlock{full: true}
	full.sets.Add(3)
	p.full = append(p.full, full)

	claimed := &poolBlock{}
	s.block = claimed
	s.mutable[poolKey(1, 1).String()] = &poolElem{block: claimed}

	p.reset()

	require.Len(t, p.full, 0)
	require.Len(t, p.free, 2)
	require.False(t, full.full)
	require.Equal(t, int32(0), full.sets.Load())
	require.Nil(t, s.block)
	require.Len(t, s.mutable, 0)
	require.Len(t, p.immutable, 0)
	require.Len(t, p.recycled, 0)
}

func TestPoolUnsubMergesTable(t *testing.T) {
	p := newPool(testDevice(), 64, 8)
	s := p.sub()
	block := &poolBlock{}

	k := poolKey(5, 1)
	e := fabricate(p, s, block, k)

	p.unsub(s)
	require.Len(t, p.subs, 0)
	require.Equal(t, e, p.immutable[k.String()])
}

func TestPoolMergeDuplicateRecycles(t *testing.T) {
	p := newPool(testDevice(), 64, 8)
	s1 := p.sub()
	s2 := p.sub()
	b1 := &poolBlock{}
	b2 := &poolBlock{}
	b2.sets.Add(1) // Keep the block alive past the duplicate recycle.

	k := poolKey(2, 1)
	e1 := fabricate(p, s1, b1, k)
	e2 := fabricate(p, s2, b2, k)

	// Two subordinates raced to the same structural set; the merge keeps
	// one and recycles the duplicate instead of leaking it.
	p.flush()
	require.Len(t, p.immutable, 1)

	kept := p.immutable[k.String()]
	require.True(t, kept == e1 || kept == e2)

	rk := k.String()[:recKeyLen]
	require.Len(t, p.recycled[rk], 1)
}

func TestRecycleKeyPrefixLayout(t *testing.T) {
	// Pool keys must begin with the set-layout element index; two keys of
	// the same layout share a recycle prefix, different layouts do not.
	a := poolKey(1, 10)
	b := poolKey(1, 20)
	c := poolKey(2, 10)
	require.Equal(t, a.String()[:recKeyLen], b.String()[:recKeyLen])
	require.NotEqual(t, a.String()[:recKeyLen], c.String()[:recKeyLen])
}
