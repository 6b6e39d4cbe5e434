// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package render

import (
	"sync"
	"sync/atomic"

	"github.com/gogpu/vkgraph/internal/hashkey"
	vk "github.com/vulkan-go/vulkan"
)

// recKeyLen is the prefix of a pool key that identifies only the set-layout
// element. Recycled sets are re-keyed by this prefix so they match any
// composition of bindings that is structurally compatible with the layout.
// Pool keys therefore must begin with the set-layout element index.
const recKeyLen = 8

// poolElem is one allocated descriptor set: the handle, a back-reference to
// the block it came from, and a flush counter driving recycling.
type poolElem struct {
	set     vk.DescriptorSet
	block   *poolBlock
	flushes atomic.Uint32
}

// poolBlock wraps one Vulkan descriptor pool with fixed per-type capacities.
// It belongs either to pool.free or pool.full, or is claimed by exactly one
// subordinate. sets counts live descriptor sets; it is atomic because any
// thread may recycle into any block.
type poolBlock struct {
	pool  vk.DescriptorPool
	sets  atomic.Int32
	full  bool
	elems []*poolElem
}

// PoolSub is a writer capability of the descriptor pool, bound to one
// recorder thread. Get is safe concurrently with other subordinates' Gets;
// nothing else on the pool may run concurrently with it.
type PoolSub struct {
	pool    *pool
	block   *poolBlock
	mutable map[string]*poolElem
}

// pool is the block-allocated descriptor set store.
//
// immutable is read lock-free by get; it only changes during flush/reset/
// recycle, which the renderer runs with all frames stalled. Per-subordinate
// mutable tables take no locks at all. subLock guards the block lists,
// recLock the recycled table.
type pool struct {
	device *Device

	// flushes is the number of pool flushes an element survives without
	// a get before it is recycled.
	flushes uint32
	// maxSets is the per-block descriptor set capacity.
	maxSets uint32

	subLock sync.Mutex
	free    []*poolBlock
	full    []*poolBlock
	subs    []*PoolSub

	immutable map[string]*poolElem

	recLock  sync.Mutex
	recycled map[string][]*poolElem
}

func newPool(device *Device, flushes, maxSets uint32) *pool {
	if flushes == 0 {
		flushes = 2
	}
	if maxSets == 0 {
		maxSets = 1000
	}
	return &pool{
		device:    device,
		flushes:   flushes,
		maxSets:   maxSets,
		immutable: make(map[string]*poolElem),
		recycled:  make(map[string][]*poolElem),
	}
}

// sub registers a new subordinate with the pool.
func (p *pool) sub() *PoolSub {
	s := &PoolSub{
		pool:    p,
		mutable: make(map[string]*poolElem),
	}
	p.subLock.Lock()
	p.subs = append(p.subs, s)
	p.subLock.Unlock()
	return s
}

// unsub flushes and removes a subordinate. Requires exclusive access.
func (p *pool) unsub(s *PoolSub) {
	p.unclaimBlocks()
	p.mergeSub(s)

	for i, sub := range p.subs {
		if sub == s {
			p.subs = append(p.subs[:i], p.subs[i+1:]...)
			break
		}
	}
	s.pool = nil
}

// unclaimBlocks makes all subordinates release their allocating block back
// into the free list. Blocks are pushed at the head so hot blocks keep
// being used instead of dispersing over all available blocks.
func (p *pool) unclaimBlocks() {
	for _, s := range p.subs {
		if s.block != nil {
			p.free = append([]*poolBlock{s.block}, p.free...)
			s.block = nil
		}
	}
}

// mergeSub merges one subordinate's table into immutable. A duplicate key
// means two subordinates allocated structurally identical sets; the extra
// one is recycled rather than leaked.
func (p *pool) mergeSub(s *PoolSub) {
	for k, elem := range s.mutable {
		if _, ok := p.immutable[k]; ok {
			p.recycleElem(s.mutable, k, elem)
			continue
		}
		p.immutable[k] = elem
	}
	s.mutable = make(map[string]*poolElem)
}

// allocBlock creates a new descriptor block.
func (p *pool) allocBlock() (*poolBlock, error) {
	n := p.maxSets
	sizes := []vk.DescriptorPoolSize{
		{Type: vk.DescriptorTypeSampler, DescriptorCount: n},
		{Type: vk.DescriptorTypeCombinedImageSampler, DescriptorCount: n},
		{Type: vk.DescriptorTypeSampledImage, DescriptorCount: n},
		{Type: vk.DescriptorTypeStorageImage, DescriptorCount: n},
		{Type: vk.DescriptorTypeUniformTexelBuffer, DescriptorCount: n},
		{Type: vk.DescriptorTypeStorageTexelBuffer, DescriptorCount: n},
		{Type: vk.DescriptorTypeUniformBuffer, DescriptorCount: n},
		{Type: vk.DescriptorTypeStorageBuffer, DescriptorCount: n},
		{Type: vk.DescriptorTypeUniformBufferDynamic, DescriptorCount: n},
		{Type: vk.DescriptorTypeStorageBufferDynamic, DescriptorCount: n},
		{Type: vk.DescriptorTypeInputAttachment, DescriptorCount: n},
	}

	dpci := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       n,
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}

	block := &poolBlock{}
	if err := vkCheck(vk.CreateDescriptorPool(
		p.device.device, &dpci, nil, &block.pool), "vkCreateDescriptorPool"); err != nil {
		Logger().Error("could not allocate a new Vulkan descriptor pool", "err", err)
		return nil, err
	}
	return block, nil
}

// freeBlock destroys a block, freeing GPU memory of all its descriptor
// sets. The block must already be unlinked from every list.
func (p *pool) freeBlock(block *poolBlock) {
	if block.pool != vk.NullDescriptorPool {
		vk.DestroyDescriptorPool(p.device.device, block.pool, nil)
	}
	block.elems = nil
}

// recycleElem moves an element from m into the recycled table, re-keyed by
// the set-layout prefix of k. If its block is now fully recycled, the block
// is destroyed immediately. No subordinate may hold an allocating block.
func (p *pool) recycleElem(m map[string]*poolElem, k string, elem *poolElem) {
	block := elem.block
	delete(m, k)

	rk := k[:recKeyLen]
	p.recycled[rk] = append(p.recycled[rk], elem)

	if block.sets.Add(-1) == 0 {
		// All of the block's elements are in recycled; erase them and
		// destroy the block.
		for _, bElem := range block.elems {
			p.eraseRecycled(bElem)
		}
		p.unlinkBlock(block)
		p.freeBlock(block)
	}
}

// eraseRecycled removes one element from the recycled table by identity.
func (p *pool) eraseRecycled(elem *poolElem) {
	for rk, elems := range p.recycled {
		for i, e := range elems {
			if e == elem {
				elems = append(elems[:i], elems[i+1:]...)
				if len(elems) == 0 {
					delete(p.recycled, rk)
				} else {
					p.recycled[rk] = elems
				}
				return
			}
		}
	}
}

// unlinkBlock removes a block from the free or full list.
func (p *pool) unlinkBlock(block *poolBlock) {
	list := &p.free
	if block.full {
		list = &p.full
	}
	for i, b := range *list {
		if b == block {
			*list = append((*list)[:i], (*list)[i+1:]...)
			return
		}
	}
}

// flush merges each subordinate's table into immutable without copying
// handles, then recycles every element whose flush counter reached the
// configured threshold. Requires exclusive access to the pool.
func (p *pool) flush() {
	p.unclaimBlocks()

	for _, s := range p.subs {
		p.mergeSub(s)
	}

	for k, elem := range p.immutable {
		if elem.flushes.Add(1) >= p.flushes {
			p.recycleElem(p.immutable, k, elem)
		}
	}
}

// reset clears all tables, resets every descriptor pool object and returns
// all blocks to the free list. Used when a referenceable attachment is
// resized; requires all frames stalled.
func (p *pool) reset() {
	p.unclaimBlocks()

	p.immutable = make(map[string]*poolElem)
	p.recycled = make(map[string][]*poolElem)
	for _, s := range p.subs {
		s.mutable = make(map[string]*poolElem)
	}

	for _, block := range p.full {
		block.full = false
		p.free = append(p.free, block)
	}
	p.full = nil

	for _, block := range p.free {
		block.elems = nil
		block.sets.Store(0)
		if block.pool != vk.NullDescriptorPool {
			vk.ResetDescriptorPool(p.device.device, block.pool, 0)
		}
	}
}

// recycle flags every element matching key across immutable and all
// subordinate tables for future reuse. Requires exclusive access.
func (p *pool) recycle(key hashkey.Key) {
	k := key.String()
	p.unclaimBlocks()

	for _, s := range p.subs {
		if elem, ok := s.mutable[k]; ok {
			p.recycleElem(s.mutable, k, elem)
		}
	}
	if elem, ok := p.immutable[k]; ok {
		p.recycleElem(p.immutable, k, elem)
	}
}

// clear destroys all blocks and tables. The device must be idle.
func (p *pool) clear() {
	for _, s := range p.subs {
		if s.block != nil {
			p.freeBlock(s.block)
			s.block = nil
		}
		s.mutable = make(map[string]*poolElem)
	}
	for _, block := range p.free {
		p.freeBlock(block)
	}
	for _, block := range p.full {
		p.freeBlock(block)
	}
	p.free, p.full = nil, nil

	p.immutable = make(map[string]*poolElem)
	p.recycled = make(map[string][]*poolElem)
}

// get resolves a descriptor set for the composed key, allocating and
// updating one if necessary. writes carry the descriptor update data; their
// DstSet fields are filled in here.
//
// get is safe concurrently with get on other subordinates.
func (s *PoolSub) get(setLayout *cacheElem, key hashkey.Key, writes []vk.WriteDescriptorSet) *poolElem {
	p := s.pool
	k := key.String()

	// Elements always flush into the immutable table, so after one frame
	// the element will most likely be found here; no lock needed.
	if elem, ok := p.immutable[k]; ok {
		elem.flushes.Store(0)
		return elem
	}
	if elem, ok := s.mutable[k]; ok {
		elem.flushes.Store(0)
		return elem
	}

	// Check the recycled table for any set with a compatible layout.
	// Found entries move to this subordinate, so lock.
	var elem *poolElem
	rk := k[:recKeyLen]

	p.recLock.Lock()
	if elems := p.recycled[rk]; len(elems) > 0 {
		elem = elems[len(elems)-1]
		elems = elems[:len(elems)-1]
		if len(elems) == 0 {
			delete(p.recycled, rk)
		} else {
			p.recycled[rk] = elems
		}
		s.mutable[k] = elem
	}
	p.recLock.Unlock()

	// Still nothing; allocate a new descriptor set from a block.
	if elem == nil {
		elem = s.allocate(setLayout, k)
		if elem == nil {
			return nil
		}
	}

	// The element counts as live on its block again. Atomic: recycling
	// threads may touch any block's counter.
	elem.block.sets.Add(1)

	// Write the actual Vulkan descriptors.
	for i := range writes {
		writes[i].DstSet = elem.set
	}
	if len(writes) > 0 {
		vk.UpdateDescriptorSets(p.device.device, uint32(len(writes)), writes, 0, nil)
	}

	elem.flushes.Store(0)
	return elem
}

// allocate claims a block and allocates one descriptor set from it,
// retrying with a fresh block when the current one reports out-of-memory.
func (s *PoolSub) allocate(setLayout *cacheElem, k string) *poolElem {
	p := s.pool

	for {
		if s.block == nil {
			p.subLock.Lock()
			if len(p.free) > 0 {
				s.block = p.free[0]
				p.free = p.free[1:]
			}
			p.subLock.Unlock()

			if s.block == nil {
				block, err := p.allocBlock()
				if err != nil {
					return nil
				}
				s.block = block
			}
		}

		// The block is claimed by this subordinate; only the sets counter
		// is shared with recycling threads.
		dsai := vk.DescriptorSetAllocateInfo{
			SType:              vk.StructureTypeDescriptorSetAllocateInfo,
			DescriptorPool:     s.block.pool,
			DescriptorSetCount: 1,
			PSetLayouts:        []vk.DescriptorSetLayout{setLayout.setLayout},
		}

		var set vk.DescriptorSet
		result := vk.AllocateDescriptorSets(p.device.device, &dsai, &set)

		if result == vk.ErrorFragmentedPool || result == vk.ErrorOutOfPoolMemory {
			// Move the exhausted block to the full list and try again.
			p.subLock.Lock()
			s.block.full = true
			p.full = append(p.full, s.block)
			p.subLock.Unlock()
			s.block = nil
			continue
		}
		if err := vkCheck(result, "vkAllocateDescriptorSets"); err != nil {
			Logger().Error("could not allocate descriptor set", "err", err)
			return nil
		}

		elem := &poolElem{set: set, block: s.block}
		s.block.elems = append(s.block.elems, elem)
		s.mutable[k] = elem
		return elem
	}
}
