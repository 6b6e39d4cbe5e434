// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package render

import (
	"encoding/binary"
	"fmt"
	"io"
	"unsafe"

	"github.com/gogpu/vkgraph/internal/hashkey"
	vk "github.com/vulkan-go/vulkan"
)

// Pipeline-cache blob header layout; little-endian, packed, no padding.
// 'Randomized' magic number (generated by human imagination).
const (
	blobMagic      = uint32(0xff60af14)
	blobHeaderSize = 4 + 4 + 8 + 4 + 4 + 4 + 4 + 16

	offMagic    = 0
	offDataSize = 4
	offDataHash = 8
	offVendor   = 16
	offDevice   = 20
	offDriver   = 24
	offABI      = 28
	offUUID     = 32
)

// pointerABI tags the blob with the producing build's pointer width;
// opaque driver data is not guaranteed portable across ABIs.
const pointerABI = uint32(unsafe.Sizeof(uintptr(0)))

// Store serializes the live Vulkan pipeline cache, prefixed with a
// validating header, to w.
func (c *cache) Store(w io.Writer) error {
	b := hashkey.NewBuilder(blobHeaderSize)
	b.PushUint32(blobMagic)
	b.PushUint32(0) // dataSize, patched below.
	b.PushUint64(0) // dataHash, patched below.
	b.PushUint32(c.device.vendorID)
	b.PushUint32(c.device.deviceID)
	b.PushUint32(c.device.driverVersion)
	b.PushUint32(pointerABI)
	b.PushBytes(c.device.cacheUUID[:])

	// Fetch the opaque Vulkan data after the header.
	var size uint
	if err := vkCheck(vk.GetPipelineCacheData(
		c.device.device, c.vkCache, &size, nil), "vkGetPipelineCacheData"); err != nil {
		return err
	}
	data := make([]byte, size)
	if size > 0 {
		if err := vkCheck(vk.GetPipelineCacheData(
			c.device.device, c.vkCache, &size, unsafe.Pointer(&data[0])), "vkGetPipelineCacheData"); err != nil {
			return err
		}
	}
	b.PushBytes(data[:size])

	// Patch size, then hash with the hash field still zero, then patch it.
	blob := b.Bytes()
	binary.LittleEndian.PutUint32(blob[offDataSize:], uint32(len(blob)))
	binary.LittleEndian.PutUint64(blob[offDataHash:], hashkey.Sum64(blob))

	if _, err := w.Write(blob); err != nil {
		return fmt.Errorf("render: could not write pipeline cache: %w", err)
	}

	Logger().Info("pipeline cache stored", "bytes", len(blob))
	return nil
}

// Load validates a blob previously produced by Store and merges its opaque
// data into the live pipeline cache. Any mismatch returns ErrIncompatible;
// the load is skipped, not fatal.
func (c *cache) Load(r io.Reader) error {
	blob, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("render: could not read pipeline cache: %w", err)
	}
	if len(blob) < blobHeaderSize {
		Logger().Error("pipeline cache header incomplete", "bytes", len(blob))
		return ErrIncompatible
	}

	hash := binary.LittleEndian.Uint64(blob[offDataHash:])
	// Zero the hash field so the received data hashes like it was stored.
	binary.LittleEndian.PutUint64(blob[offDataHash:], 0)

	var uuid [16]byte
	copy(uuid[:], blob[offUUID:offUUID+16])

	valid := binary.LittleEndian.Uint32(blob[offMagic:]) == blobMagic &&
		binary.LittleEndian.Uint32(blob[offDataSize:]) == uint32(len(blob)) &&
		hash == hashkey.Sum64(blob) &&
		binary.LittleEndian.Uint32(blob[offVendor:]) == c.device.vendorID &&
		binary.LittleEndian.Uint32(blob[offDevice:]) == c.device.deviceID &&
		binary.LittleEndian.Uint32(blob[offDriver:]) == c.device.driverVersion &&
		binary.LittleEndian.Uint32(blob[offABI:]) == pointerABI &&
		uuid == c.device.cacheUUID

	if !valid {
		Logger().Error("pipeline cache data is invalid or incompatible")
		return ErrIncompatible
	}

	// Create a temporary cache around the opaque data, merge, destroy.
	data := blob[blobHeaderSize:]
	pcci := vk.PipelineCacheCreateInfo{
		SType:           vk.StructureTypePipelineCacheCreateInfo,
		InitialDataSize: uint(len(data)),
	}
	if len(data) > 0 {
		pcci.PInitialData = unsafe.Pointer(&data[0])
	}

	var tmp vk.PipelineCache
	if err := vkCheck(vk.CreatePipelineCache(
		c.device.device, &pcci, nil, &tmp), "vkCreatePipelineCache"); err != nil {
		return err
	}

	err = vkCheck(vk.MergePipelineCaches(
		c.device.device, c.vkCache, 1, []vk.PipelineCache{tmp}), "vkMergePipelineCaches")
	vk.DestroyPipelineCache(c.device.device, tmp, nil)
	if err != nil {
		return err
	}

	Logger().Info("pipeline cache loaded", "bytes", len(blob))
	return nil
}
