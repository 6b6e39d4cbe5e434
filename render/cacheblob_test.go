// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package render

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/gogpu/vkgraph/internal/hashkey"
	"github.com/stretchr/testify/require"
)

// buildBlob assembles a blob with a coherent size and hash, then lets the
// caller corrupt specific fields.
func buildBlob(vendor, device, driver, abi uint32, payload []byte) []byte {
	blob := make([]byte, blobHeaderSize+len(payload))
	binary.LittleEndian.PutUint32(blob[offMagic:], blobMagic)
	binary.LittleEndian.PutUint32(blob[offVendor:], vendor)
	binary.LittleEndian.PutUint32(blob[offDevice:], device)
	binary.LittleEndian.PutUint32(blob[offDriver:], driver)
	binary.LittleEndian.PutUint32(blob[offABI:], abi)
	copy(blob[blobHeaderSize:], payload)

	binary.LittleEndian.PutUint32(blob[offDataSize:], uint32(len(blob)))
	binary.LittleEndian.PutUint64(blob[offDataHash:], hashkey.Sum64(blob))
	return blob
}

func TestBlobHeaderLayout(t *testing.T) {
	// The format is bit-exact: packed little-endian fields at fixed
	// offsets, opaque data at 48.
	require.Equal(t, 48, blobHeaderSize)
	require.Equal(t, 0, offMagic)
	require.Equal(t, 4, offDataSize)
	require.Equal(t, 8, offDataHash)
	require.Equal(t, 16, offVendor)
	require.Equal(t, 20, offDevice)
	require.Equal(t, 24, offDriver)
	require.Equal(t, 28, offABI)
	require.Equal(t, 32, offUUID)
	require.Equal(t, uint32(0xff60af14), blobMagic)
}

func TestBlobLoadRejectsCorruption(t *testing.T) {
	c := &cache{device: testDevice()}

	// Too short for a header.
	require.ErrorIs(t, c.Load(bytes.NewReader(make([]byte, 12))), ErrIncompatible)

	// Wrong magic.
	blob := buildBlob(0, 0, 0, pointerABI, []byte("opaque"))
	binary.LittleEndian.PutUint32(blob[offMagic:], 0xdeadbeef)
	require.ErrorIs(t, c.Load(bytes.NewReader(blob)), ErrIncompatible)

	// Truncated data fails the size check.
	blob = buildBlob(0, 0, 0, pointerABI, []byte("opaque"))
	require.ErrorIs(t, c.Load(bytes.NewReader(blob[:len(blob)-1])), ErrIncompatible)

	// A flipped payload byte fails the hash check.
	blob = buildBlob(0, 0, 0, pointerABI, []byte("opaque"))
	blob[len(blob)-1]++
	require.ErrorIs(t, c.Load(bytes.NewReader(blob)), ErrIncompatible)

	// Another device's blob is incompatible.
	blob = buildBlob(0x8086, 0, 0, pointerABI, nil)
	require.ErrorIs(t, c.Load(bytes.NewReader(blob)), ErrIncompatible)

	// A different pointer ABI is incompatible.
	blob = buildBlob(0, 0, 0, 4+8-pointerABI, nil)
	require.ErrorIs(t, c.Load(bytes.NewReader(blob)), ErrIncompatible)
}

func TestBlobHashFieldZeroedForHashing(t *testing.T) {
	// The stored hash covers the blob with its own field zeroed; a blob
	// whose hash was computed any other way must not validate.
	blob := buildBlob(1, 0, 0, pointerABI, nil)

	var zeroed [8]byte
	region := append([]byte{}, blob...)
	copy(region[offDataHash:], zeroed[:])
	require.Equal(t,
		binary.LittleEndian.Uint64(blob[offDataHash:]),
		hashkey.Sum64(region))
}
