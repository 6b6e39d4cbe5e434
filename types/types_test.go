// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAccessPredicates(t *testing.T) {
	require.True(t, AccessStorageWrite.Writes())
	require.True(t, AccessAttachmentWrite.Writes())
	require.False(t, AccessVertexRead.Writes())
	require.True(t, AccessVertexRead.Reads())
	require.False(t, (AccessStorageWrite | AccessComputeAsync).Reads())

	require.True(t, AccessAttachmentInput.Attachment())
	require.False(t, AccessSampledRead.Attachment())

	m := AccessStorageWrite | AccessComputeAsync
	require.Equal(t, AccessComputeAsync, m.Async())
	require.Equal(t, AccessMask(0), AccessVertexRead.Async())
}

func TestRangeWholeAndOverlap(t *testing.T) {
	var whole Range
	require.True(t, whole.Whole())

	sub := Range{Mipmap: 2, NumMipmaps: 2}
	require.False(t, sub.Whole())

	// Zero counts span everything and overlap anything.
	require.True(t, whole.Overlaps(sub))
	require.True(t, sub.Overlaps(whole))

	a := Range{Mipmap: 0, NumMipmaps: 2}
	b := Range{Mipmap: 2, NumMipmaps: 2}
	require.False(t, a.Overlaps(b))
	require.True(t, a.Overlaps(Range{Mipmap: 1, NumMipmaps: 1}))

	// Disjoint aspects never overlap.
	d := Range{Aspect: AspectDepth}
	c := Range{Aspect: AspectColor}
	require.False(t, d.Overlaps(c))

	// Buffer windows.
	b1 := Range{Offset: 0, Size: 64}
	b2 := Range{Offset: 64, Size: 64}
	require.False(t, b1.Overlaps(b2))
	require.True(t, b1.Overlaps(Range{Offset: 32, Size: 64}))
}

func TestRangeUnion(t *testing.T) {
	a := Range{Aspect: AspectColor, Mipmap: 1, NumMipmaps: 2, Layer: 0, NumLayers: 4}
	b := Range{Aspect: AspectColor, Mipmap: 2, NumMipmaps: 3, Layer: 2, NumLayers: 4}

	u := a.Union(b)
	require.Equal(t, uint32(1), u.Mipmap)
	require.Equal(t, uint32(4), u.NumMipmaps) // Levels 1..5 -> base 1, count 4.
	require.Equal(t, uint32(0), u.Layer)
	require.Equal(t, uint32(6), u.NumLayers)

	// A zero count on either side means "all remaining" and stays zero.
	u = a.Union(Range{Aspect: AspectColor})
	require.Equal(t, uint32(0), u.NumMipmaps)
	require.Equal(t, uint32(0), u.NumLayers)
}

func TestFormatAspects(t *testing.T) {
	require.True(t, FormatD32SfloatS8.HasDepth())
	require.True(t, FormatD32SfloatS8.HasStencil())
	require.True(t, FormatD16Unorm.HasDepth())
	require.False(t, FormatD16Unorm.HasStencil())
	require.False(t, FormatB8G8R8A8Unorm.HasDepthOrStencil())

	require.Equal(t, AspectColor, FormatB8G8R8A8Unorm.Aspect())
	require.Equal(t, AspectDepth|AspectStencil, FormatD24UnormS8.Aspect())
	require.Equal(t, AspectStencil, FormatS8Uint.Aspect())
}

func TestAttachmentEmpty(t *testing.T) {
	var a Attachment
	require.True(t, a.Empty())
	a.Width = 1
	require.False(t, a.Empty())
}
