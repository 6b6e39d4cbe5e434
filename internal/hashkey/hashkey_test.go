// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package hashkey

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuilderFixedWidths(t *testing.T) {
	b := NewBuilder(0)
	b.PushBool(true)
	b.PushUint8(7)
	b.PushUint32(42)
	b.PushUint64(42)
	b.PushFloat32(1.5)
	b.PushHandle(3)
	b.PushLen(9)
	require.Equal(t, 1+1+4+8+4+8+4, b.Len())
}

func TestKeyEquality(t *testing.T) {
	mk := func() Key {
		b := NewBuilder(16)
		b.PushUint32(1)
		b.PushHandle(77)
		b.PushBool(false)
		return b.Key()
	}

	k1, k2 := mk(), mk()
	require.True(t, k1.Equal(k2))
	require.Equal(t, k1.Hash(), k2.Hash())
	require.Equal(t, k1.String(), k2.String())

	b := NewBuilder(16)
	b.PushUint32(1)
	b.PushHandle(78) // Different handle index.
	b.PushBool(false)
	k3 := b.Key()
	require.False(t, k1.Equal(k3))
}

func TestHashStableAcrossRuns(t *testing.T) {
	// The digest is part of the pipeline-cache blob format; it must not
	// drift between builds.
	require.Equal(t, Sum64(nil), Sum64([]byte{}))
	require.NotEqual(t, Sum64([]byte{0}), Sum64([]byte{1}))

	b := NewBuilder(4)
	b.PushUint32(0xff60af14)
	k := b.Key()
	require.Equal(t, Sum64([]byte{0x14, 0xaf, 0x60, 0xff}), k.Hash())
}

func TestFloatBitsExact(t *testing.T) {
	// Floats hash by their IEEE bits; -0 and +0 must differ so keys stay
	// byte-equal only for byte-equal descriptors.
	a := NewBuilder(4)
	a.PushFloat32(0)
	b := NewBuilder(4)
	b.PushFloat32(float32(negZero()))
	require.False(t, a.Key().Equal(b.Key()))
}

func negZero() float64 {
	z := 0.0
	return -z
}
