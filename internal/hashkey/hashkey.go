// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package hashkey builds the variable-length byte keys that address the
// renderer's object cache and descriptor pool.
//
// A Builder accumulates fields into a single growing buffer; Key finalizes
// it. Two keys are equal iff their payloads are byte-equal, so every field
// must be pushed in a fixed order with a fixed width. Hashing is Murmur3-64
// with a fixed seed, used wherever a stable 64-bit digest of the payload is
// needed (the pipeline-cache blob, diagnostics); table lookups compare the
// raw bytes.
package hashkey

import (
	"encoding/binary"
	"math"

	"github.com/twmb/murmur3"
)

// seed is the fixed Murmur3 seed; part of the pipeline-cache blob format.
const seed = 0

// Key is a finalized immutable hash key.
type Key struct {
	b []byte
}

// Bytes returns the key payload. Callers must not modify it.
func (k Key) Bytes() []byte { return k.b }

// Len returns the payload length in bytes.
func (k Key) Len() int { return len(k.b) }

// Hash returns the Murmur3-64 digest of the payload.
func (k Key) Hash() uint64 { return murmur3.SeedSum64(seed, k.b) }

// Equal reports byte-equality of two keys.
func (k Key) Equal(o Key) bool { return string(k.b) == string(o.b) }

// String returns the payload as a string, suitable as a map key.
func (k Key) String() string { return string(k.b) }

// Sum64 hashes raw bytes with the same seed as Key.Hash.
func Sum64(b []byte) uint64 { return murmur3.SeedSum64(seed, b) }

// Builder accumulates key fields. The zero value is ready to use.
// Builders must not be copied after the first push.
type Builder struct {
	b []byte
}

// NewBuilder returns a builder with room for capacity bytes.
func NewBuilder(capacity int) *Builder {
	return &Builder{b: make([]byte, 0, capacity)}
}

// Key finalizes the builder. The builder must not be reused afterwards.
func (b *Builder) Key() Key { return Key{b: b.b} }

// Len returns the number of bytes pushed so far.
func (b *Builder) Len() int { return len(b.b) }

// Bytes returns the accumulated payload without finalizing.
func (b *Builder) Bytes() []byte { return b.b }

// PushBytes appends raw bytes.
func (b *Builder) PushBytes(p []byte) *Builder {
	b.b = append(b.b, p...)
	return b
}

// PushBool appends a single presence byte.
func (b *Builder) PushBool(v bool) *Builder {
	var x byte
	if v {
		x = 1
	}
	b.b = append(b.b, x)
	return b
}

// PushUint8 appends one byte.
func (b *Builder) PushUint8(v uint8) *Builder {
	b.b = append(b.b, v)
	return b
}

// PushUint32 appends a little-endian uint32.
func (b *Builder) PushUint32(v uint32) *Builder {
	b.b = binary.LittleEndian.AppendUint32(b.b, v)
	return b
}

// PushUint64 appends a little-endian uint64.
func (b *Builder) PushUint64(v uint64) *Builder {
	b.b = binary.LittleEndian.AppendUint64(b.b, v)
	return b
}

// PushFloat32 appends the IEEE-754 bits of v.
func (b *Builder) PushFloat32(v float32) *Builder {
	return b.PushUint32(math.Float32bits(v))
}

// PushHandle appends a caller-supplied handle index standing in for an
// opaque object reference, keeping keys deterministic across runs.
func (b *Builder) PushHandle(index uint64) *Builder {
	return b.PushUint64(index)
}

// PushLen appends an array length prefix.
func (b *Builder) PushLen(n int) *Builder {
	return b.PushUint32(uint32(n))
}
