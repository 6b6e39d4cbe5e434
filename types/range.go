// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package types

// ImageAspect selects the aspects of an image a range applies to.
type ImageAspect uint32

const (
	AspectColor ImageAspect = 1 << iota
	AspectDepth
	AspectStencil
)

// AspectAny selects every aspect; the render package narrows it to the
// aspects a format actually has.
const AspectAny = AspectColor | AspectDepth | AspectStencil

// Range selects a region of a resource.
//
// For images, Mipmap/NumMipmaps and Layer/NumLayers select a window of the
// resource; a count of zero means "all remaining". For buffers, Offset/Size
// select a byte window with the same zero-size convention. The zero Range
// therefore spans the entire resource.
type Range struct {
	Aspect ImageAspect

	Mipmap     uint32
	NumMipmaps uint32
	Layer      uint32
	NumLayers  uint32

	Offset uint64
	Size   uint64
}

// Whole reports whether the range spans the entire resource.
func (r Range) Whole() bool {
	return r.Mipmap == 0 && r.NumMipmaps == 0 &&
		r.Layer == 0 && r.NumLayers == 0 &&
		r.Offset == 0 && r.Size == 0
}

// Overlaps reports whether two ranges can touch the same region of one
// resource. Zero counts span everything and thus overlap anything.
func (r Range) Overlaps(o Range) bool {
	if r.Aspect != 0 && o.Aspect != 0 && r.Aspect&o.Aspect == 0 {
		return false
	}
	if !spanOverlap(uint64(r.Mipmap), uint64(r.NumMipmaps), uint64(o.Mipmap), uint64(o.NumMipmaps)) {
		return false
	}
	if !spanOverlap(uint64(r.Layer), uint64(r.NumLayers), uint64(o.Layer), uint64(o.NumLayers)) {
		return false
	}
	return spanOverlap(r.Offset, r.Size, o.Offset, o.Size)
}

// Union returns the smallest range covering both r and o.
// A zero count on either side stays zero, meaning "all remaining".
func (r Range) Union(o Range) Range {
	u := Range{Aspect: r.Aspect | o.Aspect}
	u.Mipmap, u.NumMipmaps = spanUnion(r.Mipmap, r.NumMipmaps, o.Mipmap, o.NumMipmaps)
	u.Layer, u.NumLayers = spanUnion(r.Layer, r.NumLayers, o.Layer, o.NumLayers)
	off, size := spanUnion64(r.Offset, r.Size, o.Offset, o.Size)
	u.Offset, u.Size = off, size
	return u
}

func spanOverlap(aOff, aLen, bOff, bLen uint64) bool {
	if aLen == 0 && bLen == 0 {
		return true
	}
	if aLen == 0 {
		return bOff+bLen > aOff
	}
	if bLen == 0 {
		return aOff+aLen > bOff
	}
	return aOff < bOff+bLen && bOff < aOff+aLen
}

func spanUnion(aOff, aLen, bOff, bLen uint32) (off, length uint32) {
	o, l := spanUnion64(uint64(aOff), uint64(aLen), uint64(bOff), uint64(bLen))
	return uint32(o), uint32(l)
}

func spanUnion64(aOff, aLen, bOff, bLen uint64) (off, length uint64) {
	off = min(aOff, bOff)
	if aLen == 0 || bLen == 0 {
		return off, 0
	}
	return off, max(aOff+aLen, bOff+bLen) - off
}

// ViewType is the interpreted dimensionality of an image view.
type ViewType uint32

const (
	View1D ViewType = iota
	View1DArray
	View2D
	View2DArray
	ViewCube
	ViewCubeArray
	View3D
)

// View describes how a consumption or binding views a resource:
// an index (attachment or binding array index), an optional override of the
// view type, and the selected range.
type View struct {
	Index int
	Type  ViewType
	Range Range
}
