// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package types

// SamplerFlags toggle optional sampler features.
type SamplerFlags uint32

const (
	SamplerAnisotropy SamplerFlags = 1 << iota
	SamplerCompare
	SamplerUnnormalized
)

// Filter is a texture lookup filter.
type Filter uint32

const (
	FilterNearest Filter = iota
	FilterLinear
)

// FilterMode is the lookup reduction mode.
type FilterMode uint32

const (
	FilterModeAverage FilterMode = iota
	FilterModeMin
	FilterModeMax
)

// Wrapping is the texture coordinate wrapping mode.
type Wrapping uint32

const (
	WrapRepeat Wrapping = iota
	WrapRepeatMirror
	WrapClampToEdge
	WrapClampToEdgeMirror
	WrapClampToBorder
)

// Sampler describes a sampler at a binding.
type Sampler struct {
	Binding int
	// Index is the binding array index.
	Index int

	Flags SamplerFlags
	Mode  FilterMode

	MinFilter Filter
	MagFilter Filter
	MipFilter Filter

	WrapU Wrapping
	WrapV Wrapping
	WrapW Wrapping

	MipLodBias    float32
	MinLod        float32
	MaxLod        float32
	MaxAnisotropy float32

	Cmp CompareOp
}
