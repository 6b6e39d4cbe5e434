// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package types

// CompareOp is a depth/stencil comparison operation.
type CompareOp uint32

const (
	CompareNever CompareOp = iota
	CompareLess
	CompareLessEqual
	CompareGreater
	CompareGreaterEqual
	CompareEqual
	CompareNotEqual
	CompareAlways
)

// RasterMode selects how primitives are rasterized.
type RasterMode uint32

const (
	RasterFill RasterMode = iota
	RasterLine
	RasterPoint
)

// FrontFace selects the winding considered front-facing.
type FrontFace uint32

const (
	FrontFaceCW FrontFace = iota
	FrontFaceCCW
)

// CullMode selects the faces discarded before rasterization.
type CullMode uint32

const (
	CullNone CullMode = iota
	CullFront
	CullBack
)

// Topology is the primitive topology of a render pass.
type Topology uint32

const (
	TopoPointList Topology = iota
	TopoLineList
	TopoLineStrip
	TopoTriangleList
	TopoTriangleStrip
	TopoTriangleFan
)

// RasterState is the rasterization state of a render pass.
type RasterState struct {
	Mode    RasterMode
	Front   FrontFace
	Cull    CullMode
	Topo    Topology
	Samples uint32
}

// BlendFactor is a source or destination blend factor.
type BlendFactor uint32

const (
	FactorZero BlendFactor = iota
	FactorOne
	FactorSrcColor
	FactorOneMinusSrcColor
	FactorDstColor
	FactorOneMinusDstColor
	FactorSrcAlpha
	FactorOneMinusSrcAlpha
	FactorDstAlpha
	FactorOneMinusDstAlpha
	FactorConstant
	FactorOneMinusConstant
)

// BlendOp combines source and destination values.
// BlendNoOp disables blending for the operand entirely.
type BlendOp uint32

const (
	BlendNoOp BlendOp = iota
	BlendAdd
	BlendSubtract
	BlendReverseSubtract
	BlendMin
	BlendMax
)

// BlendOpState is one blending operand (color or alpha).
type BlendOpState struct {
	SrcFactor BlendFactor
	DstFactor BlendFactor
	Op        BlendOp
}

// LogicOp is a framebuffer logical operation.
type LogicOp uint32

const (
	LogicNoOp LogicOp = iota
	LogicClear
	LogicAnd
	LogicOr
	LogicXor
	LogicCopy
)

// BlendState is the blend state of a render pass.
type BlendState struct {
	Logic     LogicOp
	Color     BlendOpState
	Alpha     BlendOpState
	Constants [4]float32
}

// DepthFlags toggle depth-test behaviour.
type DepthFlags uint32

const (
	DepthWrite DepthFlags = 1 << iota
	DepthBounded
)

// DepthState is the depth-test state of a render pass.
type DepthState struct {
	Flags    DepthFlags
	Cmp      CompareOp
	MinDepth float32
	MaxDepth float32
}

// StencilOp mutates the stencil buffer.
type StencilOp uint32

const (
	StencilKeep StencilOp = iota
	StencilZero
	StencilReplace
	StencilIncrementClamp
	StencilDecrementClamp
	StencilInvert
	StencilIncrementWrap
	StencilDecrementWrap
)

// StencilOpState is the stencil state for one face.
type StencilOpState struct {
	Fail      StencilOp
	Pass      StencilOp
	DepthFail StencilOp
	Cmp       CompareOp

	CmpMask   uint32
	WriteMask uint32
	Reference uint32
}

// StencilState is the two-faced stencil state of a render pass.
type StencilState struct {
	Front StencilOpState
	Back  StencilOpState
}

// RenderState bundles the optional state overrides of a render pass.
// Nil fields leave the current state untouched.
type RenderState struct {
	Raster  *RasterState
	Blend   *BlendState
	Depth   *DepthState
	Stencil *StencilState
}

// Clear is a clear value for an attachment; the renderer picks the color or
// depth/stencil halves from the consumed aspect.
type Clear struct {
	Color   [4]float32
	Depth   float32
	Stencil uint32
}
