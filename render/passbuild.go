// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package render

import (
	"github.com/gogpu/vkgraph/types"
	vk "github.com/vulkan-go/vulkan"
)

func (p *Pass) warmed() bool { return p.vkPass != vk.NullRenderPass }
func (p *Pass) built() bool  { return len(p.frames) > 0 }

// validateDims checks one attachment's dimensions against the pass's
// framebuffer dimensions, adopting them when unset. A zero dimension means
// the pass is skipped this frame (e.g. minimized window); a mismatch is a
// misuse warning.
func (p *Pass) validateDims(width, height, layers uint32) bool {
	if width == 0 || height == 0 || layers == 0 {
		// Not an error if e.g. minimized.
		Logger().Debug("zero framebuffer dimensions during pass building, pass skipped",
			"width", width, "height", height, "layers", layers)
		return false
	}
	if (p.fWidth != 0 && width != p.fWidth) ||
		(p.fHeight != 0 && height != p.fHeight) ||
		(p.fLayers != 0 && layers != p.fLayers) {
		Logger().Warn("mismatching framebuffer dimensions during pass building, pass skipped",
			"width", width, "height", height, "layers", layers,
			"fWidth", p.fWidth, "fHeight", p.fHeight, "fLayers", p.fLayers)
		return false
	}
	p.fWidth, p.fHeight, p.fLayers = width, height, layers
	return true
}

// filterAttachments filters all consumptions into framebuffer views and
// picks at most one window to use as back-buffer, silently logging issues.
func (p *Pass) filterAttachments() {
	if len(p.views) > 0 {
		return
	}

	r := p.renderer
	depSten := -1

	for _, con := range p.consumes {
		at := r.attachAt(con.view.Index)
		if at == nil || at.typ == attachEmpty {
			Logger().Warn("consumption ignored, attachment not described",
				"index", con.view.Index)
			continue
		}

		// Only attachment accesses become framebuffer views.
		if !con.mask.Attachment() {
			continue
		}

		if at.typ == attachWindow {
			// A window we read/write color to becomes the backing.
			if con.view.Range.Aspect&types.AspectColor != 0 &&
				con.mask&(types.AccessAttachmentRead|
					types.AccessAttachmentWrite|types.AccessAttachmentResolve) != 0 {
				if p.backing < 0 {
					p.backing = con.view.Index
				} else if p.backing != con.view.Index {
					Logger().Warn("consumption ignored, a single pass can only "+
						"render to a single window attachment at a time",
						"index", con.view.Index)
					continue
				}
			} else {
				Logger().Warn("consumption ignored, a pass can only read/write "+
					"to a window attachment", "index", con.view.Index)
				continue
			}
		} else if fmt := at.desc.Format; fmt.HasDepthOrStencil() &&
			con.view.Range.Aspect&(types.AspectDepth|types.AspectStencil) != 0 &&
			con.mask&(types.AccessAttachmentRead|types.AccessAttachmentWrite) != 0 {
			// Warn for duplicate depth/stencil consumptions.
			if depSten < 0 {
				depSten = con.view.Index
			} else {
				Logger().Warn("a single pass can only read/write a single " +
					"depth/stencil attachment at a time")
			}
		}

		p.views = append(p.views, &viewElem{consume: con})
	}
}

// findAttachment returns the filtered attachment slot for an attachment
// index, or attachmentUnused.
func (p *Pass) findAttachment(index int) uint32 {
	if index < 0 {
		return attachmentUnused
	}
	for i, v := range p.views {
		if v.consume.view.Index == index {
			return uint32(i)
		}
	}
	return attachmentUnused
}

// warmup derives the Vulkan render pass (through the object cache) from the
// filtered consumptions. Clear and blend vectors refresh here too, they are
// needed before framebuffers exist.
func (p *Pass) warmup() error {
	if p.warmed() {
		return nil
	}

	r := p.renderer
	p.filterAttachments()

	p.clears = p.clears[:0]
	p.blends = p.blends[:0]
	p.state.samples = vk.SampleCount1Bit
	p.state.depthEnabled = false
	p.state.stencEnabled = false

	unused := vk.AttachmentReference{
		Attachment: attachmentUnused,
		Layout:     vk.ImageLayoutUndefined,
	}

	ad := make([]vk.AttachmentDescription, 0, len(p.views))
	var input, color, resolve []vk.AttachmentReference
	depSten := unused

	for i, v := range p.views {
		con := v.consume
		at := r.attachAt(con.view.Index)
		isColor := false

		if at.typ == attachWindow {
			if con.mask&(types.AccessAttachmentRead|types.AccessAttachmentWrite) != 0 {
				resolve = append(resolve, unused)
				color = append(color, vk.AttachmentReference{
					Attachment: uint32(i),
					Layout:     vk.ImageLayoutColorAttachmentOptimal,
				})
				isColor = true
			}

			clear := con.cleared&types.AspectColor != 0
			load := con.initial != vk.ImageLayoutUndefined

			ad = append(ad, vk.AttachmentDescription{
				Format:         at.window.Format(),
				Samples:        vk.SampleCount1Bit,
				LoadOp:         loadOp(clear, load),
				StoreOp:        storeOp(con.mask),
				StencilLoadOp:  vk.AttachmentLoadOpDontCare,
				StencilStoreOp: vk.AttachmentStoreOpDontCare,
				InitialLayout:  con.initial,
				FinalLayout:    con.final,
			})
		} else {
			fmt := at.desc.Format

			aspectMatch := con.view.Range.Aspect&fmt.Aspect() != 0

			firstClear := false
			firstLoad := false
			secondClear := false
			secondLoad := false
			if !fmt.HasDepthOrStencil() {
				firstClear = con.cleared&types.AspectColor != 0
				firstLoad = con.initial != vk.ImageLayoutUndefined
			} else {
				firstClear = fmt.HasDepth() && con.cleared&types.AspectDepth != 0
				firstLoad = (fmt.HasDepth() || !fmt.HasStencil()) &&
					con.initial != vk.ImageLayoutUndefined
				secondClear = fmt.HasStencil() && con.cleared&types.AspectStencil != 0
				secondLoad = fmt.HasStencil() && con.initial != vk.ImageLayoutUndefined
			}

			ref := vk.AttachmentReference{
				Attachment: uint32(i),
				Layout:     imageLayout(con.mask, fmt),
			}
			refResolve := unused
			if ind := p.findAttachment(con.resolve); ind != attachmentUnused {
				refResolve = vk.AttachmentReference{
					Attachment: ind,
					Layout:     vk.ImageLayoutColorAttachmentOptimal,
				}
			}

			if con.mask&types.AccessAttachmentInput != 0 {
				if aspectMatch {
					input = append(input, ref)
				} else {
					input = append(input, unused)
				}
			}

			if con.mask&(types.AccessAttachmentRead|types.AccessAttachmentWrite) != 0 {
				if !fmt.HasDepthOrStencil() {
					if aspectMatch {
						resolve = append(resolve, refResolve)
						color = append(color, ref)
					} else {
						resolve = append(resolve, unused)
						color = append(color, unused)
					}
					isColor = true
				} else if aspectMatch {
					depSten = ref
					p.state.depthEnabled = fmt.HasDepth()
					p.state.stencEnabled = fmt.HasStencil()
				}
			}

			samples := sampleCount(p.state.raster.Samples)
			ad = append(ad, vk.AttachmentDescription{
				Format:         vk.Format(at.desc.Format),
				Samples:        samples,
				LoadOp:         loadOp(firstClear, firstLoad),
				StoreOp:        storeOp(con.mask),
				StencilLoadOp:  loadOp(secondClear, secondLoad),
				StencilStoreOp: storeOp(con.mask),
				InitialLayout:  con.initial,
				FinalLayout:    con.final,
			})

			if samples > p.state.samples {
				p.state.samples = samples
			}
		}

		// Store the clear value for when the pass begins.
		if at.typ != attachWindow && at.desc.Format.HasDepthOrStencil() {
			p.clears = append(p.clears,
				vk.NewClearDepthStencil(con.clear.Depth, con.clear.Stencil))
		} else {
			c := con.clear.Color
			p.clears = append(p.clears,
				vk.NewClearValue([]float32{c[0], c[1], c[2], c[3]}))
		}

		// And the blend state for building pipelines.
		if isColor {
			p.blends = append(p.blends, p.blendAttachmentState(con))
		}
	}

	sd := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		InputAttachmentCount: uint32(len(input)),
		PInputAttachments:    input,
		ColorAttachmentCount: uint32(len(color)),
		PColorAttachments:    color,
		PResolveAttachments:  resolve,
	}
	if depSten.Attachment != attachmentUnused {
		sd.PDepthStencilAttachment = &depSten
	}

	rpci := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(ad)),
		PAttachments:    ad,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{sd},
	}

	// Remember the cache element for locality.
	p.buildPass = r.cache.getRenderPass(&rpci)
	if p.buildPass == nil {
		return ErrCacheCreate
	}
	p.vkPass = p.buildPass.pass
	return nil
}

// blendAttachmentState derives the pipeline blend state of one color
// consumption; per-consumption blend overrides pass state.
func (p *Pass) blendAttachmentState(con *consume) vk.PipelineColorBlendAttachmentState {
	s := vk.PipelineColorBlendAttachmentState{
		BlendEnable:         vk.False,
		SrcColorBlendFactor: vk.BlendFactorOne,
		DstColorBlendFactor: vk.BlendFactorZero,
		ColorBlendOp:        vk.BlendOpAdd,
		SrcAlphaBlendFactor: vk.BlendFactorOne,
		DstAlphaBlendFactor: vk.BlendFactorZero,
		AlphaBlendOp:        vk.BlendOpAdd,
		ColorWriteMask: vk.ColorComponentFlags(
			vk.ColorComponentRBit | vk.ColorComponentGBit |
				vk.ColorComponentBBit | vk.ColorComponentABit),
	}

	blendColor := p.state.blend.Color
	blendAlpha := p.state.blend.Alpha
	if con.flags&consumeBlend != 0 {
		blendColor = con.color
		blendAlpha = con.alpha
	}

	if blendColor.Op != types.BlendNoOp {
		s.BlendEnable = vk.True
		s.SrcColorBlendFactor = blendFactor(blendColor.SrcFactor)
		s.DstColorBlendFactor = blendFactor(blendColor.DstFactor)
		s.ColorBlendOp = blendOp(blendColor.Op)
	}
	if blendAlpha.Op != types.BlendNoOp {
		s.BlendEnable = vk.True
		s.SrcAlphaBlendFactor = blendFactor(blendAlpha.SrcFactor)
		s.DstAlphaBlendFactor = blendFactor(blendAlpha.DstFactor)
		s.AlphaBlendOp = blendOp(blendAlpha.Op)
	}
	return s
}

// build creates all image views and framebuffers of the pass: one
// framebuffer per swapchain image when window-backed, one otherwise.
func (p *Pass) build() error {
	if p.built() {
		return nil
	}
	if err := p.warmup(); err != nil {
		return err
	}

	r := p.renderer
	dev := r.device.device

	views := make([]vk.ImageView, len(p.views))
	var backing *attach
	backingInd := -1

	for i, v := range p.views {
		con := v.consume
		at := r.attachAt(con.view.Index)

		if at.typ == attachWindow {
			// Filled in per swapchain image below.
			backing = at
			backingInd = i

			w, h := at.window.Extent()
			if !p.validateDims(w, h, 1) {
				p.destructPartial(types.Recreate)
				return nil
			}
			continue
		}

		layers := con.view.Range.NumLayers
		if layers == 0 {
			layers = at.desc.Layers - con.view.Range.Layer
		}
		if !p.validateDims(at.width, at.height, layers) {
			p.destructPartial(types.Recreate)
			return nil
		}

		// Fix the consumed aspect to what the format supports.
		fmt := at.desc.Format
		aspect := con.view.Range.Aspect & fmt.Aspect()
		if aspect == 0 {
			aspect = fmt.Aspect()
		}

		vt := imageViewType(at.desc.Type)
		if con.flags&consumeViewed != 0 {
			vt = viewType(con.view.Type)
		}

		ivci := vk.ImageViewCreateInfo{
			SType:    vk.StructureTypeImageViewCreateInfo,
			Image:    at.image,
			ViewType: vt,
			Format:   at.vkFormat,
			Components: vk.ComponentMapping{
				R: vk.ComponentSwizzleIdentity,
				G: vk.ComponentSwizzleIdentity,
				B: vk.ComponentSwizzleIdentity,
				A: vk.ComponentSwizzleIdentity,
			},
			SubresourceRange: subresourceRange(aspect, con.view.Range),
		}

		if err := vkCheck(vk.CreateImageView(
			dev, &ivci, nil, &views[i]), "vkCreateImageView"); err != nil {
			Logger().Error("could not build framebuffers for a pass", "err", err)
			p.destructPartial(types.Recreate)
			return err
		}
		v.view = views[i]
	}

	// One framebuffer per swapchain image, or just a single one.
	count := 1
	if backingInd >= 0 {
		count = len(backing.window.Images())
	}

	for img := 0; img < count; img++ {
		elem := frameElem{}

		if backingInd >= 0 {
			ivci := vk.ImageViewCreateInfo{
				SType:    vk.StructureTypeImageViewCreateInfo,
				Image:    backing.window.Images()[img],
				ViewType: vk.ImageViewType2d,
				Format:   backing.window.Format(),
				Components: vk.ComponentMapping{
					R: vk.ComponentSwizzleIdentity,
					G: vk.ComponentSwizzleIdentity,
					B: vk.ComponentSwizzleIdentity,
					A: vk.ComponentSwizzleIdentity,
				},
				SubresourceRange: vk.ImageSubresourceRange{
					AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
					LevelCount: 1,
					LayerCount: 1,
				},
			}
			if err := vkCheck(vk.CreateImageView(
				dev, &ivci, nil, &elem.view), "vkCreateImageView"); err != nil {
				Logger().Error("could not build framebuffers for a pass", "err", err)
				p.destructPartial(types.Recreate)
				return err
			}
			views[backingInd] = elem.view
		}

		fci := vk.FramebufferCreateInfo{
			SType:           vk.StructureTypeFramebufferCreateInfo,
			RenderPass:      p.vkPass,
			AttachmentCount: uint32(len(views)),
			PAttachments:    views,
			Width:           max(1, p.fWidth),
			Height:          max(1, p.fHeight),
			Layers:          max(1, p.fLayers),
		}

		if err := vkCheck(vk.CreateFramebuffer(
			dev, &fci, nil, &elem.buffer), "vkCreateFramebuffer"); err != nil {
			vk.DestroyImageView(dev, elem.view, nil)
			Logger().Error("could not build framebuffers for a pass", "err", err)
			p.destructPartial(types.Recreate)
			return err
		}

		p.frames = append(p.frames, elem)
	}

	return nil
}

// rebuild re-creates the destroyed subset of pass state per flags,
// re-performing whatever build stage the pass previously reached.
func (p *Pass) rebuild(flags types.RecreateFlags) error {
	warmed := p.warmed()
	built := p.built()

	p.destructPartial(flags)

	if built {
		return p.build()
	}
	if warmed {
		return p.warmup()
	}
	return nil
}

// destructPartial destroys a subset of derived Vulkan objects.
// Framebuffers and views still referenced by pending frames become stale
// resources, destroyed after the last in-flight frame completes.
func (p *Pass) destructPartial(flags types.RecreateFlags) {
	r := p.renderer

	if flags&types.Recreate != 0 {
		for _, elem := range p.frames {
			r.pushStale(staleRes{framebuffer: elem.buffer, view: elem.view})
		}
		p.frames = p.frames[:0]

		for _, v := range p.views {
			if v.view != vk.NullImageView {
				r.pushStale(staleRes{view: v.view})
				// The filtered list is kept: on swapchain recreate the
				// consumptions have not changed, only the images have.
				v.view = vk.NullImageView
			}
		}

		p.fWidth, p.fHeight, p.fLayers = 0, 0, 0
	}

	if flags&types.Reformat != 0 {
		// The render pass object itself is cached; just drop the handle
		// and invalidate pipelines referencing this pass.
		p.buildPass = nil
		p.vkPass = vk.NullRenderPass
		p.bumpGen()
	}
}

// framebuffer returns the framebuffer to render into for the given frame,
// or a null handle when the pass is skipped.
func (p *Pass) framebuffer(f *Frame) vk.Framebuffer {
	if len(p.frames) == 1 {
		return p.frames[0].buffer
	}
	image := f.swapchainIndex(p.backing)
	if image == noImage || int(image) >= len(p.frames) {
		return vk.NullFramebuffer
	}
	return p.frames[image].buffer
}

func loadOp(clear, load bool) vk.AttachmentLoadOp {
	switch {
	case clear:
		return vk.AttachmentLoadOpClear
	case load:
		return vk.AttachmentLoadOpLoad
	default:
		return vk.AttachmentLoadOpDontCare
	}
}

func storeOp(mask types.AccessMask) vk.AttachmentStoreOp {
	if mask&types.AccessDiscard != 0 {
		return vk.AttachmentStoreOpDontCare
	}
	return vk.AttachmentStoreOpStore
}
