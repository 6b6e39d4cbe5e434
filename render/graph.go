// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package render

import (
	"github.com/gogpu/vkgraph/types"
	vk "github.com/vulkan-go/vulkan"
)

// graph is the renderer's DAG of passes in linear submission order:
// first the numRender render passes submitted to the graphics queue, then
// the async-compute passes submitted to the compute queue. Within each
// partition passes sort by level, stable in insertion order.
type graph struct {
	passes    []*Pass
	targets   []*Pass
	numRender int

	// analyzed is set once consumption links and layouts are derived;
	// built once every render pass holds its framebuffers.
	analyzed bool
	built    bool
}

// invalidate marks the graph for full destruction of derived state before
// the next build. Any graph mutation lands here.
func (g *graph) invalidate(r *Renderer) {
	if g.analyzed {
		for _, p := range g.passes {
			if p.typ == PassRender {
				p.destructPartial(types.RecreateAll)
				p.backing = -1
				p.views = nil
				p.clears = nil
				p.blends = nil
			}
		}
	}
	g.analyzed = false
	g.built = false
}

// addPass creates a pass with the given parents and inserts it in
// submission order.
func (g *graph) addPass(r *Renderer, typ PassType, parents []*Pass) (*Pass, error) {
	for _, parent := range parents {
		if parent.renderer != r {
			Logger().Warn("pass parents must belong to the same renderer")
			return nil, ErrGraphInvalid
		}
		if (typ == PassComputeAsync) != (parent.typ == PassComputeAsync) {
			Logger().Warn("async compute passes cannot mix parentage with render passes")
			return nil, ErrGraphInvalid
		}
	}

	p := newPass(r, typ, parents)

	// Find the insertion position: the partition the pass belongs to,
	// then the end of its level within it so insertion order is kept.
	lo, hi := 0, g.numRender
	if typ == PassComputeAsync {
		lo, hi = g.numRender, len(g.passes)
	}
	pos := hi
	for pos > lo && g.passes[pos-1].level > p.level {
		pos--
	}

	g.passes = append(g.passes, nil)
	copy(g.passes[pos+1:], g.passes[pos:])
	g.passes[pos] = p

	if typ == PassRender {
		g.numRender++
	}

	// The new pass is a target; its parents no longer are.
	g.targets = append(g.targets, p)
	for t := len(g.targets) - 2; t >= 0; t-- {
		for _, parent := range parents {
			if g.targets[t] == parent {
				g.targets = append(g.targets[:t], g.targets[t+1:]...)
				break
			}
		}
	}

	g.invalidate(r)
	return p, nil
}

// analyze derives, for every consumption, its predecessor link and the
// image layouts the pass sees. Runs once per (re)build.
func (g *graph) analyze(r *Renderer) {
	type prevLink struct {
		con  *consume
		pass *Pass
	}
	last := make(map[int]prevLink)

	for order, p := range g.passes {
		p.order = order

		for _, con := range p.consumes {
			at := r.attachAt(con.view.Index)
			if at == nil || at.typ == attachEmpty {
				con.prev = nil
				continue
			}

			fmt := r.attachmentFormat(con.view.Index)
			layout := imageLayout(con.mask, fmt)

			if link, ok := last[con.view.Index]; ok {
				con.prev = link.con
				con.prevPass = link.pass
				con.initial = layout
			} else {
				con.prev = nil
				con.prevPass = nil
				// First use this frame; contents are undefined unless a
				// later consumption wrote them.
				con.initial = vk.ImageLayoutUndefined
			}
			con.final = layout

			last[con.view.Index] = prevLink{con: con, pass: p}
		}
	}

	// The last consumption of every window attachment hands the image to
	// the presentation engine.
	for index, link := range last {
		if at := r.attachAt(index); at != nil && at.typ == attachWindow {
			link.con.final = vk.ImageLayoutPresentSrc
		}
	}

	g.analyzed = true
}

// build makes sure every render pass holds a Vulkan render pass and
// framebuffers. No-op when already built.
func (g *graph) build(r *Renderer) error {
	if g.built {
		return nil
	}
	if !g.analyzed {
		g.analyze(r)
	}

	for _, p := range g.passes {
		if p.typ != PassRender {
			continue
		}
		if err := p.build(); err != nil {
			Logger().Error("renderer graph build incomplete", "err", err)
			return err
		}
	}

	g.built = true
	return nil
}

// warmup builds the Vulkan render pass of every render pass without
// allocating framebuffers.
func (g *graph) warmup(r *Renderer) error {
	if !g.analyzed {
		g.analyze(r)
	}
	for _, p := range g.passes {
		if p.typ != PassRender {
			continue
		}
		if err := p.warmup(); err != nil {
			return err
		}
	}
	return nil
}

// rebuild re-creates swapchain-dependent pass state per the recreate flags.
// The filtered attachment list is kept; on reformat the render pass handle
// is re-derived and pipelines referencing it are invalidated.
func (g *graph) rebuild(r *Renderer, flags types.RecreateFlags) {
	if flags&types.Recreate == 0 || !g.built {
		return
	}
	for _, p := range g.passes {
		if p.typ != PassRender {
			continue
		}
		if err := p.rebuild(flags); err != nil {
			Logger().Error("pass rebuild failed", "err", err)
			g.built = false
		}
	}
}

// destroyPasses destroys all passes in reverse submission order; every
// dependency of a pass is to its left, which submission order honors.
func (g *graph) destroyPasses() {
	for i := len(g.passes) - 1; i >= 0; i-- {
		g.passes[i].destroy()
	}
	g.passes = nil
	g.targets = nil
	g.numRender = 0
	g.analyzed = false
	g.built = false
}
