// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package render

import (
	"sync"

	"github.com/gogpu/vkgraph/types"
	vk "github.com/vulkan-go/vulkan"
)

// Reference identifies the resource a dependency injection synchronizes:
// a raw buffer or image, or an attachment index of the renderer the
// injection is submitted to. NilRef means "any resource"; the zero Reference
// names attachment 0.
type Reference struct {
	buffer     vk.Buffer
	image      vk.Image
	attachment int
}

// NilRef matches any resource.
var NilRef = Reference{attachment: -1}

// RefBuffer references a buffer.
func RefBuffer(b vk.Buffer) Reference { return Reference{buffer: b, attachment: -1} }

// RefImage references an image.
func RefImage(i vk.Image) Reference { return Reference{image: i, attachment: -1} }

// RefAttachment references an attachment index of the submitting renderer.
func RefAttachment(index int) Reference { return Reference{attachment: index} }

func (r Reference) isNil() bool {
	return r.buffer == vk.NullBuffer && r.image == vk.NullImage && r.attachment < 0
}

func (r Reference) same(o Reference) bool {
	return r.buffer == o.buffer && r.image == o.image && r.attachment == o.attachment
}

// depState tracks the lifecycle of a signal record.
type depState uint8

const (
	// depProvisional records exist between prepare and finish/abort.
	depProvisional depState = iota
	// depPending records survived a finish and await a matching wait.
	depPending
	// depCaught records were consumed by a wait this submission and are
	// removed (or demoted back to pending on abort) by finish/abort.
	depCaught
)

// depSignal is one pending signal record of a dependency object.
type depSignal struct {
	ref   Reference
	rng   types.Range
	mask  types.AccessMask
	stage types.ShaderStage

	// family is the queue family the signal was recorded on.
	family uint32
	// sem synchronizes cross-queue pairs; NullSemaphore within a queue.
	sem vk.Semaphore

	state     depState
	prevState depState
}

// Dependency is a synchronization token shared between the producers that
// signal it and the consumers that wait on it. Signals pair with waits per
// the matching rule of matches; unpaired waits are not an error, the
// barrier is simply omitted.
//
// All methods are safe for concurrent use; injection processing only takes
// the object's lock to splice records.
type Dependency struct {
	device *Device

	mu   sync.Mutex
	sigs []*depSignal
	// retired semaphores await destruction with the object; they may still
	// be referenced by in-flight submissions.
	retired []vk.Semaphore
}

// NewDependency creates a dependency object for a device. It is independent
// of any renderer.
func NewDependency(device *Device) *Dependency {
	return &Dependency{device: device}
}

// Destroy releases the object. Destroying a dependency that still holds
// pending signal records is rejected: the resources listed by those records
// cannot be freed until the signals are waited upon.
func (d *Dependency) Destroy() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, sig := range d.sigs {
		if sig.state == depPending {
			Logger().Error("dependency object destroyed with pending signals",
				"fatal", true)
			return ErrDepPending
		}
	}
	for _, sig := range d.sigs {
		if sig.sem != vk.NullSemaphore {
			vk.DestroySemaphore(d.device.device, sig.sem, nil)
		}
	}
	for _, sem := range d.retired {
		vk.DestroySemaphore(d.device.device, sem, nil)
	}
	d.sigs = nil
	d.retired = nil
	return nil
}

// injectType discriminates injection commands.
type injectType uint8

const (
	injectSignal injectType = iota
	injectWait
)

// Inject is one dependency injection command, passed to Pass.Inject.
// Build values with the Sig*/Wait* constructors.
type Inject struct {
	typ   injectType
	dep   *Dependency
	ref   Reference
	rng   types.Range
	mask  types.AccessMask
	stage types.ShaderStage
}

// Sig signals dep for any resource.
func Sig(dep *Dependency, mask types.AccessMask, stage types.ShaderStage) Inject {
	return Inject{typ: injectSignal, dep: dep, ref: NilRef, mask: mask, stage: stage}
}

// SigRef signals dep for a specific resource.
func SigRef(dep *Dependency, mask types.AccessMask, stage types.ShaderStage, ref Reference) Inject {
	return Inject{typ: injectSignal, dep: dep, ref: ref, mask: mask, stage: stage}
}

// SigRange signals dep for a range (area) of a resource.
func SigRange(dep *Dependency, mask types.AccessMask, stage types.ShaderStage, ref Reference, rng types.Range) Inject {
	return Inject{typ: injectSignal, dep: dep, ref: ref, rng: rng, mask: mask, stage: stage}
}

// Wait waits on dep for any resource, consuming it with mask and stage.
func Wait(dep *Dependency, mask types.AccessMask, stage types.ShaderStage) Inject {
	return Inject{typ: injectWait, dep: dep, ref: NilRef, mask: mask, stage: stage}
}

// WaitRef waits on dep for a specific resource.
func WaitRef(dep *Dependency, mask types.AccessMask, stage types.ShaderStage, ref Reference) Inject {
	return Inject{typ: injectWait, dep: dep, ref: ref, mask: mask, stage: stage}
}

// WaitRange waits on dep for a range (area) of a resource.
func WaitRange(dep *Dependency, mask types.AccessMask, stage types.ShaderStage, ref Reference, rng types.Range) Inject {
	return Inject{typ: injectWait, dep: dep, ref: ref, rng: rng, mask: mask, stage: stage}
}

// matches implements the signal/wait matching rule: same underlying
// resource (nil wait reference matches any), overlapping ranges (zero range
// means whole resource), and agreeing async modifiers. When neither side
// writes and the masks do not even intersect there is no hazard to pair,
// so the signal stays pending.
func matches(sig *depSignal, wait *Inject) bool {
	if !wait.ref.isNil() && !sig.ref.same(wait.ref) {
		return false
	}
	if !sig.rng.Overlaps(wait.rng) {
		return false
	}
	if sig.mask&wait.mask&^types.AccessModifiers == 0 &&
		!sig.mask.Writes() && !wait.mask.Writes() {
		return false
	}
	return sig.mask.Async() == wait.mask.Async()
}

// destFamily is the queue family the signaled operation will execute on,
// derived from the async modifier bits.
func (d *Dependency) destFamily(mask types.AccessMask) uint32 {
	if mask&types.AccessComputeAsync != 0 {
		return d.device.compute.Family
	}
	return d.device.graphics.Family
}

// catch drains signal records matching the wait command, emitting semaphore
// waits for cross-queue pairs and buffering pipeline barriers otherwise.
// Called when beginning a pass submission; a wait consumes every matching
// signal, each signal at most once.
func (d *Dependency) catch(inj *injection, wait *Inject) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, sig := range d.sigs {
		if sig.state == depCaught || !matches(sig, wait) {
			continue
		}

		sig.prevState = sig.state
		sig.state = depCaught

		fmt := d.refFormat(inj, wait.ref)
		dstStages := modStageFlags(
			pipelineStageFlags(wait.mask, wait.stage, fmt), inj.queue, d.device)

		if sig.sem != vk.NullSemaphore && sig.family != inj.queue.Family {
			// Cross-queue pair: the semaphore carries the dependency.
			inj.addWait(sig.sem, dstStages)
			continue
		}

		srcStages := modStageFlags(
			pipelineStageFlags(sig.mask, sig.stage, fmt), inj.queue, d.device)
		d.pushBarrier(inj, sig, wait, srcStages, dstStages, fmt)
	}
}

// pushBarrier buffers the memory barrier pairing sig with wait.
func (d *Dependency) pushBarrier(inj *injection, sig *depSignal, wait *Inject,
	srcStages, dstStages vk.PipelineStageFlags, fmt types.Format) {

	ref := wait.ref
	if ref.isNil() {
		ref = sig.ref
	}
	rng := sig.rng.Union(wait.rng)

	image := ref.image
	if ref.attachment >= 0 {
		image = inj.renderer.attachmentImage(inj.frame, ref.attachment)
	}

	switch {
	case image != vk.NullImage:
		aspect := rng.Aspect & fmt.Aspect()
		if aspect == 0 {
			aspect = fmt.Aspect()
		}
		imb := vk.ImageMemoryBarrier{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       accessFlags(sig.mask, fmt),
			DstAccessMask:       accessFlags(wait.mask, fmt),
			OldLayout:           imageLayout(sig.mask, fmt),
			NewLayout:           imageLayout(wait.mask, fmt),
			SrcQueueFamilyIndex: queueFamilyIgnored,
			DstQueueFamilyIndex: queueFamilyIgnored,
			Image:               image,
			SubresourceRange:    subresourceRange(aspect, rng),
		}
		inj.push(srcStages, dstStages, nil, &imb)

	case ref.buffer != vk.NullBuffer:
		size := rng.Size
		if size == 0 {
			size = wholeSize
		}
		bmb := vk.BufferMemoryBarrier{
			SType:               vk.StructureTypeBufferMemoryBarrier,
			SrcAccessMask:       accessFlags(sig.mask, fmt),
			DstAccessMask:       accessFlags(wait.mask, fmt),
			SrcQueueFamilyIndex: queueFamilyIgnored,
			DstQueueFamilyIndex: queueFamilyIgnored,
			Buffer:              ref.buffer,
			Offset:              vk.DeviceSize(rng.Offset),
			Size:                vk.DeviceSize(size),
		}
		inj.push(srcStages, dstStages, &bmb, nil)

	default:
		// No concrete resource; a plain execution barrier has to do.
		inj.push(srcStages, dstStages, nil, nil)
	}
}

// prepare appends a provisional signal record for the signal command and,
// when the signaled operation runs on another queue, creates the semaphore
// pairing the two submissions. Called when finishing a pass.
func (d *Dependency) prepare(inj *injection, sig *Inject) error {
	record := &depSignal{
		ref:    sig.ref,
		rng:    sig.rng,
		mask:   sig.mask,
		stage:  sig.stage,
		family: inj.queue.Family,
		sem:    vk.NullSemaphore,
		state:  depProvisional,
	}

	if d.destFamily(sig.mask) != inj.queue.Family {
		sci := vk.SemaphoreCreateInfo{
			SType: vk.StructureTypeSemaphoreCreateInfo,
		}
		if err := vkCheck(vk.CreateSemaphore(
			d.device.device, &sci, nil, &record.sem), "vkCreateSemaphore"); err != nil {
			return err
		}
		inj.addSig(record.sem)
	}

	d.mu.Lock()
	d.sigs = append(d.sigs, record)
	d.mu.Unlock()
	return nil
}

// refFormat resolves the format of a referenced resource, for deriving
// depth/stencil access flags. Buffers and raw images yield the undefined
// (color) format.
func (d *Dependency) refFormat(inj *injection, ref Reference) types.Format {
	if ref.attachment < 0 || inj.renderer == nil {
		return types.FormatUndefined
	}
	return inj.renderer.attachmentFormat(ref.attachment)
}

// finish promotes provisional records to pending and removes caught ones,
// retiring their semaphores. Called after a successful submission.
func (d *Dependency) finish() {
	d.mu.Lock()
	defer d.mu.Unlock()

	kept := d.sigs[:0]
	for _, sig := range d.sigs {
		switch sig.state {
		case depProvisional:
			sig.state = depPending
			kept = append(kept, sig)
		case depCaught:
			if sig.sem != vk.NullSemaphore {
				d.retired = append(d.retired, sig.sem)
			}
		default:
			kept = append(kept, sig)
		}
	}
	d.sigs = kept
}

// abort discards provisional records and reverts caught ones, used when a
// submission fails before reaching the queue.
func (d *Dependency) abort() {
	d.mu.Lock()
	defer d.mu.Unlock()

	kept := d.sigs[:0]
	for _, sig := range d.sigs {
		switch sig.state {
		case depProvisional:
			// Never submitted; its semaphore is safe to destroy now.
			if sig.sem != vk.NullSemaphore {
				vk.DestroySemaphore(d.device.device, sig.sem, nil)
			}
		case depCaught:
			sig.state = sig.prevState
			if sig.state == depProvisional {
				if sig.sem != vk.NullSemaphore {
					vk.DestroySemaphore(d.device.device, sig.sem, nil)
				}
				continue
			}
			kept = append(kept, sig)
		default:
			kept = append(kept, sig)
		}
	}
	d.sigs = kept
}

// subresourceRange translates a range into a Vulkan subresource range; zero
// counts become "remaining".
func subresourceRange(aspect types.ImageAspect, rng types.Range) vk.ImageSubresourceRange {
	levels := rng.NumMipmaps
	if levels == 0 {
		levels = remainingMipLevels
	}
	layers := rng.NumLayers
	if layers == 0 {
		layers = remainingArrayLayers
	}
	return vk.ImageSubresourceRange{
		AspectMask:     aspectFlags(aspect),
		BaseMipLevel:   rng.Mipmap,
		LevelCount:     levels,
		BaseArrayLayer: rng.Layer,
		LayerCount:     layers,
	}
}
