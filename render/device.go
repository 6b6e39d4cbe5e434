// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package render

import (
	"fmt"
	"sync"
	"sync/atomic"

	vk "github.com/vulkan-go/vulkan"
)

// Queue is one device queue together with its family and submission lock.
// Every submit and present against the queue takes the lock.
type Queue struct {
	Family uint32
	Index  uint32
	Queue  vk.Queue

	mu sync.Mutex
}

// Lock locks the queue for submission.
func (q *Queue) Lock() { q.mu.Lock() }

// Unlock releases the queue.
func (q *Queue) Unlock() { q.mu.Unlock() }

// QueueOptions name one device queue for DeviceOptions.
type QueueOptions struct {
	Family uint32
	Index  uint32
	Queue  vk.Queue
}

// DeviceOptions supply the Vulkan handles a Device wraps. Instance, physical
// and logical device creation is the embedding application's concern; the
// renderer only needs the handles and the two queues it submits on.
//
// Compute may be left zero, in which case the graphics queue doubles as the
// compute queue and async-compute passes serialize with rendering.
type DeviceOptions struct {
	Instance       vk.Instance
	PhysicalDevice vk.PhysicalDevice
	Device         vk.Device

	Graphics QueueOptions
	Compute  QueueOptions
}

// Device wraps the Vulkan context a renderer executes against: the logical
// device, its queues, and the device properties the object cache validates
// pipeline-cache blobs with.
type Device struct {
	instance vk.Instance
	physical vk.PhysicalDevice
	device   vk.Device

	graphics Queue
	compute  Queue

	// Pipeline-cache blob validation fields.
	vendorID      uint32
	deviceID      uint32
	driverVersion uint32
	cacheUUID     [16]byte

	// Sampler allocation accounting. samplerLock serializes the
	// limit check so two concurrent allocations cannot both succeed when
	// the limit only allows one more sampler.
	maxSamplers uint32
	samplers    atomic.Int32
	samplerLock sync.Mutex
}

// NewDevice wraps existing Vulkan handles. It queries the physical device
// properties needed for pipeline-cache validation and sampler accounting.
func NewDevice(opts DeviceOptions) (*Device, error) {
	if opts.Device == nil || opts.PhysicalDevice == nil {
		return nil, fmt.Errorf("render: NewDevice: missing device handles: %w", ErrGraphInvalid)
	}
	if opts.Graphics.Queue == nil {
		return nil, fmt.Errorf("render: NewDevice: missing graphics queue: %w", ErrGraphInvalid)
	}

	d := &Device{
		instance: opts.Instance,
		physical: opts.PhysicalDevice,
		device:   opts.Device,
		graphics: Queue{
			Family: opts.Graphics.Family,
			Index:  opts.Graphics.Index,
			Queue:  opts.Graphics.Queue,
		},
	}

	if opts.Compute.Queue != nil {
		d.compute = Queue{
			Family: opts.Compute.Family,
			Index:  opts.Compute.Index,
			Queue:  opts.Compute.Queue,
		}
	} else {
		d.compute = Queue{
			Family: opts.Graphics.Family,
			Index:  opts.Graphics.Index,
			Queue:  opts.Graphics.Queue,
		}
	}

	var props vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(d.physical, &props)
	props.Deref()
	props.Limits.Deref()

	d.vendorID = props.VendorID
	d.deviceID = props.DeviceID
	d.driverVersion = props.DriverVersion
	copy(d.cacheUUID[:], props.PipelineCacheUUID[:])
	d.maxSamplers = props.Limits.MaxSamplerAllocationCount

	return d, nil
}

// Handle returns the logical device.
func (d *Device) Handle() vk.Device { return d.device }

// Physical returns the physical device.
func (d *Device) Physical() vk.PhysicalDevice { return d.physical }

// Instance returns the instance the device was created from.
func (d *Device) Instance() vk.Instance { return d.instance }

// Graphics returns the graphics queue.
func (d *Device) Graphics() *Queue { return &d.graphics }

// Compute returns the compute queue; identical to Graphics when no
// dedicated compute queue was supplied.
func (d *Device) Compute() *Queue { return &d.compute }

// claimSampler reserves one sampler allocation against the device limit.
func (d *Device) claimSampler() error {
	d.samplerLock.Lock()
	defer d.samplerLock.Unlock()

	if uint32(d.samplers.Load()) >= d.maxSamplers {
		Logger().Error("sampler allocation limit reached",
			"limit", d.maxSamplers)
		return ErrSamplerLimit
	}
	d.samplers.Add(1)
	return nil
}

// releaseSampler returns one sampler allocation after destruction.
func (d *Device) releaseSampler() {
	d.samplers.Add(-1)
}

// waitIdle blocks until the device is idle. Used on destruction paths only.
func (d *Device) waitIdle() {
	vk.DeviceWaitIdle(d.device)
}
