// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Command vkgraph-minimal opens a window, attaches it to a renderer with a
// single render pass clearing it to a color, and presents until closed.
// It is the smallest possible live test of the render-graph executor.
package main

import (
	"log"
	"log/slog"
	"os"
	"runtime"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/gogpu/vkgraph/internal/thread"
	"github.com/gogpu/vkgraph/render"
	"github.com/gogpu/vkgraph/types"
	"github.com/gogpu/vkgraph/wsi"
	vk "github.com/vulkan-go/vulkan"
)

func init() {
	// GLFW event handling must run on the main OS thread.
	runtime.LockOSThread()
}

func main() {
	render.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})))

	if err := glfw.Init(); err != nil {
		log.Fatalf("glfw: %v", err)
	}
	defer glfw.Terminate()

	vk.SetGetInstanceProcAddr(glfw.GetVulkanGetInstanceProcAddress())
	if err := vk.Init(); err != nil {
		log.Fatalf("vulkan: %v", err)
	}

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	win, err := glfw.CreateWindow(600, 400, "vkgraph-minimal", nil, nil)
	if err != nil {
		log.Fatalf("glfw: %v", err)
	}

	instance, device := createContext(win)
	defer vk.DestroyInstance(instance, nil)
	defer vk.DestroyDevice(device.Handle(), nil)

	window, err := wsi.NewWindow(device, win)
	if err != nil {
		log.Fatal(err)
	}
	defer window.Destroy()

	renderer, err := render.New(device, render.RendererOptions{Frames: 2})
	if err != nil {
		log.Fatal(err)
	}
	defer renderer.Destroy()

	if err := renderer.AttachWindow(0, window); err != nil {
		log.Fatal(err)
	}

	pass, err := renderer.AddPass()
	if err != nil {
		log.Fatal(err)
	}
	if err := pass.Consume(0, types.AccessAttachmentWrite, types.StageFragment); err != nil {
		log.Fatal(err)
	}
	pass.SetClear(0, types.AspectColor, types.Clear{Color: [4]float32{1, 0.8, 0.4, 1}})

	// The renderer runs on its own locked OS thread; the main thread
	// stays responsive for event processing.
	renderThread := thread.New()
	defer renderThread.Stop()

	for !window.ShouldClose() {
		err := renderThread.Call(func() error {
			frame := renderer.Acquire()
			return frame.Submit()
		})
		if err != nil {
			break
		}
		glfw.PollEvents()
	}
	renderThread.Stop()
}

// createContext creates the Vulkan instance and logical device and wraps
// them for the renderer. Device selection just takes the first physical
// device with a graphics queue.
func createContext(win *glfw.Window) (vk.Instance, *render.Device) {
	appInfo := vk.ApplicationInfo{
		SType:            vk.StructureTypeApplicationInfo,
		PApplicationName: "vkgraph-minimal\x00",
		PEngineName:      "vkgraph\x00",
		ApiVersion:       uint32(vk.MakeVersion(1, 1, 0)),
	}

	extensions := win.GetRequiredInstanceExtensions()

	var instance vk.Instance
	ret := vk.CreateInstance(&vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        &appInfo,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
	}, nil, &instance)
	if ret != vk.Success {
		log.Fatalf("vkCreateInstance failed: %d", ret)
	}
	vk.InitInstance(instance)

	var gpuCount uint32
	vk.EnumeratePhysicalDevices(instance, &gpuCount, nil)
	if gpuCount == 0 {
		log.Fatal("no Vulkan physical devices")
	}
	gpus := make([]vk.PhysicalDevice, gpuCount)
	vk.EnumeratePhysicalDevices(instance, &gpuCount, gpus)
	gpu := gpus[0]

	var familyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(gpu, &familyCount, nil)
	families := make([]vk.QueueFamilyProperties, familyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(gpu, &familyCount, families)

	graphicsFamily := ^uint32(0)
	for i := range families {
		families[i].Deref()
		if families[i].QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) != 0 {
			graphicsFamily = uint32(i)
			break
		}
	}
	if graphicsFamily == ^uint32(0) {
		log.Fatal("no graphics queue family")
	}

	var device vk.Device
	ret = vk.CreateDevice(gpu, &vk.DeviceCreateInfo{
		SType:                vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount: 1,
		PQueueCreateInfos: []vk.DeviceQueueCreateInfo{{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: graphicsFamily,
			QueueCount:       1,
			PQueuePriorities: []float32{1},
		}},
		EnabledExtensionCount:   1,
		PpEnabledExtensionNames: []string{"VK_KHR_swapchain\x00"},
	}, nil, &device)
	if ret != vk.Success {
		log.Fatalf("vkCreateDevice failed: %d", ret)
	}

	var queue vk.Queue
	vk.GetDeviceQueue(device, graphicsFamily, 0, &queue)

	dev, err := render.NewDevice(render.DeviceOptions{
		Instance:       instance,
		PhysicalDevice: gpu,
		Device:         device,
		Graphics: render.QueueOptions{
			Family: graphicsFamily,
			Queue:  queue,
		},
	})
	if err != nil {
		log.Fatal(err)
	}
	return instance, dev
}
