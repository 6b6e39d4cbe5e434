// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package thread pins work to a dedicated OS thread.
//
// A renderer is single-owner: every call into it must come from one thread.
// Meanwhile GLFW insists on window creation and event polling happening on
// the main OS thread. A Thread gives the renderer its own locked OS thread
// so acquire/submit loops (including long stalls like vkDeviceWaitIdle
// during swapchain recreation) never block event processing.
package thread

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Thread is a dedicated, OS-locked thread. All submitted functions run
// serialized on it, in submission order.
type Thread struct {
	funcs   chan func()
	done    chan struct{}
	running atomic.Bool
}

// New creates a thread and starts it. The backing goroutine is locked to
// its OS thread for its whole lifetime.
func New() *Thread {
	t := &Thread{
		funcs: make(chan func(), 16),
		done:  make(chan struct{}),
	}
	t.running.Store(true)

	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		wg.Done()

		for {
			select {
			case f := <-t.funcs:
				f()
			case <-t.done:
				return
			}
		}
	}()

	wg.Wait()
	return t
}

// Call executes f on the thread and waits for it, returning its error.
func (t *Thread) Call(f func() error) error {
	if !t.running.Load() {
		return nil
	}

	done := make(chan error, 1)
	t.funcs <- func() {
		done <- f()
	}
	return <-done
}

// CallVoid executes f on the thread and waits for completion.
func (t *Thread) CallVoid(f func()) {
	if !t.running.Load() {
		return
	}

	done := make(chan struct{})
	t.funcs <- func() {
		f()
		close(done)
	}
	<-done
}

// CallAsync executes f on the thread without waiting.
func (t *Thread) CallAsync(f func()) {
	if !t.running.Load() {
		return
	}

	select {
	case t.funcs <- f:
	default:
		// Channel full; execute synchronously to avoid deadlock.
		t.CallVoid(f)
	}
}

// Stop stops the thread. Queued functions may be dropped.
func (t *Thread) Stop() {
	if t.running.Swap(false) {
		close(t.done)
	}
}

// IsRunning reports whether the thread accepts work.
func (t *Thread) IsRunning() bool {
	return t.running.Load()
}
