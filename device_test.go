package psxgpu

import (
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

// createNoopDevice creates a noop device and queue for testing.
// Returns the device, queue, and a cleanup function.
func createNoopDevice(t *testing.T) (hal.Device, hal.Queue, func()) {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	cleanup := func() {
		openDev.Device.Destroy()
		instance.Destroy()
	}
	return openDev.Device, openDev.Queue, cleanup
}

// createTestRenderer builds a renderer on a noop device with the given
// upscaling factor.
func createTestRenderer(t *testing.T, upscaling uint32) (*Renderer, func()) {
	t.Helper()
	device, queue, cleanup := createNoopDevice(t)

	cfg := DefaultDrawConfig()
	cfg.InternalUpscaling = upscaling
	r, err := New(device, queue, cfg)
	if err != nil {
		cleanup()
		t.Fatalf("New failed: %v", err)
	}
	return r, func() {
		r.Destroy()
		cleanup()
	}
}
