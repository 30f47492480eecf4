package psxgpu

import "errors"

// Package-level errors.
var (
	// ErrNilDevice is returned when constructing a renderer without a device.
	ErrNilDevice = errors.New("psxgpu: device is nil")

	// ErrNilQueue is returned when constructing a renderer without a queue.
	ErrNilQueue = errors.New("psxgpu: queue is nil")

	// ErrInvalidConfig is returned when a DrawConfig fails validation.
	ErrInvalidConfig = errors.New("psxgpu: invalid draw config")

	// ErrUnsupportedResolution is returned when the requested VRAM size
	// times the internal upscaling factor exceeds the platform texture limit.
	ErrUnsupportedResolution = errors.New("psxgpu: resolution exceeds platform limits")

	// ErrRendererDestroyed is returned when operating on a destroyed renderer.
	ErrRendererDestroyed = errors.New("psxgpu: renderer has been destroyed")

	// ErrFrameTooComplex is reported when the primitive ordering counter
	// overflows. The frame is degraded: remaining primitives are dropped
	// until the next FinalizeFrame, but the renderer stays usable.
	ErrFrameTooComplex = errors.New("psxgpu: ordering counter overflow, frame too complex")

	// ErrBadVertexCount is returned when a push does not match the
	// primitive's vertex count.
	ErrBadVertexCount = errors.New("psxgpu: vertex count does not match primitive")

	// ErrUploadBounds is returned when a VRAM upload window falls outside
	// the VRAM image.
	ErrUploadBounds = errors.New("psxgpu: upload window out of VRAM bounds")

	// ErrUploadSize is returned when the pixel buffer length does not match
	// the upload window dimensions.
	ErrUploadSize = errors.New("psxgpu: pixel buffer does not match window size")

	// ErrCopyBounds is returned when a VRAM-to-VRAM copy falls outside the
	// VRAM image.
	ErrCopyBounds = errors.New("psxgpu: copy rectangle out of VRAM bounds")

	// ErrFillBounds is returned when a fill rectangle falls outside the
	// VRAM image.
	ErrFillBounds = errors.New("psxgpu: fill rectangle out of VRAM bounds")

	// ErrNilTarget is returned when a presentation blit is requested
	// without a target view.
	ErrNilTarget = errors.New("psxgpu: target view is nil")
)
