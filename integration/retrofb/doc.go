// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package retrofb presents a psxgpu renderer's display output inside
// gogpu GPU-accelerated windows.
//
// The renderer draws into its own VRAM images; this package reads the
// visible display area back and manages the upload into a window
// texture. The data flow is:
//
//	psxgpu.Renderer (draw) -> display readback (CPU) -> GPU Texture -> Window
//
// # Architecture
//
// Screen wraps a psxgpu.Renderer and manages the texture upload
// pipeline:
//
//   - Emulation pushes primitives through the renderer
//   - Flush() reads the display area back and stages it for upload
//   - Present() draws the staged frame into a gogpu window
//
// Hosts that own a hal surface directly should prefer
// Renderer.BlitToFramebuffer, which keeps the frame on the GPU. Screen
// exists for frontends built on gpucontext texture drawing, where the
// window compositor owns the surface.
//
// # Usage
//
//	screen, err := retrofb.New(app.GPUContextProvider(), renderer)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer screen.Close()
//
//	// per frame, after FinalizeFrame:
//	screen.MarkDirty()
//	screen.Present(dc.AsTextureDrawer())
//
// # Thread Safety
//
// Screen is NOT safe for concurrent use; call it from the goroutine
// that drives the renderer.
//
// # Integration Without Circular Imports
//
// This package uses gpucontext interfaces to avoid importing gogpu
// directly, so psxgpu can provide integration without creating
// circular dependencies.
package retrofb
