// Package psxgpu renders PlayStation-class GPU command streams on
// modern graphics hardware through the GoGPU hal.
//
// # Overview
//
// The renderer core consumes decoded primitive commands (triangles,
// lines, fills) and VRAM transfers, batches them into as few draw
// calls as possible, and maintains two images of the console's video
// memory: a native-resolution source image that texture sampling reads
// from, and a working image at a configurable internal upscaling that
// rendering writes to.
//
// Opaque primitives draw in large batches; a depth test over a
// monotonically increasing ordering index keeps their overlap order
// exact regardless of batching. Semi-transparent primitives defer to
// the end of each batch flush and blend against settled opaque pixels,
// grouped by topology and blend equation.
//
// # Quick Start
//
//	import "github.com/gogpu/psxgpu"
//
//	r, err := psxgpu.New(device, queue, psxgpu.DefaultDrawConfig())
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer r.Destroy()
//
//	r.PushTriangle(verts, psxgpu.SemiTransparencyAverage)
//	r.FinalizeFrame()
//	r.BlitToFramebuffer(surfaceView, surfaceFormat)
//
// The renderer never owns the device or queue; hosts embed it into a
// larger frontend that handles presentation and input. All methods
// must be called from a single goroutine.
package psxgpu
