package psxgpu

import (
	"encoding/binary"
	"fmt"
	"image"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	xdraw "golang.org/x/image/draw"
)

// outputQuad covers the presentation surface. fb_coord counts pixels
// from the display origin; the shader adds the origin from the output
// uniforms.
func outputQuad(res Extent) []OutputVertex {
	w, h := uint16(res.Width), uint16(res.Height)
	return []OutputVertex{
		{Position: [2]float32{-1, 1}, FBCoord: [2]uint16{0, 0}},
		{Position: [2]float32{1, 1}, FBCoord: [2]uint16{w, 0}},
		{Position: [2]float32{-1, -1}, FBCoord: [2]uint16{0, h}},
		{Position: [2]float32{1, 1}, FBCoord: [2]uint16{w, 0}},
		{Position: [2]float32{1, -1}, FBCoord: [2]uint16{w, h}},
		{Position: [2]float32{-1, -1}, FBCoord: [2]uint16{0, h}},
	}
}

// BlitToFramebuffer renders the visible display area onto a
// host-provided color target, stretching to fill it. Queued primitives
// are drawn first so the present observes the full frame. The target
// view must match format.
func (r *Renderer) BlitToFramebuffer(target hal.TextureView, format gputypes.TextureFormat) error {
	if r.destroyed {
		return ErrRendererDestroyed
	}
	if target == nil {
		return ErrNilTarget
	}
	if err := r.flush(); err != nil {
		return err
	}

	pipeline, err := r.pipelines.outputPipeline(format)
	if err != nil {
		return err
	}

	u := outputUniforms{
		origin:    [2]uint32{uint32(r.displayStart.X), uint32(r.displayStart.Y)},
		upscaling: r.config.InternalUpscaling,
	}
	if r.display24bpp {
		u.depth24 = 1
	}

	uniformBuf, err := r.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "psx_output_uniforms",
		Size:  outputUniformsSize,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create output uniform buffer: %w", err)
	}
	defer r.device.DestroyBuffer(uniformBuf)
	r.queue.WriteBuffer(uniformBuf, 0, u.encode())

	bindGroup, err := r.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "psx_output_bind",
		Layout: r.pipelines.bindLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{
				Buffer: uniformBuf.NativeHandle(), Offset: 0, Size: outputUniformsSize,
			}},
			{Binding: 1, Resource: gputypes.TextureViewBinding{
				TextureView: r.vram.workView.NativeHandle(),
			}},
			{Binding: 2, Resource: gputypes.SamplerBinding{
				Sampler: r.pipelines.sampler.NativeHandle(),
			}},
		},
	})
	if err != nil {
		return fmt.Errorf("create output bind group: %w", err)
	}
	defer r.device.DestroyBindGroup(bindGroup)

	if err := r.output.push(outputQuad(r.displayRes), nil); err != nil {
		return err
	}
	desc := &hal.RenderPassDescriptor{
		Label: "psx_output_pass",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       target,
			LoadOp:     gputypes.LoadOpClear,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: gputypes.Color{R: 0, G: 0, B: 0, A: 1},
		}},
	}
	var drawErr error
	err = encodePass(r.device, r.queue, "psx_output", desc, func(rp hal.RenderPassEncoder) {
		rp.SetPipeline(pipeline)
		rp.SetBindGroup(0, bindGroup, nil)
		drawErr = r.output.draw(func(buf hal.Buffer, count uint32) error {
			rp.SetVertexBuffer(0, buf, 0)
			rp.Draw(count, 1, 0, 0)
			r.stats.DrawCalls++
			return nil
		})
	})
	if err != nil {
		return err
	}
	return drawErr
}

// DisplayPixels reads the visible display area back into CPU memory at
// the native display resolution. Intended for software presentation
// and tests; it stalls on the GPU.
func (r *Renderer) DisplayPixels() (*image.RGBA, error) {
	if r.destroyed {
		return nil, ErrRendererDestroyed
	}
	if err := r.flush(); err != nil {
		return nil, err
	}

	if r.display24bpp {
		return r.displayPixels24()
	}
	return r.displayPixels16()
}

// displayPixels16 reads the scaled display rectangle and resamples it
// to native resolution.
func (r *Renderer) displayPixels16() (*image.RGBA, error) {
	scale := r.config.InternalUpscaling
	w := clampSpan(uint32(r.displayStart.X), uint32(r.displayRes.Width), r.config.VRAMWidth)
	h := clampSpan(uint32(r.displayStart.Y), uint32(r.displayRes.Height), r.config.VRAMHeight)
	if w == 0 || h == 0 {
		return image.NewRGBA(image.Rect(0, 0, 0, 0)), nil
	}

	data, err := readbackTexture(r.device, r.queue, r.vram.workTex,
		uint32(r.displayStart.X)*scale, uint32(r.displayStart.Y)*scale, w*scale, h*scale)
	if err != nil {
		return nil, err
	}

	scaled := &image.RGBA{
		Pix:    data,
		Stride: int(w*scale) * 4,
		Rect:   image.Rect(0, 0, int(w*scale), int(h*scale)),
	}
	forceOpaque(scaled.Pix)
	if scale == 1 {
		return scaled, nil
	}

	out := image.NewRGBA(image.Rect(0, 0, int(w), int(h)))
	xdraw.NearestNeighbor.Scale(out, out.Bounds(), scaled, scaled.Bounds(), xdraw.Src, nil)
	return out, nil
}

// displayPixels24 reads the halfword span covering the 24bpp display
// rows and unpacks the byte-packed RGB triplets on the CPU. The
// readback subsamples the working image at native texel centers, so
// upscaled rendering cannot corrupt the raw halfwords.
func (r *Renderer) displayPixels24() (*image.RGBA, error) {
	scale := r.config.InternalUpscaling
	wPix := uint32(r.displayRes.Width)
	halfwords := (wPix*3 + 1) / 2
	hw := clampSpan(uint32(r.displayStart.X), halfwords, r.config.VRAMWidth)
	h := clampSpan(uint32(r.displayStart.Y), uint32(r.displayRes.Height), r.config.VRAMHeight)
	if hw == 0 || h == 0 {
		return image.NewRGBA(image.Rect(0, 0, 0, 0)), nil
	}

	data, err := readbackTexture(r.device, r.queue, r.vram.workTex,
		uint32(r.displayStart.X)*scale, uint32(r.displayStart.Y)*scale, hw*scale, h*scale)
	if err != nil {
		return nil, err
	}

	stride := int(hw*scale) * 4
	row := make([]byte, hw*2)
	out := image.NewRGBA(image.Rect(0, 0, int(wPix), int(h)))
	for y := uint32(0); y < h; y++ {
		src := data[int(y*scale)*stride:]
		for x := uint32(0); x < hw; x++ {
			p := src[int(x*scale)*4:]
			t := rgbaToTexel(p[0], p[1], p[2], p[3])
			binary.LittleEndian.PutUint16(row[x*2:], t)
		}
		for x := uint32(0); x < wPix; x++ {
			b := x * 3
			if b+2 >= hw*2 {
				break
			}
			o := out.PixOffset(int(x), int(y))
			out.Pix[o+0] = row[b]
			out.Pix[o+1] = row[b+1]
			out.Pix[o+2] = row[b+2]
			out.Pix[o+3] = 0xFF
		}
	}
	return out, nil
}

// clampSpan limits start+span to bound and returns the usable span.
func clampSpan(start, span, bound uint32) uint32 {
	if start >= bound {
		return 0
	}
	if start+span > bound {
		return bound - start
	}
	return span
}

// forceOpaque overwrites the alpha channel of RGBA pixel data. VRAM
// alpha stores the mask bit, not coverage.
func forceOpaque(pix []byte) {
	for i := 3; i < len(pix); i += 4 {
		pix[i] = 0xFF
	}
}
