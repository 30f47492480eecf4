package psxgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// texelToRGBA expands a 16-bit VRAM halfword to RGBA8. Each 5-bit
// channel maps to c<<3 | c>>2, which rgbaToTexel inverts exactly, so
// uploads survive the round trip through the image bit-for-bit. Bit 15
// (the mask bit) lands in alpha.
func texelToRGBA(t uint16) [4]uint8 {
	r := uint8(t & 0x1f)
	g := uint8((t >> 5) & 0x1f)
	b := uint8((t >> 10) & 0x1f)
	var a uint8
	if t&0x8000 != 0 {
		a = 0xff
	}
	return [4]uint8{
		r<<3 | r>>2,
		g<<3 | g>>2,
		b<<3 | b>>2,
		a,
	}
}

// rgbaToTexel reconstructs the VRAM halfword from its RGBA8 encoding.
func rgbaToTexel(r, g, b, a uint8) uint16 {
	t := uint16(r>>3) | uint16(g>>3)<<5 | uint16(b>>3)<<10
	if a >= 0x80 {
		t |= 0x8000
	}
	return t
}

// vramStore owns the two VRAM images and the depth companion of the
// working image.
//
// The source image holds VRAM at native size and is what texture
// sampling reads. The working image is the render target, scaled by the
// internal upscaling factor. Draws that change texture source data are
// synchronized back from working to source with a blit.
type vramStore struct {
	device hal.Device
	queue  hal.Queue

	width, height uint32 // native VRAM size
	scale         uint32

	sourceTex  hal.Texture
	sourceView hal.TextureView

	workTex   hal.Texture
	workView  hal.TextureView
	depthTex  hal.Texture
	depthView hal.TextureView
}

func newVRAMStore(device hal.Device, queue hal.Queue, width, height, scale uint32) (*vramStore, error) {
	vs := &vramStore{
		device: device,
		queue:  queue,
		width:  width,
		height: height,
		scale:  scale,
	}
	if err := vs.createTextures(); err != nil {
		vs.destroy()
		return nil, err
	}
	return vs, nil
}

func (vs *vramStore) scaledWidth() uint32  { return vs.width * vs.scale }
func (vs *vramStore) scaledHeight() uint32 { return vs.height * vs.scale }

func (vs *vramStore) createTextures() error {
	sourceTex, err := vs.device.CreateTexture(&hal.TextureDescriptor{
		Label:         "psx_vram_source",
		Size:          hal.Extent3D{Width: vs.width, Height: vs.height, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        vramFormat,
		Usage: gputypes.TextureUsageTextureBinding |
			gputypes.TextureUsageCopyDst |
			gputypes.TextureUsageRenderAttachment,
	})
	if err != nil {
		return fmt.Errorf("create VRAM source texture: %w", err)
	}
	vs.sourceTex = sourceTex

	sourceView, err := vs.device.CreateTextureView(sourceTex, &hal.TextureViewDescriptor{
		Label: "psx_vram_source_view",
	})
	if err != nil {
		return fmt.Errorf("create VRAM source view: %w", err)
	}
	vs.sourceView = sourceView

	workTex, err := vs.device.CreateTexture(&hal.TextureDescriptor{
		Label:         "psx_vram_work",
		Size:          hal.Extent3D{Width: vs.scaledWidth(), Height: vs.scaledHeight(), DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        vramFormat,
		Usage: gputypes.TextureUsageTextureBinding |
			gputypes.TextureUsageCopySrc |
			gputypes.TextureUsageRenderAttachment,
	})
	if err != nil {
		return fmt.Errorf("create VRAM working texture: %w", err)
	}
	vs.workTex = workTex

	workView, err := vs.device.CreateTextureView(workTex, &hal.TextureViewDescriptor{
		Label: "psx_vram_work_view",
	})
	if err != nil {
		return fmt.Errorf("create VRAM working view: %w", err)
	}
	vs.workView = workView

	depthTex, err := vs.device.CreateTexture(&hal.TextureDescriptor{
		Label:         "psx_vram_depth",
		Size:          hal.Extent3D{Width: vs.scaledWidth(), Height: vs.scaledHeight(), DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        depthFormat,
		Usage:         gputypes.TextureUsageRenderAttachment,
	})
	if err != nil {
		return fmt.Errorf("create VRAM depth texture: %w", err)
	}
	vs.depthTex = depthTex

	depthView, err := vs.device.CreateTextureView(depthTex, &hal.TextureViewDescriptor{
		Label: "psx_vram_depth_view",
	})
	if err != nil {
		return fmt.Errorf("create VRAM depth view: %w", err)
	}
	vs.depthView = depthView

	return nil
}

// writeWindow uploads a rectangle of 16-bit VRAM halfwords into the
// source image. pixels is row-major, w*h entries. Bounds are the
// caller's responsibility.
func (vs *vramStore) writeWindow(x, y, w, h uint32, pixels []uint16) {
	data := make([]byte, len(pixels)*4)
	for i, t := range pixels {
		c := texelToRGBA(t)
		copy(data[i*4:], c[:])
	}
	vs.queue.WriteTexture(
		&hal.ImageCopyTexture{
			Texture:  vs.sourceTex,
			MipLevel: 0,
			Origin:   hal.Origin3D{X: x, Y: y, Z: 0},
		},
		data,
		&hal.ImageDataLayout{
			Offset:       0,
			BytesPerRow:  w * 4,
			RowsPerImage: h,
		},
		&hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
	)
}

func (vs *vramStore) destroy() {
	if vs.depthView != nil {
		vs.device.DestroyTextureView(vs.depthView)
		vs.depthView = nil
	}
	if vs.depthTex != nil {
		vs.device.DestroyTexture(vs.depthTex)
		vs.depthTex = nil
	}
	if vs.workView != nil {
		vs.device.DestroyTextureView(vs.workView)
		vs.workView = nil
	}
	if vs.workTex != nil {
		vs.device.DestroyTexture(vs.workTex)
		vs.workTex = nil
	}
	if vs.sourceView != nil {
		vs.device.DestroyTextureView(vs.sourceView)
		vs.sourceView = nil
	}
	if vs.sourceTex != nil {
		vs.device.DestroyTexture(vs.sourceTex)
		vs.sourceTex = nil
	}
}
