package psxgpu

import (
	"fmt"
	"math"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// maxOrderingIndex is the largest primitive ordering index a frame can
// reach; the next opaque commit overflows and degrades the frame.
const maxOrderingIndex = math.MaxInt16

// weight classes for the shared draw uniform buffers. All blend kinds
// whose shader alpha is 1.0 share one buffer; Average and
// AddQuarterSource carry their own weights.
const (
	weightFull = iota
	weightHalf
	weightQuarter
	weightClassCount
)

func weightClass(k blendKind) int {
	switch k {
	case blendAverage:
		return weightHalf
	case blendAddQuarter:
		return weightQuarter
	default:
		return weightFull
	}
}

func weightValue(class int) float32 {
	switch class {
	case weightHalf:
		return 0.5
	case weightQuarter:
		return 0.25
	default:
		return 1.0
	}
}

// semiBatch is a run of deferred semi-transparent primitives sharing
// one topology and blend mode. Batches are drawn in submission order
// after the opaque batch of the same flush.
type semiBatch struct {
	topology gputypes.PrimitiveTopology
	mode     SemiTransparencyMode
	vertices []CommandVertex
}

// Renderer is the draw-command renderer core. It consumes decoded
// primitive commands and VRAM transfers, batches them into hal draw
// calls against the working VRAM image, and serves the display output.
//
// All methods must be called from a single goroutine; submission is
// synchronous (fence-waited) so no work outlives the call that issued
// it.
type Renderer struct {
	device hal.Device
	queue  hal.Queue

	config  DrawConfig
	pending *DrawConfig
	source  VariableSource
	opts    variables

	pipelines *pipelineCache
	vram      *vramStore

	triangles *drawBuffer[CommandVertex]
	lines     *drawBuffer[CommandVertex]
	quads     *drawBuffer[ImageLoadVertex]
	output    *drawBuffer[OutputVertex]
	semi      []semiBatch

	uniformBufs [weightClassCount]hal.Buffer
	bindGroups  [weightClassCount]hal.BindGroup

	// render target state selected by BindFramebuffer
	targetColor hal.TextureView
	targetDepth hal.TextureView

	drawOffset   [2]int16
	drawAreaMin  Point
	drawAreaMax  Point
	clipMin      [2]uint32
	clipMax      [2]uint32
	displayStart Point
	displayRes   Extent
	display24bpp bool

	ordering   int16
	depthClear bool
	degraded   bool
	stats      FrameStats

	destroyed bool
}

// New builds a renderer on a host-provided device and queue. The
// renderer never owns the device. On error every partially created
// resource is released.
func New(device hal.Device, queue hal.Queue, config DrawConfig) (*Renderer, error) {
	if device == nil {
		return nil, ErrNilDevice
	}
	if queue == nil {
		return nil, ErrNilQueue
	}
	if err := config.validate(); err != nil {
		return nil, err
	}

	r := &Renderer{
		device: device,
		queue:  queue,
		config: config,
		opts: variables{
			upscaling:  config.InternalUpscaling,
			colorDepth: config.InternalColorDepth,
		},
		drawAreaMax: Point{
			X: uint16(config.VRAMWidth - 1),
			Y: uint16(config.VRAMHeight - 1),
		},
		displayRes: Extent{Width: 640, Height: 480},
		depthClear: true,
	}

	pipelines, err := newPipelineCache(device)
	if err != nil {
		return nil, fmt.Errorf("build pipelines: %w", err)
	}
	r.pipelines = pipelines

	vram, err := newVRAMStore(device, queue, config.VRAMWidth, config.VRAMHeight, config.InternalUpscaling)
	if err != nil {
		r.Destroy()
		return nil, fmt.Errorf("build VRAM store: %w", err)
	}
	r.vram = vram

	r.triangles, err = newDrawBuffer[CommandVertex](device, queue, "psx_triangles",
		defaultVertexBufferLen, gputypes.PrimitiveTopologyTriangleList, evictFIFO)
	if err != nil {
		r.Destroy()
		return nil, err
	}
	r.lines, err = newDrawBuffer[CommandVertex](device, queue, "psx_lines",
		defaultVertexBufferLen, gputypes.PrimitiveTopologyLineList, evictFIFO)
	if err != nil {
		r.Destroy()
		return nil, err
	}
	r.quads, err = newDrawBuffer[ImageLoadVertex](device, queue, "psx_quads",
		6, gputypes.PrimitiveTopologyTriangleList, evictReplaceFromStart)
	if err != nil {
		r.Destroy()
		return nil, err
	}
	r.output, err = newDrawBuffer[OutputVertex](device, queue, "psx_output",
		6, gputypes.PrimitiveTopologyTriangleList, evictReplaceFromStart)
	if err != nil {
		r.Destroy()
		return nil, err
	}

	for i := range r.uniformBufs {
		buf, err := device.CreateBuffer(&hal.BufferDescriptor{
			Label: "psx_draw_uniforms",
			Size:  drawUniformsSize,
			Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
		})
		if err != nil {
			r.Destroy()
			return nil, fmt.Errorf("create draw uniform buffer: %w", err)
		}
		r.uniformBufs[i] = buf
	}

	r.BindFramebuffer()
	r.ApplyScissor()
	return r, nil
}

// SetVariableSource installs the frontend option source polled by
// RefreshVariables and applies its current values to the non-resource
// options.
func (r *Renderer) SetVariableSource(src VariableSource) {
	r.source = src
	if src != nil {
		r.opts = readVariables(src, r.opts)
	}
}

// Config returns the active configuration. A deferred reconfiguration
// is not reflected until the next FinalizeFrame.
func (r *Renderer) Config() DrawConfig { return r.config }

// Stats returns the counters accumulated since the last FinalizeFrame.
func (r *Renderer) Stats() FrameStats { return r.stats }

// Degraded reports whether the current frame overflowed the ordering
// index and is dropping primitives until FinalizeFrame.
func (r *Renderer) Degraded() bool { return r.degraded }

// BindFramebuffer selects the working VRAM image and its depth
// companion as the target of subsequent command draws. Called on
// construction and after every reallocation.
func (r *Renderer) BindFramebuffer() {
	r.targetColor = r.vram.workView
	r.targetDepth = r.vram.depthView
}

// ApplyScissor recomputes the draw-area clip from the configured draw
// area, clamped to VRAM. The clip reaches the fragment stage through
// the draw uniforms, in native VRAM units, so it survives upscaling
// changes untouched.
func (r *Renderer) ApplyScissor() {
	r.clipMin = [2]uint32{uint32(r.drawAreaMin.X), uint32(r.drawAreaMin.Y)}
	maxX := uint32(r.drawAreaMax.X)
	maxY := uint32(r.drawAreaMax.Y)
	if maxX >= r.config.VRAMWidth {
		maxX = r.config.VRAMWidth - 1
	}
	if maxY >= r.config.VRAMHeight {
		maxY = r.config.VRAMHeight - 1
	}
	r.clipMax = [2]uint32{maxX, maxY}
}

// SetDrawOffset sets the vertex offset added to every primitive
// position. Pending primitives are drawn under the old offset first.
func (r *Renderer) SetDrawOffset(x, y int16) error {
	if r.destroyed {
		return ErrRendererDestroyed
	}
	if r.drawOffset == [2]int16{x, y} {
		return nil
	}
	if err := r.flush(); err != nil {
		return err
	}
	r.drawOffset = [2]int16{x, y}
	return nil
}

// SetDrawArea sets the inclusive draw-area rectangle. Pending
// primitives are drawn under the old area first.
func (r *Renderer) SetDrawArea(topLeft, bottomRight Point) error {
	if r.destroyed {
		return ErrRendererDestroyed
	}
	if r.drawAreaMin == topLeft && r.drawAreaMax == bottomRight {
		return nil
	}
	if err := r.flush(); err != nil {
		return err
	}
	r.drawAreaMin = topLeft
	r.drawAreaMax = bottomRight
	r.ApplyScissor()
	return nil
}

// SetDisplayMode sets the display area origin, resolution, and color
// depth used by the output path. Pending primitives are drawn under
// the old display state first.
func (r *Renderer) SetDisplayMode(start Point, res Extent, depth24bpp bool) error {
	if r.destroyed {
		return ErrRendererDestroyed
	}
	if r.displayStart == start && r.displayRes == res && r.display24bpp == depth24bpp {
		return nil
	}
	if err := r.flush(); err != nil {
		return err
	}
	r.displayStart = start
	r.displayRes = res
	r.display24bpp = depth24bpp
	return nil
}

// nextOrdering consumes one opaque ordering index. On overflow the
// frame degrades: the primitive is dropped and ErrFrameTooComplex
// returned; subsequent pushes drop silently until FinalizeFrame.
func (r *Renderer) nextOrdering() (int16, error) {
	if r.ordering == maxOrderingIndex {
		if !r.degraded {
			r.degraded = true
			slogger().Warn("frame ordering overflow, degrading frame")
		}
		r.stats.DroppedPrimitives++
		return 0, ErrFrameTooComplex
	}
	r.ordering++
	return r.ordering, nil
}

// PushTriangle queues one triangle. Opaque triangles advance the
// ordering index; semi-transparent ones stamp the current index and
// defer to the flush boundary so blending reads settled opaque pixels.
func (r *Renderer) PushTriangle(verts [3]Vertex, mode SemiTransparencyMode) error {
	if r.destroyed {
		return ErrRendererDestroyed
	}
	if r.degraded {
		r.stats.DroppedPrimitives++
		return nil
	}

	semiTransparent := verts[0].SemiTransparent
	index := r.ordering
	if !semiTransparent {
		var err error
		index, err = r.nextOrdering()
		if err != nil {
			return err
		}
	}

	var cv [3]CommandVertex
	for i, v := range verts {
		cv[i] = BuildCommandVertex(v)
		cv[i].Position[2] = index
	}

	if r.opts.wireframe && !semiTransparent {
		return r.pushWireframe(cv)
	}

	if semiTransparent {
		r.deferSemi(gputypes.PrimitiveTopologyTriangleList, mode, cv[:])
		r.stats.SemiTransparentPrimitives++
		return nil
	}

	if r.triangles.remaining() < len(cv) {
		if err := r.flush(); err != nil {
			return err
		}
	}
	if err := r.triangles.push(cv[:], nil); err != nil {
		return err
	}
	r.stats.OpaquePrimitives++
	return nil
}

// pushWireframe lowers an opaque triangle to its three edges in the
// line buffer.
func (r *Renderer) pushWireframe(cv [3]CommandVertex) error {
	edges := []CommandVertex{cv[0], cv[1], cv[1], cv[2], cv[2], cv[0]}
	if r.lines.remaining() < len(edges) {
		if err := r.flush(); err != nil {
			return err
		}
	}
	if err := r.lines.push(edges, nil); err != nil {
		return err
	}
	r.stats.OpaquePrimitives++
	return nil
}

// PushLine queues one line segment.
func (r *Renderer) PushLine(verts [2]Vertex, mode SemiTransparencyMode) error {
	if r.destroyed {
		return ErrRendererDestroyed
	}
	if r.degraded {
		r.stats.DroppedPrimitives++
		return nil
	}

	semiTransparent := verts[0].SemiTransparent
	index := r.ordering
	if !semiTransparent {
		var err error
		index, err = r.nextOrdering()
		if err != nil {
			return err
		}
	}

	var cv [2]CommandVertex
	for i, v := range verts {
		cv[i] = BuildCommandVertex(v)
		cv[i].Position[2] = index
	}

	if semiTransparent {
		r.deferSemi(gputypes.PrimitiveTopologyLineList, mode, cv[:])
		r.stats.SemiTransparentPrimitives++
		return nil
	}

	if r.lines.remaining() < len(cv) {
		if err := r.flush(); err != nil {
			return err
		}
	}
	if err := r.lines.push(cv[:], nil); err != nil {
		return err
	}
	r.stats.OpaquePrimitives++
	return nil
}

// deferSemi appends vertices to the deferred semi-transparent list,
// extending the tail batch when topology and mode match.
func (r *Renderer) deferSemi(topology gputypes.PrimitiveTopology, mode SemiTransparencyMode, verts []CommandVertex) {
	if n := len(r.semi); n > 0 {
		tail := &r.semi[n-1]
		if tail.topology == topology && tail.mode == mode {
			tail.vertices = append(tail.vertices, verts...)
			return
		}
	}
	r.semi = append(r.semi, semiBatch{
		topology: topology,
		mode:     mode,
		vertices: append([]CommandVertex(nil), verts...),
	})
}

// writeDrawUniforms rewrites the three weight-class uniform buffers for
// the current draw state.
func (r *Renderer) writeDrawUniforms(offset [2]int32, clipMin, clipMax [2]uint32) {
	for class, buf := range r.uniformBufs {
		u := drawUniforms{
			offset:      offset,
			vramSize:    [2]uint32{r.config.VRAMWidth, r.config.VRAMHeight},
			areaMin:     clipMin,
			areaMax:     clipMax,
			upscaling:   r.config.InternalUpscaling,
			colorDepth:  uint32(r.opts.colorDepth),
			blendWeight: weightValue(class),
		}
		if r.opts.dither {
			u.dither = 1
		}
		r.queue.WriteBuffer(buf, 0, u.encode())
	}
}

// ensureBindGroups builds the per-weight-class bind groups against the
// current VRAM source view. Reallocation invalidates them.
func (r *Renderer) ensureBindGroups() error {
	if r.bindGroups[0] != nil {
		return nil
	}
	for class := range r.bindGroups {
		bg, err := r.device.CreateBindGroup(&hal.BindGroupDescriptor{
			Label:  "psx_draw_bind",
			Layout: r.pipelines.bindLayout,
			Entries: []gputypes.BindGroupEntry{
				{Binding: 0, Resource: gputypes.BufferBinding{
					Buffer: r.uniformBufs[class].NativeHandle(), Offset: 0, Size: drawUniformsSize,
				}},
				{Binding: 1, Resource: gputypes.TextureViewBinding{
					TextureView: r.vram.sourceView.NativeHandle(),
				}},
				{Binding: 2, Resource: gputypes.SamplerBinding{
					Sampler: r.pipelines.sampler.NativeHandle(),
				}},
			},
		})
		if err != nil {
			r.dropBindGroups()
			return fmt.Errorf("create draw bind group: %w", err)
		}
		r.bindGroups[class] = bg
	}
	return nil
}

func (r *Renderer) dropBindGroups() {
	for i, bg := range r.bindGroups {
		if bg != nil {
			r.device.DestroyBindGroup(bg)
			r.bindGroups[i] = nil
		}
	}
}

// commandPassDescriptor builds the render pass targeting the working
// image, clearing depth exactly once per frame.
func (r *Renderer) commandPassDescriptor(label string) *hal.RenderPassDescriptor {
	depthLoad := gputypes.LoadOpLoad
	if r.depthClear {
		depthLoad = gputypes.LoadOpClear
	}
	return &hal.RenderPassDescriptor{
		Label: label,
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:    r.targetColor,
			LoadOp:  gputypes.LoadOpLoad,
			StoreOp: gputypes.StoreOpStore,
		}},
		DepthStencilAttachment: &hal.RenderPassDepthStencilAttachment{
			View:              r.targetDepth,
			DepthLoadOp:       depthLoad,
			DepthStoreOp:      gputypes.StoreOpStore,
			DepthClearValue:   0.0,
			StencilLoadOp:     depthLoad,
			StencilStoreOp:    gputypes.StoreOpDiscard,
			StencilClearValue: 0,
		},
	}
}

// flush draws everything queued: the opaque batches first, then each
// deferred semi-transparent batch in submission order. The depth test
// keeps inter-batch ordering exact regardless of draw order.
func (r *Renderer) flush() error {
	if r.triangles.len() == 0 && r.lines.len() == 0 && len(r.semi) == 0 {
		return nil
	}

	offset := [2]int32{int32(r.drawOffset[0]), int32(r.drawOffset[1])}
	r.writeDrawUniforms(offset, r.clipMin, r.clipMax)
	if err := r.ensureBindGroups(); err != nil {
		return err
	}

	if r.triangles.len() > 0 || r.lines.len() > 0 {
		triPipeline, err := r.pipelines.commandPipeline(gputypes.PrimitiveTopologyTriangleList, blendOpaque)
		if err != nil {
			return err
		}
		linePipeline, err := r.pipelines.commandPipeline(gputypes.PrimitiveTopologyLineList, blendOpaque)
		if err != nil {
			return err
		}

		var drawErr error
		err = encodePass(r.device, r.queue, "psx_opaque", r.commandPassDescriptor("psx_opaque_pass"),
			func(rp hal.RenderPassEncoder) {
				submit := func(buf hal.Buffer, n uint32) error {
					rp.SetVertexBuffer(0, buf, 0)
					rp.Draw(n, 1, 0, 0)
					r.stats.DrawCalls++
					return nil
				}
				if r.triangles.len() > 0 {
					rp.SetPipeline(triPipeline)
					rp.SetBindGroup(0, r.bindGroups[weightFull], nil)
					drawErr = r.triangles.draw(submit)
				}
				if drawErr == nil && r.lines.len() > 0 {
					rp.SetPipeline(linePipeline)
					rp.SetBindGroup(0, r.bindGroups[weightFull], nil)
					drawErr = r.lines.draw(submit)
				}
			})
		if err != nil {
			return err
		}
		if drawErr != nil {
			return drawErr
		}
		r.depthClear = false
	}

	for _, batch := range r.semi {
		if err := r.drawSemiBatch(batch); err != nil {
			return err
		}
	}
	r.semi = r.semi[:0]
	return nil
}

// drawSemiBatch draws one deferred batch, chunked to the vertex buffer
// capacity. Each chunk is its own synchronous pass so the shared
// vertex buffer can be rewritten safely between chunks.
func (r *Renderer) drawSemiBatch(batch semiBatch) error {
	kind := blendKindFor(true, batch.mode)
	pipeline, err := r.pipelines.commandPipeline(batch.topology, kind)
	if err != nil {
		return err
	}
	bindGroup := r.bindGroups[weightClass(kind)]

	buffer := r.triangles
	primStride := 3
	if batch.topology == gputypes.PrimitiveTopologyLineList {
		buffer = r.lines
		primStride = 2
	}
	chunkMax := (buffer.capacity / primStride) * primStride

	verts := batch.vertices
	for len(verts) > 0 {
		n := len(verts)
		if n > chunkMax {
			n = chunkMax
		}
		if err := buffer.push(verts[:n], nil); err != nil {
			return err
		}
		var drawErr error
		err := encodePass(r.device, r.queue, "psx_semi", r.commandPassDescriptor("psx_semi_pass"),
			func(rp hal.RenderPassEncoder) {
				rp.SetPipeline(pipeline)
				rp.SetBindGroup(0, bindGroup, nil)
				drawErr = buffer.draw(func(buf hal.Buffer, count uint32) error {
					rp.SetVertexBuffer(0, buf, 0)
					rp.Draw(count, 1, 0, 0)
					r.stats.DrawCalls++
					return nil
				})
			})
		if err != nil {
			return err
		}
		if drawErr != nil {
			return drawErr
		}
		r.depthClear = false
		verts = verts[n:]
	}
	return nil
}

// FillRect fills a VRAM rectangle with a solid color. Fills ignore the
// draw offset and draw area, matching console fill semantics, and
// consume one ordering index.
func (r *Renderer) FillRect(topLeft Point, size Extent, color Color) error {
	if r.destroyed {
		return ErrRendererDestroyed
	}
	if size.Width == 0 || size.Height == 0 {
		return nil
	}
	if uint32(topLeft.X)+uint32(size.Width) > r.config.VRAMWidth ||
		uint32(topLeft.Y)+uint32(size.Height) > r.config.VRAMHeight {
		return fmt.Errorf("%w: %dx%d at (%d,%d)", ErrFillBounds, size.Width, size.Height, topLeft.X, topLeft.Y)
	}
	if err := r.flush(); err != nil {
		return err
	}
	index, err := r.nextOrdering()
	if err != nil {
		return err
	}

	x0, y0 := int16(topLeft.X), int16(topLeft.Y)
	x1 := int16(topLeft.X) + int16(size.Width)
	y1 := int16(topLeft.Y) + int16(size.Height)
	corner := func(x, y int16) CommandVertex {
		return CommandVertex{
			Position: [3]int16{x, y, index},
			Color:    [3]uint8{color.R, color.G, color.B},
		}
	}
	quad := []CommandVertex{
		corner(x0, y0), corner(x1, y0), corner(x0, y1),
		corner(x1, y0), corner(x1, y1), corner(x0, y1),
	}

	// Fill bypasses offset and clip: uniform offset zero, clip whole VRAM.
	r.writeDrawUniforms([2]int32{0, 0},
		[2]uint32{0, 0},
		[2]uint32{r.config.VRAMWidth - 1, r.config.VRAMHeight - 1})
	if err := r.ensureBindGroups(); err != nil {
		return err
	}
	pipeline, err := r.pipelines.commandPipeline(gputypes.PrimitiveTopologyTriangleList, blendOpaque)
	if err != nil {
		return err
	}
	if err := r.triangles.push(quad, nil); err != nil {
		return err
	}

	var drawErr error
	err = encodePass(r.device, r.queue, "psx_fill", r.commandPassDescriptor("psx_fill_pass"),
		func(rp hal.RenderPassEncoder) {
			rp.SetPipeline(pipeline)
			rp.SetBindGroup(0, r.bindGroups[weightFull], nil)
			drawErr = r.triangles.draw(func(buf hal.Buffer, count uint32) error {
				rp.SetVertexBuffer(0, buf, 0)
				rp.Draw(count, 1, 0, 0)
				r.stats.DrawCalls++
				return nil
			})
		})
	if err != nil {
		return err
	}
	if drawErr != nil {
		return drawErr
	}
	r.depthClear = false
	return nil
}

// quadVertices builds the two image-load triangles covering a VRAM
// rectangle.
func quadVertices(topLeft Point, size Extent) []ImageLoadVertex {
	x0, y0 := topLeft.X, topLeft.Y
	x1 := topLeft.X + size.Width
	y1 := topLeft.Y + size.Height
	return []ImageLoadVertex{
		{Position: [2]uint16{x0, y0}},
		{Position: [2]uint16{x1, y0}},
		{Position: [2]uint16{x0, y1}},
		{Position: [2]uint16{x1, y0}},
		{Position: [2]uint16{x1, y1}},
		{Position: [2]uint16{x0, y1}},
	}
}

// runLoadPass draws an image-load quad into the working image, sampling
// the VRAM source image shifted by srcOffset, stamping depth from the
// ordering index.
func (r *Renderer) runLoadPass(label string, topLeft Point, size Extent, srcOffset [2]int32, index int16) error {
	u := loadUniforms{
		vramSize:  [2]uint32{r.config.VRAMWidth, r.config.VRAMHeight},
		srcOffset: srcOffset,
		depth:     float32(index) / 32768.0,
	}
	return r.runQuadPass(label, u.encode(), r.vram.sourceView, quadVertices(topLeft, size),
		r.pipelines.imageLoad, r.commandPassDescriptor(label))
}

// runQuadPass runs one quad draw with a transient uniform buffer and
// bind group sampling srcView.
func (r *Renderer) runQuadPass(label string, uniforms []byte, srcView hal.TextureView,
	verts []ImageLoadVertex, pipeline hal.RenderPipeline, desc *hal.RenderPassDescriptor) error {
	uniformBuf, err := r.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label + "_uniforms",
		Size:  uint64(len(uniforms)),
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create %s uniform buffer: %w", label, err)
	}
	defer r.device.DestroyBuffer(uniformBuf)
	r.queue.WriteBuffer(uniformBuf, 0, uniforms)

	bindGroup, err := r.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  label + "_bind",
		Layout: r.pipelines.bindLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{
				Buffer: uniformBuf.NativeHandle(), Offset: 0, Size: uint64(len(uniforms)),
			}},
			{Binding: 1, Resource: gputypes.TextureViewBinding{
				TextureView: srcView.NativeHandle(),
			}},
			{Binding: 2, Resource: gputypes.SamplerBinding{
				Sampler: r.pipelines.sampler.NativeHandle(),
			}},
		},
	})
	if err != nil {
		return fmt.Errorf("create %s bind group: %w", label, err)
	}
	defer r.device.DestroyBindGroup(bindGroup)

	if err := r.quads.push(verts, nil); err != nil {
		return err
	}
	var drawErr error
	err = encodePass(r.device, r.queue, label, desc, func(rp hal.RenderPassEncoder) {
		rp.SetPipeline(pipeline)
		rp.SetBindGroup(0, bindGroup, nil)
		drawErr = r.quads.draw(func(buf hal.Buffer, count uint32) error {
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

// UploadVRAMWindow stores a rectangle of 16-bit VRAM pixels. The data
// lands in the source image for texture sampling and is replicated
// into the working image as an ordered quad, so a later overlapping
// draw wins and an earlier one loses.
func (r *Renderer) UploadVRAMWindow(topLeft Point, size Extent, pixels []uint16) error {
	if r.destroyed {
		return ErrRendererDestroyed
	}
	w, h := uint32(size.Width), uint32(size.Height)
	if w == 0 || h == 0 ||
		uint32(topLeft.X)+w > r.config.VRAMWidth ||
		uint32(topLeft.Y)+h > r.config.VRAMHeight {
		return fmt.Errorf("%w: %dx%d at (%d,%d)", ErrUploadBounds, size.Width, size.Height, topLeft.X, topLeft.Y)
	}
	if uint64(len(pixels)) != uint64(w)*uint64(h) {
		return fmt.Errorf("%w: got %d pixels, want %d", ErrUploadSize, len(pixels), uint64(w)*uint64(h))
	}

	// Draws queued before the upload must not sample the new data.
	if err := r.flush(); err != nil {
		return err
	}
	index, err := r.nextOrdering()
	if err != nil {
		return err
	}

	r.vram.writeWindow(uint32(topLeft.X), uint32(topLeft.Y), w, h, pixels)
	if err := r.runLoadPass("psx_upload", topLeft, size, [2]int32{0, 0}, index); err != nil {
		return err
	}
	r.depthClear = false
	return nil
}

// syncRegion blits a working-image rectangle back into the source image
// at native resolution, making rendered pixels visible to texture
// sampling.
func (r *Renderer) syncRegion(topLeft Point, size Extent) error {
	u := blitUniforms{
		dstSize:  [2]uint32{r.config.VRAMWidth, r.config.VRAMHeight},
		srcScale: float32(r.config.InternalUpscaling),
	}
	desc := &hal.RenderPassDescriptor{
		Label: "psx_sync_pass",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:    r.vram.sourceView,
			LoadOp:  gputypes.LoadOpLoad,
			StoreOp: gputypes.StoreOpStore,
		}},
	}
	return r.runQuadPass("psx_sync", u.encode(), r.vram.workView, quadVertices(topLeft, size),
		r.pipelines.blit, desc)
}

// CopyRect copies a VRAM rectangle. The source region is synchronized
// from the working image first so the copy observes rendered pixels;
// the copy itself is an ordered quad in the working image.
func (r *Renderer) CopyRect(src, dst Point, size Extent) error {
	if r.destroyed {
		return ErrRendererDestroyed
	}
	w, h := uint32(size.Width), uint32(size.Height)
	if w == 0 || h == 0 ||
		uint32(src.X)+w > r.config.VRAMWidth || uint32(src.Y)+h > r.config.VRAMHeight ||
		uint32(dst.X)+w > r.config.VRAMWidth || uint32(dst.Y)+h > r.config.VRAMHeight {
		return fmt.Errorf("%w: %dx%d from (%d,%d) to (%d,%d)",
			ErrCopyBounds, size.Width, size.Height, src.X, src.Y, dst.X, dst.Y)
	}

	if err := r.flush(); err != nil {
		return err
	}
	index, err := r.nextOrdering()
	if err != nil {
		return err
	}

	if err := r.syncRegion(src, size); err != nil {
		return err
	}
	srcOffset := [2]int32{int32(src.X) - int32(dst.X), int32(src.Y) - int32(dst.Y)}
	if err := r.runLoadPass("psx_copy", dst, size, srcOffset, index); err != nil {
		return err
	}
	r.depthClear = false

	// Keep the source image coherent for texture sampling from the
	// copied-to region.
	return r.syncRegion(dst, size)
}

// PrepareRender begins a frame. The source image is synchronized from
// the working image so texture sampling observes a settled VRAM
// snapshot, and bind groups are (re)built if a reallocation invalidated
// them. Between PrepareRender and FinalizeFrame the VRAM images belong
// to the renderer alone.
func (r *Renderer) PrepareRender() error {
	if r.destroyed {
		return ErrRendererDestroyed
	}
	if err := r.ensureBindGroups(); err != nil {
		return err
	}
	return r.syncRegion(Point{}, Extent{
		Width:  uint16(r.config.VRAMWidth),
		Height: uint16(r.config.VRAMHeight),
	})
}

// RefreshVariables re-reads the variable source. Display-only options
// (wireframe, dither) apply immediately. Resource-affecting options
// (upscaling) are deferred to the next FinalizeFrame; the return value
// reports whether such a change is now pending.
func (r *Renderer) RefreshVariables() bool {
	if r.source == nil {
		return false
	}
	next := readVariables(r.source, r.opts)
	resourceChange := next.upscaling != r.config.InternalUpscaling

	r.opts.wireframe = next.wireframe
	r.opts.dither = next.dither
	// Color depth only parameterizes the shaders; no reallocation.
	r.opts.colorDepth = next.colorDepth
	r.config.InternalColorDepth = next.colorDepth
	if !resourceChange {
		return false
	}

	cfg := r.config
	cfg.InternalUpscaling = next.upscaling
	cfg.InternalColorDepth = next.colorDepth
	if err := cfg.validate(); err != nil {
		slogger().Warn("rejecting variable change", "err", err)
		return false
	}
	r.pending = &cfg
	slogger().Info("deferring reconfiguration to frame end",
		"upscaling", cfg.InternalUpscaling, "colorDepth", cfg.InternalColorDepth)
	return true
}

// FinalizeFrame flushes every queued batch, synchronizes the working
// image back to the source image, resets the ordering index and frame
// stats, and applies any reconfiguration deferred by RefreshVariables.
func (r *Renderer) FinalizeFrame() error {
	if r.destroyed {
		return ErrRendererDestroyed
	}
	if err := r.flush(); err != nil {
		return err
	}
	if err := r.syncRegion(Point{}, Extent{
		Width:  uint16(r.config.VRAMWidth),
		Height: uint16(r.config.VRAMHeight),
	}); err != nil {
		return err
	}

	r.ordering = 0
	r.depthClear = true
	r.degraded = false
	r.stats = FrameStats{}

	if r.pending != nil {
		cfg := *r.pending
		r.pending = nil
		if err := r.reconfigure(cfg); err != nil {
			return err
		}
	}
	return nil
}

// reconfigure rebuilds the VRAM store for a new configuration,
// preserving contents. On failure the previous configuration stays
// active.
func (r *Renderer) reconfigure(cfg DrawConfig) error {
	next, err := newVRAMStore(r.device, r.queue, cfg.VRAMWidth, cfg.VRAMHeight, cfg.InternalUpscaling)
	if err != nil {
		return fmt.Errorf("reallocate VRAM store: %w", err)
	}

	full := Extent{Width: uint16(cfg.VRAMWidth), Height: uint16(cfg.VRAMHeight)}

	// Carry the source image across.
	srcCopy := blitUniforms{
		dstSize:  [2]uint32{cfg.VRAMWidth, cfg.VRAMHeight},
		srcScale: 1.0,
	}
	err = r.runBlitInto(next.sourceView, "psx_realloc_source", srcCopy, r.vram.sourceView, full)
	if err == nil {
		// Resample the working image into the new scale.
		workCopy := blitUniforms{
			dstSize:  [2]uint32{cfg.VRAMWidth, cfg.VRAMHeight},
			srcScale: float32(r.config.InternalUpscaling),
		}
		err = r.runBlitInto(next.workView, "psx_realloc_work", workCopy, r.vram.workView, full)
	}
	if err != nil {
		next.destroy()
		return fmt.Errorf("migrate VRAM contents: %w", err)
	}

	old := r.vram
	r.vram = next
	r.config = cfg
	r.opts.upscaling = cfg.InternalUpscaling
	old.destroy()

	r.dropBindGroups()
	r.BindFramebuffer()
	r.ApplyScissor()
	r.depthClear = true

	slogger().Info("reconfigured renderer",
		"upscaling", cfg.InternalUpscaling,
		"width", cfg.scaledWidth(), "height", cfg.scaledHeight())
	return nil
}

// runBlitInto draws a blit quad into an arbitrary color target.
func (r *Renderer) runBlitInto(target hal.TextureView, label string, u blitUniforms, srcView hal.TextureView, size Extent) error {
	desc := &hal.RenderPassDescriptor{
		Label: label,
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       target,
			LoadOp:     gputypes.LoadOpClear,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: gputypes.Color{R: 0, G: 0, B: 0, A: 0},
		}},
	}
	return r.runQuadPass(label, u.encode(), srcView, quadVertices(Point{}, size), r.pipelines.blit, desc)
}

// Destroy releases every GPU resource. Safe to call multiple times and
// on partially constructed renderers.
func (r *Renderer) Destroy() {
	if r.destroyed {
		return
	}
	r.destroyed = true

	r.dropBindGroups()
	for i, buf := range r.uniformBufs {
		if buf != nil {
			r.device.DestroyBuffer(buf)
			r.uniformBufs[i] = nil
		}
	}
	if r.output != nil {
		r.output.destroy()
	}
	if r.quads != nil {
		r.quads.destroy()
	}
	if r.lines != nil {
		r.lines.destroy()
	}
	if r.triangles != nil {
		r.triangles.destroy()
	}
	if r.vram != nil {
		r.vram.destroy()
	}
	if r.pipelines != nil {
		r.pipelines.destroy()
	}
	r.semi = nil
}
