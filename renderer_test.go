package psxgpu

import (
	"errors"
	"testing"
)

func testTriangle(semi bool) [3]Vertex {
	v := Vertex{Color: Color{R: 255}, SemiTransparent: semi}
	tri := [3]Vertex{v, v, v}
	tri[1].X = 32
	tri[2].Y = 32
	return tri
}

func TestNewValidation(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	if _, err := New(nil, queue, DefaultDrawConfig()); !errors.Is(err, ErrNilDevice) {
		t.Errorf("nil device: %v, want ErrNilDevice", err)
	}
	if _, err := New(device, nil, DefaultDrawConfig()); !errors.Is(err, ErrNilQueue) {
		t.Errorf("nil queue: %v, want ErrNilQueue", err)
	}

	bad := DefaultDrawConfig()
	bad.InternalUpscaling = 0
	if _, err := New(device, queue, bad); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("bad config: %v, want ErrInvalidConfig", err)
	}
}

func TestRendererLifecycle(t *testing.T) {
	r, cleanup := createTestRenderer(t, 1)
	defer cleanup()

	if r.Config().VRAMWidth != DefaultVRAMWidth {
		t.Errorf("Config().VRAMWidth = %d", r.Config().VRAMWidth)
	}

	r.Destroy()
	r.Destroy() // idempotent

	if err := r.PushTriangle(testTriangle(false), SemiTransparencyAverage); !errors.Is(err, ErrRendererDestroyed) {
		t.Errorf("push after destroy: %v, want ErrRendererDestroyed", err)
	}
	if err := r.FinalizeFrame(); !errors.Is(err, ErrRendererDestroyed) {
		t.Errorf("finalize after destroy: %v, want ErrRendererDestroyed", err)
	}
}

func TestPushTriangleCountsAndOrdering(t *testing.T) {
	r, cleanup := createTestRenderer(t, 1)
	defer cleanup()

	// Two opaque primitives each consume an index; the semi-transparent
	// one between them stamps the current index without consuming.
	if err := r.PushTriangle(testTriangle(false), SemiTransparencyAverage); err != nil {
		t.Fatalf("opaque push: %v", err)
	}
	after1 := r.ordering
	if err := r.PushTriangle(testTriangle(true), SemiTransparencyAverage); err != nil {
		t.Fatalf("semi push: %v", err)
	}
	if r.ordering != after1 {
		t.Error("semi-transparent push must not consume an ordering index")
	}
	if err := r.PushTriangle(testTriangle(false), SemiTransparencyAverage); err != nil {
		t.Fatalf("opaque push: %v", err)
	}
	if r.ordering != after1+1 {
		t.Errorf("ordering = %d, want %d", r.ordering, after1+1)
	}

	stats := r.Stats()
	if stats.OpaquePrimitives != 2 || stats.SemiTransparentPrimitives != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if len(r.semi) != 1 || len(r.semi[0].vertices) != 3 {
		t.Errorf("semi batches = %d", len(r.semi))
	}

	if err := r.FinalizeFrame(); err != nil {
		t.Fatalf("FinalizeFrame: %v", err)
	}
	if r.ordering != 0 || len(r.semi) != 0 {
		t.Error("FinalizeFrame must reset ordering and deferred batches")
	}
	if r.Stats() != (FrameStats{}) {
		t.Errorf("stats after finalize = %+v", r.Stats())
	}
}

func TestSemiBatchMerging(t *testing.T) {
	r, cleanup := createTestRenderer(t, 1)
	defer cleanup()

	// Same mode extends the tail batch; a mode change starts a new one
	// to preserve submission order between blend equations.
	for i := 0; i < 3; i++ {
		if err := r.PushTriangle(testTriangle(true), SemiTransparencyAverage); err != nil {
			t.Fatalf("push: %v", err)
		}
	}
	if len(r.semi) != 1 || len(r.semi[0].vertices) != 9 {
		t.Fatalf("batches = %d, tail = %d verts", len(r.semi), len(r.semi[0].vertices))
	}

	if err := r.PushTriangle(testTriangle(true), SemiTransparencyAdd); err != nil {
		t.Fatalf("push: %v", err)
	}
	if len(r.semi) != 2 {
		t.Fatalf("mode change must start a new batch, got %d", len(r.semi))
	}

	// Returning to the first mode must not merge across the later batch.
	if err := r.PushTriangle(testTriangle(true), SemiTransparencyAverage); err != nil {
		t.Fatalf("push: %v", err)
	}
	if len(r.semi) != 3 {
		t.Fatalf("returning mode must append a new batch, got %d", len(r.semi))
	}
}

func TestSemiLineBatchesSeparateFromTriangles(t *testing.T) {
	r, cleanup := createTestRenderer(t, 1)
	defer cleanup()

	if err := r.PushTriangle(testTriangle(true), SemiTransparencyAverage); err != nil {
		t.Fatalf("push: %v", err)
	}
	line := [2]Vertex{
		{Color: Color{G: 255}, SemiTransparent: true},
		{X: 64, Color: Color{G: 255}, SemiTransparent: true},
	}
	if err := r.PushLine(line, SemiTransparencyAverage); err != nil {
		t.Fatalf("push line: %v", err)
	}
	if len(r.semi) != 2 {
		t.Fatalf("topology change must start a new batch, got %d", len(r.semi))
	}
}

func TestDrawStateChangeFlushes(t *testing.T) {
	r, cleanup := createTestRenderer(t, 1)
	defer cleanup()

	if err := r.PushTriangle(testTriangle(false), SemiTransparencyAverage); err != nil {
		t.Fatalf("push: %v", err)
	}
	if r.triangles.len() == 0 {
		t.Fatal("expected pending vertices")
	}

	if err := r.SetDrawOffset(8, -8); err != nil {
		t.Fatalf("SetDrawOffset: %v", err)
	}
	if r.triangles.len() != 0 {
		t.Error("offset change must draw pending primitives first")
	}
	if r.Stats().DrawCalls == 0 {
		t.Error("expected at least one draw call from the flush")
	}

	// Unchanged state is a no-op and must not flush.
	calls := r.Stats().DrawCalls
	if err := r.PushTriangle(testTriangle(false), SemiTransparencyAverage); err != nil {
		t.Fatalf("push: %v", err)
	}
	if err := r.SetDrawOffset(8, -8); err != nil {
		t.Fatalf("SetDrawOffset: %v", err)
	}
	if r.Stats().DrawCalls != calls {
		t.Error("unchanged offset must not flush")
	}
}

func TestSetDrawAreaClampsToVRAM(t *testing.T) {
	r, cleanup := createTestRenderer(t, 1)
	defer cleanup()

	if err := r.SetDrawArea(Point{X: 16, Y: 32}, Point{X: 5000, Y: 5000}); err != nil {
		t.Fatalf("SetDrawArea: %v", err)
	}
	if r.clipMin != [2]uint32{16, 32} {
		t.Errorf("clipMin = %v", r.clipMin)
	}
	if r.clipMax != [2]uint32{DefaultVRAMWidth - 1, DefaultVRAMHeight - 1} {
		t.Errorf("clipMax = %v, want VRAM edge", r.clipMax)
	}
}

func TestWireframeLowering(t *testing.T) {
	r, cleanup := createTestRenderer(t, 1)
	defer cleanup()
	r.opts.wireframe = true

	if err := r.PushTriangle(testTriangle(false), SemiTransparencyAverage); err != nil {
		t.Fatalf("push: %v", err)
	}
	if r.triangles.len() != 0 {
		t.Error("wireframe triangles must not enter the triangle buffer")
	}
	if r.lines.len() != 6 {
		t.Errorf("lines buffer holds %d vertices, want 6 (three edges)", r.lines.len())
	}
}

func TestFrameOrderingOverflowDegrades(t *testing.T) {
	r, cleanup := createTestRenderer(t, 1)
	defer cleanup()

	// Exhaust the index space right below the boundary instead of
	// pushing 32k primitives through the noop device.
	r.ordering = maxOrderingIndex - 1

	if err := r.PushTriangle(testTriangle(false), SemiTransparencyAverage); err != nil {
		t.Fatalf("last valid push: %v", err)
	}
	err := r.PushTriangle(testTriangle(false), SemiTransparencyAverage)
	if !errors.Is(err, ErrFrameTooComplex) {
		t.Fatalf("overflow push = %v, want ErrFrameTooComplex", err)
	}
	if !r.Degraded() {
		t.Fatal("renderer must report a degraded frame")
	}

	// Degraded frames drop silently.
	if err := r.PushTriangle(testTriangle(false), SemiTransparencyAverage); err != nil {
		t.Fatalf("degraded push: %v", err)
	}
	if r.Stats().DroppedPrimitives != 2 {
		t.Errorf("DroppedPrimitives = %d, want 2", r.Stats().DroppedPrimitives)
	}

	if err := r.FinalizeFrame(); err != nil {
		t.Fatalf("FinalizeFrame: %v", err)
	}
	if r.Degraded() {
		t.Error("FinalizeFrame must clear the degraded flag")
	}
	if err := r.PushTriangle(testTriangle(false), SemiTransparencyAverage); err != nil {
		t.Errorf("push after recovery: %v", err)
	}
}

func TestFillRectConsumesOrdering(t *testing.T) {
	r, cleanup := createTestRenderer(t, 1)
	defer cleanup()

	before := r.ordering
	if err := r.FillRect(Point{X: 10, Y: 10}, Extent{Width: 32, Height: 16}, Color{B: 255}); err != nil {
		t.Fatalf("FillRect: %v", err)
	}
	if r.ordering != before+1 {
		t.Errorf("ordering = %d, want %d", r.ordering, before+1)
	}
	if r.Stats().DrawCalls == 0 {
		t.Error("fill must issue a draw call")
	}

	// Empty fills are no-ops.
	calls := r.Stats().DrawCalls
	if err := r.FillRect(Point{}, Extent{}, Color{}); err != nil {
		t.Fatalf("empty FillRect: %v", err)
	}
	if r.Stats().DrawCalls != calls || r.ordering != before+1 {
		t.Error("empty fill must not draw or consume ordering")
	}
}

func TestUploadVRAMWindow(t *testing.T) {
	r, cleanup := createTestRenderer(t, 1)
	defer cleanup()

	pixels := make([]uint16, 16*8)
	before := r.ordering
	if err := r.UploadVRAMWindow(Point{X: 64, Y: 128}, Extent{Width: 16, Height: 8}, pixels); err != nil {
		t.Fatalf("UploadVRAMWindow: %v", err)
	}
	if r.ordering != before+1 {
		t.Error("upload must consume an ordering index")
	}

	err := r.UploadVRAMWindow(Point{X: 1020, Y: 0}, Extent{Width: 16, Height: 8}, pixels)
	if !errors.Is(err, ErrUploadBounds) {
		t.Errorf("out-of-bounds upload = %v, want ErrUploadBounds", err)
	}
	err = r.UploadVRAMWindow(Point{}, Extent{Width: 16, Height: 8}, pixels[:10])
	if !errors.Is(err, ErrUploadSize) {
		t.Errorf("short upload = %v, want ErrUploadSize", err)
	}
}

func TestCopyRect(t *testing.T) {
	r, cleanup := createTestRenderer(t, 2)
	defer cleanup()

	before := r.ordering
	if err := r.CopyRect(Point{X: 0, Y: 0}, Point{X: 256, Y: 0}, Extent{Width: 64, Height: 64}); err != nil {
		t.Fatalf("CopyRect: %v", err)
	}
	if r.ordering != before+1 {
		t.Error("copy must consume an ordering index")
	}

	err := r.CopyRect(Point{X: 1000, Y: 0}, Point{}, Extent{Width: 64, Height: 64})
	if !errors.Is(err, ErrCopyBounds) {
		t.Errorf("out-of-bounds copy = %v, want ErrCopyBounds", err)
	}
}

func TestRefreshVariablesDefersUpscaling(t *testing.T) {
	r, cleanup := createTestRenderer(t, 1)
	defer cleanup()

	src := mapVariableSource{VarWireframe: "enabled"}
	r.SetVariableSource(src)
	if !r.opts.wireframe {
		t.Fatal("SetVariableSource must apply current values")
	}

	src[VarInternalResolution] = "2"
	if !r.RefreshVariables() {
		t.Fatal("upscaling change must report a pending reconfiguration")
	}
	if r.pending == nil {
		t.Fatal("expected a deferred configuration")
	}
	if r.Config().InternalUpscaling != 1 {
		t.Error("active config must stay unchanged until FinalizeFrame")
	}

	if err := r.FinalizeFrame(); err != nil {
		t.Fatalf("FinalizeFrame: %v", err)
	}
	if r.pending != nil {
		t.Error("pending config must be consumed")
	}
	if r.Config().InternalUpscaling != 2 {
		t.Errorf("upscaling = %d after finalize, want 2", r.Config().InternalUpscaling)
	}
	if r.vram.scale != 2 {
		t.Errorf("vram scale = %d, want 2", r.vram.scale)
	}
}

func TestRefreshVariablesImmediateOptions(t *testing.T) {
	r, cleanup := createTestRenderer(t, 1)
	defer cleanup()

	src := mapVariableSource{VarDither: "enabled"}
	r.SetVariableSource(src)
	src[VarDither] = "disabled"
	src[VarWireframe] = "enabled"

	if r.RefreshVariables() {
		t.Error("display-only options must not defer a reconfiguration")
	}
	if r.opts.dither || !r.opts.wireframe {
		t.Errorf("opts = %+v", r.opts)
	}
}

func TestRefreshVariablesWithoutSource(t *testing.T) {
	r, cleanup := createTestRenderer(t, 1)
	defer cleanup()
	if r.RefreshVariables() {
		t.Error("no source must be a no-op")
	}
}

func TestPrepareRenderBuildsBindGroups(t *testing.T) {
	r, cleanup := createTestRenderer(t, 1)
	defer cleanup()

	if err := r.PrepareRender(); err != nil {
		t.Fatalf("PrepareRender: %v", err)
	}
	for i, bg := range r.bindGroups {
		if bg == nil {
			t.Errorf("bind group %d not built", i)
		}
	}
}

func TestFlushDrawOrderScenario(t *testing.T) {
	r, cleanup := createTestRenderer(t, 1)
	defer cleanup()

	// One opaque triangle consumes index 1; the two semi-transparent
	// triangles in different modes share it and land in separate
	// batches. Flushing draws exactly three times: opaque, then each
	// batch in submission order.
	if err := r.PushTriangle(testTriangle(false), SemiTransparencyAverage); err != nil {
		t.Fatalf("opaque push: %v", err)
	}
	if r.ordering != 1 {
		t.Fatalf("ordering = %d, want 1", r.ordering)
	}
	if err := r.PushTriangle(testTriangle(true), SemiTransparencyAdd); err != nil {
		t.Fatalf("add push: %v", err)
	}
	if err := r.PushTriangle(testTriangle(true), SemiTransparencyAverage); err != nil {
		t.Fatalf("average push: %v", err)
	}
	if r.ordering != 1 {
		t.Fatalf("semi pushes moved ordering to %d", r.ordering)
	}

	if err := r.flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if r.Stats().DrawCalls != 3 {
		t.Errorf("DrawCalls = %d, want 3", r.Stats().DrawCalls)
	}

	if err := r.FinalizeFrame(); err != nil {
		t.Fatalf("FinalizeFrame: %v", err)
	}
	if r.ordering != 0 {
		t.Errorf("ordering = %d after finalize, want 0", r.ordering)
	}
}

func TestPrepareRenderSynchronizesImages(t *testing.T) {
	r, cleanup := createTestRenderer(t, 1)
	defer cleanup()

	if err := r.PrepareRender(); err != nil {
		t.Fatalf("PrepareRender: %v", err)
	}
	if r.Stats().DrawCalls == 0 {
		t.Error("expected the frame-start synchronization blit")
	}
}

func TestFinalizeFrameWithAllPrimitiveKinds(t *testing.T) {
	r, cleanup := createTestRenderer(t, 1)
	defer cleanup()

	for _, mode := range []SemiTransparencyMode{
		SemiTransparencyAverage,
		SemiTransparencyAdd,
		SemiTransparencySubtractSource,
		SemiTransparencyAddQuarterSource,
	} {
		if err := r.PushTriangle(testTriangle(false), mode); err != nil {
			t.Fatalf("opaque push: %v", err)
		}
		if err := r.PushTriangle(testTriangle(true), mode); err != nil {
			t.Fatalf("semi push: %v", err)
		}
	}
	line := [2]Vertex{{}, {X: 16, Y: 16}}
	if err := r.PushLine(line, SemiTransparencyAverage); err != nil {
		t.Fatalf("line push: %v", err)
	}
	if err := r.FillRect(Point{X: 100, Y: 100}, Extent{Width: 10, Height: 10}, Color{R: 128}); err != nil {
		t.Fatalf("fill: %v", err)
	}
	if err := r.FinalizeFrame(); err != nil {
		t.Fatalf("FinalizeFrame: %v", err)
	}
	if !r.depthClear {
		t.Error("FinalizeFrame must schedule a depth clear")
	}
}

func TestSetDisplayModeFlushes(t *testing.T) {
	r, cleanup := createTestRenderer(t, 1)
	defer cleanup()

	if err := r.PushTriangle(testTriangle(false), SemiTransparencyAverage); err != nil {
		t.Fatalf("push: %v", err)
	}
	if err := r.SetDisplayMode(Point{X: 0, Y: 16}, Extent{Width: 320, Height: 240}, false); err != nil {
		t.Fatalf("SetDisplayMode: %v", err)
	}
	if r.triangles.len() != 0 {
		t.Error("display mode change must draw pending primitives first")
	}
	if r.Stats().DrawCalls == 0 {
		t.Error("expected at least one draw call from the flush")
	}

	// Unchanged mode is a no-op and must not flush.
	calls := r.Stats().DrawCalls
	if err := r.PushTriangle(testTriangle(false), SemiTransparencyAverage); err != nil {
		t.Fatalf("push: %v", err)
	}
	if err := r.SetDisplayMode(Point{X: 0, Y: 16}, Extent{Width: 320, Height: 240}, false); err != nil {
		t.Fatalf("SetDisplayMode: %v", err)
	}
	if r.Stats().DrawCalls != calls {
		t.Error("unchanged display mode must not flush")
	}

	r.Destroy()
	err := r.SetDisplayMode(Point{}, Extent{Width: 256, Height: 224}, true)
	if !errors.Is(err, ErrRendererDestroyed) {
		t.Errorf("destroyed renderer = %v, want ErrRendererDestroyed", err)
	}
}

func TestRefreshVariablesColorDepthUpdatesConfig(t *testing.T) {
	r, cleanup := createTestRenderer(t, 1)
	defer cleanup()

	src := mapVariableSource{VarInternalColorDepth: "32"}
	r.SetVariableSource(src)

	if r.RefreshVariables() {
		t.Error("color depth alone must not defer a reconfiguration")
	}
	if r.opts.colorDepth != 32 {
		t.Errorf("opts.colorDepth = %d, want 32", r.opts.colorDepth)
	}
	if got := r.Config().InternalColorDepth; got != 32 {
		t.Errorf("Config().InternalColorDepth = %d, want 32", got)
	}
}

func TestFillRectBounds(t *testing.T) {
	r, cleanup := createTestRenderer(t, 1)
	defer cleanup()

	err := r.FillRect(Point{X: 1000, Y: 0}, Extent{Width: 100, Height: 10}, Color{})
	if !errors.Is(err, ErrFillBounds) {
		t.Errorf("out-of-bounds fill = %v, want ErrFillBounds", err)
	}
	// Coordinates whose sum exceeds the int16 range must not wrap into
	// a negative quad.
	err = r.FillRect(Point{X: 40000, Y: 0}, Extent{Width: 30000, Height: 10}, Color{})
	if !errors.Is(err, ErrFillBounds) {
		t.Errorf("wrapping fill = %v, want ErrFillBounds", err)
	}
	if r.ordering != 0 {
		t.Error("rejected fills must not consume an ordering index")
	}
}
