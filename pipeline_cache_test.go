package psxgpu

import (
	"testing"

	"github.com/gogpu/gputypes"
)

func TestBlendKindFor(t *testing.T) {
	tests := []struct {
		name string
		semi bool
		mode SemiTransparencyMode
		want blendKind
	}{
		{"opaque ignores mode", false, SemiTransparencyAdd, blendOpaque},
		{"average", true, SemiTransparencyAverage, blendAverage},
		{"additive", true, SemiTransparencyAdd, blendAdditive},
		{"subtractive", true, SemiTransparencySubtractSource, blendSubtractive},
		{"add quarter", true, SemiTransparencyAddQuarterSource, blendAddQuarter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := blendKindFor(tt.semi, tt.mode); got != tt.want {
				t.Errorf("blendKindFor(%v, %v) = %v, want %v", tt.semi, tt.mode, got, tt.want)
			}
		})
	}
}

func TestBlendStates(t *testing.T) {
	if blendOpaque.blendState() != nil {
		t.Error("opaque must render without blending")
	}

	avg := blendAverage.blendState()
	if avg.Color.SrcFactor != gputypes.BlendFactorSrcAlpha ||
		avg.Color.DstFactor != gputypes.BlendFactorOneMinusSrcAlpha {
		t.Errorf("average blend factors = %v", avg.Color)
	}

	sub := blendSubtractive.blendState()
	if sub.Color.Operation != gputypes.BlendOperationReverseSubtract {
		t.Errorf("subtractive operation = %v", sub.Color.Operation)
	}

	// Both additive variants share factors; the quarter weight comes
	// from the fragment alpha.
	add := blendAdditive.blendState()
	quarter := blendAddQuarter.blendState()
	if add.Color != quarter.Color {
		t.Error("additive and add-quarter must share blend factors")
	}
	if add.Color.DstFactor != gputypes.BlendFactorOne {
		t.Errorf("additive dst factor = %v", add.Color.DstFactor)
	}
}

func TestSourceWeights(t *testing.T) {
	if SemiTransparencyAverage.sourceWeight() != 0.5 {
		t.Error("average weight must be 0.5")
	}
	if SemiTransparencyAdd.sourceWeight() != 1.0 {
		t.Error("additive weight must be 1.0")
	}
	if SemiTransparencyAddQuarterSource.sourceWeight() != 0.25 {
		t.Error("add-quarter weight must be 0.25")
	}
	if weightValue(weightClass(blendAverage)) != SemiTransparencyAverage.sourceWeight() {
		t.Error("weight class table disagrees with sourceWeight")
	}
	if weightValue(weightClass(blendAddQuarter)) != SemiTransparencyAddQuarterSource.sourceWeight() {
		t.Error("weight class table disagrees with sourceWeight")
	}
}

func TestPipelineCacheReusesPipelines(t *testing.T) {
	device, _, cleanup := createNoopDevice(t)
	defer cleanup()

	pc, err := newPipelineCache(device)
	if err != nil {
		t.Fatalf("newPipelineCache failed: %v", err)
	}
	defer pc.destroy()

	if pc.imageLoad == nil || pc.blit == nil {
		t.Fatal("fixed-function pipelines must be built eagerly")
	}

	p1, err := pc.commandPipeline(gputypes.PrimitiveTopologyTriangleList, blendAverage)
	if err != nil {
		t.Fatalf("commandPipeline failed: %v", err)
	}
	p2, err := pc.commandPipeline(gputypes.PrimitiveTopologyTriangleList, blendAverage)
	if err != nil {
		t.Fatalf("commandPipeline failed: %v", err)
	}
	if p1 != p2 {
		t.Error("same key must return the cached pipeline")
	}

	if _, err := pc.commandPipeline(gputypes.PrimitiveTopologyLineList, blendAverage); err != nil {
		t.Fatalf("commandPipeline failed: %v", err)
	}
	// Handle identity is backend-dependent; assert distinctness through
	// the cache keys instead.
	if len(pc.command) != 2 {
		t.Errorf("cache holds %d pipelines, want 2", len(pc.command))
	}
	for _, key := range []commandPipelineKey{
		{topology: gputypes.PrimitiveTopologyTriangleList, blend: blendAverage},
		{topology: gputypes.PrimitiveTopologyLineList, blend: blendAverage},
	} {
		if _, ok := pc.command[key]; !ok {
			t.Errorf("cache missing entry for %+v", key)
		}
	}
}

func TestOutputPipelineCachedPerFormat(t *testing.T) {
	device, _, cleanup := createNoopDevice(t)
	defer cleanup()

	pc, err := newPipelineCache(device)
	if err != nil {
		t.Fatalf("newPipelineCache failed: %v", err)
	}
	defer pc.destroy()

	p1, err := pc.outputPipeline(gputypes.TextureFormatBGRA8Unorm)
	if err != nil {
		t.Fatalf("outputPipeline failed: %v", err)
	}
	p2, err := pc.outputPipeline(gputypes.TextureFormatBGRA8Unorm)
	if err != nil {
		t.Fatalf("outputPipeline failed: %v", err)
	}
	if p1 != p2 {
		t.Error("same format must return the cached pipeline")
	}
}

func TestCompileShaders(t *testing.T) {
	for _, tt := range []struct {
		name   string
		source string
	}{
		{"command", commandShaderSource},
		{"output", outputShaderSource},
		{"image load", imageLoadShaderSource},
		{"blit", blitShaderSource},
	} {
		t.Run(tt.name, func(t *testing.T) {
			words, err := compileWGSL(tt.source)
			if err != nil {
				t.Fatalf("compile failed: %v", err)
			}
			if len(words) == 0 {
				t.Fatal("empty SPIR-V output")
			}
			if words[0] != 0x07230203 {
				t.Errorf("missing SPIR-V magic, got %#08x", words[0])
			}
		})
	}
}
