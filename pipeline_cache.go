package psxgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"
)

// vramFormat is the format of both VRAM images. Uploaded 16-bit texels
// are stored with an exact, invertible 5-to-8-bit channel expansion.
const vramFormat = gputypes.TextureFormatRGBA8Unorm

// depthFormat backs the primitive-ordering depth test on the working
// image.
const depthFormat = gputypes.TextureFormatDepth24PlusStencil8

// blendKind selects the color blend state of a command pipeline.
type blendKind uint8

const (
	blendOpaque blendKind = iota
	blendAverage
	blendAdditive
	blendSubtractive
	blendAddQuarter
)

// blendKindFor maps primitive transparency to a pipeline blend state.
func blendKindFor(semiTransparent bool, mode SemiTransparencyMode) blendKind {
	if !semiTransparent {
		return blendOpaque
	}
	switch mode {
	case SemiTransparencyAdd:
		return blendAdditive
	case SemiTransparencySubtractSource:
		return blendSubtractive
	case SemiTransparencyAddQuarterSource:
		return blendAddQuarter
	default:
		return blendAverage
	}
}

// blendState returns the color target blend for the kind, or nil for
// opaque rendering. The source weight lives in the fragment alpha, so
// every additive variant can share SrcAlpha factors.
func (k blendKind) blendState() *gputypes.BlendState {
	passAlpha := gputypes.BlendComponent{
		SrcFactor: gputypes.BlendFactorOne,
		DstFactor: gputypes.BlendFactorZero,
		Operation: gputypes.BlendOperationAdd,
	}
	switch k {
	case blendAverage:
		return &gputypes.BlendState{
			Color: gputypes.BlendComponent{
				SrcFactor: gputypes.BlendFactorSrcAlpha,
				DstFactor: gputypes.BlendFactorOneMinusSrcAlpha,
				Operation: gputypes.BlendOperationAdd,
			},
			Alpha: passAlpha,
		}
	case blendAdditive, blendAddQuarter:
		return &gputypes.BlendState{
			Color: gputypes.BlendComponent{
				SrcFactor: gputypes.BlendFactorSrcAlpha,
				DstFactor: gputypes.BlendFactorOne,
				Operation: gputypes.BlendOperationAdd,
			},
			Alpha: passAlpha,
		}
	case blendSubtractive:
		return &gputypes.BlendState{
			Color: gputypes.BlendComponent{
				SrcFactor: gputypes.BlendFactorOne,
				DstFactor: gputypes.BlendFactorOne,
				Operation: gputypes.BlendOperationReverseSubtract,
			},
			Alpha: passAlpha,
		}
	default:
		return nil
	}
}

// commandPipelineKey identifies a lazily built command pipeline.
type commandPipelineKey struct {
	topology gputypes.PrimitiveTopology
	blend    blendKind
}

// pipelineCache owns the shader modules, the shared bind group layout
// and sampler, and every render pipeline the renderer uses. Command
// pipelines are built on first use per topology and blend kind; the
// fixed-function blit pipelines are built eagerly.
type pipelineCache struct {
	device hal.Device

	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	sampler    hal.Sampler

	commandShader   hal.ShaderModule
	outputShader    hal.ShaderModule
	imageLoadShader hal.ShaderModule
	blitShader      hal.ShaderModule

	command   map[commandPipelineKey]hal.RenderPipeline
	output    map[gputypes.TextureFormat]hal.RenderPipeline
	imageLoad hal.RenderPipeline
	blit      hal.RenderPipeline
}

// compileWGSL compiles a WGSL source to SPIR-V words for module
// creation. SPIR-V is little-endian 32-bit words.
func compileWGSL(source string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("compile shader: %w", err)
	}
	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return words, nil
}

func newPipelineCache(device hal.Device) (*pipelineCache, error) {
	pc := &pipelineCache{
		device:  device,
		command: make(map[commandPipelineKey]hal.RenderPipeline),
		output:  make(map[gputypes.TextureFormat]hal.RenderPipeline),
	}
	if err := pc.init(); err != nil {
		pc.destroy()
		return nil, err
	}
	return pc, nil
}

func (pc *pipelineCache) init() error {
	bindLayout, err := pc.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "psx_bind_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: gputypes.ShaderStageVertex | gputypes.ShaderStageFragment,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
			},
			{
				Binding:    1,
				Visibility: gputypes.ShaderStageFragment,
				Texture: &gputypes.TextureBindingLayout{
					SampleType:    gputypes.TextureSampleTypeFloat,
					ViewDimension: gputypes.TextureViewDimension2D,
				},
			},
			{
				Binding:    2,
				Visibility: gputypes.ShaderStageFragment,
				Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create bind group layout: %w", err)
	}
	pc.bindLayout = bindLayout

	pipeLayout, err := pc.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "psx_pipeline_layout",
		BindGroupLayouts: []hal.BindGroupLayout{bindLayout},
	})
	if err != nil {
		return fmt.Errorf("create pipeline layout: %w", err)
	}
	pc.pipeLayout = pipeLayout

	// VRAM texels are addressed exactly, never interpolated.
	sampler, err := pc.device.CreateSampler(&hal.SamplerDescriptor{
		Label:        "psx_vram_sampler",
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    gputypes.FilterModeNearest,
		MinFilter:    gputypes.FilterModeNearest,
		MipmapFilter: gputypes.FilterModeNearest,
	})
	if err != nil {
		return fmt.Errorf("create sampler: %w", err)
	}
	pc.sampler = sampler

	shaders := []struct {
		label  string
		source string
		dst    *hal.ShaderModule
	}{
		{"psx_command_shader", commandShaderSource, &pc.commandShader},
		{"psx_output_shader", outputShaderSource, &pc.outputShader},
		{"psx_image_load_shader", imageLoadShaderSource, &pc.imageLoadShader},
		{"psx_blit_shader", blitShaderSource, &pc.blitShader},
	}
	for _, s := range shaders {
		words, err := compileWGSL(s.source)
		if err != nil {
			return fmt.Errorf("%s: %w", s.label, err)
		}
		module, err := pc.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
			Label:  s.label,
			Source: hal.ShaderSource{SPIRV: words},
		})
		if err != nil {
			return fmt.Errorf("create %s: %w", s.label, err)
		}
		*s.dst = module
	}

	imageLoad, err := pc.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  "psx_image_load_pipeline",
		Layout: pc.pipeLayout,
		Vertex: hal.VertexState{
			Module:     pc.imageLoadShader,
			EntryPoint: "vs_main",
			Buffers:    imageLoadVertexLayout(),
		},
		Fragment: &hal.FragmentState{
			Module:     pc.imageLoadShader,
			EntryPoint: "fs_main",
			Targets: []gputypes.ColorTargetState{
				{Format: vramFormat, WriteMask: gputypes.ColorWriteMaskAll},
			},
		},
		DepthStencil: commandDepthState(true),
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleList,
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{Count: 1, Mask: 0xFFFFFFFF},
	})
	if err != nil {
		return fmt.Errorf("create image load pipeline: %w", err)
	}
	pc.imageLoad = imageLoad

	blit, err := pc.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  "psx_blit_pipeline",
		Layout: pc.pipeLayout,
		Vertex: hal.VertexState{
			Module:     pc.blitShader,
			EntryPoint: "vs_main",
			Buffers:    imageLoadVertexLayout(),
		},
		Fragment: &hal.FragmentState{
			Module:     pc.blitShader,
			EntryPoint: "fs_main",
			Targets: []gputypes.ColorTargetState{
				{Format: vramFormat, WriteMask: gputypes.ColorWriteMaskAll},
			},
		},
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleList,
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{Count: 1, Mask: 0xFFFFFFFF},
	})
	if err != nil {
		return fmt.Errorf("create blit pipeline: %w", err)
	}
	pc.blit = blit

	return nil
}

// commandDepthState is the ordering depth test: later primitives carry
// larger indices, so the comparison is greater-equal. Semi-transparent
// primitives test against opaque depth but do not write it.
func commandDepthState(depthWrite bool) *hal.DepthStencilState {
	keep := hal.StencilFaceState{
		Compare:     gputypes.CompareFunctionAlways,
		FailOp:      hal.StencilOperationKeep,
		DepthFailOp: hal.StencilOperationKeep,
		PassOp:      hal.StencilOperationKeep,
	}
	return &hal.DepthStencilState{
		Format:            depthFormat,
		DepthWriteEnabled: depthWrite,
		DepthCompare:      gputypes.CompareFunctionGreaterEqual,
		StencilFront:      keep,
		StencilBack:       keep,
		StencilReadMask:   0x00,
		StencilWriteMask:  0x00,
	}
}

// commandPipeline returns the pipeline for the topology and blend kind,
// building it on first use.
func (pc *pipelineCache) commandPipeline(topology gputypes.PrimitiveTopology, blend blendKind) (hal.RenderPipeline, error) {
	key := commandPipelineKey{topology: topology, blend: blend}
	if p, ok := pc.command[key]; ok {
		return p, nil
	}

	target := gputypes.ColorTargetState{
		Format:    vramFormat,
		Blend:     blend.blendState(),
		WriteMask: gputypes.ColorWriteMaskAll,
	}
	pipeline, err := pc.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  fmt.Sprintf("psx_command_pipeline_t%d_b%d", topology, blend),
		Layout: pc.pipeLayout,
		Vertex: hal.VertexState{
			Module:     pc.commandShader,
			EntryPoint: "vs_main",
			Buffers:    commandVertexLayout(),
		},
		Fragment: &hal.FragmentState{
			Module:     pc.commandShader,
			EntryPoint: "fs_main",
			Targets:    []gputypes.ColorTargetState{target},
		},
		DepthStencil: commandDepthState(blend == blendOpaque),
		Primitive: gputypes.PrimitiveState{
			Topology: topology,
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{Count: 1, Mask: 0xFFFFFFFF},
	})
	if err != nil {
		return nil, fmt.Errorf("create command pipeline: %w", err)
	}
	pc.command[key] = pipeline
	return pipeline, nil
}

// outputPipeline returns the display pipeline targeting the given
// surface format, building it on first use.
func (pc *pipelineCache) outputPipeline(format gputypes.TextureFormat) (hal.RenderPipeline, error) {
	if p, ok := pc.output[format]; ok {
		return p, nil
	}
	pipeline, err := pc.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  "psx_output_pipeline",
		Layout: pc.pipeLayout,
		Vertex: hal.VertexState{
			Module:     pc.outputShader,
			EntryPoint: "vs_main",
			Buffers:    outputVertexLayout(),
		},
		Fragment: &hal.FragmentState{
			Module:     pc.outputShader,
			EntryPoint: "fs_main",
			Targets: []gputypes.ColorTargetState{
				{Format: format, WriteMask: gputypes.ColorWriteMaskAll},
			},
		},
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleList,
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{Count: 1, Mask: 0xFFFFFFFF},
	})
	if err != nil {
		return nil, fmt.Errorf("create output pipeline: %w", err)
	}
	pc.output[format] = pipeline
	return pipeline, nil
}

func (pc *pipelineCache) destroy() {
	for _, p := range pc.command {
		pc.device.DestroyRenderPipeline(p)
	}
	pc.command = nil
	for _, p := range pc.output {
		pc.device.DestroyRenderPipeline(p)
	}
	pc.output = nil
	if pc.imageLoad != nil {
		pc.device.DestroyRenderPipeline(pc.imageLoad)
		pc.imageLoad = nil
	}
	if pc.blit != nil {
		pc.device.DestroyRenderPipeline(pc.blit)
		pc.blit = nil
	}
	for _, m := range []*hal.ShaderModule{&pc.commandShader, &pc.outputShader, &pc.imageLoadShader, &pc.blitShader} {
		if *m != nil {
			pc.device.DestroyShaderModule(*m)
			*m = nil
		}
	}
	if pc.sampler != nil {
		pc.device.DestroySampler(pc.sampler)
		pc.sampler = nil
	}
	if pc.pipeLayout != nil {
		pc.device.DestroyPipelineLayout(pc.pipeLayout)
		pc.pipeLayout = nil
	}
	if pc.bindLayout != nil {
		pc.device.DestroyBindGroupLayout(pc.bindLayout)
		pc.bindLayout = nil
	}
}
