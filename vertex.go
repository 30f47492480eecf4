package psxgpu

import (
	"encoding/binary"
	"math"

	"github.com/gogpu/gputypes"
)

// Vertex is the decoder-level description of one primitive vertex, as
// produced by the GPU instruction decoder. BuildCommandVertex lowers it
// into the packed GPU representation.
type Vertex struct {
	// Position in VRAM coordinates. Positive offsets may place the vertex
	// outside the draw area; clipping happens at draw time.
	X, Y int16

	// Color, 8 bits per component.
	Color Color

	// TexCoord is the texture coordinate within the 256x256 texture page.
	TexCoord [2]uint16

	// TexPage is the texture page origin in VRAM.
	TexPage [2]uint16

	// CLUT is the color look-up table (palette) position in VRAM.
	CLUT [2]uint16

	// BlendMode selects how texture samples combine with the vertex color.
	BlendMode TextureBlendMode

	// DepthShift is the right shift from 16 bits per texel:
	// 0 for 16bpp textures, 1 for 8bpp, 2 for 4bpp.
	DepthShift uint8

	// Dither enables ordered dithering for this primitive.
	Dither bool

	// SemiTransparent marks the primitive as semi-transparent.
	SemiTransparent bool
}

// commandVertexStride is the packed size of a CommandVertex in the GPU
// vertex buffer. The layout must match commandVertexLayout and the vertex
// inputs of the command shader.
const commandVertexStride = 28

// CommandVertex is one vertex of a draw-command primitive in its packed
// GPU form. The third position component carries the primitive ordering
// index; it is stamped by the command pipeline, not by the decoder.
// Immutable once built.
type CommandVertex struct {
	// Position in VRAM coordinates plus the ordering index in [2].
	Position [3]int16

	// Color, 8 bits per component.
	Color [3]uint8

	// TexCoord is the texture coordinate within the texture page.
	TexCoord [2]uint16

	// TexPage is the texture page origin in VRAM.
	TexPage [2]uint16

	// CLUT is the palette position in VRAM.
	CLUT [2]uint16

	// BlendMode: 0 no texture, 1 raw texture, 2 texture modulated.
	BlendMode uint8

	// DepthShift: 0 for 16bpp textures, 1 for 8bpp, 2 for 4bpp.
	DepthShift uint8

	// Dither is 1 if dithering is enabled for this primitive.
	Dither uint8

	// SemiTransparent is 1 if the primitive is semi-transparent.
	SemiTransparent uint8
}

// BuildCommandVertex lowers a decoder-level Vertex into its packed GPU
// form. The ordering index (Position[2]) is left zero; the command
// pipeline stamps it on commit.
func BuildCommandVertex(v Vertex) CommandVertex {
	cv := CommandVertex{
		Position:   [3]int16{v.X, v.Y, 0},
		Color:      [3]uint8{v.Color.R, v.Color.G, v.Color.B},
		TexCoord:   v.TexCoord,
		TexPage:    v.TexPage,
		CLUT:       v.CLUT,
		BlendMode:  uint8(v.BlendMode),
		DepthShift: v.DepthShift,
	}
	if v.Dither {
		cv.Dither = 1
	}
	if v.SemiTransparent {
		cv.SemiTransparent = 1
	}
	return cv
}

func (v CommandVertex) stride() int { return commandVertexStride }

func (v CommandVertex) encodeInto(dst []byte) {
	_ = dst[commandVertexStride-1]
	binary.LittleEndian.PutUint16(dst[0:], uint16(v.Position[0]))
	binary.LittleEndian.PutUint16(dst[2:], uint16(v.Position[1]))
	binary.LittleEndian.PutUint16(dst[4:], uint16(v.Position[2]))
	binary.LittleEndian.PutUint16(dst[6:], 0) // pad to Sint16x4
	dst[8] = v.Color[0]
	dst[9] = v.Color[1]
	dst[10] = v.Color[2]
	dst[11] = 0 // pad to Uint8x4
	binary.LittleEndian.PutUint16(dst[12:], v.TexCoord[0])
	binary.LittleEndian.PutUint16(dst[14:], v.TexCoord[1])
	binary.LittleEndian.PutUint16(dst[16:], v.TexPage[0])
	binary.LittleEndian.PutUint16(dst[18:], v.TexPage[1])
	binary.LittleEndian.PutUint16(dst[20:], v.CLUT[0])
	binary.LittleEndian.PutUint16(dst[22:], v.CLUT[1])
	dst[24] = v.BlendMode
	dst[25] = v.DepthShift
	dst[26] = v.Dither
	dst[27] = v.SemiTransparent
}

// commandVertexLayout returns the vertex buffer layout for the command
// pipeline. Matches VertexIn in the command shader:
//
//	location 0: position + ordering (vec4<i32>, Sint16x4)
//	location 1: color (vec4<u32>, Uint8x4)
//	location 2: tex_coord (vec2<u32>, Uint16x2)
//	location 3: tex_page (vec2<u32>, Uint16x2)
//	location 4: clut (vec2<u32>, Uint16x2)
//	location 5: flags (vec4<u32>, Uint8x4)
func commandVertexLayout() []gputypes.VertexBufferLayout {
	return []gputypes.VertexBufferLayout{
		{
			ArrayStride: commandVertexStride,
			StepMode:    gputypes.VertexStepModeVertex,
			Attributes: []gputypes.VertexAttribute{
				{Format: gputypes.VertexFormatSint16x4, Offset: 0, ShaderLocation: 0},
				{Format: gputypes.VertexFormatUint8x4, Offset: 8, ShaderLocation: 1},
				{Format: gputypes.VertexFormatUint16x2, Offset: 12, ShaderLocation: 2},
				{Format: gputypes.VertexFormatUint16x2, Offset: 16, ShaderLocation: 3},
				{Format: gputypes.VertexFormatUint16x2, Offset: 20, ShaderLocation: 4},
				{Format: gputypes.VertexFormatUint8x4, Offset: 24, ShaderLocation: 5},
			},
		},
	}
}

// outputVertexStride is the packed size of an OutputVertex.
const outputVertexStride = 12

// OutputVertex pairs a screen-space position with the VRAM coordinate it
// presents. Used only by the output pipeline; regenerated per present.
type OutputVertex struct {
	// Position on the presentation surface in normalized device
	// coordinates.
	Position [2]float32

	// FBCoord is the corresponding coordinate in VRAM.
	FBCoord [2]uint16
}

func (v OutputVertex) stride() int { return outputVertexStride }

func (v OutputVertex) encodeInto(dst []byte) {
	_ = dst[outputVertexStride-1]
	binary.LittleEndian.PutUint32(dst[0:], math.Float32bits(v.Position[0]))
	binary.LittleEndian.PutUint32(dst[4:], math.Float32bits(v.Position[1]))
	binary.LittleEndian.PutUint16(dst[8:], v.FBCoord[0])
	binary.LittleEndian.PutUint16(dst[10:], v.FBCoord[1])
}

// outputVertexLayout returns the vertex buffer layout for the output
// pipeline. Matches VertexIn in the output shader:
//
//	location 0: position (vec2<f32>, Float32x2)
//	location 1: fb_coord (vec2<u32>, Uint16x2)
func outputVertexLayout() []gputypes.VertexBufferLayout {
	return []gputypes.VertexBufferLayout{
		{
			ArrayStride: outputVertexStride,
			StepMode:    gputypes.VertexStepModeVertex,
			Attributes: []gputypes.VertexAttribute{
				{Format: gputypes.VertexFormatFloat32x2, Offset: 0, ShaderLocation: 0},
				{Format: gputypes.VertexFormatUint16x2, Offset: 8, ShaderLocation: 1},
			},
		},
	}
}

// imageLoadVertexStride is the packed size of an ImageLoadVertex.
const imageLoadVertexStride = 4

// ImageLoadVertex is a bare VRAM-space position, used when streaming
// pixel uploads into the texture store. Ephemeral.
type ImageLoadVertex struct {
	Position [2]uint16
}

func (v ImageLoadVertex) stride() int { return imageLoadVertexStride }

func (v ImageLoadVertex) encodeInto(dst []byte) {
	_ = dst[imageLoadVertexStride-1]
	binary.LittleEndian.PutUint16(dst[0:], v.Position[0])
	binary.LittleEndian.PutUint16(dst[2:], v.Position[1])
}

// imageLoadVertexLayout returns the vertex buffer layout for the
// image-load pipeline: a single Uint16x2 position at location 0.
func imageLoadVertexLayout() []gputypes.VertexBufferLayout {
	return []gputypes.VertexBufferLayout{
		{
			ArrayStride: imageLoadVertexStride,
			StepMode:    gputypes.VertexStepModeVertex,
			Attributes: []gputypes.VertexAttribute{
				{Format: gputypes.VertexFormatUint16x2, Offset: 0, ShaderLocation: 0},
			},
		},
	}
}

// vertexData is the constraint shared by all vertex kinds buffered by a
// drawBuffer. stride must be constant for a given type and encodeInto
// must write exactly stride bytes.
type vertexData interface {
	stride() int
	encodeInto(dst []byte)
}
