package psxgpu

import "fmt"

// Point is a position in VRAM coordinates, origin at the top-left.
type Point struct {
	X uint16
	Y uint16
}

// Extent is a width/height pair in VRAM pixels.
type Extent struct {
	Width  uint16
	Height uint16
}

// Color is an RGB color, 8 bits per component. Used for solid fills.
type Color struct {
	R uint8
	G uint8
	B uint8
}

// FrontendResolution describes the presentation surface in pixels.
// It changes only on explicit reconfiguration.
type FrontendResolution struct {
	Width  uint32
	Height uint32
}

// SemiTransparencyMode selects one of the console's four blend equations,
// applied per primitive.
type SemiTransparencyMode uint8

const (
	// SemiTransparencyAverage blends source/2 + destination/2.
	SemiTransparencyAverage SemiTransparencyMode = iota

	// SemiTransparencyAdd blends source + destination.
	SemiTransparencyAdd

	// SemiTransparencySubtractSource blends destination - source.
	SemiTransparencySubtractSource

	// SemiTransparencyAddQuarterSource blends destination + source/4.
	SemiTransparencyAddQuarterSource
)

// String returns the string representation of the mode.
func (m SemiTransparencyMode) String() string {
	switch m {
	case SemiTransparencyAverage:
		return "Average"
	case SemiTransparencyAdd:
		return "Add"
	case SemiTransparencySubtractSource:
		return "SubtractSource"
	case SemiTransparencyAddQuarterSource:
		return "AddQuarterSource"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(m))
	}
}

// sourceWeight returns the source color weight the fragment stage emits as
// alpha for this mode. The pipeline blend factors turn it into the console
// blend equation.
func (m SemiTransparencyMode) sourceWeight() float32 {
	switch m {
	case SemiTransparencyAverage:
		return 0.5
	case SemiTransparencyAddQuarterSource:
		return 0.25
	default:
		return 1.0
	}
}

// TextureBlendMode selects how a primitive combines its texture samples
// with its vertex color.
type TextureBlendMode uint8

const (
	// TextureBlendNone disables texturing, the vertex color is used directly.
	TextureBlendNone TextureBlendMode = iota

	// TextureBlendRaw uses the texture sample unmodified.
	TextureBlendRaw

	// TextureBlendModulate multiplies the texture sample with the vertex
	// color (texel * color * 2, the console's "texture-blended" mode).
	TextureBlendModulate
)

// String returns the string representation of the blend mode.
func (m TextureBlendMode) String() string {
	switch m {
	case TextureBlendNone:
		return "None"
	case TextureBlendRaw:
		return "Raw"
	case TextureBlendModulate:
		return "Modulate"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(m))
	}
}

// PolygonMode selects between filled and wireframe polygon rendering.
// Wireframe is a debug/compatibility toggle: triangles are lowered to
// line-list primitives before batching.
type PolygonMode uint8

const (
	// PolygonModeFill renders triangles filled.
	PolygonModeFill PolygonMode = iota

	// PolygonModeWireframe renders triangle edges as lines.
	PolygonModeWireframe
)

// String returns the string representation of the polygon mode.
func (m PolygonMode) String() string {
	switch m {
	case PolygonModeFill:
		return "Fill"
	case PolygonModeWireframe:
		return "Wireframe"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(m))
	}
}
