package psxgpu

import (
	"fmt"
	"strconv"
)

// Default VRAM geometry of the emulated GPU, in 16-bit pixels.
const (
	DefaultVRAMWidth  = 1024
	DefaultVRAMHeight = 512
)

// maxTextureDimension is the largest texture edge the renderer will
// request, matching the WebGPU default limit.
const maxTextureDimension = 8192

// MaxInternalUpscaling is the largest supported internal resolution
// multiplier.
const MaxInternalUpscaling = 8

// DrawConfig bundles the immutable-per-session renderer configuration.
// Any change requires rebuilding the dependent GPU resources; the facade
// handles that wholesale rather than mutating resources in place.
type DrawConfig struct {
	// VRAMWidth and VRAMHeight are the emulated video memory dimensions
	// in 16-bit pixels.
	VRAMWidth  uint32
	VRAMHeight uint32

	// InternalUpscaling multiplies the working image resolution.
	InternalUpscaling uint32

	// InternalColorDepth is 16 (console-accurate, output quantized to
	// 5 bits per channel with optional dithering) or 32 (smooth shading).
	InternalColorDepth uint8

	// Resolution of the frontend's presentation surface.
	Resolution FrontendResolution
}

// DefaultDrawConfig returns a configuration with console-native VRAM
// dimensions, no upscaling, and 16-bit internal color depth.
func DefaultDrawConfig() DrawConfig {
	return DrawConfig{
		VRAMWidth:          DefaultVRAMWidth,
		VRAMHeight:         DefaultVRAMHeight,
		InternalUpscaling:  1,
		InternalColorDepth: 16,
		Resolution:         FrontendResolution{Width: 640, Height: 480},
	}
}

// validate checks the configuration against renderer and platform limits.
func (c DrawConfig) validate() error {
	if c.VRAMWidth == 0 || c.VRAMHeight == 0 {
		return fmt.Errorf("%w: VRAM %dx%d", ErrInvalidConfig, c.VRAMWidth, c.VRAMHeight)
	}
	if c.InternalUpscaling == 0 || c.InternalUpscaling > MaxInternalUpscaling {
		return fmt.Errorf("%w: upscaling %d", ErrInvalidConfig, c.InternalUpscaling)
	}
	if c.InternalColorDepth != 16 && c.InternalColorDepth != 32 {
		return fmt.Errorf("%w: color depth %d", ErrInvalidConfig, c.InternalColorDepth)
	}
	if c.VRAMWidth*c.InternalUpscaling > maxTextureDimension ||
		c.VRAMHeight*c.InternalUpscaling > maxTextureDimension {
		return fmt.Errorf("%w: %dx%d at %dx upscaling", ErrUnsupportedResolution,
			c.VRAMWidth, c.VRAMHeight, c.InternalUpscaling)
	}
	return nil
}

// scaledWidth returns the working image width in pixels.
func (c DrawConfig) scaledWidth() uint32 { return c.VRAMWidth * c.InternalUpscaling }

// scaledHeight returns the working image height in pixels.
func (c DrawConfig) scaledHeight() uint32 { return c.VRAMHeight * c.InternalUpscaling }

// VariableSource supplies frontend-owned configuration variables.
// RefreshVariables polls it once per frame. Implementations return the
// current value for a key and whether the key is set.
type VariableSource interface {
	Variable(key string) (string, bool)
}

// Variable keys polled by RefreshVariables.
const (
	// VarInternalResolution selects the internal upscaling factor ("1".."8").
	VarInternalResolution = "psxgpu_internal_resolution"

	// VarInternalColorDepth selects the internal color depth ("16" or "32").
	VarInternalColorDepth = "psxgpu_internal_color_depth"

	// VarWireframe toggles wireframe polygon rendering ("enabled"/"disabled").
	VarWireframe = "psxgpu_wireframe"

	// VarDither overrides per-command dithering ("enabled"/"disabled").
	VarDither = "psxgpu_dither"
)

// variables is the parsed view of a VariableSource snapshot.
type variables struct {
	upscaling  uint32
	colorDepth uint8
	wireframe  bool
	dither     bool
}

// readVariables parses the source against the current configuration.
// Unknown or malformed values keep the current setting and log a warning.
func readVariables(src VariableSource, cur variables) variables {
	out := cur
	if v, ok := src.Variable(VarInternalResolution); ok {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil || n == 0 || n > MaxInternalUpscaling {
			slogger().Warn("ignoring bad internal resolution", "value", v)
		} else {
			out.upscaling = uint32(n)
		}
	}
	if v, ok := src.Variable(VarInternalColorDepth); ok {
		switch v {
		case "16":
			out.colorDepth = 16
		case "32":
			out.colorDepth = 32
		default:
			slogger().Warn("ignoring bad internal color depth", "value", v)
		}
	}
	if v, ok := src.Variable(VarWireframe); ok {
		out.wireframe = v == "enabled" || v == "true"
	}
	if v, ok := src.Variable(VarDither); ok {
		out.dither = v == "enabled" || v == "true"
	}
	return out
}
