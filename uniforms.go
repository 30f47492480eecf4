package psxgpu

import (
	"encoding/binary"
	"math"
)

// Uniform block encoders. Layouts mirror the WGSL structs in shaders.go,
// including std140-style struct padding, so each encode produces exactly
// the bytes the shader expects.

const (
	drawUniformsSize   = 48
	outputUniformsSize = 16
	loadUniformsSize   = 32
	blitUniformsSize   = 16
)

// drawUniforms parameterizes the command pipelines.
type drawUniforms struct {
	offset      [2]int32
	vramSize    [2]uint32
	areaMin     [2]uint32
	areaMax     [2]uint32
	upscaling   uint32
	colorDepth  uint32
	blendWeight float32
	dither      uint32
}

func (u drawUniforms) encode() []byte {
	buf := make([]byte, drawUniformsSize)
	le := binary.LittleEndian
	le.PutUint32(buf[0:], uint32(u.offset[0]))
	le.PutUint32(buf[4:], uint32(u.offset[1]))
	le.PutUint32(buf[8:], u.vramSize[0])
	le.PutUint32(buf[12:], u.vramSize[1])
	le.PutUint32(buf[16:], u.areaMin[0])
	le.PutUint32(buf[20:], u.areaMin[1])
	le.PutUint32(buf[24:], u.areaMax[0])
	le.PutUint32(buf[28:], u.areaMax[1])
	le.PutUint32(buf[32:], u.upscaling)
	le.PutUint32(buf[36:], u.colorDepth)
	le.PutUint32(buf[40:], math.Float32bits(u.blendWeight))
	le.PutUint32(buf[44:], u.dither)
	return buf
}

// outputUniforms parameterizes the display output pipeline.
type outputUniforms struct {
	origin    [2]uint32
	upscaling uint32
	depth24   uint32
}

func (u outputUniforms) encode() []byte {
	buf := make([]byte, outputUniformsSize)
	le := binary.LittleEndian
	le.PutUint32(buf[0:], u.origin[0])
	le.PutUint32(buf[4:], u.origin[1])
	le.PutUint32(buf[8:], u.upscaling)
	le.PutUint32(buf[12:], u.depth24)
	return buf
}

// loadUniforms parameterizes image-load quads. srcOffset shifts the
// sample position for VRAM-to-VRAM copies; depth stamps the quad into
// the primitive ordering.
type loadUniforms struct {
	vramSize  [2]uint32
	srcOffset [2]int32
	depth     float32
}

func (u loadUniforms) encode() []byte {
	buf := make([]byte, loadUniformsSize)
	le := binary.LittleEndian
	le.PutUint32(buf[0:], u.vramSize[0])
	le.PutUint32(buf[4:], u.vramSize[1])
	le.PutUint32(buf[8:], uint32(u.srcOffset[0]))
	le.PutUint32(buf[12:], uint32(u.srcOffset[1]))
	le.PutUint32(buf[16:], math.Float32bits(u.depth))
	return buf
}

// blitUniforms parameterizes image-to-image blits. srcScale converts
// destination coordinates to source texels, so a blit between images of
// different scales resamples nearest-neighbor.
type blitUniforms struct {
	dstSize  [2]uint32
	srcScale float32
}

func (u blitUniforms) encode() []byte {
	buf := make([]byte, blitUniformsSize)
	le := binary.LittleEndian
	le.PutUint32(buf[0:], u.dstSize[0])
	le.PutUint32(buf[4:], u.dstSize[1])
	le.PutUint32(buf[8:], math.Float32bits(u.srcScale))
	return buf
}
