package psxgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// defaultVertexBufferLen is how many vertices a draw buffer accumulates
// before forcing a draw.
const defaultVertexBufferLen = 2048

// evictionPolicy selects what happens when a push exceeds capacity.
type evictionPolicy uint8

const (
	// evictFIFO draws the accumulated vertices, then clears and appends.
	evictFIFO evictionPolicy = iota

	// evictReplaceFromStart draws, then restarts accumulation at offset
	// zero of the same GPU buffer, so a still-bound buffer reference
	// stays valid across the flush boundary. Used by the image-load
	// buffer, whose quads reference the VRAM source image.
	evictReplaceFromStart
)

// drawSubmit issues exactly one draw call for vertexCount vertices read
// from buf. Supplied by the renderer, which knows the pipeline, bind
// group, and render target for the batch.
type drawSubmit func(buf hal.Buffer, vertexCount uint32) error

// drawBuffer accumulates vertices of one fixed element type CPU-side and
// issues them as a single batched draw call when drawn. The GPU buffer is
// allocated once and reused; only the CPU-side occupancy resets per flush.
//
// Capacity is a hard upper bound enforced by forced draws, never an error.
type drawBuffer[V vertexData] struct {
	queue hal.Queue
	buf   hal.Buffer

	capacity    int
	strideBytes int
	policy      evictionPolicy
	topology    gputypes.PrimitiveTopology

	vertices []V
	scratch  []byte

	destroyed bool
	device    hal.Device
}

// newDrawBuffer allocates the GPU-side vertex buffer and the CPU-side
// accumulator. capacity is in vertices.
func newDrawBuffer[V vertexData](device hal.Device, queue hal.Queue, label string,
	capacity int, topology gputypes.PrimitiveTopology, policy evictionPolicy) (*drawBuffer[V], error) {
	if capacity <= 0 {
		capacity = defaultVertexBufferLen
	}
	var zero V
	stride := zero.stride()

	buf, err := device.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  uint64(capacity) * uint64(stride),
		Usage: gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s vertex buffer: %w", label, err)
	}

	return &drawBuffer[V]{
		device:      device,
		queue:       queue,
		buf:         buf,
		capacity:    capacity,
		strideBytes: stride,
		policy:      policy,
		topology:    topology,
		vertices:    make([]V, 0, capacity),
	}, nil
}

// len returns the current CPU-side occupancy in vertices.
func (b *drawBuffer[V]) len() int { return len(b.vertices) }

// remaining returns how many vertices fit before a forced draw.
func (b *drawBuffer[V]) remaining() int { return b.capacity - len(b.vertices) }

// push appends one primitive's vertices. If appending would exceed
// capacity the buffer is drawn first via submit.
func (b *drawBuffer[V]) push(verts []V, submit drawSubmit) error {
	if len(verts) > b.capacity {
		return fmt.Errorf("%w: %d vertices exceed buffer capacity %d",
			ErrBadVertexCount, len(verts), b.capacity)
	}
	if len(b.vertices)+len(verts) > b.capacity {
		if err := b.draw(submit); err != nil {
			return err
		}
	}
	b.vertices = append(b.vertices, verts...)
	return nil
}

// draw uploads the accumulated vertices and issues a single batched draw
// call through submit, then empties the CPU-side accumulation. Drawing an
// empty buffer is a no-op.
func (b *drawBuffer[V]) draw(submit drawSubmit) error {
	n := len(b.vertices)
	if n == 0 {
		return nil
	}

	needed := n * b.strideBytes
	if cap(b.scratch) < needed {
		b.scratch = make([]byte, needed)
	}
	data := b.scratch[:needed]
	for i, v := range b.vertices {
		v.encodeInto(data[i*b.strideBytes:])
	}
	b.queue.WriteBuffer(b.buf, 0, data)

	err := submit(b.buf, uint32(n))

	// Both policies restart accumulation at offset zero; the difference
	// is intent: a replace-from-start buffer promises its GPU buffer
	// identity never changes, so references bound before the flush stay
	// valid afterwards.
	b.vertices = b.vertices[:0]
	return err
}

// destroy releases the GPU buffer. Safe to call multiple times.
func (b *drawBuffer[V]) destroy() {
	if b.destroyed {
		return
	}
	b.destroyed = true
	if b.buf != nil {
		b.device.DestroyBuffer(b.buf)
		b.buf = nil
	}
	b.vertices = nil
	b.scratch = nil
}
