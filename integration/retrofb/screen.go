// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package retrofb

import (
	"errors"
	"fmt"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/psxgpu"
)

// Common errors returned by Screen operations.
var (
	// ErrScreenClosed is returned when operations are attempted on a closed screen.
	ErrScreenClosed = errors.New("retrofb: screen is closed")

	// ErrNilProvider is returned when a nil DeviceProvider is passed.
	ErrNilProvider = errors.New("retrofb: nil DeviceProvider")

	// ErrNilRenderer is returned when a nil renderer is passed.
	ErrNilRenderer = errors.New("retrofb: nil renderer")

	// ErrInvalidRenderer is returned when the draw context cannot create
	// textures.
	ErrInvalidRenderer = errors.New("retrofb: renderer must implement gpucontext.TextureCreator")

	// ErrInvalidDrawContext is returned when the created texture cannot be
	// drawn through gpucontext.
	ErrInvalidDrawContext = errors.New("retrofb: dc must implement gpucontext.TextureDrawer")
)

// textureDestroyer matches the gogpu.Texture.Destroy signature.
type textureDestroyer interface {
	Destroy()
}

// Screen presents a psxgpu renderer's display output as a window
// texture. It reads the display area back once per dirty frame and
// reuses the texture across presents.
//
// Screen is NOT safe for concurrent use.
type Screen struct {
	renderer *psxgpu.Renderer
	provider gpucontext.DeviceProvider

	texture    any // Lazy-created texture (*gogpu.Texture)
	oldTexture any // Previous texture awaiting deferred destruction
	dirty      bool
	width      int
	height     int
	closed     bool
}

// New creates a Screen over an existing renderer. The provider should
// come from gogpu.App.GPUContextProvider(). The screen does not take
// ownership of the renderer; close both independently.
func New(provider gpucontext.DeviceProvider, renderer *psxgpu.Renderer) (*Screen, error) {
	if provider == nil {
		return nil, ErrNilProvider
	}
	if renderer == nil {
		return nil, ErrNilRenderer
	}
	return &Screen{
		renderer: renderer,
		provider: provider,
		dirty:    true, // first Present must upload a frame
	}, nil
}

// Renderer returns the wrapped renderer, or nil if the screen is
// closed.
func (s *Screen) Renderer() *psxgpu.Renderer {
	if s.closed {
		return nil
	}
	return s.renderer
}

// Size returns the dimensions of the last staged frame. Zero before
// the first Flush.
func (s *Screen) Size() (width, height int) {
	return s.width, s.height
}

// MarkDirty flags the screen for a display readback on next Flush().
// Call once per finished frame.
func (s *Screen) MarkDirty() {
	s.dirty = true
}

// IsDirty returns true if a readback is pending.
func (s *Screen) IsDirty() bool {
	return s.dirty
}

// Flush reads the display area back and stages it for upload if dirty.
// Returns the texture for manual drawing if needed.
//
// The texture is created lazily during Present(), when a texture
// creator is available; until then Flush returns a placeholder.
func (s *Screen) Flush() (any, error) {
	if s.closed {
		return nil, ErrScreenClosed
	}
	if !s.dirty && s.texture != nil {
		return s.texture, nil
	}

	frame, err := s.renderer.DisplayPixels()
	if err != nil {
		return nil, fmt.Errorf("retrofb: display readback failed: %w", err)
	}
	w := frame.Rect.Dx()
	h := frame.Rect.Dy()

	// A display mode change invalidates the texture; defer destruction
	// until Present has uploaded through the creator, which waits for
	// the GPU and so guarantees no in-flight reference remains.
	if s.texture != nil && (w != s.width || h != s.height) {
		if s.oldTexture != nil {
			if destroyer, ok := s.oldTexture.(textureDestroyer); ok {
				destroyer.Destroy()
			}
		}
		s.oldTexture = s.texture
		s.texture = nil
	}
	s.width = w
	s.height = h

	if s.texture == nil {
		s.texture = &pendingFrame{width: w, height: h, data: frame.Pix}
		s.dirty = false
		return s.texture, nil
	}

	if updater, ok := s.texture.(gpucontext.TextureUpdater); ok {
		if err := updater.UpdateData(frame.Pix); err != nil {
			return nil, fmt.Errorf("retrofb: texture update failed: %w", err)
		}
	}
	s.dirty = false
	return s.texture, nil
}

// Present draws the current frame into a gpucontext.TextureDrawer at
// the window origin. The dc parameter should be obtained from
// gogpu.Context.AsTextureDrawer().
func (s *Screen) Present(dc gpucontext.TextureDrawer) error {
	return s.PresentAt(dc, 0, 0)
}

// PresentAt draws the current frame at a window position.
func (s *Screen) PresentAt(dc gpucontext.TextureDrawer, x, y float32) error {
	if s.closed {
		return ErrScreenClosed
	}

	tex, err := s.Flush()
	if err != nil {
		return err
	}

	if pending, isPending := tex.(*pendingFrame); isPending {
		creator := dc.TextureCreator()
		if creator == nil {
			return ErrInvalidRenderer
		}

		// NewTextureFromRGBA waits for the GPU internally, so the
		// deferred old texture is no longer referenced afterwards.
		realTex, err := creator.NewTextureFromRGBA(pending.width, pending.height, pending.data)
		if err != nil {
			return fmt.Errorf("retrofb: NewTextureFromRGBA failed: %w", err)
		}
		s.texture = realTex
		tex = realTex

		if s.oldTexture != nil {
			if destroyer, ok := s.oldTexture.(textureDestroyer); ok {
				destroyer.Destroy()
			}
			s.oldTexture = nil
		}
	}

	gpuTex, ok := tex.(gpucontext.Texture)
	if !ok {
		return ErrInvalidDrawContext
	}
	return dc.DrawTexture(gpuTex, x, y)
}

// Texture returns the current GPU texture without flushing. Returns
// nil if the texture hasn't been created yet.
func (s *Screen) Texture() any {
	return s.texture
}

// Provider returns the DeviceProvider associated with this screen, or
// nil if closed.
func (s *Screen) Provider() gpucontext.DeviceProvider {
	if s.closed {
		return nil
	}
	return s.provider
}

// Close releases the screen's textures. The wrapped renderer is left
// untouched. Close is idempotent.
func (s *Screen) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	if s.oldTexture != nil {
		if destroyer, ok := s.oldTexture.(textureDestroyer); ok {
			destroyer.Destroy()
		}
		s.oldTexture = nil
	}
	if s.texture != nil {
		if destroyer, ok := s.texture.(textureDestroyer); ok {
			destroyer.Destroy()
		}
		s.texture = nil
	}
	s.renderer = nil
	s.provider = nil
	return nil
}

// pendingFrame is a placeholder holding frame data until Present has
// access to a texture creator.
type pendingFrame struct {
	width  int
	height int
	data   []byte
}
