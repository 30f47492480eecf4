package psxgpu

// FrameStats counts renderer activity within the current frame. Counters
// reset at FinalizeFrame. Useful for debugging batch behavior and for
// monitoring how many draw calls a frame costs.
type FrameStats struct {
	// DrawCalls is the number of draw calls issued since the last
	// FinalizeFrame, including internal blits and synchronization passes.
	DrawCalls int

	// OpaquePrimitives is the number of opaque primitives committed.
	OpaquePrimitives int

	// SemiTransparentPrimitives is the number of semi-transparent
	// primitives deferred for mode-ordered drawing.
	SemiTransparentPrimitives int

	// DroppedPrimitives counts primitives discarded after the frame
	// entered the degraded state.
	DroppedPrimitives int
}
