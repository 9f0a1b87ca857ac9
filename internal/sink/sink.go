// Package sink defines the host audio/video output contracts named in
// spec.md §1/§6 as external collaborators ("the host audio output API",
// "view binding"): this repository specifies only the calls made against
// them, not their internals.
package sink

import "image"

// AudioCallback is the host audio callback contract (spec.md §6):
// block-based pull. dst is filled with up to numFrames frames; the
// returned count may be less than numFrames. Returning an error stops the
// stream.
type AudioCallback func(dst []int16, numFrames int) (filled int, err error)

// Audio is a host audio output stream: the Audio Streamer (F) configures it
// once at connect time and drives it through Start/Stop/Close. The
// implementation owns its own callback thread, which is one of the three
// long-lived threads in spec.md §5.
type Audio interface {
	// Configure binds the pull callback and format parameters. Must be
	// called before Start.
	Configure(cb AudioCallback, sampleRate, channels, subFrameSize int) error
	Start() error
	Stop() error
	Close() error
}

// Video is the local video surface named in spec.md §1: a lockable pixel
// buffer the Video Streamer (G) converts decoded frames into.
type Video interface {
	// Lock returns a writable RGBA surface sized for format, blocking
	// until any previous Unlock completed.
	Lock(width, height int) (*image.RGBA, error)
	// Unlock posts the buffer most recently returned by Lock for display.
	Unlock() error
}
