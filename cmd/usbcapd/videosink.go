package main

import (
	"fmt"
	"image"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"
)

// ebitenVideoSink implements sink.Video against an ebiten window: the
// Video Streamer (component G) writes decoded RGBA frames into surface
// under mu, and Draw blits whatever was last posted.
type ebitenVideoSink struct {
	mu      sync.Mutex
	surface *image.RGBA
	locked  *image.RGBA
	width   int
	height  int
}

func newEbitenVideoSink() *ebitenVideoSink {
	return &ebitenVideoSink{}
}

func (s *ebitenVideoSink) Lock(width, height int) (*image.RGBA, error) {
	s.mu.Lock()
	if s.locked != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("videosink: Lock called before matching Unlock")
	}
	if s.surface == nil || s.width != width || s.height != height {
		s.surface = image.NewRGBA(image.Rect(0, 0, width, height))
		s.width, s.height = width, height
	}
	s.locked = s.surface
	return s.surface, nil
}

func (s *ebitenVideoSink) Unlock() error {
	if s.locked == nil {
		s.mu.Unlock()
		return fmt.Errorf("videosink: Unlock without a matching Lock")
	}
	s.locked = nil
	s.mu.Unlock()
	return nil
}

// snapshot copies the current surface for the render thread; Draw must
// never touch surface directly since Lock/Unlock run on the Video
// Streamer's pump goroutine, not ebiten's.
func (s *ebitenVideoSink) snapshot() *image.RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.surface == nil {
		return nil
	}
	out := image.NewRGBA(s.surface.Rect)
	copy(out.Pix, s.surface.Pix)
	return out
}

// captureWindow is the ebiten.Game implementation cmd/usbcapd runs on the
// main thread (spec.md §5's UI thread), pulling frames from sink.
type captureWindow struct {
	sink  *ebitenVideoSink
	image *ebiten.Image
}

func newCaptureWindow(sink *ebitenVideoSink) *captureWindow {
	return &captureWindow{sink: sink}
}

func (w *captureWindow) Update() error {
	return nil
}

func (w *captureWindow) Draw(screen *ebiten.Image) {
	frame := w.sink.snapshot()
	if frame == nil {
		return
	}
	if w.image == nil || w.image.Bounds() != frame.Bounds() {
		w.image = ebiten.NewImage(frame.Rect.Dx(), frame.Rect.Dy())
	}
	w.image.WritePixels(frame.Pix)
	screen.DrawImage(w.image, nil)
}

func (w *captureWindow) Layout(outsideWidth, outsideHeight int) (int, int) {
	w.sink.mu.Lock()
	defer w.sink.mu.Unlock()
	if w.sink.width == 0 || w.sink.height == 0 {
		return outsideWidth, outsideHeight
	}
	return w.sink.width, w.sink.height
}
