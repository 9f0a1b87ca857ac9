package formatselect_test

import (
	"testing"

	"github.com/usbcapd/usbcapd/pkg/formatselect"
	"github.com/usbcapd/usbcapd/pkg/videoconn"
)

func fmtVF(fourcc string, w, h, fps int) videoconn.VideoFormat {
	var f [4]byte
	copy(f[:], fourcc)
	return videoconn.VideoFormat{FourCC: f, Width: w, Height: h, FPS: fps}
}

func TestSelectEmpty(t *testing.T) {
	if _, ok := formatselect.Select(nil, formatselect.Target{Width: 1920, Height: 1080}); ok {
		t.Fatal("expected no match for empty format list")
	}
}

func TestSelectTier1Exact60FPS(t *testing.T) {
	formats := []videoconn.VideoFormat{
		fmtVF("YUY2", 1920, 1080, 30),
		fmtVF("YUY2", 1920, 1080, 60),
	}
	got, ok := formatselect.Select(formats, formatselect.Target{Width: 1920, Height: 1080})
	if !ok || got.FPS != 60 {
		t.Fatalf("got %+v, ok=%v", got, ok)
	}
}

func TestSelectTier3SameAspectRatioSmallestAtLeast(t *testing.T) {
	// target 1920x1080 (16:9); no exact match; candidates at 16:9 of
	// varying area, pick the smallest with area >= target's.
	formats := []videoconn.VideoFormat{
		fmtVF("YUY2", 1280, 720, 30),  // 16:9, smaller than target
		fmtVF("YUY2", 2560, 1440, 30), // 16:9, larger than target
		fmtVF("YUY2", 3840, 2160, 30), // 16:9, largest
	}
	got, ok := formatselect.Select(formats, formatselect.Target{Width: 1920, Height: 1080})
	if !ok {
		t.Fatal("expected a match")
	}
	if got.Width != 2560 || got.Height != 1440 {
		t.Fatalf("expected smallest-at-least 2560x1440, got %+v", got)
	}
}

func TestSelectTier3FallsBackToLargestWhenAllSmaller(t *testing.T) {
	formats := []videoconn.VideoFormat{
		fmtVF("YUY2", 640, 360, 30),
		fmtVF("YUY2", 1280, 720, 30),
	}
	got, ok := formatselect.Select(formats, formatselect.Target{Width: 1920, Height: 1080})
	if !ok {
		t.Fatal("expected a match")
	}
	if got.Width != 1280 || got.Height != 720 {
		t.Fatalf("expected largest-available 1280x720, got %+v", got)
	}
}

func TestSelectTier5ClosestArea(t *testing.T) {
	// No aspect-ratio-matching or near-ratio candidates: fall through to
	// closest area, preferring <= target.
	formats := []videoconn.VideoFormat{
		fmtVF("YUY2", 800, 600, 30),  // 4:3, area 480000
		fmtVF("YUY2", 1024, 768, 30), // 4:3, area 786432
	}
	got, ok := formatselect.Select(formats, formatselect.Target{Width: 1920, Height: 1080}) // area 2073600
	if !ok {
		t.Fatal("expected a match")
	}
	if got.Width != 1024 || got.Height != 768 {
		t.Fatalf("expected largest-at-most 1024x768, got %+v", got)
	}
}

func TestSelectTieBreakIsFirstFound(t *testing.T) {
	formats := []videoconn.VideoFormat{
		fmtVF("YUY2", 1920, 1080, 60),
		fmtVF("NV12", 1920, 1080, 60),
	}
	got, ok := formatselect.Select(formats, formatselect.Target{Width: 1920, Height: 1080})
	if !ok {
		t.Fatal("expected a match")
	}
	if got.FourCC != [4]byte{'Y', 'U', 'Y', '2'} {
		t.Fatalf("expected first-found YUY2 to win the tie, got %v", got.FourCC)
	}
}
