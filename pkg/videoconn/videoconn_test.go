package videoconn_test

import (
	"testing"

	"github.com/usbcapd/usbcapd/internal/fakeusb"
	"github.com/usbcapd/usbcapd/pkg/formatselect"
	"github.com/usbcapd/usbcapd/pkg/videoconn"
)

func TestParseMS2130(t *testing.T) {
	conn := videoconn.Parse(fakeusb.MS2130())
	if !conn.SupportsVideoStreaming() {
		t.Fatal("expected video streaming support")
	}
	if conn.IAD == nil {
		t.Fatal("expected an IAD")
	}
	if len(conn.Formats) != 3 {
		t.Fatalf("expected 3 formats, got %d", len(conn.Formats))
	}
	best, ok := formatselect.Select(conn.Formats, formatselect.Target{Width: 1920, Height: 1080})
	if !ok {
		t.Fatal("expected a match")
	}
	if best.Width != 1920 || best.Height != 1080 || best.FPS != 60 {
		t.Fatalf("unexpected best format: %+v", best)
	}
	if best.FourCC != [4]byte{'Y', 'U', 'Y', '2'} {
		t.Fatalf("unexpected fourcc: %v", best.FourCC)
	}
	if best.FormatIndex != 1 || best.FrameIndex != 1 {
		t.Fatalf("expected format/frame index 1/1 for the first entry, got %d/%d", best.FormatIndex, best.FrameIndex)
	}
}

func TestParseCamLink4K(t *testing.T) {
	conn := videoconn.Parse(fakeusb.CamLink4K())
	best, ok := formatselect.Select(conn.Formats, formatselect.Target{Width: 3840, Height: 2160})
	if !ok {
		t.Fatal("expected a match")
	}
	if best.Width != 3840 || best.Height != 2160 || best.FPS != 24 {
		t.Fatalf("unexpected best format: %+v", best)
	}
	if best.FourCC != [4]byte{'N', 'V', '1', '2'} {
		t.Fatalf("unexpected fourcc: %v", best.FourCC)
	}
}

// TestParseCamLinkT174445785NoExact60FPS exercises formatselect's Tier 2
// first-found fallback (spec.md §8 scenario 3): no exact 1920x1080@60fps
// entry exists, only 59fps, so Tier 1 must fall through to Tier 2.
func TestParseCamLinkT174445785NoExact60FPS(t *testing.T) {
	conn := videoconn.Parse(fakeusb.CamLinkT174445785())
	best, ok := formatselect.Select(conn.Formats, formatselect.Target{Width: 1920, Height: 1080})
	if !ok {
		t.Fatal("expected a match")
	}
	if best.FPS != 59 {
		t.Fatalf("expected 59fps fallback, got %d", best.FPS)
	}
}

func TestParseHagibis(t *testing.T) {
	conn := videoconn.Parse(fakeusb.Hagibis())
	best, ok := formatselect.Select(conn.Formats, formatselect.Target{Width: 1920, Height: 1080})
	if !ok {
		t.Fatal("expected a match")
	}
	if best.FPS != 60 {
		t.Fatalf("expected 60fps, got %d", best.FPS)
	}
}

// TestParseSkipsCollidingControlSubtype regresses the bug fixed in
// pkg/videoconn.Parse: a Video Control selector unit descriptor (subtype
// 0x04) numerically collides with VS_FORMAT_UNCOMPRESSED, and every
// fixture built by internal/fakeusb includes one ahead of the streaming
// interface.
func TestParseSkipsCollidingControlSubtype(t *testing.T) {
	conn := videoconn.Parse(fakeusb.MS2130())
	for _, f := range conn.Formats {
		if f.Width == 0 || f.Height == 0 {
			t.Fatalf("spurious zero-sized format leaked from VC descriptor: %+v", f)
		}
	}
}
