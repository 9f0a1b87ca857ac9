package audioconn_test

import (
	"testing"

	"github.com/usbcapd/usbcapd/internal/fakeusb"
	"github.com/usbcapd/usbcapd/pkg/audioconn"
)

func TestParseAudioPCM16Stereo48k(t *testing.T) {
	conn := audioconn.Parse(fakeusb.AudioPCM16Stereo48k())

	if !conn.SupportsAudioStreaming() {
		t.Fatalf("expected audio streaming support, reason=%q", conn.FailureReason())
	}
	if !conn.HasGeneralDescriptor() {
		t.Fatal("expected an AS_GENERAL descriptor")
	}
	if !conn.HasFormatTypeDescriptor() {
		t.Fatal("expected a FORMAT_TYPE descriptor")
	}
	if conn.InterfaceNumber != 1 || conn.AlternateSetting != 1 {
		t.Fatalf("unexpected interface/alt: %d/%d", conn.InterfaceNumber, conn.AlternateSetting)
	}
	if conn.SupportedAudioFormat() != audioconn.SampleFormatPCM16 {
		t.Fatalf("unexpected sample format: %v", conn.SupportedAudioFormat())
	}
	if conn.Channels() != 2 {
		t.Fatalf("expected 2 channels, got %d", conn.Channels())
	}
	if conn.SubFrameSize() != 2 {
		t.Fatalf("expected 2-byte subframes, got %d", conn.SubFrameSize())
	}
	if conn.SampleRate() != 48000 {
		t.Fatalf("expected 48000Hz, got %d", conn.SampleRate())
	}
	if conn.EndpointAddress != 0x82 {
		t.Fatalf("unexpected endpoint address: %#x", conn.EndpointAddress)
	}
	if conn.MaxPacketSize != 1024 {
		t.Fatalf("expected wMaxPacketSize 1024, got %d", conn.MaxPacketSize)
	}
	if conn.FailureReason() != "" {
		t.Fatalf("expected no failure reason, got %q", conn.FailureReason())
	}
}

// TestParseIgnoresControlHeaderOutsideStreamingIface regresses the ordering
// hazard fixed in pkg/videoconn: the Audio Control header's subtype (0x01)
// numerically collides with AS_GENERAL (0x01), but it precedes the audio
// streaming interface, so inStreamingIface must be false while it is seen.
func TestParseIgnoresControlHeaderOutsideStreamingIface(t *testing.T) {
	conn := audioconn.Parse(fakeusb.AudioPCM16Stereo48k())
	if conn.SupportedAudioFormat() != audioconn.SampleFormatPCM16 {
		t.Fatalf("AC header misread as AS_GENERAL, format=%v", conn.SupportedAudioFormat())
	}
}
