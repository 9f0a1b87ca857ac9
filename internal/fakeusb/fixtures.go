// Package fakeusb builds synthetic USB configuration descriptor blobs for
// the devices named in spec.md §8's testable scenarios, so pkg/videoconn,
// pkg/audioconn and pkg/formatselect can be exercised without real
// hardware. It mirrors google-gousb's fakelibusb_test.go approach of
// hand-assembling descriptor bytes rather than mocking gousb itself, since
// components A-E never touch gousb directly.
package fakeusb

import "encoding/binary"

// builder accumulates descriptor records into a single configuration
// descriptor blob.
type builder struct {
	buf []byte
}

// put appends one descriptor record: a bLength byte followed by bytes.
// bLength counts itself, per USB 2.0 §9.5, so it is len(bytes)+1.
func (b *builder) put(bytes ...byte) *builder {
	length := byte(len(bytes) + 1)
	b.buf = append(b.buf, length)
	b.buf = append(b.buf, bytes...)
	return b
}

func word(v uint16) (byte, byte) {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	return buf[0], buf[1]
}

func dword(v uint32) (byte, byte, byte, byte) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	return buf[0], buf[1], buf[2], buf[3]
}

const (
	descIAD           = 0x0B
	descInterface     = 0x04
	descEndpoint      = 0x05
	descClassSpecific = 0x24

	classVideo       = 0x0E
	scVideoIfaceColl = 0x03
	scVideoControl   = 0x01
	scVideoStreaming = 0x02

	vsFormatUncompressed = 0x04
	vsFrameUncompressed  = 0x05
	vsFormatMJPEG        = 0x06
	vsFrameMJPEG         = 0x07

	vcHeader = 0x01
)

// frameSpec is one resolution/fps entry under a format.
type frameSpec struct {
	width, height, fps int
}

// videoFixture describes a single-format, single-or-multi-frame UVC video
// function, matching the shape real capture dongles advertise: one IAD,
// a Video Control interface (with a header and a selector unit that
// exercises the numeric-subtype-collision case fixed in pkg/videoconn),
// and a Video Streaming interface whose alternate setting 0 carries the
// format/frame descriptors and whose alternate setting 1 carries the
// isochronous IN endpoint.
func videoFixture(fourcc [4]byte, mjpeg bool, frames []frameSpec) []byte {
	b := &builder{}

	// IAD: interfaces 0-1, video function.
	b.put(descIAD, 0, 2, classVideo, scVideoIfaceColl, 0, 0)

	// Standard VC interface (interface 0, alt 0, 0 endpoints).
	b.put(descInterface, 0, 0, 0, classVideo, scVideoControl, 0, 0)
	// Class-specific VC header (subtype 0x01 == vcHeader); harmless by
	// itself but placed here to exercise real device ordering.
	b.put(descClassSpecific, vcHeader, 0, 0, 1, 0, 0, 0x01)
	// Class-specific VC selector unit (subtype 0x04 numerically collides
	// with VS_FORMAT_UNCOMPRESSED): regression fixture for the bug fixed
	// in pkg/videoconn.Parse.
	b.put(descClassSpecific, 0x04, 2, 1, 1, 1, 0)

	// Standard VS interface, alt 0, 0 endpoints.
	b.put(descInterface, 1, 0, 0, classVideo, scVideoStreaming, 0, 0)

	if mjpeg {
		// VS_FORMAT_MJPEG (20 bytes as built here): bLength,type,subtype,index,numFrames,...
		b.put(descClassSpecific, vsFormatMJPEG, 1, byte(len(frames)), 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0)
	} else {
		guid := make([]byte, 16)
		copy(guid, fourcc[:])
		row := []byte{descClassSpecific, vsFormatUncompressed, 1, byte(len(frames))}
		row = append(row, guid...)
		row = append(row, 0, 0, 0, 0, 0, 0) // bBitsPerPixel..bCopyProtect
		b.put(row...)
	}

	for i, f := range frames {
		subtype := byte(vsFrameUncompressed)
		if mjpeg {
			subtype = vsFrameMJPEG
		}
		wLo, wHi := word(uint16(f.width))
		hLo, hHi := word(uint16(f.height))
		interval := uint32(10_000_000 / f.fps)
		i0, i1, i2, i3 := dword(interval)
		row := []byte{descClassSpecific, subtype, byte(i + 1), 0, wLo, wHi, hLo, hHi}
		row = append(row, 0, 0, 0, 0) // dwMinBitRate
		row = append(row, 0, 0, 0, 0) // dwMaxBitRate
		row = append(row, 0, 0, 0, 0) // dwMaxVideoFrameBufferSize
		row = append(row, i0, i1, i2, i3)
		row = append(row, 1)                 // bFrameIntervalType: 1 discrete entry
		row = append(row, i0, i1, i2, i3)     // dwFrameInterval[0]
		b.put(row...)
	}

	// Standard VS interface, alt 1, 1 endpoint: the streaming alt setting.
	b.put(descInterface, 1, 1, 1, classVideo, scVideoStreaming, 0, 0)
	b.put(descEndpoint, 0x81, 0x05, 0x00, 0x04, 0x01) // isochronous IN, wMaxPacketSize=1024

	return b.buf
}

// MS2130 is an 1920x1080@60fps YUY2 capture dongle (spec.md §8 scenario 1).
func MS2130() []byte {
	return videoFixture([4]byte{'Y', 'U', 'Y', '2'}, false, []frameSpec{
		{1920, 1080, 60},
		{1280, 720, 60},
		{640, 480, 60},
	})
}

// CamLink4K is a 3840x2160@24fps NV12 capture device (spec.md §8 scenario
// 2).
func CamLink4K() []byte {
	return videoFixture([4]byte{'N', 'V', '1', '2'}, false, []frameSpec{
		{3840, 2160, 24},
		{1920, 1080, 30},
	})
}

// CamLinkT174445785 is a Cam Link variant with no exact 60fps entry at
// 1920x1080, only 59fps (spec.md §8 scenario 3) — the first-found-wins
// fallback inside formatselect.Select's Tier 2 is exercised against this
// fixture.
func CamLinkT174445785() []byte {
	return videoFixture([4]byte{'Y', 'U', 'Y', '2'}, false, []frameSpec{
		{1920, 1080, 59},
		{1280, 720, 59},
	})
}

// Hagibis is a 1920x1080@60fps YUY2 capture dongle (spec.md §8 scenario
// 4), a second independent device to the same target resolution as MS2130.
func Hagibis() []byte {
	return videoFixture([4]byte{'Y', 'U', 'Y', '2'}, false, []frameSpec{
		{1920, 1080, 60},
		{800, 600, 60},
	})
}

const (
	classAudio          = 0x01
	scAudioControl      = 0x01
	scAudioStreaming    = 0x02
	asGeneral           = 0x01
	asFormatType        = 0x02
	acHeader            = 0x01
	formatTagPCM uint16 = 0x0001
)

// AudioPCM16Stereo48k builds a minimal Audio Streaming connection
// advertising 16-bit, 2-channel, 48kHz PCM, preceded by an Audio Control
// header descriptor (subtype 0x01, colliding numerically with AS_GENERAL)
// to regress the same ordering hazard pkg/videoconn had.
func AudioPCM16Stereo48k() []byte {
	b := &builder{}

	// Standard AC interface (interface 0, alt 0, 0 endpoints).
	b.put(descInterface, 0, 0, 0, classAudio, scAudioControl, 0, 0)
	b.put(descClassSpecific, acHeader, 0, 0, 1, 0, 1)

	// Standard AS interface, alt 1 (1 endpoint) — class-specific AS
	// descriptors attach to this same alternate setting, unlike UVC.
	b.put(descInterface, 1, 1, 1, classAudio, scAudioStreaming, 0, 0)

	fLo, fHi := word(formatTagPCM)
	b.put(descClassSpecific, asGeneral, 0, 1, fLo, fHi)

	rLo, rMid, rHi := byte(48000 & 0xFF), byte((48000 >> 8) & 0xFF), byte((48000 >> 16) & 0xFF)
	b.put(descClassSpecific, asFormatType, 1, 2, 2, 16, 1, rLo, rMid, rHi)

	b.put(descEndpoint, 0x82, 0x05, 0x00, 0x04, 0x01)

	return b.buf
}
