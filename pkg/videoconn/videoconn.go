// Package videoconn extracts a UVC video streaming connection — the IAD,
// streaming interface and the set of supported VideoFormats — from a
// parsed configuration descriptor.
package videoconn

import (
	"github.com/usbcapd/usbcapd/pkg/descriptors"
)

// VideoFormat is one negotiable (fourcc, resolution, frame rate) triple
// advertised by the device.
type VideoFormat struct {
	FourCC        [4]byte
	Width, Height int
	FPS           int

	// FormatIndex and FrameIndex are the bFormatIndex/bFrameIndex values a
	// caller feeds back into the UVC probe/commit control block (spec.md
	// §4.G) to select this exact format.
	FormatIndex uint8
	FrameIndex  uint8
}

// AspectRatio returns the reduced (w/g, h/g) aspect ratio, g = gcd(w, h).
func (f VideoFormat) AspectRatio() (int, int) {
	g := gcd(f.Width, f.Height)
	if g == 0 {
		return 0, 0
	}
	return f.Width / g, f.Height / g
}

// Area is Width*Height.
func (f VideoFormat) Area() int {
	return f.Width * f.Height
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

const uvcFrameIntervalUnitsPerSecond = 10_000_000

var fourCCMJPG = [4]byte{'M', 'J', 'P', 'G'}

// Connection is the result of walking a configuration descriptor blob for
// its first video function: the IAD, the video streaming interface, and
// every frame descriptor that follows a format descriptor.
type Connection struct {
	IAD              *descriptors.InterfaceAssociationDescriptor
	InterfaceNumber  uint8
	AlternateSetting uint8
	Formats          []VideoFormat
}

// Parse implements spec.md §4.C: maintain a pending fourcc (the last seen
// format descriptor) and the matched streaming interface while walking the
// descriptor stream once; stop at the second IAD, since the remaining
// bytes belong to another function.
//
// The video streaming interface's class-specific format/frame descriptors
// are attached to its zero-bandwidth alternate setting (0 endpoints); the
// isochronous endpoint only appears under a later alternate setting that
// references those same formats. So the interface number is latched from
// the first matching interface descriptor seen regardless of endpoint
// count, while the streaming (non-zero-bandwidth) alternate setting is
// captured separately the first time one with an endpoint appears.
// Class-specific dispatch is gated on inVSIface so a Video Control
// descriptor of a numerically colliding subtype (e.g. VC_SELECTOR_UNIT and
// VS_FORMAT_UNCOMPRESSED are both 0x04) is never misread as a format.
func Parse(blob []byte) *Connection {
	conn := &Connection{}
	descs := descriptors.Parse(blob)

	var pendingFourCC [4]byte
	var pendingFormatIndex uint8
	havePendingFourCC := false
	matchedIfaceNum := false
	haveStreamingAlt := false
	inVSIface := false
	iadCount := 0

	for _, d := range descs {
		if d.IsIAD() && len(d.Bytes) > 5 {
			iadCount++
			if iadCount > 1 {
				break
			}
			if descriptors.ClassCode(d.Bytes[4]) == descriptors.ClassCodeVideo &&
				descriptors.SubclassCode(d.Bytes[5]) == descriptors.SubclassCodeVideoInterfaceCollection {
				iad := &descriptors.InterfaceAssociationDescriptor{}
				if err := iad.Unmarshal(d.Bytes); err == nil {
					conn.IAD = iad
				}
			}
			continue
		}

		if d.Type == descriptors.DescriptorTypeInterface && len(d.Bytes) > 6 {
			class := descriptors.ClassCode(d.Bytes[5])
			subclass := descriptors.SubclassCode(d.Bytes[6])
			numEndpoints := d.Bytes[4]
			isVS := class == descriptors.ClassCodeVideo && subclass == descriptors.SubclassCodeVideoStreaming
			inVSIface = isVS
			if isVS {
				if !matchedIfaceNum {
					matchedIfaceNum = true
					conn.InterfaceNumber = d.Bytes[2]
				}
				if !haveStreamingAlt && numEndpoints >= 1 {
					haveStreamingAlt = true
					conn.AlternateSetting = d.Bytes[3]
				}
			}
			continue
		}

		if !inVSIface || !d.IsClassSpecificInterface() || len(d.Bytes) < 3 {
			continue
		}
		subtype := descriptors.VideoStreamingInterfaceDescriptorSubtype(d.Bytes[2])
		switch subtype {
		case descriptors.VideoStreamingInterfaceDescriptorSubtypeFormatUncompressed:
			if len(d.Bytes) >= 21 {
				var fourcc [4]byte
				copy(fourcc[:], d.Bytes[5:9])
				pendingFourCC = fourcc
				pendingFormatIndex = d.Bytes[3]
				havePendingFourCC = true
			}
		case descriptors.VideoStreamingInterfaceDescriptorSubtypeFormatMJPEG:
			pendingFourCC = fourCCMJPG
			pendingFormatIndex = d.Bytes[3]
			havePendingFourCC = true
		case descriptors.VideoStreamingInterfaceDescriptorSubtypeFrameUncompressed,
			descriptors.VideoStreamingInterfaceDescriptorSubtypeFrameMJPEG:
			if !havePendingFourCC || len(d.Bytes) < 25 {
				break // orphan frame descriptor without a preceding format: drop it
			}
			width := int(descriptors.Word(d.Bytes, 5))
			height := int(descriptors.Word(d.Bytes, 7))
			interval := descriptors.Dword(d.Bytes, 21)
			fps := 0
			if interval > 0 {
				fps = int(uvcFrameIntervalUnitsPerSecond / interval)
			}
			conn.Formats = append(conn.Formats, VideoFormat{
				FourCC:      pendingFourCC,
				Width:       width,
				Height:      height,
				FPS:         fps,
				FormatIndex: pendingFormatIndex,
				FrameIndex:  d.Bytes[3],
			})
		}
	}

	return conn
}

// SupportsVideoStreaming reports whether a usable streaming interface with
// at least one supported format was found.
func (c *Connection) SupportsVideoStreaming() bool {
	return len(c.Formats) > 0
}
