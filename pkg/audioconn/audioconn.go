// Package audioconn extracts a USB Audio Class streaming connection — the
// AS_GENERAL/FORMAT_TYPE descriptors and the IN endpoint that feeds the
// Audio Streamer — from a parsed configuration descriptor.
package audioconn

import (
	"github.com/usbcapd/usbcapd/pkg/descriptors"
)

// SampleFormat is the negotiated PCM sample encoding.
type SampleFormat int

const (
	SampleFormatUnknown SampleFormat = iota
	SampleFormatPCM16
	SampleFormatPCMFloat
)

// Connection is the result of walking a configuration descriptor blob for
// its first audio streaming interface, AS_GENERAL descriptor, FORMAT_TYPE
// descriptor and IN endpoint. Any step that fails to match leaves its
// corresponding field zero and the matching `has*`/`supports*` predicate
// false, rather than returning an error — per spec the state machine reads
// these predicates as typed failure reasons.
type Connection struct {
	InterfaceNumber  uint8
	AlternateSetting uint8

	general    *descriptors.AudioStreamingGeneralDescriptor
	formatType *descriptors.AudioStreamingFormatTypeDescriptor
	endpoint   *descriptors.Descriptor

	EndpointAddress uint8
	MaxPacketSize   uint16
}

// Parse walks blob once, in order, capturing the first matches of:
//  1. an interface with class=AUDIO, subclass=AUDIO_STREAMING, numEndpoints>=1,
//  2. a class-specific interface with subtype AS_GENERAL,
//  3. a class-specific interface with subtype FORMAT_TYPE,
//  4. an IN endpoint following (1).
func Parse(blob []byte) *Connection {
	conn := &Connection{}
	descs := descriptors.Parse(blob)

	inStreamingIface := false
	matchedIface := false

	for _, d := range descs {
		switch {
		case d.Type == descriptors.DescriptorTypeInterface && len(d.Bytes) > 7:
			class := descriptors.ClassCode(d.Bytes[5])
			subclass := descriptors.SubclassCode(d.Bytes[6])
			numEndpoints := d.Bytes[4]
			if !matchedIface && class == descriptors.ClassCodeAudio &&
				subclass == descriptors.SubclassCodeAudioStreaming && numEndpoints >= 1 {
				matchedIface = true
				inStreamingIface = true
				conn.InterfaceNumber = d.Bytes[2]
				conn.AlternateSetting = d.Bytes[3]
			} else {
				inStreamingIface = false
			}

		case inStreamingIface && d.IsClassSpecificInterface() && len(d.Bytes) > 2:
			subtype := descriptors.AudioStreamingInterfaceDescriptorSubtype(d.Bytes[2])
			switch subtype {
			case descriptors.AudioStreamingInterfaceDescriptorSubtypeGeneral:
				if conn.general == nil {
					g := &descriptors.AudioStreamingGeneralDescriptor{}
					if err := g.UnmarshalBinary(d.Bytes); err == nil {
						conn.general = g
					}
				}
			case descriptors.AudioStreamingInterfaceDescriptorSubtypeFormatType:
				if conn.formatType == nil {
					f := &descriptors.AudioStreamingFormatTypeDescriptor{}
					if err := f.UnmarshalBinary(d.Bytes); err == nil {
						conn.formatType = f
					}
				}
			}

		case matchedIface && conn.endpoint == nil && d.IsEndpointWithDirIN():
			dd := d
			conn.endpoint = &dd
			conn.EndpointAddress = d.Bytes[2]
			conn.MaxPacketSize = descriptors.Word(d.Bytes, 4)
		}
	}

	return conn
}

// SupportsAudioStreaming reports whether an IN endpoint was matched after
// the audio streaming interface.
func (c *Connection) SupportsAudioStreaming() bool {
	return c.endpoint != nil
}

// HasFormatTypeDescriptor reports whether a FORMAT_TYPE descriptor was found.
func (c *Connection) HasFormatTypeDescriptor() bool {
	return c.formatType != nil
}

// HasGeneralDescriptor reports whether an AS_GENERAL descriptor was found.
func (c *Connection) HasGeneralDescriptor() bool {
	return c.general != nil
}

// SupportedAudioFormat maps the AS_GENERAL format tag to a SampleFormat.
func (c *Connection) SupportedAudioFormat() SampleFormat {
	if c.general == nil {
		return SampleFormatUnknown
	}
	switch c.general.FormatTag {
	case descriptors.AudioDataFormatTagPCM:
		return SampleFormatPCM16
	case descriptors.AudioDataFormatTagFloat:
		return SampleFormatPCMFloat
	default:
		return SampleFormatUnknown
	}
}

// Channels is the FORMAT_TYPE descriptor's channel count, or 0 if absent.
func (c *Connection) Channels() int {
	if c.formatType == nil {
		return 0
	}
	return int(c.formatType.NrChannels)
}

// SubFrameSize is the FORMAT_TYPE descriptor's bytes-per-sample, or 0 if absent.
func (c *Connection) SubFrameSize() int {
	if c.formatType == nil {
		return 0
	}
	return int(c.formatType.SubFrameSize)
}

// SampleRate picks a single operating sample rate out of the FORMAT_TYPE
// descriptor's frequency table. A discrete table's first entry is used; a
// continuous (min, max) range uses min for bug-compatibility with the
// original source (see DESIGN.md Open Question 2).
func (c *Connection) SampleRate() uint32 {
	if c.formatType == nil || len(c.formatType.SamFreq) == 0 {
		return 0
	}
	return c.formatType.SamFreq[0]
}

// FailureReason describes why the connection cannot stream audio, for
// surfacing through the Native Facade's (ok, message) contract. Returns ""
// if the connection is usable.
func (c *Connection) FailureReason() string {
	switch {
	case !c.SupportsAudioStreaming():
		return "No Audio Streaming Interface"
	case !c.HasGeneralDescriptor():
		return "No Audio Format"
	case !c.HasFormatTypeDescriptor():
		return "No Sample Rate"
	case c.SupportedAudioFormat() == SampleFormatUnknown:
		return "Unsupported Audio Format"
	default:
		return ""
	}
}
