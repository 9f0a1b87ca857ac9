// Package uvcproto is the "UVC protocol handshake" collaborator named in
// spec.md §1/§4.J: it marshals/unmarshals the VideoProbeCommitControl wire
// record and drives the probe/commit control-transfer sequence (UVC 1.5
// §4.3.1.1). It does not reimplement libuvc's streaming state machine,
// only the negotiation records that drive it — the wire format is
// delegated entirely to pkg/descriptors.
package uvcproto

import (
	"fmt"
	"time"

	"github.com/usbcapd/usbcapd/pkg/descriptors"
	"github.com/usbcapd/usbcapd/pkg/requests"
)

const probeControlSelector = 1 << 8
const commitControlSelector = 2 << 8

// ControlTransfer is the subset of *usbio.Device used here, so this package
// doesn't import usbio directly and stays testable against a fake.
type ControlTransfer interface {
	Control(requestType, request uint8, value, index uint16, data []byte) (int, error)
}

// Negotiate runs the probe/commit handshake for the given interface: GET_MAX
// to discover the device's negotiable range, SET_CUR with the caller's
// desired format/frame/interval, GET_CUR to read back what the device
// actually accepted, then a second SET_CUR against the commit control
// selector to lock it in. Returns the final negotiated record.
func Negotiate(dev ControlTransfer, ifNum int, formatIndex, frameIndex uint8, frameInterval time.Duration) (*descriptors.VideoProbeCommitControl, error) {
	buf := make([]byte, 48)

	if _, err := dev.Control(uint8(requests.RequestTypeVideoInterfaceGetRequest), uint8(requests.RequestCodeGetMax), probeControlSelector, uint16(ifNum), buf); err != nil {
		return nil, fmt.Errorf("uvcproto: probe get max: %w", err)
	}

	want := &descriptors.VideoProbeCommitControl{}
	if err := want.UnmarshalBinary(buf); err != nil {
		return nil, fmt.Errorf("uvcproto: unmarshal probe max: %w", err)
	}
	want.FormatIndex = formatIndex
	want.FrameIndex = frameIndex
	want.FrameInterval = frameInterval
	if err := want.MarshalInto(buf); err != nil {
		return nil, fmt.Errorf("uvcproto: marshal probe request: %w", err)
	}

	if _, err := dev.Control(uint8(requests.RequestTypeVideoInterfaceSetRequest), uint8(requests.RequestCodeSetCur), probeControlSelector, uint16(ifNum), buf); err != nil {
		return nil, fmt.Errorf("uvcproto: probe set cur: %w", err)
	}

	if _, err := dev.Control(uint8(requests.RequestTypeVideoInterfaceGetRequest), uint8(requests.RequestCodeGetCur), probeControlSelector, uint16(ifNum), buf); err != nil {
		return nil, fmt.Errorf("uvcproto: probe get cur: %w", err)
	}

	negotiated := &descriptors.VideoProbeCommitControl{}
	if err := negotiated.UnmarshalBinary(buf); err != nil {
		return nil, fmt.Errorf("uvcproto: unmarshal negotiated probe: %w", err)
	}

	if _, err := dev.Control(uint8(requests.RequestTypeVideoInterfaceSetRequest), uint8(requests.RequestCodeSetCur), commitControlSelector, uint16(ifNum), buf); err != nil {
		return nil, fmt.Errorf("uvcproto: commit: %w", err)
	}

	return negotiated, nil
}
