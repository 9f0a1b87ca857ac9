// Package devicestate implements the Device State Machine (spec.md §4.I):
// the sole writer of a UsbDeviceState tagged union, broadcasting every
// transition to however many readers are subscribed, and deciding what an
// attach/detach/permission broadcast from the host means for the device
// this daemon cares about.
package devicestate

import (
	"sync"

	"github.com/usbcapd/usbcapd/pkg/descriptors"
)

// Kind tags which variant of UsbDeviceState a State value holds.
type Kind int

const (
	NotFound Kind = iota
	Attached
	Detached
	PermissionRequired
	PermissionRequested
	PermissionGranted
	PermissionDenied
	Connected
	Streaming
	StreamingStop
	StreamingStopped
	StreamingRestart
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "NotFound"
	case Attached:
		return "Attached"
	case Detached:
		return "Detached"
	case PermissionRequired:
		return "PermissionRequired"
	case PermissionRequested:
		return "PermissionRequested"
	case PermissionGranted:
		return "PermissionGranted"
	case PermissionDenied:
		return "PermissionDenied"
	case Connected:
		return "Connected"
	case Streaming:
		return "Streaming"
	case StreamingStop:
		return "StreamingStop"
	case StreamingStopped:
		return "StreamingStopped"
	default:
		return "StreamingRestart"
	}
}

// State is the tagged union itself. Fields not relevant to Kind are zero.
type State struct {
	Kind Kind

	// Ok/Message carry the (bool, message) result of a Start/Stop call,
	// populated on StreamingStopped/StreamingRestart (see spec.md §7 and
	// DESIGN.md Open Question 1).
	Ok      bool
	Message string
}

// Machine is the sole writer of the current State; Subscribe gives a
// reader its own channel of subsequent transitions.
type Machine struct {
	mu          sync.Mutex
	current     State
	subscribers map[chan State]struct{}
}

func New() *Machine {
	return &Machine{
		current:     State{Kind: NotFound},
		subscribers: make(map[chan State]struct{}),
	}
}

// Current returns the last broadcast state.
func (m *Machine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Subscribe registers a new reader and returns a channel that receives
// every subsequent transition (not the current state — call Current for
// that). Unsubscribe must be called when the reader is done.
func (m *Machine) Subscribe() chan State {
	ch := make(chan State, 16)
	m.mu.Lock()
	m.subscribers[ch] = struct{}{}
	m.mu.Unlock()
	return ch
}

func (m *Machine) Unsubscribe(ch chan State) {
	m.mu.Lock()
	delete(m.subscribers, ch)
	m.mu.Unlock()
}

func (m *Machine) transition(s State) {
	m.mu.Lock()
	m.current = s
	subs := make([]chan State, 0, len(m.subscribers))
	for ch := range m.subscribers {
		subs = append(subs, ch)
	}
	m.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- s:
		default:
			// Slow reader; the newest state always wins on the next send,
			// matching the spec's broadcast-not-queue semantics.
		}
	}
}

// IsUVC classifies a device's Interface Association Descriptor as one this
// daemon can drive: function class Video, subclass
// VideoInterfaceCollection (spec.md §4.I's isUvc rule).
func IsUVC(iad *descriptors.InterfaceAssociationDescriptor) bool {
	return iad != nil &&
		iad.FunctionClass == descriptors.ClassCodeVideo &&
		iad.FunctionSubClass == descriptors.SubclassCodeVideoInterfaceCollection
}

// OnAttach handles a USB_DEVICE_ATTACHED broadcast: an attach while
// already Attached, PermissionGranted or Connected is a no-op (deviceKey
// is not compared), otherwise moves to Attached.
func (m *Machine) OnAttach(deviceKey string, isUVC bool) {
	if !isUVC {
		return
	}
	switch m.Current().Kind {
	case Attached, PermissionGranted, Connected:
		return
	}
	m.transition(State{Kind: Attached})
}

// OnDetach handles a USB_DEVICE_DETACHED broadcast.
func (m *Machine) OnDetach() {
	m.transition(State{Kind: Detached})
}

// OnPermissionRequired is entered once a UVC device is attached but the
// host hasn't granted permission yet.
func (m *Machine) OnPermissionRequired() {
	m.transition(State{Kind: PermissionRequired})
}

func (m *Machine) OnPermissionRequested() {
	m.transition(State{Kind: PermissionRequested})
}

func (m *Machine) OnPermissionGranted() {
	m.transition(State{Kind: PermissionGranted})
}

func (m *Machine) OnPermissionDenied() {
	m.transition(State{Kind: PermissionDenied})
}

func (m *Machine) OnConnected() {
	m.transition(State{Kind: Connected})
}

func (m *Machine) OnStreaming() {
	m.transition(State{Kind: Streaming})
}

func (m *Machine) OnStreamingStop() {
	m.transition(State{Kind: StreamingStop})
}

// OnStreamingStopped records the Stop() result. Per DESIGN.md Open
// Question 1, ok/message are the real values returned by the streamers'
// Stop(), not an unconditional success.
func (m *Machine) OnStreamingStopped(ok bool, message string) {
	m.transition(State{Kind: StreamingStopped, Ok: ok, Message: message})
}

// OnStreamingRestart records a restart attempt's Start() result, for the
// same reason as OnStreamingStopped.
func (m *Machine) OnStreamingRestart(ok bool, message string) {
	m.transition(State{Kind: StreamingRestart, Ok: ok, Message: message})
}
