// Package facade implements the Native Facade (spec.md §4.J): the typed
// (ok bool, message string) surface the host calls into, composing the
// Event Loop (H), the Device State Machine (I), and the Audio/Video
// Streamers (F/G) behind a single object per attached device. Every
// native-call entry point runs on the Event Loop goroutine so F/G/I never
// observe concurrent mutation of the same gousb handle.
package facade

import (
	"fmt"

	"github.com/usbcapd/usbcapd/internal/audiostreamer"
	"github.com/usbcapd/usbcapd/internal/devicestate"
	"github.com/usbcapd/usbcapd/internal/eventloop"
	"github.com/usbcapd/usbcapd/internal/sink"
	"github.com/usbcapd/usbcapd/internal/usbio"
	"github.com/usbcapd/usbcapd/internal/videostreamer"
	"github.com/usbcapd/usbcapd/pkg/audioconn"
	"github.com/usbcapd/usbcapd/pkg/descriptors"
	"github.com/usbcapd/usbcapd/pkg/videoconn"
)

// Facade owns one attached device's Audio and Video Streamers and drives
// them through the Device State Machine.
type Facade struct {
	loop  *eventloop.Loop
	state *devicestate.Machine

	fd uintptr

	audio *audiostreamer.Streamer
	video *videostreamer.Streamer
}

func New(loop *eventloop.Loop, state *devicestate.Machine) *Facade {
	return &Facade{loop: loop, state: state}
}

// Connect runs construction of both streamers on the Event Loop: parses
// the configuration descriptor, extracts the audio/video connections, and
// builds the streamers against the given audio/video sinks and video
// target resolution. ok is false if the configuration descriptor cannot be
// read or a streamer fails to construct; a missing audio or video
// connection on an otherwise-valid device still returns ok with that
// streamer left nil.
func (f *Facade) Connect(fd uintptr, audioSink sink.Audio, videoSink sink.Video, audioParams audiostreamer.Params, videoTarget videoconn.VideoFormat, videoFormatIndex, videoFrameIndex uint8) (ok bool, message string) {
	f.loop.Call(func() {
		f.fd = fd

		blob, err := fetchConfigDescriptor(fd)
		if err != nil {
			ok, message = false, fmt.Sprintf("read configuration descriptor: %v", err)
			return
		}

		audioConn := audioconn.Parse(blob)
		videoConn := videoconn.Parse(blob)

		if videoConn.SupportsVideoStreaming() {
			params := videostreamer.Params{
				Format:          videoTarget,
				FormatIndex:     videoFormatIndex,
				FrameIndex:      videoFrameIndex,
				InterfaceNumber: int(videoConn.InterfaceNumber),
				Alt:             int(videoConn.AlternateSetting),
				EndpointAddress: 0x81,
				MaxPacketSize:   videoTarget.Width * videoTarget.Height * 2,
				NumTransfers:    8,
			}
			vs, err := videostreamer.New(fd, videoSink, params)
			if err != nil {
				ok, message = false, fmt.Sprintf("construct video streamer: %v", err)
				return
			}
			f.video = vs
		}

		if audioConn.SupportsAudioStreaming() {
			audioParams.Conn = audioConn
			audioParams.InterfaceNumber = int(audioConn.InterfaceNumber)
			audioParams.Alt = int(audioConn.AlternateSetting)
			as, err := audiostreamer.New(fd, audioSink, audioParams)
			if err != nil {
				ok, message = false, fmt.Sprintf("construct audio streamer: %v", err)
				return
			}
			f.audio = as
		}

		f.state.OnConnected()
		ok, message = true, ""
	})
	return
}

func fetchConfigDescriptor(fd uintptr) ([]byte, error) {
	dev, err := usbio.Open(fd)
	if err != nil {
		return nil, err
	}
	defer dev.Close()
	return dev.ConfigDescriptorBytes()
}

// IsUVC reports whether blob's first Interface Association Descriptor
// describes a UVC function, delegating to devicestate's classification
// rule.
func IsUVC(blob []byte) bool {
	descs := descriptors.Parse(blob)
	for _, d := range descs {
		if !d.IsIAD() {
			continue
		}
		iad := &descriptors.InterfaceAssociationDescriptor{}
		if err := iad.Unmarshal(d.Bytes); err != nil {
			return false
		}
		return devicestate.IsUVC(iad)
	}
	return false
}

// Start starts whichever streamers were constructed, on the Event Loop.
func (f *Facade) Start() (bool, string) {
	var ok bool
	var message string
	f.loop.Call(func() {
		ok, message = true, ""
		if f.video != nil {
			if vok, vmsg := f.video.Start(); !vok {
				ok, message = false, vmsg
				return
			}
		}
		if f.audio != nil {
			if aok, amsg := f.audio.Start(); !aok {
				ok, message = false, amsg
				return
			}
		}
		f.state.OnStreaming()
	})
	return ok, message
}

// Stop stops whichever streamers are running, on the Event Loop, and
// records the real result via OnStreamingStopped (DESIGN.md Open
// Question 1).
func (f *Facade) Stop() (bool, string) {
	var ok = true
	var message string
	f.loop.Call(func() {
		if f.video != nil {
			if vok, vmsg := f.video.Stop(); !vok {
				ok, message = false, vmsg
			}
		}
		if f.audio != nil {
			if aok, amsg := f.audio.Stop(); !aok {
				ok, message = false, amsg
			}
		}
		f.state.OnStreamingStopped(ok, message)
	})
	return ok, message
}

// Restart stops then starts both streamers, recording the Start() result
// via OnStreamingRestart.
func (f *Facade) Restart() (bool, string) {
	f.Stop()
	ok, message := f.Start()
	f.state.OnStreamingRestart(ok, message)
	return ok, message
}

// Disconnect destroys both streamers, on the Event Loop.
func (f *Facade) Disconnect() error {
	var err error
	f.loop.Call(func() {
		if f.audio != nil {
			if e := f.audio.Destroy(); e != nil {
				err = e
			}
			f.audio = nil
		}
		if f.video != nil {
			if e := f.video.Destroy(); e != nil {
				err = e
			}
			f.video = nil
		}
	})
	return err
}
