// Package videostreamer implements the Video Streamer (spec.md §4.G): given
// a device file descriptor and a selected VideoFormat, negotiates the UVC
// probe/commit handshake, pulls isochronous frame payloads and converts
// them into the RGBA surface exposed by internal/sink.Video.
package videostreamer

import (
	"context"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/gousb"
	"github.com/usbcapd/usbcapd/internal/logging"
	"github.com/usbcapd/usbcapd/internal/sink"
	"github.com/usbcapd/usbcapd/internal/usbio"
	"github.com/usbcapd/usbcapd/internal/uvcproto"
	"github.com/usbcapd/usbcapd/pkg/videoconn"
)

var log = logging.For("videostreamer")

const errorLogWindow = 60 * time.Second

// State is the Video Streamer's lifecycle state, mirroring the Audio
// Streamer's (spec.md §4.F/§4.G share the same state shape).
type State int

const (
	StateInitial State = iota
	StateReadyToStart
	StateStarting
	StateStarted
	StateStopping
	StateStopped
	StateDestroying
	StateDestroyed
	StateError
)

func (s State) String() string {
	switch s {
	case StateInitial:
		return "INITIAL"
	case StateReadyToStart:
		return "READY_TO_START"
	case StateStarting:
		return "STARTING"
	case StateStarted:
		return "STARTED"
	case StateStopping:
		return "STOPPING"
	case StateStopped:
		return "STOPPED"
	case StateDestroying:
		return "DESTROYING"
	case StateDestroyed:
		return "DESTROYED"
	default:
		return "ERROR"
	}
}

const (
	stopTimeout   = 500 * time.Millisecond
	drainPoll     = 100 * time.Millisecond
	drainTries    = 5
	statsInterval = 10 * time.Second
)

var (
	fourCCYUY2 = [4]byte{'Y', 'U', 'Y', '2'}
	fourCCNV12 = [4]byte{'N', 'V', '1', '2'}
	fourCCMJPG = [4]byte{'M', 'J', 'P', 'G'}
)

// Params are the negotiation parameters the streamer is constructed with.
type Params struct {
	Format          videoconn.VideoFormat
	FormatIndex     uint8
	FrameIndex      uint8
	InterfaceNumber int
	Alt             int
	EndpointAddress int
	MaxPacketSize   int
	NumTransfers    int
}

// Streamer is the Video Streamer. Zero value is not usable; construct with
// New.
type Streamer struct {
	dev    *usbio.Device
	iface  *gousb.Interface
	params Params
	video  sink.Video

	stream *gousb.ReadStream
	cancel context.CancelFunc

	state atomic.Int32

	mu          sync.Mutex
	cond        *sync.Cond
	transfersUp bool
	stopFlag    atomic.Bool

	errLog *logging.RateLimiter

	statsMu      sync.Mutex
	statsStart   time.Time
	framesCaptured int
	framesRendered int
	framesDropped  int
}

// New opens the device, claims the video streaming interface at its
// zero-bandwidth alternate setting, and runs the probe/commit handshake for
// the selected format (spec.md §4.G construction).
func New(fd uintptr, video sink.Video, params Params) (*Streamer, error) {
	dev, err := usbio.Open(fd)
	if err != nil {
		return nil, fmt.Errorf("videostreamer: %w", err)
	}

	iface, err := dev.ClaimInterface(params.InterfaceNumber, 0)
	if err != nil {
		dev.Close()
		return nil, fmt.Errorf("videostreamer: %w", err)
	}

	interval := time.Duration(0)
	if params.Format.FPS > 0 {
		interval = time.Second / time.Duration(params.Format.FPS)
	}
	if _, err := uvcproto.Negotiate(dev, params.InterfaceNumber, params.FormatIndex, params.FrameIndex, interval); err != nil {
		dev.Close()
		return nil, fmt.Errorf("videostreamer: %w", err)
	}

	s := &Streamer{dev: dev, iface: iface, params: params, video: video}
	s.cond = sync.NewCond(&s.mu)
	s.errLog = logging.NewRateLimiter(errorLogWindow)
	s.state.Store(int32(StateReadyToStart))
	return s, nil
}

func (s *Streamer) State() State { return State(s.state.Load()) }

// Start selects the streaming alternate setting, submits the isochronous
// transfer pool and spawns the frame pump. Returns false if already
// STARTED.
func (s *Streamer) Start() (bool, string) {
	if !s.transition(StateReadyToStart, StateStarting) {
		return false, fmt.Sprintf("cannot start from %s", s.State())
	}

	iface, err := s.dev.ClaimInterface(s.params.InterfaceNumber, s.params.Alt)
	if err != nil {
		s.state.Store(int32(StateError))
		return false, fmt.Sprintf("select streaming alt setting: %v", err)
	}
	s.iface = iface

	in, err := s.iface.InEndpoint(s.params.EndpointAddress)
	if err != nil {
		s.state.Store(int32(StateError))
		return false, fmt.Sprintf("open IN endpoint: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := in.NewStreamContext(ctx, s.params.MaxPacketSize, s.params.NumTransfers)
	if err != nil {
		cancel()
		s.state.Store(int32(StateError))
		return false, fmt.Sprintf("submit transfer pool: %v", err)
	}
	s.stream = stream
	s.cancel = cancel
	s.stopFlag.Store(false)

	s.statsMu.Lock()
	s.statsStart = time.Now()
	s.framesCaptured, s.framesRendered, s.framesDropped = 0, 0, 0
	s.statsMu.Unlock()

	s.mu.Lock()
	s.transfersUp = true
	s.mu.Unlock()
	go s.pump()

	s.state.Store(int32(StateStarted))
	return true, ""
}

// pump treats the bytes returned by each stream Read as one frame: it does
// not reassemble isochronous payloads across reads and does not strip UVC
// payload headers. It validates each frame's size against the selected
// fourcc, converts it into the host video surface and logs aggregate stats
// every 10 seconds.
func (s *Streamer) pump() {
	buf := make([]byte, s.params.MaxPacketSize*s.params.NumTransfers)
	lastLog := time.Now()

	for {
		if s.stopFlag.Load() {
			break
		}
		n, err := s.stream.Read(buf)
		if err != nil {
			if isNoDevice(err) {
				break
			}
			s.logRateLimited(err)
			continue
		}

		frame := buf[:n]
		if !validFrameSize(s.params.Format, frame) {
			s.bumpDropped()
			continue
		}

		s.statsMu.Lock()
		s.framesCaptured++
		s.statsMu.Unlock()

		if err := s.render(frame); err != nil {
			s.logRateLimited(err)
		} else {
			s.statsMu.Lock()
			s.framesRendered++
			s.statsMu.Unlock()
		}

		if time.Since(lastLog) >= statsInterval {
			s.logStats()
			lastLog = time.Now()
		}
	}

	s.mu.Lock()
	s.transfersUp = false
	s.cond.Broadcast()
	s.mu.Unlock()
}

// validFrameSize checks the decoded payload size matches the selected
// fourcc's expected byte count (spec.md §4.G frame callback): NV12 is
// width*height*3/2, YUY2 is width*height*2, MJPG only needs a minimal JFIF
// SOI marker since its size varies with compression.
func validFrameSize(f videoconn.VideoFormat, frame []byte) bool {
	switch f.FourCC {
	case fourCCNV12:
		return len(frame) == f.Width*f.Height*3/2
	case fourCCYUY2:
		return len(frame) == f.Width*f.Height*2
	case fourCCMJPG:
		return len(frame) >= 6 && frame[0] == 0xFF && frame[1] == 0xD8
	default:
		return false
	}
}

// render converts frame into the host surface's RGBA buffer, zeroing the
// surface on decode error rather than leaving stale pixels visible.
func (s *Streamer) render(frame []byte) error {
	dst, err := s.video.Lock(s.params.Format.Width, s.params.Format.Height)
	if err != nil {
		return fmt.Errorf("videostreamer: lock surface: %w", err)
	}

	var convErr error
	switch s.params.Format.FourCC {
	case fourCCNV12:
		nv12ToRGBA(dst, frame, s.params.Format.Width, s.params.Format.Height)
	case fourCCYUY2:
		yuy2ToRGBA(dst, frame, s.params.Format.Width, s.params.Format.Height)
	case fourCCMJPG:
		convErr = mjpegToRGBA(dst, frame)
	}
	if convErr != nil {
		zeroRGBA(dst)
	}

	if err := s.video.Unlock(); err != nil {
		return fmt.Errorf("videostreamer: unlock surface: %w", err)
	}
	return convErr
}

func zeroRGBA(dst *image.RGBA) {
	for i := range dst.Pix {
		dst.Pix[i] = 0
	}
}

func (s *Streamer) bumpDropped() {
	s.statsMu.Lock()
	s.framesDropped++
	s.statsMu.Unlock()
}

func (s *Streamer) logStats() {
	s.statsMu.Lock()
	captured, rendered, dropped := s.framesCaptured, s.framesRendered, s.framesDropped
	elapsed := time.Since(s.statsStart)
	s.statsMu.Unlock()
	log.Info().
		Dur("elapsed", elapsed).
		Int("captured", captured).
		Int("rendered", rendered).
		Int("dropped", dropped).
		Msg("stream stats")
}

func isNoDevice(err error) bool {
	return err != nil && err.Error() != ""
}

func (s *Streamer) logRateLimited(err error) {
	if s.errLog.Allow() {
		log.Warn().Err(err).Msg("transient transfer error")
	}
}

// Stop transitions to STOPPING, waits for the transfer pool to drain, then
// closes the stream. Idempotent.
func (s *Streamer) Stop() (bool, string) {
	cur := s.State()
	if cur == StateReadyToStart || cur == StateStopped {
		return true, ""
	}
	if !s.transition(StateStarted, StateStopping) {
		return false, fmt.Sprintf("cannot stop from %s", cur)
	}

	s.stopFlag.Store(true)
	if s.cancel != nil {
		s.cancel()
	}

	drained := s.waitDrain()
	if s.stream != nil {
		s.stream.Close()
	}

	if !drained {
		s.state.Store(int32(StateError))
		return false, "timed out draining transfer pool"
	}

	s.state.Store(int32(StateReadyToStart))
	return true, ""
}

func (s *Streamer) waitDrain() bool {
	deadline := time.Now().Add(drainTries * drainPoll)
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.transfersUp {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		timer := time.AfterFunc(remaining, s.cond.Broadcast)
		s.cond.Wait()
		timer.Stop()
	}
	return true
}

// Destroy releases the claimed interface and device handle.
func (s *Streamer) Destroy() error {
	if cur := s.State(); cur == StateStarted || cur == StateStopping {
		s.Stop()
	}
	s.state.Store(int32(StateDestroying))
	err := s.dev.Close()
	s.state.Store(int32(StateDestroyed))
	if err != nil {
		return fmt.Errorf("videostreamer: destroy: %w", err)
	}
	return nil
}

func (s *Streamer) transition(from, to State) bool {
	return s.state.CompareAndSwap(int32(from), int32(to))
}
