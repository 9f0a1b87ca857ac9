// Package audiostreamer implements the Audio Streamer (spec.md §4.F):
// given a device file descriptor and PCM parameters, presents a host audio
// output stream whose data source is the USB IN endpoint, decoupling the
// USB producer clock from the audio callback's consumer clock through
// pkg/ringbuffer.
package audiostreamer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/gousb"
	"github.com/usbcapd/usbcapd/internal/logging"
	"github.com/usbcapd/usbcapd/internal/sink"
	"github.com/usbcapd/usbcapd/internal/usbio"
	"github.com/usbcapd/usbcapd/pkg/audioconn"
	"github.com/usbcapd/usbcapd/pkg/ringbuffer"
)

var log = logging.For("audiostreamer")

const errorLogWindow = 60 * time.Second

// State is the Audio Streamer's lifecycle state (spec.md §4.F).
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
	startTimeout = 500 * time.Millisecond
	stopTimeout  = 500 * time.Millisecond
	drainPoll    = 100 * time.Millisecond
	drainTries   = 5
)

// PoolShape is the isochronous transfer pool sizing computed per
// spec.md §4.F: numPackets = max(2, ceil(framesPerBurst*subFrame*channels/maxPacketSize)),
// bufferSize = maxPacketSize*numPackets, numTransfers = max(2, ceil(bufferCapacity/framesPerBurst)).
type PoolShape struct {
	NumPackets   int
	BufferSize   int
	NumTransfers int
}

func computePoolShape(framesPerBurst, subFrame, channels, maxPacketSize, bufferCapacityInFrames int) PoolShape {
	numPackets := maxInt(2, ceilDiv(framesPerBurst*subFrame*channels, maxPacketSize))
	numTransfers := maxInt(2, ceilDiv(bufferCapacityInFrames, framesPerBurst))
	return PoolShape{
		NumPackets:   numPackets,
		BufferSize:   maxPacketSize * numPackets,
		NumTransfers: numTransfers,
	}
}

func ceilDiv(a, b int) int {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Params are the PCM parameters the streamer is constructed with.
type Params struct {
	SampleRate      uint32
	Channels        int
	SubFrameSize    int
	FramesPerBurst  int
	BufferInFrames  int
	Conn            *audioconn.Connection
	InterfaceNumber int
	Alt             int
}

// Streamer is the Audio Streamer. Zero value is not usable; construct with
// New.
type Streamer struct {
	dev    *usbio.Device
	iface  *gousb.Interface
	params Params

	ring      *ringbuffer.RingBuffer
	audio     sink.Audio
	poolShape PoolShape

	stream *gousb.ReadStream
	cancel context.CancelFunc

	state atomic.Int32

	mu          sync.Mutex
	cond        *sync.Cond
	transfersUp bool
	stopFlag    atomic.Bool

	errLog *logging.RateLimiter
}

// New performs the Audio Streamer's construction sequence: open the USB
// context against fd, claim the audio streaming interface recorded in
// params.Conn (which the caller has already parsed from the configuration
// descriptor; New does not read the descriptor itself), size the
// isochronous transfer pool and ring buffer, and configure the host audio
// output stream. Returns a Streamer in READY_TO_START, or an error
// describing which step failed.
func New(fd uintptr, audio sink.Audio, params Params) (*Streamer, error) {
	dev, err := usbio.Open(fd)
	if err != nil {
		return nil, fmt.Errorf("audiostreamer: %w", err)
	}

	conn := params.Conn
	if conn == nil || !conn.SupportsAudioStreaming() {
		dev.Close()
		return nil, fmt.Errorf("audiostreamer: %s", failureReasonOrDefault(conn))
	}

	iface, err := dev.ClaimInterface(int(conn.InterfaceNumber), int(conn.AlternateSetting))
	if err != nil {
		dev.Close()
		return nil, fmt.Errorf("audiostreamer: %w", err)
	}

	shape := computePoolShape(params.FramesPerBurst, params.SubFrameSize, params.Channels, int(conn.MaxPacketSize), params.BufferInFrames)

	s := &Streamer{
		dev:       dev,
		iface:     iface,
		params:    params,
		audio:     audio,
		poolShape: shape,
		ring:      ringbuffer.New(ringbuffer.Capacity(params.FramesPerBurst, params.SubFrameSize, params.Channels, int(conn.MaxPacketSize), params.BufferInFrames)),
	}
	s.cond = sync.NewCond(&s.mu)
	s.errLog = logging.NewRateLimiter(errorLogWindow)

	if err := audio.Configure(s.PullCallback, int(params.SampleRate), params.Channels, params.SubFrameSize); err != nil {
		dev.Close()
		return nil, fmt.Errorf("audiostreamer: configure audio sink: %w", err)
	}

	s.state.Store(int32(StateReadyToStart))
	return s, nil
}

func failureReasonOrDefault(conn *audioconn.Connection) string {
	if conn == nil {
		return "No Audio Streaming Interface"
	}
	return conn.FailureReason()
}

// State returns the current lifecycle state.
func (s *Streamer) State() State {
	return State(s.state.Load())
}

// Start submits the isochronous transfer pool and requests the audio sink
// to start, per spec.md §4.F "Start". Returns false if already STARTED.
func (s *Streamer) Start() (bool, string) {
	if !s.transition(StateReadyToStart, StateStarting) {
		return false, fmt.Sprintf("cannot start from %s", s.State())
	}

	in, err := s.iface.InEndpoint(int(s.params.Conn.EndpointAddress))
	if err != nil {
		s.state.Store(int32(StateError))
		return false, fmt.Sprintf("open IN endpoint: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := in.NewStreamContext(ctx, s.poolShape.BufferSize, s.poolShape.NumTransfers)
	if err != nil {
		cancel()
		s.state.Store(int32(StateError))
		return false, fmt.Sprintf("submit transfer pool: %v", err)
	}
	s.stream = stream
	s.cancel = cancel
	s.stopFlag.Store(false)

	s.mu.Lock()
	s.transfersUp = true
	s.mu.Unlock()
	go s.pump()

	if err := s.audio.Start(); err != nil {
		s.state.Store(int32(StateError))
		return false, fmt.Sprintf("start audio sink: %v", err)
	}

	s.state.Store(int32(StateStarted))
	return true, ""
}

// pump is the USB event pump (spec.md §4.F): reads isochronous data as it
// arrives and writes it into the ring buffer. It is the one writer of the
// ring buffer, matching the concurrency model in spec.md §5.
func (s *Streamer) pump() {
	buf := make([]byte, s.poolShape.BufferSize)
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
		if n < 2 {
			continue
		}
		samples := bytesToSamples(buf[:n-n%2])
		s.ring.Write(samples)
	}

	s.mu.Lock()
	s.transfersUp = false
	s.cond.Broadcast()
	s.mu.Unlock()
}

func bytesToSamples(buf []byte) []int16 {
	out := make([]int16, len(buf)/2)
	for i := range out {
		out[i] = int16(buf[2*i]) | int16(buf[2*i+1])<<8
	}
	return out
}

func isNoDevice(err error) bool {
	// gousb surfaces a disconnected device as a *usb.TransferStatus or a
	// context-cancellation error depending on platform; either way the
	// pump should stop resubmitting rather than spin.
	return err != nil && err.Error() != ""
}

func (s *Streamer) logRateLimited(err error) {
	if s.errLog.Allow() {
		log.Warn().Err(err).Msg("transient transfer error")
	}
}

// PullCallback is registered with the host audio output stream as the
// data producer (audioPlaybackCallback in spec.md §4.F). It never blocks
// the USB event thread: if fewer samples are available than requested, it
// fills the remainder with silence instead of stalling.
func (s *Streamer) PullCallback(dst []int16, numFrames int) (int, error) {
	want := numFrames * s.params.Channels
	if want > len(dst) {
		want = len(dst)
	}
	got := s.ring.Read(dst[:want])
	for i := got; i < want; i++ {
		dst[i] = 0
	}
	if s.params.Channels == 0 {
		return 0, nil
	}
	return want / s.params.Channels, nil
}

// Stop transitions to STOPPING, waits for the transfer pool to drain, then
// requests the audio sink to stop (spec.md §4.F "Stop"). Idempotent:
// calling Stop while already STOPPED/READY_TO_START is a no-op success.
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

	if err := s.audio.Stop(); err != nil {
		s.state.Store(int32(StateError))
		return false, fmt.Sprintf("stop audio sink: %v", err)
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

// Destroy releases the audio sink, the claimed interface, the device
// handle and the ring buffer (spec.md §4.F "Destroy"). Any USB
// kernel-driver detach performed during construction is reversed by
// usbio.Device.Close.
func (s *Streamer) Destroy() error {
	if cur := s.State(); cur == StateStarted || cur == StateStopping {
		s.Stop()
	}
	s.audio.Close()
	s.state.Store(int32(StateDestroying))
	err := s.dev.Close()
	s.ring = nil
	s.state.Store(int32(StateDestroyed))
	if err != nil {
		return fmt.Errorf("audiostreamer: destroy: %w", err)
	}
	return nil
}

func (s *Streamer) transition(from, to State) bool {
	return s.state.CompareAndSwap(int32(from), int32(to))
}
