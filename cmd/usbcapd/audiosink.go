package main

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/hajimehoshi/ebiten/v2/audio"
	"github.com/usbcapd/usbcapd/internal/sink"
)

// ebitenAudioSink implements sink.Audio against ebiten's audio package:
// the Audio Streamer (component F) Configures us with its PullCallback,
// and we adapt that pull into the io.Reader ebiten's player wants.
type ebitenAudioSink struct {
	ctx    *audio.Context
	player *audio.Player

	mu           sync.Mutex
	cb           sink.AudioCallback
	channels     int
	sampleRate   int
	subFrameSize int
}

func newEbitenAudioSink(ctx *audio.Context) *ebitenAudioSink {
	return &ebitenAudioSink{ctx: ctx}
}

func (s *ebitenAudioSink) Configure(cb sink.AudioCallback, sampleRate, channels, subFrameSize int) error {
	s.mu.Lock()
	s.cb = cb
	s.sampleRate = sampleRate
	s.channels = channels
	s.subFrameSize = subFrameSize
	s.mu.Unlock()

	player, err := audio.NewPlayer(s.ctx, &pullReader{sink: s})
	if err != nil {
		return fmt.Errorf("audiosink: new player: %w", err)
	}
	s.player = player
	return nil
}

func (s *ebitenAudioSink) Start() error {
	if s.player == nil {
		return fmt.Errorf("audiosink: Start before Configure")
	}
	s.player.Play()
	return nil
}

func (s *ebitenAudioSink) Stop() error {
	if s.player == nil {
		return nil
	}
	s.player.Pause()
	return nil
}

func (s *ebitenAudioSink) Close() error {
	if s.player == nil {
		return nil
	}
	return s.player.Close()
}

// pullReader adapts sink.AudioCallback's frame-based pull into the
// byte-stream io.Reader ebiten's audio.Player reads from.
type pullReader struct {
	sink *ebitenAudioSink
	buf  []int16
}

func (r *pullReader) Read(p []byte) (int, error) {
	r.sink.mu.Lock()
	cb, channels, subFrameSize := r.sink.cb, r.sink.channels, r.sink.subFrameSize
	r.sink.mu.Unlock()

	if cb == nil || channels == 0 || subFrameSize == 0 {
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}

	frameBytes := channels * subFrameSize
	numFrames := len(p) / frameBytes
	if numFrames == 0 {
		return 0, nil
	}
	if need := numFrames * channels; cap(r.buf) < need {
		r.buf = make([]int16, need)
	}
	samples := r.buf[:numFrames*channels]

	filled, err := cb(samples, numFrames)
	if err != nil {
		return 0, fmt.Errorf("audiosink: pull callback: %w", err)
	}

	n := 0
	for i := 0; i < filled*channels; i++ {
		binary.LittleEndian.PutUint16(p[n:], uint16(samples[i]))
		n += 2
	}
	return n, nil
}
